// Command mkvmux multiplexes media files into a Matroska file.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/deepch/mkvmux/config"
	"github.com/deepch/mkvmux/format"
	"github.com/deepch/mkvmux/utils/logger"
)

var version = "dev"

type app struct {
	v          *viper.Viper
	configFile string
	verbose    bool
	cfg        *config.Config
	log        *logrus.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}
	root := &cobra.Command{
		Use:           "mkvmux",
		Short:         "Multiplex media files into Matroska",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) (err error) {
			if a.cfg, err = config.Load(a.v, a.configFile); err != nil {
				return
			}
			level := a.cfg.Log.Level
			if a.verbose {
				level = "debug"
			}
			a.log = logger.New(cmd.ErrOrStderr(), level)
			format.RegisterAll()
			return
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default mkvmux.yaml in ., $HOME/.mkvmux or /etc/mkvmux)")
	flags.String("log-level", "info", "log level")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	a.v.BindPFlag(config.LogLevel, flags.Lookup("log-level"))

	root.AddCommand(newMuxCmd(a), newIdentifyCmd(a), newStereoModesCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}
