package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/deepch/mkvmux/config"
	"github.com/deepch/mkvmux/format/mkv"
	"github.com/deepch/mkvmux/mux"
)

func newMuxCmd(a *app) *cobra.Command {
	var (
		output string
		tracks trackFlags
	)
	cmd := &cobra.Command{
		Use:   "mux -o OUTPUT FILE [+APPENDED] [@PART] [FILE...]",
		Short: "Multiplex the tracks of the input files into OUTPUT",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return errors.New("no output file, use -o")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return a.mux(ctx, cmd.OutOrStdout(), output, args, &tracks)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&output, "output", "o", "", "output file, - for stdout; may hold {start_*}, {duration_*} and {host_name} placeholders")
	flags.StringArrayVar(&tracks.languages, "language", nil, "track language, NUMBER:LANG")
	flags.StringArrayVar(&tracks.names, "track-name", nil, "track name, NUMBER:NAME")
	flags.StringArrayVar(&tracks.stereo, "stereo-mode", nil, "video stereo mode, NUMBER:KEYWORD")
	flags.StringArrayVar(&tracks.defaults, "default-track", nil, "default flag, NUMBER:BOOL")
	flags.StringArrayVar(&tracks.forced, "forced-track", nil, "forced flag, NUMBER:BOOL")

	flags.Duration("cluster-duration", 0, "maximum cluster duration")
	flags.Int("cluster-size", 0, "maximum cluster payload in bytes")
	flags.Bool("crc", false, "write CRC-32 elements")
	flags.String("title", "", "segment title")
	flags.Int("lace", 0, "audio frames per block")
	for key, name := range map[string]string{
		config.ClusterMaxDuration: "cluster-duration",
		config.ClusterMaxSize:     "cluster-size",
		config.WriterCRC:          "crc",
		config.OutputTitle:        "title",
		config.MuxLace:            "lace",
	} {
		a.v.BindPFlag(key, flags.Lookup(name))
	}
	return cmd
}

func (a *app) mux(ctx context.Context, stdout io.Writer, output string, args []string, tf *trackFlags) (err error) {
	arena, err := buildArena(args)
	if err != nil {
		return
	}
	topts, err := tf.options()
	if err != nil {
		return
	}

	opts := a.cfg.Options()
	opts.Log = a.log
	opts.Output.Date = time.Now()
	d := mux.NewDriver(opts)
	defer d.Close()
	if err = d.Open(ctx, arena); err != nil {
		return
	}
	if err = d.ApplyOptions(topts); err != nil {
		return
	}

	var (
		w    io.Writer = os.Stdout
		sink *mkv.FileSink
	)
	if output != "-" {
		if sink, err = mkv.CreateFile(output, a.cfg.Output.MinFree); err != nil {
			return
		}
		w = sink
	}

	done := make(chan struct{})
	go a.report(d, done)
	res, err := d.Run(ctx, w)
	close(done)
	if err != nil {
		if sink != nil {
			sink.Abort()
		}
		return
	}

	name := output
	if sink != nil {
		if name, err = sink.Commit(res.Duration); err != nil {
			return
		}
	}

	status := color.GreenString("done")
	switch {
	case res.Stopped:
		status = color.YellowString("stopped")
	case res.Degraded:
		status = color.YellowString("done with errors")
	}
	if output != "-" {
		color.New(color.Bold).Fprintf(stdout, "%s ", name)
		io.WriteString(stdout, status+"\n")
	}
	a.log.WithFields(logrus.Fields{
		"clusters": res.Clusters,
		"duration": res.Duration,
	}).Info("written")
	if res.Degraded {
		a.log.WithError(res.Err).Warn("some tracks ended early")
	}
	return
}

func (a *app) report(d *mux.Driver, done <-chan struct{}) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	last := -1
	for {
		select {
		case <-done:
			return
		case <-t.C:
			if p := d.Progress(); p != last {
				last = p
				a.log.WithField("progress", p).Info("muxing")
			}
		}
	}
}
