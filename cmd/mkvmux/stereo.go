package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/deepch/mkvmux/av/stereo"
)

func newStereoModesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stereo-modes",
		Short: "List the stereo mode keywords accepted by --stereo-mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := stereo.NewRegistry()
			for i := 0; i < reg.Count(); i++ {
				m := stereo.Mode(i)
				fmt.Fprintf(cmd.OutOrStdout(), "%2d  %-32s %s\n", i, color.CyanString(reg.Keyword(m)), reg.Translate(m))
			}
			return nil
		},
	}
}
