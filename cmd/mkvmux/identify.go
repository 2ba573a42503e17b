package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/deepch/mkvmux/av"
	"github.com/deepch/mkvmux/mux"
	"github.com/deepch/mkvmux/source"
)

func newIdentifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "identify FILE [+APPENDED] [@PART] [FILE...]",
		Short: "Show the container and tracks of the input files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arena, err := buildArena(args)
			if err != nil {
				return err
			}
			opts := a.cfg.Options()
			opts.Log = a.log
			d := mux.NewDriver(opts)
			defer d.Close()
			if err = d.Open(cmd.Context(), arena); err != nil {
				return err
			}
			printArena(cmd.OutOrStdout(), arena)
			printTracks(cmd.OutOrStdout(), d.Tracks())
			return nil
		},
	}
}

func printArena(w io.Writer, arena *source.Arena) {
	arena.Walk(func(i source.Index, depth int) error {
		f := arena.Get(i)
		indent := strings.Repeat("  ", depth)
		switch {
		case f.IsAdditionalPart():
			fmt.Fprintf(w, "%s%s %s\n", indent, color.New(color.Faint).Sprint("part"), f.Name)
			return nil
		case f.IsAppended():
			fmt.Fprintf(w, "%s%s %s: %s\n", indent, color.CyanString("+"), f.Name, f.Container)
		default:
			fmt.Fprintf(w, "%s%s: %s\n", indent, color.New(color.Bold).Sprint(f.Name), f.Container)
		}
		for _, t := range f.Tracks {
			fmt.Fprintf(w, "%s  track %d: %s %s\n", indent, t.ID, t.Kind, t.CodecID)
		}
		return nil
	})
}

func printTracks(w io.Writer, tracks []*av.Track) {
	fmt.Fprintln(w, color.New(color.Bold).Sprint("output tracks"))
	for _, t := range tracks {
		fmt.Fprintf(w, "  %s %s %s [%s]", color.GreenString("%d", t.Number), t.Kind, t.CodecID, t.Language)
		if t.Name != "" {
			fmt.Fprintf(w, " %q", t.Name)
		}
		if v := t.Video; v != nil {
			fmt.Fprintf(w, " %dx%d", v.PixelWidth, v.PixelHeight)
		}
		if au := t.Audio; au != nil {
			fmt.Fprintf(w, " %gHz %dch", au.SampleRate, au.Channels)
		}
		fmt.Fprintln(w)
	}
}
