package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"media-transcoder/internal/probe"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <file>",
		Short: "Show container, video and audio metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := inputArg(args[0])
			if err != nil {
				return err
			}
			meta, err := ctx.prober().Extract(cmd.Context(), input)
			if err != nil {
				return err
			}

			if ctx.jsonOutput {
				return writeJSON(cmd, meta)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderMetadata(input.Path, meta))
			return nil
		},
	}
}

func renderMetadata(path string, m *probe.Metadata) string {
	duration := "unknown"
	if d := m.DurationValue(); d > 0 {
		duration = d.Round(time.Millisecond).String()
	}

	pairs := [][2]string{
		{"File", path},
		{"Size", formatBytes(m.SizeBytes)},
		{"Format", m.Format},
		{"Duration", duration},
		{"Bitrate", formatBitrate(m.Bitrate)},
		{"Video", fmt.Sprintf("%s %s (%s) @ %s fps", m.VideoCodec, m.Resolution(), m.AspectRatio, strconv.FormatFloat(m.FrameRate, 'f', -1, 64))},
	}
	if a := m.Audio; a != nil {
		pairs = append(pairs, [2]string{"Audio", fmt.Sprintf("%s %d ch %d Hz %s", a.Codec, a.Channels, a.SampleRate, formatBitrate(a.Bitrate))})
	} else {
		pairs = append(pairs, [2]string{"Audio", "none"})
	}
	return keyValues(pairs)
}
