package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"media-transcoder/internal/presets"
	"media-transcoder/internal/startup"
)

func newPresetsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the quality tiers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := ctx.presets()
			if err != nil {
				return err
			}
			if ctx.jsonOutput {
				return writeJSON(cmd, registry.All())
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderPresets(registry.All()))
			return nil
		},
	}
}

func renderPresets(tiers []presets.Preset) string {
	rows := make([][]string, 0, len(tiers))
	for _, p := range tiers {
		rows = append(rows, []string{
			p.Name,
			p.Resolution(),
			strconv.Itoa(p.VideoBitrate) + "k",
			strconv.Itoa(p.AudioBitrate) + "k",
			strconv.Itoa(p.FPS),
			p.Profile,
		})
	}
	return renderTable([]string{"Name", "Resolution", "Video", "Audio", "FPS", "Profile"}, rows, 2, 3, 4)
}

func newVersionCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := startup.GetBuildInfo()
			if ctx.jsonOutput {
				return writeJSON(cmd, info)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "transcodectl %s (commit %s, built %s, %s %s/%s)\n",
				info.Version, info.Commit, info.BuildTime, info.GoVersion, info.OS, info.Arch)
			return nil
		},
	}
}
