package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"media-transcoder/internal/logging"
	"media-transcoder/internal/thumbnail"
)

func newThumbnailCommand(ctx *commandContext) *cobra.Command {
	var (
		at      string
		output  string
		width   int
		quality int
	)

	cmd := &cobra.Command{
		Use:   "thumbnail <file>",
		Short: "Render a JPEG frame from a video",
		Long: `Render a JPEG frame from a video.

The timestamp is plain seconds ("12.5") or a clock ("00:01:02.5"). Positions
past the end of the video use the last whole second.

Example:
  transcodectl thumbnail movie.mp4 --at 1:30 -o poster.jpg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			timestamp, err := thumbnail.ParseTimestamp(at)
			if err != nil {
				return err
			}
			input, err := inputArg(args[0])
			if err != nil {
				return err
			}
			if output == "" {
				output = defaultThumbnailPath(input.Path)
			}

			workspaces, err := ctx.workspaces()
			if err != nil {
				return err
			}
			ws, err := workspaces.Acquire("thumbnail-" + uuid.NewString())
			if err != nil {
				return err
			}
			defer func() {
				if err := ws.Release(); err != nil {
					logging.Warn("Failed to release workspace %s: %v", ws.Dir(), err)
				}
			}()

			if initErr := thumbnail.InitVips(); initErr != nil {
				logging.Debug("libvips unavailable, resizing in Go: %v", initErr)
			} else {
				defer thumbnail.ShutdownVips()
			}

			gen := thumbnail.NewGenerator(thumbnail.Config{
				Runner:  ctx.ffmpeg(),
				Prober:  ctx.prober(),
				Width:   width,
				Quality: quality,
			})
			data, err := gen.Generate(cmd.Context(), input, timestamp, ws)
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write thumbnail: %w", err)
			}

			if ctx.jsonOutput {
				return writeJSON(cmd, map[string]any{"path": output, "bytes": len(data), "width": gen.Width()})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s, %dpx wide)\n", output, formatBytes(int64(len(data))), gen.Width())
			return nil
		},
	}

	cmd.Flags().StringVarP(&at, "at", "t", "", "Frame position (default: a few seconds in)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: <input>-thumb.jpg in the current directory)")
	cmd.Flags().IntVar(&width, "width", thumbnail.DefaultWidth, "Thumbnail width in pixels")
	cmd.Flags().IntVar(&quality, "quality", thumbnail.DefaultQuality, "JPEG quality (1-100)")
	return cmd
}

func defaultThumbnailPath(input string) string {
	base := filepath.Base(input)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "-thumb.jpg"
}
