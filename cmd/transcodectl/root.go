package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"media-transcoder/internal/engine"
	"media-transcoder/internal/logging"
	"media-transcoder/internal/presets"
	"media-transcoder/internal/probe"
	"media-transcoder/internal/workspace"
)

// commandContext carries the persistent flags and builds core components
// on first use.
type commandContext struct {
	ffmpegPath  string
	ffprobePath string
	workDir     string
	presetsFile string
	logLevel    string
	jsonOutput  bool

	registryOnce sync.Once
	registry     *presets.Registry
	registryErr  error
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "transcodectl",
		Short:         "Probe, thumbnail and transcode local media files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, ok := logging.ParseLevel(ctx.logLevel)
			if !ok {
				return fmt.Errorf("unknown log level %q", ctx.logLevel)
			}
			logging.SetLevel(level)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&ctx.ffmpegPath, "ffmpeg", envOr("FFMPEG_PATH", "ffmpeg"), "ffmpeg binary")
	flags.StringVar(&ctx.ffprobePath, "ffprobe", envOr("FFPROBE_PATH", "ffprobe"), "ffprobe binary")
	flags.StringVar(&ctx.workDir, "work-dir", envOr("WORK_DIR", filepath.Join(os.TempDir(), "transcodectl")), "Scratch directory for encode workspaces")
	flags.StringVar(&ctx.presetsFile, "presets-file", "", "TOML file with [[presets]] tiers replacing the built-in ones")
	flags.StringVar(&ctx.logLevel, "log-level", envOr("LOG_LEVEL", "warn"), "Log level (debug, info, warn, error)")
	flags.BoolVar(&ctx.jsonOutput, "json", false, "Print machine-readable JSON")

	rootCmd.AddCommand(newProbeCommand(ctx))
	rootCmd.AddCommand(newThumbnailCommand(ctx))
	rootCmd.AddCommand(newTranscodeCommand(ctx))
	rootCmd.AddCommand(newPresetsCommand(ctx))
	rootCmd.AddCommand(newVersionCommand(ctx))

	return rootCmd
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func (c *commandContext) ffmpeg() engine.Command {
	return engine.Command{Path: c.ffmpegPath}
}

func (c *commandContext) prober() *probe.Extractor {
	return probe.NewExtractor(engine.Command{Path: c.ffprobePath})
}

func (c *commandContext) workspaces() (*workspace.Manager, error) {
	return workspace.NewManager(workspace.Config{Root: c.workDir})
}

// presets returns the built-in tiers, or the ones in --presets-file.
func (c *commandContext) presets() (*presets.Registry, error) {
	c.registryOnce.Do(func() {
		if c.presetsFile == "" {
			c.registry = presets.Default()
			return
		}
		c.registry, c.registryErr = loadPresetsFile(c.presetsFile)
	})
	return c.registry, c.registryErr
}

func loadPresetsFile(path string) (*presets.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets file: %w", err)
	}
	var file struct {
		Presets []presets.Preset `toml:"presets"`
	}
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse presets file %s: %w", path, err)
	}
	if len(file.Presets) == 0 {
		return nil, fmt.Errorf("presets file %s defines no [[presets]]", path)
	}
	return presets.NewRegistry(file.Presets)
}

// inputArg turns a path argument into an input handle.
func inputArg(arg string) (probe.InputHandle, error) {
	path, err := filepath.Abs(arg)
	if err != nil {
		return probe.InputHandle{}, err
	}
	return probe.InputHandle{Path: path}.Resolve()
}
