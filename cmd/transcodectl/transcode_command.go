package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"media-transcoder/internal/admission"
	"media-transcoder/internal/artifacts"
	"media-transcoder/internal/encode"
	"media-transcoder/internal/events"
	"media-transcoder/internal/failure"
	"media-transcoder/internal/logging"
	"media-transcoder/internal/transcode"
	"media-transcoder/internal/workers"
)

func newTranscodeCommand(ctx *commandContext) *cobra.Command {
	var (
		presetNames []string
		parallel    bool
		failFast    bool
		outputDir   string
		jobs        int
		timeoutMult float64
	)

	cmd := &cobra.Command{
		Use:   "transcode <file>",
		Short: "Encode a file into one or more preset tiers",
		Long: `Encode a file into one or more preset tiers.

Renditions are written to <output-dir>/<request id>/<preset>.mp4. Presets run
one at a time unless --parallel is set. Interrupting the command cancels
every running encode and removes its scratch files.

Example:
  transcodectl transcode movie.mkv -p 1080p,720p,480p --parallel`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := ctx.presets()
			if err != nil {
				return err
			}
			input, err := inputArg(args[0])
			if err != nil {
				return err
			}
			workspaces, err := ctx.workspaces()
			if err != nil {
				return err
			}
			store, err := artifacts.NewLocalStore(outputDir)
			if err != nil {
				return err
			}

			capacity := 1
			switch {
			case parallel && jobs > 0:
				capacity = jobs
			case parallel:
				capacity = workers.ForEncode(0)
			}
			coord, err := transcode.New(transcode.Config{
				Presets:    registry,
				Admission:  admission.New(capacity, nil),
				Workspaces: workspaces,
				Runner: encode.NewRunner(encode.Config{
					Launcher:          ctx.ffmpeg(),
					Threads:           workers.ThreadsPerJob(capacity),
					TimeoutMultiplier: timeoutMult,
				}),
				Artifacts: store,
				Prober:    ctx.prober(),
			})
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := coord.Shutdown(shutdownCtx); err != nil {
					logging.Warn("Encoders did not stop in time: %v", err)
				}
			}()

			// The run outlives an interrupt long enough to report it.
			run, err := coord.Start(context.Background(), transcode.Request{
				Input:    input,
				Presets:  presetNames,
				Parallel: parallel,
				FailFast: failFast,
			})
			if err != nil {
				return err
			}
			go func() {
				select {
				case <-cmd.Context().Done():
					run.Cancel()
				case <-run.Done():
				}
			}()

			terminal := consumeEvents(cmd, ctx.jsonOutput, presetNames, run.Events())
			result := run.Wait()

			if !ctx.jsonOutput {
				fmt.Fprintln(cmd.OutOrStdout(), renderOutcomes(result))
			}
			if terminal.Type == events.TypeError {
				if terminal.Code == string(failure.CodeCancelled) && cmd.Context().Err() != nil {
					return context.Canceled
				}
				return fmt.Errorf("transcode %s failed: %s", run.ID, terminal.ErrorMessage)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&presetNames, "presets", "p", []string{"720p"}, "Comma-separated preset names")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "Encode presets concurrently")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "Cancel remaining presets after the first failure")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", ".", "Directory for finished renditions")
	cmd.Flags().IntVar(&jobs, "jobs", 0, "Concurrent encodes with --parallel (default: half the CPUs)")
	cmd.Flags().Float64Var(&timeoutMult, "timeout-multiplier", 4, "Encode time limit as a multiple of the input duration")
	return cmd
}

// consumeEvents prints every event and returns the terminal one. In JSON
// mode each event is one line.
func consumeEvents(cmd *cobra.Command, jsonOutput bool, presetNames []string, source <-chan events.Event) events.Event {
	var terminal events.Event
	enc := json.NewEncoder(cmd.OutOrStdout())
	view := newProgressView(cmd.OutOrStdout(), presetNames)

	for ev := range source {
		if jsonOutput {
			if err := enc.Encode(ev); err != nil {
				logging.Warn("Failed to write event: %v", err)
			}
		} else {
			view.Event(ev)
		}
		if ev.Terminal() {
			terminal = ev
		}
	}
	return terminal
}

func renderOutcomes(result transcode.Result) string {
	rows := make([][]string, 0, len(result.Outcomes))
	for _, o := range result.Outcomes {
		detail := o.OutputPath
		if o.Err != nil {
			detail = string(o.Err.Code) + ": " + o.Err.Detail()
		}
		rows = append(rows, []string{
			o.Preset,
			string(o.State),
			o.Elapsed.Round(100 * time.Millisecond).String(),
			detail,
		})
	}
	return renderTable([]string{"Preset", "State", "Elapsed", "Output"}, rows, 2)
}
