package handlers

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"media-transcoder/internal/admission"
	"media-transcoder/internal/jobstore"
	"media-transcoder/internal/presets"
	"media-transcoder/internal/probe"
	"media-transcoder/internal/streaming"
	"media-transcoder/internal/transcode"
	"media-transcoder/internal/workspace"
)

// Prober reads media metadata. *probe.Extractor implements it.
type Prober interface {
	Extract(ctx context.Context, input probe.InputHandle) (*probe.Metadata, error)
}

// Thumbnailer renders a JPEG preview. *thumbnail.Generator implements it.
type Thumbnailer interface {
	Generate(ctx context.Context, input probe.InputHandle, timestamp *time.Duration, ws *workspace.Workspace) ([]byte, error)
}

// JobLedger answers history queries. *jobstore.Store implements it.
type JobLedger interface {
	JobsForRequest(ctx context.Context, requestID string) ([]jobstore.Record, error)
	Count(ctx context.Context) (int64, error)
}

// Config wires the handlers to the core. Ledger and Pressure are optional.
type Config struct {
	Coordinator   *transcode.Coordinator
	Presets       *presets.Registry
	Prober        Prober
	Thumbnails    Thumbnailer
	Workspaces    *workspace.Manager
	Admission     *admission.Controller
	Ledger        JobLedger
	Pressure      admission.PressureSource
	MaxInputBytes int64
	Stream        streaming.Config
	// EngineVersion is reported by /version.
	EngineVersion string
}

type Handlers struct {
	coordinator   *transcode.Coordinator
	presets       *presets.Registry
	prober        Prober
	thumbnails    Thumbnailer
	workspaces    *workspace.Manager
	admission     *admission.Controller
	ledger        JobLedger
	pressure      admission.PressureSource
	maxInputBytes int64
	stream        streaming.Config
	engineVersion string

	startTime time.Time
	ready     atomic.Bool
}

func New(config Config) (*Handlers, error) {
	switch {
	case config.Coordinator == nil:
		return nil, errors.New("handlers: coordinator is required")
	case config.Presets == nil:
		return nil, errors.New("handlers: preset registry is required")
	case config.Prober == nil:
		return nil, errors.New("handlers: prober is required")
	case config.Thumbnails == nil:
		return nil, errors.New("handlers: thumbnail generator is required")
	case config.Workspaces == nil:
		return nil, errors.New("handlers: workspace manager is required")
	case config.Admission == nil:
		return nil, errors.New("handlers: admission controller is required")
	}
	if config.Stream == (streaming.Config{}) {
		config.Stream = streaming.DefaultConfig()
	}
	return &Handlers{
		coordinator:   config.Coordinator,
		presets:       config.Presets,
		prober:        config.Prober,
		thumbnails:    config.Thumbnails,
		workspaces:    config.Workspaces,
		admission:     config.Admission,
		ledger:        config.Ledger,
		pressure:      config.Pressure,
		maxInputBytes: config.MaxInputBytes,
		stream:        config.Stream,
		engineVersion: config.EngineVersion,
		startTime:     time.Now(),
	}, nil
}

// SetReady flips the readiness probe. The server marks itself ready once
// startup finishes and unready when shutdown begins.
func (h *Handlers) SetReady(ready bool) {
	h.ready.Store(ready)
}
