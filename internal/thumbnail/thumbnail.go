package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"media-transcoder/internal/engine"
	"media-transcoder/internal/failure"
	"media-transcoder/internal/logging"
	"media-transcoder/internal/metrics"
	"media-transcoder/internal/probe"
	"media-transcoder/internal/workspace"

	"github.com/disintegration/imaging"
)

const (
	// DefaultTimestamp is used when the caller does not ask for a position.
	DefaultTimestamp = 5 * time.Second

	// DefaultWidth is the output width in pixels.
	DefaultWidth = 640

	// DefaultQuality is the JPEG quality.
	DefaultQuality = 85

	// FileName is the name written inside the workspace.
	FileName = "thumbnail.jpg"

	// seekBackSteps bounds how many times an empty seek is retried one
	// second earlier.
	seekBackSteps = 3
)

// Prober supplies the media duration used to clamp the seek position.
type Prober interface {
	Extract(ctx context.Context, input probe.InputHandle) (*probe.Metadata, error)
}

// Config configures a Generator.
type Config struct {
	Runner  engine.Runner // ffmpeg
	Prober  Prober
	Width   int
	Quality int
}

// Generator extracts a single representative frame and scales it to a
// JPEG thumbnail.
type Generator struct {
	runner  engine.Runner
	prober  Prober
	width   int
	quality int
}

// NewGenerator creates a Generator. Zero Width and Quality take defaults.
func NewGenerator(config Config) *Generator {
	if config.Width <= 0 {
		config.Width = DefaultWidth
	}
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = DefaultQuality
	}
	return &Generator{
		runner:  config.Runner,
		prober:  config.Prober,
		width:   config.Width,
		quality: config.Quality,
	}
}

// Width returns the configured output width.
func (g *Generator) Width() int {
	return g.width
}

// Generate writes a thumbnail of input to the workspace and returns the
// JPEG bytes. A nil timestamp means DefaultTimestamp. Positions at or past
// the end of the video stream are clamped to its last whole second.
func (g *Generator) Generate(ctx context.Context, input probe.InputHandle, timestamp *time.Duration, ws *workspace.Workspace) ([]byte, error) {
	start := time.Now()
	data, err := g.generate(ctx, input, timestamp, ws)
	metrics.ThumbnailGenerationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ThumbnailGenerationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.ThumbnailGenerationsTotal.WithLabelValues("success").Inc()
	return data, nil
}

func (g *Generator) generate(ctx context.Context, input probe.InputHandle, timestamp *time.Duration, ws *workspace.Workspace) ([]byte, error) {
	if strings.TrimSpace(input.Path) == "" {
		return nil, failure.New(failure.CodeValidation, "thumbnail", "input path is empty")
	}
	if ws == nil {
		return nil, failure.New(failure.CodeInternal, "thumbnail", "no workspace")
	}

	offset := DefaultTimestamp
	if timestamp != nil {
		offset = *timestamp
	}
	if offset < 0 {
		return nil, failure.Errorf(failure.CodeValidation, "thumbnail", "negative timestamp %s", offset)
	}

	log := logging.With("job", ws.JobID())

	if g.prober != nil {
		md, err := g.prober.Extract(ctx, input)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, failure.As(ctx.Err())
		case err != nil:
			// The seek still works without a duration; only clamping is lost
			log.Warn("thumbnail: duration unavailable, seeking unclamped: %v", err)
		default:
			span := md.FrameSpan()
			clamped := Clamp(offset, span)
			if clamped != offset {
				log.Debug("thumbnail: clamped %s to %s (video %s)", offset, clamped, span)
				metrics.ThumbnailTimestampClamped.Inc()
				offset = clamped
			}
		}
	}

	frame, err := g.extractFrame(ctx, input.Path, offset)
	if err != nil {
		return nil, err
	}
	// A seek at the tail can land after the last decodable frame; walk back
	// a second at a time so the result stays near the requested position.
	for step := 0; len(frame) == 0 && offset > 0 && step < seekBackSteps; step++ {
		offset = max(offset-time.Second, 0)
		log.Debug("thumbnail: no frame, seeking back to %s", offset)
		if frame, err = g.extractFrame(ctx, input.Path, offset); err != nil {
			return nil, err
		}
	}
	if len(frame) == 0 {
		return nil, failure.New(failure.CodeGenerationFailed, "thumbnail", "engine produced no frame")
	}

	data, err := g.encode(frame)
	if err != nil {
		return nil, failure.Wrap(failure.CodeGenerationFailed, "thumbnail", err)
	}

	if err := os.WriteFile(ws.Path(FileName), data, 0o644); err != nil {
		return nil, failure.Wrap(failure.CodeGenerationFailed, "thumbnail", fmt.Errorf("write thumbnail: %w", err))
	}
	return data, nil
}

func (g *Generator) extractFrame(ctx context.Context, path string, offset time.Duration) ([]byte, error) {
	stdout, stderr, err := g.runner.Output(ctx, engine.FrameArgs(path, offset))
	if err != nil {
		if ctx.Err() != nil {
			return nil, failure.As(ctx.Err())
		}
		return nil, &failure.Error{
			Code:    failure.CodeGenerationFailed,
			Op:      "thumbnail",
			Message: strings.TrimSpace(string(stderr)),
			Err:     err,
		}
	}
	return stdout, nil
}

// encode scales frame to the configured width (never enlarging) and
// returns JPEG bytes.
func (g *Generator) encode(frame []byte) ([]byte, error) {
	if IsVipsAvailable() {
		data, err := scaleWithVips(frame, g.width, g.quality)
		if err == nil {
			return data, nil
		}
		logging.Debug("thumbnail: vips failed, falling back to imaging: %v", err)
	}

	img, err := imaging.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if img.Bounds().Dx() > g.width {
		img = imaging.Resize(img, g.width, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(g.quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Clamp moves offset inside a clip of the given duration. Offsets at or past
// the end land on the last whole second; an unknown duration leaves offset
// unchanged.
func Clamp(offset, duration time.Duration) time.Duration {
	if duration <= 0 || offset < duration {
		return offset
	}
	last := duration - time.Second
	if last < 0 {
		return 0
	}
	return last
}

// ParseTimestamp accepts plain seconds ("12.5") or a clock ("00:01:02.5",
// "1:02"). An empty string returns nil so the generator uses its default.
func ParseTimestamp(s string) (*time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	if strings.Contains(s, ":") {
		d, ok := engine.ParseClock(s)
		if !ok {
			return nil, failure.Errorf(failure.CodeValidation, "thumbnail", "invalid timestamp %q", s)
		}
		return &d, nil
	}

	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return nil, failure.Errorf(failure.CodeValidation, "thumbnail", "invalid timestamp %q", s)
	}
	d := time.Duration(math.Round(secs * float64(time.Second)))
	return &d, nil
}
