package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"media-transcoder/internal/engine"
	"media-transcoder/internal/failure"
	"media-transcoder/internal/metrics"
)

// Metadata is the technical description of a media file.
type Metadata struct {
	Duration      float64    `json:"duration"`                // seconds, 0 when unknown
	VideoDuration float64    `json:"videoDuration,omitempty"` // video stream only; shorter when audio runs on
	Format        string     `json:"format"`
	VideoCodec    string     `json:"videoCodec"`
	Width         int        `json:"width"`
	Height        int        `json:"height"`
	AspectRatio   string     `json:"aspectRatio"`
	FrameRate     float64    `json:"frameRate"`
	Bitrate       int64      `json:"bitrate"`                 // bits per second
	SizeBytes     int64      `json:"sizeBytes"`
	Audio         *AudioInfo `json:"audio,omitempty"`
}

// AudioInfo describes the first audio stream.
type AudioInfo struct {
	Codec      string `json:"codec"`
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sampleRate"`
	Bitrate    int64  `json:"bitrate"`
}

// DurationValue returns Duration as a time.Duration.
func (m *Metadata) DurationValue() time.Duration {
	if m == nil || m.Duration <= 0 {
		return 0
	}
	return time.Duration(math.Round(m.Duration * float64(time.Second)))
}

// FrameSpan returns the span that holds video frames: VideoDuration when
// the stream reports one, otherwise Duration.
func (m *Metadata) FrameSpan() time.Duration {
	if m != nil && m.VideoDuration > 0 {
		return time.Duration(math.Round(m.VideoDuration * float64(time.Second)))
	}
	return m.DurationValue()
}

// Resolution returns "WIDTHxHEIGHT".
func (m *Metadata) Resolution() string {
	return fmt.Sprintf("%dx%d", m.Width, m.Height)
}

// Extractor runs ffprobe. It holds no per-call state and is safe for
// concurrent use.
type Extractor struct {
	runner engine.Runner
}

// NewExtractor creates an Extractor that invokes ffprobe through runner.
func NewExtractor(runner engine.Runner) *Extractor {
	return &Extractor{runner: runner}
}

// Extract inspects the input. Failures carry ffprobe's diagnostic output
// verbatim.
func (e *Extractor) Extract(ctx context.Context, input InputHandle) (*Metadata, error) {
	start := time.Now()
	md, err := e.extract(ctx, input)
	metrics.ProbeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ProbeTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.ProbeTotal.WithLabelValues("success").Inc()
	return md, nil
}

func (e *Extractor) extract(ctx context.Context, input InputHandle) (*Metadata, error) {
	if strings.TrimSpace(input.Path) == "" {
		return nil, failure.New(failure.CodeValidation, "probe", "input path is empty")
	}

	stdout, stderr, err := e.runner.Output(ctx, engine.ProbeArgs(input.Path))
	if err != nil {
		if ctx.Err() != nil {
			return nil, failure.As(ctx.Err())
		}
		return nil, &failure.Error{
			Code:    failure.CodeExtractionFailed,
			Op:      "probe",
			Message: strings.TrimSpace(string(stderr)),
			Err:     err,
		}
	}

	md, err := Parse(stdout)
	if err != nil {
		return nil, failure.Wrap(failure.CodeExtractionFailed, "probe", err)
	}
	if md.SizeBytes == 0 {
		md.SizeBytes = input.SizeBytes
	}
	return md, nil
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	AvgFrameRate string `json:"avg_frame_rate"`
	RFrameRate   string `json:"r_frame_rate"`
	Duration     string `json:"duration"`
	BitRate      string `json:"bit_rate"`
	SampleRate   string `json:"sample_rate"`
	Channels     int    `json:"channels"`
}

type probeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// Parse decodes ffprobe JSON output into Metadata. An input without a
// video stream is not decodable media for this service.
func Parse(data []byte) (*Metadata, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("ffprobe parse: %w", err)
	}

	var video, audio *probeStream
	for i := range out.Streams {
		s := &out.Streams[i]
		switch strings.ToLower(s.CodecType) {
		case "video":
			if video == nil {
				video = s
			}
		case "audio":
			if audio == nil {
				audio = s
			}
		}
	}
	if video == nil {
		return nil, errors.New("no video stream found")
	}

	md := &Metadata{
		Duration:      firstPositive(parseFloat(out.Format.Duration), parseFloat(video.Duration)),
		VideoDuration: parseFloat(video.Duration),
		Format:        out.Format.FormatName,
		VideoCodec:    video.CodecName,
		Width:         video.Width,
		Height:        video.Height,
		AspectRatio:   AspectRatio(video.Width, video.Height),
		FrameRate:     firstPositive(ParseFrameRate(video.AvgFrameRate), ParseFrameRate(video.RFrameRate)),
		Bitrate:       int64(firstPositive(parseFloat(out.Format.BitRate), parseFloat(video.BitRate))),
		SizeBytes:     int64(parseFloat(out.Format.Size)),
	}

	if audio != nil {
		md.Audio = &AudioInfo{
			Codec:      audio.CodecName,
			Channels:   audio.Channels,
			SampleRate: int(parseFloat(audio.SampleRate)),
			Bitrate:    int64(parseFloat(audio.BitRate)),
		}
	}

	return md, nil
}

// AspectRatio reduces width:height by their greatest common divisor,
// so 1920x1080 becomes "16:9". Unknown dimensions yield "".
func AspectRatio(width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	d := gcd(width, height)
	return fmt.Sprintf("%d:%d", width/d, height/d)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// ParseFrameRate parses ffprobe rates such as "30000/1001" or "25".
// The result is rounded to three decimals; invalid input yields 0.
func ParseFrameRate(rate string) float64 {
	rate = strings.TrimSpace(rate)
	if rate == "" {
		return 0
	}

	var fps float64
	if num, den, ok := strings.Cut(rate, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d <= 0 {
			return 0
		}
		fps = n / d
	} else {
		f, err := strconv.ParseFloat(rate, 64)
		if err != nil {
			return 0
		}
		fps = f
	}

	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return 0
	}
	return math.Round(fps*1000) / 1000
}

func parseFloat(value string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

func firstPositive(values ...float64) float64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
