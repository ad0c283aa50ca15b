package engine

import (
	"fmt"
	"strconv"
	"time"

	"media-transcoder/internal/presets"
)

// EncodeArgs builds the ffmpeg arguments for one rendition. Progress is
// written to stdout in -progress format; only errors go to stderr.
func EncodeArgs(input, output string, p presets.Preset, threads int) []string {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-y",
		"-i", input,
		"-map", "0:v:0",
		"-map", "0:a:0?",
		"-c:v", "libx264",
		"-profile:v", p.Profile,
		"-preset", "medium",
		"-b:v", fmt.Sprintf("%dk", p.VideoBitrate),
		"-maxrate", fmt.Sprintf("%dk", p.VideoBitrate*3/2),
		"-bufsize", fmt.Sprintf("%dk", p.VideoBitrate*2),
		"-vf", fmt.Sprintf("scale=w=%d:h=%d:force_original_aspect_ratio=decrease:force_divisible_by=2", p.Width, p.Height),
		"-r", strconv.Itoa(p.FPS),
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", fmt.Sprintf("%dk", p.AudioBitrate),
		"-ac", "2",
		"-movflags", "+faststart",
	}
	if threads > 0 {
		args = append(args, "-threads", strconv.Itoa(threads))
	}
	return append(args,
		"-progress", "pipe:1",
		"-nostats",
		output,
	)
}

// FrameArgs builds the ffmpeg arguments that write one PNG frame at offset
// to stdout. A zero offset reads the first frame.
func FrameArgs(input string, offset time.Duration) []string {
	args := []string{"-hide_banner", "-nostdin", "-loglevel", "error"}
	if offset > 0 {
		// Input seeking is fast and frame-accurate for re-encoded output.
		args = append(args, "-ss", FormatTimestamp(offset))
	}
	return append(args,
		"-i", input,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
}

// ProbeArgs builds the ffprobe arguments for a JSON inspection.
func ProbeArgs(input string) []string {
	return []string{"-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", input}
}

// FormatTimestamp renders d as HH:MM:SS.mmm.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms%1000)
}
