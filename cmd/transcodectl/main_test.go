package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"media-transcoder/internal/encode"
	"media-transcoder/internal/failure"
	"media-transcoder/internal/presets"
	"media-transcoder/internal/startup"
	"media-transcoder/internal/transcode"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--work-dir", t.TempDir()}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPresetsTable(t *testing.T) {
	out, err := execute(t, "presets")
	if err != nil {
		t.Fatalf("presets: %v", err)
	}
	for _, want := range []string{"1080p", "1920x1080", "5000k", "baseline"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPresetsJSON(t *testing.T) {
	out, err := execute(t, "--json", "presets")
	if err != nil {
		t.Fatal(err)
	}
	var got []presets.Preset
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(got) != len(presets.Defaults()) || got[0] != presets.Defaults()[0] {
		t.Errorf("got %+v", got)
	}
}

func TestPresetsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiers.toml")
	data := `
[[presets]]
name = "phone"
width = 640
height = 360
video_bitrate = 600
audio_bitrate = 64
fps = 24
profile = "baseline"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "--presets-file", path, "presets")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "phone") || strings.Contains(out, "1080p") {
		t.Errorf("presets file should replace the built-in tiers:\n%s", out)
	}
}

func TestPresetsFileErrors(t *testing.T) {
	empty := filepath.Join(t.TempDir(), "empty.toml")
	os.WriteFile(empty, []byte("# nothing\n"), 0o644)

	tests := map[string]string{
		"missing": filepath.Join(t.TempDir(), "nope.toml"),
		"empty":   empty,
	}
	for name, path := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := execute(t, "--presets-file", path, "presets"); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestVersionJSON(t *testing.T) {
	out, err := execute(t, "--json", "version")
	if err != nil {
		t.Fatal(err)
	}
	var got startup.BuildInfo
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatal(err)
	}
	if got != startup.GetBuildInfo() {
		t.Errorf("got %+v", got)
	}
}

func TestUnknownLogLevel(t *testing.T) {
	if _, err := execute(t, "--log-level", "loud", "version"); err == nil {
		t.Error("unknown log level should be rejected")
	}
}

func TestArgumentErrors(t *testing.T) {
	input := filepath.Join(t.TempDir(), "in.mp4")
	if err := os.WriteFile(input, []byte("not really a video"), 0o644); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(t.TempDir(), "missing.mp4")

	tests := []struct {
		name     string
		args     []string
		wantCode failure.Code
	}{
		{"probe missing file", []string{"probe", missing}, ""},
		{"probe without args", []string{"probe"}, ""},
		{"thumbnail bad timestamp", []string{"thumbnail", input, "--at", "soon"}, failure.CodeValidation},
		{"transcode unknown preset", []string{"transcode", input, "-p", "8k", "-o", t.TempDir()}, failure.CodeValidation},
		{"transcode duplicate preset", []string{"transcode", input, "-p", "720p,720p", "-o", t.TempDir()}, failure.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.wantCode != "" && failure.CodeOf(err) != tt.wantCode {
				t.Errorf("code = %q, want %q (%v)", failure.CodeOf(err), tt.wantCode, err)
			}
		})
	}
}

func TestDefaultThumbnailPath(t *testing.T) {
	if got := defaultThumbnailPath("/media/show/ep01.mkv"); got != "ep01-thumb.jpg" {
		t.Errorf("got %q", got)
	}
}

func TestRenderOutcomes(t *testing.T) {
	out := renderOutcomes(transcode.Result{
		RequestID: "r1",
		Outcomes: []transcode.Outcome{
			{Preset: "720p", State: encode.StateCompleted, OutputPath: "/out/r1/720p.mp4", Elapsed: 1500 * time.Millisecond},
			{Preset: "480p", State: encode.StateFailed, Err: failure.New(failure.CodeEngineFailure, "encode", "exit status 1")},
		},
	})

	for _, want := range []string{"/out/r1/720p.mp4", "1.5s", "engine_failure", "failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestFormatBitrate(t *testing.T) {
	tests := map[int64]string{
		0:         "-",
		128_000:   "128 kb/s",
		5_000_000: "5.0 Mb/s",
	}
	for in, want := range tests {
		if got := formatBitrate(in); got != want {
			t.Errorf("formatBitrate(%d) = %q, want %q", in, got, want)
		}
	}
}
