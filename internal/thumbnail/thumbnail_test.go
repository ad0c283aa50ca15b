package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"media-transcoder/internal/engine"
	"media-transcoder/internal/failure"
	"media-transcoder/internal/probe"
	"media-transcoder/internal/workspace"

	"github.com/disintegration/imaging"
)

// frameRunner answers frame requests from a queue of canned responses.
type frameRunner struct {
	responses []frameResponse
	calls     [][]string
}

type frameResponse struct {
	stdout []byte
	stderr string
	err    error
}

func (f *frameRunner) Output(_ context.Context, args []string) ([]byte, []byte, error) {
	f.calls = append(f.calls, args)
	if len(f.responses) == 0 {
		return nil, nil, errors.New("unexpected call")
	}
	r := f.responses[0]
	f.responses = f.responses[1:]
	return r.stdout, []byte(r.stderr), r.err
}

type fixedProber struct {
	duration float64
	err      error
}

func (p fixedProber) Extract(context.Context, probe.InputHandle) (*probe.Metadata, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &probe.Metadata{Duration: p.duration}, nil
}

type metadataProber struct{ md *probe.Metadata }

func (p metadataProber) Extract(context.Context, probe.InputHandle) (*probe.Metadata, error) {
	return p.md, nil
}

func pngFrame(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	m, err := workspace.NewManager(workspace.Config{Root: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	ws, err := m.Acquire("thumb")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ws.Release() })
	return ws
}

func seekArg(args []string) string {
	i := slices.Index(args, "-ss")
	if i < 0 || i+1 >= len(args) {
		return ""
	}
	return args[i+1]
}

func TestGenerateScalesAndWrites(t *testing.T) {
	runner := &frameRunner{responses: []frameResponse{{stdout: pngFrame(t, 1280, 720)}}}
	g := NewGenerator(Config{Runner: runner, Prober: fixedProber{duration: 60}, Width: 320})
	ws := newWorkspace(t)

	data, err := g.Generate(context.Background(), probe.InputHandle{Path: "/in.mp4"}, nil, ws)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not an image: %v", err)
	}
	if img.Bounds().Dx() != 320 || img.Bounds().Dy() != 180 {
		t.Errorf("size = %dx%d, want 320x180", img.Bounds().Dx(), img.Bounds().Dy())
	}
	if got := seekArg(runner.calls[0]); got != "00:00:05.000" {
		t.Errorf("seek = %q, want default 5s", got)
	}

	onDisk, err := os.ReadFile(filepath.Join(ws.Dir(), FileName))
	if err != nil {
		t.Fatalf("thumbnail not written: %v", err)
	}
	if !bytes.Equal(onDisk, data) {
		t.Error("written file differs from returned bytes")
	}
}

func TestGenerateClampsPastEnd(t *testing.T) {
	runner := &frameRunner{responses: []frameResponse{{stdout: pngFrame(t, 64, 36)}}}
	g := NewGenerator(Config{Runner: runner, Prober: fixedProber{duration: 10}})

	ts := 999 * time.Second
	if _, err := g.Generate(context.Background(), probe.InputHandle{Path: "/clip.mp4"}, &ts, newWorkspace(t)); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got := seekArg(runner.calls[0]); got != "00:00:09.000" {
		t.Errorf("seek = %q, want 00:00:09.000", got)
	}
}

func TestGenerateSeeksBackNearEnd(t *testing.T) {
	runner := &frameRunner{responses: []frameResponse{
		{stdout: nil},
		{stdout: pngFrame(t, 64, 36)},
	}}
	g := NewGenerator(Config{Runner: runner, Prober: fixedProber{duration: 10}})

	ts := 999 * time.Second
	if _, err := g.Generate(context.Background(), probe.InputHandle{Path: "/clip.mp4"}, &ts, newWorkspace(t)); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(runner.calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(runner.calls))
	}
	if got := seekArg(runner.calls[0]); got != "00:00:09.000" {
		t.Errorf("first seek = %q, want 00:00:09.000", got)
	}
	if got := seekArg(runner.calls[1]); got != "00:00:08.000" {
		t.Errorf("retry seek = %q, want 00:00:08.000", got)
	}
}

func TestGenerateClampsToVideoStream(t *testing.T) {
	runner := &frameRunner{responses: []frameResponse{{stdout: pngFrame(t, 64, 36)}}}
	g := NewGenerator(Config{Runner: runner, Prober: metadataProber{md: &probe.Metadata{Duration: 10, VideoDuration: 7.5}}})

	ts := 9 * time.Second
	if _, err := g.Generate(context.Background(), probe.InputHandle{Path: "/clip.mp4"}, &ts, newWorkspace(t)); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got := seekArg(runner.calls[0]); got != "00:00:06.500" {
		t.Errorf("seek = %q, want 00:00:06.500", got)
	}
}

func TestGenerateSeekBackIsBounded(t *testing.T) {
	runner := &frameRunner{responses: []frameResponse{{}, {}, {}, {}}}
	g := NewGenerator(Config{Runner: runner, Prober: fixedProber{duration: 60}})

	ts := 59 * time.Second
	_, err := g.Generate(context.Background(), probe.InputHandle{Path: "/clip.mp4"}, &ts, newWorkspace(t))
	if failure.CodeOf(err) != failure.CodeGenerationFailed {
		t.Fatalf("error = %v, want generation_failed", err)
	}
	wantSeeks := []string{"00:00:59.000", "00:00:58.000", "00:00:57.000", "00:00:56.000"}
	if len(runner.calls) != len(wantSeeks) {
		t.Fatalf("calls = %d, want %d", len(runner.calls), len(wantSeeks))
	}
	for i, want := range wantSeeks {
		if got := seekArg(runner.calls[i]); got != want {
			t.Errorf("seek %d = %q, want %q", i, got, want)
		}
	}
}

func TestGenerateDoesNotEnlarge(t *testing.T) {
	runner := &frameRunner{responses: []frameResponse{{stdout: pngFrame(t, 100, 50)}}}
	g := NewGenerator(Config{Runner: runner, Width: 640})

	data, err := g.Generate(context.Background(), probe.InputHandle{Path: "/small.mp4"}, nil, newWorkspace(t))
	if err != nil {
		t.Fatal(err)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 100 {
		t.Errorf("width = %d, want 100", img.Bounds().Dx())
	}
}

func TestGenerateProbeFailureSeeksUnclamped(t *testing.T) {
	runner := &frameRunner{responses: []frameResponse{{stdout: pngFrame(t, 64, 36)}}}
	g := NewGenerator(Config{Runner: runner, Prober: fixedProber{err: errors.New("no duration")}})

	ts := 30 * time.Second
	if _, err := g.Generate(context.Background(), probe.InputHandle{Path: "/x.mp4"}, &ts, newWorkspace(t)); err != nil {
		t.Fatal(err)
	}
	if got := seekArg(runner.calls[0]); got != "00:00:30.000" {
		t.Errorf("seek = %q", got)
	}
}

func TestGenerateFailures(t *testing.T) {
	tests := []struct {
		name      string
		responses []frameResponse
		wantCode  failure.Code
		wantMsg   string
	}{
		{
			name:      "engine error",
			responses: []frameResponse{{stderr: "moov atom not found\n", err: errors.New("exit status 1")}},
			wantCode:  failure.CodeGenerationFailed,
			wantMsg:   "moov atom not found",
		},
		{
			name:      "no frame at all",
			responses: []frameResponse{{}, {}, {}, {}},
			wantCode:  failure.CodeGenerationFailed,
		},
		{
			name:      "undecodable frame",
			responses: []frameResponse{{stdout: []byte("not a png")}},
			wantCode:  failure.CodeGenerationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGenerator(Config{Runner: &frameRunner{responses: tt.responses}})
			_, err := g.Generate(context.Background(), probe.InputHandle{Path: "/bad.mp4"}, nil, newWorkspace(t))
			if failure.CodeOf(err) != tt.wantCode {
				t.Fatalf("code = %q, want %q (err %v)", failure.CodeOf(err), tt.wantCode, err)
			}
			if tt.wantMsg != "" && failure.As(err).Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", failure.As(err).Message, tt.wantMsg)
			}
		})
	}
}

func TestGenerateValidation(t *testing.T) {
	g := NewGenerator(Config{Runner: &frameRunner{}})
	if _, err := g.Generate(context.Background(), probe.InputHandle{}, nil, newWorkspace(t)); failure.CodeOf(err) != failure.CodeValidation {
		t.Errorf("empty path: code = %q", failure.CodeOf(err))
	}
	neg := -time.Second
	if _, err := g.Generate(context.Background(), probe.InputHandle{Path: "/x"}, &neg, newWorkspace(t)); failure.CodeOf(err) != failure.CodeValidation {
		t.Errorf("negative timestamp: code = %q", failure.CodeOf(err))
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		offset, duration, want time.Duration
	}{
		{5 * time.Second, 10 * time.Second, 5 * time.Second},
		{999 * time.Second, 10 * time.Second, 9 * time.Second},
		{10 * time.Second, 10 * time.Second, 9 * time.Second},
		{5 * time.Second, 500 * time.Millisecond, 0},
		{5 * time.Second, 0, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := Clamp(tt.offset, tt.duration); got != tt.want {
			t.Errorf("Clamp(%s, %s) = %s, want %s", tt.offset, tt.duration, got, tt.want)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		isNil   bool
		wantErr bool
	}{
		{in: "", isNil: true},
		{in: "12.5", want: 12500 * time.Millisecond},
		{in: "0", want: 0},
		{in: "00:01:02.5", want: 62500 * time.Millisecond},
		{in: "1:02", want: 62 * time.Second},
		{in: "-3", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "1:xx", wantErr: true},
		{in: "NaN", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			if tt.wantErr {
				if failure.CodeOf(err) != failure.CodeValidation {
					t.Errorf("ParseTimestamp(%q) error = %v, want validation", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if tt.isNil {
				if got != nil {
					t.Errorf("ParseTimestamp(%q) = %v, want nil", tt.in, *got)
				}
				return
			}
			if got == nil || *got != tt.want {
				t.Errorf("ParseTimestamp(%q) = %v, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestGenerateIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping ffmpeg integration test in short mode")
	}
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	ffprobe, err := exec.LookPath("ffprobe")
	if err != nil {
		t.Skip("ffprobe not installed")
	}

	clip := filepath.Join(t.TempDir(), "clip.mp4")
	gen := exec.Command(ffmpeg, "-hide_banner", "-loglevel", "error", "-f", "lavfi", "-i", "testsrc=duration=3:size=320x240:rate=10", "-pix_fmt", "yuv420p", clip)
	if out, err := gen.CombinedOutput(); err != nil {
		t.Fatalf("failed to create clip: %v: %s", err, out)
	}

	g := NewGenerator(Config{
		Runner: engine.Command{Path: ffmpeg},
		Prober: probe.NewExtractor(engine.Command{Path: ffprobe}),
		Width:  160,
	})
	ts := 999 * time.Second
	data, err := g.Generate(context.Background(), probe.InputHandle{Path: clip}, &ts, newWorkspace(t))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 160 {
		t.Errorf("width = %d, want 160", img.Bounds().Dx())
	}
}
