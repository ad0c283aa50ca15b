package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func serveCompressed(t *testing.T, config CompressionConfig, acceptEncoding string, handler http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/presets", http.NoBody)
	if acceptEncoding != "" {
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}
	w := httptest.NewRecorder()
	Compression(config)(handler).ServeHTTP(w, req)
	return w
}

func gunzip(t *testing.T, r io.Reader) string {
	t.Helper()
	gr, err := gzip.NewReader(r)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	defer gr.Close()
	b, err := io.ReadAll(gr)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	return string(b)
}

func TestCompression(t *testing.T) {
	bigJSON := strings.Repeat(`{"name":"720p"},`, 100)

	tests := []struct {
		name           string
		body           string
		contentType    string
		acceptEncoding string
		wantGzip       bool
	}{
		{"large json", bigJSON, "application/json", "gzip", true},
		{"json with charset", bigJSON, "application/json; charset=utf-8", "gzip, deflate", true},
		{"small json", `{"ok":true}`, "application/json", "gzip", false},
		{"jpeg thumbnail", strings.Repeat("\xff", 4096), "image/jpeg", "gzip", false},
		{"client without gzip", bigJSON, "application/json", "", false},
		{"gzip refused", bigJSON, "application/json", "gzip;q=0, br", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveCompressed(t, DefaultCompressionConfig(), tt.acceptEncoding, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(tt.body))
			})

			if w.Code != http.StatusOK {
				t.Errorf("status = %d", w.Code)
			}
			gotGzip := w.Header().Get("Content-Encoding") == "gzip"
			if gotGzip != tt.wantGzip {
				t.Fatalf("gzip = %v, want %v", gotGzip, tt.wantGzip)
			}
			got := w.Body.String()
			if gotGzip {
				got = gunzip(t, w.Body)
			}
			if got != tt.body {
				t.Error("body changed in transit")
			}
		})
	}
}

func TestCompressionMultipleWrites(t *testing.T) {
	w := serveCompressed(t, DefaultCompressionConfig(), "gzip", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		for i := 0; i < 100; i++ {
			w.Write([]byte(`{"progress":0.5}`))
		}
	})

	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatal("expected a compressed response")
	}
	if got := gunzip(t, w.Body); got != strings.Repeat(`{"progress":0.5}`, 100) {
		t.Error("body changed in transit")
	}
}

func TestCompressionPreservesErrorStatus(t *testing.T) {
	w := serveCompressed(t, DefaultCompressionConfig(), "gzip", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"at capacity"}`))
	})

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", w.Code)
	}
	if w.Header().Get("Retry-After") != "5" {
		t.Error("Retry-After was dropped")
	}
}

func TestCompressionNoContent(t *testing.T) {
	w := serveCompressed(t, DefaultCompressionConfig(), "gzip", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Errorf("status = %d, body = %q", w.Code, w.Body.String())
	}
}

func TestGzipResponseWriterBuffersBelowMinSize(t *testing.T) {
	g := newGzipResponseWriter(httptest.NewRecorder(), DefaultCompressionConfig())

	n, err := g.Write([]byte("small"))
	if err != nil || n != 5 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if g.mode != modeUndecided || string(g.buffer) != "small" {
		t.Errorf("mode = %v, buffer = %q", g.mode, g.buffer)
	}
}

func TestCompressionPassesEventStreamsThrough(t *testing.T) {
	body := strings.Repeat("event: progress\ndata: {}\n\n", 100)

	config := DefaultCompressionConfig()
	config.CompressibleTypes = append(config.CompressibleTypes, "text/event-stream")

	w := serveCompressed(t, config, "gzip", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body[:20]))
		w.(http.Flusher).Flush()
		w.Write([]byte(body[20:]))
	})

	if enc := w.Header().Get("Content-Encoding"); enc != "" {
		t.Errorf("event stream was encoded as %q", enc)
	}
	if w.Body.String() != body {
		t.Error("event stream body was altered")
	}
	if !w.Flushed {
		t.Error("Flush did not reach the client")
	}
}

func TestCompressionEventStreamWithoutExplicitHeader(t *testing.T) {
	w := serveCompressed(t, DefaultCompressionConfig(), "gzip", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		w.Write([]byte(": ping\n\n"))
	})

	if w.Body.String() != ": ping\n\n" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestAcceptsGzip(t *testing.T) {
	tests := map[string]bool{
		"":                 false,
		"gzip":             true,
		"GZIP":             true,
		"br, gzip":         true,
		"gzip;q=0.5":       true,
		"gzip; q=0":        false,
		"deflate, br":      false,
		"x-gzip-something": false,
	}
	for header, want := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.Header.Set("Accept-Encoding", header)
		if got := acceptsGzip(req); got != want {
			t.Errorf("acceptsGzip(%q) = %v, want %v", header, got, want)
		}
	}
}

func BenchmarkCompressionMiddleware(b *testing.B) {
	body := []byte(strings.Repeat(`{"name":"720p"},`, 200))
	handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/presets", http.NoBody)
	req.Header.Set("Accept-Encoding", "gzip")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
}
