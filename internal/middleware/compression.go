package middleware

import (
	"compress/gzip"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
)

// CompressionConfig controls which responses are gzipped.
type CompressionConfig struct {
	// MinSize is the smallest body worth compressing.
	MinSize int
	// Level is a compress/gzip level.
	Level int
	// CompressibleTypes are media types without parameters.
	CompressibleTypes []string
}

// DefaultCompressionConfig gzips the API's JSON bodies. JPEG thumbnails
// are already compressed and progress streams are never buffered.
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize: 1024,
		Level:   gzip.DefaultCompression,
		CompressibleTypes: []string{
			"application/json",
			"application/problem+json",
			"text/plain",
		},
	}
}

var gzipWriterPools sync.Map // level -> *sync.Pool

func gzipPool(level int) *sync.Pool {
	if p, ok := gzipWriterPools.Load(level); ok {
		return p.(*sync.Pool)
	}
	p, _ := gzipWriterPools.LoadOrStore(level, &sync.Pool{
		New: func() interface{} {
			w, err := gzip.NewWriterLevel(io.Discard, level)
			if err != nil {
				w = gzip.NewWriter(io.Discard)
			}
			return w
		},
	})
	return p.(*sync.Pool)
}

type encodeMode int

const (
	modeUndecided encodeMode = iota
	modeIdentity
	modeGzip
)

// gzipResponseWriter holds the first MinSize bytes back until it can
// tell whether the body is worth compressing. Event streams skip the
// buffer entirely.
type gzipResponseWriter struct {
	http.ResponseWriter
	config     CompressionConfig
	mode       encodeMode
	statusCode int
	buffer     []byte
	gz         *gzip.Writer
}

func newGzipResponseWriter(w http.ResponseWriter, config CompressionConfig) *gzipResponseWriter {
	return &gzipResponseWriter{
		ResponseWriter: w,
		config:         config,
		statusCode:     http.StatusOK,
	}
}

func (g *gzipResponseWriter) mediaType() string {
	mt, _, err := mime.ParseMediaType(g.Header().Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mt
}

func (g *gzipResponseWriter) compressible() bool {
	mt := g.mediaType()
	for _, t := range g.config.CompressibleTypes {
		if mt == t {
			return true
		}
	}
	return false
}

func (g *gzipResponseWriter) WriteHeader(statusCode int) {
	if g.mode != modeUndecided {
		return
	}
	g.statusCode = statusCode
	// Bodiless and streaming responses are decided on the spot.
	if g.mediaType() == "text/event-stream" || statusCode == http.StatusNoContent || statusCode == http.StatusNotModified {
		g.decide(modeIdentity)
	}
}

func (g *gzipResponseWriter) Write(data []byte) (int, error) {
	switch g.mode {
	case modeGzip:
		return g.gz.Write(data)
	case modeIdentity:
		return g.ResponseWriter.Write(data)
	}

	if g.mediaType() == "text/event-stream" {
		g.decide(modeIdentity)
		return g.ResponseWriter.Write(data)
	}
	g.buffer = append(g.buffer, data...)
	if len(g.buffer) >= g.config.MinSize {
		g.decideFromBuffer()
	}
	return len(data), nil
}

func (g *gzipResponseWriter) decideFromBuffer() {
	eligible := g.mediaType() != "text/event-stream" && g.Header().Get("Content-Encoding") == ""
	if eligible && len(g.buffer) >= g.config.MinSize && g.compressible() {
		g.decide(modeGzip)
	} else {
		g.decide(modeIdentity)
	}
}

// decide sends the header and any buffered bytes in the chosen encoding.
func (g *gzipResponseWriter) decide(mode encodeMode) {
	g.mode = mode
	if mode == modeGzip {
		h := g.Header()
		h.Del("Content-Length")
		h.Set("Content-Encoding", "gzip")
		h.Add("Vary", "Accept-Encoding")
		g.gz = gzipPool(g.config.Level).Get().(*gzip.Writer)
		g.gz.Reset(g.ResponseWriter)
	}
	g.ResponseWriter.WriteHeader(g.statusCode)

	if len(g.buffer) > 0 {
		if g.gz != nil {
			g.gz.Write(g.buffer)
		} else {
			g.ResponseWriter.Write(g.buffer)
		}
	}
	g.buffer = nil
}

// Close settles an undecided response and returns the gzip writer to
// its pool.
func (g *gzipResponseWriter) Close() error {
	if g.mode == modeUndecided {
		g.decideFromBuffer()
	}
	if g.gz == nil {
		return nil
	}
	err := g.gz.Close()
	gzipPool(g.config.Level).Put(g.gz)
	g.gz = nil
	return err
}

func (g *gzipResponseWriter) Flush() {
	if g.mode == modeUndecided {
		g.decideFromBuffer()
	}
	if g.gz != nil {
		g.gz.Flush()
	}
	if f, ok := g.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Compression gzips eligible responses for clients that accept it.
func Compression(config CompressionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !acceptsGzip(r) || strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
				next.ServeHTTP(w, r)
				return
			}

			gzw := newGzipResponseWriter(w, config)
			defer gzw.Close()
			next.ServeHTTP(gzw, r)
		})
	}
}

// acceptsGzip reports whether Accept-Encoding lists gzip with a non-zero
// quality.
func acceptsGzip(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(coding), "gzip") {
			continue
		}
		q := strings.ReplaceAll(params, " ", "")
		return q != "q=0" && q != "q=0.0" && q != "q=0.00" && q != "q=0.000"
	}
	return false
}
