package middleware

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"media-transcoder/internal/logging"
)

// accessWriter records what the handler sent so the access line can be
// written after it returns.
type accessWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func newAccessWriter(w http.ResponseWriter) *accessWriter {
	return &accessWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (aw *accessWriter) WriteHeader(code int) {
	if aw.wroteHeader {
		return
	}
	aw.statusCode = code
	aw.wroteHeader = true
	aw.ResponseWriter.WriteHeader(code)
}

func (aw *accessWriter) Write(b []byte) (int, error) {
	aw.wroteHeader = true
	n, err := aw.ResponseWriter.Write(b)
	aw.bytesWritten += int64(n)
	return n, err
}

// Flush keeps progress streams flowing through the access logger.
func (aw *accessWriter) Flush() {
	if f, ok := aw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// LoggingConfig controls which requests produce an access line.
type LoggingConfig struct {
	// SkipPaths are path prefixes that are never logged.
	SkipPaths       []string
	LogHealthChecks bool
	// Output receives one line per request. Nil means the standard logger.
	Output io.Writer
}

// DefaultLoggingConfig logs everything, health probes included.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:       []string{"/favicon.ico"},
		LogHealthChecks: true,
	}
}

var healthCheckPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/livez":   true,
	"/readyz":  true,
}

// Logger writes one W3C extended-format line per request:
//
//	date time c-ip cs-method cs-uri-stem sc-status sc-bytes time-taken x-request-id sc(Content-Type) cs(User-Agent)
//
// time-taken is in milliseconds and, for progress streams, spans the whole
// request.
func Logger(config LoggingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if shouldSkip(r.URL.Path, config) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			aw := newAccessWriter(w)
			next.ServeHTTP(aw, r)

			line := accessLine(r, aw, time.Now().UTC(), time.Since(start))
			if config.Output != nil {
				fmt.Fprintln(config.Output, line)
				return
			}
			//nolint:gosec // G706: every request-derived field goes through sanitizeLogField
			logging.Printf("%s", line)
		})
	}
}

func accessLine(r *http.Request, aw *accessWriter, now time.Time, took time.Duration) string {
	return fmt.Sprintf("%s %s %s %s %s %d %d %d %s %s %s",
		now.Format("2006-01-02"),
		now.Format("15:04:05"),
		orDash(sanitizeLogField(clientIP(r))),
		orDash(sanitizeLogField(r.Method)),
		orDash(sanitizeLogField(r.URL.Path)),
		aw.statusCode,
		aw.bytesWritten,
		took.Milliseconds(),
		orDash(sanitizeLogField(aw.Header().Get("X-Request-ID"))),
		orDash(sanitizeLogField(aw.Header().Get("Content-Type"))),
		quoteW3C(orDash(sanitizeLogField(r.Header.Get("User-Agent")))),
	)
}

// sanitizeLogField strips control characters so a request cannot forge
// log lines or inject terminal escapes. Newlines become spaces.
func sanitizeLogField(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r':
			b.WriteRune(' ')
		case r == '\t':
			b.WriteRune(r)
		case r < 0x20 || r == 0x7f:
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// quoteW3C wraps values containing whitespace or quotes in double quotes,
// doubling embedded quotes.
func quoteW3C(s string) string {
	if !strings.ContainsAny(s, " \t\"") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func shouldSkip(path string, config LoggingConfig) bool {
	for _, prefix := range config.SkipPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return !config.LogHealthChecks && healthCheckPaths[path]
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
