package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAccessWriterCapturesStatusAndBytes(t *testing.T) {
	w := httptest.NewRecorder()
	aw := newAccessWriter(w)

	if aw.statusCode != http.StatusOK {
		t.Errorf("default status = %d", aw.statusCode)
	}

	aw.WriteHeader(http.StatusAccepted)
	aw.WriteHeader(http.StatusInternalServerError)
	aw.Write([]byte("hello"))
	aw.Write([]byte(" world"))

	if aw.statusCode != http.StatusAccepted {
		t.Errorf("status = %d, want first WriteHeader to win", aw.statusCode)
	}
	if w.Code != http.StatusAccepted {
		t.Errorf("underlying status = %d", w.Code)
	}
	if aw.bytesWritten != 11 {
		t.Errorf("bytesWritten = %d, want 11", aw.bytesWritten)
	}
}

func TestAccessWriterFlush(t *testing.T) {
	w := httptest.NewRecorder()
	newAccessWriter(w).Flush()
	if !w.Flushed {
		t.Error("Flush was not forwarded")
	}
}

func TestLoggerWritesAccessLine(t *testing.T) {
	var out bytes.Buffer
	config := DefaultLoggingConfig()
	config.Output = &out

	handler := Logger(config)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Request-ID", "req-1")
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {}\n\n"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/transcode", http.NoBody)
	req.Header.Set("User-Agent", "transcodectl/1.0 (linux)")
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	line := strings.TrimSpace(out.String())
	for _, want := range []string{
		" 10.0.0.1 POST /api/transcode 200 10 ",
		" req-1 text/event-stream ",
		`"transcodectl/1.0 (linux)"`,
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestLoggerSkips(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		config     LoggingConfig
		wantLogged bool
	}{
		{"api request", "/api/presets", DefaultLoggingConfig(), true},
		{"skipped prefix", "/favicon.ico", DefaultLoggingConfig(), false},
		{"health enabled", "/readyz", LoggingConfig{LogHealthChecks: true}, true},
		{"health disabled", "/readyz", LoggingConfig{LogHealthChecks: false}, false},
		{"non-health with health disabled", "/api/transcode", LoggingConfig{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			tt.config.Output = &out

			handler := Logger(tt.config)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))

			if w.Code != http.StatusNoContent {
				t.Errorf("status = %d", w.Code)
			}
			if logged := out.Len() > 0; logged != tt.wantLogged {
				t.Errorf("logged = %v, want %v", logged, tt.wantLogged)
			}
		})
	}
}

func TestSanitizeLogField(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"line\nforged", "line forged"},
		{"cr\rlf", "cr lf"},
		{"nul\x00byte", "nulbyte"},
		{"\x1b[31mred", "[31mred"},
		{"tab\tkept", "tab\tkept"},
		{"del\x7f", "del"},
	}
	for _, tt := range tests {
		if got := sanitizeLogField(tt.in); got != tt.want {
			t.Errorf("sanitizeLogField(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestQuoteW3C(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"curl/8.0", "curl/8.0"},
		{"a b", `"a b"`},
		{`say "hi"`, `"say ""hi"""`},
	}
	for _, tt := range tests {
		if got := quoteW3C(tt.in); got != tt.want {
			t.Errorf("quoteW3C(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded list", map[string]string{"X-Forwarded-For": "1.1.1.1, 2.2.2.2"}, "9.9.9.9:1", "1.1.1.1"},
		{"real ip", map[string]string{"X-Real-IP": "3.3.3.3"}, "9.9.9.9:1", "3.3.3.3"},
		{"remote addr", nil, "9.9.9.9:1234", "9.9.9.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
