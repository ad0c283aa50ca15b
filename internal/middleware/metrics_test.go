package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"media-transcoder/internal/metrics"

	dto "github.com/prometheus/client_model/go"
)

func TestNewMetricsResponseWriter(t *testing.T) {
	w := httptest.NewRecorder()
	mrw := newMetricsResponseWriter(w, time.Now(), false)

	if mrw.statusCode != http.StatusOK {
		t.Errorf("Expected default status code 200, got %d", mrw.statusCode)
	}
	if mrw.headerWritten {
		t.Error("Expected headerWritten to be false initially")
	}
	if mrw.isStreamingPath {
		t.Error("Expected isStreamingPath to be false for non-streaming")
	}

	if !newMetricsResponseWriter(w, time.Now(), true).isStreamingPath {
		t.Error("Expected isStreamingPath to be true for streaming")
	}
}

func TestMetricsResponseWriterWriteHeader(t *testing.T) {
	t.Run("non-streaming", func(t *testing.T) {
		w := httptest.NewRecorder()
		mrw := newMetricsResponseWriter(w, time.Now(), false)

		mrw.WriteHeader(http.StatusCreated)

		if mrw.statusCode != http.StatusCreated || !mrw.headerWritten {
			t.Errorf("status = %d, headerWritten = %v", mrw.statusCode, mrw.headerWritten)
		}
		if !mrw.firstByteTime.IsZero() {
			t.Error("Expected firstByteTime to be zero for non-streaming")
		}
		if w.Code != http.StatusCreated {
			t.Errorf("Expected underlying writer to have status 201, got %d", w.Code)
		}
	})

	t.Run("streaming", func(t *testing.T) {
		w := httptest.NewRecorder()
		startTime := time.Now()
		mrw := newMetricsResponseWriter(w, startTime, true)

		mrw.WriteHeader(http.StatusOK)

		if mrw.firstByteTime.IsZero() {
			t.Error("Expected firstByteTime to be set for streaming endpoint")
		}
		if mrw.firstByteTime.Before(startTime) {
			t.Error("firstByteTime should be after startTime")
		}
	})
}

func TestMetricsResponseWriterWrite(t *testing.T) {
	w := httptest.NewRecorder()
	mrw := newMetricsResponseWriter(w, time.Now(), true)

	mrw.WriteHeader(http.StatusOK)
	first := mrw.firstByteTime
	time.Sleep(time.Millisecond)

	data := []byte("event: progress\n\n")
	n, err := mrw.Write(data)
	if err != nil || n != len(data) {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	if mrw.firstByteTime != first {
		t.Error("firstByteTime should not change after initial WriteHeader")
	}
}

func TestMetricsResponseWriterGetDuration(t *testing.T) {
	t.Run("non-streaming returns total duration", func(t *testing.T) {
		mrw := newMetricsResponseWriter(httptest.NewRecorder(), time.Now(), false)

		time.Sleep(5 * time.Millisecond)
		mrw.WriteHeader(http.StatusOK)
		time.Sleep(5 * time.Millisecond)

		if d := mrw.GetDuration(); d < 10*time.Millisecond {
			t.Errorf("Expected duration >= 10ms, got %v", d)
		}
	})

	t.Run("streaming returns time to first byte", func(t *testing.T) {
		mrw := newMetricsResponseWriter(httptest.NewRecorder(), time.Now(), true)

		time.Sleep(5 * time.Millisecond)
		mrw.Write([]byte("data"))
		time.Sleep(50 * time.Millisecond)

		d := mrw.GetDuration()
		if d < 5*time.Millisecond || d >= 50*time.Millisecond {
			t.Errorf("Expected TTFB between 5ms and 50ms, got %v", d)
		}
	})
}

func TestMetricsResponseWriterFlush(t *testing.T) {
	w := httptest.NewRecorder()
	var flusher http.Flusher = newMetricsResponseWriter(w, time.Now(), true)
	flusher.Flush()

	if !w.Flushed {
		t.Error("Flush was not forwarded")
	}
}

func TestIsStreamingPath(t *testing.T) {
	tests := []struct {
		method   string
		path     string
		expected bool
	}{
		{http.MethodPost, "/api/transcode", true},
		{http.MethodPost, "/api/transcode/", true},
		{http.MethodGet, "/api/transcode", false},
		{http.MethodDelete, "/api/transcode/abc", false},
		{http.MethodPost, "/api/thumbnail", false},
		{http.MethodPost, "/api/metadata", false},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			if got := isStreamingPath(tt.method, tt.path); got != tt.expected {
				t.Errorf("isStreamingPath(%q, %q) = %v, want %v", tt.method, tt.path, got, tt.expected)
			}
		})
	}
}

func TestDefaultMetricsConfig(t *testing.T) {
	config := DefaultMetricsConfig()

	for _, path := range []string{"/metrics", "/health", "/healthz", "/livez", "/readyz"} {
		found := false
		for _, skip := range config.SkipPaths {
			if skip == path {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected %q to be in default SkipPaths", path)
		}
	}
}

func requestCount(t *testing.T, method, path, status string) float64 {
	t.Helper()
	var m dto.Metric
	if err := metrics.HTTPRequestsTotal.WithLabelValues(method, path, status).Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetCounter().GetValue()
}

func TestMetricsMiddlewareRecords(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	wrappedHandler := Metrics(DefaultMetricsConfig())(handler)

	before := requestCount(t, http.MethodDelete, "/api/transcode/{id}", "202")
	for _, id := range []string{"a1", "b2", "c3"} {
		req := httptest.NewRequest(http.MethodDelete, "/api/transcode/"+id, http.NoBody)
		wrappedHandler.ServeHTTP(httptest.NewRecorder(), req)
	}
	after := requestCount(t, http.MethodDelete, "/api/transcode/{id}", "202")

	if after-before != 3 {
		t.Errorf("recorded %v requests, want 3 under one label set", after-before)
	}
}

func TestMetricsMiddlewareSkipPaths(t *testing.T) {
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	})
	wrappedHandler := Metrics(MetricsConfig{SkipPaths: []string{"/metrics", "/health"}})(handler)

	before := requestCount(t, http.MethodGet, "/health", "200")
	for _, path := range []string{"/metrics", "/health", "/api/presets", "/"} {
		handlerCalled = false
		wrappedHandler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, http.NoBody))
		if !handlerCalled {
			t.Errorf("handler not called for %s", path)
		}
	}
	if after := requestCount(t, http.MethodGet, "/health", "200"); after != before {
		t.Error("/health should not be recorded")
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/api/transcode", "/api/transcode"},
		{"/api/transcode/", "/api/transcode/"},
		{"/api/transcode/5f0c2d8e-1111-4a4a-9b9b-000000000001", "/api/transcode/{id}"},
		{"/api/jobs/5f0c2d8e-1111-4a4a-9b9b-000000000001", "/api/jobs/{id}"},
		{"/api/presets", "/api/presets"},
		{"/health", "/health"},
		{"/", "/"},
		{"/a/b/c/d/e/f/g/h", "/a/b/c/d/{path}"},
		{"/api/v1/users/123", "/api/v1/users/123"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := normalizePath(tt.path); got != tt.expected {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.expected)
			}
		})
	}
}

func TestMetricsMiddlewareStatusCode(t *testing.T) {
	for _, code := range []int{http.StatusOK, http.StatusBadRequest, http.StatusServiceUnavailable, http.StatusGatewayTimeout} {
		t.Run(strconv.Itoa(code), func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(code)
			})
			wrappedHandler := Metrics(MetricsConfig{})(handler)

			w := httptest.NewRecorder()
			wrappedHandler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/metadata", http.NoBody))

			if w.Code != code {
				t.Errorf("Expected status code %d, got %d", code, w.Code)
			}
		})
	}
}

func BenchmarkMetricsMiddleware(b *testing.B) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	wrappedHandler := Metrics(DefaultMetricsConfig())(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/presets", http.NoBody)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		wrappedHandler.ServeHTTP(w, req)
	}
}
