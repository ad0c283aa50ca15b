package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"media-transcoder/internal/startup"
)

// VersionResponse is the /version body: build info plus what this
// instance can encode with.
type VersionResponse struct {
	startup.BuildInfo
	FFmpeg  string   `json:"ffmpeg,omitempty"`
	Presets []string `json:"presets"`
}

func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	resp := VersionResponse{
		BuildInfo: startup.GetBuildInfo(),
		FFmpeg:    h.engineVersion,
		Presets:   []string{},
	}
	if h.presets != nil {
		resp.Presets = h.presets.Names()
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSONStatus(w, http.StatusOK, resp)
}

// MetricsHandler serves the default registry. Scrapes are bounded so a
// slow collector cannot pile up requests on the metrics port.
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			ErrorHandling:       promhttp.ContinueOnError,
			MaxRequestsInFlight: 4,
			Timeout:             10 * time.Second,
		}),
	)
}
