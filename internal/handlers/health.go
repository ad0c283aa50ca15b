package handlers

import (
	"net/http"
	"runtime"
	"time"

	"media-transcoder/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	// Load
	ActiveRequests   int  `json:"activeRequests"`
	SlotsInUse       int  `json:"slotsInUse"`
	SlotCapacity     int  `json:"slotCapacity"`
	ActiveWorkspaces int  `json:"activeWorkspaces"`
	MemoryPressure   bool `json:"memoryPressure"`
	// MemoryUsage and MemoryHighWater are filled when the pressure source
	// samples usage (memory.Monitor does).
	MemoryUsage     float64 `json:"memoryUsage,omitempty"`
	MemoryHighWater bool    `json:"memoryHighWater,omitempty"`

	// Work volume
	FreeDiskBytes  uint64 `json:"freeDiskBytes,omitempty"`
	FreeInodes     uint64 `json:"freeInodes,omitempty"`
	WorkspaceError string `json:"workspaceError,omitempty"`

	// Ledger
	LedgerEnabled bool  `json:"ledgerEnabled"`
	RecordedJobs  int64 `json:"recordedJobs,omitempty"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

type memoryGauge interface {
	GetUsage() float64
	ShouldThrottle() bool
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ready := h.ready.Load()
	response := HealthResponse{
		Ready:            ready,
		Version:          startup.Version,
		Uptime:           time.Since(h.startTime).Round(time.Second).String(),
		ActiveRequests:   len(h.coordinator.Active()),
		SlotsInUse:       h.admission.InUse(),
		SlotCapacity:     h.admission.Capacity(),
		ActiveWorkspaces: h.workspaces.Active(),
		LedgerEnabled:    h.ledger != nil,
		GoVersion:        runtime.Version(),
		NumCPU:           runtime.NumCPU(),
		NumGoroutine:     runtime.NumGoroutine(),
	}
	if h.pressure != nil {
		response.MemoryPressure = h.pressure.UnderPressure()
		if g, ok := h.pressure.(memoryGauge); ok {
			response.MemoryUsage = g.GetUsage()
			response.MemoryHighWater = g.ShouldThrottle()
		}
	}

	bytes, inodes, err := h.workspaces.FreeSpace()
	if err != nil {
		response.WorkspaceError = err.Error()
	} else {
		response.FreeDiskBytes = bytes
		response.FreeInodes = inodes
	}

	if h.ledger != nil {
		if count, err := h.ledger.Count(r.Context()); err == nil {
			response.RecordedJobs = count
		}
	}

	switch {
	case !ready:
		response.Status = statusStarting
	case response.MemoryPressure || response.WorkspaceError != "":
		response.Status = statusDegraded
	default:
		response.Status = statusHealthy
	}

	w.Header().Set("Content-Type", "application/json")

	// Return 503 only if not ready at all
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	writeJSON(w, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when the service is ready to accept traffic
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.ready.Load() {
		w.WriteHeader(http.StatusOK)
		writeJSON(w, map[string]string{
			"status": "ready",
		})
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]string{
			"status": "not_ready",
		})
	}
}
