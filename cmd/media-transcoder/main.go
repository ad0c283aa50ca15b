package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"media-transcoder/internal/admission"
	"media-transcoder/internal/artifacts"
	"media-transcoder/internal/encode"
	"media-transcoder/internal/engine"
	"media-transcoder/internal/filesystem"
	"media-transcoder/internal/handlers"
	"media-transcoder/internal/jobstore"
	"media-transcoder/internal/logging"
	"media-transcoder/internal/memory"
	"media-transcoder/internal/metrics"
	"media-transcoder/internal/middleware"
	"media-transcoder/internal/presets"
	"media-transcoder/internal/probe"
	"media-transcoder/internal/startup"
	"media-transcoder/internal/streaming"
	"media-transcoder/internal/thumbnail"
	"media-transcoder/internal/transcode"
	"media-transcoder/internal/workers"
	"media-transcoder/internal/workspace"

	"github.com/gorilla/mux"
)

const (
	shutdownTimeout   = 30 * time.Second
	collectorInterval = time.Minute
	pruneInterval     = 6 * time.Hour
)

func main() {
	startTime := time.Now()

	memResult := memory.ConfigureFromEnv()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	monitor := memory.NewMonitor(memory.ConfigFromEnv())
	monitor.Start()
	startup.LogMemoryConfig(memResult, monitor.Source())

	engineInfo, err := startup.LogEngineInit(config.FFmpegPath, config.FFprobePath)
	if err != nil {
		startup.LogFatal("Engine error: %v", err)
	}
	ffmpeg := engine.Command{Path: engineInfo.FFmpegPath}
	ffprobe := engine.Command{Path: engineInfo.FFprobePath}

	if err := thumbnail.InitVips(); err != nil {
		logging.Warn("libvips unavailable, thumbnails use the Go scaler: %v", err)
	}

	registry := presets.Default()
	if len(config.Presets) > 0 {
		if registry, err = presets.NewRegistry(config.Presets); err != nil {
			startup.LogFatal("Invalid presets in %s: %v", config.ConfigFile, err)
		}
	}
	metrics.InitializeMetrics(registry.Names())
	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)
	filesystem.SetVolumes(filesystem.NewVolumes(
		filesystem.Volume{Name: "work", Path: config.WorkDir},
		filesystem.Volume{Name: "output", Path: config.OutputDir},
	))
	filesystem.SetObserver(metrics.NewFilesystemObserver())

	workspaces, err := workspace.NewManager(workspace.Config{
		Root:          config.WorkDir,
		MinFreeBytes:  config.MinFreeDiskBytes,
		MinFreeInodes: config.MinFreeInodes,
	})
	if err != nil {
		startup.LogFatal("Workspace error: %v", err)
	}
	// Nothing is running yet, so every workspace left behind is stale.
	sweptDirs, sweptBytes, err := workspaces.Sweep(0)
	if err != nil {
		logging.Warn("Workspace sweep failed: %v", err)
	}

	store, err := artifacts.NewLocalStore(config.OutputDir)
	if err != nil {
		startup.LogFatal("Output directory error: %v", err)
	}

	ledger := openLedger(config)

	capacity := config.MaxConcurrentJobs
	threads := workers.ThreadsPerJob(capacity)
	admissionCtl := admission.New(capacity, monitor)
	startup.LogAdmissionInit(startup.AdmissionInfo{
		Capacity:      capacity,
		ThreadsPerJob: threads,
		MemorySource:  monitor.Source(),
		SweptDirs:     sweptDirs,
		SweptBytes:    sweptBytes,
	})

	prober := probe.NewExtractor(ffprobe)
	coordConfig := transcode.Config{
		Presets:    registry,
		Admission:  admissionCtl,
		Workspaces: workspaces,
		Runner: encode.NewRunner(encode.Config{
			Launcher:          ffmpeg,
			Threads:           threads,
			TimeoutMultiplier: config.JobTimeoutMultiplier,
			TimeoutFloor:      config.JobTimeoutMin,
			TimeoutFallback:   config.JobTimeoutFallback,
			ProgressInterval:  config.ProgressInterval,
		}),
		Artifacts:     store,
		Prober:        prober,
		MaxInputBytes: config.MaxInputBytes,
	}
	handlerConfig := handlers.Config{
		Presets: registry,
		Prober:  prober,
		Thumbnails: thumbnail.NewGenerator(thumbnail.Config{
			Runner: ffmpeg,
			Prober: prober,
			Width:  config.ThumbnailWidth,
		}),
		Workspaces:    workspaces,
		Admission:     admissionCtl,
		Pressure:      monitor,
		MaxInputBytes: config.MaxInputBytes,
		Stream:        streaming.DefaultConfig(),
		EngineVersion: engineInfo.FFmpegVersion,
	}
	if ledger != nil {
		coordConfig.Ledger = ledger
		handlerConfig.Ledger = ledger
	}

	coord, err := transcode.New(coordConfig)
	if err != nil {
		startup.LogFatal("Failed to create coordinator: %v", err)
	}
	handlerConfig.Coordinator = coord

	h, err := handlers.New(handlerConfig)
	if err != nil {
		startup.LogFatal("Failed to create handlers: %v", err)
	}

	collector := metrics.NewCollector(statsProvider(ledger, workspaces), collectorInterval)
	collector.Start()

	stopPrune := make(chan struct{})
	if ledger != nil {
		go pruneLedger(ledger, config.JobHistoryRetention, stopPrune)
	}

	router := setupRouter(h)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           wrapMiddleware(router, config),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0, // progress streams last as long as the encode
		IdleTimeout:       60 * time.Second,
	}

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsSrv = newMetricsServer(config.MetricsPort, h.MetricsHandler())
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	h.SetReady(true)
	go handleShutdown(shutdownDeps{
		server:        srv,
		metricsServer: metricsSrv,
		handlers:      h,
		coordinator:   coord,
		collector:     collector,
		monitor:       monitor,
		ledger:        ledger,
		stopPrune:     stopPrune,
	})

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
	// ListenAndServe returns as soon as Shutdown starts; wait for it.
	<-shutdownDone
}

// openLedger opens the job ledger. The ledger is optional: any failure
// is logged and the service runs without history.
func openLedger(config *startup.Config) *jobstore.Store {
	if !config.LedgerEnabled {
		startup.LogLedgerInit(0, 0, errors.New("database directory is not writable"))
		return nil
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ledger, err := jobstore.New(ctx, config.DatabasePath)
	if err != nil {
		startup.LogLedgerInit(time.Since(start), 0, err)
		return nil
	}
	count, err := ledger.Count(ctx)
	if err != nil {
		logging.Warn("Failed to count ledger rows: %v", err)
	}
	startup.LogLedgerInit(time.Since(start), count, nil)
	return ledger
}

// statsProvider feeds the metrics collector. ledger may be nil.
func statsProvider(ledger *jobstore.Store, workspaces *workspace.Manager) metrics.StatsProvider {
	return metrics.StatsFunc(func() metrics.Stats {
		var stats metrics.Stats
		if ledger != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if count, err := ledger.Count(ctx); err == nil {
				stats.LedgerJobs = count
			}
			cancel()
		}
		if free, inodes, err := workspaces.FreeSpace(); err == nil {
			stats.WorkspaceFreeBytes = free
			stats.WorkspaceFreeInodes = inodes
		}
		return stats
	})
}

// pruneLedger drops ledger rows older than retention until stop closes.
func pruneLedger(ledger *jobstore.Store, retention time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		removed, err := ledger.Prune(ctx, time.Now().Add(-retention))
		cancel()
		if err != nil {
			logging.Warn("Ledger prune failed: %v", err)
		} else if removed > 0 {
			logging.Info("Pruned %d ledger rows older than %v", removed, retention)
		}

		select {
		case <-ticker.C:
		case <-stop:
			return
		}
	}
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	// Health check and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Transcoding
	api.HandleFunc("/transcode", h.StartTranscode).Methods("POST")
	api.HandleFunc("/transcode", h.ListTranscodes).Methods("GET")
	api.HandleFunc("/transcode/{id}", h.CancelTranscode).Methods("DELETE")
	api.HandleFunc("/jobs/{requestId}", h.GetJobs).Methods("GET")

	// Inspection
	api.HandleFunc("/metadata", h.GetMetadata).Methods("POST")
	api.HandleFunc("/thumbnail", h.GetThumbnail).Methods("POST")
	api.HandleFunc("/presets", h.ListPresets).Methods("GET")

	return r
}

// wrapMiddleware applies metrics, access logging and compression, in
// that order from the inside out.
func wrapMiddleware(router http.Handler, config *startup.Config) http.Handler {
	metered := middleware.Metrics(middleware.DefaultMetricsConfig())(router)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	logged := middleware.Logger(loggingConfig)(metered)

	return middleware.Compression(middleware.DefaultCompressionConfig())(logged)
}

func newMetricsServer(port string, metricsHandler http.Handler) *http.Server {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metricsHandler)
	return &http.Server{
		Addr:              ":" + port,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}
}

type shutdownDeps struct {
	server        *http.Server
	metricsServer *http.Server
	handlers      *handlers.Handlers
	coordinator   *transcode.Coordinator
	collector     *metrics.Collector
	monitor       *memory.Monitor
	ledger        *jobstore.Store
	stopPrune     chan struct{}
}

var shutdownDone = make(chan struct{})

func handleShutdown(deps shutdownDeps) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())
	defer close(shutdownDone)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	deps.handlers.SetReady(false)

	startup.LogShutdownStep("Cancelling active transcodes")
	if err := deps.coordinator.Shutdown(ctx); err != nil {
		logging.Warn("Transcodes did not stop in time: %v", err)
	} else {
		startup.LogShutdownStepComplete("Transcodes stopped")
	}

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := deps.server.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if deps.metricsServer != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := deps.metricsServer.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	deps.collector.Stop()
	deps.monitor.Stop()
	close(deps.stopPrune)

	if deps.ledger != nil {
		startup.LogShutdownStep("Closing job ledger")
		if err := deps.ledger.Close(); err != nil {
			logging.Warn("Ledger close error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Job ledger closed")
		}
	}

	thumbnail.ShutdownVips()
	startup.LogShutdownComplete()
}
