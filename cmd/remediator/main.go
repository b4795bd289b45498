// Command remediator runs the CI remediation control loop: it polls every configured
// repository for failed CI runs, classifies them with an LLM, gates and applies fixes,
// verifies them with a post-remediation health check, and rolls back on regression (§4). It
// also serves the Prometheus metrics endpoint, the read-only status dashboard, and the
// three scheduled maintenance jobs alongside the control loop.
//
// Flag parsing, log-file setup ordering, and the run/exit-code split are grounded on the
// teacher's cmd/maestro/main.go; signal-driven graceful shutdown is grounded on
// cmd/maestro's shutdown handling and the retrieval pack's contextd daemon
// (cmd/contextd/main.go).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ci-remediator/orchestrator/pkg/config"
	"github.com/ci-remediator/orchestrator/pkg/dashboard"
	"github.com/ci-remediator/orchestrator/pkg/eventlog"
	"github.com/ci-remediator/orchestrator/pkg/logx"
	"github.com/ci-remediator/orchestrator/pkg/metrics"
	"github.com/ci-remediator/orchestrator/pkg/remediation/llmclient"
	"github.com/ci-remediator/orchestrator/pkg/remediation/notifier"
	"github.com/ci-remediator/orchestrator/pkg/remediation/orchestrator"
	"github.com/ci-remediator/orchestrator/pkg/remediation/patternmemory"
	"github.com/ci-remediator/orchestrator/pkg/remediation/personality"
	"github.com/ci-remediator/orchestrator/pkg/remediation/scheduler"
	"github.com/ci-remediator/orchestrator/pkg/remediation/store"
	"github.com/ci-remediator/orchestrator/pkg/remediation/store/sqlite"
	"github.com/ci-remediator/orchestrator/pkg/remediation/substrate"
	"github.com/ci-remediator/orchestrator/pkg/remediation/vcsclient"
)

// Version information, set by goreleaser via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ShutdownGrace bounds how long the dashboard and metrics HTTP servers are given to
// drain in-flight requests once a shutdown signal arrives.
const ShutdownGrace = 10 * time.Second

func main() {
	var (
		configPath    = flag.String("config", "config.yaml", "Path to the orchestrator's YAML config file")
		eventLogDir   = flag.String("event-log-dir", "./events", "Directory the JSONL audit-trail mirror is written to")
		prometheusURL = flag.String("prometheus-url", "", "Prometheus server URL for dashboard/scheduler queries; leave empty to disable")
		logDir        = flag.String("log-dir", "./logs", "Directory debug logs are written to when -debug is set")
		debug         = flag.Bool("debug", false, "Enable file-backed debug logging")
		showVersion   = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("remediator %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
		os.Exit(0)
	}

	logx.SetDebugConfig(*debug, *debug, *logDir)
	logger := logx.NewLogger("remediator")

	if err := run(logger, *configPath, *eventLogDir, *prometheusURL); err != nil {
		logger.Error("remediator: fatal: %v", err)
		os.Exit(1)
	}
}

func run(logger *logx.Logger, configPath, eventLogDir, prometheusURL string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	config.SetConfig(cfg)

	deps, err := wire(cfg, eventLogDir, prometheusURL, logger)
	if err != nil {
		return fmt.Errorf("wire dependencies: %w", err)
	}
	defer deps.store.Close() //nolint:errcheck // best-effort on exit
	defer deps.events.Close() //nolint:errcheck // best-effort on exit

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("remediator: received signal %v, shutting down", sig)
		cancel()
	}()

	metricsSrv := startMetricsServer(cfg.Substrate.MetricsBindAddr, deps.registry, logger)
	dash := dashboard.New(cfg.Substrate.DashboardBindAddr, deps.store, deps.memory, deps.profiler, deps.queryService, cfg, logger)
	go func() {
		if err := dash.Start(); err != nil {
			logger.Error("remediator: dashboard server: %v", err)
		}
	}()

	sched := scheduler.New(cfg, deps.store, substrate.SystemClock{}, deps.notifier, deps.profiler, deps.queryService, deps.exporter, logger)
	go func() {
		if err := sched.Run(ctx); err != nil && err != context.Canceled {
			logger.Warn("remediator: scheduler stopped: %v", err)
		}
	}()

	orch := orchestrator.New(cfg, deps.vcs, deps.store, substrate.SystemClock{}, deps.notifier, logger, deps.memory, deps.profiler, deps.model, deps.events, deps.exporter, cfg.WorkerPoolSize)
	runErr := orch.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), ShutdownGrace)
	defer shutdownCancel()
	if err := dash.Shutdown(shutdownCtx); err != nil {
		logger.Warn("remediator: dashboard shutdown: %v", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("remediator: metrics server shutdown: %v", err)
	}

	if runErr != nil && runErr != context.Canceled {
		return fmt.Errorf("control loop: %w", runErr)
	}
	return nil
}

// deps holds every wired collaborator main needs after construction, so Shutdown-time
// cleanup and the three long-running loops (control loop, dashboard, scheduler) all read
// from one place.
type deps struct {
	store        store.Store
	vcs          substrate.VcsClient
	model        substrate.ModelClient
	notifier     substrate.Notifier
	memory       *patternmemory.Memory
	profiler     *personality.Profiler
	events       *eventlog.Writer
	registry     *prometheus.Registry
	queryService *metrics.QueryService // nil when prometheusURL is empty
	exporter     *metrics.Exporter
}

func wire(cfg *config.Config, eventLogDir, prometheusURL string, logger *logx.Logger) (*deps, error) {
	s, err := sqlite.Open(cfg.Substrate.StoreDSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	model, err := llmclient.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("construct model client: %w", err)
	}

	embedder, err := llmclient.NewEmbeddingClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("construct embedding client: %w", err)
	}
	var embedClient substrate.EmbeddingClient
	if embedder != nil {
		embedClient = embedder
	}

	events, err := eventlog.NewWriter(eventLogDir, 0)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	var queryService *metrics.QueryService
	if prometheusURL != "" {
		queryService, err = metrics.NewQueryService(prometheusURL)
		if err != nil {
			return nil, fmt.Errorf("construct metrics query service: %w", err)
		}
	}

	registry := prometheus.NewRegistry()
	exporter := metrics.NewExporter(registry)

	return &deps{
		store:        s,
		vcs:          vcsclient.New(),
		model:        model,
		notifier:     notifier.New(cfg.Substrate.NotifierChannel, logger),
		memory:       patternmemory.New(s, embedClient),
		profiler:     personality.New(s, substrate.SystemClock{}),
		events:       events,
		registry:     registry,
		queryService: queryService,
		exporter:     exporter,
	}, nil
}

func startMetricsServer(addr string, registry *prometheus.Registry, logger *logx.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("remediator: metrics listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("remediator: metrics server: %v", err)
		}
	}()
	return srv
}
