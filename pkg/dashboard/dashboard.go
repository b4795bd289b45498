// Package dashboard exposes the read-only HTTP dashboard from §6: JSON endpoints over
// the same Store, PatternMemory, Personality and Prometheus collaborators the control
// loop already depends on, so an operator can see what the system is doing without
// touching its write path. Grounded on the retrieval pack's contextd internal/http
// server (github.com/labstack/echo/v4, its Recover/RequestID middleware, and its
// logging-wrapper-around-next pattern), adapted from a scrub API to a remediation
// status board.
package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ci-remediator/orchestrator/pkg/config"
	"github.com/ci-remediator/orchestrator/pkg/logx"
	"github.com/ci-remediator/orchestrator/pkg/metrics"
	"github.com/ci-remediator/orchestrator/pkg/remediation/domain"
	"github.com/ci-remediator/orchestrator/pkg/remediation/patternmemory"
	"github.com/ci-remediator/orchestrator/pkg/remediation/personality"
	"github.com/ci-remediator/orchestrator/pkg/remediation/store"
)

// Server is the read-only status board over the running control loop's state.
type Server struct {
	echo     *echo.Echo
	store    store.Store
	memory   *patternmemory.Memory
	profiler *personality.Profiler
	metrics  *metrics.QueryService // optional: nil disables the metrics-backed endpoints
	cfg      *config.Config
	logger   *logx.Logger
	addr     string
}

// New constructs a dashboard Server bound to addr. queryService may be nil when no
// Prometheus server is configured; the /repositories/:name/stats endpoint then reports
// zeroed counters instead of failing the whole dashboard.
func New(addr string, s store.Store, memory *patternmemory.Memory, profiler *personality.Profiler, queryService *metrics.QueryService, cfg *config.Config, logger *logx.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("dashboard: %s %s -> %d (%s)", c.Request().Method, c.Request().RequestURI, c.Response().Status, time.Since(start))
			return err
		}
	})

	srv := &Server{
		echo:     e,
		store:    s,
		memory:   memory,
		profiler: profiler,
		metrics:  queryService,
		cfg:      cfg,
		logger:   logger,
		addr:     addr,
	}
	srv.registerRoutes()
	return srv
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.GET("/repositories", s.handleRepositories)
	v1.GET("/repositories/:name/stats", s.handleRepositoryStats)
	v1.GET("/repositories/:name/personality", s.handlePersonality)
	v1.GET("/failures", s.handleFailures)
	v1.GET("/circuits", s.handleCircuits)
	v1.GET("/patterns", s.handlePatterns)
	v1.GET("/audit", s.handleAudit)
}

// Start runs the dashboard's HTTP listener; blocks until Shutdown is called or the
// listener errors, matching echo.Echo.Start's contract.
func (s *Server) Start() error {
	s.logger.Info("dashboard: listening on %s", s.addr)
	if err := s.echo.Start(s.addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("dashboard: shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRepositories(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"repositories": s.cfg.Repositories})
}

// repositoryStatsResponse is the per-repository counter snapshot §6 calls for: 24h
// failure count, success rate, active remediations, and (when metrics is wired) the raw
// Prometheus counter totals.
type repositoryStatsResponse struct {
	Repository         string                      `json:"repository"`
	ActiveRemediations int                          `json:"active_remediations"`
	SuccessRate        float64                      `json:"success_rate"`
	Snapshot           *metrics.RepositorySnapshot  `json:"metrics,omitempty"`
}

func (s *Server) handleRepositoryStats(c echo.Context) error {
	repo := c.Param("name")
	ctx := c.Request().Context()

	active, err := s.store.ListFailures(ctx, repo, []domain.FailureStatus{
		domain.FailureDetected, domain.FailureAnalyzed, domain.FailureGated, domain.FailurePROpen,
	}, 0)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("listing active failures: %v", err))
	}

	profile, err := s.profiler.Get(ctx, repo)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("computing personality profile: %v", err))
	}

	resp := repositoryStatsResponse{
		Repository:         repo,
		ActiveRemediations: len(active),
		SuccessRate:        profile.SuccessRate,
	}
	if s.metrics != nil {
		snap, err := s.metrics.GetRepositorySnapshot(ctx, repo)
		if err != nil {
			s.logger.Warn("dashboard: metrics snapshot for %s: %v", repo, err)
		} else {
			resp.Snapshot = snap
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handlePersonality(c echo.Context) error {
	repo := c.Param("name")
	profile, err := s.profiler.Get(c.Request().Context(), repo)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("computing personality profile: %v", err))
	}
	return c.JSON(http.StatusOK, profile)
}

// failureFeedLimit bounds the bounded failure feed §6 asks for.
const failureFeedLimit = 100

func (s *Server) handleFailures(c echo.Context) error {
	repo := c.QueryParam("repository")
	failures, err := s.store.ListFailures(c.Request().Context(), repo, nil, failureFeedLimit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("listing failures: %v", err))
	}
	return c.JSON(http.StatusOK, map[string]any{"failures": failures})
}

func (s *Server) handleCircuits(c echo.Context) error {
	circuits, err := s.store.ListOpenCircuits(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("listing open circuits: %v", err))
	}
	return c.JSON(http.StatusOK, map[string]any{"open_circuits": circuits})
}

func (s *Server) handlePatterns(c echo.Context) error {
	repo := c.QueryParam("repository")
	patterns, err := s.store.ListPatterns(c.Request().Context(), repo, domain.EmbeddingFamilyRemote)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("listing patterns: %v", err))
	}
	return c.JSON(http.StatusOK, map[string]any{"patterns": patterns, "count": len(patterns)})
}

func (s *Server) handleAudit(c echo.Context) error {
	filter := domain.AuditFilter{
		Repository: c.QueryParam("repository"),
		FailureID:  c.QueryParam("failure_id"),
		ActionKind: c.QueryParam("action_kind"),
		Limit:      failureFeedLimit,
	}
	entries, err := s.store.QueryAuditLog(c.Request().Context(), filter)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("querying audit log: %v", err))
	}
	return c.JSON(http.StatusOK, map[string]any{"entries": entries})
}
