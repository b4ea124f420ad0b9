// Package api is the HTTP surface: on-demand analysis, the last decision
// packet, runner status, news timing, admin endpoints and metrics.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"gold-scalper/internal/logging"
	"gold-scalper/internal/metrics"
	"gold-scalper/internal/resilience"
	"gold-scalper/internal/store"
	"gold-scalper/internal/trading"
)

// AdminHeader carries the admin token.
const AdminHeader = "X-Admin-Token"

// Options configures the server.
type Options struct {
	Listen       string        `mapstructure:"listen" default:"127.0.0.1:8080" validate:"required"`
	AdminToken   string        `mapstructure:"admin_token"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" default:"10s"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" default:"30s"`
	SlowRequest  time.Duration `mapstructure:"slow_request" default:"2s"`
	Release      bool          `mapstructure:"release" default:"true"`
}

// Runner is what the server drives.
type Runner interface {
	Analyze(ctx context.Context) (*trading.Analysis, error)
	LastAnalysis() *trading.Analysis
	Status() trading.RunnerStatus
}

// HealthChecker reports the health of a dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// CircuitReporter exposes a dependency's circuit breaker.
type CircuitReporter interface {
	Circuit() resilience.Snapshot
}

// Deps are the collaborators. News, Notifier, Metrics and Bridge may be nil.
type Deps struct {
	Runner      Runner
	Symbol      string
	Store       store.DayStore
	Session     *trading.SessionManager
	News        trading.NewsLock
	NewsSource  string
	Notifier    trading.Notifier
	Metrics     *metrics.Recorder
	MetricsPath string
	Bridge      HealthChecker
	Clock       trading.Clock
	Logger      zerolog.Logger
}

// Server is the HTTP server.
type Server struct {
	opts       Options
	deps       Deps
	router     *gin.Engine
	httpServer *http.Server
	now        trading.Clock
	logger     zerolog.Logger
}

// NewServer creates the server and its routes.
func NewServer(opts Options, deps Deps) (*Server, error) {
	if deps.Runner == nil || deps.Store == nil || deps.Session == nil {
		return nil, errors.New("api server needs a runner, a store and a session manager")
	}
	if opts.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		opts:   opts,
		deps:   deps,
		router: router,
		now:    now,
		logger: logging.WithComponent(deps.Logger, "api"),
	}
	router.Use(s.blockScanners())
	if deps.Metrics != nil {
		router.Use(deps.Metrics.NewHTTPMetrics(s.logger, opts.SlowRequest).Middleware())
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	s.router.POST("/analyze", s.handleAnalyze)
	s.router.GET("/decision/last", s.handleLastDecision)
	s.router.GET("/runner/status", s.handleRunnerStatus)
	s.router.GET("/news/next", s.handleNewsNext)
	s.router.GET("/summary", s.handleSummary)

	admin := s.router.Group("/", s.requireAdmin())
	admin.POST("/admin/reset", s.handleReset)
	admin.POST("/telegram/test", s.handleTelegramTest)
	admin.GET("/outcomes/latest", s.handleOutcomes)
	admin.GET("/signals/recent", s.handleSignals)

	if s.deps.Metrics != nil {
		path := s.deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.router.GET(path, gin.WrapH(s.deps.Metrics.Handler()))
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.opts.Listen,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", s.opts.Listen).Msg("Starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info().Msg("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// requireAdmin checks the admin token. An empty configured token closes the
// admin endpoints.
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(AdminHeader)
		want := s.opts.AdminToken
		if want == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			s.logger.Warn().Str("path", c.Request.URL.Path).Str("client", c.ClientIP()).Msg("admin request rejected")
			errorResponse(c, http.StatusUnauthorized, "Unauthorized")
			c.Abort()
			return
		}
		c.Next()
	}
}

var (
	blockedPrefixes = []string{"/.env", "/.git", "/.aws", "/.ssh", "/.htaccess", "/.htpasswd"}
	blockedExact    = []string{"/wp-config.php", "/docker-compose.yml", "/config.json", "/phpmyadmin", "/admin.php"}
)

// blockScanners answers 404 to the usual vulnerability scanner probes
// before any handler runs.
func (s *Server) blockScanners() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := strings.ToLower(c.Request.URL.Path)
		if isScannerPath(path) {
			s.logger.Warn().Str("path", c.Request.URL.Path).Msg("Blocked scanner path")
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
			return
		}
		c.Next()
	}
}

func isScannerPath(path string) bool {
	for _, p := range blockedPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	trimmed := strings.TrimSuffix(path, "/")
	for _, p := range blockedExact {
		if trimmed == p {
			return true
		}
	}
	return strings.Contains(path, "wp-config")
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}
