package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gus-bms/db-checker/internal/alert"
	"github.com/gus-bms/db-checker/internal/metrics"
	"github.com/gus-bms/db-checker/internal/model"
	"github.com/gus-bms/db-checker/internal/source"
	"github.com/gus-bms/db-checker/internal/store"
)

// Cache is the read side of the store.
type Cache interface {
	ReadLatest(ctx context.Context) (*model.Snapshot, *model.ProcessList, error)
	ReadSeries(ctx context.Context, q store.SeriesQuery) (model.SeriesWindow, error)
}

// ResourceReader produces the on-demand resource report.
type ResourceReader interface {
	FetchResources(ctx context.Context) (model.Resources, error)
}

// HealthCheck pings one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Config holds HTTP server configuration.
type Config struct {
	Addr           string        // Listen address (default: ":3000")
	AllowedOrigins []string      // CORS origins; empty allows any
	GatewayPath    string        // WebSocket route (default: "/db/ws")
	MetricsPath    string        // Prometheus route (default: "/metrics")
	RequestTimeout time.Duration // Bound on cache and source reads (default: 4s)
	ProcessList    source.ProcessListOptions
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:           ":3000",
		GatewayPath:    "/db/ws",
		MetricsPath:    "/metrics",
		RequestTimeout: 4 * time.Second,
		ProcessList:    source.ProcessListOptions{}.Normalize(),
	}
}

// Deps are the collaborators behind the routes. Source, Resources, Gateway
// and Metrics are optional; their routes are not registered when nil.
type Deps struct {
	Cache      Cache
	Source     source.Source
	Resources  ResourceReader
	Gateway    http.Handler
	Metrics    *metrics.Metrics
	Thresholds alert.Thresholds
	Checks     []HealthCheck
	IsLeader   func() bool
}

// Server is the HTTP front end.
type Server struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	router *gin.Engine
	http   *http.Server
	start  time.Time

	wg sync.WaitGroup
}

// New builds the router. Call Start to listen.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	d := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = d.Addr
	}
	if cfg.GatewayPath == "" {
		cfg.GatewayPath = d.GatewayPath
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = d.MetricsPath
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = d.RequestTimeout
	}
	cfg.ProcessList = cfg.ProcessList.Normalize()

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		start:  time.Now(),
	}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger), corsMiddleware(s.cfg.AllowedOrigins))

	r.GET("/health", s.handleHealth)
	r.GET("/config/thresholds", s.handleThresholds)

	db := r.Group("/db")
	db.GET("/latest", s.handleLatest)
	db.GET("/timeseries", s.handleTimeSeries)
	if s.deps.Source != nil {
		db.GET("/snapshot", s.handleLiveSnapshot)
		db.GET("/process-list", s.handleLiveProcessList)
	}
	if s.deps.Resources != nil {
		db.GET("/resources", s.handleResources)
	}

	if s.deps.Gateway != nil {
		r.GET(s.cfg.GatewayPath, gin.WrapH(s.deps.Gateway))
	}
	if s.deps.Metrics != nil {
		r.GET(s.cfg.MetricsPath, gin.WrapH(s.deps.Metrics.Handler()))
	}
	return r
}

// Start binds the listener and serves in the background. Bind errors are
// returned synchronously.
func (s *Server) Start(ctx context.Context) error {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", "error", err)
		}
	}()

	s.logger.Info("http server started", "addr", ln.Addr().String())
	return nil
}

// Stop gracefully shuts the server down. Hijacked WebSocket connections are
// not tracked here; close the gateway separately.
func (s *Server) Stop(ctx context.Context) error {
	err := s.http.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("http server stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}
