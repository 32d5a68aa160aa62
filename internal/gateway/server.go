package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/fibctl/internal/agent"
	"github.com/danmuck/fibctl/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Agent is the subset of *agent.Client the gateway serves.
type Agent interface {
	PortStats(ctx context.Context) ([]agent.PortStat, error)
	RouteTable(ctx context.Context) ([]agent.Route, error)
	SyncFib(ctx context.Context, routes []agent.Route) error
	AddRoute(ctx context.Context, prefix, nextHop string) error
	DeleteRoute(ctx context.Context, prefix string) error
}

var _ Agent = (*agent.Client)(nil)

type Server struct {
	Name     string
	Appeared time.Time

	agent          Agent
	router         *gin.Engine
	logger         zerolog.Logger
	corsOrigins    []string
	requestTimeout time.Duration
}

type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithRequestTimeout bounds each agent call made on behalf of a request.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.requestTimeout = d }
}

func New(name string, a Agent, opts ...Option) *Server {
	observability.RegisterMetrics()
	s := &Server{
		Name:           name,
		Appeared:       time.Now(),
		agent:          a,
		logger:         log.Logger,
		requestTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestID())
	r.Use(observability.RequestLogger(s.logger))
	r.Use(observability.RequestMetricsMiddleware(name))
	r.Use(cors.New(cors.Config{
		AllowOrigins:  normalizeOrigins(s.corsOrigins),
		AllowMethods:  []string{"GET", "POST", "DELETE"},
		AllowHeaders:  []string{"Origin", "Content-Type", observability.RequestIDHeader},
		ExposeHeaders: []string{observability.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
	s.router = r
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on addr until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("listen", addr).Str("node", s.Name).Msg("gateway.serve")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.logger.Info().Str("node", s.Name).Msg("gateway.stopped")
		return nil
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
