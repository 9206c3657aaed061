package http

import (
	"context"
	stdhttp "net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"regioncd/app/internal/catalog"
	"regioncd/app/internal/metrics"
	"regioncd/app/internal/region"
	"regioncd/app/internal/version"
)

// Catalog is the subset of the local district catalog used by the convert endpoint.
type Catalog interface {
	Find(ctx context.Context, query string) (*catalog.Match, error)
	Count(ctx context.Context) (int64, error)
}

// Options configures the HTTP server wiring.
type Options struct {
	RegionService region.Service
	// Catalog is optional; the convert endpoint answers 503 without it.
	Catalog     Catalog
	HasKey      bool
	Commit      string
	Logger      *logrus.Logger
	SentryHub   *sentry.Hub
	Metrics     *metrics.Metrics
	RateLimiter RateLimiterSettings
}

// RateLimiterSettings configures the HTTP rate limiter behaviour.
type RateLimiterSettings struct {
	RequestsPerSecond float64
	Burst             int
	ClientTTL         time.Duration
}

// Server wires the HTTP transport layer via Huma and templ components.
type Server struct {
	api         huma.API
	mux         *stdhttp.ServeMux
	handler     stdhttp.Handler
	regions     region.Service
	catalog     Catalog
	hasKey      bool
	version     version.Info
	logger      *logrus.Logger
	sentry      *sentry.Hub
	metrics     *metrics.Metrics
	rateLimiter *RateLimiter
	now         func() time.Time
}

// NewServer constructs the HTTP server.
func NewServer(opts Options) (*Server, error) {
	if opts.RegionService == nil {
		return nil, eris.New("region service is required")
	}

	settings := opts.RateLimiter
	if settings.Burst <= 0 {
		return nil, eris.New("rate limiter burst must be greater than zero")
	}
	if settings.RequestsPerSecond <= 0 {
		return nil, eris.New("rate limiter requests per second must be greater than zero")
	}
	if settings.ClientTTL <= 0 {
		return nil, eris.New("rate limiter client TTL must be greater than zero")
	}

	info := version.Get(opts.Commit)

	mux := stdhttp.NewServeMux()
	config := huma.DefaultConfig("regioncd", info.Version)
	config.Info.Description = "Standard region code (region_cd) lookups against the MOIS StanReginCd registry."

	api := humago.New(mux, config)

	srv := &Server{
		api:         api,
		mux:         mux,
		regions:     opts.RegionService,
		catalog:     opts.Catalog,
		hasKey:      opts.HasKey,
		version:     info,
		logger:      opts.Logger,
		sentry:      opts.SentryHub,
		metrics:     opts.Metrics,
		rateLimiter: NewRateLimiter(settings.Burst, settings.RequestsPerSecond, settings.ClientTTL),
		now:         time.Now,
	}
	srv.handler = withCORS(mux)

	srv.registerMiddlewares()
	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the underlying HTTP handler for wiring into the application.
func (s *Server) Handler() stdhttp.Handler {
	return s.handler
}

// API exposes the underlying Huma API instance.
func (s *Server) API() huma.API {
	return s.api
}

// Close releases background resources held by the server.
func (s *Server) Close() {
	s.rateLimiter.Close()
}

func (s *Server) registerMiddlewares() {
	s.api.UseMiddleware(
		s.sentryMiddleware(),
		s.recoveryMiddleware(),
		s.requestIDMiddleware(),
		s.loggingMiddleware(),
		s.rateLimitMiddleware(),
	)
}

func (s *Server) registerRoutes() {
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}

	s.registerHomeRoute()
	s.registerRegionRoute()
	s.registerPNURoute()
	s.registerConvertRoute()
	s.registerHealthRoute()
	s.registerVersionRoute()
}

func (s *Server) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	s.handler.ServeHTTP(w, r)
}
