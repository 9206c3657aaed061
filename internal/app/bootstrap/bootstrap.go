package bootstrap

import (
	"context"
	stdhttp "net/http"

	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"regioncd/app/internal/catalog"
	"regioncd/app/internal/config"
	"regioncd/app/internal/db"
	apphttp "regioncd/app/internal/http"
	"regioncd/app/internal/metrics"
	"regioncd/app/internal/region"
	"regioncd/app/internal/registry"
	"regioncd/app/internal/version"
)

type Dependencies struct {
	Config    config.Config
	Logger    *logrus.Logger
	SentryHub *sentry.Hub
	// Metrics is created when nil.
	Metrics *metrics.Metrics
	// HTTPClient overrides the registry transport.
	HTTPClient *stdhttp.Client
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

type Result struct {
	Registry      *registry.Client
	RegionService region.Service
	// Catalog is nil when CATALOG_DB_PATH is empty.
	Catalog    *catalog.Repository
	Database   *gorm.DB
	Metrics    *metrics.Metrics
	HTTPServer *apphttp.Server
	Cleanup    func() error
}

// Build composes the registry client, the region service and the optional district catalog.
func Build(ctx context.Context, deps Dependencies) (Result, error) {
	cfg := deps.Config

	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}

	client, err := registry.NewClient(registry.ClientOptions{
		ServiceKey:     cfg.Registry.ServiceKey,
		Host:           cfg.Registry.Host,
		Path:           cfg.Registry.Path,
		Timeout:        cfg.Registry.Timeout,
		Rows:           cfg.Registry.Rows,
		UserAgent:      "regioncd/" + version.Version,
		HTTPClient:     deps.HTTPClient,
		Logger:         deps.Logger,
		Metrics:        m,
		TracerProvider: deps.TracerProvider,
	})
	if err != nil {
		return Result{}, eris.Wrap(err, "creating registry client")
	}

	service, err := region.NewService(region.Options{
		Fetcher:                 client,
		DisableInsecureFallback: !cfg.Registry.InsecureFallback,
		Logger:                  deps.Logger,
		SentryHub:               deps.SentryHub,
		Metrics:                 m,
	})
	if err != nil {
		return Result{}, eris.Wrap(err, "creating region service")
	}

	result := Result{
		Registry:      client,
		RegionService: service,
		Metrics:       m,
		Cleanup:       func() error { return nil },
	}

	if cfg.CatalogDBPath == "" {
		return result, nil
	}

	repo, database, err := catalog.Open(ctx, cfg.CatalogDBPath, deps.Logger)
	if err != nil {
		return Result{}, eris.Wrap(err, "opening district catalog")
	}

	result.Catalog = repo
	result.Database = database
	result.Cleanup = func() error {
		return db.Close(database)
	}

	return result, nil
}

// BuildServer composes the full application including the HTTP transport.
func BuildServer(ctx context.Context, deps Dependencies) (Result, error) {
	result, err := Build(ctx, deps)
	if err != nil {
		return Result{}, err
	}

	closeOnError := func(wrapper error) (Result, error) {
		if closeErr := result.Cleanup(); closeErr != nil && deps.Logger != nil {
			deps.Logger.WithError(closeErr).Error("closing catalog after bootstrap failure")
		}
		return Result{}, wrapper
	}

	opts := apphttp.Options{
		RegionService: result.RegionService,
		HasKey:        result.Registry.HasServiceKey(),
		Commit:        deps.Config.Commit,
		Logger:        deps.Logger,
		SentryHub:     deps.SentryHub,
		Metrics:       result.Metrics,
		RateLimiter: apphttp.RateLimiterSettings{
			Burst:             deps.Config.RateLimit.Burst,
			RequestsPerSecond: deps.Config.RateLimit.RequestsPerSecond,
			ClientTTL:         deps.Config.RateLimit.ClientTTL,
		},
	}
	if result.Catalog != nil {
		opts.Catalog = result.Catalog
	}

	server, err := apphttp.NewServer(opts)
	if err != nil {
		return closeOnError(eris.Wrap(err, "initialising http server"))
	}

	dbCleanup := result.Cleanup
	result.HTTPServer = server
	result.Cleanup = func() error {
		server.Close()
		return dbCleanup()
	}

	return result, nil
}
