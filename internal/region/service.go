package region

import (
	"context"

	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"regioncd/app/internal/metrics"
	"regioncd/app/internal/registry"
)

var (
	// ErrEmptyQuery is returned when the query is blank after normalisation.
	ErrEmptyQuery = eris.New("query is required")
	// ErrUpstreamUnreachable means neither the https nor the http attempt produced a response.
	ErrUpstreamUnreachable = eris.New("upstream registry unreachable")
	// ErrMalformedResponse means the registry answered but the body could not be decoded into records.
	ErrMalformedResponse = eris.New("malformed upstream response")
	// ErrMissingServiceKey is returned when no registry service key is available.
	ErrMissingServiceKey = registry.ErrMissingServiceKey
)

// Fetcher performs a single registry request over one transport.
type Fetcher interface {
	Fetch(ctx context.Context, req registry.Request, transport registry.Transport) (*registry.Page, error)
}

// Service exposes region code lookups.
type Service interface {
	Lookup(ctx context.Context, query string, opts LookupOptions) ([]Result, error)
	ScanAll(ctx context.Context, prefixes []string, opts LookupOptions) ([]Result, *ScanReport, error)
	Resolve(ctx context.Context, query string, opts ResolveOptions) (*Resolution, error)
}

// LookupOptions tunes a single registry query.
type LookupOptions struct {
	PageNo     int
	Rows       int
	ServiceKey string
}

// Options configures the region service.
type Options struct {
	Fetcher Fetcher
	// DisableInsecureFallback stops the single http retry after an https transport failure.
	DisableInsecureFallback bool
	Logger                  *logrus.Logger
	SentryHub               *sentry.Hub
	Metrics                 *metrics.Metrics
}

type service struct {
	fetcher       Fetcher
	allowInsecure bool
	logger        *logrus.Logger
	sentryHub     *sentry.Hub
	metrics       *metrics.Metrics
}

var _ Service = (*service)(nil)

// NewService wires the region service with its dependencies.
func NewService(opts Options) (Service, error) {
	if opts.Fetcher == nil {
		return nil, eris.New("registry fetcher is required")
	}

	return &service{
		fetcher:       opts.Fetcher,
		allowInsecure: !opts.DisableInsecureFallback,
		logger:        opts.Logger,
		sentryHub:     opts.SentryHub,
		metrics:       opts.Metrics,
	}, nil
}

// Lookup queries the registry and returns every record in upstream order.
func (s *service) Lookup(ctx context.Context, query string, opts LookupOptions) ([]Result, error) {
	page, err := s.lookupPage(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	return fromRecords(page.Records), nil
}

// lookupPage sends the query over https and retries exactly once over http on a transport failure.
func (s *service) lookupPage(ctx context.Context, query string, opts LookupOptions) (*registry.Page, error) {
	normalized := NormalizeQuery(query)
	if normalized == "" {
		return nil, ErrEmptyQuery
	}

	req := registry.Request{
		Query:      normalized,
		PageNo:     opts.PageNo,
		Rows:       opts.Rows,
		ServiceKey: opts.ServiceKey,
	}

	page, secureErr := s.fetcher.Fetch(ctx, req, registry.Secure)
	if secureErr == nil {
		return page, nil
	}

	if err := classify(normalized, secureErr); !eris.Is(err, ErrUpstreamUnreachable) {
		return nil, err
	}

	if !s.allowInsecure {
		return nil, eris.Wrapf(ErrUpstreamUnreachable, "https lookup for %q failed: %v", normalized, secureErr)
	}

	s.metrics.IncrementFallback()
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"query": normalized,
			"error": secureErr.Error(),
		}).Warn("https registry request failed, retrying over http")
	}

	page, insecureErr := s.fetcher.Fetch(ctx, req, registry.Insecure)
	if insecureErr == nil {
		return page, nil
	}

	if err := classify(normalized, insecureErr); !eris.Is(err, ErrUpstreamUnreachable) {
		return nil, err
	}

	return nil, eris.Wrapf(ErrUpstreamUnreachable, "lookup for %q failed over https (%v) and http (%v)", normalized, secureErr, insecureErr)
}

// classify maps registry errors onto the service error kinds.
func classify(query string, err error) error {
	switch {
	case eris.Is(err, registry.ErrMissingServiceKey):
		return ErrMissingServiceKey
	case eris.Is(err, registry.ErrMalformed):
		return eris.Wrapf(ErrMalformedResponse, "lookup for %q: %v", query, err)
	default:
		return eris.Wrapf(ErrUpstreamUnreachable, "lookup for %q: %v", query, err)
	}
}

func (s *service) recordError(fields logrus.Fields, err error, message string) {
	if err == nil {
		return
	}

	if s.logger != nil {
		entry := s.logger.WithField("error", err.Error())
		if len(fields) > 0 {
			entry = entry.WithFields(fields)
		}
		entry.Error(message)
	}

	if s.sentryHub != nil {
		s.sentryHub.CaptureException(err)
	}
}
