package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/http2"

	"regioncd/app/internal/metrics"
)

const (
	defaultHost       = "apis.data.go.kr"
	defaultPath       = "/1741000/StanReginCd/getStanReginCdList"
	defaultQueryParam = "locatadd_nm"
	defaultTimeout    = 10 * time.Second
	defaultRows       = 1000
	defaultUserAgent  = "regioncd"
	maxBodyBytes      = 8 << 20
	instrumentation   = "regioncd/registry"
)

// Transport selects the scheme used for a single registry request.
type Transport int

const (
	// Secure sends the request over https.
	Secure Transport = iota
	// Insecure sends the request over plain http.
	Insecure
)

// Scheme returns the URL scheme for the transport.
func (t Transport) Scheme() string {
	if t == Insecure {
		return "http"
	}
	return "https"
}

// ErrTransport marks a request that never produced a usable HTTP response.
var ErrTransport = eris.New("registry transport failure")

// ErrMissingServiceKey is returned when neither the client nor the request carries a service key.
var ErrMissingServiceKey = eris.New("registry service key is required")

// ClientOptions controls how the registry client is initialised.
type ClientOptions struct {
	ServiceKey string
	Host       string
	Path       string
	QueryParam string
	// SecureBaseURL and InsecureBaseURL override the URLs derived from Host and Path.
	SecureBaseURL   string
	InsecureBaseURL string
	Timeout         time.Duration
	Rows            int
	UserAgent       string
	HTTPClient      *http.Client
	Logger          *logrus.Logger
	Metrics         *metrics.Metrics
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// Request describes a single page query against the registry.
type Request struct {
	Query      string
	PageNo     int
	Rows       int
	ServiceKey string
}

// Client performs GET requests against the standard region code service.
type Client struct {
	httpClient  *http.Client
	logger      *logrus.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	serviceKey  string
	queryParam  string
	secureURL   string
	insecureURL string
	timeout     time.Duration
	rows        int
	userAgent   string
}

// NewClient constructs a Client from the provided options.
func NewClient(opts ClientOptions) (*Client, error) {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = defaultHost
	}
	if strings.Contains(host, "://") {
		return nil, eris.Errorf("registry host must not include a scheme: %s", host)
	}

	path := strings.TrimSpace(opts.Path)
	if path == "" {
		path = defaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	secureURL := strings.TrimSpace(opts.SecureBaseURL)
	if secureURL == "" {
		secureURL = "https://" + host + path
	}
	insecureURL := strings.TrimSpace(opts.InsecureBaseURL)
	if insecureURL == "" {
		insecureURL = "http://" + host + path
	}
	for _, raw := range []string{secureURL, insecureURL} {
		if _, err := url.Parse(raw); err != nil {
			return nil, eris.Wrapf(err, "invalid registry url: %s", raw)
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	rows := opts.Rows
	if rows <= 0 {
		rows = defaultRows
	}

	queryParam := strings.TrimSpace(opts.QueryParam)
	if queryParam == "" {
		queryParam = defaultQueryParam
	}

	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(opts.Logger)
	}

	provider := opts.TracerProvider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	tracer := provider.Tracer(instrumentation)

	return &Client{
		httpClient:  httpClient,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		tracer:      tracer,
		serviceKey:  strings.TrimSpace(opts.ServiceKey),
		queryParam:  queryParam,
		secureURL:   secureURL,
		insecureURL: insecureURL,
		timeout:     timeout,
		rows:        rows,
		userAgent:   userAgent,
	}, nil
}

func newHTTPClient(logger *logrus.Logger) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          16,
	}

	if _, err := http2.ConfigureTransports(transport); err != nil && logger != nil {
		logger.WithField("error", err.Error()).Warn("registry transport stays on http/1.1")
	}

	return &http.Client{Transport: transport}
}

// HasServiceKey reports whether the client was configured with a default service key.
func (c *Client) HasServiceKey() bool {
	return c.serviceKey != ""
}

// Rows returns the default page size.
func (c *Client) Rows() int {
	return c.rows
}

// Logger exposes the logger associated with the client.
func (c *Client) Logger() *logrus.Logger {
	return c.logger
}

// URL builds the full request URL for the transport.
func (c *Client) URL(req Request, transport Transport) (string, error) {
	key := strings.TrimSpace(req.ServiceKey)
	if key == "" {
		key = c.serviceKey
	}
	if key == "" {
		return "", ErrMissingServiceKey
	}

	page := req.PageNo
	if page <= 0 {
		page = 1
	}
	rows := req.Rows
	if rows <= 0 {
		rows = c.rows
	}

	values := url.Values{}
	values.Set("pageNo", strconv.Itoa(page))
	values.Set("numOfRows", strconv.Itoa(rows))
	values.Set("type", "JSON")
	values.Set(c.queryParam, req.Query)

	base := c.secureURL
	if transport == Insecure {
		base = c.insecureURL
	}

	// A literal '+' is already escaped as %2B, so the remaining '+' are spaces.
	encoded := strings.ReplaceAll(values.Encode(), "+", "%20")
	return fmt.Sprintf("%s?serviceKey=%s&%s", base, EncodeServiceKey(key), encoded), nil
}

// EncodeServiceKey escapes a decoded service key and leaves an already encoded one untouched.
func EncodeServiceKey(key string) string {
	key = strings.TrimSpace(key)
	if strings.Contains(key, "%") {
		return key
	}
	return url.QueryEscape(key)
}

// Fetch performs exactly one GET over the given transport and decodes the response.
// Failures before a 2xx response wrap ErrTransport; undecodable bodies wrap ErrMalformed.
func (c *Client) Fetch(ctx context.Context, req Request, transport Transport) (*Page, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, eris.New("query is required")
	}
	req.Query = query

	scheme := transport.Scheme()
	fields := logrus.Fields{"query": query, "scheme": scheme}

	target, err := c.URL(req, transport)
	if err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "registry.fetch", trace.WithAttributes(
		attribute.String("registry.scheme", scheme),
		attribute.Int("registry.page", max(req.PageNo, 1)),
	))
	defer span.End()
	if sc := span.SpanContext(); sc.IsValid() {
		fields["trace_id"] = sc.TraceID().String()
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	page, reason, err := c.do(ctx, target)
	elapsed := time.Since(started)
	c.metrics.ObserveUpstream(scheme, elapsed.Seconds(), reason)

	fields["duration_ms"] = float64(elapsed.Microseconds()) / 1000
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logWarn(fields, err, "registry request failed")
		return nil, err
	}

	page.Scheme = scheme
	span.SetAttributes(attribute.Int("registry.rows", len(page.Records)))
	if c.logger != nil {
		fields["rows"] = len(page.Records)
		fields["total_count"] = page.Head.TotalCount
		c.logger.WithFields(fields).Debug("registry request completed")
	}

	return page, nil
}

func (c *Client) do(ctx context.Context, target string) (*Page, string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "request", eris.Wrap(err, "building registry request")
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, "transport", eris.Wrapf(ErrTransport, "sending request: %v", redact(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, "status", eris.Wrapf(ErrTransport, "unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, "transport", eris.Wrapf(ErrTransport, "reading body: %v", redact(err))
	}

	page, err := Decode(body)
	if err != nil {
		return nil, "decode", err
	}

	return page, "", nil
}

// redact strips the query string from url errors so service keys never reach logs.
func redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if parsed, parseErr := url.Parse(urlErr.URL); parseErr == nil {
			parsed.RawQuery = ""
			return &url.Error{Op: urlErr.Op, URL: parsed.String(), Err: urlErr.Err}
		}
	}
	return err
}

func (c *Client) logWarn(fields logrus.Fields, err error, message string) {
	if c.logger == nil || err == nil {
		return
	}

	c.logger.WithFields(fields).WithField("error", err.Error()).Warn(message)
}
