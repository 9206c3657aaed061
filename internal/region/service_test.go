package region

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"

	"regioncd/app/internal/metrics"
	"regioncd/app/internal/registry"
)

func silentLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fetchCall struct {
	Query     string
	Transport registry.Transport
}

// stubFetcher answers per transport and records every call.
type stubFetcher struct {
	mu      sync.Mutex
	calls   []fetchCall
	respond func(req registry.Request, transport registry.Transport) (*registry.Page, error)
}

func (f *stubFetcher) Fetch(_ context.Context, req registry.Request, transport registry.Transport) (*registry.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{Query: req.Query, Transport: transport})
	f.mu.Unlock()
	return f.respond(req, transport)
}

func (f *stubFetcher) transports() []registry.Transport {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]registry.Transport, 0, len(f.calls))
	for _, call := range f.calls {
		out = append(out, call.Transport)
	}
	return out
}

func (f *stubFetcher) queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, call := range f.calls {
		out = append(out, call.Query)
	}
	return out
}

func pageOf(scheme string, records ...registry.Record) *registry.Page {
	if records == nil {
		records = []registry.Record{}
	}
	return &registry.Page{Records: records, Scheme: scheme}
}

func record(code, name string) registry.Record {
	return registry.Record{RegionCode: registry.Text(code), AddressName: registry.Text(name)}
}

func newTestService(t *testing.T, fetcher Fetcher, opts ...func(*Options)) Service {
	t.Helper()

	options := Options{Fetcher: fetcher, Logger: silentLogger()}
	for _, apply := range opts {
		apply(&options)
	}

	svc, err := NewService(options)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	return svc
}

func TestNewServiceRequiresFetcher(t *testing.T) {
	t.Parallel()

	if _, err := NewService(Options{}); err == nil {
		t.Fatalf("expected error when fetcher is missing")
	}
}

func TestLookupRejectsEmptyQuery(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{respond: func(registry.Request, registry.Transport) (*registry.Page, error) {
		t.Fatalf("fetcher must not be called for empty queries")
		return nil, nil
	}}
	svc := newTestService(t, fetcher)

	if _, err := svc.Lookup(context.Background(), "  \t ", LookupOptions{}); !eris.Is(err, ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestLookupPreservesUpstreamOrder(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{respond: func(registry.Request, registry.Transport) (*registry.Page, error) {
		return pageOf("https",
			record("1111010200", "서울특별시 종로구 신교동"),
			record("1111010100", "서울특별시 종로구 청운동"),
		), nil
	}}
	svc := newTestService(t, fetcher)

	results, err := svc.Lookup(context.Background(), "종로구", LookupOptions{})
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}

	expected := []Result{
		{Name: "서울특별시 종로구 신교동", Code: "1111010200"},
		{Name: "서울특별시 종로구 청운동", Code: "1111010100"},
	}
	if !reflect.DeepEqual(results, expected) {
		t.Fatalf("expected %v, got %v", expected, results)
	}

	if got := fetcher.transports(); !reflect.DeepEqual(got, []registry.Transport{registry.Secure}) {
		t.Fatalf("expected a single https call, got %v", got)
	}
}

func TestLookupFallsBackOnceOnTransportFailure(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{respond: func(_ registry.Request, transport registry.Transport) (*registry.Page, error) {
		if transport == registry.Secure {
			return nil, eris.Wrap(registry.ErrTransport, "tls handshake failure")
		}
		return pageOf("http", record("1111010100", "종로구")), nil
	}}
	m := metrics.New()
	svc := newTestService(t, fetcher, func(o *Options) { o.Metrics = m })

	results, err := svc.Lookup(context.Background(), "종로구", LookupOptions{})
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}

	if len(results) != 1 || results[0].Code != "1111010100" {
		t.Fatalf("unexpected results %v", results)
	}

	expected := []registry.Transport{registry.Secure, registry.Insecure}
	if got := fetcher.transports(); !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected transports %v, got %v", expected, got)
	}

	if got := testutil.ToFloat64(m.TransportFallback); got != 1 {
		t.Fatalf("expected one fallback recorded, got %v", got)
	}
}

func TestLookupFailsWhenBothTransportsFail(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{respond: func(registry.Request, registry.Transport) (*registry.Page, error) {
		return nil, eris.Wrap(registry.ErrTransport, "connection refused")
	}}
	svc := newTestService(t, fetcher)

	_, err := svc.Lookup(context.Background(), "종로구", LookupOptions{})
	if !eris.Is(err, ErrUpstreamUnreachable) {
		t.Fatalf("expected ErrUpstreamUnreachable, got %v", err)
	}

	if calls := len(fetcher.transports()); calls != 2 {
		t.Fatalf("expected exactly two attempts, got %d", calls)
	}
}

func TestLookupDoesNotRetryMalformedResponse(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{respond: func(registry.Request, registry.Transport) (*registry.Page, error) {
		return nil, eris.Wrap(registry.ErrMalformed, "decoding response object")
	}}
	svc := newTestService(t, fetcher)

	_, err := svc.Lookup(context.Background(), "종로구", LookupOptions{})
	if !eris.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}

	if calls := len(fetcher.transports()); calls != 1 {
		t.Fatalf("expected no fallback for malformed bodies, got %d calls", calls)
	}
}

func TestLookupReportsMalformedInsecureResponse(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{respond: func(_ registry.Request, transport registry.Transport) (*registry.Page, error) {
		if transport == registry.Secure {
			return nil, eris.Wrap(registry.ErrTransport, "connection refused")
		}
		return nil, eris.Wrap(registry.ErrMalformed, "unexpected xml body")
	}}
	svc := newTestService(t, fetcher)

	if _, err := svc.Lookup(context.Background(), "종로구", LookupOptions{}); !eris.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestLookupWithoutFallback(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{respond: func(registry.Request, registry.Transport) (*registry.Page, error) {
		return nil, eris.Wrap(registry.ErrTransport, "connection refused")
	}}
	svc := newTestService(t, fetcher, func(o *Options) { o.DisableInsecureFallback = true })

	if _, err := svc.Lookup(context.Background(), "종로구", LookupOptions{}); !eris.Is(err, ErrUpstreamUnreachable) {
		t.Fatalf("expected ErrUpstreamUnreachable, got %v", err)
	}

	if got := fetcher.transports(); !reflect.DeepEqual(got, []registry.Transport{registry.Secure}) {
		t.Fatalf("expected only the https attempt, got %v", got)
	}
}

func TestLookupPropagatesMissingServiceKey(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{respond: func(registry.Request, registry.Transport) (*registry.Page, error) {
		return nil, registry.ErrMissingServiceKey
	}}
	svc := newTestService(t, fetcher)

	if _, err := svc.Lookup(context.Background(), "종로구", LookupOptions{}); !eris.Is(err, ErrMissingServiceKey) {
		t.Fatalf("expected ErrMissingServiceKey, got %v", err)
	}
	if calls := len(fetcher.transports()); calls != 1 {
		t.Fatalf("expected no fallback without a key, got %d calls", calls)
	}
}

func TestLookupNormalizesDecomposedHangul(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{respond: func(registry.Request, registry.Transport) (*registry.Page, error) {
		return pageOf("https"), nil
	}}
	svc := newTestService(t, fetcher)

	// "종로구" typed as conjoining jamo.
	decomposed := norm.NFD.String("종로구")
	if decomposed == "종로구" {
		t.Fatalf("expected a decomposed input")
	}
	if _, err := svc.Lookup(context.Background(), "  서울특별시   "+decomposed, LookupOptions{}); err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}

	if got := fetcher.queries(); len(got) != 1 || got[0] != "서울특별시 종로구" {
		t.Fatalf("expected NFC normalised query, got %q", got)
	}
}

func TestLookupAgainstStubUpstream(t *testing.T) {
	t.Parallel()

	var insecureHits atomic.Int32
	insecure := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		insecureHits.Add(1)
		if q := r.URL.Query().Get("locatadd_nm"); q != "서울특별시 종로구" {
			t.Errorf("unexpected upstream query %q", q)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"region_cd":"1111010100","name":"종로구"}`)
	}))
	defer insecure.Close()

	refused := httptest.NewServer(http.NotFoundHandler())
	secureURL := "https://" + refused.Listener.Addr().String()
	refused.Close()

	client, err := registry.NewClient(registry.ClientOptions{
		ServiceKey:      "key",
		SecureBaseURL:   secureURL,
		InsecureBaseURL: insecure.URL,
		Logger:          silentLogger(),
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	svc := newTestService(t, client)

	results, err := svc.Lookup(context.Background(), "서울특별시 종로구", LookupOptions{})
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}

	if len(results) != 1 || results[0].Code != "1111010100" || results[0].Name != "종로구" {
		t.Fatalf("expected one result with code 1111010100, got %v", results)
	}

	if hits := insecureHits.Load(); hits != 1 {
		t.Fatalf("expected exactly one http retry, got %d", hits)
	}
}

func TestLookupEmptyMatchListFromStubUpstream(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"StanReginCd":[{"head":[{"totalCount":0}]},{"row":[]}]}`)
	}))
	defer upstream.Close()

	client, err := registry.NewClient(registry.ClientOptions{
		ServiceKey:    "key",
		SecureBaseURL: upstream.URL,
		HTTPClient:    upstream.Client(),
		Logger:        silentLogger(),
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	svc := newTestService(t, client)

	results, err := svc.Lookup(context.Background(), "없는동", LookupOptions{})
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if results == nil || len(results) != 0 {
		t.Fatalf("expected empty non-nil results, got %#v", results)
	}
}

func TestLookupBothTransportsUnreachable(t *testing.T) {
	t.Parallel()

	closed := httptest.NewServer(http.NotFoundHandler())
	addr := closed.Listener.Addr().String()
	closed.Close()

	client, err := registry.NewClient(registry.ClientOptions{
		ServiceKey:      "key",
		SecureBaseURL:   "https://" + addr,
		InsecureBaseURL: "http://" + addr,
		Logger:          silentLogger(),
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	svc := newTestService(t, client)

	if _, err := svc.Lookup(context.Background(), "서울특별시 종로구", LookupOptions{}); !eris.Is(err, ErrUpstreamUnreachable) {
		t.Fatalf("expected ErrUpstreamUnreachable, got %v", err)
	}
}
