package registry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"regioncd/app/internal/metrics"
)

func silentLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestURLEncodesQueryAndServiceKey(t *testing.T) {
	t.Parallel()

	client, err := NewClient(ClientOptions{ServiceKey: "abc/def+ghi==", Rows: 50})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	raw, err := client.URL(Request{Query: "서울특별시 종로구"}, Secure)
	if err != nil {
		t.Fatalf("URL returned error: %v", err)
	}

	if !strings.HasPrefix(raw, "https://apis.data.go.kr/1741000/StanReginCd/getStanReginCdList?serviceKey=abc%2Fdef%2Bghi%3D%3D&") {
		t.Fatalf("unexpected url prefix: %s", raw)
	}

	if !strings.Contains(raw, "locatadd_nm=%EC%84%9C%EC%9A%B8%ED%8A%B9%EB%B3%84%EC%8B%9C%20%EC%A2%85%EB%A1%9C%EA%B5%AC") {
		t.Fatalf("expected space encoded as %%20 in query, got %s", raw)
	}

	for _, fragment := range []string{"numOfRows=50", "pageNo=1", "type=JSON"} {
		if !strings.Contains(raw, fragment) {
			t.Fatalf("expected %q in url, got %s", fragment, raw)
		}
	}

	insecure, err := client.URL(Request{Query: "x", ServiceKey: "already%2Bencoded"}, Insecure)
	if err != nil {
		t.Fatalf("URL returned error: %v", err)
	}
	if !strings.HasPrefix(insecure, "http://apis.data.go.kr/") || !strings.Contains(insecure, "serviceKey=already%2Bencoded&") {
		t.Fatalf("expected pre-encoded key on http url, got %s", insecure)
	}
}

func TestURLRequiresServiceKey(t *testing.T) {
	t.Parallel()

	client, err := NewClient(ClientOptions{})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	if _, err := client.URL(Request{Query: "x"}, Secure); !eris.Is(err, ErrMissingServiceKey) {
		t.Fatalf("expected ErrMissingServiceKey, got %v", err)
	}
}

func TestNewClientRejectsHostWithScheme(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(ClientOptions{Host: "https://apis.data.go.kr"}); err == nil {
		t.Fatalf("expected error when host contains a scheme")
	}
}

func TestFetchDecodesResponse(t *testing.T) {
	t.Parallel()

	var gotQuery, gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("locatadd_nm")
		gotAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"region_cd":"1111010100","name":"종로구"}`)
	}))
	defer server.Close()

	m := metrics.New()
	client, err := NewClient(ClientOptions{
		ServiceKey:      "key",
		InsecureBaseURL: server.URL + "/codes",
		UserAgent:       "regioncd-test",
		Logger:          silentLogger(),
		Metrics:         m,
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	page, err := client.Fetch(context.Background(), Request{Query: " 서울특별시 종로구 "}, Insecure)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}

	if gotQuery != "서울특별시 종로구" {
		t.Fatalf("expected trimmed query to reach upstream, got %q", gotQuery)
	}
	if gotAgent != "regioncd-test" {
		t.Fatalf("expected user agent regioncd-test, got %q", gotAgent)
	}
	if page.Scheme != "http" {
		t.Fatalf("expected scheme http, got %q", page.Scheme)
	}
	if len(page.Records) != 1 || page.Records[0].RegionCode != "1111010100" {
		t.Fatalf("unexpected records %#v", page.Records)
	}
	if got := testutil.ToFloat64(m.UpstreamRequests.WithLabelValues("http")); got != 1 {
		t.Fatalf("expected one upstream request metric, got %v", got)
	}
}

func TestFetchTreatsErrorStatusAsTransportFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := NewClient(ClientOptions{ServiceKey: "key", InsecureBaseURL: server.URL, Logger: silentLogger()})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	_, err = client.Fetch(context.Background(), Request{Query: "종로구"}, Insecure)
	if !eris.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestFetchRecordsSpans(t *testing.T) {
	t.Parallel()

	var fail atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"region_cd":"1111010100","name":"종로구"}`)
	}))
	defer server.Close()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	client, err := NewClient(ClientOptions{
		ServiceKey:      "key",
		InsecureBaseURL: server.URL,
		Logger:          silentLogger(),
		TracerProvider:  provider,
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	if _, err := client.Fetch(context.Background(), Request{Query: "종로구", PageNo: 2}, Insecure); err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	fail.Store(true)
	if _, err := client.Fetch(context.Background(), Request{Query: "종로구"}, Insecure); !eris.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected two ended spans, got %d", len(spans))
	}

	ok, failed := spans[0], spans[1]
	for _, span := range spans {
		if span.Name() != "registry.fetch" {
			t.Fatalf("unexpected span name %q", span.Name())
		}
		if got := spanAttribute(span, "registry.scheme"); got.AsString() != "http" {
			t.Fatalf("expected registry.scheme http, got %q", got.Emit())
		}
	}
	if got := spanAttribute(ok, "registry.page"); got.AsInt64() != 2 {
		t.Fatalf("expected registry.page 2, got %s", got.Emit())
	}
	if got := spanAttribute(ok, "registry.rows"); got.AsInt64() != 1 {
		t.Fatalf("expected registry.rows 1, got %s", got.Emit())
	}
	if ok.Status().Code == codes.Error {
		t.Fatalf("expected successful span, got status %+v", ok.Status())
	}
	if failed.Status().Code != codes.Error {
		t.Fatalf("expected error status, got %+v", failed.Status())
	}
	if len(failed.Events()) == 0 || failed.Events()[0].Name != "exception" {
		t.Fatalf("expected recorded error event, got %+v", failed.Events())
	}
}

func spanAttribute(span sdktrace.ReadOnlySpan, key attribute.Key) attribute.Value {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value
		}
	}
	return attribute.Value{}
}

func TestFetchReportsMalformedBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"StanReginCd":`)
	}))
	defer server.Close()

	client, err := NewClient(ClientOptions{ServiceKey: "key", InsecureBaseURL: server.URL, Logger: silentLogger()})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	_, err = client.Fetch(context.Background(), Request{Query: "종로구"}, Insecure)
	if !eris.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if eris.Is(err, ErrTransport) {
		t.Fatalf("malformed body must not be reported as a transport failure")
	}
}

func TestFetchHonoursTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client, err := NewClient(ClientOptions{
		ServiceKey:      "key",
		InsecureBaseURL: server.URL,
		Timeout:         50 * time.Millisecond,
		Logger:          silentLogger(),
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	_, err = client.Fetch(context.Background(), Request{Query: "종로구"}, Insecure)
	if !eris.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport on timeout, got %v", err)
	}
}

func TestFetchErrorsDoNotLeakServiceKey(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	addr := server.URL
	server.Close()

	client, err := NewClient(ClientOptions{ServiceKey: "very-secret-key", InsecureBaseURL: addr, Logger: silentLogger()})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	_, err = client.Fetch(context.Background(), Request{Query: "종로구"}, Insecure)
	if !eris.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport for refused connection, got %v", err)
	}
	if strings.Contains(err.Error(), "very-secret-key") {
		t.Fatalf("expected service key to be redacted, got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("expected closed server to receive no requests")
	}
}
