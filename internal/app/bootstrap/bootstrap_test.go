package bootstrap

import (
	"context"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"regioncd/app/internal/config"
)

func testConfig(host string) config.Config {
	return config.Config{
		Registry: config.RegistryConfig{
			ServiceKey:       "test-key",
			Host:             host,
			Path:             "/1741000/StanReginCd/getStanReginCdList",
			Timeout:          2 * time.Second,
			Rows:             100,
			InsecureFallback: true,
		},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 50, Burst: 50, ClientTTL: time.Minute},
	}
}

func silentLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestBuildWithoutCatalog(t *testing.T) {
	t.Parallel()

	result, err := Build(context.Background(), Dependencies{Config: testConfig("apis.data.go.kr"), Logger: silentLogger()})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	t.Cleanup(func() { _ = result.Cleanup() })

	if result.Catalog != nil || result.Database != nil {
		t.Fatalf("expected catalog to stay disabled without a path")
	}
	if result.RegionService == nil || result.Metrics == nil || !result.Registry.HasServiceKey() {
		t.Fatalf("expected region service, metrics and keyed registry client")
	}
}

func TestBuildRejectsHostWithScheme(t *testing.T) {
	t.Parallel()

	if _, err := Build(context.Background(), Dependencies{Config: testConfig("https://apis.data.go.kr")}); err == nil {
		t.Fatalf("expected error for registry host with scheme")
	}
}

func TestBuildServerServesRegionLookups(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewTLSServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		if r.URL.Query().Get("serviceKey") != "test-key" {
			t.Errorf("expected service key to be forwarded, got %q", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, `{"StanReginCd":[{"head":[{"totalCount":1},{"RESULT":{"resultCode":"INFO-0","resultMsg":"NORMAL SERVICE"}}]},{"row":[{"region_cd":"1111010100","locatadd_nm":"서울특별시 종로구 청운동"}]}]}`)
	}))
	t.Cleanup(upstream.Close)

	cfg := testConfig(strings.TrimPrefix(upstream.URL, "https://"))
	cfg.CatalogDBPath = filepath.Join(t.TempDir(), "catalog.db")

	result, err := BuildServer(context.Background(), Dependencies{
		Config:     cfg,
		Logger:     silentLogger(),
		HTTPClient: upstream.Client(),
	})
	if err != nil {
		t.Fatalf("BuildServer returned error: %v", err)
	}
	t.Cleanup(func() {
		if cleanupErr := result.Cleanup(); cleanupErr != nil {
			t.Errorf("cleanup failed: %v", cleanupErr)
		}
	})

	rec := httptest.NewRecorder()
	result.HTTPServer.ServeHTTP(rec, httptest.NewRequest("GET", "/api/region?q="+url.QueryEscape("종로구 청운동"), nil))
	if rec.Code != 200 || !strings.Contains(rec.Body.String(), "1111010100") {
		t.Fatalf("unexpected region response %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	result.HTTPServer.ServeHTTP(rec, httptest.NewRequest("GET", "/api/healthz", nil))
	if rec.Code != 200 || !strings.Contains(rec.Body.String(), `"catalog":"ok"`) {
		t.Fatalf("unexpected health response %d: %s", rec.Code, rec.Body.String())
	}
}
