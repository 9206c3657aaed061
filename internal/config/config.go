package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Config holds runtime configuration values for the region code server and CLI.
type Config struct {
	ServerPort    int
	LogLevel      string
	SentryDSN     string
	Environment   string
	ShutdownGrace time.Duration
	Commit        string
	CatalogDBPath string
	Registry      RegistryConfig
	RateLimit     RateLimitConfig
	Tracing       TracingConfig
}

// RegistryConfig describes the upstream standard region code API.
type RegistryConfig struct {
	ServiceKey       string
	Host             string
	Path             string
	Timeout          time.Duration
	Rows             int
	InsecureFallback bool
}

// RateLimitConfig configures the per-client HTTP rate limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	ClientTTL         time.Duration
}

// TracingConfig selects the span exporter and sampling ratio.
type TracingConfig struct {
	// Exporter is "none" or "stdout".
	Exporter    string
	SampleRatio float64
}

const (
	defaultServerPort      = 8080
	defaultLogLevel        = "info"
	defaultEnvironment     = "development"
	defaultShutdownGrace   = 10 * time.Second
	defaultRegistryHost    = "apis.data.go.kr"
	defaultRegistryPath    = "/1741000/StanReginCd/getStanReginCdList"
	defaultRegistryTimeout = 10 * time.Second
	defaultRegistryRows    = 1000
	defaultRateLimitRPS    = 5.0
	defaultRateLimitBurst  = 10
	defaultRateLimitTTL    = 10 * time.Minute
	maxRegistryRowsPerPage = 1000
	serviceKeyEnv          = "PUBLICDATA_KEY"
	commitEnv              = "VERCEL_GIT_COMMIT_SHA"
	defaultTracesExporter  = "none"
	defaultTracesRatio     = 1.0
)

// Load reads configuration values from environment variables, applying defaults where necessary.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:      getEnv("LOG_LEVEL", defaultLogLevel),
		SentryDSN:     os.Getenv("SENTRY_DSN"),
		Environment:   getEnv("ENV", defaultEnvironment),
		ShutdownGrace: defaultShutdownGrace,
		Commit:        strings.TrimSpace(os.Getenv(commitEnv)),
		CatalogDBPath: strings.TrimSpace(os.Getenv("CATALOG_DB_PATH")),
		Registry: RegistryConfig{
			ServiceKey: strings.TrimSpace(os.Getenv(serviceKeyEnv)),
			Host:       getEnv("REGISTRY_HOST", defaultRegistryHost),
			Path:       getEnv("REGISTRY_PATH", defaultRegistryPath),
		},
	}

	portValue := getEnv("SERVER_PORT", strconv.Itoa(defaultServerPort))
	port, err := strconv.Atoi(portValue)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid SERVER_PORT value: %s", portValue)
	}
	cfg.ServerPort = port

	if cfg.Registry.Timeout, err = parseDuration("REGISTRY_TIMEOUT", defaultRegistryTimeout); err != nil {
		return nil, err
	}

	rowsValue := getEnv("REGISTRY_ROWS", strconv.Itoa(defaultRegistryRows))
	rows, err := strconv.Atoi(rowsValue)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid REGISTRY_ROWS value: %s", rowsValue)
	}
	if rows <= 0 || rows > maxRegistryRowsPerPage {
		return nil, eris.Errorf("invalid REGISTRY_ROWS value: %s (must be between 1 and %d)", rowsValue, maxRegistryRowsPerPage)
	}
	cfg.Registry.Rows = rows

	fallbackValue := getEnv("REGISTRY_INSECURE_FALLBACK", "true")
	fallback, err := strconv.ParseBool(fallbackValue)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid REGISTRY_INSECURE_FALLBACK value: %s", fallbackValue)
	}
	cfg.Registry.InsecureFallback = fallback

	rpsValue := getEnv("RATE_LIMIT_RPS", strconv.FormatFloat(defaultRateLimitRPS, 'f', -1, 64))
	rps, err := strconv.ParseFloat(rpsValue, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid RATE_LIMIT_RPS value: %s", rpsValue)
	}
	cfg.RateLimit.RequestsPerSecond = rps

	burstValue := getEnv("RATE_LIMIT_BURST", strconv.Itoa(defaultRateLimitBurst))
	burst, err := strconv.Atoi(burstValue)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid RATE_LIMIT_BURST value: %s", burstValue)
	}
	cfg.RateLimit.Burst = burst

	if cfg.RateLimit.ClientTTL, err = parseDuration("RATE_LIMIT_TTL", defaultRateLimitTTL); err != nil {
		return nil, err
	}

	cfg.Tracing.Exporter = strings.ToLower(getEnv("OTEL_TRACES_EXPORTER", defaultTracesExporter))
	ratioValue := getEnv("OTEL_TRACES_SAMPLER_ARG", strconv.FormatFloat(defaultTracesRatio, 'f', -1, 64))
	ratio, err := strconv.ParseFloat(ratioValue, 64)
	if err != nil || ratio < 0 || ratio > 1 {
		return nil, eris.Errorf("invalid OTEL_TRACES_SAMPLER_ARG value: %s (must be between 0 and 1)", ratioValue)
	}
	cfg.Tracing.SampleRatio = ratio

	return cfg, nil
}

// HasServiceKey reports whether an upstream service key was configured.
func (c *Config) HasServiceKey() bool {
	return c != nil && c.Registry.ServiceKey != ""
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}

	// Bare integers are treated as seconds so `REGISTRY_TIMEOUT=12` keeps working.
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0, eris.Errorf("invalid %s value: %s", key, raw)
		}
		return time.Duration(seconds) * time.Second, nil
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, eris.Wrapf(err, "invalid %s value: %s", key, raw)
	}
	if value <= 0 {
		return 0, eris.Errorf("invalid %s value: %s", key, raw)
	}

	return value, nil
}
