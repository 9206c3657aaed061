package log

import (
	"net/url"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	sentrylogrus "github.com/getsentry/sentry-go/logrus"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

const (
	defaultFlushTimeout = 2 * time.Second
	filteredValue       = "[Filtered]"
)

// serviceKeyParams are the query parameters that carry a data.go.kr service key.
var serviceKeyParams = []string{"key", "serviceKey"}

// SentrySettings represents the configuration required to bootstrap Sentry.
type SentrySettings struct {
	DSN          string
	Environment  string
	Release      string
	Commit       string
	RegistryHost string
	// FlushTimeout bounds the flush on shutdown; two seconds when zero.
	FlushTimeout time.Duration
}

// InitSentry wires up Sentry exception logging and connects it to the provided logrus logger.
// An empty DSN disables Sentry and returns a nil hub with a no-op flush.
// Events never carry service keys from request query strings.
func InitSentry(logger *logrus.Logger, settings SentrySettings) (*sentry.Hub, func(), error) {
	if settings.DSN == "" {
		return nil, func() {}, nil
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         settings.DSN,
		Environment: settings.Environment,
		Release:     settings.Release,
		BeforeSend:  scrubServiceKeys,
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "error initializing sentry client")
	}

	hub := sentry.NewHub(client, sentry.NewScope())
	hub.Scope().SetTags(sentryTags(settings))

	hook := sentrylogrus.NewLogHookFromClient([]logrus.Level{
		logrus.ErrorLevel,
		logrus.FatalLevel,
		logrus.PanicLevel,
	}, client)
	logger.AddHook(hook)

	timeout := settings.FlushTimeout
	if timeout <= 0 {
		timeout = defaultFlushTimeout
	}
	flush := func() {
		hub.Flush(timeout)
	}

	return hub, flush, nil
}

func sentryTags(settings SentrySettings) map[string]string {
	tags := map[string]string{"service": "regioncd"}
	if commit := strings.TrimSpace(settings.Commit); commit != "" {
		tags["commit"] = commit
	}
	if host := strings.TrimSpace(settings.RegistryHost); host != "" {
		tags["registry_host"] = host
	}
	return tags
}

func scrubServiceKeys(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	if event == nil || event.Request == nil {
		return event
	}

	event.Request.QueryString = scrubQuery(event.Request.QueryString)
	if base, query, found := strings.Cut(event.Request.URL, "?"); found {
		event.Request.URL = base + "?" + scrubQuery(query)
	}

	return event
}

// scrubQuery replaces service key values; unparsable queries are dropped.
func scrubQuery(raw string) string {
	if raw == "" {
		return raw
	}

	values, err := url.ParseQuery(raw)
	if err != nil {
		return ""
	}

	changed := false
	for _, name := range serviceKeyParams {
		if values.Has(name) {
			values.Set(name, filteredValue)
			changed = true
		}
	}
	if !changed {
		return raw
	}

	return values.Encode()
}
