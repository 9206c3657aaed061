package main

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"regioncd/app/internal/app/bootstrap"
	"regioncd/app/internal/config"
	applog "regioncd/app/internal/log"
	"regioncd/app/internal/tracing"
	"regioncd/app/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return eris.Wrap(err, "failure loading configuration")
	}

	logger, err := applog.NewLogger(cfg.LogLevel)
	if err != nil {
		return eris.Wrap(err, "failure initialising logger")
	}

	build := version.Get(cfg.Commit)
	sentryHub, flush, err := applog.InitSentry(logger, applog.SentrySettings{
		DSN:          cfg.SentryDSN,
		Environment:  cfg.Environment,
		Release:      "regioncd@" + build.Version,
		Commit:       build.Commit,
		RegistryHost: cfg.Registry.Host,
	})
	if err != nil {
		return eris.Wrap(err, "failure initialising sentry")
	}
	defer flush()

	tracerProvider, err := tracing.NewProvider(tracing.Options{
		Exporter:    cfg.Tracing.Exporter,
		Version:     build.Version,
		Environment: cfg.Environment,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return eris.Wrap(err, "failure initialising tracing")
	}
	otel.SetTracerProvider(tracerProvider)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx, tracerProvider); err != nil {
			logger.WithError(err).Warn("flushing spans")
		}
	}()

	app, err := bootstrap.BuildServer(ctx, bootstrap.Dependencies{
		Config:         *cfg,
		Logger:         logger,
		SentryHub:      sentryHub,
		TracerProvider: tracerProvider,
	})
	if err != nil {
		return eris.Wrap(err, "bootstrapping application")
	}
	defer func() {
		if closeErr := app.Cleanup(); closeErr != nil {
			logger.WithError(closeErr).Error("releasing application resources")
		}
	}()

	if !cfg.HasServiceKey() {
		logger.Warn("PUBLICDATA_KEY is not set; lookups need ?key= on every request")
	}

	httpServer := &stdhttp.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", cfg.ServerPort),
		Handler:           app.HTTPServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.WithFields(logrus.Fields{
		"addr":     httpServer.Addr,
		"catalog":  app.Catalog != nil,
		"fallback": cfg.Registry.InsecureFallback,
		"traces":   cfg.Tracing.Exporter,
	}).Info("starting http server")

	serverErrCh := make(chan error, 1)
	go func() {
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErrCh <- err
		} else {
			serverErrCh <- nil
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErrCh:
		if err != nil {
			return eris.Wrap(err, "http server error")
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "shutting down http server")
	}

	logger.Info("http server shut down cleanly")
	return nil
}
