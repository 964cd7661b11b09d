// Command xsettled runs the settlement receiver behind an HTTP ingress.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/vitwit/xsettle"
	"github.com/vitwit/xsettle/api"
	"github.com/vitwit/xsettle/config"
	"github.com/vitwit/xsettle/logger"
	"github.com/vitwit/xsettle/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "xsettled: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.NewZapLogger(cfg.LogLevel, "xsettled")
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []xsettle.Option{xsettle.WithLogger(log)}
	apiOpts := []api.Option{
		api.WithLogger(logger.With(log, map[string]any{"component": "api"})),
		api.WithRequestTimeout(cfg.API.RequestTimeout.Std()),
	}

	if !cfg.Metrics.Disabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rec, err := metrics.NewPrometheusRecorder(reg)
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		opts = append(opts, xsettle.WithMetrics(rec))
		apiOpts = append(apiOpts, api.WithMetrics(reg, cfg.Metrics.Path))
	}

	settler, err := xsettle.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer settler.Close()

	if cfg.API.JWTKey != "" {
		apiOpts = append(apiOpts, api.WithAuth(api.NewAuthenticator([]byte(cfg.API.JWTKey), cfg.API.JWTIssuer)))
	} else if cfg.Receiver.Router != "" {
		log.Warn("no api jwt key configured; relays cannot authenticate as the router", nil)
	}
	if store := settler.Store(); store != nil {
		apiOpts = append(apiOpts, api.WithLookup(store))
	}

	srv := &http.Server{
		Addr:              cfg.API.Address,
		Handler:           api.NewRouter(settler, apiOpts...),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", map[string]any{"address": cfg.API.Address, "version": xsettle.Version})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout.Std())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
