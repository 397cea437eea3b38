package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"contactsvc/internal/app"
	"contactsvc/internal/contact/handler"
	"contactsvc/internal/platform/config"
	"contactsvc/internal/platform/httpserver"
	"contactsvc/internal/platform/logger"
	"contactsvc/internal/platform/metrics"
	"contactsvc/pkg/platform/httputil"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal/contact.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Log)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := app.Build(ctx, cfg, log, reg)
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("closing dependencies failed", "error", err)
		}
	}()

	metricsHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	router := chi.NewRouter()
	router.Get("/health", healthHandler(a))
	handler.New(a.Service, log, metrics.NewWithRegistry(reg)).Register(router)

	servers := []*http.Server{httpserver.New(cfg.Server.Addr, router)}
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		servers = append(servers, httpserver.New(cfg.Server.MetricsAddr, mux))
	} else {
		router.Handle("/metrics", metricsHandler)
	}

	log.Info("starting contactsvc",
		"addr", cfg.Server.Addr,
		"driver", cfg.Database.Driver,
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			return httpserver.Run(gctx, srv, cfg.Server.ShutdownTimeout, log)
		})
	}
	return g.Wait()
}

func healthHandler(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.Health(ctx); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
