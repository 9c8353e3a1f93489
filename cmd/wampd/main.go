package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wampcore/wampgo/internal/auth"
	"github.com/wampcore/wampgo/internal/config"
	"github.com/wampcore/wampgo/internal/eventmirror"
	"github.com/wampcore/wampgo/internal/logging"
	"github.com/wampcore/wampgo/internal/metrics"
	"github.com/wampcore/wampgo/internal/server"
	"github.com/wampcore/wampgo/internal/sysmetrics"
	"github.com/wampcore/wampgo/pkg/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() // nolint:errcheck

	metricsRegistry := metrics.NewRegistry()

	opts := router.Options{
		AutoCreateRealms: cfg.Router.AutoCreateRealms,
		Policy: router.Policy{
			DiscloseCaller:    cfg.Router.DiscloseCaller,
			DisclosePublisher: cfg.Router.DisclosePublisher,
		},
		Logger:        logging.Component(logger, "router"),
		OnSessionDown: func() { metricsRegistry.Sessions.Active.Dec() },
		Stats: router.StatsHooks{
			MessageIn:       metricsRegistry.Routing.MessagesIn.Inc,
			PublishReceived: metricsRegistry.Routing.PublishesReceived.Inc,
			EventDelivered:  metricsRegistry.Routing.EventsDelivered.Inc,
			ProtocolError:   metricsRegistry.Routing.ProtocolErrors.Inc,
			CallRouted:      metricsRegistry.Calls.CallsRouted.Inc,
			CallCanceled:    metricsRegistry.Calls.CallsCanceled.Inc,
			CallCompleted:   metricsRegistry.Calls.CallLatency.Observe,
		},
	}
	if cfg.Auth.JWTSecret != "" {
		opts.Authenticator = auth.NewTicketAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.TokenDuration)
	}
	rtr := router.New(opts)

	var mirror *eventmirror.Mirror
	if cfg.NATS.URL != "" {
		mirror, err = eventmirror.New(cfg.NATS, logging.Component(logger, "mirror"))
		if err != nil {
			logger.Fatal("event mirror setup failed", zap.Error(err))
		}
		defer mirror.Close()
	}

	for _, name := range cfg.Router.Realms {
		realm := rtr.AddRealm(name)
		if mirror != nil {
			realm.SetEventMirror(mirror.Hook())
		}
		metricsRegistry.Sessions.RealmsActive.Inc()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, logging.Component(logger, "server"), rtr, metricsRegistry)
	if err := srv.Start(ctx); err != nil {
		logger.Fatal("server start failed", zap.Error(err))
	}

	sampler := sysmetrics.NewSampler(10*time.Second, logging.Component(logger, "sysmetrics"))
	go sampler.Run(ctx)

	httpErrCh := make(chan error, 1)
	if cfg.Metrics.Enabled {
		go func() {
			httpErrCh <- runAdminServer(ctx, cfg, rtr, metricsRegistry, logger)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-httpErrCh:
		if err != nil {
			logger.Error("admin http server error", zap.Error(err))
		}
		stop()
	}

	srv.Stop()
	rtr.Close()
	logger.Info("router stopped")
}

func runAdminServer(ctx context.Context, cfg config.Config, rtr *router.Router, reg *metrics.Registry, logger *zap.Logger) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		realms := map[string]int{}
		for _, name := range cfg.Router.Realms {
			if realm, ok := rtr.Realm(name); ok {
				realms[name] = realm.SessionCount()
			}
		}
		writeJSON(w, map[string]any{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
			"realms":    realms,
		})
	})

	mux.Handle(cfg.Metrics.Endpoint, reg.Handler())

	httpServer := &http.Server{
		Addr:         cfg.Metrics.ListenAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("admin http server starting", zap.String("addr", cfg.Metrics.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("admin http server shutdown error", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
