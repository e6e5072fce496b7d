package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"ticketrouter/internal/alerting"
	"ticketrouter/internal/platform/config"
	"ticketrouter/internal/platform/httpserver"
	"ticketrouter/internal/platform/logger"
	"ticketrouter/internal/ratelimit"
	"ticketrouter/internal/routing"
	"ticketrouter/internal/tracker"
	"ticketrouter/internal/webhook/handler"
	"ticketrouter/internal/webhook/metrics"
	webhookmw "ticketrouter/internal/webhook/middleware"
	"ticketrouter/internal/webhook/store/replay"
	"ticketrouter/pkg/platform/httputil"
	"ticketrouter/pkg/platform/middleware/metadata"
)

const sweepInterval = time.Minute

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	trackerClient := tracker.NewClient(tracker.Config{
		BaseURL:               cfg.TrackerBaseURL,
		APIToken:              cfg.TrackerAPIToken,
		TeamID:                cfg.TrackerTeamID,
		CustomersListID:       cfg.CustomersListID,
		UnitsListID:           cfg.UnitsListID,
		MarketOwnershipListID: cfg.MarketOwnershipListID,
	}, log)

	var fallbackCX int64
	if cfg.DefaultCXUserID != "" {
		parsed, err := strconv.ParseInt(cfg.DefaultCXUserID, 10, 64)
		if err != nil {
			log.Warn("invalid DEFAULT_CX_USER_ID, fallback assignment disabled",
				"value", cfg.DefaultCXUserID)
		} else {
			fallbackCX = parsed
		}
	}

	engine := routing.NewEngine(trackerClient, log, fallbackCX)
	replays := replay.NewInMemoryStore(config.ReplayTTL)
	limiter := ratelimit.New()
	alerts := alerting.New(cfg.AlertWebhookURL, log, alerting.WithAlertHook(m.AlertSent))

	webhookHandler := handler.New(trackerClient, engine, replays, log, m)
	healthHandler := handler.NewHealth(cfg, alerts)

	r := chi.NewRouter()
	r.Use(webhookmw.Recover(log))
	r.Use(metadata.ClientMetadata)
	r.Use(webhookmw.RequestLogger(log, m))
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
	})

	healthHandler.Register(r)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		// Order matters: cheap admission control first, then signature
		// verification over the raw body. The replay guard runs inside the
		// handler, after authentication, so unauthenticated callers cannot
		// probe the cache.
		if cfg.RateLimitingEnabled {
			r.Use(webhookmw.RateLimit(limiter, log, m))
		}
		r.Use(webhookmw.VerifyHMAC(cfg.HMACSecret, log, alerts, m))
		webhookHandler.Register(r)
	})

	srv := httpserver.New(cfg.Addr, r)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting ticket-routing webhook",
			"addr", cfg.Addr,
			"rate_limiting", cfg.RateLimitingEnabled,
			"alerting_configured", alerts.Configured(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Background sweeps keep the process-local caches bounded regardless
	// of traffic.
	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if removed := replays.Sweep(); removed > 0 {
					log.Info("replay cache swept", "removed", removed)
				}
				if removed := limiter.Sweep(); removed > 0 {
					log.Info("rate limiter swept", "removed", removed)
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
	}
}
