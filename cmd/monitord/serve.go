package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/go-chi/cors"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"machine-monitor-backend/config"
	"machine-monitor-backend/internal/api"
	"machine-monitor-backend/internal/bus"
	"machine-monitor-backend/internal/db"
	"machine-monitor-backend/internal/fault"
	"machine-monitor-backend/internal/hub"
	"machine-monitor-backend/internal/logging"
	"machine-monitor-backend/internal/metrics"
	"machine-monitor-backend/internal/mw"
	"machine-monitor-backend/internal/notification"
	"machine-monitor-backend/internal/simulator"
	"machine-monitor-backend/internal/store"
	"machine-monitor-backend/internal/telemetry"
	"machine-monitor-backend/internal/tracing"
)

const shutdownTimeout = 5 * time.Second

// newRand returns a PCG source. A zero seed draws a fresh one.
func newRand(seed, stream uint64) *rand.Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, stream))
}

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	shutdownTracing, err := tracing.Init(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown tracing")
		}
	}()

	gormDB, err := db.Init(&cfg.Database, logging.GormLevel(zerolog.GlobalLevel()))
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(gormDB); err != nil {
			log.Error().Err(err).Msg("close database")
		}
	}()

	if cfg.Database.Seed {
		if err := db.Seed(ctx, gormDB); err != nil {
			return fmt.Errorf("seed database: %w", err)
		}
	}

	appStore := store.NewGormStore(gormDB)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	loopMetrics := metrics.New(registry)

	viewers := hub.NewRegistry()
	responses := mw.NewResponseCache(time.Duration(cfg.Server.CacheTTLSeconds) * time.Second)

	deps := simulator.Deps{
		Store:        appStore,
		Generator:    telemetry.NewGenerator(newRand(cfg.Simulator.Seed, 1)),
		Injector:     fault.NewInjector(appStore, newRand(cfg.Simulator.Seed, 2), cfg.Simulator.FaultProbability),
		Hub:          viewers,
		Metrics:      loopMetrics,
		FaultSubject: cfg.NATS.Subject,
		Invalidator:  responses,
	}

	if cfg.NATS.URL != "" {
		eventBus, err := bus.New(cfg.NATS.URL, cfg.NATS.Stream, cfg.NATS.Subject, nats.Name(cfg.Telemetry.ServiceName))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer eventBus.Close()
		deps.Publisher = eventBus
		log.Info().Str("url", cfg.NATS.URL).Str("subject", cfg.NATS.Subject).Msg("publishing fault events to nats")
	}

	var webpushOptions *webpush.Options
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, gormDB, webpushOptions)
		pool.Start(ctx)
		deps.Dispatcher = pool
	} else {
		log.Warn().Msg("VAPID keys not configured; browser push notifications are disabled")
	}

	sim := simulator.NewService(cfg.Simulator, deps)
	simDone := make(chan struct{})
	go func() {
		defer close(simDone)
		sim.Run(ctx)
	}()

	router := api.NewRouter(api.RouterOptions{
		Store:          appStore,
		Webpush:        webpushOptions,
		Hub:            viewers,
		Gatherer:       registry,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimit:      rate.Limit(cfg.Server.RateLimitPerSec),
		RateBurst:      cfg.Server.RateLimitBurst,
		Cache:          responses,
		StaticDir:      cfg.Server.StaticDir,
	})

	allowed := cfg.Server.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}
	handler := cors.Handler(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         int((10 * time.Minute).Seconds()),
	})(otelhttp.NewHandler(router, "http.server"))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received, stopping services")
	case err := <-serveErr:
		cancelRun()
		<-simDone
		return fmt.Errorf("http server: %w", err)
	}

	cancelRun()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown")
	}
	<-simDone

	log.Info().Msg("server gracefully stopped")
	return nil
}
