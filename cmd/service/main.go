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

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"visionhealth-backend/internal/bus"
	"visionhealth-backend/internal/config"
	"visionhealth-backend/internal/logger"
	"visionhealth-backend/internal/middleware"
	"visionhealth-backend/internal/monitor"
	"visionhealth-backend/internal/probe"
	"visionhealth-backend/internal/scheduler"
	"visionhealth-backend/internal/storage"
)

// backend is what both storage implementations provide.
type backend interface {
	monitor.MetricsStore
	monitor.ServiceStatusStore
	monitor.AlertRuleStore
	monitor.ActiveAlertStore
	RuleRepository
}

func main() {
	cfg, err := config.Load(getenv("CONFIG_FILE", ""))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel)
	log := logger.WithComponent("main")

	ctx := context.Background()
	store, ready, closeStore, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StorageBackend).Msg("failed to open storage")
	}
	defer closeStore()

	targets, err := loadTargets(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load probe targets")
	}
	prober := probe.NewMulti(targets)

	var source monitor.MetricSource = monitor.NewSyntheticSource(nil, nil)
	if cfg.MetricSource == config.SourceScrape {
		source = probe.NewScrapeSource(prober, targets.Probes)
	}

	handler := &Handler{Rules: store, Alerts: store, Ready: ready, Timeout: cfg.RequestTimeout()}
	opts := monitor.Options{AutoResolve: cfg.AutoResolve, EqualityTolerance: cfg.EqualityTolerance}

	var publisher *bus.Publisher
	if cfg.NATSURL != "" {
		conn, err := bus.Connect(cfg.NATSURL, "health-monitor")
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to nats")
		}
		publisher = bus.NewPublisher(conn)
		defer publisher.Close()
		opts.Notifier = bus.NewAlertNotifier(publisher)
		handler.Events = bus.NewRuleEvents(publisher)
	}

	engine, err := monitor.NewEngine(monitor.Stores{Metrics: store, Statuses: store, Rules: store, Alerts: store}, source, prober, targets.Probes, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build engine")
	}
	handler.Engine = engine

	registry := scheduler.NewRegistry(engine, cfg.WorkerCount, cfg.JobTimeout())
	defer registry.Stop()
	for _, orgID := range cfg.ScheduledOrgs() {
		registry.Schedule(orgID, cfg.ScheduleInterval())
	}
	handler.Jobs = registry

	if publisher != nil {
		sub, err := bus.NewSubscriber(publisher.Conn).SubscribeCollect(func(req bus.CollectRequest) {
			registry.Enqueue(req.OrgID)
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to subscribe to collect requests")
		}
		defer sub.Unsubscribe()
	}

	r := chi.NewRouter()
	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)
	r.Handle("/metrics", promhttp.Handler())
	handler.RegisterRoutes(r)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.RequestTimeout() + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	shutdownErr := make(chan error, 1)
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		shutdownErr <- server.Shutdown(ctx)
	}()

	log.Info().
		Str("port", cfg.Port).
		Str("backend", cfg.StorageBackend).
		Str("metric_source", cfg.MetricSource).
		Int("targets", len(targets.Probes)).
		Int("scheduled_orgs", len(cfg.ScheduledOrgs())).
		Bool("nats", publisher != nil).
		Msg("health monitor listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server error")
		return
	}

	if err := <-shutdownErr; err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}

func openBackend(ctx context.Context, cfg *config.Config) (backend, func(context.Context) error, func(), error) {
	switch cfg.StorageBackend {
	case config.BackendMemory:
		return storage.NewMemoryStore(nil), nil, func() {}, nil
	default:
		pg, err := storage.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		return storage.NewRepository(pg), pg.Ping, pg.Close, nil
	}
}

func loadTargets(cfg *config.Config) (probe.Targets, error) {
	if cfg.ProbeTargetsFile == "" {
		return probe.DefaultTargets(), nil
	}
	var dec probe.Decryptor
	if cfg.EncryptionKey != "" {
		enc, err := probe.NewAesGcmEncryptor([]byte(cfg.EncryptionKey))
		if err != nil {
			return probe.Targets{}, err
		}
		dec = enc
	}
	return probe.LoadTargets(cfg.ProbeTargetsFile, dec)
}
