package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	jwttoken "provenance/internal/jwt_token"
	"provenance/internal/ledger/handler"
	ledgermetrics "provenance/internal/ledger/metrics"
	"provenance/internal/ledger/payment"
	"provenance/internal/ledger/service"
	"provenance/internal/ledger/store"
	"provenance/internal/platform/config"
	"provenance/internal/platform/httpserver"
	"provenance/internal/platform/kafka/consumer"
	"provenance/internal/platform/kafka/producer"
	"provenance/internal/platform/logger"
	"provenance/internal/platform/metrics"
	redisclient "provenance/internal/platform/redis"
	"provenance/migrations"
	id "provenance/pkg/domain"
	audit "provenance/pkg/platform/audit"
	auditconsumer "provenance/pkg/platform/audit/consumer"
	"provenance/pkg/platform/audit/publisher"
	auditmemory "provenance/pkg/platform/audit/store/memory"
	auditpostgres "provenance/pkg/platform/audit/store/postgres"
	"provenance/pkg/platform/audit/worker"
	"provenance/pkg/platform/httputil"
)

const shutdownTimeout = 10 * time.Second

// main wires the ledger from environment configuration. Every external
// dependency is optional; an unset URL selects the in-process variant.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, log); err != nil {
		log.Error("ledger stopped", "error", err)
		os.Exit(1)
	}
}

// healthCheck is one dependency probe reported by /health.
type healthCheck struct {
	name  string
	probe func(context.Context) error
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	escrow, err := id.ParseAccountID(cfg.EscrowAccount)
	if err != nil {
		return fmt.Errorf("escrow account: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	g, gctx := errgroup.WithContext(ctx)
	var checks []healthCheck

	// Ledger state and audit storage.
	var (
		ledgerStore store.Store
		auditStore  audit.Store
		auditReader audit.Reader
	)
	if cfg.DatabaseURL != "" {
		db, err := openDatabase(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		checks = append(checks, healthCheck{name: "postgres", probe: db.PingContext})

		pg := store.NewPostgres(db, store.WithPostgresTxTimeout(cfg.TxTimeout))
		if err := pg.Init(ctx); err != nil {
			return fmt.Errorf("init ledger state: %w", err)
		}
		ledgerStore = pg

		events := auditpostgres.New(db)
		auditStore, auditReader = events, events

		relay, err := startAuditRelay(ctx, g, gctx, cfg.Kafka, events, log)
		if err != nil {
			return err
		}
		if relay != nil {
			defer relay.Close()
			checks = append(checks, healthCheck{name: "kafka", probe: relay.Health})
		}
		log.Info("using postgres ledger store")
	} else {
		ledgerStore = store.NewInMemory(store.WithMemoryTxTimeout(cfg.TxTimeout))
		events := auditmemory.NewInMemoryStore()
		auditStore, auditReader = events, events
		log.Warn("DATABASE_URL not set, ledger state is kept in memory")
	}

	auditPublisher := publisher.NewPublisher(auditStore,
		publisher.WithLogger(log),
		publisher.WithMetrics(publisher.NewMetrics(reg)),
		publisher.WithAsyncBuffer(cfg.Audit.AsyncBuffer),
	)
	defer auditPublisher.Close()

	// Payment authority.
	var payments payment.Authority
	if cfg.Payment.URL != "" {
		client, err := payment.NewHTTPClient(payment.HTTPConfig{
			BaseURL:     cfg.Payment.URL,
			Timeout:     cfg.Payment.Timeout,
			MaxFailures: cfg.Payment.MaxFailures,
			OpenTimeout: cfg.Payment.OpenTimeout,
		}, log)
		if err != nil {
			return err
		}
		payments = client
	} else {
		payments = payment.NewInMemory()
		log.Warn("PAYMENT_AUTHORITY_URL not set, payments settle in memory")
	}

	ledger, err := service.New(ledgerStore, payments, escrow,
		service.WithLogger(log),
		service.WithAuditPublisher(auditPublisher),
		service.WithAuditReader(auditReader),
		service.WithMetrics(ledgermetrics.New(reg)),
	)
	if err != nil {
		return err
	}

	// HTTP surface.
	handlerOpts := []handler.Option{handler.WithTimeout(cfg.RequestTimeout)}
	redis, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redis != nil {
		defer redis.Close()
		checks = append(checks, healthCheck{name: "redis", probe: redis.Health})
		handlerOpts = append(handlerOpts, handler.WithIdempotency(redisclient.NewIdempotencyStore(redis.Client, cfg.Redis.IdempotencyTTL)))
	}

	jwtValidator := jwttoken.NewMiddlewareValidator(jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience))

	router := chi.NewRouter()
	router.Get("/health", healthHandler(checks))
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	handler.New(ledger, log, metrics.New(reg), jwtValidator, handlerOpts...).Register(router)

	srv := httpserver.New(cfg.Addr, router, log, cfg.RequestTimeout)
	g.Go(func() error {
		log.Info("starting ledger", "addr", cfg.Addr, "escrow", escrow.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openDatabase(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrations.Apply(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return db, nil
}

// startAuditRelay drains the outbox into the audit projection. With Kafka
// configured the relay publishes to the topic and a consumer group projects
// it back; without Kafka the worker feeds the projection directly. The
// returned producer is nil in the second case.
func startAuditRelay(ctx context.Context, g *errgroup.Group, gctx context.Context, cfg config.KafkaConfig, events *auditpostgres.Store, log *slog.Logger) (*producer.Producer, error) {
	projection := auditconsumer.NewProjectionHandler(events, log)
	workerOpts := []worker.Option{
		worker.WithInterval(cfg.OutboxPollInterval),
		worker.WithBatchSize(cfg.OutboxBatchSize),
	}

	if !cfg.Enabled() {
		relay := worker.NewWorker(events, worker.NewLocalPublisher(projection), log, workerOpts...)
		g.Go(func() error { return ignoreCanceled(relay.Run(gctx)) })
		log.Warn("KAFKA_BROKERS not set, audit outbox is projected in-process")
		return nil, nil
	}

	prod, err := producer.New(producer.Config{
		Brokers:           cfg.Brokers,
		Topic:             cfg.Topic,
		Partitions:        cfg.Partitions,
		ReplicationFactor: cfg.ReplicationFactor,
		Linger:            5 * time.Millisecond,
	}, log)
	if err != nil {
		return nil, err
	}
	if err := prod.EnsureTopic(ctx); err != nil {
		prod.Close()
		return nil, fmt.Errorf("ensure kafka topic: %w", err)
	}

	cons, err := consumer.New(consumer.Config{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
	}, projection, log)
	if err != nil {
		prod.Close()
		return nil, err
	}

	relay := worker.NewWorker(events, prod, log, workerOpts...)
	g.Go(func() error { return ignoreCanceled(relay.Run(gctx)) })
	g.Go(func() error {
		defer cons.Close()
		return ignoreCanceled(cons.Run(gctx))
	})
	return prod, nil
}

// ignoreCanceled treats shutdown of a background loop as a clean exit.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func healthHandler(checks []healthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status, code := "ok", http.StatusOK
		components := make(map[string]string, len(checks))
		for _, c := range checks {
			if err := c.probe(ctx); err != nil {
				components[c.name] = err.Error()
				status, code = "degraded", http.StatusServiceUnavailable
				continue
			}
			components[c.name] = "ok"
		}
		httputil.WriteJSON(w, code, map[string]any{
			"status":     status,
			"components": components,
		})
	}
}
