package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	atthandler "anonpoll/internal/attestation/handler"
	attservice "anonpoll/internal/attestation/service"
	dischandler "anonpoll/internal/disclosure/handler"
	"anonpoll/internal/disclosure/lifecycle"
	discmetrics "anonpoll/internal/disclosure/metrics"
	"anonpoll/internal/disclosure/overlap"
	discservice "anonpoll/internal/disclosure/service"
	discstore "anonpoll/internal/disclosure/store"
	noncehandler "anonpoll/internal/nonce/handler"
	noncemetrics "anonpoll/internal/nonce/metrics"
	nonceservice "anonpoll/internal/nonce/service"
	noncestore "anonpoll/internal/nonce/store"
	"anonpoll/internal/platform/config"
	"anonpoll/internal/platform/httpserver"
	"anonpoll/internal/platform/kafka"
	"anonpoll/internal/platform/kafka/consumer"
	"anonpoll/internal/platform/kafka/producer"
	"anonpoll/internal/platform/logger"
	"anonpoll/internal/platform/metrics"
	"anonpoll/internal/platform/middleware"
	"anonpoll/internal/platform/postgres"
	platformredis "anonpoll/internal/platform/redis"
	pollhandler "anonpoll/internal/poll/handler"
	pollservice "anonpoll/internal/poll/service"
	pollstore "anonpoll/internal/poll/store"
	votehandler "anonpoll/internal/vote/handler"
	votemetrics "anonpoll/internal/vote/metrics"
	voteservice "anonpoll/internal/vote/service"
	votestore "anonpoll/internal/vote/store"
	audit "anonpoll/pkg/platform/audit"
	auditconsumer "anonpoll/pkg/platform/audit/consumer"
	"anonpoll/pkg/platform/audit/publisher"
	auditmemory "anonpoll/pkg/platform/audit/store/memory"
	auditpg "anonpoll/pkg/platform/audit/store/postgres"
	"anonpoll/pkg/platform/audit/worker"
	"anonpoll/pkg/platform/httputil"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the ballot and results API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger.New(cfg.Log.Level, cfg.Log.Format))
	},
}

// auditStore is what the server needs from either audit backend.
type auditStore interface {
	audit.Store
	SummarizeSecurity(ctx context.Context, f audit.SummaryFilter) ([]audit.Cell, error)
}

// app holds the wired components. Postgres, Redis and Kafka are optional;
// without them the in-memory stores are used, which suit a single instance.
type app struct {
	cfg    config.Config
	log    *slog.Logger
	reg    *prometheus.Registry
	db     *sql.DB
	redis  *platformredis.Client
	audit  auditStore
	pub    *publisher.Publisher
	nonces *noncestore.PostgresStore

	nonceSvc      *nonceservice.Service
	authority     *attservice.Authority
	pollSvc       *pollservice.Service
	voteSvc       *voteservice.Service
	disclosureSvc *discservice.Service
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	a := &app{cfg: cfg, log: log, reg: prometheus.NewRegistry()}
	a.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := a.connect(ctx); err != nil {
		return err
	}
	defer a.close()
	a.wire()

	g, ctx := errgroup.WithContext(ctx)
	srv := httpserver.New(cfg.Server, a.router())
	g.Go(func() error {
		return httpserver.Serve(ctx, srv, cfg.Server.ShutdownTimeout, log)
	})
	if err := a.startKafka(ctx, g); err != nil {
		return err
	}
	if a.nonces != nil {
		g.Go(func() error { return ignoreCanceled(a.purgeNonces(ctx)) })
	}

	err := g.Wait()
	log.Info("anonpoll stopped")
	return err
}

func (a *app) connect(ctx context.Context) error {
	if a.cfg.Postgres.DSN != "" {
		db, err := postgres.Open(a.cfg.Postgres)
		if err != nil {
			return err
		}
		a.db = db
		if a.cfg.Server.DevMode {
			if err := postgres.Migrate(ctx, db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
	} else {
		a.log.Warn("no postgres dsn configured, using in-memory ledger")
	}

	rc, err := platformredis.Connect(ctx, a.cfg.Redis, a.log)
	if err != nil {
		return err
	}
	a.redis = rc
	if rc == nil {
		a.log.Warn("no redis url configured, nonces and query records are process local")
	}
	return nil
}

func (a *app) wire() {
	cfg, log := a.cfg, a.log

	var memVotes *votestore.InMemoryStore
	var voteStore voteservice.Store
	var tallies discservice.Store
	var polls pollservice.Store
	if a.db != nil {
		pgAudit := auditpg.New(a.db)
		a.audit = pgAudit
		voteStore = votestore.NewPostgres(a.db, pgAudit)
		tallies = discstore.NewPostgres(a.db)
		polls = pollstore.NewPostgres(a.db)
	} else {
		memAudit := auditmemory.NewInMemoryStore()
		a.audit = memAudit
		memVotes = votestore.NewInMemory(memAudit)
		voteStore = memVotes
		tallies = discstore.NewInMemory(memVotes)
		polls = pollstore.NewInMemory()
	}
	a.pub = publisher.NewPublisher(a.audit,
		publisher.WithAsyncBuffer(1024),
		publisher.WithLogger(log),
	)

	var nonceStore nonceservice.Store
	var guard discservice.Guard
	switch {
	case a.redis != nil:
		nonceStore = noncestore.NewRedis(a.redis.Client)
		guard = overlap.NewRedisGuard(a.redis.Client, cfg.Disclosure.OverlapRecordTTL)
	case a.db != nil:
		a.nonces = noncestore.NewPostgres(a.db)
		nonceStore = a.nonces
		guard = overlap.NewMemoryGuard()
	default:
		nonceStore = noncestore.NewInMemory()
		guard = overlap.NewMemoryGuard()
	}

	a.nonceSvc = nonceservice.New(nonceStore, cfg.Nonce.TTL,
		nonceservice.WithLogger(log),
		nonceservice.WithMetrics(noncemetrics.New(a.reg)),
		nonceservice.WithStoreTimeout(cfg.Vote.StorageTimeout),
	)
	a.authority = attservice.New(attservice.Config{
		SigningKey:         cfg.Attestation.SigningKey,
		Issuer:             cfg.Attestation.Issuer,
		PseudonymKey:       cfg.Attestation.PseudonymKey,
		NullifierKey:       cfg.Attestation.NullifierKey,
		CredentialLifetime: cfg.Attestation.CredentialLifetime,
		VoteIntentLifetime: cfg.Attestation.VoteIntentLifetime,
		TimestampBucket:    cfg.Attestation.TimestampBucket,
	}, a.nonceSvc,
		attservice.WithLogger(log),
		attservice.WithAuditPublisher(a.pub),
	)
	a.pollSvc = pollservice.New(polls, pollservice.WithLogger(log))
	a.voteSvc = voteservice.New(a.authority, a.nonceSvc, a.pollSvc, voteStore,
		voteservice.WithLogger(log),
		voteservice.WithMetrics(votemetrics.New(a.reg)),
		voteservice.WithAuditPublisher(a.pub),
		voteservice.WithStorageTimeout(cfg.Vote.StorageTimeout),
		voteservice.WithCommitRetries(cfg.Vote.CommitRetries),
	)
	a.disclosureSvc = discservice.New(discservice.Config{
		K:                 cfg.Disclosure.KThreshold,
		MinVisibleCohorts: cfg.Disclosure.MinVisibleCohorts,
		QueryTimeout:      cfg.Disclosure.QueryTimeout,
	}, tallies, a.pollSvc, guard,
		discservice.WithLogger(log),
		discservice.WithMetrics(discmetrics.New(a.reg)),
		discservice.WithAuditPublisher(a.pub),
		discservice.WithSecurityStore(a.audit),
	)
	a.pollSvc.Subscribe(a.disclosureSvc)
}

func (a *app) router() http.Handler {
	cfg, log := a.cfg, a.log
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Latency(metrics.New(a.reg)))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Admin-Token", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", a.handleHealth)
	r.Handle("/metrics", metrics.Handler(a.reg))

	noncehandler.New(a.nonceSvc, log).Register(r)
	atthandler.New(a.authority, log, cfg.Server.AdminToken).Register(r)
	pollhandler.New(a.pollSvc, log, cfg.Server.AdminToken).Register(r)
	votehandler.New(a.voteSvc, log).Register(r)
	dischandler.New(a.disclosureSvc, log, cfg.Server.AdminToken).Register(r)
	return r
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	if a.db != nil {
		status["postgres"] = "ok"
		if err := a.db.PingContext(ctx); err != nil {
			status["postgres"], status["status"], code = "down", "degraded", http.StatusServiceUnavailable
		}
	}
	if a.redis != nil {
		status["redis"] = "ok"
		if err := a.redis.Health(ctx); err != nil {
			status["redis"], status["status"], code = "down", "degraded", http.StatusServiceUnavailable
		}
	}
	httputil.WriteJSON(w, code, status)
}

// startKafka runs the outbox relay and the event consumers. Both need the
// Postgres audit store: the outbox lives there.
func (a *app) startKafka(ctx context.Context, g *errgroup.Group) error {
	kc := a.cfg.Kafka
	if len(kc.Brokers) == 0 {
		return nil
	}
	pgAudit, ok := a.audit.(*auditpg.Store)
	if !ok {
		a.log.Warn("kafka configured without postgres, audit relay disabled")
		return nil
	}

	prod, err := producer.New(kc.Brokers)
	if err != nil {
		return err
	}
	if err := kafka.EnsureTopics(ctx, prod.Client(), 3, 1, kc.AuditTopic, kc.LifecycleTopic, kc.SecurityTopic); err != nil {
		prod.Close()
		return err
	}

	relay := worker.NewRelay(pgAudit, prod, kc.AuditTopic, kc.RelayInterval, kc.RelayBatchSize, a.log).
		Route(auditpg.AggregatePollLifecycle, kc.LifecycleTopic)
	g.Go(func() error {
		defer prod.Close()
		return ignoreCanceled(relay.Run(ctx))
	})

	router := auditconsumer.NewRouter(a.log).
		Register(kc.SecurityTopic, auditconsumer.NewSecurityHandler(pgAudit, a.log)).
		Register(kc.LifecycleTopic, lifecycle.NewHandler(a.disclosureSvc, a.log))
	cons, err := consumer.New(kc.Brokers, kc.ConsumerGroup, router.Topics(), router, a.log)
	if err != nil {
		return err
	}
	g.Go(func() error { return ignoreCanceled(cons.Run(ctx)) })
	return nil
}

// purgeNonces removes expired rows when nonces live in Postgres. Redis
// expires keys on its own.
func (a *app) purgeNonces(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := a.nonces.PurgeExpired(ctx)
			if err != nil {
				a.log.WarnContext(ctx, "nonce purge failed", "error", err)
				continue
			}
			if n > 0 {
				a.log.DebugContext(ctx, "expired nonces purged", "count", n)
			}
		}
	}
}

func (a *app) close() {
	if a.pub != nil {
		a.pub.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
