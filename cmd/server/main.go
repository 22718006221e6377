package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jwttoken "github.com/amaralBruno27866/member-platform-test-sub015/internal/jwt_token"
	memberMemory "github.com/amaralBruno27866/member-platform-test-sub015/internal/member/store/memory"
	memberPostgres "github.com/amaralBruno27866/member-platform-test-sub015/internal/member/store/postgres"
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/notify/email"
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/platform/config"
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/platform/httpserver"
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/platform/kafka"
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/platform/logger"
	httpMetrics "github.com/amaralBruno27866/member-platform-test-sub015/internal/platform/metrics"
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/platform/postgres"
	platformRedis "github.com/amaralBruno27866/member-platform-test-sub015/internal/platform/redis"
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/platform/tracing"
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/creation"
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/handler"
	regMetrics "github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/metrics"
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/models"
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/notification"
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/service"
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/store/session"
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/validation"
	audit "github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/audit"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/audit/publisher"
	auditKafka "github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/audit/store/kafka"
	auditMemory "github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/audit/store/memory"
	auditPostgres "github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/audit/store/postgres"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/audit/worker"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/circuit"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/middleware/metadata"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/middleware/request"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/middleware/requesttime"
)

// sessionStore is what both session backends provide.
type sessionStore interface {
	service.SessionStore
	PendingSessionForEmail(ctx context.Context, address string) (models.SessionID, error)
}

// memberStore is what both record backends provide.
type memberStore interface {
	Repositories() creation.Repositories
	validation.UniquenessChecker
	service.MemberCounter
}

// infra holds the opened backends and the functions that close them, in
// the order they were opened.
type infra struct {
	sessions sessionStore
	members  memberStore
	events   audit.Store
	outbox   *auditPostgres.Store
	health   []func(context.Context) error
	closers  []func()
}

func (i *infra) close() {
	for j := len(i.closers) - 1; j >= 0; j-- {
		i.closers[j]()
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Log)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return err
	}

	backends, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backends.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := regMetrics.New(reg)

	events := publisher.NewPublisher(backends.events,
		publisher.WithAsyncBuffer(cfg.Registration.EventBuffer),
		publisher.WithLogger(log),
	)
	go func() {
		for err := range events.Errors() {
			m.IncrementEventFailure()
			log.Warn("registration event delivery failed", "error", err)
		}
	}()

	if backends.outbox != nil && cfg.Outbox.Relay {
		if err := startRelay(ctx, cfg, backends, m, log); err != nil {
			return err
		}
	}

	svc := buildService(cfg, backends, events, m, tp, log)
	tokens := jwttoken.NewJWTService(cfg.Admin.JWTSigningKey, cfg.Admin.JWTIssuer)

	router := chi.NewRouter()
	router.Use(request.RequestID)
	router.Use(request.Recovery(log))
	router.Use(request.Logger(log))
	router.Use(metadata.ClientMetadata)
	router.Use(requesttime.Middleware)
	router.Use(httpMetrics.New(reg).Middleware)

	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	router.Get("/healthz", healthHandler(backends.health))
	handler.New(svc, tokens, log).Register(router)

	srv := httpserver.New(cfg.Server, router)
	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting registration orchestrator",
			"addr", cfg.Server.Addr,
			"sessions", cfg.Backends.Sessions,
			"records", cfg.Backends.Records,
			"events", cfg.Backends.Events,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	events.Close()
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error("tracer shutdown failed", "error", err)
	}
	return nil
}

func openBackends(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	out := &infra{}
	fail := func(err error) (*infra, error) {
		out.close()
		return nil, err
	}

	storeOpts := []session.Option{session.WithLockTTL(cfg.Registration.LockTTL)}
	switch cfg.Backends.Sessions {
	case config.BackendRedis:
		rc, err := platformRedis.New(ctx, cfg.Redis)
		if err != nil {
			return fail(err)
		}
		out.closers = append(out.closers, func() { _ = rc.Close() })
		out.health = append(out.health, rc.Health)
		out.sessions = session.NewRedis(rc.Client, storeOpts...)
	default:
		out.sessions = session.NewInMemory(storeOpts...)
	}

	switch cfg.Backends.Records {
	case config.BackendPostgres:
		db, err := postgres.OpenDB(ctx, cfg.Postgres)
		if err != nil {
			return fail(err)
		}
		out.closers = append(out.closers, func() { _ = db.Close() })
		if cfg.Postgres.AutoMigrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				return fail(err)
			}
		}
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fail(err)
		}
		out.closers = append(out.closers, pool.Close)
		out.health = append(out.health, pool.Ping)
		out.members = memberPostgres.New(pool)
		if cfg.Backends.Events == config.BackendOutbox {
			out.outbox = auditPostgres.New(db)
			out.events = out.outbox
		}
	default:
		log.Warn("using in-memory member records; data is lost on restart")
		out.members = memberMemory.New()
	}

	switch cfg.Backends.Events {
	case config.BackendKafka:
		client, err := kafka.NewProducer(ctx, cfg.Kafka)
		if err != nil {
			return fail(err)
		}
		out.closers = append(out.closers, client.Close)
		if err := kafka.EnsureTopic(ctx, client, cfg.Kafka); err != nil {
			return fail(err)
		}
		out.events = auditKafka.New(client, cfg.Kafka.Topic)
	case config.BackendMemory:
		out.events = auditMemory.NewInMemoryStore()
	}
	return out, nil
}

// startRelay forwards outbox rows to the Kafka topic in the background.
func startRelay(ctx context.Context, cfg config.Config, b *infra, m *regMetrics.Metrics, log *slog.Logger) error {
	client, err := kafka.NewProducer(ctx, cfg.Kafka)
	if err != nil {
		return err
	}
	b.closers = append(b.closers, client.Close)
	if err := kafka.EnsureTopic(ctx, client, cfg.Kafka); err != nil {
		return err
	}
	relay := worker.NewRelay(b.outbox, auditKafka.New(client, cfg.Kafka.Topic),
		worker.WithInterval(cfg.Outbox.PollInterval),
		worker.WithBatchSize(cfg.Outbox.BatchSize),
		worker.WithLogger(log),
		worker.WithFailureHook(func(error) { m.IncrementEventFailure() }),
	)
	go func() {
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("outbox relay stopped", "error", err)
		}
	}()
	return nil
}

func buildService(cfg config.Config, b *infra, events service.AuditPublisher, m *regMetrics.Metrics, tp *tracing.Provider, log *slog.Logger) *service.Service {
	rc := cfg.Registration

	validator := validation.New(
		validation.AnyOf{b.members, session.NewPendingEmailChecker(b.sessions)},
		validation.WithProbeTimeout(rc.ValidationTimeout),
		validation.WithLogger(log),
	)

	breaker := circuit.New("email",
		circuit.WithFailureThreshold(cfg.Email.FailureThreshold),
		circuit.WithSuccessThreshold(cfg.Email.SuccessThreshold),
		circuit.WithCooldown(cfg.Email.Cooldown),
	)
	sender := email.NewLogSender(email.WithLogger(log), email.WithFrom(cfg.Email.From))
	notifier := notification.New(sender,
		notification.WithTokenTTL(rc.VerificationTokenTTL),
		notification.WithMaxResends(rc.MaxResendAttempts),
		notification.WithVerifyURLBase(cfg.Email.VerifyURLBase),
		notification.WithBreaker(breaker),
		notification.WithLogger(log),
	)

	creator := creation.New(b.members.Repositories(),
		creation.WithPropagationMaxWait(rc.PropagationMaxWait),
		creation.WithLogger(log),
		creation.WithTracer(tp.Tracer()),
	)

	svcCfg := service.DefaultConfig()
	svcCfg.StagedTTL = rc.StagedTTL
	svcCfg.VerifiedTTL = rc.VerifiedTTL
	svcCfg.ApprovedTTL = rc.ApprovedTTL
	svcCfg.CreatedTTL = rc.CreatedTTL
	svcCfg.TerminalRetention = rc.TerminalRetention
	svcCfg.CreationLeaseTTL = rc.CreationLeaseTTL

	return service.New(b.sessions, validator, notifier, creator, svcCfg,
		service.WithLogger(log),
		service.WithAuditPublisher(events),
		service.WithMetrics(m),
		service.WithTracer(tp.Tracer()),
		service.WithApprovalChecks(service.NewOrganizationCapacityCheck(b.members, rc.OrganizationCapacity)),
	)
}

func healthHandler(checks []func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, check := range checks {
			if err := check(r.Context()); err != nil {
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}
