// Package service is the registration orchestrator. It holds no session
// state between calls: every transition is one locked read-modify-write on
// the session store, and no lock is held across repository or email I/O.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/crypto/bcrypt"

	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/creation"
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/metrics"
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/models"
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/notification"
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/store/session"
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/validation"
	dErrors "github.com/amaralBruno27866/member-platform-test-sub015/pkg/domain-errors"
	audit "github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/audit"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/sentinel"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/requestcontext"
)

type SessionStore interface {
	Create(ctx context.Context, s *models.Session) error
	Get(ctx context.Context, id models.SessionID) (*models.Session, error)
	Delete(ctx context.Context, id models.SessionID) error
	Execute(ctx context.Context, id models.SessionID, validate session.ValidateFunc, mutate session.MutateFunc) (*models.Session, error)
	ReserveEmail(ctx context.Context, address string, id models.SessionID, ttl time.Duration) error
	ReleaseEmail(ctx context.Context, address string, id models.SessionID) error
}

type PayloadValidator interface {
	Validate(ctx context.Context, p models.Payload) (*validation.Result, error)
}

type Notifier interface {
	IssueToken(s *models.Session, now time.Time) error
	PrepareResend(s *models.Session, now time.Time) error
	SendVerification(ctx context.Context, s *models.Session) (*notification.SendResult, error)
	AttemptsRemaining(s *models.Session) int
}

type EntityCreator interface {
	Create(ctx context.Context, id models.SessionID, p models.Payload) (*creation.Result, error)
	Rollback(ctx context.Context, id models.SessionID, res *creation.Result) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Config carries the per-stage TTLs and limits.
type Config struct {
	StagedTTL         time.Duration
	VerifiedTTL       time.Duration
	ApprovedTTL       time.Duration
	CreatedTTL        time.Duration
	TerminalRetention time.Duration
	CreationLeaseTTL  time.Duration
	BcryptCost        int
}

func DefaultConfig() Config {
	return Config{
		StagedTTL:         24 * time.Hour,
		VerifiedTTL:       7 * 24 * time.Hour,
		ApprovedTTL:       72 * time.Hour,
		CreatedTTL:        24 * time.Hour,
		TerminalRetention: time.Hour,
		CreationLeaseTTL:  2 * time.Minute,
		BcryptCost:        bcrypt.DefaultCost,
	}
}

// Service orchestrates the registration lifecycle.
type Service struct {
	sessions  SessionStore
	validator PayloadValidator
	notifier  Notifier
	creator   EntityCreator
	cfg       Config

	approvalChecks []ApprovalCheck
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	logger         *slog.Logger
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithApprovalChecks adds predicates that must pass before Approve.
func WithApprovalChecks(checks ...ApprovalCheck) Option {
	return func(s *Service) {
		s.approvalChecks = append(s.approvalChecks, checks...)
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

func New(sessions SessionStore, validator PayloadValidator, notifier Notifier, creator EntityCreator, cfg Config, opts ...Option) *Service {
	s := &Service{
		sessions:  sessions,
		validator: validator,
		notifier:  notifier,
		creator:   creator,
		cfg:       cfg,
		logger:    slog.Default(),
		tracer:    noop.NewTracerProvider().Tracer("noop"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Internal control-flow errors; none of them reaches a caller.
var (
	errSessionExpired = errors.New("session expired")
	errNotExpired     = errors.New("session not expired")
	errReplay         = errors.New("entities already created")
)

func notFound() error {
	return dErrors.New(dErrors.CodeNotFound, "registration session not found")
}

func expiredErr() error {
	return dErrors.Wrap(sentinel.ErrExpired, dErrors.CodeNotFound, "registration session not found")
}

// ttlFor is the lifetime granted on entering status.
func (s *Service) ttlFor(status models.Status) time.Duration {
	switch status {
	case models.StatusStaged:
		return s.cfg.StagedTTL
	case models.StatusEmailVerified:
		return s.cfg.VerifiedTTL
	case models.StatusAdminApproved, models.StatusCreationFailed:
		return s.cfg.ApprovedTTL
	case models.StatusAccountCreated:
		return s.cfg.CreatedTTL
	default:
		return s.cfg.TerminalRetention
	}
}

// apply moves sess along the DAG and refreshes its deadline for the new state.
func (s *Service) apply(sess *models.Session, event models.Event, now time.Time) error {
	if err := sess.Apply(event, now); err != nil {
		return err
	}
	sess.Extend(now, s.ttlFor(sess.Status))
	return nil
}

// execute runs one locked transition. An expired session is recorded as
// expired and reported as not_found before validate sees it; one already
// recorded as expired is not_found as well.
func (s *Service) execute(ctx context.Context, id models.SessionID, validate session.ValidateFunc, mutate session.MutateFunc) (*models.Session, error) {
	now := requestcontext.Now(ctx)
	sess, err := s.sessions.Execute(ctx, id, func(cur *models.Session) error {
		if cur.Status == models.StatusExpired {
			return expiredErr()
		}
		if cur.IsExpired(now) {
			return errSessionExpired
		}
		if validate != nil {
			return validate(cur)
		}
		return nil
	}, mutate)
	if errors.Is(err, errSessionExpired) {
		s.expire(ctx, id)
		return nil, expiredErr()
	}
	if err != nil {
		return sess, s.translate(err)
	}
	return sess, nil
}

// load reads a snapshot for checks that must run outside the lock.
func (s *Service) load(ctx context.Context, id models.SessionID) (*models.Session, error) {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, s.translate(err)
	}
	if sess.Status == models.StatusExpired {
		return nil, expiredErr()
	}
	if sess.IsExpired(requestcontext.Now(ctx)) {
		s.expire(ctx, id)
		return nil, expiredErr()
	}
	return sess, nil
}

// expire persists the expired status. Failures are logged: the caller is
// already answering not_found.
func (s *Service) expire(ctx context.Context, id models.SessionID) {
	now := requestcontext.Now(ctx)
	sess, err := s.sessions.Execute(ctx, id, func(cur *models.Session) error {
		if !cur.IsExpired(now) {
			return errNotExpired
		}
		return nil
	}, func(cur *models.Session) error {
		return s.apply(cur, models.EventExpire, now)
	})
	if err != nil {
		if !errors.Is(err, errNotExpired) && !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "failed to record session expiry", "session_id", id.String(), "error", err)
		}
		return
	}
	s.metrics.IncrementRejection("expired")
	s.metrics.IncrementTransition(string(sess.Status))
	s.releaseEmail(ctx, sess)
	s.emit(ctx, audit.EventRegistrationExpired, sess, "", "")
}

// translate maps store sentinels onto domain codes. Domain errors pass through.
func (s *Service) translate(err error) error {
	var de *dErrors.Error
	switch {
	case errors.Is(err, errReplay):
		return err
	case errors.As(err, &de):
		if de.Code == dErrors.CodeInvalidStateTransition {
			s.metrics.IncrementRejection("invalid_state")
		}
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return notFound()
	case errors.Is(err, sentinel.ErrConflict), errors.Is(err, sentinel.ErrLocked):
		s.metrics.IncrementRejection("conflict")
		return dErrors.Wrap(err, dErrors.CodeConflict, "registration session is being modified, retry")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "request cancelled")
	default:
		return dErrors.Wrap(err, dErrors.CodeExternalUnavailable, "session store unavailable")
	}
}

// refreshReservation keeps the email reservation alive as long as the session.
func (s *Service) refreshReservation(ctx context.Context, sess *models.Session) {
	if sess.Status.IsTerminal() {
		s.releaseEmail(ctx, sess)
		return
	}
	ttl := sess.ExpiresAt.Sub(requestcontext.Now(ctx))
	if ttl <= 0 {
		return
	}
	if err := s.sessions.ReserveEmail(ctx, sess.Email(), sess.ID, ttl); err != nil {
		s.logger.WarnContext(ctx, "failed to refresh email reservation",
			"session_id", sess.ID.String(),
			"error", err,
		)
	}
}

func (s *Service) releaseEmail(ctx context.Context, sess *models.Session) {
	if err := s.sessions.ReleaseEmail(ctx, sess.Email(), sess.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to release email reservation",
			"session_id", sess.ID.String(),
			"error", err,
		)
	}
}

// emit publishes a registration event. Failures are logged and counted,
// never returned.
func (s *Service) emit(ctx context.Context, action audit.AuditEvent, sess *models.Session, decision, reason string) {
	if s.auditPublisher == nil {
		return
	}
	subject := sess.ID.String()
	if sess.CreatedEntityID != "" {
		subject = sess.CreatedEntityID
	}
	event := audit.Event{
		SessionID:   sess.ID.String(),
		Subject:     subject,
		Action:      string(action),
		Decision:    decision,
		Reason:      reason,
		RequestID:   requestcontext.RequestID(ctx),
		ActorID:     requestcontext.AdminID(ctx),
		ClientIP:    requestcontext.ClientIP(ctx),
		ClientAgent: requestcontext.ClientAgent(ctx),
	}
	if action == audit.EventRegistrationStaged || action == audit.EventRegistrationCompleted {
		event.Email = sess.Email()
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.metrics.IncrementEventFailure()
		s.logger.WarnContext(ctx, "failed to emit registration event",
			"action", string(action),
			"session_id", sess.ID.String(),
			"error", err,
		)
	}
}

func (s *Service) startSpan(ctx context.Context, op string, id models.SessionID) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "registration."+op, trace.WithAttributes(sessionAttr(id)))
}

func sessionAttr(id models.SessionID) attribute.KeyValue {
	return attribute.String("registration.session_id", id.String())
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
