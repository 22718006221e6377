// Package creation writes a staged payload into the member record store as a
// saga: records go in a fixed order, each success lands in a ledger, and a
// failure triggers best-effort deletes in reverse ledger order.
//
// The package does not touch the session. The caller holds the idempotency
// guard and persists the Result.
package creation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/models"
	dErrors "github.com/amaralBruno27866/member-platform-test-sub015/pkg/domain-errors"
)

const (
	defaultPropagationMaxWait = 5 * time.Second
	compensationTimeout       = 10 * time.Second
)

var errNotVisible = errors.New("account not yet readable")

// Result describes one saga run. On failure it is returned alongside the
// error so the caller can record the ledger and surface orphans.
type Result struct {
	EntityID string
	Entities []models.EntityStatus
	Ledger   []Entry
	Orphans  []Orphan
	// FailedKind is the entity whose write failed, empty on success.
	FailedKind models.EntityKind
}

// Warnings renders orphans as compensation_failed messages.
func (r *Result) Warnings() []string {
	if r == nil || len(r.Orphans) == 0 {
		return nil
	}
	out := make([]string, 0, len(r.Orphans))
	for _, o := range r.Orphans {
		out = append(out, string(dErrors.CodeCompensationFailed)+": "+o.String())
	}
	return out
}

// CompensationError reports orphans as a compensation_failed error, or nil.
func (r *Result) CompensationError() error {
	if r == nil || len(r.Orphans) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Orphans))
	for _, o := range r.Orphans {
		errs = append(errs, fmt.Errorf("%s %s: %w", o.Kind, o.ID, o.Err))
	}
	return dErrors.WithMeta(
		dErrors.Wrap(errors.Join(errs...), dErrors.CodeCompensationFailed, "rollback left orphaned records"),
		"orphans", strconv.Itoa(len(r.Orphans)),
	)
}

// LedgerSnapshot renders the ledger for the session's error messages.
func (r *Result) LedgerSnapshot() string {
	if r == nil {
		return (&Ledger{}).String()
	}
	return (&Ledger{entries: r.Ledger}).String()
}

type Creator struct {
	repos              Repositories
	propagationMaxWait time.Duration
	logger             *slog.Logger
	tracer             trace.Tracer
}

type Option func(*Creator)

// WithPropagationMaxWait bounds how long Create waits for the new account to
// become readable. Zero skips the check.
func WithPropagationMaxWait(d time.Duration) Option {
	return func(c *Creator) {
		c.propagationMaxWait = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Creator) {
		c.logger = logger
	}
}

// WithTracer sets the tracer for saga spans. Nil keeps the noop tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Creator) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

func New(repos Repositories, opts ...Option) *Creator {
	c := &Creator{
		repos:              repos,
		propagationMaxWait: defaultPropagationMaxWait,
		logger:             slog.Default(),
		tracer:             noop.NewTracerProvider().Tracer("noop"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create writes every record the payload requires. On failure it compensates
// and returns a creation_failed error wrapping the original cause; orphans
// are reported in the Result, not folded into the error.
func (c *Creator) Create(ctx context.Context, id models.SessionID, p models.Payload) (result *Result, err error) {
	ctx, span := c.tracer.Start(ctx, "registration.creation.saga",
		trace.WithAttributes(attribute.String("registration.session_id", id.String())),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, dErrors.MessageOf(err))
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	kinds := p.EntityKinds()
	if missing := c.repos.Missing(kinds); len(missing) > 0 {
		return nil, dErrors.New(dErrors.CodeInternal, fmt.Sprintf("no repository configured for %v", missing))
	}

	var (
		ledger    Ledger
		accountID string
	)
	statuses := make([]models.EntityStatus, len(kinds))
	for i, k := range kinds {
		statuses[i] = models.EntityStatus{Kind: k, Outcome: models.OutcomeNotAttempted}
	}

	for i, kind := range kinds {
		entityID, stepErr := c.createOne(ctx, kind, recordFor(kind, id, p, accountID))
		if stepErr != nil {
			statuses[i].Outcome = models.OutcomeFailed
			statuses[i].Error = stepErr.Error()
			return c.fail(ctx, id, kind, stepErr, &ledger, statuses)
		}
		ledger.Append(kind, entityID)
		statuses[i].ID = entityID
		statuses[i].Outcome = models.OutcomeCreated
		if kind == models.EntityAccount {
			accountID = entityID
		}
	}

	if verr := c.awaitReadable(ctx, accountID); verr != nil {
		return c.fail(ctx, id, models.EntityAccount, verr, &ledger, statuses)
	}

	span.SetAttributes(attribute.Int("registration.entities", ledger.Len()))
	return &Result{
		EntityID: accountID,
		Entities: statuses,
		Ledger:   ledger.Entries(),
	}, nil
}

// Rollback deletes the records of a saga that succeeded but could not be
// recorded against its session. res is updated in place with compensated
// statuses and orphans; the returned error is the CompensationError, if any.
func (c *Creator) Rollback(ctx context.Context, id models.SessionID, res *Result) error {
	if res == nil || len(res.Ledger) == 0 {
		return nil
	}
	ledger := Ledger{entries: append([]Entry(nil), res.Ledger...)}
	res.Orphans = c.compensate(ctx, id, &ledger, res.Entities)
	res.EntityID = ""
	return res.CompensationError()
}

func (c *Creator) createOne(ctx context.Context, kind models.EntityKind, rec Record) (string, error) {
	ctx, span := c.tracer.Start(ctx, "registration.creation.create",
		trace.WithAttributes(attribute.String("registration.entity", string(kind))),
	)
	defer span.End()

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "context done")
		return "", err
	}
	entityID, err := c.repos[kind].Create(ctx, rec)
	if err == nil && entityID == "" {
		err = fmt.Errorf("%s repository returned an empty id", kind)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.String("registration.entity_id", entityID))
	return entityID, nil
}

// awaitReadable polls the account repository until the new account is
// visible or propagationMaxWait elapses.
func (c *Creator) awaitReadable(ctx context.Context, accountID string) error {
	if c.propagationMaxWait <= 0 {
		return nil
	}
	ctx, span := c.tracer.Start(ctx, "registration.creation.verify")
	defer span.End()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = c.propagationMaxWait

	attempts := 0
	op := func() error {
		attempts++
		ok, err := c.repos[models.EntityAccount].Exists(ctx, accountID)
		if err != nil {
			return err
		}
		if !ok {
			return errNotVisible
		}
		return nil
	}
	err := backoff.Retry(op, backoff.WithContext(b, ctx))
	span.SetAttributes(attribute.Int("registration.verify_attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "account not readable")
		return fmt.Errorf("verify account %s: %w", accountID, err)
	}
	return nil
}

func (c *Creator) fail(ctx context.Context, id models.SessionID, kind models.EntityKind, cause error, ledger *Ledger, statuses []models.EntityStatus) (*Result, error) {
	c.logger.WarnContext(ctx, "entity creation failed, compensating",
		"session_id", id.String(),
		"entity", string(kind),
		"created", ledger.Len(),
		"error", cause,
	)
	orphans := c.compensate(ctx, id, ledger, statuses)

	res := &Result{
		Entities:   statuses,
		Ledger:     ledger.Entries(),
		Orphans:    orphans,
		FailedKind: kind,
	}
	err := dErrors.WithMeta(
		dErrors.Wrap(cause, dErrors.CodeCreationFailed, fmt.Sprintf("failed to create %s", kind)),
		"failed_entity", string(kind),
		"compensated", strconv.Itoa(ledger.Len()-len(orphans)),
		"orphaned", strconv.Itoa(len(orphans)),
	)
	return res, err
}

// compensate deletes ledger entries newest first. It runs on a context
// detached from the caller's cancellation so a dropped request still cleans
// up after itself.
func (c *Creator) compensate(ctx context.Context, id models.SessionID, ledger *Ledger, statuses []models.EntityStatus) []Orphan {
	if ledger.Len() == 0 {
		return nil
	}
	compCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()
	compCtx, span := c.tracer.Start(compCtx, "registration.creation.compensate",
		trace.WithAttributes(attribute.Int("registration.entries", ledger.Len())),
	)
	defer span.End()

	var orphans []Orphan
	for _, e := range ledger.Reversed() {
		err := c.repos[e.Kind].Delete(compCtx, e.ID)
		outcome := models.OutcomeCompensated
		if err != nil {
			outcome = models.OutcomeOrphaned
			orphans = append(orphans, Orphan{Kind: e.Kind, ID: e.ID, Err: err})
			c.logger.ErrorContext(ctx, "compensation failed, record orphaned",
				"session_id", id.String(),
				"entity", string(e.Kind),
				"entity_id", e.ID,
				"error", err,
			)
		}
		for i := range statuses {
			if statuses[i].Kind == e.Kind && statuses[i].ID == e.ID {
				statuses[i].Outcome = outcome
				if err != nil {
					statuses[i].Error = err.Error()
				}
			}
		}
	}
	if len(orphans) > 0 {
		span.SetStatus(codes.Error, strconv.Itoa(len(orphans))+" orphaned")
	}
	return orphans
}
