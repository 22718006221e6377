package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/creation"
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/models"
	dErrors "github.com/amaralBruno27866/member-platform-test-sub015/pkg/domain-errors"
	audit "github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/audit"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/sentinel"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/requestcontext"
)

// CreateEntities runs the creation saga for an approved session.
//
// It is idempotent: once CreatedEntityID is recorded, later calls return it
// without touching any repository. The saga itself runs outside the session
// lock; a creation lease claimed up front keeps a concurrent call from
// starting a second saga.
func (s *Service) CreateEntities(ctx context.Context, id models.SessionID) (result *models.CreationResult, err error) {
	ctx, span := s.startSpan(ctx, "create_entities", id)
	defer func() { endSpan(span, err) }()

	now := requestcontext.Now(ctx)
	attemptID := uuid.NewString()

	sess, err := s.execute(ctx, id,
		func(cur *models.Session) error {
			if cur.CreatedEntityID != "" {
				return errReplay
			}
			if err := cur.CanApply(models.EventCreateSucceeded); err != nil {
				return err
			}
			if cur.HasActiveLease(now) {
				s.metrics.IncrementRejection("lease_held")
				return dErrors.WithMeta(
					dErrors.New(dErrors.CodeConflict, "creation already in progress"),
					"lease_expires_at", cur.CreationLease.ExpiresAt.UTC().Format(time.RFC3339),
				)
			}
			return nil
		},
		func(cur *models.Session) error {
			cur.ClaimLease(attemptID, now, s.cfg.CreationLeaseTTL)
			return nil
		},
	)
	if errors.Is(err, errReplay) {
		return &models.CreationResult{
			SessionID: sess.ID,
			Status:    sess.Status,
			EntityID:  sess.CreatedEntityID,
			Entities:  sess.Entities,
			Replayed:  true,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, createErr := s.creator.Create(ctx, id, sess.Payload)
	s.metrics.ObserveCreation(time.Since(start))
	if createErr != nil {
		return s.recordFailure(ctx, id, attemptID, res, createErr)
	}
	return s.recordSuccess(ctx, id, attemptID, res)
}

// RetryCreateEntities moves a creation_failed session back to
// admin_approved and runs the saga again. Retry is never automatic.
func (s *Service) RetryCreateEntities(ctx context.Context, id models.SessionID) (*models.CreationResult, error) {
	now := requestcontext.Now(ctx)
	_, err := s.execute(ctx, id,
		func(cur *models.Session) error { return cur.CanApply(models.EventRetryCreate) },
		func(cur *models.Session) error { return s.apply(cur, models.EventRetryCreate, now) },
	)
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementTransition(string(models.StatusAdminApproved))
	s.logger.InfoContext(ctx, "retrying entity creation", "session_id", id.String())
	return s.CreateEntities(ctx, id)
}

// recordSuccess stores the saga outcome on the session. If the session moved
// on while the saga ran (cancelled, expired, lease lost) or the write fails,
// the new records are rolled back so nothing outlives its registration.
func (s *Service) recordSuccess(ctx context.Context, id models.SessionID, attemptID string, res *creation.Result) (*models.CreationResult, error) {
	now := requestcontext.Now(ctx)
	sess, err := s.execute(context.WithoutCancel(ctx), id,
		func(cur *models.Session) error { return s.checkLease(cur, attemptID) },
		func(cur *models.Session) error {
			if err := cur.RecordCreation(res.EntityID, res.Entities, now); err != nil {
				return err
			}
			cur.ReleaseLease()
			cur.Extend(now, s.ttlFor(cur.Status))
			return nil
		},
	)
	if err != nil {
		retErr := s.rollback(ctx, id, res, err)
		s.dropLease(ctx, id, attemptID)
		return nil, retErr
	}

	s.refreshReservation(ctx, sess)
	s.metrics.IncrementTransition(string(sess.Status))
	s.emit(ctx, audit.EventRegistrationEntitiesCreated, sess, "created", "")
	s.logger.InfoContext(ctx, "registration entities created",
		"session_id", id.String(),
		"entity_id", res.EntityID,
		"entities", len(res.Entities),
	)
	return &models.CreationResult{
		SessionID: sess.ID,
		Status:    sess.Status,
		EntityID:  sess.CreatedEntityID,
		Entities:  sess.Entities,
	}, nil
}

// recordFailure moves the session to creation_failed with the ledger
// snapshot. A nil res means the saga never started (misconfiguration); the
// lease is released and the session stays admin_approved.
func (s *Service) recordFailure(ctx context.Context, id models.SessionID, attemptID string, res *creation.Result, createErr error) (*models.CreationResult, error) {
	now := requestcontext.Now(ctx)
	warnings := res.Warnings()

	// the record step must run even if the caller gave up
	recCtx := context.WithoutCancel(ctx)
	sess, err := s.execute(recCtx, id,
		func(cur *models.Session) error { return s.checkLease(cur, attemptID) },
		func(cur *models.Session) error {
			cur.ReleaseLease()
			if res == nil {
				return nil
			}
			if err := s.apply(cur, models.EventCreateFailed, now); err != nil {
				return err
			}
			cur.Entities = res.Entities
			cur.AppendError(dErrors.MessageOf(createErr) + ": " + causeOf(createErr) + "; " + res.LedgerSnapshot())
			for _, w := range warnings {
				cur.AppendError(w)
			}
			return nil
		},
	)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to record creation failure",
			"session_id", id.String(),
			"ledger", res.LedgerSnapshot(),
			"error", err,
		)
		sess = nil
	}

	if res == nil {
		return nil, createErr
	}

	s.metrics.IncrementCreationFailure(string(res.FailedKind))
	if len(res.Ledger) > 0 {
		s.metrics.IncrementCompensation()
	}
	for _, o := range res.Orphans {
		s.metrics.IncrementOrphan(string(o.Kind))
	}

	out := &models.CreationResult{
		SessionID: id,
		Status:    models.StatusCreationFailed,
		Entities:  res.Entities,
		Warnings:  warnings,
	}
	if sess != nil {
		out.Status = sess.Status
		s.refreshReservation(ctx, sess)
		s.metrics.IncrementTransition(string(sess.Status))
		s.emit(ctx, audit.EventRegistrationCreationFailed, sess, "failed", string(res.FailedKind))
		if len(warnings) > 0 {
			s.emit(ctx, audit.EventRegistrationCompensationFailed, sess, "orphaned", strings.Join(warnings, "; "))
		}
	}

	retErr := createErr
	if compErr := res.CompensationError(); compErr != nil {
		retErr = errors.Join(
			dErrors.WithMeta(createErr, string(dErrors.CodeCompensationFailed), strings.Join(warnings, "; ")),
			compErr,
		)
	}
	return out, retErr
}

// rollback undoes a successful saga whose record step failed and returns
// recordErr annotated with what was removed.
func (s *Service) rollback(ctx context.Context, id models.SessionID, res *creation.Result, recordErr error) error {
	s.logger.WarnContext(ctx, "entities created but session update failed, rolling back",
		"session_id", id.String(),
		"entity_id", res.EntityID,
		"ledger", res.LedgerSnapshot(),
		"error", recordErr,
	)
	s.metrics.IncrementCompensation()
	compErr := s.creator.Rollback(ctx, id, res)
	for _, o := range res.Orphans {
		s.metrics.IncrementOrphan(string(o.Kind))
	}

	retErr := dErrors.WithMeta(recordErr,
		"rolled_back", strconv.Itoa(len(res.Ledger)-len(res.Orphans)),
	)
	if compErr != nil {
		s.logger.ErrorContext(ctx, "rollback left orphaned records",
			"session_id", id.String(),
			"orphans", len(res.Orphans),
			"error", compErr,
		)
		retErr = errors.Join(
			dErrors.WithMeta(retErr, string(dErrors.CodeCompensationFailed), strings.Join(res.Warnings(), "; ")),
			compErr,
		)
	}
	return retErr
}

// checkLease rejects a record step whose lease was lost to another attempt.
func (s *Service) checkLease(cur *models.Session, attemptID string) error {
	if !cur.HoldsLease(attemptID) {
		return dErrors.New(dErrors.CodeConflict, "creation lease lost to another attempt")
	}
	return nil
}

// dropLease releases attemptID's lease if it still holds one, so a rolled
// back attempt does not block a retry until the lease lapses.
func (s *Service) dropLease(ctx context.Context, id models.SessionID, attemptID string) {
	_, err := s.sessions.Execute(context.WithoutCancel(ctx), id,
		func(cur *models.Session) error { return s.checkLease(cur, attemptID) },
		func(cur *models.Session) error {
			cur.ReleaseLease()
			return nil
		},
	)
	if err != nil && !dErrors.HasCode(err, dErrors.CodeConflict) && !errors.Is(err, sentinel.ErrNotFound) {
		s.logger.WarnContext(ctx, "failed to release creation lease", "session_id", id.String(), "error", err)
	}
}

// causeOf is the innermost message of err, without the domain prefix.
func causeOf(err error) string {
	var de *dErrors.Error
	if errors.As(err, &de) && de.Err != nil {
		return de.Err.Error()
	}
	return err.Error()
}
