package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/models"
	dErrors "github.com/amaralBruno27866/member-platform-test-sub015/pkg/domain-errors"
	audit "github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/audit"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/sentinel"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/requestcontext"
)

// Finalize completes the workflow once entities exist. The session keeps a
// short retention TTL and may be removed early with Cleanup.
func (s *Service) Finalize(ctx context.Context, id models.SessionID) (result *models.StatusResult, err error) {
	ctx, span := s.startSpan(ctx, "finalize", id)
	defer func() { endSpan(span, err) }()

	now := requestcontext.Now(ctx)
	sess, err := s.execute(ctx, id,
		func(cur *models.Session) error { return cur.CanApply(models.EventFinalize) },
		func(cur *models.Session) error { return s.apply(cur, models.EventFinalize, now) },
	)
	if err != nil {
		return nil, err
	}

	s.releaseEmail(ctx, sess)
	s.metrics.IncrementTransition(string(sess.Status))
	s.emit(ctx, audit.EventRegistrationCompleted, sess, "completed", "")
	s.logger.InfoContext(ctx, "registration completed",
		"session_id", id.String(),
		"entity_id", sess.CreatedEntityID,
	)
	return models.NewStatusResult(sess), nil
}

// Cancel ends any non-terminal session immediately, except while a creation
// saga holds the lease.
func (s *Service) Cancel(ctx context.Context, id models.SessionID, reason string) (result *models.StatusResult, err error) {
	ctx, span := s.startSpan(ctx, "cancel", id)
	defer func() { endSpan(span, err) }()

	now := requestcontext.Now(ctx)
	reason = strings.TrimSpace(reason)
	sess, err := s.execute(ctx, id,
		func(cur *models.Session) error {
			if err := cur.CanApply(models.EventCancel); err != nil {
				return err
			}
			if cur.HasActiveLease(now) {
				return dErrors.WithMeta(
					dErrors.New(dErrors.CodeConflict, "entity creation in progress"),
					"lease_expires_at", cur.CreationLease.ExpiresAt.UTC().Format(time.RFC3339),
				)
			}
			return nil
		},
		func(cur *models.Session) error {
			if err := s.apply(cur, models.EventCancel, now); err != nil {
				return err
			}
			cur.CancellationReason = reason
			if adminID := requestcontext.AdminID(ctx); adminID != "" {
				cur.AddAdminNote(adminID, string(models.EventCancel), reason, now)
			}
			return nil
		},
	)
	if err != nil {
		return nil, err
	}

	s.releaseEmail(ctx, sess)
	s.metrics.IncrementTransition(string(sess.Status))
	s.emit(ctx, audit.EventRegistrationCancelled, sess, "cancelled", reason)
	s.logger.InfoContext(ctx, "registration cancelled",
		"session_id", id.String(),
		"reason", reason,
	)
	return models.NewStatusResult(sess), nil
}

// GetState is read-only apart from recording an observed expiry.
func (s *Service) GetState(ctx context.Context, id models.SessionID) (*models.StateView, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return models.NewStateView(sess, requestcontext.Now(ctx)), nil
}

// Cleanup deletes a terminal or abandoned creation_failed session and
// releases its email reservation. Live sessions are refused.
func (s *Service) Cleanup(ctx context.Context, id models.SessionID) (err error) {
	ctx, span := s.startSpan(ctx, "cleanup", id)
	defer func() { endSpan(span, err) }()

	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return s.translate(err)
	}
	if sess.IsExpired(requestcontext.Now(ctx)) {
		s.expire(ctx, id)
		if sess, err = s.sessions.Get(ctx, id); err != nil {
			return s.translate(err)
		}
	}
	if !sess.Status.IsRemovable() {
		return dErrors.WithMeta(
			dErrors.New(dErrors.CodeInvalidStateTransition, "only finished registrations can be cleaned up"),
			"current_state", string(sess.Status),
			"attempted_event", "cleanup",
		)
	}

	if err := s.sessions.Delete(ctx, id); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return s.translate(err)
	}
	s.releaseEmail(ctx, sess)
	s.logger.InfoContext(ctx, "registration session removed",
		"session_id", id.String(),
		"status", string(sess.Status),
	)
	return nil
}
