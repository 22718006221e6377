package service

import (
	"context"
	"strconv"

	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/models"
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/notification"
	dErrors "github.com/amaralBruno27866/member-platform-test-sub015/pkg/domain-errors"
	audit "github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/audit"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/requestcontext"
)

// VerifyEmail consumes the verification token and moves staged → email_verified.
// A wrong or expired token is a validation error and leaves the session as is.
func (s *Service) VerifyEmail(ctx context.Context, id models.SessionID, token string) (result *models.StatusResult, err error) {
	ctx, span := s.startSpan(ctx, "verify_email", id)
	defer func() { endSpan(span, err) }()

	if token == "" {
		return nil, dErrors.Validation("verification token is required", []dErrors.FieldError{
			{Field: "token", Reason: "required", Message: "token is required"},
		})
	}

	now := requestcontext.Now(ctx)
	sess, err := s.execute(ctx, id,
		func(cur *models.Session) error { return cur.CanApply(models.EventVerifyEmail) },
		func(cur *models.Session) error {
			if err := notification.CheckToken(cur, token, now); err != nil {
				return err
			}
			return s.apply(cur, models.EventVerifyEmail, now)
		},
	)
	if err != nil {
		return nil, err
	}

	s.refreshReservation(ctx, sess)
	s.metrics.IncrementTransition(string(sess.Status))
	s.emit(ctx, audit.EventRegistrationEmailVerified, sess, "", "")
	return models.NewStatusResult(sess), nil
}

// ResendVerification re-sends the verification email while the session is
// staged. At the resend cap it fails with too_many_attempts and the counter
// stays put. A delivery failure is returned as external_unavailable together
// with the result.
func (s *Service) ResendVerification(ctx context.Context, id models.SessionID) (result *models.ResendResult, err error) {
	ctx, span := s.startSpan(ctx, "resend_verification", id)
	defer func() { endSpan(span, err) }()

	now := requestcontext.Now(ctx)
	sess, err := s.execute(ctx, id,
		func(cur *models.Session) error {
			if cur.Status != models.StatusStaged {
				return dErrors.WithMeta(
					dErrors.New(dErrors.CodeInvalidStateTransition, "verification email can only be resent while the registration is staged"),
					"current_state", string(cur.Status),
					"attempted_event", "resend_verification",
				)
			}
			return nil
		},
		func(cur *models.Session) error {
			if err := s.notifier.PrepareResend(cur, now); err != nil {
				return err
			}
			// a reissued token must not outlive its session
			if cur.ExpiresAt.Before(cur.Verification.TokenExpiresAt) {
				cur.ExpiresAt = cur.Verification.TokenExpiresAt
			}
			return nil
		},
	)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeTooManyAttempts) {
			s.metrics.IncrementResendRejected()
		}
		return nil, err
	}
	s.refreshReservation(ctx, sess)

	sent, sendErr := s.deliver(ctx, sess)
	result = &models.ResendResult{
		Sent:              sent,
		AttemptsRemaining: s.notifier.AttemptsRemaining(sess),
	}
	s.emit(ctx, audit.EventRegistrationVerificationResent, sess, strconv.FormatBool(sent), "")
	if sendErr != nil {
		return result, dErrors.WithMeta(sendErr, "attempts_remaining", strconv.Itoa(result.AttemptsRemaining))
	}
	return result, nil
}
