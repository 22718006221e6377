package service

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/models"
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/notification"
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/validation"
	dErrors "github.com/amaralBruno27866/member-platform-test-sub015/pkg/domain-errors"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/email"
	audit "github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/audit"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/sentinel"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/requestcontext"
)

// StageRequest carries the applicant's payload with the plaintext password.
type StageRequest struct {
	Payload models.Payload
}

// Stage validates the payload, stores a new staged session and sends the
// verification email. A delivery failure does not undo staging: the result
// reports EmailSent=false plus a warning and the applicant can resend.
func (s *Service) Stage(ctx context.Context, req StageRequest) (result *models.StageResult, err error) {
	ctx, span := s.tracer.Start(ctx, "registration.stage")
	defer func() { endSpan(span, err) }()

	now := requestcontext.Now(ctx)
	payload := req.Payload
	payload.Account.Email = email.Normalize(payload.Account.Email)

	res, err := s.validator.Validate(ctx, payload)
	if err != nil {
		return nil, err
	}
	if verr := res.Err(); verr != nil {
		return nil, verr
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(payload.Account.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to secure credentials")
	}
	payload.Account.PasswordHash = string(hash)
	payload = payload.Redacted()

	sess, err := models.NewSession(models.NewSessionID(), payload, now, s.cfg.StagedTTL)
	if err != nil {
		return nil, err
	}
	if err := s.notifier.IssueToken(sess, now); err != nil {
		return nil, err
	}

	// the reservation closes the window between the uniqueness probe and Create
	if err := s.sessions.ReserveEmail(ctx, sess.Email(), sess.ID, s.cfg.StagedTTL); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Validation("registration payload is invalid", []dErrors.FieldError{{
				Field:   "account.email",
				Reason:  validation.ReasonTaken,
				Message: "account.email is already registered",
			}})
		}
		return nil, s.translate(err)
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		s.releaseEmail(ctx, sess)
		return nil, s.translate(err)
	}
	span.SetAttributes(sessionAttr(sess.ID))
	s.metrics.IncrementTransition(string(models.StatusStaged))
	s.emit(ctx, audit.EventRegistrationStaged, sess, "", "")

	s.logger.InfoContext(ctx, "registration staged",
		"session_id", sess.ID.String(),
		"organization_id", payload.OrganizationID,
	)

	result = &models.StageResult{
		SessionID: sess.ID,
		Status:    sess.Status,
		ExpiresAt: sess.ExpiresAt,
	}
	sent, sendErr := s.deliver(ctx, sess)
	result.EmailSent = sent
	if sendErr != nil {
		result.Warnings = append(result.Warnings, string(dErrors.CodeOf(sendErr))+": "+dErrors.MessageOf(sendErr))
	}
	return result, nil
}

// deliver sends the verification email outside the lock and records the
// outcome on the session. Recording failures are logged only.
func (s *Service) deliver(ctx context.Context, sess *models.Session) (bool, error) {
	res, sendErr := s.notifier.SendVerification(ctx, sess)
	sent := sendErr == nil && res != nil && res.Sent
	s.metrics.IncrementEmail(sent)

	now := requestcontext.Now(ctx)
	if _, err := s.sessions.Execute(ctx, sess.ID, nil, func(cur *models.Session) error {
		notification.Record(cur, res, sendErr, now)
		return nil
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to record email delivery",
			"session_id", sess.ID.String(),
			"error", err,
		)
	}
	return sent, sendErr
}
