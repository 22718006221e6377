package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/models"
	dErrors "github.com/amaralBruno27866/member-platform-test-sub015/pkg/domain-errors"
	audit "github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/audit"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/requestcontext"
)

// ApprovalCheck is a business predicate that must pass before an admin
// approval is recorded. Checks run against a snapshot, outside the lock.
type ApprovalCheck interface {
	Check(ctx context.Context, sess *models.Session) error
}

// ApprovalCheckFunc adapts a function to ApprovalCheck.
type ApprovalCheckFunc func(ctx context.Context, sess *models.Session) error

func (f ApprovalCheckFunc) Check(ctx context.Context, sess *models.Session) error {
	return f(ctx, sess)
}

// MemberCounter counts active memberships of an organization.
type MemberCounter interface {
	CountByOrganization(ctx context.Context, organizationID string) (int, error)
}

// OrganizationCapacityCheck rejects approvals once an organization holds
// limit members. A limit of zero or less disables the check.
type OrganizationCapacityCheck struct {
	counter MemberCounter
	limit   int
}

func NewOrganizationCapacityCheck(counter MemberCounter, limit int) *OrganizationCapacityCheck {
	return &OrganizationCapacityCheck{counter: counter, limit: limit}
}

func (c *OrganizationCapacityCheck) Check(ctx context.Context, sess *models.Session) error {
	if c.limit <= 0 || c.counter == nil {
		return nil
	}
	orgID := sess.Payload.OrganizationID
	count, err := c.counter.CountByOrganization(ctx, orgID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeExternalUnavailable, "organization capacity check unavailable")
	}
	if count >= c.limit {
		return dErrors.WithMeta(
			dErrors.New(dErrors.CodeConflict, "organization has reached its member capacity"),
			"organization_id", orgID,
			"limit", strconv.Itoa(c.limit),
		)
	}
	return nil
}

// Approve records an admin approval after every ApprovalCheck passes.
func (s *Service) Approve(ctx context.Context, id models.SessionID, adminID, notes string) (result *models.StatusResult, err error) {
	ctx, span := s.startSpan(ctx, "approve", id)
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(adminID) == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "admin identity is required")
	}

	snapshot, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := snapshot.CanApply(models.EventApprove); err != nil {
		return nil, s.translate(err)
	}
	if err := s.runApprovalChecks(ctx, snapshot); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	sess, err := s.execute(ctx, id,
		func(cur *models.Session) error { return cur.CanApply(models.EventApprove) },
		func(cur *models.Session) error {
			if err := s.apply(cur, models.EventApprove, now); err != nil {
				return err
			}
			cur.AddAdminNote(adminID, string(models.EventApprove), notes, now)
			return nil
		},
	)
	if err != nil {
		return nil, err
	}

	s.refreshReservation(ctx, sess)
	s.metrics.IncrementTransition(string(sess.Status))
	s.emit(ctx, audit.EventRegistrationApproved, sess, "approved", notes)
	s.logger.InfoContext(ctx, "registration approved",
		"session_id", id.String(),
		"admin_id", adminID,
	)
	return models.NewStatusResult(sess), nil
}

func (s *Service) runApprovalChecks(ctx context.Context, sess *models.Session) error {
	for _, check := range s.approvalChecks {
		if err := check.Check(ctx, sess); err != nil {
			var de *dErrors.Error
			if !errors.As(err, &de) {
				return dErrors.Wrap(err, dErrors.CodeExternalUnavailable, "approval check unavailable")
			}
			s.metrics.IncrementRejection("approval_check")
			return err
		}
	}
	return nil
}

// Reject is terminal. The reason is mandatory and kept on the session.
func (s *Service) Reject(ctx context.Context, id models.SessionID, adminID, reason string) (result *models.StatusResult, err error) {
	ctx, span := s.startSpan(ctx, "reject", id)
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(adminID) == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "admin identity is required")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.Validation("rejection reason is required", []dErrors.FieldError{
			{Field: "reason", Reason: "required", Message: "reason is required"},
		})
	}

	now := requestcontext.Now(ctx)
	sess, err := s.execute(ctx, id,
		func(cur *models.Session) error { return cur.CanApply(models.EventReject) },
		func(cur *models.Session) error {
			if err := s.apply(cur, models.EventReject, now); err != nil {
				return err
			}
			cur.RejectionReason = reason
			cur.AddAdminNote(adminID, string(models.EventReject), reason, now)
			return nil
		},
	)
	if err != nil {
		return nil, err
	}

	s.releaseEmail(ctx, sess)
	s.metrics.IncrementTransition(string(sess.Status))
	s.emit(ctx, audit.EventRegistrationRejected, sess, "rejected", reason)
	s.logger.InfoContext(ctx, "registration rejected",
		"session_id", id.String(),
		"admin_id", adminID,
	)
	return models.NewStatusResult(sess), nil
}
