package handler

import (
	"strings"

	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/models"
	dErrors "github.com/amaralBruno27866/member-platform-test-sub015/pkg/domain-errors"
)

// stageRequest is the full registration payload. Field rules are applied by
// the validation stage; Validate only rejects bodies that cannot be staged.
type stageRequest struct {
	models.Payload
}

func (r *stageRequest) Validate() error {
	r.OrganizationID = strings.TrimSpace(r.OrganizationID)
	r.Account.Email = strings.TrimSpace(r.Account.Email)
	if r.Account.PasswordHash != "" {
		return dErrors.Validation("registration payload is invalid", []dErrors.FieldError{{
			Field:   "account.password_hash",
			Reason:  "not_allowed",
			Message: "password_hash cannot be supplied",
		}})
	}
	return nil
}

type verifyRequest struct {
	Token string `json:"token"`
}

func (r *verifyRequest) Validate() error {
	r.Token = strings.TrimSpace(r.Token)
	if r.Token == "" {
		return dErrors.Validation("verification token is required", []dErrors.FieldError{
			{Field: "token", Reason: "required", Message: "token is required"},
		})
	}
	return nil
}

type approveRequest struct {
	Notes string `json:"notes"`
}

func (r *approveRequest) Validate() error {
	r.Notes = strings.TrimSpace(r.Notes)
	return nil
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (r *rejectRequest) Validate() error {
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return dErrors.Validation("rejection reason is required", []dErrors.FieldError{
			{Field: "reason", Reason: "required", Message: "reason is required"},
		})
	}
	return nil
}

// reasonRequest is the optional cancellation reason.
type reasonRequest struct {
	Reason string `json:"reason"`
}

func (r *reasonRequest) Validate() error {
	r.Reason = strings.TrimSpace(r.Reason)
	return nil
}
