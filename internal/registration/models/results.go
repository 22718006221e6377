package models

import "time"

// StageResult is returned by Stage. EmailSent is false when delivery failed;
// staging still succeeded and the applicant can request a resend.
type StageResult struct {
	SessionID SessionID `json:"session_id"`
	Status    Status    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
	EmailSent bool      `json:"email_sent"`
	Warnings  []string  `json:"warnings,omitempty"`
}

type StatusResult struct {
	SessionID SessionID `json:"session_id"`
	Status    Status    `json:"status"`
	Progress  Progress  `json:"progress"`
}

type ResendResult struct {
	Sent              bool `json:"sent"`
	AttemptsRemaining int  `json:"attempts_remaining"`
}

// CreationResult reports a creation attempt. Warnings carries
// compensation_failed details (orphaned records) separately from the error.
type CreationResult struct {
	SessionID SessionID      `json:"session_id"`
	Status    Status         `json:"status"`
	EntityID  string         `json:"entity_id,omitempty"`
	Entities  []EntityStatus `json:"entities,omitempty"`
	Warnings  []string       `json:"warnings,omitempty"`
	// Replayed is true when the call short-circuited on an earlier success.
	Replayed bool `json:"replayed"`
}

type StateView struct {
	SessionID            SessionID      `json:"session_id"`
	Status               Status         `json:"status"`
	Progress             Progress       `json:"progress"`
	TimeRemaining        time.Duration  `json:"-"`
	TimeRemainingSeconds int64          `json:"time_remaining_seconds"`
	ExpiresAt            time.Time      `json:"expires_at"`
	EmailResendAttempts  int            `json:"email_resend_attempts"`
	CreatedEntityID      string         `json:"created_entity_id,omitempty"`
	Entities             []EntityStatus `json:"entities,omitempty"`
}

// NewStateView projects the caller-visible part of a session.
func NewStateView(s *Session, now time.Time) *StateView {
	remaining := s.TimeRemaining(now)
	return &StateView{
		SessionID:            s.ID,
		Status:               s.Status,
		Progress:             s.Progress,
		TimeRemaining:        remaining,
		TimeRemainingSeconds: int64(remaining / time.Second),
		ExpiresAt:            s.ExpiresAt,
		EmailResendAttempts:  s.EmailResendAttempts,
		CreatedEntityID:      s.CreatedEntityID,
		Entities:             s.Entities,
	}
}

func NewStatusResult(s *Session) *StatusResult {
	return &StatusResult{SessionID: s.ID, Status: s.Status, Progress: s.Progress}
}
