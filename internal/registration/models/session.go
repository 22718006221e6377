package models

import (
	"time"

	dErrors "github.com/amaralBruno27866/member-platform-test-sub015/pkg/domain-errors"
)

// Session is the aggregate root for one registration attempt.
//
// Invariants:
//   - Status changes only through Apply, along the transition DAG
//   - Progress flags never revert to false
//   - Progress.AccountCreated implies CreatedEntityID is set
//   - Payload is immutable after staging
//   - AdminNotes and ErrorMessages are append-only
//   - ExpiresAt is in the future while the status is non-terminal; a session
//     observed past ExpiresAt must be moved to expired before anything else
//
// Version is the optimistic concurrency token. The store increments it on
// every successful write and rejects writes carrying a stale value.
type Session struct {
	ID      SessionID `json:"id"`
	Version int64     `json:"version"`
	Status  Status    `json:"status"`

	Progress Progress `json:"progress"`
	Payload  Payload  `json:"payload"`

	Verification        Verification `json:"verification"`
	EmailResendAttempts int          `json:"email_resend_attempts"`
	Notification        Notification `json:"notification"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`

	AdminNotes    []AdminNote `json:"admin_notes,omitempty"`
	ErrorMessages []string    `json:"error_messages,omitempty"`

	CreatedEntityID string         `json:"created_entity_id,omitempty"`
	Entities        []EntityStatus `json:"entities,omitempty"`
	CreationLease   *CreationLease `json:"creation_lease,omitempty"`

	CancellationReason string `json:"cancellation_reason,omitempty"`
	RejectionReason    string `json:"rejection_reason,omitempty"`
}

// Progress mirrors completed milestones for idempotent re-entry and UI display.
type Progress struct {
	Staged            bool `json:"staged"`
	EmailVerified     bool `json:"email_verified"`
	AdminApproved     bool `json:"admin_approved"`
	AccountCreated    bool `json:"account_created"`
	WorkflowCompleted bool `json:"workflow_completed"`
}

// mark sets the flag matching status. It never clears one.
func (p *Progress) mark(status Status) {
	switch status {
	case StatusStaged:
		p.Staged = true
	case StatusEmailVerified:
		p.EmailVerified = true
	case StatusAdminApproved:
		p.AdminApproved = true
	case StatusAccountCreated:
		p.AccountCreated = true
	case StatusWorkflowCompleted:
		p.WorkflowCompleted = true
	}
}

// Covers reports whether every flag set in other is also set in p.
func (p Progress) Covers(other Progress) bool {
	return (!other.Staged || p.Staged) &&
		(!other.EmailVerified || p.EmailVerified) &&
		(!other.AdminApproved || p.AdminApproved) &&
		(!other.AccountCreated || p.AccountCreated) &&
		(!other.WorkflowCompleted || p.WorkflowCompleted)
}

// Verification holds the single-use email confirmation token.
type Verification struct {
	Token          string     `json:"token,omitempty"`
	TokenExpiresAt time.Time  `json:"token_expires_at,omitempty"`
	UsedAt         *time.Time `json:"used_at,omitempty"`
}

// Notification is delivery bookkeeping for verification emails.
type Notification struct {
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	LastSentAt time.Time `json:"last_sent_at,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

type AdminNote struct {
	AdminID   string    `json:"admin_id"`
	Action    string    `json:"action"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

// EntityOutcome is the per-entity result of the last creation attempt.
type EntityOutcome string

const (
	OutcomeCreated      EntityOutcome = "created"
	OutcomeFailed       EntityOutcome = "failed"
	OutcomeCompensated  EntityOutcome = "compensated"
	OutcomeOrphaned     EntityOutcome = "orphaned"
	OutcomeNotAttempted EntityOutcome = "not_attempted"
)

type EntityStatus struct {
	Kind    EntityKind    `json:"kind"`
	ID      string        `json:"id,omitempty"`
	Outcome EntityOutcome `json:"outcome"`
	Error   string        `json:"error,omitempty"`
}

// CreationLease marks an in-flight creation attempt so a concurrent call
// does not start a second saga for the same session.
type CreationLease struct {
	AttemptID string    `json:"attempt_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewSession builds a staged session. The pending → staged transition is
// applied here so every stored session has passed through the DAG.
func NewSession(id SessionID, payload Payload, now time.Time, ttl time.Duration) (*Session, error) {
	if id.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "session id is required")
	}
	if payload.Account.Password != "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "plaintext password must not be stored")
	}
	if payload.Account.PasswordHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "password hash is required")
	}
	s := &Session{
		ID:        id,
		Status:    StatusPending,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.Apply(EventStage, now); err != nil {
		return nil, err
	}
	return s, nil
}

// CanApply checks event against the DAG without mutating the session.
func (s *Session) CanApply(event Event) error {
	_, err := Next(s.Status, event)
	return err
}

// Apply moves the session along the DAG and records the milestone.
func (s *Session) Apply(event Event, now time.Time) error {
	next, err := Next(s.Status, event)
	if err != nil {
		return err
	}
	s.Status = next
	s.Progress.mark(next)
	s.UpdatedAt = now
	return nil
}

// IsExpired reports whether a non-terminal session is past its deadline.
func (s *Session) IsExpired(now time.Time) bool {
	return !s.Status.IsTerminal() && !now.Before(s.ExpiresAt)
}

// TimeRemaining is zero for terminal or expired sessions.
func (s *Session) TimeRemaining(now time.Time) time.Duration {
	if s.Status.IsTerminal() || !now.Before(s.ExpiresAt) {
		return 0
	}
	return s.ExpiresAt.Sub(now)
}

// Extend moves ExpiresAt to now+ttl.
func (s *Session) Extend(now time.Time, ttl time.Duration) {
	s.ExpiresAt = now.Add(ttl)
}

func (s *Session) AddAdminNote(adminID, action, note string, now time.Time) {
	s.AdminNotes = append(s.AdminNotes, AdminNote{
		AdminID:   adminID,
		Action:    action,
		Note:      note,
		CreatedAt: now,
	})
}

func (s *Session) AppendError(msg string) {
	s.ErrorMessages = append(s.ErrorMessages, msg)
}

// HasActiveLease reports whether another creation attempt holds the lease.
func (s *Session) HasActiveLease(now time.Time) bool {
	return s.CreationLease != nil && now.Before(s.CreationLease.ExpiresAt)
}

func (s *Session) ClaimLease(attemptID string, now time.Time, ttl time.Duration) {
	s.CreationLease = &CreationLease{AttemptID: attemptID, ExpiresAt: now.Add(ttl)}
}

// HoldsLease reports whether attemptID is the current lease holder.
func (s *Session) HoldsLease(attemptID string) bool {
	return s.CreationLease != nil && s.CreationLease.AttemptID == attemptID
}

func (s *Session) ReleaseLease() {
	s.CreationLease = nil
}

// RecordCreation stores the saga outcome on success.
func (s *Session) RecordCreation(entityID string, entities []EntityStatus, now time.Time) error {
	if entityID == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "created entity id is required")
	}
	if err := s.CanApply(EventCreateSucceeded); err != nil {
		return err
	}
	s.CreatedEntityID = entityID
	s.Entities = entities
	return s.Apply(EventCreateSucceeded, now)
}

// Email returns the applicant's address.
func (s *Session) Email() string {
	return s.Payload.Account.Email
}

// CheckInvariants verifies the structural invariants that must hold after
// every write.
func (s *Session) CheckInvariants() error {
	if !s.Status.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "unknown status "+string(s.Status))
	}
	if s.Progress.AccountCreated && s.CreatedEntityID == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "account created without an entity id")
	}
	if s.Payload.Account.Password != "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "plaintext password present on session")
	}
	if s.Verification.UsedAt != nil && s.Verification.Token != "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "verification token still present after use")
	}
	return nil
}
