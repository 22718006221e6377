package models

import (
	dErrors "github.com/amaralBruno27866/member-platform-test-sub015/pkg/domain-errors"
)

// Status is the lifecycle state of a registration session.
type Status string

const (
	StatusPending           Status = "pending"
	StatusStaged            Status = "staged"
	StatusEmailVerified     Status = "email_verified"
	StatusAdminApproved     Status = "admin_approved"
	StatusAdminRejected     Status = "admin_rejected"
	StatusAccountCreated    Status = "account_created"
	StatusCreationFailed    Status = "creation_failed"
	StatusWorkflowCompleted Status = "workflow_completed"
	StatusCancelled         Status = "cancelled"
	StatusExpired           Status = "expired"
)

// AllStatuses lists every status in DAG order.
var AllStatuses = []Status{
	StatusPending,
	StatusStaged,
	StatusEmailVerified,
	StatusAdminApproved,
	StatusAdminRejected,
	StatusAccountCreated,
	StatusCreationFailed,
	StatusWorkflowCompleted,
	StatusCancelled,
	StatusExpired,
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusAdminRejected, StatusWorkflowCompleted, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

// IsRemovable reports whether the session may be deleted eagerly: terminal
// states plus creation_failed, which an operator may abandon instead of retrying.
func (s Status) IsRemovable() bool {
	return s.IsTerminal() || s == StatusCreationFailed
}

func (s Status) IsValid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Event is a lifecycle trigger applied to a session.
type Event string

const (
	EventStage           Event = "stage"
	EventVerifyEmail     Event = "verify_email"
	EventApprove         Event = "approve"
	EventReject          Event = "reject"
	EventCreateSucceeded Event = "create_succeeded"
	EventCreateFailed    Event = "create_failed"
	EventRetryCreate     Event = "retry_create"
	EventFinalize        Event = "finalize"
	EventCancel          Event = "cancel"
	EventExpire          Event = "expire"
)

// AllEvents lists every event.
var AllEvents = []Event{
	EventStage,
	EventVerifyEmail,
	EventApprove,
	EventReject,
	EventCreateSucceeded,
	EventCreateFailed,
	EventRetryCreate,
	EventFinalize,
	EventCancel,
	EventExpire,
}

// transitions is the lifecycle DAG. cancel and expire are handled separately
// because they apply to every non-terminal state.
var transitions = map[Status]map[Event]Status{
	StatusPending:        {EventStage: StatusStaged},
	StatusStaged:         {EventVerifyEmail: StatusEmailVerified},
	StatusEmailVerified:  {EventApprove: StatusAdminApproved, EventReject: StatusAdminRejected},
	StatusAdminApproved:  {EventCreateSucceeded: StatusAccountCreated, EventCreateFailed: StatusCreationFailed},
	StatusCreationFailed: {EventRetryCreate: StatusAdminApproved},
	StatusAccountCreated: {EventFinalize: StatusWorkflowCompleted},
}

// Next returns the status reached by applying event to from, or an
// invalid_state_transition error carrying current_state and attempted_event.
func Next(from Status, event Event) (Status, error) {
	if !from.IsTerminal() {
		switch event {
		case EventCancel:
			return StatusCancelled, nil
		case EventExpire:
			return StatusExpired, nil
		}
		if to, ok := transitions[from][event]; ok {
			return to, nil
		}
	}
	return from, dErrors.WithMeta(
		dErrors.New(dErrors.CodeInvalidStateTransition,
			"cannot apply "+string(event)+" to a registration in state "+string(from)),
		"current_state", string(from),
		"attempted_event", string(event),
	)
}

// CanTransition reports whether event is legal from s.
func (s Status) CanTransition(event Event) bool {
	_, err := Next(s, event)
	return err == nil
}
