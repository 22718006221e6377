package models

import (
	"github.com/google/uuid"

	dErrors "github.com/amaralBruno27866/member-platform-test-sub015/pkg/domain-errors"
)

// SessionID identifies one registration session. It is a UUID string so it
// can be used directly as a store key suffix and a URL path segment.
type SessionID string

func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

// ParseSessionID validates and canonicalizes a session id from a caller.
func ParseSessionID(s string) (SessionID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid registration session id")
	}
	return SessionID(u.String()), nil
}

func (id SessionID) String() string { return string(id) }

func (id SessionID) IsZero() bool { return id == "" }
