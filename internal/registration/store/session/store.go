// Package session persists registration sessions in a key-value store with
// TTL. Every write goes through a version check; Execute wraps a
// read-modify-write in a short per-session lock.
//
// Errors are sentinel values from pkg/platform/sentinel:
//   - ErrNotFound: no session (or reservation) under the key
//   - ErrConflict: version mismatch, concurrent WATCH abort, or key already taken
//   - ErrLocked: the per-session lock is held by another caller
package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/models"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/email"
)

const (
	sessionKeyPrefix = "registration:session:"
	lockKeyPrefix    = "registration:lock:"
	emailKeyPrefix   = "registration:email:"

	defaultLockTTL     = 5 * time.Second
	defaultLockWait    = 250 * time.Millisecond
	lockRetryInterval  = 10 * time.Millisecond
	defaultExpiryGrace = time.Hour
	minKeyTTL          = time.Second
)

func sessionKey(id models.SessionID) string {
	return sessionKeyPrefix + id.String()
}

func lockKey(id models.SessionID) string {
	return lockKeyPrefix + id.String()
}

func emailKey(address string) string {
	return emailKeyPrefix + email.Normalize(address)
}

// ValidateFunc inspects the current session. A non-nil error aborts Execute
// without writing.
type ValidateFunc func(*models.Session) error

// MutateFunc changes the session in place. A non-nil error aborts Execute
// without writing.
type MutateFunc func(*models.Session) error

// options shared by both backends.
type options struct {
	lockTTL     time.Duration
	lockWait    time.Duration
	expiryGrace time.Duration
	now         func() time.Time
}

type Option func(*options)

// WithLockTTL bounds how long a crashed holder can block a session.
func WithLockTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.lockTTL = d
		}
	}
}

// WithLockWait sets how long Execute polls for a held lock before ErrLocked.
func WithLockWait(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.lockWait = d
		}
	}
}

// WithExpiryGrace keeps non-terminal keys alive this long past ExpiresAt so
// an expired session can still be observed and recorded as expired.
func WithExpiryGrace(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.expiryGrace = d
		}
	}
}

// WithClock overrides the time source used for key TTLs. Tests only.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func newOptions(opts []Option) options {
	o := options{
		lockTTL:     defaultLockTTL,
		lockWait:    defaultLockWait,
		expiryGrace: defaultExpiryGrace,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// keyTTL derives the store TTL from the session deadline.
func (o options) keyTTL(s *models.Session) time.Duration {
	ttl := s.ExpiresAt.Sub(o.now())
	if !s.Status.IsTerminal() {
		ttl += o.expiryGrace
	}
	if ttl < minKeyTTL {
		ttl = minKeyTTL
	}
	return ttl
}

func encode(s *models.Session) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*models.Session, error) {
	var s models.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}
