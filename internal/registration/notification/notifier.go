// Package notification issues verification tokens and delivers the
// verification email through an injected sender.
//
// Token bookkeeping (IssueToken, PrepareResend, CheckToken, Record) mutates
// the session and runs under the store lock. SendVerification performs I/O
// and must be called outside it.
package notification

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/models"
	dErrors "github.com/amaralBruno27866/member-platform-test-sub015/pkg/domain-errors"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/email"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/circuit"
)

// TemplateVerification is the template name passed to the sender.
const TemplateVerification = "registration_verification"

const (
	tokenBytes           = 32
	defaultTokenTTL      = 24 * time.Hour
	defaultMaxResends    = 10
	defaultVerifyURLBase = "http://localhost:8080/verify"
)

var errNotDelivered = errors.New("sender reported message as not delivered")

// Delivery is the sender's report for one message.
type Delivery struct {
	Delivered bool
	MessageID string
}

// EmailSender renders and delivers a templated message.
type EmailSender interface {
	Send(ctx context.Context, template, recipient string, vars map[string]string) (Delivery, error)
}

// SendResult is returned by SendVerification.
type SendResult struct {
	Sent      bool
	MessageID string
}

type Notifier struct {
	sender        EmailSender
	breaker       *circuit.Breaker
	tokenTTL      time.Duration
	maxResends    int
	verifyURLBase string
	newToken      func() (string, error)
	logger        *slog.Logger
}

type Option func(*Notifier)

func WithTokenTTL(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.tokenTTL = d
		}
	}
}

func WithMaxResends(max int) Option {
	return func(n *Notifier) {
		if max > 0 {
			n.maxResends = max
		}
	}
}

func WithVerifyURLBase(base string) Option {
	return func(n *Notifier) {
		if base != "" {
			n.verifyURLBase = base
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(n *Notifier) {
		n.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

// WithTokenGenerator overrides token generation. Tests only.
func WithTokenGenerator(gen func() (string, error)) Option {
	return func(n *Notifier) {
		n.newToken = gen
	}
}

func New(sender EmailSender, opts ...Option) *Notifier {
	n := &Notifier{
		sender:        sender,
		tokenTTL:      defaultTokenTTL,
		maxResends:    defaultMaxResends,
		verifyURLBase: defaultVerifyURLBase,
		newToken:      generateToken,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.breaker == nil {
		n.breaker = circuit.New("email")
	}
	return n
}

// MaxResends is the configured resend cap.
func (n *Notifier) MaxResends() int {
	return n.maxResends
}

// AttemptsRemaining is how many resends s may still request.
func (n *Notifier) AttemptsRemaining(s *models.Session) int {
	return max(n.maxResends-s.EmailResendAttempts, 0)
}

// IssueToken replaces the session's verification token with a fresh one.
func (n *Notifier) IssueToken(s *models.Session, now time.Time) error {
	token, err := n.newToken()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate verification token")
	}
	s.Verification = models.Verification{
		Token:          token,
		TokenExpiresAt: now.Add(n.tokenTTL),
	}
	return nil
}

// PrepareResend counts a resend request. At the cap it fails with
// too_many_attempts and leaves the counter alone. The current token is kept
// unless it has expired.
func (n *Notifier) PrepareResend(s *models.Session, now time.Time) error {
	if s.EmailResendAttempts >= n.maxResends {
		return dErrors.WithMeta(
			dErrors.New(dErrors.CodeTooManyAttempts, "verification email resend limit reached"),
			"max_attempts", strconv.Itoa(n.maxResends),
		)
	}
	if s.Verification.Token == "" || !now.Before(s.Verification.TokenExpiresAt) {
		if err := n.IssueToken(s, now); err != nil {
			return err
		}
	}
	s.EmailResendAttempts++
	return nil
}

// CheckToken verifies token against the session and consumes it on success.
func CheckToken(s *models.Session, token string, now time.Time) error {
	v := s.Verification
	if v.UsedAt != nil || v.Token == "" {
		return dErrors.Validation("verification token is no longer valid", []dErrors.FieldError{
			{Field: "token", Reason: "used", Message: "token has already been used"},
		})
	}
	if subtle.ConstantTimeCompare([]byte(v.Token), []byte(token)) != 1 {
		return dErrors.Validation("verification token is invalid", []dErrors.FieldError{
			{Field: "token", Reason: "mismatch", Message: "token does not match"},
		})
	}
	if !now.Before(v.TokenExpiresAt) {
		return dErrors.Validation("verification token has expired", []dErrors.FieldError{
			{Field: "token", Reason: "expired", Message: "request a new verification email"},
		})
	}
	used := now
	s.Verification = models.Verification{UsedAt: &used}
	return nil
}

// SendVerification delivers the verification email for s. Delivery problems
// come back as external_unavailable; the caller decides whether they are fatal.
func (n *Notifier) SendVerification(ctx context.Context, s *models.Session) (*SendResult, error) {
	if s.Verification.Token == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "no verification token issued")
	}
	if !n.breaker.Allow() {
		n.logger.WarnContext(ctx, "verification email suppressed, circuit open",
			"session_id", s.ID.String(),
			"breaker", n.breaker.Name(),
		)
		return &SendResult{}, dErrors.New(dErrors.CodeExternalUnavailable, "email delivery temporarily unavailable")
	}

	delivery, err := n.sender.Send(ctx, TemplateVerification, s.Email(), n.templateVars(s))
	if err == nil && !delivery.Delivered {
		err = errNotDelivered
	}
	if err != nil {
		_, change := n.breaker.RecordFailure()
		if change.Opened {
			n.logger.ErrorContext(ctx, "email circuit opened", "breaker", n.breaker.Name())
		}
		n.logger.WarnContext(ctx, "verification email failed",
			"session_id", s.ID.String(),
			"error", err,
		)
		return &SendResult{}, dErrors.Wrap(err, dErrors.CodeExternalUnavailable, "verification email could not be delivered")
	}

	if _, change := n.breaker.RecordSuccess(); change.Closed {
		n.logger.InfoContext(ctx, "email circuit closed", "breaker", n.breaker.Name())
	}
	return &SendResult{Sent: true, MessageID: delivery.MessageID}, nil
}

// Record writes the delivery outcome into the session's bookkeeping.
func Record(s *models.Session, res *SendResult, sendErr error, now time.Time) {
	if res != nil && res.Sent {
		s.Notification.Sent++
		s.Notification.LastSentAt = now
		s.Notification.LastError = ""
		return
	}
	s.Notification.Failed++
	if sendErr != nil {
		s.Notification.LastError = dErrors.MessageOf(sendErr)
	}
}

func (n *Notifier) templateVars(s *models.Session) map[string]string {
	q := url.Values{}
	q.Set("session", s.ID.String())
	q.Set("token", s.Verification.Token)
	return map[string]string{
		"greeting_name": email.GreetingName(s.Payload.Account.FirstName, s.Email()),
		"verify_url":    n.verifyURLBase + "?" + q.Encode(),
		"token":         s.Verification.Token,
		"session_id":    s.ID.String(),
		"expires_at":    s.Verification.TokenExpiresAt.UTC().Format(time.RFC3339),
	}
}

func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
