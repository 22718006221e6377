// Package validation checks a registration payload before it is staged.
// It never writes anything: it returns field-level reasons, or an error when
// the uniqueness probes cannot reach their backing stores.
package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/models"
	dErrors "github.com/amaralBruno27866/member-platform-test-sub015/pkg/domain-errors"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/email"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/requestcontext"
)

const (
	defaultProbeTimeout = 3 * time.Second
	minimumAge          = 16
	graduationLookahead = 5
)

// UniquenessChecker answers whether a value is already claimed by a member
// record or a pending registration.
type UniquenessChecker interface {
	ExistsByEmailOrBusinessID(ctx context.Context, value string) (bool, error)
}

// Result is the outcome of a validation pass.
type Result struct {
	Valid       bool                 `json:"valid"`
	FieldErrors []dErrors.FieldError `json:"field_errors,omitempty"`
}

// Err converts an invalid result into a validation error, or nil.
func (r *Result) Err() error {
	if r == nil || r.Valid {
		return nil
	}
	return dErrors.Validation("registration payload is invalid", r.FieldErrors)
}

// Validator runs rule tables, cross-field rules and uniqueness probes.
type Validator struct {
	checker      UniquenessChecker
	probeTimeout time.Duration
	logger       *slog.Logger
}

type Option func(*Validator)

func WithProbeTimeout(d time.Duration) Option {
	return func(v *Validator) {
		if d > 0 {
			v.probeTimeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// New builds a Validator. checker may be nil, which disables uniqueness probes.
func New(checker UniquenessChecker, opts ...Option) *Validator {
	v := &Validator{
		checker:      checker,
		probeTimeout: defaultProbeTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks p, which must still carry the plaintext password.
// Field problems come back in the Result; the error is reserved for probe
// infrastructure failures (external_unavailable) and context cancellation.
func (v *Validator) Validate(ctx context.Context, p models.Payload) (*Result, error) {
	now := requestcontext.Now(ctx)

	var errs []dErrors.FieldError
	errs = append(errs, checkRecord("", payloadFields{p}, payloadRules)...)
	errs = append(errs, checkRecord("account", p.Account, accountRules)...)
	if p.Address != nil {
		errs = append(errs, checkRecord("address", *p.Address, addressRules)...)
	}
	if p.Contact != nil {
		errs = append(errs, checkRecord("contact", *p.Contact, contactRules)...)
	}
	if p.Identity != nil {
		errs = append(errs, checkRecord("identity", *p.Identity, identityRules)...)
	}
	if p.Education != nil {
		errs = append(errs, checkRecord("education", *p.Education, educationRules)...)
	}
	errs = append(errs, checkRecord("membership", p.Membership, membershipRules)...)
	errs = append(errs, crossFieldErrors(p, now, errs)...)

	probed, err := v.probeUniqueness(ctx, p, errs)
	if err != nil {
		return nil, err
	}
	errs = append(errs, probed...)

	return &Result{Valid: len(errs) == 0, FieldErrors: errs}, nil
}

type payloadFields struct{ p models.Payload }

func (f payloadFields) Fields() map[string]string {
	return map[string]string{"organization_id": f.p.OrganizationID}
}

func crossFieldErrors(p models.Payload, now time.Time, prior []dErrors.FieldError) []dErrors.FieldError {
	var out []dErrors.FieldError
	add := func(field, reason, msg string) {
		out = append(out, dErrors.FieldError{Field: field, Reason: reason, Message: msg})
	}

	if !hasFieldError(prior, "account.date_of_birth") && p.Account.DateOfBirth != "" {
		dob, err := time.Parse(time.DateOnly, p.Account.DateOfBirth)
		switch {
		case err != nil:
			add("account.date_of_birth", ReasonFormat, "account.date_of_birth is not a real date")
		case dob.After(now):
			add("account.date_of_birth", ReasonRange, "account.date_of_birth is in the future")
		case ageOn(dob, now) < minimumAge:
			add("account.date_of_birth", ReasonRange, "applicant must be at least "+strconv.Itoa(minimumAge)+" years old")
		}
	}

	if pw := p.Account.Password; pw != "" && !hasFieldError(prior, "account.password") {
		local := email.LocalPart(email.Normalize(p.Account.Email))
		switch {
		case local != "" && strings.EqualFold(pw, local):
			add("account.password", ReasonRelation, "account.password must not match the email address")
		case !hasLetterAndDigit(pw):
			add("account.password", ReasonFormat, "account.password must contain a letter and a digit")
		}
	}

	if id := p.Identity; id != nil {
		active := models.IsActiveCotoStatus(id.CotoStatus)
		hasNumber := strings.TrimSpace(id.CotoRegistration) != ""
		switch {
		case active && !hasNumber:
			add("identity.coto_registration", ReasonRequired, "identity.coto_registration is required for an active registration status")
		case !active && hasNumber && id.CotoStatus != "":
			add("identity.coto_registration", ReasonRelation, "identity.coto_registration is only allowed for an active registration status")
		}
		if id.PracticeProvince != "" && p.Address == nil {
			add("address", ReasonRequired, "address is required when identity.practice_province is set")
		}
	}

	if p.Contact != nil && p.Contact.PreferredChannel == "sms" && strings.TrimSpace(p.Contact.Phone) == "" {
		add("contact.phone", ReasonRequired, "contact.phone is required for sms contact")
	}

	if ed := p.Education; ed != nil && ed.GraduationYear != 0 && !hasFieldError(prior, "education.graduation_year") {
		if ed.GraduationYear > now.Year()+graduationLookahead {
			add("education.graduation_year", ReasonRange, "education.graduation_year is too far in the future")
		}
	}

	return out
}

// probeUniqueness checks the email and, when present, the COTO registration
// number concurrently. Values that already failed format checks are skipped.
func (v *Validator) probeUniqueness(ctx context.Context, p models.Payload, prior []dErrors.FieldError) ([]dErrors.FieldError, error) {
	if v.checker == nil {
		return nil, nil
	}

	type probe struct {
		field string
		value string
	}
	var probes []probe
	if !hasFieldError(prior, "account.email") {
		probes = append(probes, probe{"account.email", email.Normalize(p.Account.Email)})
	}
	if p.Identity != nil && p.Identity.CotoRegistration != "" && !hasFieldError(prior, "identity.coto_registration") {
		probes = append(probes, probe{"identity.coto_registration", strings.ToUpper(strings.TrimSpace(p.Identity.CotoRegistration))})
	}
	if len(probes) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, v.probeTimeout)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	var (
		mu  sync.Mutex
		out []dErrors.FieldError
	)
	for _, pr := range probes {
		g.Go(func() error {
			exists, err := v.checker.ExistsByEmailOrBusinessID(ctx, pr.value)
			if err != nil {
				return fmt.Errorf("probe %s: %w", pr.field, err)
			}
			if exists {
				mu.Lock()
				out = append(out, dErrors.FieldError{
					Field:   pr.field,
					Reason:  ReasonTaken,
					Message: pr.field + " is already registered",
				})
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		v.logger.WarnContext(ctx, "uniqueness probe failed", "error", err)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, dErrors.Wrap(err, dErrors.CodeExternalUnavailable, "uniqueness check timed out")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeExternalUnavailable, "uniqueness check unavailable")
	}
	slices.SortFunc(out, func(a, b dErrors.FieldError) int { return strings.Compare(a.Field, b.Field) })
	return out, nil
}

// AnyOf reports a value as taken when any of the checkers does.
type AnyOf []UniquenessChecker

func (a AnyOf) ExistsByEmailOrBusinessID(ctx context.Context, value string) (bool, error) {
	for _, c := range a {
		if c == nil {
			continue
		}
		exists, err := c.ExistsByEmailOrBusinessID(ctx, value)
		if err != nil {
			return false, err
		}
		if exists {
			return true, nil
		}
	}
	return false, nil
}

func hasFieldError(errs []dErrors.FieldError, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}

func hasLetterAndDigit(s string) bool {
	var letter, digit bool
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digit = true
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			letter = true
		}
	}
	return letter && digit
}

func ageOn(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	return years
}
