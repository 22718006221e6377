package validation

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	dErrors "github.com/amaralBruno27866/member-platform-test-sub015/pkg/domain-errors"
)

// Rule declares the checks for one field of a tagged record. Zero values
// disable a check.
type Rule struct {
	Field    string
	Required bool
	MinLen   int
	MaxLen   int
	Pattern  *regexp.Regexp
	// PatternHint is the message shown when Pattern does not match.
	PatternHint string
	OneOf       []string
	// Reserved rejects values equal (case-insensitively) to a reserved word.
	Reserved bool
	// Numeric requires an integer within [IntMin, IntMax]; IntMax 0 means unbounded.
	Numeric bool
	IntMin  int
	IntMax  int
}

// Record is any sub-payload that exposes its fields keyed by JSON name.
type Record interface {
	Fields() map[string]string
}

// Field-level failure reasons.
const (
	ReasonRequired = "required"
	ReasonTooShort = "too_short"
	ReasonTooLong  = "too_long"
	ReasonFormat   = "format"
	ReasonEnum     = "not_allowed"
	ReasonReserved = "reserved"
	ReasonRange    = "out_of_range"
	ReasonTaken    = "already_registered"
	ReasonRelation = "inconsistent"
)

var reservedWords = map[string]struct{}{
	"admin":         {},
	"administrator": {},
	"root":          {},
	"system":        {},
	"support":       {},
	"null":          {},
	"undefined":     {},
	"test":          {},
}

// IsReserved reports whether v is a reserved word.
func IsReserved(v string) bool {
	_, ok := reservedWords[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

// checkRecord applies rules to a record's fields. prefix is prepended to
// field names in the returned errors ("account.email").
func checkRecord(prefix string, rec Record, rules []Rule) []dErrors.FieldError {
	fields := rec.Fields()
	var out []dErrors.FieldError
	for _, r := range rules {
		if fe, ok := checkField(qualify(prefix, r.Field), strings.TrimSpace(fields[r.Field]), r); !ok {
			out = append(out, fe)
		}
	}
	return out
}

func checkField(name, v string, r Rule) (dErrors.FieldError, bool) {
	fail := func(reason, msg string) (dErrors.FieldError, bool) {
		return dErrors.FieldError{Field: name, Reason: reason, Message: msg}, false
	}
	if v == "" {
		if r.Required {
			return fail(ReasonRequired, name+" is required")
		}
		return dErrors.FieldError{}, true
	}
	n := utf8.RuneCountInString(v)
	if r.MinLen > 0 && n < r.MinLen {
		return fail(ReasonTooShort, name+" must be at least "+strconv.Itoa(r.MinLen)+" characters")
	}
	if r.MaxLen > 0 && n > r.MaxLen {
		return fail(ReasonTooLong, name+" must be at most "+strconv.Itoa(r.MaxLen)+" characters")
	}
	if r.Pattern != nil && !r.Pattern.MatchString(v) {
		hint := r.PatternHint
		if hint == "" {
			hint = "has an invalid format"
		}
		return fail(ReasonFormat, name+" "+hint)
	}
	if len(r.OneOf) > 0 && !contains(r.OneOf, v) {
		return fail(ReasonEnum, name+" must be one of: "+strings.Join(r.OneOf, ", "))
	}
	if r.Reserved && IsReserved(v) {
		return fail(ReasonReserved, name+" uses a reserved word")
	}
	if r.Numeric {
		i, err := strconv.Atoi(v)
		if err != nil {
			return fail(ReasonFormat, name+" must be a whole number")
		}
		if i < r.IntMin || (r.IntMax != 0 && i > r.IntMax) {
			return fail(ReasonRange, name+" is out of range")
		}
	}
	return dErrors.FieldError{}, true
}

func qualify(prefix, field string) string {
	if prefix == "" {
		return field
	}
	return prefix + "." + field
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

var (
	emailPattern      = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)
	namePattern       = regexp.MustCompile(`^[\p{L}][\p{L} '\-]*$`)
	datePattern       = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	postalCodePattern = regexp.MustCompile(`^[A-Za-z]\d[A-Za-z][ \-]?\d[A-Za-z]\d$`)
	phonePattern      = regexp.MustCompile(`^\+?[0-9 ()\-]{7,20}$`)
	cotoNumberPattern = regexp.MustCompile(`^[A-Za-z0-9]{4,12}$`)
	identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)
)

var provinces = []string{"AB", "BC", "MB", "NB", "NL", "NS", "NT", "NU", "ON", "PE", "QC", "SK", "YT"}

// Rule tables, one per record type.
var (
	payloadRules = []Rule{
		{Field: "organization_id", Required: true, MaxLen: 64, Pattern: identifierPattern, PatternHint: "may only contain letters, digits, '_' and '-'"},
	}

	accountRules = []Rule{
		{Field: "email", Required: true, MaxLen: 254, Pattern: emailPattern, PatternHint: "must be a valid email address"},
		{Field: "password", Required: true, MinLen: 8, MaxLen: 72},
		{Field: "first_name", Required: true, MaxLen: 64, Pattern: namePattern, PatternHint: "may only contain letters, spaces, apostrophes and hyphens", Reserved: true},
		{Field: "last_name", Required: true, MaxLen: 64, Pattern: namePattern, PatternHint: "may only contain letters, spaces, apostrophes and hyphens", Reserved: true},
		{Field: "date_of_birth", Required: true, Pattern: datePattern, PatternHint: "must be YYYY-MM-DD"},
	}

	addressRules = []Rule{
		{Field: "street", Required: true, MaxLen: 128},
		{Field: "city", Required: true, MaxLen: 64, Pattern: namePattern, PatternHint: "may only contain letters, spaces, apostrophes and hyphens"},
		{Field: "province", Required: true, OneOf: provinces},
		{Field: "postal_code", Required: true, Pattern: postalCodePattern, PatternHint: "must be a Canadian postal code"},
		{Field: "country", Required: true, OneOf: []string{"CA"}},
	}

	contactRules = []Rule{
		{Field: "phone", Required: true, Pattern: phonePattern, PatternHint: "must be a phone number"},
		{Field: "alternate_email", MaxLen: 254, Pattern: emailPattern, PatternHint: "must be a valid email address"},
		{Field: "preferred_channel", Required: true, OneOf: []string{"email", "phone", "sms"}},
	}

	identityRules = []Rule{
		{Field: "coto_status", Required: true, OneOf: []string{"general", "provisional", "temporary", "student", "inactive", "none"}},
		{Field: "coto_registration", Pattern: cotoNumberPattern, PatternHint: "must be 4 to 12 letters or digits"},
		{Field: "language", Required: true, OneOf: []string{"en", "fr"}},
		{Field: "gender", OneOf: []string{"female", "male", "non_binary", "undisclosed"}},
		{Field: "practice_province", OneOf: provinces},
	}

	educationRules = []Rule{
		{Field: "institution", Required: true, MaxLen: 128},
		{Field: "degree", Required: true, OneOf: []string{"diploma", "bachelor", "master", "doctorate"}},
		{Field: "graduation_year", Required: true, Numeric: true, IntMin: 1950},
	}

	membershipRules = []Rule{
		{Field: "role", Required: true, OneOf: []string{"member", "student", "associate", "retired"}},
	}
)
