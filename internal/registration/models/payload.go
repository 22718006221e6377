package models

import "strconv"

// Payload is everything needed to create a member and its dependent records.
// It is immutable once staged. Account.Password is only ever populated on the
// inbound request; the stored payload carries PasswordHash instead.
type Payload struct {
	OrganizationID string     `json:"organization_id"`
	Account        Account    `json:"account"`
	Address        *Address   `json:"address,omitempty"`
	Contact        *Contact   `json:"contact,omitempty"`
	Identity       *Identity  `json:"identity,omitempty"`
	Education      *Education `json:"education,omitempty"`
	Membership     Membership `json:"membership"`
}

type Account struct {
	Email        string `json:"email"`
	Password     string `json:"password,omitempty"`
	PasswordHash string `json:"password_hash,omitempty"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	// DateOfBirth is YYYY-MM-DD.
	DateOfBirth string `json:"date_of_birth"`
}

func (a Account) Fields() map[string]string {
	return map[string]string{
		"email":         a.Email,
		"password":      a.Password,
		"first_name":    a.FirstName,
		"last_name":     a.LastName,
		"date_of_birth": a.DateOfBirth,
	}
}

type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	Province   string `json:"province"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func (a Address) Fields() map[string]string {
	return map[string]string{
		"street":      a.Street,
		"city":        a.City,
		"province":    a.Province,
		"postal_code": a.PostalCode,
		"country":     a.Country,
	}
}

type Contact struct {
	Phone            string `json:"phone"`
	AlternateEmail   string `json:"alternate_email,omitempty"`
	PreferredChannel string `json:"preferred_channel"`
}

func (c Contact) Fields() map[string]string {
	return map[string]string{
		"phone":             c.Phone,
		"alternate_email":   c.AlternateEmail,
		"preferred_channel": c.PreferredChannel,
	}
}

// COTO registration statuses. Only the active ones require a registration number.
const (
	CotoStatusGeneral     = "general"
	CotoStatusProvisional = "provisional"
	CotoStatusTemporary   = "temporary"
	CotoStatusStudent     = "student"
	CotoStatusInactive    = "inactive"
	CotoStatusNone        = "none"
)

// IsActiveCotoStatus reports whether status denotes an active college registration.
func IsActiveCotoStatus(status string) bool {
	switch status {
	case CotoStatusGeneral, CotoStatusProvisional, CotoStatusTemporary:
		return true
	default:
		return false
	}
}

type Identity struct {
	CotoStatus       string `json:"coto_status"`
	CotoRegistration string `json:"coto_registration,omitempty"`
	Language         string `json:"language"`
	Gender           string `json:"gender,omitempty"`
	// PracticeProvince, when set, requires an address on the same payload.
	PracticeProvince string `json:"practice_province,omitempty"`
}

func (i Identity) Fields() map[string]string {
	return map[string]string{
		"coto_status":       i.CotoStatus,
		"coto_registration": i.CotoRegistration,
		"language":          i.Language,
		"gender":            i.Gender,
		"practice_province": i.PracticeProvince,
	}
}

type Education struct {
	Institution    string `json:"institution"`
	Degree         string `json:"degree"`
	GraduationYear int    `json:"graduation_year"`
}

func (e Education) Fields() map[string]string {
	year := ""
	if e.GraduationYear != 0 {
		year = strconv.Itoa(e.GraduationYear)
	}
	return map[string]string{
		"institution":     e.Institution,
		"degree":          e.Degree,
		"graduation_year": year,
	}
}

// Membership describes the organization link created last.
type Membership struct {
	Role string `json:"role"`
}

func (m Membership) Fields() map[string]string {
	return map[string]string{"role": m.Role}
}

// EntityKind names one record type written by the creation saga.
type EntityKind string

const (
	EntityAccount          EntityKind = "account"
	EntityAddress          EntityKind = "address"
	EntityContact          EntityKind = "contact"
	EntityIdentity         EntityKind = "identity"
	EntityEducation        EntityKind = "education"
	EntityOrganizationLink EntityKind = "organization_link"
)

// EntityOrder is the fixed write order. Account goes first because every
// other record references it.
var EntityOrder = []EntityKind{
	EntityAccount,
	EntityAddress,
	EntityContact,
	EntityIdentity,
	EntityEducation,
	EntityOrganizationLink,
}

// EntityKinds returns the kinds this payload requires, in write order.
func (p Payload) EntityKinds() []EntityKind {
	kinds := make([]EntityKind, 0, len(EntityOrder))
	for _, k := range EntityOrder {
		switch k {
		case EntityAddress:
			if p.Address == nil {
				continue
			}
		case EntityContact:
			if p.Contact == nil {
				continue
			}
		case EntityIdentity:
			if p.Identity == nil {
				continue
			}
		case EntityEducation:
			if p.Education == nil {
				continue
			}
		}
		kinds = append(kinds, k)
	}
	return kinds
}

// Redacted returns a copy safe to store: the plaintext password is dropped.
func (p Payload) Redacted() Payload {
	out := p
	out.Account.Password = ""
	return out
}
