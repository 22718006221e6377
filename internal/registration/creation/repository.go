package creation

import (
	"context"

	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/models"
)

// Record is one entity write. Data holds the sub-payload for Kind
// (models.Account, *models.Address, ...). AccountID is empty for the
// account itself and set for every dependent record.
type Record struct {
	Kind           models.EntityKind
	SessionID      models.SessionID
	AccountID      string
	OrganizationID string
	Data           any
}

// Repository writes one kind of member record. Implementations must make
// Delete of an unknown id a no-op success.
type Repository interface {
	Create(ctx context.Context, rec Record) (string, error)
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
}

// Repositories maps each entity kind to its repository.
type Repositories map[models.EntityKind]Repository

// Missing lists the kinds in kinds that have no repository.
func (r Repositories) Missing(kinds []models.EntityKind) []models.EntityKind {
	var out []models.EntityKind
	for _, k := range kinds {
		if r[k] == nil {
			out = append(out, k)
		}
	}
	return out
}

// recordFor builds the write for kind from the payload.
func recordFor(kind models.EntityKind, id models.SessionID, p models.Payload, accountID string) Record {
	rec := Record{Kind: kind, SessionID: id, AccountID: accountID, OrganizationID: p.OrganizationID}
	switch kind {
	case models.EntityAccount:
		rec.Data = p.Account
	case models.EntityAddress:
		rec.Data = p.Address
	case models.EntityContact:
		rec.Data = p.Contact
	case models.EntityIdentity:
		rec.Data = p.Identity
	case models.EntityEducation:
		rec.Data = p.Education
	case models.EntityOrganizationLink:
		rec.Data = p.Membership
	}
	return rec
}
