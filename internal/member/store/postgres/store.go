// Package postgres stores member records in PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/creation"
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/models"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/email"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

var tables = map[models.EntityKind]string{
	models.EntityAccount:          "member_accounts",
	models.EntityAddress:          "member_addresses",
	models.EntityContact:          "member_contacts",
	models.EntityIdentity:         "member_identities",
	models.EntityEducation:        "member_educations",
	models.EntityOrganizationLink: "member_organization_links",
}

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Repositories() creation.Repositories {
	repos := make(creation.Repositories, len(tables))
	for k := range tables {
		repos[k] = &repository{store: s, kind: k}
	}
	return repos
}

// ExistsByEmailOrBusinessID checks account emails, or COTO registration
// numbers for values without an '@'.
func (s *Store) ExistsByEmailOrBusinessID(ctx context.Context, value string) (bool, error) {
	var (
		exists bool
		err    error
	)
	if strings.Contains(value, "@") {
		err = s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM member_accounts WHERE lower(email) = $1)`,
			email.Normalize(value),
		).Scan(&exists)
	} else {
		err = s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM member_identities WHERE upper(coto_registration) = upper($1))`,
			strings.TrimSpace(value),
		).Scan(&exists)
	}
	if err != nil {
		return false, fmt.Errorf("uniqueness lookup: %w", err)
	}
	return exists, nil
}

func (s *Store) CountByOrganization(ctx context.Context, organizationID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM member_organization_links WHERE organization_id = $1`,
		organizationID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count organization members: %w", err)
	}
	return n, nil
}

type repository struct {
	store *Store
	kind  models.EntityKind
}

func (r *repository) Create(ctx context.Context, rec creation.Record) (string, error) {
	id := uuid.New()
	query, args, err := insertFor(id, rec)
	if err != nil {
		return "", err
	}
	if _, err := r.store.pool.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return "", fmt.Errorf("insert %s: %w", r.kind, sentinel.ErrConflict)
		}
		return "", fmt.Errorf("insert %s: %w", r.kind, err)
	}
	return id.String(), nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		// never written by this store
		return nil
	}
	if _, err := r.store.pool.Exec(ctx, `DELETE FROM `+tables[r.kind]+` WHERE id = $1`, uid); err != nil {
		return fmt.Errorf("delete %s %s: %w", r.kind, id, err)
	}
	return nil
}

func (r *repository) Exists(ctx context.Context, id string) (bool, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return false, nil
	}
	var exists bool
	err = r.store.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+tables[r.kind]+` WHERE id = $1)`, uid,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup %s %s: %w", r.kind, id, err)
	}
	return exists, nil
}

func insertFor(id uuid.UUID, rec creation.Record) (string, []any, error) {
	switch d := rec.Data.(type) {
	case models.Account:
		return `INSERT INTO member_accounts (id, email, password_hash, first_name, last_name, date_of_birth)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::date)`,
			[]any{id, email.Normalize(d.Email), d.PasswordHash, d.FirstName, d.LastName, d.DateOfBirth}, nil
	case *models.Address:
		return `INSERT INTO member_addresses (id, account_id, street, city, province, postal_code, country)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			[]any{id, rec.AccountID, d.Street, d.City, d.Province, d.PostalCode, d.Country}, nil
	case *models.Contact:
		return `INSERT INTO member_contacts (id, account_id, phone, alternate_email, preferred_channel)
			VALUES ($1, $2, $3, NULLIF($4, ''), $5)`,
			[]any{id, rec.AccountID, d.Phone, d.AlternateEmail, d.PreferredChannel}, nil
	case *models.Identity:
		return `INSERT INTO member_identities (id, account_id, coto_status, coto_registration, language, gender, practice_province)
			VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), NULLIF($7, ''))`,
			[]any{id, rec.AccountID, d.CotoStatus, strings.ToUpper(d.CotoRegistration), d.Language, d.Gender, d.PracticeProvince}, nil
	case *models.Education:
		return `INSERT INTO member_educations (id, account_id, institution, degree, graduation_year)
			VALUES ($1, $2, $3, $4, $5)`,
			[]any{id, rec.AccountID, d.Institution, d.Degree, d.GraduationYear}, nil
	case models.Membership:
		return `INSERT INTO member_organization_links (id, account_id, organization_id, role)
			VALUES ($1, $2, $3, $4)`,
			[]any{id, rec.AccountID, rec.OrganizationID, d.Role}, nil
	default:
		return "", nil, fmt.Errorf("unsupported %s record data %T", rec.Kind, rec.Data)
	}
}
