// Package memory is an in-process member record store. It backs the memory
// record backend and service tests.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/creation"
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/models"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/email"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/sentinel"
)

// Store holds every member record kind behind one mutex.
type Store struct {
	mu      sync.RWMutex
	records map[models.EntityKind]map[string]creation.Record
}

func New() *Store {
	return &Store{records: make(map[models.EntityKind]map[string]creation.Record)}
}

// Repositories returns one repository per entity kind, all backed by s.
func (s *Store) Repositories() creation.Repositories {
	repos := make(creation.Repositories, len(models.EntityOrder))
	for _, k := range models.EntityOrder {
		repos[k] = &repository{store: s, kind: k}
	}
	return repos
}

// Count returns the number of stored records of kind.
func (s *Store) Count(kind models.EntityKind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[kind])
}

// ExistsByEmailOrBusinessID matches value against account emails and COTO
// registration numbers.
func (s *Store) ExistsByEmailOrBusinessID(_ context.Context, value string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if strings.Contains(value, "@") {
		return s.emailTaken(email.Normalize(value)), nil
	}
	for _, rec := range s.records[models.EntityIdentity] {
		if id, ok := rec.Data.(*models.Identity); ok && strings.EqualFold(id.CotoRegistration, value) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CountByOrganization(_ context.Context, organizationID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, rec := range s.records[models.EntityOrganizationLink] {
		if rec.OrganizationID == organizationID {
			n++
		}
	}
	return n, nil
}

// emailTaken must be called with mu held.
func (s *Store) emailTaken(normalized string) bool {
	for _, rec := range s.records[models.EntityAccount] {
		if acc, ok := rec.Data.(models.Account); ok && email.Normalize(acc.Email) == normalized {
			return true
		}
	}
	return false
}

type repository struct {
	store *Store
	kind  models.EntityKind
}

func (r *repository) Create(_ context.Context, rec creation.Record) (string, error) {
	if rec.Kind != r.kind {
		return "", fmt.Errorf("record kind %s written to %s repository", rec.Kind, r.kind)
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if acc, ok := rec.Data.(models.Account); ok && s.emailTaken(email.Normalize(acc.Email)) {
		return "", fmt.Errorf("account email: %w", sentinel.ErrConflict)
	}
	if s.records[r.kind] == nil {
		s.records[r.kind] = make(map[string]creation.Record)
	}
	id := uuid.NewString()
	s.records[r.kind][id] = rec
	return id, nil
}

func (r *repository) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.records[r.kind], id)
	return nil
}

func (r *repository) Exists(_ context.Context, id string) (bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	_, ok := r.store.records[r.kind][id]
	return ok, nil
}
