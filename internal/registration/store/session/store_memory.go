package session

import (
	"context"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/models"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/sentinel"
)

const memoryCleanupInterval = time.Minute

// InMemoryStore is the single-process backend used in development and tests.
// Values are stored encoded so callers never share pointers with the store.
type InMemoryStore struct {
	cache *gocache.Cache
	opts  options

	// mu serialises compare-and-set and reservation checks.
	mu sync.Mutex
}

func NewInMemory(opts ...Option) *InMemoryStore {
	return &InMemoryStore{
		cache: gocache.New(gocache.NoExpiration, memoryCleanupInterval),
		opts:  newOptions(opts),
	}
}

func (m *InMemoryStore) Create(_ context.Context, s *models.Session) error {
	s.Version = 1
	data, err := encode(s)
	if err != nil {
		return err
	}
	if err := m.cache.Add(sessionKey(s.ID), data, m.opts.keyTTL(s)); err != nil {
		s.Version = 0
		return sentinel.ErrConflict
	}
	return nil
}

func (m *InMemoryStore) Get(ctx context.Context, id models.SessionID) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, ok := m.cache.Get(sessionKey(id))
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return decode(v.([]byte))
}

func (m *InMemoryStore) SetWithTTL(_ context.Context, s *models.Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Version++
	data, err := encode(s)
	if err != nil {
		s.Version--
		return err
	}
	m.cache.Set(sessionKey(s.ID), data, ttl)
	return nil
}

func (m *InMemoryStore) CompareAndSet(ctx context.Context, s *models.Session, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.cache.Get(sessionKey(s.ID))
	if !ok {
		return sentinel.ErrNotFound
	}
	current, err := decode(v.([]byte))
	if err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return sentinel.ErrConflict
	}

	next := *s
	next.Version = expectedVersion + 1
	data, err := encode(&next)
	if err != nil {
		return err
	}
	m.cache.Set(sessionKey(s.ID), data, m.opts.keyTTL(&next))
	s.Version = next.Version
	return nil
}

func (m *InMemoryStore) Delete(_ context.Context, id models.SessionID) error {
	m.cache.Delete(sessionKey(id))
	return nil
}

func (m *InMemoryStore) Execute(ctx context.Context, id models.SessionID, validate ValidateFunc, mutate MutateFunc) (*models.Session, error) {
	unlock, err := m.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return runExecute(s, validate, mutate, func(next *models.Session, version int64) error {
		return m.CompareAndSet(ctx, next, version)
	})
}

// lock uses an Add on the lock key, which fails while the key is live, so
// an abandoned lock expires after lockTTL like the Redis one.
func (m *InMemoryStore) lock(ctx context.Context, id models.SessionID) (func(), error) {
	key := lockKey(id)
	deadline := time.Now().Add(m.opts.lockWait)
	for m.cache.Add(key, struct{}{}, m.opts.lockTTL) != nil {
		if !time.Now().Before(deadline) {
			return nil, sentinel.ErrLocked
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
	return func() { m.cache.Delete(key) }, nil
}

func (m *InMemoryStore) ReserveEmail(_ context.Context, address string, id models.SessionID, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := emailKey(address)
	if v, ok := m.cache.Get(key); ok && v.(models.SessionID) != id {
		return sentinel.ErrConflict
	}
	m.cache.Set(key, id, ttl)
	return nil
}

func (m *InMemoryStore) ReleaseEmail(_ context.Context, address string, id models.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := emailKey(address)
	if v, ok := m.cache.Get(key); ok && v.(models.SessionID) == id {
		m.cache.Delete(key)
	}
	return nil
}

func (m *InMemoryStore) PendingSessionForEmail(_ context.Context, address string) (models.SessionID, error) {
	v, ok := m.cache.Get(emailKey(address))
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return v.(models.SessionID), nil
}

// Len is the number of live sessions. Tests only.
func (m *InMemoryStore) Len() int {
	n := 0
	for k := range m.cache.Items() {
		if strings.HasPrefix(k, sessionKeyPrefix) {
			n++
		}
	}
	return n
}
