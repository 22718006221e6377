package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/models"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/sentinel"
)

var executeDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "registration_session_execute_duration_ms",
	Help:    "Latency of locked session read-modify-write cycles in milliseconds",
	Buckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
})

// releaseLock deletes the lock only if it still carries our token.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// releaseEmail deletes the reservation only if it still points at our session.
var releaseEmail = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps sessions as JSON strings keyed by id.
type RedisStore struct {
	client *redis.Client
	opts   options
}

func NewRedis(client *redis.Client, opts ...Option) *RedisStore {
	return &RedisStore{client: client, opts: newOptions(opts)}
}

// Create stores a new session at version 1. An existing key is ErrConflict.
func (r *RedisStore) Create(ctx context.Context, s *models.Session) error {
	s.Version = 1
	data, err := encode(s)
	if err != nil {
		return err
	}
	ok, err := r.client.SetNX(ctx, sessionKey(s.ID), data, r.opts.keyTTL(s)).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !ok {
		s.Version = 0
		return sentinel.ErrConflict
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id models.SessionID) (*models.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return decode(data)
}

// SetWithTTL writes s unconditionally, bumping its version.
func (r *RedisStore) SetWithTTL(ctx context.Context, s *models.Session, ttl time.Duration) error {
	s.Version++
	data, err := encode(s)
	if err != nil {
		s.Version--
		return err
	}
	if err := r.client.Set(ctx, sessionKey(s.ID), data, ttl).Err(); err != nil {
		s.Version--
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}

// CompareAndSet writes s only if the stored version equals expectedVersion.
// On success s.Version is expectedVersion+1.
func (r *RedisStore) CompareAndSet(ctx context.Context, s *models.Session, expectedVersion int64) error {
	key := sessionKey(s.ID)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return err
		}
		current, err := decode(data)
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return sentinel.ErrConflict
		}

		next := *s
		next.Version = expectedVersion + 1
		encoded, err := encode(&next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, r.opts.keyTTL(&next))
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		s.Version = expectedVersion + 1
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return sentinel.ErrConflict
	case errors.Is(err, sentinel.ErrConflict), errors.Is(err, sentinel.ErrNotFound):
		return err
	default:
		return fmt.Errorf("compare and set session: %w", err)
	}
}

func (r *RedisStore) Delete(ctx context.Context, id models.SessionID) error {
	if err := r.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Execute locks the session, runs validate and mutate on a fresh copy, and
// persists the result with CompareAndSet. The returned session is the
// persisted state; on a validate or mutate error it is the unmodified read.
func (r *RedisStore) Execute(ctx context.Context, id models.SessionID, validate ValidateFunc, mutate MutateFunc) (*models.Session, error) {
	start := time.Now()
	defer func() {
		executeDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	unlock, err := r.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return runExecute(s, validate, mutate, func(next *models.Session, version int64) error {
		return r.CompareAndSet(ctx, next, version)
	})
}

func (r *RedisStore) lock(ctx context.Context, id models.SessionID) (func(), error) {
	key := lockKey(id)
	token := uuid.NewString()
	deadline := time.Now().Add(r.opts.lockWait)
	for {
		ok, err := r.client.SetNX(ctx, key, token, r.opts.lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire session lock: %w", err)
		}
		if ok {
			break
		}
		if !time.Now().Before(deadline) {
			return nil, sentinel.ErrLocked
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
	return func() {
		// release even if the caller's context is already cancelled
		_ = releaseLock.Run(context.WithoutCancel(ctx), r.client, []string{key}, token).Err()
	}, nil
}

// ReserveEmail claims address for id. Re-reserving for the same id refreshes
// the TTL; a reservation held by another session is ErrConflict.
func (r *RedisStore) ReserveEmail(ctx context.Context, address string, id models.SessionID, ttl time.Duration) error {
	key := emailKey(address)
	ok, err := r.client.SetNX(ctx, key, id.String(), ttl).Result()
	if err != nil {
		return fmt.Errorf("reserve email: %w", err)
	}
	if ok {
		return nil
	}
	holder, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// released between the two calls; try once more
		return r.reserveOnce(ctx, key, id, ttl)
	}
	if err != nil {
		return fmt.Errorf("read email reservation: %w", err)
	}
	if holder != id.String() {
		return sentinel.ErrConflict
	}
	return r.client.Expire(ctx, key, ttl).Err()
}

func (r *RedisStore) reserveOnce(ctx context.Context, key string, id models.SessionID, ttl time.Duration) error {
	ok, err := r.client.SetNX(ctx, key, id.String(), ttl).Result()
	if err != nil {
		return fmt.Errorf("reserve email: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}
	return nil
}

// ReleaseEmail drops the reservation if id still holds it.
func (r *RedisStore) ReleaseEmail(ctx context.Context, address string, id models.SessionID) error {
	if err := releaseEmail.Run(ctx, r.client, []string{emailKey(address)}, id.String()).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release email: %w", err)
	}
	return nil
}

// PendingSessionForEmail returns the session holding address, or ErrNotFound.
func (r *RedisStore) PendingSessionForEmail(ctx context.Context, address string) (models.SessionID, error) {
	holder, err := r.client.Get(ctx, emailKey(address)).Result()
	if errors.Is(err, redis.Nil) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read email reservation: %w", err)
	}
	return models.SessionID(holder), nil
}
