package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/models"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/sentinel"
)

// store is the surface both backends implement.
type store interface {
	Create(ctx context.Context, s *models.Session) error
	Get(ctx context.Context, id models.SessionID) (*models.Session, error)
	SetWithTTL(ctx context.Context, s *models.Session, ttl time.Duration) error
	CompareAndSet(ctx context.Context, s *models.Session, expectedVersion int64) error
	Delete(ctx context.Context, id models.SessionID) error
	Execute(ctx context.Context, id models.SessionID, validate ValidateFunc, mutate MutateFunc) (*models.Session, error)
	ReserveEmail(ctx context.Context, address string, id models.SessionID, ttl time.Duration) error
	ReleaseEmail(ctx context.Context, address string, id models.SessionID) error
	PendingSessionForEmail(ctx context.Context, address string) (models.SessionID, error)
}

var (
	_ store = (*RedisStore)(nil)
	_ store = (*InMemoryStore)(nil)
)

func newTestSession(t *testing.T) *models.Session {
	t.Helper()
	s, err := models.NewSession(models.NewSessionID(), models.Payload{
		OrganizationID: "org-1",
		Account: models.Account{
			Email:        "a@b.com",
			PasswordHash: "$2a$10$hash",
			FirstName:    "Ada",
			LastName:     "Byron",
			DateOfBirth:  "1990-01-01",
		},
		Membership: models.Membership{Role: "member"},
	}, time.Now(), time.Hour)
	require.NoError(t, err)
	return s
}

// runContract exercises behaviour every backend must share.
func runContract(t *testing.T, newStore func(t *testing.T) store) {
	ctx := context.Background()

	t.Run("create then get round-trips at version 1", func(t *testing.T) {
		st := newStore(t)
		s := newTestSession(t)
		require.NoError(t, st.Create(ctx, s))
		assert.Equal(t, int64(1), s.Version)

		got, err := st.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, s.ID, got.ID)
		assert.Equal(t, models.StatusStaged, got.Status)
		assert.Equal(t, int64(1), got.Version)
	})

	t.Run("create twice is a conflict", func(t *testing.T) {
		st := newStore(t)
		s := newTestSession(t)
		require.NoError(t, st.Create(ctx, s))
		dup := *s
		assert.ErrorIs(t, st.Create(ctx, &dup), sentinel.ErrConflict)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		st := newStore(t)
		_, err := st.Get(ctx, models.NewSessionID())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("compare and set rejects a stale version", func(t *testing.T) {
		st := newStore(t)
		s := newTestSession(t)
		require.NoError(t, st.Create(ctx, s))

		first := *s
		require.NoError(t, st.CompareAndSet(ctx, &first, 1))
		assert.Equal(t, int64(2), first.Version)

		stale := *s
		stale.EmailResendAttempts = 9
		assert.ErrorIs(t, st.CompareAndSet(ctx, &stale, 1), sentinel.ErrConflict)

		got, err := st.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)
		assert.Zero(t, got.EmailResendAttempts)
	})

	t.Run("set with ttl bumps the version", func(t *testing.T) {
		st := newStore(t)
		s := newTestSession(t)
		require.NoError(t, st.Create(ctx, s))
		require.NoError(t, st.SetWithTTL(ctx, s, time.Minute))
		got, err := st.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("execute persists the mutation", func(t *testing.T) {
		st := newStore(t)
		s := newTestSession(t)
		require.NoError(t, st.Create(ctx, s))

		out, err := st.Execute(ctx, s.ID,
			func(cur *models.Session) error { return cur.CanApply(models.EventVerifyEmail) },
			func(cur *models.Session) error { return cur.Apply(models.EventVerifyEmail, time.Now()) },
		)
		require.NoError(t, err)
		assert.Equal(t, models.StatusEmailVerified, out.Status)
		assert.Equal(t, int64(2), out.Version)

		got, err := st.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusEmailVerified, got.Status)
		assert.True(t, got.Progress.EmailVerified)
	})

	t.Run("execute validate failure writes nothing", func(t *testing.T) {
		st := newStore(t)
		s := newTestSession(t)
		require.NoError(t, st.Create(ctx, s))

		boom := errors.New("not allowed")
		mutated := false
		cur, err := st.Execute(ctx, s.ID,
			func(*models.Session) error { return boom },
			func(*models.Session) error {
				mutated = true
				return nil
			},
		)
		assert.ErrorIs(t, err, boom)
		assert.False(t, mutated)
		require.NotNil(t, cur)
		assert.Equal(t, models.StatusStaged, cur.Status)

		got, err := st.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Version)
	})

	t.Run("execute mutate failure writes nothing", func(t *testing.T) {
		st := newStore(t)
		s := newTestSession(t)
		require.NoError(t, st.Create(ctx, s))

		_, err := st.Execute(ctx, s.ID, nil, func(cur *models.Session) error {
			cur.EmailResendAttempts = 5
			return cur.Apply(models.EventApprove, time.Now())
		})
		require.Error(t, err)

		got, err := st.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Zero(t, got.EmailResendAttempts)
		assert.Equal(t, models.StatusStaged, got.Status)
	})

	t.Run("concurrent executes serialise", func(t *testing.T) {
		st := newStore(t)
		s := newTestSession(t)
		require.NoError(t, st.Create(ctx, s))

		const workers = 10
		var (
			wg      sync.WaitGroup
			ok      atomic.Int32
			blocked atomic.Int32
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := st.Execute(ctx, s.ID, nil, func(cur *models.Session) error {
					cur.EmailResendAttempts++
					return nil
				})
				switch {
				case err == nil:
					ok.Add(1)
				case errors.Is(err, sentinel.ErrLocked), errors.Is(err, sentinel.ErrConflict):
					blocked.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		got, err := st.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, int32(workers), ok.Load()+blocked.Load())
		assert.Equal(t, int(ok.Load()), got.EmailResendAttempts, "no lost updates")
		assert.Equal(t, int64(1+ok.Load()), got.Version)
	})

	t.Run("email reservation", func(t *testing.T) {
		st := newStore(t)
		owner := models.NewSessionID()
		other := models.NewSessionID()

		require.NoError(t, st.ReserveEmail(ctx, "A@B.com", owner, time.Minute))
		require.NoError(t, st.ReserveEmail(ctx, "a@b.com", owner, time.Minute), "same owner refreshes")
		assert.ErrorIs(t, st.ReserveEmail(ctx, "a@b.com", other, time.Minute), sentinel.ErrConflict)

		holder, err := st.PendingSessionForEmail(ctx, " a@B.COM")
		require.NoError(t, err)
		assert.Equal(t, owner, holder)

		require.NoError(t, st.ReleaseEmail(ctx, "a@b.com", other), "non-holder release is a no-op")
		_, err = st.PendingSessionForEmail(ctx, "a@b.com")
		require.NoError(t, err)

		require.NoError(t, st.ReleaseEmail(ctx, "a@b.com", owner))
		_, err = st.PendingSessionForEmail(ctx, "a@b.com")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)

		require.NoError(t, st.ReserveEmail(ctx, "a@b.com", other, time.Minute))
	})

	t.Run("delete", func(t *testing.T) {
		st := newStore(t)
		s := newTestSession(t)
		require.NoError(t, st.Create(ctx, s))
		require.NoError(t, st.Delete(ctx, s.ID))
		_, err := st.Get(ctx, s.ID)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		require.NoError(t, st.Delete(ctx, s.ID), "deleting twice is fine")
	})
}
