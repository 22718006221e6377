package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/models"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/sentinel"
)

func TestInMemoryStoreContract(t *testing.T) {
	runContract(t, func(*testing.T) store {
		return NewInMemory(WithLockWait(2 * time.Second))
	})
}

func TestInMemoryStore_LockContentionIsErrLocked(t *testing.T) {
	ctx := context.Background()
	st := NewInMemory(WithLockWait(0))
	s := newTestSession(t)
	require.NoError(t, st.Create(ctx, s))

	unlock, err := st.lock(ctx, s.ID)
	require.NoError(t, err)

	_, err = st.Execute(ctx, s.ID, nil, nil)
	assert.ErrorIs(t, err, sentinel.ErrLocked)

	unlock()
	_, err = st.Execute(ctx, s.ID, nil, nil)
	assert.NoError(t, err)
}

func TestInMemoryStore_AbandonedLockExpires(t *testing.T) {
	ctx := context.Background()
	st := NewInMemory(WithLockTTL(30*time.Millisecond), WithLockWait(time.Second))
	s := newTestSession(t)
	require.NoError(t, st.Create(ctx, s))

	_, err := st.lock(ctx, s.ID)
	require.NoError(t, err)

	_, err = st.Execute(ctx, s.ID, nil, nil)
	assert.NoError(t, err)
}

func TestKeyTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	o := newOptions([]Option{WithClock(func() time.Time { return now }), WithExpiryGrace(time.Hour)})

	live := &models.Session{Status: models.StatusStaged, ExpiresAt: now.Add(10 * time.Minute)}
	assert.Equal(t, 70*time.Minute, o.keyTTL(live), "non-terminal keys outlive the deadline")

	done := &models.Session{Status: models.StatusWorkflowCompleted, ExpiresAt: now.Add(10 * time.Minute)}
	assert.Equal(t, 10*time.Minute, o.keyTTL(done))

	past := &models.Session{Status: models.StatusCancelled, ExpiresAt: now.Add(-time.Minute)}
	assert.Equal(t, minKeyTTL, o.keyTTL(past))
}

func TestPendingEmailChecker(t *testing.T) {
	ctx := context.Background()
	st := NewInMemory()
	require.NoError(t, st.ReserveEmail(ctx, "taken@x.com", models.NewSessionID(), time.Minute))
	checker := NewPendingEmailChecker(st)

	taken, err := checker.ExistsByEmailOrBusinessID(ctx, "taken@x.com")
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = checker.ExistsByEmailOrBusinessID(ctx, "free@x.com")
	require.NoError(t, err)
	assert.False(t, taken)

	taken, err = checker.ExistsByEmailOrBusinessID(ctx, "G12345")
	require.NoError(t, err)
	assert.False(t, taken, "registration numbers are not tracked here")
}
