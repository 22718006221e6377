package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	audit "github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/audit"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/audit/store/memory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	sessionID := uuid.NewString()
	err := pub.Emit(context.Background(), audit.Event{
		SessionID: sessionID,
		Action:    string(audit.EventRegistrationStaged),
	})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventRegistrationStaged), events[0].Action)
	assert.Equal(t, audit.CategoryOperations, events[0].Category)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	sessionID := uuid.NewString()
	for range 10 {
		err := pub.Emit(context.Background(), audit.Event{
			SessionID: sessionID,
			Action:    string(audit.EventRegistrationVerificationResent),
		})
		require.NoError(t, err)
	}

	pub.Close()

	events, err := store.ListBySession(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_BufferFull_DropsEvent(t *testing.T) {
	store := &blockingStore{release: make(chan struct{})}
	pub := NewPublisher(store, WithAsyncBuffer(1))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var full int
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := pub.Emit(context.Background(), audit.Event{Action: string(audit.EventRegistrationStaged)}); errors.Is(err, ErrBufferFull) {
				mu.Lock()
				full++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(store.release)
	pub.Close()

	assert.Positive(t, full, "a one-slot buffer behind a blocked sink must reject some events")
}

func TestPublisher_ReportsSinkFailuresOnErrors(t *testing.T) {
	pub := NewPublisher(failingStore{}, WithAsyncBuffer(4))

	require.NoError(t, pub.Emit(context.Background(), audit.Event{
		SessionID: "s-1",
		Action:    string(audit.EventRegistrationEntitiesCreated),
	}))

	select {
	case err := <-pub.Errors():
		var de *DeliveryError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "s-1", de.Event.SessionID)
	case <-time.After(time.Second):
		t.Fatal("expected a delivery error")
	}
	pub.Close()
}

func TestPublisher_SetsTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	before := time.Now()
	require.NoError(t, pub.Emit(context.Background(), audit.Event{SessionID: "s", Action: "x"}))
	after := time.Now()

	events, err := pub.List(context.Background(), "s")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Timestamp.Before(before))
	assert.False(t, events[0].Timestamp.After(after))
}

func TestPublisher_PreservesExistingTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	customTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, pub.Emit(context.Background(), audit.Event{SessionID: "s", Action: "x", Timestamp: customTime}))

	events, err := pub.List(context.Background(), "s")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, customTime, events[0].Timestamp)
}

func TestPublisher_CancelledContextInAsyncMode(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(1))
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, pub.Emit(ctx, audit.Event{Action: "x"}), context.Canceled)
}

func TestPublisher_ListUnsupported(t *testing.T) {
	pub := NewPublisher(failingStore{})
	defer pub.Close()

	_, err := pub.List(context.Background(), "s")
	assert.ErrorIs(t, err, ErrNotListable)
}

type failingStore struct{}

func (failingStore) Append(context.Context, audit.Event) error { return assert.AnError }

type blockingStore struct {
	release chan struct{}
}

func (s *blockingStore) Append(ctx context.Context, _ audit.Event) error {
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
