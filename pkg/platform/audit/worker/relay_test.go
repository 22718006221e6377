package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/audit"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/audit/store/memory"
)

type fakeOutbox struct {
	mu        sync.Mutex
	entries   []audit.OutboxEntry
	processed map[string]bool
}

func newFakeOutbox(actions ...string) *fakeOutbox {
	o := &fakeOutbox{processed: map[string]bool{}}
	for i, a := range actions {
		o.entries = append(o.entries, audit.OutboxEntry{
			ID:    string(rune('a' + i)),
			Event: audit.Event{SessionID: "s-1", Action: a},
		})
	}
	return o
}

func (o *fakeOutbox) Pending(_ context.Context, limit int) ([]audit.OutboxEntry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []audit.OutboxEntry
	for _, e := range o.entries {
		if !o.processed[e.ID] && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (o *fakeOutbox) MarkProcessed(_ context.Context, ids []string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, id := range ids {
		o.processed[id] = true
	}
	return nil
}

func (o *fakeOutbox) remaining() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.entries) - len(o.processed)
}

type failingSink struct {
	failOn string
	got    []string
}

func (f *failingSink) Append(_ context.Context, e audit.Event) error {
	if e.Action == f.failOn {
		return errors.New("broker unavailable")
	}
	f.got = append(f.got, e.Action)
	return nil
}

func TestRelayOnce(t *testing.T) {
	t.Run("forwards in order and marks processed", func(t *testing.T) {
		outbox := newFakeOutbox("registration_staged", "registration_email_verified")
		sink := memory.NewInMemoryStore()

		n, err := NewRelay(outbox, sink).RelayOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Zero(t, outbox.remaining())

		events, err := sink.ListBySession(context.Background(), "s-1")
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "registration_staged", events[0].Action)
	})

	t.Run("stops at the first failure and keeps the rest pending", func(t *testing.T) {
		outbox := newFakeOutbox("registration_staged", "registration_approved", "registration_completed")
		sink := &failingSink{failOn: "registration_approved"}

		n, err := NewRelay(outbox, sink).RelayOnce(context.Background())
		require.Error(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, []string{"registration_staged"}, sink.got)
		assert.Equal(t, 2, outbox.remaining())
	})

	t.Run("respects the batch size", func(t *testing.T) {
		outbox := newFakeOutbox("a", "b", "c")
		n, err := NewRelay(outbox, memory.NewInMemoryStore(), WithBatchSize(2)).RelayOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, 1, outbox.remaining())
	})
}

func TestRelayRunDrainsUntilCancelled(t *testing.T) {
	outbox := newFakeOutbox("a", "b", "c")
	relay := NewRelay(outbox, memory.NewInMemoryStore(), WithInterval(5*time.Millisecond), WithBatchSize(1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	assert.Eventually(t, func() bool { return outbox.remaining() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
