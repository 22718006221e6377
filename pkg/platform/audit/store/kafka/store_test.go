package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/audit"
)

type recordingProducer struct {
	records []*kgo.Record
	err     error
}

func (p *recordingProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	var results kgo.ProduceResults
	for _, r := range rs {
		p.records = append(p.records, r)
		results = append(results, kgo.ProduceResult{Record: r, Err: p.err})
	}
	return results
}

func TestAppendKeysBySession(t *testing.T) {
	producer := &recordingProducer{}
	store := New(producer, "registration-events")
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	err := store.Append(context.Background(), audit.Event{
		Timestamp: ts,
		SessionID: "sess-1",
		Subject:   "sess-1",
		Action:    string(audit.EventRegistrationApproved),
		ActorID:   "admin-7",
	})
	require.NoError(t, err)
	require.Len(t, producer.records, 1)

	rec := producer.records[0]
	assert.Equal(t, "registration-events", rec.Topic)
	assert.Equal(t, []byte("sess-1"), rec.Key)
	assert.Equal(t, "event_type", rec.Headers[0].Key)

	var msg Message
	require.NoError(t, json.Unmarshal(rec.Value, &msg))
	assert.Equal(t, string(audit.CategoryCompliance), msg.Category)
	assert.Equal(t, "admin-7", msg.ActorID)
	assert.True(t, ts.Equal(msg.Timestamp))
}

func TestAppendSurfacesProduceError(t *testing.T) {
	store := New(&recordingProducer{err: assert.AnError}, "t")
	err := store.Append(context.Background(), audit.Event{SessionID: "s", Action: "x"})
	assert.ErrorIs(t, err, assert.AnError)
}
