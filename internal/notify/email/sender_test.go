package email

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogSenderKeepsNewestMessages(t *testing.T) {
	s := NewLogSender(WithCapacity(2))
	ctx := context.Background()

	for _, tok := range []string{"t1", "t2", "t3"} {
		d, err := s.Send(ctx, "registration_verification", "a@b.com", map[string]string{"token": tok})
		require.NoError(t, err)
		assert.True(t, d.Delivered)
		assert.NotEmpty(t, d.MessageID)
	}

	assert.Equal(t, 2, s.Count())
	msg, ok := s.Last("a@b.com")
	require.True(t, ok)
	assert.Equal(t, "t3", msg.Vars["token"])

	_, ok = s.Last("other@b.com")
	assert.False(t, ok)
}

func TestLogSenderHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLogSender().Send(ctx, "registration_verification", "a@b.com", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
