package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches outer code", func(t *testing.T) {
		err := New(CodeNotFound, "session not found")
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeConflict))
	})

	t.Run("matches nested code through wraps", func(t *testing.T) {
		inner := New(CodeCompensationFailed, "delete failed")
		outer := Wrap(fmt.Errorf("saga: %w", inner), CodeCreationFailed, "creation failed")
		assert.True(t, HasCode(outer, CodeCreationFailed))
		assert.True(t, HasCode(outer, CodeCompensationFailed))
	})

	t.Run("matches either side of a join", func(t *testing.T) {
		err := errors.Join(New(CodeCreationFailed, "saga failed"), New(CodeCompensationFailed, "orphans left"))
		assert.True(t, HasCode(err, CodeCreationFailed))
		assert.True(t, HasCode(err, CodeCompensationFailed))
		assert.Equal(t, CodeCreationFailed, CodeOf(err))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	})
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("redis down")
	err := Wrap(cause, CodeExternalUnavailable, "session store unavailable")

	require.ErrorIs(t, err, cause)
	assert.Equal(t, "session store unavailable: redis down", err.Error())
	assert.Equal(t, "session store unavailable", MessageOf(err))
}

func TestValidationCarriesFields(t *testing.T) {
	err := Validation("invalid registration", []FieldError{
		{Field: "account.email", Reason: "format", Message: "must be a valid email"},
	})

	assert.Equal(t, CodeValidation, CodeOf(err))
	fields := FieldsOf(err)
	require.Len(t, fields, 1)
	assert.Equal(t, "account.email", fields[0].Field)
}

func TestWithMetaDoesNotMutateOriginal(t *testing.T) {
	base := New(CodeInvalidStateTransition, "illegal transition")
	withMeta := WithMeta(base, "current_state", "staged", "attempted_event", "approve")

	assert.Nil(t, MetaOf(base))
	assert.Equal(t, "staged", MetaOf(withMeta)["current_state"])
	assert.Equal(t, "approve", MetaOf(withMeta)["attempted_event"])
	assert.True(t, HasCode(withMeta, CodeInvalidStateTransition))
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:             http.StatusUnprocessableEntity,
		CodeInvalidStateTransition: http.StatusConflict,
		CodeNotFound:               http.StatusNotFound,
		CodeTooManyAttempts:        http.StatusTooManyRequests,
		CodeCreationFailed:         http.StatusBadGateway,
		CodeExternalUnavailable:    http.StatusServiceUnavailable,
		CodeInternal:               http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, ToHTTPStatus(code), string(code))
	}
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("approve: %w", New(CodeInvalidStateTransition, "illegal transition"))
	require.ErrorIs(t, err, New(CodeInvalidStateTransition, ""))
	assert.NotErrorIs(t, err, New(CodeNotFound, ""))
}
