package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveNameFromEmail(t *testing.T) {
	cases := []struct {
		in          string
		first, last string
	}{
		{"jane.doe@example.com", "Jane", "Doe"},
		{"JANE_q_DOE@example.com", "Jane", "Doe"},
		{"solo@example.com", "Solo", "Member"},
		{"@example.com", "Member", "Member"},
	}
	for _, tc := range cases {
		first, last := DeriveNameFromEmail(tc.in)
		assert.Equal(t, tc.first, first, tc.in)
		assert.Equal(t, tc.last, last, tc.in)
	}
}

func TestGreetingName(t *testing.T) {
	assert.Equal(t, "Ana", GreetingName("ana", "x@y.com"))
	assert.Equal(t, "Jane", GreetingName("  ", "jane.doe@y.com"))
}

func TestNormalizeAndLocalPart(t *testing.T) {
	assert.Equal(t, "a@b.com", Normalize("  A@B.com "))
	assert.Equal(t, "a", LocalPart("a@b.com"))
	assert.Equal(t, "nodomain", LocalPart("nodomain"))
}
