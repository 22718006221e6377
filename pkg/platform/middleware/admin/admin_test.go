package admin

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "github.com/amaralBruno27866/member-platform-test-sub015/pkg/domain-errors"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/requestcontext"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/testutil"
)

type stubValidator map[string]error

func (s stubValidator) AdminSubject(token string) (string, error) {
	if err, ok := s[token]; ok && err != nil {
		return "", err
	}
	if _, ok := s[token]; !ok {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	return "admin-" + token, nil
}

func TestRequireAdmin(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	validator := stubValidator{
		"good":   nil,
		"member": dErrors.New(dErrors.CodeForbidden, "administrator role required"),
	}
	var seenAdmin string
	h := RequireAdmin(validator, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAdmin = requestcontext.AdminID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("missing header", func(t *testing.T) {
		rr := testutil.DoRequest(h, httptest.NewRequest(http.MethodPost, "/", nil))
		testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rr := testutil.DoRequest(h, req)
		testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
	})

	t.Run("wrong role", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer member")
		rr := testutil.DoRequest(h, req)
		testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
	})

	t.Run("valid token sets admin id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer good")
		rr := testutil.DoRequest(h, req)
		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "admin-good", seenAdmin)
	})
}
