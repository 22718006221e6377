// Package admin guards administrator routes with a bearer token.
package admin

import (
	"log/slog"
	"net/http"
	"strings"

	dErrors "github.com/amaralBruno27866/member-platform-test-sub015/pkg/domain-errors"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/httputil"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/requestcontext"
)

// TokenValidator resolves a bearer token to the administrator id it was issued to.
type TokenValidator interface {
	AdminSubject(token string) (string, error)
}

// RequireAdmin rejects requests without a valid administrator bearer token and
// stores the administrator id in the request context.
func RequireAdmin(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "admin access without bearer token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			adminID, err := validator.AdminSubject(token)
			if err != nil {
				logger.WarnContext(ctx, "admin access denied",
					"request_id", requestID,
					"error", err,
				)
				if !dErrors.HasCode(err, dErrors.CodeForbidden) {
					err = dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token")
				}
				httputil.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithAdminID(ctx, adminID)))
		})
	}
}
