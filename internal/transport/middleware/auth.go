package middleware

import (
	"net/http"

	"github.com/frahmantamala/cardspend/internal/auth"
	"github.com/frahmantamala/cardspend/internal/user"
	"github.com/frahmantamala/cardspend/pkg/logger"
)

// UserContext resolves the caller from the X-User-ID header and attaches
// the account to the request context. Session mechanics live outside
// this service; the gateway in front of it authenticates and forwards
// the identity header.
func UserContext(users user.Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get("X-User-ID")
			if userID == "" {
				http.Error(w, `{"code":401,"message":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			account, err := users.GetByID(userID)
			if err != nil || !account.IsActive {
				http.Error(w, `{"code":401,"message":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			ctx := auth.ContextWithUser(r.Context(), &auth.AuthUser{
				ID:           account.ID,
				Name:         account.Name,
				Email:        account.Email,
				Role:         account.Role,
				BusinessUnit: account.BusinessUnit,
			})
			ctx = logger.With(ctx, "userID", account.ID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRoles rejects callers whose role is outside the allowed set.
func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := auth.UserFromContext(r.Context())
			if !ok {
				http.Error(w, `{"code":401,"message":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			if _, ok := allowed[caller.Role]; !ok {
				http.Error(w, `{"code":403,"message":"insufficient permissions"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
