/*
middleware.go - Authentication middleware and request identity

PURPOSE:
  Validates JWT session tokens and resolves the current user for every
  protected route. Handlers read the user from the request context and
  consult ledger.Can for anything beyond "is logged in".

TOKEN FLOW:
  Authorization: Bearer <token>
  -> JWTManager.Validate -> claims.UserID
  -> UserStore.GetUser (role is re-read so a role change takes effect
     without re-login)
  -> context
*/
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/floatworks/pettycash/auth"
	"github.com/floatworks/pettycash/ledger"
)

type contextKey string

const userKey contextKey = "current_user"

// currentUser extracts the authenticated user from the context.
// Returns nil outside the auth middleware.
func currentUser(ctx context.Context) *ledger.User {
	u, _ := ctx.Value(userKey).(*ledger.User)
	return u
}

// RequireAuth validates the bearer token and loads the user record into
// the request context. Unknown or deleted users are rejected even if
// their token is still valid.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, "Authentication required", auth.ErrMissingToken)
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "Authentication required", auth.ErrInvalidToken)
			return
		}

		claims, err := h.Tokens.Validate(parts[1])
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Authentication required", err)
			return
		}

		user, err := h.Users.GetUser(r.Context(), claims.UserID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load user", err)
			return
		}
		if user == nil {
			writeError(w, http.StatusUnauthorized, "Authentication required", auth.ErrInvalidToken)
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAction wraps a handler with a capability check on the current
// user's role.
func (h *Handler) requireAction(action ledger.Action, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r.Context())
		if user == nil {
			writeError(w, http.StatusUnauthorized, "Authentication required", nil)
			return
		}
		if !ledger.Can(user.Role, action) {
			writeError(w, http.StatusForbidden, "Insufficient permissions", nil)
			return
		}
		next(w, r)
	}
}
