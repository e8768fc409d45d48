package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/dukerupert/showtrack/internal/auth"
	"github.com/dukerupert/showtrack/internal/model"
)

// Authenticator verifies an API token for a user id. A nil user with a nil
// error means the token did not match.
type Authenticator interface {
	Authenticate(ctx context.Context, userID int64, token string) (*model.User, error)
}

// ParseBearer splits an "Authorization: Bearer <user id>.<token>" header.
func ParseBearer(header string) (int64, string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return 0, "", false
	}
	idPart, token, ok := strings.Cut(strings.TrimSpace(header[len(prefix):]), ".")
	if !ok || token == "" {
		return 0, "", false
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	return id, token, true
}

// RequireAuth validates the bearer token and stores the caller's
// auth.Identity in the request context.
func RequireAuth(users Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, token, ok := ParseBearer(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}

			user, err := users.Authenticate(r.Context(), id, token)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "authentication failed")
				return
			}
			if user == nil {
				unauthorized(w)
				return
			}

			ctx := auth.WithIdentity(r.Context(), auth.Identity{UserID: user.ID, Role: user.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin checks that the authenticated user has the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="showtrack"`)
	writeError(w, http.StatusUnauthorized, "unauthorized")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
