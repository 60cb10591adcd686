package dashboardauth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const bearerPrefix = "Bearer "

type contextKey int

const userIDKey contextKey = 0

// RequireUser returns middleware that resolves the Authorization: Bearer
// header to a user id via issuer, rejecting the request with 401 if absent
// or invalid, and otherwise injecting the resolved id into the request
// context.
func RequireUser(issuer *JWTIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(auth, bearerPrefix)
			if !ok || token == "" {
				writeUnauthorized(w, "missing or invalid Authorization header")
				return
			}

			userID, err := issuer.Validate(token)
			if err != nil {
				writeUnauthorized(w, "missing or invalid Authorization header")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext retrieves the user id injected by RequireUser.
func UserFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
