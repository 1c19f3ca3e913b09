package http

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const SessionHeader = "X-Session-ID"

type ctxKey int

const sessionIDKey ctxKey = iota

// SessionMiddleware reads the session id from X-Session-ID, generating one
// when absent, and echoes it on the response.
func SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.Header.Get(SessionHeader)
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), sessionIDKey, sessionID)
		w.Header().Set(SessionHeader, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func getSessionID(ctx context.Context) string {
	if sessionID, ok := ctx.Value(sessionIDKey).(string); ok {
		return sessionID
	}
	return ""
}
