package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth rejects requests that do not carry apiKey as a Bearer token or in
// X-API-Key. Paths listed in open skip the check. An empty apiKey disables
// authentication.
func Auth(apiKey string, open ...string) func(http.Handler) http.Handler {
	public := make(map[string]bool, len(open))
	for _, p := range open {
		public[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" || public[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			if !checkToken(w, r, apiKey) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AdminOnly guards a single handler with the admin key. An empty adminKey
// leaves the handler behind Auth alone.
func AdminOnly(adminKey string, next http.HandlerFunc) http.HandlerFunc {
	if adminKey == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get("X-Admin-Key"))
		if token == "" {
			writeJSONError(w, http.StatusForbidden, "admin key required")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(adminKey)) != 1 {
			writeJSONError(w, http.StatusForbidden, "invalid admin key")
			return
		}
		next(w, r)
	}
}

func checkToken(w http.ResponseWriter, r *http.Request, want string) bool {
	token := extractToken(r)
	if token == "" {
		writeJSONError(w, http.StatusUnauthorized, "missing authentication token")
		return false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(want)) != 1 {
		writeJSONError(w, http.StatusUnauthorized, "invalid authentication token")
		return false
	}
	return true
}

// extractToken reads "Authorization: Bearer <token>" and falls back to
// X-API-Key.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, token, found := strings.Cut(auth, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
