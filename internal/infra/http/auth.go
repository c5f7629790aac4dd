package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"net/http"
	"strings"
)

// TokenAuthMiddleware пропускает запросы с заголовком Authorization: Bearer <token>.
// Пустой token отключает проверку.
func TokenAuthMiddleware(token string) func(http.Handler) http.Handler {
	if token == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	expected := sha256.Sum256([]byte(token))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			got := sha256.Sum256([]byte(strings.TrimSpace(raw)))
			if !hmac.Equal(got[:], expected[:]) {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
