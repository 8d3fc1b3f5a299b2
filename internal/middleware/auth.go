package middleware

import (
	"crypto/subtle"
	"net/http"
)

// Auth проверяет статический bearer-токен сервиса.
// Пустой токен отключает проверку: сервис считается локальным.
func Auth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			got := r.Header.Get("Authorization")
			want := "Bearer " + token
			if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":{"code":"unauthorized","message":"invalid service token"}}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
