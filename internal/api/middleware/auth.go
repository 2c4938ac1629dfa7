package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/wheelhouse-index/wheelhouse/internal/api/presenter"
)

// AdminAuth guards the admin API with a static bearer key. An empty key
// disables the admin surface entirely.
func AdminAuth(adminKey string) func(handler http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminKey == "" {
				presenter.Error(w, r, "admin API is disabled", http.StatusNotFound)
				return
			}

			auth := r.Header.Get("Authorization")
			key := strings.TrimPrefix(auth, "Bearer ")
			if key == "" || auth == key {
				presenter.Error(w, r, "login required", http.StatusUnauthorized)
				return
			}

			if subtle.ConstantTimeCompare([]byte(key), []byte(adminKey)) != 1 {
				presenter.Error(w, r, "invalid admin key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
