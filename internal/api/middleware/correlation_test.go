package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wheelhouse-index/wheelhouse/internal/core"
)

func TestCorrelationIDMiddleware(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = core.CorrelationID(r.Context())
	})

	t.Run("caller-supplied ID is honored", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		r.Header.Set(CorrelationIDHeader, "req-123")
		w := httptest.NewRecorder()

		CorrelationIDMiddleware(next).ServeHTTP(w, r)

		if seen != "req-123" {
			t.Errorf("context correlation ID = %q, want %q", seen, "req-123")
		}
		if got := w.Header().Get(CorrelationIDHeader); got != "req-123" {
			t.Errorf("response header = %q, want %q", got, "req-123")
		}
	})

	t.Run("generated when absent", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		w := httptest.NewRecorder()

		CorrelationIDMiddleware(next).ServeHTTP(w, r)

		if seen == "" {
			t.Error("middleware should generate a correlation ID")
		}
		if got := w.Header().Get(CorrelationIDHeader); got != seen {
			t.Errorf("response header = %q, want the context ID %q", got, seen)
		}
	})
}
