package middleware

import (
	"net/http"

	"github.com/rs/xid"

	"github.com/wheelhouse-index/wheelhouse/internal/core"
)

const CorrelationIDHeader = "X-Correlation-ID"

// CorrelationIDMiddleware assigns every request a correlation ID, honoring
// one supplied by the caller, and echoes it in the response header.
func CorrelationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationIDHeader)
		if id == "" {
			id = xid.New().String()
		}
		w.Header().Set(CorrelationIDHeader, id)

		ctx := core.WithCorrelationID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
