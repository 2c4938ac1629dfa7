package api

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/wheelhouse-index/wheelhouse/internal/api/presenter"
	"github.com/wheelhouse-index/wheelhouse/internal/core"
)

// queryableAuditor is implemented by audit backends that can be searched.
// The file auditor is append-only and does not qualify.
type queryableAuditor interface {
	GetRecent(limit int) ([]core.AuditEntry, error)
	Find(filter func(entry core.AuditEntry) bool, limit int) ([]core.AuditEntry, error)
}

// handleAdminAudit processes requests to retrieve audit log entries.
func (s *Server) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)

	auditor, ok := s.auditor.(queryableAuditor)
	if !ok {
		presenter.Error(w, r, "audit backend does not support queries", http.StatusNotImplemented)
		return
	}

	// filters
	q := r.URL.Query()
	limitStr := q.Get("limit")

	filterCorrelationID := q.Get("correlation_id")
	filterPublisherID := q.Get("publisher_id")
	filterFingerprint := q.Get("fingerprint")

	limit := 50
	if limitStr != "" {
		if v, err := strconv.Atoi(limitStr); err != nil {
			logger.Warn().Err(err).Str("limit", limitStr).Msg("invalid limit parameter")
			presenter.Error(w, r, "invalid limit parameter", http.StatusBadRequest)
			return
		} else {
			limit = v
		}
	}

	var entries []core.AuditEntry
	var err error

	if filterCorrelationID != "" || filterFingerprint != "" || filterPublisherID != "" {
		logger.Info().Msgf("applying audit log filters")
		entries, err = auditor.Find(func(entry core.AuditEntry) bool {
			if filterCorrelationID != "" && entry.ID != filterCorrelationID {
				return false
			}
			if filterFingerprint != "" && entry.Fingerprint != filterFingerprint {
				return false
			}
			if filterPublisherID != "" && entry.PublisherID != filterPublisherID {
				return false
			}
			return true
		}, limit)
	} else {
		log.Debug().Msgf("retrieving recent audit log entries")
		entries, err = auditor.GetRecent(limit)
	}

	if err != nil {
		logger.Error().Err(err).Msg("failed to retrieve audit logs")
		presenter.Error(w, r, "failed to retrieve audit logs", http.StatusInternalServerError)
		return
	}

	presenter.JSON(w, r, entries, http.StatusOK)
}

// handleAdminCredentials processes requests to retrieve active minted credentials.
func (s *Server) handleAdminCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)

	credentials, err := s.credentialStore.ListActive(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to retrieve active credentials")
		presenter.Error(w, r, "failed to retrieve active credentials", http.StatusInternalServerError)
		return
	}

	presenter.JSON(w, r, credentials, http.StatusOK)
}
