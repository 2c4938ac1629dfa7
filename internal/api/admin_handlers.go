package api

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/wheelhouse-index/wheelhouse/internal/api/presenter"
	"github.com/wheelhouse-index/wheelhouse/internal/core"
)

type IssuersResponse struct {
	// IssuerURLs lists the fixed issuer URLs the registry accepts. Families
	// with dynamic issuers (CircleCI per-org, Semaphore per-org) are matched
	// by pattern and not enumerated here.
	IssuerURLs []string `json:"issuer_urls"`

	// DisabledKinds lists families currently switched off by the kill switch.
	DisabledKinds []core.Kind `json:"disabled_kinds"`
}

// handleAdminIssuers reports the accepted issuers and kill-switch state.
func (s *Server) handleAdminIssuers(w http.ResponseWriter, r *http.Request) {
	presenter.JSON(w, r, IssuersResponse{
		IssuerURLs:    s.registry.IssuerURLs(),
		DisabledKinds: s.mintService.DisabledKinds(),
	}, http.StatusOK)
}

type ToggleIssuerPayload struct {
	Enabled bool `json:"enabled"`
}

type ToggleIssuerResponse struct {
	Kind    core.Kind `json:"kind"`
	Enabled bool      `json:"enabled"`
}

// handleToggleIssuerKind flips the kill switch for one publisher family.
func (s *Server) handleToggleIssuerKind(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	kind, err := core.ParseKind(r.PathValue("kind"))
	if err != nil {
		presenter.Error(w, r, err.Error(), http.StatusNotFound)
		return
	}

	var payload ToggleIssuerPayload
	if err := DecodePayload(r, &payload, false); err != nil {
		logger.Warn().Err(err).Msg("failed to decode issuer toggle payload")
		presenter.Error(w, r, "invalid request payload", http.StatusBadRequest)
		return
	}

	s.mintService.SetKindEnabled(kind, payload.Enabled)
	logger.Info().
		Str("kind", string(kind)).
		Bool("enabled", payload.Enabled).
		Msg("issuer kill switch updated")

	presenter.JSON(w, r, ToggleIssuerResponse{
		Kind:    kind,
		Enabled: payload.Enabled,
	}, http.StatusOK)
}
