package api

import (
	"errors"
	"net"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/wheelhouse-index/wheelhouse/internal/api/presenter"
	"github.com/wheelhouse-index/wheelhouse/internal/service"
)

type MintPayload struct {
	// Token is the raw OIDC token obtained from the CI provider.
	Token string `json:"token"`
}

type MintErrorDetail struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type MintFailureResponse struct {
	Message string            `json:"message"`
	Errors  []MintErrorDetail `json:"errors"`
}

type MintSuccessResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	Expires int64  `json:"expires"`
}

// handleMint exchanges an upstream OIDC token for a scoped upload credential.
func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)

	var payload MintPayload
	if err := DecodePayload(r, &payload, false); err != nil {
		logger.Warn().Err(err).Msg("failed to decode mint request payload")
		presenter.JSON(w, r, MintFailureResponse{
			Message: "Token request failed",
			Errors: []MintErrorDetail{{
				Code:        service.CodeInvalidPayload,
				Description: "request body must be a JSON object with a 'token' key",
			}},
		}, http.StatusUnprocessableEntity)
		return
	}
	if payload.Token == "" {
		presenter.JSON(w, r, MintFailureResponse{
			Message: "Token request failed",
			Errors: []MintErrorDetail{{
				Code:        service.CodeInvalidPayload,
				Description: "token is required",
			}},
		}, http.StatusUnprocessableEntity)
		return
	}

	result, err := s.mintService.Mint(ctx, service.MintRequest{
		Token:    payload.Token,
		RemoteIP: remoteIP(r),
	})
	if err != nil {
		var mintErr *service.MintError
		if errors.As(err, &mintErr) {
			logger.Warn().Str("code", mintErr.Code).Err(err).Msg("mint rejected")
			presenter.JSON(w, r, MintFailureResponse{
				Message: "Token request failed",
				Errors: []MintErrorDetail{{
					Code:        mintErr.Code,
					Description: mintErr.Error(),
				}},
			}, mintErr.StatusCode)
			return
		}
		logger.Error().Err(err).Msg("mint failed")
		presenter.Error(w, r, "token minting failed", http.StatusInternalServerError)
		return
	}

	presenter.JSON(w, r, MintSuccessResponse{
		Success: true,
		Token:   result.Token,
		Expires: result.Expires,
	}, http.StatusOK)
}

// remoteIP strips the port from RemoteAddr. Proxy headers are deliberately
// ignored, the rate limiter must not trust caller-controlled input.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
