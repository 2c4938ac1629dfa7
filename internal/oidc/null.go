package oidc

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/wheelhouse-index/wheelhouse/internal/core"
	"github.com/wheelhouse-index/wheelhouse/internal/publishers"
)

// NullPublisherService skips signature verification entirely, for local
// development against hand-crafted tokens. It still enforces the issuer and
// the strict single-audience rule, and it still runs the full publisher
// claim verification and replay check. Construction screams in the log so it
// can never slip into a deployed environment unnoticed.
type NullPublisherService struct {
	PublisherService
}

func NewNullPublisherService(
	issuerURL, audience string,
	registry *publishers.Registry,
	store core.PublisherStore,
	cache core.KV,
	metrics core.Metrics,
) *NullPublisherService {
	log.Warn().
		Str("issuer_url", issuerURL).
		Msg("INSECURE: NullPublisherService in use, JWT signatures are NOT verified")
	return &NullPublisherService{
		PublisherService: *NewPublisherService(issuerURL, audience, registry, store, nil, cache, metrics),
	}
}

func (s *NullPublisherService) VerifyJWTSignature(ctx context.Context, unverifiedToken string) core.ClaimSet {
	s.metrics.Increment("oidc.verify_jwt_signature.attempt", "issuer_url:"+s.issuerURL)

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(unverifiedToken, claims); err != nil {
		s.metrics.Increment("oidc.verify_jwt_signature.malformed_jwt", "issuer_url:"+s.issuerURL)
		log.Ctx(ctx).Debug().Err(err).Msg("unverified JWT decode failed")
		return nil
	}

	if iss, _ := claims["iss"].(string); iss != s.issuerURL {
		s.metrics.Increment("oidc.verify_jwt_signature.malformed_jwt", "issuer_url:"+s.issuerURL)
		return nil
	}
	if exp, err := claims.GetExpirationTime(); err != nil || exp == nil || time.Now().After(exp.Time.Add(signatureLeeway)) {
		s.metrics.Increment("oidc.verify_jwt_signature.malformed_jwt", "issuer_url:"+s.issuerURL)
		return nil
	}
	if !strictClaimsShape(claims, s.audience) {
		s.metrics.Increment("oidc.verify_jwt_signature.malformed_jwt", "issuer_url:"+s.issuerURL)
		return nil
	}

	s.metrics.Increment("oidc.verify_jwt_signature.ok", "issuer_url:"+s.issuerURL)
	return core.ClaimSet(claims)
}
