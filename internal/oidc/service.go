package oidc

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/wheelhouse-index/wheelhouse/internal/core"
	"github.com/wheelhouse-index/wheelhouse/internal/publishers"
)

// signatureLeeway absorbs clock skew between us and the issuer when
// validating iat/nbf/exp.
const signatureLeeway = 30 * time.Second

// replayGrace extends each jti record past the token's exp. A token is still
// accepted up to signatureLeeway after exp, so the record has to outlive
// that window with margin to spare.
const replayGrace = signatureLeeway + 30*time.Second

// Service is one issuer family's verification surface. The mint pipeline
// holds one per enabled family and picks by the token's claimed issuer.
type Service interface {
	core.ReplayChecker

	IssuerURL() string
	Audience() string

	// VerifyJWTSignature returns the verified claims, or nil for any
	// failure. It never returns an error; failures are counted and logged.
	VerifyJWTSignature(ctx context.Context, unverifiedToken string) core.ClaimSet

	// FindPublisher resolves verified claims to a stored publisher and runs
	// its claim verification.
	FindPublisher(claims core.ClaimSet, pending bool) (core.Publisher, error)

	// ReifyPendingPublisher converts a pending publisher into (or merges it
	// with) a concrete one.
	ReifyPendingPublisher(pending core.PendingPublisher) (core.Publisher, error)

	// StoreJWTIdentifier records a jti until the token's own expiry so a
	// replay can be detected.
	StoreJWTIdentifier(jti string, expiresAt time.Time)
}

// PublisherService is the production Service: full RS256 signature
// verification against the issuer's published JWKS.
type PublisherService struct {
	issuerURL string
	audience  string
	registry  *publishers.Registry
	store     core.PublisherStore
	keys      *KeyCache
	cache     core.KV
	metrics   core.Metrics
}

func NewPublisherService(
	issuerURL, audience string,
	registry *publishers.Registry,
	store core.PublisherStore,
	keys *KeyCache,
	cache core.KV,
	metrics core.Metrics,
) *PublisherService {
	return &PublisherService{
		issuerURL: issuerURL,
		audience:  audience,
		registry:  registry,
		store:     store,
		keys:      keys,
		cache:     cache,
		metrics:   metrics,
	}
}

func (s *PublisherService) IssuerURL() string { return s.issuerURL }
func (s *PublisherService) Audience() string  { return s.audience }

func (s *PublisherService) VerifyJWTSignature(ctx context.Context, unverifiedToken string) core.ClaimSet {
	s.metrics.Increment("oidc.verify_jwt_signature.attempt", "issuer_url:"+s.issuerURL)

	keyfunc := func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token header has no kid")
		}
		return s.keys.Key(ctx, s.issuerURL, kid)
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(unverifiedToken, claims, keyfunc,
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(s.issuerURL),
		jwt.WithAudience(s.audience),
		jwt.WithLeeway(signatureLeeway),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		metric := "oidc.verify_jwt_signature.invalid_signature"
		if errors.Is(err, jwt.ErrTokenMalformed) {
			metric = "oidc.verify_jwt_signature.malformed_jwt"
		}
		s.metrics.Increment(metric, "issuer_url:"+s.issuerURL)
		log.Ctx(ctx).Debug().
			Err(err).
			Str("issuer_url", s.issuerURL).
			Msg("JWT signature verification failed")
		return nil
	}

	if !strictClaimsShape(claims, s.audience) {
		s.metrics.Increment("oidc.verify_jwt_signature.malformed_jwt", "issuer_url:"+s.issuerURL)
		return nil
	}

	s.metrics.Increment("oidc.verify_jwt_signature.ok", "issuer_url:"+s.issuerURL)
	return core.ClaimSet(claims)
}

// strictClaimsShape enforces what the parser's validator leaves open: iat
// must actually be present, and aud must be exactly one audience. A token
// listing several audiences is over-scoped even if ours is among them.
func strictClaimsShape(claims jwt.MapClaims, audience string) bool {
	if _, ok := claims["iat"]; !ok {
		return false
	}
	switch aud := claims["aud"].(type) {
	case string:
		return aud == audience
	case []any:
		if len(aud) != 1 {
			return false
		}
		single, ok := aud[0].(string)
		return ok && single == audience
	default:
		return false
	}
}

func (s *PublisherService) FindPublisher(claims core.ClaimSet, pending bool) (core.Publisher, error) {
	s.metrics.Increment("oidc.find_publisher.attempt", "issuer_url:"+s.issuerURL)

	publisher, err := s.registry.FindPublisherByIssuer(s.store, s.issuerURL, claims, pending)
	if err != nil {
		s.metrics.Increment("oidc.find_publisher.publisher_not_found", "issuer_url:"+s.issuerURL)
		return nil, err
	}

	if err := publisher.VerifyClaims(claims, s); err != nil {
		s.metrics.Increment("oidc.find_publisher.invalid_claims", "issuer_url:"+s.issuerURL)
		return nil, err
	}

	s.metrics.Increment("oidc.find_publisher.ok", "issuer_url:"+s.issuerURL)
	return publisher, nil
}

func (s *PublisherService) ReifyPendingPublisher(pending core.PendingPublisher) (core.Publisher, error) {
	return pending.Reify(s.store)
}

func (s *PublisherService) jtiCacheKey(jti string) string {
	return "oidc:jti:" + s.issuerURL + ":" + jti
}

func (s *PublisherService) JWTIdentifierExists(jti string) bool {
	return s.cache.Exists(s.jtiCacheKey(jti))
}

// StoreJWTIdentifier is create-if-absent: when two requests race on the same
// jti, exactly one write happens and the loser's presence check (or the SetNX
// result) reports the replay.
func (s *PublisherService) StoreJWTIdentifier(jti string, expiresAt time.Time) {
	ttl := time.Until(expiresAt) + replayGrace
	if ttl <= 0 {
		return
	}
	s.cache.SetNX(s.jtiCacheKey(jti), true, ttl)
}
