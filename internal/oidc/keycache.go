package oidc

import (
	"context"
	"crypto/rsa"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/rs/zerolog/log"

	"github.com/wheelhouse-index/wheelhouse/internal/core"
)

const (
	// refreshCooldown suppresses redundant upstream JWKS fetches. A key ID
	// missing from the cached set triggers at most one refresh per window.
	refreshCooldown = 60 * time.Second

	// fetchTimeout bounds each upstream HTTP request separately.
	fetchTimeout = 5 * time.Second
)

// KeyCache caches each issuer's JWKS, indexed by key ID. Cached keysets have
// no expiry of their own: a stale set stays usable until a refresh succeeds,
// so upstream outages degrade to "no new keys" instead of "no keys".
type KeyCache struct {
	client  *http.Client
	cache   core.KV
	metrics core.Metrics
}

func NewKeyCache(client *http.Client, cache core.KV, metrics core.Metrics) *KeyCache {
	if client == nil {
		client = http.DefaultClient
	}
	return &KeyCache{client: client, cache: cache, metrics: metrics}
}

func keysetCacheKey(issuerURL string) string   { return "oidc:jwks:" + issuerURL }
func cooldownCacheKey(issuerURL string) string { return "oidc:jwks-cooldown:" + issuerURL }

// Key returns the issuer's RSA public key for the key ID, refreshing the
// keyset at most once (subject to the cooldown) if the ID is unknown.
func (kc *KeyCache) Key(ctx context.Context, issuerURL, keyID string) (*rsa.PublicKey, error) {
	keyset, cached := kc.keyset(issuerURL)
	if !cached {
		var err error
		if keyset, err = kc.refresh(ctx, issuerURL); err != nil {
			return nil, err
		}
	}

	if key, ok := keyset[keyID]; ok {
		return key, nil
	}

	// Unknown kid usually means upstream rotated keys; refresh once.
	keyset, err := kc.refresh(ctx, issuerURL)
	if err != nil {
		return nil, err
	}
	if key, ok := keyset[keyID]; ok {
		return key, nil
	}

	kc.metrics.Increment("oidc.key_cache.key_not_found", "issuer_url:"+issuerURL)
	return nil, &core.KeyNotFoundError{Issuer: issuerURL, KeyID: keyID}
}

func (kc *KeyCache) keyset(issuerURL string) (map[string]*rsa.PublicKey, bool) {
	v, ok := kc.cache.Get(keysetCacheKey(issuerURL))
	if !ok {
		return nil, false
	}
	keyset, ok := v.(map[string]*rsa.PublicKey)
	return keyset, ok
}

// refresh fetches the issuer's JWKS unless the cooldown is active, in which
// case the current (possibly stale, possibly empty) cached set is returned.
func (kc *KeyCache) refresh(ctx context.Context, issuerURL string) (map[string]*rsa.PublicKey, error) {
	if kc.cache.Exists(cooldownCacheKey(issuerURL)) {
		kc.metrics.Increment("oidc.key_cache.refresh_timeout", "issuer_url:"+issuerURL)
		keyset, _ := kc.keyset(issuerURL)
		return keyset, nil
	}
	kc.cache.Set(cooldownCacheKey(issuerURL), true, refreshCooldown)

	keyset, err := kc.fetch(ctx, issuerURL)
	if err != nil {
		kc.metrics.Increment("oidc.key_cache.refresh_failed", "issuer_url:"+issuerURL)
		log.Ctx(ctx).Warn().
			Err(err).
			Str("issuer_url", issuerURL).
			Msg("JWKS refresh failed, keeping cached keyset")
		stale, _ := kc.keyset(issuerURL)
		return stale, nil
	}

	kc.cache.Set(keysetCacheKey(issuerURL), keyset, 0)
	kc.metrics.Increment("oidc.key_cache.refreshed", "issuer_url:"+issuerURL)
	return keyset, nil
}

func (kc *KeyCache) fetch(ctx context.Context, issuerURL string) (map[string]*rsa.PublicKey, error) {
	jwksURI, err := kc.discoverJWKSURI(ctx, issuerURL)
	if err != nil {
		return nil, err
	}

	body, err := kc.get(ctx, jwksURI)
	if err != nil {
		return nil, fmt.Errorf("fetching JWKS from %s: %w", jwksURI, err)
	}

	set, err := jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parsing JWKS from %s: %w", jwksURI, err)
	}

	keyset := make(map[string]*rsa.PublicKey, set.Len())
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		var pub rsa.PublicKey
		if err := key.Raw(&pub); err != nil {
			// Non-RSA keys (EC, OKP) are useless for RS256; skip them.
			continue
		}
		keyset[key.KeyID()] = &pub
	}
	return keyset, nil
}

func (kc *KeyCache) discoverJWKSURI(ctx context.Context, issuerURL string) (string, error) {
	configURL := issuerURL + "/.well-known/openid-configuration"
	body, err := kc.get(ctx, configURL)
	if err != nil {
		return "", fmt.Errorf("fetching OIDC discovery document: %w", err)
	}

	var doc struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("parsing OIDC discovery document: %w", err)
	}
	if doc.JWKSURI == "" {
		return "", fmt.Errorf("discovery document at %s has no jwks_uri", configURL)
	}
	return doc.JWKSURI, nil
}

func (kc *KeyCache) get(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := kc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}
