package oidc

import (
	"context"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wheelhouse-index/wheelhouse/internal/metrics"
	"github.com/wheelhouse-index/wheelhouse/internal/store"
)

const testAudience = "wheelhouse"

func signedToken(t *testing.T, priv *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(priv)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func baseClaims(issuerURL string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss": issuerURL,
		"aud": testAudience,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
		"sub": "repo:octo-org/octo-repo:ref:refs/heads/main",
	}
}

func TestStrictClaimsShape(t *testing.T) {
	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   bool
	}{
		{
			name:   "single string audience",
			claims: jwt.MapClaims{"iat": 1.0, "aud": testAudience},
			want:   true,
		},
		{
			name:   "single-element audience list",
			claims: jwt.MapClaims{"iat": 1.0, "aud": []any{testAudience}},
			want:   true,
		},
		{
			name:   "missing iat",
			claims: jwt.MapClaims{"aud": testAudience},
			want:   false,
		},
		{
			name:   "wrong audience",
			claims: jwt.MapClaims{"iat": 1.0, "aud": "other"},
			want:   false,
		},
		{
			name:   "multiple audiences even when ours is included",
			claims: jwt.MapClaims{"iat": 1.0, "aud": []any{testAudience, "other"}},
			want:   false,
		},
		{
			name:   "empty audience list",
			claims: jwt.MapClaims{"iat": 1.0, "aud": []any{}},
			want:   false,
		},
		{
			name:   "non-string audience",
			claims: jwt.MapClaims{"iat": 1.0, "aud": 42},
			want:   false,
		},
		{
			name:   "missing audience",
			claims: jwt.MapClaims{"iat": 1.0},
			want:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := strictClaimsShape(tt.claims, testAudience); got != tt.want {
				t.Errorf("strictClaimsShape(%v) = %v, want %v", tt.claims, got, tt.want)
			}
		})
	}
}

func TestPublisherServiceVerifyJWTSignature(t *testing.T) {
	fi := newFakeIssuer(t)
	priv := fi.setKeys(t, "kid-1")["kid-1"]

	kv := store.NewMemoryKV()
	keys := NewKeyCache(fi.server.Client(), kv, metrics.NewNoopMetrics())
	svc := NewPublisherService(fi.server.URL, testAudience, nil, nil, keys, kv, metrics.NewNoopMetrics())

	t.Run("valid token", func(t *testing.T) {
		token := signedToken(t, priv, "kid-1", baseClaims(fi.server.URL))
		claims := svc.VerifyJWTSignature(context.Background(), token)
		if claims == nil {
			t.Fatal("VerifyJWTSignature() = nil, want claims")
		}
		if claims.String("sub") != "repo:octo-org/octo-repo:ref:refs/heads/main" {
			t.Errorf("sub claim = %q", claims.String("sub"))
		}
	})

	reject := func(name string, mutate func(jwt.MapClaims)) {
		t.Run(name, func(t *testing.T) {
			claims := baseClaims(fi.server.URL)
			mutate(claims)
			token := signedToken(t, priv, "kid-1", claims)
			if got := svc.VerifyJWTSignature(context.Background(), token); got != nil {
				t.Errorf("VerifyJWTSignature() = %v, want nil", got)
			}
		})
	}

	reject("wrong issuer", func(c jwt.MapClaims) { c["iss"] = "https://evil.example.com" })
	reject("wrong audience", func(c jwt.MapClaims) { c["aud"] = "other-index" })
	reject("multiple audiences", func(c jwt.MapClaims) { c["aud"] = []any{testAudience, "other"} })
	reject("expired", func(c jwt.MapClaims) {
		c["exp"] = time.Now().Add(-5 * time.Minute).Unix()
	})
	reject("missing exp", func(c jwt.MapClaims) { delete(c, "exp") })
	reject("missing iat", func(c jwt.MapClaims) { delete(c, "iat") })

	t.Run("HS256 rejected", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, baseClaims(fi.server.URL))
		token.Header["kid"] = "kid-1"
		signed, err := token.SignedString([]byte("shared-secret"))
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		if got := svc.VerifyJWTSignature(context.Background(), signed); got != nil {
			t.Error("token signed with a symmetric algorithm must be rejected")
		}
	})

	t.Run("missing kid rejected", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, baseClaims(fi.server.URL))
		signed, err := token.SignedString(priv)
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		if got := svc.VerifyJWTSignature(context.Background(), signed); got != nil {
			t.Error("token without a kid header must be rejected")
		}
	})

	t.Run("garbage rejected", func(t *testing.T) {
		if got := svc.VerifyJWTSignature(context.Background(), "not.a.jwt"); got != nil {
			t.Error("malformed token must be rejected")
		}
	})
}

func TestNullPublisherServiceVerifyJWTSignature(t *testing.T) {
	const issuer = "https://token.actions.githubusercontent.com"
	svc := NewNullPublisherService(issuer, testAudience, nil, nil, store.NewMemoryKV(), metrics.NewNoopMetrics())

	sign := func(t *testing.T, claims jwt.MapClaims) string {
		t.Helper()
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("ignored"))
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		return signed
	}

	t.Run("signature is ignored", func(t *testing.T) {
		claims := svc.VerifyJWTSignature(context.Background(), sign(t, baseClaims(issuer)))
		if claims == nil {
			t.Fatal("VerifyJWTSignature() = nil, want claims")
		}
	})

	t.Run("issuer still enforced", func(t *testing.T) {
		claims := baseClaims("https://evil.example.com")
		if got := svc.VerifyJWTSignature(context.Background(), sign(t, claims)); got != nil {
			t.Error("wrong issuer must be rejected even without signature checks")
		}
	})

	t.Run("expiry still enforced", func(t *testing.T) {
		claims := baseClaims(issuer)
		claims["exp"] = time.Now().Add(-5 * time.Minute).Unix()
		if got := svc.VerifyJWTSignature(context.Background(), sign(t, claims)); got != nil {
			t.Error("expired token must be rejected even without signature checks")
		}
	})

	t.Run("audience still enforced", func(t *testing.T) {
		claims := baseClaims(issuer)
		claims["aud"] = []any{testAudience, "other"}
		if got := svc.VerifyJWTSignature(context.Background(), sign(t, claims)); got != nil {
			t.Error("over-scoped audience must be rejected even without signature checks")
		}
	})
}

func TestJWTIdentifierReplayRecords(t *testing.T) {
	kv := store.NewMemoryKV()
	github := NewPublisherService("https://token.actions.githubusercontent.com", testAudience, nil, nil, nil, kv, metrics.NewNoopMetrics())
	gitlab := NewPublisherService("https://gitlab.com", testAudience, nil, nil, nil, kv, metrics.NewNoopMetrics())

	if github.JWTIdentifierExists("jti-1") {
		t.Error("fresh jti should not exist")
	}

	github.StoreJWTIdentifier("jti-1", time.Now().Add(time.Hour))
	if !github.JWTIdentifierExists("jti-1") {
		t.Error("stored jti should exist")
	}
	if gitlab.JWTIdentifierExists("jti-1") {
		t.Error("replay records are scoped per issuer")
	}

	// Only a token far past any acceptance window skips the record.
	github.StoreJWTIdentifier("jti-2", time.Now().Add(-replayGrace-time.Minute))
	if github.JWTIdentifierExists("jti-2") {
		t.Error("long-expired token's jti should not be recorded")
	}
}

func TestJWTIdentifierRecordOutlivesLeeway(t *testing.T) {
	kv := store.NewMemoryKV()
	svc := NewPublisherService("https://token.actions.githubusercontent.com", testAudience, nil, nil, nil, kv, metrics.NewNoopMetrics())

	// A token just past exp still verifies within the leeway, so its jti
	// must be recorded anyway.
	svc.StoreJWTIdentifier("jti-just-expired", time.Now().Add(-10*time.Second))
	if !svc.JWTIdentifierExists("jti-just-expired") {
		t.Error("jti of a token inside the leeway window must be recorded")
	}

	// The record must not lapse the moment the token's own exp passes.
	svc.StoreJWTIdentifier("jti-short-lived", time.Now().Add(50*time.Millisecond))
	time.Sleep(150 * time.Millisecond)
	if !svc.JWTIdentifierExists("jti-short-lived") {
		t.Error("replay record expired before the verification leeway window closed")
	}
}
