package publishers

import (
	"testing"

	"github.com/wheelhouse-index/wheelhouse/internal/core"
)

func TestCheckSemaphoreSub(t *testing.T) {
	tests := []struct {
		name    string
		sub     any
		wantErr bool
	}{
		{name: "exact", sub: "org:acme:project:a3a1f2:repo:wheels:ref_type:branch"},
		{name: "repo at end", sub: "org:acme:repo:wheels"},
		{name: "case-insensitive", sub: "org:acme:repo:Wheels:branch:main"},
		{name: "no repo marker", sub: "org:acme:project:a3a1f2", wantErr: true},
		{name: "other repo", sub: "org:acme:repo:gears:branch:main", wantErr: true},
		{name: "empty", sub: "", wantErr: true},
		{name: "non-string", sub: false, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkSemaphoreSub("wheels", tt.sub, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("checkSemaphoreSub(%v) error = %v, wantErr %v", tt.sub, err, tt.wantErr)
			}
		})
	}
}

func TestSemaphoreRepoName(t *testing.T) {
	if got := NewSemaphorePublisher("acme", "o1", "wheels", "p1", "acme-gh/wheels").repoName(); got != "wheels" {
		t.Errorf("repoName() = %q, want %q", got, "wheels")
	}
	if got := NewSemaphorePublisher("acme", "o1", "wheels", "p1", "wheels").repoName(); got != "wheels" {
		t.Errorf("repoName() without slash = %q, want %q", got, "wheels")
	}
}

func semaphoreClaims() core.ClaimSet {
	return core.ClaimSet{
		"sub":    "org:acme:project:proj-uuid:repo:wheels:ref_type:branch",
		"org":    "acme",
		"org_id": "org-uuid",
		"prj":    "wheels",
		"prj_id": "proj-uuid",
	}
}

func TestSemaphorePublisherVerifyClaims(t *testing.T) {
	pub := NewSemaphorePublisher("acme", "org-uuid", "wheels", "proj-uuid", "acme-gh/wheels")

	if err := pub.VerifyClaims(semaphoreClaims(), &fakeReplayChecker{}); err != nil {
		t.Errorf("VerifyClaims() error = %v, want pass", err)
	}

	claims := semaphoreClaims()
	claims["org_id"] = "other-org-uuid"
	if err := pub.VerifyClaims(claims, &fakeReplayChecker{}); err == nil {
		t.Error("VerifyClaims() should reject a token from a different organization")
	}

	claims = semaphoreClaims()
	claims["sub"] = "org:acme:project:proj-uuid:repo:forked-wheels"
	if err := pub.VerifyClaims(claims, &fakeReplayChecker{}); err == nil {
		t.Error("VerifyClaims() should reject a token from a different connected repository")
	}
}

func TestSemaphoreLookupUsesStableIDs(t *testing.T) {
	store := &stubStore{
		findResult: []core.PublisherRecord{
			{ID: "p1", Kind: core.KindSemaphore, Attrs: map[string]string{
				"organization": "acme", "organization_id": "org-uuid",
				"project": "wheels", "project_id": "proj-uuid",
				"repo_slug": "acme-gh/wheels",
			}},
		},
	}

	got, err := lookupSemaphore(store, false, semaphoreClaims(), "https://acme.semaphoreci.com")
	if err != nil {
		t.Fatalf("lookupSemaphore() error = %v", err)
	}
	if got.ID() != "p1" {
		t.Errorf("lookupSemaphore() = %q, want p1", got.ID())
	}

	claims := semaphoreClaims()
	delete(claims, "org_id")
	if _, err := lookupSemaphore(store, false, claims, "https://acme.semaphoreci.com"); err == nil {
		t.Error("lookupSemaphore() should fail without org_id")
	}
}
