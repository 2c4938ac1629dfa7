package publishers

import (
	"errors"
	"testing"

	"github.com/wheelhouse-index/wheelhouse/internal/core"
)

func TestCircleCIClaimAttribute(t *testing.T) {
	pub := NewCircleCIPublisher("org-uuid", "proj-uuid", "pipeline-uuid")

	tests := []struct {
		claim string
		want  string
	}{
		{circleciClaimOrgID, "org-uuid"},
		{circleciClaimProjectID, "proj-uuid"},
		{circleciClaimPipelineDefinitionID, "pipeline-uuid"},
	}
	for _, tt := range tests {
		got, err := pub.ClaimAttribute(tt.claim)
		if err != nil {
			t.Errorf("ClaimAttribute(%q) error = %v", tt.claim, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ClaimAttribute(%q) = %q, want %q", tt.claim, got, tt.want)
		}
	}

	var unknown *UnknownAttributeError
	if _, err := pub.ClaimAttribute("oidc.circleci.com/vcs-ref"); !errors.As(err, &unknown) {
		t.Errorf("ClaimAttribute for an unmapped claim should return *UnknownAttributeError, got %v", err)
	}
}

func TestCheckNotSSHRerun(t *testing.T) {
	tests := []struct {
		name    string
		actual  any
		wantErr bool
	}{
		{name: "absent passes", actual: nil},
		{name: "false passes", actual: false},
		{name: "true rejected", actual: true, wantErr: true},
		{name: "non-bool rejected", actual: "true", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkNotSSHRerun("", tt.actual, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("checkNotSSHRerun(%v) error = %v, wantErr %v", tt.actual, err, tt.wantErr)
			}
		})
	}
}

func circleciClaims() core.ClaimSet {
	return core.ClaimSet{
		"sub":                             "org/org-uuid/project/proj-uuid/user/user-uuid",
		circleciClaimOrgID:                "org-uuid",
		circleciClaimProjectID:            "proj-uuid",
		circleciClaimPipelineDefinitionID: "pipeline-uuid",
	}
}

func TestCircleCIPublisherVerifyClaims(t *testing.T) {
	pub := NewCircleCIPublisher("org-uuid", "proj-uuid", "pipeline-uuid")

	if err := pub.VerifyClaims(circleciClaims(), &fakeReplayChecker{}); err != nil {
		t.Errorf("VerifyClaims() error = %v, want pass", err)
	}

	claims := circleciClaims()
	claims[circleciClaimSSHRerun] = true
	if err := pub.VerifyClaims(claims, &fakeReplayChecker{}); err == nil {
		t.Error("VerifyClaims() should reject an SSH re-run token")
	}

	claims = circleciClaims()
	claims[circleciClaimPipelineDefinitionID] = "other-pipeline"
	if err := pub.VerifyClaims(claims, &fakeReplayChecker{}); err == nil {
		t.Error("VerifyClaims() should reject a different pipeline definition")
	}
}

func TestLookupCircleCI(t *testing.T) {
	record := core.PublisherRecord{ID: "p1", Kind: core.KindCircleCI, Attrs: map[string]string{
		"circleci_org_id":        "org-uuid",
		"circleci_project_id":    "proj-uuid",
		"pipeline_definition_id": "pipeline-uuid",
	}}

	t.Run("matching issuer org", func(t *testing.T) {
		store := &stubStore{findResult: []core.PublisherRecord{record}}
		got, err := lookupCircleCI(store, false, circleciClaims(), CircleCIIssuerURLPrefix+"org-uuid")
		if err != nil {
			t.Fatalf("lookupCircleCI() error = %v", err)
		}
		if got.ID() != "p1" {
			t.Errorf("lookupCircleCI() = %q, want p1", got.ID())
		}
	})

	t.Run("issuer org mismatch", func(t *testing.T) {
		store := &stubStore{findResult: []core.PublisherRecord{record}}
		_, err := lookupCircleCI(store, false, circleciClaims(), CircleCIIssuerURLPrefix+"other-org")
		var notFound *core.PublisherNotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("expected *PublisherNotFoundError, got %v", err)
		}
	})

	t.Run("missing org-id claim", func(t *testing.T) {
		claims := circleciClaims()
		delete(claims, circleciClaimOrgID)
		_, err := lookupCircleCI(&stubStore{}, false, claims, CircleCIIssuerURLPrefix+"org-uuid")
		if err == nil {
			t.Error("lookupCircleCI() should fail without the org-id claim")
		}
	})
}
