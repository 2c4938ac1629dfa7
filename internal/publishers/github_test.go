package publishers

import (
	"errors"
	"testing"

	"github.com/wheelhouse-index/wheelhouse/internal/core"
)

func TestExtractWorkflowFilename(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		want string
	}{
		{
			name: "plain yml",
			ref:  "octo-org/octo-repo/.github/workflows/release.yml@refs/heads/main",
			want: "release.yml",
		},
		{
			name: "plain yaml",
			ref:  "octo-org/octo-repo/.github/workflows/ci.yaml@refs/tags/v1.0.0",
			want: "ci.yaml",
		},
		{
			name: "filename with embedded yml suffix stops at first boundary",
			ref:  "foo/bar/.github/workflows/baz.yml@fake.yml@refs/heads/main",
			want: "baz.yml",
		},
		{
			name: "dots in filename",
			ref:  "foo/bar/.github/workflows/release.v2.yml@refs/heads/main",
			want: "release.v2.yml",
		},
		{
			name: "no ref suffix",
			ref:  "octo-org/octo-repo/.github/workflows/release.yml",
			want: "",
		},
		{
			name: "not a workflows path",
			ref:  "octo-org/octo-repo/scripts/release.yml@refs/heads/main",
			want: "",
		},
		{
			name: "nested path inside workflows",
			ref:  "octo-org/octo-repo/.github/workflows/sub/release.yml@refs/heads/main",
			want: "",
		},
		{name: "empty", ref: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractWorkflowFilename(tt.ref); got != tt.want {
				t.Errorf("extractWorkflowFilename(%q) = %q, want %q", tt.ref, got, tt.want)
			}
		})
	}
}

func TestCheckGitHubSub(t *testing.T) {
	tests := []struct {
		name    string
		sub     any
		wantErr bool
	}{
		{name: "exact", sub: "repo:octo-org/octo-repo:ref:refs/heads/main"},
		{name: "case-insensitive", sub: "repo:Octo-Org/Octo-Repo:environment:release"},
		{name: "bare prefix", sub: "repo:octo-org/octo-repo"},
		{name: "other repository", sub: "repo:evil-org/octo-repo:ref:refs/heads/main", wantErr: true},
		{name: "no colon", sub: "octo-org/octo-repo", wantErr: true},
		{name: "empty", sub: "", wantErr: true},
		{name: "non-string", sub: 42, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkGitHubSub("repo:octo-org/octo-repo", tt.sub, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("checkGitHubSub(%v) error = %v, wantErr %v", tt.sub, err, tt.wantErr)
			}
		})
	}
}

func TestCheckJobWorkflowRef(t *testing.T) {
	const groundTruth = "octo-org/octo-repo/.github/workflows/release.yml"

	tests := []struct {
		name    string
		ref     string
		claims  core.ClaimSet
		wantErr bool
	}{
		{
			name:   "matches ref",
			ref:    groundTruth + "@refs/heads/main",
			claims: core.ClaimSet{"ref": "refs/heads/main"},
		},
		{
			name:   "matches sha",
			ref:    groundTruth + "@deadbeef",
			claims: core.ClaimSet{"sha": "deadbeef"},
		},
		{
			name:   "matches sha when ref differs",
			ref:    groundTruth + "@deadbeef",
			claims: core.ClaimSet{"ref": "refs/heads/main", "sha": "deadbeef"},
		},
		{
			name:    "spoofed filename segment",
			ref:     "octo-org/octo-repo/.github/workflows/fake.yml@release.yml@refs/heads/main",
			claims:  core.ClaimSet{"ref": "refs/heads/main"},
			wantErr: true,
		},
		{
			name:    "different workflow",
			ref:     "octo-org/octo-repo/.github/workflows/other.yml@refs/heads/main",
			claims:  core.ClaimSet{"ref": "refs/heads/main"},
			wantErr: true,
		},
		{
			name:    "neither ref nor sha in token",
			ref:     groundTruth + "@refs/heads/main",
			claims:  core.ClaimSet{},
			wantErr: true,
		},
		{
			name:    "empty claim",
			ref:     "",
			claims:  core.ClaimSet{"ref": "refs/heads/main"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := &core.CheckContext{Claims: tt.claims}
			err := checkJobWorkflowRef(groundTruth, tt.ref, ctx)
			if (err != nil) != tt.wantErr {
				t.Errorf("checkJobWorkflowRef(%q) error = %v, wantErr %v", tt.ref, err, tt.wantErr)
			}
		})
	}
}

func TestCheckEventName(t *testing.T) {
	if err := checkEventName("", "push", nil); err != nil {
		t.Errorf("push event should pass, got %v", err)
	}
	if err := checkEventName("", "workflow_dispatch", nil); err != nil {
		t.Errorf("workflow_dispatch event should pass, got %v", err)
	}
	if err := checkEventName("", "pull_request_target", nil); err == nil {
		t.Error("pull_request_target must be rejected")
	}
	if err := checkEventName("", nil, nil); err == nil {
		t.Error("missing event_name must be rejected")
	}
}

func githubClaims(overrides map[string]any) core.ClaimSet {
	claims := core.ClaimSet{
		"sub":              "repo:octo-org/octo-repo:ref:refs/heads/main",
		"repository":       "octo-org/octo-repo",
		"repository_owner": "octo-org",
		"job_workflow_ref": "octo-org/octo-repo/.github/workflows/release.yml@refs/heads/main",
		"event_name":       "push",
		"ref":              "refs/heads/main",
	}
	for k, v := range overrides {
		if v == nil {
			delete(claims, k)
			continue
		}
		claims[k] = v
	}
	return claims
}

func TestGitHubPublisherVerifyClaims(t *testing.T) {
	pub := NewGitHubPublisher("octo-org", "octo-repo", "release.yml", "")

	tests := []struct {
		name      string
		publisher *GitHubPublisher
		overrides map[string]any
		wantErr   bool
	}{
		{name: "valid token", publisher: pub},
		{
			name:      "repository case folds",
			publisher: pub,
			overrides: map[string]any{
				"sub":              "repo:Octo-Org/Octo-Repo:ref:refs/heads/main",
				"repository":       "Octo-Org/Octo-Repo",
				"repository_owner": "Octo-Org",
			},
			// job_workflow_ref remains exact-match and lowercase here.
		},
		{
			name:      "pull_request_target rejected",
			publisher: pub,
			overrides: map[string]any{"event_name": "pull_request_target"},
			wantErr:   true,
		},
		{
			name:      "wrong workflow rejected",
			publisher: pub,
			overrides: map[string]any{
				"job_workflow_ref": "octo-org/octo-repo/.github/workflows/other.yml@refs/heads/main",
			},
			wantErr: true,
		},
		{
			name:      "environment constraint satisfied case-insensitively",
			publisher: NewGitHubPublisher("octo-org", "octo-repo", "release.yml", "Release"),
			overrides: map[string]any{"environment": "release"},
		},
		{
			name:      "environment constraint unmet",
			publisher: NewGitHubPublisher("octo-org", "octo-repo", "release.yml", "release"),
			wantErr:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.publisher.VerifyClaims(githubClaims(tt.overrides), &fakeReplayChecker{})
			if (err != nil) != tt.wantErr {
				t.Errorf("VerifyClaims() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, core.ErrInvalidPublisher) {
				t.Errorf("VerifyClaims() error %v is not ErrInvalidPublisher", err)
			}
		})
	}
}

func TestGitHubLookupSelectsEnvironmentScopedPublisher(t *testing.T) {
	store := &stubStore{
		findResult: []core.PublisherRecord{
			{ID: "general", Kind: core.KindGitHub, Attrs: map[string]string{
				"repository_owner": "octo-org", "repository_name": "octo-repo",
				"workflow_filename": "release.yml", "environment": "",
			}},
			{ID: "scoped", Kind: core.KindGitHub, Attrs: map[string]string{
				"repository_owner": "octo-org", "repository_name": "octo-repo",
				"workflow_filename": "release.yml", "environment": "release",
			}},
		},
	}

	claims := githubClaims(map[string]any{"environment": "Release"})
	got, err := lookupGitHub(store, false, claims, GitHubIssuerURL)
	if err != nil {
		t.Fatalf("lookupGitHub() error = %v", err)
	}
	if got.ID() != "scoped" {
		t.Errorf("lookupGitHub() selected %q, want the environment-scoped publisher", got.ID())
	}

	got, err = lookupGitHub(store, false, githubClaims(nil), GitHubIssuerURL)
	if err != nil {
		t.Fatalf("lookupGitHub() without environment error = %v", err)
	}
	if got.ID() != "general" {
		t.Errorf("lookupGitHub() selected %q, want the general publisher", got.ID())
	}
}

func TestGitHubVerifyURL(t *testing.T) {
	pub := NewGitHubPublisher("Octo-Org", "octo-repo", "release.yml", "")

	tests := []struct {
		url  string
		want bool
	}{
		{"https://github.com/Octo-Org/octo-repo", true},
		{"https://github.com/Octo-Org/octo-repo.git", true},
		{"https://github.com/Octo-Org/octo-repo/tree/main/docs", true},
		{"https://octo-org.github.io/octo-repo", true},
		{"https://octo-org.github.io/octo-repo/guide", true},
		{"https://github.com/Octo-Org/other-repo", false},
		{"https://octo-org.github.io/other-repo", false},
		{"https://example.com/Octo-Org/octo-repo", false},
	}
	for _, tt := range tests {
		if got := pub.VerifyURL(tt.url); got != tt.want {
			t.Errorf("VerifyURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}
