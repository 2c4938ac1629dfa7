package publishers

import (
	"testing"

	"github.com/wheelhouse-index/wheelhouse/internal/core"
)

func TestExtractWorkflowFilepath(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		want string
	}{
		{
			name: "gitlab.com project",
			uri:  "gitlab.com/group/project//.gitlab-ci.yml@refs/heads/main",
			want: ".gitlab-ci.yml",
		},
		{
			name: "nested config path",
			uri:  "gitlab.com/group/project//ci/pipelines/release.yml@refs/tags/v2",
			want: "ci/pipelines/release.yml",
		},
		{
			name: "subgroup project",
			uri:  "gitlab.example.com/group/subgroup/project//.gitlab-ci.yaml@refs/heads/main",
			want: ".gitlab-ci.yaml",
		},
		{
			name: "embedded yml segment stops at first boundary",
			uri:  "gitlab.com/group/project//real.yml@fake.yml@refs/heads/main",
			want: "real.yml",
		},
		{
			name: "no double slash",
			uri:  "gitlab.com/group/project/.gitlab-ci.yml@refs/heads/main",
			want: "",
		},
		{
			name: "no ref suffix",
			uri:  "gitlab.com/group/project//.gitlab-ci.yml",
			want: "",
		},
		{name: "empty", uri: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractWorkflowFilepath(tt.uri); got != tt.want {
				t.Errorf("extractWorkflowFilepath(%q) = %q, want %q", tt.uri, got, tt.want)
			}
		})
	}
}

func TestCheckGitLabSub(t *testing.T) {
	tests := []struct {
		name    string
		sub     any
		wantErr bool
	}{
		{name: "exact", sub: "project_path:group/project:ref_type:branch:ref:main"},
		{name: "bare prefix", sub: "project_path:group/project"},
		{name: "case mismatch fails", sub: "project_path:Group/Project:ref:main", wantErr: true},
		{name: "other project", sub: "project_path:group/other:ref:main", wantErr: true},
		{name: "no colon", sub: "group/project", wantErr: true},
		{name: "empty", sub: "", wantErr: true},
		{name: "non-string", sub: 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkGitLabSub("project_path:group/project", tt.sub, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("checkGitLabSub(%v) error = %v, wantErr %v", tt.sub, err, tt.wantErr)
			}
		})
	}
}

func gitlabClaims(overrides map[string]any) core.ClaimSet {
	claims := core.ClaimSet{
		"sub":               "project_path:group/project:ref_type:branch:ref:main",
		"project_path":      "group/project",
		"ci_config_ref_uri": "gitlab.com/group/project//.gitlab-ci.yml@refs/heads/main",
		"ref_path":          "refs/heads/main",
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

func TestGitLabPublisherVerifyClaims(t *testing.T) {
	pub := NewGitLabPublisher("group", "project", ".gitlab-ci.yml", "", "")

	tests := []struct {
		name      string
		publisher *GitLabPublisher
		overrides map[string]any
		wantErr   bool
	}{
		{name: "valid token", publisher: pub},
		{
			name:      "ci_config_ref_uri matches via sha",
			publisher: pub,
			overrides: map[string]any{
				"ci_config_ref_uri": "gitlab.com/group/project//.gitlab-ci.yml@deadbeef",
				"sha":               "deadbeef",
			},
		},
		{
			name:      "project_path is case-sensitive",
			publisher: pub,
			overrides: map[string]any{
				"sub":          "project_path:Group/Project:ref:main",
				"project_path": "Group/Project",
			},
			wantErr: true,
		},
		{
			name:      "spoofed config path",
			publisher: pub,
			overrides: map[string]any{
				"ci_config_ref_uri": "gitlab.com/group/project//evil.yml@.gitlab-ci.yml@refs/heads/main",
			},
			wantErr: true,
		},
		{
			name:      "neither ref_path nor sha",
			publisher: pub,
			overrides: map[string]any{"ref_path": nil},
			wantErr:   true,
		},
		{
			name:      "self-hosted issuer changes ground truth",
			publisher: NewGitLabPublisher("group", "project", ".gitlab-ci.yml", "", "https://gitlab.example.com"),
			overrides: map[string]any{
				"ci_config_ref_uri": "gitlab.example.com/group/project//.gitlab-ci.yml@refs/heads/main",
			},
		},
		{
			name:      "environment is case-sensitive",
			publisher: NewGitLabPublisher("group", "project", ".gitlab-ci.yml", "release", ""),
			overrides: map[string]any{"environment": "Release"},
			wantErr:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.publisher.VerifyClaims(gitlabClaims(tt.overrides), &fakeReplayChecker{})
			if (err != nil) != tt.wantErr {
				t.Errorf("VerifyClaims() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGitLabLookupSplitsSubgroups(t *testing.T) {
	store := &stubStore{
		findResult: []core.PublisherRecord{
			{ID: "p1", Kind: core.KindGitLab, Attrs: map[string]string{
				"namespace": "group/subgroup", "project": "project",
				"workflow_filepath": ".gitlab-ci.yml", "environment": "",
				"issuer_url": GitLabIssuerURL,
			}},
		},
	}
	claims := gitlabClaims(map[string]any{
		"sub":               "project_path:group/subgroup/project:ref:main",
		"project_path":      "group/subgroup/project",
		"ci_config_ref_uri": "gitlab.com/group/subgroup/project//.gitlab-ci.yml@refs/heads/main",
	})

	got, err := lookupGitLab(store, false, claims, GitLabIssuerURL)
	if err != nil {
		t.Fatalf("lookupGitLab() error = %v", err)
	}
	pub, ok := got.(*GitLabPublisher)
	if !ok {
		t.Fatalf("lookupGitLab() returned %T, want *GitLabPublisher", got)
	}
	if pub.Namespace != "group/subgroup" || pub.Project != "project" {
		t.Errorf("lookup split project_path into %q/%q, want group/subgroup and project",
			pub.Namespace, pub.Project)
	}
}

func TestGitLabLookupRejectsMalformedProjectPath(t *testing.T) {
	for _, path := range []string{"", "project", "/project", "group/"} {
		claims := gitlabClaims(map[string]any{"project_path": path})
		if _, err := lookupGitLab(&stubStore{}, false, claims, GitLabIssuerURL); err == nil {
			t.Errorf("lookupGitLab() with project_path %q should fail", path)
		}
	}
}

func TestGitLabVerifyURL(t *testing.T) {
	pub := NewGitLabPublisher("group/subgroup", "project", ".gitlab-ci.yml", "", "")

	tests := []struct {
		url  string
		want bool
	}{
		{"https://gitlab.com/group/subgroup/project", true},
		{"https://gitlab.com/group/subgroup/project.git", true},
		{"https://gitlab.com/group/subgroup/project/-/tree/main", true},
		{"https://group.gitlab.io/subgroup/project", true},
		{"https://group.gitlab.io/subgroup/project/docs", true},
		{"https://gitlab.com/group/subgroup/other", false},
		{"https://group.gitlab.io/project", false},
	}
	for _, tt := range tests {
		if got := pub.VerifyURL(tt.url); got != tt.want {
			t.Errorf("VerifyURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}
