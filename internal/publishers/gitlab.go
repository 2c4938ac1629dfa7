package publishers

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wheelhouse-index/wheelhouse/internal/core"
)

// GitLabIssuerURL is the canonical issuer for gitlab.com CI tokens.
// Self-hosted instances register per-organization custom issuer URLs.
const GitLabIssuerURL = "https://gitlab.com"

var gitlabSpec = core.KindSpec{
	Kind: core.KindGitLab,
	RequiredVerifiable: []string{
		"sub", "project_path", "ci_config_ref_uri",
	},
	OptionalVerifiable: []string{"environment", "jti"},
	Unchecked: []string{
		"ci_config_sha", "deployment_tier", "environment_action",
		"environment_protected", "groups_direct", "job_id", "namespace_id",
		"namespace_path", "pipeline_id", "pipeline_source", "project_id",
		"project_visibility", "ref", "ref_path", "ref_protected", "ref_type",
		"runner_environment", "runner_id", "sha", "user_access_level",
		"user_email", "user_id", "user_identities", "user_login",
	},
}

// gitlabWorkflowFilepathRe extracts the CI config path from a
// ci_config_ref_uri claim (HOST/NAMESPACE/PROJECT//PATH/FILE@REF). Unlike the
// GitHub form the path component may contain slashes; the lazy group still
// stops at the first ".yml@"/".yaml@" boundary so embedded "@" tricks cannot
// displace the real path.
var gitlabWorkflowFilepathRe = regexp.MustCompile(
	`//(.+?\.(?:yml|yaml))@`,
)

func extractWorkflowFilepath(ciConfigRefURI string) string {
	m := gitlabWorkflowFilepathRe.FindStringSubmatch(ciConfigRefURI)
	if m == nil {
		return ""
	}
	return m[1]
}

// GitLabPublisher authorizes a single CI config file in a project, optionally
// constrained to an environment. IssuerURL distinguishes gitlab.com from
// self-hosted instances.
type GitLabPublisher struct {
	id string

	// Namespace is the full group path, subgroups included.
	Namespace        string
	Project          string
	WorkflowFilepath string
	// Environment "" means unconstrained; matching is case-sensitive, unlike
	// GitHub.
	Environment string
	IssuerURL   string
}

func NewGitLabPublisher(namespace, project, workflowFilepath, environment, issuerURL string) *GitLabPublisher {
	if issuerURL == "" {
		issuerURL = GitLabIssuerURL
	}
	return &GitLabPublisher{
		Namespace:        namespace,
		Project:          project,
		WorkflowFilepath: workflowFilepath,
		Environment:      environment,
		IssuerURL:        issuerURL,
	}
}

func (p *GitLabPublisher) Kind() core.Kind { return core.KindGitLab }
func (p *GitLabPublisher) ID() string      { return p.id }

func (p *GitLabPublisher) String() string {
	return fmt.Sprintf("%s/%s//%s", p.Namespace, p.Project, p.WorkflowFilepath)
}

func (p *GitLabPublisher) projectPath() string {
	return p.Namespace + "/" + p.Project
}

func (p *GitLabPublisher) issuerHost() string {
	host := strings.TrimPrefix(p.IssuerURL, "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimSuffix(host, "/")
}

// checkGitLabSub mirrors the GitHub sub check with GitLab's case-sensitive
// comparison: only the "project_path:NAMESPACE/PROJECT" prefix counts.
func checkGitLabSub(expected string, actual any, _ *core.CheckContext) error {
	sub, ok := actual.(string)
	if !ok || sub == "" {
		return &core.CheckFailedError{Reason: "missing subject"}
	}
	components := strings.Split(sub, ":")
	if len(components) < 2 {
		return &core.CheckFailedError{Reason: "malformed subject"}
	}
	if components[0]+":"+components[1] != expected {
		return &core.CheckFailedError{Reason: "subject does not match this publisher"}
	}
	return nil
}

// checkCIConfigRefURI accepts exactly "{ground truth}@{ref_path}" or
// "{ground truth}@{sha}", with both candidates drawn from the full claim set.
func checkCIConfigRefURI(expected string, actual any, ctx *core.CheckContext) error {
	uri, ok := actual.(string)
	if !ok || uri == "" {
		return &core.CheckFailedError{Reason: "missing ci_config_ref_uri"}
	}

	var acceptable []string
	if r := ctx.Claims.String("ref_path"); r != "" {
		acceptable = append(acceptable, expected+"@"+r)
	}
	if s := ctx.Claims.String("sha"); s != "" {
		acceptable = append(acceptable, expected+"@"+s)
	}
	if len(acceptable) == 0 {
		return &core.CheckFailedError{Reason: "token carries neither ref_path nor sha"}
	}

	for _, candidate := range acceptable {
		if uri == candidate {
			return nil
		}
	}
	return &core.CheckFailedError{Reason: "ci_config_ref_uri does not match this publisher's CI config"}
}

func (p *GitLabPublisher) ClaimChecks() []core.ClaimCheck {
	groundTruth := fmt.Sprintf("%s/%s//%s", p.issuerHost(), p.projectPath(), p.WorkflowFilepath)
	return []core.ClaimCheck{
		{Name: "sub", Expected: "project_path:" + p.projectPath(), Check: checkGitLabSub},
		{Name: "project_path", Expected: p.projectPath(), Check: StrictEquals},
		{Name: "ci_config_ref_uri", Expected: groundTruth, Check: checkCIConfigRefURI},
		{Name: "environment", Expected: p.Environment, Check: environmentCheck(false), Optional: true},
		{Name: "jti", Check: UnusedTokenID, Optional: true},
	}
}

func (p *GitLabPublisher) VerifyClaims(claims core.ClaimSet, svc core.ReplayChecker) error {
	return verifyClaimChecks(p.ClaimChecks(), claims, svc)
}

func (p *GitLabPublisher) baseURL() string {
	return fmt.Sprintf("https://%s/%s", p.issuerHost(), p.projectPath())
}

func (p *GitLabPublisher) PublisherURL(claims core.ClaimSet) string {
	base := p.baseURL()
	if claims != nil {
		if sha := claims.String("sha"); sha != "" {
			return base + "/-/commit/" + sha
		}
	}
	return base
}

// VerifyURL accepts the project URL (optionally with ".git"), sub-paths of
// it, and the GitLab Pages URL: the namespace root becomes the subdomain and
// any subgroups stay in the path (ROOT.gitlab.io/[SUBGROUPS/]PROJECT).
func (p *GitLabPublisher) VerifyURL(candidate string) bool {
	if urlIsRepoOrSubpath(p.baseURL(), candidate) {
		return true
	}
	root, subgroups, _ := strings.Cut(p.Namespace, "/")
	pagesPath := p.Project
	if subgroups != "" {
		pagesPath = subgroups + "/" + p.Project
	}
	pages := fmt.Sprintf("https://%s.gitlab.io/%s", strings.ToLower(root), pagesPath)
	return urlMatchesBase(pages, candidate)
}

func (p *GitLabPublisher) IdentityAttributes() map[string]string {
	return map[string]string{
		"namespace":         p.Namespace,
		"project":           p.Project,
		"workflow_filepath": p.WorkflowFilepath,
		"environment":       p.Environment,
		"issuer_url":        p.IssuerURL,
	}
}

func gitlabFromRecord(rec core.PublisherRecord) *GitLabPublisher {
	return &GitLabPublisher{
		id:               rec.ID,
		Namespace:        rec.Attrs["namespace"],
		Project:          rec.Attrs["project"],
		WorkflowFilepath: rec.Attrs["workflow_filepath"],
		Environment:      rec.Attrs["environment"],
		IssuerURL:        rec.Attrs["issuer_url"],
	}
}

// lookupGitLab splits the project_path claim on its last slash (namespaces
// may contain subgroups) and extracts the CI config path from
// ci_config_ref_uri. Rows are additionally discriminated by issuer URL so a
// self-hosted publisher can never satisfy gitlab.com claims.
func lookupGitLab(store core.PublisherStore, pending bool, claims core.ClaimSet, issuerURL string) (core.Publisher, error) {
	projectPath := claims.String("project_path")
	idx := strings.LastIndex(projectPath, "/")
	if idx <= 0 || idx == len(projectPath)-1 {
		return nil, &core.PublisherNotFoundError{Reason: "malformed project_path claim"}
	}
	namespace, project := projectPath[:idx], projectPath[idx+1:]

	filepath := extractWorkflowFilepath(claims.String("ci_config_ref_uri"))
	if filepath == "" {
		return nil, &core.PublisherNotFoundError{Reason: "could not extract CI config path from ci_config_ref_uri"}
	}

	recs, err := store.Find(core.KindGitLab, pending, map[string]string{
		"namespace":         namespace,
		"project":           project,
		"workflow_filepath": filepath,
		"issuer_url":        issuerURL,
	})
	if err != nil {
		return nil, err
	}

	selected := selectByEnvironment(recs, claims.String("environment"), false)
	if selected == nil {
		return nil, &core.PublisherNotFoundError{Reason: "no publisher registered for this project and CI config"}
	}
	if pending {
		return pendingGitLabFromRecord(*selected), nil
	}
	return gitlabFromRecord(*selected), nil
}

// PendingGitLabPublisher is a GitLabPublisher registered before its target
// project exists.
type PendingGitLabPublisher struct {
	GitLabPublisher

	projectName string
	addedBy     string
}

func NewPendingGitLabPublisher(projectName, addedBy, namespace, project, workflowFilepath, environment, issuerURL string) *PendingGitLabPublisher {
	return &PendingGitLabPublisher{
		GitLabPublisher: *NewGitLabPublisher(namespace, project, workflowFilepath, environment, issuerURL),
		projectName:     projectName,
		addedBy:         addedBy,
	}
}

func (p *PendingGitLabPublisher) TargetProjectName() string { return p.projectName }
func (p *PendingGitLabPublisher) AddedBy() string           { return p.addedBy }

func (p *PendingGitLabPublisher) Reify(store core.PublisherStore) (core.Publisher, error) {
	return reifyPending(store, core.KindGitLab, p.id, p.IdentityAttributes(),
		func(rec core.PublisherRecord) core.Publisher { return gitlabFromRecord(rec) })
}

func pendingGitLabFromRecord(rec core.PublisherRecord) *PendingGitLabPublisher {
	return &PendingGitLabPublisher{
		GitLabPublisher: *gitlabFromRecord(rec),
		projectName:     rec.ProjectName,
		addedBy:         rec.AddedBy,
	}
}
