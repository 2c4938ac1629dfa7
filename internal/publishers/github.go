package publishers

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wheelhouse-index/wheelhouse/internal/core"
)

// GitHubIssuerURL is the canonical issuer for GitHub Actions OIDC tokens.
const GitHubIssuerURL = "https://token.actions.githubusercontent.com"

var githubSpec = core.KindSpec{
	Kind: core.KindGitHub,
	RequiredVerifiable: []string{
		"sub", "repository", "repository_owner", "job_workflow_ref", "event_name",
	},
	OptionalVerifiable: []string{"environment", "jti"},
	Unchecked: []string{
		"actor", "actor_id", "base_ref", "enterprise", "enterprise_id",
		"environment_node_id", "head_ref", "ref", "ref_protected", "ref_type",
		"repository_id", "repository_owner_id", "repository_visibility",
		"run_attempt", "run_id", "run_number", "runner_environment", "sha",
		"workflow", "workflow_ref", "workflow_sha", "job_workflow_sha",
	},
}

// githubWorkflowFilenameRe extracts the workflow filename from a
// job_workflow_ref claim (OWNER/REPO/.github/workflows/FILE@REF). The lazy
// filename group tolerates "@" and "." inside filenames: extraction stops at
// the first ".yml@"/".yaml@" boundary, so an embedded "fake.yml@..." segment
// cannot displace the real filename. The exact-match check in
// checkJobWorkflowRef is what actually rejects spoofed refs.
var githubWorkflowFilenameRe = regexp.MustCompile(
	`^[^/]+/[^/]+/\.github/workflows/([^/]+?\.(?:yml|yaml))@`,
)

func extractWorkflowFilename(jobWorkflowRef string) string {
	m := githubWorkflowFilenameRe.FindStringSubmatch(jobWorkflowRef)
	if m == nil {
		return ""
	}
	return m[1]
}

// GitHubPublisher authorizes a single workflow file in a repository,
// optionally constrained to a deployment environment.
type GitHubPublisher struct {
	id string

	RepositoryOwner  string
	RepositoryName   string
	WorkflowFilename string
	// Environment "" means unconstrained; matching is case-insensitive.
	Environment string
}

func NewGitHubPublisher(owner, name, workflowFilename, environment string) *GitHubPublisher {
	return &GitHubPublisher{
		RepositoryOwner:  owner,
		RepositoryName:   name,
		WorkflowFilename: workflowFilename,
		Environment:      strings.ToLower(environment),
	}
}

func (p *GitHubPublisher) Kind() core.Kind { return core.KindGitHub }
func (p *GitHubPublisher) ID() string      { return p.id }

func (p *GitHubPublisher) String() string {
	return fmt.Sprintf("%s/%s/.github/workflows/%s", p.RepositoryOwner, p.RepositoryName, p.WorkflowFilename)
}

func (p *GitHubPublisher) repository() string {
	return p.RepositoryOwner + "/" + p.RepositoryName
}

func (p *GitHubPublisher) jobWorkflowRef() string {
	return fmt.Sprintf("%s/.github/workflows/%s", p.repository(), p.WorkflowFilename)
}

// checkGitHubSub compares only the "repo:ORG/REPO" prefix of the sub claim,
// case-insensitively. Anything after the second colon (environment, ref) is
// covered by its own claim.
func checkGitHubSub(expected string, actual any, _ *core.CheckContext) error {
	sub, ok := actual.(string)
	if !ok || sub == "" {
		return &core.CheckFailedError{Reason: "missing subject"}
	}
	components := strings.Split(sub, ":")
	if len(components) < 2 {
		return &core.CheckFailedError{Reason: "malformed subject"}
	}
	if !strings.EqualFold(components[0]+":"+components[1], expected) {
		return &core.CheckFailedError{Reason: "subject does not match this publisher"}
	}
	return nil
}

// checkJobWorkflowRef accepts exactly "{ground truth}@{ref}" or
// "{ground truth}@{sha}", with ref and sha taken from the full claim set. At
// least one of the two must be present.
func checkJobWorkflowRef(expected string, actual any, ctx *core.CheckContext) error {
	ref, ok := actual.(string)
	if !ok || ref == "" {
		return &core.CheckFailedError{Reason: "missing job_workflow_ref"}
	}

	var acceptable []string
	if r := ctx.Claims.String("ref"); r != "" {
		acceptable = append(acceptable, expected+"@"+r)
	}
	if s := ctx.Claims.String("sha"); s != "" {
		acceptable = append(acceptable, expected+"@"+s)
	}
	if len(acceptable) == 0 {
		return &core.CheckFailedError{Reason: "token carries neither ref nor sha"}
	}

	for _, candidate := range acceptable {
		if ref == candidate {
			return nil
		}
	}
	return &core.CheckFailedError{Reason: "job_workflow_ref does not match this publisher's workflow"}
}

// checkEventName rejects pull_request_target outright: those workflows run
// with the base repository's secrets against attacker-controlled code.
func checkEventName(_ string, actual any, _ *core.CheckContext) error {
	event, ok := actual.(string)
	if !ok {
		return &core.CheckFailedError{Reason: "missing event_name"}
	}
	if event == "pull_request_target" {
		return &core.CheckFailedError{Reason: "pull_request_target events are not allowed to mint tokens"}
	}
	return nil
}

func (p *GitHubPublisher) ClaimChecks() []core.ClaimCheck {
	return []core.ClaimCheck{
		{Name: "sub", Expected: "repo:" + p.repository(), Check: checkGitHubSub},
		{Name: "repository", Expected: p.repository(), Check: FoldEquals},
		{Name: "repository_owner", Expected: p.RepositoryOwner, Check: FoldEquals},
		{Name: "job_workflow_ref", Expected: p.jobWorkflowRef(), Check: checkJobWorkflowRef},
		{Name: "event_name", Check: checkEventName},
		{Name: "environment", Expected: p.Environment, Check: environmentCheck(true), Optional: true},
		{Name: "jti", Check: UnusedTokenID, Optional: true},
	}
}

func (p *GitHubPublisher) VerifyClaims(claims core.ClaimSet, svc core.ReplayChecker) error {
	return verifyClaimChecks(p.ClaimChecks(), claims, svc)
}

func (p *GitHubPublisher) baseURL() string {
	return "https://github.com/" + p.repository()
}

func (p *GitHubPublisher) PublisherURL(claims core.ClaimSet) string {
	base := p.baseURL()
	if claims != nil {
		if sha := claims.String("sha"); sha != "" {
			return base + "/commit/" + sha
		}
	}
	return base
}

// VerifyURL accepts the repository URL (optionally with a ".git" suffix),
// any sub-path of it, and the repository's GitHub Pages URL
// (OWNER.github.io/REPO, sub-paths included).
func (p *GitHubPublisher) VerifyURL(candidate string) bool {
	if urlIsRepoOrSubpath(p.baseURL(), candidate) {
		return true
	}
	pages := fmt.Sprintf("https://%s.github.io/%s", strings.ToLower(p.RepositoryOwner), p.RepositoryName)
	return urlMatchesBase(pages, candidate)
}

func (p *GitHubPublisher) IdentityAttributes() map[string]string {
	return map[string]string{
		"repository_owner":  p.RepositoryOwner,
		"repository_name":   p.RepositoryName,
		"workflow_filename": p.WorkflowFilename,
		"environment":       p.Environment,
	}
}

func githubFromRecord(rec core.PublisherRecord) *GitHubPublisher {
	return &GitHubPublisher{
		id:               rec.ID,
		RepositoryOwner:  rec.Attrs["repository_owner"],
		RepositoryName:   rec.Attrs["repository_name"],
		WorkflowFilename: rec.Attrs["workflow_filename"],
		Environment:      rec.Attrs["environment"],
	}
}

// lookupGitHub builds the identity-discriminating query from the claims:
// repository owner/name from the repository claim, the workflow filename
// extracted from job_workflow_ref. Environment-scoped publishers win over
// general ones when both match.
func lookupGitHub(store core.PublisherStore, pending bool, claims core.ClaimSet, _ string) (core.Publisher, error) {
	owner, name, ok := strings.Cut(claims.String("repository"), "/")
	if !ok {
		return nil, &core.PublisherNotFoundError{Reason: "malformed repository claim"}
	}
	filename := extractWorkflowFilename(claims.String("job_workflow_ref"))
	if filename == "" {
		return nil, &core.PublisherNotFoundError{Reason: "could not extract workflow filename from job_workflow_ref"}
	}

	recs, err := store.Find(core.KindGitHub, pending, map[string]string{
		"repository_owner":  owner,
		"repository_name":   name,
		"workflow_filename": filename,
	})
	if err != nil {
		return nil, err
	}

	selected := selectByEnvironment(recs, strings.ToLower(claims.String("environment")), true)
	if selected == nil {
		return nil, &core.PublisherNotFoundError{Reason: "no publisher registered for this repository and workflow"}
	}
	if pending {
		return pendingGitHubFromRecord(*selected), nil
	}
	return githubFromRecord(*selected), nil
}

// PendingGitHubPublisher is a GitHubPublisher registered before its target
// project exists.
type PendingGitHubPublisher struct {
	GitHubPublisher

	projectName string
	addedBy     string
}

func NewPendingGitHubPublisher(projectName, addedBy, owner, name, workflowFilename, environment string) *PendingGitHubPublisher {
	return &PendingGitHubPublisher{
		GitHubPublisher: *NewGitHubPublisher(owner, name, workflowFilename, environment),
		projectName:     projectName,
		addedBy:         addedBy,
	}
}

func (p *PendingGitHubPublisher) TargetProjectName() string { return p.projectName }
func (p *PendingGitHubPublisher) AddedBy() string           { return p.addedBy }

func (p *PendingGitHubPublisher) Reify(store core.PublisherStore) (core.Publisher, error) {
	return reifyPending(store, core.KindGitHub, p.id, p.IdentityAttributes(),
		func(rec core.PublisherRecord) core.Publisher { return githubFromRecord(rec) })
}

func pendingGitHubFromRecord(rec core.PublisherRecord) *PendingGitHubPublisher {
	return &PendingGitHubPublisher{
		GitHubPublisher: *githubFromRecord(rec),
		projectName:     rec.ProjectName,
		addedBy:         rec.AddedBy,
	}
}
