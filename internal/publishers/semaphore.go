package publishers

import (
	"strings"

	"github.com/wheelhouse-index/wheelhouse/internal/core"
)

// Semaphore issues tokens from per-organization hosts; the registry matches
// any issuer whose host ends in this suffix.
const SemaphoreIssuerHostSuffix = ".semaphoreci.com"

var semaphoreSpec = core.KindSpec{
	Kind: core.KindSemaphore,
	RequiredVerifiable: []string{
		"sub", "org", "org_id", "prj", "prj_id",
	},
	OptionalVerifiable: []string{"jti"},
	Unchecked: []string{
		"branch", "job_id", "job_type", "pr_branch", "ppl_id", "ref",
		"ref_type", "repo", "repo_slug", "tag", "trg", "wf_id",
	},
}

// SemaphorePublisher authorizes one Semaphore project. Organization and
// project IDs are the stable identity; the slugs are kept for display and for
// the sub cross-check against the connected repository.
type SemaphorePublisher struct {
	id string

	Organization   string
	OrganizationID string
	Project        string
	ProjectID      string
	// RepoSlug is the connected "owner/name" repository.
	RepoSlug string
}

func NewSemaphorePublisher(organization, organizationID, project, projectID, repoSlug string) *SemaphorePublisher {
	return &SemaphorePublisher{
		Organization:   organization,
		OrganizationID: organizationID,
		Project:        project,
		ProjectID:      projectID,
		RepoSlug:       repoSlug,
	}
}

func (p *SemaphorePublisher) Kind() core.Kind { return core.KindSemaphore }
func (p *SemaphorePublisher) ID() string      { return p.id }

func (p *SemaphorePublisher) String() string {
	return p.Organization + "/" + p.Project
}

// checkSemaphoreSub extracts the repository name embedded in the sub claim
// (...:repo:NAME:...) and compares it, case-insensitively, against the name
// half of the configured repo slug.
func checkSemaphoreSub(expected string, actual any, _ *core.CheckContext) error {
	sub, ok := actual.(string)
	if !ok || sub == "" {
		return &core.CheckFailedError{Reason: "missing subject"}
	}
	_, rest, found := strings.Cut(sub, ":repo:")
	if !found {
		return &core.CheckFailedError{Reason: "invalid subject format"}
	}
	repo, _, _ := strings.Cut(rest, ":")
	if !strings.EqualFold(repo, expected) {
		return &core.CheckFailedError{Reason: "subject repository does not match this publisher"}
	}
	return nil
}

func (p *SemaphorePublisher) repoName() string {
	_, name, found := strings.Cut(p.RepoSlug, "/")
	if !found {
		return p.RepoSlug
	}
	return name
}

func (p *SemaphorePublisher) ClaimChecks() []core.ClaimCheck {
	return []core.ClaimCheck{
		{Name: "sub", Expected: p.repoName(), Check: checkSemaphoreSub},
		{Name: "org", Expected: p.Organization, Check: StrictEquals},
		{Name: "org_id", Expected: p.OrganizationID, Check: StrictEquals},
		{Name: "prj", Expected: p.Project, Check: StrictEquals},
		{Name: "prj_id", Expected: p.ProjectID, Check: StrictEquals},
		{Name: "jti", Check: UnusedTokenID, Optional: true},
	}
}

func (p *SemaphorePublisher) VerifyClaims(claims core.ClaimSet, svc core.ReplayChecker) error {
	return verifyClaimChecks(p.ClaimChecks(), claims, svc)
}

// PublisherURL is empty: Semaphore project pages live behind per-organization
// hosts and authentication.
func (p *SemaphorePublisher) PublisherURL(core.ClaimSet) string { return "" }

func (p *SemaphorePublisher) VerifyURL(string) bool { return false }

func (p *SemaphorePublisher) IdentityAttributes() map[string]string {
	return map[string]string{
		"organization":    p.Organization,
		"organization_id": p.OrganizationID,
		"project":         p.Project,
		"project_id":      p.ProjectID,
		"repo_slug":       p.RepoSlug,
	}
}

func semaphoreFromRecord(rec core.PublisherRecord) *SemaphorePublisher {
	return &SemaphorePublisher{
		id:             rec.ID,
		Organization:   rec.Attrs["organization"],
		OrganizationID: rec.Attrs["organization_id"],
		Project:        rec.Attrs["project"],
		ProjectID:      rec.Attrs["project_id"],
		RepoSlug:       rec.Attrs["repo_slug"],
	}
}

// lookupSemaphore queries by the stable org and project IDs only; slugs are
// mutable on Semaphore's side and re-verified claim by claim afterwards.
func lookupSemaphore(store core.PublisherStore, pending bool, claims core.ClaimSet, _ string) (core.Publisher, error) {
	orgID := claims.String("org_id")
	prjID := claims.String("prj_id")
	if orgID == "" || prjID == "" {
		return nil, &core.PublisherNotFoundError{Reason: "missing org_id or prj_id claim"}
	}

	recs, err := store.Find(core.KindSemaphore, pending, map[string]string{
		"organization_id": orgID,
		"project_id":      prjID,
	})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, &core.PublisherNotFoundError{Reason: "no publisher registered for this organization and project"}
	}
	if pending {
		return pendingSemaphoreFromRecord(recs[0]), nil
	}
	return semaphoreFromRecord(recs[0]), nil
}

// PendingSemaphorePublisher is a SemaphorePublisher registered before its
// target project exists.
type PendingSemaphorePublisher struct {
	SemaphorePublisher

	projectName string
	addedBy     string
}

func NewPendingSemaphorePublisher(projectName, addedBy, organization, organizationID, project, projectID, repoSlug string) *PendingSemaphorePublisher {
	return &PendingSemaphorePublisher{
		SemaphorePublisher: *NewSemaphorePublisher(organization, organizationID, project, projectID, repoSlug),
		projectName:        projectName,
		addedBy:            addedBy,
	}
}

func (p *PendingSemaphorePublisher) TargetProjectName() string { return p.projectName }
func (p *PendingSemaphorePublisher) AddedBy() string           { return p.addedBy }

func (p *PendingSemaphorePublisher) Reify(store core.PublisherStore) (core.Publisher, error) {
	return reifyPending(store, core.KindSemaphore, p.id, p.IdentityAttributes(),
		func(rec core.PublisherRecord) core.Publisher { return semaphoreFromRecord(rec) })
}

func pendingSemaphoreFromRecord(rec core.PublisherRecord) *PendingSemaphorePublisher {
	return &PendingSemaphorePublisher{
		SemaphorePublisher: *semaphoreFromRecord(rec),
		projectName:        rec.ProjectName,
		addedBy:            rec.AddedBy,
	}
}
