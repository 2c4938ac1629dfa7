package publishers

import (
	"strings"

	"github.com/wheelhouse-index/wheelhouse/internal/core"
)

// BuildkiteIssuerURL is the issuer for Buildkite agent tokens.
//
// Buildkite support is best-effort: the claim surface below covers the
// documented token shape, but the kind sees far less traffic than the others
// and its lookup strategy may need revisiting.
const BuildkiteIssuerURL = "https://agent.buildkite.com"

var buildkiteSpec = core.KindSpec{
	Kind: core.KindBuildkite,
	RequiredVerifiable: []string{
		"sub", "organization_slug", "pipeline_slug",
	},
	OptionalVerifiable: []string{"jti"},
	Unchecked: []string{
		"build_branch", "build_commit", "build_number", "build_source",
		"build_tag", "cluster_id", "cluster_name", "job_id", "organization_id",
		"pipeline_id", "runner_environment", "step_key",
	},
}

// BuildkitePublisher authorizes one pipeline in a Buildkite organization.
type BuildkitePublisher struct {
	id string

	OrganizationSlug string
	PipelineSlug     string
}

func NewBuildkitePublisher(organizationSlug, pipelineSlug string) *BuildkitePublisher {
	return &BuildkitePublisher{
		OrganizationSlug: organizationSlug,
		PipelineSlug:     pipelineSlug,
	}
}

func (p *BuildkitePublisher) Kind() core.Kind { return core.KindBuildkite }
func (p *BuildkitePublisher) ID() string      { return p.id }

func (p *BuildkitePublisher) String() string {
	return p.OrganizationSlug + "/" + p.PipelineSlug
}

// checkBuildkiteSub requires the
// "organization:ORG:pipeline:PIPELINE:" prefix; everything after it is
// build-specific.
func checkBuildkiteSub(expected string, actual any, _ *core.CheckContext) error {
	sub, ok := actual.(string)
	if !ok || sub == "" {
		return &core.CheckFailedError{Reason: "missing subject"}
	}
	if !strings.HasPrefix(sub, expected) {
		return &core.CheckFailedError{Reason: "subject does not match this publisher"}
	}
	return nil
}

func (p *BuildkitePublisher) subjectPrefix() string {
	return "organization:" + p.OrganizationSlug + ":pipeline:" + p.PipelineSlug + ":"
}

func (p *BuildkitePublisher) ClaimChecks() []core.ClaimCheck {
	return []core.ClaimCheck{
		{Name: "sub", Expected: p.subjectPrefix(), Check: checkBuildkiteSub},
		{Name: "organization_slug", Expected: p.OrganizationSlug, Check: StrictEquals},
		{Name: "pipeline_slug", Expected: p.PipelineSlug, Check: StrictEquals},
		{Name: "jti", Check: UnusedTokenID, Optional: true},
	}
}

func (p *BuildkitePublisher) VerifyClaims(claims core.ClaimSet, svc core.ReplayChecker) error {
	return verifyClaimChecks(p.ClaimChecks(), claims, svc)
}

func (p *BuildkitePublisher) baseURL() string {
	return "https://buildkite.com/" + p.OrganizationSlug + "/" + p.PipelineSlug
}

func (p *BuildkitePublisher) PublisherURL(core.ClaimSet) string {
	return p.baseURL()
}

func (p *BuildkitePublisher) VerifyURL(candidate string) bool {
	return urlMatchesBase(p.baseURL(), candidate)
}

func (p *BuildkitePublisher) IdentityAttributes() map[string]string {
	return map[string]string{
		"organization_slug": p.OrganizationSlug,
		"pipeline_slug":     p.PipelineSlug,
	}
}

func buildkiteFromRecord(rec core.PublisherRecord) *BuildkitePublisher {
	return &BuildkitePublisher{
		id:               rec.ID,
		OrganizationSlug: rec.Attrs["organization_slug"],
		PipelineSlug:     rec.Attrs["pipeline_slug"],
	}
}

func lookupBuildkite(store core.PublisherStore, pending bool, claims core.ClaimSet, _ string) (core.Publisher, error) {
	org := claims.String("organization_slug")
	pipeline := claims.String("pipeline_slug")
	if org == "" || pipeline == "" {
		return nil, &core.PublisherNotFoundError{Reason: "missing organization_slug or pipeline_slug claim"}
	}

	recs, err := store.Find(core.KindBuildkite, pending, map[string]string{
		"organization_slug": org,
		"pipeline_slug":     pipeline,
	})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, &core.PublisherNotFoundError{Reason: "no publisher registered for this pipeline"}
	}
	if pending {
		return pendingBuildkiteFromRecord(recs[0]), nil
	}
	return buildkiteFromRecord(recs[0]), nil
}

// PendingBuildkitePublisher is a BuildkitePublisher registered before its
// target project exists.
type PendingBuildkitePublisher struct {
	BuildkitePublisher

	projectName string
	addedBy     string
}

func NewPendingBuildkitePublisher(projectName, addedBy, organizationSlug, pipelineSlug string) *PendingBuildkitePublisher {
	return &PendingBuildkitePublisher{
		BuildkitePublisher: *NewBuildkitePublisher(organizationSlug, pipelineSlug),
		projectName:        projectName,
		addedBy:            addedBy,
	}
}

func (p *PendingBuildkitePublisher) TargetProjectName() string { return p.projectName }
func (p *PendingBuildkitePublisher) AddedBy() string           { return p.addedBy }

func (p *PendingBuildkitePublisher) Reify(store core.PublisherStore) (core.Publisher, error) {
	return reifyPending(store, core.KindBuildkite, p.id, p.IdentityAttributes(),
		func(rec core.PublisherRecord) core.Publisher { return buildkiteFromRecord(rec) })
}

func pendingBuildkiteFromRecord(rec core.PublisherRecord) *PendingBuildkitePublisher {
	return &PendingBuildkitePublisher{
		BuildkitePublisher: *buildkiteFromRecord(rec),
		projectName:        rec.ProjectName,
		addedBy:            rec.AddedBy,
	}
}
