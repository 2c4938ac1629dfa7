package publishers

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/wheelhouse-index/wheelhouse/internal/core"
)

// CircleCI issues tokens from per-organization issuers of the form
// https://oidc.circleci.com/org/ORG_ID; the registry matches on this prefix.
const CircleCIIssuerURLPrefix = "https://oidc.circleci.com/org/"

// CircleCI namespaces its custom claims under a literal dotted prefix. These
// can never be plain struct field names, so access goes through
// ClaimAttribute below.
const (
	circleciClaimOrgID                = "oidc.circleci.com/org-id"
	circleciClaimProjectID            = "oidc.circleci.com/project-id"
	circleciClaimPipelineDefinitionID = "oidc.circleci.com/pipeline-definition-id"
	circleciClaimSSHRerun             = "oidc.circleci.com/ssh-rerun"
	circleciClaimContextIDs           = "oidc.circleci.com/context-ids"
	circleciClaimVCSOrigin            = "oidc.circleci.com/vcs-origin"
	circleciClaimVCSRef               = "oidc.circleci.com/vcs-ref"
)

var circleciSpec = core.KindSpec{
	Kind: core.KindCircleCI,
	RequiredVerifiable: []string{
		circleciClaimOrgID, circleciClaimProjectID, circleciClaimPipelineDefinitionID,
	},
	RequiredUnverifiable: []string{"sub"},
	OptionalVerifiable:   []string{circleciClaimSSHRerun, "jti"},
	Unchecked: []string{
		circleciClaimContextIDs, circleciClaimVCSOrigin, circleciClaimVCSRef,
	},
}

// UnknownAttributeError is returned by ClaimAttribute for a claim name
// outside the finite accessor table.
type UnknownAttributeError struct {
	Name string
}

func (e *UnknownAttributeError) Error() string {
	return fmt.Sprintf("unknown claim attribute %q", e.Name)
}

// CircleCIPublisher authorizes one pipeline definition in a CircleCI project.
// All three identifiers are opaque UUIDs assigned by CircleCI.
type CircleCIPublisher struct {
	id string

	OrgID                string
	ProjectID            string
	PipelineDefinitionID string
}

func NewCircleCIPublisher(orgID, projectID, pipelineDefinitionID string) *CircleCIPublisher {
	return &CircleCIPublisher{
		OrgID:                orgID,
		ProjectID:            projectID,
		PipelineDefinitionID: pipelineDefinitionID,
	}
}

func (p *CircleCIPublisher) Kind() core.Kind { return core.KindCircleCI }
func (p *CircleCIPublisher) ID() string      { return p.id }

func (p *CircleCIPublisher) String() string {
	return fmt.Sprintf("CircleCI project %s (pipeline definition %s)", p.ProjectID, p.PipelineDefinitionID)
}

// ClaimAttribute maps a dotted claim name to the publisher field holding its
// expected value. The table is closed; anything else is an
// *UnknownAttributeError.
func (p *CircleCIPublisher) ClaimAttribute(name string) (string, error) {
	switch name {
	case circleciClaimOrgID:
		return p.OrgID, nil
	case circleciClaimProjectID:
		return p.ProjectID, nil
	case circleciClaimPipelineDefinitionID:
		return p.PipelineDefinitionID, nil
	default:
		return "", &UnknownAttributeError{Name: name}
	}
}

// checkNotSSHRerun rejects tokens from human-triggered SSH re-runs. An absent
// claim passes; CircleCI only sets it on re-run jobs.
func checkNotSSHRerun(_ string, actual any, _ *core.CheckContext) error {
	if actual == nil {
		return nil
	}
	rerun, ok := actual.(bool)
	if !ok {
		return &core.CheckFailedError{Reason: "malformed ssh-rerun claim"}
	}
	if rerun {
		return &core.CheckFailedError{Reason: "tokens from SSH re-runs are not allowed to mint"}
	}
	return nil
}

func (p *CircleCIPublisher) ClaimChecks() []core.ClaimCheck {
	return []core.ClaimCheck{
		{Name: circleciClaimOrgID, Expected: p.OrgID, Check: StrictEquals},
		{Name: circleciClaimProjectID, Expected: p.ProjectID, Check: StrictEquals},
		{Name: circleciClaimPipelineDefinitionID, Expected: p.PipelineDefinitionID, Check: StrictEquals},
		{Name: circleciClaimSSHRerun, Check: checkNotSSHRerun, Optional: true},
		{Name: "jti", Check: UnusedTokenID, Optional: true},
	}
}

func (p *CircleCIPublisher) VerifyClaims(claims core.ClaimSet, svc core.ReplayChecker) error {
	return verifyClaimChecks(p.ClaimChecks(), claims, svc)
}

// PublisherURL is empty: the identifiers are opaque UUIDs with no public page.
func (p *CircleCIPublisher) PublisherURL(core.ClaimSet) string { return "" }

func (p *CircleCIPublisher) VerifyURL(string) bool { return false }

func (p *CircleCIPublisher) IdentityAttributes() map[string]string {
	return map[string]string{
		"circleci_org_id":        p.OrgID,
		"circleci_project_id":    p.ProjectID,
		"pipeline_definition_id": p.PipelineDefinitionID,
	}
}

func circleciFromRecord(rec core.PublisherRecord) *CircleCIPublisher {
	return &CircleCIPublisher{
		id:                   rec.ID,
		OrgID:                rec.Attrs["circleci_org_id"],
		ProjectID:            rec.Attrs["circleci_project_id"],
		PipelineDefinitionID: rec.Attrs["pipeline_definition_id"],
	}
}

// circleciTokenIdentity is the claim subset that identifies the workload.
// Decoded with mapstructure since the dotted names cannot be field names.
type circleciTokenIdentity struct {
	OrgID                string `mapstructure:"oidc.circleci.com/org-id"`
	ProjectID            string `mapstructure:"oidc.circleci.com/project-id"`
	PipelineDefinitionID string `mapstructure:"oidc.circleci.com/pipeline-definition-id"`
}

// lookupCircleCI cross-checks the org ID embedded in the issuer URL against
// the org-id claim before querying; a mismatch means the token was minted by
// a different organization's issuer.
func lookupCircleCI(store core.PublisherStore, pending bool, claims core.ClaimSet, issuerURL string) (core.Publisher, error) {
	var ident circleciTokenIdentity
	if err := mapstructure.Decode(map[string]any(claims), &ident); err != nil {
		return nil, &core.PublisherNotFoundError{Reason: "malformed workload identity claims"}
	}
	if ident.OrgID == "" {
		return nil, &core.PublisherNotFoundError{Reason: "missing org-id claim"}
	}
	if issuerOrg := strings.TrimPrefix(issuerURL, CircleCIIssuerURLPrefix); issuerOrg != ident.OrgID {
		return nil, &core.PublisherNotFoundError{Reason: "issuer organization does not match org-id claim"}
	}

	recs, err := store.Find(core.KindCircleCI, pending, map[string]string{
		"circleci_org_id":        ident.OrgID,
		"circleci_project_id":    ident.ProjectID,
		"pipeline_definition_id": ident.PipelineDefinitionID,
	})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, &core.PublisherNotFoundError{Reason: "no publisher registered for this pipeline definition"}
	}
	if pending {
		return pendingCircleCIFromRecord(recs[0]), nil
	}
	return circleciFromRecord(recs[0]), nil
}

// PendingCircleCIPublisher is a CircleCIPublisher registered before its
// target project exists.
type PendingCircleCIPublisher struct {
	CircleCIPublisher

	projectName string
	addedBy     string
}

func NewPendingCircleCIPublisher(projectName, addedBy, orgID, projectID, pipelineDefinitionID string) *PendingCircleCIPublisher {
	return &PendingCircleCIPublisher{
		CircleCIPublisher: *NewCircleCIPublisher(orgID, projectID, pipelineDefinitionID),
		projectName:       projectName,
		addedBy:           addedBy,
	}
}

func (p *PendingCircleCIPublisher) TargetProjectName() string { return p.projectName }
func (p *PendingCircleCIPublisher) AddedBy() string           { return p.addedBy }

func (p *PendingCircleCIPublisher) Reify(store core.PublisherStore) (core.Publisher, error) {
	return reifyPending(store, core.KindCircleCI, p.id, p.IdentityAttributes(),
		func(rec core.PublisherRecord) core.Publisher { return circleciFromRecord(rec) })
}

func pendingCircleCIFromRecord(rec core.PublisherRecord) *PendingCircleCIPublisher {
	return &PendingCircleCIPublisher{
		CircleCIPublisher: *circleciFromRecord(rec),
		projectName:       rec.ProjectName,
		addedBy:           rec.AddedBy,
	}
}
