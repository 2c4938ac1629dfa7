package publishers

import (
	"strings"

	"github.com/wheelhouse-index/wheelhouse/internal/core"
)

// ActiveStateIssuerURL is the issuer for ActiveState Platform build tokens.
const ActiveStateIssuerURL = "https://platform.activestate.com/api/v1/oauth/oidc"

var activestateSpec = core.KindSpec{
	Kind: core.KindActiveState,
	RequiredVerifiable: []string{
		"sub", "organization", "actor_id",
	},
	RequiredUnverifiable: []string{"actor"},
	OptionalVerifiable:   []string{"jti"},
	Unchecked:            []string{"artifact_id", "branch_id", "ingredient_name"},
}

// ActiveStatePublisher authorizes one project in an organization, pinned to
// the stable actor ID of the user who configured it. The display-name actor
// claim must be present but is not verified; display names can change.
type ActiveStatePublisher struct {
	id string

	Organization string
	Project      string
	ActorID      string
}

func NewActiveStatePublisher(organization, project, actorID string) *ActiveStatePublisher {
	return &ActiveStatePublisher{
		Organization: organization,
		Project:      project,
		ActorID:      actorID,
	}
}

func (p *ActiveStatePublisher) Kind() core.Kind { return core.KindActiveState }
func (p *ActiveStatePublisher) ID() string      { return p.id }

func (p *ActiveStatePublisher) String() string {
	return p.Organization + "/" + p.Project
}

func (p *ActiveStatePublisher) subject() string {
	return "org:" + p.Organization + ":project:" + p.Project
}

// checkActiveStateSub distinguishes three failure modes so the audit trail
// shows whether the token was broken or merely for another project. Only the
// first four colon-separated components (org:NAME:project:NAME) are compared;
// trailing components are build-specific.
func checkActiveStateSub(expected string, actual any, _ *core.CheckContext) error {
	sub, ok := actual.(string)
	if !ok || sub == "" {
		return &core.CheckFailedError{Reason: "missing subject"}
	}
	components := strings.Split(sub, ":")
	if len(components) < 4 {
		return &core.CheckFailedError{Reason: "invalid subject format"}
	}
	if strings.Join(components[:4], ":") != expected {
		return &core.CheckFailedError{Reason: "subject does not match this publisher"}
	}
	return nil
}

func (p *ActiveStatePublisher) ClaimChecks() []core.ClaimCheck {
	return []core.ClaimCheck{
		{Name: "sub", Expected: p.subject(), Check: checkActiveStateSub},
		{Name: "organization", Expected: p.Organization, Check: StrictEquals},
		{Name: "actor_id", Expected: p.ActorID, Check: StrictEquals},
		{Name: "jti", Check: UnusedTokenID, Optional: true},
	}
}

func (p *ActiveStatePublisher) VerifyClaims(claims core.ClaimSet, svc core.ReplayChecker) error {
	return verifyClaimChecks(p.ClaimChecks(), claims, svc)
}

func (p *ActiveStatePublisher) baseURL() string {
	return "https://platform.activestate.com/" + p.Organization + "/" + p.Project
}

func (p *ActiveStatePublisher) PublisherURL(core.ClaimSet) string {
	return p.baseURL()
}

func (p *ActiveStatePublisher) VerifyURL(candidate string) bool {
	return urlMatchesBase(p.baseURL(), candidate)
}

func (p *ActiveStatePublisher) IdentityAttributes() map[string]string {
	return map[string]string{
		"organization":             p.Organization,
		"activestate_project_name": p.Project,
		"actor_id":                 p.ActorID,
	}
}

func activestateFromRecord(rec core.PublisherRecord) *ActiveStatePublisher {
	return &ActiveStatePublisher{
		id:           rec.ID,
		Organization: rec.Attrs["organization"],
		Project:      rec.Attrs["activestate_project_name"],
		ActorID:      rec.Attrs["actor_id"],
	}
}

func lookupActiveState(store core.PublisherStore, pending bool, claims core.ClaimSet, _ string) (core.Publisher, error) {
	sub := claims.String("sub")
	components := strings.Split(sub, ":")
	if len(components) < 4 || components[0] != "org" || components[2] != "project" {
		return nil, &core.PublisherNotFoundError{Reason: "malformed sub claim"}
	}

	recs, err := store.Find(core.KindActiveState, pending, map[string]string{
		"organization":             components[1],
		"activestate_project_name": components[3],
		"actor_id":                 claims.String("actor_id"),
	})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, &core.PublisherNotFoundError{Reason: "no publisher registered for this organization and project"}
	}
	if pending {
		return pendingActiveStateFromRecord(recs[0]), nil
	}
	return activestateFromRecord(recs[0]), nil
}

// PendingActiveStatePublisher is an ActiveStatePublisher registered before
// its target project exists.
type PendingActiveStatePublisher struct {
	ActiveStatePublisher

	projectName string
	addedBy     string
}

func NewPendingActiveStatePublisher(projectName, addedBy, organization, project, actorID string) *PendingActiveStatePublisher {
	return &PendingActiveStatePublisher{
		ActiveStatePublisher: *NewActiveStatePublisher(organization, project, actorID),
		projectName:          projectName,
		addedBy:              addedBy,
	}
}

func (p *PendingActiveStatePublisher) TargetProjectName() string { return p.projectName }
func (p *PendingActiveStatePublisher) AddedBy() string           { return p.addedBy }

func (p *PendingActiveStatePublisher) Reify(store core.PublisherStore) (core.Publisher, error) {
	return reifyPending(store, core.KindActiveState, p.id, p.IdentityAttributes(),
		func(rec core.PublisherRecord) core.Publisher { return activestateFromRecord(rec) })
}

func pendingActiveStateFromRecord(rec core.PublisherRecord) *PendingActiveStatePublisher {
	return &PendingActiveStatePublisher{
		ActiveStatePublisher: *activestateFromRecord(rec),
		projectName:          rec.ProjectName,
		addedBy:              rec.AddedBy,
	}
}
