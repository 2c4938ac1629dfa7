package publishers

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/wheelhouse-index/wheelhouse/internal/core"
)

// lookupFunc resolves signed claims to a stored publisher of one kind.
type lookupFunc func(store core.PublisherStore, pending bool, claims core.ClaimSet, issuerURL string) (core.Publisher, error)

type registryEntry struct {
	kind   core.Kind
	spec   core.KindSpec
	lookup lookupFunc
}

// Registry is the immutable issuer dispatch table, built once at startup.
// Exact issuer URLs cover most kinds; CircleCI issuers are per-organization
// (prefix match) and Semaphore issuers are per-organization subdomains
// (host-suffix match). Custom self-hosted GitLab issuers come from
// configuration.
type Registry struct {
	exact map[string]registryEntry

	circleci  registryEntry
	semaphore registryEntry

	// issuerURLs is the deterministic enumeration order: canonical issuers
	// alphabetically, then custom GitLab issuers alphabetically.
	issuerURLs []string
}

// NewRegistry builds the dispatch table. Duplicate issuer URLs, including a
// custom GitLab issuer shadowing a canonical one, fail construction.
func NewRegistry(customGitLabIssuers []string) (*Registry, error) {
	r := &Registry{
		exact: make(map[string]registryEntry),
		circleci: registryEntry{
			kind: core.KindCircleCI, spec: circleciSpec, lookup: lookupCircleCI,
		},
		semaphore: registryEntry{
			kind: core.KindSemaphore, spec: semaphoreSpec, lookup: lookupSemaphore,
		},
	}

	canonical := map[string]registryEntry{
		GitHubIssuerURL:      {kind: core.KindGitHub, spec: githubSpec, lookup: lookupGitHub},
		GitLabIssuerURL:      {kind: core.KindGitLab, spec: gitlabSpec, lookup: lookupGitLab},
		GoogleIssuerURL:      {kind: core.KindGoogle, spec: googleSpec, lookup: lookupGoogle},
		ActiveStateIssuerURL: {kind: core.KindActiveState, spec: activestateSpec, lookup: lookupActiveState},
		BuildkiteIssuerURL:   {kind: core.KindBuildkite, spec: buildkiteSpec, lookup: lookupBuildkite},
	}
	var defaults []string
	for issuer, entry := range canonical {
		r.exact[issuer] = entry
		defaults = append(defaults, issuer)
	}
	sort.Strings(defaults)

	var custom []string
	for _, issuer := range customGitLabIssuers {
		issuer = strings.TrimSuffix(issuer, "/")
		if _, dup := r.exact[issuer]; dup {
			return nil, fmt.Errorf("duplicate issuer URL %q in registry", issuer)
		}
		if _, err := url.Parse(issuer); err != nil || !strings.HasPrefix(issuer, "https://") {
			return nil, fmt.Errorf("custom GitLab issuer %q is not an https URL", issuer)
		}
		r.exact[issuer] = registryEntry{kind: core.KindGitLab, spec: gitlabSpec, lookup: lookupGitLab}
		custom = append(custom, issuer)
	}
	sort.Strings(custom)

	r.issuerURLs = append(defaults, custom...)
	return r, nil
}

func (r *Registry) resolve(issuerURL string) (registryEntry, bool) {
	if e, ok := r.exact[issuerURL]; ok {
		return e, true
	}
	if strings.HasPrefix(issuerURL, CircleCIIssuerURLPrefix) {
		return r.circleci, true
	}
	if u, err := url.Parse(issuerURL); err == nil && strings.HasSuffix(u.Host, SemaphoreIssuerHostSuffix) {
		return r.semaphore, true
	}
	return registryEntry{}, false
}

// KindForIssuer maps an issuer URL to its publisher family.
func (r *Registry) KindForIssuer(issuerURL string) (core.Kind, bool) {
	e, ok := r.resolve(issuerURL)
	return e.kind, ok
}

// IssuerURLs returns every statically-known issuer URL: canonical issuers
// first, alphabetically, then custom GitLab issuers alphabetically.
// Per-organization CircleCI and Semaphore issuers are not enumerable.
func (r *Registry) IssuerURLs() []string {
	out := make([]string, len(r.issuerURLs))
	copy(out, r.issuerURLs)
	return out
}

// SpecForKind returns the static claim table for a kind.
func SpecForKind(kind core.Kind) (core.KindSpec, bool) {
	switch kind {
	case core.KindGitHub:
		return githubSpec, true
	case core.KindGitLab:
		return gitlabSpec, true
	case core.KindGoogle:
		return googleSpec, true
	case core.KindActiveState:
		return activestateSpec, true
	case core.KindSemaphore:
		return semaphoreSpec, true
	case core.KindCircleCI:
		return circleciSpec, true
	case core.KindBuildkite:
		return buildkiteSpec, true
	default:
		return core.KindSpec{}, false
	}
}

// FindPublisherByIssuer is the dispatch entry point: resolve the issuer to a
// kind, gate on claim completeness, then run the kind's claims-based lookup.
// An unknown issuer here is an internal error; user-facing issuer validation
// happens before signature verification.
func (r *Registry) FindPublisherByIssuer(store core.PublisherStore, issuerURL string, claims core.ClaimSet, pending bool) (core.Publisher, error) {
	e, ok := r.resolve(issuerURL)
	if !ok {
		return nil, &core.ConfigurationError{Reason: fmt.Sprintf("issuer %q reached dispatch without a registry entry", issuerURL)}
	}
	if err := CheckClaimsExistence(e.spec, claims); err != nil {
		return nil, err
	}
	return e.lookup(store, pending, claims, issuerURL)
}
