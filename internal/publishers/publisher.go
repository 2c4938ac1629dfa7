package publishers

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/wheelhouse-index/wheelhouse/internal/core"
)

// CheckClaimsExistence is the gate run before any per-field check. It fails
// hard if the kind declares no verifiable claims (a kind that "verifies"
// everything vacuously is a configuration bug), warns about claims the kind
// does not know, and raises a MissingClaimError for the first required claim
// that is absent or nil.
func CheckClaimsExistence(spec core.KindSpec, claims core.ClaimSet) error {
	if len(spec.RequiredVerifiable) == 0 {
		return &core.ConfigurationError{
			Reason: fmt.Sprintf("%s publisher declares no verifiable claims", spec.Kind),
		}
	}

	known := spec.AllKnownClaims()
	var unexpected []string
	for name := range claims {
		if _, ok := known[name]; !ok {
			unexpected = append(unexpected, name)
		}
	}
	if len(unexpected) > 0 {
		sort.Strings(unexpected)
		log.Warn().
			Str("kind", spec.Kind.String()).
			Strs("claims", unexpected).
			Msg("token carries claims unknown to this publisher kind")
	}

	for _, group := range [][]string{spec.RequiredVerifiable, spec.RequiredUnverifiable} {
		for _, name := range group {
			if !claims.Has(name) {
				log.Warn().
					Str("kind", spec.Kind.String()).
					Str("claim", name).
					Msg("token is missing a required claim")
				return &core.MissingClaimError{Claim: name}
			}
		}
	}
	return nil
}

// verifyClaimChecks runs a publisher's bound check table against the signed
// claims. Reused-token and configuration errors pass through untouched; any
// other failure is wrapped with the claim name and requirement tier.
func verifyClaimChecks(checks []core.ClaimCheck, claims core.ClaimSet, svc core.ReplayChecker) error {
	ctx := &core.CheckContext{Claims: claims, Service: svc}
	for _, ck := range checks {
		err := ck.Check(ck.Expected, claims[ck.Name], ctx)
		if err == nil {
			continue
		}
		var reused *core.ReusedTokenError
		if errors.As(err, &reused) {
			return err
		}
		var cfg *core.ConfigurationError
		if errors.As(err, &cfg) {
			return err
		}
		tier := "required"
		if ck.Optional {
			tier = "optional"
		}
		return fmt.Errorf("check failed for %s claim %q: %w", tier, ck.Name, err)
	}
	return nil
}

// environmentCheck builds the environment claim check shared by GitHub and
// GitLab. An empty expected environment is unconstrained and accepts any
// claim value, including an absent one. A non-empty expected environment
// requires the claim to be present and to match; GitHub matches case
// insensitively, GitLab exactly.
func environmentCheck(fold bool) core.CheckFunc {
	return func(expected string, actual any, _ *core.CheckContext) error {
		if expected == "" {
			return nil
		}
		actualStr, ok := actual.(string)
		if !ok {
			return &core.CheckFailedError{Reason: "environment claim is missing"}
		}
		matched := expected == actualStr
		if fold {
			matched = strings.EqualFold(expected, actualStr)
		}
		if !matched {
			return &core.CheckFailedError{Reason: fmt.Sprintf("environment %q does not match %q", actualStr, expected)}
		}
		return nil
	}
}

// selectByEnvironment resolves lookup ties between a general publisher
// (environment "") and an environment-scoped one: the most specific match
// wins. Returns nil when no candidate matches.
func selectByEnvironment(records []core.PublisherRecord, env string, fold bool) *core.PublisherRecord {
	if env != "" {
		for i := range records {
			stored := records[i].Attrs["environment"]
			if stored == "" {
				continue
			}
			if stored == env || (fold && strings.EqualFold(stored, env)) {
				return &records[i]
			}
		}
	}
	for i := range records {
		if records[i].Attrs["environment"] == "" {
			return &records[i]
		}
	}
	return nil
}

// reifyPending implements the pending-to-concrete transition: reuse an
// existing concrete publisher with the same identity if one exists (two mints
// can race here, the store's unique constraint makes the second insert a
// lookup), otherwise create one. The pending row is deleted either way.
func reifyPending(
	store core.PublisherStore,
	kind core.Kind,
	pendingID string,
	attrs map[string]string,
	fromRecord func(core.PublisherRecord) core.Publisher,
) (core.Publisher, error) {
	recs, err := store.Find(kind, false, attrs)
	if err != nil {
		return nil, fmt.Errorf("looking up concrete %s publisher: %w", kind, err)
	}

	var concrete core.Publisher
	if len(recs) > 0 {
		concrete = fromRecord(recs[0])
	} else {
		id, err := store.Insert(kind, false, core.PublisherRecord{Kind: kind, Attrs: attrs})
		if err != nil {
			return nil, fmt.Errorf("creating concrete %s publisher: %w", kind, err)
		}
		concrete = fromRecord(core.PublisherRecord{ID: id, Kind: kind, Attrs: attrs})
	}

	if err := store.Delete(kind, true, pendingID); err != nil {
		return nil, fmt.Errorf("deleting pending %s publisher: %w", kind, err)
	}
	return concrete, nil
}

// Exists reports whether a publisher with the same identity-attribute tuple
// is already stored, used to refuse duplicate registrations.
func Exists(store core.PublisherStore, p core.Publisher, pending bool) (bool, error) {
	return store.Exists(p.Kind(), pending, p.IdentityAttributes())
}
