package core

import "fmt"

// ClaimSet is the decoded payload of a verified (or, during issuer discovery,
// not-yet-verified) JWT. It is never mutated after decoding.
type ClaimSet map[string]any

// Has reports whether the claim is present and non-nil.
func (c ClaimSet) Has(name string) bool {
	v, ok := c[name]
	return ok && v != nil
}

// String returns the claim as a string, or "" if it is absent or not a string.
func (c ClaimSet) String(name string) string {
	s, _ := c[name].(string)
	return s
}

// Names returns every claim name in the set, in map order.
func (c ClaimSet) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	return names
}

// CheckContext carries the collaborators a claim check may consult beyond the
// claim value itself: the full claim set and the per-issuer publisher service
// (for the anti-replay lookup).
type CheckContext struct {
	Claims  ClaimSet
	Service ReplayChecker
}

// CheckFunc verifies a single signed claim against the publisher's expected
// value. The contract is uniform: nil means the check passed, a
// *CheckFailedError carries the mismatch reason, and a wrapped
// *ReusedTokenError aborts the whole verification.
type CheckFunc func(expected string, actual any, ctx *CheckContext) error

// ClaimCheck binds one claim name to its check function. The expected value
// is bound per publisher instance when the check list is built. Optional
// marks claims that may be absent at the existence gate; their checks still
// run and still fail verification on mismatch.
type ClaimCheck struct {
	Name     string
	Expected string
	Check    CheckFunc
	Optional bool
}

// KindSpec is the static claim table for one publisher kind: which claims must
// be present, which are verified, and which are known but ignored. It is a
// pure value; per-instance expected values live on the publisher structs.
type KindSpec struct {
	Kind Kind

	// RequiredVerifiable claims must be present and pass their check.
	RequiredVerifiable []string
	// RequiredUnverifiable claims must be present but carry no check.
	RequiredUnverifiable []string
	// OptionalVerifiable claims may be absent; their check still runs (the
	// check decides what absence means).
	OptionalVerifiable []string
	// Unchecked claims are known to appear in this issuer's tokens and are
	// deliberately ignored.
	Unchecked []string
}

// Preverified claims are enforced during signature verification and never
// re-checked by publisher code.
var Preverified = []string{"iss", "iat", "nbf", "exp", "aud", "jti"}

// AllKnownClaims returns the union of every claim name the kind recognizes.
func (s KindSpec) AllKnownClaims() map[string]struct{} {
	known := make(map[string]struct{})
	for _, group := range [][]string{
		s.RequiredVerifiable,
		s.RequiredUnverifiable,
		s.OptionalVerifiable,
		s.Unchecked,
		Preverified,
	} {
		for _, name := range group {
			known[name] = struct{}{}
		}
	}
	return known
}

// Kind identifies a publisher family. The set is closed; adding a kind means
// adding a model, a spec table and a registry entry.
type Kind string

const (
	KindGitHub      Kind = "github"
	KindGitLab      Kind = "gitlab"
	KindGoogle      Kind = "google"
	KindActiveState Kind = "activestate"
	KindSemaphore   Kind = "semaphore"
	KindCircleCI    Kind = "circleci"
	KindBuildkite   Kind = "buildkite"
)

func (k Kind) Valid() bool {
	switch k {
	case KindGitHub, KindGitLab, KindGoogle, KindActiveState,
		KindSemaphore, KindCircleCI, KindBuildkite:
		return true
	default:
		return false
	}
}

func (k Kind) String() string { return string(k) }

// Kinds lists every publisher family, in registry order.
func Kinds() []Kind {
	return []Kind{
		KindGitHub, KindGitLab, KindGoogle, KindActiveState,
		KindSemaphore, KindCircleCI, KindBuildkite,
	}
}

// ParseKind converts a config/CLI string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown publisher kind %q", s)
	}
	return k, nil
}
