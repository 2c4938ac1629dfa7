package publishers

import (
	"fmt"
	"strings"

	"github.com/wheelhouse-index/wheelhouse/internal/core"
)

// Claim checks follow a single tri-state contract: nil is a pass, a
// *core.CheckFailedError is a fail-with-reason, and a *core.ReusedTokenError
// aborts verification entirely. Checks never return bare booleans.

// Equals lifts a plain two-argument string comparison into the claim-check
// shape, ignoring the surrounding context.
func Equals(cmp func(expected, actual string) bool) core.CheckFunc {
	return func(expected string, actual any, _ *core.CheckContext) error {
		actualStr, ok := actual.(string)
		if !ok {
			return &core.CheckFailedError{Reason: fmt.Sprintf("claim is %T, expected string", actual)}
		}
		if !cmp(expected, actualStr) {
			return &core.CheckFailedError{Reason: fmt.Sprintf("%q does not match expected %q", actualStr, expected)}
		}
		return nil
	}
}

// StrictEquals is the common case-sensitive string equality check.
var StrictEquals = Equals(func(expected, actual string) bool { return expected == actual })

// FoldEquals is the case-insensitive variant.
var FoldEquals = Equals(strings.EqualFold)

// Invariant succeeds only when both the expected ground truth and the signed
// claim equal the fixed sentinel value.
func Invariant(sentinel any) core.CheckFunc {
	want := fmt.Sprintf("%v", sentinel)
	return func(expected string, actual any, _ *core.CheckContext) error {
		if expected != want {
			return &core.CheckFailedError{Reason: fmt.Sprintf("expected value %q violates invariant %q", expected, want)}
		}
		if actual != sentinel {
			return &core.CheckFailedError{Reason: fmt.Sprintf("claim must be exactly %v", sentinel)}
		}
		return nil
	}
}

// UnusedTokenID passes only if the jti has not been seen before for this
// issuer. A known jti is a hard error, not a mismatch: the whole verification
// must abort with a distinguishable "reused token" condition. The jti is
// stored later, at successful mint time, never here.
func UnusedTokenID(_ string, actual any, ctx *core.CheckContext) error {
	if actual == nil {
		// No jti means nothing to replay; storage is skipped at mint time too.
		return nil
	}
	jti, ok := actual.(string)
	if !ok || jti == "" {
		return &core.CheckFailedError{Reason: "malformed jti claim"}
	}
	if ctx == nil || ctx.Service == nil {
		return &core.ConfigurationError{Reason: "replay check invoked without a publisher service"}
	}
	if ctx.Service.JWTIdentifierExists(jti) {
		return &core.ReusedTokenError{}
	}
	return nil
}
