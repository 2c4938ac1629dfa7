package core

import (
	"errors"
	"fmt"
)

// ErrInvalidPublisher is the umbrella for every "valid token, but no
// corresponding publisher" condition. Concrete error types below report
// themselves as ErrInvalidPublisher via errors.Is so callers can treat the
// whole family uniformly while still extracting the specific kind.
var ErrInvalidPublisher = errors.New("valid token, but no corresponding publisher")

// MissingClaimError is raised by the claim-existence gate when a required
// claim is absent or nil.
type MissingClaimError struct {
	Claim string
}

func (e *MissingClaimError) Error() string {
	return fmt.Sprintf("missing claim %q", e.Claim)
}

func (e *MissingClaimError) Is(target error) bool {
	return target == ErrInvalidPublisher
}

// CheckFailedError is the fail-with-reason outcome of a claim check.
type CheckFailedError struct {
	Claim  string
	Reason string
}

func (e *CheckFailedError) Error() string {
	if e.Claim == "" {
		return e.Reason
	}
	return fmt.Sprintf("check failed for claim %q: %s", e.Claim, e.Reason)
}

func (e *CheckFailedError) Is(target error) bool {
	return target == ErrInvalidPublisher
}

// ReusedTokenError indicates the token's jti has been seen before. It is
// distinguishable from ordinary verification failures because reuse is
// actionable information for the legitimate caller.
type ReusedTokenError struct{}

func (e *ReusedTokenError) Error() string {
	return "token has already been used"
}

func (e *ReusedTokenError) Is(target error) bool {
	return target == ErrInvalidPublisher
}

// PublisherNotFoundError is raised when a claims-based lookup matches no
// registered publisher. The reason is safe to disclose.
type PublisherNotFoundError struct {
	Reason string
}

func (e *PublisherNotFoundError) Error() string {
	if e.Reason == "" {
		return "no publisher found matching these claims"
	}
	return "no publisher found: " + e.Reason
}

func (e *PublisherNotFoundError) Is(target error) bool {
	return target == ErrInvalidPublisher
}

// ConfigurationError marks defensive conditions that user input must never be
// able to reach: an unknown issuer hitting the registry, a kind declaring no
// verifiable claims. These propagate as server errors.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "publisher configuration error: " + e.Reason
}

// KeyNotFoundError is raised when an issuer's key set does not contain the
// key ID a token was signed with, even after a refresh attempt.
type KeyNotFoundError struct {
	Issuer string
	KeyID  string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("key %q not found for issuer %q", e.KeyID, e.Issuer)
}
