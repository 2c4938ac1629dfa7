package core

// Publisher is a trusted, externally-verifiable CI/CD identity. Concrete
// implementations live in internal/publishers, one per Kind.
type Publisher interface {
	// Kind returns the publisher family.
	Kind() Kind

	// ID returns the stored row ID, or "" for an unsaved publisher.
	ID() string

	// String returns the human-readable specifier shown in logs, events and
	// credential descriptions. It is never parsed.
	String() string

	// ClaimChecks returns the ordered per-claim verification table with this
	// instance's expected values bound in. Order follows the kind's spec:
	// required-verifiable claims first, then optional-verifiable.
	ClaimChecks() []ClaimCheck

	// VerifyClaims runs every check in ClaimChecks against the signed claim
	// set. A nil return means the claims prove this publisher's identity.
	VerifyClaims(claims ClaimSet, svc ReplayChecker) error

	// PublisherURL derives the canonical URL for the publisher's upstream
	// identity, or "" for kinds without one. Claims may refine the URL
	// (e.g. a commit link) and may be nil.
	PublisherURL(claims ClaimSet) string

	// VerifyURL reports whether the candidate URL belongs to this
	// publisher's upstream identity (same as, or a sub-path of, the
	// publisher's base URL, plus kind-specific forms).
	VerifyURL(candidate string) bool

	// IdentityAttributes returns the attribute tuple that uniquely
	// identifies this publisher, keyed by column name.
	IdentityAttributes() map[string]string
}

// PendingPublisher is a trusted-publisher registration made before its target
// project exists. It carries the same identity attributes as its concrete
// counterpart plus the project name to claim and the registering user.
type PendingPublisher interface {
	Publisher

	// TargetProjectName is the (non-normalized) project name to be claimed.
	TargetProjectName() string

	// AddedBy identifies the user who registered this pending publisher.
	AddedBy() string

	// Reify resolves this pending publisher into a concrete one: an existing
	// concrete publisher with the same identity is returned as-is, otherwise
	// a new one is created. Either way the pending row is deleted.
	Reify(store PublisherStore) (Publisher, error)
}

// ReplayChecker is the slice of the publisher service the anti-replay claim
// check needs.
type ReplayChecker interface {
	// JWTIdentifierExists reports whether the jti has been recorded for this
	// service's issuer.
	JWTIdentifierExists(jti string) bool
}
