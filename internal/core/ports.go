package core

import (
	"context"
	"time"
)

// PublisherRecord is the raw stored form of a publisher row. The model layer
// in internal/publishers converts records to typed publishers and back.
type PublisherRecord struct {
	ID    string
	Kind  Kind
	Attrs map[string]string

	// Pending-only fields.
	ProjectName string
	AddedBy     string
}

// PublisherStore persists publisher rows: one table per concrete kind plus
// the pending equivalents, and the publisher-project association.
type PublisherStore interface {
	// Find returns every row of the kind whose columns match the filter
	// exactly. An empty filter value matches the empty string, not "any".
	Find(kind Kind, pending bool, filter map[string]string) ([]PublisherRecord, error)

	// Exists reports whether a row with exactly this identity-attribute
	// tuple exists.
	Exists(kind Kind, pending bool, attrs map[string]string) (bool, error)

	// Insert stores a new row and returns its ID. Inserting a concrete row
	// whose identity tuple already exists returns the existing row's ID
	// (create-if-absent under the unique constraint).
	Insert(kind Kind, pending bool, rec PublisherRecord) (string, error)

	// Delete removes a row by ID. Deleting an absent row is a no-op.
	Delete(kind Kind, pending bool, id string) error

	// PendingByProjectName returns every pending publisher, of any kind,
	// targeting the given normalized project name.
	PendingByProjectName(normalized string) ([]PublisherRecord, error)

	// AttachProject authorizes the publisher for the project. Attaching an
	// existing pair is a no-op.
	AttachProject(publisherID, projectID string) error

	// ProjectIDs returns the IDs of every project the publisher authorizes.
	ProjectIDs(publisherID string) ([]string, error)

	// CountByKind returns the number of concrete publisher rows per kind,
	// for the periodic metrics task.
	CountByKind() (map[Kind]int64, error)
}

// ProjectStore is the project-creation collaborator plus event recording.
type ProjectStore interface {
	// GetByNormalizedName returns the project or nil if no such project.
	GetByNormalizedName(normalized string) (*Project, error)

	// Create registers a new project. The creator is an owner unless the
	// project is organization-scoped (organizationID non-empty), in which
	// case the organization owns it.
	Create(name, creator, organizationID string) (*Project, error)

	// RecordEvent appends an event to the project's history.
	RecordEvent(event ProjectEvent) error
}

// KV is the shared cache backend behind the JWKS cache and the replay-record
// store. Implementations must make SetNX atomic; it is the only
// mutual-exclusion point the core relies on.
type KV interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)

	// SetNX stores the value only if the key is absent, returning true if
	// the write happened. A false return on a replay record is exactly the
	// "already used" signal.
	SetNX(key string, value any, ttl time.Duration) bool

	Exists(key string) bool

	// Sweep removes expired entries and returns how many were dropped.
	Sweep() int
}

// Metrics is the observability sink. Tags use the "key:value" form.
type Metrics interface {
	Increment(name string, tags ...string)
	Gauge(name string, value float64, tags ...string)
}

// Notifier dispatches user-facing notifications. Calls are fire-and-forget;
// failures are logged, never surfaced to the mint path.
type Notifier interface {
	// PendingPublisherInvalidated tells a user their pending publisher was
	// removed because another publisher claimed the project name first.
	PendingPublisherInvalidated(ctx context.Context, addedBy, projectName, publisher string)

	// EnvironmentConstraintSuggested nudges project owners to constrain a
	// publisher to the environment their workflow actually uses.
	EnvironmentConstraintSuggested(ctx context.Context, projectID, publisher, environment string)
}

// RateLimiter guards pending-publisher registration. Identifiers are opaque
// (user IDs, remote IPs).
type RateLimiter interface {
	// Test reports whether a hit would currently be allowed.
	Test(identifier string) bool
	// Hit consumes one unit and reports whether it was allowed.
	Hit(identifier string) bool
	// Clear resets the identifier's budget.
	Clear(identifier string)
}

// CredentialMetadata describes a minted upload credential. The description is
// human-readable and server-side only; it is displayed, never parsed.
type CredentialMetadata struct {
	ID          string
	Description string
	PublisherID string
	ProjectIDs  []string
	NotBefore   time.Time
	ExpiresAt   time.Time
}

// CredentialStore tracks minted credentials so expired ones can be swept and
// admins can list what is outstanding.
type CredentialStore interface {
	Save(ctx context.Context, meta CredentialMetadata) error
	ListActive(ctx context.Context) ([]CredentialMetadata, error)
	DeleteExpired(ctx context.Context) (int64, error)
}
