package core

import "time"

type AuditEntry struct {
	// ID is the unique request ID (X-Correlation-ID)
	ID string `json:"id"`

	// Time is the timestamp of the event
	Time time.Time `json:"time"`

	// Action describing what happened (e.g. "token.mint")
	Action string `json:"action"`

	// Issuer is the (claimed) issuer URL of the presented token.
	Issuer string `json:"issuer,omitempty"`

	// PublisherKind / PublisherID identify the resolved publisher, if any.
	PublisherKind string `json:"publisher_kind,omitempty"`
	PublisherID   string `json:"publisher_id,omitempty"`

	// Reified is true when this mint created a project from a pending
	// publisher.
	Reified bool `json:"reified,omitempty"`

	// ProjectIDs the minted credential was scoped to.
	ProjectIDs []string `json:"project_ids,omitempty"`

	// Fingerprint is a non-reversible hash of the minted credential, for
	// correlating audit entries with uploads.
	Fingerprint string `json:"fingerprint,omitempty"`

	Success    bool   `json:"success"`
	ErrorCode  string `json:"error_code,omitempty"`
	Error      string `json:"error,omitempty"`
	Stacktrace string `json:"stacktrace,omitempty"`
}

type Auditor interface {
	Log(entry AuditEntry) error
	Close() error
}
