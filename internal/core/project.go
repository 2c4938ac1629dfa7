package core

import (
	"strings"
	"time"
)

// Project is the minimal slice of a package-index project the trusted
// publishing core needs: identity, ownership and event recording.
type Project struct {
	ID             string
	Name           string
	NormalizedName string
	CreatedBy      string
	OrganizationID string
	CreatedAt      time.Time
}

// NormalizeProjectName folds a project name the way the index does for
// uniqueness: lowercase, with runs of ".", "-" and "_" collapsed to "-".
func NormalizeProjectName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	prevSep := false
	for _, r := range strings.ToLower(name) {
		if r == '.' || r == '-' || r == '_' {
			if !prevSep {
				b.WriteByte('-')
			}
			prevSep = true
			continue
		}
		prevSep = false
		b.WriteRune(r)
	}
	return b.String()
}

// ProjectEvent is a recorded fact about a project, written with full
// provenance so the web UI can render an audit trail.
type ProjectEvent struct {
	ProjectID  string         `json:"project_id"`
	Tag        string         `json:"tag"`
	Time       time.Time      `json:"time"`
	Additional map[string]any `json:"additional,omitempty"`
}

const (
	// EventPublisherAdded records a trusted publisher being attached to a
	// project, including via pending-publisher reification.
	EventPublisherAdded = "project:oidc-publisher:added"

	// EventShortLivedTokenAdded records a short-lived upload credential
	// being minted for a project.
	EventShortLivedTokenAdded = "project:short-lived-token:added"
)
