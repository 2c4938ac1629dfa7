package notify

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// LogNotifier writes notifications to the structured log. The hosted index
// would send email here; a self-hosted deployment watches the log stream.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (LogNotifier) PendingPublisherInvalidated(ctx context.Context, addedBy, projectName, publisher string) {
	log.Ctx(ctx).Info().
		Str("added_by", addedBy).
		Str("project_name", projectName).
		Str("winning_publisher", publisher).
		Msg("pending publisher invalidated, project name was claimed by another publisher")
}

func (LogNotifier) EnvironmentConstraintSuggested(ctx context.Context, projectID, publisher, environment string) {
	log.Ctx(ctx).Info().
		Str("project_id", projectID).
		Str("publisher", publisher).
		Str("environment", environment).
		Msg("publisher could be constrained to the environment its workflow uses")
}

// Notification is a captured call, for assertions in tests.
type Notification struct {
	Kind        string
	AddedBy     string
	ProjectName string
	ProjectID   string
	Publisher   string
	Environment string
}

// MemoryNotifier records notifications in memory.
type MemoryNotifier struct {
	mu            sync.Mutex
	notifications []Notification
}

func NewMemoryNotifier() *MemoryNotifier { return &MemoryNotifier{} }

func (n *MemoryNotifier) PendingPublisherInvalidated(_ context.Context, addedBy, projectName, publisher string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, Notification{
		Kind:        "pending-publisher-invalidated",
		AddedBy:     addedBy,
		ProjectName: projectName,
		Publisher:   publisher,
	})
}

func (n *MemoryNotifier) EnvironmentConstraintSuggested(_ context.Context, projectID, publisher, environment string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, Notification{
		Kind:        "environment-constraint-suggested",
		ProjectID:   projectID,
		Publisher:   publisher,
		Environment: environment,
	})
}

func (n *MemoryNotifier) Notifications() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notification, len(n.notifications))
	copy(out, n.notifications)
	return out
}
