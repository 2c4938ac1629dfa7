package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/wheelhouse-index/wheelhouse/internal/core"
)

// GetByNormalizedName returns the project, or nil if no such project exists.
func (s *Store) GetByNormalizedName(normalized string) (*core.Project, error) {
	var p core.Project
	err := s.db.QueryRow(
		`SELECT id, name, normalized_name, created_by, organization_id, created_at
		 FROM projects WHERE normalized_name = ?`,
		normalized,
	).Scan(&p.ID, &p.Name, &p.NormalizedName, &p.CreatedBy, &p.OrganizationID, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query project: %w", err)
	}
	return &p, nil
}

// Create registers a new project under the normalized-name unique constraint.
func (s *Store) Create(name, creator, organizationID string) (*core.Project, error) {
	p := &core.Project{
		ID:             uuid.NewString(),
		Name:           name,
		NormalizedName: core.NormalizeProjectName(name),
		CreatedBy:      creator,
		OrganizationID: organizationID,
		CreatedAt:      time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO projects (id, name, normalized_name, created_by, organization_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.NormalizedName, p.CreatedBy, p.OrganizationID, p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create project %q: %w", name, err)
	}
	return p, nil
}

// RecordEvent appends an event to the project's history.
func (s *Store) RecordEvent(event core.ProjectEvent) error {
	additional := []byte("{}")
	if event.Additional != nil {
		var err error
		additional, err = json.Marshal(event.Additional)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
	}
	_, err := s.db.Exec(
		"INSERT INTO project_events (project_id, tag, time, additional) VALUES (?, ?, ?, ?)",
		event.ProjectID, event.Tag, event.Time, string(additional),
	)
	if err != nil {
		return fmt.Errorf("record project event: %w", err)
	}
	return nil
}
