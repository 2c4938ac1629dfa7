package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wheelhouse-index/wheelhouse/internal/core"
)

// Save records a minted credential's metadata.
func (s *Store) Save(_ context.Context, meta core.CredentialMetadata) error {
	_, err := s.db.Exec(
		`INSERT INTO credentials (id, description, publisher_id, project_ids, not_before, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		meta.ID, meta.Description, meta.PublisherID,
		strings.Join(meta.ProjectIDs, ","), meta.NotBefore, meta.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// ListActive returns every credential that has not yet expired.
func (s *Store) ListActive(_ context.Context) ([]core.CredentialMetadata, error) {
	rows, err := s.db.Query(
		`SELECT id, description, publisher_id, project_ids, not_before, expires_at
		 FROM credentials WHERE expires_at > ? ORDER BY expires_at`,
		time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query credentials: %w", err)
	}
	defer rows.Close()

	var out []core.CredentialMetadata
	for rows.Next() {
		var (
			meta       core.CredentialMetadata
			projectIDs string
		)
		if err := rows.Scan(&meta.ID, &meta.Description, &meta.PublisherID, &projectIDs, &meta.NotBefore, &meta.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan credential row: %w", err)
		}
		if projectIDs != "" {
			meta.ProjectIDs = strings.Split(projectIDs, ",")
		}
		out = append(out, meta)
	}
	return out, rows.Err()
}

// DeleteExpired removes expired credentials and returns how many were
// dropped.
func (s *Store) DeleteExpired(_ context.Context) (int64, error) {
	res, err := s.db.Exec("DELETE FROM credentials WHERE expires_at <= ?", time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired credentials: %w", err)
	}
	return res.RowsAffected()
}
