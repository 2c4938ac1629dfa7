package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/wheelhouse-index/wheelhouse/internal/core"
)

// Find returns every row of the kind matching the filter exactly. Filter keys
// must be columns of the kind's table; anything else is a programming error
// and fails loudly.
func (s *Store) Find(kind core.Kind, pending bool, filter map[string]string) ([]core.PublisherRecord, error) {
	ks, err := schemaFor(kind)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(ks.columns))
	for _, c := range ks.columns {
		known[c] = true
	}

	var (
		where []string
		args  []any
	)
	for _, c := range ks.columns {
		v, ok := filter[c]
		if !ok {
			continue
		}
		where = append(where, c+" = ?")
		args = append(args, v)
	}
	for k := range filter {
		if !known[k] {
			return nil, fmt.Errorf("filter key %q is not a column of %s", k, ks.tableName(pending))
		}
	}

	cols := append([]string{"id"}, ks.columns...)
	if pending {
		cols = append(cols, "project_name", "added_by")
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), ks.tableName(pending))
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", ks.tableName(pending), err)
	}
	defer rows.Close()

	var recs []core.PublisherRecord
	for rows.Next() {
		rec := core.PublisherRecord{Kind: kind, Attrs: make(map[string]string, len(ks.columns))}
		dest := make([]any, 0, len(cols))
		dest = append(dest, &rec.ID)
		attrVals := make([]string, len(ks.columns))
		for i := range ks.columns {
			dest = append(dest, &attrVals[i])
		}
		if pending {
			dest = append(dest, &rec.ProjectName, &rec.AddedBy)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", ks.tableName(pending), err)
		}
		for i, c := range ks.columns {
			rec.Attrs[c] = attrVals[i]
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Exists reports whether a row with exactly this identity tuple exists.
func (s *Store) Exists(kind core.Kind, pending bool, attrs map[string]string) (bool, error) {
	recs, err := s.Find(kind, pending, attrs)
	if err != nil {
		return false, err
	}
	return len(recs) > 0, nil
}

// Insert stores a new row. A concrete insert hitting the unique identity
// constraint returns the existing row's ID instead of failing, which is what
// makes concurrent reifications of the same publisher converge.
func (s *Store) Insert(kind core.Kind, pending bool, rec core.PublisherRecord) (string, error) {
	ks, err := schemaFor(kind)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	cols := append([]string{"id"}, ks.columns...)
	args := []any{id}
	for _, c := range ks.columns {
		args = append(args, rec.Attrs[c])
	}
	if pending {
		cols = append(cols, "project_name", "normalized_project_name", "added_by")
		args = append(args, rec.ProjectName, core.NormalizeProjectName(rec.ProjectName), rec.AddedBy)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING",
		ks.tableName(pending), strings.Join(cols, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "),
	)
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return "", fmt.Errorf("insert into %s: %w", ks.tableName(pending), err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if affected > 0 {
		return id, nil
	}

	// Lost the race (or the tuple already existed); hand back the winner.
	existing, err := s.Find(kind, pending, rec.Attrs)
	if err != nil {
		return "", err
	}
	if len(existing) == 0 {
		return "", fmt.Errorf("insert into %s conflicted but no existing row found", ks.tableName(pending))
	}
	return existing[0].ID, nil
}

// Delete removes a row by ID. Absent rows are a no-op.
func (s *Store) Delete(kind core.Kind, pending bool, id string) error {
	ks, err := schemaFor(kind)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE id = ?", ks.tableName(pending)), id); err != nil {
		return fmt.Errorf("delete from %s: %w", ks.tableName(pending), err)
	}
	return nil
}

// PendingByProjectName returns every pending publisher, across all kinds,
// targeting the normalized project name.
func (s *Store) PendingByProjectName(normalized string) ([]core.PublisherRecord, error) {
	var out []core.PublisherRecord
	for _, ks := range kindSchemas {
		cols := append([]string{"id"}, ks.columns...)
		cols = append(cols, "project_name", "added_by")
		query := fmt.Sprintf(
			"SELECT %s FROM %s WHERE normalized_project_name = ? ORDER BY id",
			strings.Join(cols, ", "), ks.tableName(true),
		)
		rows, err := s.db.Query(query, normalized)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", ks.tableName(true), err)
		}
		for rows.Next() {
			rec := core.PublisherRecord{Kind: ks.kind, Attrs: make(map[string]string, len(ks.columns))}
			dest := make([]any, 0, len(cols))
			dest = append(dest, &rec.ID)
			attrVals := make([]string, len(ks.columns))
			for i := range ks.columns {
				dest = append(dest, &attrVals[i])
			}
			dest = append(dest, &rec.ProjectName, &rec.AddedBy)
			if err := rows.Scan(dest...); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan %s row: %w", ks.tableName(true), err)
			}
			for i, c := range ks.columns {
				rec.Attrs[c] = attrVals[i]
			}
			out = append(out, rec)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

// AttachProject authorizes the publisher for the project. Re-attaching is a
// no-op.
func (s *Store) AttachProject(publisherID, projectID string) error {
	_, err := s.db.Exec(
		"INSERT INTO project_publishers (project_id, publisher_id) VALUES (?, ?) ON CONFLICT DO NOTHING",
		projectID, publisherID,
	)
	if err != nil {
		return fmt.Errorf("attach publisher to project: %w", err)
	}
	return nil
}

// ProjectIDs returns the IDs of every project the publisher authorizes.
func (s *Store) ProjectIDs(publisherID string) ([]string, error) {
	rows, err := s.db.Query(
		"SELECT project_id FROM project_publishers WHERE publisher_id = ? ORDER BY project_id",
		publisherID,
	)
	if err != nil {
		return nil, fmt.Errorf("query project_publishers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountByKind counts concrete publisher rows per kind.
func (s *Store) CountByKind() (map[core.Kind]int64, error) {
	counts := make(map[core.Kind]int64, len(kindSchemas))
	for _, ks := range kindSchemas {
		var n int64
		err := s.db.QueryRow("SELECT COUNT(*) FROM " + ks.tableName(false)).Scan(&n)
		if err != nil && err != sql.ErrNoRows {
			return nil, fmt.Errorf("count %s: %w", ks.tableName(false), err)
		}
		counts[ks.kind] = n
	}
	return counts, nil
}
