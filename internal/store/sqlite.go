package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/wheelhouse-index/wheelhouse/internal/core"
)

// kindSchema drives table generation and query building for one publisher
// kind. Columns are the identity attributes in declaration order; nocase
// columns compare case-insensitively, matching the claim checks for that
// kind.
type kindSchema struct {
	kind    core.Kind
	table   string
	columns []string
	nocase  map[string]bool
}

var kindSchemas = []kindSchema{
	{
		kind:    core.KindGitHub,
		table:   "github_publishers",
		columns: []string{"repository_owner", "repository_name", "workflow_filename", "environment"},
		nocase:  map[string]bool{"repository_owner": true, "repository_name": true, "environment": true},
	},
	{
		kind:    core.KindGitLab,
		table:   "gitlab_publishers",
		columns: []string{"namespace", "project", "workflow_filepath", "environment", "issuer_url"},
	},
	{
		kind:    core.KindGoogle,
		table:   "google_publishers",
		columns: []string{"email", "subject"},
	},
	{
		kind:    core.KindActiveState,
		table:   "activestate_publishers",
		columns: []string{"organization", "activestate_project_name", "actor_id"},
	},
	{
		kind:    core.KindSemaphore,
		table:   "semaphore_publishers",
		columns: []string{"organization", "organization_id", "project", "project_id", "repo_slug"},
	},
	{
		kind:    core.KindCircleCI,
		table:   "circleci_publishers",
		columns: []string{"circleci_org_id", "circleci_project_id", "pipeline_definition_id"},
	},
	{
		kind:    core.KindBuildkite,
		table:   "buildkite_publishers",
		columns: []string{"organization_slug", "pipeline_slug"},
	},
}

func schemaFor(kind core.Kind) (kindSchema, error) {
	for _, s := range kindSchemas {
		if s.kind == kind {
			return s, nil
		}
	}
	return kindSchema{}, fmt.Errorf("no table schema for publisher kind %q", kind)
}

func (s kindSchema) tableName(pending bool) string {
	if pending {
		return "pending_" + s.table
	}
	return s.table
}

func (s kindSchema) createSQL(pending bool) string {
	var cols []string
	cols = append(cols, "id TEXT PRIMARY KEY")
	for _, c := range s.columns {
		col := c + " TEXT NOT NULL DEFAULT ''"
		if s.nocase[c] {
			col += " COLLATE NOCASE"
		}
		cols = append(cols, col)
	}
	if pending {
		cols = append(cols,
			"project_name TEXT NOT NULL",
			"normalized_project_name TEXT NOT NULL",
			"added_by TEXT NOT NULL",
		)
	}
	cols = append(cols, fmt.Sprintf("UNIQUE (%s)", strings.Join(s.columns, ", ")))
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", s.tableName(pending), strings.Join(cols, ",\n\t"))
}

// Store wraps the SQLite database holding publishers, projects, events and
// credential metadata.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL for concurrent readers during mints
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	// Foreign keys are off by default in SQLite
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	var migrations []string
	for _, ks := range kindSchemas {
		migrations = append(migrations, ks.createSQL(false), ks.createSQL(true))
	}
	migrations = append(migrations,
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			normalized_name TEXT NOT NULL UNIQUE,
			created_by TEXT NOT NULL,
			organization_id TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS project_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id TEXT NOT NULL,
			tag TEXT NOT NULL,
			time DATETIME NOT NULL,
			additional TEXT NOT NULL DEFAULT '{}',
			FOREIGN KEY (project_id) REFERENCES projects(id)
		)`,
		`CREATE TABLE IF NOT EXISTS project_publishers (
			project_id TEXT NOT NULL,
			publisher_id TEXT NOT NULL,
			PRIMARY KEY (project_id, publisher_id)
		)`,
		`CREATE TABLE IF NOT EXISTS credentials (
			id TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			publisher_id TEXT NOT NULL,
			project_ids TEXT NOT NULL DEFAULT '',
			not_before DATETIME NOT NULL,
			expires_at DATETIME NOT NULL
		)`,
	)

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}
