// Package store keeps jobs, users, keywords and tags in a relational database.
// SQLite (modernc.org/sqlite) is the default engine, PostgreSQL is supported through the pgx driver.
// Queries use portable SQL with question mark placeholders rebound for the active driver.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/go-pkgz/lgr"
	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver
)

// ErrNotFound returned when a job doesn't exist
var ErrNotFound = errors.New("not found")

// Engine is the database engine type
type Engine string

// supported engines
const (
	EngineSQLite   Engine = "sqlite"
	EnginePostgres Engine = "postgres"
)

// Store implements job persistence over sqlx
type Store struct {
	db     *sqlx.DB
	engine Engine
}

// New opens the database and creates the schema if missing.
// For sqlite dsn is a file path, for postgres a connection url or key/value string.
func New(ctx context.Context, engine Engine, dsn string) (*Store, error) {
	var db *sqlx.DB
	var err error
	switch engine {
	case EngineSQLite, "":
		engine = EngineSQLite
		db, err = sqlx.ConnectContext(ctx, "sqlite", sqliteDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database %s: %w", dsn, err)
		}
		// single writer, keeps sqlite from returning busy errors between our own connections
		db.SetMaxOpenConns(1)
	case EnginePostgres:
		db, err = sqlx.ConnectContext(ctx, "pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported database engine %q", engine)
	}

	s := &Store{db: db, engine: engine}
	if err := s.init(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (also failed to close db: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	log.Printf("[DEBUG] %s store opened", engine)
	return s, nil
}

// sqliteDSN adds WAL and busy timeout pragmas to the file path
func sqliteDSN(path string) string {
	if strings.Contains(path, "_pragma=") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

// Close closes the database
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Engine returns the engine the store is using
func (s *Store) Engine() Engine { return s.engine }

func (s *Store) init(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			email TEXT NOT NULL DEFAULT '',
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			job_id BIGINT PRIMARY KEY,
			main_name TEXT NOT NULL DEFAULT '',
			job_status TEXT NOT NULL DEFAULT 'non',
			job_dir TEXT NOT NULL DEFAULT '',
			sub_date BIGINT NOT NULL DEFAULT 0,
			sub_dir TEXT NOT NULL DEFAULT '',
			username TEXT REFERENCES users(username) ON DELETE SET NULL,
			project TEXT NOT NULL DEFAULT '',
			solver TEXT NOT NULL DEFAULT '',
			logfile_path TEXT NOT NULL DEFAULT '',
			readme_filename TEXT NOT NULL DEFAULT '',
			info TEXT NOT NULL DEFAULT '',
			analysis_status TEXT NOT NULL DEFAULT 'opn',
			result_assessment TEXT NOT NULL DEFAULT '',
			result_summary TEXT NOT NULL DEFAULT '',
			keyword_string TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL DEFAULT 0,
			updated_at BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS keywords (
			word TEXT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS job_keywords (
			job_id BIGINT NOT NULL REFERENCES jobs(job_id) ON DELETE CASCADE,
			word TEXT NOT NULL REFERENCES keywords(word),
			PRIMARY KEY (job_id, word)
		)`,
		`CREATE TABLE IF NOT EXISTS tags (
			tag TEXT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS job_tags (
			job_id BIGINT NOT NULL REFERENCES jobs(job_id) ON DELETE CASCADE,
			tag TEXT NOT NULL REFERENCES tags(tag),
			PRIMARY KEY (job_id, tag)
		)`,
		`CREATE TABLE IF NOT EXISTS base_runs (
			job_id BIGINT NOT NULL REFERENCES jobs(job_id) ON DELETE CASCADE,
			base_run_id BIGINT NOT NULL REFERENCES jobs(job_id) ON DELETE CASCADE,
			PRIMARY KEY (job_id, base_run_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(job_status)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_project ON jobs(project)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_username ON jobs(username)`,
		`CREATE INDEX IF NOT EXISTS idx_job_keywords_word ON job_keywords(word)`,
		`CREATE INDEX IF NOT EXISTS idx_job_tags_tag ON job_tags(tag)`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// transact runs fn in a transaction, rolled back if fn fails
func (s *Store) transact(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx rollback failed: %v (original err: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
