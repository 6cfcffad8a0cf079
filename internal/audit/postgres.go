package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PGStore appends entries to the audit database. The *sql.DB it holds is
// opened from the audit DSN, a separate connection to a separate database,
// so primary-store credentials alone cannot write history.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

// Open connects to the audit database.
func Open(dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &PGStore{db: db}, nil
}

// NewPGStore wraps an existing handle. Only intended for tests.
func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

func (s *PGStore) Close() error { return s.db.Close() }

// DB exposes the handle for readiness probes and migrations.
func (s *PGStore) DB() *sql.DB { return s.db }

func (s *PGStore) Append(ctx context.Context, entry *Entry) error {
	meta, _ := json.Marshal(entry.Metadata)
	_, err := s.db.ExecContext(ctx,
		`insert into audit_entries(id, occurred_at, actor_id, actor_display, action, resource_type, resource_id, program_id, metadata)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		entry.ID, entry.OccurredAt, nullable(entry.ActorID), entry.ActorDisplay, entry.Action,
		entry.ResourceType, entry.ResourceID, nullable(entry.ProgramID), meta,
	)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
