package records

import (
	"context"
	"database/sql"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL. Listing queries carry the
// program filter in SQL so a scoping bug in a caller cannot widen a result
// set past what the parameters name.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const clientColumns = `id, program_id, full_name_enc, email_enc, phone_enc,
	birth_date_enc, notes_enc, active, created_by, created_at, updated_at`

func scanClient(row interface{ Scan(...any) error }) (*Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.ProgramID, &c.FullName, &c.Email, &c.Phone,
		&c.BirthDate, &c.Notes, &c.Active, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PGStore) Create(ctx context.Context, c *Client) error {
	_, err := s.db.ExecContext(ctx,
		`insert into clients(id, program_id, full_name_enc, email_enc, phone_enc,
		   birth_date_enc, notes_enc, active, created_by, created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		c.ID, c.ProgramID, c.FullName, c.Email, c.Phone,
		c.BirthDate, c.Notes, c.Active, c.CreatedBy, c.CreatedAt, c.UpdatedAt)
	return err
}

func (s *PGStore) Find(ctx context.Context, id string) (*Client, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+clientColumns+` from clients where id=$1`, id)
	return scanClient(row)
}

func (s *PGStore) List(ctx context.Context, programs []string, includeInactive bool) ([]*Client, error) {
	query := `select ` + clientColumns + ` from clients`
	var args []any
	switch {
	case programs != nil && !includeInactive:
		query += ` where program_id = any($1) and active=true`
		args = append(args, programs)
	case programs != nil:
		query += ` where program_id = any($1)`
		args = append(args, programs)
	case !includeInactive:
		query += ` where active=true`
	}
	query += ` order by created_at desc, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PGStore) Update(ctx context.Context, c *Client) error {
	res, err := s.db.ExecContext(ctx,
		`update clients set full_name_enc=$2, email_enc=$3, phone_enc=$4,
		   birth_date_enc=$5, notes_enc=$6, updated_at=$7
		 where id=$1`,
		c.ID, c.FullName, c.Email, c.Phone, c.BirthDate, c.Notes, c.UpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`update clients set active=$2, updated_at=now() where id=$1`, id, active)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
