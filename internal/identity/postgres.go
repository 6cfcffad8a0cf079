package identity

import (
	"context"
	"database/sql"
	"time"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const identityColumns = `id, kind, email_hash, email_enc, full_name_enc, phone_enc,
	display_name, password_hash, active, admin, demo, created_at, updated_at`

func scanIdentity(row interface{ Scan(...any) error }) (*Identity, error) {
	var id Identity
	err := row.Scan(&id.ID, &id.Kind, &id.EmailHash, &id.Email, &id.FullName, &id.Phone,
		&id.DisplayName, &id.PasswordHash, &id.Active, &id.Admin, &id.Demo, &id.CreatedAt, &id.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (s *PGStore) Create(ctx context.Context, id *Identity) error {
	_, err := s.db.ExecContext(ctx,
		`insert into identities(id, kind, email_hash, email_enc, full_name_enc, phone_enc,
		   display_name, password_hash, active, admin, demo, created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		id.ID, id.Kind, id.EmailHash, id.Email, id.FullName, id.Phone,
		id.DisplayName, id.PasswordHash, id.Active, id.Admin, id.Demo, id.CreatedAt, id.UpdatedAt)
	return err
}

func (s *PGStore) Find(ctx context.Context, id string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+identityColumns+` from identities where id=$1`, id)
	return scanIdentity(row)
}

func (s *PGStore) FindByEmailHash(ctx context.Context, kind, emailHash string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+identityColumns+` from identities where kind=$1 and email_hash=$2`, kind, emailHash)
	return scanIdentity(row)
}

func (s *PGStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`update identities set active=$2, updated_at=now() where id=$1`, id, active)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) UpdateFields(ctx context.Context, id *Identity) error {
	res, err := s.db.ExecContext(ctx,
		`update identities set email_hash=$2, email_enc=$3, full_name_enc=$4, phone_enc=$5,
		   display_name=$6, updated_at=now()
		 where id=$1`,
		id.ID, id.EmailHash, id.Email, id.FullName, id.Phone, id.DisplayName)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ActiveAssignments(ctx context.Context, identityID string) ([]Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, identity_id, program_id, role, removed, created_at, removed_at
		 from role_assignments where identity_id=$1 and removed=false`, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		var a Assignment
		var removedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.IdentityID, &a.ProgramID, &a.Role, &a.Removed, &a.CreatedAt, &removedAt); err != nil {
			return nil, err
		}
		if removedAt.Valid {
			t := removedAt.Time
			a.RemovedAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PGStore) Assign(ctx context.Context, a *Assignment) error {
	_, err := s.db.ExecContext(ctx,
		`insert into role_assignments(id, identity_id, program_id, role, removed, created_at)
		 values($1,$2,$3,$4,false,$5)`,
		a.ID, a.IdentityID, a.ProgramID, a.Role, a.CreatedAt)
	return err
}

func (s *PGStore) RemoveAssignment(ctx context.Context, identityID, programID string) error {
	res, err := s.db.ExecContext(ctx,
		`update role_assignments set removed=true, removed_at=$3
		 where identity_id=$1 and program_id=$2 and removed=false`,
		identityID, programID, time.Now().UTC())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
