package vault

import (
	"context"
	"database/sql"
	"fmt"
)

// encryptedColumns registers every encrypted column in the primary
// database. Adding an encrypted field to the schema means adding it here,
// or rotation will silently leave it on the old key.
var encryptedColumns = []struct {
	table   string
	columns []string
}{
	{"identities", []string{"email_enc", "full_name_enc", "phone_enc"}},
	{"clients", []string{"full_name_enc", "email_enc", "phone_enc", "birth_date_enc", "notes_enc"}},
}

var _ RotationStore = (*PGRotationStore)(nil)

// PGRotationStore walks the registered encrypted columns of the primary
// database for key rotation.
type PGRotationStore struct {
	db *sql.DB
}

func NewPGRotationStore(db *sql.DB) *PGRotationStore {
	return &PGRotationStore{db: db}
}

func (s *PGRotationStore) ListEncrypted(ctx context.Context) ([]StoredField, error) {
	var out []StoredField
	for _, reg := range encryptedColumns {
		for _, col := range reg.columns {
			fields, err := s.listColumn(ctx, reg.table, col)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", reg.table, col, err)
			}
			out = append(out, fields...)
		}
	}
	return out, nil
}

func (s *PGRotationStore) listColumn(ctx context.Context, table, column string) ([]StoredField, error) {
	// table and column come from the static registry above, never from
	// callers, so interpolating them is safe.
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`select id, %s from %s order by id`, column, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredField
	for rows.Next() {
		f := StoredField{Table: table, Column: column}
		var token sql.NullString
		if err := rows.Scan(&f.RowID, &token); err != nil {
			return nil, err
		}
		f.Token = token.String
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PGRotationStore) UpdateToken(ctx context.Context, field StoredField, newToken string) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`update %s set %s=$2 where id=$1`, field.Table, field.Column),
		field.RowID, newToken)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("vault: row %s/%s vanished during rotation", field.Table, field.RowID)
	}
	return nil
}
