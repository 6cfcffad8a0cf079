package vault

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrSameKey indicates rotation was requested with identical old and new keys.
var ErrSameKey = errors.New("vault: old and new keys are identical")

// StoredField identifies one encrypted value in the primary store.
type StoredField struct {
	Table  string
	Column string
	RowID  string
	Token  string
}

// RotationStore enumerates and rewrites stored encrypted fields. Rotation
// requires no concurrent writers to these fields; it is run as a single
// administrative process.
type RotationStore interface {
	ListEncrypted(ctx context.Context) ([]StoredField, error)
	UpdateToken(ctx context.Context, field StoredField, newToken string) error
}

// FieldFailure records one field that could not be rotated.
type FieldFailure struct {
	Field StoredField
	Err   error
}

// Report summarizes a rotation run.
type Report struct {
	Rotated  int
	Empty    int
	Failures []FieldFailure
	DryRun   bool
}

// Skipped returns the number of fields left untouched because they could
// not be decrypted with the old key.
func (r Report) Skipped() int { return len(r.Failures) }

// Rotate re-encrypts every stored field from oldKey to newKey. Key
// validation happens before any data is touched; after that, a field that
// fails to decrypt with the old key is recorded and skipped rather than
// aborting the batch. Each successful field is persisted individually, so
// no field is ever left half-written. With dryRun set, nothing is written.
func Rotate(ctx context.Context, store RotationStore, oldKey, newKey string, dryRun bool, logger *zap.Logger) (Report, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := ParseKey(oldKey); err != nil {
		return Report{}, fmt.Errorf("old key: %w", err)
	}
	if _, err := ParseKey(newKey); err != nil {
		return Report{}, fmt.Errorf("new key: %w", err)
	}
	if KeysEqual(oldKey, newKey) {
		return Report{}, ErrSameKey
	}

	oldVault, err := New(oldKey, logger)
	if err != nil {
		return Report{}, err
	}
	newVault, err := New(newKey, logger)
	if err != nil {
		return Report{}, err
	}

	fields, err := store.ListEncrypted(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list encrypted fields: %w", err)
	}

	report := Report{DryRun: dryRun}
	for _, f := range fields {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if f.Token == "" {
			report.Empty++
			continue
		}
		plain, err := oldVault.Open(f.Token)
		if err != nil {
			report.Failures = append(report.Failures, FieldFailure{Field: f, Err: err})
			logger.Warn("field not decryptable with old key, skipping",
				zap.String("table", f.Table),
				zap.String("column", f.Column),
				zap.String("row_id", f.RowID),
			)
			continue
		}
		if dryRun {
			report.Rotated++
			continue
		}
		token, err := newVault.Encrypt(plain)
		if err != nil {
			report.Failures = append(report.Failures, FieldFailure{Field: f, Err: err})
			continue
		}
		if err := store.UpdateToken(ctx, f, token); err != nil {
			report.Failures = append(report.Failures, FieldFailure{Field: f, Err: err})
			logger.Warn("field rewrite failed, skipping",
				zap.String("table", f.Table),
				zap.String("column", f.Column),
				zap.String("row_id", f.RowID),
				zap.Error(err),
			)
			continue
		}
		report.Rotated++
	}
	return report, nil
}
