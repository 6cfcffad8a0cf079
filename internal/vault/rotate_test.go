package vault

import (
	"context"
	"errors"
	"testing"
)

// fakeRotationStore keeps fields in memory and records writes.
type fakeRotationStore struct {
	fields  []StoredField
	updates int
	failOn  string // row id that fails to persist
}

func (s *fakeRotationStore) ListEncrypted(ctx context.Context) ([]StoredField, error) {
	out := make([]StoredField, len(s.fields))
	copy(out, s.fields)
	return out, nil
}

func (s *fakeRotationStore) UpdateToken(ctx context.Context, field StoredField, newToken string) error {
	if s.failOn != "" && field.RowID == s.failOn {
		return errors.New("storage unavailable")
	}
	for i := range s.fields {
		if s.fields[i].Table == field.Table && s.fields[i].Column == field.Column && s.fields[i].RowID == field.RowID {
			s.fields[i].Token = newToken
			s.updates++
			return nil
		}
	}
	return errors.New("row vanished")
}

func seedStore(t *testing.T, key string, plaintexts map[string]string) *fakeRotationStore {
	t.Helper()
	v, err := New(key, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	store := &fakeRotationStore{}
	for id, plain := range plaintexts {
		token, err := v.Encrypt(plain)
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		store.fields = append(store.fields, StoredField{
			Table: "clients", Column: "notes_enc", RowID: id, Token: token,
		})
	}
	return store
}

func TestRotateReEncryptsUnderNewKey(t *testing.T) {
	oldKey, newKey := testKey('a'), testKey('b')
	store := seedStore(t, oldKey, map[string]string{
		"r1": "first value",
		"r2": "екінші мән",
	})
	before := map[string]string{}
	for _, f := range store.fields {
		before[f.RowID] = f.Token
	}

	report, err := Rotate(context.Background(), store, oldKey, newKey, false, nil)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if report.Rotated != 2 || report.Skipped() != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}

	newVault, _ := New(newKey, nil)
	oldVault, _ := New(oldKey, nil)
	for _, f := range store.fields {
		if f.Token == before[f.RowID] {
			t.Fatalf("ciphertext for %s unchanged after rotation", f.RowID)
		}
		if _, err := newVault.Open(f.Token); err != nil {
			t.Fatalf("rotated token not decryptable with new key: %v", err)
		}
		if _, err := oldVault.Open(f.Token); err == nil {
			t.Fatalf("rotated token still decryptable with old key")
		}
	}
}

func TestRotateDryRunWritesNothing(t *testing.T) {
	oldKey, newKey := testKey('a'), testKey('b')
	store := seedStore(t, oldKey, map[string]string{"r1": "value"})
	before := store.fields[0].Token

	report, err := Rotate(context.Background(), store, oldKey, newKey, true, nil)
	if err != nil {
		t.Fatalf("Rotate dry-run: %v", err)
	}
	if !report.DryRun || report.Rotated != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if store.updates != 0 || store.fields[0].Token != before {
		t.Fatal("dry run modified stored ciphertext")
	}
}

func TestRotateRejectsBadKeysBeforeTouchingData(t *testing.T) {
	store := seedStore(t, testKey('a'), map[string]string{"r1": "value"})

	if _, err := Rotate(context.Background(), store, testKey('a'), testKey('a'), false, nil); !errors.Is(err, ErrSameKey) {
		t.Fatalf("expected ErrSameKey, got %v", err)
	}
	if _, err := Rotate(context.Background(), store, "garbage", testKey('b'), false, nil); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if _, err := Rotate(context.Background(), store, testKey('a'), "garbage", false, nil); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if store.updates != 0 {
		t.Fatal("pre-flight failure still wrote data")
	}
}

func TestRotateSkipsUndecryptableFieldsAndContinues(t *testing.T) {
	oldKey, newKey := testKey('a'), testKey('b')
	store := seedStore(t, oldKey, map[string]string{
		"r1": "good",
		"r3": "also good",
	})
	// A field written under some other key entirely, plus an empty field.
	strayVault, _ := New(testKey('c'), nil)
	stray, _ := strayVault.Encrypt("unreachable")
	store.fields = append(store.fields,
		StoredField{Table: "clients", Column: "notes_enc", RowID: "r2", Token: stray},
		StoredField{Table: "clients", Column: "phone_enc", RowID: "r4", Token: ""},
	)

	report, err := Rotate(context.Background(), store, oldKey, newKey, false, nil)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if report.Rotated != 2 {
		t.Fatalf("expected 2 rotated, got %d", report.Rotated)
	}
	if report.Skipped() != 1 {
		t.Fatalf("expected 1 skipped, got %d", report.Skipped())
	}
	if report.Empty != 1 {
		t.Fatalf("expected 1 empty, got %d", report.Empty)
	}

	// The undecryptable field must be untouched.
	for _, f := range store.fields {
		if f.RowID == "r2" && f.Token != stray {
			t.Fatal("undecryptable field was modified")
		}
	}
}
