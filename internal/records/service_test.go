package records

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"caseguard.org/internal/audit"
	"caseguard.org/internal/policy"
	"caseguard.org/internal/vault"
)

type captureStore struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (c *captureStore) Append(_ context.Context, e *audit.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, *e)
	return nil
}

func (c *captureStore) all() []audit.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]audit.Entry(nil), c.entries...)
}

type fixture struct {
	svc       *Service
	store     *InMemory
	trail     *captureStore
	rec       *audit.Recorder
	closeOnce sync.Once
	closeErr  error
}

// closeRecorder stops the recorder exactly once; Recorder.Close panics on a
// second call, and both drain and the fixture cleanup need to reach it.
func (f *fixture) closeRecorder() error {
	f.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		f.closeErr = f.rec.Close(ctx)
	})
	return f.closeErr
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{'r'}, vault.KeySize))
	v, err := vault.New(key, nil)
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}
	trail := &captureStore{}
	rec := audit.NewRecorder(trail, nil, 16)
	store := NewInMemory()
	svc, err := NewService(store, v, rec, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	f := &fixture{svc: svc, store: store, trail: trail, rec: rec}
	t.Cleanup(func() {
		_ = f.closeRecorder()
	})
	return f
}

func (f *fixture) drain(t *testing.T) []audit.Entry {
	t.Helper()
	if err := f.closeRecorder(); err != nil {
		t.Fatalf("recorder close: %v", err)
	}
	return f.trail.all()
}

func caseWorker(program string) policy.Subject {
	return policy.Subject{
		IdentityID: "worker-1", DisplayName: "Worker", Active: true,
		Roles: map[string]policy.Role{program: policy.RoleFrontLine},
	}
}

func TestCreateStoresCiphertextOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.Create(ctx, caseWorker("prog-a"), CreateParams{
		ProgramID: "prog-a",
		FullName:  "Alia Nurlan",
		Email:     "Alia@Example.Org",
		Notes:     "intake pending",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if view.FullName != "Alia Nurlan" || view.Email != "alia@example.org" {
		t.Fatalf("view lost plaintext: %+v", view)
	}

	raw, err := f.store.Find(ctx, view.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	for name, token := range map[string]string{
		"full_name": raw.FullName.Token(),
		"email":     raw.Email.Token(),
		"notes":     raw.Notes.Token(),
	} {
		if token == "" {
			t.Fatalf("%s token empty", name)
		}
		if token == "Alia Nurlan" || token == "alia@example.org" || token == "intake pending" {
			t.Fatalf("%s stored in plaintext", name)
		}
	}
	if raw.Phone.Token() != "" {
		t.Fatal("absent phone must stay an empty token")
	}
}

func TestGetHidesOtherPrograms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, caseWorker("prog-a"), CreateParams{
		ProgramID: "prog-a", FullName: "Alia Nurlan",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	outsider := caseWorker("prog-b")
	if _, err := f.svc.Get(ctx, outsider, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-program read must look absent: got %v", err)
	}
	if _, err := f.svc.Get(ctx, outsider, "no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("absent read: got %v", err)
	}

	entries := f.drain(t)
	if len(entries) != 1 {
		t.Fatalf("expected exactly one denial entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Action != audit.ActionAccessDeniedHidden {
		t.Fatalf("denial action %q", e.Action)
	}
	if e.ActorID != "worker-1" || e.ResourceID != created.ID || e.ProgramID != "prog-a" {
		t.Fatalf("denial entry incomplete: %+v", e)
	}
}

func TestUpdateRequiresWriteScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, caseWorker("prog-a"), CreateParams{
		ProgramID: "prog-a", FullName: "Alia Nurlan",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Front desk can see the program but may not write to records.
	desk := policy.Subject{
		IdentityID: "desk-1", DisplayName: "Desk", Active: true,
		Roles: map[string]policy.Role{"prog-a": policy.RoleFrontDesk},
	}
	newName := "Changed"
	if _, err := f.svc.Update(ctx, desk, created.ID, UpdateParams{FullName: &newName}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("front desk update: got %v", err)
	}

	entries := f.drain(t)
	if len(entries) != 1 || entries[0].Action != audit.ActionAccessDenied {
		t.Fatalf("expected one open denial, got %+v", entries)
	}

	raw, _ := f.store.Find(ctx, created.ID)
	if raw.FullName.Token() == "Changed" {
		t.Fatal("denied update reached the store")
	}
}

func TestUpdatePartialFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := caseWorker("prog-a")

	created, err := f.svc.Create(ctx, actor, CreateParams{
		ProgramID: "prog-a", FullName: "Alia Nurlan", Phone: "+7 700 111 22 33",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	empty := ""
	notes := "follow up 2026-09-15"
	view, err := f.svc.Update(ctx, actor, created.ID, UpdateParams{Notes: &notes, Phone: &empty})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if view.Notes != notes {
		t.Fatalf("notes %q", view.Notes)
	}
	if view.Phone != "" {
		t.Fatalf("phone should be cleared, got %q", view.Phone)
	}
	if view.FullName != "Alia Nurlan" {
		t.Fatalf("untouched field changed: %q", view.FullName)
	}
}

func TestListScoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin := policy.Subject{IdentityID: "adm", Active: true, Admin: true}
	for _, p := range []struct{ program, name string }{
		{"prog-a", "A One"}, {"prog-a", "A Two"}, {"prog-b", "B One"},
	} {
		if _, err := f.svc.Create(ctx, admin, CreateParams{ProgramID: p.program, FullName: p.name}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	views, err := f.svc.List(ctx, caseWorker("prog-a"), "", false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("scoped list returned %d records", len(views))
	}
	for _, v := range views {
		if v.ProgramID != "prog-a" {
			t.Fatalf("foreign record leaked: %+v", v)
		}
	}

	views, err = f.svc.List(ctx, admin, "", false)
	if err != nil {
		t.Fatalf("admin list: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("admin list returned %d records", len(views))
	}

	if _, err := f.svc.List(ctx, caseWorker("prog-a"), "prog-b", false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("listing a foreign program must look absent: got %v", err)
	}
}

func TestExportIsASeparateGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	manager := policy.Subject{
		IdentityID: "mgr", Active: true,
		Roles: map[string]policy.Role{"prog-a": policy.RoleProgramManager},
	}
	if _, err := f.svc.Create(ctx, manager, CreateParams{ProgramID: "prog-a", FullName: "Alia Nurlan"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := f.svc.Export(ctx, manager, "prog-a"); err != nil {
		t.Fatalf("manager export: %v", err)
	}
	if _, err := f.svc.Export(ctx, caseWorker("prog-a"), "prog-a"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("front line export must be refused: got %v", err)
	}
}

func TestDeactivateKeepsRecordResolvable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	manager := policy.Subject{
		IdentityID: "mgr", Active: true,
		Roles: map[string]policy.Role{"prog-a": policy.RoleProgramManager},
	}
	created, err := f.svc.Create(ctx, manager, CreateParams{ProgramID: "prog-a", FullName: "Alia Nurlan"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Managers hold update but not deactivate on records.
	if err := f.svc.Deactivate(ctx, manager, created.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("manager deactivate: got %v", err)
	}

	admin := policy.Subject{IdentityID: "adm", Active: true, Admin: true}
	if err := f.svc.Deactivate(ctx, admin, created.ID); err != nil {
		t.Fatalf("admin deactivate: %v", err)
	}

	view, err := f.svc.Get(ctx, admin, created.ID)
	if err != nil {
		t.Fatalf("deactivated record must stay readable: %v", err)
	}
	if view.Active {
		t.Fatal("record still active")
	}

	views, err := f.svc.List(ctx, admin, "prog-a", false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(views) != 0 {
		t.Fatalf("inactive record in default listing: %+v", views)
	}
}
