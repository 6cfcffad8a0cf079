package audit

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

// collectStore gathers appended entries for assertions.
type collectStore struct {
	mu      sync.Mutex
	entries []Entry
	failN   int // first failN appends fail
}

func (s *collectStore) Append(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failN > 0 {
		s.failN--
		return errors.New("audit store unavailable")
	}
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *collectStore) snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func TestRecorderWritesInOrder(t *testing.T) {
	store := &collectStore{}
	rec := NewRecorder(store, nil, 64)

	for i := 0; i < 10; i++ {
		rec.Record(Entry{
			ActorID: "actor-1",
			Action:  fmt.Sprintf("client_record.update.%d", i),
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rec.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got := store.snapshot()
	if len(got) != 10 {
		t.Fatalf("expected 10 entries, got %d", len(got))
	}
	for i, e := range got {
		if want := fmt.Sprintf("client_record.update.%d", i); e.Action != want {
			t.Fatalf("entry %d out of order: got %s want %s", i, e.Action, want)
		}
		if e.ID == "" || e.OccurredAt.IsZero() {
			t.Fatalf("entry %d missing id or timestamp", i)
		}
	}
}

func TestRecorderSwallowsStoreFailures(t *testing.T) {
	store := &collectStore{failN: 2}
	rec := NewRecorder(store, nil, 8)

	// Record never returns an error, so there is nothing for a caller to
	// react to even when the sink is down.
	rec.Record(Entry{Action: "auth.login.success"})
	rec.Record(Entry{Action: "auth.logout"})
	rec.Record(Entry{Action: "client_record.view"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rec.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := store.snapshot(); len(got) != 1 || got[0].Action != "client_record.view" {
		t.Fatalf("expected the surviving entry only, got %+v", got)
	}
}

func TestRecorderDropsWhenQueueFull(t *testing.T) {
	block := make(chan struct{})
	store := &blockingStore{release: block, started: make(chan struct{})}
	rec := NewRecorder(store, nil, 1)

	rec.Record(Entry{Action: "a"}) // taken by the loop, blocks in Append
	<-store.started                // wait until the loop holds "a" in Append
	rec.Record(Entry{Action: "b"}) // fills the buffer
	rec.Record(Entry{Action: "c"}) // dropped, must not block this call

	close(block)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rec.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := store.count(); n != 2 {
		t.Fatalf("expected 2 stored entries, got %d", n)
	}
}

type blockingStore struct {
	mu      sync.Mutex
	n       int
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (s *blockingStore) Append(ctx context.Context, entry *Entry) error {
	s.once.Do(func() {
		close(s.started)
		<-s.release
	})
	s.mu.Lock()
	s.n++
	s.mu.Unlock()
	return nil
}

func (s *blockingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

func TestPGStoreAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("insert into audit_entries")).
		WithArgs("01H", sqlmock.AnyArg(), "actor-1", "Jane Staff", "auth.login.success",
			"identity", "actor-1", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	store := NewPGStore(db)
	err = store.Append(context.Background(), &Entry{
		ID:           "01H",
		OccurredAt:   time.Now().UTC(),
		ActorID:      "actor-1",
		ActorDisplay: "Jane Staff",
		Action:       ActionLoginSuccess,
		ResourceType: "identity",
		ResourceID:   "actor-1",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
