// Package audit appends immutable security events to a store isolated from
// the primary database. Recording is best-effort by explicit policy: a
// failed audit write is logged for operators and swallowed, and must never
// fail or roll back the operation that triggered it. That trade-off is
// confined to the Recorder boundary in this package.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"caseguard.org/internal/ids"
	"caseguard.org/internal/obs"
)

// Well-known action kinds. Handlers compose resource-specific kinds such
// as "client_record.create" themselves; the constants below are the ones
// the trust core emits directly.
const (
	ActionLoginSuccess        = "auth.login.success"
	ActionLoginFailure        = "auth.login.failure"
	ActionLoginLocked         = "auth.login.locked"
	ActionLogout              = "auth.logout"
	ActionAccessDenied        = "access.denied.forbidden"
	ActionAccessDeniedHidden  = "access.denied.not_found"
	ActionImpersonateGranted  = "impersonation.granted"
	ActionImpersonateRejected = "impersonation.rejected"
)

// Entry is one immutable record of an access or change. ActorDisplay is a
// point-in-time snapshot, not a live reference, so history stays legible
// after the actor is renamed or deactivated. ActorID is empty for
// anonymous events such as failed logins against unknown identities.
type Entry struct {
	ID           string
	OccurredAt   time.Time
	ActorID      string
	ActorDisplay string
	Action       string
	ResourceType string
	ResourceID   string
	ProgramID    string
	Metadata     map[string]string
}

// Store appends entries. Application code never updates or deletes them.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
}

// Recorder accepts entries from request handlers and writes them through a
// buffered queue drained by a single goroutine, which preserves the order
// of entries emitted by one process. Under a crash the worst case is a
// lost entry, never a duplicated or half-written one.
type Recorder struct {
	store  Store
	logger *zap.Logger
	ch     chan Entry
	done   chan struct{}
}

// NewRecorder starts the write loop. buffer bounds how many entries may be
// in flight before Record starts dropping.
func NewRecorder(store Store, logger *zap.Logger, buffer int) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 256
	}
	r := &Recorder{
		store:  store,
		logger: logger,
		ch:     make(chan Entry, buffer),
		done:   make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Recorder) loop() {
	defer close(r.done)
	for entry := range r.ch {
		// Detached context: the triggering request may be long gone.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := r.store.Append(ctx, &entry)
		cancel()
		if err != nil {
			r.logger.Error("audit append failed",
				zap.String("action", entry.Action),
				zap.String("actor_id", entry.ActorID),
				zap.String("resource_type", entry.ResourceType),
				zap.String("resource_id", entry.ResourceID),
				zap.Error(err),
			)
		}
	}
}

// Record enqueues an entry, filling in the id and timestamp. It never
// blocks the caller: when the queue is full the entry is dropped, counted
// and logged.
func (r *Recorder) Record(entry Entry) {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	select {
	case r.ch <- entry:
	default:
		obs.AuditDropped.Inc()
		r.logger.Error("audit queue full, entry dropped",
			zap.String("action", entry.Action),
			zap.String("actor_id", entry.ActorID),
		)
	}
}

// Close drains the queue and stops the write loop. Bounded by ctx for
// shutdown deadlines.
func (r *Recorder) Close(ctx context.Context) error {
	close(r.ch)
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
