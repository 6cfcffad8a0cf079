package lockout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestGuard(t *testing.T, store CounterStore, surface string) *Guard {
	t.Helper()
	g, err := NewGuard(store, surface, DefaultThreshold, DefaultWindow, nil)
	require.NoError(t, err)
	return g
}

func TestGuardLocksAfterThreshold(t *testing.T) {
	ctx := context.Background()
	g := newTestGuard(t, NewMemoryStore(), "staff")

	for i := 0; i < DefaultThreshold-1; i++ {
		require.NoError(t, g.Check(ctx, "10.1.2.3"))
		locked, err := g.Failure(ctx, "10.1.2.3")
		require.NoError(t, err)
		require.False(t, locked, "locked after %d failures", i+1)
	}

	locked, err := g.Failure(ctx, "10.1.2.3")
	require.NoError(t, err)
	require.True(t, locked, "fifth failure should lock")

	// The sixth attempt is rejected regardless of credential validity.
	require.ErrorIs(t, g.Check(ctx, "10.1.2.3"), ErrLocked)

	// Other keys are unaffected.
	require.NoError(t, g.Check(ctx, "10.9.9.9"))
}

func TestGuardSuccessResetsCounter(t *testing.T) {
	ctx := context.Background()
	g := newTestGuard(t, NewMemoryStore(), "staff")

	for i := 0; i < DefaultThreshold-1; i++ {
		_, err := g.Failure(ctx, "10.1.2.3")
		require.NoError(t, err)
	}
	require.NoError(t, g.Success(ctx, "10.1.2.3"))

	// Counter restarted from zero: four more failures still do not lock.
	for i := 0; i < DefaultThreshold-1; i++ {
		locked, err := g.Failure(ctx, "10.1.2.3")
		require.NoError(t, err)
		require.False(t, locked)
	}
	require.NoError(t, g.Check(ctx, "10.1.2.3"))
}

func TestGuardWindowExpiryUnlocks(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	current := time.Now()
	store.SetClock(func() time.Time { return current })
	g := newTestGuard(t, store, "portal")

	for i := 0; i < DefaultThreshold; i++ {
		_, err := g.Failure(ctx, "identity-1")
		require.NoError(t, err)
	}
	require.ErrorIs(t, g.Check(ctx, "identity-1"), ErrLocked)

	// The lock clears once the window elapses with no action required.
	current = current.Add(DefaultWindow + time.Second)
	require.NoError(t, g.Check(ctx, "identity-1"))

	count, err := store.Count(ctx, "portal:identity-1")
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestGuardSurfacesDoNotShareCounters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	staff := newTestGuard(t, store, "staff")
	portal := newTestGuard(t, store, "portal")

	for i := 0; i < DefaultThreshold; i++ {
		_, err := staff.Failure(ctx, "key-1")
		require.NoError(t, err)
	}
	require.ErrorIs(t, staff.Check(ctx, "key-1"), ErrLocked)
	require.NoError(t, portal.Check(ctx, "key-1"))
}

type failingStore struct{}

func (failingStore) Incr(context.Context, string, time.Duration) (int, error) {
	return 0, errors.New("store down")
}
func (failingStore) Count(context.Context, string) (int, error) {
	return 0, errors.New("store down")
}
func (failingStore) Reset(context.Context, string) error { return errors.New("store down") }

func TestGuardFailsClosedOnStoreError(t *testing.T) {
	g := newTestGuard(t, failingStore{}, "staff")
	require.ErrorIs(t, g.Check(context.Background(), "10.1.2.3"), ErrLocked)
}
