// Package lockout tracks failed authentication attempts and enforces a
// timed lockout window. Counters live in a shared TTL store so limits hold
// across horizontally scaled workers. Two guards exist in production: the
// staff login keyed by client IP and the portal login keyed by the target
// identity.
package lockout

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"caseguard.org/internal/obs"
)

// Reference policy: five failures lock the key for fifteen minutes.
const (
	DefaultThreshold = 5
	DefaultWindow    = 15 * time.Minute
)

// ErrLocked indicates the key is currently locked out. Authentication must
// be rejected before any credential verification takes place.
var ErrLocked = errors.New("lockout: too many attempts")

// CounterStore is the shared attempt counter. Counters expire on their own
// after the window elapses, so a lock always clears without intervention.
type CounterStore interface {
	// Incr adds one failed attempt under key, starting the expiry window
	// on the first failure, and returns the current count.
	Incr(ctx context.Context, key string, window time.Duration) (int, error)
	// Count returns the current attempt count, zero if expired or absent.
	Count(ctx context.Context, key string) (int, error)
	// Reset clears the counter, typically after a successful login.
	Reset(ctx context.Context, key string) error
}

// Guard enforces the lockout policy for one login surface.
type Guard struct {
	store     CounterStore
	surface   string // metric/audit label, also the counter key prefix
	threshold int
	window    time.Duration
	logger    *zap.Logger
}

// NewGuard constructs a Guard. surface names the login surface ("staff",
// "portal") and prefixes every counter key so the two surfaces never share
// counters even on a shared store.
func NewGuard(store CounterStore, surface string, threshold int, window time.Duration, logger *zap.Logger) (*Guard, error) {
	if store == nil {
		return nil, errors.New("lockout: counter store is required")
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		store:     store,
		surface:   surface,
		threshold: threshold,
		window:    window,
		logger:    logger,
	}, nil
}

func (g *Guard) key(k string) string { return g.surface + ":" + k }

// Check rejects with ErrLocked when key has reached the threshold within
// the window. A store failure also rejects: the guard fails closed.
func (g *Guard) Check(ctx context.Context, key string) error {
	count, err := g.store.Count(ctx, g.key(key))
	if err != nil {
		g.logger.Error("lockout store unavailable, failing closed",
			zap.String("surface", g.surface), zap.Error(err))
		return ErrLocked
	}
	if count >= g.threshold {
		obs.Lockouts.WithLabelValues(g.surface).Inc()
		return ErrLocked
	}
	return nil
}

// Failure records one failed attempt and reports whether the key just
// crossed the threshold.
func (g *Guard) Failure(ctx context.Context, key string) (bool, error) {
	count, err := g.store.Incr(ctx, g.key(key), g.window)
	if err != nil {
		return false, err
	}
	return count >= g.threshold, nil
}

// Success clears the counter after a successful authentication.
func (g *Guard) Success(ctx context.Context, key string) error {
	return g.store.Reset(ctx, g.key(key))
}
