package session

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const testKey = "0123456789abcdef0123456789abcdef"

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(testKey, time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestIssueAndVerify(t *testing.T) {
	m := newTestManager(t)

	token, err := m.Issue(SurfaceStaff, "id-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := m.Verify(SurfaceStaff, token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "id-1" || claims.ActorID != "" {
		t.Fatalf("claims: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("token must carry a unique id")
	}
}

func TestSurfacesAreDisjoint(t *testing.T) {
	m := newTestManager(t)

	staff, err := m.Issue(SurfaceStaff, "id-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := m.Verify(SurfacePortal, staff); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("staff token accepted on portal: %v", err)
	}

	portal, err := m.Issue(SurfacePortal, "id-2")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := m.Verify(SurfaceStaff, portal); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("portal token accepted on staff: %v", err)
	}
}

func TestVerifyRejectsTamperedAndForeignTokens(t *testing.T) {
	m := newTestManager(t)

	token, err := m.Issue(SurfaceStaff, "id-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	tampered := token[:len(token)-2] + "xx"
	if _, err := m.Verify(SurfaceStaff, tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("tampered token: %v", err)
	}

	other, err := NewManager(strings.Repeat("z", 32), time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	foreign, err := other.Issue(SurfaceStaff, "id-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := m.Verify(SurfaceStaff, foreign); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign-key token: %v", err)
	}

	if _, err := m.Verify(SurfaceStaff, "not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage token: %v", err)
	}
}

func TestVerifyHonorsExpiry(t *testing.T) {
	m := newTestManager(t)

	token, err := m.Issue(SurfaceStaff, "id-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := m.Verify(SurfaceStaff, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token: %v", err)
	}
}

func TestImpersonatedTokenCarriesActor(t *testing.T) {
	m := newTestManager(t)

	token, err := m.IssueImpersonated("admin-1", "demo-1")
	if err != nil {
		t.Fatalf("IssueImpersonated: %v", err)
	}
	claims, err := m.Verify(SurfacePortal, token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "demo-1" || claims.ActorID != "admin-1" {
		t.Fatalf("claims: %+v", claims)
	}
	// Impersonation is a portal session only.
	if _, err := m.Verify(SurfaceStaff, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("impersonated token accepted on staff: %v", err)
	}
}
