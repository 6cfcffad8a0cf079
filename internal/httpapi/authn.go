package httpapi

import (
	"context"
	"net/http"
	"strings"

	"caseguard.org/internal/policy"
	"caseguard.org/internal/session"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/info",
	"/v1/auth/login",
	"/v1/portal/auth/login",
	"/v1/portal/auth/register",
	"/",
}

// withAuth verifies the bearer token against the surface the path belongs
// to and loads the caller's policy subject into the context. Portal paths
// accept portal tokens only and vice versa, so a stolen token cannot cross
// surfaces even if it leaks.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := extractBearerToken(r.Header.Get(authHeader))
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "missing bearer token")
			return
		}

		surface := session.SurfaceStaff
		if strings.HasPrefix(r.URL.Path, "/v1/portal/") {
			surface = session.SurfacePortal
		}
		claims, err := a.sessions.Verify(surface, token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}

		subject, err := a.identities.Subject(r.Context(), claims.Subject)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}
		if !subject.Active {
			// Deactivation revokes outstanding sessions immediately.
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeySubject, subject)
		ctx = context.WithValue(ctx, ctxKeyClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func subjectFrom(ctx context.Context) (policy.Subject, bool) {
	s, ok := ctx.Value(ctxKeySubject).(policy.Subject)
	return s, ok
}

func claimsFrom(ctx context.Context) (*session.Claims, bool) {
	c, ok := ctx.Value(ctxKeyClaims).(*session.Claims)
	return c, ok
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" || !strings.HasPrefix(header, bearer) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearer):])
	return token, token != ""
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
