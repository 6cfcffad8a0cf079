package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"caseguard.org/internal/audit"
	"caseguard.org/internal/identity"
	"caseguard.org/internal/lockout"
	"caseguard.org/internal/policy"
	"caseguard.org/internal/session"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (a *API) handleStaffLogin(w http.ResponseWriter, r *http.Request) {
	// Staff logins lock on the source address: staff accounts are known
	// targets, and an attacker rotating emails would dodge a per-account
	// counter entirely.
	a.login(w, r, session.SurfaceStaff, identity.KindStaff, a.staffGuard, func(loginRequest) string {
		return clientIP(r)
	})
}

func (a *API) handlePortalLogin(w http.ResponseWriter, r *http.Request) {
	// Portal logins lock on the target account, so a distributed guessing
	// run against one participant is stopped regardless of source.
	a.login(w, r, session.SurfacePortal, identity.KindParticipant, a.portalGuard, func(req loginRequest) string {
		return strings.ToLower(strings.TrimSpace(req.Email))
	})
}

func (a *API) login(w http.ResponseWriter, r *http.Request, surface, kind string, guard *lockout.Guard, keyFn func(loginRequest) string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	key := keyFn(req)
	if err := guard.Check(r.Context(), key); err != nil {
		// Locked is locked, even when the credentials are correct.
		a.recorder.Record(audit.Entry{
			Action:       audit.ActionLoginLocked,
			ResourceType: "session",
			Metadata:     map[string]string{"surface": surface},
		})
		writeError(w, r, http.StatusTooManyRequests, "too many attempts, try again later")
		return
	}

	id, err := a.identities.Authenticate(r.Context(), kind, req.Email, req.Password)
	if err != nil {
		if !errors.Is(err, identity.ErrUnauthorized) {
			a.handleIdentityError(w, r, err)
			return
		}
		if _, ferr := guard.Failure(r.Context(), key); ferr != nil {
			a.logger.Error("lockout counter update failed")
		}
		a.recorder.Record(audit.Entry{
			Action:       audit.ActionLoginFailure,
			ResourceType: "session",
			Metadata:     map[string]string{"surface": surface},
		})
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := guard.Success(r.Context(), key); err != nil {
		a.logger.Error("lockout counter reset failed")
	}
	token, err := a.sessions.Issue(surface, id.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "session issue failed")
		return
	}
	a.recorder.Record(audit.Entry{
		ActorID:      id.ID,
		ActorDisplay: id.DisplayName,
		Action:       audit.ActionLoginSuccess,
		ResourceType: "session",
		Metadata:     map[string]string{"surface": surface},
	})
	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	subject, ok := subjectFrom(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	a.recorder.Record(audit.Entry{
		ActorID:      subject.IdentityID,
		ActorDisplay: subject.DisplayName,
		Action:       audit.ActionLogout,
		ResourceType: "session",
	})
	w.WriteHeader(http.StatusNoContent)
}

type impersonateRequest struct {
	TargetID string `json:"target_id"`
}

func (a *API) handleImpersonate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := subjectFrom(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	var req impersonateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.TargetID) == "" {
		writeError(w, r, http.StatusBadRequest, "target_id is required")
		return
	}

	target, err := a.identities.Subject(r.Context(), req.TargetID)
	if err != nil && !errors.Is(err, identity.ErrNotFound) {
		a.handleIdentityError(w, r, err)
		return
	}
	// An absent target falls through with a zero subject, which the guard
	// rejects; the response is the same as for an ineligible target.
	if verr := policy.Impersonate(actor, target); verr != nil {
		a.recorder.Record(audit.Entry{
			ActorID:      actor.IdentityID,
			ActorDisplay: actor.DisplayName,
			Action:       audit.ActionImpersonateRejected,
			ResourceType: "identity",
			ResourceID:   req.TargetID,
		})
		writeError(w, r, http.StatusForbidden, "impersonation denied")
		return
	}

	token, err := a.sessions.IssueImpersonated(actor.IdentityID, target.IdentityID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "session issue failed")
		return
	}
	a.recorder.Record(audit.Entry{
		ActorID:      actor.IdentityID,
		ActorDisplay: actor.DisplayName,
		Action:       audit.ActionImpersonateGranted,
		ResourceType: "identity",
		ResourceID:   target.IdentityID,
	})
	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}

type registerRequest struct {
	Email       string `json:"email"`
	FullName    string `json:"full_name"`
	Phone       string `json:"phone"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

func (a *API) handlePortalRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id, err := a.identities.Register(r.Context(), identity.RegisterParams{
		Kind:        identity.KindParticipant,
		Email:       req.Email,
		FullName:    req.FullName,
		Phone:       req.Phone,
		DisplayName: req.DisplayName,
		Password:    req.Password,
	})
	if err != nil {
		a.handleIdentityError(w, r, err)
		return
	}
	a.recorder.Record(audit.Entry{
		ActorID:      id.ID,
		ActorDisplay: id.DisplayName,
		Action:       "identity.registered",
		ResourceType: "identity",
		ResourceID:   id.ID,
	})
	writeJSON(w, http.StatusCreated, map[string]any{"id": id.ID})
}

func (a *API) handlePortalMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	subject, ok := subjectFrom(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	resp := map[string]any{
		"id":           subject.IdentityID,
		"display_name": subject.DisplayName,
	}
	if claims, ok := claimsFrom(r.Context()); ok && claims.ActorID != "" {
		resp["impersonated_by"] = claims.ActorID
	}
	writeJSON(w, http.StatusOK, resp)
}
