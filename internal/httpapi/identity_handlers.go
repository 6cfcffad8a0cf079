package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"caseguard.org/internal/audit"
	"caseguard.org/internal/identity"
	"caseguard.org/internal/obs"
	"caseguard.org/internal/policy"
)

type createStaffRequest struct {
	Email       string `json:"email"`
	FullName    string `json:"full_name"`
	Phone       string `json:"phone"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
	Admin       bool   `json:"admin"`
	Demo        bool   `json:"demo"`
	// Optional initial assignment. Without one, creation is an
	// instance-wide write and requires the administrative flag.
	ProgramID string `json:"program_id"`
	Role      string `json:"role"`
}

type assignRoleRequest struct {
	ProgramID string `json:"program_id"`
	Role      string `json:"role"`
}

type identityResponse struct {
	ID          string           `json:"id"`
	DisplayName string           `json:"display_name"`
	Active      bool             `json:"active"`
	Admin       bool             `json:"admin"`
	Demo        bool             `json:"demo"`
	Roles       []assignmentView `json:"roles"`
}

type assignmentView struct {
	ProgramID string `json:"program_id"`
	Role      string `json:"role"`
}

func (a *API) handleIdentitiesCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := subjectFrom(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	var req createStaffRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	req.ProgramID = strings.TrimSpace(req.ProgramID)
	if req.ProgramID != "" && !policy.Role(req.Role).Valid() {
		writeError(w, r, http.StatusBadRequest, "unknown role")
		return
	}
	if !a.allow(w, r, actor, policy.ActionCreate, policy.ResourceIdentity, req.ProgramID) {
		return
	}

	created, err := a.identities.CreateStaff(r.Context(), actor, identity.RegisterParams{
		Kind:        identity.KindStaff,
		Email:       req.Email,
		FullName:    req.FullName,
		Phone:       req.Phone,
		DisplayName: req.DisplayName,
		Password:    req.Password,
		Admin:       req.Admin,
		Demo:        req.Demo,
	})
	if err != nil {
		a.handleIdentityError(w, r, err)
		return
	}
	a.recorder.Record(audit.Entry{
		ActorID:      actor.IdentityID,
		ActorDisplay: actor.DisplayName,
		Action:       "identity.create",
		ResourceType: "identity",
		ResourceID:   created.ID,
	})

	if req.ProgramID != "" {
		if _, err := a.identities.AssignRole(r.Context(), actor, created.ID, req.ProgramID, policy.Role(req.Role)); err != nil {
			// The identity exists; surface the assignment failure so the
			// caller retries just that part.
			a.handleIdentityError(w, r, err)
			return
		}
		a.auditRoleChange(actor, "identity.role.assign", created.ID, req.ProgramID, req.Role)
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": created.ID})
}

func (a *API) handleIdentityResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/identities/")
	parts := strings.Split(rest, "/")
	if parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			a.getIdentity(w, r, id)
		case http.MethodPatch:
			a.updateIdentity(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
		}
	case len(parts) == 2 && parts[1] == "roles":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.assignRole(w, r, id)
	case len(parts) == 3 && parts[1] == "roles":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		a.removeRole(w, r, id, parts[2])
	case len(parts) == 2 && parts[1] == "deactivate":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.deactivateIdentity(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

// getIdentity returns directory data only. Contact fields stay sealed;
// nothing on this endpoint opens them.
func (a *API) getIdentity(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := subjectFrom(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	if !a.allow(w, r, actor, policy.ActionView, policy.ResourceIdentity, "") {
		return
	}
	target, err := a.identities.Subject(r.Context(), id)
	if err != nil {
		a.handleIdentityError(w, r, err)
		return
	}
	resp := identityResponse{
		ID:          target.IdentityID,
		DisplayName: target.DisplayName,
		Active:      target.Active,
		Admin:       target.Admin,
		Demo:        target.Demo,
		Roles:       []assignmentView{},
	}
	for _, p := range target.Programs() {
		role, _ := target.RoleIn(p)
		resp.Roles = append(resp.Roles, assignmentView{ProgramID: p, Role: string(role)})
	}
	writeJSON(w, http.StatusOK, resp)
}

type updateIdentityRequest struct {
	Email       *string `json:"email"`
	FullName    *string `json:"full_name"`
	Phone       *string `json:"phone"`
	DisplayName *string `json:"display_name"`
}

// updateIdentity edits profile fields. The service enforces that only the
// identity itself or an administrator may write them.
func (a *API) updateIdentity(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := subjectFrom(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	var req updateIdentityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := a.identities.UpdateProfile(r.Context(), actor, id, identity.UpdateProfileParams{
		Email:       req.Email,
		FullName:    req.FullName,
		Phone:       req.Phone,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		a.auditIfForbidden(actor, err, "identity", id, "")
		a.handleIdentityError(w, r, err)
		return
	}
	a.recorder.Record(audit.Entry{
		ActorID:      actor.IdentityID,
		ActorDisplay: actor.DisplayName,
		Action:       "identity.update",
		ResourceType: "identity",
		ResourceID:   updated.ID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"id": updated.ID, "display_name": updated.DisplayName})
}

func (a *API) assignRole(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := subjectFrom(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role := policy.Role(strings.TrimSpace(req.Role))
	if !role.Valid() {
		writeError(w, r, http.StatusBadRequest, "unknown role")
		return
	}
	if _, err := a.identities.AssignRole(r.Context(), actor, id, req.ProgramID, role); err != nil {
		a.auditIfForbidden(actor, err, "identity", id, req.ProgramID)
		a.handleIdentityError(w, r, err)
		return
	}
	a.auditRoleChange(actor, "identity.role.assign", id, req.ProgramID, string(role))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) removeRole(w http.ResponseWriter, r *http.Request, id, programID string) {
	actor, ok := subjectFrom(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	if err := a.identities.RemoveRole(r.Context(), actor, id, programID); err != nil {
		a.auditIfForbidden(actor, err, "identity", id, programID)
		a.handleIdentityError(w, r, err)
		return
	}
	a.auditRoleChange(actor, "identity.role.remove", id, programID, "")
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) deactivateIdentity(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := subjectFrom(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	if err := a.identities.Deactivate(r.Context(), actor, id); err != nil {
		a.auditIfForbidden(actor, err, "identity", id, "")
		a.handleIdentityError(w, r, err)
		return
	}
	a.recorder.Record(audit.Entry{
		ActorID:      actor.IdentityID,
		ActorDisplay: actor.DisplayName,
		Action:       "identity.deactivate",
		ResourceType: "identity",
		ResourceID:   id,
	})
	w.WriteHeader(http.StatusNoContent)
}

// allow resolves a policy decision inline and writes both the response and
// the denial audit entry when the answer is no.
func (a *API) allow(w http.ResponseWriter, r *http.Request, actor policy.Subject, action policy.Action, resource policy.Resource, programID string) bool {
	switch policy.Authorize(actor, action, resource, programID) {
	case policy.Allowed:
		return true
	case policy.DeniedNotFound:
		obs.AccessDenied.WithLabelValues(string(resource)).Inc()
		a.recorder.Record(audit.Entry{
			ActorID:      actor.IdentityID,
			ActorDisplay: actor.DisplayName,
			Action:       audit.ActionAccessDeniedHidden,
			ResourceType: string(resource),
			ProgramID:    programID,
			Metadata:     map[string]string{"attempted": string(action)},
		})
		writeError(w, r, http.StatusNotFound, "not found")
		return false
	default:
		obs.AccessDenied.WithLabelValues(string(resource)).Inc()
		a.recorder.Record(audit.Entry{
			ActorID:      actor.IdentityID,
			ActorDisplay: actor.DisplayName,
			Action:       audit.ActionAccessDenied,
			ResourceType: string(resource),
			ProgramID:    programID,
			Metadata:     map[string]string{"attempted": string(action)},
		})
		writeError(w, r, http.StatusForbidden, "forbidden")
		return false
	}
}

func (a *API) auditIfForbidden(actor policy.Subject, err error, resourceType, resourceID, programID string) {
	if !errors.Is(err, identity.ErrForbidden) {
		return
	}
	obs.AccessDenied.WithLabelValues(resourceType).Inc()
	a.recorder.Record(audit.Entry{
		ActorID:      actor.IdentityID,
		ActorDisplay: actor.DisplayName,
		Action:       audit.ActionAccessDenied,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		ProgramID:    programID,
	})
}

func (a *API) auditRoleChange(actor policy.Subject, action, targetID, programID, role string) {
	meta := map[string]string{}
	if role != "" {
		meta["role"] = role
	}
	a.recorder.Record(audit.Entry{
		ActorID:      actor.IdentityID,
		ActorDisplay: actor.DisplayName,
		Action:       action,
		ResourceType: "identity",
		ResourceID:   targetID,
		ProgramID:    programID,
		Metadata:     meta,
	})
}
