package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"caseguard.org/internal/audit"
	"caseguard.org/internal/policy"
	"caseguard.org/internal/records"
)

type createClientRequest struct {
	ProgramID string `json:"program_id"`
	FullName  string `json:"full_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	BirthDate string `json:"birth_date"`
	Notes     string `json:"notes"`
}

type updateClientRequest struct {
	FullName  *string `json:"full_name"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
	BirthDate *string `json:"birth_date"`
	Notes     *string `json:"notes"`
}

type listClientsResponse struct {
	Items []*records.View `json:"items"`
}

func (a *API) handleClientsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listClients(w, r)
	case http.MethodPost:
		a.createClient(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleClientResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/clients/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getClient(w, r, id)
	case http.MethodPatch:
		a.updateClient(w, r, id)
	case http.MethodDelete:
		a.deactivateClient(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) listClients(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectFrom(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	q := r.URL.Query()
	views, err := a.records.List(r.Context(), subject,
		strings.TrimSpace(q.Get("program_id")),
		q.Get("include_inactive") == "true")
	if err != nil {
		a.handleRecordsError(w, r, err)
		return
	}
	if views == nil {
		views = []*records.View{}
	}
	a.recorder.Record(audit.Entry{
		ActorID:      subject.IdentityID,
		ActorDisplay: subject.DisplayName,
		Action:       "client_record.list",
		ResourceType: "client_record",
		ProgramID:    strings.TrimSpace(q.Get("program_id")),
		Metadata:     map[string]string{"count": strconv.Itoa(len(views))},
	})
	writeJSON(w, http.StatusOK, listClientsResponse{Items: views})
}

func (a *API) createClient(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectFrom(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	var req createClientRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	view, err := a.records.Create(r.Context(), subject, records.CreateParams{
		ProgramID: req.ProgramID,
		FullName:  req.FullName,
		Email:     req.Email,
		Phone:     req.Phone,
		BirthDate: req.BirthDate,
		Notes:     req.Notes,
	})
	if err != nil {
		a.handleRecordsError(w, r, err)
		return
	}
	a.auditClient(subject, "client_record.create", view)
	writeJSON(w, http.StatusCreated, view)
}

func (a *API) getClient(w http.ResponseWriter, r *http.Request, id string) {
	subject, ok := subjectFrom(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	view, err := a.records.Get(r.Context(), subject, id)
	if err != nil {
		a.handleRecordsError(w, r, err)
		return
	}
	a.auditClient(subject, "client_record.view", view)
	writeJSON(w, http.StatusOK, view)
}

func (a *API) updateClient(w http.ResponseWriter, r *http.Request, id string) {
	subject, ok := subjectFrom(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	var req updateClientRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	view, err := a.records.Update(r.Context(), subject, id, records.UpdateParams{
		FullName:  req.FullName,
		Email:     req.Email,
		Phone:     req.Phone,
		BirthDate: req.BirthDate,
		Notes:     req.Notes,
	})
	if err != nil {
		a.handleRecordsError(w, r, err)
		return
	}
	a.auditClient(subject, "client_record.update", view)
	writeJSON(w, http.StatusOK, view)
}

func (a *API) deactivateClient(w http.ResponseWriter, r *http.Request, id string) {
	subject, ok := subjectFrom(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	if err := a.records.Deactivate(r.Context(), subject, id); err != nil {
		a.handleRecordsError(w, r, err)
		return
	}
	a.recorder.Record(audit.Entry{
		ActorID:      subject.IdentityID,
		ActorDisplay: subject.DisplayName,
		Action:       "client_record.deactivate",
		ResourceType: "client_record",
		ResourceID:   id,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleClientsExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	subject, ok := subjectFrom(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	programID := strings.TrimSpace(r.URL.Query().Get("program_id"))
	views, err := a.records.Export(r.Context(), subject, programID)
	if err != nil {
		a.handleRecordsError(w, r, err)
		return
	}
	if views == nil {
		views = []*records.View{}
	}
	a.recorder.Record(audit.Entry{
		ActorID:      subject.IdentityID,
		ActorDisplay: subject.DisplayName,
		Action:       "client_record.export",
		ResourceType: "client_record",
		ProgramID:    programID,
		Metadata:     map[string]string{"count": strconv.Itoa(len(views))},
	})
	writeJSON(w, http.StatusOK, listClientsResponse{Items: views})
}

func (a *API) auditClient(subject policy.Subject, action string, view *records.View) {
	a.recorder.Record(audit.Entry{
		ActorID:      subject.IdentityID,
		ActorDisplay: subject.DisplayName,
		Action:       action,
		ResourceType: "client_record",
		ResourceID:   view.ID,
		ProgramID:    view.ProgramID,
	})
}
