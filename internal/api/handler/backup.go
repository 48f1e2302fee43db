package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/edvin/zargar/internal/api/middleware"
	"github.com/edvin/zargar/internal/api/request"
	"github.com/edvin/zargar/internal/api/response"
	"github.com/edvin/zargar/internal/core"
)

type Backup struct {
	svc *core.BackupService
}

func NewBackup(svc *core.BackupService) *Backup {
	return &Backup{svc: svc}
}

func (h *Backup) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateBackup
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.svc.Create(r.Context(), req.Name, req.Type, req.TenantSchema, mw.GetActor(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusAccepted, job)
}

func (h *Backup) List(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.svc.ListRecent(r.Context(), request.ParseLimit(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteList(w, http.StatusOK, jobs)
}

func (h *Backup) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, job)
}

func (h *Backup) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.svc.Cancel(r.Context(), id, mw.GetActor(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusAccepted, job)
}
