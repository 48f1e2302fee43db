package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/edvin/zargar/internal/api/middleware"
	"github.com/edvin/zargar/internal/api/request"
	"github.com/edvin/zargar/internal/api/response"
	"github.com/edvin/zargar/internal/core"
)

type Restore struct {
	mgr *core.RestorationManager
}

func NewRestore(mgr *core.RestorationManager) *Restore {
	return &Restore{mgr: mgr}
}

// RestoreTenant restores the schema in the URL from a completed backup.
func (h *Restore) RestoreTenant(w http.ResponseWriter, r *http.Request) {
	schema, err := request.RequireSchema(chi.URLParam(r, "schema"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.RestoreTenant
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := h.mgr.RestoreTenantFromMainBackup(r.Context(), req.BackupID, schema, req.ConfirmationText, mw.GetActor(r.Context()))
	writeResult(w, http.StatusAccepted, res)
}

// RestoreSnapshot restores a tenant from one of its snapshots.
func (h *Restore) RestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeResult(w, http.StatusAccepted, h.mgr.RestoreTenantFromSnapshot(r.Context(), id, mw.GetActor(r.Context())))
}

func (h *Restore) Status(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeResult(w, http.StatusOK, h.mgr.GetRestorationStatus(r.Context(), id))
}

func (h *Restore) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeResult(w, http.StatusAccepted, h.mgr.CancelRestore(r.Context(), id, mw.GetActor(r.Context())))
}
