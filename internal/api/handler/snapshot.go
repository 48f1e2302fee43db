package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/edvin/zargar/internal/api/middleware"
	"github.com/edvin/zargar/internal/api/request"
	"github.com/edvin/zargar/internal/api/response"
	"github.com/edvin/zargar/internal/core"
	"github.com/edvin/zargar/internal/model"
)

type Snapshot struct {
	mgr *core.RestorationManager
}

func NewSnapshot(mgr *core.RestorationManager) *Snapshot {
	return &Snapshot{mgr: mgr}
}

// Create takes a snapshot of the tenant in the URL. Manual snapshots run in
// the background; pre_operation snapshots block until the dump is stored.
func (h *Snapshot) Create(w http.ResponseWriter, r *http.Request) {
	schema, err := request.RequireSchema(chi.URLParam(r, "schema"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.CreateSnapshot
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	actor := mw.GetActor(r.Context())
	if req.Type != model.SnapshotTypePreOperation {
		writeResult(w, http.StatusAccepted, h.mgr.CreateManualSnapshot(r.Context(), schema, req.Description, actor))
		return
	}

	res := h.mgr.CreatePreOperationSnapshot(r.Context(), schema, req.Description, actor)
	status := http.StatusCreated
	if res.IsOK() && res.OK.Existing {
		status = http.StatusOK
	}
	writeResult(w, status, res)
}

// List returns restorable snapshots, optionally filtered by ?tenant=.
func (h *Snapshot) List(w http.ResponseWriter, r *http.Request) {
	var tenant *string
	if t := r.URL.Query().Get("tenant"); t != "" {
		if _, err := request.RequireSchema(t); err != nil {
			response.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		tenant = &t
	}

	res := h.mgr.GetAvailableSnapshots(r.Context(), tenant)
	if !res.IsOK() {
		response.WriteError(w, statusForFailure(res.Error()), res.Error())
		return
	}
	response.WriteList(w, http.StatusOK, res.OK)
}
