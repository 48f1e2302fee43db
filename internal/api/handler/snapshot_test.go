package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	temporalmocks "go.temporal.io/sdk/mocks"

	"github.com/edvin/zargar/internal/core"
	"github.com/edvin/zargar/internal/model"
)

func createSnapshotRequest(schema string, body any) *http.Request {
	return withChiURLParam(newRequest(http.MethodPost, "/tenants/"+schema+"/snapshots", body), "schema", schema)
}

func TestSnapshotCreate_MissingDescription(t *testing.T) {
	h := NewSnapshot(nil)
	rec := httptest.NewRecorder()

	h.Create(rec, createSnapshotRequest("acme", map[string]any{}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSnapshotCreate_Manual(t *testing.T) {
	f := newHandlerFixture(t)
	f.tc.On("ExecuteWorkflow", mock.Anything, mock.Anything, "CreateTenantSnapshotWorkflow", mock.Anything).Return(&temporalmocks.WorkflowRun{}, nil)
	h := NewSnapshot(f.restoration)
	rec := httptest.NewRecorder()

	h.Create(rec, createSnapshotRequest("acme", map[string]any{"description": "before catalog import"}))

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var out core.SnapshotOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, model.SnapshotStatusPending, out.Status)
	assert.False(t, out.Existing)
}

func TestSnapshotCreate_PreOperationDedup(t *testing.T) {
	f := newHandlerFixture(t)
	run := &temporalmocks.WorkflowRun{}
	run.On("Get", mock.Anything, mock.Anything).Return(nil)
	f.tc.On("ExecuteWorkflow", mock.Anything, mock.Anything, "CreateTenantSnapshotWorkflow", mock.Anything).Return(run, nil).Once()
	h := NewSnapshot(f.restoration)
	body := map[string]any{"type": "pre_operation", "description": "bulk price update"}

	rec := httptest.NewRecorder()
	h.Create(rec, createSnapshotRequest("acme", body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var first core.SnapshotOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))

	rec = httptest.NewRecorder()
	h.Create(rec, createSnapshotRequest("acme", body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var second core.SnapshotOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.True(t, second.Existing)
	assert.Equal(t, first.SnapshotID, second.SnapshotID)
}

func TestSnapshotCreate_TenantMissing(t *testing.T) {
	f := newHandlerFixture(t)
	h := NewSnapshot(f.restoration)
	rec := httptest.NewRecorder()

	h.Create(rec, createSnapshotRequest("ghost", map[string]any{"description": "x"}))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSnapshotList(t *testing.T) {
	f := newHandlerFixture(t)
	h := NewSnapshot(f.restoration)

	rec := httptest.NewRecorder()
	h.List(rec, newRequest(http.MethodGet, "/snapshots?tenant=acme", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[],"count":0}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.List(rec, newRequest(http.MethodGet, "/snapshots?tenant=Bad%20Name", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
