package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Deepaks31/Workflow-Automation-Engine/pkg/models"
	"github.com/Deepaks31/Workflow-Automation-Engine/pkg/service"
	"github.com/Deepaks31/Workflow-Automation-Engine/pkg/storage"
)

func newTestServer(t *testing.T) (*httptest.Server, storage.Store) {
	t.Helper()
	store := storage.NewMockStore()
	svc := service.NewRequestService(store, service.SystemClock(), testLogger{})
	srv := httptest.NewServer(NewMux(svc))
	t.Cleanup(srv.Close)
	return srv, store
}

type testLogger struct{}

func (testLogger) Infof(format string, args ...interface{})  {}
func (testLogger) Warnf(format string, args ...interface{})  {}
func (testLogger) Errorf(format string, args ...interface{}) {}

func seedWorkflow(t *testing.T, store storage.Store) int64 {
	t.Helper()
	id, err := store.SaveWorkflow(models.Workflow{
		Name:      "purchase-approval",
		Status:    models.ActiveWorkflowStatus,
		CreatedAt: time.Now().UTC(),
		Levels: []models.ApprovalLevel{
			{LevelNo: 1, Role: "MANAGER", EscalationHours: 2},
			{LevelNo: 2, Role: "FINANCE", EscalationHours: 4},
		},
	})
	require.NoError(t, err)
	return id
}

func doJSON(t *testing.T, method, url string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeRequest(t *testing.T, resp *http.Response) models.Request {
	t.Helper()
	defer resp.Body.Close()
	var req models.Request
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&req))
	return req
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateRequestEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	wfID := seedWorkflow(t, store)

	resp := doJSON(t, http.MethodPost, srv.URL+"/requests", map[string]interface{}{
		"workflow_id":  wfID,
		"initiator_id": 7,
		"payload":      map[string]int{"amount": 1200},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	req := decodeRequest(t, resp)
	assert.Equal(t, models.PendingRequestStatus, req.Status)
	assert.Equal(t, 1, req.CurrentLevel)
	assert.NotZero(t, req.ID)
}

func TestCreateRequestEndpointValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	// Missing initiator.
	resp := doJSON(t, http.MethodPost, srv.URL+"/requests", map[string]interface{}{"workflow_id": 1})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown workflow.
	resp = doJSON(t, http.MethodPost, srv.URL+"/requests", map[string]interface{}{
		"workflow_id":  999,
		"initiator_id": 7,
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestApproveAndRejectEndpoints(t *testing.T) {
	srv, store := newTestServer(t)
	wfID := seedWorkflow(t, store)

	resp := doJSON(t, http.MethodPost, srv.URL+"/requests", map[string]interface{}{
		"workflow_id":  wfID,
		"initiator_id": 7,
	})
	created := decodeRequest(t, resp)

	// First approval advances to level 2.
	resp = doJSON(t, http.MethodPut, fmt.Sprintf("%s/requests/%d/approve", srv.URL, created.ID),
		map[string]interface{}{"approver_id": 100})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	req := decodeRequest(t, resp)
	assert.Equal(t, models.PendingRequestStatus, req.Status)
	assert.Equal(t, 2, req.CurrentLevel)

	// Rejection at level 2 is terminal.
	resp = doJSON(t, http.MethodPut, fmt.Sprintf("%s/requests/%d/reject", srv.URL, created.ID),
		map[string]interface{}{"approver_id": 200, "remarks": "budget exceeded"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	req = decodeRequest(t, resp)
	assert.Equal(t, models.RejectedRequestStatus, req.Status)
	assert.Equal(t, "budget exceeded", req.Remarks)

	// Acting on a terminal request conflicts.
	resp = doJSON(t, http.MethodPut, fmt.Sprintf("%s/requests/%d/approve", srv.URL, created.ID),
		map[string]interface{}{"approver_id": 100})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestApproveEndpointStatusMapping(t *testing.T) {
	srv, store := newTestServer(t)
	wfID := seedWorkflow(t, store)

	// Unknown request.
	resp := doJSON(t, http.MethodPut, srv.URL+"/requests/999/approve",
		map[string]interface{}{"approver_id": 100})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Locked request maps to 423.
	created := doJSON(t, http.MethodPost, srv.URL+"/requests", map[string]interface{}{
		"workflow_id":  wfID,
		"initiator_id": 7,
	})
	req := decodeRequest(t, created)
	tx, err := store.Begin()
	require.NoError(t, err)
	_, err = tx.GetRequestForUpdate(req.ID)
	require.NoError(t, err)

	resp = doJSON(t, http.MethodPut, fmt.Sprintf("%s/requests/%d/approve", srv.URL, req.ID),
		map[string]interface{}{"approver_id": 100})
	resp.Body.Close()
	assert.Equal(t, http.StatusLocked, resp.StatusCode)
	require.NoError(t, tx.Rollback())
}

func TestAuditAndEscalationTrailEndpoints(t *testing.T) {
	srv, store := newTestServer(t)
	wfID := seedWorkflow(t, store)

	created := doJSON(t, http.MethodPost, srv.URL+"/requests", map[string]interface{}{
		"workflow_id":  wfID,
		"initiator_id": 7,
	})
	req := decodeRequest(t, created)
	resp := doJSON(t, http.MethodPut, fmt.Sprintf("%s/requests/%d/approve", srv.URL, req.ID),
		map[string]interface{}{"approver_id": 100})
	resp.Body.Close()

	resp, err := http.Get(fmt.Sprintf("%s/requests/%d/audit", srv.URL, req.ID))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var records []models.AuditRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	resp.Body.Close()
	require.Len(t, records, 1)
	assert.Equal(t, models.ApprovedAuditAction, records[0].Action)
	assert.Equal(t, "MANAGER", records[0].Role)

	resp, err = http.Get(fmt.Sprintf("%s/requests/%d/escalations", srv.URL, req.ID))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var escalations []models.EscalationRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&escalations))
	resp.Body.Close()
	assert.Empty(t, escalations)

	// Trails for unknown requests are 404, not empty lists.
	resp, err = http.Get(srv.URL + "/requests/999/audit")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListRequestsEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	wfID := seedWorkflow(t, store)

	for i := 0; i < 2; i++ {
		resp := doJSON(t, http.MethodPost, srv.URL+"/requests", map[string]interface{}{
			"workflow_id":  wfID,
			"initiator_id": 7,
		})
		resp.Body.Close()
	}

	resp, err := http.Get(srv.URL + "/requests?initiator=7")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var requests []models.Request
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&requests))
	resp.Body.Close()
	assert.Len(t, requests, 2)

	resp, err = http.Get(srv.URL + "/requests?level=1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&requests))
	resp.Body.Close()
	assert.Len(t, requests, 2)

	resp, err = http.Get(srv.URL + "/requests")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWorkflowEndpoints(t *testing.T) {
	srv, store := newTestServer(t)
	wfID := seedWorkflow(t, store)

	resp, err := http.Get(fmt.Sprintf("%s/workflows/%d", srv.URL, wfID))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var wf models.Workflow
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&wf))
	resp.Body.Close()
	assert.Equal(t, "purchase-approval", wf.Name)
	assert.Len(t, wf.Levels, 2)

	resp, err = http.Get(srv.URL + "/workflows")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var workflows []models.Workflow
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&workflows))
	resp.Body.Close()
	assert.Len(t, workflows, 1)

	resp, err = http.Get(srv.URL + "/workflows/999")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
