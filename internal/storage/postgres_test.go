package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Deepaks31/Workflow-Automation-Engine/internal/testutil"
	"github.com/Deepaks31/Workflow-Automation-Engine/pkg/models"
	"github.com/Deepaks31/Workflow-Automation-Engine/pkg/storage"
)

func setupStore(t *testing.T) (*PostgresStore, *testutil.TestDB) {
	t.Helper()
	testDB := testutil.SetupTestDB(t)
	store, err := NewPostgresStore(testDB.ConnStr)
	require.NoError(t, err)
	return store, testDB
}

func saveTestWorkflow(t *testing.T, store *PostgresStore) int64 {
	t.Helper()
	id, err := store.SaveWorkflow(models.Workflow{
		Name:      "expense-approval",
		Status:    models.ActiveWorkflowStatus,
		CreatedBy: "test",
		CreatedAt: time.Now().UTC(),
		Levels: []models.ApprovalLevel{
			{LevelNo: 1, Role: "MANAGER", EscalationHours: 2},
			{LevelNo: 2, Role: "FINANCE", EscalationHours: 4},
		},
	})
	require.NoError(t, err)
	return id
}

func saveTestRequest(t *testing.T, store *PostgresStore, wfID int64, status models.RequestStatus, level int) int64 {
	t.Helper()
	now := time.Now().UTC()
	id, err := store.SaveRequest(models.Request{
		WorkflowID:   wfID,
		InitiatorID:  7,
		Status:       status,
		CurrentLevel: level,
		Payload:      []byte(`{"amount":500}`),
		CreatedAt:    now,
		LastActionAt: now,
	})
	require.NoError(t, err)
	return id
}

func TestPostgresWorkflowRoundTrip(t *testing.T) {
	store, testDB := setupStore(t)
	defer testDB.Teardown(t)
	defer store.Close()

	wfID := saveTestWorkflow(t, store)

	wf, err := store.GetWorkflow(wfID)
	assert.NoError(t, err)
	assert.Equal(t, "expense-approval", wf.Name)
	assert.Equal(t, models.ActiveWorkflowStatus, wf.Status)
	require.Len(t, wf.Levels, 2)
	assert.Equal(t, 1, wf.Levels[0].LevelNo)
	assert.Equal(t, "MANAGER", wf.Levels[0].Role)
	assert.Equal(t, 2, wf.Levels[0].EscalationHours)
	assert.Equal(t, 2, wf.Levels[1].LevelNo)
	assert.Equal(t, "FINANCE", wf.Levels[1].Role)

	_, err = store.GetWorkflow(wfID + 1000)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	workflows, err := store.ListWorkflows()
	assert.NoError(t, err)
	assert.Len(t, workflows, 1)
}

func TestPostgresRequestRoundTrip(t *testing.T) {
	store, testDB := setupStore(t)
	defer testDB.Teardown(t)
	defer store.Close()

	wfID := saveTestWorkflow(t, store)
	reqID := saveTestRequest(t, store, wfID, models.PendingRequestStatus, 1)

	req, err := store.GetRequest(reqID)
	assert.NoError(t, err)
	assert.Equal(t, wfID, req.WorkflowID)
	assert.Equal(t, int64(7), req.InitiatorID)
	assert.Equal(t, models.PendingRequestStatus, req.Status)
	assert.Equal(t, 1, req.CurrentLevel)
	assert.Equal(t, []byte(`{"amount":500}`), req.Payload)
	assert.Nil(t, req.ApprovedBy)

	_, err = store.GetRequest(reqID + 1000)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	approver := int64(100)
	req.Status = models.ApprovedRequestStatus
	req.ApprovedBy = &approver
	req.LastActionAt = time.Now().UTC()
	assert.NoError(t, store.UpdateRequest(req))

	updated, err := store.GetRequest(reqID)
	assert.NoError(t, err)
	assert.Equal(t, models.ApprovedRequestStatus, updated.Status)
	require.NotNil(t, updated.ApprovedBy)
	assert.Equal(t, approver, *updated.ApprovedBy)

	missing := req
	missing.ID = reqID + 1000
	assert.ErrorIs(t, store.UpdateRequest(missing), storage.ErrNotFound)
}

func TestPostgresListAwaitingRequests(t *testing.T) {
	store, testDB := setupStore(t)
	defer testDB.Teardown(t)
	defer store.Close()

	wfID := saveTestWorkflow(t, store)
	pendingID := saveTestRequest(t, store, wfID, models.PendingRequestStatus, 1)
	escalatedID := saveTestRequest(t, store, wfID, models.EscalatedRequestStatus(1), 2)
	saveTestRequest(t, store, wfID, models.ApprovedRequestStatus, 2)
	saveTestRequest(t, store, wfID, models.RejectedRequestStatus, 1)

	awaiting, err := store.ListAwaitingRequests()
	assert.NoError(t, err)
	require.Len(t, awaiting, 2)
	ids := []int64{awaiting[0].ID, awaiting[1].ID}
	assert.Contains(t, ids, pendingID)
	assert.Contains(t, ids, escalatedID)
}

func TestPostgresListRequestsByInitiatorAndLevel(t *testing.T) {
	store, testDB := setupStore(t)
	defer testDB.Teardown(t)
	defer store.Close()

	wfID := saveTestWorkflow(t, store)
	mine := saveTestRequest(t, store, wfID, models.PendingRequestStatus, 1)
	now := time.Now().UTC()
	_, err := store.SaveRequest(models.Request{
		WorkflowID: wfID, InitiatorID: 8, Status: models.PendingRequestStatus,
		CurrentLevel: 2, CreatedAt: now, LastActionAt: now,
	})
	require.NoError(t, err)

	byInitiator, err := store.ListRequestsByInitiator(7)
	assert.NoError(t, err)
	require.Len(t, byInitiator, 1)
	assert.Equal(t, mine, byInitiator[0].ID)

	atLevel, err := store.ListRequestsByLevel(models.PendingRequestStatus, 2)
	assert.NoError(t, err)
	require.Len(t, atLevel, 1)
	assert.Equal(t, int64(8), atLevel[0].InitiatorID)
}

func TestPostgresRowLockNoWait(t *testing.T) {
	store, testDB := setupStore(t)
	defer testDB.Teardown(t)
	defer store.Close()

	wfID := saveTestWorkflow(t, store)
	reqID := saveTestRequest(t, store, wfID, models.PendingRequestStatus, 1)

	// A second pool stands in for a concurrent session.
	other, err := NewPostgresStore(testDB.ConnStr)
	require.NoError(t, err)
	defer other.Close()

	tx1, err := store.Begin()
	require.NoError(t, err)
	_, err = tx1.GetRequestForUpdate(reqID)
	require.NoError(t, err)

	tx2, err := other.Begin()
	require.NoError(t, err)
	_, err = tx2.GetRequestForUpdate(reqID)
	assert.ErrorIs(t, err, storage.ErrLocked)
	require.NoError(t, tx2.Rollback())

	require.NoError(t, tx1.Rollback())

	// Lock released: the same read now succeeds.
	tx3, err := other.Begin()
	require.NoError(t, err)
	req, err := tx3.GetRequestForUpdate(reqID)
	assert.NoError(t, err)
	assert.Equal(t, reqID, req.ID)
	require.NoError(t, tx3.Rollback())
}

func TestPostgresTransactionAtomicity(t *testing.T) {
	store, testDB := setupStore(t)
	defer testDB.Teardown(t)
	defer store.Close()

	wfID := saveTestWorkflow(t, store)
	reqID := saveTestRequest(t, store, wfID, models.PendingRequestStatus, 1)

	tx, err := store.Begin()
	require.NoError(t, err)
	req, err := tx.GetRequestForUpdate(reqID)
	require.NoError(t, err)
	req.Status = models.RejectedRequestStatus
	require.NoError(t, tx.UpdateRequest(req))
	require.NoError(t, tx.SaveAuditRecord(models.AuditRecord{
		RequestID: reqID, WorkflowID: wfID, LevelNo: 1, Role: "MANAGER",
		Action: models.RejectedAuditAction, PreviousStatus: models.PendingRequestStatus,
		NewStatus: models.RejectedRequestStatus, ActionAt: time.Now().UTC(),
	}))
	require.NoError(t, tx.Rollback())

	// Rollback discards both the status change and the audit entry.
	after, err := store.GetRequest(reqID)
	assert.NoError(t, err)
	assert.Equal(t, models.PendingRequestStatus, after.Status)
	records, err := store.ListAuditRecords(reqID)
	assert.NoError(t, err)
	assert.Empty(t, records)
}

func TestPostgresAuditRecordsOrderedByActionTime(t *testing.T) {
	store, testDB := setupStore(t)
	defer testDB.Teardown(t)
	defer store.Close()

	wfID := saveTestWorkflow(t, store)
	reqID := saveTestRequest(t, store, wfID, models.PendingRequestStatus, 1)

	base := time.Now().UTC().Truncate(time.Second)
	// Insert out of chronological order; the query must sort by action_at.
	later := models.AuditRecord{
		RequestID: reqID, WorkflowID: wfID, LevelNo: 2, Role: "FINANCE",
		Action: models.ApprovedAuditAction, PreviousStatus: models.PendingRequestStatus,
		NewStatus: models.ApprovedRequestStatus, ActionAt: base.Add(time.Hour),
	}
	earlier := models.AuditRecord{
		RequestID: reqID, WorkflowID: wfID, LevelNo: 1, Role: "MANAGER",
		Action: models.ApprovedAuditAction, PreviousStatus: models.PendingRequestStatus,
		NewStatus: models.PendingRequestStatus, ActionAt: base,
	}
	require.NoError(t, store.SaveAuditRecord(later))
	require.NoError(t, store.SaveAuditRecord(earlier))

	records, err := store.ListAuditRecords(reqID)
	assert.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].LevelNo)
	assert.Equal(t, 2, records[1].LevelNo)
	assert.True(t, records[0].ActionAt.Before(records[1].ActionAt))
}

func TestPostgresEscalationRecords(t *testing.T) {
	store, testDB := setupStore(t)
	defer testDB.Teardown(t)
	defer store.Close()

	wfID := saveTestWorkflow(t, store)
	reqID := saveTestRequest(t, store, wfID, models.PendingRequestStatus, 1)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.SaveEscalationRecord(models.EscalationRecord{
		RequestID: reqID, FromLevel: 1, ToLevel: 2,
		Action: models.EscalatedAuditAction, Reason: "Approval SLA breached", ActionAt: now,
	}))
	require.NoError(t, store.SaveEscalationRecord(models.EscalationRecord{
		RequestID: reqID, FromLevel: 2, ToLevel: 0,
		Action: models.AutoRejectedAuditAction, Reason: "No further approval levels", ActionAt: now.Add(4 * time.Hour),
	}))

	records, err := store.ListEscalationRecords(reqID)
	assert.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.EscalatedAuditAction, records[0].Action)
	assert.Equal(t, 2, records[0].ToLevel)
	assert.Equal(t, models.AutoRejectedAuditAction, records[1].Action)
	assert.Equal(t, 0, records[1].ToLevel)
	assert.Equal(t, "No further approval levels", records[1].Reason)
}
