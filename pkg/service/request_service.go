package service

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/Deepaks31/Workflow-Automation-Engine/pkg/models"
	"github.com/Deepaks31/Workflow-Automation-Engine/pkg/storage"
)

// Logger defines the logging interface for the engine and the scheduler.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// RequestService owns the request lifecycle state machine: creation,
// approval, rejection and the scheduler-driven escalation transition.
//
// Every transition runs inside one storage transaction under an exclusive
// per-request lock, so the read-decide-write sequence is indivisible with
// respect to any concurrent transition on the same request. The request
// mutation and its audit/escalation record commit together or not at all.
type RequestService struct {
	store  storage.Store
	clock  Clock
	logger Logger
}

func NewRequestService(store storage.Store, clock Clock, logger Logger) *RequestService {
	return &RequestService{
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// CreateRequest submits a new request against an active workflow. The request
// starts at level 1 in PENDING; creation itself is not an auditable action.
func (s *RequestService) CreateRequest(workflowID, initiatorID int64, payload []byte) (req models.Request, err error) {
	txStore, err := s.store.Begin()
	if err != nil {
		return models.Request{}, errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	wf, err := txStore.GetWorkflow(workflowID)
	if err != nil {
		return models.Request{}, mapStorageErr(err, fmt.Sprintf("workflow %d", workflowID))
	}
	if !wf.IsActive() {
		return models.Request{}, errors.Wrapf(ErrNotFound, "workflow %d is not active", workflowID)
	}

	now := s.clock.Now()
	req = models.Request{
		WorkflowID:   wf.ID,
		InitiatorID:  initiatorID,
		Status:       models.PendingRequestStatus,
		CurrentLevel: 1,
		Payload:      payload,
		CreatedAt:    now,
		LastActionAt: now,
	}
	id, err := txStore.SaveRequest(req)
	if err != nil {
		return models.Request{}, errors.Wrap(err, "failed to save request")
	}
	req.ID = id
	s.logger.Infof("Created request %d on workflow '%s' for initiator %d", id, wf.Name, initiatorID)
	return req, nil
}

// Approve records an approval at the request's current level. The request
// advances to the next level, or becomes terminally APPROVED when the current
// level is the last one.
func (s *RequestService) Approve(requestID, approverID int64) (req models.Request, err error) {
	txStore, err := s.store.Begin()
	if err != nil {
		return models.Request{}, errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	req, err = txStore.GetRequestForUpdate(requestID)
	if err != nil {
		return models.Request{}, mapStorageErr(err, fmt.Sprintf("request %d", requestID))
	}
	if req.Status.IsTerminal() {
		return models.Request{}, errors.Wrapf(ErrInvalidState, "request %d is %s", requestID, req.Status)
	}

	wf, err := txStore.GetWorkflow(req.WorkflowID)
	if err != nil {
		return models.Request{}, mapStorageErr(err, fmt.Sprintf("workflow %d of request %d", req.WorkflowID, requestID))
	}
	level, ok := wf.Level(req.CurrentLevel)
	if !ok {
		return models.Request{}, errors.Wrapf(ErrInvalidLevel, "request %d at level %d of workflow %d", requestID, req.CurrentLevel, wf.ID)
	}

	prevStatus := req.Status
	actedLevel := req.CurrentLevel
	now := s.clock.Now()

	if next, ok := wf.NextLevel(req.CurrentLevel); ok {
		req.CurrentLevel = next
		req.Status = models.PendingRequestStatus
	} else {
		req.Status = models.ApprovedRequestStatus
		req.ApprovedBy = &approverID
	}
	req.LastActionAt = now

	if err = txStore.UpdateRequest(req); err != nil {
		return models.Request{}, errors.Wrapf(err, "failed to update request %d", requestID)
	}
	if err = txStore.SaveAuditRecord(models.AuditRecord{
		RequestID:      req.ID,
		WorkflowID:     wf.ID,
		LevelNo:        actedLevel,
		Role:           level.Role,
		ApproverID:     &approverID,
		Action:         models.ApprovedAuditAction,
		PreviousStatus: prevStatus,
		NewStatus:      req.Status,
		Remarks:        "Approved by " + level.Role,
		ActionAt:       now,
	}); err != nil {
		return models.Request{}, errors.Wrapf(err, "failed to record approval of request %d", requestID)
	}

	s.logger.Infof("Request %d approved at level %d by %d, now %s at level %d",
		requestID, actedLevel, approverID, req.Status, req.CurrentLevel)
	return req, nil
}

// Reject terminates the request regardless of how many levels remain.
// Remarks are stored on the request and echoed into the audit record.
func (s *RequestService) Reject(requestID, approverID int64, remarks string) (req models.Request, err error) {
	txStore, err := s.store.Begin()
	if err != nil {
		return models.Request{}, errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	req, err = txStore.GetRequestForUpdate(requestID)
	if err != nil {
		return models.Request{}, mapStorageErr(err, fmt.Sprintf("request %d", requestID))
	}
	if req.Status.IsTerminal() {
		return models.Request{}, errors.Wrapf(ErrInvalidState, "request %d is %s", requestID, req.Status)
	}

	wf, err := txStore.GetWorkflow(req.WorkflowID)
	if err != nil {
		return models.Request{}, mapStorageErr(err, fmt.Sprintf("workflow %d of request %d", req.WorkflowID, requestID))
	}
	// Rejection terminates unconditionally, so a dangling level only affects
	// the role recorded in the trail.
	role := "UNKNOWN"
	if level, ok := wf.Level(req.CurrentLevel); ok {
		role = level.Role
	}

	prevStatus := req.Status
	now := s.clock.Now()
	req.Status = models.RejectedRequestStatus
	req.Remarks = remarks
	req.LastActionAt = now

	if err = txStore.UpdateRequest(req); err != nil {
		return models.Request{}, errors.Wrapf(err, "failed to update request %d", requestID)
	}
	if err = txStore.SaveAuditRecord(models.AuditRecord{
		RequestID:      req.ID,
		WorkflowID:     wf.ID,
		LevelNo:        req.CurrentLevel,
		Role:           role,
		ApproverID:     &approverID,
		Action:         models.RejectedAuditAction,
		PreviousStatus: prevStatus,
		NewStatus:      models.RejectedRequestStatus,
		Remarks:        remarks,
		ActionAt:       now,
	}); err != nil {
		return models.Request{}, errors.Wrapf(err, "failed to record rejection of request %d", requestID)
	}

	s.logger.Infof("Request %d rejected at level %d by %d", requestID, req.CurrentLevel, approverID)
	return req, nil
}

// escalateRequest drives one scheduler transition: advance the request to the
// next level, or auto-reject when none exists. The deadline is re-checked
// under the row lock, so an approval that slipped in after the sweep's scan
// makes this a no-op instead of a stale escalation. Returns the action taken
// (ESCALATED or AUTO_REJECTED), or "" when the request was no longer due.
// Only the scheduler calls this.
func (s *RequestService) escalateRequest(requestID int64, now time.Time) (action models.AuditAction, err error) {
	txStore, err := s.store.Begin()
	if err != nil {
		return "", errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	req, err := txStore.GetRequestForUpdate(requestID)
	if err != nil {
		return "", mapStorageErr(err, fmt.Sprintf("request %d", requestID))
	}
	if req.Status.IsTerminal() {
		return "", errors.Wrapf(ErrInvalidState, "request %d is %s", requestID, req.Status)
	}

	wf, err := txStore.GetWorkflow(req.WorkflowID)
	if err != nil {
		return "", mapStorageErr(err, fmt.Sprintf("workflow %d of request %d", req.WorkflowID, requestID))
	}
	level, ok := wf.Level(req.CurrentLevel)
	if !ok {
		return "", errors.Wrapf(ErrInvalidLevel, "request %d at level %d of workflow %d", requestID, req.CurrentLevel, wf.ID)
	}

	deadline := req.LastActionAt.Add(level.EscalationTimeout())
	if now.Before(deadline) {
		// An interactive transition reset the clock between the sweep's scan
		// and this lock; the request is no longer overdue.
		return "", nil
	}

	fromLevel := req.CurrentLevel
	rec := models.EscalationRecord{
		RequestID: req.ID,
		FromLevel: fromLevel,
		ActionAt:  now,
	}

	if next, ok := wf.NextLevel(fromLevel); ok {
		req.CurrentLevel = next
		req.Status = models.EscalatedRequestStatus(fromLevel)
		rec.ToLevel = next
		rec.Action = models.EscalatedAuditAction
		rec.Reason = "Approval SLA breached"
	} else {
		req.Status = models.RejectedRequestStatus
		rec.Action = models.AutoRejectedAuditAction
		rec.Reason = "No further approval levels"
	}
	req.LastActionAt = now

	if err = txStore.UpdateRequest(req); err != nil {
		return "", errors.Wrapf(err, "failed to update request %d", requestID)
	}
	if err = txStore.SaveEscalationRecord(rec); err != nil {
		return "", errors.Wrapf(err, "failed to record escalation of request %d", requestID)
	}

	if rec.Action == models.EscalatedAuditAction {
		s.logger.Infof("Request %d escalated from level %d to level %d", requestID, fromLevel, rec.ToLevel)
	} else {
		s.logger.Infof("Request %d auto-rejected at last level %d", requestID, fromLevel)
	}
	return rec.Action, nil
}

// GetRequest fetches the current state of a request.
func (s *RequestService) GetRequest(requestID int64) (models.Request, error) {
	req, err := s.store.GetRequest(requestID)
	if err != nil {
		return models.Request{}, mapStorageErr(err, fmt.Sprintf("request %d", requestID))
	}
	return req, nil
}

// ListByInitiator returns all requests submitted by one initiator.
func (s *RequestService) ListByInitiator(initiatorID int64) ([]models.Request, error) {
	return s.store.ListRequestsByInitiator(initiatorID)
}

// ListPendingAtLevel returns requests sitting in plain PENDING at a level.
func (s *RequestService) ListPendingAtLevel(level int) ([]models.Request, error) {
	return s.store.ListRequestsByLevel(models.PendingRequestStatus, level)
}

// AuditTrail returns the request's action records ordered by action time.
func (s *RequestService) AuditTrail(requestID int64) ([]models.AuditRecord, error) {
	if _, err := s.store.GetRequest(requestID); err != nil {
		return nil, mapStorageErr(err, fmt.Sprintf("request %d", requestID))
	}
	return s.store.ListAuditRecords(requestID)
}

// EscalationTrail returns the request's scheduler-driven records ordered by
// action time.
func (s *RequestService) EscalationTrail(requestID int64) ([]models.EscalationRecord, error) {
	if _, err := s.store.GetRequest(requestID); err != nil {
		return nil, mapStorageErr(err, fmt.Sprintf("request %d", requestID))
	}
	return s.store.ListEscalationRecords(requestID)
}

// GetWorkflow fetches a workflow definition with its ordered levels.
func (s *RequestService) GetWorkflow(workflowID int64) (models.Workflow, error) {
	wf, err := s.store.GetWorkflow(workflowID)
	if err != nil {
		return models.Workflow{}, mapStorageErr(err, fmt.Sprintf("workflow %d", workflowID))
	}
	return wf, nil
}

// ListWorkflows lists all workflow definitions.
func (s *RequestService) ListWorkflows() ([]models.Workflow, error) {
	return s.store.ListWorkflows()
}
