package storage

import (
	"github.com/pkg/errors"

	"github.com/Deepaks31/Workflow-Automation-Engine/pkg/models"
)

// ErrNotFound is returned when a workflow or request does not exist.
var ErrNotFound = errors.New("not found")

// ErrLocked is returned by GetRequestForUpdate when another transition holds
// the row. Lock acquisition is bounded (NOWAIT); callers decide whether to
// surface a conflict or retry on the next sweep.
var ErrLocked = errors.New("request locked by concurrent transition")

// Store defines the persistence operations for the engine.
//
// Begin returns a transactional Store; every state transition (request update
// plus its audit/escalation record) runs inside one transaction so the two
// writes commit or roll back together.
type Store interface {
	Begin() (Store, error)
	Commit() error
	Rollback() error
	Close() error

	// Workflow definitions (read-mostly; SaveWorkflow exists for seeding and tests)
	SaveWorkflow(w models.Workflow) (int64, error)
	GetWorkflow(id int64) (models.Workflow, error)
	ListWorkflows() ([]models.Workflow, error)

	// Requests
	SaveRequest(r models.Request) (int64, error)
	GetRequest(id int64) (models.Request, error)
	// GetRequestForUpdate acquires an exclusive per-request lock for the
	// lifetime of the surrounding transaction. Returns ErrLocked instead of
	// blocking when the row is already held.
	GetRequestForUpdate(id int64) (models.Request, error)
	UpdateRequest(r models.Request) error
	ListRequestsByInitiator(initiatorID int64) ([]models.Request, error)
	ListRequestsByLevel(status models.RequestStatus, level int) ([]models.Request, error)
	// ListAwaitingRequests returns every request still waiting for a decision:
	// status PENDING or any ESCALATED_<n> marker.
	ListAwaitingRequests() ([]models.Request, error)

	// Audit trail (append-only, read back ordered by action_at)
	SaveAuditRecord(rec models.AuditRecord) error
	ListAuditRecords(requestID int64) ([]models.AuditRecord, error)
	SaveEscalationRecord(rec models.EscalationRecord) error
	ListEscalationRecords(requestID int64) ([]models.EscalationRecord, error)
}
