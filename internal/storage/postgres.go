package storage

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/Deepaks31/Workflow-Automation-Engine/pkg/models"
	"github.com/Deepaks31/Workflow-Automation-Engine/pkg/storage"
)

// pqLockNotAvailable is raised by FOR UPDATE NOWAIT when another session
// holds the row.
const pqLockNotAvailable = "55P03"

type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	QueryRowx(query string, args ...interface{}) *sqlx.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

type PostgresStore struct {
	db DBInterface
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Begin() (storage.Store, error) {
	if db, ok := s.db.(*sqlx.DB); ok {
		tx, err := db.Beginx()
		if err != nil {
			return nil, err
		}
		return &PostgresStore{db: tx}, nil
	}
	return nil, fmt.Errorf("cannot begin transaction on unknown type")
}

func (s *PostgresStore) Commit() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Commit()
	}
	return fmt.Errorf("cannot commit: not a transaction")
}

func (s *PostgresStore) Rollback() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Rollback()
	}
	return fmt.Errorf("cannot rollback: not a transaction")
}

func (s *PostgresStore) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil // No-op for *sqlx.Tx
}

// SaveWorkflow creates a workflow definition and its levels, returning the ID.
// The engine itself never calls this; it exists for seeding and tests.
func (s *PostgresStore) SaveWorkflow(w models.Workflow) (int64, error) {
	var wfID int64
	err := s.db.QueryRowx("INSERT INTO workflows (name, description, status, created_by, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id",
		w.Name, w.Description, w.Status, w.CreatedBy, w.CreatedAt).Scan(&wfID)
	if err != nil {
		return 0, fmt.Errorf("save workflow: %w", err)
	}
	for _, l := range w.Levels {
		_, err := s.db.Exec("INSERT INTO approval_levels (workflow_id, level_no, role, escalation_hours) VALUES ($1, $2, $3, $4)",
			wfID, l.LevelNo, l.Role, l.EscalationHours)
		if err != nil {
			return 0, fmt.Errorf("save workflow level %d: %w", l.LevelNo, err)
		}
	}
	return wfID, nil
}

// GetWorkflow retrieves a workflow by ID with its levels ordered by level_no.
func (s *PostgresStore) GetWorkflow(id int64) (models.Workflow, error) {
	var wf models.Workflow
	err := s.db.Get(&wf, "SELECT id, name, description, status, created_by, created_at FROM workflows WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.Workflow{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Workflow{}, err
	}

	err = s.db.Select(&wf.Levels, "SELECT workflow_id, level_no, role, escalation_hours FROM approval_levels WHERE workflow_id = $1 ORDER BY level_no", id)
	if err != nil {
		return models.Workflow{}, fmt.Errorf("get workflow %d levels: %w", id, err)
	}
	return wf, nil
}

func (s *PostgresStore) ListWorkflows() ([]models.Workflow, error) {
	workflows := []models.Workflow{}
	query := "SELECT id, name, description, status, created_by, created_at FROM workflows ORDER BY created_at DESC"
	err := s.db.Select(&workflows, query)
	if err != nil {
		return nil, err
	}
	return workflows, nil
}

// SaveRequest inserts a new request and returns its ID.
func (s *PostgresStore) SaveRequest(r models.Request) (int64, error) {
	var id int64
	err := s.db.QueryRowx(`
		INSERT INTO requests (workflow_id, initiator_id, status, current_level, approved_by, remarks, payload, created_at, last_action_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		r.WorkflowID, r.InitiatorID, r.Status, r.CurrentLevel, r.ApprovedBy, r.Remarks, r.Payload, r.CreatedAt, r.LastActionAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save request: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetRequest(id int64) (models.Request, error) {
	var req models.Request
	err := s.db.Get(&req, "SELECT * FROM requests WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.Request{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Request{}, err
	}
	return req, nil
}

// GetRequestForUpdate locks the request row for the rest of the transaction.
// NOWAIT keeps the wait bounded: contention comes back as ErrLocked instead
// of blocking the caller.
func (s *PostgresStore) GetRequestForUpdate(id int64) (models.Request, error) {
	var req models.Request
	err := s.db.Get(&req, "SELECT * FROM requests WHERE id = $1 FOR UPDATE NOWAIT", id)
	if err == sql.ErrNoRows {
		return models.Request{}, storage.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqLockNotAvailable {
		return models.Request{}, storage.ErrLocked
	}
	if err != nil {
		return models.Request{}, err
	}
	return req, nil
}

func (s *PostgresStore) UpdateRequest(r models.Request) error {
	res, err := s.db.Exec(`
		UPDATE requests
		SET status = $1, current_level = $2, approved_by = $3, remarks = $4, last_action_at = $5
		WHERE id = $6`,
		r.Status, r.CurrentLevel, r.ApprovedBy, r.Remarks, r.LastActionAt, r.ID)
	if err != nil {
		return fmt.Errorf("update request %d: %w", r.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListRequestsByInitiator(initiatorID int64) ([]models.Request, error) {
	requests := []models.Request{}
	err := s.db.Select(&requests, "SELECT * FROM requests WHERE initiator_id = $1 ORDER BY created_at DESC", initiatorID)
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (s *PostgresStore) ListRequestsByLevel(status models.RequestStatus, level int) ([]models.Request, error) {
	requests := []models.Request{}
	err := s.db.Select(&requests, "SELECT * FROM requests WHERE status = $1 AND current_level = $2 ORDER BY created_at", status, level)
	if err != nil {
		return nil, err
	}
	return requests, nil
}

// ListAwaitingRequests returns requests still waiting for a decision. The
// predicate matches both plain PENDING and the ESCALATED_<n> markers; an
// escalated request keeps ticking against its new level's deadline.
func (s *PostgresStore) ListAwaitingRequests() ([]models.Request, error) {
	requests := []models.Request{}
	err := s.db.Select(&requests,
		"SELECT * FROM requests WHERE status = $1 OR status LIKE 'ESCALATED%' ORDER BY last_action_at",
		models.PendingRequestStatus)
	if err != nil {
		return nil, err
	}
	return requests, nil
}

// SaveAuditRecord appends one immutable entry to the audit trail.
func (s *PostgresStore) SaveAuditRecord(rec models.AuditRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO audit_logs (request_id, workflow_id, level_no, role, approver_id, action, previous_status, new_status, remarks, action_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.RequestID, rec.WorkflowID, rec.LevelNo, rec.Role, rec.ApproverID, rec.Action, rec.PreviousStatus, rec.NewStatus, rec.Remarks, rec.ActionAt)
	if err != nil {
		return fmt.Errorf("save audit record for request %d: %w", rec.RequestID, err)
	}
	return nil
}

func (s *PostgresStore) ListAuditRecords(requestID int64) ([]models.AuditRecord, error) {
	records := []models.AuditRecord{}
	err := s.db.Select(&records, "SELECT * FROM audit_logs WHERE request_id = $1 ORDER BY action_at", requestID)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// SaveEscalationRecord appends one scheduler-driven trail entry.
func (s *PostgresStore) SaveEscalationRecord(rec models.EscalationRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO escalation_history (request_id, from_level, to_level, action, reason, action_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.RequestID, rec.FromLevel, rec.ToLevel, rec.Action, rec.Reason, rec.ActionAt)
	if err != nil {
		return fmt.Errorf("save escalation record for request %d: %w", rec.RequestID, err)
	}
	return nil
}

func (s *PostgresStore) ListEscalationRecords(requestID int64) ([]models.EscalationRecord, error) {
	records := []models.EscalationRecord{}
	err := s.db.Select(&records, "SELECT * FROM escalation_history WHERE request_id = $1 ORDER BY action_at", requestID)
	if err != nil {
		return nil, err
	}
	return records, nil
}
