package storage

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/Deepaks31/Workflow-Automation-Engine/pkg/models"
)

// mockState is the shared in-memory data behind every mockStore handle.
// Request row locks live here so two concurrent "transactions" observe each
// other the way two Postgres sessions would.
type mockState struct {
	mu             sync.Mutex
	workflows      []models.Workflow
	levels         []models.ApprovalLevel
	requests       []models.Request
	audits         []models.AuditRecord
	escalations    []models.EscalationRecord
	nextWorkflowID int64
	nextRequestID  int64
	nextRecordID   int64
	lockedRequests map[int64]bool
}

// mockStore implements Store with in-memory storage.
type mockStore struct {
	state *mockState
	inTx  bool
	held  []int64 // request locks owned by this transaction
	done  bool    // committed or rolled back
}

// NewMockStore returns an in-memory Store for tests and examples.
func NewMockStore() Store {
	return &mockStore{state: &mockState{lockedRequests: make(map[int64]bool)}}
}

func (m *mockStore) Begin() (Store, error) {
	return &mockStore{state: m.state, inTx: true}, nil
}

func (m *mockStore) Commit() error {
	if !m.inTx {
		return errors.New("cannot commit: not a transaction")
	}
	if m.done {
		return errors.New("transaction already finished")
	}
	m.releaseLocks()
	m.done = true
	return nil
}

func (m *mockStore) Rollback() error {
	if !m.inTx {
		return errors.New("cannot rollback: not a transaction")
	}
	if m.done {
		return errors.New("transaction already finished")
	}
	// Data changes are not unwound; tests that need isolation use fresh stores.
	m.releaseLocks()
	m.done = true
	return nil
}

func (m *mockStore) Close() error {
	return nil
}

func (m *mockStore) releaseLocks() {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	for _, id := range m.held {
		delete(m.state.lockedRequests, id)
	}
	m.held = nil
}

func (m *mockStore) SaveWorkflow(w models.Workflow) (int64, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	m.state.nextWorkflowID++
	w.ID = m.state.nextWorkflowID
	for i := range w.Levels {
		w.Levels[i].WorkflowID = w.ID
	}
	m.state.levels = append(m.state.levels, w.Levels...)
	m.state.workflows = append(m.state.workflows, w)
	return w.ID, nil
}

func (m *mockStore) GetWorkflow(id int64) (models.Workflow, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	for _, w := range m.state.workflows {
		if w.ID == id {
			w.Levels = nil
			for _, l := range m.state.levels {
				if l.WorkflowID == id {
					w.Levels = append(w.Levels, l)
				}
			}
			sort.Slice(w.Levels, func(i, j int) bool { return w.Levels[i].LevelNo < w.Levels[j].LevelNo })
			return w, nil
		}
	}
	return models.Workflow{}, ErrNotFound
}

func (m *mockStore) ListWorkflows() ([]models.Workflow, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	out := make([]models.Workflow, len(m.state.workflows))
	copy(out, m.state.workflows)
	return out, nil
}

func (m *mockStore) SaveRequest(r models.Request) (int64, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	m.state.nextRequestID++
	r.ID = m.state.nextRequestID
	m.state.requests = append(m.state.requests, r)
	return r.ID, nil
}

func (m *mockStore) GetRequest(id int64) (models.Request, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	for _, r := range m.state.requests {
		if r.ID == id {
			return r, nil
		}
	}
	return models.Request{}, ErrNotFound
}

func (m *mockStore) GetRequestForUpdate(id int64) (models.Request, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	for _, r := range m.state.requests {
		if r.ID == id {
			if m.state.lockedRequests[id] {
				return models.Request{}, ErrLocked
			}
			m.state.lockedRequests[id] = true
			m.held = append(m.held, id)
			return r, nil
		}
	}
	return models.Request{}, ErrNotFound
}

func (m *mockStore) UpdateRequest(r models.Request) error {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	for i := range m.state.requests {
		if m.state.requests[i].ID == r.ID {
			m.state.requests[i] = r
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) ListRequestsByInitiator(initiatorID int64) ([]models.Request, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	var out []models.Request
	for _, r := range m.state.requests {
		if r.InitiatorID == initiatorID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStore) ListRequestsByLevel(status models.RequestStatus, level int) ([]models.Request, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	var out []models.Request
	for _, r := range m.state.requests {
		if r.Status == status && r.CurrentLevel == level {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStore) ListAwaitingRequests() ([]models.Request, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	var out []models.Request
	for _, r := range m.state.requests {
		if r.Status.IsAwaitingAction() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStore) SaveAuditRecord(rec models.AuditRecord) error {
	if rec.RequestID == 0 || rec.Action == "" || rec.ActionAt.IsZero() {
		return errors.New("audit record missing required fields")
	}
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	m.state.nextRecordID++
	rec.ID = m.state.nextRecordID
	m.state.audits = append(m.state.audits, rec)
	return nil
}

func (m *mockStore) ListAuditRecords(requestID int64) ([]models.AuditRecord, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	var out []models.AuditRecord
	for _, rec := range m.state.audits {
		if rec.RequestID == requestID {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ActionAt.Before(out[j].ActionAt) })
	return out, nil
}

func (m *mockStore) SaveEscalationRecord(rec models.EscalationRecord) error {
	if rec.RequestID == 0 || rec.Action == "" || rec.ActionAt.IsZero() {
		return errors.New("escalation record missing required fields")
	}
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	m.state.nextRecordID++
	rec.ID = m.state.nextRecordID
	m.state.escalations = append(m.state.escalations, rec)
	return nil
}

func (m *mockStore) ListEscalationRecords(requestID int64) ([]models.EscalationRecord, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	var out []models.EscalationRecord
	for _, rec := range m.state.escalations {
		if rec.RequestID == requestID {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ActionAt.Before(out[j].ActionAt) })
	return out, nil
}
