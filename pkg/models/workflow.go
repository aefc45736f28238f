package models

import "time"

type WorkflowStatus string

const (
	ActiveWorkflowStatus   WorkflowStatus = "ACTIVE"
	DisabledWorkflowStatus WorkflowStatus = "DISABLED"
)

// Workflow is a finalized approval chain definition. The engine only reads
// it; authoring and updating definitions happens outside this service.
type Workflow struct {
	ID          int64           `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description,omitempty" db:"description"`
	Status      WorkflowStatus  `json:"status" db:"status"`
	CreatedBy   string          `json:"created_by,omitempty" db:"created_by"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	Levels      []ApprovalLevel `json:"levels,omitempty"` // ordered by level_no (populated at read time)
}

// ApprovalLevel is one stage of a workflow: a role that must act within its
// escalation window. Levels are value records owned by the workflow; level_no
// is contiguous starting at 1.
type ApprovalLevel struct {
	WorkflowID      int64  `json:"workflow_id" db:"workflow_id"`
	LevelNo         int    `json:"level_no" db:"level_no"`
	Role            string `json:"role" db:"role"`
	EscalationHours int    `json:"escalation_hours" db:"escalation_hours"`
}

// EscalationTimeout returns the level's SLA window as a duration. Deadlines
// are compared as absolute instants, never as truncated elapsed-hour counts.
func (l ApprovalLevel) EscalationTimeout() time.Duration {
	return time.Duration(l.EscalationHours) * time.Hour
}

// Level returns the approval level with the given number, if present.
func (w Workflow) Level(levelNo int) (ApprovalLevel, bool) {
	for _, l := range w.Levels {
		if l.LevelNo == levelNo {
			return l, true
		}
	}
	return ApprovalLevel{}, false
}

// NextLevel returns the level number following current, if the workflow has
// one. Approve and escalate both route through this so they can never
// disagree on what counts as the last level.
func (w Workflow) NextLevel(current int) (int, bool) {
	if _, ok := w.Level(current + 1); ok {
		return current + 1, true
	}
	return 0, false
}

// IsActive reports whether new requests may be submitted against the workflow.
func (w Workflow) IsActive() bool {
	return w.Status == ActiveWorkflowStatus
}
