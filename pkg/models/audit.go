package models

import "time"

type AuditAction string

const (
	ApprovedAuditAction     AuditAction = "APPROVED"
	RejectedAuditAction     AuditAction = "REJECTED"
	EscalatedAuditAction    AuditAction = "ESCALATED"
	AutoRejectedAuditAction AuditAction = "AUTO_REJECTED"
)

// AuditRecord is one immutable entry in a request's action trail. Records are
// append-only; "most recent action" is always decided by ActionAt, not by
// insertion id.
type AuditRecord struct {
	ID             int64         `json:"id" db:"id"`
	RequestID      int64         `json:"request_id" db:"request_id"`
	WorkflowID     int64         `json:"workflow_id" db:"workflow_id"`
	LevelNo        int           `json:"level_no" db:"level_no"`
	Role           string        `json:"role" db:"role"`
	ApproverID     *int64        `json:"approver_id,omitempty" db:"approver_id"` // nil for system-driven transitions
	Action         AuditAction   `json:"action" db:"action"`
	PreviousStatus RequestStatus `json:"previous_status" db:"previous_status"`
	NewStatus      RequestStatus `json:"new_status" db:"new_status"`
	Remarks        string        `json:"remarks,omitempty" db:"remarks"`
	ActionAt       time.Time     `json:"action_at" db:"action_at"`
}

// EscalationRecord tracks a single scheduler-driven transition. ToLevel is 0
// when the sweep auto-rejected the request instead of advancing it.
type EscalationRecord struct {
	ID        int64       `json:"id" db:"id"`
	RequestID int64       `json:"request_id" db:"request_id"`
	FromLevel int         `json:"from_level" db:"from_level"`
	ToLevel   int         `json:"to_level,omitempty" db:"to_level"`
	Action    AuditAction `json:"action" db:"action"` // ESCALATED or AUTO_REJECTED
	Reason    string      `json:"reason,omitempty" db:"reason"`
	ActionAt  time.Time   `json:"action_at" db:"action_at"`
}
