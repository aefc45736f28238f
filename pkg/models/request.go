package models

import (
	"fmt"
	"strings"
	"time"
)

type RequestStatus string

const (
	PendingRequestStatus  RequestStatus = "PENDING"
	ApprovedRequestStatus RequestStatus = "APPROVED"
	RejectedRequestStatus RequestStatus = "REJECTED"

	// escalatedStatusPrefix marks a request that the scheduler bumped to the
	// next level. ESCALATED_<n> records the level the request left; the
	// request otherwise behaves exactly like PENDING at its new level.
	escalatedStatusPrefix = "ESCALATED_"
)

// EscalatedRequestStatus builds the transient marker status for a request
// escalated away from fromLevel.
func EscalatedRequestStatus(fromLevel int) RequestStatus {
	return RequestStatus(fmt.Sprintf("%s%d", escalatedStatusPrefix, fromLevel))
}

// IsTerminal reports whether the status permits no further transitions.
func (s RequestStatus) IsTerminal() bool {
	return s == ApprovedRequestStatus || s == RejectedRequestStatus
}

// IsAwaitingAction reports whether the request is still sitting at some
// level waiting for a decision: plain PENDING or any ESCALATED_<n> marker.
func (s RequestStatus) IsAwaitingAction() bool {
	return s == PendingRequestStatus || strings.HasPrefix(string(s), escalatedStatusPrefix)
}

// Request is one business request travelling through a workflow's approval
// levels. It is mutated exclusively by the lifecycle engine and never
// physically deleted here.
type Request struct {
	ID           int64         `json:"id" db:"id"`
	WorkflowID   int64         `json:"workflow_id" db:"workflow_id"` // immutable after creation
	InitiatorID  int64         `json:"initiator_id" db:"initiator_id"`
	Status       RequestStatus `json:"status" db:"status"`
	CurrentLevel int           `json:"current_level" db:"current_level"`
	ApprovedBy   *int64        `json:"approved_by,omitempty" db:"approved_by"`
	Remarks      string        `json:"remarks,omitempty" db:"remarks"`
	Payload      []byte        `json:"payload,omitempty" db:"payload"` // opaque to the engine, stored verbatim
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	LastActionAt time.Time     `json:"last_action_at" db:"last_action_at"` // escalation clock reference point
}
