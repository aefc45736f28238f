package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextLevel(t *testing.T) {
	wf := Workflow{Levels: []ApprovalLevel{
		{LevelNo: 1, Role: "MANAGER", EscalationHours: 2},
		{LevelNo: 2, Role: "FINANCE", EscalationHours: 4},
		{LevelNo: 3, Role: "CFO", EscalationHours: 8},
	}}

	next, ok := wf.NextLevel(1)
	assert.True(t, ok)
	assert.Equal(t, 2, next)

	next, ok = wf.NextLevel(2)
	assert.True(t, ok)
	assert.Equal(t, 3, next)

	_, ok = wf.NextLevel(3)
	assert.False(t, ok)

	_, ok = wf.NextLevel(99)
	assert.False(t, ok)
}

func TestLevelLookup(t *testing.T) {
	wf := Workflow{Levels: []ApprovalLevel{{LevelNo: 1, Role: "MANAGER", EscalationHours: 2}}}

	level, ok := wf.Level(1)
	assert.True(t, ok)
	assert.Equal(t, "MANAGER", level.Role)
	assert.Equal(t, 2*time.Hour, level.EscalationTimeout())

	_, ok = wf.Level(2)
	assert.False(t, ok)
}

func TestRequestStatusPredicates(t *testing.T) {
	assert.True(t, ApprovedRequestStatus.IsTerminal())
	assert.True(t, RejectedRequestStatus.IsTerminal())
	assert.False(t, PendingRequestStatus.IsTerminal())
	assert.False(t, EscalatedRequestStatus(1).IsTerminal())

	assert.True(t, PendingRequestStatus.IsAwaitingAction())
	assert.True(t, EscalatedRequestStatus(1).IsAwaitingAction())
	assert.True(t, EscalatedRequestStatus(7).IsAwaitingAction())
	assert.False(t, ApprovedRequestStatus.IsAwaitingAction())
	assert.False(t, RejectedRequestStatus.IsAwaitingAction())

	assert.Equal(t, RequestStatus("ESCALATED_2"), EscalatedRequestStatus(2))
}
