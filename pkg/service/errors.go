package service

import (
	"github.com/pkg/errors"

	"github.com/Deepaks31/Workflow-Automation-Engine/pkg/storage"
)

// Error kinds surfaced by the lifecycle engine. Callers branch with
// errors.Is: retry on ErrConflict, reject the operation on the others.
var (
	// ErrNotFound: the request or its workflow does not exist (or the
	// workflow is not active at submission time).
	ErrNotFound = errors.New("not found")
	// ErrInvalidState: a transition was attempted on a terminal request.
	ErrInvalidState = errors.New("request already finalized")
	// ErrInvalidLevel: the request's current level has no matching workflow
	// level. This is a data-consistency defect, not a caller mistake.
	ErrInvalidLevel = errors.New("no approval level matches request's current level")
	// ErrConflict: a concurrent transition holds the request; the operation
	// did not run. Safe to retry.
	ErrConflict = errors.New("concurrent transition on request")
)

// mapStorageErr translates storage sentinels into the engine's taxonomy,
// leaving genuine storage failures wrapped as-is.
func mapStorageErr(err error, context string) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return errors.Wrap(ErrNotFound, context)
	case errors.Is(err, storage.ErrLocked):
		return errors.Wrap(ErrConflict, context)
	default:
		return errors.Wrap(err, context)
	}
}
