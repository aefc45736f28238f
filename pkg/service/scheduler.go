package service

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Deepaks31/Workflow-Automation-Engine/pkg/models"
)

const (
	// DefaultSweepInterval matches the reference 60s escalation cadence.
	DefaultSweepInterval = 60 * time.Second
)

// SweepStats summarizes one sweep for logging and tests.
type SweepStats struct {
	Scanned      int // awaiting requests examined
	Due          int // requests past their level deadline at scan time
	Escalated    int // advanced to the next level
	AutoRejected int // terminated at the last level
	Deferred     int // lock contention or stale deadline, retried next tick
	Skipped      int // bad rows (missing workflow/level) or per-item errors
}

// EscalationScheduler periodically sweeps awaiting requests and escalates the
// ones whose current level has exceeded its timeout. One sweep owns the full
// scan; individual transitions are fanned out to workers, with the per-request
// row lock keeping them safe against interactive approve/reject calls.
//
// Ticks never overlap: a tick that fires while a sweep is still running is
// skipped, not queued.
type EscalationScheduler struct {
	svc      *RequestService
	clock    Clock
	logger   Logger
	interval time.Duration
	workers  int

	ctx      context.Context
	stopCh   chan struct{}
	doneCh   chan struct{}
	sweeping atomic.Bool
	startMu  sync.Mutex
	started  bool
}

func NewEscalationScheduler(ctx context.Context, svc *RequestService, interval time.Duration, workers int, logger Logger) *EscalationScheduler {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &EscalationScheduler{
		svc:      svc,
		clock:    svc.clock,
		logger:   logger,
		interval: interval,
		workers:  workers,
		ctx:      ctx,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the ticking loop. Calling Start twice is a no-op.
func (es *EscalationScheduler) Start() {
	es.startMu.Lock()
	defer es.startMu.Unlock()
	if es.started {
		return
	}
	es.started = true

	go func() {
		defer close(es.doneCh)
		ticker := time.NewTicker(es.interval)
		defer ticker.Stop()
		es.logger.Infof("Escalation scheduler started (interval %s, %d workers)", es.interval, es.workers)
		for {
			select {
			case <-ticker.C:
				es.RunSweep()
			case <-es.ctx.Done():
				es.logger.Infof("Escalation scheduler stopping: %v", es.ctx.Err())
				return
			case <-es.stopCh:
				return
			}
		}
	}()
}

// Stop signals the loop to exit and waits for it. An in-flight sweep finishes
// its current request and then aborts between items; it is never interrupted
// mid-transition.
func (es *EscalationScheduler) Stop() {
	es.startMu.Lock()
	defer es.startMu.Unlock()
	if !es.started {
		return
	}
	close(es.stopCh)
	<-es.doneCh
	es.started = false
	es.logger.Infof("Escalation scheduler stopped")
}

// RunSweep executes one full sweep immediately. Safe to call while the
// scheduler is ticking; an overlapping call is skipped.
func (es *EscalationScheduler) RunSweep() SweepStats {
	if !es.sweeping.CompareAndSwap(false, true) {
		es.logger.Warnf("Skipping sweep: previous sweep still running")
		return SweepStats{}
	}
	defer es.sweeping.Store(false)

	sweepID := uuid.NewString()[:8]
	now := es.clock.Now()

	requests, err := es.svc.store.ListAwaitingRequests()
	if err != nil {
		es.logger.Errorf("Sweep %s: failed to list awaiting requests: %v", sweepID, err)
		return SweepStats{}
	}

	stats := SweepStats{Scanned: len(requests)}
	due := es.collectDue(sweepID, requests, now, &stats)
	stats.Due = len(due)
	if len(due) > 0 {
		es.processDue(sweepID, due, now, &stats)
	}

	es.logger.Infof("Sweep %s: scanned=%d due=%d escalated=%d auto_rejected=%d deferred=%d skipped=%d",
		sweepID, stats.Scanned, stats.Due, stats.Escalated, stats.AutoRejected, stats.Deferred, stats.Skipped)
	return stats
}

// collectDue resolves each awaiting request against its workflow level and
// keeps the ones past their deadline. Bad rows are reported and skipped; one
// broken request must never sink the sweep.
func (es *EscalationScheduler) collectDue(sweepID string, requests []models.Request, now time.Time, stats *SweepStats) []models.Request {
	workflows := make(map[int64]models.Workflow)
	var due []models.Request
	for _, req := range requests {
		if es.stopRequested() {
			es.logger.Infof("Sweep %s: aborting scan, shutdown requested", sweepID)
			break
		}
		wf, ok := workflows[req.WorkflowID]
		if !ok {
			var err error
			wf, err = es.svc.store.GetWorkflow(req.WorkflowID)
			if err != nil {
				es.logger.Warnf("Sweep %s: request %d references missing workflow %d, skipping: %v",
					sweepID, req.ID, req.WorkflowID, err)
				stats.Skipped++
				continue
			}
			workflows[req.WorkflowID] = wf
		}
		level, ok := wf.Level(req.CurrentLevel)
		if !ok {
			// Upstream data defect: the level invariant has already been broken.
			es.logger.Errorf("Sweep %s: request %d is at level %d but workflow %d has no such level",
				sweepID, req.ID, req.CurrentLevel, wf.ID)
			stats.Skipped++
			continue
		}
		if !now.Before(req.LastActionAt.Add(level.EscalationTimeout())) {
			due = append(due, req)
		}
	}
	return due
}

// processDue fans the overdue requests out to workers. Each transition takes
// its own row lock, so parallelism across distinct requests is safe.
func (es *EscalationScheduler) processDue(sweepID string, due []models.Request, now time.Time, stats *SweepStats) {
	var escalated, autoRejected, deferred, skipped atomic.Int64

	workers := es.workers
	if workers > len(due) {
		workers = len(due)
	}
	reqCh := make(chan models.Request)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range reqCh {
				es.escalateOne(sweepID, req, now, &escalated, &autoRejected, &deferred, &skipped)
			}
		}()
	}

feed:
	for _, req := range due {
		select {
		case reqCh <- req:
		case <-es.ctx.Done():
			break feed
		case <-es.stopCh:
			es.logger.Infof("Sweep %s: aborting dispatch, shutdown requested", sweepID)
			break feed
		}
	}
	close(reqCh)
	wg.Wait()

	stats.Escalated = int(escalated.Load())
	stats.AutoRejected = int(autoRejected.Load())
	stats.Deferred = int(deferred.Load())
	stats.Skipped += int(skipped.Load())
}

func (es *EscalationScheduler) escalateOne(sweepID string, req models.Request, now time.Time,
	escalated, autoRejected, deferred, skipped *atomic.Int64) {

	action, err := es.svc.escalateRequest(req.ID, now)
	switch {
	case err == nil && action == models.EscalatedAuditAction:
		escalated.Add(1)
	case err == nil && action == models.AutoRejectedAuditAction:
		autoRejected.Add(1)
	case err == nil:
		// Deadline no longer due once re-checked under the lock.
		deferred.Add(1)
	case errors.Is(err, ErrConflict):
		// Another transition holds the row; the next tick re-evaluates it.
		es.logger.Infof("Sweep %s: request %d locked by concurrent transition, deferring", sweepID, req.ID)
		deferred.Add(1)
	case errors.Is(err, ErrInvalidState):
		// Lost the race to an interactive decision; nothing left to do.
		es.logger.Infof("Sweep %s: request %d finalized before escalation: %v", sweepID, req.ID, err)
		deferred.Add(1)
	case errors.Is(err, ErrInvalidLevel):
		es.logger.Errorf("Sweep %s: data-consistency violation on request %d: %v", sweepID, req.ID, err)
		skipped.Add(1)
	default:
		es.logger.Errorf("Sweep %s: failed to escalate request %d: %v", sweepID, req.ID, err)
		skipped.Add(1)
	}
}

func (es *EscalationScheduler) stopRequested() bool {
	select {
	case <-es.ctx.Done():
		return true
	case <-es.stopCh:
		return true
	default:
		return false
	}
}
