package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Lexcubia/EM-automate/internal/domain"
	"github.com/Lexcubia/EM-automate/internal/logger"
)

// Reconciler merges backend-reported progress into controller state and
// detects run termination. The backend is authoritative for every snapshot
// field once a run has started, with two local guards: the run total
// recorded at start is never overwritten, and the completed-run counter
// never regresses.
type Reconciler struct {
	ctrl *Controller
}

func newReconciler(c *Controller) *Reconciler {
	return &Reconciler{ctrl: c}
}

// Merge reconciles the local snapshot with an incoming one. It returns the
// merged snapshot and whether the incoming total conflicted with the run
// total recorded at start.
func Merge(local, incoming domain.ProgressSnapshot, runTotal int) (domain.ProgressSnapshot, bool) {
	merged := incoming

	// The local total is the progress-bar denominator; a disagreeing
	// backend total is a warning, not an overwrite.
	conflict := incoming.Total != 0 && incoming.Total != runTotal
	merged.Total = runTotal

	// current is monotonically non-decreasing within one run.
	if merged.Current < local.Current {
		merged.Current = local.Current
	}

	return merged, conflict
}

// Apply is the poller's delivery callback. Snapshots arriving after the run
// has left the running state, including any in flight at the moment of
// cancellation, are dropped.
func (r *Reconciler) Apply(ctx context.Context, snap *domain.ProgressSnapshot) {
	c := r.ctrl

	c.mu.Lock()
	if c.state != domain.StateRunning {
		c.mu.Unlock()
		c.log(ctx).WithField(logger.FieldState, string(c.State())).
			Debug("Dropping late progress snapshot")
		return
	}

	merged, conflict := Merge(c.snapshot, *snap, c.runTotal)
	c.snapshot = merged

	if !merged.IsTerminal() {
		c.mu.Unlock()
		if conflict {
			c.log(ctx).WithFields(logger.Fields{
				"local_total":    merged.Total,
				"reported_total": snap.Total,
			}).Warn("Backend reported a different run total; keeping local value")
		}
		c.queue.ApplyProgress(merged.Current)
		c.publishProgress(merged)
		return
	}

	// Terminal snapshot: this reconciliation ends the run.
	ticket := c.ticket
	c.ticket = nil
	failed := merged.Failed()
	duration := time.Since(c.startedAt)
	runID := c.runID
	if failed {
		c.lastErr = fmt.Errorf("backend reported run failure")
		c.state = domain.StateError
	} else {
		c.state = domain.StateIdle
	}
	c.mu.Unlock()

	if ticket != nil {
		ticket.Cancel()
	}

	finalStatus := merged.StatusLabel
	jobTerminal := domain.JobStatusCompleted
	switch finalStatus {
	case domain.StatusLabelFailed:
		jobTerminal = domain.JobStatusFailed
	case domain.StatusLabelStopped:
		jobTerminal = domain.JobStatusPending
	case domain.StatusLabelCompleted:
	default:
		// is_running went false without a terminal label; treat as completed
		finalStatus = domain.StatusLabelCompleted
	}
	c.queue.FinishRun(jobTerminal)

	switch {
	case failed:
		runsFailedTotal.Inc()
		c.publishState(domain.StateError)
		c.notify(SeverityError, "Run failed")
		c.mu.Lock()
		c.state = domain.StateIdle
		c.mu.Unlock()
	case finalStatus == domain.StatusLabelStopped:
		runsStoppedTotal.Inc()
		c.notify(SeverityInfo, "Run stopped by backend")
	default:
		runsCompletedTotal.Inc()
		c.notify(SeverityInfo, "Run completed")
	}
	runActive.Set(0)

	c.log(ctx).WithFields(logger.Fields{
		logger.FieldRunID:      runID,
		logger.FieldStatus:     finalStatus,
		logger.FieldDurationMs: duration.Milliseconds(),
	}).Infof("Run finished: %d/%d", merged.Current, merged.Total)

	if c.history != nil {
		// Detached context: the poll context that carried this snapshot is
		// being cancelled along with the ticket.
		record := c.newRunRecord(runID, merged, finalStatus, duration)
		c.history.Record(context.WithoutCancel(ctx), record)
	}

	c.publishState(domain.StateIdle)
	c.publishProgress(merged)
}
