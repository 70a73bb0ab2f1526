package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Lexcubia/EM-automate/internal/backend"
	"github.com/Lexcubia/EM-automate/internal/domain"
	"github.com/Lexcubia/EM-automate/internal/events"
	"github.com/Lexcubia/EM-automate/internal/logger"
	"github.com/Lexcubia/EM-automate/internal/queue"
	"github.com/google/uuid"
)

// Controller drives the run lifecycle against the execution backend and is
// the single point of truth for whether a run is active. It owns the
// progress snapshot exclusively; the queue manager never touches it, and
// outside consumers read it only through Status().
type Controller struct {
	mu        sync.Mutex
	state     domain.ControllerState
	snapshot  domain.ProgressSnapshot
	lastErr   error
	runID     string
	runTotal  int
	startedAt time.Time
	ticket    *Ticket

	queue    *queue.Manager
	backend  backend.Client
	poller   *Poller
	history  *HistoryService
	rec      *Reconciler
	hub      *events.Hub
	notifier Notifier
	logger   *logger.Logger
}

// ControllerOptions holds optional collaborators.
type ControllerOptions struct {
	Hub      *events.Hub
	Notifier Notifier
	Logger   *logger.Logger
}

// NewController wires the controller with its reconciler. The queue manager
// should be bound to the returned controller as its mutation guard.
func NewController(
	q *queue.Manager,
	client backend.Client,
	poller *Poller,
	history *HistoryService,
	opts *ControllerOptions,
) *Controller {
	if opts == nil {
		opts = &ControllerOptions{}
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetDefault()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = NewLogNotifier(log)
	}

	c := &Controller{
		state:    domain.StateIdle,
		queue:    q,
		backend:  client,
		poller:   poller,
		history:  history,
		hub:      opts.Hub,
		notifier: notifier,
		logger:   log,
	}
	c.rec = newReconciler(c)
	return c
}

// Idle implements queue.Guard: queue mutations are allowed only while no
// run is active.
func (c *Controller) Idle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == domain.StateIdle
}

// State returns the current controller state.
func (c *Controller) State() domain.ControllerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Progress returns a copy of the current progress snapshot.
func (c *Controller) Progress() domain.ProgressSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// LastError returns the most recent run-level error, cleared on start().
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// RunStatus is the read-only status document exposed to UI consumers.
type RunStatus struct {
	State     domain.ControllerState  `json:"state"`
	RunID     string                  `json:"run_id,omitempty"`
	Snapshot  domain.ProgressSnapshot `json:"snapshot"`
	LastError string                  `json:"last_error,omitempty"`
}

// Status returns the combined run status document.
func (c *Controller) Status() RunStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	status := RunStatus{
		State:    c.state,
		RunID:    c.runID,
		Snapshot: c.snapshot,
	}
	if c.lastErr != nil {
		status.LastError = c.lastErr.Error()
	}
	return status
}

// Start submits the queue and begins polling. Valid only from idle with a
// non-empty queue; on backend rejection or transport failure the controller
// surfaces the error and settles back to idle without starting the poller.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != domain.StateIdle {
		c.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	c.state = domain.StateStarting
	c.mu.Unlock()

	// The queue takes its own lock and then consults the guard, which takes
	// c.mu; it must never be called while c.mu is held. Entering starting
	// above already locks the queue against mutations, so the reads below
	// see a stable queue.
	jobs := c.queue.Jobs()
	if len(jobs) == 0 {
		c.mu.Lock()
		c.state = domain.StateIdle
		c.mu.Unlock()
		return domain.ErrEmptyQueue
	}
	total := c.queue.TotalRuns()
	c.queue.ResetStatuses()

	runID := uuid.NewString()
	c.mu.Lock()
	c.lastErr = nil
	c.runID = runID
	c.runTotal = total
	c.startedAt = time.Now().UTC()
	c.snapshot = domain.ProgressSnapshot{
		Current:     0,
		Total:       total,
		StatusLabel: domain.StatusLabelPreparing,
		IsRunning:   true,
	}
	c.mu.Unlock()

	ctx = logger.SetRunID(ctx, runID)
	c.publishState(domain.StateStarting)
	c.log(ctx).WithFields(logger.Fields{
		logger.FieldRunID: runID,
		logger.FieldCount: total,
	}).Infof("Submitting queue of %d jobs", len(jobs))

	result, err := c.backend.SubmitQueue(ctx, jobs)
	if err != nil {
		c.log(ctx).WithError(err).Error("Queue submission failed")
		c.fail(err)
		return err
	}

	c.mu.Lock()
	c.state = domain.StateRunning
	// Poller lifetime is tied to the run, not to the start request.
	pollCtx := logger.SetRunID(context.Background(), runID)
	c.ticket = c.poller.Start(pollCtx, c.rec.Apply, c.exhausted)
	c.mu.Unlock()

	c.queue.ApplyProgress(0)
	runsStartedTotal.Inc()
	runActive.Set(1)
	c.publishState(domain.StateRunning)
	message := "Run started"
	if result.Message != "" {
		message += ": " + result.Message
	}
	c.notify(SeverityInfo, message)
	return nil
}

// Stop aborts the active run. Best-effort: local state settles to idle even
// when the backend is slow or unreachable. Calling stop when already idle
// is a no-op.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case domain.StateIdle, domain.StateStopping:
		c.mu.Unlock()
		return nil
	case domain.StateRunning:
	default:
		c.mu.Unlock()
		return domain.ErrNotRunning
	}
	c.state = domain.StateStopping
	ticket := c.ticket
	c.ticket = nil
	c.mu.Unlock()

	c.publishState(domain.StateStopping)
	if ticket != nil {
		// No poll may be issued, and no in-flight response applied, after
		// stop() returns.
		ticket.Cancel()
	}

	if ack, err := c.backend.Stop(ctx); err != nil {
		c.log(ctx).WithError(err).Warn("Backend stop request failed; settling locally")
		c.notify(SeverityWarning, "Backend did not acknowledge stop: "+err.Error())
	} else if !ack {
		c.log(ctx).Warn("Backend declined stop request; settling locally")
	}

	c.mu.Lock()
	c.snapshot.StatusLabel = domain.StatusLabelStopped
	c.snapshot.IsRunning = false
	snap := c.snapshot
	duration := time.Since(c.startedAt)
	runID := c.runID
	c.state = domain.StateIdle
	c.mu.Unlock()

	c.queue.FinishRun(domain.JobStatusPending)
	runsStoppedTotal.Inc()
	runActive.Set(0)

	if c.history != nil {
		record := c.newRunRecord(runID, snap, domain.StatusLabelStopped, duration)
		c.history.Record(context.WithoutCancel(ctx), record)
	}

	c.publishState(domain.StateIdle)
	c.publishProgress(snap)
	c.notify(SeverityInfo, "Run stopped")
	return nil
}

// Pause forwards a pause request to the backend. The controller stays in
// the running state: suspension is a backend-internal condition, not a
// queue-ownership change.
func (c *Controller) Pause(ctx context.Context) error {
	return c.forward(ctx, "pause", domain.StatusLabelPaused, c.backend.Pause)
}

// Resume forwards a resume request to the backend.
func (c *Controller) Resume(ctx context.Context) error {
	return c.forward(ctx, "resume", domain.StatusLabelRunning, c.backend.Resume)
}

func (c *Controller) forward(
	ctx context.Context,
	op, label string,
	call func(context.Context) (bool, error),
) error {
	c.mu.Lock()
	if c.state != domain.StateRunning {
		c.mu.Unlock()
		return domain.ErrNotRunning
	}
	c.mu.Unlock()

	ack, err := call(ctx)
	if err != nil {
		c.log(ctx).WithError(err).Warnf("Backend %s request failed", op)
		c.notify(SeverityWarning, "Backend "+op+" request failed: "+err.Error())
		return err
	}
	if !ack {
		// Best-effort forwarding: an unsupported pause/resume is surfaced
		// as a warning without changing local state.
		c.notify(SeverityWarning, "Backend does not support "+op+" for the active routine")
		return nil
	}

	c.mu.Lock()
	if c.state == domain.StateRunning {
		c.snapshot.StatusLabel = label
	}
	snap := c.snapshot
	c.mu.Unlock()

	c.publishProgress(snap)
	return nil
}

// fail surfaces a run-level error and settles the controller back to idle.
// The error state is transient: it is published so observers see it, then
// the controller returns to idle so the operator can retry.
func (c *Controller) fail(err error) {
	runsFailedTotal.Inc()
	c.mu.Lock()
	c.lastErr = err
	c.state = domain.StateError
	ticket := c.ticket
	c.ticket = nil
	c.snapshot.StatusLabel = domain.StatusLabelFailed
	c.snapshot.IsRunning = false
	c.mu.Unlock()

	if ticket != nil {
		ticket.Cancel()
	}
	c.publishState(domain.StateError)
	c.notify(SeverityError, err.Error())

	c.mu.Lock()
	c.state = domain.StateIdle
	c.mu.Unlock()

	c.queue.FinishRun(domain.JobStatusPending)
	runActive.Set(0)
	c.publishState(domain.StateIdle)
}

// exhausted is invoked by the poller when consecutive failures exceed the
// threshold. The run is considered lost; the operator must retry manually.
func (c *Controller) exhausted(err error) {
	c.mu.Lock()
	if c.state != domain.StateRunning {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.logger.WithError(err).Error("Progress polling exhausted; abandoning run")
	c.fail(err)
}

func (c *Controller) notify(severity, message string) {
	c.notifier.Notify(severity, message)
	if c.hub != nil {
		c.hub.Broadcast(events.Event{
			Type:     events.TypeNotice,
			Severity: severity,
			Message:  message,
		})
	}
}

func (c *Controller) publishState(state domain.ControllerState) {
	if c.hub == nil {
		return
	}
	snap := c.Progress()
	c.hub.Broadcast(events.Event{
		Type:     events.TypeState,
		State:    state,
		Snapshot: &snap,
	})
}

func (c *Controller) publishProgress(snap domain.ProgressSnapshot) {
	if c.hub == nil {
		return
	}
	c.hub.Broadcast(events.Event{
		Type:     events.TypeProgress,
		Snapshot: &snap,
	})
}

// newRunRecord captures the terminal snapshot as an immutable history
// record. Job summaries are taken from the queue, which cannot have been
// mutated while the run was active.
func (c *Controller) newRunRecord(
	runID string,
	snap domain.ProgressSnapshot,
	status string,
	duration time.Duration,
) *domain.RunRecord {
	jobs := c.queue.Jobs()

	summaries := make(domain.RunJobSummaries, 0, len(jobs))
	names := make([]string, 0, len(jobs))
	leadJobID := ""
	for i, job := range jobs {
		if i == 0 {
			leadJobID = job.ID
		}
		summaries = append(summaries, domain.RunJobSummary{
			JobID:    job.ID,
			Name:     job.Name,
			RunCount: job.RunCount,
			Status:   job.Status,
		})
		names = append(names, job.Name)
	}

	return &domain.RunRecord{
		ID:         runID,
		JobID:      leadJobID,
		Name:       strings.Join(names, ", "),
		Status:     status,
		Current:    snap.Current,
		Total:      snap.Total,
		DurationMs: duration.Milliseconds(),
		Jobs:       summaries,
		Result: domain.JSONMap{
			"status_label": snap.StatusLabel,
			"current":      snap.Current,
			"total":        snap.Total,
		},
		CreatedAt: time.Now().UTC(),
	}
}

func (c *Controller) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return c.logger
}
