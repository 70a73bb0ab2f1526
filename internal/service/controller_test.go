package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Lexcubia/EM-automate/internal/domain"
)

func TestControllerStartEmptyQueue(t *testing.T) {
	rig := newTestRig(t, nil)

	err := rig.ctrl.Start(context.Background())
	if !errors.Is(err, domain.ErrEmptyQueue) {
		t.Fatalf("expected ErrEmptyQueue, got %v", err)
	}
	if got := rig.ctrl.State(); got != domain.StateIdle {
		t.Errorf("expected controller to stay idle, got %q", got)
	}
	if rig.backend.submitCalls != 0 {
		t.Errorf("expected no submission, got %d", rig.backend.submitCalls)
	}
}

func TestControllerStartWhileRunning(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.addJob(t, "alpha", 1)

	if err := rig.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := rig.ctrl.Start(context.Background()); !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	rig.ctrl.Stop(context.Background())
}

func TestControllerRunToCompletion(t *testing.T) {
	fb := &fakeBackend{
		snapshots: []domain.ProgressSnapshot{
			{Current: 1, Total: 3, StatusLabel: domain.StatusLabelRunning, IsRunning: true},
			{Current: 2, Total: 3, StatusLabel: domain.StatusLabelRunning, IsRunning: true},
			{Current: 3, Total: 3, StatusLabel: domain.StatusLabelCompleted, IsRunning: false},
		},
	}
	rig := newTestRig(t, fb)
	rig.addJob(t, "alpha", 3)

	if err := rig.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := rig.ctrl.Progress()
	if snap.Current != 0 || snap.Total != 3 || !snap.IsRunning {
		t.Errorf("unexpected initial snapshot: %+v", snap)
	}
	if snap.StatusLabel != domain.StatusLabelPreparing {
		t.Errorf("expected preparing label, got %q", snap.StatusLabel)
	}

	waitFor(t, time.Second, "run to complete", func() bool {
		return rig.ctrl.State() == domain.StateIdle && rig.store.count() == 1
	})

	snap = rig.ctrl.Progress()
	if snap.Current != 3 || snap.Total != 3 || snap.IsRunning {
		t.Errorf("unexpected terminal snapshot: %+v", snap)
	}

	record := rig.store.last()
	if record.Status != domain.StatusLabelCompleted {
		t.Errorf("expected completed record, got %q", record.Status)
	}
	if record.Current != 3 || record.Total != 3 {
		t.Errorf("unexpected record progress: %d/%d", record.Current, record.Total)
	}
	if len(record.Jobs) != 1 || record.Jobs[0].Status != domain.JobStatusCompleted {
		t.Errorf("unexpected record job summary: %+v", record.Jobs)
	}

	for _, job := range rig.manager.Jobs() {
		if job.Status != domain.JobStatusCompleted {
			t.Errorf("expected job %s completed, got %q", job.ID, job.Status)
		}
	}
}

func TestControllerStopSettlesLocally(t *testing.T) {
	fb := &fakeBackend{
		stopErr: &domain.TransportError{Op: "stop", Err: errors.New("connection refused")},
	}
	rig := newTestRig(t, fb)
	rig.addJob(t, "alpha", 2)
	rig.addJob(t, "beta", 2)

	if err := rig.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, time.Second, "controller running", func() bool {
		return rig.ctrl.State() == domain.StateRunning
	})

	// Stop must settle to idle even though the backend is unreachable
	if err := rig.ctrl.Stop(context.Background()); err != nil {
		t.Fatalf("expected stop to settle locally, got %v", err)
	}
	if got := rig.ctrl.State(); got != domain.StateIdle {
		t.Errorf("expected idle after stop, got %q", got)
	}

	snap := rig.ctrl.Progress()
	if snap.StatusLabel != domain.StatusLabelStopped || snap.IsRunning {
		t.Errorf("expected frozen stopped snapshot, got %+v", snap)
	}

	// No further polls after stop() has returned
	polled := rig.backend.fetches()
	time.Sleep(30 * time.Millisecond)
	if got := rig.backend.fetches(); got != polled {
		t.Errorf("expected no polls after stop, got %d more", got-polled)
	}

	if rig.store.count() != 1 {
		t.Fatalf("expected one run record, got %d", rig.store.count())
	}
	if record := rig.store.last(); record.Status != domain.StatusLabelStopped {
		t.Errorf("expected stopped record, got %q", record.Status)
	}
}

func TestControllerStopWhenIdleIsNoop(t *testing.T) {
	rig := newTestRig(t, nil)

	if err := rig.ctrl.Stop(context.Background()); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	if rig.backend.stopCalls != 0 {
		t.Errorf("expected no backend stop call, got %d", rig.backend.stopCalls)
	}
	if rig.store.count() != 0 {
		t.Errorf("expected no run record, got %d", rig.store.count())
	}
}

func TestControllerSubmitRejected(t *testing.T) {
	fb := &fakeBackend{
		submitErr: &domain.RejectionError{Detail: "malformed job"},
	}
	rig := newTestRig(t, fb)
	rig.addJob(t, "alpha", 1)

	err := rig.ctrl.Start(context.Background())
	if !domain.IsRejection(err) {
		t.Fatalf("expected rejection error, got %v", err)
	}

	waitFor(t, time.Second, "controller to settle", func() bool {
		return rig.ctrl.State() == domain.StateIdle
	})
	if rig.ctrl.LastError() == nil {
		t.Error("expected last error to be recorded")
	}
	if got := rig.backend.fetches(); got != 0 {
		t.Errorf("expected poller not to start, got %d polls", got)
	}
	if rig.notifier.count() == 0 {
		t.Error("expected the failure to be surfaced to the operator")
	}

	// The queue is editable again after the failed start
	if _, err := rig.manager.Add(domain.JobDraft{Name: "beta", RunCount: 1}); err != nil {
		t.Errorf("expected queue mutation to succeed after failed start, got %v", err)
	}
}

func TestControllerStartConcurrentWithQueueMutations(t *testing.T) {
	rig := newTestRig(t, nil)

	// Start reads the queue and queue mutations consult the controller's
	// guard; hammering both concurrently must never wedge either side.
	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				rig.ctrl.Start(context.Background())
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				rig.manager.Clear()
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				rig.manager.Add(domain.JobDraft{Name: "x", RunCount: 1})
			}
		}()
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("start and queue mutations wedged each other")
	}
	rig.ctrl.Stop(context.Background())
}

func TestControllerQueueLockedDuringRun(t *testing.T) {
	rig := newTestRig(t, nil)
	job := rig.addJob(t, "alpha", 1)

	if err := rig.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := rig.manager.Add(domain.JobDraft{Name: "beta", RunCount: 1}); !errors.Is(err, domain.ErrQueueLocked) {
		t.Errorf("expected ErrQueueLocked for add, got %v", err)
	}
	if err := rig.manager.Remove(job.ID); !errors.Is(err, domain.ErrQueueLocked) {
		t.Errorf("expected ErrQueueLocked for remove, got %v", err)
	}

	rig.ctrl.Stop(context.Background())
}

func TestControllerPauseResume(t *testing.T) {
	fb := &fakeBackend{pauseAck: true, resumeAck: true}
	rig := newTestRig(t, fb)
	rig.addJob(t, "alpha", 1)

	if err := rig.ctrl.Pause(context.Background()); !errors.Is(err, domain.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning before start, got %v", err)
	}

	if err := rig.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := rig.ctrl.Pause(context.Background()); err != nil {
		t.Fatalf("unexpected pause error: %v", err)
	}
	if got := rig.ctrl.State(); got != domain.StateRunning {
		t.Errorf("pause must not change controller state, got %q", got)
	}
	if got := rig.ctrl.Progress().StatusLabel; got != domain.StatusLabelPaused {
		t.Errorf("expected paused label, got %q", got)
	}

	if err := rig.ctrl.Resume(context.Background()); err != nil {
		t.Fatalf("unexpected resume error: %v", err)
	}
	if got := rig.ctrl.Progress().StatusLabel; got != domain.StatusLabelRunning {
		t.Errorf("expected running label, got %q", got)
	}

	rig.ctrl.Stop(context.Background())
}

func TestControllerPauseUnsupported(t *testing.T) {
	fb := &fakeBackend{pauseAck: false}
	rig := newTestRig(t, fb)
	rig.addJob(t, "alpha", 1)

	if err := rig.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := rig.ctrl.Progress().StatusLabel

	if err := rig.ctrl.Pause(context.Background()); err != nil {
		t.Fatalf("unsupported pause should not error, got %v", err)
	}
	if got := rig.ctrl.Progress().StatusLabel; got != before {
		t.Errorf("expected label unchanged %q, got %q", before, got)
	}
	if rig.notifier.count() == 0 {
		t.Error("expected a warning notification for unsupported pause")
	}

	rig.ctrl.Stop(context.Background())
}

func TestControllerPollingExhausted(t *testing.T) {
	fb := &fakeBackend{
		fetchErr: &domain.TransportError{Op: "poll", Err: errors.New("timeout")},
	}
	rig := newTestRig(t, fb)
	rig.addJob(t, "alpha", 1)

	if err := rig.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Poller threshold in the rig is 3 consecutive failures
	waitFor(t, time.Second, "polling exhaustion", func() bool {
		return rig.ctrl.State() == domain.StateIdle && rig.ctrl.LastError() != nil
	})
	if err := rig.ctrl.LastError(); !errors.Is(err, domain.ErrPollingExhausted) {
		t.Fatalf("expected ErrPollingExhausted, got %v", err)
	}
	if got := rig.backend.fetches(); got != 3 {
		t.Errorf("expected exactly 3 poll attempts, got %d", got)
	}

	// The operator can retry manually
	if err := rig.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("expected retry to be possible, got %v", err)
	}
	rig.ctrl.Stop(context.Background())
}

func TestControllerProgressMonotonic(t *testing.T) {
	fb := &fakeBackend{
		snapshots: []domain.ProgressSnapshot{
			{Current: 2, Total: 4, StatusLabel: domain.StatusLabelRunning, IsRunning: true},
			// A stale value must not regress the visible progress
			{Current: 1, Total: 4, StatusLabel: domain.StatusLabelRunning, IsRunning: true},
			{Current: 4, Total: 4, StatusLabel: domain.StatusLabelCompleted, IsRunning: false},
		},
	}
	rig := newTestRig(t, fb)
	rig.addJob(t, "alpha", 4)

	if err := rig.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, time.Second, "run to complete", func() bool {
		return rig.ctrl.State() == domain.StateIdle && rig.store.count() == 1
	})

	if record := rig.store.last(); record.Current != 4 {
		t.Errorf("expected final current 4, got %d", record.Current)
	}
}
