package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Lexcubia/EM-automate/internal/backend"
	"github.com/Lexcubia/EM-automate/internal/domain"
	"github.com/Lexcubia/EM-automate/internal/queue"
)

// fakeBackend is a scripted backend.Client. Snapshots are returned in
// order; the last one repeats once the script is exhausted.
type fakeBackend struct {
	mu sync.Mutex

	submitErr    error
	submitResult backend.SubmitResult
	submitCalls  int

	stopAck   bool
	stopErr   error
	stopCalls int

	pauseAck  bool
	pauseErr  error
	resumeAck bool
	resumeErr error

	snapshots  []domain.ProgressSnapshot
	fetchErr   error
	fetchCalls int
	fetchWait  func(ctx context.Context)

	history    []domain.RunRecord
	historyErr error
}

func (f *fakeBackend) SubmitQueue(ctx context.Context, jobs []domain.Job) (*backend.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	result := f.submitResult
	result.Accepted = true
	return &result, nil
}

func (f *fakeBackend) Stop(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return f.stopAck, f.stopErr
}

func (f *fakeBackend) Pause(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pauseAck, f.pauseErr
}

func (f *fakeBackend) Resume(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resumeAck, f.resumeErr
}

func (f *fakeBackend) FetchProgress(ctx context.Context) (*domain.ProgressSnapshot, error) {
	f.mu.Lock()
	wait := f.fetchWait
	f.mu.Unlock()
	if wait != nil {
		wait(ctx)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if len(f.snapshots) == 0 {
		return &domain.ProgressSnapshot{StatusLabel: domain.StatusLabelRunning, IsRunning: true}, nil
	}
	snap := f.snapshots[0]
	if len(f.snapshots) > 1 {
		f.snapshots = f.snapshots[1:]
	}
	return &snap, nil
}

func (f *fakeBackend) FetchHistory(ctx context.Context) ([]domain.RunRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history, f.historyErr
}

func (f *fakeBackend) ClearHistory(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = nil
	return true, nil
}

func (f *fakeBackend) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

// fakeStore is an in-memory HistoryStore.
type fakeStore struct {
	mu      sync.Mutex
	records []domain.RunRecord
}

func (s *fakeStore) Append(ctx context.Context, record *domain.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *record)
	return nil
}

func (s *fakeStore) Upsert(ctx context.Context, record *domain.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == record.ID {
			s.records[i] = *record
			return nil
		}
	}
	s.records = append(s.records, *record)
	return nil
}

func (s *fakeStore) List(ctx context.Context, limit, offset int) ([]domain.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.RunRecord, 0, len(s.records))
	for i := len(s.records) - 1; i >= 0; i-- {
		out = append(out, s.records[i])
	}
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *fakeStore) last() domain.RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[len(s.records)-1]
}

// fakeNotifier records surfaced notifications.
type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Notify(severity, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, severity+": "+message)
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

func (n *fakeNotifier) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.messages) == 0 {
		return ""
	}
	return n.messages[len(n.messages)-1]
}

type testRig struct {
	manager  *queue.Manager
	backend  *fakeBackend
	store    *fakeStore
	notifier *fakeNotifier
	ctrl     *Controller
}

func newTestRig(t *testing.T, fb *fakeBackend) *testRig {
	t.Helper()
	if fb == nil {
		fb = &fakeBackend{}
	}
	manager := queue.NewManager()
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	history := NewHistoryService(store, fb, nil, nil)
	poller := NewPoller(fb, 5*time.Millisecond, 3, nil)
	ctrl := NewController(manager, fb, poller, history, &ControllerOptions{
		Notifier: notifier,
	})
	manager.Bind(ctrl)
	return &testRig{
		manager:  manager,
		backend:  fb,
		store:    store,
		notifier: notifier,
		ctrl:     ctrl,
	}
}

func (r *testRig) addJob(t *testing.T, name string, runCount int) domain.Job {
	t.Helper()
	job, err := r.manager.Add(domain.JobDraft{
		Name:       name,
		Category:   "daily",
		RoutineRef: "routine-" + name,
		RunCount:   runCount,
	})
	if err != nil {
		t.Fatalf("failed to add job: %v", err)
	}
	return *job
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
