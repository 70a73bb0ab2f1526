package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/Lexcubia/EM-automate/internal/domain"
	"github.com/google/uuid"
)

// Guard reports whether the queue may currently be mutated. The execution
// controller implements it; while a run is active every mutation is
// rejected with domain.ErrQueueLocked.
type Guard interface {
	Idle() bool
}

// Manager owns the ordered, session-local job queue. It never talks to the
// backend and never touches progress state; its only side effects are on
// the in-memory queue itself.
type Manager struct {
	mu    sync.RWMutex
	guard Guard
	jobs  []*domain.Job
}

// NewManager creates an empty queue manager. The guard is bound separately
// because the controller is constructed after the queue it validates.
func NewManager() *Manager {
	return &Manager{}
}

// Bind attaches the mutation guard. Until a guard is bound the queue is
// freely mutable.
func (m *Manager) Bind(guard Guard) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guard = guard
}

func (m *Manager) locked() bool {
	return m.guard != nil && !m.guard.Idle()
}

// Add assigns an id to the draft, appends it to the queue, and returns the
// stored job.
func (m *Manager) Add(draft domain.JobDraft) (*domain.Job, error) {
	if draft.RunCount < 1 {
		return nil, fmt.Errorf("run count must be positive, got %d", draft.RunCount)
	}
	if draft.Name == "" {
		return nil, fmt.Errorf("job name is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked() {
		return nil, domain.ErrQueueLocked
	}

	job := &domain.Job{
		ID:          uuid.NewString(),
		Name:        draft.Name,
		Category:    draft.Category,
		SubCategory: draft.SubCategory,
		RoutineRef:  draft.RoutineRef,
		RunCount:    draft.RunCount,
		Params:      draft.Params,
		Status:      domain.JobStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	m.jobs = append(m.jobs, job)
	queueJobs.Set(float64(len(m.jobs)))

	return cloneJob(job), nil
}

// Remove deletes the job with the given id.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked() {
		return domain.ErrQueueLocked
	}

	idx := m.indexOf(id)
	if idx < 0 {
		return domain.ErrJobNotFound
	}
	m.jobs = append(m.jobs[:idx], m.jobs[idx+1:]...)
	queueJobs.Set(float64(len(m.jobs)))
	return nil
}

// Update edits the mutable fields of a job.
func (m *Manager) Update(id string, upd domain.JobUpdate) (*domain.Job, error) {
	if upd.RunCount != nil && *upd.RunCount < 1 {
		return nil, fmt.Errorf("run count must be positive, got %d", *upd.RunCount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked() {
		return nil, domain.ErrQueueLocked
	}

	idx := m.indexOf(id)
	if idx < 0 {
		return nil, domain.ErrJobNotFound
	}

	job := m.jobs[idx]
	if upd.RunCount != nil {
		job.RunCount = *upd.RunCount
	}
	if upd.RoutineRef != nil {
		job.RoutineRef = *upd.RoutineRef
	}
	if upd.Params != nil {
		job.Params = upd.Params
	}
	return cloneJob(job), nil
}

// MoveUp swaps the job with its predecessor. Moving the first job is a no-op.
func (m *Manager) MoveUp(id string) error {
	return m.move(id, -1)
}

// MoveDown swaps the job with its successor. Moving the last job is a no-op.
func (m *Manager) MoveDown(id string) error {
	return m.move(id, +1)
}

func (m *Manager) move(id string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked() {
		return domain.ErrQueueLocked
	}

	idx := m.indexOf(id)
	if idx < 0 {
		return domain.ErrJobNotFound
	}
	target := idx + delta
	if target < 0 || target >= len(m.jobs) {
		return nil
	}
	m.jobs[idx], m.jobs[target] = m.jobs[target], m.jobs[idx]
	return nil
}

// Clear removes every job from the queue.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked() {
		return domain.ErrQueueLocked
	}
	m.jobs = nil
	queueJobs.Set(0)
	return nil
}

// Jobs returns a snapshot of the queue in execution order.
func (m *Manager) Jobs() []domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, *cloneJob(job))
	}
	return out
}

// Len returns the number of queued jobs.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs)
}

// TotalRuns returns the sum of run counts over all jobs. It is the
// denominator for overall run progress.
func (m *Manager) TotalRuns() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, job := range m.jobs {
		total += job.RunCount
	}
	return total
}

// ApplyProgress derives per-job statuses from the aggregate completed-run
// count. Jobs whose cumulative run counts are fully covered become
// completed, the job the counter currently falls into becomes active, the
// rest stay pending. Called by the reconciler only; job status is not an
// operator-mutable field, so the mutation guard does not apply.
func (m *Manager) ApplyProgress(current int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	covered := 0
	activeSeen := false
	for _, job := range m.jobs {
		switch {
		case covered+job.RunCount <= current:
			job.Status = domain.JobStatusCompleted
		case !activeSeen:
			job.Status = domain.JobStatusActive
			activeSeen = true
		default:
			job.Status = domain.JobStatusPending
		}
		covered += job.RunCount
	}
}

// FinishRun settles per-job statuses at run termination. A failed run marks
// the in-flight job failed and leaves the rest as they were; otherwise
// every job that was still active or pending after a completed run is
// marked completed, and a stopped run simply clears the active flag.
func (m *Manager) FinishRun(terminal domain.JobStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range m.jobs {
		switch job.Status {
		case domain.JobStatusActive:
			job.Status = terminal
		case domain.JobStatusPending:
			if terminal == domain.JobStatusCompleted {
				job.Status = domain.JobStatusCompleted
			}
		}
	}
}

// ResetStatuses returns every job to pending. Called by the controller when
// a new run starts.
func (m *Manager) ResetStatuses() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		job.Status = domain.JobStatusPending
	}
}

func (m *Manager) indexOf(id string) int {
	for i, job := range m.jobs {
		if job.ID == id {
			return i
		}
	}
	return -1
}

func cloneJob(job *domain.Job) *domain.Job {
	out := *job
	if job.Params != nil {
		params := make(domain.JobParams, len(job.Params))
		for k, v := range job.Params {
			params[k] = v
		}
		out.Params = params
	}
	return &out
}
