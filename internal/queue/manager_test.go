package queue

import (
	"errors"
	"testing"

	"github.com/Lexcubia/EM-automate/internal/domain"
)

type stubGuard struct {
	idle bool
}

func (g *stubGuard) Idle() bool {
	return g.idle
}

func draft(name string, runCount int) domain.JobDraft {
	return domain.JobDraft{
		Name:       name,
		Category:   "daily",
		RoutineRef: "routine-" + name,
		RunCount:   runCount,
	}
}

func TestManagerAddAssignsIDAndDefaults(t *testing.T) {
	m := NewManager()

	job, err := m.Add(draft("alpha", 3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.ID == "" {
		t.Error("expected an id to be assigned")
	}
	if job.Status != domain.JobStatusPending {
		t.Errorf("expected pending status, got %q", job.Status)
	}
	if m.Len() != 1 {
		t.Errorf("expected 1 job in queue, got %d", m.Len())
	}
}

func TestManagerAddValidation(t *testing.T) {
	m := NewManager()

	tests := []struct {
		name  string
		draft domain.JobDraft
	}{
		{name: "zero run count", draft: draft("a", 0)},
		{name: "negative run count", draft: draft("a", -2)},
		{name: "missing name", draft: domain.JobDraft{RunCount: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Add(tt.draft); err == nil {
				t.Error("expected validation error")
			}
		})
	}
	if m.Len() != 0 {
		t.Errorf("expected empty queue, got %d jobs", m.Len())
	}
}

func TestManagerTotalRuns(t *testing.T) {
	m := NewManager()
	if m.TotalRuns() != 0 {
		t.Errorf("expected 0 total runs for empty queue, got %d", m.TotalRuns())
	}

	m.Add(draft("a", 3))
	b, _ := m.Add(draft("b", 2))
	m.Add(draft("c", 1))

	if got := m.TotalRuns(); got != 6 {
		t.Errorf("expected 6 total runs, got %d", got)
	}

	// totalRuns tracks every mutation
	if err := m.Remove(b.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.TotalRuns(); got != 4 {
		t.Errorf("expected 4 total runs after removal, got %d", got)
	}

	runs := 5
	a := m.Jobs()[0]
	if _, err := m.Update(a.ID, domain.JobUpdate{RunCount: &runs}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.TotalRuns(); got != 6 {
		t.Errorf("expected 6 total runs after update, got %d", got)
	}
}

func TestManagerMutationsRejectedWhileLocked(t *testing.T) {
	m := NewManager()
	job, _ := m.Add(draft("a", 1))

	guard := &stubGuard{idle: false}
	m.Bind(guard)

	runs := 2
	mutations := []struct {
		name string
		call func() error
	}{
		{"add", func() error { _, err := m.Add(draft("b", 1)); return err }},
		{"remove", func() error { return m.Remove(job.ID) }},
		{"update", func() error { _, err := m.Update(job.ID, domain.JobUpdate{RunCount: &runs}); return err }},
		{"move up", func() error { return m.MoveUp(job.ID) }},
		{"move down", func() error { return m.MoveDown(job.ID) }},
		{"clear", func() error { return m.Clear() }},
	}

	for _, tt := range mutations {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, domain.ErrQueueLocked) {
				t.Errorf("expected ErrQueueLocked, got %v", err)
			}
		})
	}

	// All mutations succeed again once the guard reports idle
	guard.idle = true
	for _, tt := range mutations {
		t.Run(tt.name+" unlocked", func(t *testing.T) {
			if err := tt.call(); errors.Is(err, domain.ErrQueueLocked) {
				t.Errorf("expected mutation to succeed, got %v", err)
			}
		})
	}
}

func TestManagerReorder(t *testing.T) {
	m := NewManager()
	a, _ := m.Add(draft("a", 1))
	b, _ := m.Add(draft("b", 1))
	c, _ := m.Add(draft("c", 1))

	if err := m.MoveUp(b.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	order := func() []string {
		jobs := m.Jobs()
		ids := make([]string, len(jobs))
		for i, j := range jobs {
			ids[i] = j.ID
		}
		return ids
	}
	got := order()
	want := []string{b.ID, a.ID, c.ID}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("after MoveUp expected order %v, got %v", want, got)
		}
	}

	// Moving the first job up and the last job down are no-ops
	if err := m.MoveUp(b.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.MoveDown(c.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got = order()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order unchanged %v, got %v", want, got)
		}
	}

	if err := m.MoveDown("missing"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestManagerApplyProgress(t *testing.T) {
	m := NewManager()
	a, _ := m.Add(draft("a", 2))
	b, _ := m.Add(draft("b", 3))
	c, _ := m.Add(draft("c", 1))

	statuses := func() map[string]domain.JobStatus {
		out := map[string]domain.JobStatus{}
		for _, j := range m.Jobs() {
			out[j.ID] = j.Status
		}
		return out
	}

	tests := []struct {
		name    string
		current int
		want    map[string]domain.JobStatus
	}{
		{
			name:    "run start",
			current: 0,
			want: map[string]domain.JobStatus{
				a.ID: domain.JobStatusActive,
				b.ID: domain.JobStatusPending,
				c.ID: domain.JobStatusPending,
			},
		},
		{
			name:    "inside first job",
			current: 1,
			want: map[string]domain.JobStatus{
				a.ID: domain.JobStatusActive,
				b.ID: domain.JobStatusPending,
				c.ID: domain.JobStatusPending,
			},
		},
		{
			name:    "second job in flight",
			current: 3,
			want: map[string]domain.JobStatus{
				a.ID: domain.JobStatusCompleted,
				b.ID: domain.JobStatusActive,
				c.ID: domain.JobStatusPending,
			},
		},
		{
			name:    "all runs done",
			current: 6,
			want: map[string]domain.JobStatus{
				a.ID: domain.JobStatusCompleted,
				b.ID: domain.JobStatusCompleted,
				c.ID: domain.JobStatusCompleted,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m.ApplyProgress(tt.current)
			got := statuses()
			active := 0
			for id, want := range tt.want {
				if got[id] != want {
					t.Errorf("job %s: expected %q, got %q", id, want, got[id])
				}
			}
			for _, s := range got {
				if s == domain.JobStatusActive {
					active++
				}
			}
			if active > 1 {
				t.Errorf("expected at most one active job, got %d", active)
			}
		})
	}
}

func TestManagerFinishRun(t *testing.T) {
	m := NewManager()
	a, _ := m.Add(draft("a", 1))
	b, _ := m.Add(draft("b", 1))

	m.ApplyProgress(0)
	m.FinishRun(domain.JobStatusFailed)

	jobs := m.Jobs()
	if jobs[0].Status != domain.JobStatusFailed {
		t.Errorf("expected active job %s failed, got %q", a.ID, jobs[0].Status)
	}
	if jobs[1].Status != domain.JobStatusPending {
		t.Errorf("expected pending job %s untouched, got %q", b.ID, jobs[1].Status)
	}

	m.ResetStatuses()
	m.ApplyProgress(1)
	m.FinishRun(domain.JobStatusCompleted)
	for _, j := range m.Jobs() {
		if j.Status != domain.JobStatusCompleted {
			t.Errorf("expected job %s completed, got %q", j.ID, j.Status)
		}
	}
}

func TestManagerJobsReturnsCopies(t *testing.T) {
	m := NewManager()
	m.Add(domain.JobDraft{Name: "a", RunCount: 1, Params: domain.JobParams{"k": "v"}})

	jobs := m.Jobs()
	jobs[0].Name = "mutated"
	jobs[0].Params["k"] = "mutated"

	fresh := m.Jobs()
	if fresh[0].Name != "a" {
		t.Error("queue job name mutated through snapshot")
	}
	if fresh[0].Params["k"] != "v" {
		t.Error("queue job params mutated through snapshot")
	}
}
