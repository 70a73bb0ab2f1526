package domain

// ControllerState is the primary state of the execution controller.
// Transitions: idle -> starting -> running -> stopping -> idle, with a
// transient error state that always settles back to idle once surfaced.
type ControllerState string

const (
	StateIdle     ControllerState = "idle"
	StateStarting ControllerState = "starting"
	StateRunning  ControllerState = "running"
	StateStopping ControllerState = "stopping"
	StateError    ControllerState = "error"
)

// Status labels reported by the execution backend (or set optimistically by
// the controller before the first poll lands).
const (
	StatusLabelPreparing = "preparing"
	StatusLabelRunning   = "running"
	StatusLabelPaused    = "paused"
	StatusLabelStopped   = "stopped"
	StatusLabelCompleted = "completed"
	StatusLabelFailed    = "failed"
)

// ProgressSnapshot is the latest backend-reported execution status for the
// active run. The backend is authoritative for every field once a run has
// started; the snapshot is replaced wholesale on each reconciliation and
// frozen at its terminal value when the run ends.
type ProgressSnapshot struct {
	Current     int    `json:"current"`
	Total       int    `json:"total"`
	StatusLabel string `json:"status"`
	IsRunning   bool   `json:"is_running"`
}

// IsTerminal reports whether the snapshot describes a finished run, either
// by a terminal status label or by the backend's authoritative is_running
// signal going false.
func (s ProgressSnapshot) IsTerminal() bool {
	switch s.StatusLabel {
	case StatusLabelCompleted, StatusLabelFailed, StatusLabelStopped:
		return true
	}
	return !s.IsRunning
}

// Failed reports whether the terminal label indicates a failed run.
func (s ProgressSnapshot) Failed() bool {
	return s.StatusLabel == StatusLabelFailed
}
