package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/Lexcubia/EM-automate/internal/domain"
	"github.com/go-resty/resty/v2"
)

// Client is the boundary to the untrusted execution backend. All calls are
// request/response over HTTP; transport details stay inside this package.
type Client interface {
	// SubmitQueue submits the ordered queue for execution. A backend
	// rejection is returned as *domain.RejectionError, a network or timeout
	// failure as *domain.TransportError.
	SubmitQueue(ctx context.Context, jobs []domain.Job) (*SubmitResult, error)

	// Stop asks the backend to abort the active run. Best-effort: the
	// returned bool is the backend acknowledgment.
	Stop(ctx context.Context) (bool, error)

	// Pause suspends the active run backend-side. Optional capability.
	Pause(ctx context.Context) (bool, error)

	// Resume resumes a paused run backend-side. Optional capability.
	Resume(ctx context.Context) (bool, error)

	// FetchProgress retrieves the latest progress snapshot for the active run.
	FetchProgress(ctx context.Context) (*domain.ProgressSnapshot, error)

	// FetchHistory retrieves the backend's persisted run history.
	FetchHistory(ctx context.Context) ([]domain.RunRecord, error)

	// ClearHistory deletes the backend's persisted run history.
	ClearHistory(ctx context.Context) (bool, error)
}

// SubmitResult is the backend's answer to a queue submission.
type SubmitResult struct {
	Accepted  bool   `json:"accepted"`
	Message   string `json:"message,omitempty"`
	TotalRuns int    `json:"total_runs,omitempty"`
}

// Config holds connection settings for the HTTP client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPClient implements Client against the automation backend's REST API.
type HTTPClient struct {
	client *resty.Client
}

// NewHTTPClient creates a new backend HTTP client.
func NewHTTPClient(cfg *Config) *HTTPClient {
	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetHeader("Content-Type", "application/json")

	// Bounded timeout on every request; a hung backend must not hang us
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client.SetTimeout(timeout)

	return &HTTPClient{client: client}
}

// Wire structures matching the backend's task API.
type taskPayload struct {
	ID            string           `json:"id"`
	DisplayName   string           `json:"display_name"`
	MissionKey    string           `json:"mission_key"`
	MissionType   string           `json:"mission_type"`
	SelectedLevel string           `json:"selected_level,omitempty"`
	RunCount      int              `json:"run_count"`
	Params        domain.JobParams `json:"params,omitempty"`
}

type startRequest struct {
	Tasks []taskPayload `json:"tasks"`
}

type startResponse struct {
	Message    string `json:"message"`
	TotalTasks int    `json:"total_tasks"`
}

type statusResponse struct {
	Current   int    `json:"current"`
	Total     int    `json:"total"`
	Status    string `json:"status"`
	IsRunning bool   `json:"is_running"`
}

type historyResponse struct {
	Records []domain.RunRecord `json:"records"`
}

type clearResponse struct {
	Success bool `json:"success"`
}

// errorResponse is the backend's error envelope (FastAPI-style detail field).
type errorResponse struct {
	Detail string `json:"detail"`
}

// SubmitQueue submits the ordered queue to the backend.
func (c *HTTPClient) SubmitQueue(ctx context.Context, jobs []domain.Job) (*SubmitResult, error) {
	req := startRequest{Tasks: make([]taskPayload, 0, len(jobs))}
	for _, job := range jobs {
		req.Tasks = append(req.Tasks, taskPayload{
			ID:            job.ID,
			DisplayName:   job.Name,
			MissionKey:    job.RoutineRef,
			MissionType:   job.Category,
			SelectedLevel: job.SubCategory,
			RunCount:      job.RunCount,
			Params:        job.Params,
		})
	}

	var out startResponse
	var apiErr errorResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post("/api/task/start")
	if err != nil {
		return nil, &domain.TransportError{Op: "submit", Err: err}
	}
	if res.IsError() {
		return &SubmitResult{Accepted: false, Message: apiErr.Detail},
			&domain.RejectionError{Detail: apiErr.Detail}
	}

	return &SubmitResult{
		Accepted:  true,
		Message:   out.Message,
		TotalRuns: out.TotalTasks,
	}, nil
}

// Stop asks the backend to abort the active run.
func (c *HTTPClient) Stop(ctx context.Context) (bool, error) {
	return c.postControl(ctx, "stop", "/api/task/stop")
}

// Pause forwards a pause request to the backend.
func (c *HTTPClient) Pause(ctx context.Context) (bool, error) {
	return c.postControl(ctx, "pause", "/api/task/pause")
}

// Resume forwards a resume request to the backend.
func (c *HTTPClient) Resume(ctx context.Context) (bool, error) {
	return c.postControl(ctx, "resume", "/api/task/resume")
}

func (c *HTTPClient) postControl(ctx context.Context, op, path string) (bool, error) {
	res, err := c.client.R().
		SetContext(ctx).
		SetError(&errorResponse{}).
		Post(path)
	if err != nil {
		return false, &domain.TransportError{Op: op, Err: err}
	}
	return !res.IsError(), nil
}

// FetchProgress retrieves the latest progress snapshot.
func (c *HTTPClient) FetchProgress(ctx context.Context) (*domain.ProgressSnapshot, error) {
	var out statusResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/task/status")
	if err != nil {
		return nil, &domain.TransportError{Op: "poll", Err: err}
	}
	if res.IsError() {
		return nil, &domain.TransportError{Op: "poll", Err: errStatus(res.StatusCode())}
	}

	return &domain.ProgressSnapshot{
		Current:     out.Current,
		Total:       out.Total,
		StatusLabel: out.Status,
		IsRunning:   out.IsRunning,
	}, nil
}

// FetchHistory retrieves the backend's persisted run history.
func (c *HTTPClient) FetchHistory(ctx context.Context) ([]domain.RunRecord, error) {
	var out historyResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/history")
	if err != nil {
		return nil, &domain.TransportError{Op: "history", Err: err}
	}
	if res.IsError() {
		return nil, &domain.TransportError{Op: "history", Err: errStatus(res.StatusCode())}
	}
	return out.Records, nil
}

// ClearHistory deletes the backend's persisted run history.
func (c *HTTPClient) ClearHistory(ctx context.Context) (bool, error) {
	var out clearResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Delete("/api/history")
	if err != nil {
		return false, &domain.TransportError{Op: "history", Err: err}
	}
	if res.IsError() {
		return false, nil
	}
	return out.Success, nil
}

func errStatus(code int) error {
	return fmt.Errorf("unexpected status code %d", code)
}
