package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Lexcubia/EM-automate/internal/backend"
	"github.com/Lexcubia/EM-automate/internal/domain"
	"github.com/Lexcubia/EM-automate/internal/logger"
)

// Poller runs the cooperative progress-polling loop while a run is active.
// Only one fetch is ever outstanding: the fetch happens inline on the tick
// goroutine, so ticks that land during a slow request are dropped by the
// ticker rather than queued.
type Poller struct {
	backend     backend.Client
	interval    time.Duration
	maxFailures int
	logger      *logger.Logger
}

// NewPoller creates a poller. interval defaults to one second and
// maxFailures to five when zero.
func NewPoller(client backend.Client, interval time.Duration, maxFailures int, log *logger.Logger) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Poller{
		backend:     client,
		interval:    interval,
		maxFailures: maxFailures,
		logger:      log,
	}
}

// Ticket controls one polling loop instance. Cancellation is explicit and
// idempotent; once cancelled, the loop delivers nothing further.
type Ticket struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Cancel stops the polling loop. Calling it again is a no-op.
func (t *Ticket) Cancel() {
	t.once.Do(t.cancel)
}

// Done is closed when the polling loop has fully exited.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Start launches the polling loop. Each successful fetch is handed to
// deliver; after maxFailures consecutive failed ticks the loop stops and
// exhausted is invoked once with a domain.ErrPollingExhausted error.
func (p *Poller) Start(
	ctx context.Context,
	deliver func(context.Context, *domain.ProgressSnapshot),
	exhausted func(error),
) *Ticket {
	ctx, cancel := context.WithCancel(ctx)
	ticket := &Ticket{cancel: cancel, done: make(chan struct{})}
	go p.loop(ctx, ticket, deliver, exhausted)
	return ticket
}

func (p *Poller) loop(
	ctx context.Context,
	ticket *Ticket,
	deliver func(context.Context, *domain.ProgressSnapshot),
	exhausted func(error),
) {
	defer close(ticket.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap, err := p.backend.FetchProgress(ctx)
		if ctx.Err() != nil {
			// The loop was cancelled while this request was in flight; its
			// response must be discarded, not applied.
			return
		}
		if err != nil {
			failures++
			pollFailuresTotal.Inc()
			p.log(ctx).WithError(err).WithField(logger.FieldCount, failures).
				Warn("Progress poll tick failed")
			if failures >= p.maxFailures {
				exhausted(fmt.Errorf("%w after %d consecutive failures",
					domain.ErrPollingExhausted, failures))
				return
			}
			continue
		}

		failures = 0
		deliver(ctx, snap)
	}
}

func (p *Poller) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return p.logger
}
