package jobs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"music-separator/internal/domain"
	"music-separator/internal/separate"
)

// ErrPrecondition is matched by every PreconditionError.
var ErrPrecondition = errors.New("job precondition failed")

// Reasons carried by PreconditionError. Each one also matches ErrPrecondition.
var (
	ErrNoInputFiles      = errors.Mark(errors.New("no input files selected"), ErrPrecondition)
	ErrNoOutputFolder    = errors.Mark(errors.New("no output folder selected"), ErrPrecondition)
	ErrJobAlreadyRunning = errors.Mark(errors.New("job already running"), ErrPrecondition)
)

// PreconditionError explains why a job was not started.
type PreconditionError struct {
	Reason error
}

// Error formats the refused start for dialogs and logs.
func (e *PreconditionError) Error() string {
	return fmt.Sprintf("cannot start job: %v", e.Reason)
}

// Unwrap exposes the specific reason sentinel.
func (e *PreconditionError) Unwrap() error {
	return e.Reason
}

// Is matches ErrPrecondition.
func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition
}

// Observer receives job notifications. Calls are serialized and arrive from a
// controller goroutine; implementations must not call Start or Stop inline.
type Observer interface {
	JobProgress(jobID string, percent int)
	JobDone(outcome domain.Outcome)
}

// Controller runs at most one separation job at a time and owns its lifecycle.
type Controller struct {
	routine  separate.Routine
	observer Observer
	collect  func(separate.Params) []string
	newID    func() string
	now      func() time.Time

	mu      sync.RWMutex
	current domain.Job
	run     *run

	// deliverMu serializes observer calls with the state checks that gate them.
	deliverMu sync.Mutex
	stopMu    sync.Mutex
}

// run is the per-job plumbing between worker and dispatcher.
type run struct {
	jobID  string
	alive  atomic.Bool
	events chan workerEvent
	done   chan struct{}
}

// NewController creates an idle controller.
func NewController(routine separate.Routine, observer Observer) *Controller {
	return &Controller{
		routine:  routine,
		observer: observer,
		collect:  separate.CollectOutputs,
		newID:    uuid.NewString,
		now:      func() time.Time { return time.Now().UTC() },
		current:  domain.Job{Status: domain.JobStatusIdle},
	}
}

// Start validates opts and launches the worker without blocking. ctx bounds
// the external routine's lifetime; use Stop to cancel a job.
func (c *Controller) Start(ctx context.Context, opts domain.JobOptions) (domain.Job, error) {
	if len(opts.Files) == 0 {
		return c.Current(), &PreconditionError{Reason: ErrNoInputFiles}
	}
	if strings.TrimSpace(opts.OutputFolder) == "" {
		return c.Current(), &PreconditionError{Reason: ErrNoOutputFolder}
	}

	c.mu.Lock()
	if isActive(c.current.Status) {
		job := c.current
		c.mu.Unlock()
		return job, &PreconditionError{Reason: ErrJobAlreadyRunning}
	}

	r := &run{
		jobID:  c.newID(),
		events: make(chan workerEvent, eventBuffer),
		done:   make(chan struct{}),
	}
	r.alive.Store(true)
	c.run = r
	c.current = domain.Job{
		ID:        r.jobID,
		Status:    domain.JobStatusRunning,
		StartedAt: c.now(),
	}
	job := c.current
	c.mu.Unlock()

	log.WithFields(log.Fields{
		"jobId":        job.ID,
		"files":        len(opts.Files),
		"outputFolder": opts.OutputFolder,
	}).Info("Separation job started")

	go c.dispatch(r)
	go c.work(ctx, r, opts.Clone())
	return job, nil
}

// Stop cancels a running job: it waits for the routine to return and then
// reports finished with Cancelled set. It is a no-op in every other state.
func (c *Controller) Stop() {
	c.stopMu.Lock()
	defer c.stopMu.Unlock()

	c.deliverMu.Lock()
	c.mu.Lock()
	if c.current.Status != domain.JobStatusRunning || c.run == nil {
		c.mu.Unlock()
		c.deliverMu.Unlock()
		return
	}
	r := c.run
	c.current.Status = domain.JobStatusStopping
	r.alive.Store(false)
	c.mu.Unlock()
	c.deliverMu.Unlock()

	logger := log.WithField("jobId", r.jobID)
	logger.Info("Stopping separation job, waiting for routine to return")
	<-r.done

	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	if !c.finish(r.jobID, domain.JobStatusFinished, domain.JobStatusStopping) {
		return
	}
	logger.Info("Separation job stopped")
	c.observer.JobDone(domain.Outcome{
		JobID:     r.jobID,
		Status:    domain.JobStatusFinished,
		Cancelled: true,
	})
}

// Current returns a snapshot of the current job.
func (c *Controller) Current() domain.Job {
	c.mu.RLock()
	defer c.mu.RUnlock()
	job := c.current
	if job.EndedAt != nil {
		ended := *job.EndedAt
		job.EndedAt = &ended
	}
	return job
}

// IsRunning reports whether a job is running or stopping.
func (c *Controller) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return isActive(c.current.Status)
}

// dispatch forwards worker events to the observer in emission order.
func (c *Controller) dispatch(r *run) {
	defer close(r.done)
	for event := range r.events {
		c.deliver(r, event)
	}
}

// deliver applies one worker event under the delivery lock.
func (c *Controller) deliver(r *run, event workerEvent) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	switch event.kind {
	case workerProgress:
		if c.statusOf(r.jobID) != domain.JobStatusRunning {
			return
		}
		c.observer.JobProgress(r.jobID, event.percent)

	case workerSucceeded:
		// A success after Stop is reported by Stop itself.
		if !c.finish(r.jobID, domain.JobStatusFinished, domain.JobStatusRunning) {
			return
		}
		log.WithFields(log.Fields{"jobId": r.jobID, "outputs": len(event.outputs)}).Info("Separation job finished")
		c.observer.JobDone(domain.Outcome{
			JobID:   r.jobID,
			Status:  domain.JobStatusFinished,
			Outputs: event.outputs,
		})

	case workerFailed:
		if !c.finish(r.jobID, domain.JobStatusFailed, domain.JobStatusRunning, domain.JobStatusStopping) {
			return
		}
		log.WithFields(log.Fields{"jobId": r.jobID, "error": event.message}).Error("Separation job failed")
		c.observer.JobDone(domain.Outcome{
			JobID:   r.jobID,
			Status:  domain.JobStatusFailed,
			Message: event.message,
		})
	}
}

// statusOf returns the status of jobID, or idle when it is no longer current.
func (c *Controller) statusOf(jobID string) domain.JobStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current.ID != jobID {
		return domain.JobStatusIdle
	}
	return c.current.Status
}

// finish moves jobID to a terminal status when it is currently in one of from.
func (c *Controller) finish(jobID string, to domain.JobStatus, from ...domain.JobStatus) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current.ID != jobID {
		return false
	}
	for _, status := range from {
		if c.current.Status == status {
			ended := c.now()
			c.current.Status = to
			c.current.EndedAt = &ended
			c.run = nil
			return true
		}
	}
	return false
}

// isActive reports whether status blocks a new Start.
func isActive(status domain.JobStatus) bool {
	return status == domain.JobStatusRunning || status == domain.JobStatusStopping
}
