package jobs

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"music-separator/internal/domain"
	"music-separator/internal/separate"
)

// eventBuffer bounds the worker-to-dispatcher channel.
const eventBuffer = 64

type workerEventKind int

const (
	workerProgress workerEventKind = iota
	workerSucceeded
	workerFailed
)

// workerEvent is one message from the worker goroutine to the dispatcher.
type workerEvent struct {
	kind    workerEventKind
	percent int
	message string
	outputs []string
}

// work runs the routine for one job and always ends with a terminal event.
func (c *Controller) work(ctx context.Context, r *run, opts domain.JobOptions) {
	defer close(r.events)

	params := separate.ParamsFromOptions(opts)
	if err := c.invoke(ctx, r, params); err != nil {
		r.events <- workerEvent{kind: workerFailed, message: failureMessage(err)}
		return
	}
	r.events <- workerEvent{kind: workerSucceeded, outputs: c.collect(params)}
}

// invoke calls the routine, forwarding progress while the job is alive.
// Progress reported after the routine returned is dropped, since the events
// channel is closed right after. A panic in the routine is turned into an error.
func (c *Controller) invoke(ctx context.Context, r *run, params separate.Params) (err error) {
	var (
		sendMu   sync.Mutex
		returned bool
	)
	defer func() {
		if recovered := recover(); recovered != nil {
			err = errors.Newf("separation routine panicked: %v", recovered)
		}
	}()
	defer func() {
		sendMu.Lock()
		returned = true
		sendMu.Unlock()
	}()

	return c.routine.Separate(ctx, params, func(percent int) {
		sendMu.Lock()
		defer sendMu.Unlock()
		if returned || !r.alive.Load() {
			return
		}
		r.events <- workerEvent{kind: workerProgress, percent: percent}
	})
}

// failureMessage returns the routine's own message when it provided one.
func failureMessage(err error) string {
	var routineErr *separate.RoutineError
	if errors.As(err, &routineErr) {
		return routineErr.Error()
	}
	return err.Error()
}
