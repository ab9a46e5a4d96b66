package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"

	"music-separator/internal/domain"
	"music-separator/internal/jobs"
)

// summary is the terminal state of one job as seen through its events.
type summary struct {
	status    domain.JobStatus
	cancelled bool
	message   string
	outputs   []string
}

// Reporter renders job events as a terminal progress bar.
type Reporter struct {
	mu      sync.Mutex
	out     io.Writer
	bar     *progressbar.ProgressBar
	quiet   bool
	outputs []string
	message string
	done    chan summary
}

// NewReporter creates a reporter writing to out. quiet hides the bar.
func NewReporter(out io.Writer, quiet bool) *Reporter {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("Separating"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetVisibility(!quiet),
	)
	return &Reporter{
		out:   out,
		bar:   bar,
		quiet: quiet,
		done:  make(chan summary, 1),
	}
}

// Handle consumes one session event.
func (r *Reporter) Handle(event jobs.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch event.Type {
	case jobs.EventTypeProgress:
		_ = r.bar.Set(displayPercent(event.Percent))
	case jobs.EventTypeResult:
		r.outputs = append([]string(nil), event.Outputs...)
	case jobs.EventTypeError:
		r.message = event.Message
	case jobs.EventTypeStatus:
		if event.Status != domain.JobStatusFinished && event.Status != domain.JobStatusFailed {
			return
		}
		if event.Status == domain.JobStatusFinished && !event.Cancelled {
			_ = r.bar.Finish()
		}
		if !r.quiet {
			fmt.Fprintln(r.out)
		}
		r.done <- summary{
			status:    event.Status,
			cancelled: event.Cancelled,
			message:   r.message,
			outputs:   r.outputs,
		}
	}
}

// Done delivers the summary once the job reaches a terminal state.
func (r *Reporter) Done() <-chan summary {
	return r.done
}

// displayPercent bounds a reported value to what the bar can draw.
func displayPercent(percent int) int {
	switch {
	case percent < 0:
		return 0
	case percent > 100:
		return 100
	default:
		return percent
	}
}
