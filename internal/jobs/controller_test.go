package jobs

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"music-separator/internal/domain"
	"music-separator/internal/separate"
)

// fakeRoutine runs a scripted separation.
type fakeRoutine struct {
	separate func(ctx context.Context, params separate.Params, onProgress separate.ProgressFunc) error
}

func (f *fakeRoutine) Separate(ctx context.Context, params separate.Params, onProgress separate.ProgressFunc) error {
	return f.separate(ctx, params, onProgress)
}

// recordingObserver keeps every notification in arrival order.
type recordingObserver struct {
	mu       sync.Mutex
	calls    []string
	progress []int
	outcomes []domain.Outcome
}

func (o *recordingObserver) JobProgress(_ string, percent int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progress = append(o.progress, percent)
	o.calls = append(o.calls, fmt.Sprintf("progress:%d", percent))
}

func (o *recordingObserver) JobDone(outcome domain.Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
	o.calls = append(o.calls, "done:"+string(outcome.Status))
}

func (o *recordingObserver) snapshot() ([]string, []int, []domain.Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.calls...),
		append([]int(nil), o.progress...),
		append([]domain.Outcome(nil), o.outcomes...)
}

func (o *recordingObserver) doneCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.outcomes)
}

func (o *recordingObserver) progressCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.progress)
}

func testOptions() domain.JobOptions {
	return domain.JobOptions{
		Files:        []string{"/in/a.wav"},
		OutputFolder: "/out",
		Settings: domain.Settings{
			ChunkSize:    1000000,
			OverlapLarge: 0.6,
			OverlapSmall: 0.5,
		},
	}
}

func newTestController(routine separate.Routine, observer Observer) *Controller {
	c := NewController(routine, observer)
	c.collect = func(separate.Params) []string { return nil }
	return c
}

// waitForStatus polls until the controller reaches the expected status.
func waitForStatus(t *testing.T, c *Controller, want domain.JobStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Current().Status == want
	}, 2*time.Second, 5*time.Millisecond, "status never became %s", want)
}

// waitForDone polls until n terminal notifications were delivered.
func waitForDone(t *testing.T, observer *recordingObserver, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return observer.doneCount() >= n
	}, 2*time.Second, 5*time.Millisecond)
}

// TestStartReportsProgressThenFinished checks a natural run end to end.
func TestStartReportsProgressThenFinished(t *testing.T) {
	observer := &recordingObserver{}
	routine := &fakeRoutine{separate: func(_ context.Context, _ separate.Params, onProgress separate.ProgressFunc) error {
		onProgress(10)
		onProgress(40)
		onProgress(90)
		return nil
	}}
	c := newTestController(routine, observer)

	job, err := c.Start(context.Background(), testOptions())
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRunning, job.Status)
	assert.NotEmpty(t, job.ID)

	waitForDone(t, observer, 1)
	calls, _, outcomes := observer.snapshot()
	assert.Equal(t, []string{"progress:10", "progress:40", "progress:90", "done:finished"}, calls)
	assert.Equal(t, job.ID, outcomes[0].JobID)
	assert.False(t, outcomes[0].Cancelled)

	current := c.Current()
	assert.Equal(t, domain.JobStatusFinished, current.Status)
	assert.NotNil(t, current.EndedAt)
	assert.False(t, c.IsRunning())
}

// TestStopSuppressesLaterProgress checks cancellation after the first report.
func TestStopSuppressesLaterProgress(t *testing.T) {
	observer := &recordingObserver{}
	release := make(chan struct{})
	returned := make(chan struct{})
	routine := &fakeRoutine{separate: func(_ context.Context, _ separate.Params, onProgress separate.ProgressFunc) error {
		defer close(returned)
		onProgress(10)
		<-release
		onProgress(40)
		return nil
	}}
	c := newTestController(routine, observer)

	_, err := c.Start(context.Background(), testOptions())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return observer.progressCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		c.Stop()
		close(stopped)
	}()
	waitForStatus(t, c, domain.JobStatusStopping)
	assert.True(t, c.IsRunning())

	select {
	case <-stopped:
		t.Fatal("Stop returned before the routine finished")
	default:
	}

	close(release)
	<-stopped
	<-returned

	calls, progress, outcomes := observer.snapshot()
	assert.Equal(t, []int{10}, progress)
	assert.Equal(t, []string{"progress:10", "done:finished"}, calls)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Cancelled)
	assert.Equal(t, domain.JobStatusFinished, c.Current().Status)
}

// TestStopWhenIdleIsNoop checks Stop has no effect without a running job.
func TestStopWhenIdleIsNoop(t *testing.T) {
	observer := &recordingObserver{}
	c := newTestController(&fakeRoutine{}, observer)

	c.Stop()
	c.Stop()

	assert.Equal(t, domain.JobStatusIdle, c.Current().Status)
	calls, _, _ := observer.snapshot()
	assert.Empty(t, calls)
}

// TestStopAfterFinishedIsNoop checks no second terminal notification is sent.
func TestStopAfterFinishedIsNoop(t *testing.T) {
	observer := &recordingObserver{}
	routine := &fakeRoutine{separate: func(context.Context, separate.Params, separate.ProgressFunc) error {
		return nil
	}}
	c := newTestController(routine, observer)

	_, err := c.Start(context.Background(), testOptions())
	require.NoError(t, err)
	waitForDone(t, observer, 1)

	c.Stop()

	assert.Equal(t, 1, observer.doneCount())
	assert.Equal(t, domain.JobStatusFinished, c.Current().Status)
}

// TestStartPreconditions checks refused starts leave the controller untouched.
func TestStartPreconditions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.JobOptions)
		want   error
	}{
		{name: "no files", mutate: func(o *domain.JobOptions) { o.Files = nil }, want: ErrNoInputFiles},
		{name: "no output folder", mutate: func(o *domain.JobOptions) { o.OutputFolder = "  " }, want: ErrNoOutputFolder},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			observer := &recordingObserver{}
			c := newTestController(&fakeRoutine{}, observer)
			opts := testOptions()
			tc.mutate(&opts)

			_, err := c.Start(context.Background(), opts)

			var preErr *PreconditionError
			require.ErrorAs(t, err, &preErr)
			assert.ErrorIs(t, err, ErrPrecondition)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, domain.JobStatusIdle, c.Current().Status)
			assert.Zero(t, observer.doneCount())
		})
	}
}

// TestStartWhileRunningIsRejected checks only one job runs at a time.
func TestStartWhileRunningIsRejected(t *testing.T) {
	observer := &recordingObserver{}
	release := make(chan struct{})
	routine := &fakeRoutine{separate: func(context.Context, separate.Params, separate.ProgressFunc) error {
		<-release
		return nil
	}}
	c := newTestController(routine, observer)

	first, err := c.Start(context.Background(), testOptions())
	require.NoError(t, err)

	_, err = c.Start(context.Background(), testOptions())
	assert.ErrorIs(t, err, ErrJobAlreadyRunning)
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.Equal(t, first.ID, c.Current().ID)

	close(release)
	waitForDone(t, observer, 1)

	second, err := c.Start(context.Background(), testOptions())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	waitForDone(t, observer, 2)
}

// TestRoutineFailureIsReportedVerbatim checks the failed outcome message.
func TestRoutineFailureIsReportedVerbatim(t *testing.T) {
	observer := &recordingObserver{}
	routine := &fakeRoutine{separate: func(_ context.Context, _ separate.Params, onProgress separate.ProgressFunc) error {
		onProgress(5)
		return &separate.RoutineError{Message: "RuntimeError: CUDA out of memory", ExitCode: 1}
	}}
	c := newTestController(routine, observer)

	_, err := c.Start(context.Background(), testOptions())
	require.NoError(t, err)
	waitForDone(t, observer, 1)

	calls, _, outcomes := observer.snapshot()
	assert.Equal(t, []string{"progress:5", "done:failed"}, calls)
	assert.Equal(t, "RuntimeError: CUDA out of memory", outcomes[0].Message)
	assert.Equal(t, domain.JobStatusFailed, c.Current().Status)
}

// TestFailureWhileStoppingReportsFailedOnce checks a late failure wins over Stop.
func TestFailureWhileStoppingReportsFailedOnce(t *testing.T) {
	observer := &recordingObserver{}
	release := make(chan struct{})
	routine := &fakeRoutine{separate: func(context.Context, separate.Params, separate.ProgressFunc) error {
		<-release
		return &separate.RoutineError{Message: "boom", ExitCode: 2}
	}}
	c := newTestController(routine, observer)

	_, err := c.Start(context.Background(), testOptions())
	require.NoError(t, err)

	stopped := make(chan struct{})
	go func() {
		c.Stop()
		close(stopped)
	}()
	waitForStatus(t, c, domain.JobStatusStopping)
	close(release)
	<-stopped

	_, _, outcomes := observer.snapshot()
	require.Len(t, outcomes, 1)
	assert.Equal(t, domain.JobStatusFailed, outcomes[0].Status)
	assert.Equal(t, "boom", outcomes[0].Message)
	assert.False(t, outcomes[0].Cancelled)
	assert.Equal(t, domain.JobStatusFailed, c.Current().Status)
}

// TestRoutinePanicBecomesFailure checks a panicking routine does not crash the process.
func TestRoutinePanicBecomesFailure(t *testing.T) {
	observer := &recordingObserver{}
	routine := &fakeRoutine{separate: func(context.Context, separate.Params, separate.ProgressFunc) error {
		panic("model file corrupted")
	}}
	c := newTestController(routine, observer)

	_, err := c.Start(context.Background(), testOptions())
	require.NoError(t, err)
	waitForDone(t, observer, 1)

	_, _, outcomes := observer.snapshot()
	assert.Equal(t, domain.JobStatusFailed, outcomes[0].Status)
	assert.Contains(t, outcomes[0].Message, "model file corrupted")
}

// TestStartSnapshotsOptions checks later caller edits do not reach the routine.
func TestStartSnapshotsOptions(t *testing.T) {
	observer := &recordingObserver{}
	release := make(chan struct{})
	var got separate.Params
	routine := &fakeRoutine{separate: func(_ context.Context, params separate.Params, _ separate.ProgressFunc) error {
		<-release
		got = params
		return nil
	}}
	c := newTestController(routine, observer)
	opts := testOptions()

	_, err := c.Start(context.Background(), opts)
	require.NoError(t, err)
	opts.Files[0] = "/in/changed.wav"
	opts.Settings.ChunkSize = 200000
	close(release)
	waitForDone(t, observer, 1)

	assert.Equal(t, []string{"/in/a.wav"}, got.InputAudio)
	assert.Equal(t, 1000000, got.ChunkSize)
}

// TestFinishedOutcomeCarriesOutputs checks collected stems are reported.
func TestFinishedOutcomeCarriesOutputs(t *testing.T) {
	observer := &recordingObserver{}
	routine := &fakeRoutine{separate: func(context.Context, separate.Params, separate.ProgressFunc) error {
		return nil
	}}
	c := NewController(routine, observer)
	c.collect = func(params separate.Params) []string {
		return []string{params.OutputFolder + "/a_vocals.wav"}
	}

	_, err := c.Start(context.Background(), testOptions())
	require.NoError(t, err)
	waitForDone(t, observer, 1)

	_, _, outcomes := observer.snapshot()
	assert.Equal(t, []string{"/out/a_vocals.wav"}, outcomes[0].Outputs)
}

// TestProgressIsPassedThroughUnchanged checks no clamping or reordering happens.
func TestProgressIsPassedThroughUnchanged(t *testing.T) {
	observer := &recordingObserver{}
	routine := &fakeRoutine{separate: func(_ context.Context, _ separate.Params, onProgress separate.ProgressFunc) error {
		for _, percent := range []int{50, 20, 120, -1} {
			onProgress(percent)
		}
		return nil
	}}
	c := newTestController(routine, observer)

	_, err := c.Start(context.Background(), testOptions())
	require.NoError(t, err)
	waitForDone(t, observer, 1)

	_, progress, _ := observer.snapshot()
	assert.Equal(t, []int{50, 20, 120, -1}, progress)
}

// TestManyProgressEventsAreDeliveredInOrder checks the bounded channel does not drop events.
func TestManyProgressEventsAreDeliveredInOrder(t *testing.T) {
	observer := &recordingObserver{}
	routine := &fakeRoutine{separate: func(_ context.Context, _ separate.Params, onProgress separate.ProgressFunc) error {
		for i := 0; i < 500; i++ {
			onProgress(i)
		}
		return nil
	}}
	c := newTestController(routine, observer)

	_, err := c.Start(context.Background(), testOptions())
	require.NoError(t, err)
	waitForDone(t, observer, 1)

	_, progress, _ := observer.snapshot()
	require.Len(t, progress, 500)
	for i, percent := range progress {
		require.Equal(t, i, percent)
	}
}

// TestProgressAfterReturnIsDropped checks a routine that keeps its callback and
// reports after returning neither panics nor reaches the observer.
func TestProgressAfterReturnIsDropped(t *testing.T) {
	observer := &recordingObserver{}
	callbacks := make(chan separate.ProgressFunc, 1)
	routine := &fakeRoutine{separate: func(_ context.Context, _ separate.Params, onProgress separate.ProgressFunc) error {
		onProgress(30)
		callbacks <- onProgress
		return nil
	}}
	c := newTestController(routine, observer)

	_, err := c.Start(context.Background(), testOptions())
	require.NoError(t, err)
	waitForDone(t, observer, 1)

	late := <-callbacks
	require.NotPanics(t, func() { late(80) })

	calls, progress, _ := observer.snapshot()
	assert.Equal(t, []int{30}, progress)
	assert.Equal(t, []string{"progress:30", "done:finished"}, calls)
}
