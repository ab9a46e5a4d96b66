package separate

import (
	"context"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
)

// lineRunner abstracts process execution for testability. onLine receives
// merged stdout/stderr split on \n and \r.
type lineRunner interface {
	Run(ctx context.Context, name string, args []string, onLine func(string)) (int, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run starts one command, streams its output to onLine and returns the exit code.
func (r *execRunner) Run(ctx context.Context, name string, args []string, onLine func(string)) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	detachProcessGroup(cmd)
	reader, writer := io.Pipe()
	cmd.Stdout = writer
	cmd.Stderr = writer

	if err := cmd.Start(); err != nil {
		_ = writer.Close()
		return -1, errors.Wrapf(err, "start %s", name)
	}

	scanned := make(chan error, 1)
	go func() {
		scanned <- scanLines(reader, onLine)
	}()

	waitErr := cmd.Wait()
	_ = writer.Close()
	if scanErr := <-scanned; scanErr != nil {
		log.WithError(scanErr).Warn("inference output scan stopped early")
	}

	if waitErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return exitCode, waitErr
	}
	return 0, nil
}

// Process runs the Python inference script as a subprocess.
type Process struct {
	python string
	script string
	runner lineRunner
}

// NewProcess constructs the production routine for the given interpreter and script.
func NewProcess(python, script string) *Process {
	return &Process{python: python, script: script, runner: &execRunner{}}
}

// NewProcessForTests constructs a routine with an injectable runner.
func NewProcessForTests(python, script string, runner lineRunner) *Process {
	return &Process{python: python, script: script, runner: runner}
}

// Separate runs the script once over all inputs, reporting each new percentage.
func (p *Process) Separate(ctx context.Context, params Params, onProgress ProgressFunc) error {
	if len(params.InputAudio) == 0 {
		return &RoutineError{Message: "no input audio files", ExitCode: -1}
	}

	args := BuildArgs(p.script, params)
	logger := log.WithFields(log.Fields{
		"python":       p.python,
		"script":       p.script,
		"inputs":       len(params.InputAudio),
		"outputFolder": params.OutputFolder,
	})
	logger.Info("Running inference script")

	tracker := &progressTracker{}
	lastMessage := ""
	exitCode, err := p.runner.Run(ctx, p.python, args, func(line string) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			return
		}
		if percent, ok := parsePercent(trimmed); ok {
			if tracker.observe(percent) && onProgress != nil {
				onProgress(percent)
			}
			return
		}
		lastMessage = trimmed
		logger.Debug(trimmed)
	})
	if err != nil {
		logger.WithError(err).WithField("exitCode", exitCode).Error("Inference script failed")
		message := lastMessage
		if message == "" {
			message = err.Error()
		}
		return &RoutineError{Message: message, ExitCode: exitCode, Err: err}
	}

	logger.Info("Finished inference script")
	return nil
}

// BuildArgs builds the inference script command line for params.
func BuildArgs(script string, params Params) []string {
	args := []string{script, "--input_audio"}
	args = append(args, params.InputAudio...)
	args = append(args,
		"--output_folder", params.OutputFolder,
		"--chunk_size", strconv.Itoa(params.ChunkSize),
		"--overlap_large", strconv.FormatFloat(params.OverlapLarge, 'f', -1, 64),
		"--overlap_small", strconv.FormatFloat(params.OverlapSmall, 'f', -1, 64),
	)

	flags := []struct {
		set  bool
		name string
	}{
		{params.CPU, "--cpu"},
		{params.SingleONNX, "--single_onnx"},
		{params.LargeGPU, "--large_gpu"},
		{params.UseKimModel1, "--use_kim_model_1"},
		{params.OnlyVocals, "--only_vocals"},
	}
	for _, flag := range flags {
		if flag.set {
			args = append(args, flag.name)
		}
	}
	return args
}
