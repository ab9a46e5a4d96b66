package separate

import (
	"context"
	"fmt"

	"music-separator/internal/domain"
)

// ProgressFunc receives the integer percentage reported by the routine.
type ProgressFunc func(percent int)

// Routine performs one separation run over every input file.
// It blocks until the run ends and calls onProgress from its own goroutine.
// onProgress must not be called after Separate returns; such calls are ignored.
type Routine interface {
	Separate(ctx context.Context, params Params, onProgress ProgressFunc) error
}

// Params is the option structure handed to the inference routine.
type Params struct {
	InputAudio   []string
	OutputFolder string
	CPU          bool
	SingleONNX   bool
	LargeGPU     bool
	ChunkSize    int
	OverlapLarge float64
	OverlapSmall float64
	UseKimModel1 bool
	OnlyVocals   bool
}

// ParamsFromOptions maps a job snapshot onto routine parameters.
func ParamsFromOptions(opts domain.JobOptions) Params {
	return Params{
		InputAudio:   append([]string(nil), opts.Files...),
		OutputFolder: opts.OutputFolder,
		CPU:          opts.Settings.UseCPU,
		SingleONNX:   opts.Settings.SingleONNX,
		LargeGPU:     opts.Settings.LargeGPU,
		ChunkSize:    opts.Settings.ChunkSize,
		OverlapLarge: opts.Settings.OverlapLarge,
		OverlapSmall: opts.Settings.OverlapSmall,
		UseKimModel1: opts.Settings.UseOldVocalModel,
		OnlyVocals:   opts.Settings.OnlyVocals,
	}
}

// RoutineError is a failure reported by the routine itself. Message is shown
// to the user unchanged.
type RoutineError struct {
	Message  string `json:"message"`
	ExitCode int    `json:"exitCode"`
	Err      error  `json:"-"`
}

// Error returns the routine message verbatim.
func (e *RoutineError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return fmt.Sprintf("separation routine exited with code %d", e.ExitCode)
	}
	return e.Message
}

// Unwrap exposes the process error for errors.Is / errors.As.
func (e *RoutineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
