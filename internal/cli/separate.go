package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"music-separator/internal/config"
	"music-separator/internal/domain"
	"music-separator/internal/session"
)

// exitInterrupted is the conventional exit code after a second Ctrl+C.
const exitInterrupted = 130

// ErrSeparationFailed is returned when the routine reports a failure.
var ErrSeparationFailed = errors.New("separation failed")

type separateOptions struct {
	output       string
	cpu          bool
	singleONNX   bool
	largeGPU     bool
	oldVocal     bool
	onlyVocals   bool
	chunkSize    int
	overlapLarge float64
	overlapSmall float64
	quiet        bool
}

func newSeparateCmd(root *rootOptions, deps Deps) *cobra.Command {
	opts := &separateOptions{}

	cmd := &cobra.Command{
		Use:   "separate [flags] FILE...",
		Short: "Separate audio files into stems",
		Long: `Separate runs one job over the given WAV, MP3 and FLAC files.
Unsupported files and duplicates are skipped. Settings not given as
flags are derived from the detected GPU memory.

Press Ctrl+C once to stop and wait for the running separation to end,
twice to quit immediately.`,
		Example: `  mvsep separate song.mp3 -o stems/
  mvsep separate *.flac -o out --only-vocals --chunk-size 500000`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeparate(cmd, args, root, opts, deps)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.output, "output", "o", "", "Output folder for the stems (required)")
	flags.BoolVar(&opts.cpu, "cpu", false, "Run inference on the CPU")
	flags.BoolVar(&opts.singleONNX, "single-onnx", false, "Use a single ONNX model")
	flags.BoolVar(&opts.largeGPU, "large-gpu", false, "Keep all models on the GPU")
	flags.BoolVar(&opts.oldVocal, "old-vocal-model", false, "Use the previous vocal model")
	flags.BoolVar(&opts.onlyVocals, "only-vocals", false, "Write only vocal and instrumental stems")
	flags.IntVar(&opts.chunkSize, "chunk-size", 0, "Chunk size in samples (100000-10000000)")
	flags.Float64Var(&opts.overlapLarge, "overlap-large", 0, "Overlap for large models (0.001-0.999)")
	flags.Float64Var(&opts.overlapSmall, "overlap-small", 0, "Overlap for small models (0.001-0.999)")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "Hide the progress bar")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runSeparate(cmd *cobra.Command, args []string, root *rootOptions, opts *separateOptions, deps Deps) error {
	rt, err := root.runtime(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sess, err := session.New(deps.NewRoutine(rt), deps.Defaults(ctx))
	if err != nil {
		return err
	}
	if _, err := sess.EditSettings(func(edit *config.Edit) {
		opts.apply(cmd, edit)
	}); err != nil {
		return err
	}

	inputs, err := absolutePaths(args)
	if err != nil {
		return err
	}
	if added := sess.AddFiles(inputs); added == 0 {
		return errors.New("no supported audio files given (expected .wav, .mp3 or .flac)")
	}
	if err := os.MkdirAll(opts.output, 0o755); err != nil {
		return errors.Wrapf(err, "create output folder %s", opts.output)
	}
	sess.SetOutputFolder(opts.output)

	reporter := NewReporter(cmd.ErrOrStderr(), opts.quiet)
	sess.AddSink(reporter.Handle)

	job, err := sess.Start(ctx)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"job_id": job.ID,
		"files":  len(sess.Files()),
		"output": opts.output,
	}).Debug("Separation started")

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	signals := make(chan os.Signal, 2)
	stopNotify := deps.Notify(signals)
	defer stopNotify()
	go watchInterrupts(watchCtx, signals, sess.Stop, deps.Exit, cmd.ErrOrStderr())

	result := <-reporter.Done()
	return reportSummary(cmd, result)
}

// absolutePaths resolves file arguments so relative and absolute spellings
// of one file collapse into one entry.
func absolutePaths(args []string) ([]string, error) {
	paths := make([]string, 0, len(args))
	for _, arg := range args {
		path, err := filepath.Abs(arg)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve %s", arg)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// apply copies explicitly given flags over the probed defaults.
func (o *separateOptions) apply(cmd *cobra.Command, edit *config.Edit) {
	flags := cmd.Flags()
	if flags.Changed("cpu") {
		edit.UseCPU = o.cpu
	}
	if flags.Changed("single-onnx") {
		edit.SingleONNX = o.singleONNX
	}
	if flags.Changed("large-gpu") {
		edit.LargeGPU = o.largeGPU
	}
	if flags.Changed("old-vocal-model") {
		edit.UseOldVocalModel = o.oldVocal
	}
	if flags.Changed("only-vocals") {
		edit.OnlyVocals = o.onlyVocals
	}
	if flags.Changed("chunk-size") {
		edit.ChunkSize = o.chunkSize
	}
	if flags.Changed("overlap-large") {
		edit.OverlapLarge = o.overlapLarge
	}
	if flags.Changed("overlap-small") {
		edit.OverlapSmall = o.overlapSmall
	}
}

// watchInterrupts stops the job on the first signal and exits on the second.
func watchInterrupts(ctx context.Context, signals <-chan os.Signal, stop func(), exit func(int), out io.Writer) {
	received := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			received++
			if received == 1 {
				fmt.Fprintln(out, "\nStopping... press Ctrl+C again to quit immediately")
				go stop()
				continue
			}
			exit(exitInterrupted)
			return
		}
	}
}

func reportSummary(cmd *cobra.Command, result summary) error {
	out := cmd.OutOrStdout()
	switch {
	case result.status == domain.JobStatusFailed:
		return errors.Mark(errors.Newf("separation failed: %s", result.message), ErrSeparationFailed)
	case result.cancelled:
		fmt.Fprintln(out, "Separation stopped")
		return nil
	}

	fmt.Fprintln(out, "Separation finished")
	for _, path := range result.outputs {
		fmt.Fprintln(out, "  "+path)
	}
	return nil
}
