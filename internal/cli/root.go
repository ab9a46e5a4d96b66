// Package cli provides the mvsep command-line interface.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"music-separator/internal/accel"
	"music-separator/internal/config"
	"music-separator/internal/diagnostics"
	"music-separator/internal/domain"
	"music-separator/internal/logging"
	"music-separator/internal/separate"
)

const probeTimeout = 10 * time.Second

// Deps are the process-level collaborators of the commands.
type Deps struct {
	NewRoutine func(rt config.Runtime) separate.Routine
	Defaults   func(ctx context.Context) domain.Settings
	NewChecker func() *diagnostics.Checker
	Notify     func(c chan<- os.Signal) (stop func())
	Exit       func(code int)
}

// DefaultDeps returns the production collaborators.
func DefaultDeps() Deps {
	return Deps{
		NewRoutine: func(rt config.Runtime) separate.Routine {
			return separate.NewProcess(rt.Python, rt.InferenceScript)
		},
		Defaults:   probeDefaults,
		NewChecker: diagnostics.NewChecker,
		Notify: func(c chan<- os.Signal) func() {
			signal.Notify(c, os.Interrupt, syscall.SIGTERM)
			return func() { signal.Stop(c) }
		},
		Exit: os.Exit,
	}
}

// rootOptions are flags shared by every command.
type rootOptions struct {
	python    string
	script    string
	logLevel  string
	logFormat string
}

// NewRootCmd builds the command tree.
func NewRootCmd(version string, deps Deps) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "mvsep",
		Short: "Separate music into vocal and instrumental stems",
		Long: `mvsep runs the MVSEP inference script over audio files and writes
vocal, instrumental, bass, drums and other stems to an output folder.

Configuration is read from MVSEP_PYTHON, MVSEP_INFERENCE_SCRIPT,
MVSEP_LOG_LEVEL, MVSEP_LOG_FORMAT and MVSEP_HTTP_ADDR; flags override them.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	flags := root.PersistentFlags()
	flags.StringVar(&opts.python, "python", "", "Python interpreter (default $MVSEP_PYTHON or python3)")
	flags.StringVar(&opts.script, "script", "", "Inference script (default $MVSEP_INFERENCE_SCRIPT or inference.py)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format: text or json")

	root.AddCommand(
		newSeparateCmd(opts, deps),
		newServeCmd(opts, deps),
		newDoctorCmd(opts, deps),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute(version string) int {
	root := NewRootCmd(version, DefaultDeps())
	if err := root.Execute(); err != nil {
		root.PrintErrln("Error:", err)
		return 1
	}
	return 0
}

// runtime merges environment configuration with the shared flags and
// installs the log handler.
func (o *rootOptions) runtime(cmd *cobra.Command) (config.Runtime, error) {
	rt := config.LoadRuntime()
	if o.python != "" {
		rt.Python = o.python
	}
	if o.script != "" {
		rt.InferenceScript = o.script
	}
	if o.logLevel != "" {
		rt.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		rt.LogFormat = o.logFormat
	}

	if err := logging.Setup(rt.LogLevel, rt.LogFormat, cmd.ErrOrStderr()); err != nil {
		return rt, err
	}
	return rt, nil
}

// probeDefaults derives first-run settings from the accelerator.
func probeDefaults(ctx context.Context) domain.Settings {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	info, err := accel.NewProber().Probe(ctx)
	if err != nil {
		log.WithError(err).Debug("No accelerator detected")
	}
	return config.DefaultSettings(info.MemoryGiB, info.Available)
}
