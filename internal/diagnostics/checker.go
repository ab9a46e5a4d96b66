package diagnostics

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"music-separator/internal/accel"
	"music-separator/internal/config"
	"music-separator/internal/domain"
)

// Item IDs reported by Run.
const (
	ItemPython          = "python"
	ItemInferenceScript = "inference_script"
	ItemAccelerator     = "accelerator"
	ItemOutputDir       = "output_dir"
)

const probeTimeout = 10 * time.Second

// Checker validates the interpreter, the inference script, the accelerator
// and the output folder.
type Checker struct {
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	probe      func(context.Context) (accel.Info, error)
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		probe:      accel.NewProber().Probe,
	}
}

// Run executes all startup checks and returns a combined report. The output
// folder is only checked once one has been selected.
func (c *Checker) Run(cfg config.Runtime, outputFolder string) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkPython(cfg.Python),
		c.checkScript(cfg.InferenceScript),
		c.checkAccelerator(),
	}
	if strings.TrimSpace(outputFolder) != "" {
		items = append(items, c.checkOutputDir(outputFolder))
	}

	return domain.NewDiagnosticReport(items, time.Now())
}

// checkPython verifies the interpreter is on PATH.
func (c *Checker) checkPython(name string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: ItemPython, Name: "Python interpreter"}

	path, err := c.lookPath(name)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Interpreter not found in PATH: %s", name)
		item.Hint = "Install Python 3 or point MVSEP_PYTHON at the interpreter of the separation environment."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", path)
	return item
}

// checkScript verifies the inference script file exists.
func (c *Checker) checkScript(path string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: ItemInferenceScript, Name: "Inference script"}

	info, err := c.stat(path)
	switch {
	case err != nil && IsNotExist(err):
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Inference script does not exist: %s", path)
		item.Hint = "Set MVSEP_INFERENCE_SCRIPT to the inference.py of the separation models."
	case err != nil:
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot access inference script: %s", path)
		item.Hint = "Check permissions for the script and its directory."
	case info.IsDir():
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Inference script is a directory: %s", path)
		item.Hint = "Point MVSEP_INFERENCE_SCRIPT at the script file itself."
	default:
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Script found: %s", path)
	}
	return item
}

// checkAccelerator reports accelerator memory. A missing accelerator only
// warns since CPU mode still works.
func (c *Checker) checkAccelerator() domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: ItemAccelerator, Name: "GPU accelerator"}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	info, err := c.probe(ctx)
	if err != nil || !info.Available {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = "No GPU accelerator detected."
		item.Hint = "Enable \"Use CPU\" in settings; separation will be considerably slower."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("GPU with %.1f GiB memory", info.MemoryGiB)
	return item
}

// checkOutputDir validates output directory existence and write access.
func (c *Checker) checkOutputDir(outputDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: ItemOutputDir, Name: "Output directory"}

	info, err := c.stat(outputDir)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		if IsNotExist(err) {
			item.Message = fmt.Sprintf("Output directory does not exist: %s", outputDir)
			item.Hint = "Create the directory or choose another output folder."
		} else {
			item.Message = fmt.Sprintf("Cannot access output directory: %s", outputDir)
			item.Hint = "Choose a writable location or adjust filesystem permissions."
		}
		return item
	}
	if !info.IsDir() {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Output path is not a directory: %s", outputDir)
		item.Hint = "Choose a directory for the separated stems."
		return item
	}

	tmpFile, err := c.createTemp(outputDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Output directory is not writable: %s", outputDir)
		item.Hint = "Choose a writable directory for the separated stems."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", outputDir)
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
	probe func(context.Context) (accel.Info, error),
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		stat:       stat,
		createTemp: createTemp,
		remove:     remove,
		probe:      probe,
	}
}

// IsNotExist reports whether error represents file-not-found.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
