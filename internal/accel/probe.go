package accel

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
)

// ErrUnavailable is returned when no accelerator memory could be read.
var ErrUnavailable = errors.New("accelerator unavailable")

const mebibytesPerGibibyte = 1024

var smiArgs = []string{"--query-gpu=memory.total", "--format=csv,noheader,nounits"}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Output runs one command and returns its stdout.
func (r *execRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	err := cmd.Run()
	return stdout.Bytes(), err
}

// Info describes the first accelerator found.
type Info struct {
	Available bool    `json:"available"`
	MemoryGiB float64 `json:"memoryGiB"`
}

// Prober reads total accelerator memory through nvidia-smi.
type Prober struct {
	binary string
	runner commandRunner
}

// NewProber builds a prober using the nvidia-smi on PATH.
func NewProber() *Prober {
	return &Prober{binary: "nvidia-smi", runner: &execRunner{}}
}

// NewProberForTests builds a prober with an injectable runner.
func NewProberForTests(binary string, runner commandRunner) *Prober {
	return &Prober{binary: binary, runner: runner}
}

// Probe returns the memory of the first accelerator. Any failure yields
// Available=false together with the reason.
func (p *Prober) Probe(ctx context.Context) (Info, error) {
	out, err := p.runner.Output(ctx, p.binary, smiArgs...)
	if err != nil {
		return Info{}, errors.Mark(errors.Wrapf(err, "run %s", p.binary), ErrUnavailable)
	}

	mib, err := parseMemoryMiB(out)
	if err != nil {
		return Info{}, errors.Mark(err, ErrUnavailable)
	}

	info := Info{Available: true, MemoryGiB: mib / mebibytesPerGibibyte}
	log.WithField("memoryGiB", info.MemoryGiB).Debug("Accelerator detected")
	return info, nil
}

// parseMemoryMiB reads the first line of nvidia-smi csv output.
func parseMemoryMiB(out []byte) (float64, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	first := strings.TrimSpace(lines[0])
	if first == "" {
		return 0, errors.New("no accelerator reported")
	}

	mib, err := strconv.ParseFloat(first, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse accelerator memory %q", first)
	}
	if mib <= 0 {
		return 0, errors.Newf("invalid accelerator memory %q", first)
	}
	return mib, nil
}
