package bootstrap

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"

	"music-separator/internal/diagnostics"
	"music-separator/internal/domain"
)

// ErrNoAutomaticFix is returned for diagnostic items the app cannot repair.
var ErrNoAutomaticFix = errors.New("no automatic fix available")

// InstallOrFixDiagnostic applies a remediation for one failed diagnostic item
// and returns the refreshed report.
func (a *App) InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, errors.New("diagnostic item id is required")
	}

	var fixErr error
	switch id {
	case diagnostics.ItemOutputDir:
		fixErr = installOrFixOutputDir(a.Session.OutputFolder())
	case diagnostics.ItemPython, diagnostics.ItemInferenceScript, diagnostics.ItemAccelerator:
		fixErr = errors.Wrapf(ErrNoAutomaticFix, "diagnostic %s", id)
	default:
		return domain.DiagnosticReport{}, errors.Newf("unsupported diagnostic item id: %s", id)
	}

	report := a.RefreshDiagnostics()
	if fixErr != nil {
		return report, fixErr
	}
	return report, nil
}

// installOrFixOutputDir creates the selected output folder.
func installOrFixOutputDir(outputDir string) error {
	outputDir = strings.TrimSpace(outputDir)
	if outputDir == "" {
		return errors.New("no output folder selected")
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return errors.Wrapf(err, "create output directory %s", outputDir)
	}
	return nil
}
