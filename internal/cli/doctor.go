package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"music-separator/internal/domain"
)

// ErrDiagnosticsFailed is returned when at least one check fails.
var ErrDiagnosticsFailed = errors.New("environment checks failed")

func newDoctorCmd(root *rootOptions, deps Deps) *cobra.Command {
	var (
		output string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the Python runtime, inference script and GPU",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := root.runtime(cmd)
			if err != nil {
				return err
			}

			report := deps.NewChecker().Run(rt, output)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return errors.Wrap(err, "encode report")
				}
			} else {
				printReport(cmd.OutOrStdout(), report)
			}

			if report.HasFailures {
				return ErrDiagnosticsFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Also check that this output folder is writable")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func printReport(out io.Writer, report domain.DiagnosticReport) {
	for _, item := range report.Items {
		fmt.Fprintf(out, "[%s] %s: %s\n", statusLabel(item.Status), item.Name, item.Message)
		if item.Hint != "" && item.Status != domain.DiagnosticStatusPass {
			fmt.Fprintf(out, "       %s\n", item.Hint)
		}
	}
}

func statusLabel(status domain.DiagnosticStatus) string {
	switch status {
	case domain.DiagnosticStatusPass:
		return " ok "
	case domain.DiagnosticStatusWarn:
		return "warn"
	default:
		return "FAIL"
	}
}
