package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"mediascribe/internal/domain"
)

var errDiagnosticsFailed = errors.New("environment check failed")

func (p *program) newDoctorCommand() *cobra.Command {
	var fix, asJSON bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools, models, and directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			catalog := p.catalog()
			checker := p.deps.NewChecker(p.settings, catalog)

			report := checker.Run(ctx, p.settings)
			if fix && report.HasFailures {
				if err := p.deps.NewFixer(catalog).Fix(ctx, p.settings, report); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Some fixes failed: %v\n", err)
				}
				report = checker.Run(ctx, p.settings)
			}

			if err := printReport(cmd.OutOrStdout(), report, asJSON); err != nil {
				return err
			}
			if report.HasFailures {
				return errDiagnosticsFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&fix, "fix", false, "try to repair failed checks, then check again")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func printReport(w io.Writer, report domain.DiagnosticReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tCHECK\tDETAIL")
	for _, item := range report.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", item.Status, item.Name, item.Message)
		if item.Hint != "" && item.Status == domain.DiagnosticStatusFail {
			fmt.Fprintf(tw, "\t\thint: %s\n", item.Hint)
		}
	}
	return tw.Flush()
}
