package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"forms-response-service/internal/config"
	"forms-response-service/internal/domain"
	"github.com/spf13/cobra"
)

// NewReportCmd prints aggregated reports as JSON.
func NewReportCmd(configPath *string) *cobra.Command {
	var (
		formID       string
		classID      string
		instructorID string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the aggregated report of a form",
		RunE: func(cmd *cobra.Command, args []string) error {
			if formID == "" {
				return fmt.Errorf("--form is required")
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			setupLogging(cfg)

			rt, err := buildRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			var out any
			if instructorID != "" {
				reports, err := rt.reports.AggregateByInstructor(cmd.Context(), instructorID, formID)
				if err != nil {
					return err
				}
				out = reports
			} else {
				report, err := rt.reports.AggregateForm(cmd.Context(), formID, classID)
				if err != nil {
					return err
				}
				out = []domain.FormReport{report}
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&formID, "form", "", "form id")
	cmd.Flags().StringVar(&classID, "class", "", "restrict to one class")
	cmd.Flags().StringVar(&instructorID, "instructor", "", "one report per class taught by this instructor")
	return cmd
}
