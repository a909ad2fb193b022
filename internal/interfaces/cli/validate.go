package cli

import (
	"github.com/spf13/cobra"

	"github.com/turtacn/FoodSafety-MS-KB/internal/application/curation"
)

func newValidateCmd(rt *runtime) *cobra.Command {
	var recordType string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the curated corpus against the record schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildAssembly(cmd.Context(), rt)
			if err != nil {
				return err
			}
			defer a.close()

			res, rep, err := a.pipeline.RunValidate(cmd.Context(), recordType)
			if err != nil {
				return err
			}
			printPhaseResult(cmd, res)

			if rep.Valid {
				cmd.Printf("all %d records conform to %q\n", rep.Records, rep.RecordType)
				return nil
			}
			cmd.Printf("%d violations across %d records (report: %s)\n",
				rep.Violations, rep.Records, curation.ArtifactValidationReport)
			for _, row := range rep.Rows {
				if row.Passed {
					continue
				}
				cmd.Printf("  record %-5d %-40s %s  %s\n", row.RecordIndex, row.Field, row.Code, row.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&recordType, "type", "t", "detection", "record type to validate against the schema definitions")
	return cmd
}
