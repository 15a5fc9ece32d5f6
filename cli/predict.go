package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/maastricht-university/edmo-emotion/orchestrator"
)

func newPredictCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict <video>",
		Short: "Predict the emotion of one video clip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			out, _ := cmd.Flags().GetString("out")

			p, closer, err := build(a.cfg, a.log, a.metrics)
			if err != nil {
				return err
			}
			defer closer.Close()

			video, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			id := uuid.NewString()
			ctx := orchestrator.WithRequestID(cmd.Context(), id)
			pred, runErr := p.Run(ctx, video)
			report := orchestrator.NewReport(id, video, pred, runErr)

			if out != "" {
				if err := orchestrator.WriteJSON(out, report); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), NewStyles(DefaultTheme).Render(report))
			}
			return runErr
		},
	}
	cmd.Flags().Bool("json", false, "Print the report as JSON")
	cmd.Flags().String("out", "", "Also write the report to this JSON file")
	return cmd
}
