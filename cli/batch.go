package cli

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/maastricht-university/edmo-emotion/orchestrator"
)

func newBatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <video>...",
		Short: "Predict many clips and persist one report per clip",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parallel, _ := cmd.Flags().GetInt("parallel")
			quiet, _ := cmd.Flags().GetBool("quiet")

			p, closer, err := build(a.cfg, a.log, a.metrics)
			if err != nil {
				return err
			}
			defer closer.Close()

			reports := make([]orchestrator.Report, len(args))
			var g errgroup.Group
			if parallel > 0 {
				g.SetLimit(parallel)
			}
			for i, arg := range args {
				g.Go(func() error {
					video, err := filepath.Abs(arg)
					if err != nil {
						video = arg
					}
					id := uuid.NewString()
					ctx := orchestrator.WithRequestID(cmd.Context(), id)
					pred, err := p.Run(ctx, video)
					reports[i] = orchestrator.NewReport(id, video, pred, err)
					return nil
				})
			}
			_ = g.Wait()

			dir, err := orchestrator.Persist(a.cfg.Paths.Outputs, reports)
			if err != nil {
				return fmt.Errorf("persist reports: %w", err)
			}

			styles := NewStyles(DefaultTheme)
			failed := 0
			for _, r := range reports {
				if r.Prediction == nil {
					failed++
				}
				if !quiet {
					fmt.Fprintln(cmd.OutOrStdout(), styles.Render(r))
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), styles.Dim.Render(
				fmt.Sprintf("%d/%d clips predicted, reports in %s", len(reports)-failed, len(reports), dir)))
			if failed > 0 {
				return fmt.Errorf("%d of %d clips failed", failed, len(reports))
			}
			return nil
		},
	}
	cmd.Flags().Int("parallel", 2, "Clips processed at once")
	cmd.Flags().Bool("quiet", false, "Only print the summary line")
	return cmd
}
