package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProbeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Send an all-zero input to the fusion classifier and print its output shape",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, closer, err := build(a.cfg, a.log, a.metrics)
			if err != nil {
				return err
			}
			defer closer.Close()

			sh, err := p.Probe(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "output shape [%d %d]\n", sh[0], sh[1])
			return nil
		},
	}
}
