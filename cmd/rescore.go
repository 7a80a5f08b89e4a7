package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/breakwatch/internal/correlate"
)

var rescoreIncident string

var rescoreCmd = &cobra.Command{
	Use:   "rescore",
	Short: "Recompute incident confidence scores from their stored signals",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, "rescore")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		svc := correlate.NewService(st, clusterParams(cfg.Cluster))

		if rescoreIncident != "" {
			score, err := svc.Rescore(ctx, rescoreIncident)
			if err != nil {
				return eris.Wrap(err, "rescore")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%.1f\n", rescoreIncident, score)
			return nil
		}

		n, err := svc.RescoreAll(ctx)
		if err != nil {
			return eris.Wrapf(err, "rescore: %d incidents rescored before failure", n)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rescored %d incidents.\n", n)
		return nil
	},
}

func init() {
	rescoreCmd.Flags().StringVar(&rescoreIncident, "incident", "", "rescore only this incident")
	rootCmd.AddCommand(rescoreCmd)
}
