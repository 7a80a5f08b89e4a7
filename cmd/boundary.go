package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/breakwatch/internal/geo"
)

var boundaryBBox string

var boundaryCmd = &cobra.Command{
	Use:   "boundary <name>",
	Short: "Store a named region boundary used by the ingest region filter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		bbox, err := geo.ParseBBox(boundaryBBox)
		if err != nil {
			return err
		}

		st, err := initStore(ctx, "migrate")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.UpsertBoundary(ctx, args[0], bbox.Ring()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stored boundary %s (%s).\n", args[0], bbox)
		return nil
	},
}

func init() {
	boundaryCmd.Flags().StringVar(&boundaryBBox, "bbox", "", "bounding box minLon,minLat,maxLon,maxLat")
	_ = boundaryCmd.MarkFlagRequired("bbox")
	rootCmd.AddCommand(boundaryCmd)
}
