package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/breakwatch/internal/geo"
	"github.com/sells-group/breakwatch/internal/model"
	"github.com/sells-group/breakwatch/internal/store"
)

var incidentsCmd = &cobra.Command{
	Use:   "incidents",
	Short: "List incidents, most recently seen first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		filter, err := incidentFilterFromFlags(cmd, time.Now())
		if err != nil {
			return err
		}

		st, err := initStore(ctx, "query")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		incidents, err := st.ListIncidents(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "incidents list")
		}
		if len(incidents) == 0 {
			fmt.Fprintln(os.Stderr, "No incidents found.")
			return nil
		}

		formatIncidents(cmd.OutOrStdout(), incidents)
		return nil
	},
}

var incidentsShowCmd = &cobra.Command{
	Use:   "show <incident-id>",
	Short: "Show an incident with its signals and feedback",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, "query")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		detail, err := st.GetIncidentDetail(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "incidents show")
		}
		feedback, err := st.ListFeedback(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "incidents show")
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*model.IncidentDetail
			Feedback []model.Feedback `json:"feedback"`
		}{detail, feedback})
	},
}

func init() {
	addIncidentFilterFlags(incidentsCmd)
	incidentsCmd.AddCommand(incidentsShowCmd)
	rootCmd.AddCommand(incidentsCmd)
}

func addIncidentFilterFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("since", 0, "only incidents seen within this window (e.g. 6h)")
	cmd.Flags().Float64("min-confidence", 0, "minimum confidence score (0-100)")
	cmd.Flags().String("bbox", "", "bounding box minLon,minLat,maxLon,maxLat")
	cmd.Flags().Int("limit", 50, "max number of incidents to display")
}

// incidentFilterFromFlags builds a store filter from the incidents flags.
func incidentFilterFromFlags(cmd *cobra.Command, now time.Time) (store.IncidentFilter, error) {
	var filter store.IncidentFilter

	since, _ := cmd.Flags().GetDuration("since")
	if since > 0 {
		t := now.Add(-since).UTC()
		filter.Since = &t
	}
	if cmd.Flags().Changed("min-confidence") {
		minConf, _ := cmd.Flags().GetFloat64("min-confidence")
		if minConf < 0 || minConf > 100 {
			return filter, eris.Errorf("--min-confidence must be between 0 and 100, got %g", minConf)
		}
		filter.MinConfidence = &minConf
	}
	if raw, _ := cmd.Flags().GetString("bbox"); raw != "" {
		bbox, err := geo.ParseBBox(raw)
		if err != nil {
			return filter, err
		}
		filter.BBox = &bbox
	}
	filter.Limit, _ = cmd.Flags().GetInt("limit")
	return filter, nil
}

// formatIncidents writes a tabular list of incidents to out.
func formatIncidents(out io.Writer, incidents []model.Incident) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSCORE\tSIGNALS\tLAT\tLON\tFIRST_SEEN\tLAST_SEEN")
	_, _ = fmt.Fprintln(w, "--\t-----\t-------\t---\t---\t----------\t---------")

	for _, inc := range incidents {
		_, _ = fmt.Fprintf(w, "%s\t%.1f\t%d\t%.5f\t%.5f\t%s\t%s\n",
			truncateID(inc.ID),
			inc.ConfidenceScore,
			inc.SignalCount,
			inc.Latitude,
			inc.Longitude,
			inc.FirstSeen.Format("2006-01-02 15:04"),
			inc.LastSeen.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
