package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/breakwatch/internal/metrics"
)

var (
	ingestOnce  bool
	ingestFeeds []string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Poll feeds and correlate new reports into incidents",
	Long:  "Fetches every configured feed, ingests new entries and clusters them into incidents. Runs every ingest.interval_mins unless --once is given.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx, "ingest")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return err
		}

		sources, err := loadSources(cfg.Ingest, ingestFeeds)
		if err != nil {
			return err
		}
		runner, err := newRunner(*cfg, st)
		if err != nil {
			return err
		}

		if ingestOnce {
			stats, err := runner.Run(ctx, sources)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}

		zap.L().Info("starting ingest loop",
			zap.Int("feeds", len(sources)),
			zap.Duration("interval", cfg.Ingest.Interval()),
		)
		return runner.Loop(ctx, sources, cfg.Ingest.Interval())
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestOnce, "once", false, "run a single pass and print stats")
	ingestCmd.Flags().StringSliceVar(&ingestFeeds, "feed", nil, "feed URL to poll instead of the configured feeds (repeatable)")
	rootCmd.AddCommand(ingestCmd)
}
