package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/breakwatch/internal/model"
)

var (
	feedbackStatus string
	feedbackNotes  string
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback <incident-id>",
	Short: "Record operator feedback on an incident",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		status := model.FeedbackStatus(feedbackStatus)
		if err := model.ValidateFeedback(status, feedbackNotes); err != nil {
			return err
		}

		st, err := initStore(ctx, "query")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		fb, err := st.CreateFeedback(ctx, args[0], status, feedbackNotes)
		if err != nil {
			return eris.Wrap(err, "feedback")
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(fb)
	},
}

func init() {
	feedbackCmd.Flags().StringVar(&feedbackStatus, "status", "", "confirmed, dismissed or investigating")
	feedbackCmd.Flags().StringVar(&feedbackNotes, "notes", "", "free-text notes (1-2000 characters)")
	_ = feedbackCmd.MarkFlagRequired("status")
	_ = feedbackCmd.MarkFlagRequired("notes")
	rootCmd.AddCommand(feedbackCmd)
}
