package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func suggestionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggestions",
		Short: "Review recurrence suggestions",
		Long:  `List, accept, snooze, or dismiss pending recurrence suggestions.`,
	}

	cmd.AddCommand(suggestionsListCmd())
	cmd.AddCommand(suggestionsAcceptCmd())
	cmd.AddCommand(suggestionsSnoozeCmd())
	cmd.AddCommand(suggestionsDismissCmd())

	return cmd
}

func suggestionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending suggestions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			eng, cleanup, err := initEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			suggestions, err := eng.Suggestions(ctx, time.Now())
			if err != nil {
				return err
			}
			if len(suggestions) == 0 {
				fmt.Println("No pending suggestions. Run 'paperledger analyze' to re-score.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer func() {
				if flushErr := w.Flush(); flushErr != nil {
					slog.Error("failed to flush table writer", "error", flushErr)
				}
			}()

			fmt.Fprintln(w, "ID\tVendor\tCategory\tDocs\tDue day\tConfidence")
			for _, c := range suggestions {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%.2f\n",
					c.ID, c.DisplayName, c.Category, c.DocumentCount,
					c.DominantDueDay, c.Confidence)
			}
			return nil
		},
	}
}

func suggestionsAcceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept <id>",
		Short: "Accept a suggestion and create a recurring template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid candidate id %q", args[0])
			}

			eng, cleanup, err := initEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			template, intents, err := eng.AcceptCandidate(ctx, id, time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("✓ Created recurring template %d for %q (due day %d), %d side effect(s) scheduled.\n",
				template.ID, template.DisplayName, template.DueDay, len(intents))
			return nil
		},
	}
}

func suggestionsSnoozeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snooze <id>",
		Short: "Postpone a suggestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid candidate id %q", args[0])
			}
			days, _ := cmd.Flags().GetInt("days")

			eng, cleanup, err := initEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			until := time.Now().AddDate(0, 0, days)
			if err := eng.SnoozeCandidate(ctx, id, until); err != nil {
				return err
			}
			fmt.Printf("Snoozed suggestion %d until %s.\n", id, until.Format("2006-01-02"))
			return nil
		},
	}
	cmd.Flags().Int("days", 30, "days to snooze the suggestion for")
	return cmd
}

func suggestionsDismissCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dismiss <id>",
		Short: "Permanently dismiss a suggestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid candidate id %q", args[0])
			}

			eng, cleanup, err := initEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := eng.DismissCandidate(ctx, id, time.Now()); err != nil {
				return err
			}
			fmt.Printf("Dismissed suggestion %d.\n", id)
			return nil
		},
	}
}
