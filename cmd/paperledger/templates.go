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

func templatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage recurring payment templates",
		Long:  `List, deactivate, and reactivate confirmed recurring templates.`,
	}

	cmd.AddCommand(templatesListCmd())
	cmd.AddCommand(templatesDeactivateCmd())
	cmd.AddCommand(templatesReactivateCmd())

	return cmd
}

func templatesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recurring templates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			all, _ := cmd.Flags().GetBool("all")

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer func() {
				if closeErr := store.Close(); closeErr != nil {
					slog.Error("failed to close storage", "error", closeErr)
				}
			}()

			templates, err := store.GetTemplates(ctx, !all)
			if err != nil {
				return err
			}
			if len(templates) == 0 {
				fmt.Println("No recurring templates. Accept a suggestion to create one.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer func() {
				if flushErr := w.Flush(); flushErr != nil {
					slog.Error("failed to flush table writer", "error", flushErr)
				}
			}()

			fmt.Fprintln(w, "ID\tVendor\tCategory\tDue day\tAmount\tMatched\tPaid\tMissed\tActive")
			for _, t := range templates {
				amount := t.AmountMin.StringFixed(2)
				if !t.AmountMin.Equal(t.AmountMax) {
					amount += "–" + t.AmountMax.StringFixed(2)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%d\t%d\t%d\t%v\n",
					t.ID, t.DisplayName, t.Category, t.DueDay, amount,
					t.MatchedCount, t.PaidCount, t.MissedCount, t.Active)
			}
			return nil
		},
	}
	cmd.Flags().Bool("all", false, "include deactivated templates")
	return cmd
}

func templatesDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <id>",
		Short: "Stop tracking a recurring template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid template id %q", args[0])
			}

			eng, cleanup, err := initEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			intents, err := eng.DeactivateTemplate(ctx, id)
			if err != nil {
				return err
			}
			fmt.Printf("Deactivated template %d, %d side effect(s) cancelled.\n", id, len(intents))
			return nil
		},
	}
}

func templatesReactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reactivate <id>",
		Short: "Resume tracking a deactivated template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid template id %q", args[0])
			}

			eng, cleanup, err := initEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			intents, err := eng.ReactivateTemplate(ctx, id, time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("Reactivated template %d, %d side effect(s) scheduled.\n", id, len(intents))
			return nil
		},
	}
}
