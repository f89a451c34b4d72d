package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/paperledger/paperledger/internal/model"
	"github.com/paperledger/paperledger/internal/service"
)

func anomaliesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "anomalies",
		Short: "Review detected anomalies",
		Long:  `List detected anomalies, resolve them, and summarize activity.`,
	}

	cmd.AddCommand(anomaliesListCmd())
	cmd.AddCommand(anomaliesResolveCmd())
	cmd.AddCommand(anomaliesInsightsCmd())

	return cmd
}

func anomaliesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List anomalies, newest first",
		RunE:  runAnomaliesList,
	}
	cmd.Flags().String("severity", "", "filter by severity (critical, warning, info)")
	cmd.Flags().Bool("unresolved", false, "show only unresolved anomalies")
	cmd.Flags().Int("days", 0, "limit to the last N days")
	return cmd
}

func runAnomaliesList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	severity, _ := cmd.Flags().GetString("severity")
	unresolved, _ := cmd.Flags().GetBool("unresolved")
	days, _ := cmd.Flags().GetInt("days")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("failed to close storage", "error", closeErr)
		}
	}()

	filter := service.AnomalyFilter{Severity: model.Severity(severity)}
	if unresolved {
		filter.Resolution = model.ResolutionUnresolved
	}
	if days > 0 {
		since := time.Now().AddDate(0, 0, -days)
		filter.Since = &since
	}

	anomalies, err := store.GetAnomalies(ctx, filter)
	if err != nil {
		return err
	}
	if len(anomalies) == 0 {
		fmt.Println("No anomalies found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() {
		if flushErr := w.Flush(); flushErr != nil {
			slog.Error("failed to flush table writer", "error", flushErr)
		}
	}()

	fmt.Fprintln(w, "ID\tDocument\tType\tSeverity\tDetected\tResolution")
	for _, a := range anomalies {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.DocumentID, a.Type, a.Severity,
			a.DetectedAt.Format("2006-01-02"), a.Resolution)
	}
	return nil
}

func anomaliesResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <id> <dismissed|confirmedSafe|confirmedFraud>",
		Short: "Record a decision on an anomaly",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			eng, cleanup, err := initEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			resolution := model.Resolution(args[1])
			if err := eng.ResolveAnomaly(ctx, args[0], resolution, time.Now()); err != nil {
				return err
			}
			fmt.Printf("Resolved anomaly %s as %s.\n", args[0], resolution)
			return nil
		},
	}
}

func anomaliesInsightsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Summarize anomaly activity over a period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			days, _ := cmd.Flags().GetInt("days")

			eng, cleanup, err := initEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			to := time.Now()
			from := to.AddDate(0, 0, -days)
			summary, err := eng.Insights(ctx, from, to)
			if err != nil {
				return err
			}

			fmt.Printf("Anomalies %s – %s: %d total\n",
				from.Format("2006-01-02"), to.Format("2006-01-02"), summary.Total)
			for severity, count := range summary.BySeverity {
				fmt.Printf("  %-10s %d\n", severity, count)
			}
			fmt.Println("By type:")
			for typ, count := range summary.ByType {
				fmt.Printf("  %-22s %d\n", typ, count)
			}
			return nil
		},
	}
	cmd.Flags().Int("days", 30, "period length in days")
	return cmd
}
