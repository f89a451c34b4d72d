package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Re-score recurrence candidates across all vendors",
		Long: `Recompute the recurrence confidence for every known vendor
fingerprint from stored document history. Useful after bulk imports or a
detector upgrade; running it repeatedly on unchanged data changes nothing.`,
		RunE: runAnalyze,
	}
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	eng, cleanup, err := initEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	suggestions, err := eng.AnalyzeAll(ctx, time.Now())
	if err != nil {
		return err
	}

	if len(suggestions) == 0 {
		fmt.Println("No recurrence suggestions.")
		return nil
	}

	fmt.Printf("%d recurrence suggestion(s) pending:\n", len(suggestions))
	for _, c := range suggestions {
		fmt.Printf("  [%d] %s (%.2f confidence, %d documents)\n",
			c.ID, c.DisplayName, c.Confidence, c.DocumentCount)
	}
	fmt.Println("Review with 'paperledger suggestions list'.")
	return nil
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Mark overdue expected payments as missed",
		Long: `Scan expected recurring instances and mark the ones whose due date
plus tolerance has passed as missed. Intended to run from a daily timer.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			eng, cleanup, err := initEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			intents, err := eng.SweepOverdue(ctx, time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("Sweep complete, %d side effect(s) emitted.\n", len(intents))
			return nil
		},
	}
}
