package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/journal"
)

var (
	journalAction  string
	journalOutcome string
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "List recorded lifecycle events",
	Long: `List the lifecycle events recorded by triggers and the idle monitor:
starts, stops, idle stops, relays, and their failures.`,
	Example: `  divinepic journal
  divinepic journal --action idle_stop
  divinepic journal --outcome failed`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig(cmd.Context())
		if err != nil {
			return err
		}

		store := journal.NewStore(cfg.Journal.Path)
		events, err := store.List(cmd.Context(), journal.Filter{
			Action:  journalAction,
			Outcome: journal.Outcome(journalOutcome),
		})
		if err != nil {
			return fmt.Errorf("list journal: %w", err)
		}

		for _, ev := range events {
			line := fmt.Sprintf("%s  %-18s %-7s %s",
				ev.At.Format(time.RFC3339), ev.Action, ev.Outcome, ev.InstanceID)
			if ev.Detail != "" {
				line += "  " + ev.Detail
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	journalCmd.Flags().StringVar(&journalAction, "action", "", "only events for this action")
	journalCmd.Flags().StringVar(&journalOutcome, "outcome", "", "only events with this outcome (ok, failed)")
	rootCmd.AddCommand(journalCmd)
}
