package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/Ashfaaq98/case-tracker/internal/bus"
	"github.com/spf13/cobra"
)

var (
	eventsGroup    string
	eventsConsumer string
	eventsStats    bool
)

// eventsCmd tails the case change stream
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Tail case change notifications from Redis",
	Long: `Tail the case_changes stream that the local backend publishes to after
every insert and update. Requires redis.url. Runs until interrupted.

Examples:
  # Follow changes
  case-tracker events --redis redis://localhost:6379

  # Print stream statistics and exit
  case-tracker events --stats`,
	RunE: runEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().StringVar(&eventsGroup, "group", "case-tracker-cli", "Consumer group name")
	eventsCmd.Flags().StringVar(&eventsConsumer, "consumer", "", "Consumer name (default is the hostname)")
	eventsCmd.Flags().BoolVar(&eventsStats, "stats", false, "Print stream statistics and exit")
}

func runEvents(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	config := GetConfig()
	out := cmd.OutOrStdout()

	if config.Redis.URL == "" {
		return errors.New("redis.url is not set; change notifications are disabled")
	}

	eventBus := bus.NewBus(config.Redis.URL, commandLogger(config, "[RedisBus] "))
	defer eventBus.Close()

	if err := eventBus.HealthCheck(ctx); err != nil {
		return fmt.Errorf("failed to reach Redis: %w", err)
	}

	if eventsStats {
		stats, err := eventBus.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}
		for _, k := range slices.Sorted(maps.Keys(stats)) {
			fmt.Fprintf(out, "%s: %v\n", k, stats[k])
		}
		return nil
	}

	consumer := eventsConsumer
	if consumer == "" {
		consumer, _ = os.Hostname()
	}

	fmt.Fprintf(out, "Following %s as %s/%s (Ctrl+C to stop)\n", bus.CaseStream, eventsGroup, consumer)
	err := eventBus.ReadCaseChanges(ctx, eventsGroup, consumer, func(_ context.Context, msg bus.ChangeMessage) error {
		printChange(out, msg)
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printChange(out io.Writer, msg bus.ChangeMessage) {
	ts := time.Unix(msg.Timestamp, 0).Format("2006-01-02 15:04:05")
	if msg.CaseID != 0 {
		fmt.Fprintf(out, "%s %s case %d (%s) by %s\n", ts, msg.Kind, msg.CaseID, dash(msg.CaseNumber), dash(msg.Actor))
		return
	}
	fmt.Fprintf(out, "%s %s by %s\n", ts, msg.Kind, dash(msg.Actor))
}
