package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/Ashfaaq98/case-tracker/internal/bus"
	"github.com/spf13/cobra"
)

var (
	confirmReset bool
	resetRedis   bool
	keepSession  bool
)

// resetCmd represents the reset command
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the local database and optionally the Redis streams",
	Long: `Reset clears every case, user, login link and audit entry from the local
SQLite database and signs you out.

With --redis the case_changes and session_changes streams are deleted too.

WARNING: This operation is irreversible and will permanently delete all data.

Examples:
  # Reset the database (requires confirmation)
  case-tracker reset

  # Reset database and Redis streams without asking
  case-tracker reset --yes --redis`,
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().BoolVarP(&confirmReset, "yes", "y", false, "Automatically confirm reset operation")
	resetCmd.Flags().BoolVar(&resetRedis, "redis", false, "Also delete the Redis change streams")
	resetCmd.Flags().BoolVar(&keepSession, "keep-session", false, "Keep the stored session file")
}

func runReset(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	config := GetConfig()
	out := cmd.OutOrStdout()

	if config.Supabase.URL != "" {
		return fmt.Errorf("reset only works with the local backend")
	}

	targets := []string{"SQLite database"}
	if resetRedis {
		targets = append(targets, "Redis streams")
	}
	fmt.Fprintf(out, "This will permanently delete: %s\n", strings.Join(targets, " and "))

	// Confirm operation unless --yes flag is used
	if !confirmReset {
		if !confirm(cmd, "Are you sure you want to continue? (y/N): ") {
			fmt.Fprintln(out, "Reset operation cancelled.")
			return nil
		}
	}

	if resetRedis {
		if err := resetRedisStreams(ctx, config.Redis.URL); err != nil {
			fmt.Fprintf(out, "Warning: Failed to reset Redis data: %v\n", err)
		} else {
			fmt.Fprintln(out, "✓ Redis streams cleared successfully")
		}
	}

	l, err := openLocal(config)
	if err != nil {
		return err
	}
	defer l.Close()

	if !keepSession {
		// users are about to be deleted, so the stored session would point at nobody
		if err := l.SignOut(ctx); err != nil {
			return fmt.Errorf("failed to clear session: %w", err)
		}
		fmt.Fprintln(out, "✓ Session cleared")
	}

	if err := l.Store().Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset database: %w", err)
	}
	fmt.Fprintln(out, "✓ Database cleared successfully")

	fmt.Fprintln(out, "Reset operation completed successfully!")
	return nil
}

func resetRedisStreams(ctx context.Context, redisURL string) error {
	if redisURL == "" {
		return fmt.Errorf("redis.url is not set")
	}
	rb, err := bus.NewRedisBus(redisURL, nil)
	if err != nil {
		return err
	}
	defer rb.Close()
	return rb.DeleteStreams(ctx)
}
