package cmd

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/Ashfaaq98/case-tracker/internal/backend"
	"github.com/Ashfaaq98/case-tracker/internal/cases"
	"github.com/Ashfaaq98/case-tracker/internal/store"
	"github.com/spf13/cobra"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list [cases|audit]",
	Short: "List cases or the local audit trail",
	Long: `List cases in a simple text format, ordered by next hearing date.
This command works in any terminal environment and provides an alternative
to the TUI interface when terminal capabilities are limited.

A session is required: sign in first with 'case-tracker login'.

Examples:
  # List all cases
  case-tracker list

  # Only cases matching "acme" in case number, court or party
  case-tracker list --query acme

  # Audit trail of case 3 (local backend only)
  case-tracker list audit --case-id 3`,
	Args: cobra.MaximumNArgs(1),
	RunE: runList,
}

var (
	listQuery  string
	listLimit  int
	listCaseID int64
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listQuery, "query", "q", "", "Only show cases whose number, court or party contains this text")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum number of items to show (0 shows all)")
	listCmd.Flags().Int64Var(&listCaseID, "case-id", 0, "Case ID for the audit trail (0 lists sign-in and sign-out entries)")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	config := GetConfig()

	targetType := "cases"
	if len(args) > 0 {
		targetType = strings.ToLower(args[0])
	}

	switch targetType {
	case "cases":
		b, err := openBackend(config)
		if err != nil {
			return err
		}
		defer b.Close()
		return listCases(ctx, cmd.OutOrStdout(), b, listQuery, listLimit)
	case "audit":
		if config.Supabase.URL != "" {
			return fmt.Errorf("the audit trail is only kept by the local backend")
		}
		l, err := openLocal(config)
		if err != nil {
			return err
		}
		defer l.Close()
		return listAudit(ctx, cmd.OutOrStdout(), l.Store(), listCaseID, listLimit)
	default:
		return fmt.Errorf("unknown list type: %s (use 'cases' or 'audit')", targetType)
	}
}

func listCases(ctx context.Context, out io.Writer, b backend.Backend, query string, limit int) error {
	records, err := b.ListCases(ctx, backend.DefaultListOptions())
	if err != nil {
		return fmt.Errorf("failed to list cases: %w", err)
	}
	records = slices.Collect(cases.Filter(cases.NormalizeAll(records), query))
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	if len(records) == 0 {
		fmt.Fprintln(out, "No cases found.")
		return nil
	}

	fmt.Fprintf(out, "Found %d cases:\n\n", len(records))

	for i, r := range records {
		fmt.Fprintf(out, "%d. [%s] %s — %s\n", i+1, activeTag(r.Active), dash(r.CaseNumber), dash(r.CourtDetails))
		fmt.Fprintf(out, "   ID: %d\n", r.ID)
		if r.CourtType != "" {
			fmt.Fprintf(out, "   Court Type: %s\n", r.CourtType)
		}
		fmt.Fprintf(out, "   Our Party: %s\n", dash(r.OurParty))
		if r.Purpose != "" {
			fmt.Fprintf(out, "   Purpose: %s\n", r.Purpose)
		}
		fmt.Fprintf(out, "   Previous: %s  Next: %s\n", dash(r.PreviousDate), dash(r.NextDate))
		if r.Notes != "" {
			fmt.Fprintf(out, "   Notes: %s\n", r.Notes)
		}
		fmt.Fprintln(out)
	}

	return nil
}

func listAudit(ctx context.Context, out io.Writer, st *store.Store, caseID int64, limit int) error {
	if limit <= 0 {
		limit = 50
	}
	entries, err := st.GetAuditEntries(ctx, caseID, limit)
	if err != nil {
		return fmt.Errorf("failed to get audit entries: %w", err)
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No audit entries found.")
		return nil
	}

	fmt.Fprintf(out, "Showing %d audit entries:\n\n", len(entries))

	for i, e := range entries {
		fmt.Fprintf(out, "%d. %s %s by %s\n", i+1, e.Timestamp.Format("2006-01-02 15:04:05"), e.Action, dash(e.Actor))
		if e.CaseID != 0 {
			fmt.Fprintf(out, "   Case: %d\n", e.CaseID)
		}
		if len(e.Details) > 0 {
			keys := slices.Sorted(maps.Keys(e.Details))
			parts := make([]string, 0, len(keys))
			for _, k := range keys {
				parts = append(parts, fmt.Sprintf("%s=%v", k, e.Details[k]))
			}
			fmt.Fprintf(out, "   Details: %s\n", strings.Join(parts, " "))
		}
	}

	return nil
}

func activeTag(active bool) string {
	if active {
		return "ACTIVE"
	}
	return "CLOSED"
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
