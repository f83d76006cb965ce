package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/Ashfaaq98/case-tracker/internal/cases"
	"github.com/Ashfaaq98/case-tracker/internal/store"
	"github.com/spf13/cobra"
)

var (
	seedCount int
	seedForce bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed sample cases into the local database",
	Long: `Seed sample cases into the local SQLite database.
This is useful for local testing when the database has no cases yet.
Existing cases are left alone unless --force is given.`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().IntVar(&seedCount, "count", 5, "Number of sample cases to create")
	seedCmd.Flags().BoolVar(&seedForce, "force", false, "Seed even when cases already exist")
}

var (
	sampleCourts  = []string{"High Court, Bench 2", "District Court", "Family Court", "Commercial Court", "Court of Appeal"}
	sampleTypes   = []string{"Civil", "Criminal", "Family", "Commercial", "Appellate"}
	sampleParties = []string{"Acme Ltd", "R. Perera", "Lanka Traders", "S. Fernando", "Blue Ocean Holdings"}
	samplePurpose = []string{"Trial", "Pre-trial", "Judgment", "Mention", "Inquiry"}
)

// sampleCases builds n demo records with hearing dates spread around now.
func sampleCases(n int, now time.Time) []cases.Record {
	records := make([]cases.Record, 0, n)
	for i := 0; i < n; i++ {
		k := i % len(sampleCourts)
		r := cases.Record{
			Active:       i%4 != 3,
			CaseNumber:   fmt.Sprintf("%s-%d/%d", sampleTypes[k][:2], 100+i, now.Year()),
			CourtDetails: sampleCourts[k],
			CourtType:    sampleTypes[k],
			OurParty:     sampleParties[k],
			Purpose:      samplePurpose[k],
			PreviousDate: now.AddDate(0, 0, -7*(i+1)).Format(cases.DateLayout),
		}
		// every third case has no next date yet
		if i%3 != 2 {
			r.NextDate = now.AddDate(0, 0, 3*(i+1)).Format(cases.DateLayout)
		}
		records = append(records, r)
	}
	return records
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	config := GetConfig()
	if config.Supabase.URL != "" {
		return fmt.Errorf("seed only works with the local backend")
	}

	logger := log.New(cmd.OutOrStdout(), "[seed] ", log.LstdFlags)
	logger.Println("Seeding sample data...")

	l, err := openLocal(config)
	if err != nil {
		return err
	}
	defer l.Close()
	st := l.Store()

	existing, err := st.CountCases(ctx)
	if err != nil {
		return fmt.Errorf("failed to count cases: %w", err)
	}
	if existing > 0 && !seedForce {
		logger.Printf("Database already has %d cases, skipping (use --force to add more)", existing)
		return nil
	}

	created := 0
	for _, r := range sampleCases(seedCount, time.Now()) {
		id, err := st.InsertCase(ctx, r)
		if err != nil {
			logger.Printf("Failed to create sample case %s: %v", r.CaseNumber, err)
			continue
		}
		if err := st.LogCaseAction(ctx, id, store.ActionCaseCreated, "seed", map[string]interface{}{"case_number": r.CaseNumber}); err != nil {
			logger.Printf("Failed to audit sample case %d: %v", id, err)
		}
		created++
	}

	logger.Printf("Seeding completed: %d cases created", created)
	return nil
}
