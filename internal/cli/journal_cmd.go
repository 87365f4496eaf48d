package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/relaychat/internal/config"
	"github.com/soyeahso/relaychat/internal/journal"
)

func newJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the relay traffic journal",
	}

	cmd.AddCommand(newJournalListCmd())
	cmd.AddCommand(newJournalPruneCmd())
	return cmd
}

// openJournal opens the journal configured in the config file.
func openJournal() (*journal.DB, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return nil, err
	}
	if cfg.Journal.DSN == "" {
		return nil, fmt.Errorf("journal is disabled: set journal.dsn or RELAYCHAT_JOURNAL_DSN")
	}
	return journal.Open(cfg.Journal.DSN, paths.Data, log)
}

func newJournalListCmd() *cobra.Command {
	var (
		sessionID string
		limit     int
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List journal entries, newest last",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openJournal()
			if err != nil {
				return err
			}
			defer db.Close()

			entries, err := db.List(cmd.Context(), sessionID, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if entries == nil {
					entries = []journal.Entry{}
				}
				return enc.Encode(entries)
			}

			if len(entries) == 0 {
				fmt.Fprintln(out, "no journal entries")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tSESSION\tCUSTOMER\tDIR\tKIND\tMESSAGE\tSTATUS\tBODY")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					e.CreatedAt.Format(time.RFC3339), e.SessionID, e.CustomerID, e.Direction,
					e.Kind, e.ProviderMessageID, e.Status, truncate(e.Body, 60))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "only show entries for this session id")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of entries")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")
	return cmd
}

func newJournalPruneCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete journal entries older than a duration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			db, err := openJournal()
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := db.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d entries\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age cutoff")
	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
