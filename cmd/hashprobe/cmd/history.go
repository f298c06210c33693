package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/hashprobe/internal/report"
	"github.com/MeKo-Tech/hashprobe/internal/store"
)

func newHistoryCommand(a *app) *cobra.Command {
	var (
		dbPath string
		filter store.Filter
	)

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List results recorded in the SQLite ledger",
		Long: `List (run, model, mode) results appended by 'hashprobe eval --results-db'.

Examples:
  hashprobe history --results-db results.db
  hashprobe history --results-db results.db --model ResNet50_64 --mode 13`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("results-db") {
				dbPath = a.cfg.Output.ResultsDB
			}
			if dbPath == "" {
				return errors.New("no results database configured (use --results-db or output.results_db)")
			}
			if cmd.Flags().Changed("mode") {
				mode, _ := cmd.Flags().GetInt("mode")
				filter.Mode = &mode
			}

			if _, err := os.Stat(dbPath); err != nil {
				return fmt.Errorf("results database: %w", err)
			}
			ledger, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = ledger.Close() }()

			records, err := ledger.List(filter)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "RUN\tMODEL\tMODE\tFAMILY\tCLEAN\tPERTURBED\tTOPK\tCREATED")
			for _, r := range records {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%d\t%s\n",
					r.RunID, r.Model, r.Mode, r.Family,
					report.FormatScore(r.CleanMAP), report.FormatScore(r.PerturbedMAP),
					r.TopK, r.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}

	f := historyCmd.Flags()
	f.StringVar(&dbPath, "results-db", "", "SQLite ledger path (default from config)")
	f.StringVar(&filter.RunID, "run", "", "only rows of this run id")
	f.StringVar(&filter.Model, "model", "", "only rows of this model")
	f.Int("mode", 0, "only rows of this mode")
	f.IntVar(&filter.Limit, "limit", 0, "maximum number of rows (0 = all)")
	return historyCmd
}
