package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/hashprobe/internal/experiment"
	"github.com/MeKo-Tech/hashprobe/internal/report"
	"github.com/MeKo-Tech/hashprobe/internal/retrieval"
)

type scoreOptions struct {
	dbCodes, dbLabels       string
	queryCodes, queryLabels string
	topk                    int
	relevance               string
}

func newScoreCommand(a *app) *cobra.Command {
	var opts scoreOptions

	scoreCmd := &cobra.Command{
		Use:   "score",
		Short: "Compute top-k mAP from saved code and label arrays",
		Long: `Score previously exported query codes against a database without
running any network. Codes are used as stored; pass binarized codes.

Example:
  hashprobe score --db-codes db.npy --db-labels db_labels.npy \
    --query-codes ResNet50_64_mode13_perturbed_codes.npy \
    --query-labels ResNet50_64_mode13_labels.npy --topk 300`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("topk") {
				opts.topk = a.cfg.Eval.TopK
			}
			if !cmd.Flags().Changed("relevance") {
				opts.relevance = a.cfg.Dataset.Relevance
			}
			v, err := runScore(opts)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "mAP:"+report.FormatScore(v))
			return err
		},
	}

	f := scoreCmd.Flags()
	f.StringVar(&opts.dbCodes, "db-codes", "", "database codes (.npy, [N,bits])")
	f.StringVar(&opts.dbLabels, "db-labels", "", "database labels (.npy, [N,classes])")
	f.StringVar(&opts.queryCodes, "query-codes", "", "query codes (.npy, [M,bits])")
	f.StringVar(&opts.queryLabels, "query-labels", "", "query labels (.npy, [M,classes])")
	f.IntVar(&opts.topk, "topk", 300, "number of retrieved items scored per query (default from config)")
	f.StringVar(&opts.relevance, "relevance", "", "relevance rule: multi-hot or exact (default from config)")
	for _, name := range []string{"db-codes", "db-labels", "query-codes", "query-labels"} {
		_ = scoreCmd.MarkFlagRequired(name)
	}
	return scoreCmd
}

func runScore(opts scoreOptions) (float64, error) {
	if opts.topk <= 0 {
		return 0, errors.New("topk must be positive")
	}
	rel, err := retrieval.ParseRelevance(opts.relevance)
	if err != nil {
		return 0, err
	}
	db, err := experiment.LoadDatabase(opts.dbCodes, opts.dbLabels)
	if err != nil {
		return 0, err
	}
	query, err := experiment.LoadSet("query", opts.queryCodes, opts.queryLabels)
	if err != nil {
		return 0, err
	}
	slog.Debug("scoring",
		"database", humanize.Comma(int64(db.Codes.Rows)),
		"queries", humanize.Comma(int64(query.Codes.Rows)),
		"bits", db.Codes.Cols, "topk", opts.topk, "relevance", rel.String())
	return retrieval.MeanAveragePrecision(db, query, opts.topk, rel)
}
