package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/hashprobe/internal/config"
	"github.com/MeKo-Tech/hashprobe/internal/experiment"
)

func newEvalCommand(a *app) *cobra.Command {
	defaults := config.DefaultConfig()

	evalCmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate every configured model under the requested corruption modes",
		Long: `Load the dataset, the noise pattern, every configured model and its
database, then for each mode print the mode banner followed by one
mAP:<clean>-><perturbed> line per model.

Lines are also appended to <output-dir>/<run-id>/log.txt.

Examples:
  hashprobe eval --config hashprobe.yaml
  hashprobe eval --modes 0,13,14,15,16,20 --topk 1000
  hashprobe eval --format json --output summary.json --results-db results.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := []experiment.Option{
				experiment.WithOpener(a.open),
				experiment.WithOutput(cmd.OutOrStdout()),
				experiment.WithProgressOutput(cmd.ErrOrStderr()),
				experiment.WithLogger(slog.Default()),
			}
			if id, _ := cmd.Flags().GetString("run-id"); id != "" {
				opts = append(opts, experiment.WithRunID(id))
			}
			runner := experiment.NewRunner(cfg, opts...)
			summary, err := runner.Run(ctx)
			if err != nil {
				return fmt.Errorf("run %s failed: %w", runner.RunID(), err)
			}
			slog.Debug("evaluation complete", "run_id", summary.RunID, "dir", runner.RunDir())
			return nil
		},
	}

	f := evalCmd.Flags()
	f.IntSlice("modes", defaults.Eval.Modes, "corruption modes to evaluate (see 'hashprobe modes')")
	f.Int("topk", defaults.Eval.TopK, "number of retrieved items scored per query")
	f.Uint64("seed", defaults.Eval.Seed, "seed for the Gaussian noise modes")
	f.String("noise", "", "path to the .npy perturbation")
	f.String("dataset", defaults.Dataset.Name, "dataset name selecting the normalization range")
	f.String("root", "", "dataset root directory")
	f.String("manifest", defaults.Dataset.Manifest, "manifest file, relative to the dataset root")
	f.Int("batch-size", defaults.Dataset.BatchSize, "images per batch")
	f.Bool("clamp-clean-jpeg", false, "clamp the clean path for JPEG modes as well")
	f.Bool("save-codes", false, "write clean and perturbed codes of every run as .npy")
	f.Bool("progress", false, "show a progress bar on stderr")
	f.String("output-dir", defaults.Output.Dir, "directory holding per-run log directories")
	f.String("format", defaults.Output.Format, "summary format (text, json, yaml, csv)")
	f.StringP("output", "o", "", "write the summary to this file")
	f.String("metrics-file", "", "write Prometheus metrics to this textfile")
	f.String("results-db", "", "append results to this SQLite ledger")
	f.Bool("gpu", false, "run inference with the CUDA provider")
	f.Int("gpu-device", 0, "CUDA device id")
	f.String("run-id", "", "run id (default: random UUID)")

	for key, flag := range map[string]string{
		"eval.modes":            "modes",
		"eval.topk":             "topk",
		"eval.seed":             "seed",
		"eval.clamp_clean_jpeg": "clamp-clean-jpeg",
		"eval.save_codes":       "save-codes",
		"eval.progress":         "progress",
		"noise":                 "noise",
		"dataset.name":          "dataset",
		"dataset.root":          "root",
		"dataset.manifest":      "manifest",
		"dataset.batch_size":    "batch-size",
		"output.dir":            "output-dir",
		"output.format":         "format",
		"output.file":           "output",
		"output.metrics_file":   "metrics-file",
		"output.results_db":     "results-db",
		"gpu.enabled":           "gpu",
		"gpu.device":            "gpu-device",
	} {
		bindFlag(a, evalCmd, key, flag)
	}
	return evalCmd
}
