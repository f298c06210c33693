package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/hashprobe/internal/config"
	"github.com/MeKo-Tech/hashprobe/internal/experiment"
	"github.com/MeKo-Tech/hashprobe/internal/onnx"
	"github.com/MeKo-Tech/hashprobe/internal/version"
)

// app carries the state shared by one command tree.
type app struct {
	loader  *config.Loader
	cfgFile string
	cfg     *config.Config
	open    experiment.Opener
}

// Execute builds the command tree on the global viper instance and runs it.
// This is called by main.main().
func Execute() {
	err := newRootCommand(config.NewLoader(), experiment.OpenONNX).Execute()
	if shutdownErr := onnx.Shutdown(); shutdownErr != nil {
		slog.Warn("failed to shut down ONNX Runtime", "error", shutdownErr)
	}
	if err != nil {
		os.Exit(1)
	}
}

// NewRootCommand returns a fresh command tree backed by its own viper
// instance, so repeated executions do not share flag state.
func NewRootCommand() *cobra.Command {
	return newRootCommand(config.NewLoaderWithViper(viper.New()), experiment.OpenONNX)
}

func newRootCommand(loader *config.Loader, open experiment.Opener) *cobra.Command {
	a := &app{loader: loader, open: open}

	rootCmd := &cobra.Command{
		Use:   "hashprobe",
		Short: "Robustness evaluator for deep hashing retrieval models",
		Long: `hashprobe measures how well deep hashing image retrieval models survive
a fixed adversarial perturbation combined with common image corruptions.

For every requested corruption mode it computes the top-k mean average
precision of clean and perturbed query codes against a fixed database.

Examples:
  hashprobe modes
  hashprobe eval --config hashprobe.yaml --modes 0,6,13
  hashprobe score --db-codes db.npy --db-labels db_labels.npy \
    --query-codes q.npy --query-labels q_labels.npy --topk 300`,
		Version:           version.String(),
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "",
		"config file (default is search in ., $HOME, $HOME/.config/hashprobe, /etc/hashprobe)")
	flags.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("models-dir", config.DefaultModelsDir, "directory containing <arch>_<bits>.onnx models")

	v := loader.GetViper()
	_ = v.BindPFlag("verbose", flags.Lookup("verbose"))
	_ = v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = v.BindPFlag("models_dir", flags.Lookup("models-dir"))

	rootCmd.AddCommand(
		newEvalCommand(a),
		newScoreCommand(a),
		newModesCommand(),
		newBenchCommand(a),
		newConfigCommand(a),
		newHistoryCommand(a),
	)
	return rootCmd
}

// setup loads the configuration and installs the default logger. Commands
// validate the parts they use.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := a.loader.LoadWithFileWithoutValidation(a.cfgFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	a.cfg = cfg
	slog.SetDefault(newLogger(cmd.ErrOrStderr(), cfg))
	if used := a.loader.GetConfigFileUsed(); used != "" {
		slog.Debug("configuration loaded", "file", used)
	}
	return nil
}

// newLogger builds the structured logger. stdout is reserved for reports.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel(cfg)}))
}

func logLevel(cfg *config.Config) slog.Level {
	if cfg.Verbose {
		return slog.LevelDebug
	}
	switch cfg.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func bindFlag(a *app, cmd *cobra.Command, key, flag string) {
	_ = a.loader.GetViper().BindPFlag(key, cmd.Flags().Lookup(flag))
}
