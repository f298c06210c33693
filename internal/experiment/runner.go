// Package experiment wires configuration, artifacts, networks and the
// evaluation loop into one robustness run over several models and modes.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/MeKo-Tech/hashprobe/internal/config"
	"github.com/MeKo-Tech/hashprobe/internal/corrupt"
	"github.com/MeKo-Tech/hashprobe/internal/dataset"
	"github.com/MeKo-Tech/hashprobe/internal/evaluate"
	"github.com/MeKo-Tech/hashprobe/internal/npy"
	"github.com/MeKo-Tech/hashprobe/internal/onnx"
	"github.com/MeKo-Tech/hashprobe/internal/report"
	"github.com/MeKo-Tech/hashprobe/internal/retrieval"
	"github.com/MeKo-Tech/hashprobe/internal/store"
	"github.com/MeKo-Tech/hashprobe/internal/tensor"
)

// Model is a loaded network that must be released after the run.
type Model interface {
	evaluate.Network
	io.Closer
}

// Opener loads the network described by cfg.
type Opener func(cfg onnx.Config) (Model, error)

// OpenONNX is the default Opener.
func OpenONNX(cfg onnx.Config) (Model, error) {
	net, err := onnx.NewHashNetwork(cfg)
	if err != nil {
		return nil, err
	}
	return net, nil
}

// Runner executes a configured run.
type Runner struct {
	cfg         *config.Config
	open        Opener
	out         io.Writer
	progressOut io.Writer
	logger      *slog.Logger
	runID       string
}

// Option configures a Runner.
type Option func(*Runner)

// WithOpener replaces the network loader.
func WithOpener(o Opener) Option { return func(r *Runner) { r.open = o } }

// WithOutput sets where report lines are printed.
func WithOutput(w io.Writer) Option { return func(r *Runner) { r.out = w } }

// WithProgressOutput sets where the progress bar is drawn.
func WithProgressOutput(w io.Writer) Option { return func(r *Runner) { r.progressOut = w } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(r *Runner) { r.logger = l } }

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option { return func(r *Runner) { r.runID = id } }

// NewRunner returns a runner for a validated cfg.
func NewRunner(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		cfg:         cfg,
		open:        OpenONNX,
		out:         os.Stdout,
		progressOut: os.Stderr,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}
	return r
}

// RunID returns the id naming this run's directory and ledger rows.
func (r *Runner) RunID() string { return r.runID }

// RunDir returns <output.dir>/<run id>.
func (r *Runner) RunDir() string { return filepath.Join(r.cfg.Output.Dir, r.runID) }

type loadedModel struct {
	name string
	net  Model
	db   retrieval.Set
}

// Run loads every artifact and model up front, then evaluates each
// (mode, model) pair in configuration order. Any failure aborts the run.
func (r *Runner) Run(ctx context.Context) (*report.Summary, error) {
	cfg := r.cfg
	if len(cfg.Models) == 0 {
		return nil, errors.New("no models configured")
	}
	rng, err := cfg.Range()
	if err != nil {
		return nil, err
	}

	loader, err := r.openDataset(rng)
	if err != nil {
		return nil, err
	}
	noise, err := LoadNoise(cfg.Noise, rng.Channels(), cfg.Dataset.CropSize)
	if err != nil {
		return nil, err
	}

	models, err := r.openModels(loader.LabelWidth())
	defer closeModels(models, r.logger)
	if err != nil {
		return nil, err
	}

	rl, err := report.NewLogger(r.out, r.RunDir())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rl.Close() }()

	var ledger *store.Ledger
	if cfg.Output.ResultsDB != "" {
		if ledger, err = store.Open(cfg.Output.ResultsDB); err != nil {
			return nil, err
		}
		defer func() { _ = ledger.Close() }()
	}

	metrics := report.NewMetrics()
	tr := corrupt.NewTransformer(rng, cfg.Eval.Seed).WithNativeSize(cfg.Dataset.CropSize)
	evaluator := evaluate.NewEvaluator(tr,
		evaluate.WithObserver(metrics),
		evaluate.WithLogger(r.logger),
		evaluate.WithCleanJPEGClamp(cfg.Eval.ClampCleanJPEG),
		evaluate.WithProgress(r.progress()),
	)

	summary := &report.Summary{RunID: r.runID, Started: time.Now().UTC(), Noise: cfg.Noise}
	r.logger.Info("run started",
		"run_id", r.runID,
		"models", len(models),
		"modes", cfg.Eval.Modes,
		"images", humanize.Comma(int64(loader.Len())),
		"log", rl.Path())

	if err := rl.Start(); err != nil {
		return nil, err
	}
	for _, mode := range cfg.Eval.Modes {
		if err := rl.Mode(mode); err != nil {
			return nil, err
		}
		for _, m := range models {
			entry, err := r.evaluateModel(ctx, evaluator, loader, noise, m, mode)
			if err != nil {
				return nil, fmt.Errorf("model %s: %w", m.name, err)
			}
			if err := rl.MAP(entry.Clean, entry.Perturbed); err != nil {
				return nil, err
			}
			metrics.RecordMAP(m.name, mode, entry.Clean, entry.Perturbed)
			if ledger != nil {
				if err := ledger.Append(r.record(entry)); err != nil {
					return nil, err
				}
			}
			summary.Entries = append(summary.Entries, entry)
		}
	}

	if err := r.writeOutputs(summary, metrics); err != nil {
		return nil, err
	}
	r.logger.Info("run finished", "run_id", r.runID, "entries", len(summary.Entries),
		"elapsed", time.Since(summary.Started).Round(time.Millisecond))
	return summary, nil
}

func (r *Runner) openDataset(rng corrupt.Range) (*datasetSource, error) {
	path := r.cfg.Dataset.Manifest
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.cfg.Dataset.Root, path)
	}
	manifest, err := dataset.LoadManifest(path)
	if err != nil {
		return nil, &ArtifactError{Kind: "manifest", Path: path, Err: err}
	}
	opts, err := r.cfg.ToDatasetOptions()
	if err != nil {
		return nil, err
	}
	opts.Range = rng
	opts.Logger = r.logger
	loader, err := dataset.NewLoader(manifest, opts)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("dataset ready", "manifest", path, "items", manifest.Len(), "label_width", manifest.LabelWidth)
	return &datasetSource{Loader: loader, labelWidth: manifest.LabelWidth}, nil
}

// datasetSource carries the manifest label width alongside the loader.
type datasetSource struct {
	*dataset.Loader
	labelWidth int
}

func (d *datasetSource) LabelWidth() int { return d.labelWidth }

func (r *Runner) openModels(labelWidth int) ([]loadedModel, error) {
	models := make([]loadedModel, 0, len(r.cfg.Models))
	for _, mc := range r.cfg.Models {
		db, err := LoadDatabase(mc.DatabaseCodes, mc.DatabaseLabels)
		if err != nil {
			return models, err
		}
		if db.Codes.Cols != mc.HashBit {
			return models, &ArtifactError{Kind: "database_codes", Path: mc.DatabaseCodes,
				Err: fmt.Errorf("%w: %d-bit codes for a %d-bit model", retrieval.ErrDimensionMismatch, db.Codes.Cols, mc.HashBit)}
		}
		if labelWidth > 0 && db.Labels.Cols != labelWidth {
			return models, &ArtifactError{Kind: "database_labels", Path: mc.DatabaseLabels,
				Err: fmt.Errorf("%w: %d label columns, manifest has %d", retrieval.ErrDimensionMismatch, db.Labels.Cols, labelWidth)}
		}

		netCfg, err := r.cfg.ToNetworkConfig(mc)
		if err != nil {
			return models, err
		}
		net, err := r.open(netCfg)
		if err != nil {
			return models, &ArtifactError{Kind: "model", Path: netCfg.ModelPath, Err: err}
		}
		models = append(models, loadedModel{name: mc.DisplayName(), net: net, db: db})
		r.logger.Debug("model ready", "model", mc.DisplayName(), "path", netCfg.ModelPath, "database", db.Codes.Rows)
	}
	return models, nil
}

func closeModels(models []loadedModel, logger *slog.Logger) {
	for _, m := range models {
		if err := m.net.Close(); err != nil {
			logger.Warn("failed to close model", "model", m.name, "error", err)
		}
	}
}

func (r *Runner) progress() evaluate.ProgressCallback {
	if r.cfg.Eval.Progress && r.progressOut != nil {
		return evaluate.NewBarProgressCallback(r.progressOut, "evaluating")
	}
	return evaluate.NewLogProgressCallback(r.logger, slog.LevelDebug, "eval")
}

func (r *Runner) evaluateModel(
	ctx context.Context,
	ev *evaluate.Evaluator,
	src evaluate.Source,
	noise []float32,
	m loadedModel,
	mode int,
) (report.Entry, error) {
	spec, err := corrupt.Lookup(mode)
	if err != nil {
		return report.Entry{}, err
	}
	res, err := ev.Evaluate(ctx, src, noise, m.net, mode)
	if err != nil {
		return report.Entry{}, err
	}
	if res.Len() > 0 && res.Clean.Cols != m.db.Codes.Cols {
		return report.Entry{}, fmt.Errorf("%w: network emits %d bits, database has %d",
			evaluate.ErrDimensionMismatch, res.Clean.Cols, m.db.Codes.Cols)
	}

	topk := r.cfg.Eval.TopK
	rel, err := r.cfg.Relevance()
	if err != nil {
		return report.Entry{}, err
	}
	clean, err := retrieval.MeanAveragePrecision(m.db, retrieval.Set{Codes: res.Clean, Labels: res.Labels}, topk, rel)
	if err != nil {
		return report.Entry{}, fmt.Errorf("clean mAP: %w", err)
	}
	perturbed, err := retrieval.MeanAveragePrecision(m.db, retrieval.Set{Codes: res.Perturbed, Labels: res.Labels}, topk, rel)
	if err != nil {
		return report.Entry{}, fmt.Errorf("perturbed mAP: %w", err)
	}

	if r.cfg.Eval.SaveCodes {
		if err := r.saveCodes(m.name, mode, res); err != nil {
			return report.Entry{}, err
		}
	}

	return report.Entry{
		Model:     m.name,
		Mode:      mode,
		Family:    spec.Family.String(),
		Param:     spec.Param(),
		Clean:     clean,
		Perturbed: perturbed,
		TopK:      topk,
		Queries:   res.Len(),
		Elapsed:   res.Elapsed,
	}, nil
}

// CodesPath returns the export path of one code matrix.
func CodesPath(runDir, model string, mode int, kind string) string {
	return filepath.Join(runDir, model+"_mode"+strconv.Itoa(mode)+"_"+kind+".npy")
}

func (r *Runner) saveCodes(model string, mode int, res *evaluate.Result) error {
	dir := r.RunDir()
	exports := []struct {
		kind string
		m    tensor.Matrix
	}{
		{"clean_codes", res.Clean},
		{"perturbed_codes", res.Perturbed},
		{"labels", res.Labels},
	}
	for _, e := range exports {
		if err := npy.WriteMatrix(CodesPath(dir, model, mode, e.kind), e.m); err != nil {
			return fmt.Errorf("failed to export %s: %w", e.kind, err)
		}
	}
	return nil
}

func (r *Runner) record(e report.Entry) store.Record {
	return store.Record{
		RunID:        r.runID,
		Model:        e.Model,
		Mode:         e.Mode,
		Family:       e.Family,
		Param:        e.Param,
		CleanMAP:     e.Clean,
		PerturbedMAP: e.Perturbed,
		TopK:         e.TopK,
		Queries:      e.Queries,
		Noise:        r.cfg.Noise,
	}
}

func (r *Runner) writeOutputs(summary *report.Summary, metrics *report.Metrics) error {
	out := r.cfg.Output
	if out.MetricsFile != "" {
		if err := metrics.WriteTextfile(out.MetricsFile); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	if out.File == "" {
		return nil
	}
	text, err := report.Format(*summary, out.Format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out.File, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
