//nolint:lll
package config

// Config represents the complete configuration for hashprobe. It is loaded
// from configuration files, environment variables and command-line flags.
type Config struct {
	// Global settings
	ModelsDir string `mapstructure:"models_dir" yaml:"models_dir" json:"models_dir"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Dataset DatasetConfig          `mapstructure:"dataset" yaml:"dataset" json:"dataset"`
	Ranges  map[string]RangeConfig `mapstructure:"ranges" yaml:"ranges" json:"ranges"`
	Models  []ModelConfig          `mapstructure:"models" yaml:"models" json:"models"`
	Noise   string                 `mapstructure:"noise" yaml:"noise" json:"noise"`
	Eval    EvalConfig             `mapstructure:"eval" yaml:"eval" json:"eval"`
	Output  OutputConfig           `mapstructure:"output" yaml:"output" json:"output"`
	GPU     GPUConfig              `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
}

// DatasetConfig describes the query images and how they are preprocessed.
type DatasetConfig struct {
	Name       string `mapstructure:"name" yaml:"name" json:"name"`
	Root       string `mapstructure:"root" yaml:"root" json:"root"`
	Manifest   string `mapstructure:"manifest" yaml:"manifest" json:"manifest"`
	Relevance  string `mapstructure:"relevance" yaml:"relevance" json:"relevance"`
	BatchSize  int    `mapstructure:"batch_size" yaml:"batch_size" json:"batch_size"`
	ResizeSize int    `mapstructure:"resize_size" yaml:"resize_size" json:"resize_size"`
	CropSize   int    `mapstructure:"crop_size" yaml:"crop_size" json:"crop_size"`
	Prefetch   int    `mapstructure:"prefetch" yaml:"prefetch" json:"prefetch"`
	Workers    int    `mapstructure:"workers" yaml:"workers" json:"workers"`
}

// RangeConfig is a per-dataset normalization entry.
type RangeConfig struct {
	Mean []float32 `mapstructure:"mean" yaml:"mean" json:"mean"`
	Std  []float32 `mapstructure:"std" yaml:"std" json:"std"`
}

// ModelConfig names one hashing network and its precomputed database.
type ModelConfig struct {
	Name           string `mapstructure:"name" yaml:"name" json:"name"`
	Arch           string `mapstructure:"arch" yaml:"arch" json:"arch"`
	HashBit        int    `mapstructure:"hash_bit" yaml:"hash_bit" json:"hash_bit"`
	Path           string `mapstructure:"path" yaml:"path" json:"path"`
	DatabaseCodes  string `mapstructure:"database_codes" yaml:"database_codes" json:"database_codes"`
	DatabaseLabels string `mapstructure:"database_labels" yaml:"database_labels" json:"database_labels"`
}

// EvalConfig controls the evaluation loop.
type EvalConfig struct {
	Modes          []int  `mapstructure:"modes" yaml:"modes" json:"modes"`
	TopK           int    `mapstructure:"topk" yaml:"topk" json:"topk"`
	Seed           uint64 `mapstructure:"seed" yaml:"seed" json:"seed"`
	ClampCleanJPEG bool   `mapstructure:"clamp_clean_jpeg" yaml:"clamp_clean_jpeg" json:"clamp_clean_jpeg"`
	SaveCodes      bool   `mapstructure:"save_codes" yaml:"save_codes" json:"save_codes"`
	Progress       bool   `mapstructure:"progress" yaml:"progress" json:"progress"`
}

// OutputConfig contains report and artifact settings.
type OutputConfig struct {
	Dir         string `mapstructure:"dir" yaml:"dir" json:"dir"`
	Format      string `mapstructure:"format" yaml:"format" json:"format"`
	File        string `mapstructure:"file" yaml:"file" json:"file"`
	MetricsFile string `mapstructure:"metrics_file" yaml:"metrics_file" json:"metrics_file"`
	ResultsDB   string `mapstructure:"results_db" yaml:"results_db" json:"results_db"`
}

// GPUConfig contains GPU acceleration settings.
type GPUConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Device      int    `mapstructure:"device" yaml:"device" json:"device"`
	MemoryLimit string `mapstructure:"memory_limit" yaml:"memory_limit" json:"memory_limit"`
	NumThreads  int    `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
}
