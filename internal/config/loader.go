package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "hashprobe"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "HASHPROBE"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance so that flags
// bound by the root command are visible.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWithViper creates a loader on an isolated viper instance.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load reads the first hashprobe.* found on the search path, or only
// defaults and environment when there is none, and validates the result.
func (l *Loader) Load() (*Config, error) {
	return l.load("", true)
}

// LoadWithoutValidation is Load minus Validate.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	return l.load("", false)
}

// LoadWithFile loads configuration from a specific file path. An empty
// path falls back to Load.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	return l.load(configFile, true)
}

// LoadWithFileWithoutValidation is LoadWithFile minus Validate.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	return l.load(configFile, false)
}

func (l *Loader) load(configFile string, validate bool) (*Config, error) {
	l.setupEnvironmentVariables()
	l.setDefaults()

	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
		if err := l.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if validate {
		if err := config.Validate(); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}
	return &config, nil
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

func (l *Loader) addConfigPaths() {
	l.v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		l.v.AddConfigPath(home)
	}
	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		l.v.AddConfigPath(filepath.Join(configDir, "hashprobe"))
	} else if home, err := os.UserHomeDir(); err == nil {
		l.v.AddConfigPath(filepath.Join(home, ".config", "hashprobe"))
	}
	l.v.AddConfigPath("/etc/hashprobe")
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every scalar default so AutomaticEnv can override it.
func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	l.v.SetDefault("models_dir", defaults.ModelsDir)
	l.v.SetDefault("log_level", defaults.LogLevel)
	l.v.SetDefault("verbose", defaults.Verbose)
	l.v.SetDefault("noise", defaults.Noise)

	l.v.SetDefault("dataset.name", defaults.Dataset.Name)
	l.v.SetDefault("dataset.root", defaults.Dataset.Root)
	l.v.SetDefault("dataset.manifest", defaults.Dataset.Manifest)
	l.v.SetDefault("dataset.relevance", defaults.Dataset.Relevance)
	l.v.SetDefault("dataset.batch_size", defaults.Dataset.BatchSize)
	l.v.SetDefault("dataset.resize_size", defaults.Dataset.ResizeSize)
	l.v.SetDefault("dataset.crop_size", defaults.Dataset.CropSize)
	l.v.SetDefault("dataset.prefetch", defaults.Dataset.Prefetch)
	l.v.SetDefault("dataset.workers", defaults.Dataset.Workers)

	for name, r := range defaults.Ranges {
		l.v.SetDefault("ranges."+name+".mean", r.Mean)
		l.v.SetDefault("ranges."+name+".std", r.Std)
	}

	l.v.SetDefault("eval.modes", defaults.Eval.Modes)
	l.v.SetDefault("eval.topk", defaults.Eval.TopK)
	l.v.SetDefault("eval.seed", defaults.Eval.Seed)
	l.v.SetDefault("eval.clamp_clean_jpeg", defaults.Eval.ClampCleanJPEG)
	l.v.SetDefault("eval.save_codes", defaults.Eval.SaveCodes)
	l.v.SetDefault("eval.progress", defaults.Eval.Progress)

	l.v.SetDefault("output.dir", defaults.Output.Dir)
	l.v.SetDefault("output.format", defaults.Output.Format)
	l.v.SetDefault("output.file", defaults.Output.File)
	l.v.SetDefault("output.metrics_file", defaults.Output.MetricsFile)
	l.v.SetDefault("output.results_db", defaults.Output.ResultsDB)

	l.v.SetDefault("gpu.enabled", defaults.GPU.Enabled)
	l.v.SetDefault("gpu.device", defaults.GPU.Device)
	l.v.SetDefault("gpu.memory_limit", defaults.GPU.MemoryLimit)
	l.v.SetDefault("gpu.num_threads", defaults.GPU.NumThreads)
}

// GetResolvedConfig returns the current resolved configuration for debugging.
func (l *Loader) GetResolvedConfig() map[string]any {
	return l.v.AllSettings()
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home, filepath.Join(home, ".config", "hashprobe"))
	}
	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		paths = append(paths, filepath.Join(configDir, "hashprobe"))
	}
	return append(paths, "/etc/hashprobe")
}
