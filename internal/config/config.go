package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"gpu-fitcheck/internal/gpuinfo"
)

const (
	ProviderSMI  = "smi"
	ProviderNVML = "nvml"
	ProviderHost = "host"

	OutputText  = "text"
	OutputTable = "table"
)

type Config struct {
	// Provider selects where GPU properties come from: smi, nvml or host.
	Provider   string   `yaml:"provider"`
	SMIPath    string   `yaml:"smi_path"`
	Properties []string `yaml:"properties"`
	NoHeader   bool     `yaml:"noheader"`
	NoUnits    bool     `yaml:"nounits"`
	Strict     bool     `yaml:"strict"`

	ModelPath string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"`
	GPUIndex  int    `yaml:"gpu_index"`

	Output   string `yaml:"output"`
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// FromEnv returns defaults overridden by FITCHECK_* environment variables.
func FromEnv() Config {
	return Config{
		Provider:   envString("FITCHECK_PROVIDER", ProviderSMI),
		SMIPath:    envString("FITCHECK_SMI_PATH", "nvidia-smi"),
		Properties: envList("FITCHECK_PROPERTIES", gpuinfo.DefaultProperties()),
		NoHeader:   envBool("FITCHECK_NOHEADER", true),
		NoUnits:    envBool("FITCHECK_NOUNITS", true),
		Strict:     envBool("FITCHECK_STRICT", false),
		ModelPath:  os.Getenv("FITCHECK_MODEL"),
		BatchSize:  envInt("FITCHECK_BATCH_SIZE", 1),
		GPUIndex:   envInt("FITCHECK_GPU_INDEX", 0),
		Output:     envString("FITCHECK_OUTPUT", OutputText),
		LogLevel:   envString("FITCHECK_LOG_LEVEL", "warn"),
		LogFile:    os.Getenv("FITCHECK_LOG_FILE"),
	}
}

// LoadFile overlays a YAML file onto cfg. Keys absent from the file keep
// their current values.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// BindFlags registers flags whose defaults are the current cfg values.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Provider, "provider", cfg.Provider, "GPU property source: smi, nvml or host")
	fs.StringVar(&cfg.SMIPath, "smi-path", cfg.SMIPath, "Path to nvidia-smi")
	fs.StringSliceVar(&cfg.Properties, "properties", cfg.Properties, "Properties passed to --query-gpu")
	fs.BoolVar(&cfg.NoHeader, "noheader", cfg.NoHeader, "Ask nvidia-smi to skip the csv header")
	fs.BoolVar(&cfg.NoUnits, "nounits", cfg.NoUnits, "Ask nvidia-smi to drop units from numeric values")
	fs.BoolVar(&cfg.Strict, "strict", cfg.Strict, "Fail on records whose value count differs from the property count")
	fs.StringVarP(&cfg.ModelPath, "model", "m", cfg.ModelPath, "Model descriptor (.yaml or .json)")
	fs.IntVarP(&cfg.BatchSize, "batch", "b", cfg.BatchSize, "Batch size")
	fs.IntVar(&cfg.GPUIndex, "gpu-index", cfg.GPUIndex, "Index of the GPU to compare against")
	fs.StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text or table")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Write JSON logs to this file instead of stderr")
}

func (c Config) Validate() error {
	switch strings.ToLower(c.Provider) {
	case ProviderSMI, "nvidia-smi", ProviderNVML, ProviderHost:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	switch c.Output {
	case OutputText, OutputTable:
	default:
		return fmt.Errorf("unknown output format %q", c.Output)
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("batch size must not be negative, got %d", c.BatchSize)
	}
	if c.GPUIndex < 0 {
		return fmt.Errorf("gpu index must not be negative, got %d", c.GPUIndex)
	}
	return nil
}

func envString(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
