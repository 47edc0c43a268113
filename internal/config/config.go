package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "ETL"

// Config represents the complete pipeline configuration
type Config struct {
	Pipeline  PipelineConfig  `yaml:"pipeline" envconfig:"PIPELINE"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`

	// Datasets holds per-dataset overrides keyed by dataset name. File only.
	Datasets map[string]DatasetOverride `yaml:"datasets" ignored:"true"`
}

// PipelineConfig controls how datasets are scheduled
type PipelineConfig struct {
	Workers           int           `yaml:"workers" envconfig:"WORKERS" validate:"min=1,max=64"`
	YearMin           int           `yaml:"year_min" envconfig:"YEAR_MIN" validate:"min=1900"`
	YearMax           int           `yaml:"year_max" envconfig:"YEAR_MAX" validate:"gtefield=YearMin"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" envconfig:"HEARTBEAT_INTERVAL"`
	FailOnError       bool          `yaml:"fail_on_error" envconfig:"FAIL_ON_ERROR"`
}

// PathsConfig contains file system paths configuration.
// Relative paths are resolved against BaseDir (working directory when empty).
type PathsConfig struct {
	BaseDir      string `yaml:"base_dir" envconfig:"BASE_DIR"`
	RawDir       string `yaml:"raw_dir" envconfig:"RAW_DIR" validate:"required"`
	ProcessedDir string `yaml:"processed_dir" envconfig:"PROCESSED_DIR" validate:"required"`
	LogsDir      string `yaml:"logs_dir" envconfig:"LOGS_DIR" validate:"required"`
	HistoryDB    string `yaml:"history_db" envconfig:"HISTORY_DB"`
	MetricsFile  string `yaml:"metrics_file" envconfig:"METRICS_FILE"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level         string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format        string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
	Output        string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath      string `yaml:"file_path" envconfig:"FILE_PATH"`
	DatasetFormat string `yaml:"dataset_format" envconfig:"DATASET_FORMAT" validate:"oneof=json text"`
}

// TelemetryConfig selects the OpenTelemetry exporters
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name" envconfig:"SERVICE_NAME" validate:"required"`
	TraceExporter  string `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=none stdout"`
	MetricExporter string `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" validate:"oneof=none prometheus"`
}

// DatasetOverride replaces parts of a compiled-in dataset definition
type DatasetOverride struct {
	Input   string `yaml:"input"`
	Output  string `yaml:"output"`
	Enabled *bool  `yaml:"enabled"`
}

// IsEnabled reports whether the override leaves the dataset switched on.
func (o DatasetOverride) IsEnabled() bool {
	return o.Enabled == nil || *o.Enabled
}

// Load builds the configuration from defaults, the optional YAML file and
// environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom is Load with an explicit YAML file. An empty path falls back to
// $ETL_CONFIG_FILE and the default locations.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	configFile := path
	if configFile == "" {
		configFile = getConfigFilePath()
	}
	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file %s: %w", configFile, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays YAML values onto cfg; keys absent from the file keep their value.
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate checks field constraints and normalizes a few values.
func (c *Config) Validate() error {
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Format = strings.ToLower(c.Logging.Format)
	c.Logging.Output = strings.ToLower(c.Logging.Output)
	c.Logging.DatasetFormat = strings.ToLower(c.Logging.DatasetFormat)

	if err := newValidator().Struct(c); err != nil {
		var msgs []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				msgs = append(msgs, formatFieldError(fe))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return err
	}

	if c.Logging.Output != "console" && c.Logging.FilePath == "" {
		return fmt.Errorf("logging.file_path is required when logging.output is %q", c.Logging.Output)
	}

	for name := range c.Datasets {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("dataset override with empty name")
		}
	}

	return nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func formatFieldError(fe validator.FieldError) string {
	// Namespace looks like Config.pipeline.workers
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fmt.Sprint(fe.Value()))
	case "gtefield":
		return fmt.Sprintf("%s must not be less than %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// getConfigFilePath returns the path to the config file, or "" when none exists
func getConfigFilePath() string {
	if explicit := os.Getenv(EnvPrefix + "_CONFIG_FILE"); explicit != "" {
		return explicit
	}

	locations := []string{
		"etl.yaml",
		"configs/etl.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			Workers:           DefaultWorkers,
			YearMin:           DefaultYearMin,
			YearMax:           DefaultYearMax,
			HeartbeatInterval: DefaultHeartbeatInterval,
			FailOnError:       false,
		},
		Paths: PathsConfig{
			RawDir:       DefaultRawDir,
			ProcessedDir: DefaultProcessedDir,
			LogsDir:      DefaultLogsDir,
			HistoryDB:    DefaultHistoryDB,
		},
		Logging: LoggingConfig{
			Level:         "info",
			Format:        "json",
			Output:        "file",
			FilePath:      DefaultAppLogFile,
			DatasetFormat: "text",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    AppName,
			TraceExporter:  "none",
			MetricExporter: "prometheus",
		},
	}
}
