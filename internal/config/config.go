package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"batteryflow/internal/errors"
)

// Tracking backends
const (
	TrackingMLflow = "mlflow"
	TrackingFile   = "file"
)

// Artifact backends
const (
	ArtifactMLflow = "mlflow"
	ArtifactS3     = "s3"
	ArtifactLocal  = "local"
)

// Config represents the complete application configuration
type Config struct {
	Data      DataConfig
	Outliers  OutlierConfig
	Output    OutputConfig
	Tracking  TrackingConfig
	Artifacts ArtifactConfig
	Ledger    LedgerConfig
	Pipeline  PipelineConfig
	Server    ServerConfig
	Log       LogConfig
}

// DataConfig holds input and sampling settings
type DataConfig struct {
	Path       string
	SampleSize int
	Seed       int64
}

// OutlierConfig holds the thresholds of both filters
type OutlierConfig struct {
	ZThreshold    float64
	Contamination float64
}

// OutputConfig holds file system output locations
type OutputConfig struct {
	Dir string
}

// TrackingConfig holds experiment tracker settings
type TrackingConfig struct {
	Backend    string
	URI        string
	Experiment string
	Dir        string // root of the file tracker
	Timeout    time.Duration
}

// ArtifactConfig holds artifact store settings
type ArtifactConfig struct {
	Backend   string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// LedgerConfig holds the optional SQL mirror of the metrics ledger
type LedgerConfig struct {
	DBDriver string
	DBURL    string
}

// PipelineConfig holds orchestrator settings
type PipelineConfig struct {
	TaskRetries int
	RetryDelay  time.Duration
}

// ServerConfig holds trigger API settings
type ServerConfig struct {
	Port string
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string
	Format string
}

// LedgerPath returns the CSV metrics ledger location
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Output.Dir, "combined_metrics.csv")
}

// RunsDir returns where run manifests and reports are written
func (c *Config) RunsDir() string {
	return filepath.Join(c.Output.Dir, "runs")
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := &Config{
		Data: DataConfig{
			Path:       getEnvOrDefault("DATA_PATH", "data/case_study.csv"),
			SampleSize: getEnvIntOrDefault("SAMPLE_SIZE", 50000),
			Seed:       int64(getEnvIntOrDefault("SEED", 42)),
		},
		Outliers: OutlierConfig{
			ZThreshold:    getEnvFloatOrDefault("ZSCORE_THRESHOLD", 3.0),
			Contamination: getEnvFloatOrDefault("CONTAMINATION", 0.05),
		},
		Output: OutputConfig{
			Dir: getEnvOrDefault("OUTPUT_DIR", "outputs"),
		},
		Tracking: TrackingConfig{
			Backend:    strings.ToLower(getEnvOrDefault("TRACKING_BACKEND", TrackingMLflow)),
			URI:        getEnvOrDefault("MLFLOW_TRACKING_URI", "http://mlflow1:5000"),
			Experiment: getEnvOrDefault("MLFLOW_EXPERIMENT", "Anomaly_Detection1"),
			Dir:        getEnvOrDefault("TRACKING_DIR", "mlruns"),
			Timeout:    getEnvDurationOrDefault("TRACKING_TIMEOUT", 30*time.Second),
		},
		Artifacts: ArtifactConfig{
			Backend:   strings.ToLower(getEnvOrDefault("ARTIFACT_BACKEND", ArtifactMLflow)),
			Endpoint:  getEnvOrDefault("S3_ENDPOINT", ""),
			AccessKey: getEnvOrDefault("S3_ACCESS_KEY", ""),
			SecretKey: getEnvOrDefault("S3_SECRET_KEY", ""),
			Bucket:    getEnvOrDefault("S3_BUCKET", "mlflow-artifacts"),
			UseSSL:    getEnvBoolOrDefault("S3_USE_SSL", false),
		},
		Ledger: LedgerConfig{
			DBDriver: getEnvOrDefault("LEDGER_DB_DRIVER", ""),
			DBURL:    getEnvOrDefault("LEDGER_DB_URL", ""),
		},
		Pipeline: PipelineConfig{
			TaskRetries: getEnvIntOrDefault("PIPELINE_TASK_RETRIES", 1),
			RetryDelay:  getEnvDurationOrDefault("PIPELINE_RETRY_DELAY", 10*time.Second),
		},
		Server: ServerConfig{
			Port: getEnvOrDefault("PORT", "8080"),
		},
		Log: LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "INFO"),
			Format: getEnvOrDefault("LOG_FORMAT", "console"),
		},
	}

	if err := Validate(cfg); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return cfg, nil
}

// Validate checks ranges and backend-specific required fields
func Validate(cfg *Config) error {
	if cfg.Data.SampleSize <= 0 {
		return errors.ConfigInvalid("SAMPLE_SIZE must be positive")
	}
	if cfg.Outliers.ZThreshold <= 0 {
		return errors.ConfigInvalid("ZSCORE_THRESHOLD must be positive")
	}
	if cfg.Outliers.Contamination <= 0 || cfg.Outliers.Contamination > 0.5 {
		return errors.ConfigInvalid("CONTAMINATION must be in (0, 0.5]")
	}
	if cfg.Output.Dir == "" {
		return errors.ConfigInvalid("OUTPUT_DIR is required")
	}
	if cfg.Pipeline.TaskRetries < 0 {
		return errors.ConfigInvalid("PIPELINE_TASK_RETRIES cannot be negative")
	}

	switch cfg.Tracking.Backend {
	case TrackingMLflow:
		if cfg.Tracking.URI == "" {
			return errors.ConfigInvalid("MLFLOW_TRACKING_URI is required for the mlflow tracking backend")
		}
	case TrackingFile:
		if cfg.Tracking.Dir == "" {
			return errors.ConfigInvalid("TRACKING_DIR is required for the file tracking backend")
		}
	default:
		return errors.ConfigInvalid("TRACKING_BACKEND must be mlflow or file")
	}
	if cfg.Tracking.Experiment == "" {
		return errors.ConfigInvalid("MLFLOW_EXPERIMENT is required")
	}

	switch cfg.Artifacts.Backend {
	case ArtifactMLflow:
		if cfg.Tracking.Backend != TrackingMLflow {
			return errors.ConfigInvalid("ARTIFACT_BACKEND=mlflow requires TRACKING_BACKEND=mlflow")
		}
	case ArtifactS3:
		if cfg.Artifacts.Endpoint == "" || cfg.Artifacts.AccessKey == "" || cfg.Artifacts.SecretKey == "" {
			return errors.ConfigInvalid("S3_ENDPOINT, S3_ACCESS_KEY and S3_SECRET_KEY are required for the s3 artifact backend")
		}
	case ArtifactLocal:
	default:
		return errors.ConfigInvalid("ARTIFACT_BACKEND must be mlflow, s3 or local")
	}

	if (cfg.Ledger.DBDriver == "") != (cfg.Ledger.DBURL == "") {
		return errors.ConfigInvalid("LEDGER_DB_DRIVER and LEDGER_DB_URL must be set together")
	}
	switch cfg.Ledger.DBDriver {
	case "", "postgres", "sqlite":
	default:
		return errors.ConfigInvalid("LEDGER_DB_DRIVER must be postgres or sqlite")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
