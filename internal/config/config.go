// Package config loads the grs-index configuration from YAML with
// environment overrides.
//
// Environment variables (all optional):
//
//	GRSINDEX_DATA_FOLDER         folder holding grs.csv.gz within the source
//	GRSINDEX_SOURCE_DRIVER       fs|s3|memory (default fs)
//	GRSINDEX_SOURCE_FS_ROOT      directory root when driver=fs (default .)
//	GRSINDEX_SOURCE_S3_BUCKET    bucket when driver=s3 (required for s3)
//	GRSINDEX_SOURCE_S3_REGION    region (default us-east-1)
//	GRSINDEX_SOURCE_S3_ENDPOINT  custom endpoint, e.g. MinIO
//	GRSINDEX_SOURCE_S3_PATH_STYLE true|false
//	GRSINDEX_INDEX_DRIVER        memory|sqlite|postgres (default sqlite)
//	GRSINDEX_INDEX_NAME          index name (default grs)
//	GRSINDEX_INDEX_SQLITE_PATH   database file when driver=sqlite
//	GRSINDEX_INDEX_POSTGRES_DSN  connection string when driver=postgres
//	GRSINDEX_WINDOW_DAYS         trailing window in days (default 90)
//	GRSINDEX_BATCH_SIZE          records per bulk write (default 500)
//	GRSINDEX_METRICS_TEXTFILE    write Prometheus metrics to this file after a run
//	GRSINDEX_METRICS_EXPVAR      true|false, also publish metrics via expvar
//	GRSINDEX_LOG_LEVEL           debug|info|warn|error (default info)
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"growthindex/internal/blob"
	"growthindex/internal/docstore"
)

const envPrefix = "GRSINDEX_"

// Config is the full grs-index configuration.
type Config struct {
	DataFolder string          `yaml:"data_folder"`
	Source     blob.Config     `yaml:"source"`
	Index      docstore.Config `yaml:"index"`
	WindowDays int             `yaml:"window_days"`
	BatchSize  int             `yaml:"batch_size"`
	Metrics    MetricsConfig   `yaml:"metrics"`
	Log        LogConfig       `yaml:"log"`
}

// MetricsConfig controls metrics export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
	Expvar   bool   `yaml:"expvar"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		DataFolder: ".",
		Source:     blob.Config{Driver: blob.DriverFilesystem, Root: "."},
		Index:      docstore.Config{Driver: docstore.DriverSQLite, Name: docstore.DefaultName, SQLitePath: "growthindex.db"},
		WindowDays: 90,
		BatchSize:  500,
		Log:        LogConfig{Level: "info"},
	}
}

// Load reads defaults, then the YAML file at path (skipped when path is
// empty), then environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !(errors.Is(err, fs.ErrNotExist) && path == DefaultPath) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultPath is read when no --config flag is given; its absence is not an error.
const DefaultPath = "grs-index.yaml"

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(envPrefix + key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = n
		return nil
	}

	str("DATA_FOLDER", &c.DataFolder)
	var driver string
	str("SOURCE_DRIVER", &driver)
	if driver != "" {
		c.Source.Driver = blob.Driver(driver)
	}
	str("SOURCE_FS_ROOT", &c.Source.Root)
	str("SOURCE_S3_BUCKET", &c.Source.S3.Bucket)
	str("SOURCE_S3_REGION", &c.Source.S3.Region)
	str("SOURCE_S3_ENDPOINT", &c.Source.S3.Endpoint)
	if v, ok := lookup(envPrefix + "SOURCE_S3_PATH_STYLE"); ok {
		c.Source.S3.PathStyle = strings.EqualFold(v, "true")
	}

	driver = ""
	str("INDEX_DRIVER", &driver)
	if driver != "" {
		c.Index.Driver = docstore.Driver(driver)
	}
	str("INDEX_NAME", &c.Index.Name)
	str("INDEX_SQLITE_PATH", &c.Index.SQLitePath)
	str("INDEX_POSTGRES_DSN", &c.Index.PostgresDSN)

	if err := integer("WINDOW_DAYS", &c.WindowDays); err != nil {
		return err
	}
	if err := integer("BATCH_SIZE", &c.BatchSize); err != nil {
		return err
	}
	str("METRICS_TEXTFILE", &c.Metrics.Textfile)
	if v, ok := lookup(envPrefix + "METRICS_EXPVAR"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sMETRICS_EXPVAR: %w", envPrefix, err)
		}
		c.Metrics.Expvar = b
	}
	str("LOG_LEVEL", &c.Log.Level)
	return nil
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	switch c.Source.Driver {
	case "", blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Source.S3.Bucket == "" {
			return fmt.Errorf("source.s3.bucket required for s3 driver")
		}
	default:
		return fmt.Errorf("unknown source driver %q", c.Source.Driver)
	}
	switch c.Index.Driver {
	case "", docstore.DriverMemory, docstore.DriverSQLite, docstore.DriverPostgres:
	default:
		return fmt.Errorf("unknown index driver %q", c.Index.Driver)
	}
	if c.WindowDays < 1 {
		return fmt.Errorf("window_days must be at least 1")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1")
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}

// Window returns the trailing window as a Duration.
func (c *Config) Window() time.Duration {
	return time.Duration(c.WindowDays) * 24 * time.Hour
}
