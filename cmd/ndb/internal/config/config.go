package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file read when no path is given.
const DefaultFile = "ndb.yaml"

// Config represents the ndb CLI configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store"`
	Log      LogConfig      `yaml:"log"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Archive  ArchiveConfig  `yaml:"archive"`
}

// StoreConfig holds the settings used to open a store.
type StoreConfig struct {
	Path           string `yaml:"path"`
	ChunkSize      int    `yaml:"chunk_size"`
	SchemaVersion  uint32 `yaml:"schema_version"`
	CapacityLimit  int64  `yaml:"capacity_limit"`
	IOLimit        int64  `yaml:"io_limit"`
	Workers        int64  `yaml:"workers"`
	RecoverUnclean bool   `yaml:"recover_unclean"`
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SnapshotConfig holds snapshot stream settings.
type SnapshotConfig struct {
	Compression string `yaml:"compression"`
}

// ArchiveConfig selects the archive backend.
type ArchiveConfig struct {
	Backend string      `yaml:"backend"`
	Local   LocalConfig `yaml:"local"`
	S3      S3Config    `yaml:"s3"`
	MinIO   MinIOConfig `yaml:"minio"`
}

// LocalConfig configures the local directory backend.
type LocalConfig struct {
	Dir string `yaml:"dir"`
}

// S3Config configures the S3 backend. Table names an optional DynamoDB
// catalog table.
type S3Config struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
	Table  string `yaml:"table"`
}

// MinIOConfig configures the MinIO backend.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Path: "index.ndb",
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		Snapshot: SnapshotConfig{
			Compression: "zstd",
		},
		Archive: ArchiveConfig{
			Backend: "local",
			Local:   LocalConfig{Dir: "archive"},
		},
	}
}

// Load reads configuration from file, falling back to defaults. If
// configPath is empty, it looks for ndb.yaml in the current directory.
// Values present in the file override the defaults.
func Load(configPath string) (*Config, error) {
	defaults := Default()

	if configPath == "" {
		configPath = DefaultFile
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaults, nil
		}
		return nil, err
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, err
	}

	defaults.Merge(&fileCfg)
	return defaults, defaults.Validate()
}

// Merge combines another config into this one, with non-zero fields of
// other taking precedence.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	s, o := &c.Store, other.Store
	setString(&s.Path, o.Path)
	if o.ChunkSize != 0 {
		s.ChunkSize = o.ChunkSize
	}
	if o.SchemaVersion != 0 {
		s.SchemaVersion = o.SchemaVersion
	}
	if o.CapacityLimit != 0 {
		s.CapacityLimit = o.CapacityLimit
	}
	if o.IOLimit != 0 {
		s.IOLimit = o.IOLimit
	}
	if o.Workers != 0 {
		s.Workers = o.Workers
	}
	s.RecoverUnclean = s.RecoverUnclean || o.RecoverUnclean

	setString(&c.Log.Level, other.Log.Level)
	setString(&c.Log.Format, other.Log.Format)
	setString(&c.Snapshot.Compression, other.Snapshot.Compression)

	a, oa := &c.Archive, other.Archive
	setString(&a.Backend, oa.Backend)
	setString(&a.Local.Dir, oa.Local.Dir)
	setString(&a.S3.Bucket, oa.S3.Bucket)
	setString(&a.S3.Prefix, oa.S3.Prefix)
	setString(&a.S3.Region, oa.S3.Region)
	setString(&a.S3.Table, oa.S3.Table)
	setString(&a.MinIO.Endpoint, oa.MinIO.Endpoint)
	setString(&a.MinIO.Bucket, oa.MinIO.Bucket)
	setString(&a.MinIO.Prefix, oa.MinIO.Prefix)
	setString(&a.MinIO.AccessKey, oa.MinIO.AccessKey)
	setString(&a.MinIO.SecretKey, oa.MinIO.SecretKey)
	a.MinIO.UseSSL = a.MinIO.UseSSL || oa.MinIO.UseSSL
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	switch c.Archive.Backend {
	case "local", "s3", "minio":
	default:
		return fmt.Errorf("config: unknown archive backend %q", c.Archive.Backend)
	}
	return nil
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.Log.Level))); err != nil {
		return 0, fmt.Errorf("config: %w", err)
	}
	return level, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
