package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mailblog/internal/sqlbuilder"
	"github.com/starford/mailblog/internal/storage"
)

// Output drivers.
const (
	OutputDriverFS = "fs"
	OutputDriverS3 = "s3"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app" toml:"app"`
	Database DatabaseConfig    `yaml:"database" toml:"database"`
	Output   OutputConfig      `yaml:"output" toml:"output"`
	Site     SiteConfig        `yaml:"site" toml:"site"`
	Spool    SpoolConfig       `yaml:"spool" toml:"spool"`
	Preview  PreviewConfig     `yaml:"preview" toml:"preview"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if err := c.Site.Validate(); err != nil {
		return fmt.Errorf("site: %w", err)
	}
	if err := c.Preview.Validate(); err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level" toml:"log_level"`
}

// DatabaseConfig selects the SQL dialect and connection.
// DSN is a file path for sqlite and a connection URL for postgres.
type DatabaseConfig struct {
	Dialect string `yaml:"dialect" toml:"dialect"`
	DSN     string `yaml:"dsn" toml:"dsn"`
}

// Validate validates the database configuration.
func (c *DatabaseConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dialect, validation.Required, validation.By(func(any) error {
			_, err := sqlbuilder.ParseDialect(c.Dialect)
			return err
		})),
		validation.Field(&c.DSN, validation.Required),
	)
}

// OutputConfig says where artifacts are written.
type OutputConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	Path   string `yaml:"path" toml:"path"`
	// Templates optionally replaces the built-in templates with a directory.
	Templates string   `yaml:"templates" toml:"templates"`
	S3        S3Config `yaml:"s3" toml:"s3"`
}

// Validate validates the output configuration.
func (c *OutputConfig) Validate() error {
	if c.Driver == "" {
		c.Driver = OutputDriverFS
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.In(OutputDriverFS, OutputDriverS3)),
		validation.Field(&c.Path, validation.When(c.Driver == OutputDriverFS, validation.Required)),
	); err != nil {
		return err
	}
	if c.Driver == OutputDriverS3 {
		return c.S3.Validate()
	}
	return nil
}

// S3Config holds S3-compatible bucket settings.
type S3Config struct {
	Endpoint  string `yaml:"endpoint" toml:"endpoint"`
	AccessKey string `yaml:"access_key" toml:"access_key"`
	SecretKey string `yaml:"secret_key" toml:"secret_key"`
	Bucket    string `yaml:"bucket" toml:"bucket"`
	Prefix    string `yaml:"prefix" toml:"prefix"`
	UseSSL    bool   `yaml:"use_ssl" toml:"use_ssl"`
}

// Validate validates the S3 configuration.
func (c *S3Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Endpoint, validation.Required),
		validation.Field(&c.Bucket, validation.Required),
	)
}

func (c *S3Config) storage() storage.S3Config {
	return storage.S3Config{
		Endpoint:  c.Endpoint,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Bucket:    c.Bucket,
		Prefix:    c.Prefix,
		UseSSL:    c.UseSSL,
	}
}

// SiteConfig holds what the templates show site-wide.
type SiteConfig struct {
	BaseURL string `yaml:"base_url" toml:"base_url"`
	Author  string `yaml:"author" toml:"author"`
	Title   string `yaml:"title" toml:"title"`
}

// Validate validates the site configuration.
func (c *SiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Title, validation.Required),
	)
}

// SpoolConfig holds the directory the watch command ingests from.
type SpoolConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// PreviewConfig holds the preview HTTP server configuration.
type PreviewConfig struct {
	Port  int    `yaml:"port" toml:"port"`
	Token string `yaml:"token" toml:"token"`
}

// Address returns the preview server address.
func (c *PreviewConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the preview configuration.
func (c *PreviewConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// NewDefaultConfig returns a Config with the defaults of a single-user
// install: SQLite under ~/.local/share and output in ~/public_html.
func NewDefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
		},
		Database: DatabaseConfig{
			Dialect: string(sqlbuilder.SQLite),
			DSN:     filepath.Join(home, ".local", "share", "mailblog.db"),
		},
		Output: OutputConfig{
			Driver: OutputDriverFS,
			Path:   filepath.Join(home, "public_html"),
		},
		Site: SiteConfig{
			BaseURL: "/blog",
			Author:  "mailblog",
			Title:   "Main Page",
		},
		Spool: SpoolConfig{
			Path: filepath.Join(home, ".local", "share", "mailblog", "spool"),
		},
		Preview: PreviewConfig{
			Port: 8080,
		},
	}
}
