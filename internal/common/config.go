package common

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Blob     BlobConfig     `mapstructure:"blob"`
	OCR      OCRConfig      `mapstructure:"ocr"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Layout   LayoutConfig   `mapstructure:"layout"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres or sqlite
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int           `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
}

// BlobConfig holds artifact storage configuration
type BlobConfig struct {
	Type      string `mapstructure:"type"` // local or minio
	Path      string `mapstructure:"path"`
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Language    string        `mapstructure:"language"`
	TessdataDir string        `mapstructure:"tessdata_dir"`
	PageTimeout time.Duration `mapstructure:"page_timeout"`
}

// LLMConfig holds field-extraction model configuration
type LLMConfig struct {
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Temperature float32       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// PipelineConfig holds orchestration settings
type PipelineConfig struct {
	Workers      int           `mapstructure:"workers"`
	QueueSize    int           `mapstructure:"queue_size"`
	RunTimeout   time.Duration `mapstructure:"run_timeout"`
	RetryBudget  int           `mapstructure:"retry_budget"`
	StaleAfter   time.Duration `mapstructure:"stale_after"`
	DrawOverlays bool          `mapstructure:"draw_overlays"`
}

// LayoutConfig holds the spatial-reconstruction thresholds. It mirrors the
// layout package's Config so profiles can be expressed in the config file.
type LayoutConfig struct {
	RowTolerance     float64 `mapstructure:"row_tolerance"`
	GapThreshold     float64 `mapstructure:"gap_threshold"`
	MinMergeLength   int     `mapstructure:"min_merge_length"`
	OverlapLimit     float64 `mapstructure:"overlap_limit"`
	Separator        string  `mapstructure:"separator"`
	ShortLabelLength int     `mapstructure:"short_label_length"`
	SkipPenalty      float64 `mapstructure:"skip_penalty"`
}

// LoadConfig reads configuration from an optional file plus environment
// variables. Environment variables use the section prefix with underscores,
// e.g. DATABASE_DSN or LLM_API_KEY.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, WrapError(err, "read config file")
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, WrapError(err, "parse config")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.max_conn_lifetime", 30*time.Minute)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_upload_bytes", int64(32<<20))

	v.SetDefault("blob.type", "local")
	v.SetDefault("blob.path", "./artifacts")
	v.SetDefault("blob.bucket", "creditocr")
	v.SetDefault("blob.use_ssl", false)

	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.page_timeout", 2*time.Minute)

	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.timeout", 45*time.Second)

	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.queue_size", 64)
	v.SetDefault("pipeline.run_timeout", 10*time.Minute)
	v.SetDefault("pipeline.retry_budget", 2)
	v.SetDefault("pipeline.stale_after", 30*time.Minute)
	v.SetDefault("pipeline.draw_overlays", true)

	v.SetDefault("layout.row_tolerance", 15.0)
	v.SetDefault("layout.gap_threshold", 20.0)
	v.SetDefault("layout.min_merge_length", 3)
	v.SetDefault("layout.overlap_limit", 40.0)
	v.SetDefault("layout.separator", " ")
	v.SetDefault("layout.short_label_length", 30)
	v.SetDefault("layout.skip_penalty", 0.85)
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator().
		Field("database.dsn", c.Database.DSN, Required).
		Field("database.driver", c.Database.Driver, OneOf("postgres", "sqlite")).
		Field("server.addr", c.Server.Addr, Required).
		Field("blob.type", c.Blob.Type, OneOf("local", "minio"))
	if c.Blob.Type == "minio" {
		v.Field("blob.endpoint", c.Blob.Endpoint, Required)
	}
	return v.Error()
}
