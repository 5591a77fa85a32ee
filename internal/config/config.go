package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Upload     UploadConfig     `yaml:"upload" mapstructure:"upload"`
	Classifier ClassifierConfig `yaml:"classifier" mapstructure:"classifier"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Analytics  AnalyticsConfig  `yaml:"analytics" mapstructure:"analytics"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects and tunes the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port             int      `yaml:"port" mapstructure:"port"`
	UploadRPS        float64  `yaml:"upload_rps" mapstructure:"upload_rps"`
	UploadBurst      int      `yaml:"upload_burst" mapstructure:"upload_burst"`
	CORSOrigins      []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	ReadTimeoutSecs  int      `yaml:"read_timeout_secs" mapstructure:"read_timeout_secs"`
	WriteTimeoutSecs int      `yaml:"write_timeout_secs" mapstructure:"write_timeout_secs"`
}

// ReadTimeout returns the read timeout as a duration.
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSecs) * time.Second
}

// WriteTimeout returns the write timeout as a duration.
func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSecs) * time.Second
}

// UploadConfig configures document intake.
type UploadConfig struct {
	Dir        string `yaml:"dir" mapstructure:"dir"`
	MaxBytes   int64  `yaml:"max_bytes" mapstructure:"max_bytes"`
	CSRFCookie string `yaml:"csrf_cookie" mapstructure:"csrf_cookie"`
}

// ClassifierConfig configures the document-classification service client.
type ClassifierConfig struct {
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	FailureThreshold int    `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int    `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// Timeout returns the per-call timeout as a duration.
func (c ClassifierConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// IngestConfig configures invoice persistence.
type IngestConfig struct {
	DefaultUnitID int64 `yaml:"default_unit_id" mapstructure:"default_unit_id"`
}

// AnalyticsConfig tunes the recommendation thresholds.
type AnalyticsConfig struct {
	VarianceThresholdPct float64 `yaml:"variance_threshold_pct" mapstructure:"variance_threshold_pct"`
	UnderuseRatio        float64 `yaml:"underuse_ratio" mapstructure:"underuse_ratio"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("UTILITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.upload_rps", 2)
	v.SetDefault("server.upload_burst", 5)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.read_timeout_secs", 15)
	v.SetDefault("server.write_timeout_secs", 90)
	v.SetDefault("upload.dir", "./storage/uploads")
	v.SetDefault("upload.max_bytes", 5<<20)
	v.SetDefault("upload.csrf_cookie", "csrf_token")
	v.SetDefault("classifier.base_url", "http://localhost:5000")
	v.SetDefault("classifier.timeout_secs", 30)
	v.SetDefault("classifier.failure_threshold", 5)
	v.SetDefault("classifier.reset_timeout_secs", 30)
	v.SetDefault("ingest.default_unit_id", 1)
	v.SetDefault("analytics.variance_threshold_pct", 20)
	v.SetDefault("analytics.underuse_ratio", 0.7)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode needs and reports every
// problem at once. Modes: serve, ingest, report, migrate.
func (c *Config) Validate(mode string) error {
	var problems []string
	add := func(p string) { problems = append(problems, p) }

	switch c.Store.Driver {
	case "postgres", "mysql":
		if c.Store.DatabaseURL == "" {
			add("store.database_url is required")
		}
	case "sqlite":
		if strings.Contains(c.Store.DatabaseURL, ":memory:") || strings.Contains(c.Store.DatabaseURL, "mode=memory") {
			add("store.database_url must be a file path for sqlite")
		}
	default:
		add("store.driver must be postgres, sqlite or mysql")
	}

	checkIngest := func() {
		if c.Upload.Dir == "" {
			add("upload.dir is required")
		}
		if c.Upload.MaxBytes <= 0 {
			add("upload.max_bytes must be > 0")
		}
		if c.Classifier.BaseURL == "" {
			add("classifier.base_url is required")
		}
		if c.Classifier.TimeoutSecs <= 0 {
			add("classifier.timeout_secs must be > 0")
		}
		if c.Ingest.DefaultUnitID <= 0 {
			add("ingest.default_unit_id must be > 0")
		}
	}
	checkAnalytics := func() {
		if c.Analytics.VarianceThresholdPct < 0 {
			add("analytics.variance_threshold_pct must be >= 0")
		}
		if c.Analytics.UnderuseRatio <= 0 || c.Analytics.UnderuseRatio > 1 {
			add("analytics.underuse_ratio must be in (0, 1]")
		}
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server.port must be > 0 and <= 65535")
		}
		if c.Server.UploadRPS <= 0 {
			add("server.upload_rps must be > 0")
		}
		if c.Server.UploadBurst <= 0 {
			add("server.upload_burst must be > 0")
		}
		if c.Upload.CSRFCookie == "" {
			add("upload.csrf_cookie is required")
		}
		checkIngest()
		checkAnalytics()
	case "ingest":
		checkIngest()
	case "report":
		checkAnalytics()
	case "migrate":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
