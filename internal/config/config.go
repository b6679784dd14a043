package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	VIP       VIPConfig       `yaml:"vip" mapstructure:"vip"`
	Directory DirectoryConfig `yaml:"directory" mapstructure:"directory"`
	Classify  ClassifyConfig  `yaml:"classify" mapstructure:"classify"`
	Abuse     AbuseConfig     `yaml:"abuse" mapstructure:"abuse"`
	Redis     RedisConfig     `yaml:"redis" mapstructure:"redis"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Circuit   CircuitConfig   `yaml:"circuit" mapstructure:"circuit"`
	Alert     AlertConfig     `yaml:"alert" mapstructure:"alert"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	APIKeys     []string `yaml:"api_keys" mapstructure:"api_keys"`
	UploadDir   string   `yaml:"upload_dir" mapstructure:"upload_dir"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	Concurrency       int      `yaml:"concurrency" mapstructure:"concurrency"`
	EnrichTimeoutSecs int      `yaml:"enrich_timeout_secs" mapstructure:"enrich_timeout_secs"`
	MaxFileBytes      int64    `yaml:"max_file_bytes" mapstructure:"max_file_bytes"`
	Charset           string   `yaml:"charset" mapstructure:"charset"`
	NullTokens        []string `yaml:"null_tokens" mapstructure:"null_tokens"`
	DedupScope        string   `yaml:"dedup_scope" mapstructure:"dedup_scope"`
	DefaultSource     string   `yaml:"default_source" mapstructure:"default_source"`
	DLQMaxRetries     int      `yaml:"dlq_max_retries" mapstructure:"dlq_max_retries"`
	FetchTimeoutSecs  int      `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	BlockedDomains    []string `yaml:"blocked_domains" mapstructure:"blocked_domains"`
}

// EnrichTimeout returns the per-record enrichment deadline.
func (c IngestConfig) EnrichTimeout() time.Duration {
	return time.Duration(c.EnrichTimeoutSecs) * time.Second
}

// VIPConfig points at the VIP address list.
type VIPConfig struct {
	ListPath string `yaml:"list_path" mapstructure:"list_path"`
}

// DirectoryConfig configures the LDAP directory lookup.
type DirectoryConfig struct {
	URL          string  `yaml:"url" mapstructure:"url"`
	BindDN       string  `yaml:"bind_dn" mapstructure:"bind_dn"`
	BindPassword string  `yaml:"bind_password" mapstructure:"bind_password"`
	BaseDN       string  `yaml:"base_dn" mapstructure:"base_dn"`
	UserIDAttr   string  `yaml:"user_id_attr" mapstructure:"user_id_attr"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec   float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst        int     `yaml:"burst" mapstructure:"burst"`
}

// ClassifyConfig lists the domain suffixes treated as internal.
type ClassifyConfig struct {
	InternalDomains []string `yaml:"internal_domains" mapstructure:"internal_domains"`
}

// AbuseConfig points at the abuse-contact routing rules.
type AbuseConfig struct {
	RulesPath string `yaml:"rules_path" mapstructure:"rules_path"`
}

// RedisConfig configures the optional directory lookup cache.
type RedisConfig struct {
	URL     string `yaml:"url" mapstructure:"url"`
	TTLSecs int    `yaml:"ttl_secs" mapstructure:"ttl_secs"`
}

// RetryConfig configures retries around directory lookups.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig configures the directory circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// AlertConfig configures post-import alerting.
type AlertConfig struct {
	WebhookURL              string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	QuarantineRateThreshold float64 `yaml:"quarantine_rate_threshold" mapstructure:"quarantine_rate_threshold"`
}

// DefaultNullTokens are the cell values read as "no value".
var DefaultNullTokens = []string{
	"", "#N/A", "#N/A N/A", "#NA", "-1.#IND", "-1.#QNAN", "-NaN", "-nan",
	"1.#IND", "1.#QNAN", "<NA>", "N/A", "NA", "NULL", "NaN", "n/a", "null", "-",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CREDLEAK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_keys", []string{})
	v.SetDefault("server.upload_dir", "/tmp/credleak/uploads")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("ingest.concurrency", 1)
	v.SetDefault("ingest.enrich_timeout_secs", 10)
	v.SetDefault("ingest.max_file_bytes", int64(512<<20))
	v.SetDefault("ingest.charset", "")
	v.SetDefault("ingest.null_tokens", DefaultNullTokens)
	v.SetDefault("ingest.dedup_scope", "key")
	v.SetDefault("ingest.default_source", "spycloud")
	v.SetDefault("ingest.dlq_max_retries", 3)
	v.SetDefault("ingest.fetch_timeout_secs", 120)
	v.SetDefault("ingest.blocked_domains", []string{})
	v.SetDefault("vip.list_path", "VIP.txt")
	v.SetDefault("directory.user_id_attr", "ecMoniker")
	v.SetDefault("directory.timeout_secs", 5)
	v.SetDefault("directory.rate_per_sec", 20.0)
	v.SetDefault("directory.burst", 5)
	v.SetDefault("classify.internal_domains", []string{"europa.eu", "jrc.it"})
	v.SetDefault("redis.ttl_secs", 86400)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 200)
	v.SetDefault("retry.max_backoff_ms", 2000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("alert.quarantine_rate_threshold", 0.25)

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

// Validate checks the settings required by the given command mode
// ("import", "serve" or "migrate") and reports every problem at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	if mode == "import" || mode == "serve" {
		switch c.Ingest.DedupScope {
		case "key", "credential":
		default:
			errs = append(errs, fmt.Sprintf("ingest.dedup_scope %q is not supported", c.Ingest.DedupScope))
		}
		if c.Ingest.Concurrency < 1 {
			errs = append(errs, "ingest.concurrency must be at least 1")
		}
		if c.Ingest.EnrichTimeoutSecs < 1 {
			errs = append(errs, "ingest.enrich_timeout_secs must be at least 1")
		}
	}

	if mode == "serve" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
		}
		if len(c.Server.APIKeys) == 0 {
			errs = append(errs, "server.api_keys must list at least one key")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
