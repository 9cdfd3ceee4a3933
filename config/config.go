package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sequela02/ehrlich-sub001/internal/budget"
	"github.com/spf13/viper"
)

// Config holds all configuration for the investigation engine
type Config struct {
	General    GeneralConfig    `mapstructure:"general"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Researcher ResearcherConfig `mapstructure:"researcher"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Assay      AssayConfig      `mapstructure:"assay"`
	Budget     BudgetConfig     `mapstructure:"budget"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Events     EventsConfig     `mapstructure:"events"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Capability CapabilityConfig `mapstructure:"capability"`
	Domains    DomainsConfig    `mapstructure:"domains"`
	Findings   FindingsConfig   `mapstructure:"findings"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug     bool   `mapstructure:"debug"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

func (g GeneralConfig) Validate() error {
	switch strings.ToLower(g.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("general.log_level must be one of debug|info|warn|error, got %q", g.LogLevel)
	}
	switch g.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("general.log_format must be json or console, got %q", g.LogFormat)
	}
	return nil
}

// LLMConfig selects models and overrides their prices
type LLMConfig struct {
	DirectorModel   string                  `mapstructure:"director_model"`
	ResearcherModel string                  `mapstructure:"researcher_model"`
	Pricing         map[string]budget.Price `mapstructure:"pricing"`
}

// SchedulerConfig bounds the hypothesis tree search
type SchedulerConfig struct {
	MaxDepth  int `mapstructure:"max_depth"`
	MaxRounds int `mapstructure:"max_rounds"`
	BatchSize int `mapstructure:"batch_size"`
}

// Normalize applies defaults and caps the batch size at two.
func (s SchedulerConfig) Normalize() SchedulerConfig {
	if s.MaxDepth <= 0 {
		s.MaxDepth = 3
	}
	if s.MaxRounds <= 0 {
		s.MaxRounds = 5
	}
	if s.BatchSize <= 0 || s.BatchSize > 2 {
		s.BatchSize = 2
	}
	return s
}

// ResearcherConfig bounds one experiment's tool loop
type ResearcherConfig struct {
	MaxIterations int `mapstructure:"max_iterations"`
	MaxTokens     int `mapstructure:"max_tokens"`
}

func (r ResearcherConfig) Normalize() ResearcherConfig {
	if r.MaxIterations <= 0 {
		r.MaxIterations = 12
	}
	if r.MaxTokens <= 0 {
		r.MaxTokens = 4096
	}
	return r
}

// CacheConfig selects the tool cache backend
type CacheConfig struct {
	Backend      string                   `mapstructure:"backend"`
	KeyPrefix    string                   `mapstructure:"key_prefix"`
	TTLOverrides map[string]time.Duration `mapstructure:"ttl_overrides"`
}

func (c CacheConfig) Validate() error {
	switch c.Backend {
	case "memory", "redis":
		return nil
	}
	return fmt.Errorf("cache.backend must be memory or redis, got %q", c.Backend)
}

// AssayConfig controls the Z' gate
type AssayConfig struct {
	MinControls int `mapstructure:"min_controls"`
}

// BudgetConfig holds optional per-investigation guardrails; zero disables a limit.
type BudgetConfig struct {
	MaxCost        float64 `mapstructure:"max_cost"`
	MaxTokens      int64   `mapstructure:"max_tokens"`
	MaxTimeSeconds int64   `mapstructure:"max_time_seconds"`
}

// Limits converts the section into budget guardrails.
func (b BudgetConfig) Limits() budget.Config {
	return budget.Limits(b.MaxCost, b.MaxTokens, b.MaxTimeSeconds)
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL           string        `mapstructure:"url"`
	Host          string        `mapstructure:"host"`
	Port          string        `mapstructure:"port"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	DBName        string        `mapstructure:"dbname"`
	SSLMode       string        `mapstructure:"sslmode"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MigrationsDir string        `mapstructure:"migrations_dir"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.Port) == "" {
		return fmt.Errorf("storage.postgres.port required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN returns the url, or builds one from the discrete fields.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, p.Port, p.DBName, ssl)
}

// EventsConfig selects where live progress events are published
type EventsConfig struct {
	Sink         string `mapstructure:"sink"`
	StreamPrefix string `mapstructure:"stream_prefix"`
	MaxLen       int64  `mapstructure:"max_len"`
}

func (e EventsConfig) Validate() error {
	switch e.Sink {
	case "none", "redis", "postgres":
	default:
		return fmt.Errorf("events.sink must be none, redis or postgres, got %q", e.Sink)
	}
	if e.MaxLen < 0 {
		return fmt.Errorf("events.max_len cannot be negative")
	}
	return nil
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// CapabilityConfig controls the tool registry behaviour.
type CapabilityConfig struct {
	SigningSecret string `mapstructure:"signing_secret"`
}

// DomainsConfig points at extra domain definitions.
type DomainsConfig struct {
	Dir string `mapstructure:"dir"`
}

// FindingsConfig selects the index behind prior-findings search. The
// postgres backend also persists every investigation.
type FindingsConfig struct {
	Backend string `mapstructure:"backend"`
}

func (f FindingsConfig) Validate() error {
	switch f.Backend {
	case "memory", "postgres":
		return nil
	}
	return fmt.Errorf("findings.backend must be memory or postgres, got %q", f.Backend)
}

// UsesPostgres reports whether any selected backend needs the database.
func (c *Config) UsesPostgres() bool {
	return c.Events.Sink == "postgres" || c.Findings.Backend == "postgres"
}

// UsesRedis reports whether any selected backend needs redis.
func (c *Config) UsesRedis() bool {
	return c.Cache.Backend == "redis" || c.Events.Sink == "redis"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.log_format", "json")
	v.SetDefault("llm.director_model", "claude-opus-4-5")
	v.SetDefault("llm.researcher_model", "claude-sonnet-4-5")
	v.SetDefault("scheduler.max_depth", 3)
	v.SetDefault("scheduler.max_rounds", 5)
	v.SetDefault("scheduler.batch_size", 2)
	v.SetDefault("researcher.max_iterations", 12)
	v.SetDefault("researcher.max_tokens", 4096)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.key_prefix", "ehrlich:toolcache:")
	v.SetDefault("assay.min_controls", 3)
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.timeout", 5*time.Second)
	v.SetDefault("storage.postgres.host", "localhost")
	v.SetDefault("storage.postgres.port", "5432")
	v.SetDefault("storage.postgres.dbname", "ehrlich")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.postgres.timeout", 5*time.Second)
	v.SetDefault("storage.postgres.migrations_dir", "migrations")
	v.SetDefault("events.sink", "none")
	v.SetDefault("events.stream_prefix", "ehrlich:events:")
	v.SetDefault("events.max_len", 10000)
	v.SetDefault("telemetry.namespace", "ehrlich")
	v.SetDefault("findings.backend", "memory")
}

// Load reads config from path, or searches the usual locations when path is
// empty. A missing file is not an error; defaults and EHRLICH_* env apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("ehrlich")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)
			v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("EHRLICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Scheduler = cfg.Scheduler.Normalize()
	cfg.Researcher = cfg.Researcher.Normalize()
	if cfg.Assay.MinControls <= 0 {
		cfg.Assay.MinControls = 3
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section, including backends that are only required
// when selected.
func (c *Config) Validate() error {
	if err := c.General.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.Events.Validate(); err != nil {
		return err
	}
	if err := c.Budget.Limits().Validate(); err != nil {
		return fmt.Errorf("budget: %w", err)
	}
	if err := c.Findings.Validate(); err != nil {
		return err
	}
	if c.UsesRedis() {
		if err := c.Storage.Redis.Validate(); err != nil {
			return err
		}
	}
	if c.UsesPostgres() {
		if err := c.Storage.Postgres.Validate(); err != nil {
			return err
		}
	}
	return nil
}
