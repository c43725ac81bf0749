package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	derrors "github.com/draftsmith/draftsmith/internal/errors"
)

// LogLevel specifies the logging verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat specifies the log output format.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

// ProviderName selects the text generation backend.
type ProviderName string

const (
	ProviderGemini   ProviderName = "gemini"
	ProviderScripted ProviderName = "scripted" // Deterministic offline provider
)

// Profile selects a model capability tier.
type Profile string

const (
	ProfileLite     Profile = "lite"
	ProfileStandard Profile = "standard"
	ProfileAdvanced Profile = "advanced"
)

// Valid returns true if this is a recognized profile.
func (p Profile) Valid() bool {
	return p == ProfileLite || p == ProfileStandard || p == ProfileAdvanced
}

// CheckpointBackend selects where run snapshots live.
type CheckpointBackend string

const (
	CheckpointFile  CheckpointBackend = "file"
	CheckpointRedis CheckpointBackend = "redis"
)

// TelemetryBackend selects where step metrics go.
type TelemetryBackend string

const (
	TelemetryJSONL    TelemetryBackend = "jsonl"
	TelemetryPostgres TelemetryBackend = "postgres"
	TelemetryOff      TelemetryBackend = "off"
)

// PathsConfig holds path configuration, relative to the project directory
// unless absolute.
type PathsConfig struct {
	RunsDir      string `toml:"runs_dir" validate:"required"`
	TelemetryDir string `toml:"telemetry_dir" validate:"required"`
	ArticlesDir  string `toml:"articles_dir" validate:"required"`
	LogsDir      string `toml:"logs_dir" validate:"required"`
	WorkflowsDir string `toml:"workflows_dir" validate:"required"`
}

// ProviderConfig holds text generation settings.
type ProviderConfig struct {
	Name      ProviderName       `toml:"name" validate:"required,oneof=gemini scripted"`
	Profile   Profile            `toml:"profile" validate:"required,oneof=lite standard advanced"`
	APIKeyEnv string             `toml:"api_key_env"`
	Models    map[Profile]string `toml:"models"`

	// Timeout bounds a single generation call.
	Timeout time.Duration `toml:"timeout"`
}

// Model returns the model name for a profile, falling back down the tiers.
func (p ProviderConfig) Model(profile Profile) string {
	if m, ok := p.Models[profile]; ok {
		return m
	}
	if m, ok := p.Models[ProfileStandard]; ok {
		return m
	}
	if m, ok := p.Models[ProfileLite]; ok {
		return m
	}
	return ""
}

// APIKey resolves the provider key from the configured environment variable.
func (p ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// OrchestratorConfig holds retry and budget settings.
type OrchestratorConfig struct {
	MaxAttempts       int           `toml:"max_attempts" validate:"min=1"`
	InitialBackoff    time.Duration `toml:"initial_backoff"`
	MaxBackoff        time.Duration `toml:"max_backoff"`
	BackoffMultiplier float64       `toml:"backoff_multiplier"`

	// BudgetUSD caps accumulated cost per run. Zero means no ceiling.
	BudgetUSD float64 `toml:"budget_usd" validate:"min=0"`

	// ScoreThreshold overrides workflow loop score bars when positive.
	ScoreThreshold float64 `toml:"score_threshold" validate:"min=0"`
}

// RedisConfig holds connection settings for the redis checkpoint backend.
type RedisConfig struct {
	Addr        string `toml:"addr"`
	DB          int    `toml:"db"`
	PasswordEnv string `toml:"password_env"`
	KeyPrefix   string `toml:"key_prefix"`
}

// Password resolves the redis password from the environment.
func (r RedisConfig) Password() string {
	if r.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(r.PasswordEnv)
}

// CheckpointConfig selects and configures the checkpoint store.
type CheckpointConfig struct {
	Backend CheckpointBackend `toml:"backend" validate:"required,oneof=file redis"`
	Redis   RedisConfig       `toml:"redis"`
}

// PostgresConfig holds connection settings for the postgres telemetry sink.
type PostgresConfig struct {
	DSNEnv string `toml:"dsn_env"`
}

// DSN resolves the postgres connection string from the environment.
func (p PostgresConfig) DSN() string {
	if p.DSNEnv == "" {
		return ""
	}
	return os.Getenv(p.DSNEnv)
}

// TelemetryConfig selects and configures the telemetry sink.
type TelemetryConfig struct {
	Backend    TelemetryBackend `toml:"backend" validate:"required,oneof=jsonl postgres off"`
	Prometheus bool             `toml:"prometheus"`
	Postgres   PostgresConfig   `toml:"postgres"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  LogLevel  `toml:"level" validate:"required,oneof=debug info warn error"`
	Format LogFormat `toml:"format" validate:"required,oneof=json text"`
	File   string    `toml:"file"`
}

// ReviewConfig holds approval gate presentation settings.
type ReviewConfig struct {
	// Renderer picks how artifacts are shown: "auto" uses glamour on a
	// TTY, "plain" always prints raw markdown.
	Renderer string `toml:"renderer" validate:"required,oneof=auto plain"`

	// Editor overrides $EDITOR for gate edits.
	Editor string `toml:"editor"`
}

// Config is the main configuration struct for draftsmith.
type Config struct {
	Version      string             `toml:"version" validate:"required"`
	Paths        PathsConfig        `toml:"paths"`
	Provider     ProviderConfig     `toml:"provider"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	Checkpoint   CheckpointConfig   `toml:"checkpoint"`
	Telemetry    TelemetryConfig    `toml:"telemetry"`
	Logging      LoggingConfig      `toml:"logging"`
	Review       ReviewConfig       `toml:"review"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Version: "1",
		Paths: PathsConfig{
			RunsDir:      ".draftsmith/runs",
			TelemetryDir: ".draftsmith/telemetry",
			ArticlesDir:  ".draftsmith/articles",
			LogsDir:      ".draftsmith/logs",
			WorkflowsDir: ".draftsmith/workflows",
		},
		Provider: ProviderConfig{
			Name:      ProviderGemini,
			Profile:   ProfileStandard,
			APIKeyEnv: "GEMINI_API_KEY",
			Models: map[Profile]string{
				ProfileLite:     "gemini-2.5-flash-lite",
				ProfileStandard: "gemini-2.5-flash",
				ProfileAdvanced: "gemini-2.5-pro",
			},
			Timeout: 2 * time.Minute,
		},
		Orchestrator: OrchestratorConfig{
			MaxAttempts:       3,
			InitialBackoff:    time.Second,
			MaxBackoff:        30 * time.Second,
			BackoffMultiplier: 2.0,
		},
		Checkpoint: CheckpointConfig{
			Backend: CheckpointFile,
			Redis: RedisConfig{
				Addr:        "localhost:6379",
				PasswordEnv: "DRAFTSMITH_REDIS_PASSWORD",
				KeyPrefix:   "draftsmith",
			},
		},
		Telemetry: TelemetryConfig{
			Backend: TelemetryJSONL,
			Postgres: PostgresConfig{
				DSNEnv: "DRAFTSMITH_POSTGRES_DSN",
			},
		},
		Logging: LoggingConfig{
			Level:  LogLevelInfo,
			Format: LogFormatText,
			File:   "", // Per-run logs in .draftsmith/logs/<run-id>.log
		},
		Review: ReviewConfig{
			Renderer: "auto",
		},
	}
}

// Load loads configuration from a file, merging with defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults if no config file
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from the standard locations in a directory.
// Applies in order: defaults -> ~/.draftsmith/config.toml -> .draftsmith/config.toml.
// Later configs override earlier ones. A .env file in the directory is loaded
// into the environment first so key lookups see it.
func LoadFromDir(dir string) (*Config, error) {
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	cfg := Default()

	home, err := os.UserHomeDir()
	if err == nil {
		globalConfig := filepath.Join(home, ".draftsmith", "config.toml")
		if data, err := os.ReadFile(globalConfig); err == nil {
			if _, err := toml.Decode(string(data), cfg); err != nil {
				return nil, fmt.Errorf("parsing global config: %w", err)
			}
		}
	}

	projectConfig := filepath.Join(dir, ".draftsmith", "config.toml")
	if data, err := os.ReadFile(projectConfig); err == nil {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing project config: %w", err)
		}
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	if c.Provider.Name == ProviderGemini {
		if c.Provider.APIKeyEnv == "" {
			return derrors.ConfigMissingField("provider.api_key_env")
		}
		if c.Provider.Model(c.Provider.Profile) == "" {
			return derrors.ConfigInvalidValue("provider.models", c.Provider.Models,
				"no model configured for any profile")
		}
	}
	if c.Orchestrator.BackoffMultiplier < 1 {
		return derrors.ConfigInvalidValue("orchestrator.backoff_multiplier",
			c.Orchestrator.BackoffMultiplier, "must be at least 1")
	}
	if c.Orchestrator.InitialBackoff < 0 || c.Orchestrator.MaxBackoff < 0 {
		return derrors.ConfigInvalidValue("orchestrator.backoff",
			c.Orchestrator.InitialBackoff, "backoff durations must not be negative")
	}
	if c.Checkpoint.Backend == CheckpointRedis && c.Checkpoint.Redis.Addr == "" {
		return derrors.ConfigMissingField("checkpoint.redis.addr")
	}
	if c.Telemetry.Backend == TelemetryPostgres && c.Telemetry.Postgres.DSNEnv == "" {
		return derrors.ConfigMissingField("telemetry.postgres.dsn_env")
	}
	return nil
}

// resolve returns an absolute path for a possibly relative configured path.
func resolve(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// RunsDir returns the absolute runs directory path.
func (c *Config) RunsDir(baseDir string) string {
	return resolve(baseDir, c.Paths.RunsDir)
}

// TelemetryDir returns the absolute telemetry directory path.
func (c *Config) TelemetryDir(baseDir string) string {
	return resolve(baseDir, c.Paths.TelemetryDir)
}

// ArticlesDir returns the absolute articles output directory path.
func (c *Config) ArticlesDir(baseDir string) string {
	return resolve(baseDir, c.Paths.ArticlesDir)
}

// LogsDir returns the absolute logs directory path.
func (c *Config) LogsDir(baseDir string) string {
	return resolve(baseDir, c.Paths.LogsDir)
}

// WorkflowsDir returns the absolute project workflows directory path.
func (c *Config) WorkflowsDir(baseDir string) string {
	return resolve(baseDir, c.Paths.WorkflowsDir)
}

// LogFile returns the absolute log file path, or empty if file logging is off.
func (c *Config) LogFile(baseDir string) string {
	if c.Logging.File == "" {
		return ""
	}
	return resolve(baseDir, c.Logging.File)
}
