// Package config loads application configuration from a YAML file and environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bissquit/notes-garden/internal/domain"
	"github.com/bissquit/notes-garden/internal/identity/password"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override; "__" separates nesting levels,
// e.g. NOTES_DATABASE__URL sets database.url.
const EnvPrefix = "NOTES_"

// Config is the complete application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	JWT      JWTConfig      `koanf:"jwt"`
	CORS     CORSConfig     `koanf:"cors"`
	Notes    NotesConfig    `koanf:"notes"`
	Password PasswordConfig `koanf:"password"`
	Mail     MailConfig     `koanf:"mail"`
}

// ServerConfig configures the HTTP listeners.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
}

// LogConfig configures slog.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// JWTConfig configures session tokens.
type JWTConfig struct {
	SecretKey           string        `koanf:"secret_key"`
	AccessTokenDuration time.Duration `koanf:"access_token_duration"`
}

// CORSConfig lists origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// NotesConfig holds note limits and page size bounds.
type NotesConfig struct {
	TitleMaxLength   int `koanf:"title_max_length"`
	ContentMinLength int `koanf:"content_min_length"`
	MemoDateLength   int `koanf:"memo_date_length"`
	TagNameMaxLength int `koanf:"tag_name_max_length"`
	MaxTagsPerNote   int `koanf:"max_tags_per_note"`
	DefaultPageSize  int `koanf:"default_page_size"`
	MaxPageSize      int `koanf:"max_page_size"`
}

// Limits converts the note settings to domain limits.
func (c NotesConfig) Limits() domain.NoteLimits {
	return domain.NoteLimits{
		TitleMaxLength:   c.TitleMaxLength,
		ContentMinLength: c.ContentMinLength,
		MemoDateLength:   c.MemoDateLength,
		TagNameMaxLength: c.TagNameMaxLength,
		MaxTagsPerNote:   c.MaxTagsPerNote,
	}
}

// PasswordConfig holds argon2id parameters.
type PasswordConfig struct {
	MemoryKiB     uint32 `koanf:"memory_kib"`
	Iterations    uint32 `koanf:"iterations"`
	Parallelism   uint8  `koanf:"parallelism"`
	SaltLength    uint32 `koanf:"salt_length"`
	KeyLength     uint32 `koanf:"key_length"`
	MaxConcurrent int64  `koanf:"max_concurrent"`
}

// Params converts the settings to hasher parameters.
func (c PasswordConfig) Params() password.Params {
	return password.Params{
		Memory:        c.MemoryKiB,
		Iterations:    c.Iterations,
		Parallelism:   c.Parallelism,
		SaltLength:    c.SaltLength,
		KeyLength:     c.KeyLength,
		MaxConcurrent: c.MaxConcurrent,
	}
}

// MailConfig configures the SMTP welcome mailer.
type MailConfig struct {
	Enabled       bool    `koanf:"enabled"`
	SMTPHost      string  `koanf:"smtp_host"`
	SMTPPort      int     `koanf:"smtp_port"`
	SMTPUser      string  `koanf:"smtp_user"`
	SMTPPassword  string  `koanf:"smtp_password"`
	FromAddress   string  `koanf:"from_address"`
	StartTLS      bool    `koanf:"starttls"`
	RatePerSecond float64 `koanf:"rate_per_second"`
	Burst         int     `koanf:"burst"`

	Workers        int           `koanf:"workers"`
	QueueSize      int           `koanf:"queue_size"`
	MaxAttempts    int           `koanf:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff"`
}

// Default returns the configuration used for every key not set by file or environment.
func Default() Config {
	limits := domain.DefaultNoteLimits()
	hash := password.DefaultParams()

	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		JWT: JWTConfig{
			AccessTokenDuration: 24 * time.Hour,
		},
		Notes: NotesConfig{
			TitleMaxLength:   limits.TitleMaxLength,
			ContentMinLength: limits.ContentMinLength,
			MemoDateLength:   limits.MemoDateLength,
			TagNameMaxLength: limits.TagNameMaxLength,
			MaxTagsPerNote:   limits.MaxTagsPerNote,
			DefaultPageSize:  10,
			MaxPageSize:      100,
		},
		Password: PasswordConfig{
			MemoryKiB:     hash.Memory,
			Iterations:    hash.Iterations,
			Parallelism:   hash.Parallelism,
			SaltLength:    hash.SaltLength,
			KeyLength:     hash.KeyLength,
			MaxConcurrent: hash.MaxConcurrent,
		},
		Mail: MailConfig{
			SMTPPort:      587,
			StartTLS:      true,
			RatePerSecond: 1,
			Burst:         5,

			Workers:        2,
			QueueSize:      256,
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			MaxBackoff:     time.Minute,
		},
	}
}

// Load reads defaults, then the YAML file at path (skipped when path is empty),
// then NOTES_* environment variables, and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps NOTES_JWT__SECRET_KEY to jwt.secret_key.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.JWT.SecretKey == "" {
		errs = append(errs, errors.New("jwt.secret_key is required"))
	}
	if c.JWT.AccessTokenDuration <= 0 {
		errs = append(errs, errors.New("jwt.access_token_duration must be positive"))
	}
	if c.Notes.DefaultPageSize < 1 || c.Notes.DefaultPageSize > c.Notes.MaxPageSize {
		errs = append(errs, fmt.Errorf("notes.default_page_size must be within 1..%d", c.Notes.MaxPageSize))
	}
	if c.Notes.TitleMaxLength < 1 || c.Notes.MemoDateLength < 1 || c.Notes.TagNameMaxLength < 1 {
		errs = append(errs, errors.New("notes length limits must be positive"))
	}
	if c.Notes.MaxTagsPerNote < 0 || c.Notes.ContentMinLength < 0 {
		errs = append(errs, errors.New("notes limits must not be negative"))
	}
	if c.Password.Iterations < 1 || c.Password.Parallelism < 1 || c.Password.KeyLength < 16 || c.Password.SaltLength < 8 {
		errs = append(errs, errors.New("password argon2 parameters are too weak"))
	}
	if c.Password.MaxConcurrent < 1 {
		errs = append(errs, errors.New("password.max_concurrent must be positive"))
	}
	if c.Mail.Enabled {
		if c.Mail.SMTPHost == "" || c.Mail.FromAddress == "" {
			errs = append(errs, errors.New("mail.smtp_host and mail.from_address are required when mail is enabled"))
		}
		if c.Mail.Workers < 1 || c.Mail.QueueSize < 1 || c.Mail.MaxAttempts < 1 {
			errs = append(errs, errors.New("mail.workers, mail.queue_size and mail.max_attempts must be positive"))
		}
		if c.Mail.MaxBackoff < c.Mail.InitialBackoff {
			errs = append(errs, errors.New("mail.max_backoff must not be below mail.initial_backoff"))
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of json, text", c.Log.Format))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
