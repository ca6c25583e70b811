// Package config defines the process configuration for the reminder engine.
// Configuration is loaded once at process start and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> *_FILE secret files (Lowest)
//
// Any missing required value or invalid format fails startup.
package config

import (
	"time"

	"iptvpanel/internal/types"
)

// SecretString is an alias for types.SecretString so config consumers do not
// need to import types just to unmask a credential.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the subset they need.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"reminder-engine"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Store    StoreConfig
	Reminder ReminderConfig
	STB      STBConfig
	SMS      SMSConfig
	ChatBot  ChatBotConfig
	Email    EmailConfig
	AWS      AWSConfig
	Ops      OpsConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// StoreConfig selects and tunes the persistence backend.
type StoreConfig struct {
	Driver string `envconfig:"STORE_DRIVER" default:"postgres" validate:"oneof=postgres sqlite"`

	// Postgres
	DatabaseURL       SecretString  `envconfig:"DATABASE_URL" validate:"required_if=Driver postgres,omitempty,url"`
	MaxConns          int32         `envconfig:"DB_MAX_CONNS" default:"5"`
	MinConns          int32         `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`

	// SQLite (single-node panels)
	SQLitePath string `envconfig:"SQLITE_PATH" default:"reminders.db" validate:"required_if=Driver sqlite"`

	// AutoMigrate applies embedded schema migrations at startup.
	AutoMigrate bool `envconfig:"DB_AUTO_MIGRATE" default:"true"`
}

// ReminderConfig holds the sweep's scheduling and deduplication parameters.
type ReminderConfig struct {
	// Timezone decides what "today" is for the sweep.
	Timezone           string        `envconfig:"REMINDER_TIMEZONE" default:"UTC" validate:"required,timezone"`
	LookbackDays       int           `envconfig:"LEDGER_LOOKBACK_DAYS" default:"60" validate:"min=1"`
	RetentionDays      int           `envconfig:"LEDGER_RETENTION_DAYS" default:"60" validate:"gtefield=LookbackDays"`
	ExpiredCatchupDays int           `envconfig:"EXPIRED_CATCHUP_DAYS" default:"3" validate:"min=0,max=30"`
	DateLayout         string        `envconfig:"REMINDER_DATE_LAYOUT" default:"2006-01-02" validate:"required"`
	InterSendDelay     time.Duration `envconfig:"REMINDER_SEND_DELAY" default:"300ms" validate:"min=300ms"`
	SendTimeout        time.Duration `envconfig:"REMINDER_SEND_TIMEOUT" default:"15s" validate:"min=10s,max=30s"`
	LockTTL            time.Duration `envconfig:"SWEEP_LOCK_TTL" default:"2h" validate:"min=1m"`
	ArchiveDir         string        `envconfig:"LEDGER_ARCHIVE_DIR"`
}

// STBConfig configures the set-top-box portal push channel. Setting
// SecondaryURL enables dual-server mode.
type STBConfig struct {
	PrimaryURL   string       `envconfig:"STB_PORTAL_URL" validate:"omitempty,url"`
	SecondaryURL string       `envconfig:"STB_PORTAL_SECONDARY_URL" validate:"omitempty,url"`
	Username     string       `envconfig:"STB_PORTAL_USER"`
	Password     SecretString `envconfig:"STB_PORTAL_PASSWORD"`
}

// Configured reports whether the channel has enough settings to send.
func (c STBConfig) Configured() bool { return c.PrimaryURL != "" }

// SMSConfig configures the SMS gateway batch API.
type SMSConfig struct {
	BaseURL  string       `envconfig:"SMS_GATEWAY_URL" validate:"omitempty,url"`
	Token    SecretString `envconfig:"SMS_GATEWAY_TOKEN"`
	Sender   string       `envconfig:"SMS_SENDER" default:"IPTV"`
	MaxBatch int          `envconfig:"SMS_MAX_BATCH" default:"100" validate:"min=1,max=1000"`
}

// Configured reports whether the channel has enough settings to send.
func (c SMSConfig) Configured() bool { return c.BaseURL != "" && c.Token.IsSet() }

// ChatBotConfig configures the Telegram bot channel.
type ChatBotConfig struct {
	Token SecretString `envconfig:"TELEGRAM_BOT_TOKEN"`
	// APIURL overrides the Bot API server, e.g. a self-hosted bot API.
	APIURL string `envconfig:"TELEGRAM_API_URL" validate:"omitempty,url"`
}

// Configured reports whether the channel has enough settings to send.
func (c ChatBotConfig) Configured() bool { return c.Token.IsSet() }

// EmailConfig configures SMTP submission.
type EmailConfig struct {
	Host           string       `envconfig:"SMTP_HOST"`
	Port           int          `envconfig:"SMTP_PORT" default:"587" validate:"min=1,max=65535"`
	Username       string       `envconfig:"SMTP_USER"`
	Password       SecretString `envconfig:"SMTP_PASSWORD"`
	From           string       `envconfig:"SMTP_FROM" validate:"omitempty,email"`
	DefaultSubject string       `envconfig:"EMAIL_SUBJECT" default:"Your subscription is about to expire"`
}

// Configured reports whether the channel has enough settings to send.
func (c EmailConfig) Configured() bool { return c.Host != "" && c.From != "" }

// AWSConfig holds the optional AWS sinks for sweep telemetry.
type AWSConfig struct {
	Region          string `envconfig:"AWS_REGION" default:"us-east-1"`
	MetricsEnabled  bool   `envconfig:"METRICS_ENABLED" default:"false"`
	SummaryQueueURL string `envconfig:"SWEEP_SUMMARY_QUEUE_URL" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// OpsConfig holds the daemon's schedule and operator API settings.
type OpsConfig struct {
	Port      string `envconfig:"OPS_PORT" default:"8081"`
	SweepCron string `envconfig:"SWEEP_CRON" default:"0 9 * * *" validate:"required"`
	// PurgeCron schedules purge_ledger. Empty disables the nightly purge.
	PurgeCron string `envconfig:"PURGE_CRON" default:"30 3 * * *"`
	// APIKeyHash is a bcrypt hash of the operator key. Empty disables the
	// mutating endpoints.
	APIKeyHash SecretString `envconfig:"OPS_API_KEY_HASH"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSecretResolution indicates a *_FILE secret could not be read.
	ErrSecretResolution ConfigErrorType = "SECRET_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates an environment value could not be parsed into its
	// target type.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)

// Location returns the sweep's time zone. The value was validated at load.
func (c ReminderConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Lookback returns the ledger lookback window as a duration.
func (c ReminderConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackDays) * 24 * time.Hour
}

// Retention returns the ledger retention window as a duration.
func (c ReminderConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
