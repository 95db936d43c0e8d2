// Package config loads and validates pagewatch configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. PAGEWATCH_HTTP_TIMEOUT_SECONDS.
const EnvPrefix = "PAGEWATCH"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	State     StateConfig     `mapstructure:"state"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Server    ServerConfig    `mapstructure:"server"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// MonitorConfig controls the watch list and the cycle.
type MonitorConfig struct {
	URLsFile      string `mapstructure:"urls_file" validate:"required"`
	Concurrency   int    `mapstructure:"concurrency" validate:"gte=1,lte=64"`
	UserAgent     string `mapstructure:"user_agent"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// HTTPConfig configures fetch timeouts, retries and politeness.
type HTTPConfig struct {
	TimeoutSeconds   int     `mapstructure:"timeout_seconds" validate:"gte=1"`
	MaxRetries       int     `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	BackoffInitialMs int     `mapstructure:"backoff_initial_ms" validate:"gte=1"`
	BackoffMaxMs     int     `mapstructure:"backoff_max_ms" validate:"gtefield=BackoffInitialMs"`
	RespectRobots    bool    `mapstructure:"respect_robots"`
	MaxBodyBytes     int     `mapstructure:"max_body_bytes" validate:"gte=0"`
	PerHostRPS       float64 `mapstructure:"per_host_rps" validate:"gte=0"`
	PerHostBurst     int     `mapstructure:"per_host_burst" validate:"gte=0"`
}

// StateConfig selects where watch records live.
type StateConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=file postgres sqlite"`
	Path    string `mapstructure:"path" validate:"required_unless=Backend postgres"`
	DSN     string `mapstructure:"dsn" validate:"required_if=Backend postgres"`
	Table   string `mapstructure:"table"`
}

// ArchiveConfig selects where change snapshots are written.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=none local gcs"`
	Dir     string `mapstructure:"dir" validate:"required_if=Backend local"`
	Bucket  string `mapstructure:"bucket" validate:"required_if=Backend gcs"`
	Prefix  string `mapstructure:"prefix"`
}

// NotifyConfig selects the notification channel and its settings.
type NotifyConfig struct {
	Channel string        `mapstructure:"channel" validate:"oneof=none log email webhook github pubsub"`
	Email   EmailConfig   `mapstructure:"email"`
	Webhook WebhookConfig `mapstructure:"webhook"`
	GitHub  GitHubConfig  `mapstructure:"github"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
}

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port" validate:"gte=0,lte=65535"`
	Username    string   `mapstructure:"username"`
	Password    string   `mapstructure:"password"`
	From        string   `mapstructure:"from"`
	To          []string `mapstructure:"to" validate:"dive,email"`
	ImplicitTLS bool     `mapstructure:"implicit_tls"`
}

// WebhookConfig holds the webhook endpoint.
type WebhookConfig struct {
	URL        string            `mapstructure:"url" validate:"omitempty,url"`
	Headers    map[string]string `mapstructure:"headers"`
	MaxRetries int               `mapstructure:"max_retries" validate:"gte=0"`
}

// GitHubConfig identifies the repository receiving issues.
type GitHubConfig struct {
	BaseURL string   `mapstructure:"base_url" validate:"omitempty,url"`
	Token   string   `mapstructure:"token"`
	Owner   string   `mapstructure:"owner"`
	Repo    string   `mapstructure:"repo"`
	Labels  []string `mapstructure:"labels"`
}

// PubSubConfig identifies the Pub/Sub topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the watch-mode HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port" validate:"gte=1,lte=65535"`
}

// WatchConfig controls the interval between cycles in watch mode.
type WatchConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

// TelemetryConfig toggles the tracing SDK.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// Load builds a Config from an optional file plus the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("monitor.urls_file", "urls.txt")
	v.SetDefault("monitor.concurrency", 4)
	v.SetDefault("monitor.user_agent", "")
	v.SetDefault("monitor.subject_prefix", "[pagewatch]")
	v.SetDefault("http.timeout_seconds", 20)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 500)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("http.max_body_bytes", 10<<20)
	v.SetDefault("http.per_host_rps", 0)
	v.SetDefault("http.per_host_burst", 1)
	v.SetDefault("state.backend", "file")
	v.SetDefault("state.path", "state.json")
	v.SetDefault("state.dsn", "")
	v.SetDefault("state.table", "watch_records")
	v.SetDefault("archive.backend", "local")
	v.SetDefault("archive.dir", "archives")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "archives")
	v.SetDefault("notify.channel", "log")
	v.SetDefault("notify.email.host", "smtp.gmail.com")
	v.SetDefault("notify.email.port", 465)
	v.SetDefault("notify.email.from", "")
	v.SetDefault("notify.email.to", []string{})
	v.SetDefault("notify.email.implicit_tls", true)
	v.SetDefault("notify.webhook.url", "")
	v.SetDefault("notify.webhook.max_retries", 3)
	v.SetDefault("notify.github.base_url", "https://api.github.com")
	v.SetDefault("notify.github.token", "")
	v.SetDefault("notify.github.owner", "")
	v.SetDefault("notify.github.repo", "")
	v.SetDefault("notify.github.labels", []string{})
	v.SetDefault("notify.pubsub.project_id", "")
	v.SetDefault("notify.pubsub.topic", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("watch.interval", "15m")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "pagewatch")
}

// bindLegacyEnv keeps the SMTP variable names used by earlier deployments working.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"notify.email.username": {EnvPrefix + "_NOTIFY_EMAIL_USERNAME", "SMTP_USER"},
		"notify.email.password": {EnvPrefix + "_NOTIFY_EMAIL_PASSWORD", "SMTP_PASSWORD"},
		"notify.email.to":       {EnvPrefix + "_NOTIFY_EMAIL_TO", "NOTIFY_EMAIL"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// Validate enforces struct constraints and the per-channel requirements.
func (c Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("invalid config: %s", describe(verrs))
		}
		return fmt.Errorf("validate config: %w", err)
	}
	if c.Watch.Interval < time.Second {
		return errors.New("invalid config: watch.interval must be at least 1s")
	}

	n := c.Notify
	switch n.Channel {
	case "email":
		if n.Email.Username == "" || n.Email.Password == "" {
			return errors.New("invalid config: notify.email.username and notify.email.password are required")
		}
	case "webhook":
		if n.Webhook.URL == "" {
			return errors.New("invalid config: notify.webhook.url is required")
		}
	case "github":
		if n.GitHub.Token == "" || n.GitHub.Owner == "" || n.GitHub.Repo == "" {
			return errors.New("invalid config: notify.github.token, owner and repo are required")
		}
	case "pubsub":
		if n.PubSub.ProjectID == "" || n.PubSub.Topic == "" {
			return errors.New("invalid config: notify.pubsub.project_id and topic are required")
		}
	}
	return nil
}

// FetchTimeout converts the HTTP timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		tag := fld.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			return fld.Name
		}
		return tag
	})
	return v
}

func describe(verrs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
