package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// ErrConfig оборачивает любые ошибки загрузки и валидации конфигурации.
var ErrConfig = errors.New("config")

type Mode string

const (
	ModePolling Mode = "polling"
	ModeWebhook Mode = "webhook"
)

type Config struct {
	App struct {
		Env       string
		Debug     bool
		SecretKey string `mapstructure:"secret_key" validate:"required,min=16"`
	} `mapstructure:"app"`

	Telegram struct {
		Token         string        `validate:"required"`
		Mode          Mode          `validate:"required,oneof=polling webhook"`
		WebhookURL    string        `mapstructure:"webhook_url" validate:"required_if=Mode webhook,omitempty,url,startswith=https://"`
		WebhookSecret string        `mapstructure:"webhook_secret" validate:"required_if=Mode webhook,omitempty,min=16,max=256,alphanum"`
		WebhookPath   string        `mapstructure:"webhook_path" validate:"required,startswith=/"`
		PollTimeout   int           `mapstructure:"poll_timeout" validate:"min=1"`
		SessionTTL    time.Duration `mapstructure:"session_ttl" validate:"min=1s"`
	} `mapstructure:"telegram"`

	Frontend struct {
		LoginURL string `mapstructure:"login_url" validate:"required,url"`
	} `mapstructure:"frontend"`

	Postgres struct {
		DSN string `validate:"required"`
	} `mapstructure:"postgres"`

	Broker struct {
		URL string `validate:"required"`
	} `mapstructure:"broker"`

	HTTP struct {
		Addr           string
		AllowedHosts   []string `mapstructure:"allowed_hosts"`
		TrustedOrigins []string `mapstructure:"trusted_origins"`
		StaticDir      string   `mapstructure:"static_dir"`
	} `mapstructure:"http"`

	Metrics struct {
		Enabled bool
		// Addr для ролей без веб-сервера (worker, dispatcher, bot). Если пусто, не слушаем.
		Addr string
	} `mapstructure:"metrics"`

	Worker struct {
		Concurrency int           `validate:"min=1"`
		MaxAttempts int           `mapstructure:"max_attempts" validate:"min=1"`
		BackoffBase time.Duration `mapstructure:"backoff_base" validate:"min=1ms"`
		BackoffMax  time.Duration `mapstructure:"backoff_max" validate:"gtefield=BackoffBase"`
	} `mapstructure:"worker"`

	Bootstrap struct {
		DBWaitTimeout time.Duration `mapstructure:"db_wait_timeout" validate:"min=1s"`
	} `mapstructure:"bootstrap"`

	Dispatcher struct {
		CheckInterval time.Duration `mapstructure:"check_interval" validate:"min=1s"`
		JobsRetention time.Duration `mapstructure:"jobs_retention" validate:"min=1m"`
		Schedules     []Schedule    `validate:"dive"`
	} `mapstructure:"dispatcher"`
}

// Schedule задаётся списком: viper режет ключи map по точкам, а в именах задач они есть.
type Schedule struct {
	Kind  string        `validate:"required"`
	Every time.Duration `validate:"min=1m"`
}

// Schedules: расписания диспетчера в виде kind -> период.
func (c Config) Schedules() map[string]time.Duration {
	m := make(map[string]time.Duration, len(c.Dispatcher.Schedules))
	for _, s := range c.Dispatcher.Schedules {
		m[s.Kind] = s.Every
	}
	return m
}

// IsDev включает debug-логи.
func (c Config) IsDev() bool { return c.App.Env == "dev" || c.App.Debug }

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "prod")
	v.SetDefault("app.debug", false)
	v.SetDefault("app.secret_key", "")

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.mode", string(ModePolling))
	v.SetDefault("telegram.webhook_url", "")
	v.SetDefault("telegram.webhook_secret", "")
	v.SetDefault("telegram.webhook_path", "/bot/webhook/telegram/")
	v.SetDefault("telegram.poll_timeout", 30)
	v.SetDefault("telegram.session_ttl", 15*time.Minute)

	v.SetDefault("frontend.login_url", "")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("broker.url", "")

	v.SetDefault("http.addr", ":8000")
	v.SetDefault("http.allowed_hosts", []string{"*"})
	v.SetDefault("http.trusted_origins", []string{})
	v.SetDefault("http.static_dir", "var/static")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", "")

	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.max_attempts", 5)
	v.SetDefault("worker.backoff_base", 5*time.Second)
	v.SetDefault("worker.backoff_max", 5*time.Minute)

	v.SetDefault("bootstrap.db_wait_timeout", 60*time.Second)

	v.SetDefault("dispatcher.check_interval", 30*time.Second)
	v.SetDefault("dispatcher.jobs_retention", 7*24*time.Hour)
	v.SetDefault("dispatcher.schedules", []map[string]any{
		{"kind": "jobs.purge", "every": "1h"},
		{"kind": "deadletter.report", "every": "15m"},
	})
}

// Load читает .env (если есть), затем yaml-файл (если есть), затем переменные APP_*.
// Переменные окружения имеют приоритет над файлом.
func Load(path string) (Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("%w: load .env: %w", ErrConfig, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("%w: read %s: %w", ErrConfig, path, err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("%w: unmarshal: %w", ErrConfig, err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if c.Telegram.Mode == ModeWebhook {
		u, err := url.Parse(c.Telegram.WebhookURL)
		if err != nil {
			return fmt.Errorf("%w: telegram.webhook_url: %w", ErrConfig, err)
		}
		if u.Path != c.Telegram.WebhookPath {
			return fmt.Errorf("%w: telegram.webhook_url path %q does not match telegram.webhook_path %q",
				ErrConfig, u.Path, c.Telegram.WebhookPath)
		}
	}
	seen := make(map[string]bool, len(c.Dispatcher.Schedules))
	for _, s := range c.Dispatcher.Schedules {
		if seen[s.Kind] {
			return fmt.Errorf("%w: dispatcher.schedules: duplicate kind %q", ErrConfig, s.Kind)
		}
		seen[s.Kind] = true
	}
	return nil
}
