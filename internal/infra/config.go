package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingSecrets — бот не может стартовать без подписи и токена Slack.
var ErrMissingSecrets = errors.New("SLACK_SIGNING_SECRET and SLACK_BOT_TOKEN must be set")

// Config — корневая структура конфигурации бота и консоли.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Console  ServerConfig   `mapstructure:"console"`
	Slack    SlackConfig    `mapstructure:"slack"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Store    StoreConfig    `mapstructure:"store"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr собирает адрес для http.Server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SlackConfig — секреты приложения Slack и параметры исходящих вызовов Web API.
type SlackConfig struct {
	SigningSecret string `mapstructure:"signing_secret"`
	BotToken      string `mapstructure:"bot_token"`
	Command       string `mapstructure:"command"`
	Debug         bool   `mapstructure:"debug"`

	// Лимиты Web API: chat.postMessage ~1 rps на канал
	RateLimit     float64       `mapstructure:"rate_limit"`
	RateBurst     int           `mapstructure:"rate_burst"`
	RetryAttempts uint          `mapstructure:"retry_attempts"`
	CallTimeout   time.Duration `mapstructure:"call_timeout"`

	// Circuit Breaker
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
	CBFailures    uint32        `mapstructure:"cb_failures"`
}

// WorkflowConfig — поведение обработчиков заявок.
type WorkflowConfig struct {
	HandlerTimeout time.Duration `mapstructure:"handler_timeout"`
	PendingTTL     time.Duration `mapstructure:"pending_ttl"` // 0 — заявка ждёт бессрочно
	ReservedUsers  []string      `mapstructure:"reserved_users"`
}

// StoreConfig выбирает хранилище заявок: memory, redis или postgres.
type StoreConfig struct {
	Backend   string        `mapstructure:"backend"`
	Retention time.Duration `mapstructure:"retention"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig описывает подключение к Redis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig — публичный ключ для проверки RS256 токенов Console API.
type AuthConfig struct {
	PublicKeyPath string `mapstructure:"public_key_path"`
	PublicKey     []byte
}

// AuditConfig — параметры буфера журнала решений.
type AuditConfig struct {
	BufferSize    int           `mapstructure:"buffer_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// 2. ENV: SLACK_BOT_TOKEN перекроет slack.bot_token
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// Порт исторически задаётся через PORT
	if err := v.BindEnv("server.port", "PORT", "SERVER_PORT"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// Списки из ENV приходят одной строкой через запятую
	if raw := os.Getenv("WORKFLOW_RESERVED_USERS"); raw != "" {
		cfg.Workflow.ReservedUsers = splitList(raw)
	}

	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")

	return &cfg, nil
}

// Validate проверяет обязательные для бота секреты.
func (c *Config) Validate() error {
	if c.Slack.SigningSecret == "" || c.Slack.BotToken == "" {
		return ErrMissingSecrets
	}
	switch c.Store.Backend {
	case "memory", "redis":
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("store backend postgres requires database.url")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return nil
}

// ValidateConsole — консоль читает общее хранилище, in-memory ей недоступно.
func (c *Config) ValidateConsole() error {
	if len(c.Auth.PublicKey) == 0 {
		return fmt.Errorf("console requires auth.public_key_path or AUTH_PUBLIC_KEY_DATA")
	}
	switch c.Store.Backend {
	case "redis":
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("store backend postgres requires database.url")
		}
	default:
		return fmt.Errorf("console needs a shared store backend (redis or postgres), got %q", c.Store.Backend)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("console.port", 8000)
	v.SetDefault("console.read_timeout", 5*time.Second)
	v.SetDefault("console.write_timeout", 10*time.Second)
	v.SetDefault("console.shutdown_timeout", 5*time.Second)

	v.SetDefault("slack.signing_secret", "")
	v.SetDefault("slack.bot_token", "")
	v.SetDefault("slack.command", "/approval-test")
	v.SetDefault("slack.debug", false)
	v.SetDefault("slack.rate_limit", 1.0)
	v.SetDefault("slack.rate_burst", 5)
	v.SetDefault("slack.retry_attempts", 3)
	v.SetDefault("slack.call_timeout", 10*time.Second)
	v.SetDefault("slack.cb_max_requests", 3)
	v.SetDefault("slack.cb_interval", 5*time.Second)
	v.SetDefault("slack.cb_timeout", 30*time.Second)
	v.SetDefault("slack.cb_failures", 5)

	v.SetDefault("workflow.handler_timeout", 10*time.Second)
	v.SetDefault("workflow.pending_ttl", time.Duration(0))
	v.SetDefault("workflow.reserved_users", []string{})

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.retention", 30*24*time.Hour)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.public_key_path", "")

	v.SetDefault("audit.buffer_size", 1000)
	v.SetDefault("audit.batch_size", 100)
	v.SetDefault("audit.flush_interval", 500*time.Millisecond)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// loadKeyResource — PEM-ключ из ENV (Docker/K8s) или из файла по пути из конфига
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
