package config

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	NotifyCommitFirst = "commit-first"
	NotifyFirst       = "notify-first"

	StoreXLSX     = "xlsx"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"

	SessionMemory = "memory"
	SessionRedis  = "redis"
)

type Config struct {
	TelegramBotToken    string `env:"TELEGRAM_BOT_TOKEN,required"`
	TelegramPollTimeout int    `env:"TELEGRAM_POLL_TIMEOUT,default=60"`
	AdminIDs            IDList `env:"ADMIN_IDS"`
	WebhookURL          string `env:"WEBHOOK_URL"`
	WebhookPath         string `env:"WEBHOOK_PATH,default=/webhook"`
	WebhookSecret       string `env:"WEBHOOK_SECRET"`
	HTTPAddr            string `env:"HTTP_ADDR,default=:8080"`

	PollInterval     time.Duration `env:"POLL_INTERVAL,default=30m"`
	PollStartDelay   time.Duration `env:"POLL_START_DELAY,default=5s"`
	PollConcurrency  int           `env:"POLL_CONCURRENCY,default=5"`
	PollWriteTimeout time.Duration `env:"POLL_WRITE_TIMEOUT,default=15s"`
	NotifyPolicy     string        `env:"NOTIFY_POLICY,default=commit-first"`

	WBBaseURL       string        `env:"WB_BASE_URL,default=https://card.wb.ru/cards/v1/detail"`
	WBTimeout       time.Duration `env:"WB_TIMEOUT,default=10s"`
	WBRatePerSecond float64       `env:"WB_RATE_PER_SECOND,default=0"`

	StoreBackend   string `env:"STORE_BACKEND,default=xlsx"`
	StoreXLSXPath  string `env:"STORE_XLSX_PATH,default=watches.xlsx"`
	StoreXLSXSheet string `env:"STORE_XLSX_SHEET,default=Watches"`
	SQLitePath     string `env:"SQLITE_PATH,default=pricewatch.db"`

	DBHost            string        `env:"DB_HOST,default=localhost"`
	DBPort            int           `env:"DB_PORT,default=5432"`
	DBUser            string        `env:"DB_USER"`
	DBPassword        string        `env:"DB_PASSWORD"`
	DBName            string        `env:"DB_NAME,default=pricewatch"`
	DBSSLMode         string        `env:"DB_SSLMODE,default=disable"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=10"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=25"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=30m"`

	SessionBackend string        `env:"SESSION_BACKEND,default=memory"`
	SessionTTL     time.Duration `env:"SESSION_TTL,default=10m"`
	RedisURL       string        `env:"REDIS_URL,default=redis://localhost:6379/0"`

	LogLevel      string `env:"LOG_LEVEL,default=info"`
	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB,default=50"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS,default=5"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS,default=14"`
}

// IDList decodes a comma separated list of Telegram user ids.
type IDList []int64

func (l *IDList) EnvDecode(value string) error {
	var ids IDList
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	*l = ids
	return nil
}

type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return "config: " + e.Err.Error() }

func (e *ConfigError) Unwrap() error { return e.Err }

func Load(ctx context.Context) (Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return Config{}, &ConfigError{Err: err}
	}
	if err := cfg.validate(); err != nil {
		return Config{}, &ConfigError{Err: err}
	}
	return cfg, nil
}

// Telegram echoes the secret in X-Telegram-Bot-Api-Secret-Token and only
// accepts this alphabet.
var webhookSecretPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,256}$`)

func (c Config) WebhookEnabled() bool {
	return c.WebhookURL != ""
}

func (c Config) validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.PollStartDelay < 0 {
		return fmt.Errorf("POLL_START_DELAY must not be negative")
	}
	if c.PollConcurrency < 1 {
		return fmt.Errorf("POLL_CONCURRENCY must be at least 1, got %d", c.PollConcurrency)
	}
	if c.WBTimeout <= 0 {
		return fmt.Errorf("WB_TIMEOUT must be positive")
	}
	switch c.NotifyPolicy {
	case NotifyCommitFirst, NotifyFirst:
	default:
		return fmt.Errorf("unknown NOTIFY_POLICY %q", c.NotifyPolicy)
	}
	switch c.StoreBackend {
	case StoreXLSX, StorePostgres, StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.StoreBackend == StorePostgres && (c.DBUser == "" || c.DBName == "") {
		return fmt.Errorf("DB_USER and DB_NAME are required for the postgres backend")
	}
	switch c.SessionBackend {
	case SessionMemory, SessionRedis:
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q", c.SessionBackend)
	}
	if !strings.HasPrefix(c.WebhookPath, "/") {
		return fmt.Errorf("WEBHOOK_PATH must start with /")
	}
	if c.WebhookEnabled() && !webhookSecretPattern.MatchString(c.WebhookSecret) {
		return fmt.Errorf("WEBHOOK_SECRET is required in webhook mode: 1-256 characters of A-Z, a-z, 0-9, _ and -")
	}
	return nil
}
