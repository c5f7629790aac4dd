package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Бэкенды хранилища журнала.
const (
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Бэкенды скользящего окна.
const (
	WindowState = "state"
	WindowRedis = "redis"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"prod"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
	APIToken    string `envconfig:"API_TOKEN"`

	Store struct {
		Backend    string `envconfig:"STORE_BACKEND" default:"file"`
		Dir        string `envconfig:"STORE_DIR" default:"data"`
		SQLitePath string `envconfig:"SQLITE_PATH" default:"data/journal.db"`
		Namespace  string `envconfig:"JOURNAL_NAMESPACE" default:"main"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Events struct {
		RabbitURL string `envconfig:"RABBITMQ_URL"`
		Exchange  string `envconfig:"DECISION_EXCHANGE" default:"pruner.decisions"`
		RedisKey  string `envconfig:"DECISION_QUEUE_KEY"`
		Backlog   int64  `envconfig:"DECISION_QUEUE_BACKLOG" default:"10000"`
	} `envconfig:""`

	Telegram struct {
		Token        string `envconfig:"TG_BOT_TOKEN"`
		ReportChatID int64  `envconfig:"TG_REPORT_CHAT_ID"`
	} `envconfig:""`

	X struct {
		AccessToken string        `envconfig:"X_USER_ACCESS_TOKEN"`
		UserID      string        `envconfig:"X_USER_ID"`
		BaseURL     string        `envconfig:"X_API_BASE_URL" default:"https://api.twitter.com"`
		PageSize    int           `envconfig:"X_PAGE_SIZE" default:"100"`
		Timeout     time.Duration `envconfig:"X_API_TIMEOUT" default:"30s"`
	} `envconfig:""`

	OpenAI struct {
		APIKey  string        `envconfig:"OPENAI_API_KEY"`
		BaseURL string        `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
		Model   string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
		Timeout time.Duration `envconfig:"OPENAI_TIMEOUT" default:"60s"`
	} `envconfig:""`

	Policy struct {
		ConfidenceHigh float64 `envconfig:"CONFIDENCE_HIGH" default:"0.7"`
		ConfidenceLow  float64 `envconfig:"CONFIDENCE_LOW" default:"0.5"`
		RulesFile      string  `envconfig:"RULES_FILE"`
	} `envconfig:""`

	Run struct {
		PerRunCap          int           `envconfig:"RUN_PER_RUN_CAP" default:"10"`
		WindowCap          int           `envconfig:"RATE_WINDOW_CAP" default:"5"`
		Window             time.Duration `envconfig:"RATE_WINDOW" default:"15m"`
		WindowBackend      string        `envconfig:"RATE_WINDOW_BACKEND" default:"state"`
		InterActionDelay   time.Duration `envconfig:"INTER_ACTION_DELAY" default:"2s"`
		ImageLimit         int           `envconfig:"CLASSIFIER_IMAGE_LIMIT" default:"4"`
		ClassifierAttempts int           `envconfig:"CLASSIFIER_ATTEMPTS" default:"3"`
		ClassifierBackoff  time.Duration `envconfig:"CLASSIFIER_BACKOFF" default:"2s"`
		DeleteAttempts     int           `envconfig:"DELETE_ATTEMPTS" default:"3"`
		DeleteBackoff      time.Duration `envconfig:"DELETE_BACKOFF" default:"2s"`
		RateLimitWaits     int           `envconfig:"RATE_LIMIT_WAITS" default:"3"`
		MinItemAge         time.Duration `envconfig:"MIN_ITEM_AGE" default:"72h"`
		LockTTL            time.Duration `envconfig:"RUN_LOCK_TTL" default:"2h"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	cfg, err := parse()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

func parse() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate проверяет согласованность параметров.
func (c AppConfig) Validate() error {
	var errs []error
	low, high := c.Policy.ConfidenceLow, c.Policy.ConfidenceHigh
	if !(low >= 0 && low <= high && high <= 1) {
		errs = append(errs, fmt.Errorf("confidence thresholds must satisfy 0 <= low <= high <= 1, got low=%v high=%v", low, high))
	}
	switch c.Store.Backend {
	case StoreFile, StoreSQLite:
	case StorePostgres:
		if c.PGDSN == "" {
			errs = append(errs, errors.New("PG_DSN is required for postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend))
	}
	switch c.Run.WindowBackend {
	case WindowState:
	case WindowRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for redis rate window"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown RATE_WINDOW_BACKEND %q", c.Run.WindowBackend))
	}
	if c.Events.RedisKey != "" && c.RedisAddr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required for DECISION_QUEUE_KEY"))
	}
	if c.Run.PerRunCap <= 0 {
		errs = append(errs, errors.New("RUN_PER_RUN_CAP must be positive"))
	}
	if c.Run.WindowCap <= 0 {
		errs = append(errs, errors.New("RATE_WINDOW_CAP must be positive"))
	}
	if c.Run.Window <= 0 {
		errs = append(errs, errors.New("RATE_WINDOW must be positive"))
	}
	if c.Run.ImageLimit <= 0 {
		errs = append(errs, errors.New("CLASSIFIER_IMAGE_LIMIT must be positive"))
	}
	if c.Run.ClassifierAttempts <= 0 || c.Run.DeleteAttempts <= 0 {
		errs = append(errs, errors.New("CLASSIFIER_ATTEMPTS and DELETE_ATTEMPTS must be positive"))
	}
	if c.Run.RateLimitWaits < 0 || c.Run.InterActionDelay < 0 || c.Run.MinItemAge < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WAITS, INTER_ACTION_DELAY and MIN_ITEM_AGE must not be negative"))
	}
	return errors.Join(errs...)
}
