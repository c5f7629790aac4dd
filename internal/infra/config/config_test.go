package config

import (
	"strings"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := parse()
	if err != nil {
		t.Fatalf("конфиг по умолчанию должен быть валиден: %v", err)
	}
	if cfg.Run.PerRunCap != 10 || cfg.Run.WindowCap != 5 || cfg.Run.Window != 15*time.Minute {
		t.Fatalf("неверные лимиты по умолчанию: %+v", cfg.Run)
	}
	if cfg.Policy.ConfidenceHigh != 0.7 || cfg.Policy.ConfidenceLow != 0.5 {
		t.Fatalf("неверные пороги по умолчанию: %+v", cfg.Policy)
	}
	if cfg.Store.Backend != StoreFile || cfg.Run.WindowBackend != WindowState {
		t.Fatalf("неверные бэкенды по умолчанию: %s, %s", cfg.Store.Backend, cfg.Run.WindowBackend)
	}
	if cfg.Run.MinItemAge != 72*time.Hour || cfg.Run.ImageLimit != 4 {
		t.Fatalf("неверные параметры запуска: %+v", cfg.Run)
	}
}

func TestParseReadsEnvironment(t *testing.T) {
	t.Setenv("RUN_PER_RUN_CAP", "25")
	t.Setenv("RATE_WINDOW", "30m")
	t.Setenv("TG_REPORT_CHAT_ID", "-100123")
	t.Setenv("STORE_BACKEND", "sqlite")

	cfg, err := parse()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if cfg.Run.PerRunCap != 25 || cfg.Run.Window != 30*time.Minute {
		t.Fatalf("переменные окружения не применились: %+v", cfg.Run)
	}
	if cfg.Telegram.ReportChatID != -100123 || cfg.Store.Backend != StoreSQLite {
		t.Fatalf("неверные значения: %+v", cfg)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"пороги перепутаны", map[string]string{"CONFIDENCE_HIGH": "0.4", "CONFIDENCE_LOW": "0.6"}, "confidence thresholds"},
		{"порог больше единицы", map[string]string{"CONFIDENCE_HIGH": "1.2"}, "confidence thresholds"},
		{"postgres без DSN", map[string]string{"STORE_BACKEND": "postgres"}, "PG_DSN"},
		{"неизвестный бэкенд", map[string]string{"STORE_BACKEND": "s3"}, "STORE_BACKEND"},
		{"redis окно без адреса", map[string]string{"RATE_WINDOW_BACKEND": "redis"}, "REDIS_ADDR"},
		{"очередь событий без redis", map[string]string{"DECISION_QUEUE_KEY": "pruner:events"}, "DECISION_QUEUE_KEY"},
		{"нулевой лимит", map[string]string{"RATE_WINDOW_CAP": "0"}, "RATE_WINDOW_CAP"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := parse()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("ожидали ошибку с %q, получили %v", tc.want, err)
			}
		})
	}
}
