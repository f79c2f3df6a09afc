package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config содержит конфигурацию приложения.
// Значение неизменяемо после загрузки и внедряется при конструировании
// компонентов; точечные обращения к os.Getenv по коду запрещены.
type Config struct {
	RunAddress  string
	DatabaseURI string

	GatewayBaseURL    string
	GatewayMerchantID string
	GatewaySecret     string
	GatewayVersion    string
	GatewayTimeout    time.Duration

	CallbackBaseURL  string
	WebhookAllowList []string
	WebhookTxTimeout time.Duration

	JWTSecret string

	PendingPollInterval time.Duration
	PendingMinAge       time.Duration
}

// Load загружает конфигурацию из флагов командной строки и переменных окружения.
// Приоритет: переменные окружения > флаги > значения по умолчанию.
// Файл .env, если есть, подгружается в окружение до разбора.
func Load() *Config {
	// best-effort: отсутствие .env не ошибка
	_ = godotenv.Load()

	cfg := &Config{}

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "адрес и порт запуска сервиса")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "строка подключения к PostgreSQL")
	flag.StringVar(&cfg.GatewayBaseURL, "g", "", "базовый URL платёжного процессинга")
	flag.StringVar(&cfg.CallbackBaseURL, "c", "", "внешний базовый URL для callback процессинга")
	flag.Parse()

	if envRunAddr := os.Getenv("RUN_ADDRESS"); envRunAddr != "" {
		cfg.RunAddress = envRunAddr
	}
	if envDBURI := os.Getenv("DATABASE_URI"); envDBURI != "" {
		cfg.DatabaseURI = envDBURI
	}
	if envGateway := os.Getenv("GATEWAY_BASE_URL"); envGateway != "" {
		cfg.GatewayBaseURL = envGateway
	}
	if envCallback := os.Getenv("CALLBACK_BASE_URL"); envCallback != "" {
		cfg.CallbackBaseURL = envCallback
	}

	cfg.GatewayMerchantID = os.Getenv("GATEWAY_MERCHANT_ID")
	cfg.GatewaySecret = os.Getenv("GATEWAY_SECRET")

	cfg.GatewayVersion = os.Getenv("GATEWAY_VERSION")
	if cfg.GatewayVersion == "" {
		cfg.GatewayVersion = "1.0"
	}

	cfg.GatewayTimeout = durationEnv("GATEWAY_TIMEOUT", 10*time.Second)
	cfg.WebhookTxTimeout = durationEnv("WEBHOOK_TX_TIMEOUT", 5*time.Second)
	cfg.PendingPollInterval = durationEnv("PENDING_POLL_INTERVAL", time.Minute)
	cfg.PendingMinAge = durationEnv("PENDING_MIN_AGE", 15*time.Minute)

	cfg.WebhookAllowList = splitList(os.Getenv("WEBHOOK_ALLOW_LIST"))

	// JWT секрет
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "default-secret-change-in-production"
	}

	return cfg
}

// durationEnv читает duration из окружения с запасным значением.
func durationEnv(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// splitList разбирает список, разделённый запятыми.
func splitList(val string) []string {
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
