// Package config содержит логику чтения конфигурации ядра заказов.
package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

// Config содержит параметры конфигурации ядра заказов.
type Config struct {
	RunAddress    string `env:"RUN_ADDRESS"`
	DatabaseURI   string `env:"DATABASE_URI"`
	NotifyAddress string `env:"NOTIFY_ADDRESS"`
	AMQPURL       string `env:"AMQP_URL"`

	// AuthSecret пуст только в локальном режиме: тогда ключ подписи генерируется при старте.
	AuthSecret string  `env:"AUTH_SECRET"`
	AdminIDs   []int64 `env:"ADMIN_IDS" envSeparator:","`

	CartTTL        time.Duration   `env:"CART_TTL" envDefault:"24h"`
	MinOrderAmount int64           `env:"MIN_ORDER_AMOUNT" envDefault:"1500"`
	CancelWindow   time.Duration   `env:"CANCEL_WINDOW" envDefault:"5m"`
	AccrualRate    decimal.Decimal `env:"LOYALTY_ACCRUAL_RATE" envDefault:"1"`
	PointsPerUnit  int64           `env:"LOYALTY_POINTS_PER_UNIT" envDefault:"100"`
	EventBuffer    int             `env:"EVENT_BUFFER" envDefault:"256"`

	// IssueTokenFor — если задан, сервис печатает токен пользователя и завершается.
	IssueTokenFor int64
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envNotifyAddress := cfg.NotifyAddress
	envAMQPURL := cfg.AMQPURL

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory storage if empty")
	flag.StringVar(&cfg.NotifyAddress, "n", "", "notification webhook base URL")
	flag.StringVar(&cfg.AMQPURL, "q", "", "AMQP broker URL for order events")
	flag.Int64Var(&cfg.IssueTokenFor, "t", 0, "print auth token for user id and exit")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envNotifyAddress != "" {
		cfg.NotifyAddress = envNotifyAddress
	}
	if envAMQPURL != "" {
		cfg.AMQPURL = envAMQPURL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	if cfg.AuthSecret == "" && (cfg.DatabaseURI != "" || len(cfg.AdminIDs) > 0 || cfg.IssueTokenFor > 0) {
		return nil, errors.New("AUTH_SECRET is required with DATABASE_URI, ADMIN_IDS or -t")
	}
	if cfg.PointsPerUnit <= 0 {
		return nil, fmt.Errorf("LOYALTY_POINTS_PER_UNIT must be positive, got %d", cfg.PointsPerUnit)
	}
	if cfg.AccrualRate.IsNegative() {
		return nil, fmt.Errorf("LOYALTY_ACCRUAL_RATE must not be negative, got %s", cfg.AccrualRate)
	}
	if cfg.EventBuffer <= 0 {
		return nil, fmt.Errorf("EVENT_BUFFER must be positive, got %d", cfg.EventBuffer)
	}

	return cfg, nil
}
