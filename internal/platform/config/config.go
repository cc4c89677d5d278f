package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Server captures process-level configuration. Values come from the
// environment so main stays lean; defaults suit local development.
type Server struct {
	Addr          string `env:"PAPERNET_ADDR" envDefault:":8080"`
	JWTSigningKey string `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`

	// StoreBackend selects the ledger store implementation: memory,
	// postgres, or redis.
	StoreBackend string `env:"STORE_BACKEND" envDefault:"memory"`
	PostgresDSN  string `env:"POSTGRES_DSN"`
	RedisAddr    string `env:"REDIS_ADDR" envDefault:"localhost:6379"`

	// KafkaBrokers enables the kafka event publisher when non-empty;
	// otherwise events are logged only.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"papernet.events"`

	// MaxAccountBalance bounds credits to guard against overflow; parsed as
	// a decimal string.
	MaxAccountBalance string `env:"MAX_ACCOUNT_BALANCE" envDefault:"1000000000000"`

	// DiscountPolicy chooses how a listing discount is interpreted when
	// settling a purchase: "fraction" (of par) or "absolute" (currency
	// amount).
	DiscountPolicy string `env:"DISCOUNT_POLICY" envDefault:"fraction"`

	// TxMaxRetries bounds optimistic-concurrency retries before an
	// operation surfaces a concurrent-modification error.
	TxMaxRetries int `env:"TX_MAX_RETRIES" envDefault:"5"`
}

// FromEnv builds a Server config from environment variables.
func FromEnv() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
