package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Env  string `env:"ENV" envDefault:"development"`
	Port string `env:"PORT" envDefault:"8080"`

	MySQLHost     string `env:"MYSQL_HOST"`
	MySQLPort     string `env:"MYSQL_PORT" envDefault:"3306"`
	MySQLUser     string `env:"MYSQL_USER"`
	MySQLPassword string `env:"MYSQL_PASSWORD"`
	MySQLDatabase string `env:"MYSQL_DATABASE" envDefault:"trackvote"`

	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     string `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	KafkaBrokers []string `env:"KAFKA_BROKERS"`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"room-changes"`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID"`

	CodeLength   int           `env:"CODE_LENGTH" envDefault:"6"`
	HistoryLimit int           `env:"HISTORY_LIMIT" envDefault:"50"`
	RoomTTL      time.Duration `env:"ROOM_TTL" envDefault:"0"` // 0 disables the idle sweep

	CORSOrigins []string `env:"CORS_ORIGINS" envDefault:"http://localhost:5173"`
}

// Load reads .env if present, then parses the environment. A missing .env
// is fine; explicit environment always wins.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return &cfg, nil
}

// Persistence reports whether MySQL durability is configured.
func (c *Config) Persistence() bool {
	return c.MySQLHost != ""
}

// Relay reports whether the Kafka cross-instance relay is configured.
func (c *Config) Relay() bool {
	return len(c.KafkaBrokers) > 0
}

func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}
