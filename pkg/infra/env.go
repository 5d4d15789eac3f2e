package infra

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Env holds connection settings read from the process environment.
type Env struct {
	ServerPort int `env:"SERVER_PORT" envDefault:"8080"`

	// "redis" keeps queue and presence state in redis so it survives
	// restarts. "memory" is for local runs only.
	StoreBackend string `env:"STORE_BACKEND" envDefault:"redis"`

	RedisHost string `env:"REDIS_HOST" envDefault:"localhost:6379"`
	RedisDb   int    `env:"REDIS_DB" envDefault:"0"`

	MainServerHost   string `env:"MAIN_SERVER_HOST" envDefault:"http://localhost:3000"`
	MainServerApiKey string `env:"MAIN_SERVER_API_KEY"`

	OtelEndpoint string `env:"OTEL_ENDPOINT"`
	OtelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"true"`
}

func ProvideEnv() (*Env, error) {
	e := &Env{}
	if err := env.Parse(e); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	switch e.StoreBackend {
	case StoreBackendRedis, StoreBackendMemory:
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND[%v]", e.StoreBackend)
	}
	return e, nil
}

const (
	StoreBackendRedis  = "redis"
	StoreBackendMemory = "memory"
)
