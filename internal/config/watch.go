package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type WatchConfig struct {
	WSURL        string        `env:"WS_URL" envDefault:"ws://localhost:3000/ws"`
	PingInterval time.Duration `env:"PING_INTERVAL" envDefault:"30s"`
}

func LoadWatch() (WatchConfig, error) {
	var cfg WatchConfig
	err := env.Parse(&cfg)
	return cfg, err
}
