package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type ServerConfig struct {
	PostgresDSN string `env:"POSTGRES_DSN,required,notEmpty"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":3000"`

	AdminAPIKey  string `env:"ADMIN_API_KEY"`
	CORSOrigin   string `env:"CORS_ORIGIN" envDefault:"*"`
	WSEnabled    bool   `env:"WS_ENABLED" envDefault:"true"`
	SSEEnabled   bool   `env:"SSE_ENABLED" envDefault:"true"`
	MCPEnabled   bool   `env:"MCP_ENABLED" envDefault:"true"`
	MaxBodyBytes int64  `env:"MAX_BODY_BYTES" envDefault:"10485760"`

	WSPingInterval time.Duration `env:"WS_PING_INTERVAL" envDefault:"30s"`

	StoreTimeout      time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	ReputationTimeout time.Duration `env:"REPUTATION_TIMEOUT" envDefault:"3s"`
}

func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	err := env.Parse(&cfg)
	return cfg, err
}
