package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

type IndexerConfig struct {
	RPCURL          string        `env:"RPC_URL" envDefault:"http://localhost:8545"`
	ContractAddress string        `env:"CONTRACT_ADDRESS"`
	StartBlock      uint64        `env:"START_BLOCK" envDefault:"0"`
	PollIntervalMS  int           `env:"POLL_INTERVAL_MS" envDefault:"5000"`
	MaxBlockRange   uint64        `env:"MAX_BLOCK_RANGE" envDefault:"2000"`
	RPCTimeout      time.Duration `env:"RPC_TIMEOUT" envDefault:"10s"`
	TickTimeout     time.Duration `env:"TICK_TIMEOUT" envDefault:"60s"`
	RPCRateLimit    float64       `env:"RPC_RATE_LIMIT" envDefault:"10"`
	RPCRetries      uint64        `env:"RPC_RETRIES" envDefault:"2"`
	CursorName      string        `env:"INDEXER_CURSOR" envDefault:"marketplace"`
}

// Enabled reports whether a contract is configured to index.
func (c IndexerConfig) Enabled() bool {
	addr := strings.TrimSpace(c.ContractAddress)
	return addr != "" && !strings.EqualFold(addr, zeroAddress)
}

func (c IndexerConfig) PollInterval() time.Duration {
	if c.PollIntervalMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

func LoadIndexer() (IndexerConfig, error) {
	var cfg IndexerConfig
	err := env.Parse(&cfg)
	return cfg, err
}
