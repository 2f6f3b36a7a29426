package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testContract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("CONTRACT_ADDRESS", testContract)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, testContract, cfg.Ledger.ContractAddress)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "http://127.0.0.1:8545", cfg.Ledger.RPCURL)
	assert.Equal(t, 1500*time.Millisecond, cfg.Transactions.PollIntervalDuration())
	assert.Zero(t, cfg.Transactions.ConfirmTimeoutDuration())
	assert.Equal(t, 8, cfg.Metadata.Concurrency)
	assert.Equal(t, 10*time.Second, cfg.Metadata.FetchTimeoutDuration())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:       ServerConfig{Port: 8085},
			Ledger:       LedgerConfig{RPCURL: "http://127.0.0.1:8545", ContractAddress: testContract},
			Metadata:     MetadataConfig{Concurrency: 4},
			Transactions: TransactionConfig{PollInterval: 1000},
		}
	}
	require.NoError(t, validate(valid()))

	cases := map[string]func(*Config){
		"missing rpc url":     func(c *Config) { c.Ledger.RPCURL = "" },
		"missing contract":    func(c *Config) { c.Ledger.ContractAddress = "" },
		"port out of range":   func(c *Config) { c.Server.Port = 70000 },
		"zero poll interval":  func(c *Config) { c.Transactions.PollInterval = 0 },
		"no metadata workers": func(c *Config) { c.Metadata.Concurrency = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, validate(cfg))
		})
	}
}
