package config_test

import (
	"testing"

	"github.com/abstractgit/monocore/config"
	"github.com/abstractgit/monocore/internal/env"
	"github.com/stretchr/testify/assert"
)

func TestNewConfig_Defaults(t *testing.T) {
	c := config.NewConfig(env.NewFromKVList(nil))
	assert.Equal(t, "monocore.db", c.StorePath)
	assert.Equal(t, ":9418", c.ListenAddr)
	assert.Equal(t, 1000, c.FlushThreshold)
}

func TestNewConfig_ReadsOverrides(t *testing.T) {
	c := config.NewConfig(env.NewFromKVList([]string{
		"MONOCORE_STORE_PATH=/tmp/custom.db",
		"MONOCORE_LISTEN_ADDR=127.0.0.1:1234",
		"MONOCORE_FLUSH_THRESHOLD=50",
	}))
	assert.Equal(t, "/tmp/custom.db", c.StorePath)
	assert.Equal(t, "127.0.0.1:1234", c.ListenAddr)
	assert.Equal(t, 50, c.FlushThreshold)
}

func TestNewConfig_IgnoresInvalidThreshold(t *testing.T) {
	c := config.NewConfig(env.NewFromKVList([]string{"MONOCORE_FLUSH_THRESHOLD=not-a-number"}))
	assert.Equal(t, 1000, c.FlushThreshold)
}
