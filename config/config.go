// Package config collects the tunables that have to agree across the
// store, graph, and transfer packages instead of being duplicated as
// local constants in each.
package config

import (
	"strconv"

	"github.com/abstractgit/monocore/internal/env"
)

// RootSubpath is the subpath that denotes the whole repository, never a
// synthetic subtree advertised from a monorepo path.
const RootSubpath = "/"

// DefaultBranchName is the canonical name advertised for every synthetic
// subpath reference.
const DefaultBranchName = "main"

// defaultFlushThreshold is how many decoded pack entries accumulate in
// memory before a push handler flushes them to the store in one batch.
const defaultFlushThreshold = 1000

// Config holds the server's runtime tunables.
type Config struct {
	// StorePath is where the bbolt database file lives.
	// Maps to MONOCORE_STORE_PATH
	StorePath string
	// ListenAddr is the address the transfer server binds to.
	// Maps to MONOCORE_LISTEN_ADDR
	ListenAddr string
	// FlushThreshold is the number of pack entries buffered before a
	// batch write to the store.
	// Maps to MONOCORE_FLUSH_THRESHOLD
	FlushThreshold int
}

// NewConfig builds a Config from the environment, applying defaults for
// anything unset.
//
// Usage: NewConfig(env.NewFromOs())
func NewConfig(e *env.Env) *Config {
	c := &Config{
		StorePath:      e.Get("MONOCORE_STORE_PATH"),
		ListenAddr:     e.Get("MONOCORE_LISTEN_ADDR"),
		FlushThreshold: defaultFlushThreshold,
	}
	if c.StorePath == "" {
		c.StorePath = "monocore.db"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":9418"
	}
	if raw := e.Get("MONOCORE_FLUSH_THRESHOLD"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			c.FlushThreshold = n
		}
	}
	return c
}
