package config

import (
	"fmt"
	"strings"
)

const defaultStorePath = "tillsync.db"

// StoreConfig holds the settings for the embedded local cache.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// String returns a string representation of the local store configuration.
func (c *StoreConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Local store ---\n")
	b.WriteString(fmt.Sprintf("  path: %s\n", c.Path))
	return b.String()
}

func (c *StoreConfig) Validate() error {
	if c.Path == "" {
		c.Path = defaultStorePath
	}
	return nil
}
