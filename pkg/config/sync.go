package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultRetryAttempts  = 3
	defaultRetryDelay     = 5 * time.Second
	defaultOpDelay        = 100 * time.Millisecond
	defaultQueueMaxAge    = 7 * 24 * time.Hour
	defaultCheckInterval  = 60 * time.Second
	defaultSessionRefresh = 30 * time.Minute
)

// SyncConfig holds the behavior settings of the sync engine: connectivity
// retry bounds, replay throttling, and queue eviction.
type SyncConfig struct {
	RetryAttempts  int           `koanf:"retryAttempts"`
	RetryDelay     time.Duration `koanf:"retryDelay"`
	OpDelay        time.Duration `koanf:"opDelay"`
	QueueMaxAge    time.Duration `koanf:"queueMaxAge"`
	CheckInterval  time.Duration `koanf:"checkInterval"`
	SessionRefresh time.Duration `koanf:"sessionRefresh"`
}

// String returns a string representation of the sync configuration.
func (c *SyncConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Sync ---\n")
	b.WriteString(fmt.Sprintf("  retryAttempts: %d\n", c.RetryAttempts))
	b.WriteString(fmt.Sprintf("  retryDelay: %s\n", c.RetryDelay))
	b.WriteString(fmt.Sprintf("  opDelay: %s\n", c.OpDelay))
	b.WriteString(fmt.Sprintf("  queueMaxAge: %s\n", c.QueueMaxAge))
	b.WriteString(fmt.Sprintf("  checkInterval: %s\n", c.CheckInterval))
	b.WriteString(fmt.Sprintf("  sessionRefresh: %s\n", c.SessionRefresh))
	return b.String()
}

func (c *SyncConfig) Validate() error {
	if c.RetryAttempts < 0 {
		return fmt.Errorf("invalid sync retry attempts: %d", c.RetryAttempts)
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = defaultRetryAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.OpDelay <= 0 {
		c.OpDelay = defaultOpDelay
	}
	if c.QueueMaxAge <= 0 {
		c.QueueMaxAge = defaultQueueMaxAge
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = defaultCheckInterval
	}
	if c.SessionRefresh <= 0 {
		c.SessionRefresh = defaultSessionRefresh
	}
	return nil
}
