package config

import (
	"fmt"
	"strings"
	"time"
)

const defaultRemoteTimeout = 10 * time.Second

// RemoteConfig holds the connection settings for the remote object store.
// RefreshToken is optional; when set, the agent renews its access token on
// the periodic session refresh.
type RemoteConfig struct {
	URL          string        `koanf:"url"`
	APIKey       string        `koanf:"apikey"`
	RefreshToken string        `koanf:"refreshToken"`
	Timeout      time.Duration `koanf:"timeout"`
}

// String returns a string representation of the remote store configuration.
func (c *RemoteConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Remote ---\n")
	b.WriteString(fmt.Sprintf("  url: %s\n", c.URL))
	b.WriteString(fmt.Sprintf("  apikey: %s\n", maskKey(c.APIKey)))
	b.WriteString(fmt.Sprintf("  refreshToken: %s\n", maskKey(c.RefreshToken)))
	b.WriteString(fmt.Sprintf("  timeout: %s\n", c.Timeout))
	return b.String()
}

func (c *RemoteConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("remote URL is not configured")
	}
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("remote URL must start with 'http://' or 'https://': %s", c.URL)
	}
	if c.APIKey == "" {
		return fmt.Errorf("remote API key is not configured")
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultRemoteTimeout
	}
	return nil
}

// maskKey hides all but the last four characters of a credential.
func maskKey(key string) string {
	if key == "" {
		return "<not configured>"
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
