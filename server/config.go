package server

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/schuellerf/bufferbane/protocol"
)

// Config is the server-side configuration, loaded from a JSON file the
// same way the teacher's kcptun server loads its JSON override.
type Config struct {
	BindAddress          string `json:"bind_address"`
	BindPort             uint16 `json:"bind_port"`
	MaxConcurrentClients int    `json:"max_concurrent_clients"` // advisory only; not enforced by the dispatcher
	SharedSecret         string `json:"shared_secret"`
	KnockTimeoutSec      uint64 `json:"knock_timeout_sec"`
	SessionTimeoutSec    uint64 `json:"session_timeout_sec"`
}

// defaultSessionTimeoutSec mirrors protocol.DefaultSessionTimeout.
const defaultSessionTimeoutSec = 300

// LoadConfig reads and validates a server configuration file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("server: opening config %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("server: parsing config %q: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.SessionTimeoutSec == 0 {
		c.SessionTimeoutSec = defaultSessionTimeoutSec
	}
	if c.BindAddress == "" {
		c.BindAddress = "0.0.0.0"
	}
}

// Validate checks the fields the wire protocol depends on directly.
func (c *Config) Validate() error {
	if len(c.SharedSecret) != protocol.SecretHexLen {
		return fmt.Errorf("server: shared_secret must be %d hex characters, got %d", protocol.SecretHexLen, len(c.SharedSecret))
	}
	if _, err := protocol.ParseSharedSecret(c.SharedSecret); err != nil {
		return err
	}
	if c.BindPort == 0 {
		return fmt.Errorf("server: bind_port must be set")
	}
	return nil
}

// SessionTimeout returns the configured session timeout as a Duration.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSec) * time.Second
}

// BindAddr renders host:port for net.ResolveUDPAddr.
func (c *Config) BindAddr() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.BindPort)
}
