package client

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config is the full client-side configuration tree, loaded from JSON
// the same way server.Config and the teacher's kcptun config are.
type Config struct {
	General   GeneralConfig    `json:"general"`
	Targets   TargetsConfig    `json:"targets"`
	Server    *ServerConfig    `json:"server,omitempty"`
	Alerts    AlertsConfig     `json:"alerts"`
	Retention RetentionConfig  `json:"retention"`
	Export    ExportConfig     `json:"export"`
	Logging   LoggingConfig    `json:"logging"`
}

// GeneralConfig covers test cadence, storage location, and client identity.
type GeneralConfig struct {
	TestIntervalMs uint64   `json:"test_interval_ms"`
	DatabasePath   string   `json:"database_path"`
	ClientID       string   `json:"client_id"` // "auto" generates one on load
	Interfaces     []string `json:"interfaces,omitempty"`
	ConnectionType string   `json:"connection_type,omitempty"` // "auto" defers to "unknown"
}

// TargetsConfig lists what gets ICMP-probed.
type TargetsConfig struct {
	ISPGateway string   `json:"isp_gateway,omitempty"`
	PublicDNS  []string `json:"public_dns,omitempty"`
	Custom     []string `json:"custom,omitempty"`
}

// ServerConfig configures the optional authenticated UDP echo test
// against a bufferbane server (spec.md §4, §6).
type ServerConfig struct {
	Enabled                 bool   `json:"enabled"`
	Host                    string `json:"host"`
	Port                    uint16 `json:"port"`
	SharedSecret            string `json:"shared_secret"`
	ClientID                uint64 `json:"client_id,omitempty"`
	KnockRetryAttempts      uint32 `json:"knock_retry_attempts,omitempty"`
	KnockTimeoutMs          uint64 `json:"knock_timeout_ms,omitempty"`
	EnableEchoTest          bool   `json:"enable_echo_test"`
	EnableThroughputTest    bool   `json:"enable_throughput_test,omitempty"`
	EnableDownloadTest      bool   `json:"enable_download_test,omitempty"`
	EnableBufferbloatTest   bool   `json:"enable_bufferbloat_test,omitempty"`
}

// AlertsConfig sets the alert/ package's thresholds.
type AlertsConfig struct {
	Enabled                bool    `json:"enabled"`
	LogPath                string  `json:"log_path,omitempty"`
	LatencyThresholdMs     float64 `json:"latency_threshold_ms"`
	JitterThresholdMs      float64 `json:"jitter_threshold_ms"`
	PacketLossThresholdPct float64 `json:"packet_loss_threshold_pct"`
}

// RetentionConfig drives storage/ cleanup.
type RetentionConfig struct {
	MeasurementsDays int    `json:"measurements_days"`
	AggregationsDays int    `json:"aggregations_days"`
	EventsDays       int    `json:"events_days"`
	CleanupTime      string `json:"cleanup_time,omitempty"`
}

// ExportConfig drives export/ and chart/.
type ExportConfig struct {
	EnableCSV        bool     `json:"enable_csv"`
	EnableCharts     bool     `json:"enable_charts"`
	ChartWidth       int      `json:"chart_width,omitempty"`
	ChartHeight      int      `json:"chart_height,omitempty"`
	ExportDirectory  string   `json:"export_directory,omitempty"`
	DefaultCharts    []string `json:"default_charts,omitempty"`
}

// LoggingConfig drives the zerolog sink.
type LoggingConfig struct {
	Level string `json:"level"`
	Path  string `json:"path,omitempty"`
}

const (
	defaultKnockRetryAttempts = 3
	defaultKnockTimeoutMs     = 2000
)

// LoadConfig reads path, applies defaults, and resolves "auto" fields.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("client: opening config %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("client: parsing config %q: %w", path, err)
	}

	if cfg.General.ClientID == "" || cfg.General.ClientID == "auto" {
		id, err := generateClientID()
		if err != nil {
			return nil, fmt.Errorf("client: generating client id: %w", err)
		}
		cfg.General.ClientID = id
	}
	if cfg.General.ConnectionType == "" || cfg.General.ConnectionType == "auto" {
		cfg.General.ConnectionType = "unknown"
	}
	if cfg.Server != nil {
		if cfg.Server.KnockRetryAttempts == 0 {
			cfg.Server.KnockRetryAttempts = defaultKnockRetryAttempts
		}
		if cfg.Server.KnockTimeoutMs == 0 {
			cfg.Server.KnockTimeoutMs = defaultKnockTimeoutMs
		}
	}

	return &cfg, nil
}

// generateClientID mints a random 16-hex-digit client identity, used
// when the config names "auto" rather than a fixed value.
func generateClientID() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}

// TestInterval is General.TestIntervalMs as a Duration.
func (c *Config) TestInterval() time.Duration {
	return time.Duration(c.General.TestIntervalMs) * time.Millisecond
}

// KnockTimeout is Server.KnockTimeoutMs as a Duration.
func (s *ServerConfig) KnockTimeout() time.Duration {
	return time.Duration(s.KnockTimeoutMs) * time.Millisecond
}

// Addr renders host:port for net.ResolveUDPAddr.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
