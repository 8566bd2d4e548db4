package client

// Measurement is one row of the time series a bufferbane client
// produces, whatever test produced it — ICMP, the encrypted UDP echo
// protocol, or (reserved) throughput tests.
type Measurement struct {
	TimestampUnix int64  `json:"timestamp"`
	MonotonicNs   int64  `json:"monotonic_ns"`
	Interface     string `json:"interface"`
	ConnectionType string `json:"connection_type"`
	TestType      string `json:"test_type"` // "icmp", "server_echo", ...
	Target        string `json:"target"`
	ServerName    string `json:"server_name,omitempty"`

	RTTMillis           *float64 `json:"rtt_ms,omitempty"`
	JitterMillis        *float64 `json:"jitter_ms,omitempty"`
	PacketLossPct       *float64 `json:"packet_loss_pct,omitempty"`
	ThroughputKbps      *float64 `json:"throughput_kbps,omitempty"`
	DNSTimeMillis       *float64 `json:"dns_time_ms,omitempty"`

	Status       string `json:"status"` // "pending", "success", "timeout", "error"
	ErrorDetail  string `json:"error_detail,omitempty"`

	UploadLatencyMillis   *float64 `json:"upload_latency_ms,omitempty"`
	DownloadLatencyMillis *float64 `json:"download_latency_ms,omitempty"`
	ServerProcessingUs    *int64   `json:"server_processing_us,omitempty"`

	SyncEvent *SyncEvent `json:"sync_event,omitempty"`
}

// SyncEvent records a clock-sync state transition observed alongside a
// Measurement: "sync_established", "sync_lost", or "sync_invalid".
type SyncEvent struct {
	EventType string `json:"event_type"`
	Message   string `json:"message"`
	Quality   uint8  `json:"quality"`
}

// NewICMPMeasurement starts a pending row for an ICMP probe.
func NewICMPMeasurement(target, iface, connType string, timestampUnix, monotonicNs int64) Measurement {
	return Measurement{
		TimestampUnix:  timestampUnix,
		MonotonicNs:    monotonicNs,
		Interface:      iface,
		ConnectionType: connType,
		TestType:       "icmp",
		Target:         target,
		Status:         "pending",
	}
}

// NewServerEchoMeasurement starts a pending row for an authenticated
// UDP echo test against a bufferbane server.
func NewServerEchoMeasurement(target, iface, connType string, timestampUnix, monotonicNs int64) Measurement {
	return Measurement{
		TimestampUnix:  timestampUnix,
		MonotonicNs:    monotonicNs,
		Interface:      iface,
		ConnectionType: connType,
		TestType:       "server_echo",
		Target:         target,
		Status:         "pending",
	}
}

func f64ptr(v float64) *float64 { return &v }
func i64ptr(v int64) *int64     { return &v }

// SetSuccess records a successful RTT-only result (used by the ICMP prober).
func (m *Measurement) SetSuccess(rttMs float64) {
	m.RTTMillis = f64ptr(rttMs)
	m.Status = "success"
}

// SetTimeout records that no reply arrived before the deadline.
func (m *Measurement) SetTimeout() {
	m.Status = "timeout"
}

// SetError records a non-timeout failure.
func (m *Measurement) SetError(detail string) {
	m.Status = "error"
	m.ErrorDetail = detail
}
