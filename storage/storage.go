// Package storage persists measurements, alert events, and hourly
// rollups to an embedded SQLite database, in WAL mode for concurrent
// read/write from the collector and the CLI/export tools.
package storage

import (
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/schuellerf/bufferbane/client"
)

// DB wraps a sqlx handle bound to a single bufferbane measurement database.
type DB struct {
	x *sqlx.DB
}

// Open opens (creating if absent) the sqlite3 database at path, with
// WAL journaling and a busy timeout so the collector's writer and the
// CLI's readers don't trip over each other.
func Open(path string) (*DB, error) {
	dsn := (&url.URL{
		Path: path,
		RawQuery: (url.Values{
			"_journal":      {"WAL"},
			"_busy_timeout": {"5000"},
		}).Encode(),
	}).String()

	x, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: opening %q: %w", path, err)
	}
	return &DB{x: x}, nil
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	return db.x.Close()
}

// schema creates every table/index bufferbane needs, idempotently.
const schema = `
CREATE TABLE IF NOT EXISTS measurements (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	monotonic_ns INTEGER NOT NULL,
	interface TEXT NOT NULL,
	connection_type TEXT NOT NULL,
	test_type TEXT NOT NULL,
	target TEXT NOT NULL,
	server_name TEXT,
	rtt_ms REAL,
	jitter_ms REAL,
	packet_loss_pct REAL,
	throughput_kbps REAL,
	dns_time_ms REAL,
	status TEXT NOT NULL,
	error_detail TEXT,
	upload_latency_ms REAL,
	download_latency_ms REAL,
	server_processing_us INTEGER
);
CREATE INDEX IF NOT EXISTS idx_measurements_timestamp ON measurements(timestamp);
CREATE INDEX IF NOT EXISTS idx_measurements_interface ON measurements(interface);
CREATE INDEX IF NOT EXISTS idx_measurements_connection_type ON measurements(connection_type);
CREATE INDEX IF NOT EXISTS idx_measurements_test_type ON measurements(test_type);
CREATE INDEX IF NOT EXISTS idx_measurements_target ON measurements(target);

CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	event_type TEXT NOT NULL,
	target TEXT NOT NULL,
	severity TEXT NOT NULL,
	message TEXT NOT NULL,
	value REAL,
	threshold REAL
);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);

CREATE TABLE IF NOT EXISTS hourly_rollups (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	hour_start INTEGER NOT NULL,
	target TEXT NOT NULL,
	test_type TEXT NOT NULL,
	sample_count INTEGER NOT NULL,
	avg_rtt_ms REAL,
	p50_rtt_ms REAL,
	p95_rtt_ms REAL,
	p99_rtt_ms REAL,
	max_rtt_ms REAL,
	packet_loss_pct REAL,
	UNIQUE(hour_start, target, test_type)
);
CREATE INDEX IF NOT EXISTS idx_rollups_hour ON hourly_rollups(hour_start);
`

// Initialize creates the schema if it does not already exist.
func (db *DB) Initialize() error {
	if _, err := db.x.Exec(schema); err != nil {
		return fmt.Errorf("storage: initializing schema: %w", err)
	}
	return nil
}

// measurementRow mirrors Measurement for sqlx's column-name-based scan/bind.
type measurementRow struct {
	Timestamp           int64    `db:"timestamp"`
	MonotonicNs         int64    `db:"monotonic_ns"`
	Interface           string   `db:"interface"`
	ConnectionType      string   `db:"connection_type"`
	TestType            string   `db:"test_type"`
	Target              string   `db:"target"`
	ServerName          *string  `db:"server_name"`
	RTTMillis           *float64 `db:"rtt_ms"`
	JitterMillis        *float64 `db:"jitter_ms"`
	PacketLossPct       *float64 `db:"packet_loss_pct"`
	ThroughputKbps      *float64 `db:"throughput_kbps"`
	DNSTimeMillis       *float64 `db:"dns_time_ms"`
	Status              string   `db:"status"`
	ErrorDetail         *string  `db:"error_detail"`
	UploadLatencyMillis *float64 `db:"upload_latency_ms"`
	DownloadLatencyMillis *float64 `db:"download_latency_ms"`
	ServerProcessingUs  *int64   `db:"server_processing_us"`
}

func toRow(m client.Measurement) measurementRow {
	row := measurementRow{
		Timestamp:             m.TimestampUnix,
		MonotonicNs:           m.MonotonicNs,
		Interface:             m.Interface,
		ConnectionType:        m.ConnectionType,
		TestType:              m.TestType,
		Target:                m.Target,
		RTTMillis:             m.RTTMillis,
		JitterMillis:          m.JitterMillis,
		PacketLossPct:         m.PacketLossPct,
		ThroughputKbps:        m.ThroughputKbps,
		DNSTimeMillis:         m.DNSTimeMillis,
		Status:                m.Status,
		UploadLatencyMillis:   m.UploadLatencyMillis,
		DownloadLatencyMillis: m.DownloadLatencyMillis,
		ServerProcessingUs:    m.ServerProcessingUs,
	}
	if m.ServerName != "" {
		row.ServerName = &m.ServerName
	}
	if m.ErrorDetail != "" {
		row.ErrorDetail = &m.ErrorDetail
	}
	return row
}

func (r measurementRow) toMeasurement() client.Measurement {
	m := client.Measurement{
		TimestampUnix:         r.Timestamp,
		MonotonicNs:           r.MonotonicNs,
		Interface:             r.Interface,
		ConnectionType:        r.ConnectionType,
		TestType:              r.TestType,
		Target:                r.Target,
		RTTMillis:             r.RTTMillis,
		JitterMillis:          r.JitterMillis,
		PacketLossPct:         r.PacketLossPct,
		ThroughputKbps:        r.ThroughputKbps,
		DNSTimeMillis:         r.DNSTimeMillis,
		Status:                r.Status,
		UploadLatencyMillis:   r.UploadLatencyMillis,
		DownloadLatencyMillis: r.DownloadLatencyMillis,
		ServerProcessingUs:    r.ServerProcessingUs,
	}
	if r.ServerName != nil {
		m.ServerName = *r.ServerName
	}
	if r.ErrorDetail != nil {
		m.ErrorDetail = *r.ErrorDetail
	}
	return m
}

// StoreMeasurement inserts one measurement row.
func (db *DB) StoreMeasurement(m client.Measurement) error {
	row := toRow(m)
	_, err := db.x.NamedExec(`
		INSERT INTO measurements (
			timestamp, monotonic_ns, interface, connection_type, test_type, target,
			server_name, rtt_ms, jitter_ms, packet_loss_pct, throughput_kbps,
			dns_time_ms, status, error_detail, upload_latency_ms, download_latency_ms,
			server_processing_us
		) VALUES (
			:timestamp, :monotonic_ns, :interface, :connection_type, :test_type, :target,
			:server_name, :rtt_ms, :jitter_ms, :packet_loss_pct, :throughput_kbps,
			:dns_time_ms, :status, :error_detail, :upload_latency_ms, :download_latency_ms,
			:server_processing_us
		)`, row)
	if err != nil {
		return fmt.Errorf("storage: inserting measurement: %w", err)
	}
	return nil
}

// QueryRange returns every measurement with timestamp in [start, end], ascending.
func (db *DB) QueryRange(start, end time.Time) ([]client.Measurement, error) {
	var rows []measurementRow
	err := db.x.Select(&rows, `
		SELECT timestamp, monotonic_ns, interface, connection_type, test_type, target,
			server_name, rtt_ms, jitter_ms, packet_loss_pct, throughput_kbps,
			dns_time_ms, status, error_detail, upload_latency_ms, download_latency_ms,
			server_processing_us
		FROM measurements
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC`, start.Unix(), end.Unix())
	if err != nil {
		return nil, fmt.Errorf("storage: querying range: %w", err)
	}

	out := make([]client.Measurement, len(rows))
	for i, r := range rows {
		out[i] = r.toMeasurement()
	}
	return out, nil
}

// Event is a stored alert occurrence.
type Event struct {
	Timestamp int64    `db:"timestamp"`
	EventType string   `db:"event_type"`
	Target    string   `db:"target"`
	Severity  string   `db:"severity"`
	Message   string   `db:"message"`
	Value     *float64 `db:"value"`
	Threshold *float64 `db:"threshold"`
}

// StoreEvent inserts one alert event, timestamped now.
func (db *DB) StoreEvent(e Event, now time.Time) error {
	e.Timestamp = now.Unix()
	_, err := db.x.NamedExec(`
		INSERT INTO events (timestamp, event_type, target, severity, message, value, threshold)
		VALUES (:timestamp, :event_type, :target, :severity, :message, :value, :threshold)`, e)
	if err != nil {
		return fmt.Errorf("storage: inserting event: %w", err)
	}
	return nil
}

// QueryEvents returns every event with timestamp in [start, end], ascending.
func (db *DB) QueryEvents(start, end time.Time) ([]Event, error) {
	var events []Event
	err := db.x.Select(&events, `
		SELECT timestamp, event_type, target, severity, message, value, threshold
		FROM events
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC`, start.Unix(), end.Unix())
	if err != nil {
		return nil, fmt.Errorf("storage: querying events: %w", err)
	}
	return events, nil
}

// HourlyRollup is one pre-aggregated hour of a (target, test_type) series.
type HourlyRollup struct {
	HourStart     int64   `db:"hour_start"`
	Target        string  `db:"target"`
	TestType      string  `db:"test_type"`
	SampleCount   int     `db:"sample_count"`
	AvgRTTMillis  float64 `db:"avg_rtt_ms"`
	P50RTTMillis  float64 `db:"p50_rtt_ms"`
	P95RTTMillis  float64 `db:"p95_rtt_ms"`
	P99RTTMillis  float64 `db:"p99_rtt_ms"`
	MaxRTTMillis  float64 `db:"max_rtt_ms"`
	PacketLossPct float64 `db:"packet_loss_pct"`
}

// UpsertHourlyRollup writes or replaces the rollup for its (hour_start, target, test_type) key.
func (db *DB) UpsertHourlyRollup(r HourlyRollup) error {
	_, err := db.x.NamedExec(`
		INSERT INTO hourly_rollups (
			hour_start, target, test_type, sample_count,
			avg_rtt_ms, p50_rtt_ms, p95_rtt_ms, p99_rtt_ms, max_rtt_ms, packet_loss_pct
		) VALUES (
			:hour_start, :target, :test_type, :sample_count,
			:avg_rtt_ms, :p50_rtt_ms, :p95_rtt_ms, :p99_rtt_ms, :max_rtt_ms, :packet_loss_pct
		)
		ON CONFLICT(hour_start, target, test_type) DO UPDATE SET
			sample_count = excluded.sample_count,
			avg_rtt_ms = excluded.avg_rtt_ms,
			p50_rtt_ms = excluded.p50_rtt_ms,
			p95_rtt_ms = excluded.p95_rtt_ms,
			p99_rtt_ms = excluded.p99_rtt_ms,
			max_rtt_ms = excluded.max_rtt_ms,
			packet_loss_pct = excluded.packet_loss_pct`, r)
	if err != nil {
		return fmt.Errorf("storage: upserting hourly rollup: %w", err)
	}
	return nil
}

// rollupGroup identifies one (target, test_type) series present in an
// hour bucket.
type rollupGroup struct {
	Target   string `db:"target"`
	TestType string `db:"test_type"`
}

// rollupCounts is the loss/sample accounting for one group, computed
// over every measurement in the bucket (including timeouts/errors,
// which have no rtt_ms).
type rollupCounts struct {
	SampleCount int `db:"sample_count"`
	LossCount   int `db:"loss_count"`
}

// Rollup aggregates every measurement whose timestamp falls in the
// hour starting at hour.Truncate(time.Hour) into one hourly_rollups
// row per (target, test_type), upserting over any prior rollup for
// that hour. It is safe to call more than once for the same hour
// (e.g. a late-arriving measurement), since it always recomputes from
// the raw rows rather than incrementally updating a running total.
func (db *DB) Rollup(hour time.Time) error {
	start := hour.Truncate(time.Hour)
	end := start.Add(time.Hour)

	var groups []rollupGroup
	err := db.x.Select(&groups, `
		SELECT DISTINCT target, test_type FROM measurements
		WHERE timestamp >= ? AND timestamp < ?`, start.Unix(), end.Unix())
	if err != nil {
		return fmt.Errorf("storage: listing rollup groups for %s: %w", start, err)
	}

	for _, g := range groups {
		var counts rollupCounts
		err := db.x.Get(&counts, `
			SELECT COUNT(*) AS sample_count,
				SUM(CASE WHEN status != 'success' THEN 1 ELSE 0 END) AS loss_count
			FROM measurements
			WHERE timestamp >= ? AND timestamp < ? AND target = ? AND test_type = ?`,
			start.Unix(), end.Unix(), g.Target, g.TestType)
		if err != nil {
			return fmt.Errorf("storage: counting samples for %s/%s: %w", g.Target, g.TestType, err)
		}

		var rtts []float64
		err = db.x.Select(&rtts, `
			SELECT rtt_ms FROM measurements
			WHERE timestamp >= ? AND timestamp < ? AND target = ? AND test_type = ? AND rtt_ms IS NOT NULL
			ORDER BY rtt_ms ASC`,
			start.Unix(), end.Unix(), g.Target, g.TestType)
		if err != nil {
			return fmt.Errorf("storage: loading rtts for %s/%s: %w", g.Target, g.TestType, err)
		}

		lossPct := 0.0
		if counts.SampleCount > 0 {
			lossPct = 100.0 * float64(counts.LossCount) / float64(counts.SampleCount)
		}

		rollup := HourlyRollup{
			HourStart:     start.Unix(),
			Target:        g.Target,
			TestType:      g.TestType,
			SampleCount:   counts.SampleCount,
			AvgRTTMillis:  meanOf(rtts),
			P50RTTMillis:  percentileOf(rtts, 50),
			P95RTTMillis:  percentileOf(rtts, 95),
			P99RTTMillis:  percentileOf(rtts, 99),
			MaxRTTMillis:  maxOf(rtts),
			PacketLossPct: lossPct,
		}
		if err := db.UpsertHourlyRollup(rollup); err != nil {
			return fmt.Errorf("storage: storing rollup for %s/%s/%s: %w", start, g.Target, g.TestType, err)
		}
	}
	return nil
}

// percentileOf returns the nearest-rank percentile of a pre-sorted
// (ascending) slice, or 0 for an empty slice.
func percentileOf(sorted []float64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(pct/100.0*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func maxOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	max := values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

// PruneOlderThan deletes measurements/events/rollups older than their
// respective retention windows, per spec.md's retention config.
func (db *DB) PruneOlderThan(measurementsBefore, eventsBefore, rollupsBefore time.Time) error {
	if _, err := db.x.Exec(`DELETE FROM measurements WHERE timestamp < ?`, measurementsBefore.Unix()); err != nil {
		return fmt.Errorf("storage: pruning measurements: %w", err)
	}
	if _, err := db.x.Exec(`DELETE FROM events WHERE timestamp < ?`, eventsBefore.Unix()); err != nil {
		return fmt.Errorf("storage: pruning events: %w", err)
	}
	if _, err := db.x.Exec(`DELETE FROM hourly_rollups WHERE hour_start < ?`, rollupsBefore.Unix()); err != nil {
		return fmt.Errorf("storage: pruning rollups: %w", err)
	}
	return nil
}
