package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/schuellerf/bufferbane/client"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bufferbane.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStoreAndQueryMeasurement(t *testing.T) {
	db := openTestDB(t)

	now := time.Now()
	rtt := 12.5
	m := client.Measurement{
		TimestampUnix:  now.Unix(),
		MonotonicNs:    123456,
		Interface:      "eth0",
		ConnectionType: "wired",
		TestType:       "icmp",
		Target:         "1.1.1.1",
		RTTMillis:      &rtt,
		Status:         "success",
	}
	if err := db.StoreMeasurement(m); err != nil {
		t.Fatalf("StoreMeasurement: %v", err)
	}

	results, err := db.QueryRange(now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("QueryRange: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("QueryRange returned %d rows, want 1", len(results))
	}
	if results[0].Target != "1.1.1.1" {
		t.Fatalf("Target = %q, want 1.1.1.1", results[0].Target)
	}
	if results[0].RTTMillis == nil || *results[0].RTTMillis != 12.5 {
		t.Fatalf("RTTMillis = %v, want 12.5", results[0].RTTMillis)
	}
}

func TestQueryRangeExcludesOutsideWindow(t *testing.T) {
	db := openTestDB(t)
	old := time.Now().Add(-48 * time.Hour)
	m := client.Measurement{TimestampUnix: old.Unix(), Target: "x", Status: "success"}
	if err := db.StoreMeasurement(m); err != nil {
		t.Fatalf("StoreMeasurement: %v", err)
	}

	results, err := db.QueryRange(time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("QueryRange: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected 0 rows outside window, got %d", len(results))
	}
}

func TestStoreAndQueryEvent(t *testing.T) {
	db := openTestDB(t)
	val, threshold := 150.0, 100.0
	err := db.StoreEvent(Event{
		EventType: "high_latency",
		Target:    "8.8.8.8",
		Severity:  "warning",
		Message:   "latency over threshold",
		Value:     &val,
		Threshold: &threshold,
	}, time.Now())
	if err != nil {
		t.Fatalf("StoreEvent: %v", err)
	}

	events, err := db.QueryEvents(time.Now().Add(-time.Minute), time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("QueryEvents returned %d, want 1", len(events))
	}
	if events[0].EventType != "high_latency" {
		t.Fatalf("EventType = %q", events[0].EventType)
	}
}

func TestUpsertHourlyRollupReplacesOnConflict(t *testing.T) {
	db := openTestDB(t)
	hour := time.Now().Truncate(time.Hour).Unix()

	if err := db.UpsertHourlyRollup(HourlyRollup{
		HourStart: hour, Target: "1.1.1.1", TestType: "icmp",
		SampleCount: 10, AvgRTTMillis: 20,
	}); err != nil {
		t.Fatalf("UpsertHourlyRollup: %v", err)
	}
	if err := db.UpsertHourlyRollup(HourlyRollup{
		HourStart: hour, Target: "1.1.1.1", TestType: "icmp",
		SampleCount: 20, AvgRTTMillis: 25,
	}); err != nil {
		t.Fatalf("UpsertHourlyRollup (replace): %v", err)
	}

	var count int
	if err := db.x.Get(&count, `SELECT COUNT(*) FROM hourly_rollups`); err != nil {
		t.Fatalf("counting rollups: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 rollup row after upsert-replace, got %d", count)
	}
}

func TestRollupAggregatesMeasurementsIntoHourlyRollup(t *testing.T) {
	db := openTestDB(t)
	hourStart := time.Now().Truncate(time.Hour)

	rtts := []float64{10, 20, 30, 40, 100}
	for _, rtt := range rtts {
		r := rtt
		m := client.Measurement{
			TimestampUnix: hourStart.Add(5 * time.Minute).Unix(),
			Target:        "1.1.1.1",
			TestType:      "icmp",
			RTTMillis:     &r,
			Status:        "success",
		}
		if err := db.StoreMeasurement(m); err != nil {
			t.Fatalf("StoreMeasurement: %v", err)
		}
	}
	if err := db.StoreMeasurement(client.Measurement{
		TimestampUnix: hourStart.Add(6 * time.Minute).Unix(),
		Target:        "1.1.1.1",
		TestType:      "icmp",
		Status:        "timeout",
	}); err != nil {
		t.Fatalf("StoreMeasurement(timeout): %v", err)
	}

	if err := db.Rollup(hourStart); err != nil {
		t.Fatalf("Rollup: %v", err)
	}

	var rollups []HourlyRollup
	err := db.x.Select(&rollups, `SELECT hour_start, target, test_type, sample_count,
		avg_rtt_ms, p50_rtt_ms, p95_rtt_ms, p99_rtt_ms, max_rtt_ms, packet_loss_pct
		FROM hourly_rollups`)
	if err != nil {
		t.Fatalf("querying rollups: %v", err)
	}
	if len(rollups) != 1 {
		t.Fatalf("expected 1 rollup row, got %d", len(rollups))
	}
	r := rollups[0]
	if r.SampleCount != 6 {
		t.Fatalf("SampleCount = %d, want 6", r.SampleCount)
	}
	if r.MaxRTTMillis != 100 {
		t.Fatalf("MaxRTTMillis = %v, want 100", r.MaxRTTMillis)
	}
	wantLossPct := 100.0 / 6.0
	if r.PacketLossPct < wantLossPct-0.01 || r.PacketLossPct > wantLossPct+0.01 {
		t.Fatalf("PacketLossPct = %v, want ~%v", r.PacketLossPct, wantLossPct)
	}
}

func TestRollupIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	hourStart := time.Now().Truncate(time.Hour)
	rtt := 15.0
	if err := db.StoreMeasurement(client.Measurement{
		TimestampUnix: hourStart.Add(time.Minute).Unix(),
		Target:        "8.8.8.8",
		TestType:      "icmp",
		RTTMillis:     &rtt,
		Status:        "success",
	}); err != nil {
		t.Fatalf("StoreMeasurement: %v", err)
	}

	if err := db.Rollup(hourStart); err != nil {
		t.Fatalf("Rollup (first): %v", err)
	}
	if err := db.Rollup(hourStart); err != nil {
		t.Fatalf("Rollup (second): %v", err)
	}

	var count int
	if err := db.x.Get(&count, `SELECT COUNT(*) FROM hourly_rollups`); err != nil {
		t.Fatalf("counting rollups: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 rollup row after calling Rollup twice, got %d", count)
	}
}

func TestPruneOlderThanRemovesOldData(t *testing.T) {
	db := openTestDB(t)
	old := time.Now().Add(-365 * 24 * time.Hour)
	fresh := time.Now()

	if err := db.StoreMeasurement(client.Measurement{TimestampUnix: old.Unix(), Target: "old", Status: "success"}); err != nil {
		t.Fatalf("StoreMeasurement(old): %v", err)
	}
	if err := db.StoreMeasurement(client.Measurement{TimestampUnix: fresh.Unix(), Target: "fresh", Status: "success"}); err != nil {
		t.Fatalf("StoreMeasurement(fresh): %v", err)
	}

	cutoff := time.Now().Add(-30 * 24 * time.Hour)
	if err := db.PruneOlderThan(cutoff, cutoff, cutoff); err != nil {
		t.Fatalf("PruneOlderThan: %v", err)
	}

	results, err := db.QueryRange(time.Unix(0, 0), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("QueryRange: %v", err)
	}
	if len(results) != 1 || results[0].Target != "fresh" {
		t.Fatalf("expected only fresh measurement to survive pruning, got %+v", results)
	}
}
