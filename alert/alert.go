// Package alert evaluates a batch of measurements against configured
// thresholds and emits alert events for a logger and/or a storage sink.
package alert

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/schuellerf/bufferbane/client"
)

// Thresholds are the configured alert trigger points, taken from
// client.AlertsConfig.
type Thresholds struct {
	Enabled                bool
	LatencyThresholdMs     float64
	JitterThresholdMs      float64
	PacketLossThresholdPct float64
}

// ThresholdsFromConfig adapts a client.AlertsConfig.
func ThresholdsFromConfig(cfg client.AlertsConfig) Thresholds {
	return Thresholds{
		Enabled:                cfg.Enabled,
		LatencyThresholdMs:     cfg.LatencyThresholdMs,
		JitterThresholdMs:      cfg.JitterThresholdMs,
		PacketLossThresholdPct: cfg.PacketLossThresholdPct,
	}
}

// Event is one threshold breach detected in a batch of measurements.
// Severity is "error" for measurements with status "error" and
// "warning" for every other check.
type Event struct {
	EventType string
	Target    string
	Severity  string
	Message   string
	Value     float64
	Threshold float64
}

// Manager evaluates measurement batches against a fixed set of Thresholds.
type Manager struct {
	thresholds Thresholds
	log        zerolog.Logger
}

// NewManager builds an alert manager bound to thresholds, logging
// breaches through log.
func NewManager(thresholds Thresholds, log zerolog.Logger) *Manager {
	return &Manager{thresholds: thresholds, log: log}
}

// Check evaluates every measurement in the batch and returns the
// events that fired, in input order. It never returns an error: a
// disabled alert manager simply returns no events.
func (m *Manager) Check(measurements []client.Measurement) []Event {
	if !m.thresholds.Enabled {
		return nil
	}

	var events []Event
	for _, meas := range measurements {
		if meas.RTTMillis != nil && *meas.RTTMillis > m.thresholds.LatencyThresholdMs {
			ev := Event{
				EventType: "high_latency",
				Target:    meas.Target,
				Severity:  "warning",
				Message:   fmt.Sprintf("%s -> %.2fms (threshold: %.2fms)", meas.Target, *meas.RTTMillis, m.thresholds.LatencyThresholdMs),
				Value:     *meas.RTTMillis,
				Threshold: m.thresholds.LatencyThresholdMs,
			}
			m.log.Warn().Str("target", meas.Target).Float64("rtt_ms", *meas.RTTMillis).Msg("high latency alert")
			events = append(events, ev)
		}

		if meas.JitterMillis != nil && *meas.JitterMillis > m.thresholds.JitterThresholdMs {
			ev := Event{
				EventType: "high_jitter",
				Target:    meas.Target,
				Severity:  "warning",
				Message:   fmt.Sprintf("%s -> %.2fms jitter (threshold: %.2fms)", meas.Target, *meas.JitterMillis, m.thresholds.JitterThresholdMs),
				Value:     *meas.JitterMillis,
				Threshold: m.thresholds.JitterThresholdMs,
			}
			m.log.Warn().Str("target", meas.Target).Float64("jitter_ms", *meas.JitterMillis).Msg("high jitter alert")
			events = append(events, ev)
		}

		if meas.PacketLossPct != nil && *meas.PacketLossPct > m.thresholds.PacketLossThresholdPct {
			ev := Event{
				EventType: "packet_loss",
				Target:    meas.Target,
				Severity:  "warning",
				Message:   fmt.Sprintf("%s -> %.2f%% loss (threshold: %.2f%%)", meas.Target, *meas.PacketLossPct, m.thresholds.PacketLossThresholdPct),
				Value:     *meas.PacketLossPct,
				Threshold: m.thresholds.PacketLossThresholdPct,
			}
			m.log.Warn().Str("target", meas.Target).Float64("packet_loss_pct", *meas.PacketLossPct).Msg("packet loss alert")
			events = append(events, ev)
		}

		if meas.Status == "timeout" {
			ev := Event{EventType: "timeout", Target: meas.Target, Severity: "warning", Message: fmt.Sprintf("%s -> timeout", meas.Target)}
			m.log.Warn().Str("target", meas.Target).Msg("packet loss: timeout")
			events = append(events, ev)
		}

		if meas.Status == "error" {
			ev := Event{EventType: "error", Target: meas.Target, Severity: "error", Message: fmt.Sprintf("%s -> %s", meas.Target, meas.ErrorDetail)}
			m.log.Warn().Str("target", meas.Target).Str("error", meas.ErrorDetail).Msg("measurement error")
			events = append(events, ev)
		}
	}
	return events
}
