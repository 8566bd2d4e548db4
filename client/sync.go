package client

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// ringBufferSize and minSamplesForSync mirror protocol.RingBufferSize
// and protocol.MinSamplesForSync; duplicated here (rather than
// imported) because the client's sync estimator is transport-agnostic
// and must not depend on the wire package.
const (
	ringBufferSize       = 16
	minSamplesForSync    = 8
	syncQualityThreshold = 80
)

// offsetSample is one accepted NTP-style clock-offset observation.
type offsetSample struct {
	offsetNs float64
	rttNs    float64
}

// TimeSync tracks the clock offset between this client and one
// server, derived purely from round-trip ECHO exchanges — never from
// wall-clock comparison, since the two hosts' wall clocks may be
// arbitrarily wrong or unsynchronized.
type TimeSync struct {
	sessionStart       time.Time
	sessionStartWall   time.Time
	samples            []offsetSample
	bestOffsetNs       float64
	quality            uint8
	synced             bool
	wasSynced          bool
}

// NewTimeSync starts a fresh estimator, anchored to now. Authenticating
// a new session resets the estimator: offsets are meaningful only
// within a single, continuously numbered monotonic epoch.
func NewTimeSync() *TimeSync {
	now := time.Now()
	return &TimeSync{sessionStart: now, sessionStartWall: now}
}

// SessionStart is the monotonic instant T1/T4 timestamps are measured
// relative to.
func (s *TimeSync) SessionStart() time.Time {
	return s.sessionStart
}

// IsSynced reports whether the estimator currently has enough
// low-variance samples to trust its offset (spec.md §4.4).
func (s *TimeSync) IsSynced() bool {
	return s.synced
}

// Quality is the current 0-100 sync confidence score.
func (s *TimeSync) Quality() uint8 {
	return s.quality
}

// BestOffsetNs is the current best estimate of (server_clock - client_clock), in ns.
func (s *TimeSync) BestOffsetNs() float64 {
	return s.bestOffsetNs
}

// SampleCount reports how many samples are currently in the ring buffer.
func (s *TimeSync) SampleCount() int {
	return len(s.samples)
}

// Update folds in one ECHO round trip's four timestamps (all in ns,
// all relative to each host's own monotonic epoch) and recomputes the
// offset estimate, quality score, and sync state. It returns the sync
// transition event that occurred, if any.
//
// Offsets that would imply a negative or RTT-exceeding one-way latency
// are rejected outright: a physically impossible result means the
// sample is corrupt (clock jump, nonce replay confusion, queueing
// anomaly on the measuring host) rather than a valid but inconvenient
// data point.
func (s *TimeSync) Update(t1, t2, t3, t4 uint64, rttNs float64) (*SyncEvent, bool) {
	offsetNs := ((float64(t2) - float64(t1)) + (float64(t3) - float64(t4))) / 2.0

	testUpload := (float64(t2) - float64(t1)) - offsetNs
	testDownload := (float64(t4) - float64(t3)) + offsetNs
	if testUpload <= 0 || testDownload <= 0 || testUpload >= rttNs || testDownload >= rttNs {
		return nil, false // reject: offset would imply impossible one-way latencies
	}

	s.samples = append(s.samples, offsetSample{offsetNs: offsetNs, rttNs: rttNs})
	if len(s.samples) > ringBufferSize {
		s.samples = s.samples[1:]
	}

	prevSynced := s.wasSynced

	if len(s.samples) < minSamplesForSync {
		s.synced = false
		s.quality = uint8(len(s.samples) * 12) // 12..84 over the first seven samples
	} else {
		s.recompute()
	}

	s.wasSynced = s.synced

	if !prevSynced && s.synced {
		return &SyncEvent{
			EventType: "sync_established",
			Message:   fmt.Sprintf("time sync established (quality=%d%%, offset=%.2fms)", s.quality, s.bestOffsetNs/1e6),
			Quality:   s.quality,
		}, true
	}
	if prevSynced && !s.synced {
		return &SyncEvent{
			EventType: "sync_lost",
			Message:   fmt.Sprintf("time sync lost (quality dropped to %d%%)", s.quality),
			Quality:   s.quality,
		}, true
	}
	return nil, true
}

// Validate re-derives upload/download latency from the *stored*
// best_offset_ns against a fresh round trip and downgrades sync state
// if the correction no longer produces physically possible one-way
// latencies. This catches offset drift that a single Update call's own
// admission check can miss: a sample can pass admission on its own
// symmetric-offset assumption yet disagree with the ring buffer's
// settled estimate. Call it on every reply once synced, whether or not
// that reply's own sample was admitted into the ring buffer.
//
// It returns (nil, true) when the stored offset still checks out,
// (nil, false) when not yet synced (nothing to validate), and a
// sync_invalid event with ok=false when the offset has to be
// discarded.
func (s *TimeSync) Validate(t1, t2, t3, t4 uint64, rttNs float64) (*SyncEvent, bool) {
	if !s.synced {
		return nil, false
	}

	uploadNs := (float64(t2) - float64(t1)) - s.bestOffsetNs
	downloadNs := (float64(t4) - float64(t3)) + s.bestOffsetNs
	if uploadNs > 0 && downloadNs > 0 && uploadNs < rttNs && downloadNs < rttNs {
		return nil, true
	}

	message := fmt.Sprintf("invalid latencies detected: up=%.2fms, down=%.2fms (rtt=%.2fms) - offset corrupted",
		uploadNs/1e6, downloadNs/1e6, rttNs/1e6)
	s.synced = false
	s.wasSynced = false
	s.quality = 0
	return &SyncEvent{EventType: "sync_invalid", Message: message, Quality: 0}, false
}

// recompute derives best_offset_ns and quality from the lowest-RTT
// half of the ring buffer: low-RTT samples bracket the true offset
// most tightly, so they dominate the estimate.
func (s *TimeSync) recompute() {
	sorted := make([]offsetSample, len(s.samples))
	copy(sorted, s.samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].rttNs < sorted[j].rttNs })

	bestCount := len(sorted) / 2
	bestOffsets := make([]float64, bestCount)
	for i := 0; i < bestCount; i++ {
		bestOffsets[i] = sorted[i].offsetNs
	}
	sort.Float64s(bestOffsets)
	s.bestOffsetNs = bestOffsets[len(bestOffsets)/2]

	var mean float64
	for _, v := range bestOffsets {
		mean += v
	}
	mean /= float64(len(bestOffsets))

	var variance float64
	for _, v := range bestOffsets {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(bestOffsets))

	stdDevMs := math.Sqrt(variance) / 1e6
	ratio := stdDevMs / 10.0
	if ratio > 1.0 {
		ratio = 1.0
	}
	s.quality = uint8((1.0 - ratio) * 100.0)
	s.synced = s.quality >= syncQualityThreshold
}
