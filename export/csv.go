// Package export writes a time range of measurements to CSV, in the
// same encoding/csv idiom the teacher's SNMP logger uses.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/schuellerf/bufferbane/client"
)

var csvHeader = []string{
	"timestamp", "interface", "connection_type", "test_type", "target", "server_name",
	"rtt_ms", "jitter_ms", "packet_loss_pct", "throughput_kbps", "dns_time_ms",
	"status", "error_detail", "upload_latency_ms", "download_latency_ms", "server_processing_us",
}

// WriteCSV writes header + one row per measurement to w.
func WriteCSV(w io.Writer, measurements []client.Measurement) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("export: writing CSV header: %w", err)
	}
	for _, m := range measurements {
		if err := cw.Write(measurementRow(m)); err != nil {
			return fmt.Errorf("export: writing CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func measurementRow(m client.Measurement) []string {
	return []string{
		strconv.FormatInt(m.TimestampUnix, 10),
		m.Interface,
		m.ConnectionType,
		m.TestType,
		m.Target,
		m.ServerName,
		formatFloatPtr(m.RTTMillis),
		formatFloatPtr(m.JitterMillis),
		formatFloatPtr(m.PacketLossPct),
		formatFloatPtr(m.ThroughputKbps),
		formatFloatPtr(m.DNSTimeMillis),
		m.Status,
		m.ErrorDetail,
		formatFloatPtr(m.UploadLatencyMillis),
		formatFloatPtr(m.DownloadLatencyMillis),
		formatIntPtr(m.ServerProcessingUs),
	}
}

func formatFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatIntPtr(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
