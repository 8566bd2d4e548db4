package protocol

// PacketType identifies the payload carried after the header.
type PacketType uint8

const (
	PacketKnock    PacketType = 0x01
	PacketKnockAck PacketType = 0x02

	PacketEchoRequest PacketType = 0x10
	PacketEchoReply   PacketType = 0x11

	// Reserved for future throughput/download/bufferbloat flows. The
	// dispatcher recognizes these enough to route them to a no-op
	// handler; no payload types are defined for them yet.
	PacketThroughputStart PacketType = 0x20
	PacketThroughputData  PacketType = 0x21
	PacketThroughputEnd   PacketType = 0x22
	PacketThroughputStats PacketType = 0x23

	PacketDownloadRequest PacketType = 0x30
	PacketDownloadData    PacketType = 0x31
	PacketDownloadEnd     PacketType = 0x32

	PacketBufferbloatStart PacketType = 0x40
	PacketBufferbloatEnd   PacketType = 0x41

	PacketError PacketType = 0xFF
)

// Known reports whether t is a packet type this package recognizes.
// Unknown types must be dropped by a conforming decoder.
func (t PacketType) Known() bool {
	switch t {
	case PacketKnock, PacketKnockAck,
		PacketEchoRequest, PacketEchoReply,
		PacketThroughputStart, PacketThroughputData, PacketThroughputEnd, PacketThroughputStats,
		PacketDownloadRequest, PacketDownloadData, PacketDownloadEnd,
		PacketBufferbloatStart, PacketBufferbloatEnd,
		PacketError:
		return true
	default:
		return false
	}
}

func (t PacketType) String() string {
	switch t {
	case PacketKnock:
		return "KNOCK"
	case PacketKnockAck:
		return "KNOCK_ACK"
	case PacketEchoRequest:
		return "ECHO_REQUEST"
	case PacketEchoReply:
		return "ECHO_REPLY"
	case PacketThroughputStart:
		return "THROUGHPUT_START"
	case PacketThroughputData:
		return "THROUGHPUT_DATA"
	case PacketThroughputEnd:
		return "THROUGHPUT_END"
	case PacketThroughputStats:
		return "THROUGHPUT_STATS"
	case PacketDownloadRequest:
		return "DOWNLOAD_REQUEST"
	case PacketDownloadData:
		return "DOWNLOAD_DATA"
	case PacketDownloadEnd:
		return "DOWNLOAD_END"
	case PacketBufferbloatStart:
		return "BUFFERBLOAT_START"
	case PacketBufferbloatEnd:
		return "BUFFERBLOAT_END"
	case PacketError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
