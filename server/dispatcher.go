package server

import (
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"github.com/schuellerf/bufferbane/protocol"
)

// recvBufferSize is the fixed datagram buffer the dispatcher reads
// into; oversized/truncated packets are rejected by the header codec.
const recvBufferSize = 64 * 1024

// Dispatcher owns the single bound UDP socket and fans incoming
// datagrams out to per-packet handler goroutines. There is exactly
// one reader of the socket (the dispatch loop); handlers never read
// from it, only write replies.
type Dispatcher struct {
	conn     *net.UDPConn
	key      [protocol.SecretSize]byte
	sessions *SessionManager
	log      zerolog.Logger
}

// NewDispatcher binds addr and wires a dispatcher against the given
// shared key and session manager.
func NewDispatcher(addr string, key [protocol.SecretSize]byte, sessions *SessionManager, log zerolog.Logger) (*Dispatcher, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("server: resolving bind address %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("server: binding %q: %w", addr, err)
	}
	return &Dispatcher{conn: conn, key: key, sessions: sessions, log: log}, nil
}

// LocalAddr reports the bound address, mainly for tests that bind ":0".
func (d *Dispatcher) LocalAddr() net.Addr {
	return d.conn.LocalAddr()
}

// Close releases the underlying socket.
func (d *Dispatcher) Close() error {
	return d.conn.Close()
}

// Run is the main receive loop: it owns recv_from exclusively and
// spawns a goroutine per datagram to decode, dispatch, and reply.
// It returns when the socket is closed.
func (d *Dispatcher) Run() error {
	buf := make([]byte, recvBufferSize)
	for {
		n, peer, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			d.log.Warn().Err(err).Msg("recv_from failed")
			continue
		}

		// Copy into an owned buffer before handing off: the shared
		// buf is reused by the next ReadFromUDP call.
		datagram := make([]byte, n)
		copy(datagram, buf[:n])

		go d.dispatch(datagram, peer)
	}
}

// dispatch decodes the header and routes to the matching handler. Any
// framing failure (short buffer, bad magic, unsupported version,
// unknown type) is a silent drop, per spec.md §6/§7.
func (d *Dispatcher) dispatch(datagram []byte, peer *net.UDPAddr) {
	header, err := protocol.DecodeHeader(datagram)
	if err != nil {
		return // silent drop: malformed framing must never be observable
	}
	if len(datagram) != header.DatagramSize() {
		return
	}
	ciphertext := datagram[protocol.HeaderSize:]

	var response []byte
	switch header.PacketType {
	case protocol.PacketKnock:
		response = d.handleKnock(header, ciphertext, peer)
	case protocol.PacketEchoRequest:
		response = d.handleEcho(header, ciphertext, peer)
	case protocol.PacketThroughputStart,
		protocol.PacketThroughputData,
		protocol.PacketThroughputEnd,
		protocol.PacketThroughputStats,
		protocol.PacketDownloadRequest,
		protocol.PacketDownloadData,
		protocol.PacketDownloadEnd,
		protocol.PacketBufferbloatStart,
		protocol.PacketBufferbloatEnd:
		// Reserved for future throughput flows; currently a no-op
		// that never replies.
		return
	default:
		return // KNOCK_ACK/ECHO_REPLY/ERROR arriving at the server, or anything else: drop
	}

	if response == nil {
		return
	}

	n, err := d.conn.WriteToUDP(response, peer)
	if err != nil {
		d.log.Warn().Err(err).Str("peer", peer.String()).Msg("send failed")
		return
	}
	_ = n
}

// logDrop records why a datagram was dropped without ever sending a
// response for it — logging is for operators, never for the wire.
func (d *Dispatcher) logDrop(kind string, peer net.Addr, err error) {
	d.log.Debug().Str("peer", peer.String()).Str("packet", kind).Err(err).Msg("dropping datagram")
}
