package server

import (
	"net"

	"github.com/schuellerf/bufferbane/protocol"
)

// handleEcho stamps T2 immediately after successful decryption and T3
// immediately before encrypting the reply, so the server's own
// processing time is as tightly bracketed as possible — everything
// outside that window is attributable to the network, not the server.
//
// The MVP does not require a prior KNOCK session to exist for ECHO to
// work; the only authentication value here is successful AEAD
// verification (spec.md §4.3, §9 Open Question).
func (d *Dispatcher) handleEcho(header protocol.Header, ciphertext []byte, peer net.Addr) []byte {
	plaintext, err := protocol.Open(header, ciphertext, d.key)
	if err != nil {
		d.logDrop("ECHO_REQUEST", peer, err)
		return nil
	}
	t2 := monotonicNs()

	request, err := protocol.DecodeEchoRequest(plaintext)
	if err != nil {
		d.logDrop("ECHO_REQUEST", peer, err)
		return nil
	}

	d.sessions.TouchByClientID(header.ClientID, len(ciphertext))

	reply := protocol.EchoReply{
		Sequence: request.Sequence,
		T1:       request.ClientTimestamp,
		T2:       t2,
	}
	reply.T3 = monotonicNs()

	encoded, err := protocol.Encode(protocol.PacketEchoReply, header.ClientID, reply.Encode(), d.key)
	if err != nil {
		d.logDrop("ECHO_REQUEST", peer, err)
		return nil
	}
	return encoded
}
