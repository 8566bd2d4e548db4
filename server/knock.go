package server

import (
	"crypto/sha256"
	"net"

	"github.com/schuellerf/bufferbane/protocol"
)

// handleKnock authenticates a first-contact client. Any decryption or
// parse failure returns a nil response: spec.md §4.2/§7 require this
// to be silent — an observable response to a malformed or
// wrong-keyed datagram would reveal that a protocol is bound to the
// port, making the service a usable reflector/scanner oracle.
func (d *Dispatcher) handleKnock(header protocol.Header, ciphertext []byte, peer net.Addr) []byte {
	plaintext, err := protocol.Open(header, ciphertext, d.key)
	if err != nil {
		d.logDrop("KNOCK", peer, err)
		return nil
	}

	knock, err := protocol.DecodeKnock(plaintext)
	if err != nil {
		d.logDrop("KNOCK", peer, err)
		return nil
	}

	sessionID, err := d.sessions.Create(header.ClientID, peer)
	if err != nil {
		d.logDrop("KNOCK", peer, err)
		return nil
	}

	response := sha256.Sum256(knock.Challenge[:])
	ack := protocol.KnockAck{SessionID: sessionID, ChallengeResponse: response}

	reply, err := protocol.Encode(protocol.PacketKnockAck, header.ClientID, ack.Encode(), d.key)
	if err != nil {
		d.logDrop("KNOCK", peer, err)
		return nil
	}

	d.log.Info().
		Uint64("client_id", header.ClientID).
		Uint64("session_id", sessionID).
		Str("peer", peer.String()).
		Msg("knock accepted")

	return reply
}
