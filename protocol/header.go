package protocol

import (
	"encoding/binary"
	"errors"
)

// Header-decode errors. These are distinct so a caller can tell a
// truncated datagram apart from a merely unrecognized one; both still
// result in a silent drop on the server, per spec.
var (
	ErrShortHeader     = errors.New("protocol: header shorter than 24 bytes")
	ErrBadMagic        = errors.New("protocol: wrong magic value")
	ErrUnsupportedVers = errors.New("protocol: unsupported protocol version")
	ErrUnknownType     = errors.New("protocol: unknown packet type")
)

// Header is the cleartext 24-byte prefix of every bufferbane datagram.
// Encode/decode is purely positional; it never allocates beyond the
// fixed-size arrays below.
type Header struct {
	Magic          uint32
	Version        uint8
	PacketType     PacketType
	PayloadLen     uint16
	ClientID       uint64
	NonceTimestamp uint64
}

// NewHeader builds a header with the standard magic/version, stamping
// NonceTimestamp from the caller-supplied wall-clock nanosecond value.
// The timestamp is opaque nonce material only — it is never compared
// or interpreted as a point in time by either peer.
func NewHeader(pt PacketType, payloadLen uint16, clientID uint64, nonceTimestamp uint64) Header {
	return Header{
		Magic:          Magic,
		Version:        ProtocolVersion,
		PacketType:     pt,
		PayloadLen:     payloadLen,
		ClientID:       clientID,
		NonceTimestamp: nonceTimestamp,
	}
}

// Encode serializes h into its 24-byte big-endian wire form.
func (h Header) Encode() [HeaderSize]byte {
	var buf [HeaderSize]byte
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = byte(h.PacketType)
	binary.BigEndian.PutUint16(buf[6:8], h.PayloadLen)
	binary.BigEndian.PutUint64(buf[8:16], h.ClientID)
	binary.BigEndian.PutUint64(buf[16:24], h.NonceTimestamp)
	return buf
}

// DecodeHeader parses the first HeaderSize bytes of buf. It fails with
// a distinct sentinel on a short buffer, bad magic, unsupported
// version, or an unrecognized packet type — a receiver must treat all
// four the same way (silent drop), but tests rely on them being
// distinguishable.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrShortHeader
	}

	h := Header{
		Magic:          binary.BigEndian.Uint32(buf[0:4]),
		Version:        buf[4],
		PacketType:     PacketType(buf[5]),
		PayloadLen:     binary.BigEndian.Uint16(buf[6:8]),
		ClientID:       binary.BigEndian.Uint64(buf[8:16]),
		NonceTimestamp: binary.BigEndian.Uint64(buf[16:24]),
	}

	if h.Magic != Magic {
		return Header{}, ErrBadMagic
	}
	if h.Version != ProtocolVersion {
		return Header{}, ErrUnsupportedVers
	}
	if !h.PacketType.Known() {
		return Header{}, ErrUnknownType
	}
	return h, nil
}

// Nonce derives the 12-byte AEAD nonce from the header: the high 4
// bytes of ClientID followed by the full 8-byte NonceTimestamp.
func (h Header) Nonce() [NonceSize]byte {
	var n [NonceSize]byte
	var idBytes [8]byte
	binary.BigEndian.PutUint64(idBytes[:], h.ClientID)
	copy(n[0:4], idBytes[0:4])
	binary.BigEndian.PutUint64(n[4:12], h.NonceTimestamp)
	return n
}

// DatagramSize returns the total wire size of a datagram carrying this
// header: the fixed header plus the AEAD ciphertext (which includes
// the trailing authentication tag).
func (h Header) DatagramSize() int {
	return HeaderSize + int(h.PayloadLen)
}
