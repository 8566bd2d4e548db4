package protocol

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
)

// ChallengeSize is the KNOCK challenge length in bytes.
const ChallengeSize = 32

// ErrShortPayload is returned when a payload buffer is smaller than
// the fixed layout it is being decoded into.
var ErrShortPayload = errors.New("protocol: payload shorter than expected")

// Knock is the first-contact authentication payload.
type Knock struct {
	Challenge [ChallengeSize]byte
}

// NewKnock builds a Knock with a freshly generated random challenge.
func NewKnock() (Knock, error) {
	var k Knock
	if _, err := rand.Read(k.Challenge[:]); err != nil {
		return Knock{}, err
	}
	return k, nil
}

func (k Knock) Encode() []byte {
	out := make([]byte, ChallengeSize)
	copy(out, k.Challenge[:])
	return out
}

func DecodeKnock(buf []byte) (Knock, error) {
	if len(buf) < ChallengeSize {
		return Knock{}, ErrShortPayload
	}
	var k Knock
	copy(k.Challenge[:], buf[:ChallengeSize])
	return k, nil
}

// KnockAck answers a Knock with a minted session and the SHA-256 of
// the client's challenge, proving the server holds the shared key.
type KnockAck struct {
	SessionID         uint64
	ChallengeResponse [32]byte
}

func (a KnockAck) Encode() []byte {
	out := make([]byte, 8+32)
	binary.BigEndian.PutUint64(out[0:8], a.SessionID)
	copy(out[8:40], a.ChallengeResponse[:])
	return out
}

func DecodeKnockAck(buf []byte) (KnockAck, error) {
	if len(buf) < 40 {
		return KnockAck{}, ErrShortPayload
	}
	var a KnockAck
	a.SessionID = binary.BigEndian.Uint64(buf[0:8])
	copy(a.ChallengeResponse[:], buf[8:40])
	return a, nil
}

// EchoRequest carries the client's sequence number and T1 (monotonic
// nanoseconds since the client's session start).
type EchoRequest struct {
	Sequence        uint32
	ClientTimestamp uint64 // T1
}

func (r EchoRequest) Encode() []byte {
	out := make([]byte, 4+8)
	binary.BigEndian.PutUint32(out[0:4], r.Sequence)
	binary.BigEndian.PutUint64(out[4:12], r.ClientTimestamp)
	return out
}

func DecodeEchoRequest(buf []byte) (EchoRequest, error) {
	if len(buf) < 12 {
		return EchoRequest{}, ErrShortPayload
	}
	var r EchoRequest
	r.Sequence = binary.BigEndian.Uint32(buf[0:4])
	r.ClientTimestamp = binary.BigEndian.Uint64(buf[4:12])
	return r, nil
}

// EchoReply echoes T1 verbatim and adds the server's T2 (receive) and
// T3 (send) monotonic timestamps.
type EchoReply struct {
	Sequence uint32
	T1       uint64
	T2       uint64
	T3       uint64
}

func (r EchoReply) Encode() []byte {
	out := make([]byte, 4+8+8+8)
	binary.BigEndian.PutUint32(out[0:4], r.Sequence)
	binary.BigEndian.PutUint64(out[4:12], r.T1)
	binary.BigEndian.PutUint64(out[12:20], r.T2)
	binary.BigEndian.PutUint64(out[20:28], r.T3)
	return out
}

func DecodeEchoReply(buf []byte) (EchoReply, error) {
	if len(buf) < 28 {
		return EchoReply{}, ErrShortPayload
	}
	var r EchoReply
	r.Sequence = binary.BigEndian.Uint32(buf[0:4])
	r.T1 = binary.BigEndian.Uint64(buf[4:12])
	r.T2 = binary.BigEndian.Uint64(buf[12:20])
	r.T3 = binary.BigEndian.Uint64(buf[20:28])
	return r, nil
}
