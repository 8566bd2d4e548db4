// Package protocol implements the bufferbane wire format: the fixed
// 24-byte packet header, the typed payloads carried over it, and the
// AEAD engine that binds header and ciphertext together.
package protocol

import "time"

// Magic identifies a bufferbane datagram: the ASCII bytes "BFBN".
const Magic uint32 = 0x4246424E

// ProtocolVersion is the only wire version this package understands.
const ProtocolVersion uint8 = 1

// SecretSize is the required length, in bytes, of the pre-shared AEAD key.
const SecretSize = 32

// SecretHexLen is the required length of the hex-encoded pre-shared key.
const SecretHexLen = SecretSize * 2

// TagSize is the ChaCha20-Poly1305 authentication tag length.
const TagSize = 16

// NonceSize is the AEAD nonce length.
const NonceSize = 12

// HeaderSize is the fixed cleartext header length in bytes.
const HeaderSize = 24

// KnockSequence is the reserved four-port knock sequence for a future
// sequenced port-knock variant. The MVP authenticates via a single
// encrypted KNOCK packet and does not use these ports.
var KnockSequence = [4]uint16{12345, 23456, 34567, 45678}

// KnockValidityWindow is the reserved validity window for a sequenced
// port-knock variant.
const KnockValidityWindow = 60 * time.Second

// DefaultSessionTimeout is the server-side idle session timeout.
const DefaultSessionTimeout = 300 * time.Second

// DefaultKnockTimeout is the client's default read timeout while
// waiting for a KNOCK_ACK or ECHO_REPLY.
const DefaultKnockTimeout = 2 * time.Second

// DefaultKnockRetryAttempts is the client's default KNOCK retry count.
const DefaultKnockRetryAttempts = 3

// KnockRetryGap is the pause between KNOCK retry attempts.
const KnockRetryGap = 500 * time.Millisecond

// WriteTimeout bounds client-side socket writes.
const WriteTimeout = 1 * time.Second

// ReaperInterval is how often the server sweeps idle sessions.
const ReaperInterval = 60 * time.Second

// RingBufferSize is the number of offset samples the clock-sync
// estimator retains per server.
const RingBufferSize = 16

// MinSamplesForSync is the minimum number of admitted samples before
// the estimator will consider declaring sync.
const MinSamplesForSync = 8

// SyncQualityThreshold is the minimum quality score for is_synced.
const SyncQualityThreshold = 80
