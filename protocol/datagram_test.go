package protocol

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	key := testKey(t)
	req := EchoRequest{Sequence: 1, ClientTimestamp: 1_000_000}

	datagram, err := Encode(PacketEchoRequest, 99, req.Encode(), key)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	header, plaintext, err := Decode(datagram, key)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if header.PacketType != PacketEchoRequest {
		t.Fatalf("packet type = %v, want ECHO_REQUEST", header.PacketType)
	}
	if header.ClientID != 99 {
		t.Fatalf("client id = %d, want 99", header.ClientID)
	}

	decoded, err := DecodeEchoRequest(plaintext)
	if err != nil {
		t.Fatalf("DecodeEchoRequest: %v", err)
	}
	if decoded != req {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, req)
	}
}

func TestDecodeSilentDropOnTamperedTag(t *testing.T) {
	key := testKey(t)
	req := EchoRequest{Sequence: 1, ClientTimestamp: 1}
	datagram, err := Encode(PacketEchoRequest, 1, req.Encode(), key)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	datagram[len(datagram)-1] ^= 0xFF

	if _, _, err := Decode(datagram, key); err == nil {
		t.Fatal("expected Decode to fail on tampered tag")
	}
}

func TestDecodeRejectsTruncatedDatagram(t *testing.T) {
	key := testKey(t)
	req := EchoRequest{Sequence: 1, ClientTimestamp: 1}
	datagram, err := Encode(PacketEchoRequest, 1, req.Encode(), key)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if _, _, err := Decode(datagram[:len(datagram)-1], key); err == nil {
		t.Fatal("expected Decode to fail on truncated datagram")
	}
}
