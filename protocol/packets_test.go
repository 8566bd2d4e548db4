package protocol

import "testing"

func TestKnockRoundTrip(t *testing.T) {
	k, err := NewKnock()
	if err != nil {
		t.Fatalf("NewKnock: %v", err)
	}
	decoded, err := DecodeKnock(k.Encode())
	if err != nil {
		t.Fatalf("DecodeKnock: %v", err)
	}
	if decoded.Challenge != k.Challenge {
		t.Fatalf("challenge mismatch after round trip")
	}
}

func TestDecodeKnockShort(t *testing.T) {
	if _, err := DecodeKnock(make([]byte, ChallengeSize-1)); err != ErrShortPayload {
		t.Fatalf("expected ErrShortPayload, got %v", err)
	}
}

func TestEchoRequestRoundTrip(t *testing.T) {
	req := EchoRequest{Sequence: 7, ClientTimestamp: 1_000_000}
	decoded, err := DecodeEchoRequest(req.Encode())
	if err != nil {
		t.Fatalf("DecodeEchoRequest: %v", err)
	}
	if decoded != req {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, req)
	}
}

func TestEchoReplyRoundTrip(t *testing.T) {
	rep := EchoReply{Sequence: 7, T1: 1_000_000, T2: 1_100_000, T3: 1_150_000}
	decoded, err := DecodeEchoReply(rep.Encode())
	if err != nil {
		t.Fatalf("DecodeEchoReply: %v", err)
	}
	if decoded != rep {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, rep)
	}
}

func TestDecodeEchoReplyShort(t *testing.T) {
	if _, err := DecodeEchoReply(make([]byte, 10)); err != ErrShortPayload {
		t.Fatalf("expected ErrShortPayload, got %v", err)
	}
}
