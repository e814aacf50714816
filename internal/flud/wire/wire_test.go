package wire

import (
	"bytes"
	"testing"

	"github.com/fludmesh/flud/internal/flud/mac"
	"pgregory.net/rapid"
)

func testHeader() Header {
	src, _ := mac.Parse("AA:BB:CC:DD:EE:01")
	dst, _ := mac.Parse("AA:BB:CC:DD:EE:02")
	return Header{
		Flags:     FlagAckRequired,
		Hops:      0,
		TTL:       5,
		Sequence:  42,
		SourceMAC: src,
		DestMAC:   dst,
	}
}

func TestEncodeDecodeHeaderRoundTrip(t *testing.T) {
	h := testHeader()
	buf, err := EncodeHello(h, Hello{DeviceName: "Alpha", Role: 1, Capabilities: 2, BatteryLevel: 80})
	if err != nil {
		t.Fatalf("EncodeHello: %v", err)
	}
	got, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if got.Magic != Magic || got.Version != Version || got.Type != TypeHello {
		t.Fatalf("unexpected header: %+v", got)
	}
	if got.Sequence != h.Sequence || got.SourceMAC != h.SourceMAC || got.DestMAC != h.DestMAC {
		t.Fatalf("header fields mismatch: %+v vs %+v", got, h)
	}
	if got.Flags != FlagAckRequired || got.TTL != 5 {
		t.Fatalf("flags/ttl mismatch: %+v", got)
	}
}

func TestEncodeDecodeHello(t *testing.T) {
	h := testHeader()
	body := Hello{DeviceName: "Alpha", Role: 1, Capabilities: 2, BatteryLevel: 80}
	buf, err := EncodeHello(h, body)
	if err != nil {
		t.Fatalf("EncodeHello: %v", err)
	}
	decBody, err := DecodeHello(buf[HeaderSize:])
	if err != nil {
		t.Fatalf("DecodeHello: %v", err)
	}
	if decBody != body {
		t.Fatalf("hello body mismatch: %+v vs %+v", decBody, body)
	}
}

func TestEncodeDecodeChannelMessage(t *testing.T) {
	h := testHeader()
	body := ChannelMessage{MessageID: 7, ChannelName: "lobby", ContentType: 1, Payload: []byte("hello mesh")}
	buf, err := EncodeChannelMessage(h, body)
	if err != nil {
		t.Fatalf("EncodeChannelMessage: %v", err)
	}
	dec, err := DecodeChannelMessage(buf[HeaderSize:])
	if err != nil {
		t.Fatalf("DecodeChannelMessage: %v", err)
	}
	if dec.MessageID != body.MessageID || dec.ChannelName != body.ChannelName || dec.ContentType != body.ContentType {
		t.Fatalf("fields mismatch: %+v vs %+v", dec, body)
	}
	if !bytes.Equal(dec.Payload, body.Payload) {
		t.Fatalf("payload mismatch: %v vs %v", dec.Payload, body.Payload)
	}
}

func TestEncodeDecodePrivate(t *testing.T) {
	h := testHeader()
	body := Private{MessageID: 3, ContentType: 0, Payload: []byte("hi")}
	buf, err := EncodePrivate(h, body)
	if err != nil {
		t.Fatalf("EncodePrivate: %v", err)
	}
	dec, err := DecodePrivate(buf[HeaderSize:])
	if err != nil {
		t.Fatalf("DecodePrivate: %v", err)
	}
	if dec.MessageID != body.MessageID || !bytes.Equal(dec.Payload, body.Payload) {
		t.Fatalf("mismatch: %+v vs %+v", dec, body)
	}
}

func TestEncodeDecodeAck(t *testing.T) {
	h := testHeader()
	body := Ack{AckSequence: 99, Status: AckSuccess}
	buf, err := EncodeAck(h, body)
	if err != nil {
		t.Fatalf("EncodeAck: %v", err)
	}
	dec, err := DecodeAck(buf[HeaderSize:])
	if err != nil {
		t.Fatalf("DecodeAck: %v", err)
	}
	if dec != body {
		t.Fatalf("ack mismatch: %+v vs %+v", dec, body)
	}
}

func TestDecodeHeaderErrors(t *testing.T) {
	if _, err := DecodeHeader(make([]byte, 4)); err != ErrTooShort {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}

	h := testHeader()
	buf, _ := EncodeHello(h, Hello{DeviceName: "x"})
	bad := append([]byte(nil), buf...)
	bad[0] ^= 0xFF
	if _, err := DecodeHeader(bad); err != ErrBadMagic {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}

	bad2 := append([]byte(nil), buf...)
	bad2[4] = 9
	if _, err := DecodeHeader(bad2); err != ErrBadVersion {
		t.Fatalf("expected ErrBadVersion, got %v", err)
	}
}

func TestPayloadTooLarge(t *testing.T) {
	h := testHeader()
	big := make([]byte, MaxPayload+1)
	if _, err := EncodeChannelMessage(h, ChannelMessage{ChannelName: "c", Payload: big}); err != ErrPayloadTooLarge {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if _, err := EncodePrivate(h, Private{Payload: big}); err != ErrPayloadTooLarge {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestFrameWithinMTU(t *testing.T) {
	h := testHeader()

	// The channel message's fixed body fields (name, secret, type, length)
	// leave less than MaxPayload bytes of room under the MTU; the largest
	// payload that actually fits is smaller than the declared payload cap.
	maxFit := MTU - HeaderSize - channelMessageFixedSize
	buf, err := EncodeChannelMessage(h, ChannelMessage{ChannelName: "c", Payload: make([]byte, maxFit)})
	if err != nil {
		t.Fatalf("unexpected error at the largest payload that fits within the MTU: %v", err)
	}
	if len(buf) > MTU {
		t.Fatalf("frame %d bytes exceeds MTU %d", len(buf), MTU)
	}

	if _, err := EncodeChannelMessage(h, ChannelMessage{ChannelName: "c", Payload: make([]byte, maxFit+1)}); err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge one byte past the MTU boundary, got %v", err)
	}
}

func TestPatchRetrySetsFlagAndResetsHopsTTL(t *testing.T) {
	h := testHeader()
	h.Hops = 3
	h.TTL = 1
	buf, err := EncodeHello(h, Hello{DeviceName: "Alpha"})
	if err != nil {
		t.Fatalf("EncodeHello: %v", err)
	}
	if err := PatchRetry(buf, 9); err != nil {
		t.Fatalf("PatchRetry: %v", err)
	}
	got, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if !got.Flags.Has(FlagRetry) {
		t.Fatalf("expected RETRY flag set, got %v", got.Flags)
	}
	if got.Hops != 0 || got.TTL != 9 {
		t.Fatalf("expected hops=0 ttl=9, got hops=%d ttl=%d", got.Hops, got.TTL)
	}
}

func TestPatchForwardSetsFlagAndFields(t *testing.T) {
	h := testHeader()
	h.Hops = 1
	h.TTL = 4
	buf, err := EncodeHello(h, Hello{DeviceName: "Alpha"})
	if err != nil {
		t.Fatalf("EncodeHello: %v", err)
	}
	if err := PatchForward(buf, h.Hops+1, h.TTL-1); err != nil {
		t.Fatalf("PatchForward: %v", err)
	}
	got, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if !got.Flags.Has(FlagForwarded) {
		t.Fatalf("expected FORWARDED flag set, got %v", got.Flags)
	}
	if got.Hops != 2 || got.TTL != 3 {
		t.Fatalf("expected hops=2 ttl=3, got hops=%d ttl=%d", got.Hops, got.TTL)
	}
}

// TestHeaderRoundTripProperty fuzzes header field combinations and checks
// DecodeHeader(EncodeAck(h, ...)) preserves every header field.
func TestHeaderRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		var raw [mac.Size]byte
		for i := range raw {
			raw[i] = rapid.Byte().Draw(rt, "src_octet")
		}
		src := mac.Addr(raw)
		for i := range raw {
			raw[i] = rapid.Byte().Draw(rt, "dst_octet")
		}
		dst := mac.Addr(raw)

		h := Header{
			Flags:     Flags(rapid.Byte().Draw(rt, "flags")),
			Hops:      rapid.Byte().Draw(rt, "hops"),
			TTL:       rapid.Byte().Draw(rt, "ttl"),
			Sequence:  rapid.Uint32().Draw(rt, "sequence"),
			SourceMAC: src,
			DestMAC:   dst,
		}
		status := rapid.SampledFrom([]uint8{AckSuccess, AckFailure}).Draw(rt, "status")
		buf, err := EncodeAck(h, Ack{AckSequence: rapid.Uint32().Draw(rt, "ack_seq"), Status: status})
		if err != nil {
			rt.Fatalf("EncodeAck: %v", err)
		}
		got, err := DecodeHeader(buf)
		if err != nil {
			rt.Fatalf("DecodeHeader: %v", err)
		}
		if got.Flags != h.Flags || got.Hops != h.Hops || got.TTL != h.TTL || got.Sequence != h.Sequence {
			rt.Fatalf("header round trip mismatch: got=%+v want=%+v", got, h)
		}
		if got.SourceMAC != h.SourceMAC || got.DestMAC != h.DestMAC {
			rt.Fatalf("mac round trip mismatch: got=%+v want=%+v", got, h)
		}
	})
}
