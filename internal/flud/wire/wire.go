// Package wire implements the frame codec (C1): the fixed 25-byte header
// plus the four body shapes (HELLO, MESSAGE, PRIVATE, ACK), wire-format
// validation, and the MTU/payload caps the protocol enforces.
//
// All multi-byte scalars are host-endian: a deliberate, documented choice
// because every participating node shares the same architecture. This
// package never reinterprets endianness at its boundary; a cross-arch
// port would need to do that explicitly and bump the protocol version.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fludmesh/flud/internal/flud/mac"
)

// Protocol constants, matching the wire layout exactly.
const (
	Magic   uint32 = 0x464C5544 // "FLUD"
	Version uint8  = 1

	// HeaderSize is the fixed width of the frame header in bytes: magic(4) +
	// version(1) + type(1) + flags(1) + hops(1) + ttl(1) + sequence(4) +
	// source_mac(6) + dest_mac(6) = 25.
	HeaderSize = 25

	// MTU is the maximum total wire frame size for the target radio.
	MTU = 250

	// MaxPayload is the declared cap on variable-length body payloads.
	MaxPayload = 200

	nameFieldSize = 32
)

// Type identifies a frame's body shape.
type Type uint8

const (
	TypeHello   Type = 0x01
	TypeMessage Type = 0x02
	TypePrivate Type = 0x03
	TypeAck     Type = 0x04
)

func (t Type) String() string {
	switch t {
	case TypeHello:
		return "HELLO"
	case TypeMessage:
		return "MESSAGE"
	case TypePrivate:
		return "PRIVATE"
	case TypeAck:
		return "ACK"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// Flags is a bitfield of per-frame control flags.
type Flags uint8

const (
	FlagBroadcast  Flags = 0x01
	FlagEncrypted  Flags = 0x02
	FlagAckRequired Flags = 0x04
	FlagRetry      Flags = 0x08
	FlagForwarded  Flags = 0x10
)

// Has reports whether all bits in want are set.
func (f Flags) Has(want Flags) bool { return f&want == want }

// Ack status values carried in the ACK body.
const (
	AckSuccess uint8 = 0x01
	AckFailure uint8 = 0x00
)

// Sentinel decode errors, checked with errors.Is.
var (
	ErrTooShort        = errors.New("wire: frame shorter than header")
	ErrBadMagic        = errors.New("wire: bad magic")
	ErrBadVersion      = errors.New("wire: unsupported version")
	ErrPayloadTooLarge = errors.New("wire: payload exceeds maximum")
	ErrFrameTooLarge   = errors.New("wire: frame exceeds MTU")
	ErrBodyTooShort    = errors.New("wire: body shorter than declared shape")
)

// Header is the fixed 25-byte frame header, field order is wire order.
type Header struct {
	Magic      uint32
	Version    uint8
	Type       Type
	Flags      Flags
	Hops       uint8
	TTL        uint8
	Sequence   uint32
	SourceMAC  mac.Addr
	DestMAC    mac.Addr
}

// DecodeHeader parses the fixed header from the front of b. It does not
// validate body length; callers decode the body separately.
func DecodeHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < HeaderSize {
		return h, ErrTooShort
	}
	h.Magic = binary.NativeEndian.Uint32(b[0:4])
	if h.Magic != Magic {
		return h, ErrBadMagic
	}
	h.Version = b[4]
	if h.Version != Version {
		return h, ErrBadVersion
	}
	h.Type = Type(b[5])
	h.Flags = Flags(b[6])
	h.Hops = b[7]
	h.TTL = b[8]
	h.Sequence = binary.NativeEndian.Uint32(b[9:13])
	src, _ := mac.FromBytes(b[13:19])
	h.SourceMAC = src
	dst, _ := mac.FromBytes(b[19:25])
	h.DestMAC = dst
	return h, nil
}

// encodeHeader writes the fixed header into the front of a freshly
// allocated buffer sized for the full frame (header + bodyLen).
func encodeHeader(h Header, bodyLen int) ([]byte, error) {
	total := HeaderSize + bodyLen
	if total > MTU {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, total)
	binary.NativeEndian.PutUint32(buf[0:4], Magic)
	buf[4] = Version
	buf[5] = byte(h.Type)
	buf[6] = byte(h.Flags)
	buf[7] = h.Hops
	buf[8] = h.TTL
	binary.NativeEndian.PutUint32(buf[9:13], h.Sequence)
	copy(buf[13:19], h.SourceMAC[:])
	copy(buf[19:25], h.DestMAC[:])
	return buf, nil
}

// PatchRetry rewrites a previously-encoded frame's header in place for
// retransmission: sets the RETRY flag and resets hops to 0 and TTL to
// maxTTL, leaving the rest of the frame (including the body) untouched.
func PatchRetry(frame []byte, maxTTL uint8) error {
	if len(frame) < HeaderSize {
		return ErrTooShort
	}
	frame[6] |= byte(FlagRetry)
	frame[7] = 0
	frame[8] = maxTTL
	return nil
}

// PatchForward rewrites a frame's header in place for relaying: sets the
// FORWARDED flag and overwrites hops and ttl, leaving the rest of the frame
// untouched. Callers are expected to have already decided ttl > 0.
func PatchForward(frame []byte, hops, ttl uint8) error {
	if len(frame) < HeaderSize {
		return ErrTooShort
	}
	frame[6] |= byte(FlagForwarded)
	frame[7] = hops
	frame[8] = ttl
	return nil
}

// putFixedString writes s into dst, NUL-padding or truncating to len(dst).
func putFixedString(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

// getFixedString reads a NUL-padded fixed-width string field.
func getFixedString(src []byte) string {
	n := 0
	for n < len(src) && src[n] != 0 {
		n++
	}
	return string(src[:n])
}

// Hello is the HELLO frame body: presence beacon with name, role,
// capability bitmask, and battery level.
type Hello struct {
	DeviceName   string
	Role         uint8
	Capabilities uint8
	BatteryLevel uint8
}

const helloBodySize = nameFieldSize + 1 + 1 + 1

// EncodeHello encodes a complete HELLO frame (header + body).
func EncodeHello(h Header, body Hello) ([]byte, error) {
	h.Type = TypeHello
	buf, err := encodeHeader(h, helloBodySize)
	if err != nil {
		return nil, err
	}
	off := HeaderSize
	putFixedString(buf[off:off+nameFieldSize], body.DeviceName)
	off += nameFieldSize
	buf[off] = body.Role
	off++
	buf[off] = body.Capabilities
	off++
	buf[off] = body.BatteryLevel
	return buf, nil
}

// DecodeHello decodes the HELLO body following a validated header.
func DecodeHello(body []byte) (Hello, error) {
	var out Hello
	if len(body) < helloBodySize {
		return out, ErrBodyTooShort
	}
	off := 0
	out.DeviceName = getFixedString(body[off : off+nameFieldSize])
	off += nameFieldSize
	out.Role = body[off]
	off++
	out.Capabilities = body[off]
	off++
	out.BatteryLevel = body[off]
	return out, nil
}

// channelSecretSize and peerSecretSize are reserved fields, currently
// always zero (no cryptographic authenticity per the Non-goals).
const channelSecretSize = 32
const peerSecretSize = 32

// ChannelMessage is the MESSAGE (channel chat) frame body.
type ChannelMessage struct {
	MessageID   uint32
	ChannelName string
	ContentType uint8
	Payload     []byte
}

const channelMessageFixedSize = 4 + nameFieldSize + channelSecretSize + 1 + 2

// EncodeChannelMessage encodes a complete MESSAGE frame.
func EncodeChannelMessage(h Header, body ChannelMessage) ([]byte, error) {
	if len(body.Payload) > MaxPayload {
		return nil, ErrPayloadTooLarge
	}
	h.Type = TypeMessage
	buf, err := encodeHeader(h, channelMessageFixedSize+len(body.Payload))
	if err != nil {
		return nil, err
	}
	off := HeaderSize
	binary.NativeEndian.PutUint32(buf[off:off+4], body.MessageID)
	off += 4
	putFixedString(buf[off:off+nameFieldSize], body.ChannelName)
	off += nameFieldSize
	off += channelSecretSize // reserved, left zero
	buf[off] = body.ContentType
	off++
	binary.NativeEndian.PutUint16(buf[off:off+2], uint16(len(body.Payload)))
	off += 2
	copy(buf[off:], body.Payload)
	return buf, nil
}

// DecodeChannelMessage decodes the MESSAGE body following a validated header.
func DecodeChannelMessage(body []byte) (ChannelMessage, error) {
	var out ChannelMessage
	if len(body) < channelMessageFixedSize {
		return out, ErrBodyTooShort
	}
	off := 0
	out.MessageID = binary.NativeEndian.Uint32(body[off : off+4])
	off += 4
	out.ChannelName = getFixedString(body[off : off+nameFieldSize])
	off += nameFieldSize
	off += channelSecretSize
	out.ContentType = body[off]
	off++
	length := binary.NativeEndian.Uint16(body[off : off+2])
	off += 2
	if length > MaxPayload {
		return out, ErrPayloadTooLarge
	}
	if len(body) < off+int(length) {
		return out, ErrBodyTooShort
	}
	out.Payload = append([]byte(nil), body[off:off+int(length)]...)
	return out, nil
}

// Private is the PRIVATE (direct message) frame body.
type Private struct {
	MessageID   uint32
	ContentType uint8
	Payload     []byte
}

const privateFixedSize = 4 + peerSecretSize + 1 + 2

// EncodePrivate encodes a complete PRIVATE frame.
func EncodePrivate(h Header, body Private) ([]byte, error) {
	if len(body.Payload) > MaxPayload {
		return nil, ErrPayloadTooLarge
	}
	h.Type = TypePrivate
	buf, err := encodeHeader(h, privateFixedSize+len(body.Payload))
	if err != nil {
		return nil, err
	}
	off := HeaderSize
	binary.NativeEndian.PutUint32(buf[off:off+4], body.MessageID)
	off += 4
	off += peerSecretSize // reserved, left zero
	buf[off] = body.ContentType
	off++
	binary.NativeEndian.PutUint16(buf[off:off+2], uint16(len(body.Payload)))
	off += 2
	copy(buf[off:], body.Payload)
	return buf, nil
}

// DecodePrivate decodes the PRIVATE body following a validated header.
func DecodePrivate(body []byte) (Private, error) {
	var out Private
	if len(body) < privateFixedSize {
		return out, ErrBodyTooShort
	}
	off := 0
	out.MessageID = binary.NativeEndian.Uint32(body[off : off+4])
	off += 4
	off += peerSecretSize
	out.ContentType = body[off]
	off++
	length := binary.NativeEndian.Uint16(body[off : off+2])
	off += 2
	if length > MaxPayload {
		return out, ErrPayloadTooLarge
	}
	if len(body) < off+int(length) {
		return out, ErrBodyTooShort
	}
	out.Payload = append([]byte(nil), body[off:off+int(length)]...)
	return out, nil
}

// Ack is the ACK frame body.
type Ack struct {
	AckSequence uint32
	Status      uint8
}

const ackBodySize = 4 + 1 + 3

// EncodeAck encodes a complete ACK frame.
func EncodeAck(h Header, body Ack) ([]byte, error) {
	h.Type = TypeAck
	buf, err := encodeHeader(h, ackBodySize)
	if err != nil {
		return nil, err
	}
	off := HeaderSize
	binary.NativeEndian.PutUint32(buf[off:off+4], body.AckSequence)
	off += 4
	buf[off] = body.Status
	// remaining 3 bytes reserved, already zero
	return buf, nil
}

// DecodeAck decodes the ACK body following a validated header.
func DecodeAck(body []byte) (Ack, error) {
	var out Ack
	if len(body) < ackBodySize {
		return out, ErrBodyTooShort
	}
	out.AckSequence = binary.NativeEndian.Uint32(body[0:4])
	out.Status = body[4]
	return out, nil
}
