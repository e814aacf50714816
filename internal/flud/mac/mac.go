// Package mac defines the 6-byte hardware address type used to identify
// mesh nodes, along with parsing and formatting helpers.
package mac

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Size is the fixed width of a hardware address in bytes.
const Size = 6

// Addr is a 6-byte hardware address. The zero value is not a valid
// address on the wire but is used internally as "unset".
type Addr [Size]byte

// Broadcast is the addressee for HELLO and channel MESSAGE frames.
var Broadcast = Addr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// String renders the address as colon-separated uppercase hex, e.g.
// "AA:BB:CC:DD:EE:FF".
func (a Addr) String() string {
	var b strings.Builder
	b.Grow(17)
	for i, octet := range a {
		if i > 0 {
			b.WriteByte(':')
		}
		fmt.Fprintf(&b, "%02X", octet)
	}
	return b.String()
}

// IsZero reports whether a is the zero-value address.
func (a Addr) IsZero() bool { return a == Addr{} }

// IsBroadcast reports whether a is the broadcast address.
func (a Addr) IsBroadcast() bool { return a == Broadcast }

// Bytes copies the address into a fresh 6-byte slice.
func (a Addr) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, a[:])
	return out
}

// FromBytes builds an Addr from a 6-byte slice. It returns an error if b
// is not exactly Size bytes long.
func FromBytes(b []byte) (Addr, error) {
	var a Addr
	if len(b) != Size {
		return a, fmt.Errorf("mac: expected %d bytes, got %d", Size, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// Parse accepts colon- or hyphen-separated hex MAC strings, e.g.
// "AA:BB:CC:DD:EE:FF" or "aa-bb-cc-dd-ee-ff", case-insensitive.
func Parse(s string) (Addr, error) {
	var a Addr
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ':', '-':
			return -1
		}
		return r
	}, s)
	if len(cleaned) != Size*2 {
		return a, fmt.Errorf("mac: %q is not a valid hardware address", s)
	}
	decoded, err := hex.DecodeString(cleaned)
	if err != nil {
		return a, fmt.Errorf("mac: %q is not a valid hardware address: %w", s, err)
	}
	copy(a[:], decoded)
	return a, nil
}
