// Package ports declares the narrow interfaces through which the
// engine reaches the four external collaborators named in the spec:
// the radio driver, the local clock, the random-number source, and
// (via ReceiveFunc) the driver thread that delivers inbound frames.
// The filesystem is not abstracted here: Go's os package already is
// the narrow, single-OS-target interface the spec's POSIX primitives
// describe, so adding a seam for it would be speculative.
//
// Grounded on the teacher's habit of declaring a minimal interface
// (RTMPClient in internal/rtmp/relay/destination.go) purely to avoid a
// circular or concrete dependency on a sibling package.
package ports

import (
	"context"

	"github.com/fludmesh/flud/internal/flud/mac"
)

// Radio is the send-side radio driver: broadcast transmission and
// lifecycle control. Receiving is push-based (see ReceiveFunc), not
// polled through this interface.
type Radio interface {
	// SendBroadcast transmits frame to the broadcast address on the
	// channel configured at initialization.
	SendBroadcast(ctx context.Context, frame []byte) error
	// AddBroadcastPeer registers the broadcast peer on the given radio
	// channel, a precondition ESP-NOW-style radios impose before any
	// broadcast send will succeed.
	AddBroadcastPeer(channel int) error
	// Deinit releases any radio resources.
	Deinit() error
}

// ReceiveFunc is the callback a Radio implementation invokes, from its
// own driver thread, for every frame it receives: the raw frame bytes,
// the sender's hardware address, and the received signal strength.
type ReceiveFunc func(frame []byte, src mac.Addr, rssi int8)

// Clock is the monotonic millisecond time source used for cache sweep
// windows, pending-ACK timeouts, and volatile last-seen timestamps.
type Clock interface {
	NowMillis() uint32
}

// RandomSource supplies the engine's sequence-counter seed and any
// other place the protocol needs an unpredictable uint32.
type RandomSource interface {
	Uint32() (uint32, error)
}
