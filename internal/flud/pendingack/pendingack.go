// Package pendingack implements the pending-ACK table (C5): bookkeeping
// for frames sent with ACK_REQUIRED, so a sweep can retry them on
// timeout or give up and mark the originating log record as failed.
//
// Grounded on the teacher's relay.DestinationManager / relay.Destination
// pattern (internal/rtmp/relay/destination.go, manager.go): a collection
// of entries, each carrying the thing that might need resending, a
// status, an attempt count, and a timestamp, with the collection
// scanned on an interval to decide retry-vs-give-up. Here the
// "destination" is a (sequence, dest MAC) pair and the retry payload is
// the verbatim frame bytes, not a live connection, so entries are kept
// in a slice rather than the teacher's map[string]*Destination — the
// spec's "singly-linked list" has no ordering requirement, and a slice
// is the direct idiomatic rendering.
package pendingack

import (
	"sync"
	"time"

	"github.com/fludmesh/flud/internal/flud/mac"
	"github.com/fludmesh/flud/internal/flud/wire"
)

// DefaultTimeout is how long the table waits for a matching ACK before
// considering a retry.
const DefaultTimeout = 5 * time.Second

// DefaultMaxTries is the number of retransmissions after the original
// send before giving up on a frame.
const DefaultMaxTries = 3

// LogKind identifies which message log an entry's give-up path
// updates: the peer log for PRIVATE frames, the channel log for
// channel MESSAGE frames.
type LogKind uint8

const (
	// LogPeer routes give-up handling to a peer's message log.
	LogPeer LogKind = iota
	// LogChannel routes give-up handling to a channel's message log.
	LogChannel
)

// Entry is one outstanding send awaiting acknowledgement.
type Entry struct {
	Sequence    uint32
	DestMAC     mac.Addr // may be mac.Broadcast for HELLO / channel MESSAGE
	Frame       []byte   // verbatim bytes that would be retransmitted
	FirstSentMS uint32
	TryCount    uint8

	// LogKind/LogKey/LogIndex identify the stored message record to
	// flip to DELIVERY_FAILED on final give-up. LogKey is a hex MAC for
	// LogPeer or a channel name for LogChannel. Entries with no
	// associated log record (e.g. a bare HELLO) leave LogIndexSet false.
	LogKind     LogKind
	LogKey      string
	LogIndex    uint32
	LogIndexSet bool
}

// Table is the pending-ACK collection. The zero value is not usable;
// construct with New.
type Table struct {
	mu       sync.Mutex
	entries  []Entry
	timeout  time.Duration
	maxTries uint8
}

// New constructs a Table. A timeout <= 0 uses DefaultTimeout; a
// maxTries == 0 uses DefaultMaxTries.
func New(timeout time.Duration, maxTries uint8) *Table {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxTries == 0 {
		maxTries = DefaultMaxTries
	}
	return &Table{timeout: timeout, maxTries: maxTries}
}

// Add registers a new pending entry, created at transmit time.
func (t *Table) Add(e Entry) {
	t.mu.Lock()
	t.entries = append(t.entries, e)
	t.mu.Unlock()
}

// Remove deletes and returns the entry matching (sequence, destMAC),
// as happens on matching ACK receipt. Removing a broadcast-addressed
// entry (HELLO, channel MESSAGE) is satisfied by the first ACK quoting
// that sequence regardless of who sent it, since the entry itself is
// keyed on mac.Broadcast.
func (t *Table) Remove(sequence uint32, destMAC mac.Addr) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, e := range t.entries {
		if e.Sequence == sequence && e.DestMAC == destMAC {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return e, true
		}
	}
	return Entry{}, false
}

// Len reports the number of outstanding entries. Intended for tests
// and diagnostics.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Outcome is what Sweep decided to do with one timed-out entry.
type Outcome struct {
	Entry   Entry
	Retried bool // true: Entry.Frame was patched for resend and should be re-enqueued; false: give up
}

// Sweep scans for entries whose wait has exceeded the configured
// timeout. For each: if under maxTries, the try count is incremented,
// FirstSentMS is reset to now, and the frame is patched in place
// (RETRY flag, hops=0, ttl=maxTTL) for the caller to re-enqueue. Once
// maxTries is exhausted, the entry is dropped from the table and
// reported as a give-up so the caller can flip its log record to
// DELIVERY_FAILED.
func (t *Table) Sweep(now uint32, maxTTL uint8) []Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	var outcomes []Outcome
	cutoff := uint32(t.timeout.Milliseconds())
	kept := t.entries[:0]
	for _, e := range t.entries {
		if now-e.FirstSentMS < cutoff {
			kept = append(kept, e)
			continue
		}
		if e.TryCount < t.maxTries {
			e.TryCount++
			e.FirstSentMS = now
			_ = wire.PatchRetry(e.Frame, maxTTL)
			kept = append(kept, e)
			outcomes = append(outcomes, Outcome{Entry: e, Retried: true})
			continue
		}
		outcomes = append(outcomes, Outcome{Entry: e, Retried: false})
	}
	t.entries = kept
	return outcomes
}
