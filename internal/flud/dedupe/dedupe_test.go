package dedupe

import (
	"testing"

	"github.com/fludmesh/flud/internal/flud/mac"
)

func addr(b byte) mac.Addr {
	return mac.Addr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, b}
}

func TestContainsAfterInsert(t *testing.T) {
	c := New(4, 0)
	a := addr(1)
	if c.Contains(10, a) {
		t.Fatalf("expected not contained before insert")
	}
	c.Insert(10, a, 1000)
	if !c.Contains(10, a) {
		t.Fatalf("expected contained after insert")
	}
	if c.Contains(11, a) {
		t.Fatalf("different sequence should not match")
	}
}

func TestOverwriteOldestWhenFull(t *testing.T) {
	c := New(2, 0)
	a1, a2, a3 := addr(1), addr(2), addr(3)
	c.Insert(1, a1, 1000)
	c.Insert(2, a2, 2000)
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}

	// table is full; inserting a third entry should evict the oldest (a1@1000)
	c.Insert(3, a3, 3000)
	if c.Contains(1, a1) {
		t.Fatalf("expected oldest entry to be evicted")
	}
	if !c.Contains(2, a2) || !c.Contains(3, a3) {
		t.Fatalf("expected remaining two entries to survive")
	}
}

func TestSweepRemovesExpiredEntries(t *testing.T) {
	c := New(4, 0) // default timeout, 5 minutes
	a := addr(1)
	c.Insert(1, a, 0)
	c.Sweep(1000) // well within window
	if !c.Contains(1, a) {
		t.Fatalf("entry should not have expired yet")
	}

	sixMinutesMs := uint32(6 * 60 * 1000)
	c.Sweep(sixMinutesMs)
	if c.Contains(1, a) {
		t.Fatalf("entry should have expired after sweep")
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache after sweep, got %d entries", c.Len())
	}
}

func TestCapacityEvictionAllowsReuse(t *testing.T) {
	// Scenario 5 from the spec: with capacity 64, the 66th arrival reuses
	// an evicted (origin, seq) and is processed as new.
	c := New(64, 0)
	a := addr(1)
	for i := uint32(0); i < 65; i++ {
		c.Insert(i, a, i)
	}
	if c.Contains(0, a) {
		t.Fatalf("expected origin/seq 0 to have been evicted by the 65th insert")
	}
	// Reusing it looks like a fresh entry.
	c.Insert(0, a, 65)
	if !c.Contains(0, a) {
		t.Fatalf("expected reused sequence to be recorded as seen")
	}
}
