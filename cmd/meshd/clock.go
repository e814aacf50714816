package main

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// systemClock implements ports.Clock over the wall clock, truncated to a
// uint32 count of milliseconds since process start so it fits the spec's
// wire-level timestamp width. The count wraps to zero after about 49.7
// days of uptime.
type systemClock struct {
	start time.Time
}

func newSystemClock() *systemClock {
	return &systemClock{start: time.Now()}
}

func (c *systemClock) NowMillis() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

// cryptoRandSource implements ports.RandomSource over crypto/rand, used to
// seed the engine's sequence counter unpredictably at start-up per spec §9.
type cryptoRandSource struct{}

func (cryptoRandSource) Uint32() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}
