package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/fludmesh/flud/internal/flud/mac"
)

// fakeRadio is a ports.Radio test double that records every frame handed
// to SendBroadcast. Grounded on the teacher's fakeConn pattern used across
// internal/rtmp/conn tests: a minimal collaborator stub capturing calls
// instead of a real socket.
type fakeRadio struct {
	mu       sync.Mutex
	sent     [][]byte
	channels []int
	deinited bool
	sendErr  error
}

func (r *fakeRadio) SendBroadcast(_ context.Context, frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sendErr != nil {
		return r.sendErr
	}
	cp := append([]byte(nil), frame...)
	r.sent = append(r.sent, cp)
	return nil
}

func (r *fakeRadio) AddBroadcastPeer(channel int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = append(r.channels, channel)
	return nil
}

func (r *fakeRadio) Deinit() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deinited = true
	return nil
}

func (r *fakeRadio) sentFrames() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.sent...)
}

// fakeClock is a controllable ports.Clock.
type fakeClock struct {
	mu  sync.Mutex
	now uint32
}

func newFakeClock(start uint32) *fakeClock { return &fakeClock{now: start} }

func (c *fakeClock) NowMillis() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(ms uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += ms
}

// fakeRNG is a deterministic ports.RandomSource.
type fakeRNG struct {
	value uint32
	err   error
}

func (r *fakeRNG) Uint32() (uint32, error) {
	if r.err != nil {
		return 0, r.err
	}
	return r.value, nil
}

var errFakeRadioSend = errors.New("fake radio: send failed")

func mustMAC(s string) mac.Addr {
	a, err := mac.Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// newTestEngine builds a ready-to-use Engine rooted at dir, with a fresh
// fakeRadio/fakeClock/fakeRNG, for tests that do not need Start's
// goroutine running.
func newTestEngine(dir string, own mac.Addr) (*Engine, *fakeRadio, *fakeClock) {
	radio := &fakeRadio{}
	clock := newFakeClock(1000)
	rng := &fakeRNG{value: 7}
	cfg := Config{
		Name:                 "node-under-test",
		ContextPath:          dir,
		OwnMAC:               own,
		Channel:              1,
		MaxTTL:               4,
		HelloIntervalSeconds: 30,
	}
	e, err := New(cfg, radio, clock, rng)
	if err != nil {
		panic(err)
	}
	return e, radio, clock
}
