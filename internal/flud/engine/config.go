// Package engine composes the codec, dedupe cache, message log, directory
// store, pending-ACK table, and send queue into the running node: the
// cooperative send/service loop (C7), the ingress handler invoked from the
// radio's receive callback (C8), and the public API surface (C9).
package engine

import (
	"fmt"
	"time"

	flooderrors "github.com/fludmesh/flud/internal/errors"
	"github.com/fludmesh/flud/internal/flud/dedupe"
	"github.com/fludmesh/flud/internal/flud/mac"
	"github.com/fludmesh/flud/internal/flud/pendingack"
	"github.com/fludmesh/flud/internal/flud/sendqueue"
)

// Range limits on the validated init parameters.
const (
	MinChannel = 0
	MaxChannel = 14

	MinMaxTTL = 1
	MaxMaxTTL = 9

	MinHelloIntervalSeconds = 10
	MaxHelloIntervalSeconds = 3600
)

// Scheduled housekeeping intervals, not wire-visible.
const (
	DefaultCacheGCInterval = 5 * time.Minute
	DefaultAckSweepInterval = 1 * time.Second
	DefaultHelloIntervalSeconds = 60
)

// Config holds the engine's tunable knobs. The radio/clock/random-source
// collaborators are supplied separately to New, not as Config fields, since
// they are live objects rather than values.
type Config struct {
	// Name is this node's device name, advertised in HELLO frames.
	Name string
	// ContextPath is the root directory under which devices/ and
	// channels/ are created (the spec's "<ctx>").
	ContextPath string
	// OwnMAC is this node's hardware address. The radio driver contract
	// (spec §6) has no accessor for it, so it is supplied directly by
	// the caller that owns the radio (e.g. cmd/meshd reads or generates
	// it before constructing the engine).
	OwnMAC mac.Addr
	// Channel is the radio channel broadcasts are sent/received on.
	Channel int
	// MaxTTL is the hop budget new outbound frames are given.
	MaxTTL uint8
	// HelloIntervalSeconds is the beacon period.
	HelloIntervalSeconds int
	// Role and Capabilities are advertised verbatim in our own HELLO.
	Role         uint8
	Capabilities uint8

	// DedupeCapacity / DedupeTimeout configure the duplicate-suppression cache.
	DedupeCapacity int
	DedupeTimeout  time.Duration
	// SendQueueDepth bounds the outbound FIFO.
	SendQueueDepth int
	// AckTimeout / AckMaxTries configure the pending-ACK sweep.
	AckTimeout  time.Duration
	AckMaxTries uint8
	// CacheGCInterval / AckSweepInterval are the engine loop's scheduled
	// housekeeping periods.
	CacheGCInterval  time.Duration
	AckSweepInterval time.Duration
}

// applyDefaults fills zero-value fields with the spec's documented
// defaults, following the teacher's Config.applyDefaults pattern.
func (c *Config) applyDefaults() {
	if c.DedupeCapacity == 0 {
		c.DedupeCapacity = dedupe.DefaultCapacity
	}
	if c.DedupeTimeout == 0 {
		c.DedupeTimeout = dedupe.DefaultTimeout
	}
	if c.SendQueueDepth == 0 {
		c.SendQueueDepth = sendqueue.DefaultDepth
	}
	if c.AckTimeout == 0 {
		c.AckTimeout = pendingack.DefaultTimeout
	}
	if c.AckMaxTries == 0 {
		c.AckMaxTries = pendingack.DefaultMaxTries
	}
	if c.CacheGCInterval == 0 {
		c.CacheGCInterval = DefaultCacheGCInterval
	}
	if c.AckSweepInterval == 0 {
		c.AckSweepInterval = DefaultAckSweepInterval
	}
	if c.HelloIntervalSeconds == 0 {
		c.HelloIntervalSeconds = DefaultHelloIntervalSeconds
	}
}

// validate enforces the range checks spec §4.9 requires of init.
func (c Config) validate() error {
	if c.Name == "" {
		return flooderrors.NewInvalidArgError("engine.init", fmt.Errorf("name must not be empty"))
	}
	if c.ContextPath == "" {
		return flooderrors.NewInvalidArgError("engine.init", fmt.Errorf("context_path must not be empty"))
	}
	if c.OwnMAC.IsZero() {
		return flooderrors.NewInvalidArgError("engine.init", fmt.Errorf("own MAC must not be the zero address"))
	}
	if c.Channel < MinChannel || c.Channel > MaxChannel {
		return flooderrors.NewInvalidArgError("engine.init",
			fmt.Errorf("channel %d outside [%d,%d]", c.Channel, MinChannel, MaxChannel))
	}
	if c.MaxTTL < MinMaxTTL || c.MaxTTL > MaxMaxTTL {
		return flooderrors.NewInvalidArgError("engine.init",
			fmt.Errorf("max_ttl %d outside [%d,%d]", c.MaxTTL, MinMaxTTL, MaxMaxTTL))
	}
	if c.HelloIntervalSeconds < MinHelloIntervalSeconds || c.HelloIntervalSeconds > MaxHelloIntervalSeconds {
		return flooderrors.NewInvalidArgError("engine.init",
			fmt.Errorf("hello_interval %d outside [%d,%d] seconds", c.HelloIntervalSeconds, MinHelloIntervalSeconds, MaxHelloIntervalSeconds))
	}
	return nil
}
