package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	flooderrors "github.com/fludmesh/flud/internal/errors"
	"github.com/fludmesh/flud/internal/flud/dedupe"
	"github.com/fludmesh/flud/internal/flud/directory"
	"github.com/fludmesh/flud/internal/flud/mac"
	"github.com/fludmesh/flud/internal/flud/pendingack"
	"github.com/fludmesh/flud/internal/flud/ports"
	"github.com/fludmesh/flud/internal/flud/sendqueue"
	"github.com/fludmesh/flud/internal/logger"
)

// Engine is one running mesh node: it owns the volatile directory tables,
// the dedupe cache, the pending-ACK table, and the send queue, and drives
// them from the cooperative loop (C7), the ingress handler (C8), and the
// public API (C9).
//
// Grounded on the teacher's Server: a struct bundling config, collaborator
// handles, and the mutable state the accept loop and public methods both
// touch. Unlike the spec's "reentrant engine mutex," Go's sync.Mutex is not
// reentrant, so the call graph is restructured per SPEC_FULL §4.9: public
// methods take mu once and call unexported, lock-free helpers.
type Engine struct {
	cfg Config
	log *slog.Logger

	radio ports.Radio
	clock ports.Clock
	rng   ports.RandomSource

	mu       sync.Mutex // the "engine mutex": directories, cache, pending-ACK, log I/O, sequence counter
	peers    *directory.PeerTable
	channels *directory.ChannelTable
	cache    *dedupe.Cache
	pending  *pendingack.Table
	seq      uint32

	queue     *sendqueue.Queue
	callbacks Callbacks

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New constructs and initialises an Engine: spec §4.9's init(name,
// context_path, channel, max_ttl, hello_interval). It validates cfg,
// ensures <ctx>/devices and <ctx>/channels exist, seeds the sequence
// counter from rng, and registers the broadcast peer on radio. It does not
// start the loop; call Start for that.
func New(cfg Config, radio ports.Radio, clock ports.Clock, rng ports.RandomSource) (*Engine, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if radio == nil || clock == nil || rng == nil {
		return nil, flooderrors.NewInvalidArgError("engine.init", fmt.Errorf("radio, clock, and random source must not be nil"))
	}

	if err := os.MkdirAll(filepath.Join(cfg.ContextPath, "devices"), 0o755); err != nil {
		return nil, flooderrors.NewIOError("engine.init", fmt.Errorf("mkdir devices: %w", err))
	}
	if err := os.MkdirAll(filepath.Join(cfg.ContextPath, "channels"), 0o755); err != nil {
		return nil, flooderrors.NewIOError("engine.init", fmt.Errorf("mkdir channels: %w", err))
	}

	seed, err := rng.Uint32()
	if err != nil {
		return nil, flooderrors.NewIOError("engine.init", fmt.Errorf("seed sequence counter: %w", err))
	}

	if err := radio.AddBroadcastPeer(cfg.Channel); err != nil {
		return nil, flooderrors.NewIOError("engine.init", fmt.Errorf("add broadcast peer: %w", err))
	}

	e := &Engine{
		cfg:      cfg,
		log:      logger.WithNode(logger.Logger(), cfg.OwnMAC.String()).With("component", "engine"),
		radio:    radio,
		clock:    clock,
		rng:      rng,
		peers:    directory.NewPeerTable(),
		channels: directory.NewChannelTable(),
		cache:    dedupe.New(cfg.DedupeCapacity, cfg.DedupeTimeout),
		pending:  pendingack.New(cfg.AckTimeout, cfg.AckMaxTries),
		queue:    sendqueue.New(cfg.SendQueueDepth),
		seq:      seed,
	}
	return e, nil
}

// Callbacks returns the engine's notification registry, for callers to call
// the On* registration methods on.
func (e *Engine) Callbacks() *Callbacks { return &e.callbacks }

// nextSequence returns the next outbound sequence number. Caller must hold mu.
func (e *Engine) nextSequence() uint32 {
	e.seq++
	return e.seq
}

func rssiToPercent(rssi int8) uint8 {
	// Typical usable range for a low-power mesh radio is roughly -100
	// dBm (unusable) to -30 dBm (excellent). Clamp and rescale linearly.
	const worst = -100
	const best = -30
	v := int(rssi)
	if v < worst {
		v = worst
	}
	if v > best {
		v = best
	}
	pct := (v - worst) * 100 / (best - worst)
	return uint8(pct)
}

func peerLogPath(ctxPath string, addr mac.Addr) string {
	return filepath.Join(ctxPath, "devices", hexMACPath(addr), "messages.bin")
}

func channelLogPath(ctxPath, name string) string {
	return filepath.Join(ctxPath, "channels", name, "messages.bin")
}

// hexMACPath mirrors directory's unexported hexMAC naming scheme so the
// engine can locate a peer's log file without the directory package
// exporting its internal path layout.
func hexMACPath(addr mac.Addr) string {
	const hexDigits = "0123456789abcdef"
	b := make([]byte, 0, mac.Size*2)
	for _, octet := range addr {
		b = append(b, hexDigits[octet>>4], hexDigits[octet&0x0F])
	}
	return string(b)
}
