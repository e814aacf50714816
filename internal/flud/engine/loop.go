package engine

import (
	"context"
	"time"

	"github.com/fludmesh/flud/internal/bufpool"
	"github.com/fludmesh/flud/internal/flud/msglog"
	"github.com/fludmesh/flud/internal/flud/pendingack"
	"github.com/fludmesh/flud/internal/flud/wire"
)

// radioSendTimeout bounds a single SendBroadcast call so a wedged radio
// driver cannot stall the loop indefinitely.
const radioSendTimeout = 2 * time.Second

// run is the cooperative engine task (C7): one goroutine draining the send
// queue and driving the three scheduled activities (beacon, cache GC,
// ACK sweep). Grounded on the teacher's Server.acceptLoop/Connection
// read-loop goroutines, rendered here as a single select multiplexing a
// channel receive with three tickers instead of the teacher's one-purpose
// loops, since spec §4.7 names exactly these four wakeup sources.
func (e *Engine) run() {
	defer e.wg.Done()

	beaconTicker := time.NewTicker(time.Duration(e.cfg.HelloIntervalSeconds) * time.Second)
	gcTicker := time.NewTicker(e.cfg.CacheGCInterval)
	ackTicker := time.NewTicker(e.cfg.AckSweepInterval)
	defer beaconTicker.Stop()
	defer gcTicker.Stop()
	defer ackTicker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case frame := <-e.queue.Chan():
			e.sendFrame(frame)
		case <-beaconTicker.C:
			if err := e.SendHello(); err != nil {
				e.log.Warn("send beacon hello", "error", err)
			}
		case <-gcTicker.C:
			now := e.clock.NowMillis()
			e.mu.Lock()
			e.cache.Sweep(now)
			e.mu.Unlock()
		case <-ackTicker.C:
			e.sweepPendingAcks()
		}
	}
}

// sendFrame transmits one dequeued frame and, if it demands an
// acknowledgement, registers it in the pending-ACK table. The log
// index to flip on eventual give-up is recovered from the body's
// embedded message id (set by the API methods that built the frame),
// not tracked separately alongside the send queue.
//
// Buffer ownership: a frame that ends up pending an ACK is retained by
// the pending-ACK table (for retransmission) and is only returned to
// bufpool once that table is done with it, in handleAckLocked or
// sweepPendingAcks. Every other frame's lifetime ends here, so it is
// released back to the pool on every other path out of this function.
func (e *Engine) sendFrame(frame []byte) {
	h, err := wire.DecodeHeader(frame)
	if err != nil {
		bufpool.Put(frame)
		return
	}
	isRetry := h.Flags.Has(wire.FlagRetry)

	ctx, cancel := context.WithTimeout(context.Background(), radioSendTimeout)
	defer cancel()
	if err := e.radio.SendBroadcast(ctx, frame); err != nil {
		e.log.Warn("radio send failed", "error", err)
		if !isRetry {
			bufpool.Put(frame)
		}
		return
	}
	e.callbacks.triggerPacketSent(PacketEvent{Type: h.Type, Sequence: h.Sequence, Peer: h.DestMAC})

	if isRetry {
		// Already owned by the pending-ACK table; released once that
		// entry is resolved, not here.
		return
	}
	if h.Type == wire.TypeAck || !h.Flags.Has(wire.FlagAckRequired) {
		bufpool.Put(frame)
		return
	}

	entry := pendingack.Entry{
		Sequence:    h.Sequence,
		DestMAC:     h.DestMAC,
		Frame:       frame,
		FirstSentMS: e.clock.NowMillis(),
	}
	switch h.Type {
	case wire.TypeMessage:
		if body, err := wire.DecodeChannelMessage(frame[wire.HeaderSize:]); err == nil {
			entry.LogKind = pendingack.LogChannel
			entry.LogKey = body.ChannelName
			entry.LogIndex = body.MessageID
			entry.LogIndexSet = true
		}
	case wire.TypePrivate:
		if body, err := wire.DecodePrivate(frame[wire.HeaderSize:]); err == nil {
			entry.LogKind = pendingack.LogPeer
			entry.LogKey = hexMACPath(h.DestMAC)
			entry.LogIndex = body.MessageID
			entry.LogIndexSet = true
		}
	}
	e.mu.Lock()
	e.pending.Add(entry)
	e.mu.Unlock()
}

// sweepPendingAcks runs the pending-ACK table's timeout sweep: retried
// frames are re-enqueued (they were already patched in place by
// pendingack.Table.Sweep), and given-up entries flip their log record to
// DELIVERY_FAILED.
func (e *Engine) sweepPendingAcks() {
	now := e.clock.NowMillis()
	e.mu.Lock()
	outcomes := e.pending.Sweep(now, e.cfg.MaxTTL)
	e.mu.Unlock()

	for _, o := range outcomes {
		if o.Retried {
			if err := e.queue.Enqueue(o.Entry.Frame); err != nil {
				e.log.Warn("retry enqueue: send queue full, dropping", "error", err, "sequence", o.Entry.Sequence)
			}
			continue
		}
		// Given up: the table is done with this frame.
		bufpool.Put(o.Entry.Frame)
		if !o.Entry.LogIndexSet {
			continue
		}
		path := logPathForEntry(e.cfg.ContextPath, o.Entry)
		if err := msglog.SetStatus(path, o.Entry.LogIndex, msglog.StatusDeliveryFailed); err != nil {
			e.log.Warn("flip log record to delivery_failed", "error", err)
			continue
		}
		e.callbacks.triggerStatusChange(StatusChangeEvent{
			LogKind: o.Entry.LogKind,
			LogKey:  o.Entry.LogKey,
			Index:   o.Entry.LogIndex,
			Status:  msglog.StatusDeliveryFailed,
		})
	}
}
