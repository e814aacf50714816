package engine

import (
	"path/filepath"

	"github.com/fludmesh/flud/internal/bufpool"
	"github.com/fludmesh/flud/internal/flud/directory"
	"github.com/fludmesh/flud/internal/flud/mac"
	"github.com/fludmesh/flud/internal/flud/msglog"
	"github.com/fludmesh/flud/internal/flud/pendingack"
	"github.com/fludmesh/flud/internal/flud/wire"
)

// handleReceive is the ingress handler (C8): the function registered as
// ports.ReceiveFunc. It is invoked synchronously from the radio driver's
// own thread, exactly as the teacher's Connection.onMessage hook is invoked
// synchronously from its read loop; here the caller is external rather
// than a goroutine this package owns, so the whole algorithm runs under
// the engine mutex per spec §5.
func (e *Engine) handleReceive(data []byte, src mac.Addr, rssi int8) {
	h, err := wire.DecodeHeader(data)
	if err != nil {
		e.log.Debug("dropping malformed frame", "error", err, "peer", src.String())
		return
	}
	if h.SourceMAC == e.cfg.OwnMAC {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.NowMillis()
	if e.cache.Contains(h.Sequence, h.SourceMAC) {
		return
	}
	e.cache.Insert(h.Sequence, h.SourceMAC, now)

	e.callbacks.triggerPacketReceived(PacketEvent{Type: h.Type, Sequence: h.Sequence, Peer: h.SourceMAC})

	switch h.Type {
	case wire.TypeHello:
		e.handleHelloLocked(h, data, rssi, now)
	case wire.TypeMessage:
		e.handleMessageLocked(h, data, now)
	case wire.TypePrivate:
		e.handlePrivateLocked(h, data, now)
	case wire.TypeAck:
		e.handleAckLocked(h, data, now)
	default:
		e.log.Debug("unknown frame type", "type", uint8(h.Type))
	}
}

func (e *Engine) handleHelloLocked(h wire.Header, frame []byte, rssi int8, now uint32) {
	body, err := wire.DecodeHello(frame[wire.HeaderSize:])
	if err != nil {
		e.log.Debug("dropping malformed HELLO", "error", err)
		return
	}

	_, _, existed, err := directory.FindPeer(e.cfg.ContextPath, e.peers, h.SourceMAC)
	if err != nil {
		e.log.Warn("read peer meta", "error", err)
		return
	}
	persistent := directory.PeerPersistent{MAC: h.SourceMAC, Name: body.DeviceName, Role: body.Role, Capabilities: body.Capabilities}
	if err := directory.WritePeerMeta(e.cfg.ContextPath, persistent); err != nil {
		e.log.Warn("write peer meta", "error", err)
		return
	}

	var unread uint16
	if existed {
		if v, ok := e.peers.Get(h.SourceMAC); ok {
			unread = v.UnreadMessages
		}
	}
	e.peers.Update(directory.PeerVolatile{
		MAC:            h.SourceMAC,
		LastSeen:       now,
		SignalStrength: rssiToPercent(rssi),
		Hops:           h.Hops,
		BatteryLevel:   body.BatteryLevel,
		UnreadMessages: unread,
	})
	e.callbacks.triggerDeviceAdded(DeviceAddedEvent{MAC: h.SourceMAC, Name: body.DeviceName})

	if h.Flags.Has(wire.FlagAckRequired) {
		e.enqueueAckLocked(h.SourceMAC, h.Sequence, wire.AckSuccess)
	}
	e.forwardLocked(h, frame)
}

func (e *Engine) handleMessageLocked(h wire.Header, frame []byte, now uint32) {
	body, err := wire.DecodeChannelMessage(frame[wire.HeaderSize:])
	if err != nil {
		e.log.Debug("dropping malformed MESSAGE", "error", err)
		return
	}

	_, _, found, err := directory.FindChannel(e.cfg.ContextPath, e.channels, body.ChannelName)
	if err != nil {
		e.log.Warn("read channel meta", "error", err)
	}
	if found {
		v := e.channels.Get(body.ChannelName)
		v.LastSeen = now
		v.UnreadMessages++
		e.channels.Update(v)

		rec := msglog.Record{
			SenderMAC:   h.SourceMAC,
			Sequence:    h.Sequence,
			Timestamp:   now,
			Status:      msglog.StatusReceived,
			MessageType: body.ContentType,
			Payload:     body.Payload,
		}
		if _, err := msglog.Append(channelLogPath(e.cfg.ContextPath, body.ChannelName), rec); err != nil {
			e.log.Warn("append channel message", "error", err, "channel", body.ChannelName)
		}
	}

	e.callbacks.triggerMessageReceived(MessageReceivedEvent{
		SourceMAC: h.SourceMAC,
		Channel:   body.ChannelName,
		Sequence:  h.Sequence,
		Payload:   body.Payload,
	})
	if h.Flags.Has(wire.FlagAckRequired) {
		e.enqueueAckLocked(h.SourceMAC, h.Sequence, wire.AckSuccess)
	}
	e.forwardLocked(h, frame)
}

func (e *Engine) handlePrivateLocked(h wire.Header, frame []byte, now uint32) {
	body, err := wire.DecodePrivate(frame[wire.HeaderSize:])
	if err != nil {
		e.log.Debug("dropping malformed PRIVATE", "error", err)
		return
	}

	// ACK unconditionally: the sender should learn the frame reached some
	// node willing to at least try forwarding or consuming it.
	if h.Flags.Has(wire.FlagAckRequired) {
		e.enqueueAckLocked(h.SourceMAC, h.Sequence, wire.AckSuccess)
	}

	if h.DestMAC != e.cfg.OwnMAC {
		e.forwardLocked(h, frame)
		return
	}

	v, ok := e.peers.Get(h.SourceMAC)
	if !ok {
		v = directory.PeerVolatile{MAC: h.SourceMAC}
	}
	v.UnreadMessages++
	e.peers.Update(v)

	rec := msglog.Record{
		SenderMAC:   h.SourceMAC,
		Sequence:    h.Sequence,
		Timestamp:   now,
		Status:      msglog.StatusReceived,
		MessageType: body.ContentType,
		Payload:     body.Payload,
	}
	if _, err := msglog.Append(peerLogPath(e.cfg.ContextPath, h.SourceMAC), rec); err != nil {
		e.log.Warn("append private message", "error", err, "peer", h.SourceMAC.String())
	}
	e.callbacks.triggerMessageReceived(MessageReceivedEvent{
		SourceMAC: h.SourceMAC,
		Sequence:  h.Sequence,
		Payload:   body.Payload,
	})
}

func (e *Engine) handleAckLocked(h wire.Header, frame []byte, now uint32) {
	_ = now
	body, err := wire.DecodeAck(frame[wire.HeaderSize:])
	if err != nil {
		e.log.Debug("dropping malformed ACK", "error", err)
		return
	}
	if h.DestMAC != e.cfg.OwnMAC {
		e.forwardLocked(h, frame)
		return
	}

	// A pending entry for a unicast PRIVATE send is keyed on the peer's
	// MAC; a broadcast HELLO or channel MESSAGE send is keyed on
	// mac.Broadcast and is satisfied by the first ACK quoting its
	// sequence, regardless of which peer sent it.
	entry, ok := e.pending.Remove(body.AckSequence, h.SourceMAC)
	if !ok {
		entry, ok = e.pending.Remove(body.AckSequence, mac.Broadcast)
	}
	if !ok {
		return
	}
	// The table is done with this frame now that the entry is resolved.
	bufpool.Put(entry.Frame)
	if !entry.LogIndexSet {
		return
	}
	status := msglog.StatusDeliveryFailed
	if body.Status == wire.AckSuccess {
		status = msglog.StatusDelivered
	}
	if err := msglog.SetStatus(logPathForEntry(e.cfg.ContextPath, entry), entry.LogIndex, status); err != nil {
		e.log.Warn("update log status", "error", err)
		return
	}
	e.callbacks.triggerStatusChange(StatusChangeEvent{
		LogKind: entry.LogKind,
		LogKey:  entry.LogKey,
		Index:   entry.LogIndex,
		Status:  status,
	})
}

// forwardLocked implements the shared forwarding rule: copy the frame, and
// if ttl > 0, decrement it, increment hops, set FORWARDED, and enqueue. A
// frame whose ttl is already 0 is dropped without forwarding.
func (e *Engine) forwardLocked(h wire.Header, frame []byte) {
	if h.TTL == 0 {
		return
	}
	fwd := bufpool.Get(len(frame))
	copy(fwd, frame)
	if err := wire.PatchForward(fwd, h.Hops+1, h.TTL-1); err != nil {
		e.log.Warn("patch forwarded frame", "error", err)
		return
	}
	if err := e.queue.Enqueue(fwd); err != nil {
		e.log.Warn("forward: send queue full, dropping", "error", err, "sequence", h.Sequence)
	}
}

// enqueueAckLocked builds and enqueues an ACK frame (no ACK_REQUIRED) in
// reply to ackSequence from dest. Callers that can propagate a failure
// (the public SendAck) should inspect the returned error; ingress call
// sites treat it as best-effort and only log.
func (e *Engine) enqueueAckLocked(dest mac.Addr, ackSequence uint32, status uint8) error {
	hdr := wire.Header{
		Hops:      0,
		TTL:       e.cfg.MaxTTL,
		Sequence:  e.nextSequence(),
		SourceMAC: e.cfg.OwnMAC,
		DestMAC:   dest,
	}
	frame, err := wire.EncodeAck(hdr, wire.Ack{AckSequence: ackSequence, Status: status})
	if err != nil {
		e.log.Warn("encode ack", "error", err)
		return err
	}
	if err := e.queue.Enqueue(frame); err != nil {
		e.log.Warn("enqueue ack: send queue full, dropping", "error", err)
		return err
	}
	return nil
}

// logPathForEntry resolves a pending-ACK entry's LogKind/LogKey to the
// on-disk log path it should update on final give-up or ACK receipt.
func logPathForEntry(ctxPath string, entry pendingack.Entry) string {
	if entry.LogKind == pendingack.LogChannel {
		return filepath.Join(ctxPath, "channels", entry.LogKey, "messages.bin")
	}
	return filepath.Join(ctxPath, "devices", entry.LogKey, "messages.bin")
}
