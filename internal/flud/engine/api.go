package engine

import (
	"context"
	stdErrors "errors"
	"fmt"
	"os"

	flooderrors "github.com/fludmesh/flud/internal/errors"
	"github.com/fludmesh/flud/internal/flud/directory"
	"github.com/fludmesh/flud/internal/flud/mac"
	"github.com/fludmesh/flud/internal/flud/msglog"
	"github.com/fludmesh/flud/internal/flud/pendingack"
	"github.com/fludmesh/flud/internal/flud/wire"
)

// Start spawns the engine task (C7) and emits the spec's start-up
// immediate HELLO. Calling Start twice without an intervening Stop
// returns InvalidStateError.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return flooderrors.NewInvalidStateError("engine.start", fmt.Errorf("already running"))
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.running = true
	e.mu.Unlock()

	e.wg.Add(1)
	go e.run()

	if err := e.SendHello(); err != nil {
		e.log.Warn("start-up hello", "error", err)
	}
	return nil
}

// Stop signals the engine task and waits for it to exit. Per spec §5, the
// pending-ACK list is abandoned, not drained: outstanding entries simply
// stop being swept and keep whatever log status they last had.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return flooderrors.NewInvalidStateError("engine.stop", fmt.Errorf("not running"))
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	cancel()
	e.wg.Wait()
	return nil
}

// Deinit stops the engine task if running and releases the radio.
func (e *Engine) Deinit() error {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()
	if running {
		if err := e.Stop(); err != nil {
			return err
		}
	}
	if err := e.radio.Deinit(); err != nil {
		return flooderrors.NewIOError("engine.deinit", err)
	}
	return nil
}

// HandleReceive is the exported form of the ingress handler, wired as the
// radio driver's ports.ReceiveFunc. Radio constructors generally need this
// callback before an *Engine exists (a radio opens its socket before the
// engine that will own it is built), so callers typically wire it through
// one layer of indirection (a settable function variable or a small
// adapter struct) rather than a direct method value at construction time.
func (e *Engine) HandleReceive(frame []byte, src mac.Addr, rssi int8) {
	e.handleReceive(frame, src, rssi)
}

// SendHello builds and enqueues a HELLO with ACK_REQUIRED, advertising
// this node's name, role, and capabilities. BatteryLevel is left at 0: the
// battery sensor is an external collaborator outside this core's scope
// (spec §1), so the engine has no reading to embed.
func (e *Engine) SendHello() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	hdr := wire.Header{
		Flags:     wire.FlagAckRequired,
		TTL:       e.cfg.MaxTTL,
		Sequence:  e.nextSequence(),
		SourceMAC: e.cfg.OwnMAC,
		DestMAC:   mac.Broadcast,
	}
	frame, err := wire.EncodeHello(hdr, wire.Hello{DeviceName: e.cfg.Name, Role: e.cfg.Role, Capabilities: e.cfg.Capabilities})
	if err != nil {
		return flooderrors.NewInvalidSizeError("engine.send_hello", err)
	}
	if err := e.queue.Enqueue(frame); err != nil {
		return flooderrors.NewNoMemoryError("engine.send_hello", err)
	}
	return nil
}

// SendPrivateMessage encodes a PRIVATE frame with ACK_REQUIRED (plus any
// caller-supplied flags), appends it to dest's log with status=SENT to
// obtain a message id, embeds that id in the frame, and enqueues it. It
// returns the assigned message id (log index).
func (e *Engine) SendPrivateMessage(dest mac.Addr, payload []byte, flags wire.Flags) (uint32, error) {
	if len(payload) > wire.MaxPayload {
		return 0, flooderrors.NewInvalidSizeError("engine.send_private_message",
			fmt.Errorf("payload %d exceeds max %d", len(payload), wire.MaxPayload))
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	seq := e.nextSequence()
	now := e.clock.NowMillis()
	rec := msglog.Record{SenderMAC: e.cfg.OwnMAC, Sequence: seq, Timestamp: now, Status: msglog.StatusSent, Payload: payload}
	index, err := msglog.Append(peerLogPath(e.cfg.ContextPath, dest), rec)
	if err != nil {
		return 0, flooderrors.NewIOError("engine.send_private_message", err)
	}

	hdr := wire.Header{
		Flags:     wire.FlagAckRequired | flags,
		TTL:       e.cfg.MaxTTL,
		Sequence:  seq,
		SourceMAC: e.cfg.OwnMAC,
		DestMAC:   dest,
	}
	frame, err := wire.EncodePrivate(hdr, wire.Private{MessageID: index, Payload: payload})
	if err != nil {
		return index, flooderrors.NewInvalidSizeError("engine.send_private_message", err)
	}
	if err := e.queue.Enqueue(frame); err != nil {
		return index, flooderrors.NewNoMemoryError("engine.send_private_message", err)
	}
	return index, nil
}

// SendChannelMessage encodes a channel-scoped MESSAGE frame with
// ACK_REQUIRED (plus any caller-supplied flags), appends it to the
// channel's log with status=SENT to obtain a message id, embeds that id in
// the frame, and enqueues it.
func (e *Engine) SendChannelMessage(channel string, payload []byte, contentType uint8, flags wire.Flags) (uint32, error) {
	if err := directory.ValidateChannelName(channel); err != nil {
		return 0, err
	}
	if len(payload) > wire.MaxPayload {
		return 0, flooderrors.NewInvalidSizeError("engine.send_channel_message",
			fmt.Errorf("payload %d exceeds max %d", len(payload), wire.MaxPayload))
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	seq := e.nextSequence()
	now := e.clock.NowMillis()
	rec := msglog.Record{SenderMAC: e.cfg.OwnMAC, Sequence: seq, Timestamp: now, Status: msglog.StatusSent, MessageType: contentType, Payload: payload}
	index, err := msglog.Append(channelLogPath(e.cfg.ContextPath, channel), rec)
	if err != nil {
		return 0, flooderrors.NewIOError("engine.send_channel_message", err)
	}

	hdr := wire.Header{
		Flags:     wire.FlagAckRequired | flags,
		TTL:       e.cfg.MaxTTL,
		Sequence:  seq,
		SourceMAC: e.cfg.OwnMAC,
		DestMAC:   mac.Broadcast,
	}
	frame, err := wire.EncodeChannelMessage(hdr, wire.ChannelMessage{MessageID: index, ChannelName: channel, ContentType: contentType, Payload: payload})
	if err != nil {
		return index, flooderrors.NewInvalidSizeError("engine.send_channel_message", err)
	}
	if err := e.queue.Enqueue(frame); err != nil {
		return index, flooderrors.NewNoMemoryError("engine.send_channel_message", err)
	}
	return index, nil
}

// SendAck encodes and enqueues an ACK frame (no ACK_REQUIRED) addressed to
// dest, quoting ackSequence and status.
func (e *Engine) SendAck(dest mac.Addr, ackSequence uint32, status uint8) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enqueueAckLocked(dest, ackSequence, status)
}

// AddDevice writes (or overwrites) a peer's persistent metadata.
func (e *Engine) AddDevice(addr mac.Addr, name string, role, capabilities uint8) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return directory.WritePeerMeta(e.cfg.ContextPath, directory.PeerPersistent{MAC: addr, Name: name, Role: role, Capabilities: capabilities})
}

// RemoveDevice deletes a peer's persistent metadata and volatile row.
func (e *Engine) RemoveDevice(addr mac.Addr) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := directory.RemovePeerMeta(e.cfg.ContextPath, addr); err != nil {
		return err
	}
	e.peers.Remove(addr)
	return nil
}

// PeerInfo pairs a peer's persistent record with its current volatile row.
type PeerInfo struct {
	Persistent directory.PeerPersistent
	Volatile   directory.PeerVolatile
}

// EnumDevices lists every known peer, joining persistent and volatile state.
func (e *Engine) EnumDevices() ([]PeerInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []PeerInfo
	err := directory.EnumeratePeers(e.cfg.ContextPath, func(p directory.PeerPersistent) bool {
		v, ok := e.peers.Get(p.MAC)
		if !ok {
			v = directory.PeerVolatile{MAC: p.MAC}
		}
		out = append(out, PeerInfo{Persistent: p, Volatile: v})
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AddChannel writes (or overwrites) a channel's persistent metadata.
func (e *Engine) AddChannel(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return directory.WriteChannelMeta(e.cfg.ContextPath, directory.ChannelPersistent{Name: name})
}

// RemoveChannel deletes a channel's persistent metadata and volatile row.
func (e *Engine) RemoveChannel(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := directory.RemoveChannelMeta(e.cfg.ContextPath, name); err != nil {
		return err
	}
	e.channels.Remove(name)
	return nil
}

// ChannelInfo pairs a channel's persistent record with its current
// volatile row.
type ChannelInfo struct {
	Persistent directory.ChannelPersistent
	Volatile   directory.ChannelVolatile
}

// EnumChannels lists every known channel, joining persistent and volatile state.
func (e *Engine) EnumChannels() ([]ChannelInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []ChannelInfo
	err := directory.EnumerateChannels(e.cfg.ContextPath, func(c directory.ChannelPersistent) bool {
		v := e.channels.Get(c.Name)
		out = append(out, ChannelInfo{Persistent: c, Volatile: v})
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetPeerMessageCount returns the number of records stored in a peer's log.
func (e *Engine) GetPeerMessageCount(addr mac.Addr) (uint32, error) {
	n, err := msglog.Count(peerLogPath(e.cfg.ContextPath, addr))
	if err != nil {
		return 0, flooderrors.NewIOError("engine.get_message_count", err)
	}
	return n, nil
}

// GetChannelMessageCount returns the number of records stored in a channel's log.
func (e *Engine) GetChannelMessageCount(name string) (uint32, error) {
	n, err := msglog.Count(channelLogPath(e.cfg.ContextPath, name))
	if err != nil {
		return 0, flooderrors.NewIOError("engine.get_message_count", err)
	}
	return n, nil
}

// LoadPeerMessages returns up to n records from a peer's log starting at index start.
func (e *Engine) LoadPeerMessages(addr mac.Addr, start, n uint32) ([]msglog.Record, error) {
	recs, err := msglog.LoadPage(peerLogPath(e.cfg.ContextPath, addr), start, n)
	if err != nil {
		return nil, flooderrors.NewIOError("engine.load_messages", err)
	}
	return recs, nil
}

// LoadChannelMessages returns up to n records from a channel's log starting at index start.
func (e *Engine) LoadChannelMessages(name string, start, n uint32) ([]msglog.Record, error) {
	recs, err := msglog.LoadPage(channelLogPath(e.cfg.ContextPath, name), start, n)
	if err != nil {
		return nil, flooderrors.NewIOError("engine.load_messages", err)
	}
	return recs, nil
}

// UpdatePeerMessageStatus overwrites the status byte of one record in a
// peer's log and fires the status-change callback.
func (e *Engine) UpdatePeerMessageStatus(addr mac.Addr, index uint32, status uint8) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := msglog.SetStatus(peerLogPath(e.cfg.ContextPath, addr), index, status); err != nil {
		return wrapMsglogErr("engine.update_message_status", err)
	}
	e.callbacks.triggerStatusChange(StatusChangeEvent{LogKey: hexMACPath(addr), Index: index, Status: status})
	return nil
}

// UpdateChannelMessageStatus overwrites the status byte of one record in a
// channel's log and fires the status-change callback.
func (e *Engine) UpdateChannelMessageStatus(name string, index uint32, status uint8) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := msglog.SetStatus(channelLogPath(e.cfg.ContextPath, name), index, status); err != nil {
		return wrapMsglogErr("engine.update_message_status", err)
	}
	e.callbacks.triggerStatusChange(StatusChangeEvent{LogKind: pendingack.LogChannel, LogKey: name, Index: index, Status: status})
	return nil
}

// ClearPeerChat deletes a peer's message log file. A missing file is success.
func (e *Engine) ClearPeerChat(addr mac.Addr) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := msglog.Clear(peerLogPath(e.cfg.ContextPath, addr)); err != nil {
		return flooderrors.NewIOError("engine.clear_chat", err)
	}
	return nil
}

// ClearChannelChat deletes a channel's message log file. A missing file is success.
func (e *Engine) ClearChannelChat(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := msglog.Clear(channelLogPath(e.cfg.ContextPath, name)); err != nil {
		return flooderrors.NewIOError("engine.clear_chat", err)
	}
	return nil
}

// MarkPeerRead zeroes a peer's unread-message counter.
func (e *Engine) MarkPeerRead(addr mac.Addr) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.peers.Get(addr)
	if !ok {
		return flooderrors.NewNotFoundError("engine.mark_read", nil)
	}
	v.UnreadMessages = 0
	e.peers.Update(v)
	return nil
}

// MarkChannelRead zeroes a channel's unread-message counter.
func (e *Engine) MarkChannelRead(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.channels.Get(name)
	v.UnreadMessages = 0
	e.channels.Update(v)
	return nil
}

// OnMessageReceived registers a handler for locally-consumed MESSAGE/PRIVATE frames.
func (e *Engine) OnMessageReceived(h MessageReceivedHandler) { e.callbacks.OnMessageReceived(h) }

// OnStatusChange registers a handler for message log status transitions.
func (e *Engine) OnStatusChange(h StatusChangeHandler) { e.callbacks.OnStatusChange(h) }

// OnDeviceAdded registers a handler for peer discovery/update via HELLO.
func (e *Engine) OnDeviceAdded(h DeviceAddedHandler) { e.callbacks.OnDeviceAdded(h) }

// OnPacketSent registers a handler invoked when a frame is handed to the radio.
func (e *Engine) OnPacketSent(h PacketHandler) { e.callbacks.OnPacketSent(h) }

// OnPacketReceived registers a handler invoked for every frame accepted past dedup.
func (e *Engine) OnPacketReceived(h PacketHandler) { e.callbacks.OnPacketReceived(h) }

// wrapMsglogErr classifies a msglog error as NotFound (out-of-range index)
// or IO (everything else), matching the taxonomy spec §7 requires.
func wrapMsglogErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if stdErrors.Is(err, os.ErrNotExist) {
		return flooderrors.NewNotFoundError(op, err)
	}
	return flooderrors.NewIOError(op, err)
}
