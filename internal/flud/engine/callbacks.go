package engine

import (
	"sync"

	"github.com/fludmesh/flud/internal/flud/mac"
	"github.com/fludmesh/flud/internal/flud/pendingack"
	"github.com/fludmesh/flud/internal/flud/wire"
)

// EventType identifies one of the five notification kinds spec §4.9 lists
// for callback registration. Grounded on the teacher's hooks.EventType, but
// trimmed to in-process Go function handlers: the teacher's external
// script/webhook/stdio hook plugins have no counterpart here.
type EventType string

const (
	EventMessageReceived EventType = "message_received"
	EventStatusChange    EventType = "status_change"
	EventDeviceAdded     EventType = "device_added"
	EventPacketSent      EventType = "packet_sent"
	EventPacketReceived  EventType = "packet_received"
)

// MessageReceivedEvent reports an inbound MESSAGE or PRIVATE frame consumed
// locally. Channel is empty for a PRIVATE delivery.
type MessageReceivedEvent struct {
	SourceMAC mac.Addr
	Channel   string
	Sequence  uint32
	Payload   []byte
}

// StatusChangeEvent reports a message log record transitioning to a new
// status, whether from a matching ACK, a pending-ACK give-up, or a direct
// Update*MessageStatus call.
type StatusChangeEvent struct {
	LogKind pendingack.LogKind
	LogKey  string
	Index   uint32
	Status  uint8
}

// DeviceAddedEvent reports a peer observed for the first time, or whose
// persistent fields changed, via a HELLO.
type DeviceAddedEvent struct {
	MAC  mac.Addr
	Name string
}

// PacketEvent reports a frame handed to the radio (sent) or accepted past
// dedup (received).
type PacketEvent struct {
	Type     wire.Type
	Sequence uint32
	Peer     mac.Addr
}

type (
	MessageReceivedHandler func(MessageReceivedEvent)
	StatusChangeHandler    func(StatusChangeEvent)
	DeviceAddedHandler     func(DeviceAddedEvent)
	PacketHandler          func(PacketEvent)
)

// Callbacks holds one handler slice per event type, all guarded by a
// single RWMutex. Grounded on the teacher's hooks.HookManager: each
// trigger method snapshots its handler slice under the read lock, then
// invokes outside it, so a handler registering another handler cannot
// deadlock.
type Callbacks struct {
	mu sync.RWMutex

	messageReceived []MessageReceivedHandler
	statusChange    []StatusChangeHandler
	deviceAdded     []DeviceAddedHandler
	packetSent      []PacketHandler
	packetReceived  []PacketHandler
}

// OnMessageReceived registers a handler invoked for each locally-consumed
// MESSAGE or PRIVATE frame.
func (c *Callbacks) OnMessageReceived(h MessageReceivedHandler) {
	c.mu.Lock()
	c.messageReceived = append(c.messageReceived, h)
	c.mu.Unlock()
}

// OnStatusChange registers a handler invoked whenever a log record's status
// changes: DELIVERED or DELIVERY_FAILED from the ACK paths, or whatever
// status an Update*MessageStatus call writes.
func (c *Callbacks) OnStatusChange(h StatusChangeHandler) {
	c.mu.Lock()
	c.statusChange = append(c.statusChange, h)
	c.mu.Unlock()
}

// OnDeviceAdded registers a handler invoked when a peer is first observed
// or its persistent fields are updated.
func (c *Callbacks) OnDeviceAdded(h DeviceAddedHandler) {
	c.mu.Lock()
	c.deviceAdded = append(c.deviceAdded, h)
	c.mu.Unlock()
}

// OnPacketSent registers a handler invoked whenever the engine loop hands a
// frame to the radio.
func (c *Callbacks) OnPacketSent(h PacketHandler) {
	c.mu.Lock()
	c.packetSent = append(c.packetSent, h)
	c.mu.Unlock()
}

// OnPacketReceived registers a handler invoked for every frame accepted
// past duplicate suppression, regardless of type or ultimate disposition.
func (c *Callbacks) OnPacketReceived(h PacketHandler) {
	c.mu.Lock()
	c.packetReceived = append(c.packetReceived, h)
	c.mu.Unlock()
}

func (c *Callbacks) triggerMessageReceived(e MessageReceivedEvent) {
	c.mu.RLock()
	handlers := append([]MessageReceivedHandler(nil), c.messageReceived...)
	c.mu.RUnlock()
	for _, h := range handlers {
		h(e)
	}
}

func (c *Callbacks) triggerStatusChange(e StatusChangeEvent) {
	c.mu.RLock()
	handlers := append([]StatusChangeHandler(nil), c.statusChange...)
	c.mu.RUnlock()
	for _, h := range handlers {
		h(e)
	}
}

func (c *Callbacks) triggerDeviceAdded(e DeviceAddedEvent) {
	c.mu.RLock()
	handlers := append([]DeviceAddedHandler(nil), c.deviceAdded...)
	c.mu.RUnlock()
	for _, h := range handlers {
		h(e)
	}
}

func (c *Callbacks) triggerPacketSent(e PacketEvent) {
	c.mu.RLock()
	handlers := append([]PacketHandler(nil), c.packetSent...)
	c.mu.RUnlock()
	for _, h := range handlers {
		h(e)
	}
}

func (c *Callbacks) triggerPacketReceived(e PacketEvent) {
	c.mu.RLock()
	handlers := append([]PacketHandler(nil), c.packetReceived...)
	c.mu.RUnlock()
	for _, h := range handlers {
		h(e)
	}
}
