package engine

import "testing"

func TestCallbacksTriggerInvokesRegisteredHandlers(t *testing.T) {
	var cb Callbacks
	var got []MessageReceivedEvent
	cb.OnMessageReceived(func(e MessageReceivedEvent) { got = append(got, e) })
	cb.OnMessageReceived(func(e MessageReceivedEvent) { got = append(got, e) })

	cb.triggerMessageReceived(MessageReceivedEvent{Sequence: 5})

	if len(got) != 2 {
		t.Fatalf("expected 2 invocations, got %d", len(got))
	}
	if got[0].Sequence != 5 || got[1].Sequence != 5 {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestCallbacksTriggerWithNoHandlersIsNoop(t *testing.T) {
	var cb Callbacks
	cb.triggerDeviceAdded(DeviceAddedEvent{Name: "x"})
	cb.triggerStatusChange(StatusChangeEvent{})
	cb.triggerPacketSent(PacketEvent{})
	cb.triggerPacketReceived(PacketEvent{})
}

func TestCallbacksHandlerCanRegisterAnotherHandlerWithoutDeadlock(t *testing.T) {
	var cb Callbacks
	calls := 0
	cb.OnStatusChange(func(e StatusChangeEvent) {
		calls++
		cb.OnStatusChange(func(StatusChangeEvent) { calls++ })
	})
	cb.triggerStatusChange(StatusChangeEvent{})
	if calls != 1 {
		t.Fatalf("expected 1 call during first trigger, got %d", calls)
	}
	cb.triggerStatusChange(StatusChangeEvent{})
	if calls != 3 {
		t.Fatalf("expected 3 total calls after second trigger, got %d", calls)
	}
}

func TestCallbacksEachEventTypeIndependentlyDispatches(t *testing.T) {
	var cb Callbacks
	var deviceEvents []DeviceAddedEvent
	var packetSent, packetReceived []PacketEvent

	cb.OnDeviceAdded(func(e DeviceAddedEvent) { deviceEvents = append(deviceEvents, e) })
	cb.OnPacketSent(func(e PacketEvent) { packetSent = append(packetSent, e) })
	cb.OnPacketReceived(func(e PacketEvent) { packetReceived = append(packetReceived, e) })

	cb.triggerDeviceAdded(DeviceAddedEvent{Name: "peer-a"})
	cb.triggerPacketSent(PacketEvent{Sequence: 1})
	cb.triggerPacketReceived(PacketEvent{Sequence: 2})

	if len(deviceEvents) != 1 || len(packetSent) != 1 || len(packetReceived) != 1 {
		t.Fatalf("expected one event per type, got device=%d sent=%d received=%d",
			len(deviceEvents), len(packetSent), len(packetReceived))
	}
	if packetSent[0].Sequence != 1 || packetReceived[0].Sequence != 2 {
		t.Fatalf("events crossed wires: sent=%+v received=%+v", packetSent[0], packetReceived[0])
	}
}
