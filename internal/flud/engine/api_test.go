package engine

import (
	"testing"
	"time"

	flooderrors "github.com/fludmesh/flud/internal/errors"
	"github.com/fludmesh/flud/internal/flud/wire"
)

func TestStartStopLifecycle(t *testing.T) {
	own := mustMAC("AA:BB:CC:DD:EE:01")
	e, radio, _ := newTestEngine(t.TempDir(), own)

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.Start(); err == nil {
		t.Fatal("expected error starting an already-running engine")
	}

	deadline := time.After(time.Second)
	for len(radio.sentFrames()) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for start-up hello to be sent")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if err := e.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := e.Stop(); err == nil {
		t.Fatal("expected error stopping an already-stopped engine")
	}
}

func TestDeinitReleasesRadio(t *testing.T) {
	own := mustMAC("AA:BB:CC:DD:EE:01")
	e, radio, _ := newTestEngine(t.TempDir(), own)
	if err := e.Deinit(); err != nil {
		t.Fatalf("Deinit: %v", err)
	}
	if !radio.deinited {
		t.Fatal("expected radio.Deinit to be called")
	}
}

func TestSendChannelMessageRejectsInvalidChannelName(t *testing.T) {
	own := mustMAC("AA:BB:CC:DD:EE:01")
	e, _, _ := newTestEngine(t.TempDir(), own)
	if _, err := e.SendChannelMessage("bad/name", []byte("hi"), 0, 0); err == nil {
		t.Fatal("expected error for an invalid channel name")
	}
}

func TestSendPrivateMessageRejectsOversizedPayload(t *testing.T) {
	own := mustMAC("AA:BB:CC:DD:EE:01")
	peer := mustMAC("AA:BB:CC:DD:EE:02")
	e, _, _ := newTestEngine(t.TempDir(), own)
	big := make([]byte, wire.MaxPayload+1)
	if _, err := e.SendPrivateMessage(peer, big, 0); err == nil {
		t.Fatal("expected error for an oversized payload")
	}
}

func TestAddDeviceRemoveDeviceEnumDevices(t *testing.T) {
	own := mustMAC("AA:BB:CC:DD:EE:01")
	peer := mustMAC("AA:BB:CC:DD:EE:02")
	e, _, _ := newTestEngine(t.TempDir(), own)

	if err := e.AddDevice(peer, "peer-b", 1, 2); err != nil {
		t.Fatalf("AddDevice: %v", err)
	}
	infos, err := e.EnumDevices()
	if err != nil {
		t.Fatalf("EnumDevices: %v", err)
	}
	if len(infos) != 1 || infos[0].Persistent.Name != "peer-b" {
		t.Fatalf("unexpected device listing: %+v", infos)
	}

	if err := e.RemoveDevice(peer); err != nil {
		t.Fatalf("RemoveDevice: %v", err)
	}
	infos, err = e.EnumDevices()
	if err != nil {
		t.Fatalf("EnumDevices: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("expected no devices after removal, got %+v", infos)
	}
}

func TestAddChannelRemoveChannelEnumChannels(t *testing.T) {
	own := mustMAC("AA:BB:CC:DD:EE:01")
	e, _, _ := newTestEngine(t.TempDir(), own)

	if err := e.AddChannel("lobby"); err != nil {
		t.Fatalf("AddChannel: %v", err)
	}
	infos, err := e.EnumChannels()
	if err != nil {
		t.Fatalf("EnumChannels: %v", err)
	}
	if len(infos) != 1 || infos[0].Persistent.Name != "lobby" {
		t.Fatalf("unexpected channel listing: %+v", infos)
	}

	if err := e.RemoveChannel("lobby"); err != nil {
		t.Fatalf("RemoveChannel: %v", err)
	}
	infos, err = e.EnumChannels()
	if err != nil {
		t.Fatalf("EnumChannels: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("expected no channels after removal, got %+v", infos)
	}
}

func TestUpdatePeerMessageStatusOutOfRangeIsNotFound(t *testing.T) {
	own := mustMAC("AA:BB:CC:DD:EE:01")
	peer := mustMAC("AA:BB:CC:DD:EE:02")
	e, _, _ := newTestEngine(t.TempDir(), own)

	err := e.UpdatePeerMessageStatus(peer, 0, wire.AckSuccess)
	if !flooderrors.IsNotFound(err) {
		t.Fatalf("expected NotFoundError for an out-of-range index, got %v", err)
	}
}

func TestUpdatePeerMessageStatusFiresCallback(t *testing.T) {
	own := mustMAC("AA:BB:CC:DD:EE:01")
	peer := mustMAC("AA:BB:CC:DD:EE:02")
	e, _, _ := newTestEngine(t.TempDir(), own)

	index, err := e.SendPrivateMessage(peer, []byte("hi"), 0)
	if err != nil {
		t.Fatalf("SendPrivateMessage: %v", err)
	}

	var got StatusChangeEvent
	e.OnStatusChange(func(ev StatusChangeEvent) { got = ev })

	if err := e.UpdatePeerMessageStatus(peer, index, wire.AckSuccess); err != nil {
		t.Fatalf("UpdatePeerMessageStatus: %v", err)
	}
	if got.Index != index || got.Status != wire.AckSuccess {
		t.Fatalf("expected status-change callback to fire, got %+v", got)
	}
}

func TestClearPeerChatRemovesMessages(t *testing.T) {
	own := mustMAC("AA:BB:CC:DD:EE:01")
	peer := mustMAC("AA:BB:CC:DD:EE:02")
	e, _, _ := newTestEngine(t.TempDir(), own)

	if _, err := e.SendPrivateMessage(peer, []byte("hi"), 0); err != nil {
		t.Fatalf("SendPrivateMessage: %v", err)
	}
	if err := e.ClearPeerChat(peer); err != nil {
		t.Fatalf("ClearPeerChat: %v", err)
	}
	n, err := e.GetPeerMessageCount(peer)
	if err != nil {
		t.Fatalf("GetPeerMessageCount: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected empty log after clear, got %d", n)
	}
}

func TestMarkPeerReadZeroesUnreadCounter(t *testing.T) {
	own := mustMAC("AA:BB:CC:DD:EE:01")
	peer := mustMAC("AA:BB:CC:DD:EE:02")
	e, _, _ := newTestEngine(t.TempDir(), own)

	hdr := wire.Header{Sequence: 1, SourceMAC: peer, DestMAC: own, TTL: 4}
	frame, err := wire.EncodePrivate(hdr, wire.Private{Payload: []byte("x")})
	if err != nil {
		t.Fatalf("EncodePrivate: %v", err)
	}
	e.handleReceive(frame, peer, -50)

	v, ok := e.peers.Get(peer)
	if !ok || v.UnreadMessages == 0 {
		t.Fatalf("expected unread count to be incremented, got %+v", v)
	}

	if err := e.MarkPeerRead(peer); err != nil {
		t.Fatalf("MarkPeerRead: %v", err)
	}
	v, _ = e.peers.Get(peer)
	if v.UnreadMessages != 0 {
		t.Fatalf("expected unread count to be cleared, got %d", v.UnreadMessages)
	}
}

func TestMarkPeerReadUnknownPeerIsNotFound(t *testing.T) {
	own := mustMAC("AA:BB:CC:DD:EE:01")
	peer := mustMAC("AA:BB:CC:DD:EE:02")
	e, _, _ := newTestEngine(t.TempDir(), own)
	if err := e.MarkPeerRead(peer); !flooderrors.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestSendAckEncodesAndEnqueues(t *testing.T) {
	own := mustMAC("AA:BB:CC:DD:EE:01")
	peer := mustMAC("AA:BB:CC:DD:EE:02")
	e, _, _ := newTestEngine(t.TempDir(), own)

	if err := e.SendAck(peer, 42, wire.AckSuccess); err != nil {
		t.Fatalf("SendAck: %v", err)
	}
	frame := drainFrame(t, e)
	hdr, err := wire.DecodeHeader(frame)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if hdr.Type != wire.TypeAck || hdr.DestMAC != peer {
		t.Fatalf("unexpected ack header: %+v", hdr)
	}
}
