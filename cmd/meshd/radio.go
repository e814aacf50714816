package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/fludmesh/flud/internal/flud/ports"
	"github.com/fludmesh/flud/internal/flud/wire"
)

// udpRadio implements ports.Radio over a UDP multicast group: the
// loopback-friendly stand-in for the real LoRa/ESP-NOW radio this spec
// targets. Grounded on the teacher's bare net.Listener/net.Conn transport
// (internal/rtmp/server/server.go's acceptLoop): one goroutine owns the
// socket's read side and pushes every datagram to a receive callback,
// exactly as the teacher's acceptLoop pushes accepted connections onward.
//
// RSSI has no meaning on a wired/loopback multicast group. udpRadio reports
// a fixed, clearly-synthetic value for every received frame; a real radio
// driver would read this from hardware instead.
type udpRadio struct {
	conn    *net.UDPConn
	group   *net.UDPAddr
	log     *slog.Logger
	onFrame ports.ReceiveFunc

	synthRSSI int8
}

// newUDPRadio joins groupAddr (a UDP "ip:port" multicast address) on
// ifaceName (system default if empty) and begins reading datagrams in the
// background, dispatching each to onFrame. onFrame must be non-nil and is
// expected to be cheap or internally asynchronous, since it is called from
// this radio's own read loop per spec §6's ReceiveFunc contract.
func newUDPRadio(groupAddr, ifaceName string, onFrame ports.ReceiveFunc, log *slog.Logger) (*udpRadio, error) {
	if onFrame == nil {
		return nil, fmt.Errorf("meshd: receive callback must not be nil")
	}
	group, err := net.ResolveUDPAddr("udp", groupAddr)
	if err != nil {
		return nil, fmt.Errorf("meshd: resolve multicast addr: %w", err)
	}

	var iface *net.Interface
	if ifaceName != "" {
		iface, err = net.InterfaceByName(ifaceName)
		if err != nil {
			return nil, fmt.Errorf("meshd: interface %q: %w", ifaceName, err)
		}
	}

	conn, err := net.ListenMulticastUDP("udp", iface, group)
	if err != nil {
		return nil, fmt.Errorf("meshd: listen multicast: %w", err)
	}
	conn.SetReadBuffer(wire.MTU * 64)

	r := &udpRadio{conn: conn, group: group, log: log, onFrame: onFrame, synthRSSI: -55}
	go r.readLoop()
	return r, nil
}

func (r *udpRadio) readLoop() {
	buf := make([]byte, wire.MTU)
	for {
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if r.log != nil {
				r.log.Debug("multicast read loop exiting", "error", err)
			}
			return
		}
		frame := append([]byte(nil), buf[:n]...)
		h, err := wire.DecodeHeader(frame)
		if err != nil {
			continue
		}
		r.onFrame(frame, h.SourceMAC, r.synthRSSI)
	}
}

// SendBroadcast writes frame to the multicast group. ctx is honored only to
// the extent UDP writes can block (in practice, never, for a local
// multicast socket); it exists to satisfy ports.Radio uniformly with a
// hypothetical radio transport that can block on air time.
func (r *udpRadio) SendBroadcast(ctx context.Context, frame []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	_, err := r.conn.WriteToUDP(frame, r.group)
	return err
}

// AddBroadcastPeer is a no-op for UDP multicast: group membership was
// already established in newUDPRadio, and channel is not otherwise
// meaningful over IP. Radios with a real RF channel concept (LoRa,
// ESP-NOW) would switch/tune hardware here.
func (r *udpRadio) AddBroadcastPeer(channel int) error {
	_ = channel
	return nil
}

// Deinit closes the multicast socket, ending the read loop.
func (r *udpRadio) Deinit() error {
	return r.conn.Close()
}
