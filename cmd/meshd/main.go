package main

import (
	"context"
	cryptorand "crypto/rand"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fludmesh/flud/internal/flud/engine"
	"github.com/fludmesh/flud/internal/flud/mac"
	"github.com/fludmesh/flud/internal/logger"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if cfg.showVersion {
		fmt.Println(version)
		return
	}

	logger.Init()
	if err := logger.SetLevel(cfg.logLevel); err != nil {
		fmt.Printf("Warning: invalid log level %q, using default\n", cfg.logLevel)
	}
	log := logger.Logger().With("component", "cli")

	ownMAC, err := resolveOwnMAC(cfg.ownMAC)
	if err != nil {
		log.Error("failed to resolve own MAC", "error", err)
		os.Exit(1)
	}

	// The radio and the engine have a circular construction dependency:
	// the radio needs a receive callback before it can start reading, and
	// the callback it needs is a method on the engine. Resolved here with
	// one layer of indirection rather than inside the engine package.
	var eng *engine.Engine
	dispatch := func(frame []byte, src mac.Addr, rssi int8) {
		if eng != nil {
			eng.HandleReceive(frame, src, rssi)
		}
	}

	radio, err := newUDPRadio(cfg.multicastAddr, cfg.iface, dispatch, log.With("component", "radio"))
	if err != nil {
		log.Error("failed to start radio", "error", err)
		os.Exit(1)
	}

	eng, err = engine.New(engine.Config{
		Name:                 cfg.name,
		ContextPath:          cfg.contextPath,
		OwnMAC:               ownMAC,
		Channel:              cfg.channel,
		MaxTTL:               uint8(cfg.maxTTL),
		HelloIntervalSeconds: cfg.helloInterval,
	}, radio, newSystemClock(), cryptoRandSource{})
	if err != nil {
		log.Error("failed to initialize engine", "error", err)
		radio.Deinit()
		os.Exit(1)
	}

	for _, ch := range cfg.joinChannels {
		if err := eng.AddChannel(ch); err != nil {
			log.Error("failed to subscribe to channel", "channel", ch, "error", err)
		}
	}

	if err := eng.Start(); err != nil {
		log.Error("failed to start engine", "error", err)
		os.Exit(1)
	}
	log.Info("meshd started", "mac", ownMAC.String(), "channel", cfg.channel, "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		if err := eng.Deinit(); err != nil {
			log.Error("engine deinit error", "error", err)
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("meshd stopped cleanly")
	case <-shutdownCtx.Done():
		log.Error("forced exit after timeout")
	}
}

// resolveOwnMAC parses the -mac flag when given, or generates a random
// locally-administered unicast address when omitted, following the spec's
// allowance that a node's hardware address may be software-assigned on
// transports (like this UDP stand-in) with no burned-in address.
func resolveOwnMAC(flagValue string) (mac.Addr, error) {
	if flagValue != "" {
		return mac.Parse(flagValue)
	}
	var addr mac.Addr
	if _, err := cryptorand.Read(addr[:]); err != nil {
		return mac.Addr{}, err
	}
	// Set the locally-administered bit and clear the multicast bit, per
	// the standard convention for software-generated MAC addresses.
	addr[0] = (addr[0] | 0x02) & 0xFE
	return addr, nil
}
