package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/fludmesh/flud/internal/flud/mac"
)

// version is injected at build time with -ldflags "-X main.version=...". Defaults to dev.
var version = "dev"

// cliConfig holds user-supplied flag values prior to translation into
// engine.Config, so main.go can validate and map.
type cliConfig struct {
	name          string
	contextPath   string
	ownMAC        string
	multicastAddr string
	iface         string
	channel       int
	maxTTL        int
	helloInterval int
	logLevel      string
	showVersion   bool
	joinChannels  []string
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("meshd", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}
	var joinChannels stringSliceFlag

	fs.StringVar(&cfg.name, "name", "", "this node's advertised device name (required)")
	fs.StringVar(&cfg.contextPath, "context", "meshd-data", "root directory for device/channel state")
	fs.StringVar(&cfg.ownMAC, "mac", "", "this node's hardware address; a random one is generated if omitted")
	fs.StringVar(&cfg.multicastAddr, "multicast-addr", "239.192.29.71:4242", "UDP multicast group:port standing in for the radio channel")
	fs.StringVar(&cfg.iface, "iface", "", "network interface to join the multicast group on (empty = system default)")
	fs.IntVar(&cfg.channel, "channel", 1, "radio channel, 0-14")
	fs.IntVar(&cfg.maxTTL, "max-ttl", 4, "hop budget for outbound frames, 1-9")
	fs.IntVar(&cfg.helloInterval, "hello-interval", 60, "beacon period in seconds, 10-3600")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	fs.BoolVar(&cfg.showVersion, "version", false, "print version and exit")
	fs.Var(&joinChannels, "join", "channel to subscribe to at start-up (can be specified multiple times)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.joinChannels = joinChannels

	if cfg.showVersion {
		return cfg, nil
	}
	if cfg.name == "" {
		return nil, errors.New("-name is required")
	}
	if cfg.ownMAC != "" {
		if _, err := mac.Parse(cfg.ownMAC); err != nil {
			return nil, fmt.Errorf("invalid -mac: %w", err)
		}
	}
	switch cfg.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid -log-level %q", cfg.logLevel)
	}
	for _, ch := range cfg.joinChannels {
		if ch == "" {
			return nil, errors.New("-join channel name must not be empty")
		}
	}
	return cfg, nil
}

// stringSliceFlag implements flag.Value for multiple string values.
type stringSliceFlag []string

func (s *stringSliceFlag) String() string { return strings.Join(*s, ", ") }

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, value)
	return nil
}
