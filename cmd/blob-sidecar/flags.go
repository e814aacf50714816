package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
)

// version is injected at build time with -ldflags "-X main.version=...". Defaults to dev.
var version = "dev"

// cliConfig holds user-supplied flag values, following the same
// parseFlags/flag.ContinueOnError pattern the rest of this dependency
// surface's sibling binaries use.
type cliConfig struct {
	contextPath     string
	containerURL    string
	pollIntervalSec int
	logLevel        string
	showVersion     bool
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("blob-sidecar", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}
	fs.StringVar(&cfg.contextPath, "context", "meshd-data", "root directory containing devices/ and channels/ message logs")
	fs.StringVar(&cfg.containerURL, "container-url", "", "Azure Blob container URL, e.g. https://<account>.blob.core.windows.net/<container> (required unless -version)")
	fs.IntVar(&cfg.pollIntervalSec, "poll-interval", 30, "fallback poll period in seconds, in case an fsnotify event is missed")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	fs.BoolVar(&cfg.showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.showVersion {
		return cfg, nil
	}
	if cfg.contextPath == "" {
		return nil, errors.New("-context must not be empty")
	}
	if cfg.containerURL == "" {
		return nil, errors.New("-container-url is required")
	}
	switch cfg.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid -log-level %q", cfg.logLevel)
	}
	if cfg.pollIntervalSec < 1 {
		return nil, errors.New("-poll-interval must be at least 1 second")
	}
	return cfg, nil
}
