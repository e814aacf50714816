package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
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

	level := slog.LevelInfo
	switch cfg.logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})).With("component", "blob-sidecar")

	uploader, err := newBlobUploader(cfg.containerURL)
	if err != nil {
		log.Error("failed to initialize blob uploader", "error", err)
		os.Exit(1)
	}

	upload := func(relPath string, offset int64, records []byte) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := uploader.upload(ctx, cfg.containerURL, relPath, offset, records); err != nil {
			return err
		}
		log.Info("uploaded records", "file", relPath, "offset", offset, "bytes", len(records))
		return nil
	}

	watcher, err := newLogWatcher(cfg.contextPath, upload, log)
	if err != nil {
		log.Error("failed to start log watcher", "error", err)
		os.Exit(1)
	}
	watcher.scanAll()
	go watcher.run()

	log.Info("blob-sidecar started", "context", cfg.contextPath, "container", cfg.containerURL, "version", version)

	ticker := time.NewTicker(time.Duration(cfg.pollIntervalSec) * time.Second)
	defer ticker.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		select {
		case <-ticker.C:
			watcher.scanAll()
		case <-ctx.Done():
			log.Info("shutdown signal received")
			if err := watcher.close(); err != nil {
				log.Error("watcher close error", "error", err)
			}
			log.Info("blob-sidecar stopped cleanly")
			return
		}
	}
}
