package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// recordSize is the message log's fixed record width (C3's Record layout:
// a 256-byte append-only slot, indexed by offset/recordSize). The sidecar
// never parses record fields; it only needs whole-record boundaries so a
// torn write in progress is never shipped as a partial record.
const recordSize = 256

// logWatcher tails every devices/*/messages.bin and channels/*/messages.bin
// file under a context root, uploading whole records appended since the
// last-seen offset. Grounded on the teacher's acceptLoop: one goroutine
// owns an fsnotify.Watcher and dispatches each event to a handler, the same
// shape as the teacher's net.Listener accept loop dispatching connections.
type logWatcher struct {
	root   string
	upload func(relPath string, offset int64, records []byte) error
	log    *slog.Logger

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	offsets map[string]int64 // relative path -> next unshipped byte offset
}

func newLogWatcher(root string, upload func(relPath string, offset int64, records []byte) error, log *slog.Logger) (*logWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("blob-sidecar: new fsnotify watcher: %w", err)
	}
	w := &logWatcher{root: root, upload: upload, log: log, fsw: fsw, offsets: make(map[string]int64)}
	if err := w.watchExistingDirs(); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// watchExistingDirs adds every devices/<mac> and channels/<name> directory
// already on disk to the watch list. New peer/channel directories created
// after start-up are picked up by watching the two parent directories too
// and adding children as Create events for them arrive.
func (w *logWatcher) watchExistingDirs() error {
	for _, parent := range []string{"devices", "channels"} {
		dir := filepath.Join(w.root, parent)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("blob-sidecar: mkdir %s: %w", dir, err)
		}
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("blob-sidecar: watch %s: %w", dir, err)
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("blob-sidecar: read %s: %w", dir, err)
		}
		for _, ent := range entries {
			if ent.IsDir() {
				if err := w.fsw.Add(filepath.Join(dir, ent.Name())); err != nil {
					w.log.Warn("watch child dir failed", "dir", ent.Name(), "error", err)
				}
			}
		}
	}
	return nil
}

// run processes fsnotify events until ctx-equivalent shutdown: the caller
// closes fsw (via Close) to unblock this loop, following the teacher's
// pattern of a channel-close driven read loop exit.
func (w *logWatcher) run() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("fsnotify error", "error", err)
		}
	}
}

func (w *logWatcher) handleEvent(ev fsnotify.Event) {
	info, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if ev.Has(fsnotify.Create) {
			if err := w.fsw.Add(ev.Name); err != nil {
				w.log.Warn("watch new dir failed", "dir", ev.Name, "error", err)
			}
		}
		return
	}
	if filepath.Base(ev.Name) != "messages.bin" {
		return
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	if err := w.shipNewRecords(ev.Name); err != nil {
		w.log.Warn("ship records failed", "file", ev.Name, "error", err)
	}
}

// scanAll is the poll-interval fallback: it walks every watched file and
// ships any records appended since the last pass, covering writes that
// land between fsnotify's inherently best-effort delivery guarantees.
func (w *logWatcher) scanAll() {
	for _, parent := range []string{"devices", "channels"} {
		dir := filepath.Join(w.root, parent)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, ent := range entries {
			if !ent.IsDir() {
				continue
			}
			path := filepath.Join(dir, ent.Name(), "messages.bin")
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if err := w.shipNewRecords(path); err != nil {
				w.log.Warn("ship records failed", "file", path, "error", err)
			}
		}
	}
}

func (w *logWatcher) shipNewRecords(path string) error {
	relPath, err := filepath.Rel(w.root, path)
	if err != nil {
		relPath = path
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	w.mu.Lock()
	from := w.offsets[relPath]
	w.mu.Unlock()

	wholeRecordsEnd := (info.Size() / recordSize) * recordSize
	if wholeRecordsEnd <= from {
		return nil
	}

	buf := make([]byte, wholeRecordsEnd-from)
	if _, err := f.ReadAt(buf, from); err != nil {
		return err
	}

	if err := w.upload(relPath, from, buf); err != nil {
		return err
	}

	w.mu.Lock()
	w.offsets[relPath] = wholeRecordsEnd
	w.mu.Unlock()
	return nil
}

func (w *logWatcher) close() error {
	return w.fsw.Close()
}
