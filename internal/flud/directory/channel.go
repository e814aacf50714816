package directory

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	flooderrors "github.com/fludmesh/flud/internal/errors"
)

// ChannelPersistent is the on-disk record for a known channel. Secret
// is reserved for future channel authentication and is always
// zero-filled by this implementation.
type ChannelPersistent struct {
	Name   string
	Secret [channelSecretWords * 4]byte
}

func (c ChannelPersistent) marshal() []byte {
	buf := make([]byte, channelPersistentSize)
	binary.NativeEndian.PutUint32(buf[0:4], Magic)
	buf[4] = PersistentVersion
	putFixedString(buf[5:5+channelNameFieldSize], c.Name)
	copy(buf[5+channelNameFieldSize:], c.Secret[:])
	return buf
}

func unmarshalChannelPersistent(buf []byte) (ChannelPersistent, error) {
	var c ChannelPersistent
	if len(buf) != channelPersistentSize {
		return c, fmt.Errorf("directory: channel record must be %d bytes, got %d", channelPersistentSize, len(buf))
	}
	if binary.NativeEndian.Uint32(buf[0:4]) != Magic || buf[4] != PersistentVersion {
		return c, errBadMagicOrVersion
	}
	c.Name = getFixedString(buf[5 : 5+channelNameFieldSize])
	copy(c.Secret[:], buf[5+channelNameFieldSize:])
	return c, nil
}

// ReadChannelMeta loads the persistent record for name. A missing file
// or a magic/version mismatch is reported as NotFoundError; the file
// itself is left untouched.
func ReadChannelMeta(ctxPath, name string) (ChannelPersistent, error) {
	path := channelMetaPath(ctxPath, name)
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ChannelPersistent{}, flooderrors.NewNotFoundError("directory.read_channel_meta", err)
		}
		return ChannelPersistent{}, flooderrors.NewIOError("directory.read_channel_meta", err)
	}
	c, err := unmarshalChannelPersistent(buf)
	if err != nil {
		return ChannelPersistent{}, flooderrors.NewNotFoundError("directory.read_channel_meta", err)
	}
	return c, nil
}

// WriteChannelMeta writes the persistent record for c, creating the
// channel directory if needed and truncating any existing file. c.Name
// is checked with ValidateChannelName first, so an invalid name never
// reaches the filesystem.
func WriteChannelMeta(ctxPath string, c ChannelPersistent) error {
	if err := ValidateChannelName(c.Name); err != nil {
		return err
	}
	dir := channelDir(ctxPath, c.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return flooderrors.NewIOError("directory.write_channel_meta", fmt.Errorf("mkdir: %w", err))
	}
	path := channelMetaPath(ctxPath, c.Name)
	if err := os.WriteFile(path, c.marshal(), 0o644); err != nil {
		return flooderrors.NewIOError("directory.write_channel_meta", err)
	}
	return nil
}

// RemoveChannelMeta unlinks the channel's meta.bin and then attempts
// to remove the now-possibly-empty channel directory, ignoring a
// directory-not-empty failure.
func RemoveChannelMeta(ctxPath, name string) error {
	path := channelMetaPath(ctxPath, name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return flooderrors.NewIOError("directory.remove_channel_meta", err)
	}
	_ = os.Remove(channelDir(ctxPath, name))
	return nil
}

// EnumerateChannels walks the on-disk channel directory, invoking cb
// with every record that parses successfully. cb returning false stops
// the walk early.
func EnumerateChannels(ctxPath string, cb func(ChannelPersistent) bool) error {
	entries, err := os.ReadDir(channelsDir(ctxPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return flooderrors.NewIOError("directory.enumerate_channels", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		c, err := ReadChannelMeta(ctxPath, entry.Name())
		if err != nil {
			continue
		}
		if !cb(c) {
			break
		}
	}
	return nil
}

// ChannelVolatile is the in-memory runtime state for a channel,
// cleared on restart.
type ChannelVolatile struct {
	Name           string
	LastSeen       uint32
	UnreadMessages uint16
}

// ChannelTable is the volatile channel directory.
type ChannelTable struct {
	mu      sync.Mutex
	entries map[string]ChannelVolatile
}

// NewChannelTable constructs an empty volatile channel table.
func NewChannelTable() *ChannelTable {
	return &ChannelTable{entries: make(map[string]ChannelVolatile)}
}

// Update overwrites the entry for v.Name if present, inserts otherwise.
func (t *ChannelTable) Update(v ChannelVolatile) {
	t.mu.Lock()
	t.entries[v.Name] = v
	t.mu.Unlock()
}

// Get returns the volatile row for name. Unlike peers, channels
// lazy-create: a miss materialises and stores a zero-initialised row
// rather than reporting absence (flood_get_channel_volatile's
// behaviour).
func (t *ChannelTable) Get(name string) ChannelVolatile {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.entries[name]
	if !ok {
		v = ChannelVolatile{Name: name}
		t.entries[name] = v
	}
	return v
}

// Remove deletes the volatile row for name, if present.
func (t *ChannelTable) Remove(name string) {
	t.mu.Lock()
	delete(t.entries, name)
	t.mu.Unlock()
}

// Len reports the number of tracked channels. Intended for tests and
// diagnostics.
func (t *ChannelTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// FindChannel combines the persistent and volatile views of name.
// Absence of the persistent record is reported as found=false even if
// a volatile row exists. The volatile half is read through Get, so a
// channel with no prior traffic still yields a lazily-created
// zero-initialised row.
func FindChannel(ctxPath string, channels *ChannelTable, name string) (ChannelPersistent, ChannelVolatile, bool, error) {
	c, err := ReadChannelMeta(ctxPath, name)
	if err != nil {
		if flooderrors.IsNotFound(err) {
			return ChannelPersistent{}, ChannelVolatile{}, false, nil
		}
		return ChannelPersistent{}, ChannelVolatile{}, false, err
	}
	v := channels.Get(name)
	return c, v, true, nil
}
