package directory

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	flooderrors "github.com/fludmesh/flud/internal/errors"
	"github.com/fludmesh/flud/internal/flud/mac"
)

// PeerPersistent is the on-disk record for a known device.
type PeerPersistent struct {
	MAC          mac.Addr
	Name         string
	Role         uint8
	Capabilities uint8
}

func (p PeerPersistent) marshal() []byte {
	buf := make([]byte, peerPersistentSize)
	binary.NativeEndian.PutUint32(buf[0:4], Magic)
	buf[4] = PersistentVersion
	copy(buf[5:5+mac.Size], p.MAC[:])
	putFixedString(buf[5+mac.Size:5+mac.Size+peerNameFieldSize], p.Name)
	off := 5 + mac.Size + peerNameFieldSize
	buf[off] = p.Role
	buf[off+1] = p.Capabilities
	return buf
}

func unmarshalPeerPersistent(buf []byte) (PeerPersistent, error) {
	var p PeerPersistent
	if len(buf) != peerPersistentSize {
		return p, fmt.Errorf("directory: peer record must be %d bytes, got %d", peerPersistentSize, len(buf))
	}
	if binary.NativeEndian.Uint32(buf[0:4]) != Magic || buf[4] != PersistentVersion {
		return p, errBadMagicOrVersion
	}
	addr, err := mac.FromBytes(buf[5 : 5+mac.Size])
	if err != nil {
		return p, err
	}
	p.MAC = addr
	p.Name = getFixedString(buf[5+mac.Size : 5+mac.Size+peerNameFieldSize])
	off := 5 + mac.Size + peerNameFieldSize
	p.Role = buf[off]
	p.Capabilities = buf[off+1]
	return p, nil
}

var errBadMagicOrVersion = fmt.Errorf("directory: magic/version mismatch")

// ReadPeerMeta loads the persistent record for addr. A missing file or
// a magic/version mismatch is reported as NotFoundError; the file
// itself is left untouched (forensic preservation per spec).
func ReadPeerMeta(ctxPath string, addr mac.Addr) (PeerPersistent, error) {
	path := peerMetaPath(ctxPath, addr)
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return PeerPersistent{}, flooderrors.NewNotFoundError("directory.read_peer_meta", err)
		}
		return PeerPersistent{}, flooderrors.NewIOError("directory.read_peer_meta", err)
	}
	p, err := unmarshalPeerPersistent(buf)
	if err != nil {
		return PeerPersistent{}, flooderrors.NewNotFoundError("directory.read_peer_meta", err)
	}
	return p, nil
}

// WritePeerMeta writes the persistent record for p, creating the
// device directory if needed and truncating any existing file.
func WritePeerMeta(ctxPath string, p PeerPersistent) error {
	dir := peerDir(ctxPath, p.MAC)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return flooderrors.NewIOError("directory.write_peer_meta", fmt.Errorf("mkdir: %w", err))
	}
	path := peerMetaPath(ctxPath, p.MAC)
	if err := os.WriteFile(path, p.marshal(), 0o644); err != nil {
		return flooderrors.NewIOError("directory.write_peer_meta", err)
	}
	return nil
}

// RemovePeerMeta unlinks the device's meta.bin and then attempts to
// remove the now-possibly-empty device directory, ignoring a
// directory-not-empty failure (e.g. messages.bin still present).
func RemovePeerMeta(ctxPath string, addr mac.Addr) error {
	path := peerMetaPath(ctxPath, addr)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return flooderrors.NewIOError("directory.remove_peer_meta", err)
	}
	_ = os.Remove(peerDir(ctxPath, addr))
	return nil
}

// EnumeratePeers walks the on-disk device directory, invoking cb with
// every record that parses successfully. cb returning false stops the
// walk early.
func EnumeratePeers(ctxPath string, cb func(PeerPersistent) bool) error {
	entries, err := os.ReadDir(devicesDir(ctxPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return flooderrors.NewIOError("directory.enumerate_peers", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		addr, err := mac.FromBytes(decodeHexMAC(entry.Name()))
		if err != nil {
			continue
		}
		p, err := ReadPeerMeta(ctxPath, addr)
		if err != nil {
			continue
		}
		if !cb(p) {
			break
		}
	}
	return nil
}

func decodeHexMAC(s string) []byte {
	if len(s) != mac.Size*2 {
		return nil
	}
	out := make([]byte, mac.Size)
	for i := range out {
		hi := hexVal(s[i*2])
		lo := hexVal(s[i*2+1])
		if hi < 0 || lo < 0 {
			return nil
		}
		out[i] = byte(hi<<4 | lo)
	}
	return out
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	default:
		return -1
	}
}

// PeerVolatile is the in-memory runtime state for a device, cleared on
// restart.
type PeerVolatile struct {
	MAC            mac.Addr
	LastSeen       uint32
	SignalStrength uint8
	Hops           uint8
	BatteryLevel   uint8
	UnreadMessages uint16
}

// PeerTable is the volatile peer directory: a mutex-guarded map
// standing in for the original firmware's singly-linked list
// (acceptable per spec for the tens of peers a session typically
// tracks).
type PeerTable struct {
	mu      sync.Mutex
	entries map[mac.Addr]PeerVolatile
}

// NewPeerTable constructs an empty volatile peer table.
func NewPeerTable() *PeerTable {
	return &PeerTable{entries: make(map[mac.Addr]PeerVolatile)}
}

// Update overwrites the entry for v.MAC if present, inserts otherwise.
func (t *PeerTable) Update(v PeerVolatile) {
	t.mu.Lock()
	t.entries[v.MAC] = v
	t.mu.Unlock()
}

// Get returns a copy of the volatile row for key. Unlike channels,
// peers do not lazy-create: a miss reports found=false.
func (t *PeerTable) Get(key mac.Addr) (PeerVolatile, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.entries[key]
	return v, ok
}

// Remove deletes the volatile row for key, if present.
func (t *PeerTable) Remove(key mac.Addr) {
	t.mu.Lock()
	delete(t.entries, key)
	t.mu.Unlock()
}

// Len reports the number of tracked peers. Intended for tests and
// diagnostics.
func (t *PeerTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// FindPeer combines the persistent and volatile views of addr. Absence
// of the persistent record is reported as found=false even if a
// volatile row exists; the volatile half defaults to its zero value
// when no row is present.
func FindPeer(ctxPath string, peers *PeerTable, addr mac.Addr) (PeerPersistent, PeerVolatile, bool, error) {
	p, err := ReadPeerMeta(ctxPath, addr)
	if err != nil {
		if flooderrors.IsNotFound(err) {
			return PeerPersistent{}, PeerVolatile{}, false, nil
		}
		return PeerPersistent{}, PeerVolatile{}, false, err
	}
	v, ok := peers.Get(addr)
	if !ok {
		v = PeerVolatile{MAC: addr}
	}
	return p, v, true, nil
}
