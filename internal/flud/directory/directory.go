// Package directory implements the peer and channel directory (C4): a
// persistent on-disk metadata record per entity plus an in-memory
// volatile table for the runtime state that does not survive restart.
//
// The persistent side mirrors the message log's open/write/close
// discipline (see internal/flud/msglog): small fixed-layout records,
// read-verify-magic-and-version, write-by-truncate. The volatile side
// is a plain mutex-guarded map rather than the original firmware's
// singly-linked list — acceptable per the spec for N in the tens, and
// the insert-if-absent / copy-out / unlink contract carries over
// unchanged onto map semantics.
package directory

import (
	"fmt"
	"path/filepath"
	"strings"

	flooderrors "github.com/fludmesh/flud/internal/errors"
	"github.com/fludmesh/flud/internal/flud/mac"
)

// Magic is the persistent-record validation constant, shared with the
// wire header's magic number.
const Magic uint32 = 0x464C5544

// PersistentVersion is the on-disk metadata format version.
const PersistentVersion uint8 = 1

// MaxNameLength is the longest device or channel name, in bytes.
const MaxNameLength = 31

const (
	peerNameFieldSize    = 32
	channelNameFieldSize = MaxNameLength + 1
	channelSecretWords   = 32 // uint32 words, i.e. 128 bytes
)

// peerPersistentSize is magic(4) + version(1) + mac(6) + name(32) +
// role(1) + capabilities(1).
const peerPersistentSize = 4 + 1 + mac.Size + peerNameFieldSize + 1 + 1

// channelPersistentSize is magic(4) + version(1) + name(32) + secret(128).
const channelPersistentSize = 4 + 1 + channelNameFieldSize + channelSecretWords*4

func devicesDir(ctxPath string) string { return filepath.Join(ctxPath, "devices") }
func channelsDir(ctxPath string) string { return filepath.Join(ctxPath, "channels") }

func peerDir(ctxPath string, addr mac.Addr) string {
	return filepath.Join(devicesDir(ctxPath), hexMAC(addr))
}

func peerMetaPath(ctxPath string, addr mac.Addr) string {
	return filepath.Join(peerDir(ctxPath, addr), "meta.bin")
}

func channelDir(ctxPath, name string) string {
	return filepath.Join(channelsDir(ctxPath), name)
}

func channelMetaPath(ctxPath, name string) string {
	return filepath.Join(channelDir(ctxPath, name), "meta.bin")
}

func hexMAC(addr mac.Addr) string {
	const hexDigits = "0123456789abcdef"
	b := make([]byte, 0, mac.Size*2)
	for _, octet := range addr {
		b = append(b, hexDigits[octet>>4], hexDigits[octet&0x0F])
	}
	return string(b)
}

// ValidateChannelName enforces spec's channel-name rules: 1-31 bytes,
// none of the forbidden characters or control bytes, and never "." or
// "..". A rejected name must never touch the filesystem.
func ValidateChannelName(name string) error {
	if len(name) < 1 || len(name) > MaxNameLength {
		return flooderrors.NewInvalidArgError("directory.validate_channel_name",
			fmt.Errorf("length %d outside [1,%d]", len(name), MaxNameLength))
	}
	if name == "." || name == ".." {
		return flooderrors.NewInvalidArgError("directory.validate_channel_name",
			fmt.Errorf("name %q is reserved", name))
	}
	const forbidden = `/\:*?"<>|`
	for _, r := range name {
		if r < 0x20 || strings.ContainsRune(forbidden, r) {
			return flooderrors.NewInvalidArgError("directory.validate_channel_name",
				fmt.Errorf("name %q contains a forbidden character", name))
		}
	}
	return nil
}

func putFixedString(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

func getFixedString(src []byte) string {
	n := 0
	for n < len(src) && src[n] != 0 {
		n++
	}
	return string(src[:n])
}
