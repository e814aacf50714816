// Package msglog implements the append-only fixed-record message log
// (C3): one file per peer or channel, 256-byte records, O(1) indexed
// reads and single-byte status updates via seek.
//
// Operations are free functions taking a path rather than methods on a
// stateful handle: the contract is identical for peer and channel logs,
// the only difference is the path (<ctx>/devices/<mac>/messages.bin vs
// <ctx>/channels/<name>/messages.bin), and holding a *os.File per peer
// for the lifetime of the process would keep descriptors open for
// directories that may never be touched again in a session with tens of
// peers. Each call opens, does its I/O, and closes — the same
// open/write/close discipline the message-log's sibling, the directory
// store's persistent metadata writer, uses.
package msglog

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fludmesh/flud/internal/flud/mac"
)

// RecordSize is the fixed width of one stored message record.
const RecordSize = 256

// MaxPayload is the largest payload a record can hold.
const MaxPayload = 200

// Status values for a stored message record.
const (
	StatusReceived       uint8 = 0x00
	StatusSent           uint8 = 0x01
	StatusDelivered      uint8 = 0x02
	StatusDeliveryFailed uint8 = 0x03
)

const (
	offSenderMAC  = 0
	offSequence   = offSenderMAC + mac.Size
	offTimestamp  = offSequence + 4
	offStatus     = offTimestamp + 4
	offType       = offStatus + 1
	offLength     = offType + 1
	offPayload    = offLength + 2
	reservedSize  = RecordSize - offPayload - MaxPayload
)

// Record is one 256-byte stored message record.
type Record struct {
	SenderMAC   mac.Addr
	Sequence    uint32
	Timestamp   uint32
	Status      uint8
	MessageType uint8
	Payload     []byte // length <= MaxPayload
}

// MarshalBinary encodes the record into its fixed 256-byte wire form.
func (r Record) MarshalBinary() ([]byte, error) {
	if len(r.Payload) > MaxPayload {
		return nil, fmt.Errorf("msglog: payload %d exceeds max %d", len(r.Payload), MaxPayload)
	}
	buf := make([]byte, RecordSize)
	copy(buf[offSenderMAC:], r.SenderMAC[:])
	binary.NativeEndian.PutUint32(buf[offSequence:], r.Sequence)
	binary.NativeEndian.PutUint32(buf[offTimestamp:], r.Timestamp)
	buf[offStatus] = r.Status
	buf[offType] = r.MessageType
	binary.NativeEndian.PutUint16(buf[offLength:], uint16(len(r.Payload)))
	copy(buf[offPayload:], r.Payload)
	return buf, nil
}

// UnmarshalBinary decodes a 256-byte record.
func (r *Record) UnmarshalBinary(b []byte) error {
	if len(b) != RecordSize {
		return fmt.Errorf("msglog: record must be %d bytes, got %d", RecordSize, len(b))
	}
	senderMAC, err := mac.FromBytes(b[offSenderMAC : offSenderMAC+mac.Size])
	if err != nil {
		return err
	}
	r.SenderMAC = senderMAC
	r.Sequence = binary.NativeEndian.Uint32(b[offSequence:])
	r.Timestamp = binary.NativeEndian.Uint32(b[offTimestamp:])
	r.Status = b[offStatus]
	r.MessageType = b[offType]
	length := binary.NativeEndian.Uint16(b[offLength:])
	if int(length) > MaxPayload {
		length = MaxPayload
	}
	r.Payload = append([]byte(nil), b[offPayload:offPayload+int(length)]...)
	return nil
}

// Count returns file_size / RecordSize. A missing file yields 0, not an
// error.
func Count(path string) (uint32, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("msglog.count: %w", err)
	}
	return uint32(info.Size() / RecordSize), nil
}

// Append writes record to the end of the log at path, creating parent
// directories and the file as needed, and returns the index it was
// stored at (the pre-append count).
func Append(path string, record Record) (uint32, error) {
	index, err := Count(path)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("msglog.append: mkdir: %w", err)
	}
	buf, err := record.MarshalBinary()
	if err != nil {
		return 0, fmt.Errorf("msglog.append: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("msglog.append: open: %w", err)
	}
	defer f.Close()
	n, err := f.Write(buf)
	if err != nil {
		return 0, fmt.Errorf("msglog.append: write: %w", err)
	}
	if n != RecordSize {
		return 0, fmt.Errorf("msglog.append: short write %d/%d", n, RecordSize)
	}
	return index, nil
}

// LoadPage reads up to n records starting at index start. It returns the
// number of records actually loaded; start past the end of the file
// returns 0 with no error.
func LoadPage(path string, start, n uint32) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("msglog.load_page: open: %w", err)
	}
	defer f.Close()

	total, err := Count(path)
	if err != nil {
		return nil, err
	}
	if start >= total {
		return nil, nil
	}
	avail := total - start
	if n > avail {
		n = avail
	}

	out := make([]Record, 0, n)
	buf := make([]byte, RecordSize)
	off := int64(start) * RecordSize
	for i := uint32(0); i < n; i++ {
		if _, err := f.ReadAt(buf, off); err != nil {
			return nil, fmt.Errorf("msglog.load_page: read: %w", err)
		}
		var rec Record
		if err := rec.UnmarshalBinary(buf); err != nil {
			return nil, fmt.Errorf("msglog.load_page: decode: %w", err)
		}
		out = append(out, rec)
		off += RecordSize
	}
	return out, nil
}

// SetStatus overwrites the single status byte of the record at index,
// leaving every other byte untouched. It returns os.ErrNotExist-wrapping
// error if index is out of range.
func SetStatus(path string, index uint32, status uint8) error {
	total, err := Count(path)
	if err != nil {
		return err
	}
	if index >= total {
		return fmt.Errorf("msglog.set_status: index %d out of range (count %d): %w", index, total, os.ErrNotExist)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("msglog.set_status: open: %w", err)
	}
	defer f.Close()

	off := int64(index) * RecordSize
	if _, err := f.WriteAt([]byte{status}, off+offStatus); err != nil {
		return fmt.Errorf("msglog.set_status: write: %w", err)
	}
	return nil
}

// Clear unlinks the log file. A missing file is success.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("msglog.clear: %w", err)
	}
	return nil
}
