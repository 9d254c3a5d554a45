// Package datalog reads and writes the WPILib binary data log format: a
// header followed by an append-only sequence of framed records.
package datalog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrNotDataLog is returned when the byte source does not start with a
// recognizable data log header.
var ErrNotDataLog = errors.New("datalog: not a data log")

// Log header: magic, uint16 version, uint32 extra header length.
var MagicHeader = []byte("WPILOG")

const (
	headerSize     = 12
	minimumVersion = 0x0100
)

// Reader gives forward-only access to the records of a data log held in
// memory. The bytes are usually a read-only memory mapping of the file.
type Reader struct {
	data        []byte
	version     uint16
	extraHeader string
	recordStart int
	mapped      bool
}

// Open memory-maps the file at path and validates its header.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stating %s: %w", path, err)
	}
	if info.Size() < headerSize {
		return nil, ErrNotDataLog
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("memory-mapping %s: %w", path, err)
	}

	r, err := NewReader(data)
	if err != nil {
		unix.Munmap(data)
		return nil, err
	}
	r.mapped = true
	return r, nil
}

// NewReader validates the header of an in-memory data log.
func NewReader(data []byte) (*Reader, error) {
	if len(data) < headerSize || string(data[:len(MagicHeader)]) != string(MagicHeader) {
		return nil, ErrNotDataLog
	}
	version := binary.LittleEndian.Uint16(data[6:8])
	if version < minimumVersion {
		return nil, fmt.Errorf("%w: unsupported version 0x%04x", ErrNotDataLog, version)
	}
	extraLen := uint64(binary.LittleEndian.Uint32(data[8:12]))
	if headerSize+extraLen > uint64(len(data)) {
		return nil, fmt.Errorf("%w: extra header overruns file", ErrNotDataLog)
	}
	end := headerSize + int(extraLen)
	return &Reader{
		data:        data,
		version:     version,
		extraHeader: string(data[headerSize:end]),
		recordStart: end,
	}, nil
}

// Version returns the format version, major in the high byte.
func (r *Reader) Version() uint16 {
	return r.version
}

func (r *Reader) ExtraHeader() string {
	return r.extraHeader
}

// Close releases the memory mapping, if any. Records obtained from the
// reader must not be used afterwards.
func (r *Reader) Close() error {
	if !r.mapped || r.data == nil {
		return nil
	}
	data := r.data
	r.data = nil
	return unix.Munmap(data)
}

// Cursor returns a new cursor positioned before the first record.
func (r *Reader) Cursor() *Cursor {
	return &Cursor{data: r.data, pos: r.recordStart}
}

// Cursor iterates over records in file order. A record whose header or
// payload runs past the end of the data ends the iteration.
type Cursor struct {
	data []byte
	pos  int
	rec  Record
}

// Next advances to the next record.
func (c *Cursor) Next() bool {
	if c.pos+4 > len(c.data) {
		return false
	}

	bits := c.data[c.pos]
	entryLen := int(bits&0x3) + 1
	sizeLen := int((bits>>2)&0x3) + 1
	tsLen := int((bits>>4)&0x7) + 1
	headerLen := 1 + entryLen + sizeLen + tsLen
	if c.pos+headerLen > len(c.data) {
		return false
	}

	p := c.pos + 1
	entry := readVarUint(c.data[p : p+entryLen])
	p += entryLen
	size := readVarUint(c.data[p : p+sizeLen])
	p += sizeLen
	ts := readVarUint(c.data[p : p+tsLen])
	p += tsLen

	if uint64(p)+size > uint64(len(c.data)) {
		return false
	}
	end := p + int(size)

	c.rec = Record{
		Entry:     uint32(entry),
		Timestamp: int64(ts),
		Data:      c.data[p:end:end],
	}
	c.pos = end
	return true
}

// Record returns the record the cursor is positioned on.
func (c *Cursor) Record() Record {
	return c.rec
}

// Err reports why iteration stopped. Iterating a buffer that passed
// NewReader cannot fail, and truncation at the end of the log is not an
// error, so Err always returns nil.
func (c *Cursor) Err() error {
	return nil
}

func readVarUint(b []byte) uint64 {
	var v uint64
	for i, x := range b {
		v |= uint64(x) << (8 * i)
	}
	return v
}
