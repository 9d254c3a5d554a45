package storage

import (
	"encoding/binary"
	"fmt"
)

// fixed is the set of element types stored in fixed-width columns.
type fixed interface {
	~int64 | ~uint64 | ~uint32 | ~uint8
}

// FixedColumn stores fixed-width values (timestamps, counts, ids, bits).
type FixedColumn[T fixed] struct {
	Data []T
}

func NewFixedColumn[T fixed](capacity int) *FixedColumn[T] {
	return &FixedColumn[T]{
		Data: make([]T, 0, capacity),
	}
}

func (c *FixedColumn[T]) Append(v T) {
	c.Data = append(c.Data, v)
}

func (c *FixedColumn[T]) Reset() {
	c.Data = c.Data[:0]
}

func (c *FixedColumn[T]) Size() int {
	return len(c.Data)
}

// Encode serializes the column as little-endian values.
func (c *FixedColumn[T]) Encode() []byte {
	out, _ := binary.Append(nil, binary.LittleEndian, c.Data)
	return out
}

// decodeFixed is the inverse of FixedColumn.Encode for n values.
func decodeFixed[T fixed](raw []byte, n int) ([]T, error) {
	out := make([]T, n)
	if n == 0 && len(raw) == 0 {
		return out, nil
	}
	if binary.Size(out) != len(raw) {
		return nil, fmt.Errorf("column holds %d bytes, expected %d", len(raw), binary.Size(out))
	}
	if _, err := binary.Decode(raw, binary.LittleEndian, out); err != nil {
		return nil, err
	}
	return out, nil
}

// BytesColumn stores variable-length strings using a flat buffer and offsets.
// This reduces GC pressure compared to []string.
type BytesColumn struct {
	Data    []byte // The flat buffer storing all bytes
	Offsets []int  // Starting offset for each row. Length is RowCount + 1
}

func NewBytesColumn(dataCap, rowsCap int) *BytesColumn {
	c := &BytesColumn{
		Data:    make([]byte, 0, dataCap),
		Offsets: make([]int, 0, rowsCap+1),
	}
	c.Offsets = append(c.Offsets, 0) // Initial offset
	return c
}

// AppendString adds a string to the column.
func (c *BytesColumn) AppendString(v string) {
	c.Data = append(c.Data, v...)
	c.Offsets = append(c.Offsets, len(c.Data))
}

func (c *BytesColumn) Reset() {
	c.Data = c.Data[:0]
	c.Offsets = c.Offsets[:0]
	c.Offsets = append(c.Offsets, 0)
}

func (c *BytesColumn) Size() int {
	return len(c.Offsets) - 1
}

// Get returns the bytes of row i. The slice aliases the column buffer.
func (c *BytesColumn) Get(i int) []byte {
	if i < 0 || i >= len(c.Offsets)-1 {
		return nil
	}
	return c.Data[c.Offsets[i]:c.Offsets[i+1]]
}

// Encode serializes the column as [Len uint32][Bytes] per row.
func (c *BytesColumn) Encode() []byte {
	out := make([]byte, 0, len(c.Data)+4*c.Size())
	for i := 0; i < c.Size(); i++ {
		b := c.Get(i)
		out = binary.LittleEndian.AppendUint32(out, uint32(len(b)))
		out = append(out, b...)
	}
	return out
}

// decodeStrings is the inverse of BytesColumn.Encode for n rows.
func decodeStrings(raw []byte, n int) ([]string, error) {
	out := make([]string, 0, n)
	pos := 0
	for i := 0; i < n; i++ {
		if pos+4 > len(raw) {
			return nil, fmt.Errorf("string column truncated at row %d", i)
		}
		size := int(binary.LittleEndian.Uint32(raw[pos:]))
		pos += 4
		if pos+size > len(raw) {
			return nil, fmt.Errorf("string column row %d overruns column", i)
		}
		out = append(out, string(raw[pos:pos+size]))
		pos += size
	}
	if pos != len(raw) {
		return nil, fmt.Errorf("string column has %d trailing bytes", len(raw)-pos)
	}
	return out, nil
}
