package datalog

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
)

// Writer produces a data log. Integers in record headers are written with
// the fewest bytes that hold them.
type Writer struct {
	w   io.Writer
	buf bytes.Buffer
	err error
}

// NewWriter writes the log header with the given extra header string and
// returns a Writer for the records that follow.
func NewWriter(w io.Writer, extraHeader string) (*Writer, error) {
	lw := &Writer{w: w}
	lw.buf.Write(MagicHeader)
	binary.Write(&lw.buf, binary.LittleEndian, uint16(minimumVersion))
	binary.Write(&lw.buf, binary.LittleEndian, uint32(len(extraHeader)))
	lw.buf.WriteString(extraHeader)
	if err := lw.drain(); err != nil {
		return nil, err
	}
	return lw, nil
}

// Start writes a Start control record for entry.
func (lw *Writer) Start(entry uint32, name, typ, metadata string, ts int64) error {
	payload := make([]byte, 0, 17+len(name)+len(typ)+len(metadata))
	payload = append(payload, controlStart)
	payload = binary.LittleEndian.AppendUint32(payload, entry)
	payload = appendInnerString(payload, name)
	payload = appendInnerString(payload, typ)
	payload = appendInnerString(payload, metadata)
	return lw.Append(0, payload, ts)
}

// Finish writes a Finish control record for entry.
func (lw *Writer) Finish(entry uint32, ts int64) error {
	payload := binary.LittleEndian.AppendUint32([]byte{controlFinish}, entry)
	return lw.Append(0, payload, ts)
}

// SetMetadata writes a SetMetadata control record for entry.
func (lw *Writer) SetMetadata(entry uint32, metadata string, ts int64) error {
	payload := binary.LittleEndian.AppendUint32([]byte{controlSetMetadata}, entry)
	payload = appendInnerString(payload, metadata)
	return lw.Append(0, payload, ts)
}

// Append writes one raw record.
func (lw *Writer) Append(entry uint32, payload []byte, ts int64) error {
	if lw.err != nil {
		return lw.err
	}
	entryLen := varUintLen(uint64(entry), 4)
	sizeLen := varUintLen(uint64(len(payload)), 4)
	tsLen := varUintLen(uint64(ts), 8)

	lw.buf.WriteByte(byte(entryLen-1) | byte(sizeLen-1)<<2 | byte(tsLen-1)<<4)
	writeVarUint(&lw.buf, uint64(entry), entryLen)
	writeVarUint(&lw.buf, uint64(len(payload)), sizeLen)
	writeVarUint(&lw.buf, uint64(ts), tsLen)
	lw.buf.Write(payload)
	return lw.drain()
}

func (lw *Writer) AppendBoolean(entry uint32, v bool, ts int64) error {
	var b byte
	if v {
		b = 1
	}
	return lw.Append(entry, []byte{b}, ts)
}

func (lw *Writer) AppendInteger(entry uint32, v int64, ts int64) error {
	return lw.Append(entry, binary.LittleEndian.AppendUint64(nil, uint64(v)), ts)
}

func (lw *Writer) AppendFloat(entry uint32, v float32, ts int64) error {
	return lw.Append(entry, binary.LittleEndian.AppendUint32(nil, math.Float32bits(v)), ts)
}

func (lw *Writer) AppendDouble(entry uint32, v float64, ts int64) error {
	return lw.Append(entry, binary.LittleEndian.AppendUint64(nil, math.Float64bits(v)), ts)
}

func (lw *Writer) AppendString(entry uint32, v string, ts int64) error {
	return lw.Append(entry, []byte(v), ts)
}

func (lw *Writer) AppendBooleanArray(entry uint32, arr []bool, ts int64) error {
	payload := make([]byte, len(arr))
	for i, v := range arr {
		if v {
			payload[i] = 1
		}
	}
	return lw.Append(entry, payload, ts)
}

func (lw *Writer) AppendIntegerArray(entry uint32, arr []int64, ts int64) error {
	payload := make([]byte, 0, len(arr)*8)
	for _, v := range arr {
		payload = binary.LittleEndian.AppendUint64(payload, uint64(v))
	}
	return lw.Append(entry, payload, ts)
}

func (lw *Writer) AppendFloatArray(entry uint32, arr []float32, ts int64) error {
	payload := make([]byte, 0, len(arr)*4)
	for _, v := range arr {
		payload = binary.LittleEndian.AppendUint32(payload, math.Float32bits(v))
	}
	return lw.Append(entry, payload, ts)
}

func (lw *Writer) AppendDoubleArray(entry uint32, arr []float64, ts int64) error {
	payload := make([]byte, 0, len(arr)*8)
	for _, v := range arr {
		payload = binary.LittleEndian.AppendUint64(payload, math.Float64bits(v))
	}
	return lw.Append(entry, payload, ts)
}

func (lw *Writer) AppendStringArray(entry uint32, arr []string, ts int64) error {
	payload := binary.LittleEndian.AppendUint32(nil, uint32(len(arr)))
	for _, s := range arr {
		payload = appendInnerString(payload, s)
	}
	return lw.Append(entry, payload, ts)
}

func (lw *Writer) drain() error {
	if _, err := lw.w.Write(lw.buf.Bytes()); err != nil {
		lw.err = err
		return err
	}
	lw.buf.Reset()
	return nil
}

func appendInnerString(dst []byte, s string) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(s)))
	return append(dst, s...)
}

func varUintLen(v uint64, max int) int {
	n := 1
	for n < max && v >= 1<<(8*n) {
		n++
	}
	return n
}

func writeVarUint(buf *bytes.Buffer, v uint64, n int) {
	for i := 0; i < n; i++ {
		buf.WriteByte(byte(v >> (8 * i)))
	}
}
