package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/coffersTech/datalog-influx/internal/model"
)

var ErrInvalidHeader = errors.New("invalid batch file header")

// Footer is the summary stored at the end of a batch file.
type Footer struct {
	RowCount   int
	FieldCount int
	DictCount  int
	MinTs      int64
	MaxTs      int64
}

// ReadFile decodes a batch file back into points, in write order.
func ReadFile(path string) ([]model.Point, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// ReadFooter returns the footer of the batch file at path without decoding
// its columns.
func ReadFooter(path string) (Footer, error) {
	f, err := os.Open(path)
	if err != nil {
		return Footer{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Footer{}, err
	}
	if info.Size() < int64(len(MagicHeader))+1+footerSize {
		return Footer{}, errors.New("file too small")
	}

	header := make([]byte, len(MagicHeader))
	if _, err := f.ReadAt(header, 0); err != nil {
		return Footer{}, err
	}
	if !bytes.Equal(header, MagicHeader) {
		return Footer{}, ErrInvalidHeader
	}

	buf := make([]byte, footerSize)
	if _, err := f.ReadAt(buf, info.Size()-footerSize); err != nil {
		return Footer{}, err
	}
	return parseFooter(buf), nil
}

// Decode decodes an in-memory batch file.
func Decode(data []byte) ([]model.Point, error) {
	if len(data) < len(MagicHeader)+1+footerSize {
		return nil, errors.New("file too small")
	}
	if !bytes.Equal(data[:len(MagicHeader)], MagicHeader) {
		return nil, ErrInvalidHeader
	}

	footer := parseFooter(data[len(data)-footerSize:])
	r := &columnReader{data: data[len(MagicHeader)+1 : len(data)-footerSize]}

	times, err := readFixed[int64](r, footer.RowCount)
	if err != nil {
		return nil, fmt.Errorf("times: %w", err)
	}
	measurements, err := readStrings(r, footer.RowCount)
	if err != nil {
		return nil, fmt.Errorf("measurements: %w", err)
	}
	counts, err := readFixed[uint32](r, footer.RowCount)
	if err != nil {
		return nil, fmt.Errorf("field counts: %w", err)
	}
	ids, err := readFixed[uint64](r, footer.FieldCount)
	if err != nil {
		return nil, fmt.Errorf("field ids: %w", err)
	}
	kinds, err := readFixed[uint8](r, footer.FieldCount)
	if err != nil {
		return nil, fmt.Errorf("kinds: %w", err)
	}
	bits, err := readFixed[uint64](r, footer.FieldCount)
	if err != nil {
		return nil, fmt.Errorf("values: %w", err)
	}

	var stringCount int
	for _, k := range kinds {
		if model.Kind(k) == model.KindString {
			stringCount++
		}
	}
	strs, err := readStrings(r, stringCount)
	if err != nil {
		return nil, fmt.Errorf("string values: %w", err)
	}
	dict, err := readStrings(r, footer.DictCount)
	if err != nil {
		return nil, fmt.Errorf("dictionary: %w", err)
	}
	if len(r.data) != 0 {
		return nil, fmt.Errorf("%d unread bytes after columns", len(r.data))
	}

	names := make(map[uint64]string, len(dict))
	for _, name := range dict {
		names[xxhash.Sum64String(name)] = name
	}

	points := make([]model.Point, 0, footer.RowCount)
	field, str := 0, 0
	for i := 0; i < footer.RowCount; i++ {
		n := int(counts[i])
		if field+n > footer.FieldCount {
			return nil, fmt.Errorf("row %d overruns field columns", i)
		}
		p := model.Point{
			Measurement: measurements[i],
			Time:        times[i],
			Fields:      make([]model.Field, 0, n),
		}
		for ; n > 0; n-- {
			name, ok := names[ids[field]]
			if !ok {
				return nil, fmt.Errorf("field id %x missing from dictionary", ids[field])
			}
			var v model.Value
			if kind := model.Kind(kinds[field]); kind == model.KindString {
				v = model.String(strs[str])
				str++
			} else if v, err = model.FromBits(kind, bits[field]); err != nil {
				return nil, err
			}
			p.Fields = append(p.Fields, model.Field{Name: name, Value: v})
			field++
		}
		points = append(points, p)
	}
	if field != footer.FieldCount {
		return nil, fmt.Errorf("%d fields left unassigned", footer.FieldCount-field)
	}
	return points, nil
}

func parseFooter(buf []byte) Footer {
	return Footer{
		RowCount:   int(binary.LittleEndian.Uint32(buf[0:4])),
		FieldCount: int(binary.LittleEndian.Uint32(buf[4:8])),
		DictCount:  int(binary.LittleEndian.Uint32(buf[8:12])),
		MinTs:      int64(binary.LittleEndian.Uint64(buf[12:20])),
		MaxTs:      int64(binary.LittleEndian.Uint64(buf[20:28])),
	}
}

// columnReader walks the column section of a batch file.
type columnReader struct {
	data []byte
}

// next reads one column block (codec + sizes + data) and decompresses it.
func (r *columnReader) next() ([]byte, error) {
	if len(r.data) < 9 {
		return nil, errors.New("column header truncated")
	}
	codecType := CompressionType(r.data[0])
	rawSize := int(binary.LittleEndian.Uint32(r.data[1:5]))
	storedSize := int(binary.LittleEndian.Uint32(r.data[5:9]))
	if len(r.data)-9 < storedSize {
		return nil, errors.New("column data truncated")
	}
	stored := r.data[9 : 9+storedSize]
	r.data = r.data[9+storedSize:]

	codec, err := GetCodec(codecType)
	if err != nil {
		return nil, err
	}
	raw, err := codec.Decompress(stored, rawSize)
	if err != nil {
		return nil, err
	}
	if len(raw) != rawSize {
		return nil, fmt.Errorf("column decoded to %d bytes, expected %d", len(raw), rawSize)
	}
	return raw, nil
}

func readFixed[T fixed](r *columnReader, n int) ([]T, error) {
	raw, err := r.next()
	if err != nil {
		return nil, err
	}
	return decodeFixed[T](raw, n)
}

func readStrings(r *columnReader, n int) ([]string, error) {
	raw, err := r.next()
	if err != nil {
		return nil, err
	}
	return decodeStrings(raw, n)
}
