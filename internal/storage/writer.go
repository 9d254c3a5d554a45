// Package storage implements a local file sink that writes every flushed
// batch of points as one compressed columnar file.
package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/coffersTech/datalog-influx/internal/model"
)

// MagicHeader opens every batch file.
var MagicHeader = []byte("DLTSBAT1")

// FileExt is the extension of batch files.
const FileExt = ".dlts"

// footerSize covers RowCount(4) + FieldCount(4) + DictCount(4) + MinTs(8) + MaxTs(8).
const footerSize = 28

// FileSink writes each batch of points to
// {dir}/{container}/points_{run}_{seq}_{minTs}_{maxTs}.dlts.
type FileSink struct {
	dir         string
	runID       string
	compression CompressionType
	codec       Codec
	logger      *slog.Logger

	mu    sync.Mutex
	seq   int
	files []string
}

// NewFileSink creates a sink rooted at dir. runID distinguishes the files of
// separate runs in the same container.
func NewFileSink(dir, runID string, compression CompressionType, logger *slog.Logger) (*FileSink, error) {
	codec, err := GetCodec(compression)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileSink{
		dir:         dir,
		runID:       runID,
		compression: compression,
		codec:       codec,
		logger:      logger,
	}, nil
}

// WritePoints writes points as one file under the container directory. The
// file is written to a temporary name and renamed into place, so a failed
// write leaves nothing behind.
func (s *FileSink) WritePoints(ctx context.Context, container string, points []model.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, minTs, maxTs, err := s.encode(points)
	if err != nil {
		return err
	}

	dir := filepath.Join(s.dir, container)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create container dir: %w", err)
	}

	s.seq++
	name := fmt.Sprintf("points_%s_%06d_%d_%d%s", s.runID, s.seq, minTs, maxTs, FileExt)
	final := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, name+".tmp*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write batch file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	s.files = append(s.files, final)
	s.logger.Debug("batch file written", "path", final, "points", len(points), "bytes", len(data))
	return nil
}

// Files returns the paths written so far, in write order.
func (s *FileSink) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.files...)
}

// Close releases the sink. Every write is complete when WritePoints
// returns, so there is nothing to flush.
func (s *FileSink) Close() error {
	return nil
}

// encode lays out points column by column:
//
//	Header:  Magic(8) Codec(1)
//	Columns: times, measurements, field counts, field ids, kinds,
//	         numeric bits, string values, field-name dictionary
//	Footer:  RowCount FieldCount DictCount MinTs MaxTs
//
// Each column is [Codec u8][RawSize u32][StoredSize u32][Bytes].
func (s *FileSink) encode(points []model.Point) ([]byte, int64, int64, error) {
	var fieldTotal int
	for _, p := range points {
		fieldTotal += len(p.Fields)
	}

	times := NewFixedColumn[int64](len(points))
	measurements := NewBytesColumn(len(points)*8, len(points))
	counts := NewFixedColumn[uint32](len(points))
	ids := NewFixedColumn[uint64](fieldTotal)
	kinds := NewFixedColumn[uint8](fieldTotal)
	bits := NewFixedColumn[uint64](fieldTotal)
	strs := NewBytesColumn(0, 0)
	dict := NewBytesColumn(0, 0)
	names := make(map[uint64]string)

	minTs, maxTs := int64(math.MaxInt64), int64(math.MinInt64)
	for _, p := range points {
		minTs = min(minTs, p.Time)
		maxTs = max(maxTs, p.Time)

		times.Append(p.Time)
		measurements.AppendString(p.Measurement)
		counts.Append(uint32(len(p.Fields)))

		for _, f := range p.Fields {
			id := xxhash.Sum64String(f.Name)
			if known, ok := names[id]; !ok {
				names[id] = f.Name
				dict.AppendString(f.Name)
			} else if known != f.Name {
				return nil, 0, 0, fmt.Errorf("field id collision between %q and %q", known, f.Name)
			}

			ids.Append(id)
			kinds.Append(uint8(f.Value.Kind()))
			if f.Value.Kind() == model.KindString {
				bits.Append(0)
				strs.AppendString(f.Value.Str())
			} else {
				bits.Append(f.Value.Bits())
			}
		}
	}

	out := make([]byte, 0, 64+fieldTotal*17)
	out = append(out, MagicHeader...)
	out = append(out, byte(s.compression))

	var err error
	for _, raw := range [][]byte{
		times.Encode(),
		measurements.Encode(),
		counts.Encode(),
		ids.Encode(),
		kinds.Encode(),
		bits.Encode(),
		strs.Encode(),
		dict.Encode(),
	} {
		if out, err = s.appendColumn(out, raw); err != nil {
			return nil, 0, 0, err
		}
	}

	out = binary.LittleEndian.AppendUint32(out, uint32(len(points)))
	out = binary.LittleEndian.AppendUint32(out, uint32(fieldTotal))
	out = binary.LittleEndian.AppendUint32(out, uint32(dict.Size()))
	out = binary.LittleEndian.AppendUint64(out, uint64(minTs))
	out = binary.LittleEndian.AppendUint64(out, uint64(maxTs))
	return out, minTs, maxTs, nil
}

func (s *FileSink) appendColumn(out, raw []byte) ([]byte, error) {
	codec := s.compression
	stored, err := s.codec.Compress(raw)
	if errors.Is(err, errIncompressible) {
		codec, stored = CompressionNone, raw
	} else if err != nil {
		return nil, fmt.Errorf("compress column: %w", err)
	}

	out = append(out, byte(codec))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(raw)))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(stored)))
	return append(out, stored...), nil
}
