package storage

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coffersTech/datalog-influx/internal/model"
)

func samplePoints() []model.Point {
	return []model.Point{
		{
			Measurement: "robot",
			Time:        1700000000000,
			Fields: []model.Field{
				{Name: "x", Value: model.Float(1.5)},
				{Name: "mode", Value: model.String("auto")},
				{Name: "enabled", Value: model.Bool(true)},
			},
		},
		{
			Measurement: "robot",
			Time:        1700000000020,
			Fields: []model.Field{
				{Name: "x", Value: model.Float(math.Inf(-1))},
				{Name: "count", Value: model.Int(-42)},
				{Name: "mode", Value: model.String("")},
			},
		},
		{
			Measurement: "drive",
			Time:        1700000000040,
			Fields: []model.Field{
				{Name: "pose/0", Value: model.Float(0.25)},
				{Name: "pose/1", Value: model.Float(-3)},
				{Name: "enabled", Value: model.Bool(false)},
			},
		},
	}
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		in   string
		want CompressionType
	}{
		{"", CompressionZstd},
		{"zstd", CompressionZstd},
		{"NONE", CompressionNone},
		{"s2", CompressionS2},
		{"lz4", CompressionLZ4},
	}
	for _, tt := range tests {
		got, err := ParseCompression(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		if tt.in != "" {
			assert.Equal(t, strings.ToLower(tt.in), got.String())
		}
	}

	_, err := ParseCompression("brotli")
	assert.Error(t, err)
}

func TestCodecRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat("robot/drive/pose ", 200))

	for _, ct := range []CompressionType{CompressionNone, CompressionZstd, CompressionS2, CompressionLZ4} {
		t.Run(ct.String(), func(t *testing.T) {
			codec, err := GetCodec(ct)
			require.NoError(t, err)

			stored, err := codec.Compress(payload)
			require.NoError(t, err)
			if ct != CompressionNone {
				assert.Less(t, len(stored), len(payload))
			}

			raw, err := codec.Decompress(stored, len(payload))
			require.NoError(t, err)
			assert.Equal(t, payload, raw)
		})
	}

	_, err := GetCodec(CompressionType(0x7f))
	assert.Error(t, err)
}

func TestFileSinkRoundTrip(t *testing.T) {
	for _, ct := range []CompressionType{CompressionNone, CompressionZstd, CompressionS2, CompressionLZ4} {
		t.Run(ct.String(), func(t *testing.T) {
			dir := t.TempDir()
			sink, err := NewFileSink(dir, "run1", ct, nil)
			require.NoError(t, err)
			defer sink.Close()

			points := samplePoints()
			require.NoError(t, sink.WritePoints(context.Background(), "frc", points))

			files := sink.Files()
			require.Len(t, files, 1)
			assert.Equal(t, filepath.Join(dir, "frc", "points_run1_000001_1700000000000_1700000000040.dlts"), files[0])

			got, err := ReadFile(files[0])
			require.NoError(t, err)
			assert.Equal(t, points, got)

			footer, err := ReadFooter(files[0])
			require.NoError(t, err)
			assert.Equal(t, Footer{
				RowCount:   3,
				FieldCount: 9,
				DictCount:  6,
				MinTs:      1700000000000,
				MaxTs:      1700000000040,
			}, footer)
		})
	}
}

func TestFileSinkOneFilePerBatch(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, "r", CompressionZstd, nil)
	require.NoError(t, err)

	points := samplePoints()
	ctx := context.Background()
	require.NoError(t, sink.WritePoints(ctx, "frc", points[:2]))
	require.NoError(t, sink.WritePoints(ctx, "frc", points[2:]))
	require.NoError(t, sink.WritePoints(ctx, "frc", nil))

	files := sink.Files()
	require.Len(t, files, 2)
	assert.Contains(t, files[0], "points_r_000001_")
	assert.Contains(t, files[1], "points_r_000002_")

	entries, err := os.ReadDir(filepath.Join(dir, "frc"))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temporary files must not be left behind")

	var all []model.Point
	for _, f := range files {
		got, err := ReadFile(f)
		require.NoError(t, err)
		all = append(all, got...)
	}
	assert.Equal(t, points, all)
}

func TestFileSinkEmptyPoint(t *testing.T) {
	sink, err := NewFileSink(t.TempDir(), "r", CompressionLZ4, nil)
	require.NoError(t, err)

	points := []model.Point{{Measurement: "robot", Time: 5}}
	require.NoError(t, sink.WritePoints(context.Background(), "frc", points))

	got, err := ReadFile(sink.Files()[0])
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(5), got[0].Time)
	assert.Empty(t, got[0].Fields)
}

func TestFileSinkCancelledContext(t *testing.T) {
	sink, err := NewFileSink(t.TempDir(), "r", CompressionNone, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = sink.WritePoints(ctx, "frc", samplePoints())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.Files())
}

func TestReadFileRejectsGarbage(t *testing.T) {
	dir := t.TempDir()

	short := filepath.Join(dir, "short.dlts")
	require.NoError(t, os.WriteFile(short, []byte("DLTS"), 0644))
	_, err := ReadFile(short)
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.dlts")
	require.NoError(t, os.WriteFile(bad, make([]byte, 64), 0644))
	_, err = ReadFile(bad)
	assert.ErrorIs(t, err, ErrInvalidHeader)
	_, err = ReadFooter(bad)
	assert.ErrorIs(t, err, ErrInvalidHeader)
}

func TestDecodeTruncatedColumns(t *testing.T) {
	sink, err := NewFileSink(t.TempDir(), "r", CompressionNone, nil)
	require.NoError(t, err)
	require.NoError(t, sink.WritePoints(context.Background(), "frc", samplePoints()))

	data, err := os.ReadFile(sink.Files()[0])
	require.NoError(t, err)

	// Drop a byte from the column section but keep the footer intact.
	cut := append([]byte(nil), data[:len(data)-footerSize-1]...)
	cut = append(cut, data[len(data)-footerSize:]...)
	_, err = Decode(cut)
	assert.Error(t, err)
}

func TestBytesColumn(t *testing.T) {
	c := NewBytesColumn(16, 4)
	c.AppendString("a")
	c.AppendString("")
	c.AppendString("xyz")
	assert.Equal(t, 3, c.Size())
	assert.Equal(t, []byte("xyz"), c.Get(2))
	assert.Nil(t, c.Get(3))

	got, err := decodeStrings(c.Encode(), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "", "xyz"}, got)

	_, err = decodeStrings(c.Encode(), 2)
	assert.Error(t, err, "trailing bytes")

	c.Reset()
	assert.Equal(t, 0, c.Size())
}

func TestFixedColumn(t *testing.T) {
	c := NewFixedColumn[int64](2)
	c.Append(-1)
	c.Append(math.MaxInt64)

	raw := c.Encode()
	assert.Len(t, raw, 16)

	got, err := decodeFixed[int64](raw, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{-1, math.MaxInt64}, got)

	_, err = decodeFixed[int64](raw, 3)
	assert.Error(t, err)
}

func TestPurgeExpired(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, "r", CompressionZstd, nil)
	require.NoError(t, err)

	ctx := context.Background()
	old := []model.Point{{Measurement: "robot", Time: 1000, Fields: []model.Field{{Name: "x", Value: model.Int(1)}}}}
	recent := []model.Point{{Measurement: "robot", Time: 90_000, Fields: []model.Field{{Name: "x", Value: model.Int(2)}}}}
	require.NoError(t, sink.WritePoints(ctx, "a", old))
	require.NoError(t, sink.WritePoints(ctx, "b", recent))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "notes"+FileExt), nil, 0644))

	now := time.UnixMilli(100_000)

	removed, err := PurgeExpired(dir, 0, now, "", nil)
	require.NoError(t, err)
	assert.Zero(t, removed, "zero retention keeps everything")

	removed, err = PurgeExpired(dir, time.Minute, now, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	files := sink.Files()
	assert.NoFileExists(t, files[0])
	assert.FileExists(t, files[1])
	assert.FileExists(t, filepath.Join(dir, "a", "notes"+FileExt))
}

func TestPurgeExpired_KeepsCurrentRun(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	old := []model.Point{{Measurement: "robot", Time: 1000, Fields: []model.Field{{Name: "x", Value: model.Int(1)}}}}

	previous, err := NewFileSink(dir, "prev", CompressionZstd, nil)
	require.NoError(t, err)
	require.NoError(t, previous.WritePoints(ctx, "a", old))

	current, err := NewFileSink(dir, "cur", CompressionZstd, nil)
	require.NoError(t, err)
	require.NoError(t, current.WritePoints(ctx, "a", old))

	removed, err := PurgeExpired(dir, time.Minute, time.UnixMilli(100_000), "cur", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, previous.Files()[0])
	assert.FileExists(t, current.Files()[0])
}

func TestParseBatchName(t *testing.T) {
	run, ts, err := parseBatchName("points_0b1e-4c_000003_-20_1700000000040.dlts")
	require.NoError(t, err)
	assert.Equal(t, "0b1e-4c", run)
	assert.Equal(t, int64(1700000000040), ts)

	_, _, err = parseBatchName("log_1_2.dlts")
	assert.Error(t, err)

	_, _, err = parseBatchName("points_r_000001_0_x.dlts")
	assert.Error(t, err)
}
