package engine

import (
	"encoding/binary"
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coffersTech/datalog-influx/internal/datalog"
	"github.com/coffersTech/datalog-influx/internal/model"
)

func desc(name, typ string) *EntryDescriptor {
	return &EntryDescriptor{ID: 7, Name: name, Type: ParseEntryType(typ), TypeName: typ}
}

func u64(vs ...uint64) []byte {
	var b []byte
	for _, v := range vs {
		b = binary.LittleEndian.AppendUint64(b, v)
	}
	return b
}

func TestDecoder_Scalars(t *testing.T) {
	tests := []struct {
		typ     string
		payload []byte
		want    model.Value
	}{
		{"double", u64(math.Float64bits(3.14)), model.Float(3.14)},
		{"int64", u64(uint64(1 << 40)), model.Int(1 << 40)},
		{"string", []byte("Auto"), model.String("Auto")},
		{"boolean", []byte{1}, model.Bool(true)},
	}
	var d Decoder
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			got, err := d.Decode(desc("v", tt.typ), datalog.Record{Entry: 7, Data: tt.payload})
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, DecodedValue{Field: "v", Value: tt.want}, got[0])
		})
	}
}

func TestDecoder_Arrays(t *testing.T) {
	f32 := func(vs ...float32) []byte {
		var b []byte
		for _, v := range vs {
			b = binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
		}
		return b
	}
	strs := binary.LittleEndian.AppendUint32(nil, 2)
	strs = append(binary.LittleEndian.AppendUint32(strs, 1), 'a')
	strs = append(binary.LittleEndian.AppendUint32(strs, 2), 'b', 'c')

	tests := []struct {
		typ     string
		payload []byte
		want    []model.Value
	}{
		{"boolean[]", []byte{1, 0, 2}, []model.Value{model.Bool(true), model.Bool(false), model.Bool(true)}},
		{"double[]", u64(math.Float64bits(1.5), math.Float64bits(-2)), []model.Value{model.Float(1.5), model.Float(-2)}},
		{"float[]", f32(0.5, 0.1), []model.Value{model.Float(0.5), model.Float(float64(float32(0.1)))}},
		{"int64[]", u64(1, 2, 3), []model.Value{model.Int(1), model.Int(2), model.Int(3)}},
		{"string[]", strs, []model.Value{model.String("a"), model.String("bc")}},
		{"double[]", nil, nil},
	}
	var d Decoder
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			got, err := d.Decode(desc("arr", tt.typ), datalog.Record{Entry: 7, Data: tt.payload})
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i, v := range tt.want {
				assert.Equal(t, "arr/"+strconv.Itoa(i), got[i].Field)
				assert.Equal(t, v, got[i].Value)
			}
		})
	}
}

func TestDecoder_Unsupported(t *testing.T) {
	var d Decoder
	for _, typ := range []string{"json", "struct:Pose2d", "raw"} {
		got, err := d.Decode(desc("v", typ), datalog.Record{Entry: 7, Data: []byte("{}")})
		require.ErrorIs(t, err, ErrUnsupportedType, typ)
		assert.Empty(t, got)
	}
}

func TestDecoder_Malformed(t *testing.T) {
	tests := []struct {
		typ     string
		payload []byte
	}{
		{"double", []byte{1, 2, 3}},
		{"int64", []byte{1}},
		{"boolean", []byte{}},
		{"string", []byte{0xc3, 0x28}},
		{"float[]", []byte{1, 2, 3}},
		{"int64[]", []byte{1, 2, 3, 4}},
		{"string[]", []byte{3, 0, 0, 0}},
	}
	var d Decoder
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			_, err := d.Decode(desc("v", tt.typ), datalog.Record{Entry: 7, Data: tt.payload})
			require.ErrorIs(t, err, ErrDecode)
			require.ErrorIs(t, err, datalog.ErrTypeMismatch)
		})
	}
}
