// Package influx writes points to an InfluxDB 2.x server over its HTTP
// write API using line protocol.
package influx

import (
	"math"
	"strconv"

	"github.com/coffersTech/datalog-influx/internal/model"
)

// AppendPoint appends the line protocol form of p, terminated by a newline,
// to dst. Time is written in milliseconds. NaN and infinite floats cannot be
// represented and are left out; a point left with no fields is skipped and
// dst is returned unchanged.
func AppendPoint(dst []byte, p model.Point) []byte {
	start := len(dst)
	dst = appendEscaped(dst, p.Measurement, measurementEscapes)

	written := 0
	for _, f := range p.Fields {
		v := f.Value
		if v.Kind() == model.KindFloat && (math.IsNaN(v.Float()) || math.IsInf(v.Float(), 0)) {
			continue
		}
		if written == 0 {
			dst = append(dst, ' ')
		} else {
			dst = append(dst, ',')
		}
		dst = appendEscaped(dst, f.Name, fieldKeyEscapes)
		dst = append(dst, '=')
		dst = appendValue(dst, v)
		written++
	}
	if written == 0 {
		return dst[:start]
	}

	dst = append(dst, ' ')
	dst = strconv.AppendInt(dst, p.Time, 10)
	return append(dst, '\n')
}

// Encode renders points as a line protocol body.
func Encode(points []model.Point) []byte {
	var buf []byte
	for _, p := range points {
		buf = AppendPoint(buf, p)
	}
	return buf
}

func appendValue(dst []byte, v model.Value) []byte {
	switch v.Kind() {
	case model.KindFloat:
		return strconv.AppendFloat(dst, v.Float(), 'g', -1, 64)
	case model.KindInt:
		dst = strconv.AppendInt(dst, v.Int(), 10)
		return append(dst, 'i')
	case model.KindBool:
		return strconv.AppendBool(dst, v.Bool())
	default:
		dst = append(dst, '"')
		dst = appendEscaped(dst, v.Str(), stringEscapes)
		return append(dst, '"')
	}
}

// escapeSet marks the bytes that get a backslash. Keys additionally drop
// ASCII control characters, which line protocol cannot carry in a key.
type escapeSet struct {
	escape       [256]bool
	stripControl bool
}

func newEscapeSet(chars string, stripControl bool) *escapeSet {
	s := escapeSet{stripControl: stripControl}
	for i := 0; i < len(chars); i++ {
		s.escape[chars[i]] = true
	}
	return &s
}

var (
	measurementEscapes = newEscapeSet(", ", true)
	fieldKeyEscapes    = newEscapeSet(",= ", true)
	stringEscapes      = newEscapeSet(`"\`, false)
)

func appendEscaped(dst []byte, s string, set *escapeSet) []byte {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case set.stripControl && (c < 0x20 || c == 0x7f):
			continue
		case set.escape[c]:
			dst = append(dst, '\\')
		}
		dst = append(dst, c)
	}
	return dst
}
