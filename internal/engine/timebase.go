package engine

import "math"

// TimeBase converts log-internal timestamps to epoch milliseconds. It is
// undefined until the first Sync.
type TimeBase struct {
	offset float64 // milliseconds
	valid  bool
}

// Sync recomputes the offset from a reserved time entry sample: epochMicros
// is the wall clock carried in the payload, logMicros the record timestamp.
func (tb *TimeBase) Sync(epochMicros, logMicros int64) {
	tb.offset = float64(epochMicros)/1000 - float64(logMicros)/1000
	tb.valid = true
}

// Valid reports whether a time base has been established.
func (tb TimeBase) Valid() bool {
	return tb.valid
}

// Offset returns the current offset in milliseconds.
func (tb TimeBase) Offset() float64 {
	return tb.offset
}

// Millis converts a log timestamp in microseconds to epoch milliseconds,
// flooring the fractional part. ok is false while the time base is undefined.
func (tb TimeBase) Millis(logMicros int64) (ms int64, ok bool) {
	if !tb.valid {
		return 0, false
	}
	return int64(math.Floor(tb.offset + float64(logMicros)/1000)), true
}
