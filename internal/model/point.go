package model

import (
	"fmt"
	"math"
	"strconv"
)

// Kind tags the scalar held by a Value.
type Kind uint8

const (
	KindFloat Kind = iota + 1
	KindInt
	KindString
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Value is a single field value of a point: a float64, int64, string or
// bool. The zero Value is invalid.
type Value struct {
	kind Kind
	num  uint64 // float bits, int or bool
	str  string
}

func Float(v float64) Value {
	return Value{kind: KindFloat, num: math.Float64bits(v)}
}

func Int(v int64) Value {
	return Value{kind: KindInt, num: uint64(v)}
}

func String(v string) Value {
	return Value{kind: KindString, str: v}
}

func Bool(v bool) Value {
	var n uint64
	if v {
		n = 1
	}
	return Value{kind: KindBool, num: n}
}

func (v Value) Kind() Kind { return v.kind }

// Float returns the float64 held by v; it is 0 for other kinds.
func (v Value) Float() float64 {
	if v.kind != KindFloat {
		return 0
	}
	return math.Float64frombits(v.num)
}

func (v Value) Int() int64 {
	if v.kind != KindInt {
		return 0
	}
	return int64(v.num)
}

func (v Value) Str() string {
	return v.str
}

func (v Value) Bool() bool {
	return v.kind == KindBool && v.num != 0
}

// Bits returns the raw 64-bit payload of a numeric or boolean value.
func (v Value) Bits() uint64 {
	return v.num
}

// Interface returns the value as float64, int64, string or bool.
func (v Value) Interface() any {
	switch v.kind {
	case KindFloat:
		return v.Float()
	case KindInt:
		return v.Int()
	case KindString:
		return v.str
	case KindBool:
		return v.Bool()
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindFloat:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case KindInt:
		return strconv.FormatInt(v.Int(), 10)
	case KindString:
		return strconv.Quote(v.str)
	case KindBool:
		return strconv.FormatBool(v.Bool())
	default:
		return "<invalid>"
	}
}

// FromBits rebuilds a numeric or boolean Value from its kind and raw bits.
func FromBits(kind Kind, bits uint64) (Value, error) {
	switch kind {
	case KindFloat, KindInt:
		return Value{kind: kind, num: bits}, nil
	case KindBool:
		return Bool(bits != 0), nil
	default:
		return Value{}, fmt.Errorf("model: kind %s has no numeric form", kind)
	}
}

// Field is one named value of a point.
type Field struct {
	Name  string
	Value Value
}

// Point is one time-series observation written as a unit. Field names are
// unique within a point.
type Point struct {
	Measurement string
	Time        int64 // milliseconds since the Unix epoch
	Fields      []Field
}

// Field looks up a field value by name.
func (p Point) Field(name string) (Value, bool) {
	for _, f := range p.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}
