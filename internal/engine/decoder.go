package engine

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/coffersTech/datalog-influx/internal/datalog"
	"github.com/coffersTech/datalog-influx/internal/model"
)

var (
	// ErrDecode wraps payloads that do not match the declared entry type.
	ErrDecode = errors.New("decode failed")
	// ErrUnsupportedType is returned for entry types that produce no values.
	ErrUnsupportedType = errors.New("unsupported entry type")
)

// DecodedValue is one named scalar produced from a data record.
type DecodedValue struct {
	Field string
	Value model.Value
}

// Decoder turns data records into named values according to the entry
// descriptor. The returned slice is reused by the next call.
type Decoder struct {
	buf []DecodedValue
}

// Decode decodes rec as a value of desc.Type. Array types expand into fields
// named "<name>/<index>", in index order.
func (d *Decoder) Decode(desc *EntryDescriptor, rec datalog.Record) ([]DecodedValue, error) {
	d.buf = d.buf[:0]

	switch desc.Type {
	case TypeDouble:
		v, err := rec.Double()
		if err != nil {
			return nil, decodeError(desc, err)
		}
		d.scalar(desc.Name, model.Float(v))
	case TypeInt64:
		v, err := rec.Integer()
		if err != nil {
			return nil, decodeError(desc, err)
		}
		d.scalar(desc.Name, model.Int(v))
	case TypeString:
		v, err := rec.StringValue()
		if err != nil {
			return nil, decodeError(desc, err)
		}
		d.scalar(desc.Name, model.String(v))
	case TypeBoolean:
		v, err := rec.Boolean()
		if err != nil {
			return nil, decodeError(desc, err)
		}
		d.scalar(desc.Name, model.Bool(v))
	case TypeBooleanArray:
		arr, err := rec.BooleanArray()
		if err != nil {
			return nil, decodeError(desc, err)
		}
		for i, v := range arr {
			d.indexed(desc.Name, i, model.Bool(v))
		}
	case TypeDoubleArray:
		arr, err := rec.DoubleArray()
		if err != nil {
			return nil, decodeError(desc, err)
		}
		for i, v := range arr {
			d.indexed(desc.Name, i, model.Float(v))
		}
	case TypeFloatArray:
		arr, err := rec.FloatArray()
		if err != nil {
			return nil, decodeError(desc, err)
		}
		for i, v := range arr {
			d.indexed(desc.Name, i, model.Float(float64(v)))
		}
	case TypeInt64Array:
		arr, err := rec.IntegerArray()
		if err != nil {
			return nil, decodeError(desc, err)
		}
		for i, v := range arr {
			d.indexed(desc.Name, i, model.Int(v))
		}
	case TypeStringArray:
		arr, err := rec.StringArray()
		if err != nil {
			return nil, decodeError(desc, err)
		}
		for i, v := range arr {
			d.indexed(desc.Name, i, model.String(v))
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, desc.TypeName)
	}

	return d.buf, nil
}

func (d *Decoder) scalar(name string, v model.Value) {
	d.buf = append(d.buf, DecodedValue{Field: name, Value: v})
}

func (d *Decoder) indexed(name string, i int, v model.Value) {
	d.buf = append(d.buf, DecodedValue{Field: name + "/" + strconv.Itoa(i), Value: v})
}

func decodeError(desc *EntryDescriptor, err error) error {
	return fmt.Errorf("%w: entry %d (%s) as %s: %w", ErrDecode, desc.ID, desc.Name, desc.Type, err)
}
