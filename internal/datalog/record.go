package datalog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

// ErrTypeMismatch is returned by the typed accessors when the payload does
// not have the physical encoding the caller asked for.
var ErrTypeMismatch = errors.New("datalog: payload type mismatch")

// Control record types (first payload byte of an entry 0 record).
const (
	controlStart       = 0
	controlFinish      = 1
	controlSetMetadata = 2
)

// Kind classifies a record.
type Kind uint8

const (
	KindData Kind = iota
	KindStart
	KindFinish
	KindSetMetadata
	KindControl // control record of an unknown type
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "Data"
	case KindStart:
		return "Start"
	case KindFinish:
		return "Finish"
	case KindSetMetadata:
		return "SetMetadata"
	case KindControl:
		return "Control"
	default:
		return "Unknown"
	}
}

// Record is one framed event of the log. Data aliases the underlying byte
// source and must not be retained after the cursor advances.
type Record struct {
	Entry     uint32
	Timestamp int64 // microseconds, log-internal clock
	Data      []byte
}

// StartData is the payload of a Start control record.
type StartData struct {
	Entry    uint32
	Name     string
	Type     string
	Metadata string
}

// MetadataData is the payload of a SetMetadata control record.
type MetadataData struct {
	Entry    uint32
	Metadata string
}

// IsControl reports whether the record belongs to the control entry.
func (r Record) IsControl() bool {
	return r.Entry == 0
}

func (r Record) IsStart() bool {
	return r.Entry == 0 && len(r.Data) >= 17 && r.Data[0] == controlStart
}

func (r Record) IsFinish() bool {
	return r.Entry == 0 && len(r.Data) == 5 && r.Data[0] == controlFinish
}

func (r Record) IsSetMetadata() bool {
	return r.Entry == 0 && len(r.Data) >= 9 && r.Data[0] == controlSetMetadata
}

// Kind classifies the record. Control records whose payload does not fit a
// known layout are reported as KindControl.
func (r Record) Kind() Kind {
	switch {
	case r.IsStart():
		return KindStart
	case r.IsFinish():
		return KindFinish
	case r.IsSetMetadata():
		return KindSetMetadata
	case r.IsControl():
		return KindControl
	default:
		return KindData
	}
}

// StartData decodes a Start control record.
func (r Record) StartData() (StartData, error) {
	if !r.IsStart() {
		return StartData{}, fmt.Errorf("%w: not a start record", ErrTypeMismatch)
	}
	var (
		d   StartData
		err error
	)
	d.Entry = binary.LittleEndian.Uint32(r.Data[1:5])
	pos := 5
	if d.Name, pos, err = r.innerString(pos); err != nil {
		return StartData{}, err
	}
	if d.Type, pos, err = r.innerString(pos); err != nil {
		return StartData{}, err
	}
	if d.Metadata, _, err = r.innerString(pos); err != nil {
		return StartData{}, err
	}
	return d, nil
}

// FinishEntry decodes the entry ID of a Finish control record.
func (r Record) FinishEntry() (uint32, error) {
	if !r.IsFinish() {
		return 0, fmt.Errorf("%w: not a finish record", ErrTypeMismatch)
	}
	return binary.LittleEndian.Uint32(r.Data[1:5]), nil
}

// SetMetadataData decodes a SetMetadata control record.
func (r Record) SetMetadataData() (MetadataData, error) {
	if !r.IsSetMetadata() {
		return MetadataData{}, fmt.Errorf("%w: not a set metadata record", ErrTypeMismatch)
	}
	md, _, err := r.innerString(5)
	if err != nil {
		return MetadataData{}, err
	}
	return MetadataData{
		Entry:    binary.LittleEndian.Uint32(r.Data[1:5]),
		Metadata: md,
	}, nil
}

// Boolean decodes a single-byte boolean payload.
func (r Record) Boolean() (bool, error) {
	if len(r.Data) != 1 {
		return false, r.sizeMismatch("boolean")
	}
	return r.Data[0] != 0, nil
}

// Integer decodes an 8-byte signed integer payload.
func (r Record) Integer() (int64, error) {
	if len(r.Data) != 8 {
		return 0, r.sizeMismatch("int64")
	}
	return int64(binary.LittleEndian.Uint64(r.Data)), nil
}

// Float decodes a 4-byte IEEE 754 payload.
func (r Record) Float() (float32, error) {
	if len(r.Data) != 4 {
		return 0, r.sizeMismatch("float")
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(r.Data)), nil
}

// Double decodes an 8-byte IEEE 754 payload.
func (r Record) Double() (float64, error) {
	if len(r.Data) != 8 {
		return 0, r.sizeMismatch("double")
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(r.Data)), nil
}

// StringValue decodes a UTF-8 payload.
func (r Record) StringValue() (string, error) {
	if !utf8.Valid(r.Data) {
		return "", fmt.Errorf("%w: invalid UTF-8 string", ErrTypeMismatch)
	}
	return string(r.Data), nil
}

func (r Record) BooleanArray() ([]bool, error) {
	arr := make([]bool, len(r.Data))
	for i, b := range r.Data {
		arr[i] = b != 0
	}
	return arr, nil
}

func (r Record) IntegerArray() ([]int64, error) {
	if len(r.Data)%8 != 0 {
		return nil, r.sizeMismatch("int64[]")
	}
	arr := make([]int64, len(r.Data)/8)
	for i := range arr {
		arr[i] = int64(binary.LittleEndian.Uint64(r.Data[i*8:]))
	}
	return arr, nil
}

func (r Record) FloatArray() ([]float32, error) {
	if len(r.Data)%4 != 0 {
		return nil, r.sizeMismatch("float[]")
	}
	arr := make([]float32, len(r.Data)/4)
	for i := range arr {
		arr[i] = math.Float32frombits(binary.LittleEndian.Uint32(r.Data[i*4:]))
	}
	return arr, nil
}

func (r Record) DoubleArray() ([]float64, error) {
	if len(r.Data)%8 != 0 {
		return nil, r.sizeMismatch("double[]")
	}
	arr := make([]float64, len(r.Data)/8)
	for i := range arr {
		arr[i] = math.Float64frombits(binary.LittleEndian.Uint64(r.Data[i*8:]))
	}
	return arr, nil
}

// StringArray decodes a count-prefixed array of length-prefixed strings.
func (r Record) StringArray() ([]string, error) {
	if len(r.Data) < 4 {
		return nil, r.sizeMismatch("string[]")
	}
	n := binary.LittleEndian.Uint32(r.Data)
	// every element needs at least its 4-byte length
	if uint64(n) > uint64(len(r.Data)-4)/4 {
		return nil, fmt.Errorf("%w: string[] count %d exceeds payload", ErrTypeMismatch, n)
	}
	arr := make([]string, 0, n)
	pos := 4
	for i := uint32(0); i < n; i++ {
		s, next, err := r.innerString(pos)
		if err != nil {
			return nil, err
		}
		arr = append(arr, s)
		pos = next
	}
	return arr, nil
}

func (r Record) innerString(pos int) (string, int, error) {
	if pos+4 > len(r.Data) {
		return "", 0, fmt.Errorf("%w: truncated string length at offset %d", ErrTypeMismatch, pos)
	}
	size := int(binary.LittleEndian.Uint32(r.Data[pos:]))
	end := pos + 4 + size
	if size < 0 || end > len(r.Data) {
		return "", 0, fmt.Errorf("%w: string at offset %d overruns payload", ErrTypeMismatch, pos)
	}
	b := r.Data[pos+4 : end]
	if !utf8.Valid(b) {
		return "", 0, fmt.Errorf("%w: invalid UTF-8 string at offset %d", ErrTypeMismatch, pos)
	}
	return string(b), end, nil
}

func (r Record) sizeMismatch(want string) error {
	return fmt.Errorf("%w: %d-byte payload is not %s", ErrTypeMismatch, len(r.Data), want)
}
