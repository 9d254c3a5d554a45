package engine

// EntryType is the closed set of value types an entry can declare.
type EntryType uint8

const (
	TypeOther EntryType = iota // unrecognized type string
	TypeDouble
	TypeInt64
	TypeString
	TypeBoolean
	TypeJSON
	TypeBooleanArray
	TypeDoubleArray
	TypeFloatArray
	TypeInt64Array
	TypeStringArray
)

var entryTypeNames = map[string]EntryType{
	"double":    TypeDouble,
	"int64":     TypeInt64,
	"string":    TypeString,
	"boolean":   TypeBoolean,
	"json":      TypeJSON,
	"boolean[]": TypeBooleanArray,
	"double[]":  TypeDoubleArray,
	"float[]":   TypeFloatArray,
	"int64[]":   TypeInt64Array,
	"string[]":  TypeStringArray,
}

// ParseEntryType maps a declared type string onto EntryType. Unknown strings
// map to TypeOther.
func ParseEntryType(s string) EntryType {
	if t, ok := entryTypeNames[s]; ok {
		return t
	}
	return TypeOther
}

var entryTypeStrings = [...]string{
	TypeOther:        "other",
	TypeDouble:       "double",
	TypeInt64:        "int64",
	TypeString:       "string",
	TypeBoolean:      "boolean",
	TypeJSON:         "json",
	TypeBooleanArray: "boolean[]",
	TypeDoubleArray:  "double[]",
	TypeFloatArray:   "float[]",
	TypeInt64Array:   "int64[]",
	TypeStringArray:  "string[]",
}

func (t EntryType) String() string {
	if int(t) < len(entryTypeStrings) {
		return entryTypeStrings[t]
	}
	return "other"
}

// IsArray reports whether values of this type expand into indexed fields.
func (t EntryType) IsArray() bool {
	switch t {
	case TypeBooleanArray, TypeDoubleArray, TypeFloatArray, TypeInt64Array, TypeStringArray:
		return true
	default:
		return false
	}
}

// Supported reports whether the decoder produces values for this type.
func (t EntryType) Supported() bool {
	return t != TypeOther && t != TypeJSON
}
