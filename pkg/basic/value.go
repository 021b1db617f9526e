package basic

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind tags a runtime value or a static type.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindInt16
	KindInt32
	KindInt64
	KindUInt32
	KindSingle
	KindDouble
	KindString
	KindFixedString
	KindRecord
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindInt16:
		return "INTEGER"
	case KindInt32:
		return "LONG"
	case KindInt64:
		return "_INTEGER64"
	case KindUInt32:
		return "_UNSIGNED LONG"
	case KindSingle:
		return "SINGLE"
	case KindDouble:
		return "DOUBLE"
	case KindString:
		return "STRING"
	case KindFixedString:
		return "STRING*n"
	case KindRecord:
		return "TYPE"
	case KindArray:
		return "ARRAY"
	}
	return "EMPTY"
}

// IsNumeric reports whether the kind is one of the numeric kinds.
func (k Kind) IsNumeric() bool {
	switch k {
	case KindInt16, KindInt32, KindInt64, KindUInt32, KindSingle, KindDouble:
		return true
	}
	return false
}

// IsInteger reports whether the kind is an integer kind.
func (k Kind) IsInteger() bool {
	switch k {
	case KindInt16, KindInt32, KindInt64, KindUInt32:
		return true
	}
	return false
}

// IsString reports whether the kind is a string kind.
func (k Kind) IsString() bool { return k == KindString || k == KindFixedString }

// widenRank orders the numeric kinds along the implicit widening
// lattice: Int16 < Int32 < Int64 <= Single < Double. UInt32 fits into
// Int64 and Double.
func widenRank(k Kind) int {
	switch k {
	case KindInt16:
		return 1
	case KindInt32:
		return 2
	case KindUInt32:
		return 3
	case KindInt64:
		return 4
	case KindSingle:
		return 5
	case KindDouble:
		return 6
	}
	return 0
}

// CommonKind returns the kind arithmetic on a pair of numeric operands
// is carried out in.
func CommonKind(a, b Kind) Kind {
	if widenRank(a) >= widenRank(b) {
		return a
	}
	return b
}

// Value is the tagged runtime value of the VM. Exactly one of the
// payload fields is meaningful for a given Kind. Integer kinds share
// Int (UInt32 is stored zero-extended); Single is stored as the
// float64 image of its float32 value.
type Value struct {
	Kind Kind
	Int  int64
	Real float64
	Str  string
	Rec  *RecordValue
	Arr  *ArrayValue
}

// RecordValue holds one instance of a user-defined TYPE.
type RecordValue struct {
	Type   *RecordType
	Fields []Value
}

// ArrayValue is the shared storage behind an ArrayRef slot. Element
// storage is contiguous, row-major.
type ArrayValue struct {
	Elem   Kind
	ElemFixedLen int         // KindFixedString elements
	ElemType *RecordType     // KindRecord elements
	Bounds []ArrayBounds
	Data   []Value
}

// ArrayBounds is one inclusive dimension of an array.
type ArrayBounds struct {
	Lo int
	Hi int
}

// Count returns the number of elements in the dimension.
func (b ArrayBounds) Count() int { return b.Hi - b.Lo + 1 }

// Constructors.

func Int16Value(v int16) Value   { return Value{Kind: KindInt16, Int: int64(v)} }
func Int32Value(v int32) Value   { return Value{Kind: KindInt32, Int: int64(v)} }
func Int64Value(v int64) Value   { return Value{Kind: KindInt64, Int: v} }
func UInt32Value(v uint32) Value { return Value{Kind: KindUInt32, Int: int64(v)} }
func SingleValue(v float32) Value {
	return Value{Kind: KindSingle, Real: float64(v)}
}
func DoubleValue(v float64) Value { return Value{Kind: KindDouble, Real: v} }
func StringValue(s string) Value  { return Value{Kind: KindString, Str: s} }

// ZeroValue returns the default value for a scalar kind.
func ZeroValue(k Kind) Value {
	switch k {
	case KindString:
		return StringValue("")
	case KindFixedString:
		return Value{Kind: KindFixedString}
	default:
		return Value{Kind: k}
	}
}

// AsDouble widens any numeric value to Double.
func (v Value) AsDouble() float64 {
	switch v.Kind {
	case KindInt16, KindInt32, KindInt64:
		return float64(v.Int)
	case KindUInt32:
		return float64(uint32(v.Int))
	case KindSingle, KindDouble:
		return v.Real
	}
	return 0
}

// AsInt64 converts a numeric value to Int64, rounding floats to the
// nearest even integer the way implicit narrowing assignments do.
func (v Value) AsInt64() int64 {
	switch v.Kind {
	case KindInt16, KindInt32, KindInt64:
		return v.Int
	case KindUInt32:
		return int64(uint32(v.Int))
	case KindSingle, KindDouble:
		return int64(math.RoundToEven(v.Real))
	}
	return 0
}

// IsTrue implements the dialect's truth rule: any non-zero numeric is
// true.
func (v Value) IsTrue() bool {
	switch v.Kind {
	case KindSingle, KindDouble:
		return v.Real != 0
	default:
		return v.Int != 0
	}
}

// Coerce converts the value to the requested kind. Widening always
// succeeds. Narrowing to a signed integer kind rounds to nearest even
// and fails with Overflow when the result does not fit.
func (v Value) Coerce(to Kind) (Value, *RuntimeError) {
	if v.Kind == to {
		return v, nil
	}
	if to.IsString() {
		if !v.Kind.IsString() {
			return Value{}, NewRuntimeError(ErrTypeMismatch, "cannot convert "+v.Kind.String()+" to STRING")
		}
		return Value{Kind: to, Str: v.Str}, nil
	}
	if v.Kind.IsString() || !v.Kind.IsNumeric() {
		return Value{}, NewRuntimeError(ErrTypeMismatch, "cannot convert "+v.Kind.String()+" to "+to.String())
	}
	switch to {
	case KindDouble:
		return DoubleValue(v.AsDouble()), nil
	case KindSingle:
		return SingleValue(float32(v.AsDouble())), nil
	case KindInt64:
		if v.Kind == KindSingle || v.Kind == KindDouble {
			d := math.RoundToEven(v.Real)
			if d < math.MinInt64 || d >= math.MaxInt64 {
				return Value{}, NewRuntimeError(ErrOverflow, "overflow converting to _INTEGER64")
			}
			return Int64Value(int64(d)), nil
		}
		return Int64Value(v.AsInt64()), nil
	case KindUInt32:
		n := v.AsInt64()
		if v.Kind == KindSingle || v.Kind == KindDouble {
			n = int64(math.RoundToEven(v.Real))
		}
		if n < 0 || n > math.MaxUint32 {
			return Value{}, NewRuntimeError(ErrOverflow, "overflow converting to _UNSIGNED LONG")
		}
		return UInt32Value(uint32(n)), nil
	case KindInt32:
		n := v.AsInt64()
		if n < math.MinInt32 || n > math.MaxInt32 {
			return Value{}, NewRuntimeError(ErrOverflow, "overflow converting to LONG")
		}
		return Int32Value(int32(n)), nil
	case KindInt16:
		n := v.AsInt64()
		if n < math.MinInt16 || n > math.MaxInt16 {
			return Value{}, NewRuntimeError(ErrOverflow, "overflow converting to INTEGER")
		}
		return Int16Value(int16(n)), nil
	}
	return Value{}, NewRuntimeError(ErrTypeMismatch, "cannot convert to "+to.String())
}

// Copy returns a value safe to store in a distinct slot. Records,
// including nested records, are copied field-wise; array values are
// returned as is and keep sharing their storage; variable strings are
// immutable in Go so sharing the backing bytes is not observable.
func (v Value) Copy() Value {
	if v.Kind == KindRecord && v.Rec != nil {
		fields := make([]Value, len(v.Rec.Fields))
		for i, f := range v.Rec.Fields {
			fields[i] = f.Copy()
		}
		return Value{Kind: KindRecord, Rec: &RecordValue{Type: v.Rec.Type, Fields: fields}}
	}
	return v
}

// FitFixed pads or truncates a string to a fixed-string length.
func FitFixed(s string, length int) string {
	if len(s) >= length {
		return s[:length]
	}
	return s + strings.Repeat(" ", length-len(s))
}

// Format renders the value the way PRINT and STR$ do, without the
// PRINT sign/trailing spaces. Integers never grow an exponent.
func (v Value) Format() string {
	switch v.Kind {
	case KindInt16, KindInt32, KindInt64:
		return strconv.FormatInt(v.Int, 10)
	case KindUInt32:
		return strconv.FormatUint(uint64(uint32(v.Int)), 10)
	case KindSingle:
		return formatFloat(v.Real, 32)
	case KindDouble:
		return formatFloat(v.Real, 64)
	case KindString, KindFixedString:
		return v.Str
	case KindRecord:
		return "<" + v.Rec.Type.Name + ">"
	case KindArray:
		return "<ARRAY>"
	}
	return ""
}

// formatFloat renders a float the way the dialect prints it: no
// trailing ".0", no leading zero before the point, uppercase exponent
// marker (D for Double).
func formatFloat(f float64, bits int) string {
	if bits == 32 {
		f = float64(float32(f))
	}
	s := strconv.FormatFloat(f, 'G', -1, bits)
	if i := strings.IndexByte(s, 'E'); i >= 0 && bits == 64 {
		s = s[:i] + "D" + s[i+1:]
	}
	switch {
	case strings.HasPrefix(s, "0."):
		s = s[1:]
	case strings.HasPrefix(s, "-0."):
		s = "-" + s[2:]
	}
	return s
}

// PrintForm renders the value for a PRINT item: numerics get the
// leading sign position space and a trailing space, strings print
// verbatim.
func (v Value) PrintForm() string {
	if v.Kind.IsString() {
		return v.Str
	}
	s := v.Format()
	if !strings.HasPrefix(s, "-") {
		s = " " + s
	}
	return s + " "
}

// String implements fmt.Stringer for debugging dumps.
func (v Value) String() string {
	if v.Kind.IsString() {
		return fmt.Sprintf("%q", v.Str)
	}
	return v.Format()
}
