package basic

import "math"

// applyBinary evaluates one binary operator over two runtime values.
// Both the VM and the compile-time constant folder go through it, so
// operand kinds may still be mixed here; the common kind is derived
// with the same rules the semantic pass uses.
func applyBinary(op TokenKind, kw string, l, r Value) (Value, *RuntimeError) {
	if l.Kind.IsString() || r.Kind.IsString() {
		if !l.Kind.IsString() || !r.Kind.IsString() {
			return Value{}, NewRuntimeError(ErrTypeMismatch, "cannot mix string and numeric operands")
		}
		switch {
		case op == TokPlus:
			return StringValue(l.Str + r.Str), nil
		case op.isRelOp():
			return boolValue(compareStrings(op, l.Str, r.Str)), nil
		}
		return Value{}, NewRuntimeError(ErrTypeMismatch, "invalid string operator")
	}
	if !l.Kind.IsNumeric() || !r.Kind.IsNumeric() {
		return Value{}, NewRuntimeError(ErrTypeMismatch, "numeric operands required")
	}

	switch kw {
	case "AND":
		return logicalResult(l, r, l.AsInt64()&r.AsInt64())
	case "OR":
		return logicalResult(l, r, l.AsInt64()|r.AsInt64())
	case "MOD":
		k := logicalKind(l.Kind, r.Kind)
		d := r.AsInt64()
		if d == 0 {
			return Value{}, NewRuntimeError(ErrDivideByZero, "")
		}
		// remainder carries the sign of the dividend
		return intResult(k, l.AsInt64()%d)
	}

	switch op {
	case TokCaret:
		return DoubleValue(math.Pow(l.AsDouble(), r.AsDouble())), nil
	case TokBackslash:
		k := logicalKind(l.Kind, r.Kind)
		d := r.AsInt64()
		if d == 0 {
			return Value{}, NewRuntimeError(ErrDivideByZero, "")
		}
		// Go integer division already truncates toward zero
		return intResult(k, l.AsInt64()/d)
	case TokSlash:
		k := CommonKind(CommonKind(l.Kind, r.Kind), KindSingle)
		d := r.AsDouble()
		if d == 0 {
			return Value{}, NewRuntimeError(ErrDivideByZero, "")
		}
		q := l.AsDouble() / d
		if k == KindSingle {
			return SingleValue(float32(q)), nil
		}
		return DoubleValue(q), nil
	case TokEq, TokNe, TokLt, TokLe, TokGt, TokGe:
		return boolValue(compareNumbers(op, l, r)), nil
	}

	k := CommonKind(l.Kind, r.Kind)
	if k == KindSingle || k == KindDouble {
		a, b := l.AsDouble(), r.AsDouble()
		var f float64
		switch op {
		case TokPlus:
			f = a + b
		case TokMinus:
			f = a - b
		case TokStar:
			f = a * b
		default:
			return Value{}, NewRuntimeError(ErrTypeMismatch, "invalid operator")
		}
		if k == KindSingle {
			return SingleValue(float32(f)), nil
		}
		return DoubleValue(f), nil
	}

	a, b := l.AsInt64(), r.AsInt64()
	var n int64
	switch op {
	case TokPlus:
		n = a + b
	case TokMinus:
		n = a - b
	case TokStar:
		n = a * b
	default:
		return Value{}, NewRuntimeError(ErrTypeMismatch, "invalid operator")
	}
	return intResult(k, n)
}

// applyUnary evaluates unary minus or NOT.
func applyUnary(not bool, v Value) (Value, *RuntimeError) {
	if !v.Kind.IsNumeric() {
		return Value{}, NewRuntimeError(ErrTypeMismatch, "numeric operand required")
	}
	if not {
		return logicalResult(v, v, ^v.AsInt64())
	}
	switch v.Kind {
	case KindSingle, KindDouble:
		v.Real = -v.Real
		return v, nil
	case KindUInt32:
		return intResult(KindInt64, -v.AsInt64())
	default:
		return intResult(v.Kind, -v.Int)
	}
}

// intResult narrows an int64 computation back to the result kind,
// failing with Overflow when the signed width cannot hold it.
func intResult(k Kind, n int64) (Value, *RuntimeError) {
	switch k {
	case KindInt16:
		if n < math.MinInt16 || n > math.MaxInt16 {
			return Value{}, NewRuntimeError(ErrOverflow, "")
		}
		return Int16Value(int16(n)), nil
	case KindInt32:
		if n < math.MinInt32 || n > math.MaxInt32 {
			return Value{}, NewRuntimeError(ErrOverflow, "")
		}
		return Int32Value(int32(n)), nil
	case KindUInt32:
		if n < 0 || n > math.MaxUint32 {
			return Value{}, NewRuntimeError(ErrOverflow, "")
		}
		return UInt32Value(uint32(n)), nil
	default:
		return Int64Value(n), nil
	}
}

func logicalResult(l, r Value, n int64) (Value, *RuntimeError) {
	return intResult(logicalKind(l.Kind, r.Kind), n)
}

// boolValue is the dialect's boolean: INTEGER -1 for true, 0 for
// false.
func boolValue(b bool) Value {
	if b {
		return Int16Value(-1)
	}
	return Int16Value(0)
}

func compareStrings(op TokenKind, a, b string) bool {
	switch op {
	case TokEq:
		return a == b
	case TokNe:
		return a != b
	case TokLt:
		return a < b
	case TokLe:
		return a <= b
	case TokGt:
		return a > b
	case TokGe:
		return a >= b
	}
	return false
}

func compareNumbers(op TokenKind, l, r Value) bool {
	k := CommonKind(l.Kind, r.Kind)
	if k == KindSingle || k == KindDouble {
		a, b := l.AsDouble(), r.AsDouble()
		switch op {
		case TokEq:
			return a == b
		case TokNe:
			return a != b
		case TokLt:
			return a < b
		case TokLe:
			return a <= b
		case TokGt:
			return a > b
		case TokGe:
			return a >= b
		}
		return false
	}
	a, b := l.AsInt64(), r.AsInt64()
	switch op {
	case TokEq:
		return a == b
	case TokNe:
		return a != b
	case TokLt:
		return a < b
	case TokLe:
		return a <= b
	case TokGt:
		return a > b
	case TokGe:
		return a >= b
	}
	return false
}
