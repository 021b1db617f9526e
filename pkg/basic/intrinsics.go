package basic

import (
	"math"
	"strconv"
	"strings"
)

// Intrinsic identifiers. The table order is frozen: ids are stored in
// emitted images.
const (
	IntrAbs = iota
	IntrSgn
	IntrInt
	IntrFix
	IntrSqr
	IntrSin
	IntrCos
	IntrTan
	IntrAtn
	IntrExp
	IntrLog
	IntrRnd
	IntrTimer
	IntrLen
	IntrAsc
	IntrChr
	IntrStr
	IntrVal
	IntrLeft
	IntrRight
	IntrMid
	IntrInstr
	IntrSpace
	IntrStringRep
	IntrUcase
	IntrLcase
	IntrLtrim
	IntrRtrim
	IntrCint
	IntrClng
	IntrCsng
	IntrCdbl
	IntrEof
	IntrInkey
	// statement intrinsics routed to the optional AV host surface
	IntrCls
	IntrBeep
	IntrSound
	IntrPlay
	IntrScreen
)

// intrinsicDef describes one built-in for the semantic pass: arity,
// argument classes ('n' numeric, 's' string; the last class repeats
// for variadic tails) and result kind. A KindEmpty result means "the
// numeric kind of the first argument".
type intrinsicDef struct {
	Name      string
	MinArgs   int
	MaxArgs   int
	Args      string
	Result    Kind
	Statement bool
}

var intrinsicDefs = []intrinsicDef{
	IntrAbs:       {Name: "ABS", MinArgs: 1, MaxArgs: 1, Args: "n"},
	IntrSgn:       {Name: "SGN", MinArgs: 1, MaxArgs: 1, Args: "n", Result: KindInt16},
	IntrInt:       {Name: "INT", MinArgs: 1, MaxArgs: 1, Args: "n"},
	IntrFix:       {Name: "FIX", MinArgs: 1, MaxArgs: 1, Args: "n"},
	IntrSqr:       {Name: "SQR", MinArgs: 1, MaxArgs: 1, Args: "n", Result: KindDouble},
	IntrSin:       {Name: "SIN", MinArgs: 1, MaxArgs: 1, Args: "n", Result: KindDouble},
	IntrCos:       {Name: "COS", MinArgs: 1, MaxArgs: 1, Args: "n", Result: KindDouble},
	IntrTan:       {Name: "TAN", MinArgs: 1, MaxArgs: 1, Args: "n", Result: KindDouble},
	IntrAtn:       {Name: "ATN", MinArgs: 1, MaxArgs: 1, Args: "n", Result: KindDouble},
	IntrExp:       {Name: "EXP", MinArgs: 1, MaxArgs: 1, Args: "n", Result: KindDouble},
	IntrLog:       {Name: "LOG", MinArgs: 1, MaxArgs: 1, Args: "n", Result: KindDouble},
	IntrRnd:       {Name: "RND", MinArgs: 0, MaxArgs: 1, Args: "n", Result: KindSingle},
	IntrTimer:     {Name: "TIMER", MinArgs: 0, MaxArgs: 0, Result: KindSingle},
	IntrLen:       {Name: "LEN", MinArgs: 1, MaxArgs: 1, Args: "s", Result: KindInt32},
	IntrAsc:       {Name: "ASC", MinArgs: 1, MaxArgs: 1, Args: "s", Result: KindInt32},
	IntrChr:       {Name: "CHR$", MinArgs: 1, MaxArgs: 1, Args: "n", Result: KindString},
	IntrStr:       {Name: "STR$", MinArgs: 1, MaxArgs: 1, Args: "n", Result: KindString},
	IntrVal:       {Name: "VAL", MinArgs: 1, MaxArgs: 1, Args: "s", Result: KindDouble},
	IntrLeft:      {Name: "LEFT$", MinArgs: 2, MaxArgs: 2, Args: "sn", Result: KindString},
	IntrRight:     {Name: "RIGHT$", MinArgs: 2, MaxArgs: 2, Args: "sn", Result: KindString},
	IntrMid:       {Name: "MID$", MinArgs: 2, MaxArgs: 3, Args: "snn", Result: KindString},
	IntrInstr:     {Name: "INSTR", MinArgs: 2, MaxArgs: 3, Args: "a", Result: KindInt32},
	IntrSpace:     {Name: "SPACE$", MinArgs: 1, MaxArgs: 1, Args: "n", Result: KindString},
	IntrStringRep: {Name: "STRING$", MinArgs: 2, MaxArgs: 2, Args: "na", Result: KindString},
	IntrUcase:     {Name: "UCASE$", MinArgs: 1, MaxArgs: 1, Args: "s", Result: KindString},
	IntrLcase:     {Name: "LCASE$", MinArgs: 1, MaxArgs: 1, Args: "s", Result: KindString},
	IntrLtrim:     {Name: "LTRIM$", MinArgs: 1, MaxArgs: 1, Args: "s", Result: KindString},
	IntrRtrim:     {Name: "RTRIM$", MinArgs: 1, MaxArgs: 1, Args: "s", Result: KindString},
	IntrCint:      {Name: "CINT", MinArgs: 1, MaxArgs: 1, Args: "n", Result: KindInt16},
	IntrClng:      {Name: "CLNG", MinArgs: 1, MaxArgs: 1, Args: "n", Result: KindInt32},
	IntrCsng:      {Name: "CSNG", MinArgs: 1, MaxArgs: 1, Args: "n", Result: KindSingle},
	IntrCdbl:      {Name: "CDBL", MinArgs: 1, MaxArgs: 1, Args: "n", Result: KindDouble},
	IntrEof:       {Name: "EOF", MinArgs: 1, MaxArgs: 1, Args: "n", Result: KindInt16},
	IntrInkey:     {Name: "INKEY$", MinArgs: 0, MaxArgs: 0, Result: KindString},
	IntrCls:       {Name: "CLS", MinArgs: 0, MaxArgs: 0, Statement: true},
	IntrBeep:      {Name: "BEEP", MinArgs: 0, MaxArgs: 0, Statement: true},
	IntrSound:     {Name: "SOUND", MinArgs: 2, MaxArgs: 2, Args: "nn", Statement: true},
	IntrPlay:      {Name: "PLAY", MinArgs: 1, MaxArgs: 1, Args: "s", Statement: true},
	IntrScreen:    {Name: "SCREEN", MinArgs: 1, MaxArgs: 1, Args: "n", Statement: true},
}

var intrinsicByName = func() map[string]int {
	m := make(map[string]int, len(intrinsicDefs))
	for id, def := range intrinsicDefs {
		m[def.Name] = id
	}
	return m
}()

// LookupIntrinsic resolves a built-in by (uppercase) name; -1 when
// unknown.
func LookupIntrinsic(name string) int {
	if id, ok := intrinsicByName[name]; ok {
		return id
	}
	return -1
}

// argClass returns the expected class of argument i for a definition.
func (d intrinsicDef) argClass(i int) byte {
	if len(d.Args) == 0 {
		return 'a'
	}
	if i >= len(d.Args) {
		return d.Args[len(d.Args)-1]
	}
	return d.Args[i]
}

// callIntrinsic evaluates a built-in inside the VM with the popped
// argument values.
func (vm *VM) callIntrinsic(id int, args []Value) (Value, *RuntimeError) {
	numArg := func(i int) float64 { return args[i].AsDouble() }
	strArg := func(i int) string { return args[i].Str }
	intArg := func(i int) int { return int(args[i].AsInt64()) }

	switch id {
	case IntrAbs:
		v := args[0]
		switch v.Kind {
		case KindSingle, KindDouble:
			v.Real = math.Abs(v.Real)
		default:
			if v.Int < 0 {
				v.Int = -v.Int
			}
		}
		return v, nil
	case IntrSgn:
		n := numArg(0)
		switch {
		case n > 0:
			return Int16Value(1), nil
		case n < 0:
			return Int16Value(-1), nil
		}
		return Int16Value(0), nil
	case IntrInt:
		v := args[0]
		if v.Kind == KindSingle || v.Kind == KindDouble {
			v.Real = math.Floor(v.Real)
		}
		return v, nil
	case IntrFix:
		// truncation toward zero
		v := args[0]
		if v.Kind == KindSingle || v.Kind == KindDouble {
			v.Real = math.Trunc(v.Real)
		}
		return v, nil
	case IntrSqr:
		n := numArg(0)
		if n < 0 {
			return Value{}, NewRuntimeError(ErrIllegalFunction, "SQR of negative value")
		}
		return DoubleValue(math.Sqrt(n)), nil
	case IntrSin:
		return DoubleValue(math.Sin(numArg(0))), nil
	case IntrCos:
		return DoubleValue(math.Cos(numArg(0))), nil
	case IntrTan:
		return DoubleValue(math.Tan(numArg(0))), nil
	case IntrAtn:
		return DoubleValue(math.Atan(numArg(0))), nil
	case IntrExp:
		return DoubleValue(math.Exp(numArg(0))), nil
	case IntrLog:
		n := numArg(0)
		if n <= 0 {
			return Value{}, NewRuntimeError(ErrIllegalFunction, "LOG of non-positive value")
		}
		return DoubleValue(math.Log(n)), nil
	case IntrRnd:
		if len(args) > 0 && numArg(0) < 0 {
			vm.rng.Seed(uint64(int64(numArg(0))))
		}
		return SingleValue(vm.rng.Next()), nil
	case IntrTimer:
		return SingleValue(float32(vm.host.NowTicks())), nil
	case IntrLen:
		return Int32Value(int32(len(strArg(0)))), nil
	case IntrAsc:
		s := strArg(0)
		if s == "" {
			return Value{}, NewRuntimeError(ErrIllegalFunction, "ASC of empty string")
		}
		return Int32Value(int32(s[0])), nil
	case IntrChr:
		n := intArg(0)
		if n < 0 || n > 255 {
			return Value{}, NewRuntimeError(ErrIllegalFunction, "CHR$ code out of range")
		}
		return StringValue(string([]byte{byte(n)})), nil
	case IntrStr:
		s := args[0].Format()
		if !strings.HasPrefix(s, "-") {
			s = " " + s
		}
		return StringValue(s), nil
	case IntrVal:
		return DoubleValue(parseVal(strArg(0))), nil
	case IntrLeft:
		s, n := strArg(0), intArg(1)
		if n < 0 {
			return Value{}, NewRuntimeError(ErrIllegalFunction, "negative count in LEFT$")
		}
		if n > len(s) {
			n = len(s)
		}
		return StringValue(s[:n]), nil
	case IntrRight:
		s, n := strArg(0), intArg(1)
		if n < 0 {
			return Value{}, NewRuntimeError(ErrIllegalFunction, "negative count in RIGHT$")
		}
		if n > len(s) {
			n = len(s)
		}
		return StringValue(s[len(s)-n:]), nil
	case IntrMid:
		s, start := strArg(0), intArg(1)
		if start < 1 {
			return Value{}, NewRuntimeError(ErrIllegalFunction, "MID$ start before 1")
		}
		start--
		if start > len(s) {
			start = len(s)
		}
		rest := s[start:]
		if len(args) == 3 {
			n := intArg(2)
			if n < 0 {
				return Value{}, NewRuntimeError(ErrIllegalFunction, "negative length in MID$")
			}
			if n < len(rest) {
				rest = rest[:n]
			}
		}
		return StringValue(rest), nil
	case IntrInstr:
		// INSTR([start,] haystack$, needle$)
		start := 1
		a, b := 0, 1
		if len(args) == 3 {
			start = intArg(0)
			a, b = 1, 2
		}
		if start < 1 {
			return Value{}, NewRuntimeError(ErrIllegalFunction, "INSTR start before 1")
		}
		hay, needle := args[a].Str, args[b].Str
		if start > len(hay) {
			return Int32Value(0), nil
		}
		idx := strings.Index(hay[start-1:], needle)
		if idx < 0 {
			return Int32Value(0), nil
		}
		return Int32Value(int32(start + idx)), nil
	case IntrSpace:
		n := intArg(0)
		if n < 0 {
			return Value{}, NewRuntimeError(ErrIllegalFunction, "negative count in SPACE$")
		}
		return StringValue(strings.Repeat(" ", n)), nil
	case IntrStringRep:
		n := intArg(0)
		if n < 0 {
			return Value{}, NewRuntimeError(ErrIllegalFunction, "negative count in STRING$")
		}
		var ch byte
		if args[1].Kind.IsString() {
			if args[1].Str == "" {
				return Value{}, NewRuntimeError(ErrIllegalFunction, "STRING$ of empty string")
			}
			ch = args[1].Str[0]
		} else {
			code := args[1].AsInt64()
			if code < 0 || code > 255 {
				return Value{}, NewRuntimeError(ErrIllegalFunction, "STRING$ code out of range")
			}
			ch = byte(code)
		}
		return StringValue(strings.Repeat(string([]byte{ch}), n)), nil
	case IntrUcase:
		return StringValue(strings.ToUpper(strArg(0))), nil
	case IntrLcase:
		return StringValue(strings.ToLower(strArg(0))), nil
	case IntrLtrim:
		return StringValue(strings.TrimLeft(strArg(0), " ")), nil
	case IntrRtrim:
		return StringValue(strings.TrimRight(strArg(0), " ")), nil
	case IntrCint:
		return args[0].Coerce(KindInt16)
	case IntrClng:
		return args[0].Coerce(KindInt32)
	case IntrCsng:
		return args[0].Coerce(KindSingle)
	case IntrCdbl:
		return args[0].Coerce(KindDouble)
	case IntrEof:
		ch, err := vm.channel(intArg(0))
		if err != nil {
			return Value{}, err
		}
		if ch.AtEOF() {
			return Int16Value(-1), nil
		}
		return Int16Value(0), nil
	case IntrInkey:
		// no keyboard queue on the core host; returns empty
		return StringValue(""), nil

	case IntrCls:
		if av, ok := vm.host.(AVHost); ok {
			av.Cls()
			return Value{}, nil
		}
		return Value{}, NewRuntimeError(ErrFeatureUnavailable, "CLS needs a console host")
	case IntrBeep:
		if av, ok := vm.host.(AVHost); ok {
			av.Beep()
			return Value{}, nil
		}
		return Value{}, NewRuntimeError(ErrFeatureUnavailable, "BEEP needs a sound host")
	case IntrSound:
		if av, ok := vm.host.(AVHost); ok {
			av.Sound(numArg(0), numArg(1))
			return Value{}, nil
		}
		return Value{}, NewRuntimeError(ErrFeatureUnavailable, "SOUND needs a sound host")
	case IntrPlay:
		if av, ok := vm.host.(AVHost); ok {
			av.Play(strArg(0))
			return Value{}, nil
		}
		return Value{}, NewRuntimeError(ErrFeatureUnavailable, "PLAY needs a sound host")
	case IntrScreen:
		if av, ok := vm.host.(AVHost); ok {
			av.Screen(intArg(0))
			return Value{}, nil
		}
		return Value{}, NewRuntimeError(ErrFeatureUnavailable, "SCREEN needs a graphics host")
	}
	return Value{}, NewRuntimeError(ErrIllegalFunction, "unknown intrinsic")
}

// parseVal implements the VAL scan: leading spaces, optional sign,
// digits, fraction, exponent; stops at the first invalid character.
func parseVal(s string) float64 {
	s = strings.TrimLeft(s, " \t")
	end := 0
	seenDigit := false
	for end < len(s) {
		c := s[end]
		if c >= '0' && c <= '9' {
			seenDigit = true
			end++
			continue
		}
		if (c == '+' || c == '-') && end == 0 {
			end++
			continue
		}
		if c == '.' {
			end++
			continue
		}
		if (c == 'E' || c == 'e' || c == 'D' || c == 'd') && seenDigit {
			end++
			if end < len(s) && (s[end] == '+' || s[end] == '-') {
				end++
			}
			continue
		}
		break
	}
	f, err := strconv.ParseFloat(strings.Map(mapExponent, s[:end]), 64)
	if err != nil {
		return 0
	}
	return f
}
