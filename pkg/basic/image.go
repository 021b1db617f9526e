package basic

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Bytecode image format: a little-endian blob with a fixed header
// {magic "QBCI", version u16, flags u16} followed by length-prefixed
// sections in order: constant pool, record-type table, procedure
// table (which also carries the module slot layout, array descriptors
// and label table), DATA pool, instruction stream, and an optional
// source map.

var imageMagic = [4]byte{'Q', 'B', 'C', 'I'}

// ImageVersion is the current format revision; readers refuse
// anything newer.
const ImageVersion uint16 = 1

// WriteImage serializes a program.
func WriteImage(w io.Writer, p *Program) error {
	var buf bytes.Buffer
	buf.Write(imageMagic[:])
	writeU16(&buf, ImageVersion)
	writeU16(&buf, p.Flags)

	writeSection(&buf, func(b *bytes.Buffer) {
		writeU32(b, uint32(len(p.Consts)))
		for _, v := range p.Consts {
			writeValue(b, v)
		}
	})
	writeSection(&buf, func(b *bytes.Buffer) {
		writeU32(b, uint32(len(p.Records)))
		for _, rt := range p.Records {
			writeString(b, rt.Name)
			writeU32(b, uint32(rt.Size))
			writeU32(b, uint32(len(rt.Fields)))
			for _, f := range rt.Fields {
				writeString(b, f.Name)
				b.WriteByte(byte(f.Kind))
				writeU32(b, uint32(f.FixedLen))
				writeU32(b, uint32(f.Offset))
				recID := int32(-1)
				if f.Record != nil {
					recID = int32(f.Record.ID)
				}
				writeI32(b, recID)
			}
		}
	})
	writeSection(&buf, func(b *bytes.Buffer) {
		writeU32(b, uint32(len(p.Procs)))
		for _, proc := range p.Procs {
			writeString(b, proc.Name)
			writeU32(b, uint32(proc.Entry))
			writeU32(b, uint32(proc.LocalCount))
			writeBool(b, proc.IsFunction)
			writeU32(b, uint32(len(proc.Params)))
			for _, prm := range proc.Params {
				b.WriteByte(byte(prm.Kind))
				writeBool(b, prm.ByVal)
				writeBool(b, prm.IsArray)
			}
			writeSlotDescs(b, proc.LocalDescs)
		}
		writeSlotDescs(b, p.GlobalDescs)
		writeU32(b, uint32(len(p.ArrayDescs)))
		for _, d := range p.ArrayDescs {
			writeU32(b, uint32(d.Dims))
			b.WriteByte(byte(d.ElemKind))
			writeU32(b, uint32(d.FixedLen))
			writeI32(b, int32(d.RecordID))
		}
		writeU32(b, uint32(len(p.Labels)))
		for name, pc := range p.Labels {
			writeString(b, name)
			writeU32(b, uint32(pc))
		}
	})
	writeSection(&buf, func(b *bytes.Buffer) {
		writeU32(b, uint32(len(p.Data)))
		for _, v := range p.Data {
			writeValue(b, v)
		}
	})
	writeSection(&buf, func(b *bytes.Buffer) {
		writeU32(b, uint32(len(p.Instructions)))
		for _, inst := range p.Instructions {
			b.WriteByte(byte(inst.Op))
			writeI32(b, inst.A)
			writeI32(b, inst.B)
			writeI32(b, inst.SpanIdx)
		}
	})
	writeSection(&buf, func(b *bytes.Buffer) {
		writeU32(b, uint32(len(p.Spans)))
		for _, s := range p.Spans {
			writeU32(b, uint32(s.Start))
			writeU32(b, uint32(s.End))
			writeU32(b, uint32(s.Line))
			writeU32(b, uint32(s.Col))
		}
	})

	_, err := w.Write(buf.Bytes())
	return err
}

// ReadImage deserializes a program, refusing unknown versions with
// UnsupportedImage.
func ReadImage(r io.Reader) (*Program, *RuntimeError) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, NewRuntimeError(ErrIOError, err.Error())
	}
	b := bytes.NewReader(raw)

	var magic [4]byte
	if _, err := io.ReadFull(b, magic[:]); err != nil || magic != imageMagic {
		return nil, NewRuntimeError(ErrUnsupportedImage, "not a bytecode image")
	}
	version, err1 := readU16(b)
	flags, err2 := readU16(b)
	if err1 != nil || err2 != nil {
		return nil, NewRuntimeError(ErrUnsupportedImage, "truncated header")
	}
	if version > ImageVersion {
		return nil, NewRuntimeError(ErrUnsupportedImage, fmt.Sprintf("image version %d not supported", version))
	}

	p := &Program{Flags: flags, Labels: make(map[string]int)}
	fail := func(what string) (*Program, *RuntimeError) {
		return nil, NewRuntimeError(ErrUnsupportedImage, "truncated "+what)
	}

	// constant pool
	sec, err := readSection(b)
	if err != nil {
		return fail("constant pool")
	}
	n, _ := readU32(sec)
	for i := uint32(0); i < n; i++ {
		v, err := readValue(sec)
		if err != nil {
			return fail("constant pool")
		}
		p.Consts = append(p.Consts, v)
	}

	// record-type table
	sec, err = readSection(b)
	if err != nil {
		return fail("record table")
	}
	n, _ = readU32(sec)
	type pendingField struct {
		rec   *RecordType
		field int
		ref   int32
	}
	var pending []pendingField
	for i := uint32(0); i < n; i++ {
		rt := &RecordType{ID: int(i)}
		rt.Name, _ = readString(sec)
		size, _ := readU32(sec)
		rt.Size = int(size)
		fn, _ := readU32(sec)
		for f := uint32(0); f < fn; f++ {
			var field RecordField
			field.Name, _ = readString(sec)
			kb, _ := sec.ReadByte()
			field.Kind = Kind(kb)
			fl, _ := readU32(sec)
			field.FixedLen = int(fl)
			off, _ := readU32(sec)
			field.Offset = int(off)
			ref, _ := readI32(sec)
			if ref >= 0 {
				pending = append(pending, pendingField{rt, int(f), ref})
			}
			rt.Fields = append(rt.Fields, field)
		}
		p.Records = append(p.Records, rt)
	}
	for _, pf := range pending {
		if int(pf.ref) < len(p.Records) {
			pf.rec.Fields[pf.field].Record = p.Records[pf.ref]
		}
	}

	// procedure table + layout
	sec, err = readSection(b)
	if err != nil {
		return fail("procedure table")
	}
	n, _ = readU32(sec)
	for i := uint32(0); i < n; i++ {
		var proc ProcEntry
		proc.Name, _ = readString(sec)
		entry, _ := readU32(sec)
		proc.Entry = int(entry)
		lc, _ := readU32(sec)
		proc.LocalCount = int(lc)
		proc.IsFunction, _ = readBool(sec)
		pn, _ := readU32(sec)
		for j := uint32(0); j < pn; j++ {
			var prm ParamDesc
			kb, _ := sec.ReadByte()
			prm.Kind = Kind(kb)
			prm.ByVal, _ = readBool(sec)
			prm.IsArray, _ = readBool(sec)
			proc.Params = append(proc.Params, prm)
		}
		proc.LocalDescs, _ = readSlotDescs(sec)
		p.Procs = append(p.Procs, proc)
	}
	p.GlobalDescs, _ = readSlotDescs(sec)
	n, _ = readU32(sec)
	for i := uint32(0); i < n; i++ {
		var d ArrayDesc
		dims, _ := readU32(sec)
		d.Dims = int(dims)
		kb, _ := sec.ReadByte()
		d.ElemKind = Kind(kb)
		fl, _ := readU32(sec)
		d.FixedLen = int(fl)
		ref, _ := readI32(sec)
		d.RecordID = int(ref)
		p.ArrayDescs = append(p.ArrayDescs, d)
	}
	n, _ = readU32(sec)
	for i := uint32(0); i < n; i++ {
		name, _ := readString(sec)
		pc, _ := readU32(sec)
		p.Labels[name] = int(pc)
	}

	// DATA pool
	sec, err = readSection(b)
	if err != nil {
		return fail("DATA pool")
	}
	n, _ = readU32(sec)
	for i := uint32(0); i < n; i++ {
		v, err := readValue(sec)
		if err != nil {
			return fail("DATA pool")
		}
		p.Data = append(p.Data, v)
	}

	// instruction stream
	sec, err = readSection(b)
	if err != nil {
		return fail("instruction stream")
	}
	n, _ = readU32(sec)
	for i := uint32(0); i < n; i++ {
		var inst Instruction
		op, rerr := sec.ReadByte()
		if rerr != nil {
			return fail("instruction stream")
		}
		inst.Op = OpCode(op)
		inst.A, _ = readI32(sec)
		inst.B, _ = readI32(sec)
		inst.SpanIdx, _ = readI32(sec)
		p.Instructions = append(p.Instructions, inst)
	}

	// optional source map
	if sec, err = readSection(b); err == nil {
		n, _ = readU32(sec)
		for i := uint32(0); i < n; i++ {
			var s Span
			v, _ := readU32(sec)
			s.Start = int(v)
			v, _ = readU32(sec)
			s.End = int(v)
			v, _ = readU32(sec)
			s.Line = int(v)
			v, _ = readU32(sec)
			s.Col = int(v)
			p.Spans = append(p.Spans, s)
		}
	}

	// every jump target must be a valid pc
	for pc, inst := range p.Instructions {
		switch inst.Op {
		case OP_JMP, OP_JMP_IF_FALSE, OP_JMP_IF_TRUE, OP_GOSUB:
			if inst.A < 0 || int(inst.A) > len(p.Instructions) {
				return nil, NewRuntimeError(ErrUnsupportedImage, fmt.Sprintf("jump target out of range at pc %d", pc))
			}
		}
	}
	return p, nil
}

// ---- primitive codecs ----

func writeU16(b *bytes.Buffer, v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	b.Write(tmp[:])
}

func writeU32(b *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.Write(tmp[:])
}

func writeI32(b *bytes.Buffer, v int32) { writeU32(b, uint32(v)) }

func writeU64(b *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.Write(tmp[:])
}

func writeBool(b *bytes.Buffer, v bool) {
	if v {
		b.WriteByte(1)
	} else {
		b.WriteByte(0)
	}
}

func writeString(b *bytes.Buffer, s string) {
	writeU32(b, uint32(len(s)))
	b.WriteString(s)
}

func writeValue(b *bytes.Buffer, v Value) {
	b.WriteByte(byte(v.Kind))
	switch v.Kind {
	case KindSingle, KindDouble:
		writeU64(b, math.Float64bits(v.Real))
	case KindString, KindFixedString:
		writeString(b, v.Str)
	default:
		writeU64(b, uint64(v.Int))
	}
}

func writeSlotDescs(b *bytes.Buffer, descs []SlotDesc) {
	writeU32(b, uint32(len(descs)))
	for _, d := range descs {
		b.WriteByte(byte(d.Kind))
		writeU32(b, uint32(d.FixedLen))
		writeI32(b, int32(d.RecordID))
	}
}

func readSlotDescs(r *bytes.Reader) ([]SlotDesc, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	var descs []SlotDesc
	for i := uint32(0); i < n; i++ {
		var d SlotDesc
		kb, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		d.Kind = Kind(kb)
		fl, err := readU32(r)
		if err != nil {
			return nil, err
		}
		d.FixedLen = int(fl)
		ref, err := readI32(r)
		if err != nil {
			return nil, err
		}
		d.RecordID = int(ref)
		descs = append(descs, d)
	}
	return descs, nil
}

// writeSection writes a length-prefixed payload.
func writeSection(b *bytes.Buffer, fill func(*bytes.Buffer)) {
	var payload bytes.Buffer
	fill(&payload)
	writeU32(b, uint32(payload.Len()))
	b.Write(payload.Bytes())
}

func readSection(r *bytes.Reader) (*bytes.Reader, error) {
	length, err := readU32(r)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return bytes.NewReader(payload), nil
}

func readU16(r *bytes.Reader) (uint16, error) {
	var tmp [2]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(tmp[:]), nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(tmp[:]), nil
}

func readI32(r *bytes.Reader) (int32, error) {
	v, err := readU32(r)
	return int32(v), err
}

func readBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func readU64(r *bytes.Reader) (uint64, error) {
	var tmp [8]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(tmp[:]), nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readValue(r *bytes.Reader) (Value, error) {
	kb, err := r.ReadByte()
	if err != nil {
		return Value{}, err
	}
	v := Value{Kind: Kind(kb)}
	switch v.Kind {
	case KindSingle, KindDouble:
		bits, err := readU64(r)
		if err != nil {
			return Value{}, err
		}
		v.Real = math.Float64frombits(bits)
	case KindString, KindFixedString:
		s, err := readString(r)
		if err != nil {
			return Value{}, err
		}
		v.Str = s
	default:
		bits, err := readU64(r)
		if err != nil {
			return Value{}, err
		}
		v.Int = int64(bits)
	}
	return v, nil
}
