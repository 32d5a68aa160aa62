package protocol

import (
	"encoding/hex"
	"strconv"
	"unicode/utf8"
)

// Value is one decoded value of any type tag. Only the members matching Type
// are meaningful.
type Value struct {
	Type TypeID

	Bool   bool
	Int    int64 // byte, i16, i32, i64
	Double float64
	Bytes  []byte

	Fields []FieldValue // struct

	ElemType TypeID  // list, set
	Elems    []Value // list, set

	KeyType   TypeID     // map
	ValueType TypeID     // map
	Entries   []MapEntry // map
}

// FieldValue is one struct member.
type FieldValue struct {
	ID    int16
	Value Value
}

// MapEntry is one map pair.
type MapEntry struct {
	Key   Value
	Value Value
}

// Field returns the struct member with id.
func (v Value) Field(id int16) (Value, bool) {
	for _, f := range v.Fields {
		if f.ID == id {
			return f.Value, true
		}
	}
	return Value{}, false
}

// ReadValue materializes one value of typ.
func ReadValue(p Protocol, typ TypeID, maxDepth int) (Value, error) {
	if maxDepth <= 0 {
		return Value{}, NewProtocolError(ErrDepthLimit, "reading %s", typ)
	}
	v := Value{Type: typ}
	var err error
	switch typ {
	case Bool:
		v.Bool, err = p.ReadBool()
	case Byte:
		var b int8
		b, err = p.ReadByte()
		v.Int = int64(b)
	case I16:
		var n int16
		n, err = p.ReadI16()
		v.Int = int64(n)
	case I32:
		var n int32
		n, err = p.ReadI32()
		v.Int = int64(n)
	case I64:
		v.Int, err = p.ReadI64()
	case Double:
		v.Double, err = p.ReadDouble()
	case String:
		v.Bytes, err = p.ReadBinary()
	case Struct:
		_, err = ReadStruct(p, func(f FieldHeader) (bool, error) {
			fv, err := ReadValue(p, f.Type, maxDepth-1)
			if err != nil {
				return true, err
			}
			v.Fields = append(v.Fields, FieldValue{ID: f.ID, Value: fv})
			return true, nil
		})
	case List, Set:
		var h ListHeader
		if typ == List {
			h, err = p.ReadListBegin()
		} else {
			h, err = p.ReadSetBegin()
		}
		if err != nil {
			return Value{}, err
		}
		v.ElemType = h.ElemType
		v.Elems = make([]Value, 0, CapHint(h.Size))
		for i := 0; i < h.Size; i++ {
			elem, err := ReadValue(p, h.ElemType, maxDepth-1)
			if err != nil {
				return Value{}, err
			}
			v.Elems = append(v.Elems, elem)
		}
		if typ == List {
			err = p.ReadListEnd()
		} else {
			err = p.ReadSetEnd()
		}
	case Map:
		var h MapHeader
		h, err = p.ReadMapBegin()
		if err != nil {
			return Value{}, err
		}
		v.KeyType, v.ValueType = h.KeyType, h.ValueType
		v.Entries = make([]MapEntry, 0, CapHint(h.Size))
		for i := 0; i < h.Size; i++ {
			key, err := ReadValue(p, h.KeyType, maxDepth-1)
			if err != nil {
				return Value{}, err
			}
			val, err := ReadValue(p, h.ValueType, maxDepth-1)
			if err != nil {
				return Value{}, err
			}
			v.Entries = append(v.Entries, MapEntry{Key: key, Value: val})
		}
		err = p.ReadMapEnd()
	case Stop, Void:
		return Value{}, NewProtocolError(ErrInvalidSkipType, "cannot read %s value", typ)
	default:
		return Value{}, NewProtocolError(ErrUnknownTypeTag, "cannot read tag %d", byte(typ))
	}
	if err != nil {
		return Value{}, err
	}
	return v, nil
}

// WriteValue encodes v. Struct fields are written in slice order.
func WriteValue(p Protocol, v Value) error {
	switch v.Type {
	case Bool:
		return p.WriteBool(v.Bool)
	case Byte:
		return p.WriteByte(int8(v.Int))
	case I16:
		return p.WriteI16(int16(v.Int))
	case I32:
		return p.WriteI32(int32(v.Int))
	case I64:
		return p.WriteI64(v.Int)
	case Double:
		return p.WriteDouble(v.Double)
	case String:
		return p.WriteBinary(v.Bytes)
	case Struct:
		if err := p.WriteStructBegin(""); err != nil {
			return err
		}
		for _, f := range v.Fields {
			if err := p.WriteFieldBegin("", f.Value.Type, f.ID); err != nil {
				return err
			}
			if err := WriteValue(p, f.Value); err != nil {
				return err
			}
			if err := p.WriteFieldEnd(); err != nil {
				return err
			}
		}
		if err := p.WriteFieldStop(); err != nil {
			return err
		}
		return p.WriteStructEnd()
	case List:
		if err := p.WriteListBegin(v.ElemType, len(v.Elems)); err != nil {
			return err
		}
		for _, e := range v.Elems {
			if err := WriteValue(p, e); err != nil {
				return err
			}
		}
		return p.WriteListEnd()
	case Set:
		if err := p.WriteSetBegin(v.ElemType, len(v.Elems)); err != nil {
			return err
		}
		for _, e := range v.Elems {
			if err := WriteValue(p, e); err != nil {
				return err
			}
		}
		return p.WriteSetEnd()
	case Map:
		if err := p.WriteMapBegin(v.KeyType, v.ValueType, len(v.Entries)); err != nil {
			return err
		}
		for _, e := range v.Entries {
			if err := WriteValue(p, e.Key); err != nil {
				return err
			}
			if err := WriteValue(p, e.Value); err != nil {
				return err
			}
		}
		return p.WriteMapEnd()
	default:
		return NewProtocolError(ErrUnknownTypeTag, "cannot write %s value", v.Type)
	}
}

// Interface converts v to plain Go values suitable for JSON output. Structs
// become maps keyed by field id, maps become key/value pair lists, and
// binary becomes a string when it is printable UTF-8 and hex otherwise.
func (v Value) Interface() any {
	switch v.Type {
	case Bool:
		return v.Bool
	case Byte, I16, I32, I64:
		return v.Int
	case Double:
		return v.Double
	case String:
		if utf8.Valid(v.Bytes) && printable(v.Bytes) {
			return string(v.Bytes)
		}
		return "0x" + hex.EncodeToString(v.Bytes)
	case Struct:
		out := make(map[string]any, len(v.Fields))
		for _, f := range v.Fields {
			out[strconv.Itoa(int(f.ID))] = f.Value.Interface()
		}
		return out
	case List, Set:
		out := make([]any, 0, len(v.Elems))
		for _, e := range v.Elems {
			out = append(out, e.Interface())
		}
		return out
	case Map:
		out := make([]map[string]any, 0, len(v.Entries))
		for _, e := range v.Entries {
			out = append(out, map[string]any{"key": e.Key.Interface(), "value": e.Value.Interface()})
		}
		return out
	default:
		return nil
	}
}

func printable(b []byte) bool {
	for _, r := range string(b) {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	return true
}
