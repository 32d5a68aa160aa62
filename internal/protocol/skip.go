package protocol

// DefaultMaxDepth bounds skip recursion into nested containers.
const DefaultMaxDepth = 64

// Skip consumes exactly one encoded value of typ without materializing it.
// Structs are walked field by field until their stop; lists and sets skip
// size elements; maps skip size key/value pairs.
func Skip(p Protocol, typ TypeID, maxDepth int) error {
	if maxDepth <= 0 {
		return NewProtocolError(ErrDepthLimit, "skipping %s", typ)
	}
	switch typ {
	case Bool:
		_, err := p.ReadBool()
		return err
	case Byte:
		_, err := p.ReadByte()
		return err
	case I16:
		_, err := p.ReadI16()
		return err
	case I32:
		_, err := p.ReadI32()
		return err
	case I64:
		_, err := p.ReadI64()
		return err
	case Double:
		_, err := p.ReadDouble()
		return err
	case String:
		_, err := p.ReadBinary()
		return err
	case Struct:
		if _, err := p.ReadStructBegin(); err != nil {
			return err
		}
		for {
			f, err := p.ReadFieldBegin()
			if err != nil {
				return err
			}
			if f.Type == Stop {
				break
			}
			if err := Skip(p, f.Type, maxDepth-1); err != nil {
				return err
			}
			if err := p.ReadFieldEnd(); err != nil {
				return err
			}
		}
		return p.ReadStructEnd()
	case List:
		h, err := p.ReadListBegin()
		if err != nil {
			return err
		}
		for i := 0; i < h.Size; i++ {
			if err := Skip(p, h.ElemType, maxDepth-1); err != nil {
				return err
			}
		}
		return p.ReadListEnd()
	case Set:
		h, err := p.ReadSetBegin()
		if err != nil {
			return err
		}
		for i := 0; i < h.Size; i++ {
			if err := Skip(p, h.ElemType, maxDepth-1); err != nil {
				return err
			}
		}
		return p.ReadSetEnd()
	case Map:
		h, err := p.ReadMapBegin()
		if err != nil {
			return err
		}
		for i := 0; i < h.Size; i++ {
			if err := Skip(p, h.KeyType, maxDepth-1); err != nil {
				return err
			}
			if err := Skip(p, h.ValueType, maxDepth-1); err != nil {
				return err
			}
		}
		return p.ReadMapEnd()
	case Stop, Void:
		return NewProtocolError(ErrInvalidSkipType, "cannot skip %s", typ)
	default:
		return NewProtocolError(ErrUnknownTypeTag, "cannot skip tag %d", byte(typ))
	}
}
