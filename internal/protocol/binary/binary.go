package binary

import (
	bin "encoding/binary"
	"math"

	"github.com/danmuck/fibctl/internal/protocol"
)

const (
	// Version1 marks a strict envelope in the high 16 bits of its first word.
	Version1    uint32 = 0x80010000
	versionMask uint32 = 0xffff0000
	typeMask    uint32 = 0x000000ff
)

// Protocol is the big-endian binary encoding of protocol.Protocol.
//
// Wire layout:
//
//	integers   big-endian fixed width (i16=2, i32=4, i64=8); double is IEEE-754 in 8 bytes
//	bool/byte  1 byte
//	string     i32 length + raw bytes
//	field      1 byte type + i16 id; stop is a single 0 byte
//	struct     no begin/end bytes, body ends with stop
//	list/set   1 byte element type + i32 count
//	map        1 byte key type + 1 byte value type + i32 count
//	message    strict:     i32 (Version1 | kind), string name, i32 seq id
//	           non-strict: string name, 1 byte kind, i32 seq id
type Protocol struct {
	t    protocol.Transport
	opts Options
	buf  [8]byte
}

var _ protocol.Protocol = (*Protocol)(nil)

func New(t protocol.Transport, opts ...Option) *Protocol {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = protocol.DefaultMaxDepth
	}
	return &Protocol{t: t, opts: o}
}

func (p *Protocol) Transport() protocol.Transport { return p.t }

func (p *Protocol) Options() Options { return p.opts }

func (p *Protocol) Flush() error { return p.t.Flush() }

func (p *Protocol) WriteMessageBegin(name string, typ protocol.MessageType, seqID int32) error {
	if !typ.Valid() {
		return protocol.NewProtocolError(protocol.ErrInvalidMessageType, "write %d", byte(typ))
	}
	if p.opts.StrictWrite {
		if err := p.WriteI32(int32(Version1 | uint32(typ))); err != nil {
			return err
		}
		if err := p.WriteString(name); err != nil {
			return err
		}
		return p.WriteI32(seqID)
	}
	if err := p.WriteString(name); err != nil {
		return err
	}
	if err := p.writeTag(byte(typ)); err != nil {
		return err
	}
	return p.WriteI32(seqID)
}

func (p *Protocol) WriteMessageEnd() error { return nil }

func (p *Protocol) WriteStructBegin(string) error { return nil }

func (p *Protocol) WriteStructEnd() error { return nil }

func (p *Protocol) WriteFieldBegin(_ string, typ protocol.TypeID, id int16) error {
	p.buf[0] = byte(typ)
	bin.BigEndian.PutUint16(p.buf[1:3], uint16(id))
	return p.t.Write(p.buf[:3])
}

func (p *Protocol) WriteFieldEnd() error { return nil }

func (p *Protocol) WriteFieldStop() error {
	return p.writeTag(byte(protocol.Stop))
}

func (p *Protocol) WriteListBegin(elem protocol.TypeID, size int) error {
	return p.writeCollectionBegin(elem, size)
}

func (p *Protocol) WriteListEnd() error { return nil }

func (p *Protocol) WriteSetBegin(elem protocol.TypeID, size int) error {
	return p.writeCollectionBegin(elem, size)
}

func (p *Protocol) WriteSetEnd() error { return nil }

func (p *Protocol) WriteMapBegin(key, value protocol.TypeID, size int) error {
	if err := checkWriteSize(size); err != nil {
		return err
	}
	p.buf[0] = byte(key)
	p.buf[1] = byte(value)
	bin.BigEndian.PutUint32(p.buf[2:6], uint32(int32(size)))
	return p.t.Write(p.buf[:6])
}

func (p *Protocol) WriteMapEnd() error { return nil }

func (p *Protocol) WriteBool(v bool) error {
	if v {
		return p.writeTag(1)
	}
	return p.writeTag(0)
}

func (p *Protocol) WriteByte(v int8) error {
	return p.writeTag(byte(v))
}

func (p *Protocol) WriteI16(v int16) error {
	bin.BigEndian.PutUint16(p.buf[:2], uint16(v))
	return p.t.Write(p.buf[:2])
}

func (p *Protocol) WriteI32(v int32) error {
	bin.BigEndian.PutUint32(p.buf[:4], uint32(v))
	return p.t.Write(p.buf[:4])
}

func (p *Protocol) WriteI64(v int64) error {
	bin.BigEndian.PutUint64(p.buf[:8], uint64(v))
	return p.t.Write(p.buf[:8])
}

func (p *Protocol) WriteDouble(v float64) error {
	bin.BigEndian.PutUint64(p.buf[:8], math.Float64bits(v))
	return p.t.Write(p.buf[:8])
}

func (p *Protocol) WriteBinary(v []byte) error {
	if len(v) > math.MaxInt32 {
		return protocol.NewProtocolError(protocol.ErrSizeLimit, "binary of %d bytes", len(v))
	}
	if err := p.WriteI32(int32(len(v))); err != nil {
		return err
	}
	return p.t.Write(v)
}

func (p *Protocol) WriteString(v string) error {
	return p.WriteBinary([]byte(v))
}

func (p *Protocol) ReadMessageBegin() (protocol.MessageHeader, error) {
	first, err := p.ReadI32()
	if err != nil {
		return protocol.MessageHeader{}, err
	}
	if first < 0 {
		word := uint32(first)
		if word&versionMask != Version1 {
			return protocol.MessageHeader{}, protocol.NewProtocolError(protocol.ErrBadVersion, "version word %#08x", word)
		}
		typ := protocol.MessageType(word & typeMask)
		if !typ.Valid() {
			return protocol.MessageHeader{}, protocol.NewProtocolError(protocol.ErrInvalidMessageType, "read %d", byte(typ))
		}
		name, err := p.ReadString()
		if err != nil {
			return protocol.MessageHeader{}, err
		}
		seq, err := p.ReadI32()
		if err != nil {
			return protocol.MessageHeader{}, err
		}
		return protocol.MessageHeader{Name: name, Type: typ, SeqID: seq}, nil
	}

	if p.opts.StrictRead {
		return protocol.MessageHeader{}, protocol.NewProtocolError(protocol.ErrBadVersion, "missing version word")
	}
	name, err := p.readBytes(int(first))
	if err != nil {
		return protocol.MessageHeader{}, err
	}
	kind, err := p.readTag()
	if err != nil {
		return protocol.MessageHeader{}, err
	}
	typ := protocol.MessageType(kind)
	if !typ.Valid() {
		return protocol.MessageHeader{}, protocol.NewProtocolError(protocol.ErrInvalidMessageType, "read %d", kind)
	}
	seq, err := p.ReadI32()
	if err != nil {
		return protocol.MessageHeader{}, err
	}
	return protocol.MessageHeader{Name: string(name), Type: typ, SeqID: seq}, nil
}

func (p *Protocol) ReadMessageEnd() error { return nil }

func (p *Protocol) ReadStructBegin() (string, error) { return "", nil }

func (p *Protocol) ReadStructEnd() error { return nil }

func (p *Protocol) ReadFieldBegin() (protocol.FieldHeader, error) {
	tag, err := p.readTag()
	if err != nil {
		return protocol.FieldHeader{}, err
	}
	typ := protocol.TypeID(tag)
	if typ == protocol.Stop {
		return protocol.FieldHeader{Type: protocol.Stop}, nil
	}
	if !typ.Valid() {
		return protocol.FieldHeader{}, protocol.NewProtocolError(protocol.ErrUnknownTypeTag, "field tag %d", tag)
	}
	id, err := p.ReadI16()
	if err != nil {
		return protocol.FieldHeader{}, err
	}
	return protocol.FieldHeader{Type: typ, ID: id}, nil
}

func (p *Protocol) ReadFieldEnd() error { return nil }

func (p *Protocol) ReadListBegin() (protocol.ListHeader, error) {
	return p.readCollectionBegin()
}

func (p *Protocol) ReadListEnd() error { return nil }

func (p *Protocol) ReadSetBegin() (protocol.ListHeader, error) {
	return p.readCollectionBegin()
}

func (p *Protocol) ReadSetEnd() error { return nil }

func (p *Protocol) ReadMapBegin() (protocol.MapHeader, error) {
	key, err := p.readType()
	if err != nil {
		return protocol.MapHeader{}, err
	}
	value, err := p.readType()
	if err != nil {
		return protocol.MapHeader{}, err
	}
	size, err := p.readCount()
	if err != nil {
		return protocol.MapHeader{}, err
	}
	return protocol.MapHeader{KeyType: key, ValueType: value, Size: size}, nil
}

func (p *Protocol) ReadMapEnd() error { return nil }

func (p *Protocol) ReadBool() (bool, error) {
	b, err := p.readTag()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func (p *Protocol) ReadByte() (int8, error) {
	b, err := p.readTag()
	return int8(b), err
}

func (p *Protocol) ReadI16() (int16, error) {
	if err := p.t.ReadFull(p.buf[:2]); err != nil {
		return 0, err
	}
	return int16(bin.BigEndian.Uint16(p.buf[:2])), nil
}

func (p *Protocol) ReadI32() (int32, error) {
	if err := p.t.ReadFull(p.buf[:4]); err != nil {
		return 0, err
	}
	return int32(bin.BigEndian.Uint32(p.buf[:4])), nil
}

func (p *Protocol) ReadI64() (int64, error) {
	if err := p.t.ReadFull(p.buf[:8]); err != nil {
		return 0, err
	}
	return int64(bin.BigEndian.Uint64(p.buf[:8])), nil
}

func (p *Protocol) ReadDouble() (float64, error) {
	if err := p.t.ReadFull(p.buf[:8]); err != nil {
		return 0, err
	}
	return math.Float64frombits(bin.BigEndian.Uint64(p.buf[:8])), nil
}

func (p *Protocol) ReadBinary() ([]byte, error) {
	n, err := p.ReadI32()
	if err != nil {
		return nil, err
	}
	return p.readBytes(int(n))
}

func (p *Protocol) ReadString() (string, error) {
	b, err := p.ReadBinary()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (p *Protocol) Skip(typ protocol.TypeID) error {
	return protocol.Skip(p, typ, p.opts.MaxDepth)
}

func (p *Protocol) writeTag(b byte) error {
	p.buf[0] = b
	return p.t.Write(p.buf[:1])
}

func (p *Protocol) writeCollectionBegin(elem protocol.TypeID, size int) error {
	if err := checkWriteSize(size); err != nil {
		return err
	}
	p.buf[0] = byte(elem)
	bin.BigEndian.PutUint32(p.buf[1:5], uint32(int32(size)))
	return p.t.Write(p.buf[:5])
}

func (p *Protocol) readTag() (byte, error) {
	if err := p.t.ReadFull(p.buf[:1]); err != nil {
		return 0, err
	}
	return p.buf[0], nil
}

func (p *Protocol) readType() (protocol.TypeID, error) {
	tag, err := p.readTag()
	if err != nil {
		return 0, err
	}
	typ := protocol.TypeID(tag)
	if !typ.Valid() {
		return 0, protocol.NewProtocolError(protocol.ErrUnknownTypeTag, "element tag %d", tag)
	}
	return typ, nil
}

func (p *Protocol) readCollectionBegin() (protocol.ListHeader, error) {
	elem, err := p.readType()
	if err != nil {
		return protocol.ListHeader{}, err
	}
	size, err := p.readCount()
	if err != nil {
		return protocol.ListHeader{}, err
	}
	return protocol.ListHeader{ElemType: elem, Size: size}, nil
}

func (p *Protocol) readCount() (int, error) {
	n, err := p.ReadI32()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, protocol.NewProtocolError(protocol.ErrNegativeCount, "count %d", n)
	}
	if p.opts.ContainerLimit > 0 && int(n) > p.opts.ContainerLimit {
		return 0, protocol.NewProtocolError(protocol.ErrSizeLimit, "count %d over limit %d", n, p.opts.ContainerLimit)
	}
	return int(n), nil
}

const readChunk = 64 << 10

func (p *Protocol) readBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, protocol.NewProtocolError(protocol.ErrNegativeLength, "length %d", n)
	}
	if p.opts.StringLimit > 0 && n > p.opts.StringLimit {
		return nil, protocol.NewProtocolError(protocol.ErrSizeLimit, "length %d over limit %d", n, p.opts.StringLimit)
	}
	if n <= readChunk {
		out := make([]byte, n)
		if err := p.t.ReadFull(out); err != nil {
			return nil, err
		}
		return out, nil
	}
	// grow with the bytes that actually arrive
	out := make([]byte, 0, readChunk)
	for len(out) < n {
		step := min(n-len(out), readChunk)
		out = append(out, make([]byte, step)...)
		if err := p.t.ReadFull(out[len(out)-step:]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func checkWriteSize(size int) error {
	if size < 0 {
		return protocol.NewProtocolError(protocol.ErrNegativeCount, "count %d", size)
	}
	if size > math.MaxInt32 {
		return protocol.NewProtocolError(protocol.ErrSizeLimit, "count %d", size)
	}
	return nil
}
