package protocol

// Transport is a duplex byte stream with all-or-nothing reads and writes.
// Implementations report failures as *TransportError.
type Transport interface {
	// ReadFull fills p completely or fails; short reads are never padded.
	ReadFull(p []byte) error
	// Write accepts all of p or fails.
	Write(p []byte) error
	// Flush pushes buffered writes to the peer.
	Flush() error
}

// Protocol is the structured read/write contract independent of wire
// encoding. Calls must follow the begin/end grammar; the implementation does
// not validate nesting beyond what decoding consumes. A Protocol is not safe
// for concurrent use and borrows its Transport for one message at a time.
type Protocol interface {
	WriteMessageBegin(name string, typ MessageType, seqID int32) error
	WriteMessageEnd() error
	WriteStructBegin(name string) error
	WriteStructEnd() error
	WriteFieldBegin(name string, typ TypeID, id int16) error
	WriteFieldEnd() error
	WriteFieldStop() error
	WriteListBegin(elem TypeID, size int) error
	WriteListEnd() error
	WriteSetBegin(elem TypeID, size int) error
	WriteSetEnd() error
	WriteMapBegin(key, value TypeID, size int) error
	WriteMapEnd() error
	WriteBool(v bool) error
	WriteByte(v int8) error
	WriteI16(v int16) error
	WriteI32(v int32) error
	WriteI64(v int64) error
	WriteDouble(v float64) error
	WriteBinary(v []byte) error
	WriteString(v string) error

	ReadMessageBegin() (MessageHeader, error)
	ReadMessageEnd() error
	ReadStructBegin() (string, error)
	ReadStructEnd() error
	ReadFieldBegin() (FieldHeader, error)
	ReadFieldEnd() error
	ReadListBegin() (ListHeader, error)
	ReadListEnd() error
	ReadSetBegin() (ListHeader, error)
	ReadSetEnd() error
	ReadMapBegin() (MapHeader, error)
	ReadMapEnd() error
	ReadBool() (bool, error)
	ReadByte() (int8, error)
	ReadI16() (int16, error)
	ReadI32() (int32, error)
	ReadI64() (int64, error)
	ReadDouble() (float64, error)
	ReadBinary() ([]byte, error)
	ReadString() (string, error)

	// Skip consumes and discards one value of typ.
	Skip(typ TypeID) error
	Flush() error
	Transport() Transport
}
