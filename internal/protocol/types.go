package protocol

import "fmt"

// TypeID is the one byte tag identifying the wire type of a value.
type TypeID byte

const (
	Stop   TypeID = 0
	Void   TypeID = 1
	Bool   TypeID = 2
	Byte   TypeID = 3
	Double TypeID = 4
	I16    TypeID = 6
	I32    TypeID = 8
	I64    TypeID = 10
	String TypeID = 11
	Struct TypeID = 12
	Map    TypeID = 13
	Set    TypeID = 14
	List   TypeID = 15
)

// Valid reports whether t belongs to the closed tag enumeration.
func (t TypeID) Valid() bool {
	switch t {
	case Stop, Void, Bool, Byte, Double, I16, I32, I64, String, Struct, Map, Set, List:
		return true
	default:
		return false
	}
}

func (t TypeID) String() string {
	switch t {
	case Stop:
		return "stop"
	case Void:
		return "void"
	case Bool:
		return "bool"
	case Byte:
		return "byte"
	case Double:
		return "double"
	case I16:
		return "i16"
	case I32:
		return "i32"
	case I64:
		return "i64"
	case String:
		return "string"
	case Struct:
		return "struct"
	case Map:
		return "map"
	case Set:
		return "set"
	case List:
		return "list"
	default:
		return fmt.Sprintf("type(%d)", byte(t))
	}
}

// MessageType identifies the direction of an envelope.
type MessageType byte

const (
	Call      MessageType = 1
	Reply     MessageType = 2
	Exception MessageType = 3
	Oneway    MessageType = 4
)

func (m MessageType) Valid() bool {
	return m >= Call && m <= Oneway
}

func (m MessageType) String() string {
	switch m {
	case Call:
		return "call"
	case Reply:
		return "reply"
	case Exception:
		return "exception"
	case Oneway:
		return "oneway"
	default:
		return fmt.Sprintf("message(%d)", byte(m))
	}
}

// MessageHeader is the envelope written before a top-level struct.
type MessageHeader struct {
	Name  string
	Type  MessageType
	SeqID int32
}

// FieldHeader precedes every field value inside a struct. Name is never
// transmitted by the binary encoding.
type FieldHeader struct {
	Name string
	Type TypeID
	ID   int16
}

// ListHeader describes a list or set.
type ListHeader struct {
	ElemType TypeID
	Size     int
}

// MapHeader describes a map.
type MapHeader struct {
	KeyType   TypeID
	ValueType TypeID
	Size      int
}

// StructWriter encodes one struct body, including its terminating stop.
type StructWriter interface {
	Write(p Protocol) error
}

// StructReader decodes one struct body up to and including its stop.
type StructReader interface {
	Read(p Protocol) error
}

// StructWriterFunc adapts a function to StructWriter.
type StructWriterFunc func(p Protocol) error

func (f StructWriterFunc) Write(p Protocol) error { return f(p) }

// StructReaderFunc adapts a function to StructReader.
type StructReaderFunc func(p Protocol) error

func (f StructReaderFunc) Read(p Protocol) error { return f(p) }
