package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownTypeTag     = errors.New("protocol: unknown type tag")
	ErrNegativeCount      = errors.New("protocol: negative container count")
	ErrNegativeLength     = errors.New("protocol: negative string length")
	ErrSizeLimit          = errors.New("protocol: size limit exceeded")
	ErrDepthLimit         = errors.New("protocol: nesting depth exceeded")
	ErrInvalidSkipType    = errors.New("protocol: invalid skip type")
	ErrBadVersion         = errors.New("protocol: bad message version")
	ErrInvalidMessageType = errors.New("protocol: invalid message type")
	ErrUnexpectedMessage  = errors.New("protocol: unexpected message type")
	ErrMethodMismatch     = errors.New("protocol: method name mismatch")
	ErrSequenceMismatch   = errors.New("protocol: sequence id mismatch")
)

// ProtocolError reports malformed or incompatible encoded data. Err is one of
// the package sentinels.
type ProtocolError struct {
	Err    error
	Detail string
}

func (e *ProtocolError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Detail)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// NewProtocolError wraps sentinel with a formatted detail.
func NewProtocolError(sentinel error, format string, args ...any) error {
	return &ProtocolError{Err: sentinel, Detail: fmt.Sprintf(format, args...)}
}

// TransportError reports a failed or short read/write on the byte stream.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps err unless it already is a transport error.
func NewTransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}

// ExceptionType is the numeric kind carried by an application exception.
type ExceptionType int32

const (
	ExceptionUnknown            ExceptionType = 0
	ExceptionUnknownMethod      ExceptionType = 1
	ExceptionInvalidMessageType ExceptionType = 2
	ExceptionWrongMethodName    ExceptionType = 3
	ExceptionBadSequenceID      ExceptionType = 4
	ExceptionMissingResult      ExceptionType = 5
	ExceptionInternalError      ExceptionType = 6
	ExceptionProtocolError      ExceptionType = 7
)

func (t ExceptionType) String() string {
	switch t {
	case ExceptionUnknownMethod:
		return "unknown_method"
	case ExceptionInvalidMessageType:
		return "invalid_message_type"
	case ExceptionWrongMethodName:
		return "wrong_method_name"
	case ExceptionBadSequenceID:
		return "bad_sequence_id"
	case ExceptionMissingResult:
		return "missing_result"
	case ExceptionInternalError:
		return "internal_error"
	case ExceptionProtocolError:
		return "protocol_error"
	default:
		return "unknown"
	}
}

// ApplicationException is the failure a peer signals with an Exception
// envelope. Its wire shape is {1: string message, 2: i32 type}.
type ApplicationException struct {
	Type    ExceptionType
	Message string
}

func (e *ApplicationException) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote exception: %s", e.Type)
	}
	return fmt.Sprintf("remote exception: %s: %s", e.Type, e.Message)
}

// Read decodes the exception struct, skipping unknown fields.
func (e *ApplicationException) Read(p Protocol) error {
	_, err := ReadStruct(p, func(f FieldHeader) (bool, error) {
		switch {
		case f.ID == 1 && f.Type == String:
			msg, err := p.ReadString()
			if err != nil {
				return true, err
			}
			e.Message = msg
			return true, nil
		case f.ID == 2 && f.Type == I32:
			v, err := p.ReadI32()
			if err != nil {
				return true, err
			}
			e.Type = ExceptionType(v)
			return true, nil
		}
		return false, nil
	})
	return err
}

// Write encodes the exception struct.
func (e *ApplicationException) Write(p Protocol) error {
	if err := p.WriteStructBegin("TApplicationException"); err != nil {
		return err
	}
	if e.Message != "" {
		if err := p.WriteFieldBegin("message", String, 1); err != nil {
			return err
		}
		if err := p.WriteString(e.Message); err != nil {
			return err
		}
		if err := p.WriteFieldEnd(); err != nil {
			return err
		}
	}
	if err := p.WriteFieldBegin("type", I32, 2); err != nil {
		return err
	}
	if err := p.WriteI32(int32(e.Type)); err != nil {
		return err
	}
	if err := p.WriteFieldEnd(); err != nil {
		return err
	}
	if err := p.WriteFieldStop(); err != nil {
		return err
	}
	return p.WriteStructEnd()
}

// IsTransport reports whether err originated in the byte stream.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsProtocol reports whether err is a protocol violation.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// IsRemote reports whether err is an application exception raised by the peer.
func IsRemote(err error) bool {
	var ae *ApplicationException
	return errors.As(err, &ae)
}
