package transport

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/danmuck/fibctl/internal/protocol"
)

const (
	frameHeaderLen      = 4
	DefaultMaxFrameSize = 16 * 1024 * 1024
)

var (
	ErrFrameTooLarge = errors.New("transport: frame too large")
	ErrNegativeFrame = errors.New("transport: negative frame size")
)

// Framed prefixes every flushed message with its i32 big-endian length and
// reads whole frames from the inner transport. Peers that run a framed
// server transport need it; the byte layout inside a frame is unchanged.
type Framed struct {
	inner   protocol.Transport
	maxSize int

	wbuf []byte
	rbuf []byte
	rpos int
}

// NewFramed wraps inner. maxSize <= 0 selects DefaultMaxFrameSize.
func NewFramed(inner protocol.Transport, maxSize int) *Framed {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &Framed{inner: inner, maxSize: maxSize}
}

func (f *Framed) Write(p []byte) error {
	if len(f.wbuf)+len(p) > f.maxSize {
		f.wbuf = f.wbuf[:0]
		return protocol.NewTransportError("write", fmt.Errorf("%w: exceeds %d bytes", ErrFrameTooLarge, f.maxSize))
	}
	f.wbuf = append(f.wbuf, p...)
	return nil
}

// Flush sends the buffered message as one frame.
func (f *Framed) Flush() error {
	var header [frameHeaderLen]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(f.wbuf)))
	payload := f.wbuf
	f.wbuf = f.wbuf[:0]
	if err := f.inner.Write(header[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if err := f.inner.Write(payload); err != nil {
			return err
		}
	}
	return f.inner.Flush()
}

// ReadFull serves reads from the current frame, pulling the next frame when
// it is exhausted. A read may span frames.
func (f *Framed) ReadFull(p []byte) error {
	for n := 0; n < len(p); {
		if f.rpos == len(f.rbuf) {
			if err := f.readFrame(); err != nil {
				return err
			}
		}
		c := copy(p[n:], f.rbuf[f.rpos:])
		f.rpos += c
		n += c
	}
	return nil
}

// Pending reports unread bytes left in the current frame.
func (f *Framed) Pending() int {
	return len(f.rbuf) - f.rpos
}

func (f *Framed) readFrame() error {
	var header [frameHeaderLen]byte
	if err := f.inner.ReadFull(header[:]); err != nil {
		return err
	}
	size := int32(binary.BigEndian.Uint32(header[:]))
	if size < 0 {
		return protocol.NewTransportError("read", fmt.Errorf("%w: %d", ErrNegativeFrame, size))
	}
	if int(size) > f.maxSize {
		return protocol.NewTransportError("read", fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, f.maxSize))
	}
	if cap(f.rbuf) < int(size) {
		f.rbuf = make([]byte, size)
	}
	f.rbuf = f.rbuf[:size]
	f.rpos = 0
	if size == 0 {
		return nil
	}
	return f.inner.ReadFull(f.rbuf)
}
