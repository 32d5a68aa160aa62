package transport

import (
	"bufio"
	"io"

	"github.com/danmuck/fibctl/internal/protocol"
)

const defaultBufferSize = 4096

// Stream adapts an io.ReadWriter to protocol.Transport. Writes are buffered
// until Flush.
type Stream struct {
	r io.Reader
	w *bufio.Writer
}

func NewStream(rw io.ReadWriter) *Stream {
	return &Stream{
		r: bufio.NewReaderSize(rw, defaultBufferSize),
		w: bufio.NewWriterSize(rw, defaultBufferSize),
	}
}

func (s *Stream) ReadFull(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if _, err := io.ReadFull(s.r, p); err != nil {
		return protocol.NewTransportError("read", err)
	}
	return nil
}

func (s *Stream) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if _, err := s.w.Write(p); err != nil {
		return protocol.NewTransportError("write", err)
	}
	return nil
}

func (s *Stream) Flush() error {
	if err := s.w.Flush(); err != nil {
		return protocol.NewTransportError("flush", err)
	}
	return nil
}
