package transport

import (
	"bytes"
	"io"

	"github.com/danmuck/fibctl/internal/protocol"
)

// Memory is an in-memory transport. Writes append to the buffer and reads
// consume from its front, so a value written can be read straight back.
type Memory struct {
	buf     bytes.Buffer
	flushes int
}

func NewMemory() *Memory {
	return &Memory{}
}

// NewMemoryFrom returns a transport whose read side holds b.
func NewMemoryFrom(b []byte) *Memory {
	m := &Memory{}
	m.buf.Write(b)
	return m
}

func (m *Memory) ReadFull(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if _, err := io.ReadFull(&m.buf, p); err != nil {
		return protocol.NewTransportError("read", err)
	}
	return nil
}

func (m *Memory) Write(p []byte) error {
	m.buf.Write(p)
	return nil
}

func (m *Memory) Flush() error {
	m.flushes++
	return nil
}

// Feed appends b to the unread bytes.
func (m *Memory) Feed(b []byte) {
	m.buf.Write(b)
}

// Bytes returns the unread bytes without consuming them.
func (m *Memory) Bytes() []byte {
	return m.buf.Bytes()
}

// Len returns the number of unread bytes.
func (m *Memory) Len() int {
	return m.buf.Len()
}

func (m *Memory) Flushes() int {
	return m.flushes
}

func (m *Memory) Reset() {
	m.buf.Reset()
	m.flushes = 0
}
