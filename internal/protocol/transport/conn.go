package transport

import (
	"context"
	"net"
	"time"

	"github.com/danmuck/fibctl/internal/protocol"
)

// Timeouts bound each blocking socket operation. Zero disables a bound.
type Timeouts struct {
	Connect time.Duration
	Read    time.Duration
	Write   time.Duration
}

// Conn is a stream transport over a net.Conn that applies a deadline to every
// read and flush. The deadline is the configured timeout, shortened to the
// deadline of the context passed to Bind.
type Conn struct {
	conn     net.Conn
	stream   *Stream
	timeouts Timeouts
	limit    time.Time
}

func NewConn(conn net.Conn, timeouts Timeouts) *Conn {
	return &Conn{
		conn:     conn,
		stream:   NewStream(conn),
		timeouts: timeouts,
	}
}

// Dial connects to addr over TCP.
func Dial(ctx context.Context, addr string, timeouts Timeouts) (*Conn, error) {
	dialer := net.Dialer{Timeout: timeouts.Connect}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, protocol.NewTransportError("dial", err)
	}
	return NewConn(raw, timeouts), nil
}

// Bind scopes the following operations to ctx's deadline. Cancellation
// without a deadline is not observed; a blocked read waits for its timeout.
func (c *Conn) Bind(ctx context.Context) {
	c.limit = time.Time{}
	if ctx == nil {
		return
	}
	if d, ok := ctx.Deadline(); ok {
		c.limit = d
	}
}

func (c *Conn) ReadFull(p []byte) error {
	if err := c.conn.SetReadDeadline(c.deadline(c.timeouts.Read)); err != nil {
		return protocol.NewTransportError("read", err)
	}
	return c.stream.ReadFull(p)
}

func (c *Conn) Write(p []byte) error {
	if err := c.conn.SetWriteDeadline(c.deadline(c.timeouts.Write)); err != nil {
		return protocol.NewTransportError("write", err)
	}
	return c.stream.Write(p)
}

func (c *Conn) Flush() error {
	if err := c.conn.SetWriteDeadline(c.deadline(c.timeouts.Write)); err != nil {
		return protocol.NewTransportError("flush", err)
	}
	return c.stream.Flush()
}

func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) deadline(timeout time.Duration) time.Time {
	var d time.Time
	if timeout > 0 {
		d = time.Now().Add(timeout)
	}
	if !c.limit.IsZero() && (d.IsZero() || c.limit.Before(d)) {
		d = c.limit
	}
	return d
}
