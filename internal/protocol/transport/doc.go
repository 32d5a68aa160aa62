// Package transport provides byte stream implementations of
// protocol.Transport: a buffered stream over any io.ReadWriter, an in-memory
// buffer for tests, and a net.Conn wrapper that owns read/write deadlines.
package transport
