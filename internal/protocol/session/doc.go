// Package session owns the message envelope and request/response sequencing
// for one transport.
//
// Ownership boundary:
// - call/oneway envelopes and reply validation
// - per-transport sequence ids
// - application exception decoding
// - timeout and dial backoff configuration shared by connection owners
//
// A Client is single-use at a time: exactly one exchange may be in flight on
// its transport, and after any failure the transport position is undefined
// and the Client refuses further calls.
package session
