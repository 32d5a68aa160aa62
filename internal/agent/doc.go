// Package agent is the client for a switch agent's route-management RPCs:
// port status, route table reads, FIB sync, and unicast route add/delete.
//
// Each call borrows a pooled connection, runs one session.Client exchange over
// the binary codec, and returns the connection on success. Any failure closes
// the connection, since a half-read reply leaves the stream unaligned.
package agent
