// Package protocol owns the RPC wire contract.
//
// Ownership boundary:
// - type tags, message kinds and header shapes
// - the Protocol and Transport capability interfaces
// - transport/protocol/remote error taxonomy
// - skip traversal and the struct field loop shared by every decoder
//
// Concrete encodings live in subpackages (binary); byte stream
// implementations live in transport; envelope sequencing lives in session.
package protocol
