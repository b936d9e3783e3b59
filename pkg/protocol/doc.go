// Package protocol implements the Termchat wire protocol.
//
// The protocol package defines the chat message record, its canonical byte
// layout, and the encrypted envelope that carries it over the relay
// connection.
//
// # Wire Envelope
//
// Every message crossing the connection travels inside an EncryptedEnvelope
// with the following big-endian layout:
//
//	version       uint16   protocol version (rejected if unsupported)
//	declared type uint8    message type hint, plaintext metadata
//	nonce         12 bytes AES-GCM nonce, fresh per message
//	length        uint32   ciphertext length
//	ciphertext    variable AES-256-GCM output
//	tag           16 bytes GCM authentication tag
//
// # Canonical Message Layout
//
// The plaintext inside the envelope is the canonical encoding of a
// ChatMessage, also big-endian with length-prefixed variable fields:
//
//	id        16 bytes UUID
//	type      uint8
//	timestamp uint64   Unix milliseconds
//	sender    uint16 length prefix + UTF-8 bytes
//	body      uint32 length prefix + UTF-8 bytes
//
// The canonical form round-trips exactly: decode(encode(m)) == m for every
// valid message. Unknown message types decode to a system-flagged record
// instead of failing, so newer peers can introduce types without breaking
// older clients.
package protocol
