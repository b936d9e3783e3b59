package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/termchat/termchat-client/pkg/crypto"
)

// Envelope field sizes
const (
	envelopeHeaderSize = 2 + 1 + crypto.NonceSize + 4
	envelopeMinSize    = envelopeHeaderSize + crypto.TagSize
)

// EncryptedEnvelope is the wire-level container for one encrypted message.
// DeclaredType is plaintext metadata only; the authoritative message type is
// inside the ciphertext.
type EncryptedEnvelope struct {
	Version      uint16
	DeclaredType MessageType
	Nonce        [crypto.NonceSize]byte
	Ciphertext   []byte
	Tag          [crypto.TagSize]byte
}

// Encode encodes the envelope to wire bytes.
func (e *EncryptedEnvelope) Encode() []byte {
	buf := make([]byte, envelopeMinSize+len(e.Ciphertext))
	offset := 0

	binary.BigEndian.PutUint16(buf[offset:], e.Version)
	offset += 2

	buf[offset] = byte(e.DeclaredType)
	offset++

	copy(buf[offset:], e.Nonce[:])
	offset += crypto.NonceSize

	binary.BigEndian.PutUint32(buf[offset:], uint32(len(e.Ciphertext)))
	offset += 4

	copy(buf[offset:], e.Ciphertext)
	offset += len(e.Ciphertext)

	copy(buf[offset:], e.Tag[:])

	return buf
}

// DecodeEnvelope parses wire bytes into an envelope. The version is checked
// here, before any cryptographic work, so unsupported frames are rejected
// cheaply with ErrUnsupportedVersion.
func DecodeEnvelope(buf []byte) (*EncryptedEnvelope, error) {
	if len(buf) < envelopeMinSize {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrInvalidEnvelope, len(buf), envelopeMinSize)
	}

	e := &EncryptedEnvelope{}
	offset := 0

	e.Version = binary.BigEndian.Uint16(buf[offset:])
	offset += 2

	if e.Version != ProtocolVersion {
		return nil, fmt.Errorf("%w: 0x%04x", ErrUnsupportedVersion, e.Version)
	}

	e.DeclaredType = MessageType(buf[offset])
	offset++

	copy(e.Nonce[:], buf[offset:offset+crypto.NonceSize])
	offset += crypto.NonceSize

	ctLen := int(binary.BigEndian.Uint32(buf[offset:]))
	offset += 4

	if ctLen > MaxBodySize+canonicalMinSize+MaxSenderSize {
		return nil, fmt.Errorf("%w: ciphertext length %d", ErrInvalidEnvelope, ctLen)
	}
	if offset+ctLen+crypto.TagSize != len(buf) {
		return nil, fmt.Errorf("%w: ciphertext length %d does not match frame size %d",
			ErrInvalidEnvelope, ctLen, len(buf))
	}

	e.Ciphertext = make([]byte, ctLen)
	copy(e.Ciphertext, buf[offset:offset+ctLen])
	offset += ctLen

	copy(e.Tag[:], buf[offset:])

	return e, nil
}
