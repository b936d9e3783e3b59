package protocol

import (
	"fmt"

	"github.com/termchat/termchat-client/pkg/crypto"
)

// Codec serializes chat messages to and from encrypted envelopes using a
// session key. One codec belongs to one connection and holds the only
// reference to that connection's key besides the connection itself.
type Codec struct {
	key *crypto.Key
}

// NewCodec creates a codec bound to a session key.
func NewCodec(key *crypto.Key) *Codec {
	return &Codec{key: key}
}

// Encode serializes a message into canonical bytes and seals them into an
// encrypted envelope with a fresh nonce.
func (c *Codec) Encode(m ChatMessage) (*EncryptedEnvelope, error) {
	plaintext, err := marshalCanonical(m)
	if err != nil {
		return nil, err
	}

	sealed, err := c.key.Encrypt(plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt message: %w", err)
	}

	// GCM appends the tag to the ciphertext; the envelope carries it as a
	// separate trailing field
	ct := sealed.Ciphertext[:len(sealed.Ciphertext)-crypto.TagSize]

	env := &EncryptedEnvelope{
		Version:      ProtocolVersion,
		DeclaredType: m.Type,
		Ciphertext:   ct,
	}
	copy(env.Nonce[:], sealed.Nonce)
	copy(env.Tag[:], sealed.Ciphertext[len(sealed.Ciphertext)-crypto.TagSize:])

	return env, nil
}

// Decode opens an envelope and parses the canonical bytes back into a
// ChatMessage. Integrity failures surface as crypto.ErrIntegrity; content
// that decrypts fine but does not match the canonical layout fails with
// ErrMalformedMessage so callers can tell corruption from bad content.
func (c *Codec) Decode(env *EncryptedEnvelope) (ChatMessage, error) {
	if env.Version != ProtocolVersion {
		return ChatMessage{}, fmt.Errorf("%w: 0x%04x", ErrUnsupportedVersion, env.Version)
	}

	sealed := &crypto.SealedPayload{
		Nonce:      env.Nonce[:],
		Ciphertext: append(append([]byte{}, env.Ciphertext...), env.Tag[:]...),
	}

	plaintext, err := c.key.Decrypt(sealed)
	if err != nil {
		return ChatMessage{}, err
	}

	return unmarshalCanonical(plaintext)
}

// DecodeFrame parses a raw wire frame and decodes the message inside it.
func (c *Codec) DecodeFrame(frame []byte) (ChatMessage, error) {
	env, err := DecodeEnvelope(frame)
	if err != nil {
		return ChatMessage{}, err
	}
	return c.Decode(env)
}

// EncodeFrame encodes a message and returns the raw wire frame.
func (c *Codec) EncodeFrame(m ChatMessage) ([]byte, error) {
	env, err := c.Encode(m)
	if err != nil {
		return nil, err
	}
	return env.Encode(), nil
}
