package protocol

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/termchat/termchat-client/pkg/crypto"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	key, err := crypto.Generate()
	if err != nil {
		t.Fatalf("crypto.Generate() error = %v", err)
	}
	return NewCodec(key)
}

func TestCodecRoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	msg := ChatMessage{
		ID:        uuid.New(),
		Type:      MessageTypeText,
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
		Sender:    "alice",
		Body:      "hi",
	}

	env, err := codec.Encode(msg)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	if env.Version != ProtocolVersion {
		t.Errorf("envelope version = 0x%04x, want 0x%04x", env.Version, ProtocolVersion)
	}
	if env.DeclaredType != MessageTypeText {
		t.Errorf("declared type = %v, want MessageTypeText", env.DeclaredType)
	}

	got, err := codec.Decode(env)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if got != msg {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, msg)
	}
}

func TestCodecDecodeWithDifferentKey(t *testing.T) {
	sender := newTestCodec(t)
	receiver := newTestCodec(t)

	env, err := sender.Encode(NewTextMessage("alice", "hi"))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	if _, err := receiver.Decode(env); !errors.Is(err, crypto.ErrIntegrity) {
		t.Errorf("Decode() with different key: error = %v, want crypto.ErrIntegrity", err)
	}
}

func TestCodecDetectsTampering(t *testing.T) {
	codec := newTestCodec(t)

	env, err := codec.Encode(NewTextMessage("alice", "do not touch"))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	tamperedCT := *env
	tamperedCT.Ciphertext = append([]byte{}, env.Ciphertext...)
	tamperedCT.Ciphertext[0] ^= 0x80
	if _, err := codec.Decode(&tamperedCT); !errors.Is(err, crypto.ErrIntegrity) {
		t.Errorf("Decode() with flipped ciphertext bit: error = %v, want crypto.ErrIntegrity", err)
	}

	tamperedTag := *env
	tamperedTag.Tag[crypto.TagSize-1] ^= 0x01
	if _, err := codec.Decode(&tamperedTag); !errors.Is(err, crypto.ErrIntegrity) {
		t.Errorf("Decode() with flipped tag bit: error = %v, want crypto.ErrIntegrity", err)
	}
}

func TestCodecDecodeUnsupportedVersion(t *testing.T) {
	codec := newTestCodec(t)

	env, err := codec.Encode(NewTextMessage("alice", "hi"))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	env.Version = 0x0202
	if _, err := codec.Decode(env); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("Decode() error = %v, want ErrUnsupportedVersion", err)
	}
}

func TestCodecFrameRoundTrip(t *testing.T) {
	codec := newTestCodec(t)
	msg := NewPresenceMessage("bob", "online")

	frame, err := codec.EncodeFrame(msg)
	if err != nil {
		t.Fatalf("EncodeFrame() error = %v", err)
	}

	got, err := codec.DecodeFrame(frame)
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}

	if got != msg {
		t.Errorf("frame round trip mismatch:\n got  %+v\n want %+v", got, msg)
	}
}

func TestCodecEncodeNeverRepeatsOutput(t *testing.T) {
	codec := newTestCodec(t)
	msg := NewTextMessage("alice", "identical plaintext")

	env1, err := codec.Encode(msg)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	env2, err := codec.Encode(msg)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	if env1.Nonce == env2.Nonce {
		t.Error("Encode() reused a nonce")
	}
}

func TestCodecMalformedAfterDecrypt(t *testing.T) {
	key, err := crypto.Generate()
	if err != nil {
		t.Fatal(err)
	}
	codec := NewCodec(key)

	// Valid encryption of bytes that are not a canonical message
	sealed, err := key.Encrypt([]byte("not a canonical record"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	env := &EncryptedEnvelope{
		Version:      ProtocolVersion,
		DeclaredType: MessageTypeText,
		Ciphertext:   sealed.Ciphertext[:len(sealed.Ciphertext)-crypto.TagSize],
	}
	copy(env.Nonce[:], sealed.Nonce)
	copy(env.Tag[:], sealed.Ciphertext[len(sealed.Ciphertext)-crypto.TagSize:])

	_, err = codec.Decode(env)
	if !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("Decode() error = %v, want ErrMalformedMessage", err)
	}
	if errors.Is(err, crypto.ErrIntegrity) {
		t.Error("malformed content must not be reported as an integrity failure")
	}
}
