package protocol

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Canonical layout sizes
const (
	idSize           = 16
	canonicalMinSize = idSize + 1 + 8 + 2 + 4
)

// marshalCanonical encodes a message into its canonical byte layout.
func marshalCanonical(m ChatMessage) ([]byte, error) {
	sender := []byte(m.Sender)
	body := []byte(m.Body)

	if len(sender) > MaxSenderSize {
		return nil, fmt.Errorf("%w: sender is %d bytes", ErrMessageTooLarge, len(sender))
	}
	if len(body) > MaxBodySize {
		return nil, fmt.Errorf("%w: body is %d bytes", ErrMessageTooLarge, len(body))
	}

	size := canonicalMinSize + len(sender) + len(body)
	buf := make([]byte, size)
	offset := 0

	copy(buf[offset:], m.ID[:])
	offset += idSize

	buf[offset] = byte(m.Type)
	offset++

	binary.BigEndian.PutUint64(buf[offset:], uint64(m.Timestamp.UnixMilli()))
	offset += 8

	binary.BigEndian.PutUint16(buf[offset:], uint16(len(sender)))
	offset += 2

	copy(buf[offset:], sender)
	offset += len(sender)

	binary.BigEndian.PutUint32(buf[offset:], uint32(len(body)))
	offset += 4

	copy(buf[offset:], body)

	return buf, nil
}

// unmarshalCanonical decodes canonical bytes back into a ChatMessage.
// Truncated input, dangling bytes, or out-of-range lengths fail with
// ErrMalformedMessage. Unknown type values decode to a system-flagged
// record so newer message kinds pass through older clients.
func unmarshalCanonical(buf []byte) (ChatMessage, error) {
	var m ChatMessage

	if len(buf) < canonicalMinSize {
		return m, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformedMessage, len(buf), canonicalMinSize)
	}

	offset := 0

	var id uuid.UUID
	copy(id[:], buf[offset:offset+idSize])
	offset += idSize

	msgType := MessageType(buf[offset])
	offset++

	ts := binary.BigEndian.Uint64(buf[offset:])
	offset += 8

	senderLen := int(binary.BigEndian.Uint16(buf[offset:]))
	offset += 2

	if senderLen > MaxSenderSize {
		return m, fmt.Errorf("%w: sender length %d", ErrMalformedMessage, senderLen)
	}
	if offset+senderLen+4 > len(buf) {
		return m, fmt.Errorf("%w: truncated sender", ErrMalformedMessage)
	}

	sender := string(buf[offset : offset+senderLen])
	offset += senderLen

	bodyLen := int(binary.BigEndian.Uint32(buf[offset:]))
	offset += 4

	if bodyLen > MaxBodySize {
		return m, fmt.Errorf("%w: body length %d", ErrMalformedMessage, bodyLen)
	}
	if offset+bodyLen != len(buf) {
		return m, fmt.Errorf("%w: body length %d does not match remaining %d bytes",
			ErrMalformedMessage, bodyLen, len(buf)-offset)
	}

	body := string(buf[offset : offset+bodyLen])

	if !msgType.known() {
		// Forward compatibility: surface the record instead of dropping it
		msgType = MessageTypeSystem
	}

	m = ChatMessage{
		ID:        id,
		Type:      msgType,
		Timestamp: time.UnixMilli(int64(ts)).UTC(),
		Sender:    sender,
		Body:      body,
	}

	return m, nil
}
