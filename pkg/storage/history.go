// Package storage provides the encrypted local message history. Message
// bodies are sealed with the session key before touching disk; senders and
// timestamps stay queryable in the clear.
package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/termchat/termchat-client/pkg/crypto"
	"github.com/termchat/termchat-client/pkg/protocol"
)

// Entry is one stored message with its direction.
type Entry struct {
	Message  protocol.ChatMessage
	Outgoing bool
}

// History is a sqlite-backed message log pruned to a configured size.
type History struct {
	db    *sql.DB
	key   *crypto.Key
	limit int
}

// NewHistory opens (or creates) the history database at path. Bodies are
// encrypted with key; limit bounds the number of retained messages, 0
// meaning unlimited.
func NewHistory(path string, key *crypto.Key, limit int) (*History, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// WAL keeps concurrent reads cheap while the receive loop writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	h := &History{db: db, key: key, limit: limit}

	if err := h.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return h, nil
}

func (h *History) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id TEXT UNIQUE NOT NULL,
		msg_type INTEGER NOT NULL,
		sender TEXT NOT NULL,
		nonce BLOB NOT NULL,
		body BLOB NOT NULL,
		timestamp INTEGER NOT NULL,
		is_outgoing INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);
	`

	if _, err := h.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize history schema: %w", err)
	}

	return nil
}

// Save stores one message, encrypting its body at rest. Saving the same
// message ID twice is a no-op, so replayed frames do not duplicate history.
func (h *History) Save(msg protocol.ChatMessage, outgoing bool) error {
	sealed, err := h.key.Encrypt([]byte(msg.Body))
	if err != nil {
		return fmt.Errorf("failed to encrypt history entry: %w", err)
	}

	_, err = h.db.Exec(`
		INSERT OR IGNORE INTO messages
			(message_id, msg_type, sender, nonce, body, timestamp, is_outgoing)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID.String(),
		int(msg.Type),
		msg.Sender,
		sealed.Nonce,
		sealed.Ciphertext,
		msg.Timestamp.UnixMilli(),
		boolToInt(outgoing),
	)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	return h.prune()
}

func (h *History) prune() error {
	if h.limit <= 0 {
		return nil
	}

	_, err := h.db.Exec(`
		DELETE FROM messages WHERE id NOT IN (
			SELECT id FROM messages ORDER BY id DESC LIMIT ?
		)`, h.limit)
	if err != nil {
		return fmt.Errorf("failed to prune history: %w", err)
	}

	return nil
}

// Recent returns up to n stored messages in chronological order.
func (h *History) Recent(n int) ([]Entry, error) {
	rows, err := h.db.Query(`
		SELECT message_id, msg_type, sender, nonce, body, timestamp, is_outgoing
		FROM messages ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			idStr    string
			msgType  int
			sender   string
			nonce    []byte
			body     []byte
			ts       int64
			outgoing int
		)
		if err := rows.Scan(&idStr, &msgType, &sender, &nonce, &body, &ts, &outgoing); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}

		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("corrupt message id in history: %w", err)
		}

		plaintext, err := h.key.Decrypt(&crypto.SealedPayload{Nonce: nonce, Ciphertext: body})
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt history entry: %w", err)
		}

		entries = append(entries, Entry{
			Message: protocol.ChatMessage{
				ID:        id,
				Type:      protocol.MessageType(msgType),
				Timestamp: time.UnixMilli(ts).UTC(),
				Sender:    sender,
				Body:      string(plaintext),
			},
			Outgoing: outgoing != 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest-first from the query; flip to chronological
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	return entries, nil
}

// Count returns the number of stored messages.
func (h *History) Count() (int, error) {
	var n int
	if err := h.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return n, nil
}

// Close releases the database handle.
func (h *History) Close() error {
	return h.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
