package storage

import (
	"github.com/pure2p/pure2p/internal/perror"
)

// Message delivery statuses.
const (
	MessageStatusPending   = "pending"
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusFailed    = "failed"
)

// Message is a single chat message row.
type Message struct {
	ID          string
	ChatUID     string
	Sender      string
	Receiver    string
	Content     []byte
	TimestampMs int64
	MessageType string
	Status      string
}

// InsertMessage appends a message to a chat's history.
func (s *Storage) InsertMessage(m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO messages (id, chat_uid, sender, receiver, content, timestamp_ms, message_type, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ChatUID, m.Sender, m.Receiver, m.Content, m.TimestampMs, m.MessageType, m.Status)
	if err != nil {
		return perror.Wrap(perror.Storage, "insert message", err)
	}
	return nil
}

// UpdateMessageStatus sets the delivery status of a message.
func (s *Storage) UpdateMessageStatus(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE messages SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return perror.Wrap(perror.Storage, "update message status", err)
	}
	return nil
}

// ListMessages returns a chat's messages in ascending timestamp order.
func (s *Storage) ListMessages(chatUID string) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, chat_uid, sender, receiver, content, timestamp_ms, message_type, status
		FROM messages WHERE chat_uid = ? ORDER BY timestamp_ms ASC`, chatUID)
	if err != nil {
		return nil, perror.Wrap(perror.Storage, "list messages", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatUID, &m.Sender, &m.Receiver, &m.Content, &m.TimestampMs,
			&m.MessageType, &m.Status); err != nil {
			return nil, perror.Wrap(perror.Storage, "scan message", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, perror.Wrap(perror.Storage, "list messages", err)
	}
	return out, nil
}
