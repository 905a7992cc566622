package storage

import (
	"database/sql"
	"errors"

	"github.com/pure2p/pure2p/internal/perror"
)

// Chat tracks conversation state for a contact. Its primary key is the
// contact's UID; it is removed (cascading to its messages) whenever the
// contact relationship ends.
type Chat struct {
	ContactUID         string
	IsActive           bool
	HasPendingMessages bool
	CreatedAt          int64
}

// GetOrCreateChat returns the chat for contactUID, creating an inactive,
// pending-free one if none exists yet.
func (s *Storage) GetOrCreateChat(contactUID string, createdAt int64) (*Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT contact_uid, is_active, has_pending_messages, created_at
		FROM chats WHERE contact_uid = ?`, contactUID)
	chat, err := scanChat(row)
	if err != nil {
		return nil, err
	}
	if chat != nil {
		return chat, nil
	}

	_, err = s.db.Exec(`INSERT INTO chats (contact_uid, is_active, has_pending_messages, created_at)
		VALUES (?, 0, 0, ?)`, contactUID, createdAt)
	if err != nil {
		return nil, perror.Wrap(perror.Storage, "create chat", err)
	}
	return &Chat{ContactUID: contactUID, CreatedAt: createdAt}, nil
}

// GetChat returns the chat for contactUID, or (nil, nil) if none exists.
func (s *Storage) GetChat(contactUID string) (*Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT contact_uid, is_active, has_pending_messages, created_at
		FROM chats WHERE contact_uid = ?`, contactUID)
	return scanChat(row)
}

// ListChats returns every chat.
func (s *Storage) ListChats() ([]*Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT contact_uid, is_active, has_pending_messages, created_at
		FROM chats ORDER BY created_at DESC`)
	if err != nil {
		return nil, perror.Wrap(perror.Storage, "list chats", err)
	}
	defer rows.Close()

	var out []*Chat
	for rows.Next() {
		var c Chat
		var isActive, hasPending int
		if err := rows.Scan(&c.ContactUID, &isActive, &hasPending, &c.CreatedAt); err != nil {
			return nil, perror.Wrap(perror.Storage, "scan chat", err)
		}
		c.IsActive = isActive != 0
		c.HasPendingMessages = hasPending != 0
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, perror.Wrap(perror.Storage, "list chats", err)
	}
	return out, nil
}

// SetChatActive marks a chat active/inactive.
func (s *Storage) SetChatActive(contactUID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE chats SET is_active = ? WHERE contact_uid = ?`, boolToInt(active), contactUID)
	if err != nil {
		return perror.Wrap(perror.Storage, "set chat active", err)
	}
	return nil
}

// SetChatPending marks whether a chat has pending (queued) messages.
func (s *Storage) SetChatPending(contactUID string, pending bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE chats SET has_pending_messages = ? WHERE contact_uid = ?`,
		boolToInt(pending), contactUID)
	if err != nil {
		return perror.Wrap(perror.Storage, "set chat pending", err)
	}
	return nil
}

// DeleteChat removes a chat and, via ON DELETE CASCADE, its messages.
func (s *Storage) DeleteChat(contactUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM chats WHERE contact_uid = ?`, contactUID)
	if err != nil {
		return perror.Wrap(perror.Storage, "delete chat", err)
	}
	return nil
}

func scanChat(row *sql.Row) (*Chat, error) {
	var c Chat
	var isActive, hasPending int
	err := row.Scan(&c.ContactUID, &isActive, &hasPending, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, perror.Wrap(perror.Storage, "scan chat", err)
	}
	c.IsActive = isActive != 0
	c.HasPendingMessages = hasPending != 0
	return &c, nil
}
