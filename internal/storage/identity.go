package storage

import (
	"database/sql"
	"errors"

	"github.com/pure2p/pure2p/internal/perror"
)

// Identity is the node's persisted keypair and last-known external
// endpoint. Exactly one row of this shape ever exists.
type Identity struct {
	UID            string
	SigningPublic  []byte
	SigningSecret  []byte
	ExchangePublic []byte
	ExchangeSecret []byte
	ExternalIP     string
	ExternalPort   int
}

// LoadIdentity returns the single identity row, or (nil, nil) if none
// has been created yet.
func (s *Storage) LoadIdentity() (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT uid, signing_public, signing_secret, exchange_public, exchange_secret,
		COALESCE(external_ip, ''), COALESCE(external_port, 0) FROM user_identity WHERE id = 1`)

	var id Identity
	err := row.Scan(&id.UID, &id.SigningPublic, &id.SigningSecret, &id.ExchangePublic, &id.ExchangeSecret,
		&id.ExternalIP, &id.ExternalPort)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, perror.Wrap(perror.Storage, "load identity", err)
	}
	return &id, nil
}

// SaveIdentity inserts the identity row. It fails if one already exists;
// an identity is generated once and never replaced.
func (s *Storage) SaveIdentity(id *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO user_identity
		(id, uid, signing_public, signing_secret, exchange_public, exchange_secret, external_ip, external_port)
		VALUES (1, ?, ?, ?, ?, ?, NULL, NULL)`,
		id.UID, id.SigningPublic, id.SigningSecret, id.ExchangePublic, id.ExchangeSecret)
	if err != nil {
		return perror.Wrap(perror.Storage, "save identity", err)
	}
	return nil
}

// UpdateExternalEndpoint persists the external IP/port the connectivity
// probe most recently detected.
func (s *Storage) UpdateExternalEndpoint(ip string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE user_identity SET external_ip = ?, external_port = ? WHERE id = 1`, ip, port)
	if err != nil {
		return perror.Wrap(perror.Storage, "update external endpoint", err)
	}
	return nil
}
