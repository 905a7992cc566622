package storage

import (
	"database/sql"
	"errors"

	"github.com/pure2p/pure2p/internal/perror"
)

// Contact is a peer whose signed token we have imported.
type Contact struct {
	UID           string
	IP            string
	SigningPubkey []byte
	KxPubkey      []byte
	ExpiryMs      int64
	IsActive      bool
	CreatedAt     int64
}

// UpsertContact inserts or updates a contact by UID. Grounded on the
// ON CONFLICT DO UPDATE upsert convention used for peer records.
func (s *Storage) UpsertContact(c *Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO contacts (uid, ip, signing_pubkey, kx_pubkey, expiry_ms, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET
			ip = excluded.ip,
			signing_pubkey = excluded.signing_pubkey,
			kx_pubkey = excluded.kx_pubkey,
			expiry_ms = excluded.expiry_ms,
			is_active = excluded.is_active`,
		c.UID, c.IP, c.SigningPubkey, c.KxPubkey, c.ExpiryMs, boolToInt(c.IsActive), c.CreatedAt)
	if err != nil {
		return perror.Wrap(perror.Storage, "upsert contact", err)
	}
	return nil
}

// GetContact returns a contact by UID, or (nil, nil) if unknown.
func (s *Storage) GetContact(uid string) (*Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT uid, ip, signing_pubkey, kx_pubkey, expiry_ms, is_active, created_at
		FROM contacts WHERE uid = ?`, uid)
	return scanContact(row)
}

// ListContacts returns every known contact.
func (s *Storage) ListContacts() ([]*Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT uid, ip, signing_pubkey, kx_pubkey, expiry_ms, is_active, created_at
		FROM contacts ORDER BY created_at DESC`)
	if err != nil {
		return nil, perror.Wrap(perror.Storage, "list contacts", err)
	}
	defer rows.Close()

	var out []*Contact
	for rows.Next() {
		c, err := scanContactRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, perror.Wrap(perror.Storage, "list contacts", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContact(row *sql.Row) (*Contact, error) {
	c, err := scanContactRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, perror.Wrap(perror.Storage, "scan contact", err)
	}
	return c, nil
}

func scanContactRows(rows *sql.Rows) (*Contact, error) {
	c, err := scanContactRow(rows)
	if err != nil {
		return nil, perror.Wrap(perror.Storage, "scan contact", err)
	}
	return c, nil
}

func scanContactRow(r rowScanner) (*Contact, error) {
	var c Contact
	var isActive int
	if err := r.Scan(&c.UID, &c.IP, &c.SigningPubkey, &c.KxPubkey, &c.ExpiryMs, &isActive, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.IsActive = isActive != 0
	return &c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
