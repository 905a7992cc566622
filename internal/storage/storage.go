// Package storage provides the embedded SQLite store: identity, contacts,
// chats, messages, settings, and the durable outbound queue.
package storage

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pure2p/pure2p/internal/perror"
)

// Storage wraps a single SQLite connection. Production stores are
// file-backed; tests use an in-memory store via NewInMemory.
type Storage struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Config holds storage configuration.
type Config struct {
	DataDir string
}

const fileName = "pure2p.db"

// New opens (creating if absent) the file-backed store under
// cfg.DataDir and initializes its schema.
func New(cfg *Config) (*Storage, error) {
	dataDir := expandPath(cfg.DataDir)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, perror.Wrap(perror.Storage, "create data directory", err)
	}

	dbPath := filepath.Join(dataDir, fileName)
	dsn := dbPath + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
	s, err := open(dsn)
	if err != nil {
		return nil, err
	}
	s.path = dbPath
	return s, nil
}

// NewInMemory opens a private in-memory store, for tests. Each call gets
// its own isolated database.
func NewInMemory() (*Storage, error) {
	return open("file::memory:?cache=shared&_foreign_keys=on")
}

func open(dsn string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, perror.Wrap(perror.Storage, "open database", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, perror.Wrap(perror.Storage, "ping database", err)
	}

	// A single writer connection; SQLite serializes writes at the engine
	// level and WAL lets readers proceed concurrently.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Storage{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// DB returns the underlying connection, for packages (queue) that issue
// their own statements against tables this package owns.
func (s *Storage) DB() *sql.DB {
	return s.db
}

// Path returns the on-disk database path, or "" for in-memory stores.
func (s *Storage) Path() string {
	return s.path
}

func (s *Storage) initSchema() error {
	schema := `
	PRAGMA foreign_keys = ON;

	-- Single-row table holding this node's identity: keypairs, UID, and
	-- the last external endpoint the connectivity probe detected.
	CREATE TABLE IF NOT EXISTS user_identity (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		uid TEXT NOT NULL,
		signing_public BLOB NOT NULL,
		signing_secret BLOB NOT NULL,
		exchange_public BLOB NOT NULL,
		exchange_secret BLOB NOT NULL,
		external_ip TEXT,
		external_port INTEGER
	);

	CREATE TABLE IF NOT EXISTS contacts (
		uid TEXT PRIMARY KEY,
		ip TEXT NOT NULL,
		signing_pubkey BLOB NOT NULL,
		kx_pubkey BLOB NOT NULL,
		expiry_ms INTEGER NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chats (
		contact_uid TEXT PRIMARY KEY,
		is_active INTEGER NOT NULL DEFAULT 0,
		has_pending_messages INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (contact_uid) REFERENCES contacts(uid) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		chat_uid TEXT NOT NULL,
		sender TEXT NOT NULL,
		receiver TEXT NOT NULL,
		content BLOB,
		timestamp_ms INTEGER NOT NULL,
		message_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		FOREIGN KEY (chat_uid) REFERENCES chats(contact_uid) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_chat_ts ON messages(chat_uid, timestamp_ms);

	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		retry_interval_minutes INTEGER NOT NULL DEFAULT 1,
		log_level TEXT NOT NULL DEFAULT 'info',
		token_validity_hours INTEGER NOT NULL DEFAULT 24,
		max_retries INTEGER NOT NULL DEFAULT 5,
		base_retry_delay_ms INTEGER NOT NULL DEFAULT 1000,
		notifications_enabled INTEGER NOT NULL DEFAULT 1
	);

	-- Durable outbound queue: one row per pending delivery attempt.
	CREATE TABLE IF NOT EXISTS outbound_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target_uid TEXT NOT NULL,
		message_type TEXT NOT NULL,
		payload BLOB,
		priority INTEGER NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		next_retry_at INTEGER NOT NULL,
		last_attempt_at INTEGER,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_queue_priority_retry ON outbound_queue(priority DESC, next_retry_at ASC);
	CREATE INDEX IF NOT EXISTS idx_queue_target ON outbound_queue(target_uid);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return perror.Wrap(perror.Storage, "initialize schema", err)
	}
	return nil
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
