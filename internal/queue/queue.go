// Package queue implements the durable outbound delivery queue: a
// priority-ordered table of pending sends with exponential backoff,
// backed by the storage package's outbound_queue table.
package queue

import (
	"database/sql"

	"github.com/pure2p/pure2p/internal/perror"
	"github.com/pure2p/pure2p/internal/storage"
)

// Priority levels. Higher numeric value sorts first (priority DESC).
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// Backoff parameters: next_retry_at = last_attempt_at + base_delay_ms *
// 2^(attempts-1), capped at CapMs, dropped once attempts exceeds
// max_retries. DefaultBaseDelayMs and DefaultMaxRetries mirror the
// settings table's own defaults (storage.DefaultBaseRetryDelayMs,
// storage.DefaultMaxRetries) and are only used until SetBackoffParams
// is called with the loaded settings row.
const (
	DefaultBaseDelayMs = 1000
	DefaultMaxRetries  = 5
	CapMs              = 600_000
)

// Entry is a single durable queue row.
type Entry struct {
	ID            int64
	TargetUID     string
	MessageType   string
	Payload       []byte
	Priority      Priority
	Attempts      int
	NextRetryAtMs int64
	LastAttemptMs int64
	CreatedAtMs   int64
}

// Queue wraps the storage connection's outbound_queue table.
type Queue struct {
	db         *sql.DB
	baseDelay  int64
	maxRetries int
}

// New wraps an open storage handle's underlying connection, with backoff
// parameters at their settings-table defaults until SetBackoffParams is
// called with the loaded settings row.
func New(store *storage.Storage) *Queue {
	return &Queue{db: store.DB(), baseDelay: DefaultBaseDelayMs, maxRetries: DefaultMaxRetries}
}

// SetBackoffParams applies the configured base retry delay and max
// retries from the settings row. The caller (app) invokes this once
// after loading settings at startup, and again whenever either value
// changes at runtime.
func (q *Queue) SetBackoffParams(baseDelayMs int64, maxRetries int) {
	q.baseDelay = baseDelayMs
	q.maxRetries = maxRetries
}

// Enqueue inserts a new pending entry, due immediately (next_retry_at =
// createdAtMs), and returns its id.
func (q *Queue) Enqueue(targetUID, messageType string, payload []byte, priority Priority, createdAtMs int64) (int64, error) {
	res, err := q.db.Exec(`INSERT INTO outbound_queue
		(target_uid, message_type, payload, priority, attempts, next_retry_at, last_attempt_at, created_at)
		VALUES (?, ?, ?, ?, 0, ?, NULL, ?)`,
		targetUID, messageType, payload, int(priority), createdAtMs, createdAtMs)
	if err != nil {
		return 0, perror.Wrap(perror.Queue, "enqueue", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, perror.Wrap(perror.Queue, "read inserted queue id", err)
	}
	return id, nil
}

// FetchDue returns entries whose next_retry_at has arrived, ordered by
// priority (highest first) then next_retry_at (earliest first).
func (q *Queue) FetchDue(nowMs int64) ([]*Entry, error) {
	rows, err := q.db.Query(`SELECT id, target_uid, message_type, payload, priority, attempts,
		next_retry_at, COALESCE(last_attempt_at, 0), created_at
		FROM outbound_queue WHERE next_retry_at <= ?
		ORDER BY priority DESC, next_retry_at ASC`, nowMs)
	if err != nil {
		return nil, perror.Wrap(perror.Queue, "fetch due entries", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// FetchAllPending returns every entry irrespective of due time, for the
// one-time startup drain.
func (q *Queue) FetchAllPending() ([]*Entry, error) {
	rows, err := q.db.Query(`SELECT id, target_uid, message_type, payload, priority, attempts,
		next_retry_at, COALESCE(last_attempt_at, 0), created_at
		FROM outbound_queue ORDER BY priority DESC, next_retry_at ASC`)
	if err != nil {
		return nil, perror.Wrap(perror.Queue, "fetch all pending", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// MarkDelivered removes an entry after a successful dispatch.
func (q *Queue) MarkDelivered(id int64) error {
	if _, err := q.db.Exec(`DELETE FROM outbound_queue WHERE id = ?`, id); err != nil {
		return perror.Wrap(perror.Queue, "mark delivered", err)
	}
	return nil
}

// MarkFailed records a failed attempt. Once attempts exceeds MaxRetries
// the entry is dropped; otherwise its next_retry_at is pushed out by the
// exponential backoff schedule.
func (q *Queue) MarkFailed(id int64, nowMs int64) error {
	row := q.db.QueryRow(`SELECT attempts FROM outbound_queue WHERE id = ?`, id)
	var attempts int
	if err := row.Scan(&attempts); err != nil {
		return perror.Wrap(perror.Queue, "mark failed: read attempts", err)
	}

	attempts++
	if attempts > q.maxRetries {
		return q.MarkDelivered(id) // delete: retries exhausted
	}

	next := nowMs + q.backoffMs(attempts)
	_, err := q.db.Exec(`UPDATE outbound_queue SET attempts = ?, last_attempt_at = ?, next_retry_at = ? WHERE id = ?`,
		attempts, nowMs, next, id)
	if err != nil {
		return perror.Wrap(perror.Queue, "mark failed: update entry", err)
	}
	return nil
}

// backoffMs computes base_delay_ms * 2^(attempts-1), capped at CapMs.
func (q *Queue) backoffMs(attempts int) int64 {
	delay := q.baseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= CapMs {
			return CapMs
		}
	}
	return delay
}

// PendingContactUIDs returns the distinct target UIDs with any queued
// entry, driving a chat's has_pending_messages flag.
func (q *Queue) PendingContactUIDs() ([]string, error) {
	rows, err := q.db.Query(`SELECT DISTINCT target_uid FROM outbound_queue`)
	if err != nil {
		return nil, perror.Wrap(perror.Queue, "list pending contact uids", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, perror.Wrap(perror.Queue, "scan pending contact uid", err)
		}
		out = append(out, uid)
	}
	if err := rows.Err(); err != nil {
		return nil, perror.Wrap(perror.Queue, "list pending contact uids", err)
	}
	return out, nil
}

// HasPending reports whether targetUID has any queued entry.
func (q *Queue) HasPending(targetUID string) (bool, error) {
	row := q.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM outbound_queue WHERE target_uid = ?)`, targetUID)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, perror.Wrap(perror.Queue, "check pending", err)
	}
	return exists, nil
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var out []*Entry
	for rows.Next() {
		var e Entry
		var priority int
		if err := rows.Scan(&e.ID, &e.TargetUID, &e.MessageType, &e.Payload, &priority, &e.Attempts,
			&e.NextRetryAtMs, &e.LastAttemptMs, &e.CreatedAtMs); err != nil {
			return nil, perror.Wrap(perror.Queue, "scan entry", err)
		}
		e.Priority = Priority(priority)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, perror.Wrap(perror.Queue, "scan entries", err)
	}
	return out, nil
}
