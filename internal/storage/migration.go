package storage

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/pure2p/pure2p/internal/perror"
)

// LegacyState is the JSON shape of the pre-SQLite state file. Its exact
// layout is not specified upstream; this mirrors the relational schema
// field-for-field so migration is a straight copy.
type LegacyState struct {
	Identity *LegacyIdentity `json:"identity"`
	Contacts []LegacyContact `json:"contacts"`
	Chats    []LegacyChat    `json:"chats"`
	Messages []LegacyMessage `json:"messages"`
	Settings *LegacySettings `json:"settings"`
}

type LegacyIdentity struct {
	UID            string `json:"uid"`
	SigningPublic  []byte `json:"signing_public"`
	SigningSecret  []byte `json:"signing_secret"`
	ExchangePublic []byte `json:"exchange_public"`
	ExchangeSecret []byte `json:"exchange_secret"`
}

type LegacyContact struct {
	UID           string `json:"uid"`
	IP            string `json:"ip"`
	SigningPubkey []byte `json:"signing_pubkey"`
	KxPubkey      []byte `json:"kx_pubkey"`
	ExpiryMs      int64  `json:"expiry_ms"`
	IsActive      bool   `json:"is_active"`
	CreatedAt     int64  `json:"created_at"`
}

type LegacyChat struct {
	ContactUID         string `json:"contact_uid"`
	IsActive           bool   `json:"is_active"`
	HasPendingMessages bool   `json:"has_pending_messages"`
	CreatedAt          int64  `json:"created_at"`
}

type LegacyMessage struct {
	ID          string `json:"id"`
	ChatUID     string `json:"chat_uid"`
	Sender      string `json:"sender"`
	Receiver    string `json:"receiver"`
	Content     []byte `json:"content"`
	TimestampMs int64  `json:"timestamp_ms"`
	MessageType string `json:"message_type"`
	Status      string `json:"status"`
}

type LegacySettings struct {
	RetryIntervalMinutes int    `json:"retry_interval_minutes"`
	LogLevel             string `json:"log_level"`
}

// MigrateLegacyFile migrates a legacy JSON state file at path into the
// store, then renames it with a ".bak" suffix. A missing file is a
// no-op, making the call idempotent: the second run finds no file at
// path (it was already renamed) and does nothing.
func (s *Storage) MigrateLegacyFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return perror.Wrap(perror.Storage, "read legacy state file", err)
	}

	var legacy LegacyState
	if err := json.Unmarshal(data, &legacy); err != nil {
		return perror.Wrap(perror.Storage, "parse legacy state file", err)
	}

	if err := s.applyLegacyState(&legacy); err != nil {
		return err
	}

	if err := os.Rename(path, path+".bak"); err != nil {
		return perror.Wrap(perror.Storage, "rename legacy state file", err)
	}
	return nil
}

func (s *Storage) applyLegacyState(legacy *LegacyState) error {
	if legacy.Identity != nil {
		existing, err := s.LoadIdentity()
		if err != nil {
			return err
		}
		if existing == nil {
			if err := s.SaveIdentity(&Identity{
				UID:            legacy.Identity.UID,
				SigningPublic:  legacy.Identity.SigningPublic,
				SigningSecret:  legacy.Identity.SigningSecret,
				ExchangePublic: legacy.Identity.ExchangePublic,
				ExchangeSecret: legacy.Identity.ExchangeSecret,
			}); err != nil {
				return err
			}
		}
	}

	for _, c := range legacy.Contacts {
		if err := s.UpsertContact(&Contact{
			UID:           c.UID,
			IP:            c.IP,
			SigningPubkey: c.SigningPubkey,
			KxPubkey:      c.KxPubkey,
			ExpiryMs:      c.ExpiryMs,
			IsActive:      c.IsActive,
			CreatedAt:     c.CreatedAt,
		}); err != nil {
			return err
		}
	}

	for _, c := range legacy.Chats {
		if _, err := s.GetOrCreateChat(c.ContactUID, c.CreatedAt); err != nil {
			return err
		}
		if err := s.SetChatActive(c.ContactUID, c.IsActive); err != nil {
			return err
		}
		if err := s.SetChatPending(c.ContactUID, c.HasPendingMessages); err != nil {
			return err
		}
	}

	for _, m := range legacy.Messages {
		if err := s.InsertMessage(&Message{
			ID:          m.ID,
			ChatUID:     m.ChatUID,
			Sender:      m.Sender,
			Receiver:    m.Receiver,
			Content:     m.Content,
			TimestampMs: m.TimestampMs,
			MessageType: m.MessageType,
			Status:      m.Status,
		}); err != nil {
			return err
		}
	}

	if legacy.Settings != nil {
		if _, err := s.LoadSettings(); err != nil {
			return err
		}
		if err := s.UpdateSetting("retry_interval_minutes", legacy.Settings.RetryIntervalMinutes); err != nil {
			return err
		}
		if err := s.UpdateSetting("log_level", legacy.Settings.LogLevel); err != nil {
			return err
		}
	}

	return nil
}
