package app

import (
	"context"
	"strconv"
	"time"

	"github.com/pure2p/pure2p/internal/connectivity"
	"github.com/pure2p/pure2p/internal/crypto"
	"github.com/pure2p/pure2p/internal/messaging"
	"github.com/pure2p/pure2p/internal/queue"
	"github.com/pure2p/pure2p/internal/storage"
	"github.com/pure2p/pure2p/internal/wire"
)

// StateResult is the response to load_state: everything the UI needs
// to render its initial screen.
type StateResult struct {
	UID          string
	ExternalIP   string
	ExternalPort int
	Contacts     []*storage.Contact
	Chats        []*storage.Chat
	Settings     *storage.Settings
}

// LoadState returns the node's current identity, contacts, chats, and
// settings.
func (a *App) LoadState() (*StateResult, error) {
	identity, err := a.store.LoadIdentity()
	if err != nil {
		return nil, err
	}
	contacts, err := a.store.ListContacts()
	if err != nil {
		return nil, err
	}
	chats, err := a.store.ListChats()
	if err != nil {
		return nil, err
	}
	settings, err := a.store.LoadSettings()
	if err != nil {
		return nil, err
	}
	return &StateResult{
		UID: identity.UID, ExternalIP: identity.ExternalIP, ExternalPort: identity.ExternalPort,
		Contacts: contacts, Chats: chats, Settings: settings,
	}, nil
}

// ShareTokenResult carries the base64url contact token to hand out
// manually.
type ShareTokenResult struct {
	Token string
}

// GenerateShareToken signs a fresh contact token over our current
// endpoint and both public keys, valid for the configured
// token_validity_hours setting.
func (a *App) GenerateShareToken() (*ShareTokenResult, error) {
	identity, err := a.store.LoadIdentity()
	if err != nil {
		return nil, err
	}
	settings, err := a.store.LoadSettings()
	if err != nil {
		return nil, err
	}

	endpoint := identity.ExternalIP
	if endpoint == "" {
		endpoint = "0.0.0.0"
	}
	ip := endpoint + ":" + portString(identity.ExternalPort, a.internalPort)

	validity := time.Duration(settings.TokenValidityHours) * time.Hour
	token, err := crypto.SignToken(identity.SigningSecret, crypto.TokenPayload{
		IP:          ip,
		SigningPub:  identity.SigningPublic,
		ExchangePub: identity.ExchangePublic,
		ExpiryMs:    time.Now().Add(validity).UnixMilli(),
	})
	if err != nil {
		return nil, err
	}
	tokenB64, err := messaging.EncodeContactToken(token)
	if err != nil {
		return nil, err
	}
	return &ShareTokenResult{Token: tokenB64}, nil
}

// ImportContact imports a peer's share token: verifies it, upserts a
// pending contact, and enqueues our own token back to them via ping.
func (a *App) ImportContact(token string) (*messaging.ImportResult, error) {
	ours, err := a.GenerateShareToken()
	if err != nil {
		return nil, err
	}
	return a.orch.ImportContact(token, ours.Token)
}

// SendText sends a plain text message to contactUID.
func (a *App) SendText(ctx context.Context, contactUID, text string) (*messaging.SendResult, error) {
	return a.orch.Send(ctx, contactUID, wire.MessageTypeText, []byte(text), queue.PriorityNormal)
}

// DeleteChat removes a chat, notifying an active peer per smart delete.
func (a *App) DeleteChat(contactUID string) error {
	return a.orch.DeleteChat(contactUID)
}

// ListChats returns every chat the node currently tracks.
func (a *App) ListChats() ([]*storage.Chat, error) {
	return a.store.ListChats()
}

// OpenChatResult is the response to open_chat: the chat record plus
// its message history in timestamp order.
type OpenChatResult struct {
	Chat     *storage.Chat
	Messages []*storage.Message
}

// OpenChat returns a chat and its full message history.
func (a *App) OpenChat(contactUID string) (*OpenChatResult, error) {
	chat, err := a.store.GetChat(contactUID)
	if err != nil {
		return nil, err
	}
	messages, err := a.store.ListMessages(contactUID)
	if err != nil {
		return nil, err
	}
	return &OpenChatResult{Chat: chat, Messages: messages}, nil
}

// UpdateSetting applies a single named settings change (e.g.
// retry_interval_minutes, log_level), clamping/validating as the
// storage layer requires, and returns the settings row as it now
// stands.
func (a *App) UpdateSetting(name string, value interface{}) (*storage.Settings, error) {
	if err := a.store.UpdateSetting(name, value); err != nil {
		return nil, err
	}
	settings, err := a.store.LoadSettings()
	if err != nil {
		return nil, err
	}
	if name == "base_retry_delay_ms" || name == "max_retries" {
		a.queue.SetBackoffParams(int64(settings.BaseRetryDelayMs), settings.MaxRetries)
	}
	return settings, nil
}

// DiagnosticsResult reports the outcome of the most recent connectivity
// ladder run, per-protocol, for the diagnostics screen.
type DiagnosticsResult struct {
	Summary       string
	CGNATDetected bool
	Attempts      []connectivity.StrategyAttempt
}

// RunDiagnostics reports the last connectivity ladder outcome. It does
// not re-run the ladder; the probe already ran once at startup.
func (a *App) RunDiagnostics() *DiagnosticsResult {
	a.connMu.RLock()
	defer a.connMu.RUnlock()

	if a.lastConn == nil {
		return &DiagnosticsResult{Summary: "connectivity: probe still running"}
	}
	return &DiagnosticsResult{
		Summary:       a.lastConn.Summary(),
		CGNATDetected: a.lastConn.CGNATDetected,
		Attempts:      a.lastConn.Attempts,
	}
}

func portString(externalPort, internalPort int) string {
	port := externalPort
	if port == 0 {
		port = internalPort
	}
	return strconv.Itoa(port)
}
