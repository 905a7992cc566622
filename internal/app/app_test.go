package app

import (
	"context"
	"testing"

	"github.com/pure2p/pure2p/internal/storage"
)

func newTestApp(t *testing.T, port int) *App {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	cfg := &Config{DataDir: t.TempDir(), LogLevel: "error", Port: port}
	a, err := Open(ctx, cfg)
	if err != nil {
		cancel()
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		a.Close()
		cancel()
	})
	return a
}

func TestOpenGeneratesIdentityOnce(t *testing.T) {
	a := newTestApp(t, 19100)

	state, err := a.LoadState()
	if err != nil {
		t.Fatalf("LoadState() error = %v", err)
	}
	if state.UID == "" {
		t.Error("expected a generated UID")
	}
	if len(state.Contacts) != 0 || len(state.Chats) != 0 {
		t.Errorf("expected empty contacts/chats on a fresh node, got %+v / %+v", state.Contacts, state.Chats)
	}
	if state.Settings.RetryIntervalMinutes < 1 {
		t.Errorf("expected default settings to be populated, got %+v", state.Settings)
	}
}

func TestGenerateShareTokenProducesDecodableToken(t *testing.T) {
	a := newTestApp(t, 19101)

	result, err := a.GenerateShareToken()
	if err != nil {
		t.Fatalf("GenerateShareToken() error = %v", err)
	}
	if result.Token == "" {
		t.Fatal("expected a non-empty token")
	}
}

func TestUpdateSettingClampsRetryInterval(t *testing.T) {
	a := newTestApp(t, 19102)

	settings, err := a.UpdateSetting("retry_interval_minutes", 99999)
	if err != nil {
		t.Fatalf("UpdateSetting() error = %v", err)
	}
	if settings.RetryIntervalMinutes != 1440 {
		t.Errorf("RetryIntervalMinutes = %d, want 1440", settings.RetryIntervalMinutes)
	}

	if _, err := a.UpdateSetting("unknown_setting", "x"); err == nil {
		t.Error("expected error for unknown setting name")
	}
}

func TestRunDiagnosticsBeforeProbeReportsInFlight(t *testing.T) {
	a := newTestApp(t, 19103)

	diag := a.RunDiagnostics()
	if diag == nil || diag.Summary == "" {
		t.Fatal("expected a non-empty diagnostics summary even before the probe completes")
	}
}

func TestSendTextToUnknownContactFails(t *testing.T) {
	a := newTestApp(t, 19104)

	if _, err := a.SendText(context.Background(), "nobody", "hi"); err == nil {
		t.Error("expected error sending to an unknown contact")
	}
}

func TestOpenChatOnUnknownContactReturnsNilChat(t *testing.T) {
	a := newTestApp(t, 19105)

	result, err := a.OpenChat("nobody")
	if err != nil {
		t.Fatalf("OpenChat() error = %v", err)
	}
	if result.Chat != nil {
		t.Errorf("expected nil chat for unknown contact, got %+v", result.Chat)
	}
	if len(result.Messages) != 0 {
		t.Errorf("expected no messages for unknown contact, got %v", result.Messages)
	}
}

func TestHandleDeliveredSyncsPendingFlagAndActivatesPingChat(t *testing.T) {
	a := newTestApp(t, 19108)

	contact := &storage.Contact{UID: "contactuid", IP: "127.0.0.1:9", CreatedAt: 1}
	if err := a.store.UpsertContact(contact); err != nil {
		t.Fatalf("UpsertContact() error = %v", err)
	}
	if _, err := a.store.GetOrCreateChat(contact.UID, 1); err != nil {
		t.Fatalf("GetOrCreateChat() error = %v", err)
	}
	if err := a.store.SetChatPending(contact.UID, true); err != nil {
		t.Fatalf("SetChatPending() error = %v", err)
	}

	// No queue entries remain for this contact: handleDelivered must
	// clear has_pending_messages rather than leave it stuck true.
	a.handleDelivered(contact.UID, "text")

	chat, err := a.store.GetChat(contact.UID)
	if err != nil {
		t.Fatalf("GetChat() error = %v", err)
	}
	if chat.HasPendingMessages {
		t.Error("expected has_pending_messages cleared once the queue is empty for this contact")
	}
	if chat.IsActive {
		t.Error("a delivered text message must not itself activate the chat")
	}

	a.handleDelivered(contact.UID, "ping")

	chat, err = a.store.GetChat(contact.UID)
	if err != nil {
		t.Fatalf("GetChat() error = %v", err)
	}
	if !chat.IsActive {
		t.Error("expected a delivered ping to flip the chat active")
	}
}

func TestImportContactBetweenTwoNodes(t *testing.T) {
	alice := newTestApp(t, 19106)
	bob := newTestApp(t, 19107)

	aliceToken, err := alice.GenerateShareToken()
	if err != nil {
		t.Fatalf("alice.GenerateShareToken() error = %v", err)
	}

	result, err := bob.ImportContact(aliceToken.Token)
	if err != nil {
		t.Fatalf("bob.ImportContact() error = %v", err)
	}

	aliceState, err := alice.LoadState()
	if err != nil {
		t.Fatalf("alice.LoadState() error = %v", err)
	}
	if result.ContactUID != aliceState.UID {
		t.Errorf("ContactUID = %s, want %s", result.ContactUID, aliceState.UID)
	}

	chat, err := bob.OpenChat(result.ContactUID)
	if err != nil {
		t.Fatalf("bob.OpenChat() error = %v", err)
	}
	if chat.Chat == nil {
		t.Fatal("expected a pending chat to exist after import")
	}
	if chat.Chat.IsActive {
		t.Error("expected the chat to start inactive until the reciprocal ping lands")
	}
}
