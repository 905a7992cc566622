package messaging

import (
	"context"
	"testing"

	"github.com/pure2p/pure2p/internal/crypto"
	"github.com/pure2p/pure2p/internal/queue"
	"github.com/pure2p/pure2p/internal/storage"
	"github.com/pure2p/pure2p/internal/transport"
	"github.com/pure2p/pure2p/internal/wire"
)

func newOrchestrator(t *testing.T) (*Orchestrator, *storage.Storage, *crypto.KeyPair) {
	t.Helper()
	store, err := storage.New(&storage.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	uid, err := crypto.UID(kp.SigningPublic)
	if err != nil {
		t.Fatalf("UID() error = %v", err)
	}
	identity := &storage.Identity{UID: uid, SigningPublic: kp.SigningPublic}

	q := queue.New(store)
	client := transport.NewClient()
	clock := Clock(func() int64 { return 1000 })

	return New(store, q, client, identity, clock), store, kp
}

func TestSendToUnknownContactFails(t *testing.T) {
	orch, _, _ := newOrchestrator(t)
	_, err := orch.Send(context.Background(), "unknown-uid", wire.MessageTypeText, []byte("hi"), queue.PriorityNormal)
	if err == nil {
		t.Error("expected error sending to unknown contact")
	}
}

func TestSendUnreachableContactEnqueues(t *testing.T) {
	orch, store, _ := newOrchestrator(t)

	contactUID := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	if err := store.UpsertContact(&storage.Contact{UID: contactUID, IP: "127.0.0.1:1", CreatedAt: 1}); err != nil {
		t.Fatalf("UpsertContact() error = %v", err)
	}

	result, err := orch.Send(context.Background(), contactUID, wire.MessageTypeText, []byte("hi"), queue.PriorityNormal)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if result.Delivered {
		t.Error("expected Delivered = false for unreachable contact")
	}

	chat, err := store.GetChat(contactUID)
	if err != nil {
		t.Fatalf("GetChat() error = %v", err)
	}
	if !chat.HasPendingMessages {
		t.Error("expected chat.HasPendingMessages = true after enqueue")
	}

	msgs, err := store.ListMessages(contactUID)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].Status != storage.MessageStatusPending {
		t.Fatalf("unexpected message state: %+v", msgs)
	}
}

func TestDeleteChatActiveEnqueuesUrgent(t *testing.T) {
	orch, store, _ := newOrchestrator(t)

	contactUID := "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	store.UpsertContact(&storage.Contact{UID: contactUID, IP: "127.0.0.1:1", CreatedAt: 1})
	store.GetOrCreateChat(contactUID, 1)
	store.SetChatActive(contactUID, true)

	if err := orch.DeleteChat(contactUID); err != nil {
		t.Fatalf("DeleteChat() error = %v", err)
	}

	chat, err := store.GetChat(contactUID)
	if err != nil {
		t.Fatalf("GetChat() error = %v", err)
	}
	if chat != nil {
		t.Error("expected chat removed locally")
	}

	q := queue.New(store)
	uids, err := q.PendingContactUIDs()
	if err != nil {
		t.Fatalf("PendingContactUIDs() error = %v", err)
	}
	if len(uids) != 1 || uids[0] != contactUID {
		t.Errorf("expected delete_chat enqueued for contact, got %v", uids)
	}
}

func TestDeleteChatInactiveIsSilent(t *testing.T) {
	orch, store, _ := newOrchestrator(t)

	contactUID := "cccccccccccccccccccccccccccccccc"
	store.UpsertContact(&storage.Contact{UID: contactUID, IP: "127.0.0.1:1", CreatedAt: 1})
	store.GetOrCreateChat(contactUID, 1)

	if err := orch.DeleteChat(contactUID); err != nil {
		t.Fatalf("DeleteChat() error = %v", err)
	}

	q := queue.New(store)
	uids, err := q.PendingContactUIDs()
	if err != nil {
		t.Fatalf("PendingContactUIDs() error = %v", err)
	}
	if len(uids) != 0 {
		t.Errorf("expected no queue entry for inactive chat delete, got %v", uids)
	}
}

func TestHandleIncomingMessageDropsUnknownContact(t *testing.T) {
	orch, store, _ := newOrchestrator(t)

	err := orch.HandleIncomingMessage(&wire.MessageRequest{
		FromUID: "unknown", MessageType: wire.MessageTypeText, Payload: []byte("hi"),
	})
	if err != nil {
		t.Fatalf("HandleIncomingMessage() error = %v", err)
	}

	chat, err := store.GetChat("unknown")
	if err != nil {
		t.Fatalf("GetChat() error = %v", err)
	}
	if chat != nil {
		t.Error("expected no chat created for unknown contact")
	}
}

func TestHandleIncomingMessageFromKnownContact(t *testing.T) {
	orch, store, _ := newOrchestrator(t)

	contactUID := "dddddddddddddddddddddddddddddddd"
	store.UpsertContact(&storage.Contact{UID: contactUID, IP: "127.0.0.1:1", CreatedAt: 1})

	err := orch.HandleIncomingMessage(&wire.MessageRequest{
		FromUID: contactUID, MessageType: wire.MessageTypeText, Payload: []byte("hi"),
	})
	if err != nil {
		t.Fatalf("HandleIncomingMessage() error = %v", err)
	}

	chat, err := store.GetChat(contactUID)
	if err != nil {
		t.Fatalf("GetChat() error = %v", err)
	}
	if chat == nil || !chat.IsActive {
		t.Fatalf("expected active chat, got %+v", chat)
	}

	msgs, err := store.ListMessages(contactUID)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("len(msgs) = %d, want 1", len(msgs))
	}
}

func TestHandleIncomingDeleteChatRemovesChat(t *testing.T) {
	orch, store, _ := newOrchestrator(t)

	contactUID := "eeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"
	store.UpsertContact(&storage.Contact{UID: contactUID, IP: "127.0.0.1:1", CreatedAt: 1})
	store.GetOrCreateChat(contactUID, 1)

	err := orch.HandleIncomingMessage(&wire.MessageRequest{FromUID: contactUID, MessageType: wire.MessageTypeDeleteChat})
	if err != nil {
		t.Fatalf("HandleIncomingMessage() error = %v", err)
	}

	chat, err := store.GetChat(contactUID)
	if err != nil {
		t.Fatalf("GetChat() error = %v", err)
	}
	if chat != nil {
		t.Error("expected chat removed after delete_chat")
	}
}

func TestImportContactAndHandlePingRoundTrip(t *testing.T) {
	aliceOrch, _, aliceKP := newOrchestrator(t)
	bobOrch, bobStore, bobKP := newOrchestrator(t)

	bobUID, err := crypto.UID(bobKP.SigningPublic)
	if err != nil {
		t.Fatalf("UID() error = %v", err)
	}

	aliceToken, err := crypto.SignToken(aliceKP.SigningSecret, crypto.TokenPayload{
		IP: "127.0.0.1:10001", SigningPub: aliceKP.SigningPublic, ExchangePub: aliceKP.ExchangePublic[:],
		ExpiryMs: 9999999999999,
	})
	if err != nil {
		t.Fatalf("SignToken() error = %v", err)
	}
	aliceTokenB64, err := EncodeContactToken(aliceToken)
	if err != nil {
		t.Fatalf("EncodeContactToken() error = %v", err)
	}

	bobToken, err := crypto.SignToken(bobKP.SigningSecret, crypto.TokenPayload{
		IP: "127.0.0.1:10002", SigningPub: bobKP.SigningPublic, ExchangePub: bobKP.ExchangePublic[:],
		ExpiryMs: 9999999999999,
	})
	if err != nil {
		t.Fatalf("SignToken() error = %v", err)
	}
	bobTokenB64, err := EncodeContactToken(bobToken)
	if err != nil {
		t.Fatalf("EncodeContactToken() error = %v", err)
	}

	// Alice imports Bob's token: Pending chat + outbound ping queued.
	result, err := aliceOrch.ImportContact(bobTokenB64, aliceTokenB64)
	if err != nil {
		t.Fatalf("ImportContact() error = %v", err)
	}
	if result.ContactUID != bobUID {
		t.Errorf("ContactUID = %s, want %s", result.ContactUID, bobUID)
	}

	// Bob receives the ping: upserts Alice, activates the chat.
	resp, err := bobOrch.HandlePing(&wire.PingRequest{ContactToken: aliceTokenB64})
	if err != nil {
		t.Fatalf("HandlePing() error = %v", err)
	}
	if resp.Status != wire.StatusOK {
		t.Errorf("resp.Status = %s, want ok", resp.Status)
	}

	aliceUID, err := crypto.UID(aliceKP.SigningPublic)
	if err != nil {
		t.Fatalf("UID() error = %v", err)
	}
	chat, err := bobStore.GetChat(aliceUID)
	if err != nil {
		t.Fatalf("GetChat() error = %v", err)
	}
	if chat == nil || !chat.IsActive {
		t.Fatalf("expected bob to have an active chat with alice, got %+v", chat)
	}
}

func TestHandlePingRejectsSelfImport(t *testing.T) {
	orch, _, kp := newOrchestrator(t)

	token, err := crypto.SignToken(kp.SigningSecret, crypto.TokenPayload{
		IP: "127.0.0.1:1", SigningPub: kp.SigningPublic, ExchangePub: kp.ExchangePublic[:], ExpiryMs: 9999999999999,
	})
	if err != nil {
		t.Fatalf("SignToken() error = %v", err)
	}
	tokenB64, err := EncodeContactToken(token)
	if err != nil {
		t.Fatalf("EncodeContactToken() error = %v", err)
	}

	if _, err := orch.HandlePing(&wire.PingRequest{ContactToken: tokenB64}); err == nil {
		t.Error("expected self-import rejection")
	}
}

func TestImportContactRejectsExpiredToken(t *testing.T) {
	orch, _, kp := newOrchestrator(t)

	peerKP, _ := crypto.GenerateKeyPair()
	token, err := crypto.SignToken(peerKP.SigningSecret, crypto.TokenPayload{
		IP: "127.0.0.1:1", SigningPub: peerKP.SigningPublic, ExchangePub: peerKP.ExchangePublic[:], ExpiryMs: 1,
	})
	if err != nil {
		t.Fatalf("SignToken() error = %v", err)
	}
	tokenB64, err := EncodeContactToken(token)
	if err != nil {
		t.Fatalf("EncodeContactToken() error = %v", err)
	}

	ourToken, _ := crypto.SignToken(kp.SigningSecret, crypto.TokenPayload{SigningPub: kp.SigningPublic})
	ourTokenB64, _ := EncodeContactToken(ourToken)

	if _, err := orch.ImportContact(tokenB64, ourTokenB64); err == nil {
		t.Error("expected expired-token rejection")
	}
}
