// Package messaging implements the chat lifecycle semantics that glue
// transport, the durable queue, and storage together: sending,
// receiving, smart delete, and the reciprocal-import handshake.
package messaging

import (
	"context"

	"github.com/google/uuid"

	"github.com/pure2p/pure2p/internal/crypto"
	"github.com/pure2p/pure2p/internal/perror"
	"github.com/pure2p/pure2p/internal/queue"
	"github.com/pure2p/pure2p/internal/storage"
	"github.com/pure2p/pure2p/internal/transport"
	"github.com/pure2p/pure2p/internal/wire"
)

// Clock returns the current epoch millisecond time; overridable in tests.
type Clock func() int64

// Orchestrator implements send/receive/import/delete semantics over a
// store, queue, and transport client for one local identity.
type Orchestrator struct {
	store    *storage.Storage
	queue    *queue.Queue
	client   *transport.Client
	identity *storage.Identity
	now      Clock
}

// New constructs an Orchestrator for a loaded identity.
func New(store *storage.Storage, q *queue.Queue, client *transport.Client, identity *storage.Identity, now Clock) *Orchestrator {
	return &Orchestrator{store: store, queue: q, client: client, identity: identity, now: now}
}

// SendResult reports what happened to a Send call.
type SendResult struct {
	Delivered bool
	MessageID string
}

// Send attempts immediate delivery of a message to contact; on any
// non-Delivered transport outcome it enqueues at priority for the
// retry worker to pick up later, per the send algorithm's persist-then-
// attempt rule.
func (o *Orchestrator) Send(ctx context.Context, contactUID, messageType string, payload []byte, priority queue.Priority) (*SendResult, error) {
	contact, err := o.store.GetContact(contactUID)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, perror.New(perror.Validation, "unknown contact")
	}

	chat, err := o.store.GetOrCreateChat(contactUID, o.now())
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	outcome := o.client.SendMessage(ctx, "http://"+contact.IP, &wire.MessageRequest{
		FromUID:     o.identity.UID,
		MessageType: messageType,
		Payload:     payload,
	})

	status := storage.MessageStatusPending
	delivered := outcome.Result == transport.Delivered
	if delivered {
		status = storage.MessageStatusSent
	} else {
		if _, err := o.queue.Enqueue(contactUID, messageType, payload, priority, o.now()); err != nil {
			return nil, err
		}
		if err := o.store.SetChatPending(contactUID, true); err != nil {
			return nil, err
		}
	}

	if err := o.store.InsertMessage(&storage.Message{
		ID: id, ChatUID: contactUID, Sender: o.identity.UID, Receiver: contactUID,
		Content: payload, TimestampMs: o.now(), MessageType: messageType, Status: status,
	}); err != nil {
		return nil, err
	}

	if delivered {
		hasPending, err := o.queue.HasPending(contactUID)
		if err != nil {
			return nil, err
		}
		if !hasPending && chat.HasPendingMessages {
			if err := o.store.SetChatPending(contactUID, false); err != nil {
				return nil, err
			}
		}
	}

	return &SendResult{Delivered: delivered, MessageID: id}, nil
}

// DeleteChat implements smart delete: an active chat gets an Urgent
// delete_chat notification enqueued for the peer before local removal;
// an inactive chat is removed silently.
func (o *Orchestrator) DeleteChat(contactUID string) error {
	chat, err := o.store.GetChat(contactUID)
	if err != nil {
		return err
	}
	if chat == nil {
		return nil
	}

	if chat.IsActive {
		if _, err := o.queue.Enqueue(contactUID, wire.MessageTypeDeleteChat, nil, queue.PriorityUrgent, o.now()); err != nil {
			return err
		}
	}
	return o.store.DeleteChat(contactUID)
}

// HandleIncomingMessage implements the /message handler: unknown
// contacts are dropped, otherwise the message is appended and the chat
// marked active; a delete_chat message type removes the chat instead.
func (o *Orchestrator) HandleIncomingMessage(req *wire.MessageRequest) error {
	contact, err := o.store.GetContact(req.FromUID)
	if err != nil {
		return err
	}
	if contact == nil {
		return nil // drop: we only accept from known contacts
	}

	if req.MessageType == wire.MessageTypeDeleteChat {
		return o.store.DeleteChat(req.FromUID)
	}

	if _, err := o.store.GetOrCreateChat(req.FromUID, o.now()); err != nil {
		return err
	}
	if err := o.store.SetChatActive(req.FromUID, true); err != nil {
		return err
	}

	return o.store.InsertMessage(&storage.Message{
		ID: uuid.NewString(), ChatUID: req.FromUID, Sender: req.FromUID, Receiver: o.identity.UID,
		Content: req.Payload, TimestampMs: o.now(), MessageType: req.MessageType,
		Status: storage.MessageStatusDelivered,
	})
}

// HandlePing implements the /ping reciprocal-import handshake: verify
// the carried token, reject self-import, upsert the contact, and mark
// the chat active.
func (o *Orchestrator) HandlePing(req *wire.PingRequest) (*wire.PingResponse, error) {
	token, err := DecodeContactToken(req.ContactToken)
	if err != nil {
		return nil, err
	}
	if err := crypto.VerifyToken(token); err != nil {
		return nil, err
	}

	peerUID, err := crypto.UID(token.Payload.SigningPub)
	if err != nil {
		return nil, err
	}
	if peerUID == o.identity.UID {
		return nil, perror.New(perror.Validation, "self-import rejected")
	}

	if err := o.store.UpsertContact(&storage.Contact{
		UID: peerUID, IP: token.Payload.IP, SigningPubkey: token.Payload.SigningPub,
		KxPubkey: token.Payload.ExchangePub, ExpiryMs: token.Payload.ExpiryMs, IsActive: true, CreatedAt: o.now(),
	}); err != nil {
		return nil, err
	}

	if _, err := o.store.GetOrCreateChat(peerUID, o.now()); err != nil {
		return nil, err
	}
	if err := o.store.SetChatActive(peerUID, true); err != nil {
		return nil, err
	}

	return &wire.PingResponse{UID: o.identity.UID, Status: wire.StatusOK}, nil
}

// ImportResult reports the outcome of ImportContact.
type ImportResult struct {
	ContactUID string
}

// ImportContact decodes and verifies a shared token, rejects self-
// import and expired tokens, upserts the contact with a Pending chat,
// and enqueues an outbound ping carrying our own token so the peer can
// reciprocally import us.
func (o *Orchestrator) ImportContact(tokenB64 string, ourTokenB64 string) (*ImportResult, error) {
	token, err := DecodeContactToken(tokenB64)
	if err != nil {
		return nil, err
	}
	if err := crypto.VerifyToken(token); err != nil {
		return nil, err
	}

	if token.Payload.ExpiryMs <= o.now() {
		return nil, perror.New(perror.Validation, "contact token expired")
	}

	peerUID, err := crypto.UID(token.Payload.SigningPub)
	if err != nil {
		return nil, err
	}
	if peerUID == o.identity.UID {
		return nil, perror.New(perror.Validation, "self-import rejected")
	}

	if err := o.store.UpsertContact(&storage.Contact{
		UID: peerUID, IP: token.Payload.IP, SigningPubkey: token.Payload.SigningPub,
		KxPubkey: token.Payload.ExchangePub, ExpiryMs: token.Payload.ExpiryMs, IsActive: false, CreatedAt: o.now(),
	}); err != nil {
		return nil, err
	}
	if _, err := o.store.GetOrCreateChat(peerUID, o.now()); err != nil {
		return nil, err
	}

	payload, err := wire.Marshal(wire.CBOR, &wire.PingRequest{ContactToken: ourTokenB64})
	if err != nil {
		return nil, err
	}
	if _, err := o.queue.Enqueue(peerUID, "ping", payload, queue.PriorityHigh, o.now()); err != nil {
		return nil, err
	}

	return &ImportResult{ContactUID: peerUID}, nil
}
