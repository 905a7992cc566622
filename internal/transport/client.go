package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/pure2p/pure2p/internal/wire"
)

// DeliveryResult classifies the outcome of a single send attempt, the
// shape the queue's retry worker acts on.
type DeliveryResult int

const (
	Delivered DeliveryResult = iota
	Queued
	Retry
	Failed
)

// FailureReason distinguishes why a send did not succeed, for logging
// and diagnostics; it never changes queue scheduling, which only cares
// about DeliveryResult.
type FailureReason int

const (
	ReasonNone FailureReason = iota
	ReasonConnectionRefused
	ReasonTimeout
	ReasonBadStatus
	ReasonDecodeError
)

// SendOutcome is the result of a single client call.
type SendOutcome struct {
	Result   DeliveryResult
	Reason   FailureReason
	HTTPCode int
}

const (
	pingTimeout    = 5 * time.Second
	messageTimeout = 15 * time.Second
)

// Client reaches other nodes over the transport's three endpoints. It
// never retries; that policy belongs to the queue.
type Client struct {
	httpClient *http.Client
	encoding   wire.Encoding
}

// NewClient constructs a Client using CBOR on the wire.
func NewClient() *Client {
	return &Client{httpClient: &http.Client{}, encoding: wire.CBOR}
}

// SendEnvelope posts a MessageEnvelope to addr's legacy /output endpoint.
func (c *Client) SendEnvelope(ctx context.Context, addr string, env *wire.MessageEnvelope) SendOutcome {
	return c.post(ctx, addr+"/output", env, nil, messageTimeout)
}

// SendPing posts a PingRequest to addr's /ping endpoint and decodes the
// PingResponse on success.
func (c *Client) SendPing(ctx context.Context, addr string, req *wire.PingRequest) (SendOutcome, *wire.PingResponse) {
	var resp wire.PingResponse
	outcome := c.post(ctx, addr+"/ping", req, &resp, pingTimeout)
	if outcome.Result != Delivered {
		return outcome, nil
	}
	return outcome, &resp
}

// SendMessage posts a MessageRequest to addr's /message endpoint.
func (c *Client) SendMessage(ctx context.Context, addr string, req *wire.MessageRequest) SendOutcome {
	return c.post(ctx, addr+"/message", req, nil, messageTimeout)
}

func (c *Client) post(ctx context.Context, url string, body interface{}, out interface{}, timeout time.Duration) SendOutcome {
	encoded, err := wire.Marshal(c.encoding, body)
	if err != nil {
		return SendOutcome{Result: Failed, Reason: ReasonDecodeError}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return SendOutcome{Result: Failed, Reason: ReasonDecodeError}
	}
	httpReq.Header.Set("Content-Type", wire.ContentType(c.encoding))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return SendOutcome{Result: Retry, Reason: ReasonTimeout}
		}
		if isConnRefused(err) {
			return SendOutcome{Result: Retry, Reason: ReasonConnectionRefused}
		}
		return SendOutcome{Result: Retry, Reason: ReasonConnectionRefused}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SendOutcome{Result: Failed, Reason: ReasonBadStatus, HTTPCode: resp.StatusCode}
	}

	if out != nil {
		if err := wire.Unmarshal(c.encoding, readAll(resp), out); err != nil {
			return SendOutcome{Result: Failed, Reason: ReasonDecodeError, HTTPCode: resp.StatusCode}
		}
	}
	return SendOutcome{Result: Delivered, HTTPCode: resp.StatusCode}
}

func isConnRefused(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func readAll(resp *http.Response) []byte {
	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	return buf.Bytes()
}
