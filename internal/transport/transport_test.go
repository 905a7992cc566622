package transport

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/pure2p/pure2p/internal/wire"
)

func startTestServer(t *testing.T, h Handlers) *Server {
	t.Helper()
	srv := NewServer(h, nil)
	if err := srv.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == "" && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	return srv
}

func TestMessageEndpointAcceptsValidRequest(t *testing.T) {
	received := make(chan *wire.MessageRequest, 1)
	srv := startTestServer(t, Handlers{
		Message: func(ctx context.Context, req *wire.MessageRequest) error {
			received <- req
			return nil
		},
	})

	client := NewClient()
	outcome := client.SendMessage(context.Background(), "http://"+srv.Addr(), &wire.MessageRequest{
		FromUID:     "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		MessageType: wire.MessageTypeText,
		Payload:     []byte("hello"),
	})

	if outcome.Result != Delivered {
		t.Fatalf("SendMessage() result = %v, want Delivered", outcome.Result)
	}

	select {
	case req := <-received:
		if req.FromUID != "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" {
			t.Errorf("got from_uid %s", req.FromUID)
		}
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestPingEndpointRoundTrip(t *testing.T) {
	srv := startTestServer(t, Handlers{
		Ping: func(ctx context.Context, req *wire.PingRequest) (*wire.PingResponse, error) {
			return &wire.PingResponse{UID: "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", Status: wire.StatusOK}, nil
		},
	})

	client := NewClient()
	outcome, resp := client.SendPing(context.Background(), "http://"+srv.Addr(), &wire.PingRequest{ContactToken: "tok"})
	if outcome.Result != Delivered {
		t.Fatalf("SendPing() result = %v, want Delivered", outcome.Result)
	}
	if resp.Status != wire.StatusOK {
		t.Errorf("resp.Status = %s, want ok", resp.Status)
	}
}

func TestUnknownPathReturns404(t *testing.T) {
	srv := startTestServer(t, Handlers{})

	resp, err := http.Post("http://"+srv.Addr()+"/does-not-exist", "application/cbor", nil)
	if err != nil {
		t.Fatalf("http.Post() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestNonPostMethodReturns405(t *testing.T) {
	srv := startTestServer(t, Handlers{})

	resp, err := http.Get("http://" + srv.Addr() + "/message")
	if err != nil {
		t.Fatalf("http.Get() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestMalformedBodyReturns400(t *testing.T) {
	srv := startTestServer(t, Handlers{})

	// 0xA5 announces a 5-pair CBOR map but no pairs follow: truncated/invalid.
	resp, err := http.Post("http://"+srv.Addr()+"/message", "application/cbor", strings.NewReader("\xa5"))
	if err != nil {
		t.Fatalf("http.Post() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSendMessageConnectionRefused(t *testing.T) {
	client := NewClient()
	outcome := client.SendMessage(context.Background(), "http://127.0.0.1:1", &wire.MessageRequest{
		FromUID: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", MessageType: wire.MessageTypeText,
	})
	if outcome.Result != Retry {
		t.Errorf("outcome.Result = %v, want Retry", outcome.Result)
	}
}
