// Package transport implements the node's HTTP/1.1 wire surface: the
// three-endpoint server peers send envelopes, pings, and messages to,
// and the client used to reach other peers.
package transport

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/pure2p/pure2p/internal/wire"
)

// maxBodyBytes bounds request bodies the server will read.
const maxBodyBytes = 1 << 20 // 1 MiB

// OutputHandler processes a legacy /output MessageEnvelope. It returns
// an error only for malformed input; delivery semantics are the
// caller's concern.
type OutputHandler func(ctx context.Context, env *wire.MessageEnvelope) error

// PingHandler processes a /ping PingRequest and returns the response to
// send back, running the reciprocal-import handshake.
type PingHandler func(ctx context.Context, req *wire.PingRequest) (*wire.PingResponse, error)

// MessageHandler processes a /message MessageRequest.
type MessageHandler func(ctx context.Context, req *wire.MessageRequest) error

// Server is the three-endpoint HTTP surface described by the peer
// protocol. It binds the same port advertised in share-contact tokens.
type Server struct {
	server   *http.Server
	listener net.Listener
	log      *log.Logger

	onOutput  OutputHandler
	onPing    PingHandler
	onMessage MessageHandler
}

// Handlers bundles the three endpoint callbacks wired in by the
// messaging orchestrator.
type Handlers struct {
	Output  OutputHandler
	Ping    PingHandler
	Message MessageHandler
}

// NewServer constructs a Server with its handlers. Call Start to bind
// and begin serving.
func NewServer(h Handlers, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		log:       logger.With("component", "transport"),
		onOutput:  h.Output,
		onPing:    h.Ping,
		onMessage: h.Message,
	}
}

// Start binds addr (host:port) and begins serving in the background.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/output", s.handleOutput)
	mux.HandleFunc("/ping", s.handlePing)
	mux.HandleFunc("/message", s.handleMessage)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("server error", "err", err)
		}
	}()

	s.log.Info("transport server started", "addr", addr)
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var env wire.MessageEnvelope
	if !decodeBody(w, r, &env) {
		return
	}
	if err := env.Validate(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if s.onOutput != nil {
		if err := s.onOutput(r.Context(), &env); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req wire.PingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if s.onPing == nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	resp, err := s.onPing(r.Context(), &req)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	encodeBody(w, r, resp)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req wire.MessageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if s.onMessage != nil {
		if err := s.onMessage(r.Context(), &req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil || len(body) > maxBodyBytes {
		w.WriteHeader(http.StatusBadRequest)
		return false
	}

	enc := wire.EncodingFromContentType(r.Header.Get("Content-Type"))
	if err := wire.Unmarshal(enc, body, v); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return false
	}
	return true
}

func encodeBody(w http.ResponseWriter, r *http.Request, v interface{}) {
	enc := wire.EncodingFromContentType(r.Header.Get("Content-Type"))
	body, err := wire.Marshal(enc, v)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", wire.ContentType(enc))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
