package app

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/pure2p/pure2p/internal/connectivity"
	"github.com/pure2p/pure2p/internal/crypto"
	"github.com/pure2p/pure2p/internal/messaging"
	"github.com/pure2p/pure2p/internal/queue"
	"github.com/pure2p/pure2p/internal/storage"
	"github.com/pure2p/pure2p/internal/transport"
	"github.com/pure2p/pure2p/internal/wire"
	"github.com/pure2p/pure2p/pkg/logging"
)

const legacyStateFileName = "state.json"

// App is the node controller: it owns the store, queue, transport
// server, connectivity probe, and retry worker for one local identity,
// and is the only thing the UI talks to.
type App struct {
	cfg      *Config
	store    *storage.Storage
	queue    *queue.Queue
	client   *transport.Client
	server   *transport.Server
	orch     *messaging.Orchestrator
	identity *storage.Identity
	log      *log.Logger

	internalPort int

	// bgMu guards the fields the connectivity goroutine populates once
	// the probe completes, since Close may run concurrently with it.
	bgMu        sync.Mutex
	retryWorker *queue.RetryWorker
	pcpMgr      *connectivity.PortMappingManager
	natpmpMgr   *connectivity.PortMappingManager
	upnpMgr     *connectivity.UpnpMappingManager

	connMu   sync.RWMutex
	lastConn *connectivity.ConnectivityResult
}

// Open runs the full startup sequence: migrate any legacy state,
// open the store, load or generate the identity, select a port,
// start the transport server, and spawn the connectivity probe in the
// background. It returns once the node is reachable on its local port;
// the connectivity ladder and retry worker continue to run afterward.
func Open(ctx context.Context, cfg *Config) (*App, error) {
	logger := logging.New(&logging.Config{Level: cfg.LogLevel}).Logger.With("component", "app")

	store, err := storage.New(&storage.Config{DataDir: cfg.DataDir})
	if err != nil {
		return nil, err
	}

	legacyPath := filepath.Join(expandPath(cfg.DataDir), legacyStateFileName)
	if err := store.MigrateLegacyFile(legacyPath); err != nil {
		store.Close()
		return nil, err
	}

	identity, err := loadOrGenerateIdentity(store)
	if err != nil {
		store.Close()
		return nil, err
	}

	settings, err := store.LoadSettings()
	if err != nil {
		store.Close()
		return nil, err
	}

	internalPort, err := resolveInternalPort(cfg, identity)
	if err != nil {
		store.Close()
		return nil, err
	}

	q := queue.New(store)
	q.SetBackoffParams(int64(settings.BaseRetryDelayMs), settings.MaxRetries)
	client := transport.NewClient()
	orch := messaging.New(store, q, client, identity, func() int64 { return time.Now().UnixMilli() })

	a := &App{
		cfg: cfg, store: store, queue: q, client: client,
		orch: orch, identity: identity, log: logger, internalPort: internalPort,
	}

	server := transport.NewServer(transport.Handlers{
		Output:  a.handleOutput,
		Ping:    a.handlePing,
		Message: a.handleMessage,
	}, logger)
	if err := server.Start(":" + strconv.Itoa(internalPort)); err != nil {
		store.Close()
		return nil, err
	}
	a.server = server

	go a.establishConnectivity(ctx, internalPort, settings)

	return a, nil
}

// handleOutput accepts a legacy /output envelope with no reciprocal
// import behavior, per the open question on /output's retention.
func (a *App) handleOutput(ctx context.Context, env *wire.MessageEnvelope) error {
	return a.orch.HandleIncomingMessage(&wire.MessageRequest{
		FromUID: env.FromUID, MessageType: env.MessageType, Payload: env.Payload,
	})
}

func (a *App) handlePing(ctx context.Context, req *wire.PingRequest) (*wire.PingResponse, error) {
	return a.orch.HandlePing(req)
}

func (a *App) handleMessage(ctx context.Context, req *wire.MessageRequest) error {
	return a.orch.HandleIncomingMessage(req)
}

// establishConnectivity runs the strategy ladder, persists whatever
// endpoint it found, and starts the retry worker once the attempt is
// over. Connectivity failures never abort startup: a fully-failed
// ladder still leaves the node reachable on its LAN address and the
// retry worker still runs.
func (a *App) establishConnectivity(ctx context.Context, internalPort int, settings *storage.Settings) {
	result := connectivity.Establish(ctx, internalPort)
	a.log.Info(result.Summary())

	a.connMu.Lock()
	a.lastConn = result
	a.connMu.Unlock()

	if result.Mapping != nil {
		if err := a.store.UpdateExternalEndpoint(result.Mapping.ExternalIP.String(), result.Mapping.ExternalPort); err != nil {
			a.log.Error("persist external endpoint failed", "err", err)
		}
		a.startMappingManager(internalPort, result)
	}

	worker := queue.NewRetryWorker(queue.RetryWorkerConfig{
		RetryInterval: time.Duration(settings.RetryIntervalMinutes) * time.Minute,
		Dispatch:      a.dispatch,
		Queue:         a.queue,
		Logger:        a.log,
		OnDelivered:   a.handleDelivered,
	})
	worker.Start(ctx)

	a.bgMu.Lock()
	a.retryWorker = worker
	a.bgMu.Unlock()
}

func (a *App) startMappingManager(internalPort int, result *connectivity.ConnectivityResult) {
	switch result.Mapping.Protocol {
	case connectivity.ProtocolPCP, connectivity.ProtocolNATPMP:
		gateway, err := connectivity.DiscoverGateway()
		if err != nil {
			a.log.Error("rediscover gateway for mapping manager failed", "err", err)
			return
		}
		mgr := connectivity.NewPortMappingManager(gateway, internalPort, result.Mapping, a.log)
		a.bgMu.Lock()
		if result.Mapping.Protocol == connectivity.ProtocolPCP {
			a.pcpMgr = mgr
		} else {
			a.natpmpMgr = mgr
		}
		a.bgMu.Unlock()
	case connectivity.ProtocolUPnP:
		mgr := connectivity.NewUpnpMappingManager(internalPort, a.log)
		a.bgMu.Lock()
		a.upnpMgr = mgr
		a.bgMu.Unlock()
	}
}

// dispatch is the queue's Dispatcher: it re-encodes a queue entry as
// the appropriate outbound HTTP call to its target contact.
func (a *App) dispatch(ctx context.Context, e *queue.Entry) (bool, error) {
	contact, err := a.store.GetContact(e.TargetUID)
	if err != nil || contact == nil {
		return false, err
	}

	switch e.MessageType {
	case "ping":
		var req wire.PingRequest
		if err := wire.Unmarshal(wire.CBOR, e.Payload, &req); err != nil {
			return false, err
		}
		outcome, _ := a.client.SendPing(ctx, "http://"+contact.IP, &req)
		return outcome.Result == transport.Delivered, nil
	default:
		outcome := a.client.SendMessage(ctx, "http://"+contact.IP, &wire.MessageRequest{
			FromUID: a.identity.UID, MessageType: e.MessageType, Payload: e.Payload,
		})
		return outcome.Result == transport.Delivered, nil
	}
}

// handleDelivered reconciles chat state after the retry worker removes a
// successfully dispatched entry: has_pending_messages is recomputed from
// whatever the queue still holds for the target, and a delivered ping
// flips the locally-pending chat to Active, completing the reciprocal-
// import handshake from the initiator's side.
func (a *App) handleDelivered(targetUID, messageType string) {
	hasPending, err := a.queue.HasPending(targetUID)
	if err != nil {
		a.log.Error("check pending after delivery failed", "target", targetUID, "err", err)
	} else if err := a.store.SetChatPending(targetUID, hasPending); err != nil {
		a.log.Error("sync chat pending flag failed", "target", targetUID, "err", err)
	}

	if messageType == "ping" {
		if err := a.store.SetChatActive(targetUID, true); err != nil {
			a.log.Error("activate chat after ping delivery failed", "target", targetUID, "err", err)
		}
	}
}

// Close runs the shutdown sequence: stop the retry worker, release any
// port mapping, close the transport server, then the store.
func (a *App) Close() error {
	a.bgMu.Lock()
	worker, pcpMgr, natpmpMgr, upnpMgr := a.retryWorker, a.pcpMgr, a.natpmpMgr, a.upnpMgr
	a.bgMu.Unlock()

	if worker != nil {
		worker.Stop()
	}
	if pcpMgr != nil {
		pcpMgr.Release()
	}
	if natpmpMgr != nil {
		natpmpMgr.Release()
	}
	if upnpMgr != nil {
		upnpMgr.Release()
	}
	if a.server != nil {
		if err := a.server.Stop(); err != nil {
			a.log.Error("transport shutdown error", "err", err)
		}
	}
	return a.store.Close()
}

// resolveInternalPort implements the startup sequence's port-selection
// step: an explicit cfg.Port always wins, otherwise the smart-port-
// persistence rule decides whether to reuse the port from the last
// successful probe or draw a fresh one. A failed cheap IP check is
// treated as "IP unknown", which always draws fresh.
func resolveInternalPort(cfg *Config, identity *storage.Identity) (int, error) {
	if cfg.Port != 0 {
		return cfg.Port, nil
	}
	currentIP, _ := connectivity.DetectCurrentIP()
	return SelectPort(currentIP, identity.ExternalIP, identity.ExternalPort)
}

func loadOrGenerateIdentity(store *storage.Storage) (*storage.Identity, error) {
	id, err := store.LoadIdentity()
	if err != nil {
		return nil, err
	}
	if id != nil {
		return id, nil
	}

	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	uid, err := crypto.UID(kp.SigningPublic)
	if err != nil {
		return nil, err
	}
	id = &storage.Identity{
		UID: uid, SigningPublic: kp.SigningPublic, SigningSecret: kp.SigningSecret,
		ExchangePublic: kp.ExchangePublic[:], ExchangeSecret: kp.ExchangeSecret[:],
	}
	if err := store.SaveIdentity(id); err != nil {
		return nil, err
	}
	return id, nil
}
