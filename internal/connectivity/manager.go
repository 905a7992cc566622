package connectivity

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// PortMappingManager owns a successful PCP or NAT-PMP mapping for the
// life of the process: it renews at 80% of the granted lifetime and
// releases (lifetime=0) on shutdown. Grounded on the teacher's
// RetryWorker background-ticker-loop shape, generalized from retry
// scheduling to renewal scheduling.
type PortMappingManager struct {
	gateway      net.IP
	internalPort int
	protocol     Protocol
	log          *log.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPortMappingManager starts owning mapping, which must have come
// from TryPCP or TryNATPMP.
func NewPortMappingManager(gateway net.IP, internalPort int, mapping *Mapping, logger *log.Logger) *PortMappingManager {
	if logger == nil {
		logger = log.Default()
	}
	m := &PortMappingManager{
		gateway:      gateway,
		internalPort: internalPort,
		protocol:     mapping.Protocol,
		log:          logger.With("component", "port-mapping"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.wg.Add(1)
	go m.renewalLoop(ctx, mapping.LifetimeSec)
	return m
}

func (m *PortMappingManager) renewalLoop(ctx context.Context, lifetimeSec int) {
	defer m.wg.Done()

	renewAfter := time.Duration(float64(lifetimeSec)*0.8) * time.Second
	if renewAfter <= 0 {
		return
	}
	ticker := time.NewTicker(renewAfter)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.renew()
		}
	}
}

func (m *PortMappingManager) renew() {
	var attempt StrategyAttempt
	switch m.protocol {
	case ProtocolPCP:
		attempt = TryPCP(m.gateway, m.internalPort)
	case ProtocolNATPMP:
		attempt = TryNATPMP(m.gateway, m.internalPort)
	default:
		return
	}
	if attempt.Outcome != Success {
		m.log.Error("mapping renewal failed, ladder must be re-run", "protocol", m.protocol, "err", attempt.Err)
	}
}

// Release sends a best-effort lifetime=0 request to drop the mapping.
func (m *PortMappingManager) Release() {
	m.cancel()
	m.wg.Wait()

	switch m.protocol {
	case ProtocolNATPMP:
		if err := ReleaseNATPMP(m.gateway, m.internalPort); err != nil {
			m.log.Error("release nat-pmp mapping failed", "err", err)
		}
	case ProtocolPCP:
		if err := ReleasePCP(m.gateway, m.internalPort); err != nil {
			m.log.Error("release pcp mapping failed", "err", err)
		}
	}
}

// UpnpMappingManager owns a UPnP IGD mapping; on drop it best-effort
// issues DeletePortMapping.
type UpnpMappingManager struct {
	internalPort int
	log          *log.Logger
}

// NewUpnpMappingManager wraps a successful UPnP mapping for later release.
func NewUpnpMappingManager(internalPort int, logger *log.Logger) *UpnpMappingManager {
	if logger == nil {
		logger = log.Default()
	}
	return &UpnpMappingManager{internalPort: internalPort, log: logger.With("component", "upnp-mapping")}
}

// Release best-effort deletes the port mapping.
func (m *UpnpMappingManager) Release() {
	if err := ReleaseUPnP(m.internalPort); err != nil {
		m.log.Error("release upnp mapping failed", "err", err)
	}
}
