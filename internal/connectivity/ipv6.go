package connectivity

import (
	"context"
	"net"
	"time"

	"github.com/pure2p/pure2p/internal/perror"
)

// probeIPv6Target is a well-known public IPv6 address used only to make
// the OS pick a global unicast source route; no traffic content matters.
const probeIPv6Target = "[2001:4860:4860::8888]:53"

// ProbeIPv6 opens a UDP "connection" (no packets sent) to a public IPv6
// address and inspects the local address the OS selected. A global
// unicast source address (not link-local fe80::/10, not ULA fc00::/7)
// means this host is directly reachable over IPv6 with no NAT traversal
// needed.
func ProbeIPv6(ctx context.Context, port int) StrategyAttempt {
	d := net.Dialer{Timeout: 3 * time.Second}
	conn, err := d.DialContext(ctx, "udp6", probeIPv6Target)
	if err != nil {
		return StrategyAttempt{Protocol: ProtocolIPv6, Outcome: StrategyFailed,
			Err: perror.Wrap(perror.Connectivity, "ipv6 probe dial", err)}
	}
	defer conn.Close()

	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return StrategyAttempt{Protocol: ProtocolIPv6, Outcome: StrategyFailed,
			Err: perror.New(perror.Connectivity, "ipv6 probe: unexpected local addr type")}
	}

	if !isGlobalUnicastV6(local.IP) {
		return StrategyAttempt{Protocol: ProtocolIPv6, Outcome: StrategyFailed,
			Err: perror.New(perror.Connectivity, "ipv6 probe: no global unicast address")}
	}

	return StrategyAttempt{
		Protocol: ProtocolIPv6,
		Outcome:  Success,
		Mapping: &Mapping{
			ExternalIP:   local.IP,
			ExternalPort: port,
			Protocol:     ProtocolIPv6,
			LifetimeSec:  0,
		},
	}
}

func isGlobalUnicastV6(ip net.IP) bool {
	if ip.To4() != nil {
		return false
	}
	if ip.IsLinkLocalUnicast() {
		return false
	}
	// Unique local addresses, fc00::/7.
	if len(ip) == net.IPv6len && ip[0]&0xfe == 0xfc {
		return false
	}
	return ip.IsGlobalUnicast()
}
