package connectivity

import (
	"context"
	"net"
)

// Establish runs the full strategy ladder for internalPort, stopping at
// the first success: IPv6 probe, gateway discovery (gating PCP and
// NAT-PMP), PCP, NAT-PMP, UPnP IGD, then the HTTP IP lookup fallback.
func Establish(ctx context.Context, internalPort int) *ConnectivityResult {
	result := &ConnectivityResult{}

	ipv6 := ProbeIPv6(ctx, internalPort)
	result.Attempts = append(result.Attempts, ipv6)
	if ipv6.Outcome == Success {
		result.Mapping = ipv6.Mapping
		appendSkipped(result, ProtocolPCP, ProtocolNATPMP, ProtocolUPnP, ProtocolDirect)
		return finish(result)
	}

	gateway, gwErr := discoverGateway()
	if gwErr != nil {
		result.Attempts = append(result.Attempts,
			StrategyAttempt{Protocol: ProtocolPCP, Outcome: NotAttempted, Err: gwErr},
			StrategyAttempt{Protocol: ProtocolNATPMP, Outcome: NotAttempted, Err: gwErr},
		)
	} else {
		pcp := TryPCP(gateway, internalPort)
		result.Attempts = append(result.Attempts, pcp)
		if pcp.Outcome == Success {
			result.Mapping = pcp.Mapping
			appendSkipped(result, ProtocolNATPMP, ProtocolUPnP, ProtocolDirect)
			return finish(result)
		}

		natpmp := TryNATPMP(gateway, internalPort)
		result.Attempts = append(result.Attempts, natpmp)
		if natpmp.Outcome == Success {
			result.Mapping = natpmp.Mapping
			appendSkipped(result, ProtocolUPnP, ProtocolDirect)
			return finish(result)
		}
	}

	upnp := TryUPnP(internalPort)
	result.Attempts = append(result.Attempts, upnp)
	if upnp.Outcome == Success {
		result.Mapping = upnp.Mapping
		appendSkipped(result, ProtocolDirect)
		return finish(result)
	}

	fallback := TryHTTPFallback(internalPort)
	result.Attempts = append(result.Attempts, fallback)
	if fallback.Outcome == Success {
		result.Mapping = fallback.Mapping
	}
	return finish(result)
}

// DiscoverGateway exposes the platform-specific default-gateway lookup
// used by the ladder, for callers (the mapping manager) that need to
// re-resolve the gateway a successful PCP/NAT-PMP mapping was made
// against.
func DiscoverGateway() (net.IP, error) {
	return discoverGateway()
}

func appendSkipped(result *ConnectivityResult, protocols ...Protocol) {
	for _, p := range protocols {
		result.Attempts = append(result.Attempts, StrategyAttempt{Protocol: p, Outcome: NotAttempted})
	}
}

func finish(result *ConnectivityResult) *ConnectivityResult {
	if result.Mapping != nil {
		result.CGNATDetected = isCGNAT(result.Mapping.ExternalIP)
	}
	return result
}
