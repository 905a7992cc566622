// Package connectivity implements the strategy ladder a node runs at
// startup to determine what address:port a remote peer can use to reach
// it: an IPv6 probe, gateway discovery, PCP, NAT-PMP, UPnP IGD, and a
// public-IP-lookup fallback, plus the lifecycle management (renewal,
// teardown) of whatever port mapping results.
package connectivity

import (
	"fmt"
	"net"
)

// Protocol names the strategy that produced a successful result.
type Protocol string

const (
	ProtocolIPv6   Protocol = "IPv6"
	ProtocolPCP    Protocol = "PCP"
	ProtocolNATPMP Protocol = "NAT-PMP"
	ProtocolUPnP   Protocol = "UPnP"
	ProtocolDirect Protocol = "Direct"
)

// StrategyOutcome is the per-strategy attempt status.
type StrategyOutcome int

const (
	NotAttempted StrategyOutcome = iota
	Success
	StrategyFailed
)

// Mapping is a successful result: the external endpoint a peer can be
// reached at, the strategy that produced it, and (if a port mapping was
// created) the granted lifetime for renewal scheduling.
type Mapping struct {
	ExternalIP   net.IP
	ExternalPort int
	Protocol     Protocol
	LifetimeSec  int
}

// StrategyAttempt records one ladder rung's outcome, whether it
// succeeded, failed with an error, or was never reached because an
// earlier rung already succeeded.
type StrategyAttempt struct {
	Protocol Protocol
	Outcome  StrategyOutcome
	Mapping  *Mapping
	Err      error
}

// ConnectivityResult is the ladder's full report: one attempt per
// strategy (in ladder order), the winning mapping if any, and whether
// the detected external IP falls in CGNAT space.
type ConnectivityResult struct {
	Attempts      []StrategyAttempt
	Mapping       *Mapping
	CGNATDetected bool
}

// Summary produces a one-line human-readable status string.
func (r *ConnectivityResult) Summary() string {
	if r.Mapping == nil {
		return "connectivity: no strategy succeeded"
	}
	s := fmt.Sprintf("connectivity: %s via %s:%d", r.Mapping.Protocol, r.Mapping.ExternalIP, r.Mapping.ExternalPort)
	if r.CGNATDetected {
		s += " (behind CGNAT, direct P2P unlikely)"
	}
	return s
}

// cgnatBlock is 100.64.0.0/10, RFC 6598 shared address space.
var cgnatBlock = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// isCGNAT reports whether ip falls within the carrier-grade NAT shared
// address block.
func isCGNAT(ip net.IP) bool {
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	return cgnatBlock.Contains(v4)
}
