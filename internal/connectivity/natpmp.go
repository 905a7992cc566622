package connectivity

import (
	"net"

	gonatpmp "github.com/jackpal/go-nat-pmp"

	"github.com/pure2p/pure2p/internal/perror"
)

// TryNATPMP (RFC 6886) runs the two-step protocol against gateway: an
// external-address request, then a map request for internalPort. The
// external IP is taken from the first step, not the map response, per
// the protocol's own recommendation.
func TryNATPMP(gateway net.IP, internalPort int) StrategyAttempt {
	if gateway == nil {
		return StrategyAttempt{Protocol: ProtocolNATPMP, Outcome: NotAttempted,
			Err: perror.New(perror.Connectivity, "nat-pmp: no gateway discovered")}
	}

	client := gonatpmp.NewClient(gateway)

	extResp, err := client.GetExternalAddress()
	if err != nil {
		return StrategyAttempt{Protocol: ProtocolNATPMP, Outcome: StrategyFailed,
			Err: perror.Wrap(perror.Connectivity, "nat-pmp: get external address", err)}
	}
	externalIP := net.IPv4(extResp.ExternalIPAddress[0], extResp.ExternalIPAddress[1],
		extResp.ExternalIPAddress[2], extResp.ExternalIPAddress[3])

	mapResp, err := client.AddPortMapping("tcp", internalPort, internalPort, 3600)
	if err != nil {
		return StrategyAttempt{Protocol: ProtocolNATPMP, Outcome: StrategyFailed,
			Err: perror.Wrap(perror.Connectivity, "nat-pmp: add port mapping", err)}
	}

	return StrategyAttempt{
		Protocol: ProtocolNATPMP,
		Outcome:  Success,
		Mapping: &Mapping{
			ExternalIP:   externalIP,
			ExternalPort: int(mapResp.MappedExternalPort),
			Protocol:     ProtocolNATPMP,
			LifetimeSec:  int(mapResp.PortMappingLifetimeInSeconds),
		},
	}
}

// ReleaseNATPMP sends a lifetime=0 map request, the protocol's
// best-effort release convention.
func ReleaseNATPMP(gateway net.IP, internalPort int) error {
	client := gonatpmp.NewClient(gateway)
	_, err := client.AddPortMapping("tcp", internalPort, internalPort, 0)
	if err != nil {
		return perror.Wrap(perror.Connectivity, "nat-pmp: release mapping", err)
	}
	return nil
}
