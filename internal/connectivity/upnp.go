package connectivity

import (
	"net"
	"net/url"
	"time"

	"github.com/huin/goupnp/dcps/internetgateway2"
	"github.com/koron/go-ssdp"

	"github.com/pure2p/pure2p/internal/perror"
)

const igdSearchTarget = "urn:schemas-upnp-org:device:InternetGatewayDevice:1"

// upnpResult is the outcome of the blocking SSDP+SOAP exchange; it is
// produced on a worker goroutine and sent back over a channel so the
// caller's cooperative scheduler is never blocked on synchronous I/O.
type upnpResult struct {
	mapping *Mapping
	err     error
}

// TryUPnP runs SSDP discovery for an Internet Gateway Device, then
// issues a SOAP AddPortMapping against its control URL. The blocking
// discovery and SOAP calls run on a background goroutine; this
// function blocks only on the channel, bounded by an overall timeout.
func TryUPnP(internalPort int) StrategyAttempt {
	resultCh := make(chan upnpResult, 1)

	go func() {
		resultCh <- discoverAndMapUPnP(internalPort)
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return StrategyAttempt{Protocol: ProtocolUPnP, Outcome: StrategyFailed, Err: res.err}
		}
		return StrategyAttempt{Protocol: ProtocolUPnP, Outcome: Success, Mapping: res.mapping}
	case <-time.After(10 * time.Second):
		return StrategyAttempt{Protocol: ProtocolUPnP, Outcome: StrategyFailed,
			Err: perror.New(perror.Connectivity, "upnp: discovery and mapping timed out")}
	}
}

func discoverAndMapUPnP(internalPort int) upnpResult {
	services, err := ssdp.Search(igdSearchTarget, 3, "")
	if err != nil || len(services) == 0 {
		return upnpResult{err: perror.Wrap(perror.Connectivity, "upnp: ssdp discovery failed", err)}
	}

	clients, err := internetgateway2.NewWANIPConnection1ClientsByURL(parseServiceURL(services[0].Location))
	if err != nil || len(clients) == 0 {
		return upnpResult{err: perror.Wrap(perror.Connectivity, "upnp: connect to igd control url", err)}
	}
	client := clients[0]

	externalIPStr, err := client.GetExternalIPAddress()
	if err != nil {
		return upnpResult{err: perror.Wrap(perror.Connectivity, "upnp: get external ip", err)}
	}

	const leaseDuration = 3600
	err = client.AddPortMapping("", uint16(internalPort), "UDP", uint16(internalPort), localInterfaceIP(),
		true, "pure2p", leaseDuration)
	if err != nil {
		return upnpResult{err: perror.Wrap(perror.Connectivity, "upnp: add port mapping", err)}
	}

	return upnpResult{mapping: &Mapping{
		ExternalIP:   net.ParseIP(externalIPStr),
		ExternalPort: internalPort,
		Protocol:     ProtocolUPnP,
		LifetimeSec:  leaseDuration,
	}}
}

// ReleaseUPnP best-effort deletes a previously created mapping.
func ReleaseUPnP(internalPort int) error {
	services, err := ssdp.Search(igdSearchTarget, 3, "")
	if err != nil || len(services) == 0 {
		return perror.Wrap(perror.Connectivity, "upnp: ssdp discovery failed for release", err)
	}
	clients, err := internetgateway2.NewWANIPConnection1ClientsByURL(parseServiceURL(services[0].Location))
	if err != nil || len(clients) == 0 {
		return perror.Wrap(perror.Connectivity, "upnp: connect to igd control url for release", err)
	}
	if err := clients[0].DeletePortMapping("", uint16(internalPort), "UDP"); err != nil {
		return perror.Wrap(perror.Connectivity, "upnp: delete port mapping", err)
	}
	return nil
}

func parseServiceURL(location string) *url.URL {
	u, err := url.Parse(location)
	if err != nil {
		return &url.URL{}
	}
	return u
}

func localInterfaceIP() string {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return ""
}
