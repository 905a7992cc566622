package connectivity

import (
	"encoding/binary"
	"net"
	"time"

	"github.com/pure2p/pure2p/internal/perror"
)

// PCP (RFC 6887) has no library anywhere in the example pack or the
// wider Go ecosystem with comparable adoption to the NAT-PMP/UPnP
// clients used elsewhere in this package; it is hand-rolled directly
// against the RFC over a raw UDP socket.

const (
	pcpPort          = 5351
	pcpRequestBytes  = 60
	pcpResponseBytes = 1100
	pcpVersion       = 2
	pcpOpMap         = 1
	pcpResultSuccess = 0
)

// pcpResultError names a PCP result code surfaced by the gateway.
type pcpResultError int

func (e pcpResultError) Error() string {
	return "pcp: gateway returned result code " + itoa(int(e))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// TryPCP sends a MAP request to gateway:5351 requesting a 1-hour
// mapping for internalPort, retrying up to 3 times with doubling
// timeouts on no response.
func TryPCP(gateway net.IP, internalPort int) StrategyAttempt {
	if gateway == nil {
		return StrategyAttempt{Protocol: ProtocolPCP, Outcome: NotAttempted,
			Err: perror.New(perror.Connectivity, "pcp: no gateway discovered")}
	}

	localIP, err := localIPv4For(gateway)
	if err != nil {
		return StrategyAttempt{Protocol: ProtocolPCP, Outcome: StrategyFailed, Err: err}
	}

	req := buildPCPMapRequest(localIP, internalPort, 3600)

	conn, err := net.Dial("udp4", net.JoinHostPort(gateway.String(), itoa(pcpPort)))
	if err != nil {
		return StrategyAttempt{Protocol: ProtocolPCP, Outcome: StrategyFailed,
			Err: perror.Wrap(perror.Connectivity, "pcp: dial gateway", err)}
	}
	defer conn.Close()

	timeout := 250 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if _, err := conn.Write(req); err != nil {
			lastErr = perror.Wrap(perror.Connectivity, "pcp: send request", err)
			timeout *= 2
			continue
		}
		conn.SetReadDeadline(time.Now().Add(timeout))

		buf := make([]byte, pcpResponseBytes)
		n, err := conn.Read(buf)
		if err != nil {
			lastErr = perror.Wrap(perror.Connectivity, "pcp: read response timeout", err)
			timeout *= 2
			continue
		}

		mapping, err := parsePCPMapResponse(buf[:n], internalPort)
		if err != nil {
			return StrategyAttempt{Protocol: ProtocolPCP, Outcome: StrategyFailed, Err: err}
		}
		return StrategyAttempt{Protocol: ProtocolPCP, Outcome: Success, Mapping: mapping}
	}

	return StrategyAttempt{Protocol: ProtocolPCP, Outcome: StrategyFailed, Err: lastErr}
}

// ReleasePCP sends the same MAP request with lifetime=0, the protocol's
// convention for releasing a mapping early instead of waiting for it to
// expire.
func ReleasePCP(gateway net.IP, internalPort int) error {
	localIP, err := localIPv4For(gateway)
	if err != nil {
		return err
	}

	req := buildPCPMapRequest(localIP, internalPort, 0)

	conn, err := net.Dial("udp4", net.JoinHostPort(gateway.String(), itoa(pcpPort)))
	if err != nil {
		return perror.Wrap(perror.Connectivity, "pcp: dial gateway for release", err)
	}
	defer conn.Close()

	if _, err := conn.Write(req); err != nil {
		return perror.Wrap(perror.Connectivity, "pcp: send release request", err)
	}

	conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond))
	buf := make([]byte, pcpResponseBytes)
	if _, err := conn.Read(buf); err != nil {
		return perror.Wrap(perror.Connectivity, "pcp: read release response", err)
	}
	return nil
}

func buildPCPMapRequest(localIP net.IP, internalPort, lifetimeSec int) []byte {
	req := make([]byte, pcpRequestBytes)
	req[0] = pcpVersion
	req[1] = pcpOpMap
	binary.BigEndian.PutUint32(req[4:8], uint32(lifetimeSec))
	copy(req[8:24], localIP.To16())

	// MAP opcode-specific data starts at byte 24: 96-bit mapping nonce
	// (left zero; single-mapping clients need not randomize it),
	// protocol, internal port, suggested external port, suggested
	// external IP.
	req[24+12] = 6 // TCP; the transport server only ever listens on TCP
	binary.BigEndian.PutUint16(req[24+14:24+16], uint16(internalPort))
	return req
}

func parsePCPMapResponse(resp []byte, internalPort int) (*Mapping, error) {
	if len(resp) < 24+36 {
		return nil, perror.New(perror.Connectivity, "pcp: truncated response")
	}
	if resp[1]&0x7f != pcpOpMap {
		return nil, perror.New(perror.Connectivity, "pcp: unexpected opcode in response")
	}

	resultCode := int(resp[3])
	if resultCode != pcpResultSuccess {
		return nil, perror.Wrap(perror.Connectivity, "pcp: gateway rejected mapping", pcpResultError(resultCode))
	}

	lifetime := binary.BigEndian.Uint32(resp[4:8])
	body := resp[24:]
	externalPort := binary.BigEndian.Uint16(body[16:18])
	externalIP := net.IP(body[20:36])

	return &Mapping{
		ExternalIP:   externalIP,
		ExternalPort: int(externalPort),
		Protocol:     ProtocolPCP,
		LifetimeSec:  int(lifetime),
	}, nil
}

// localIPv4For returns the local IPv4 address the OS would use to
// reach gateway, by opening (but not writing to) a UDP socket.
func localIPv4For(gateway net.IP) (net.IP, error) {
	conn, err := net.Dial("udp4", net.JoinHostPort(gateway.String(), "80"))
	if err != nil {
		return nil, perror.Wrap(perror.Connectivity, "determine local address", err)
	}
	defer conn.Close()

	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return nil, perror.New(perror.Connectivity, "unexpected local addr type")
	}
	return local.IP, nil
}
