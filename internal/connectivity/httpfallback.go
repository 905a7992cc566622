package connectivity

import (
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pure2p/pure2p/internal/perror"
)

// echoServices is the configured list of public IP echo endpoints tried
// in order. Each must respond with a bare IP literal in its body.
var echoServices = []string{
	"https://api.ipify.org",
	"https://ifconfig.me/ip",
	"https://icanhazip.com",
}

// TryHTTPFallback queries the configured echo services in order until
// one returns a parseable IP literal. No port mapping is created:
// this strategy only confirms an address the host may already be
// reachable at.
func TryHTTPFallback(port int) StrategyAttempt {
	client := &http.Client{Timeout: 5 * time.Second}

	var lastErr error
	for _, svc := range echoServices {
		ip, err := queryEchoService(client, svc)
		if err != nil {
			lastErr = err
			continue
		}
		return StrategyAttempt{
			Protocol: ProtocolDirect,
			Outcome:  Success,
			Mapping: &Mapping{
				ExternalIP:   ip,
				ExternalPort: port,
				Protocol:     ProtocolDirect,
				LifetimeSec:  0,
			},
		}
	}

	return StrategyAttempt{Protocol: ProtocolDirect, Outcome: StrategyFailed,
		Err: perror.Wrap(perror.Connectivity, "http ip discovery: all echo services failed", lastErr)}
}

// DetectCurrentIP is a cheap standalone external-IP check (no port
// mapping) used by the port-selection step before the full strategy
// ladder runs, so select_port can compare against the previously
// recorded external IP.
func DetectCurrentIP() (string, error) {
	attempt := TryHTTPFallback(0)
	if attempt.Outcome != Success {
		return "", attempt.Err
	}
	return attempt.Mapping.ExternalIP.String(), nil
}

func queryEchoService(client *http.Client, url string) (net.IP, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, perror.Wrap(perror.Connectivity, "query echo service", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, perror.New(perror.Connectivity, "echo service returned non-200")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return nil, perror.Wrap(perror.Connectivity, "read echo service body", err)
	}

	ip := net.ParseIP(strings.TrimSpace(string(body)))
	if ip == nil {
		return nil, perror.New(perror.Connectivity, "echo service body is not an ip literal")
	}
	return ip, nil
}
