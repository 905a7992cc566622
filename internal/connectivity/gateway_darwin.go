//go:build darwin

package connectivity

import (
	"bufio"
	"net"
	"os/exec"
	"strings"

	"github.com/pure2p/pure2p/internal/perror"
)

// discoverGateway shells out to netstat -rn and parses the "default"
// line of the IPv4 routing table for the gateway address.
func discoverGateway() (net.IP, error) {
	out, err := exec.Command("netstat", "-rn", "-f", "inet").Output()
	if err != nil {
		return nil, perror.Wrap(perror.Connectivity, "run netstat -rn", err)
	}

	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		if fields[0] != "default" {
			continue
		}
		ip := net.ParseIP(fields[1])
		if ip == nil {
			continue
		}
		return ip, nil
	}
	return nil, perror.New(perror.Connectivity, "no default route found in netstat output")
}
