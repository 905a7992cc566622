//go:build windows

package connectivity

import (
	"bufio"
	"net"
	"os/exec"
	"strings"

	"github.com/pure2p/pure2p/internal/perror"
)

// discoverGateway shells out to route print and parses the IPv4
// network destination 0.0.0.0 row for its gateway column.
func discoverGateway() (net.IP, error) {
	out, err := exec.Command("route", "print", "-4").Output()
	if err != nil {
		return nil, perror.Wrap(perror.Connectivity, "run route print", err)
	}

	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		if fields[0] != "0.0.0.0" || fields[1] != "0.0.0.0" {
			continue
		}
		ip := net.ParseIP(fields[2])
		if ip == nil {
			continue
		}
		return ip, nil
	}
	return nil, perror.New(perror.Connectivity, "no default route found in route print output")
}
