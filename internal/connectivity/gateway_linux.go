//go:build linux

package connectivity

import (
	"bufio"
	"encoding/binary"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/pure2p/pure2p/internal/perror"
)

// defaultGatewayPath is where the Linux kernel exposes the routing
// table in text form.
const defaultGatewayPath = "/proc/net/route"

// discoverGateway parses /proc/net/route for the default route
// (Destination = 00000000) and decodes its little-endian hex gateway
// field into an IPv4 address.
func discoverGateway() (net.IP, error) {
	f, err := os.Open(defaultGatewayPath)
	if err != nil {
		return nil, perror.Wrap(perror.Connectivity, "open /proc/net/route", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Scan() // header line

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		if fields[1] != "00000000" {
			continue
		}
		gw, err := parseHexLittleEndianIPv4(fields[2])
		if err != nil {
			continue
		}
		return gw, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, perror.Wrap(perror.Connectivity, "scan /proc/net/route", err)
	}
	return nil, perror.New(perror.Connectivity, "no default route found")
}

func parseHexLittleEndianIPv4(hex string) (net.IP, error) {
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return nil, err
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	return net.IPv4(b[0], b[1], b[2], b[3]), nil
}
