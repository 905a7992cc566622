package app

import (
	"crypto/rand"
	"math/big"
)

const (
	ephemeralPortMin = 49152
	ephemeralPortMax = 65535
)

// SelectPort is the smart-port-persistence rule: if the currently
// detected (or last-known) external IP matches the one already stored
// (comparing IP only, ignoring port), the previously bound port is
// reused so existing shared contact tokens stay valid. Otherwise a
// fresh random port is drawn, since a changed network likely means the
// old port mapping no longer applies.
func SelectPort(currentIP, savedIP string, savedPort int) (int, error) {
	if savedIP != "" && currentIP == savedIP && savedPort != 0 {
		return savedPort, nil
	}
	return randomEphemeralPort()
}

func randomEphemeralPort() (int, error) {
	span := big.NewInt(int64(ephemeralPortMax - ephemeralPortMin + 1))
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return 0, err
	}
	return ephemeralPortMin + int(n.Int64()), nil
}
