//go:build !linux

package metrics

import "errors"

var errTCPInfoUnsupported = errors.New("metrics: TCP_INFO not supported on this platform")

func readTCPInfo(fd int) (tcpStats, error) {
	return tcpStats{}, errTCPInfoUnsupported
}
