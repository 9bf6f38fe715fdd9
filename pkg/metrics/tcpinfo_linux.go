//go:build linux

package metrics

import "golang.org/x/sys/unix"

func readTCPInfo(fd int) (tcpStats, error) {
	info, err := unix.GetsockoptTCPInfo(fd, unix.IPPROTO_TCP, unix.TCP_INFO)
	if err != nil {
		return tcpStats{}, err
	}
	return tcpStats{
		rtt:         info.Rtt,
		retransmits: uint32(info.Retransmits),
		sndCwnd:     info.Snd_cwnd,
	}, nil
}
