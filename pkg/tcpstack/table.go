package tcpstack

import (
	"math/bits"

	"staticnet/pkg/ipstack"
)

type tableWay struct {
	lines [TCP_TABLE_LINES]TableEntry
}

// hashTuple maps a connection 4-tuple to a table line. The remote port is
// rotated before mixing so that a client that swaps source and dest ports
// across connections doesn't pile onto one line.
func hashTuple(remote ipstack.Address, localPort, remotePort uint16) int {
	h := uint16(remote[0])<<8 | uint16(remote[1])
	h ^= uint16(remote[2])<<8 | uint16(remote[3])
	h ^= localPort
	h ^= bits.RotateLeft16(remotePort, 7)
	return int(h % TCP_TABLE_LINES)
}

// getSocketState finds the live entry for a 4-tuple, or nil. At most one
// valid entry exists per tuple; handleSYN reuses before allocating.
func (s *TCPStack) getSocketState(remote ipstack.Address, localPort, remotePort uint16) *TableEntry {
	line := hashTuple(remote, localPort, remotePort)
	for w := range s.table {
		e := &s.table[w].lines[line]
		if e.Valid && e.RemoteIP == remote && e.LocalPort == localPort && e.RemotePort == remotePort {
			return e
		}
	}
	return nil
}

// allocateSocket claims a free entry on the tuple's line. Returns nil with
// the line full; there is no eviction, the peer gets a RST instead.
func (s *TCPStack) allocateSocket(remote ipstack.Address, localPort, remotePort uint16) *TableEntry {
	line := hashTuple(remote, localPort, remotePort)
	for w := range s.table {
		e := &s.table[w].lines[line]
		if !e.Valid {
			return e
		}
	}
	return nil
}
