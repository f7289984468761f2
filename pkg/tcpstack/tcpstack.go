// Package tcpstack is a server-side TCP endpoint on top of the IPv4 layer.
// It accepts inbound connections, delivers in-order data to a registered
// Handler, and retransmits unACKed segments from static buffers. There is no
// connect path, no out-of-order reassembly and no congestion control; the
// peer's retransmissions cover whatever we drop.
package tcpstack

import (
	log "github.com/sirupsen/logrus"

	"staticnet/pkg/ipstack"
)

type TCPStack struct {
	ipv4    *ipstack.IPStack
	handler Handler

	table [TCP_TABLE_WAYS]tableWay
}

// InitTCPStack wires the TCP layer into the IPv4 RX dispatch. The handler
// must be ready before the first frame arrives.
func InitTCPStack(ipv4 *ipstack.IPStack, handler Handler) *TCPStack {
	s := &TCPStack{
		ipv4:    ipv4,
		handler: handler,
	}
	ipv4.RegisterTCPHandler(s.OnRxSegment)

	log.WithFields(log.Fields{
		"ways":  TCP_TABLE_WAYS,
		"lines": TCP_TABLE_LINES,
	}).Info("tcp stack up")

	return s
}

// OnRxSegment handles a TCP segment already accepted by the IPv4 filter.
// pseudoChecksum is the pseudo header partial sum handed down by the IPv4
// layer; the segment checksum is seeded with it.
//
// Dispatch order matters: RST wins over everything, then a bare SYN opens a
// connection, then ACK carries the established-state machinery. A SYN+ACK
// is ignored because we never initiate.
func (s *TCPStack) OnRxSegment(segment []byte, length uint16, src ipstack.Address, pseudoChecksum uint16) {
	if length < HEADER_SIZE || int(length) > len(segment) {
		return
	}

	if ipstack.InternetChecksum(segment[:length], pseudoChecksum) != 0xffff {
		return
	}

	seg := Segment(segment[:length])

	off := seg.DataOffset()
	if off < HEADER_SIZE || off > int(length) {
		return
	}

	flags := seg.Flags()
	switch {
	case flags&TCP_RST != 0:
		s.handleRST(seg, src)

	case flags&TCP_SYN != 0 && flags&TCP_ACK == 0:
		s.handleSYN(seg, src)

	// SYN+ACK: we never initiate, so there is nothing to answer
	case flags&TCP_SYN != 0:

	case flags&TCP_ACK != 0:
		s.handleACK(seg, src)
	}
}
