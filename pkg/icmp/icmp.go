// Package icmp answers pings. That's it for now; everything else ICMPv4
// defines is dropped on the floor.
package icmp

import (
	"encoding/binary"

	log "github.com/sirupsen/logrus"

	"staticnet/pkg/ipstack"
)

const (
	HEADER_SIZE = 4

	TYPE_ECHO_REPLY   = 0
	TYPE_ECHO_REQUEST = 8
)

type Protocol struct {
	ipv4 *ipstack.IPStack
}

func InitProtocol(ipv4 *ipstack.IPStack) *Protocol {
	p := &Protocol{ipv4: ipv4}
	ipv4.RegisterICMPHandler(p.OnRxPacket)
	return p
}

// OnRxPacket handles an ICMP message already accepted by the IPv4 filter.
// Echo requests get a reply with identifier, sequence and payload copied
// through verbatim.
func (p *Protocol) OnRxPacket(payload []byte, length uint16, src ipstack.Address) {
	if length < HEADER_SIZE || int(length) > len(payload) {
		return
	}

	msg := payload[:length]

	// Verify the message checksum before acting on anything in it
	if ipstack.InternetChecksum(msg, 0) != 0xffff {
		return
	}

	if msg[0] != TYPE_ECHO_REQUEST || msg[1] != 0 {
		return
	}

	reply, ok := p.ipv4.GetTxPacket(src, ipstack.ICMP_PROTOCOL)
	if !ok {
		// no route back or no TX buffer; the peer will just ping again
		return
	}

	out := reply.Payload()
	n := copy(out, msg)
	out[0] = TYPE_ECHO_REPLY
	binary.BigEndian.PutUint16(out[2:4], 0)
	binary.BigEndian.PutUint16(out[2:4], ^ipstack.InternetChecksum(out[:n], 0))

	if err := p.ipv4.SendTxPacket(reply, n); err != nil {
		log.WithError(err).Debug("echo reply send failed")
	}
}
