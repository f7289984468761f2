package ipstack

import (
	log "github.com/sirupsen/logrus"

	"staticnet/pkg/ethernet"
)

// ARPCache is the one thing we need from the ARP layer: resolve an IPv4
// address to a MAC, or report that we don't have it yet
type ARPCache interface {
	Lookup(ip Address) (ethernet.MACAddr, bool)
}

// ICMPHandlerFunc gets the ICMP message region of an accepted packet
type ICMPHandlerFunc func(payload []byte, length uint16, src Address)

// TCPHandlerFunc gets the TCP segment region of an accepted packet, plus the
// pseudo header partial sum to seed the segment checksum with
type TCPHandlerFunc func(segment []byte, length uint16, src Address, pseudoChecksum uint16)

// IPStack is the IPv4 layer: RX filtering and dispatch, and the ARP
// resolved TX path. Strictly single threaded; everything runs on whatever
// goroutine the driver delivers frames on.
type IPStack struct {
	eth    ethernet.Driver
	config *Config
	arp    ARPCache

	icmpHandler ICMPHandlerFunc
	tcpHandler  TCPHandlerFunc
}

func InitIPStack(eth ethernet.Driver, config *Config, arp ARPCache) *IPStack {
	log.WithFields(log.Fields{
		"address":   config.Address,
		"broadcast": config.Broadcast,
		"gateway":   config.Gateway,
	}).Info("ipv4 stack up")

	return &IPStack{
		eth:    eth,
		config: config,
		arp:    arp,
	}
}

func (s *IPStack) Config() *Config {
	return s.config
}

func (s *IPStack) RegisterICMPHandler(h ICMPHandlerFunc) {
	s.icmpHandler = h
}

func (s *IPStack) RegisterTCPHandler(h TCPHandlerFunc) {
	s.tcpHandler = h
}

func (s *IPStack) IsTxBufferAvailable() bool {
	return s.eth.IsTxBufferAvailable()
}

// OnRxPacket validates an inbound ethernet payload claimed to be IPv4 and
// dispatches it by protocol. Anything malformed, fragmented, or not
// addressed to us is dropped without diagnostics; this is the hot path.
//
// payload is always a full MTU-sized buffer regardless of payloadLen, so
// checksumming up to a corrupt declared header length stays in bounds.
func (s *IPStack) OnRxPacket(payload []byte, payloadLen int) {
	if payloadLen < HEADER_SIZE || len(payload) < HEADER_SIZE {
		return
	}

	p := OverlayPacket(payload)

	// Checksum first, over the declared header length, while everything is
	// still in network byte order. A valid header sums to 0xffff with the
	// checksum field included.
	hdrLen := p.HeaderLength()
	if hdrLen < HEADER_SIZE || hdrLen > len(payload) {
		return
	}
	if InternetChecksum(payload[:hdrLen], 0) != 0xffff {
		return
	}

	// Well formed IPv4, no options
	if p.VersionIHL() != 0x45 {
		return
	}

	// ignore DSCP / ECN

	// Length must cover the header and fit in what actually arrived
	total := p.TotalLength()
	if total < HEADER_SIZE || int(total) > payloadLen {
		return
	}

	// ignore fragment ID

	// No evil bit, no fragments. DF is fine.
	if p.FlagsFragOff()&^uint16(FLAG_DF) != 0 {
		return
	}

	// ignore TTL

	addrType := s.config.GetAddressType(p.DestAddr())
	if addrType == ADDR_UNICAST_OTHER {
		return
	}

	plen := p.PayloadLength()
	switch p.Protocol() {

	// Pings to unicast or broadcast only, multicast ICMP makes no sense here
	case ICMP_PROTOCOL:
		if s.icmpHandler != nil && (addrType == ADDR_UNICAST_US || addrType == ADDR_BROADCAST) {
			s.icmpHandler(p.Payload(), plen, p.SourceAddr())
		}

	// TCP is connection oriented, only our unicast address counts
	case TCP_PROTOCOL:
		if s.tcpHandler != nil && addrType == ADDR_UNICAST_US {
			prelude := PseudoHeaderChecksum(p.SourceAddr(), p.DestAddr(), TCP_PROTOCOL, plen)
			s.tcpHandler(p.Payload(), plen, p.SourceAddr(), prelude)
		}

	// TODO: handle UDP traffic
	case UDP_PROTOCOL:

	default:
	}
}

// GetTxPacket allocates an outbound packet headed for dest and prefills the
// header. Returns false when there's no route (ARP miss) or no frame to be
// had; callers retry later or give up.
func (s *IPStack) GetTxPacket(dest Address, proto Protocol) (Packet, bool) {
	var destMAC ethernet.MACAddr

	switch s.config.GetAddressType(dest) {

	// TODO: well known MACs for some multicast groups; broadcast MAC for now
	case ADDR_MULTICAST, ADDR_BROADCAST:
		destMAC = ethernet.BroadcastMAC

	case ADDR_UNICAST_OTHER:
		mac, ok := s.arp.Lookup(dest)
		if !ok {
			// TODO: kick off an ARP query here so the retry can succeed
			return Packet{}, false
		}
		destMAC = mac

	// sending to ourselves is never valid
	default:
		return Packet{}, false
	}

	frame := s.eth.GetTxFrame(ethernet.ETHERTYPE_IPV4, destMAC)
	if frame == nil {
		return Packet{}, false
	}

	p := Packet{frame: frame, b: frame.Payload()}
	p.SetVersionIHL(0x45)
	p.SetDSCP(0)
	p.SetFragmentID(0)
	p.SetFlagsFragOff(FLAG_DF)
	p.SetTTL(255)
	p.SetProtocol(proto)
	p.SetSourceAddr(s.config.Address)
	p.SetDestAddr(dest)
	p.SetHeaderChecksum(0)
	return p, true
}

// SendTxPacket finalizes length and checksum and hands the frame to the
// driver. The packet must have come from GetTxPacket.
func (s *IPStack) SendTxPacket(p Packet, upperLayerLength int) error {
	total := uint16(HEADER_SIZE + upperLayerLength)
	p.SetTotalLength(total)
	p.frame.SetPayloadLength(total)

	p.SetHeaderChecksum(0)
	p.SetHeaderChecksum(^InternetChecksum(p.Header(), 0))

	return s.eth.SendTxFrame(p.frame)
}

// CancelTxPacket returns an allocated-but-unsent packet to the driver
func (s *IPStack) CancelTxPacket(p Packet) {
	s.eth.CancelTxFrame(p.frame)
}
