package arp

import (
	"encoding/binary"

	log "github.com/sirupsen/logrus"

	"staticnet/pkg/ethernet"
	"staticnet/pkg/ipstack"
)

const (
	PACKET_SIZE = 28

	HTYPE_ETHERNET = 1
	PTYPE_IPV4     = 0x0800

	OPER_REQUEST = 1
	OPER_REPLY   = 2
)

// Protocol answers ARP requests for our address and learns neighbor
// mappings into the cache
type Protocol struct {
	eth   ethernet.Driver
	mac   ethernet.MACAddr
	ip    ipstack.Address
	cache *Cache
}

func InitProtocol(eth ethernet.Driver, mac ethernet.MACAddr, ip ipstack.Address, cache *Cache) *Protocol {
	return &Protocol{
		eth:   eth,
		mac:   mac,
		ip:    ip,
		cache: cache,
	}
}

// OnRxFrame handles an inbound ARP frame. Mappings are learned only from
// traffic aimed at us; replying is limited to requests for our address.
func (p *Protocol) OnRxFrame(payload []byte, payloadLen int) {
	if payloadLen < PACKET_SIZE {
		return
	}

	if binary.BigEndian.Uint16(payload[0:2]) != HTYPE_ETHERNET ||
		binary.BigEndian.Uint16(payload[2:4]) != PTYPE_IPV4 ||
		payload[4] != 6 || payload[5] != 4 {
		return
	}

	var senderMAC ethernet.MACAddr
	copy(senderMAC[:], payload[8:14])
	var senderIP, targetIP ipstack.Address
	copy(senderIP[:], payload[14:18])
	copy(targetIP[:], payload[24:28])

	if targetIP != p.ip {
		return
	}

	p.cache.Insert(senderIP, senderMAC)

	oper := binary.BigEndian.Uint16(payload[6:8])
	if oper != OPER_REQUEST {
		return
	}

	p.sendReply(senderMAC, senderIP)
}

func (p *Protocol) sendReply(dstMAC ethernet.MACAddr, dstIP ipstack.Address) {
	frame := p.eth.GetTxFrame(ethernet.ETHERTYPE_ARP, dstMAC)
	if frame == nil {
		// the peer will re-ask
		return
	}

	out := frame.Payload()
	binary.BigEndian.PutUint16(out[0:2], HTYPE_ETHERNET)
	binary.BigEndian.PutUint16(out[2:4], PTYPE_IPV4)
	out[4] = 6
	out[5] = 4
	binary.BigEndian.PutUint16(out[6:8], OPER_REPLY)
	copy(out[8:14], p.mac[:])
	copy(out[14:18], p.ip[:])
	copy(out[18:24], dstMAC[:])
	copy(out[24:28], dstIP[:])

	frame.SetPayloadLength(PACKET_SIZE)
	if err := p.eth.SendTxFrame(frame); err != nil {
		log.WithError(err).Debug("arp reply send failed")
	}
}
