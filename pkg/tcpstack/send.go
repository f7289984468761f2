package tcpstack

import (
	log "github.com/sirupsen/logrus"

	"staticnet/pkg/ipstack"
)

// TxSegment is an outbound segment under construction. It wraps the IPv4
// packet it will ride in; the TCP header starts at the packet payload.
type TxSegment struct {
	packet ipstack.Packet
}

func (t *TxSegment) segment() Segment {
	return Segment(t.packet.Payload())
}

// Payload returns the data region the caller may fill, bounded by the MTU
func (t *TxSegment) Payload() []byte {
	return t.packet.Payload()[HEADER_SIZE : HEADER_SIZE+TCP_IPV4_PAYLOAD_MTU]
}

// GetTxSegment allocates an outbound segment on e's connection with the
// header prefilled: current sequence state, ACK flag, our window. Returns
// false when the IPv4 layer has no route or no frame.
func (s *TCPStack) GetTxSegment(e *TableEntry) (TxSegment, bool) {
	p, ok := s.ipv4.GetTxPacket(e.RemoteIP, ipstack.TCP_PROTOCOL)
	if !ok {
		return TxSegment{}, false
	}

	t := TxSegment{packet: p}
	seg := t.segment()
	seg.SetSourcePort(e.LocalPort)
	seg.SetDestPort(e.RemotePort)
	seg.SetSeq(e.LocalSeq)
	seg.SetAck(e.RemoteSeq)
	seg.SetDataOffset(HEADER_SIZE / 4)
	seg.SetFlags(TCP_ACK)
	seg.SetWindow(TCP_WINDOW)
	seg.SetChecksum(0)
	seg.SetUrgentPointer(0)
	return t, true
}

// SendTxSegment finalizes and transmits a data segment of payloadLen bytes,
// recording a copy for retransmission. Returns false, with nothing sent and
// no state changed, when every retransmit slot is still occupied; the caller
// backs off and retries after ACKs drain the ring.
func (s *TCPStack) SendTxSegment(e *TableEntry, t TxSegment, payloadLen int) bool {
	slot := e.freeUnackedSlot()
	if slot == nil {
		s.ipv4.CancelTxPacket(t.packet)
		return false
	}

	seg := t.segment()
	seg.SetFlags(TCP_ACK | TCP_PSH)

	// re-read sequence state: callbacks may have advanced it since GetTxSegment
	seg.SetSeq(e.LocalSeq)
	seg.SetAck(e.RemoteSeq)

	length := uint16(HEADER_SIZE + payloadLen)
	s.finalizeChecksum(e, seg, length)

	*slot = SentSegment{
		valid:      true,
		seq:        e.LocalSeq,
		payloadLen: uint16(payloadLen),
		length:     length,
	}
	copy(slot.buf[:], seg[:length])

	e.LocalSeq += uint32(payloadLen)
	e.RemoteSeqSent = e.RemoteSeq

	if err := s.ipv4.SendTxPacket(t.packet, int(length)); err != nil {
		// frame is gone but the copy isn't; the aging tick resends it
		log.WithError(err).Debug("tcp data send failed, retransmit armed")
	}
	return true
}

// CancelTxSegment returns an unsent segment's frame to the driver
func (s *TCPStack) CancelTxSegment(t TxSegment) {
	s.ipv4.CancelTxPacket(t.packet)
}

// CloseSocket starts an active close: send FIN+ACK and drop the entry. The
// caller's *TableEntry is dead after this returns. The FIN is fire-and-
// forget; if it is lost the peer's own close or RST cleans up their side.
func (s *TCPStack) CloseSocket(e *TableEntry) {
	s.sendControl(e, TCP_FIN|TCP_ACK)
	e.Clear()
}

// SendAck pushes out any ACK we owe the peer. Safe to call when nothing is
// owed; it no-ops.
func (s *TCPStack) SendAck(e *TableEntry) {
	if e.RemoteSeqSent == e.RemoteSeq {
		return
	}
	s.sendAck(e)
}

// sendControl emits a payload-less segment with the given flags at the
// current sequence state. Not retransmitted.
func (s *TCPStack) sendControl(e *TableEntry, flags uint8) {
	t, ok := s.GetTxSegment(e)
	if !ok {
		return
	}
	seg := t.segment()
	seg.SetFlags(flags)
	s.finalizeChecksum(e, seg, HEADER_SIZE)
	if err := s.ipv4.SendTxPacket(t.packet, HEADER_SIZE); err != nil {
		log.WithError(err).Debug("tcp control send failed")
		return
	}
	e.RemoteSeqSent = e.RemoteSeq
}

func (s *TCPStack) sendAck(e *TableEntry) {
	s.sendControl(e, TCP_ACK)
}

// sendRst answers a segment that has no connection (or can't get one) with
// RST+ACK. Built from the offending segment alone since there is no entry
// to take state from.
func (s *TCPStack) sendRst(in Segment, src ipstack.Address) {
	p, ok := s.ipv4.GetTxPacket(src, ipstack.TCP_PROTOCOL)
	if !ok {
		return
	}

	seg := Segment(p.Payload())
	seg.SetSourcePort(in.DestPort())
	seg.SetDestPort(in.SourcePort())
	seg.SetSeq(in.Ack())
	seg.SetAck(in.Seq() + 1)
	seg.SetDataOffset(HEADER_SIZE / 4)
	seg.SetFlags(TCP_RST | TCP_ACK)
	seg.SetWindow(0)
	seg.SetChecksum(0)
	seg.SetUrgentPointer(0)

	prelude := ipstack.PseudoHeaderChecksum(s.ipv4.Config().Address, src, ipstack.TCP_PROTOCOL, HEADER_SIZE)
	seg.SetChecksum(^ipstack.InternetChecksum(seg[:HEADER_SIZE], prelude))

	if err := s.ipv4.SendTxPacket(p, HEADER_SIZE); err != nil {
		log.WithError(err).Debug("tcp rst send failed")
	}
}

// sendSynAck answers the handshake with SYN+ACK carrying an MSS option
// sized to our link. Data offset grows by one word for the option.
func (s *TCPStack) sendSynAck(e *TableEntry) bool {
	const optLen = 4
	const segLen = HEADER_SIZE + optLen

	t, ok := s.GetTxSegment(e)
	if !ok {
		return false
	}

	seg := t.segment()
	seg.SetFlags(TCP_SYN | TCP_ACK)
	seg.SetDataOffset(segLen / 4)

	// MSS option: kind 2, length 4, value = our biggest data payload
	mss := uint16(TCP_IPV4_PAYLOAD_MTU)
	seg[HEADER_SIZE+0] = 2
	seg[HEADER_SIZE+1] = optLen
	seg[HEADER_SIZE+2] = byte(mss >> 8)
	seg[HEADER_SIZE+3] = byte(mss)

	s.finalizeChecksum(e, seg, segLen)
	if err := s.ipv4.SendTxPacket(t.packet, segLen); err != nil {
		log.WithError(err).Debug("syn+ack send failed")
		return false
	}
	e.RemoteSeqSent = e.RemoteSeq
	return true
}

// finalizeChecksum computes the segment checksum over header and data,
// seeded with the pseudo header for this connection
func (s *TCPStack) finalizeChecksum(e *TableEntry, seg Segment, length uint16) {
	seg.SetChecksum(0)
	prelude := ipstack.PseudoHeaderChecksum(s.ipv4.Config().Address, e.RemoteIP, ipstack.TCP_PROTOCOL, length)
	seg.SetChecksum(^ipstack.InternetChecksum(seg[:length], prelude))
}
