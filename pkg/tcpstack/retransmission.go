package tcpstack

import (
	log "github.com/sirupsen/logrus"

	"staticnet/pkg/ipstack"
)

// OnAgingTick10x drives time for the whole TCP layer. Call it at 10 Hz from
// the same goroutine that delivers frames; it walks every socket, ages idle
// counters and resends anything that has waited out its timeout.
func (s *TCPStack) OnAgingTick10x() {
	for w := range s.table {
		for l := range s.table[w].lines {
			e := &s.table[w].lines[l]
			if !e.Valid {
				continue
			}

			e.IdleTicks++

			for i := range e.Unacked {
				slot := &e.Unacked[i]
				if !slot.valid {
					continue
				}
				slot.agingTicks++
				if slot.agingTicks >= TCP_RETRANSMIT_TIMEOUT {
					s.retransmit(e, slot)
					slot.agingTicks = 0
				}
			}
		}
	}
}

// retransmit resends one saved segment verbatim. The ACK number inside the
// copy may be stale; the peer doesn't care, cumulative ACKs only move
// forward. Checksum was finalized at first send so the bytes go out as-is.
func (s *TCPStack) retransmit(e *TableEntry, slot *SentSegment) {
	p, ok := s.ipv4.GetTxPacket(e.RemoteIP, ipstack.TCP_PROTOCOL)
	if !ok {
		// no frame or ARP went missing; the next tick tries again
		return
	}

	copy(p.Payload(), slot.buf[:slot.length])

	log.WithFields(log.Fields{
		"remote": e.RemoteIP,
		"seq":    slot.seq,
		"len":    slot.payloadLen,
	}).Debug("retransmitting segment")

	if err := s.ipv4.SendTxPacket(p, int(slot.length)); err != nil {
		log.WithError(err).Debug("retransmit send failed")
	}
}
