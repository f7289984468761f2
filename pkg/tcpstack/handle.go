package tcpstack

import (
	log "github.com/sirupsen/logrus"

	"staticnet/pkg/ipstack"
)

// handleRST tears the connection down immediately. The upper layer is told
// before the entry is cleared so it can drop its *TableEntry borrow.
func (s *TCPStack) handleRST(seg Segment, src ipstack.Address) {
	e := s.getSocketState(src, seg.DestPort(), seg.SourcePort())
	if e == nil {
		return
	}

	log.WithFields(log.Fields{
		"remote": src,
		"port":   e.LocalPort,
	}).Debug("connection reset by peer")

	s.handler.OnConnectionClosed(e)
	e.Clear()
}

// handleSYN opens a new passive connection: validate the port, claim a
// table entry, pick an ISN and answer SYN+ACK with an MSS option.
//
// A retransmitted SYN for a tuple we already track reuses the existing
// entry rather than allocating a second one; the SYN+ACK it regenerates
// carries the same ISN because the entry keeps it.
func (s *TCPStack) handleSYN(seg Segment, src ipstack.Address) {
	localPort := seg.DestPort()
	remotePort := seg.SourcePort()

	if !s.handler.IsPortOpen(localPort) {
		s.sendRst(seg, src)
		return
	}

	e := s.getSocketState(src, localPort, remotePort)
	fresh := e == nil
	if fresh {
		e = s.allocateSocket(src, localPort, remotePort)
		if e == nil {
			// line full; refuse rather than evict a live connection
			log.WithField("remote", src).Debug("socket table line full, refusing")
			s.sendRst(seg, src)
			return
		}

		isn := s.handler.GenerateISN()
		*e = TableEntry{
			Valid:            true,
			RemoteIP:         src,
			LocalPort:        localPort,
			RemotePort:       remotePort,
			LocalSeq:         isn,
			LocalInitialSeq:  isn,
			RemoteSeq:        seg.Seq() + 1,
			RemoteSeqSent:    seg.Seq() + 1,
			RemoteInitialSeq: seg.Seq(),
		}
	} else {
		// duplicate SYN: rewind to just after the handshake
		e.RemoteSeq = seg.Seq() + 1
		e.RemoteSeqSent = seg.Seq() + 1
		e.LocalSeq = e.LocalInitialSeq
	}

	if !s.sendSynAck(e) {
		// couldn't answer; a fresh entry is useless without its SYN+ACK,
		// the peer will retry the whole handshake
		if fresh {
			e.Clear()
		}
		return
	}

	// the SYN+ACK consumes one sequence number
	e.LocalSeq++

	if fresh {
		s.handler.OnConnectionAccepted(e)
	}
}

// handleACK is the established-state path: free ACKed retransmit slots,
// deliver in-order payload, and process FIN.
func (s *TCPStack) handleACK(seg Segment, src ipstack.Address) {
	e := s.getSocketState(src, seg.DestPort(), seg.SourcePort())
	if e == nil {
		// not RSTing here keeps us quiet against port scans
		return
	}

	e.IdleTicks = 0

	// Release every retransmit slot the cumulative ACK covers
	ack := seg.Ack()
	for i := range e.Unacked {
		slot := &e.Unacked[i]
		if slot.valid && seqLEQ(slot.endSeq(), ack) {
			slot.valid = false
		}
	}

	// Only the exact next expected sequence number is accepted. Anything
	// else, old duplicate or future hole, is dropped; the peer retransmits.
	if seg.Seq() != e.RemoteSeq {
		return
	}

	payload := seg.Payload()
	if len(payload) > 0 {
		e.RemoteSeq += uint32(len(payload))
		s.handler.OnRxData(e, payload)

		// The data callback may have sent something that already carried
		// the new ACK number; only send a bare ACK if we still owe one.
		if e.RemoteSeqSent != e.RemoteSeq {
			s.sendAck(e)
		}
	}

	if seg.Flags()&TCP_FIN != 0 {
		// FIN consumes a sequence number. Answer FIN+ACK and drop the
		// entry; we skip TIME_WAIT entirely, a stale-segment ghost is
		// cheaper than a parked table slot.
		e.RemoteSeq++
		s.handler.OnConnectionClosed(e)
		s.sendControl(e, TCP_FIN|TCP_ACK)
		e.Clear()
	}
}
