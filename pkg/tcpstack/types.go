package tcpstack

import (
	"staticnet/pkg/ipstack"
)

const (
	TCP_FIN = 1 << 0
	TCP_SYN = 1 << 1
	TCP_RST = 1 << 2
	TCP_PSH = 1 << 3
	TCP_ACK = 1 << 4
)

const (
	// HEADER_SIZE is an option-less TCP header
	HEADER_SIZE = 20

	// TCP_MAX_UNACKED caps how many sent segments can be waiting for an ACK
	// per socket
	TCP_MAX_UNACKED = 4

	// TCP_RETRANSMIT_TIMEOUT is how many aging ticks a segment waits before
	// being resent. No backoff; bounded latency beats adaptive timers here.
	TCP_RETRANSMIT_TIMEOUT = 2

	// socket table geometry
	TCP_TABLE_WAYS  = 4
	TCP_TABLE_LINES = 16

	// TCP_IPV4_PAYLOAD_MTU is the biggest TCP data payload that fits an
	// IPv4 packet on our link, which is also the MSS we advertise
	TCP_IPV4_PAYLOAD_MTU = ipstack.PAYLOAD_MTU - HEADER_SIZE

	// TCP_WINDOW is the receive window we advertise. We have no reassembly
	// buffer, so this is flow-control theater more than anything, but a zero
	// window would stall well-behaved peers.
	TCP_WINDOW = 4096
)

// SentSegment is one sent-but-unACKed segment. The wire bytes are copied
// into the static buf so the driver can recycle its TX frame immediately;
// retransmission rebuilds a frame from the copy.
type SentSegment struct {
	valid      bool
	seq        uint32 // sequence number of the first payload byte
	payloadLen uint16
	length     uint16 // full segment length, header included
	agingTicks uint32
	buf        [ipstack.PAYLOAD_MTU]byte
}

func (s *SentSegment) endSeq() uint32 {
	return s.seq + uint32(s.payloadLen)
}

// TableEntry is the whole per-socket state. Entries live in the static
// socket table and are never relocated, so upper layers can hold a
// *TableEntry for the connection's lifetime (and must stop at
// OnConnectionClosed).
type TableEntry struct {
	Valid bool

	RemoteIP   ipstack.Address
	LocalPort  uint16
	RemotePort uint16

	// RemoteSeq is the next inbound sequence number we expect, which is
	// also the most recent ACK number we sent or are about to send
	RemoteSeq uint32

	// RemoteSeqSent is the ACK number actually on the wire; when it trails
	// RemoteSeq we still owe the peer an ACK
	RemoteSeqSent uint32

	// LocalSeq is the sequence number the next segment we send will carry
	LocalSeq uint32

	LocalInitialSeq  uint32
	RemoteInitialSeq uint32

	// IdleTicks counts aging ticks since the last inbound segment. Idle
	// session close isn't wired to an eviction policy yet.
	IdleTicks uint32

	Unacked [TCP_MAX_UNACKED]SentSegment
}

// Clear invalidates the entry and drops any unACKed segment copies
func (e *TableEntry) Clear() {
	*e = TableEntry{}
}

func (e *TableEntry) freeUnackedSlot() *SentSegment {
	for i := range e.Unacked {
		if !e.Unacked[i].valid {
			return &e.Unacked[i]
		}
	}
	return nil
}

// Handler is the capability set an upper layer protocol plugs into the TCP
// layer. Callbacks run synchronously on the RX path and may call straight
// back into SendTxSegment/CloseSocket.
type Handler interface {
	IsPortOpen(port uint16) bool

	// GenerateISN picks the initial sequence number for a new connection.
	// Wire this to the best randomness the platform has.
	GenerateISN() uint32

	OnConnectionAccepted(e *TableEntry)
	OnRxData(e *TableEntry, payload []byte)
	OnConnectionClosed(e *TableEntry)
}

// sequence space comparison, mod 2^32 with the usual signed-difference rule

func seqLEQ(a, b uint32) bool {
	return int32(a-b) <= 0
}

func seqLT(a, b uint32) bool {
	return int32(a-b) < 0
}
