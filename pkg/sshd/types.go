package sshd

import (
	"github.com/smallnest/ringbuffer"

	"staticnet/pkg/tcpstack"
)

const (
	SSH_PORT = 22

	// SSH_TABLE_SIZE caps concurrent SSH sessions; connections beyond it
	// are refused at accept time
	SSH_TABLE_SIZE = 8

	// SSH_RX_BUFFER_SIZE is the per-connection reassembly buffer. TCP hands
	// us segment-sized chunks; SSH packets can straddle them.
	SSH_RX_BUFFER_SIZE = 2048

	// SSH_MAX_PACKET is the biggest binary packet we accept. RFC 4253 asks
	// for 35000; we are nowhere near that kind of memory.
	SSH_MAX_PACKET = 1024

	// SSH_MAX_BANNER bounds the client version line
	SSH_MAX_BANNER = 256
)

// RFC 4253/4252 message numbers, the subset this transport reacts to
const (
	MSG_DISCONNECT       = 1
	MSG_UNIMPLEMENTED    = 3
	MSG_SERVICE_REQUEST  = 5
	MSG_SERVICE_ACCEPT   = 6
	MSG_USERAUTH_REQUEST = 50
	MSG_USERAUTH_FAILURE = 51
	MSG_USERAUTH_SUCCESS = 52
)

type connPhase uint8

const (
	// waiting for the client's version banner line
	PHASE_BANNER connPhase = iota

	// banner done, reading binary packets
	PHASE_PACKETS
)

// Connection is one SSH session riding a TCP table entry. The entry pointer
// is a borrow from the TCP layer and dies at OnConnectionClosed.
type Connection struct {
	valid bool
	entry *tcpstack.TableEntry
	phase connPhase

	rx *ringbuffer.RingBuffer

	// client banner accumulates here until the newline shows up
	line    [SSH_MAX_BANNER]byte
	lineLen int

	// binary packet length parsed from the stream, 0 while between packets
	pendingLen uint32

	// counts received binary packets, needed for MSG_UNIMPLEMENTED replies
	rxSeq uint32

	authenticated bool
}

// PasswordAuthenticator decides userauth password attempts. Implementations
// must not keep the byte slices past the call.
type PasswordAuthenticator interface {
	CheckPassword(username, password []byte) bool
}
