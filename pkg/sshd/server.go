// Package sshd is the SSH transport server riding the TCP layer: version
// banner exchange, binary packet framing and password userauth delegation.
// Key exchange and the cipher suites live above this layer and are not
// implemented here; the framing assumes the pre-kex state (no MAC, no
// encryption).
package sshd

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/smallnest/ringbuffer"
	log "github.com/sirupsen/logrus"

	"staticnet/pkg/ipstack"
	"staticnet/pkg/tcpstack"
)

const serverBanner = "SSH-2.0-staticnet_0.4\r\n"

// Server owns the SSH session table and implements the TCP layer's Handler
// capability set. It creates its own TCPStack so the RX callbacks are wired
// before the first frame can arrive.
type Server struct {
	tcp  *tcpstack.TCPStack
	auth PasswordAuthenticator

	conns [SSH_TABLE_SIZE]Connection
}

func InitServer(ipv4 *ipstack.IPStack, auth PasswordAuthenticator) *Server {
	s := &Server{auth: auth}
	for i := range s.conns {
		s.conns[i].rx = ringbuffer.New(SSH_RX_BUFFER_SIZE)
	}
	s.tcp = tcpstack.InitTCPStack(ipv4, s)
	log.WithField("port", SSH_PORT).Info("ssh transport up")
	return s
}

// TCP exposes the transport so the main loop can drive aging ticks
func (s *Server) TCP() *tcpstack.TCPStack {
	return s.tcp
}

func (s *Server) IsPortOpen(port uint16) bool {
	return port == SSH_PORT
}

// GenerateISN draws the initial sequence number from the platform CSPRNG
func (s *Server) GenerateISN() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		// rand.Read failing means the platform is broken; a weak ISN is
		// the least of anyone's problems at that point
		log.WithError(err).Warn("csprng read failed, falling back to zero isn")
		return 0
	}
	return binary.BigEndian.Uint32(b[:])
}

func (s *Server) findConnection(e *tcpstack.TableEntry) *Connection {
	for i := range s.conns {
		if s.conns[i].valid && s.conns[i].entry == e {
			return &s.conns[i]
		}
	}
	return nil
}

// OnConnectionAccepted claims a session slot and sends our banner. With the
// table full the TCP connection is closed on the spot.
func (s *Server) OnConnectionAccepted(e *tcpstack.TableEntry) {
	var c *Connection
	for i := range s.conns {
		if !s.conns[i].valid {
			c = &s.conns[i]
			break
		}
	}
	if c == nil {
		log.Debug("ssh session table full, refusing connection")
		s.tcp.CloseSocket(e)
		return
	}

	c.valid = true
	c.entry = e
	c.phase = PHASE_BANNER
	c.lineLen = 0
	c.pendingLen = 0
	c.rxSeq = 0
	c.authenticated = false
	c.rx.Reset()

	if !s.sendRaw(c, []byte(serverBanner)) {
		s.DropConnection(c)
		return
	}

	log.WithField("remote", e.RemoteIP).Info("ssh connection accepted")
}

// OnRxData feeds inbound TCP payload into the session's reassembly buffer
// and pumps the framing state machine
func (s *Server) OnRxData(e *tcpstack.TableEntry, payload []byte) {
	c := s.findConnection(e)
	if c == nil {
		return
	}

	if n, _ := c.rx.Write(payload); n < len(payload) {
		// the segment doesn't fit the reassembly buffer; nothing sane to
		// resume from
		log.WithField("remote", e.RemoteIP).Debug("ssh rx buffer overflow")
		s.DropConnection(c)
		return
	}

	s.pump(c)
}

func (s *Server) OnConnectionClosed(e *tcpstack.TableEntry) {
	c := s.findConnection(e)
	if c == nil {
		return
	}
	log.WithField("remote", e.RemoteIP).Info("ssh connection closed")
	c.valid = false
	c.entry = nil
}

// DropConnection closes the TCP side and frees the session slot. Used for
// protocol violations and resource exhaustion.
func (s *Server) DropConnection(c *Connection) {
	if !c.valid {
		return
	}
	e := c.entry
	c.valid = false
	c.entry = nil
	s.tcp.CloseSocket(e)
}

// sendRaw transmits bytes outside the binary packet framing (the banner is
// the only such traffic). Reports false on TX exhaustion.
func (s *Server) sendRaw(c *Connection, data []byte) bool {
	t, ok := s.tcp.GetTxSegment(c.entry)
	if !ok {
		return false
	}
	n := copy(t.Payload(), data)
	return s.tcp.SendTxSegment(c.entry, t, n)
}
