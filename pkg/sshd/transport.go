package sshd

import (
	"bytes"
	"encoding/binary"

	log "github.com/sirupsen/logrus"
)

// pump drains as much of the reassembly buffer as the current phase can
// consume. Called after every OnRxData; partial banners and split packets
// just wait for the next segment.
func (s *Server) pump(c *Connection) {
	if c.phase == PHASE_BANNER {
		if !s.pumpBanner(c) {
			return
		}
	}

	for c.valid {
		if !s.pumpPacket(c) {
			return
		}
	}
}

// pumpBanner accumulates the client version line. Returns true once the
// banner is done and packet parsing may begin.
func (s *Server) pumpBanner(c *Connection) bool {
	var b [1]byte
	for {
		if n, _ := c.rx.Read(b[:]); n == 0 {
			return false
		}

		if c.lineLen >= len(c.line) {
			log.Debug("ssh banner too long")
			s.DropConnection(c)
			return false
		}
		c.line[c.lineLen] = b[0]
		c.lineLen++

		if b[0] != '\n' {
			continue
		}

		banner := bytes.TrimRight(c.line[:c.lineLen], "\r\n")
		if !bytes.HasPrefix(banner, []byte("SSH-2.0-")) {
			log.WithField("banner", string(banner)).Debug("unsupported ssh version")
			s.DropConnection(c)
			return false
		}

		log.WithField("banner", string(banner)).Debug("client banner received")
		c.phase = PHASE_PACKETS
		return true
	}
}

// pumpPacket parses one binary packet if the buffer holds a complete one.
// Returns false when more bytes are needed (or the connection died).
func (s *Server) pumpPacket(c *Connection) bool {
	if c.pendingLen == 0 {
		if c.rx.Length() < 4 {
			return false
		}
		var hdr [4]byte
		c.rx.Read(hdr[:])
		plen := binary.BigEndian.Uint32(hdr[:])
		if plen < 2 || plen > SSH_MAX_PACKET {
			log.WithField("length", plen).Debug("ssh packet length out of range")
			s.DropConnection(c)
			return false
		}
		c.pendingLen = plen
	}

	if uint32(c.rx.Length()) < c.pendingLen {
		return false
	}

	var pkt [SSH_MAX_PACKET]byte
	c.rx.Read(pkt[:c.pendingLen])

	padLen := uint32(pkt[0])
	if padLen+1 >= c.pendingLen {
		log.Debug("ssh padding longer than packet")
		s.DropConnection(c)
		return false
	}
	payload := pkt[1 : c.pendingLen-padLen]

	seq := c.rxSeq
	c.rxSeq++
	c.pendingLen = 0

	s.handlePacket(c, payload, seq)
	return true
}

func (s *Server) handlePacket(c *Connection, payload []byte, seq uint32) {
	switch payload[0] {

	case MSG_DISCONNECT:
		log.WithField("remote", c.entry.RemoteIP).Debug("peer disconnect")
		s.DropConnection(c)

	case MSG_SERVICE_REQUEST:
		name, _, ok := readString(payload[1:])
		if !ok || !bytes.Equal(name, []byte("ssh-userauth")) {
			s.DropConnection(c)
			return
		}
		var reply [32]byte
		n := 0
		reply[n] = MSG_SERVICE_ACCEPT
		n++
		n += putString(reply[n:], name)
		s.sendPacket(c, reply[:n])

	case MSG_USERAUTH_REQUEST:
		s.handleUserauth(c, payload[1:])

	default:
		log.WithField("type", payload[0]).Debug("unimplemented ssh message")
		var reply [5]byte
		reply[0] = MSG_UNIMPLEMENTED
		binary.BigEndian.PutUint32(reply[1:5], seq)
		s.sendPacket(c, reply[:])
	}
}

// handleUserauth processes one password authentication attempt. Only the
// password method is offered; everything else fails with the method list.
func (s *Server) handleUserauth(c *Connection, b []byte) {
	username, b, ok := readString(b)
	if !ok {
		s.DropConnection(c)
		return
	}
	service, b, ok := readString(b)
	if !ok || !bytes.Equal(service, []byte("ssh-connection")) {
		s.DropConnection(c)
		return
	}
	method, b, ok := readString(b)
	if !ok {
		s.DropConnection(c)
		return
	}

	granted := false
	if bytes.Equal(method, []byte("password")) && len(b) >= 1 && b[0] == 0 {
		password, _, ok := readString(b[1:])
		if ok && s.auth != nil {
			granted = s.auth.CheckPassword(username, password)
		}
	}

	if granted {
		c.authenticated = true
		log.WithField("user", string(username)).Info("ssh auth succeeded")
		s.sendPacket(c, []byte{MSG_USERAUTH_SUCCESS})
		return
	}

	log.WithField("user", string(username)).Debug("ssh auth failed")
	var reply [32]byte
	n := 0
	reply[n] = MSG_USERAUTH_FAILURE
	n++
	n += putString(reply[n:], []byte("password"))
	reply[n] = 0 // partial success: no
	n++
	s.sendPacket(c, reply[:n])
}

// sendPacket wraps payload in binary packet framing (pre-kex: no MAC, zero
// padding bytes) and transmits it
func (s *Server) sendPacket(c *Connection, payload []byte) bool {
	// total length a multiple of 8, at least 4 bytes of padding
	padLen := 8 - (4+1+len(payload))%8
	if padLen < 4 {
		padLen += 8
	}
	plen := uint32(1 + len(payload) + padLen)

	t, ok := s.tcp.GetTxSegment(c.entry)
	if !ok {
		return false
	}

	out := t.Payload()
	binary.BigEndian.PutUint32(out[0:4], plen)
	out[4] = byte(padLen)
	n := 5 + copy(out[5:], payload)
	for i := 0; i < padLen; i++ {
		out[n] = 0
		n++
	}

	return s.tcp.SendTxSegment(c.entry, t, n)
}

// readString pulls one RFC 4251 string off the front of b
func readString(b []byte) (val, rest []byte, ok bool) {
	if len(b) < 4 {
		return nil, nil, false
	}
	n := binary.BigEndian.Uint32(b[0:4])
	if uint32(len(b)-4) < n {
		return nil, nil, false
	}
	return b[4 : 4+n], b[4+n:], true
}

// putString writes one RFC 4251 string and returns the bytes consumed
func putString(b []byte, val []byte) int {
	binary.BigEndian.PutUint32(b[0:4], uint32(len(val)))
	return 4 + copy(b[4:], val)
}
