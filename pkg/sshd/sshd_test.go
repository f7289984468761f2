package sshd

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/netstack/tcpip"
	"github.com/google/netstack/tcpip/header"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staticnet/pkg/ethernet"
	"staticnet/pkg/ipstack"
)

var (
	ourMAC  = ethernet.MACAddr{0x02, 0, 0, 0, 0, 0x01}
	peerMAC = ethernet.MACAddr{0x02, 0, 0, 0, 0, 0x02}
	ourIP   = ipstack.Address{10, 0, 0, 2}
	peerIP  = ipstack.Address{10, 0, 0, 7}
)

type staticARP map[ipstack.Address]ethernet.MACAddr

func (a staticARP) Lookup(ip ipstack.Address) (ethernet.MACAddr, bool) {
	mac, ok := a[ip]
	return mac, ok
}

type testAuth struct {
	user, pass string
	calls      int
}

func (a *testAuth) CheckPassword(username, password []byte) bool {
	a.calls++
	return string(username) == a.user && string(password) == a.pass
}

// sshEnv drives the server through the real TCP and IPv4 layers
type sshEnv struct {
	t      *testing.T
	driver *ethernet.MemDriver
	server *Server

	peerSeq uint32
	srvAck  uint32 // how far we've seen the server's stream

	// what the server sent during the handshake turn
	banner []byte
}

func newSSHEnv(t *testing.T, auth PasswordAuthenticator) *sshEnv {
	t.Helper()
	driver := ethernet.InitMemDriver(ourMAC)
	cfg := &ipstack.Config{
		Address:   ourIP,
		Broadcast: ipstack.Address{10, 0, 0, 255},
		Gateway:   ipstack.Address{10, 0, 0, 1},
	}
	ipv4 := ipstack.InitIPStack(driver, cfg, staticARP{peerIP: peerMAC})
	server := InitServer(ipv4, auth)
	driver.RegisterHandler(ethernet.ETHERTYPE_IPV4, ipv4.OnRxPacket)

	env := &sshEnv{t: t, driver: driver, server: server, peerSeq: 5000}

	env.srvAck = 1 // placeholder until the syn+ack tells us the real isn
	env.injectTCP(1<<1, nil) // SYN
	segs := env.drain()
	require.NotEmpty(t, segs, "no syn+ack")
	require.NotZero(t, segs[0].Flags()&header.TCPFlagSyn)
	if env.srvAck == 1 {
		env.srvAck = segs[0].SequenceNumber() + 1
	}
	env.banner = payloads(segs[1:])
	return env
}

func (env *sshEnv) injectTCP(flags uint8, payload []byte) {
	env.t.Helper()

	seg := make([]byte, header.TCPMinimumSize+len(payload))
	hdr := header.TCP(seg[:header.TCPMinimumSize])
	hdr.Encode(&header.TCPFields{
		SrcPort:    40000,
		DstPort:    SSH_PORT,
		SeqNum:     env.peerSeq,
		AckNum:     env.srvAck,
		DataOffset: header.TCPMinimumSize,
		Flags:      flags,
		WindowSize: 65535,
	})
	copy(seg[header.TCPMinimumSize:], payload)

	pseudo := header.PseudoHeaderChecksum(header.TCPProtocolNumber,
		tcpip.Address(peerIP[:]), tcpip.Address(ourIP[:]), uint16(len(seg)))
	hdr.SetChecksum(^header.Checksum(seg, pseudo))

	ih := make([]byte, ipstack.HEADER_SIZE)
	ih[0] = 0x45
	binary.BigEndian.PutUint16(ih[2:4], uint16(ipstack.HEADER_SIZE+len(seg)))
	binary.BigEndian.PutUint16(ih[6:8], ipstack.FLAG_DF)
	ih[8] = 64
	ih[9] = byte(ipstack.TCP_PROTOCOL)
	copy(ih[12:16], peerIP[:])
	copy(ih[16:20], ourIP[:])
	binary.BigEndian.PutUint16(ih[10:12], ^ipstack.InternetChecksum(ih, 0))

	frame := make([]byte, 0, ethernet.HEADER_SIZE+len(ih)+len(seg))
	frame = append(frame, ourMAC[:]...)
	frame = append(frame, peerMAC[:]...)
	frame = append(frame, 0x08, 0x00)
	frame = append(frame, ih...)
	frame = append(frame, seg...)
	env.driver.InjectRxFrame(frame)

	env.peerSeq += uint32(len(payload))
	if flags&(1<<1) != 0 { // SYN
		env.peerSeq++
	}
}

// send delivers application bytes to the server's SSH stream
func (env *sshEnv) send(data []byte) {
	env.injectTCP(1<<4, data) // ACK
}

// drain parses the segments transmitted since the last call and advances
// our view of the server stream
func (env *sshEnv) drain() []header.TCP {
	env.t.Helper()

	var out []header.TCP
	for _, f := range env.driver.Sent() {
		ip := f[ethernet.HEADER_SIZE:]
		total := binary.BigEndian.Uint16(ip[2:4])
		seg := header.TCP(ip[ipstack.HEADER_SIZE:total])
		out = append(out, seg)

		if n := len([]byte(seg)) - int(seg.DataOffset()); n > 0 {
			env.srvAck = seg.SequenceNumber() + uint32(n)
		}
	}
	env.driver.Clear()
	return out
}

// payloads extracts the data carried by drained segments, in order
func payloads(segs []header.TCP) []byte {
	var out []byte
	for _, s := range segs {
		out = append(out, []byte(s)[s.DataOffset():]...)
	}
	return out
}

// clientPacket wraps payload in the pre-kex binary packet framing
func clientPacket(payload []byte) []byte {
	padLen := 8 - (4+1+len(payload))%8
	if padLen < 4 {
		padLen += 8
	}
	out := make([]byte, 4+1+len(payload)+padLen)
	binary.BigEndian.PutUint32(out[0:4], uint32(1+len(payload)+padLen))
	out[4] = byte(padLen)
	copy(out[5:], payload)
	return out
}

// parsePackets splits a server byte stream into binary packet payloads
func parsePackets(t *testing.T, stream []byte) [][]byte {
	t.Helper()
	var out [][]byte
	for len(stream) > 0 {
		require.GreaterOrEqual(t, len(stream), 5, "truncated packet header")
		plen := binary.BigEndian.Uint32(stream[0:4])
		require.GreaterOrEqual(t, len(stream), int(4+plen), "truncated packet")
		padLen := uint32(stream[4])
		require.Less(t, padLen+1, plen, "padding overruns packet")
		out = append(out, stream[5:4+plen-padLen])

		// framing invariant: total length is a multiple of 8
		assert.Zero(t, (4+plen)%8)
		stream = stream[4+plen:]
	}
	return out
}

func TestBannerExchange(t *testing.T) {
	env := newSSHEnv(t, &testAuth{})

	assert.Equal(t, []byte(serverBanner), env.banner, "server banner goes out on accept")

	env.send([]byte("SSH-2.0-OpenSSH_9.6\r\n"))
	env.drain()

	// past the banner, an unknown message type draws MSG_UNIMPLEMENTED
	env.send(clientPacket([]byte{99}))
	pkts := parsePackets(t, payloads(env.drain()))
	require.Len(t, pkts, 1)
	assert.Equal(t, byte(MSG_UNIMPLEMENTED), pkts[0][0])
	assert.Equal(t, uint32(0), binary.BigEndian.Uint32(pkts[0][1:5]), "first packet has sequence zero")
}

func TestBadBannerDropsConnection(t *testing.T) {
	env := newSSHEnv(t, &testAuth{})
	env.drain()

	env.send([]byte("GET / HTTP/1.1\r\n"))

	segs := env.drain()
	require.NotEmpty(t, segs)
	last := segs[len(segs)-1]
	assert.NotZero(t, last.Flags()&header.TCPFlagFin, "server must close on a non-ssh client")
}

func TestServiceRequest(t *testing.T) {
	env := newSSHEnv(t, &testAuth{})
	env.drain()
	env.send([]byte("SSH-2.0-test\r\n"))
	env.drain()

	var req bytes.Buffer
	req.WriteByte(MSG_SERVICE_REQUEST)
	writeString(&req, "ssh-userauth")
	env.send(clientPacket(req.Bytes()))

	pkts := parsePackets(t, payloads(env.drain()))
	require.Len(t, pkts, 1)
	assert.Equal(t, byte(MSG_SERVICE_ACCEPT), pkts[0][0])
	name, _, ok := readString(pkts[0][1:])
	require.True(t, ok)
	assert.Equal(t, []byte("ssh-userauth"), name)
}

func userauthRequest(user, method, password string) []byte {
	var b bytes.Buffer
	b.WriteByte(MSG_USERAUTH_REQUEST)
	writeString(&b, user)
	writeString(&b, "ssh-connection")
	writeString(&b, method)
	if method == "password" {
		b.WriteByte(0)
		writeString(&b, password)
	}
	return b.Bytes()
}

func writeString(b *bytes.Buffer, s string) {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(s)))
	b.Write(l[:])
	b.WriteString(s)
}

func TestUserauthPassword(t *testing.T) {
	auth := &testAuth{user: "operator", pass: "hunter2"}
	env := newSSHEnv(t, auth)
	env.drain()
	env.send([]byte("SSH-2.0-test\r\n"))
	env.drain()

	// wrong password fails and names the one supported method
	env.send(clientPacket(userauthRequest("operator", "password", "wrong")))
	pkts := parsePackets(t, payloads(env.drain()))
	require.Len(t, pkts, 1)
	assert.Equal(t, byte(MSG_USERAUTH_FAILURE), pkts[0][0])
	methods, rest, ok := readString(pkts[0][1:])
	require.True(t, ok)
	assert.Equal(t, []byte("password"), methods)
	require.Len(t, rest, 1)
	assert.Equal(t, byte(0), rest[0], "no partial success")

	// right password succeeds
	env.send(clientPacket(userauthRequest("operator", "password", "hunter2")))
	pkts = parsePackets(t, payloads(env.drain()))
	require.Len(t, pkts, 1)
	assert.Equal(t, byte(MSG_USERAUTH_SUCCESS), pkts[0][0])
	assert.Equal(t, 2, auth.calls)

	// a non-password method never reaches the authenticator
	env.send(clientPacket(userauthRequest("operator", "publickey", "")))
	pkts = parsePackets(t, payloads(env.drain()))
	require.Len(t, pkts, 1)
	assert.Equal(t, byte(MSG_USERAUTH_FAILURE), pkts[0][0])
	assert.Equal(t, 2, auth.calls)
}

func TestPacketSplitAcrossSegments(t *testing.T) {
	env := newSSHEnv(t, &testAuth{})
	env.drain()
	env.send([]byte("SSH-2.0-test\r\n"))
	env.drain()

	pkt := clientPacket([]byte{99})
	env.send(pkt[:3])
	assert.Empty(t, payloads(env.drain()), "partial packet must not be answered")

	env.send(pkt[3:])
	pkts := parsePackets(t, payloads(env.drain()))
	require.Len(t, pkts, 1)
	assert.Equal(t, byte(MSG_UNIMPLEMENTED), pkts[0][0])
}

func TestDisconnectFreesSlot(t *testing.T) {
	env := newSSHEnv(t, &testAuth{})
	env.drain()
	env.send([]byte("SSH-2.0-test\r\n"))
	env.drain()

	var msg bytes.Buffer
	msg.WriteByte(MSG_DISCONNECT)
	env.send(clientPacket(msg.Bytes()))
	env.drain()

	for i := range env.server.conns {
		assert.False(t, env.server.conns[i].valid, "session slot must be freed")
	}
}

func TestReadString(t *testing.T) {
	var b bytes.Buffer
	writeString(&b, "abc")
	b.WriteByte(0xff)

	val, rest, ok := readString(b.Bytes())
	require.True(t, ok)
	assert.Equal(t, []byte("abc"), val)
	assert.Equal(t, []byte{0xff}, rest)

	_, _, ok = readString([]byte{0, 0, 0, 9, 'x'})
	assert.False(t, ok, "declared length past the buffer")

	_, _, ok = readString([]byte{0, 0})
	assert.False(t, ok, "too short for a length prefix")
}
