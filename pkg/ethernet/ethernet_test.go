package ethernet

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	srcMAC = MACAddr{0x02, 0, 0, 0, 0, 0x01}
	dstMAC = MACAddr{0x02, 0, 0, 0, 0, 0x02}
)

func TestTxPoolExhaustion(t *testing.T) {
	pool := InitTxPool(srcMAC)

	var frames []*Frame
	for i := 0; i < TX_POOL_SIZE; i++ {
		f := pool.Get(ETHERTYPE_IPV4, dstMAC)
		require.NotNil(t, f)
		frames = append(frames, f)
	}

	assert.False(t, pool.Available())
	assert.Nil(t, pool.Get(ETHERTYPE_IPV4, dstMAC), "exhausted pool must refuse")

	pool.Release(frames[3])
	assert.True(t, pool.Available())
	assert.NotNil(t, pool.Get(ETHERTYPE_IPV4, dstMAC))
}

func TestTxPoolPrefillsHeader(t *testing.T) {
	pool := InitTxPool(srcMAC)
	f := pool.Get(ETHERTYPE_ARP, dstMAC)
	require.NotNil(t, f)

	assert.Equal(t, dstMAC, f.DstMAC())
	assert.Equal(t, srcMAC, f.SrcMAC())
	assert.Equal(t, ETHERTYPE_ARP, f.EtherType())
}

func TestFramePayloadLengthClamped(t *testing.T) {
	var f Frame
	f.SetPayloadLength(3 * PAYLOAD_MTU)
	assert.Equal(t, uint16(PAYLOAD_MTU), f.PayloadLength())
}

func buildFrame(t *testing.T, etherType layers.EthernetType, payload []byte) []byte {
	t.Helper()
	eth := layers.Ethernet{
		SrcMAC:       net.HardwareAddr(dstMAC[:]),
		DstMAC:       net.HardwareAddr(srcMAC[:]),
		EthernetType: etherType,
	}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{},
		&eth, gopacket.Payload(payload)))
	return buf.Bytes()
}

func TestMemDriverDispatch(t *testing.T) {
	d := InitMemDriver(srcMAC)

	var gotPayload []byte
	var gotLen int
	d.RegisterHandler(ETHERTYPE_IPV4, func(payload []byte, payloadLen int) {
		gotPayload = payload
		gotLen = payloadLen
	})

	// long enough that the encoder adds no padding to reach the 60-byte
	// ethernet minimum frame size
	payload := make([]byte, 64)
	for i := range payload {
		payload[i] = byte(i)
	}
	d.InjectRxFrame(buildFrame(t, layers.EthernetTypeIPv4, payload))

	require.NotNil(t, gotPayload)
	assert.Equal(t, len(payload), gotLen)
	assert.Equal(t, payload, gotPayload[:gotLen])

	// handlers are promised a full MTU-sized buffer regardless of length
	assert.Equal(t, PAYLOAD_MTU, len(gotPayload))
}

func TestMemDriverIgnoresUnknownEtherType(t *testing.T) {
	d := InitMemDriver(srcMAC)

	called := false
	d.RegisterHandler(ETHERTYPE_IPV4, func(payload []byte, payloadLen int) {
		called = true
	})

	d.InjectRxFrame(buildFrame(t, layers.EthernetTypeIPv6, []byte{1, 2, 3}))
	assert.False(t, called)
}

func TestMemDriverRecordsSentFrames(t *testing.T) {
	d := InitMemDriver(srcMAC)

	f := d.GetTxFrame(ETHERTYPE_IPV4, dstMAC)
	require.NotNil(t, f)
	n := copy(f.Payload(), []byte("ping"))
	f.SetPayloadLength(uint16(n))
	require.NoError(t, d.SendTxFrame(f))

	sent := d.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, dstMAC[:], sent[0][0:6])
	assert.Equal(t, srcMAC[:], sent[0][6:12])
	assert.Equal(t, []byte("ping"), sent[0][HEADER_SIZE:])

	// the frame went back to the pool
	assert.True(t, d.IsTxBufferAvailable())
}
