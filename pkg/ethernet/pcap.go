package ethernet

import (
	"encoding/binary"
	"time"

	"github.com/google/gopacket/pcap"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// RxHandlerFunc receives the payload region of an inbound frame. The slice is
// always a full PAYLOAD_MTU bytes, payloadLen is what actually arrived on the
// wire. The buffer is only valid for the duration of the call.
type RxHandlerFunc func(payload []byte, payloadLen int)

// PcapDriver runs the stack against a real interface through libpcap.
// Inbound frames are copied into one static RX buffer, so nothing past
// InitPcapDriver allocates on the receive path.
type PcapDriver struct {
	handle   *pcap.Handle
	pool     *TxPool
	mac      MACAddr
	handlers map[EtherType]RxHandlerFunc

	rxFrame Frame
}

func InitPcapDriver(device string, mac MACAddr) (*PcapDriver, error) {
	// short read timeout so the caller's loop can interleave aging ticks
	handle, err := pcap.OpenLive(device, FRAME_SIZE, true, 10*time.Millisecond)
	if err != nil {
		return nil, errors.Wrapf(err, "open capture on %s", device)
	}

	return &PcapDriver{
		handle:   handle,
		pool:     InitTxPool(mac),
		mac:      mac,
		handlers: make(map[EtherType]RxHandlerFunc),
	}, nil
}

func (d *PcapDriver) MAC() MACAddr {
	return d.mac
}

// RegisterHandler binds an ethertype to its protocol layer. Must be called
// before Poll; the map is read-only afterwards.
func (d *PcapDriver) RegisterHandler(t EtherType, h RxHandlerFunc) {
	d.handlers[t] = h
}

func (d *PcapDriver) GetTxFrame(etherType EtherType, dst MACAddr) *Frame {
	return d.pool.Get(etherType, dst)
}

func (d *PcapDriver) SendTxFrame(f *Frame) error {
	err := d.handle.WritePacketData(f.Bytes())
	d.pool.Release(f)
	if err != nil {
		return errors.Wrap(err, "send frame")
	}
	return nil
}

func (d *PcapDriver) CancelTxFrame(f *Frame) {
	d.pool.Release(f)
}

func (d *PcapDriver) IsTxBufferAvailable() bool {
	return d.pool.Available()
}

// Poll reads one frame if available and dispatches it. Returns false when
// the read timed out with nothing to do.
func (d *PcapDriver) Poll() bool {
	data, _, err := d.handle.ZeroCopyReadPacketData()
	if err != nil {
		if err == pcap.NextErrorTimeoutExpired {
			return false
		}
		log.WithError(err).Debug("pcap read failed")
		return false
	}
	d.OnRxFrame(data)
	return true
}

// OnRxFrame is the driver entry point into the stack. Runt frames and
// unknown ethertypes are dropped without a word.
func (d *PcapDriver) OnRxFrame(data []byte) {
	if len(data) < HEADER_SIZE {
		return
	}

	etherType := EtherType(binary.BigEndian.Uint16(data[12:14]))
	handler, ok := d.handlers[etherType]
	if !ok {
		return
	}

	payloadLen := len(data) - HEADER_SIZE
	if payloadLen > PAYLOAD_MTU {
		payloadLen = PAYLOAD_MTU
	}

	// copy into the static frame so handlers always see a full MTU buffer
	copy(d.rxFrame.buf[:], data[:HEADER_SIZE+payloadLen])
	handler(d.rxFrame.buf[HEADER_SIZE:], payloadLen)
}

func (d *PcapDriver) Close() {
	d.handle.Close()
}
