package ethernet

import (
	"encoding/binary"
)

// MemDriver is a loopback link for tests and simulation: transmitted frames
// are recorded instead of hitting a wire, and inbound frames are injected by
// the caller. Unlike the pcap driver it allocates freely; it never runs in
// the real data path.
type MemDriver struct {
	pool     *TxPool
	mac      MACAddr
	handlers map[EtherType]RxHandlerFunc

	rxFrame Frame
	sent    [][]byte
}

func InitMemDriver(mac MACAddr) *MemDriver {
	return &MemDriver{
		pool:     InitTxPool(mac),
		mac:      mac,
		handlers: make(map[EtherType]RxHandlerFunc),
	}
}

func (d *MemDriver) MAC() MACAddr {
	return d.mac
}

func (d *MemDriver) RegisterHandler(t EtherType, h RxHandlerFunc) {
	d.handlers[t] = h
}

func (d *MemDriver) GetTxFrame(etherType EtherType, dst MACAddr) *Frame {
	return d.pool.Get(etherType, dst)
}

func (d *MemDriver) SendTxFrame(f *Frame) error {
	out := make([]byte, len(f.Bytes()))
	copy(out, f.Bytes())
	d.sent = append(d.sent, out)
	d.pool.Release(f)
	return nil
}

func (d *MemDriver) CancelTxFrame(f *Frame) {
	d.pool.Release(f)
}

func (d *MemDriver) IsTxBufferAvailable() bool {
	return d.pool.Available()
}

// InjectRxFrame delivers a raw ethernet frame to the registered handler,
// with the same full-MTU buffer guarantee the pcap driver gives
func (d *MemDriver) InjectRxFrame(data []byte) {
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

	d.rxFrame.buf = [FRAME_SIZE]byte{}
	copy(d.rxFrame.buf[:], data[:HEADER_SIZE+payloadLen])
	handler(d.rxFrame.buf[HEADER_SIZE:], payloadLen)
}

// Sent returns the frames transmitted since the last Clear
func (d *MemDriver) Sent() [][]byte {
	return d.sent
}

func (d *MemDriver) Clear() {
	d.sent = nil
}
