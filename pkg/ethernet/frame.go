package ethernet

import "encoding/binary"

// Frame is one statically allocated ethernet frame buffer. The storage is
// owned by whichever driver pool handed it out; upper layers borrow the
// payload region and must not hold it past SendTxFrame/CancelTxFrame.
//
// The payload always starts HEADER_SIZE bytes into the buffer, so an upper
// layer packet overlay can always get back to its frame without any pointer
// arithmetic by just keeping the *Frame it was built on.
type Frame struct {
	buf        [FRAME_SIZE]byte
	payloadLen uint16
	inUse      bool
}

func (f *Frame) DstMAC() MACAddr {
	var mac MACAddr
	copy(mac[:], f.buf[0:6])
	return mac
}

func (f *Frame) SetDstMAC(mac MACAddr) {
	copy(f.buf[0:6], mac[:])
}

func (f *Frame) SrcMAC() MACAddr {
	var mac MACAddr
	copy(mac[:], f.buf[6:12])
	return mac
}

func (f *Frame) SetSrcMAC(mac MACAddr) {
	copy(f.buf[6:12], mac[:])
}

func (f *Frame) EtherType() EtherType {
	return EtherType(binary.BigEndian.Uint16(f.buf[12:14]))
}

func (f *Frame) SetEtherType(t EtherType) {
	binary.BigEndian.PutUint16(f.buf[12:14], uint16(t))
}

// Payload returns the full MTU-sized payload region, not just the bytes
// that are valid on the wire. Callers that care about the wire length use
// PayloadLength.
func (f *Frame) Payload() []byte {
	return f.buf[HEADER_SIZE:]
}

func (f *Frame) PayloadLength() uint16 {
	return f.payloadLen
}

func (f *Frame) SetPayloadLength(n uint16) {
	if n > PAYLOAD_MTU {
		n = PAYLOAD_MTU
	}
	f.payloadLen = n
}

// Bytes returns header plus valid payload, ready for the wire
func (f *Frame) Bytes() []byte {
	return f.buf[:HEADER_SIZE+int(f.payloadLen)]
}
