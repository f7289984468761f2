package ipstack

import (
	"encoding/binary"

	"staticnet/pkg/ethernet"
)

const (
	// HEADER_SIZE is the only header length we speak: no IP options
	HEADER_SIZE = 20

	// PAYLOAD_MTU is the biggest IPv4 payload that fits our link MTU
	PAYLOAD_MTU = ethernet.PAYLOAD_MTU - HEADER_SIZE

	// header flag bits, in the flags+fragment-offset word
	FLAG_EVIL = 0x8000
	FLAG_DF   = 0x4000
	FLAG_MF   = 0x2000
)

// Packet is a typed overlay on the payload region of a driver-owned frame.
// All accessors read and write network byte order in place; there is no
// separate byte-swap step. A Packet is a short-lived borrow and must not be
// kept past the frame's lifetime.
//
// For outbound packets the overlay keeps the *Frame it was built on, which
// is how the TX path gets from packet back to frame. Inbound overlays have
// no frame and can't be sent.
type Packet struct {
	frame *ethernet.Frame
	b     []byte
}

// OverlayPacket wraps an inbound payload region as an IPv4 packet
func OverlayPacket(b []byte) Packet {
	return Packet{b: b}
}

func (p Packet) VersionIHL() uint8     { return p.b[0] }
func (p Packet) SetVersionIHL(v uint8) { p.b[0] = v }

func (p Packet) DSCP() uint8     { return p.b[1] }
func (p Packet) SetDSCP(v uint8) { p.b[1] = v }

// HeaderLength decodes the IHL field to bytes
func (p Packet) HeaderLength() int {
	return int(p.b[0]&0x0f) * 4
}

func (p Packet) TotalLength() uint16 {
	return binary.BigEndian.Uint16(p.b[2:4])
}

func (p Packet) SetTotalLength(v uint16) {
	binary.BigEndian.PutUint16(p.b[2:4], v)
}

func (p Packet) FragmentID() uint16 {
	return binary.BigEndian.Uint16(p.b[4:6])
}

func (p Packet) SetFragmentID(v uint16) {
	binary.BigEndian.PutUint16(p.b[4:6], v)
}

func (p Packet) FlagsFragOff() uint16 {
	return binary.BigEndian.Uint16(p.b[6:8])
}

func (p Packet) SetFlagsFragOff(v uint16) {
	binary.BigEndian.PutUint16(p.b[6:8], v)
}

func (p Packet) TTL() uint8     { return p.b[8] }
func (p Packet) SetTTL(v uint8) { p.b[8] = v }

func (p Packet) Protocol() Protocol {
	return Protocol(p.b[9])
}

func (p Packet) SetProtocol(v Protocol) {
	p.b[9] = byte(v)
}

func (p Packet) HeaderChecksum() uint16 {
	return binary.BigEndian.Uint16(p.b[10:12])
}

func (p Packet) SetHeaderChecksum(v uint16) {
	binary.BigEndian.PutUint16(p.b[10:12], v)
}

func (p Packet) SourceAddr() Address {
	var a Address
	copy(a[:], p.b[12:16])
	return a
}

func (p Packet) SetSourceAddr(a Address) {
	copy(p.b[12:16], a[:])
}

func (p Packet) DestAddr() Address {
	var a Address
	copy(a[:], p.b[16:20])
	return a
}

func (p Packet) SetDestAddr(a Address) {
	copy(p.b[16:20], a[:])
}

// Header returns the raw header bytes (always 20, we reject options)
func (p Packet) Header() []byte {
	return p.b[:HEADER_SIZE]
}

// Payload returns the upper layer region after the header. The slice runs
// to the end of the frame buffer; the caller bounds it with the validated
// payload length.
func (p Packet) Payload() []byte {
	return p.b[HEADER_SIZE:]
}

// PayloadLength is total length minus the header, valid only after the RX
// filter accepted the packet
func (p Packet) PayloadLength() uint16 {
	total := p.TotalLength()
	if total < HEADER_SIZE {
		return 0
	}
	return total - HEADER_SIZE
}
