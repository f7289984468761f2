package tcpstack

import (
	"encoding/binary"
)

// Segment is a typed overlay on the TCP region of an IPv4 payload. Like the
// IPv4 overlay, all accessors work in network byte order in place.
type Segment []byte

func (s Segment) SourcePort() uint16 {
	return binary.BigEndian.Uint16(s[0:2])
}

func (s Segment) SetSourcePort(v uint16) {
	binary.BigEndian.PutUint16(s[0:2], v)
}

func (s Segment) DestPort() uint16 {
	return binary.BigEndian.Uint16(s[2:4])
}

func (s Segment) SetDestPort(v uint16) {
	binary.BigEndian.PutUint16(s[2:4], v)
}

func (s Segment) Seq() uint32 {
	return binary.BigEndian.Uint32(s[4:8])
}

func (s Segment) SetSeq(v uint32) {
	binary.BigEndian.PutUint32(s[4:8], v)
}

func (s Segment) Ack() uint32 {
	return binary.BigEndian.Uint32(s[8:12])
}

func (s Segment) SetAck(v uint32) {
	binary.BigEndian.PutUint32(s[8:12], v)
}

// DataOffset decodes the header length field to bytes
func (s Segment) DataOffset() int {
	return int(s[12]>>4) * 4
}

// SetDataOffset takes 32-bit words, as the wire does
func (s Segment) SetDataOffset(words uint8) {
	s[12] = words << 4
}

func (s Segment) Flags() uint8 {
	return s[13]
}

func (s Segment) SetFlags(v uint8) {
	s[13] = v
}

func (s Segment) Window() uint16 {
	return binary.BigEndian.Uint16(s[14:16])
}

func (s Segment) SetWindow(v uint16) {
	binary.BigEndian.PutUint16(s[14:16], v)
}

func (s Segment) Checksum() uint16 {
	return binary.BigEndian.Uint16(s[16:18])
}

func (s Segment) SetChecksum(v uint16) {
	binary.BigEndian.PutUint16(s[16:18], v)
}

func (s Segment) UrgentPointer() uint16 {
	return binary.BigEndian.Uint16(s[18:20])
}

func (s Segment) SetUrgentPointer(v uint16) {
	binary.BigEndian.PutUint16(s[18:20], v)
}

// Payload returns the data region past the (possibly option-bearing) header.
// The caller must have validated DataOffset against the segment length.
func (s Segment) Payload() []byte {
	return s[s.DataOffset():]
}
