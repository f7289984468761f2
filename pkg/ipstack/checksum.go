package ipstack

import "encoding/binary"

// InternetChecksum computes the one's complement sum of 16-bit big-endian
// words, folding the carry back in after every add. A trailing odd byte is
// treated as if padded with a zero on the right.
//
// The return value is the folded sum, NOT complemented. Senders complement
// it before putting it on the wire; receivers sum over the data with the
// checksum field included and expect 0xffff.
func InternetChecksum(data []byte, initial uint16) uint16 {
	sum := uint32(initial)

	for len(data) >= 2 {
		sum += uint32(binary.BigEndian.Uint16(data))
		sum = (sum >> 16) + (sum & 0xffff)
		data = data[2:]
	}

	if len(data) == 1 {
		sum += uint32(data[0]) << 8
		sum = (sum >> 16) + (sum & 0xffff)
	}

	return uint16(sum)
}

// PseudoHeaderChecksum sums the TCP/UDP pseudo header (source address,
// destination address, zero, protocol, upper layer length) and returns the
// partial sum to seed the segment checksum with.
func PseudoHeaderChecksum(src, dst Address, proto Protocol, upperLen uint16) uint16 {
	pseudo := [12]byte{
		src[0], src[1], src[2], src[3],
		dst[0], dst[1], dst[2], dst[3],
		0,
		byte(proto),
		byte(upperLen >> 8),
		byte(upperLen & 0xff),
	}
	return InternetChecksum(pseudo[:], 0)
}
