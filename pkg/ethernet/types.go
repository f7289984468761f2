package ethernet

import "fmt"

// MACAddr is an ethernet hardware address
type MACAddr [6]byte

func (addr MACAddr) String() string {
	return fmt.Sprintf(
		"%02x:%02x:%02x:%02x:%02x:%02x",
		addr[0], addr[1], addr[2],
		addr[3], addr[4], addr[5],
	)
}

// BroadcastMAC is the all-ones layer 2 broadcast address
var BroadcastMAC = MACAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

type EtherType uint16

const (
	ETHERTYPE_IPV4 EtherType = 0x0800
	ETHERTYPE_ARP  EtherType = 0x0806
)

const (
	// HEADER_SIZE is dst mac + src mac + ethertype
	HEADER_SIZE = 14

	// PAYLOAD_MTU is the max ethernet payload we send or accept. Frame
	// buffers are always this big regardless of the length on the wire,
	// so header parsing can read up to a declared header length without
	// running off the end of the buffer.
	PAYLOAD_MTU = 1500

	FRAME_SIZE = HEADER_SIZE + PAYLOAD_MTU
)
