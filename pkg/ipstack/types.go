package ipstack

import "fmt"

// Address is an IPv4 address as it appears on the wire
type Address [4]byte

func (a Address) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", a[0], a[1], a[2], a[3])
}

func (a Address) IsMulticast() bool {
	return a[0]&0xf0 == 0xe0
}

// BroadcastAll is the limited broadcast address 255.255.255.255
var BroadcastAll = Address{255, 255, 255, 255}

type Protocol uint8

const (
	ICMP_PROTOCOL Protocol = 1
	TCP_PROTOCOL  Protocol = 6
	UDP_PROTOCOL  Protocol = 17
)

// Config is the interface addressing, set once at bring-up and read-only
// afterwards
type Config struct {
	Address   Address
	Broadcast Address
	Gateway   Address
}

// AddressType classifies a destination relative to our config
type AddressType int

const (
	ADDR_UNICAST_US AddressType = iota
	ADDR_BROADCAST
	ADDR_MULTICAST
	ADDR_UNICAST_OTHER
)

// GetAddressType figures out if an address is a unicast to us, a
// broad/multicast, or somebody else's unicast
func (c *Config) GetAddressType(addr Address) AddressType {
	switch {
	case addr == c.Address:
		return ADDR_UNICAST_US
	case addr == c.Broadcast:
		return ADDR_BROADCAST
	case addr == BroadcastAll:
		return ADDR_BROADCAST
	case addr.IsMulticast():
		return ADDR_MULTICAST
	default:
		return ADDR_UNICAST_OTHER
	}
}
