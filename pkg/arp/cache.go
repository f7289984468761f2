// Package arp keeps the IPv4-to-MAC neighbor cache the transmit path
// resolves against. Geometry is fixed at compile time; entries are evicted
// by overwrite, never by allocation.
package arp

import (
	log "github.com/sirupsen/logrus"

	"staticnet/pkg/ethernet"
	"staticnet/pkg/ipstack"
)

const (
	ARP_CACHE_WAYS  = 2
	ARP_CACHE_LINES = 16
)

type cacheEntry struct {
	valid bool
	ip    ipstack.Address
	mac   ethernet.MACAddr
}

type cacheWay struct {
	lines [ARP_CACHE_LINES]cacheEntry
}

// Cache is a small set-associative neighbor table. Single threaded like the
// rest of the stack: Insert runs from the ARP RX path, Lookup from TX.
type Cache struct {
	ways [ARP_CACHE_WAYS]cacheWay
}

func InitCache() *Cache {
	return &Cache{}
}

func hashAddr(ip ipstack.Address) int {
	h := uint16(ip[0])<<8 | uint16(ip[1])
	h ^= uint16(ip[2])<<8 | uint16(ip[3])
	return int(h % ARP_CACHE_LINES)
}

// Lookup resolves ip to a MAC address, reporting whether we know it
func (c *Cache) Lookup(ip ipstack.Address) (ethernet.MACAddr, bool) {
	line := hashAddr(ip)
	for w := range c.ways {
		e := &c.ways[w].lines[line]
		if e.valid && e.ip == ip {
			return e.mac, true
		}
	}
	return ethernet.MACAddr{}, false
}

// Insert records a neighbor. An existing entry for the same IP is
// refreshed in place; otherwise the first free way wins, and with the line
// full we overwrite way 0 (oldest-ish; good enough for a tiny cache).
func (c *Cache) Insert(ip ipstack.Address, mac ethernet.MACAddr) {
	line := hashAddr(ip)

	for w := range c.ways {
		e := &c.ways[w].lines[line]
		if e.valid && e.ip == ip {
			e.mac = mac
			return
		}
	}

	for w := range c.ways {
		e := &c.ways[w].lines[line]
		if !e.valid {
			*e = cacheEntry{valid: true, ip: ip, mac: mac}
			return
		}
	}

	log.WithField("ip", ip).Debug("arp cache line full, evicting")
	c.ways[0].lines[line] = cacheEntry{valid: true, ip: ip, mac: mac}
}
