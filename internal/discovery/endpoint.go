package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Endpoint is a controller or serial bridge advertised over mDNS.
type Endpoint struct {
	// Instance is the advertised service instance name (e.g. "cabinet-3")
	Instance string

	// Hostname is the mDNS hostname (e.g. "bridge-3.local.")
	Hostname string

	// IP is the address to dial, IPv4 when one was advertised
	IP string

	// Port is the raw TCP port carrying the frame stream
	Port int

	// Metadata holds the TXT record as key/value pairs.
	// Bridges usually publish "address=N" and "header=EMC".
	Metadata map[string]string

	DiscoveredAt time.Time
}

// String returns a human-readable description of the endpoint.
func (e *Endpoint) String() string {
	return fmt.Sprintf("%s (%s) at %s", e.Instance, e.Hostname, e.Address())
}

// Address returns host:port suitable for net.Dial.
func (e *Endpoint) Address() string {
	return net.JoinHostPort(e.IP, strconv.Itoa(e.Port))
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (e *Endpoint) GetMetadata(key string) string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata[key]
}

// CabinetAddress returns the cabinet address from the TXT record, or 0
// when the endpoint does not publish a valid one.
func (e *Endpoint) CabinetAddress() int {
	n, err := strconv.Atoi(e.GetMetadata("address"))
	if err != nil || n < 1 {
		return 0
	}
	return n
}
