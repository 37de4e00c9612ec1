// Package discovery finds network-attached cabinet controllers and serial
// bridges using multicast DNS.
//
// Bridges advertise the raw TCP port that carries the frame stream under a
// service type, "_cabload._tcp" unless configured otherwise. An endpoint's
// TXT record may carry hints such as "address=3" or "header=MCE".
//
// # Usage Example
//
//	s := discovery.NewScanner("")
//	endpoints, err := s.Scan(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, ep := range endpoints {
//	    fmt.Println(ep)
//	}
//
// # Network Requirements
//
//   - Requires multicast support on the network interface
//   - Endpoints must be on the same local network segment
//   - Firewall must allow mDNS (UDP port 5353)
package discovery
