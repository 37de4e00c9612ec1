// Package transport provides the byte channels the loader talks over.
//
// A Transport is a uniform byte stream with non-blocking reads and blocking,
// deadline-bounded writes. Three implementations are chosen once, at
// construction, from the connection settings:
//
//   - Serial: wraps a go.bug.st/serial port (RS-232 adapter, USB CDC)
//   - TCP client: dials the controller or a serial-to-Ethernet bridge
//   - TCP server: listens and lets the controller dial in
//
// # Read Semantics
//
// Read and ReadByte never block longer than the receive timeout and never
// return errors. "Nothing yet", a read timeout and a transient I/O error all
// look the same to the caller (0 bytes, or ReadByte reporting false); the
// sender's retry loop decides what that means.
//
// # Write Semantics
//
// Write is one-shot. A failed or timed-out write closes the transport and
// returns an *Error of kind KindIO. Nothing is retried below the sender.
//
// # TCP Roles
//
// The host string selects the role. Empty, "0.0.0.0", "*", "Any" and
// "Server" (any case) listen; anything else dials.
//
// In server role the accept loop keeps running after Open returns. Every new
// connection replaces the active one and the previous peer is disconnected. All
// reads, writes and the swap share one mutex, so a transfer in progress simply
// continues against whichever peer is current.
//
// # Usage Example
//
//	t, err := transport.New(transport.Config{Host: "192.168.1.40", Port: 4001})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := t.Open(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer t.Close()
package transport
