package transport

import (
	"errors"
	"fmt"
	"net"
)

// ErrorKind represents the category of transport failure
type ErrorKind int

const (
	// KindConnect indicates the peer was refused, unreachable or not resolvable
	KindConnect ErrorKind = iota
	// KindTimeout indicates no peer materialized within the connect timeout
	KindTimeout
	// KindIO indicates a fatal write failure; the transport has been closed
	KindIO
)

// String returns a human-readable name for the error kind
func (k ErrorKind) String() string {
	switch k {
	case KindConnect:
		return "connect error"
	case KindTimeout:
		return "timeout"
	case KindIO:
		return "I/O error"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

var (
	// ErrNotConnected is returned by Write when there is no active channel
	ErrNotConnected = errors.New("not connected")
	// ErrShortWrite is returned when the channel accepted fewer bytes than given
	ErrShortWrite = errors.New("short write")
	// ErrPortReleased is returned when reopening an adopted serial port that was closed
	ErrPortReleased = errors.New("adopted serial port was closed")
)

// Error represents a transport failure
type Error struct {
	Kind ErrorKind // Category of error
	Op   string    // Operation that failed (dial, listen, accept, write, open)
	Addr string    // Device name or network address
	Err  error     // Underlying error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s %s: %v", e.Kind, e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("%s: %s %s", e.Kind, e.Op, e.Addr)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

func kindOf(err error) (ErrorKind, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return 0, false
}

// IsConnectError checks if an error is a connect failure
func IsConnectError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindConnect
}

// IsTimeoutError checks if an error is a connect timeout
func IsTimeoutError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindTimeout
}

// IsIOError checks if an error is a fatal write failure
func IsIOError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindIO
}

// isNetTimeout reports whether err is a network deadline expiry
func isNetTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// isDNSNotFound reports whether err says the host does not exist
func isDNSNotFound(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsNotFound
}
