package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/muurk/cabload/internal/logging"
)

// Serial is a Transport over a serial port.
//
// go.bug.st/serial has no way to ask how many bytes are waiting, so Serial
// keeps a small read-ahead buffer. BytesToRead tops it up with a short probe
// read and Read/ReadByte drain it first.
type Serial struct {
	name string
	mode *serial.Mode
	cfg  Config

	// openPort opens the device; replaced in tests
	openPort func(name string, mode *serial.Mode) (serial.Port, error)

	mu          sync.Mutex
	port        serial.Port
	state       State
	pending     []byte
	scratch     []byte
	readTimeout time.Duration
}

// NewSerial creates an unopened serial transport for the named device
func NewSerial(name string, cfg Config) *Serial {
	cfg = cfg.withDefaults()
	return &Serial{
		name: name,
		mode: &serial.Mode{
			BaudRate: cfg.BaudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		},
		cfg:      cfg,
		openPort: serial.Open,
		scratch:  make([]byte, readChunk),
	}
}

// WrapSerial adopts a port the caller has already opened. The first Open
// only marks it usable. Close closes the port, after which Open fails with
// ErrPortReleased since the caller's port cannot be reopened from here.
func WrapSerial(name string, port serial.Port, cfg Config) *Serial {
	s := NewSerial(name, cfg)
	s.openPort = func(string, *serial.Mode) (serial.Port, error) {
		if port == nil {
			return nil, ErrPortReleased
		}
		p := port
		port = nil
		return p, nil
	}
	return s
}

// Name returns the device name
func (s *Serial) Name() string {
	return s.name
}

// Open opens the serial device with 8N1 framing at the configured baud rate
func (s *Serial) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &Error{Kind: KindConnect, Op: "open", Addr: s.name, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateOpen && s.port != nil {
		return nil
	}
	if s.name == "" {
		return &Error{Kind: KindConnect, Op: "open", Addr: s.name, Err: fmt.Errorf("no serial device configured")}
	}

	s.state = StateConnecting
	port, err := s.openPort(s.name, s.mode)
	if err != nil {
		s.state = StateClosed
		return &Error{Kind: KindConnect, Op: "open", Addr: s.name, Err: err}
	}

	s.port = port
	s.pending = s.pending[:0]
	s.readTimeout = 0
	s.state = StateOpen
	logging.LogTransportEvent("serial", s.name, fmt.Sprintf("opened at %d baud", s.mode.BaudRate))
	return nil
}

// Close closes the port
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Serial) closeLocked() error {
	s.state = StateClosed
	s.pending = s.pending[:0]
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	logging.LogTransportEvent("serial", s.name, "closed")
	return err
}

// IsOpen reports whether the port is open
func (s *Serial) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateOpen && s.port != nil
}

// State returns the lifecycle state
func (s *Serial) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BytesToRead returns the number of buffered bytes, probing the port when the
// buffer is empty
func (s *Serial) BytesToRead() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		s.fillLocked(probeTimeout)
	}
	return len(s.pending)
}

// Read copies available bytes into p, waiting at most the receive timeout
func (s *Serial) Read(p []byte) int {
	if len(p) == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		s.fillLocked(s.cfg.ReceiveTimeout)
	}
	var n int
	s.pending, n = takePending(s.pending, p)
	return n
}

// ReadByte returns the next byte, waiting at most the receive timeout
func (s *Serial) ReadByte() (byte, bool) {
	var b [1]byte
	if s.Read(b[:]) == 0 {
		return 0, false
	}
	return b[0], true
}

// fillLocked issues one bounded read into the read-ahead buffer.
// Errors are logged and otherwise treated as "no data".
func (s *Serial) fillLocked(timeout time.Duration) {
	if s.port == nil || s.state != StateOpen {
		return
	}
	if s.readTimeout != timeout {
		if err := s.port.SetReadTimeout(timeout); err != nil {
			logging.Debug("Failed to set serial read timeout", zap.String("device", s.name), zap.Error(err))
			return
		}
		s.readTimeout = timeout
	}
	n, err := s.port.Read(s.scratch)
	if n > 0 {
		s.pending = append(s.pending, s.scratch[:n]...)
	}
	if err != nil {
		logging.Debug("Serial read error", zap.String("device", s.name), zap.Error(err))
	}
}

// Write sends p, waiting at most the send timeout. The port has no write
// deadline of its own, so the write runs in a goroutine and a timeout closes
// the port to release it.
func (s *Serial) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil || s.state != StateOpen {
		return &Error{Kind: KindIO, Op: "write", Addr: s.name, Err: ErrNotConnected}
	}

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	port := s.port
	go func() {
		n, err := port.Write(p)
		done <- result{n, err}
	}()

	timer := time.NewTimer(s.cfg.SendTimeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err == nil && r.n < len(p) {
			r.err = fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, r.n, len(p))
		}
		if r.err != nil {
			_ = s.closeLocked()
			return &Error{Kind: KindIO, Op: "write", Addr: s.name, Err: r.err}
		}
		logging.LogFrame("sent", p)
		return nil
	case <-timer.C:
		_ = s.closeLocked()
		return &Error{Kind: KindIO, Op: "write", Addr: s.name, Err: fmt.Errorf("timed out after %v", s.cfg.SendTimeout)}
	}
}

// DiscardInBuffer drops buffered input and flushes the driver's receive queue
func (s *Serial) DiscardInBuffer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = s.pending[:0]
	if s.port != nil {
		if err := s.port.ResetInputBuffer(); err != nil {
			logging.Debug("Failed to reset serial input buffer", zap.String("device", s.name), zap.Error(err))
		}
	}
}

// DiscardOutBuffer flushes the driver's transmit queue
func (s *Serial) DiscardOutBuffer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port != nil {
		if err := s.port.ResetOutputBuffer(); err != nil {
			logging.Debug("Failed to reset serial output buffer", zap.String("device", s.name), zap.Error(err))
		}
	}
}

// ListPorts returns the serial ports present on the system
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	return ports, nil
}
