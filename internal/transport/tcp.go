package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/cabload/internal/logging"
)

// Role is the TCP connection role
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// acceptRetryDelay is the pause after a transient Accept failure
const acceptRetryDelay = 100 * time.Millisecond

// maxDiscardReads bounds the socket drain in DiscardInBuffer
const maxDiscardReads = 64

// TCP is a Transport over a TCP connection, either dialed (client role) or
// accepted (server role).
type TCP struct {
	host string
	port int
	role Role
	cfg  Config

	// lookupIP resolves host names; replaced in tests
	lookupIP func(ctx context.Context, host string) ([]net.IPAddr, error)

	// mu guards everything below, including the server-side connection swap
	mu         sync.Mutex
	state      State
	conn       net.Conn
	listener   net.Listener
	acceptDone chan struct{}
	peerReady  chan struct{} // server role: closed while a client is installed
	pending    []byte
	scratch    []byte
}

// NewTCP creates an unopened TCP transport. The role follows IsServerHost.
func NewTCP(host string, port int, cfg Config) *TCP {
	role := RoleClient
	if IsServerHost(host) {
		role = RoleServer
	}
	return &TCP{
		host:     host,
		port:     port,
		role:     role,
		cfg:      cfg.withDefaults(),
		lookupIP: net.DefaultResolver.LookupIPAddr,
		scratch:  make([]byte, readChunk),
	}
}

// Role returns the connection role
func (t *TCP) Role() Role {
	return t.role
}

// Addr returns the configured endpoint as host:port
func (t *TCP) Addr() string {
	host := t.host
	if t.role == RoleServer {
		host = ""
	}
	return net.JoinHostPort(host, strconv.Itoa(t.port))
}

// ListenAddr returns the listener address in server role, or nil
func (t *TCP) ListenAddr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// RemoteAddr returns the current peer address, or nil
func (t *TCP) RemoteAddr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	return t.conn.RemoteAddr()
}

// Open dials the peer (client role) or listens and waits for the first client
// (server role). A server whose client has gone away keeps its listener and
// waits up to ConnectTimeout for the next one.
func (t *TCP) Open(ctx context.Context) error {
	t.mu.Lock()
	if t.state == StateOpen {
		if t.role != RoleServer || t.conn != nil {
			t.mu.Unlock()
			return nil
		}
		ready, addr := t.peerReady, t.Addr()
		t.mu.Unlock()
		logging.LogTransportEvent("tcp-server", addr, "waiting_for_client")
		return t.waitPeer(ctx, ready, addr)
	}
	t.state = StateConnecting
	t.mu.Unlock()

	if t.role == RoleServer {
		return t.openServer(ctx)
	}
	return t.openClient(ctx)
}

func (t *TCP) openServer(ctx context.Context) error {
	addr := t.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		t.setState(StateClosed)
		return &Error{Kind: KindConnect, Op: "listen", Addr: addr, Err: err}
	}

	ready := make(chan struct{})
	done := make(chan struct{})
	t.mu.Lock()
	t.listener = ln
	t.acceptDone = done
	t.peerReady = ready
	t.mu.Unlock()

	logging.LogTransportEvent("tcp-server", ln.Addr().String(), "listening")
	go t.acceptLoop(ln, done)

	if err := t.waitPeer(ctx, ready, addr); err != nil {
		_ = t.Close()
		return err
	}
	t.mu.Lock()
	if t.listener == ln {
		t.state = StateOpen
	}
	t.mu.Unlock()
	return nil
}

// waitPeer blocks until ready is closed by acceptLoop, ConnectTimeout passes
// or ctx is done.
func (t *TCP) waitPeer(ctx context.Context, ready <-chan struct{}, addr string) error {
	var timeout <-chan time.Time
	if t.cfg.ConnectTimeout > 0 {
		timer := time.NewTimer(t.cfg.ConnectTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ready:
		return nil
	case <-timeout:
		return &Error{Kind: KindTimeout, Op: "accept", Addr: addr,
			Err: fmt.Errorf("no client connected within %v", t.cfg.ConnectTimeout)}
	case <-ctx.Done():
		return &Error{Kind: KindConnect, Op: "accept", Addr: addr, Err: ctx.Err()}
	}
}

// acceptLoop accepts clients until the listener is closed. Each new client
// replaces the active one.
func (t *TCP) acceptLoop(ln net.Listener, done chan struct{}) {
	defer close(done)

	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logging.Warn("Accept failed", zap.String("addr", ln.Addr().String()), zap.Error(err))
			time.Sleep(acceptRetryDelay)
			continue
		}
		tuneConn(c)

		t.mu.Lock()
		if t.listener != ln {
			t.mu.Unlock()
			_ = c.Close()
			return
		}
		old := t.conn
		t.conn = c
		t.pending = t.pending[:0]
		select {
		case <-t.peerReady:
		default:
			close(t.peerReady)
		}
		t.mu.Unlock()

		if old != nil {
			_ = old.Close()
			logging.LogTransportEvent("tcp-server", old.RemoteAddr().String(), "replaced")
		}
		logging.LogTransportEvent("tcp-server", c.RemoteAddr().String(), "client_connected")
	}
}

func (t *TCP) openClient(ctx context.Context) error {
	dialer := &net.Dialer{
		KeepAliveConfig: net.KeepAliveConfig{
			Enable:   true,
			Idle:     t.cfg.KeepAliveIdle,
			Interval: t.cfg.KeepAliveInterval,
		},
	}
	if t.cfg.ConnectTimeout > 0 {
		dialer.Timeout = t.cfg.ConnectTimeout
	}

	port := strconv.Itoa(t.port)
	addr := net.JoinHostPort(t.host, port)
	var lastErr error

	for attempt := 1; attempt <= t.cfg.ConnectAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				t.setState(StateClosed)
				return &Error{Kind: KindConnect, Op: "dial", Addr: addr, Err: ctx.Err()}
			case <-time.After(t.cfg.ConnectRetryDelay):
			}
		}

		ip, err := t.resolve(ctx)
		if err != nil {
			if isDNSNotFound(err) {
				t.setState(StateClosed)
				return &Error{Kind: KindConnect, Op: "resolve", Addr: t.host, Err: err}
			}
			lastErr = err
			logging.Warn("Resolve failed", zap.String("host", t.host), zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		addr = net.JoinHostPort(ip, port)
		c, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			tuneConn(c)
			t.mu.Lock()
			t.conn = c
			t.pending = t.pending[:0]
			t.state = StateOpen
			t.mu.Unlock()
			logging.LogTransportEvent("tcp-client", addr, "connected")
			return nil
		}

		lastErr = err
		logging.Warn("Connect attempt failed",
			zap.String("addr", addr),
			zap.Int("attempt", attempt),
			zap.Int("attempts", t.cfg.ConnectAttempts),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			break
		}
	}

	t.setState(StateClosed)
	kind := KindConnect
	if isNetTimeout(lastErr) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Op: "dial", Addr: addr,
		Err: fmt.Errorf("gave up after %d attempts: %w", t.cfg.ConnectAttempts, lastErr)}
}

// resolve maps the host to a dialable IP. localhost is pinned to IPv4 and
// literals are used as given. Names take the first IPv4 answer.
func (t *TCP) resolve(ctx context.Context) (string, error) {
	if strings.EqualFold(t.host, "localhost") {
		return "127.0.0.1", nil
	}
	if ip := net.ParseIP(t.host); ip != nil {
		return t.host, nil
	}

	addrs, err := t.lookupIP(ctx, t.host)
	if err != nil {
		return "", err
	}
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return v4.String(), nil
		}
	}
	if len(addrs) > 0 {
		return addrs[0].IP.String(), nil
	}
	return "", &net.DNSError{Err: "no addresses", Name: t.host, IsNotFound: true}
}

// tuneConn disables Nagle so small frames go out immediately
func tuneConn(c net.Conn) {
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
}

func (t *TCP) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// Close closes the connection and, in server role, the listener
func (t *TCP) Close() error {
	t.mu.Lock()
	err := t.closeLocked()
	done := t.acceptDone
	t.acceptDone = nil
	t.mu.Unlock()

	if done != nil {
		<-done
	}
	return err
}

func (t *TCP) closeLocked() error {
	var err error
	if t.listener != nil {
		err = t.listener.Close()
		t.listener = nil
	}
	if t.conn != nil {
		if cerr := t.conn.Close(); err == nil {
			err = cerr
		}
		t.conn = nil
		logging.LogTransportEvent("tcp-"+t.role.String(), t.Addr(), "closed")
	}
	t.pending = t.pending[:0]
	t.state = StateClosed
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

// dropConnLocked forgets a connection the peer has closed. A server keeps
// listening for the next client.
func (t *TCP) dropConnLocked(cause error) {
	if t.conn == nil {
		return
	}
	logging.LogTransportEvent("tcp-"+t.role.String(), t.conn.RemoteAddr().String(), "peer_disconnected")
	logging.Debug("Peer read error", zap.Error(cause))
	_ = t.conn.Close()
	t.conn = nil
	if t.role == RoleClient {
		t.state = StateClosed
		return
	}
	t.peerReady = make(chan struct{})
}

// IsOpen reports whether a peer is connected. It probes the socket so a peer
// that has gone away is noticed.
func (t *TCP) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateOpen || t.conn == nil {
		return false
	}
	if len(t.pending) == 0 {
		t.fillLocked(probeTimeout)
	}
	return t.conn != nil
}

// State returns the lifecycle state
func (t *TCP) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// BytesToRead returns the number of buffered bytes, probing the socket when
// the buffer is empty
func (t *TCP) BytesToRead() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) == 0 {
		t.fillLocked(probeTimeout)
	}
	return len(t.pending)
}

// Read copies available bytes into p, waiting at most the receive timeout
func (t *TCP) Read(p []byte) int {
	if len(p) == 0 {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) == 0 {
		t.fillLocked(t.cfg.ReceiveTimeout)
	}
	var n int
	t.pending, n = takePending(t.pending, p)
	return n
}

// ReadByte returns the next byte, waiting at most the receive timeout
func (t *TCP) ReadByte() (byte, bool) {
	var b [1]byte
	if t.Read(b[:]) == 0 {
		return 0, false
	}
	return b[0], true
}

// fillLocked issues one deadline-bounded read into the read-ahead buffer
func (t *TCP) fillLocked(timeout time.Duration) {
	if t.conn == nil {
		return
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.dropConnLocked(err)
		return
	}
	n, err := t.conn.Read(t.scratch)
	if n > 0 {
		t.pending = append(t.pending, t.scratch[:n]...)
	}
	if err != nil && !isNetTimeout(err) {
		t.dropConnLocked(err)
	}
}

// Write sends p to the current peer. Any failure closes the transport.
func (t *TCP) Write(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		_ = t.closeLocked()
		return &Error{Kind: KindIO, Op: "write", Addr: t.Addr(), Err: ErrNotConnected}
	}

	remote := t.conn.RemoteAddr().String()
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.cfg.SendTimeout)); err != nil {
		_ = t.closeLocked()
		return &Error{Kind: KindIO, Op: "write", Addr: remote, Err: err}
	}
	n, err := t.conn.Write(p)
	if err == nil && n < len(p) {
		err = fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(p))
	}
	if err != nil {
		_ = t.closeLocked()
		return &Error{Kind: KindIO, Op: "write", Addr: remote, Err: err}
	}
	logging.LogFrame("sent", p)
	return nil
}

// DiscardInBuffer drops buffered input and drains whatever the socket
// already holds
func (t *TCP) DiscardInBuffer() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := 0; i < maxDiscardReads; i++ {
		t.pending = t.pending[:0]
		t.fillLocked(probeTimeout)
		if len(t.pending) == 0 {
			return
		}
	}
	t.pending = t.pending[:0]
}

// DiscardOutBuffer is a no-op: Write hands every byte to the kernel before
// returning.
func (t *TCP) DiscardOutBuffer() {}
