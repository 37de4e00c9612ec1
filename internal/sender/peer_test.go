package sender

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/muurk/cabload/internal/protocol"
	"github.com/muurk/cabload/internal/transport"
)

// simPeer is an in-memory transport with a simulated controller behind it.
// Every Write is handed to respond; whatever it returns becomes readable.
type simPeer struct {
	mu       sync.Mutex
	open     bool
	rx       []byte
	writes   [][]byte
	writeErr error
	respond  func(frame []byte) []byte
	onWrite  func(n int)
	discards int
}

func newSimPeer(respond func(frame []byte) []byte) *simPeer {
	return &simPeer{open: true, respond: respond}
}

func (p *simPeer) Open(context.Context) error {
	p.mu.Lock()
	p.open = true
	p.mu.Unlock()
	return nil
}

func (p *simPeer) Close() error {
	p.mu.Lock()
	p.open = false
	p.mu.Unlock()
	return nil
}

func (p *simPeer) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

func (p *simPeer) State() transport.State {
	if p.IsOpen() {
		return transport.StateOpen
	}
	return transport.StateClosed
}

func (p *simPeer) BytesToRead() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.rx)
}

func (p *simPeer) Read(b []byte) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := copy(b, p.rx)
	p.rx = p.rx[n:]
	return n
}

func (p *simPeer) ReadByte() (byte, bool) {
	var b [1]byte
	if p.Read(b[:]) == 0 {
		return 0, false
	}
	return b[0], true
}

func (p *simPeer) Write(b []byte) error {
	p.mu.Lock()
	if p.writeErr != nil {
		p.open = false
		err := p.writeErr
		p.mu.Unlock()
		return &transport.Error{Kind: transport.KindIO, Op: "write", Addr: "sim", Err: err}
	}
	frame := append([]byte(nil), b...)
	p.writes = append(p.writes, frame)
	n := len(p.writes)
	respond := p.respond
	onWrite := p.onWrite
	p.mu.Unlock()

	var reply []byte
	if respond != nil {
		reply = respond(frame)
	}
	p.mu.Lock()
	p.rx = append(p.rx, reply...)
	p.mu.Unlock()

	if onWrite != nil {
		onWrite(n)
	}
	return nil
}

func (p *simPeer) DiscardInBuffer() {
	p.mu.Lock()
	p.rx = nil
	p.discards++
	p.mu.Unlock()
}

func (p *simPeer) DiscardOutBuffer() {}

func (p *simPeer) sent() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.writes...)
}

// sentFrame is a written frame split into its fields
type sentFrame struct {
	cmd     byte
	payload []byte
}

func splitFrame(raw []byte) sentFrame {
	n := int(binary.LittleEndian.Uint16(raw[4:6]))
	return sentFrame{cmd: raw[3], payload: raw[protocol.PrefixSize : protocol.PrefixSize+n]}
}

// dataIndex returns the frame index carried in a data payload
func dataIndex(payload []byte) uint16 {
	return binary.LittleEndian.Uint16(payload[len(payload)-2:])
}

func mustEncode(h protocol.Header, cmd byte, payload []byte) []byte {
	b, err := protocol.Encode(h, cmd, payload)
	if err != nil {
		panic(err)
	}
	return b
}

// controller answers like a well-behaved cabinet: pings are echoed, Init is
// acknowledged with index 0, and each data frame with its own index.
func controller(h protocol.Header) func([]byte) []byte {
	return func(raw []byte) []byte {
		f := splitFrame(raw)
		addr := f.payload[0]
		switch f.cmd {
		case protocol.CmdPing:
			return mustEncode(h, protocol.CmdPing, f.payload)
		case protocol.CmdInit:
			return mustEncode(h, protocol.CmdData, protocol.AckPayload(addr, 0))
		case protocol.CmdData:
			return mustEncode(h, protocol.CmdData, protocol.AckPayload(addr, dataIndex(f.payload)))
		}
		return nil
	}
}

// recorder is a Sink that keeps everything it is given
type recorder struct {
	mu       sync.Mutex
	logs     []string
	progress []ProgressEvent
}

func (r *recorder) OnLog(message string) {
	r.mu.Lock()
	r.logs = append(r.logs, message)
	r.mu.Unlock()
}

func (r *recorder) OnProgress(ev ProgressEvent) {
	r.mu.Lock()
	r.progress = append(r.progress, ev)
	r.mu.Unlock()
}
