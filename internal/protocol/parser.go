package protocol

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/cabload/internal/logging"
)

// NoTimeout disables the Decode deadline. The context still bounds the wait.
const NoTimeout time.Duration = -1

// maxNoiseLogged caps how many skipped bytes are kept for the debug log
const maxNoiseLogged = 64

// pollInterval is how long Decode sleeps when the source has nothing to offer
const pollInterval = 2 * time.Millisecond

// ByteSource is the read side of a transport as seen by the decoder.
// Neither method may block longer than the source's own receive timeout.
type ByteSource interface {
	// ReadByte returns false when no byte is available.
	ReadByte() (byte, bool)
	// Read returns the number of bytes copied into p, 0 when nothing is available.
	Read(p []byte) int
}

// Ack is a parsed controller acknowledgement.
type Ack struct {
	Address byte
	Index   uint16
}

func (a Ack) String() string {
	return fmt.Sprintf("Ack{addr=%d, index=%d}", a.Address, a.Index)
}

// Decode reads exactly one frame from src. It returns nil when no valid frame
// arrives before the deadline, the header does not match, the checksum is wrong,
// or ctx is done. Bytes preceding the first header byte are discarded.
func Decode(ctx context.Context, src ByteSource, h Header, timeout time.Duration) *Frame {
	frame, reason := decode(ctx, src, h, timeout)
	if frame == nil {
		logging.Debug("No valid frame decoded",
			zap.String("header", h.String()),
			zap.Duration("timeout", timeout),
			zap.String("reason", reason),
		)
		return nil
	}
	logging.LogFrame("received", frame.Raw)
	return frame
}

func decode(ctx context.Context, src ByteSource, h Header, timeout time.Duration) (*Frame, string) {
	r := &deadlineReader{ctx: ctx, src: src, infinite: timeout < 0}
	if !r.infinite {
		r.deadline = time.Now().Add(timeout)
	}

	magic := h.Magic()

	// Resynchronize on the first magic byte
	skipped := 0
	var noise []byte
	for {
		b, ok := r.next()
		if !ok {
			if skipped > 0 {
				logging.LogRawBytes("Noise without frame header", noise)
			}
			return nil, fmt.Sprintf("no header before deadline (%d noise bytes skipped)", skipped)
		}
		if b == magic[0] {
			break
		}
		skipped++
		if len(noise) < maxNoiseLogged {
			noise = append(noise, b)
		}
	}
	if skipped > 0 {
		logging.LogRawBytes("Skipped noise before frame header", noise)
	}

	raw := make([]byte, 0, MinFrameSize)
	raw = append(raw, magic[0])

	for i := 1; i < HeaderSize; i++ {
		b, ok := r.next()
		if !ok {
			return nil, "timeout inside header"
		}
		if b != magic[i] {
			return nil, fmt.Sprintf("header byte %d is 0x%02x, expected 0x%02x", i, b, magic[i])
		}
		raw = append(raw, b)
	}

	var fields [3]byte
	for i := range fields {
		b, ok := r.next()
		if !ok {
			return nil, "timeout reading command/length"
		}
		fields[i] = b
	}
	raw = append(raw, fields[:]...)

	cmd := fields[0]
	length := binary.LittleEndian.Uint16(fields[1:3])

	payload := make([]byte, length)
	if !r.readFull(payload) {
		return nil, fmt.Sprintf("timeout reading %d-byte payload", length)
	}
	raw = append(raw, payload...)

	chk, ok := r.next()
	if !ok {
		return nil, "timeout reading checksum"
	}
	raw = append(raw, chk)

	if want := Checksum(cmd, payload); chk != want {
		return nil, fmt.Sprintf("checksum mismatch: got 0x%02x, want 0x%02x", chk, want)
	}

	return &Frame{
		Header:   h,
		Command:  cmd,
		Length:   length,
		Payload:  payload,
		Checksum: chk,
		Raw:      raw,
	}, ""
}

// deadlineReader polls a ByteSource until data arrives or the deadline passes
type deadlineReader struct {
	ctx      context.Context
	src      ByteSource
	deadline time.Time
	infinite bool
}

func (r *deadlineReader) expired() bool {
	if r.ctx.Err() != nil {
		return true
	}
	return !r.infinite && !time.Now().Before(r.deadline)
}

func (r *deadlineReader) wait() {
	t := time.NewTimer(pollInterval)
	defer t.Stop()
	select {
	case <-r.ctx.Done():
	case <-t.C:
	}
}

func (r *deadlineReader) next() (byte, bool) {
	for {
		if r.ctx.Err() != nil {
			return 0, false
		}
		if b, ok := r.src.ReadByte(); ok {
			return b, true
		}
		if r.expired() {
			return 0, false
		}
		r.wait()
	}
}

func (r *deadlineReader) readFull(buf []byte) bool {
	n := 0
	for n < len(buf) {
		if r.ctx.Err() != nil {
			return false
		}
		k := r.src.Read(buf[n:])
		n += k
		if n == len(buf) {
			break
		}
		if k == 0 {
			if r.expired() {
				return false
			}
			r.wait()
		}
	}
	return true
}

// ParseAck extracts address and frame index from a 0xFC acknowledgement.
// The index is taken from the trailing two bytes of the payload.
func ParseAck(f *Frame) (Ack, error) {
	if f == nil {
		return Ack{}, fmt.Errorf("nil frame")
	}
	if f.Command != CmdData {
		return Ack{}, fmt.Errorf("not an ack: command %s", CommandName(f.Command))
	}
	if len(f.Payload) < AckPayloadSize {
		return Ack{}, fmt.Errorf("ack payload too short: %d bytes (minimum %d)", len(f.Payload), AckPayloadSize)
	}
	return Ack{
		Address: f.Payload[0],
		Index:   binary.LittleEndian.Uint16(f.Payload[len(f.Payload)-2:]),
	}, nil
}

// IsPingEcho reports whether f echoes the ping payload that was sent.
func IsPingEcho(f *Frame, sent []byte) bool {
	return f != nil && f.Command == CmdPing && bytes.Equal(f.Payload, sent)
}

// IsInitAck reports whether f acknowledges an Init for addr.
func IsInitAck(f *Frame, addr byte) bool {
	return IsDataAck(f, addr, 0)
}

// IsDataAck reports whether f acknowledges the data frame index for addr.
func IsDataAck(f *Frame, addr byte, index uint16) bool {
	ack, err := ParseAck(f)
	if err != nil {
		return false
	}
	return ack.Address == addr && ack.Index == index
}
