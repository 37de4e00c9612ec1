package protocol

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// captureSource serves a recorded byte stream to the decoder
type captureSource struct {
	data []byte
	pos  int
}

func (s *captureSource) ReadByte() (byte, bool) {
	if s.pos >= len(s.data) {
		return 0, false
	}
	b := s.data[s.pos]
	s.pos++
	return b, true
}

func (s *captureSource) Read(p []byte) int {
	n := copy(p, s.data[s.pos:])
	s.pos += n
	return n
}

// DecodeCapture extracts every valid frame with header h from a recorded
// byte stream, in order. Decoding restarts at each occurrence of the magic,
// so a corrupt frame never hides the one after it. skipped counts the bytes
// that were not part of a valid frame.
func DecodeCapture(data []byte, h Header) (frames []*Frame, skipped int) {
	magic := h.Magic()
	src := &captureSource{data: data}
	used := 0

	for src.pos < len(data) {
		idx := bytes.Index(data[src.pos:], magic[:])
		if idx < 0 {
			break
		}
		start := src.pos + idx
		src.pos = start

		f := Decode(context.Background(), src, h, 0)
		if f == nil {
			src.pos = start + 1
			continue
		}
		frames = append(frames, f)
		used += len(f.Raw)
	}
	return frames, len(data) - used
}

// ParseHexCapture converts a hex dump into bytes. Whitespace, "0x"
// prefixes and '#' comments are ignored.
func ParseHexCapture(text string) ([]byte, error) {
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		for _, tok := range strings.Fields(line) {
			tok = strings.TrimPrefix(strings.TrimPrefix(tok, "0x"), "0X")
			b.WriteString(tok)
		}
	}
	data, err := hex.DecodeString(b.String())
	if err != nil {
		return nil, fmt.Errorf("invalid hex capture: %w", err)
	}
	return data, nil
}

// Describe returns a one-line summary of what f carries. Data frames and
// acknowledgements share a command byte and are told apart by length.
func Describe(f *Frame) string {
	p := f.Payload
	switch f.Command {
	case CmdPing:
		if len(p) >= 1 {
			return fmt.Sprintf("ping data=0x%02X", p[0])
		}
	case CmdInit:
		if len(p) == InitPayloadSize {
			return fmt.Sprintf("init addr=%d load=0x%08X size=%d block=%d",
				p[0], binary.LittleEndian.Uint32(p[1:5]), binary.LittleEndian.Uint32(p[5:9]),
				binary.LittleEndian.Uint16(p[9:11]))
		}
	case CmdData:
		idx := func() uint16 { return binary.LittleEndian.Uint16(p[len(p)-2:]) }
		switch {
		case len(p) == AckPayloadSize:
			return fmt.Sprintf("ack addr=%d index=%d", p[0], idx())
		case len(p) > AckPayloadSize:
			return fmt.Sprintf("data addr=%d index=%d bytes=%d", p[0], idx(), len(p)-AckPayloadSize)
		}
	}
	return fmt.Sprintf("%s, %d payload bytes", CommandName(f.Command), len(p))
}
