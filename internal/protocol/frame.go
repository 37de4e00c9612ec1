package protocol

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Frame layout constants
const (
	HeaderSize     = 3                             // Magic bytes
	PrefixSize     = HeaderSize + 3                // Magic + command + 2-byte length
	MinFrameSize   = PrefixSize + 1                // Prefix + checksum, empty payload
	MaxPayloadSize = 0xFFFF                        // Length field is 16 bits
	MaxFrameSize   = MinFrameSize + MaxPayloadSize // Largest frame on the wire
)

// Command bytes
const (
	CmdPing byte = 0x04 // Liveness probe, echoed by the controller
	CmdInit byte = 0xFB // Start of transfer
	CmdData byte = 0xFC // Firmware block, also used for acknowledgements
)

// Header selects the 3-byte magic that opens every frame.
type Header int

const (
	HeaderEMC Header = iota // 'E','M','C'
	HeaderMCE               // 'M','C','E'
)

var headerMagic = map[Header][HeaderSize]byte{
	HeaderEMC: {'E', 'M', 'C'},
	HeaderMCE: {'M', 'C', 'E'},
}

// Magic returns the header bytes for h. Unknown values fall back to EMC.
func (h Header) Magic() [HeaderSize]byte {
	if m, ok := headerMagic[h]; ok {
		return m
	}
	return headerMagic[HeaderEMC]
}

func (h Header) String() string {
	switch h {
	case HeaderEMC:
		return "EMC"
	case HeaderMCE:
		return "MCE"
	default:
		return fmt.Sprintf("Header(%d)", int(h))
	}
}

// ParseHeader converts "EMC" or "MCE" (any case) to a Header.
func ParseHeader(s string) (Header, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "EMC", "":
		return HeaderEMC, nil
	case "MCE":
		return HeaderMCE, nil
	default:
		return HeaderEMC, fmt.Errorf("unknown frame header %q (expected EMC or MCE)", s)
	}
}

// Frame is one decoded or constructed protocol message.
type Frame struct {
	Header   Header
	Command  byte
	Length   uint16
	Payload  []byte
	Checksum byte
	Raw      []byte // Exact wire bytes, for diagnostics
}

// Checksum returns (cmd + lenLo + lenHi + sum(payload)) mod 256.
func Checksum(cmd byte, payload []byte) byte {
	n := len(payload)
	sum := cmd + byte(n) + byte(n>>8)
	for _, b := range payload {
		sum += b
	}
	return sum
}

// Encode builds the wire representation of a frame.
func Encode(h Header, cmd byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload too large: %d bytes (max %d)", len(payload), MaxPayloadSize)
	}

	magic := h.Magic()
	out := make([]byte, 0, MinFrameSize+len(payload))
	out = append(out, magic[:]...)
	out = append(out, cmd, byte(len(payload)), byte(len(payload)>>8))
	out = append(out, payload...)
	out = append(out, Checksum(cmd, payload))

	return out, nil
}

// NewFrame encodes a frame and returns it with Raw populated.
func NewFrame(h Header, cmd byte, payload []byte) (*Frame, error) {
	raw, err := Encode(h, cmd, payload)
	if err != nil {
		return nil, err
	}
	return &Frame{
		Header:   h,
		Command:  cmd,
		Length:   uint16(len(payload)),
		Payload:  raw[PrefixSize : PrefixSize+len(payload)],
		Checksum: raw[len(raw)-1],
		Raw:      raw,
	}, nil
}

// Valid reports whether the stored checksum matches the command and payload.
func (f *Frame) Valid() bool {
	return int(f.Length) == len(f.Payload) && f.Checksum == Checksum(f.Command, f.Payload)
}

// CommandName returns a human-readable name for a command byte.
func CommandName(cmd byte) string {
	switch cmd {
	case CmdPing:
		return "Ping"
	case CmdInit:
		return "Init"
	case CmdData:
		return "Data"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", cmd)
	}
}

// String returns a debug representation of the frame
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{header=%s, cmd=%s, len=%d, chk=0x%02x, payload=%s}",
		f.Header, CommandName(f.Command), f.Length, f.Checksum, hexPreview(f.Payload))
}

func hexPreview(b []byte) string {
	if len(b) > 16 {
		return hex.EncodeToString(b[:16]) + "..."
	}
	return hex.EncodeToString(b)
}
