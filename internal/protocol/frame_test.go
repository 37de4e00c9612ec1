package protocol

import (
	"bytes"
	"context"
	"math/rand"
	"testing"
)

// sliceSource serves bytes from memory; chunk limits bytes per Read (0 = unlimited)
type sliceSource struct {
	data  []byte
	pos   int
	chunk int
}

func (s *sliceSource) ReadByte() (byte, bool) {
	if s.pos >= len(s.data) {
		return 0, false
	}
	b := s.data[s.pos]
	s.pos++
	return b, true
}

func (s *sliceSource) Read(p []byte) int {
	n := len(s.data) - s.pos
	if n > len(p) {
		n = len(p)
	}
	if s.chunk > 0 && n > s.chunk {
		n = s.chunk
	}
	copy(p, s.data[s.pos:s.pos+n])
	s.pos += n
	return n
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name    string
		header  Header
		cmd     byte
		payload []byte
		want    []byte
	}{
		{
			name:    "EMC ping",
			header:  HeaderEMC,
			cmd:     CmdPing,
			payload: []byte{0x55, 0x01},
			want:    []byte{'E', 'M', 'C', 0x04, 0x02, 0x00, 0x55, 0x01, 0x5C},
		},
		{
			name:    "MCE ping",
			header:  HeaderMCE,
			cmd:     CmdPing,
			payload: []byte{0x55, 0x01},
			want:    []byte{'M', 'C', 'E', 0x04, 0x02, 0x00, 0x55, 0x01, 0x5C},
		},
		{
			name:    "empty payload",
			header:  HeaderEMC,
			cmd:     CmdData,
			payload: nil,
			want:    []byte{'E', 'M', 'C', 0xFC, 0x00, 0x00, 0xFC},
		},
		{
			name:    "checksum wraps",
			header:  HeaderEMC,
			cmd:     CmdInit,
			payload: []byte{0xFF, 0xFF},
			// 0xFB + 0x02 + 0x00 + 0xFF + 0xFF = 0x2FB
			want: []byte{'E', 'M', 'C', 0xFB, 0x02, 0x00, 0xFF, 0xFF, 0xFB},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.header, tt.cmd, tt.payload)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Encode() = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestEncode_LengthLittleEndian(t *testing.T) {
	payload := make([]byte, 0x0123)
	got, err := Encode(HeaderEMC, CmdData, payload)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if got[4] != 0x23 || got[5] != 0x01 {
		t.Errorf("length bytes = %02X %02X, want 23 01", got[4], got[5])
	}
	if len(got) != MinFrameSize+len(payload) {
		t.Errorf("frame length = %d, want %d", len(got), MinFrameSize+len(payload))
	}
}

func TestEncode_PayloadTooLarge(t *testing.T) {
	if _, err := Encode(HeaderEMC, CmdData, make([]byte, MaxPayloadSize+1)); err == nil {
		t.Error("Encode() should reject payloads over 65535 bytes")
	}
	if _, err := Encode(HeaderEMC, CmdData, make([]byte, MaxPayloadSize)); err != nil {
		t.Errorf("Encode() error = %v for maximum payload", err)
	}
}

func TestParseHeader(t *testing.T) {
	tests := []struct {
		in      string
		want    Header
		wantErr bool
	}{
		{"EMC", HeaderEMC, false},
		{"emc", HeaderEMC, false},
		{"", HeaderEMC, false},
		{"MCE", HeaderMCE, false},
		{" mce ", HeaderMCE, false},
		{"CEM", HeaderEMC, true},
	}

	for _, tt := range tests {
		got, err := ParseHeader(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseHeader(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseHeader(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewFrame(t *testing.T) {
	f, err := NewFrame(HeaderMCE, CmdInit, InitPayload(2, 0x08000000, 1024, 256))
	if err != nil {
		t.Fatalf("NewFrame() error = %v", err)
	}
	if !f.Valid() {
		t.Error("NewFrame() produced an invalid frame")
	}
	if f.Length != InitPayloadSize {
		t.Errorf("Length = %d, want %d", f.Length, InitPayloadSize)
	}
	if !bytes.Equal(f.Raw[:3], []byte("MCE")) {
		t.Errorf("Raw header = %q, want MCE", f.Raw[:3])
	}

	f.Payload[0] ^= 0x01
	if f.Valid() {
		t.Error("Valid() should be false after payload corruption")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	commands := []byte{0x00, CmdPing, 0x7F, CmdInit, CmdData, 0xFF}
	sizes := []int{0, 1, 2, 3, 255, 256, 512, 515, 4096, MaxPayloadSize}

	for _, h := range []Header{HeaderEMC, HeaderMCE} {
		for _, cmd := range commands {
			for _, size := range sizes {
				payload := make([]byte, size)
				rng.Read(payload)

				raw, err := Encode(h, cmd, payload)
				if err != nil {
					t.Fatalf("Encode(%s, 0x%02x, %d bytes) error = %v", h, cmd, size, err)
				}

				f := Decode(context.Background(), &sliceSource{data: raw}, h, 0)
				if f == nil {
					t.Fatalf("Decode(%s, 0x%02x, %d bytes) = nil", h, cmd, size)
				}
				if f.Command != cmd || !bytes.Equal(f.Payload, payload) {
					t.Errorf("round trip mismatch for %s cmd=0x%02x size=%d", h, cmd, size)
				}
				if !bytes.Equal(f.Raw, raw) {
					t.Errorf("Raw differs from encoded bytes for %s cmd=0x%02x size=%d", h, cmd, size)
				}
			}
		}
	}
}

func TestCommandName(t *testing.T) {
	tests := map[byte]string{
		CmdPing: "Ping",
		CmdInit: "Init",
		CmdData: "Data",
		0x42:    "Unknown(0x42)",
	}
	for cmd, want := range tests {
		if got := CommandName(cmd); got != want {
			t.Errorf("CommandName(0x%02x) = %s, want %s", cmd, got, want)
		}
	}
}
