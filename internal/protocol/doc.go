// Package protocol implements the cabinet controller loader wire protocol.
//
// This package handles encoding, decoding and validation of the binary frames
// exchanged with the cabinet controller bootloader, plus the payload layouts of
// the three commands the loader uses.
//
// # Frame Format
//
// Every frame has the same layout:
//
//	[H1][H2][H3][CMD][LEN_LO][LEN_HI][PAYLOAD...][CHK]
//
//   - Header magic: 3 bytes, "EMC" or "MCE" depending on the controller build
//   - Command: 1 byte
//   - Length: 2 bytes (little-endian), counts payload bytes only
//   - Payload: 0..65535 bytes
//   - Checksum: 1 byte, (CMD + LEN_LO + LEN_HI + sum(PAYLOAD)) mod 256
//
// # Commands
//
//   - 0x04 Ping: payload [data, 0x01], echoed verbatim by the controller
//   - 0xFB Init: payload addr | loadAddr (LE32) | fwSize (LE32) | blockSize (LE16)
//   - 0xFC Data: payload addr | block bytes | frameIndex (LE16)
//
// The controller acknowledges Init and Data with a 0xFC frame whose payload is
// addr | frameIndex (LE16). An Init ack carries index 0.
//
// # Decoding
//
// Decode reads from any ByteSource (normally a transport) under a single
// deadline. It discards noise preceding the first header byte, so a stream with
// leading garbage still yields the frame that follows it. A timeout mid-frame,
// a wrong header or a bad checksum are all reported the same way: Decode
// returns nil. Callers retry the whole exchange in every case.
//
// DecodeCapture runs the same decoder over a recorded stream and Describe
// summarizes each frame, for offline inspection of line captures.
//
// # Usage Example
//
//	raw, err := protocol.Encode(protocol.HeaderEMC, protocol.CmdPing, protocol.PingPayload(0x55))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = t.Write(raw)
//
//	reply := protocol.Decode(ctx, t, protocol.HeaderEMC, 500*time.Millisecond)
//	if reply == nil {
//	    // no valid frame, retry
//	}
//
// # Thread Safety
//
// Encoding and payload construction are stateless. Decode consumes bytes from
// its source and must not share that source with another reader.
package protocol
