package protocol

import (
	"encoding/binary"
	"fmt"
)

// Payload constructors for the loader commands.

const (
	// PingMarker is the fixed second byte of a ping payload
	PingMarker = 0x01

	// MinAddress and MaxAddress bound the cabinet address
	MinAddress = 1
	MaxAddress = 6

	// MaxBlockSize is the largest firmware block carried in one Data frame
	MaxBlockSize = 512

	// InitPayloadSize is addr(1) + loadAddr(4) + fwSize(4) + blockSize(2)
	InitPayloadSize = 11

	// AckPayloadSize is addr(1) + frameIndex(2)
	AckPayloadSize = 3
)

// PingPayload builds a ping payload.
//
// Payload Structure:
//
//	[0]     data           Arbitrary probe byte
//	[1]     0x01           PingMarker
func PingPayload(data byte) []byte {
	return []byte{data, PingMarker}
}

// InitPayload builds the transfer announcement sent before any data.
//
// Payload Structure:
//
//	[0]     addr           Cabinet address (1..6)
//	[1-4]   loadAddress    Flash load address (little-endian uint32)
//	[5-8]   firmwareSize   Image size in bytes (little-endian uint32)
//	[9-10]  blockSize      Bytes per Data frame (little-endian uint16)
func InitPayload(addr byte, loadAddress, firmwareSize uint32, blockSize uint16) []byte {
	payload := make([]byte, InitPayloadSize)
	payload[0] = addr
	binary.LittleEndian.PutUint32(payload[1:5], loadAddress)
	binary.LittleEndian.PutUint32(payload[5:9], firmwareSize)
	binary.LittleEndian.PutUint16(payload[9:11], blockSize)
	return payload
}

// DataPayload builds one firmware block payload.
//
// Payload Structure:
//
//	[0]     addr           Cabinet address (1..6)
//	[1..n]  block          Firmware bytes (1..512)
//	[n+1..] frameIndex     Block sequence number (little-endian uint16)
func DataPayload(addr byte, block []byte, frameIndex uint16) []byte {
	payload := make([]byte, 1+len(block)+2)
	payload[0] = addr
	copy(payload[1:], block)
	binary.LittleEndian.PutUint16(payload[1+len(block):], frameIndex)
	return payload
}

// AckPayload builds the acknowledgement a controller returns for Init (index 0)
// and Data frames. The loader never sends it; simulated peers do.
func AckPayload(addr byte, frameIndex uint16) []byte {
	payload := make([]byte, AckPayloadSize)
	payload[0] = addr
	binary.LittleEndian.PutUint16(payload[1:3], frameIndex)
	return payload
}

// ValidateAddress checks the cabinet address range.
func ValidateAddress(addr int) error {
	if addr < MinAddress || addr > MaxAddress {
		return fmt.Errorf("cabinet address %d out of range (%d-%d)", addr, MinAddress, MaxAddress)
	}
	return nil
}

// ValidateBlockSize checks the block size range.
func ValidateBlockSize(size int) error {
	if size < 1 || size > MaxBlockSize {
		return fmt.Errorf("block size %d out of range (1-%d)", size, MaxBlockSize)
	}
	return nil
}
