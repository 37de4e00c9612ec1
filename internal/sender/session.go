package sender

import (
	"time"

	"github.com/google/uuid"
)

// Session is the state of one image transfer. It lives for a single Transfer
// call.
type Session struct {
	ID          uuid.UUID
	Address     byte
	LoadAddress uint32
	BlockSize   int
	Blocks      int
	FrameIndex  uint16 // index of the next data frame
	TotalBytes  int64
	SentBytes   int64
	StartedAt   time.Time
}

func newSession(addr byte, loadAddress uint32, blockSize int, total int) *Session {
	return &Session{
		ID:          uuid.New(),
		Address:     addr,
		LoadAddress: loadAddress,
		BlockSize:   blockSize,
		Blocks:      blockCount(total, blockSize),
		TotalBytes:  int64(total),
		StartedAt:   time.Now(),
	}
}

// block returns the image bytes carried by the next data frame
func (s *Session) block(image []byte) []byte {
	start := int(s.SentBytes)
	end := start + s.BlockSize
	if end > len(image) {
		end = len(image)
	}
	return image[start:end]
}

// done reports whether every block has been acknowledged
func (s *Session) done() bool {
	return s.SentBytes >= s.TotalBytes
}

// advance records an acknowledged block of n bytes
func (s *Session) advance(n int) {
	s.SentBytes += int64(n)
	s.FrameIndex++
}

// Progress returns the current progress event
func (s *Session) Progress() ProgressEvent {
	pct := 100.0
	if s.TotalBytes > 0 {
		pct = float64(s.SentBytes) * 100 / float64(s.TotalBytes)
	}
	return ProgressEvent{
		Percent:    pct,
		SentBytes:  s.SentBytes,
		TotalBytes: s.TotalBytes,
	}
}

func blockCount(total, blockSize int) int {
	if blockSize <= 0 {
		return 0
	}
	return (total + blockSize - 1) / blockSize
}
