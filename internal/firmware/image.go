package firmware

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/muurk/cabload/internal/logging"
)

// MaxSize is the largest image the Init frame can announce
const MaxSize = math.MaxUint32

var (
	// ErrEmpty is returned for a zero-length image
	ErrEmpty = errors.New("firmware image is empty")
	// ErrTooLarge is returned for an image larger than MaxSize
	ErrTooLarge = errors.New("firmware image exceeds 4 GiB")
)

// Image is a firmware image resident in memory
type Image struct {
	Path    string
	Data    []byte
	MIME    string    // detected content type
	Text    bool      // content looks like text rather than a binary
	ModTime time.Time // file modification time when loaded
}

// Size returns the image length in bytes
func (i *Image) Size() int {
	return len(i.Data)
}

// Load reads an image from path.
func Load(path string) (*Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat firmware image: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmpty)
	}
	if uint64(info.Size()) > MaxSize {
		return nil, fmt.Errorf("%s is %d bytes: %w", path, info.Size(), ErrTooLarge)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read firmware image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmpty)
	}

	img := &Image{
		Path:    path,
		Data:    data,
		ModTime: info.ModTime(),
	}
	img.MIME, img.Text = sniff(data)

	logging.Debug("Loaded firmware image",
		zap.String("path", path),
		zap.Int("size", len(data)),
		zap.String("mime", img.MIME),
	)
	if img.Text {
		logging.Warn("Firmware image looks like text and will be sent as raw bytes",
			zap.String("path", path),
			zap.String("mime", img.MIME),
		)
	}
	return img, nil
}

// sniff returns the content type and whether it is a text format
func sniff(data []byte) (string, bool) {
	m := mimetype.Detect(data)
	for t := m; t != nil; t = t.Parent() {
		if t.Is("text/plain") {
			return m.String(), true
		}
	}
	return m.String(), false
}
