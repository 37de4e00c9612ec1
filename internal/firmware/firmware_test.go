package firmware

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, data, 0600))
}

func TestLoad_Binary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.bin")
	data := []byte{0x00, 0x20, 0x00, 0x20, 0xC1, 0x01, 0x00, 0x08, 0xFF, 0xFE, 0x00, 0x81}
	writeFile(t, path, data)

	img, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, data, img.Data)
	assert.Equal(t, len(data), img.Size())
	assert.Equal(t, path, img.Path)
	assert.False(t, img.Text, "mime %s", img.MIME)
	assert.NotEmpty(t, img.MIME)
	assert.False(t, img.ModTime.IsZero())
}

func TestLoad_IntelHexIsFlaggedAsText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.hex")
	writeFile(t, path, []byte(":10010000214601360121470136007EFE09D2190140\n:00000001FF\n"))

	img, err := Load(path)
	require.NoError(t, err)
	assert.True(t, img.Text, "mime %s", img.MIME)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.bin")
	writeFile(t, empty, nil)
	_, err := Load(empty)
	assert.True(t, errors.Is(err, ErrEmpty), "got %v", err)

	_, err = Load(filepath.Join(dir, "missing.bin"))
	assert.Error(t, err)

	_, err = Load(dir)
	assert.Error(t, err)
}

func TestWatcher_ReloadsOnRewrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.bin")
	writeFile(t, path, []byte{0x01})

	w, err := NewWatcher(path, 50*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()
	assert.True(t, filepath.IsAbs(w.Path()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var images []*Image
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(img *Image) {
			mu.Lock()
			images = append(images, img)
			mu.Unlock()
		})
	}()

	// Unrelated files in the same directory are ignored
	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("hello"))

	// A burst of writes settles into a reload of the final contents
	for i := byte(2); i <= 5; i++ {
		writeFile(t, path, []byte{i, i, i})
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(images) > 0 && images[len(images)-1].Data[0] == 5
	}, 3*time.Second, 10*time.Millisecond)

	mu.Lock()
	for _, img := range images {
		assert.Equal(t, w.Path(), img.Path)
	}
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewWatcher_MissingDirectory(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "nope", "app.bin"), 0)
	assert.Error(t, err)
}
