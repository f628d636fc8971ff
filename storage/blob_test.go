package storage

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func TestLocalStorePutAndDelete(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, "http://localhost:8081/o/")
	require.NoError(t, err)

	blob, err := s.Put(context.Background(), "doc.txt", "text/plain", []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8081/o/doc.txt", blob.URL)
	require.Equal(t, int64(5), blob.Size)
	require.Empty(t, blob.ThumbnailURL)

	data, err := os.ReadFile(filepath.Join(dir, "doc.txt"))
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)

	require.NoError(t, s.Delete(context.Background(), blob.URL))
	_, err = os.Stat(filepath.Join(dir, "doc.txt"))
	require.True(t, os.IsNotExist(err))
}

func TestLocalStoreImageGetsThumbnail(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, "http://localhost:8081/o")
	require.NoError(t, err)

	blob, err := s.Put(context.Background(), "big.png", "image/png", testPNG(t, 1024, 768))
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8081/o/big_thumb.jpg", blob.ThumbnailURL)

	thumbPath := filepath.Join(dir, "big_thumb.jpg")
	thumb, err := imaging.Open(thumbPath)
	require.NoError(t, err)
	bounds := thumb.Bounds()
	require.LessOrEqual(t, bounds.Dx(), 512)
	require.LessOrEqual(t, bounds.Dy(), 512)
}

func TestLocalStoreCorruptImageDegrades(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, "http://x/o")
	require.NoError(t, err)

	blob, err := s.Put(context.Background(), "fake.png", "image/png", []byte("not an image"))
	require.NoError(t, err)
	require.NotEmpty(t, blob.URL)
	require.Empty(t, blob.ThumbnailURL)
}

func TestLocalStoreSanitizesNames(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, "http://x/o")
	require.NoError(t, err)

	blob, err := s.Put(context.Background(), "../../etc/passwd", "text/plain", []byte("x"))
	require.NoError(t, err)
	require.Equal(t, "http://x/o/passwd", blob.URL)

	_, err = os.Stat(filepath.Join(dir, "passwd"))
	require.NoError(t, err)
}

func TestLocalStoreDeleteRejectsForeignURL(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), "http://x/o")
	require.NoError(t, err)

	require.Error(t, s.Delete(context.Background(), "http://elsewhere/file.txt"))
}
