// Package storage persists uploaded and generated binaries and serves them
// back by durable URL.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

const thumbnailMaxDim = 512

// Blob is one stored binary.
type Blob struct {
	// URL is the durable public URL of the stored object.
	URL string
	// ThumbnailURL is set for images.
	ThumbnailURL string
	// Size is the stored byte count.
	Size int64
}

// BlobStore stores binaries durably and returns their URLs.
type BlobStore interface {
	// Put stores the payload under the given name and returns its blob record.
	Put(ctx context.Context, name string, mimeType string, data []byte) (*Blob, error)
	// Delete removes a previously stored object by its URL.
	Delete(ctx context.Context, url string) error
}

// LocalStore keeps objects on the local filesystem under a data directory and
// serves them from a URL prefix.
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore creates a local blob store rooted at dir. Objects become
// reachable under baseURL.
func NewLocalStore(dir string, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "unable to create blob directory %s", dir)
	}
	return &LocalStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Dir returns the root directory objects are stored under.
func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) Put(ctx context.Context, name string, mimeType string, data []byte) (*Blob, error) {
	name = sanitizeName(name)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return nil, errors.Wrapf(err, "failed to write blob %s", name)
	}

	blob := &Blob{
		URL:  s.baseURL + "/" + name,
		Size: int64(len(data)),
	}

	if strings.HasPrefix(mimeType, "image/") {
		thumbName, err := s.writeThumbnail(name, data)
		if err != nil {
			// A missing thumbnail only degrades list views.
			return blob, nil
		}
		blob.ThumbnailURL = s.baseURL + "/" + thumbName
	}

	return blob, nil
}

func (s *LocalStore) Delete(ctx context.Context, url string) error {
	name := strings.TrimPrefix(url, s.baseURL+"/")
	if name == url || strings.Contains(name, "/") {
		return errors.Errorf("url %s does not belong to this store", url)
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to delete blob %s", name)
	}
	// Best effort on the thumbnail.
	os.Remove(filepath.Join(s.dir, thumbnailName(name)))
	return nil
}

// writeThumbnail decodes the image and stores a bounded JPEG next to it.
func (s *LocalStore) writeThumbnail(name string, data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", errors.Wrap(err, "failed to decode image")
	}
	thumb := imaging.Fit(img, thumbnailMaxDim, thumbnailMaxDim, imaging.Lanczos)

	thumbName := thumbnailName(name)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return "", errors.Wrap(err, "failed to encode thumbnail")
	}
	if err := os.WriteFile(filepath.Join(s.dir, thumbName), buf.Bytes(), 0o640); err != nil {
		return "", errors.Wrapf(err, "failed to write thumbnail %s", thumbName)
	}
	return thumbName, nil
}

func thumbnailName(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "_thumb.jpg"
}

// sanitizeName strips path separators so a stored name can never escape the
// blob directory.
func sanitizeName(name string) string {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) || name == "" {
		return fmt.Sprintf("blob-%d", os.Getpid())
	}
	return name
}
