package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/contentkit/mediaref/pkg/mediaref"
)

// ErrObjectNotFound indicates the requested object key holds no bytes.
var ErrObjectNotFound = errors.New("object not found")

// Backend is an in-memory implementation of the mediaref.BlobStore
// interface, used in tests and for zero-dependency development setups.
type Backend struct {
	mu        sync.RWMutex
	objects   map[string][]byte
	mimeTypes map[string]string
}

// New creates a new in-memory storage backend
func New() mediaref.BlobStore {
	return &Backend{
		objects:   make(map[string][]byte),
		mimeTypes: make(map[string]string),
	}
}

// Upload stores content under the given key
func (b *Backend) Upload(ctx context.Context, objectKey string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[objectKey] = data
	if _, exists := b.mimeTypes[objectKey]; !exists {
		b.mimeTypes[objectKey] = "application/octet-stream"
	}
	return nil
}

// UploadWithParams uploads content and records its MIME type
func (b *Backend) UploadWithParams(ctx context.Context, reader io.Reader, params mediaref.UploadParams) error {
	if err := b.Upload(ctx, params.ObjectKey, reader); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if params.MimeType != "" {
		b.mimeTypes[params.ObjectKey] = params.MimeType
	}
	return nil
}

// Download returns the stored bytes for the key
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[objectKey]
	if !exists {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// GetDownloadURL is unsupported; the memory backend has no URL surface
func (b *Backend) GetDownloadURL(ctx context.Context, objectKey string, downloadFilename string) (string, error) {
	return "", errors.New("direct download required for memory backend")
}

// GetObjectMeta retrieves metadata for a stored object
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*mediaref.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[objectKey]
	if !exists {
		return nil, ErrObjectNotFound
	}
	mimeType := b.mimeTypes[objectKey]

	return &mediaref.ObjectMeta{
		Key:         objectKey,
		Size:        int64(len(data)),
		ContentType: mimeType,
		Metadata:    map[string]string{"mime_type": mimeType},
	}, nil
}

// Delete removes the stored bytes
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[objectKey]; !exists {
		return ErrObjectNotFound
	}
	delete(b.objects, objectKey)
	delete(b.mimeTypes, objectKey)
	return nil
}
