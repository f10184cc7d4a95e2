// Package fs provides a filesystem-backed implementation of the
// mediaref.BlobStore interface. Objects are laid out on disk under a
// configured base directory, with the object key mapped to a relative
// path.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/contentkit/mediaref/pkg/mediaref"
)

// ErrObjectNotFound indicates the requested object does not exist on disk.
var ErrObjectNotFound = errors.New("object not found")

// Config holds configuration for the filesystem backend.
type Config struct {
	BaseDir string // root directory for stored objects
	// URLPrefix enables GetDownloadURL; when empty, callers must stream
	// through Download instead.
	URLPrefix string
}

// Backend implements mediaref.BlobStore on the local filesystem.
type Backend struct {
	baseDir   string
	urlPrefix string
}

// New creates a filesystem backend, creating the base directory if needed.
func New(config Config) (mediaref.BlobStore, error) {
	if config.BaseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := os.MkdirAll(config.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	return &Backend{
		baseDir:   config.BaseDir,
		urlPrefix: strings.TrimSuffix(config.URLPrefix, "/"),
	}, nil
}

func (b *Backend) objectPath(objectKey string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(objectKey))
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid object key: %s", objectKey)
	}
	return filepath.Join(b.baseDir, cleaned), nil
}

// Upload stores content in a file under the base directory.
func (b *Backend) Upload(ctx context.Context, objectKey string, reader io.Reader) error {
	path, err := b.objectPath(objectKey)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create object file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, reader); err != nil {
		os.Remove(path)
		return fmt.Errorf("write object: %w", err)
	}
	return nil
}

// UploadWithParams uploads content; the filesystem keeps no MIME sidecar,
// content type is re-detected on read.
func (b *Backend) UploadWithParams(ctx context.Context, reader io.Reader, params mediaref.UploadParams) error {
	return b.Upload(ctx, params.ObjectKey, reader)
}

// Download opens the stored file for reading.
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	path, err := b.objectPath(objectKey)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("open object: %w", err)
	}
	return f, nil
}

// GetDownloadURL returns a URL under the configured prefix, if any.
func (b *Backend) GetDownloadURL(ctx context.Context, objectKey string, downloadFilename string) (string, error) {
	if b.urlPrefix == "" {
		return "", fmt.Errorf("direct download required for fs backend")
	}
	if _, err := b.GetObjectMeta(ctx, objectKey); err != nil {
		return "", err
	}
	return b.urlPrefix + "/" + objectKey, nil
}

// GetObjectMeta stats the file and sniffs its content type.
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*mediaref.ObjectMeta, error) {
	path, err := b.objectPath(objectKey)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("stat object: %w", err)
	}

	contentType := "application/octet-stream"
	if f, err := os.Open(path); err == nil {
		buf := make([]byte, 512)
		n, _ := f.Read(buf)
		f.Close()
		if n > 0 {
			contentType = http.DetectContentType(buf[:n])
		}
	}

	return &mediaref.ObjectMeta{
		Key:         objectKey,
		Size:        info.Size(),
		ContentType: contentType,
		UpdatedAt:   info.ModTime(),
	}, nil
}

// Delete removes the object file and prunes empty parent directories.
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	path, err := b.objectPath(objectKey)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("remove object: %w", err)
	}
	b.cleanupEmptyDirs(filepath.Dir(path))
	return nil
}

func (b *Backend) cleanupEmptyDirs(dir string) {
	for dir != b.baseDir && strings.HasPrefix(dir, b.baseDir) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
