package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentkit/mediaref/pkg/mediaref"
)

func newTestBackend(t *testing.T) (mediaref.BlobStore, string) {
	t.Helper()
	dir := t.TempDir()
	backend, err := New(Config{BaseDir: dir, URLPrefix: "http://localhost:8080/files"})
	require.NoError(t, err)
	return backend, dir
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	backend, _ := newTestBackend(t)
	ctx := context.Background()

	err := backend.Upload(ctx, "media/2026/photo.jpg", strings.NewReader("jpeg-bytes"))
	require.NoError(t, err)

	rc, err := backend.Download(ctx, "media/2026/photo.jpg")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
}

func TestGetObjectMeta(t *testing.T) {
	backend, _ := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.Upload(ctx, "media/doc", strings.NewReader("plain text content")))

	meta, err := backend.GetObjectMeta(ctx, "media/doc")
	require.NoError(t, err)
	assert.Equal(t, int64(18), meta.Size)
	assert.Contains(t, meta.ContentType, "text/plain")
}

func TestGetDownloadURL(t *testing.T) {
	backend, _ := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.Upload(ctx, "media/pic", strings.NewReader("x")))

	url, err := backend.GetDownloadURL(ctx, "media/pic", "pic.jpg")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/files/media/pic", url)

	_, err = backend.GetDownloadURL(ctx, "media/missing", "")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestDeleteCleansEmptyDirs(t *testing.T) {
	backend, dir := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.Upload(ctx, "media/nested/deep/obj", strings.NewReader("x")))
	require.NoError(t, backend.Delete(ctx, "media/nested/deep/obj"))

	_, err := os.Stat(filepath.Join(dir, "media"))
	assert.True(t, os.IsNotExist(err), "empty parent directories should be pruned")

	assert.ErrorIs(t, backend.Delete(ctx, "media/nested/deep/obj"), ErrObjectNotFound)
}

func TestRejectsPathTraversal(t *testing.T) {
	backend, _ := newTestBackend(t)

	err := backend.Upload(context.Background(), "../escape", strings.NewReader("x"))
	assert.Error(t, err)
}
