package mediaref

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// Repository defines the persistence contract for content items, media
// assets, and the usage tuples linking them.
//
// Every read takes an explicit includeDeleted flag; soft-deleted rows are
// excluded unless the caller asks for them. AddUsage and RemoveUsage must be
// atomic set mutations on a single asset's usage set, safe under concurrent
// reference changes from different content items, and idempotent: adding an
// existing tuple or removing an absent one is a no-op, never an error.
type Repository interface {
	// Content operations
	CreateContent(ctx context.Context, item *ContentItem) error
	GetContent(ctx context.Context, id uuid.UUID, includeDeleted bool) (*ContentItem, error)
	GetContentBySlug(ctx context.Context, slug string, includeDeleted bool) (*ContentItem, error)
	// UpdateContent persists item if the stored version equals
	// expectedVersion, then bumps the version. Returns ErrVersionConflict
	// on mismatch.
	UpdateContent(ctx context.Context, item *ContentItem, expectedVersion int64) error
	ListContent(ctx context.Context, req ListContentRequest) ([]*ContentItem, error)
	// IncrementViews atomically adds delta to the stored view counter.
	// It never reads-then-writes, so concurrent increments cannot be lost.
	IncrementViews(ctx context.Context, id uuid.UUID, delta int64) error

	// Media asset operations
	CreateAsset(ctx context.Context, asset *MediaAsset) error
	GetAsset(ctx context.Context, id uuid.UUID, includeDeleted bool) (*MediaAsset, error)
	UpdateAsset(ctx context.Context, asset *MediaAsset) error

	// Usage set operations (idempotent, atomic per asset).
	// AddUsage returns ErrAssetNotFound when the asset is missing or
	// deleted; RemoveUsage tolerates both.
	AddUsage(ctx context.Context, assetID uuid.UUID, tuple UsageTuple) error
	RemoveUsage(ctx context.Context, assetID uuid.UUID, tuple UsageTuple) error

	// DeleteAsset permanently removes an asset record. The emptiness check
	// and the delete are a single atomic step; a concurrent AddUsage can
	// never slip between them. Returns ErrAssetInUse when usage is
	// non-empty.
	DeleteAsset(ctx context.Context, id uuid.UUID) error
	ListUnusedAssets(ctx context.Context) ([]*MediaAsset, error)
}

// TxRepository is implemented by repositories that can apply a group of
// mutations atomically. The service uses it for the opt-in transactional
// reference mode; the function receives a Repository bound to the
// transaction.
type TxRepository interface {
	WithTx(ctx context.Context, fn func(Repository) error) error
}

// BlobStore defines the file-store collaborator holding the physical bytes
// behind a media asset, keyed by object key. It is invoked only after the
// repository has confirmed a delete is permitted.
type BlobStore interface {
	// Upload stores content under the given key
	Upload(ctx context.Context, objectKey string, reader io.Reader) error

	// UploadWithParams uploads content with additional parameters
	UploadWithParams(ctx context.Context, reader io.Reader, params UploadParams) error

	// Download retrieves content directly
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// GetDownloadURL returns a URL for downloading content, where the
	// backend supports URL-based access
	GetDownloadURL(ctx context.Context, objectKey string, downloadFilename string) (string, error)

	// GetObjectMeta retrieves metadata for a stored object
	GetObjectMeta(ctx context.Context, objectKey string) (*ObjectMeta, error)

	// Delete removes the stored bytes
	Delete(ctx context.Context, objectKey string) error
}

// ObjectMeta contains metadata about an object in storage
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	ETag        string
	Metadata    map[string]string
}

// UploadParams contains parameters for uploading an object
type UploadParams struct {
	ObjectKey string
	MimeType  string
}

// EventSink defines the interface for lifecycle event handling
type EventSink interface {
	// ContentCreated is fired when a content item is created
	ContentCreated(ctx context.Context, item *ContentItem) error

	// ContentUpdated is fired when a content item is updated
	ContentUpdated(ctx context.Context, item *ContentItem) error

	// ContentSoftDeleted is fired when a content item is soft-deleted
	ContentSoftDeleted(ctx context.Context, id uuid.UUID) error

	// ContentRestored is fired when a soft-deleted content item is restored
	ContentRestored(ctx context.Context, item *ContentItem) error

	// AssetDeleted is fired when a media asset is permanently deleted
	AssetDeleted(ctx context.Context, id uuid.UUID) error
}

// ViewCounter abstracts the atomic view-count increment so a hot-path
// counter (e.g. Redis) can stand in front of the repository.
type ViewCounter interface {
	Increment(ctx context.Context, id uuid.UUID) error
}
