package mediaref

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// Service defines the main interface for the mediaref library: the
// reference-integrity and soft-delete lifecycle engine over content items
// and the media assets they reference.
type Service interface {
	// Content operations
	CreateContent(ctx context.Context, req CreateContentRequest) (*ContentItem, error)
	// UpdateContent applies a partial update under an optimistic-
	// concurrency check and reconciles the usage sets of every asset
	// whose reference changed. On a partial usage failure the entity
	// update stands and the returned error is a *PartialFailureError.
	UpdateContent(ctx context.Context, req UpdateContentRequest) (*ContentItem, error)
	GetContent(ctx context.Context, id uuid.UUID, opts GetOptions) (*ContentItem, error)
	GetContentBySlug(ctx context.Context, slug string, opts GetOptions) (*ContentItem, error)
	ListContent(ctx context.Context, req ListContentRequest) ([]*ContentItem, error)

	// Soft-delete lifecycle
	SoftDeleteContent(ctx context.Context, id uuid.UUID, actorID uuid.UUID) error
	RestoreContent(ctx context.Context, id uuid.UUID, actorID uuid.UUID) (*ContentItem, error)

	// Media asset operations
	CreateAsset(ctx context.Context, req CreateAssetRequest) (*MediaAsset, error)
	GetAsset(ctx context.Context, id uuid.UUID) (*MediaAsset, error)
	UploadAsset(ctx context.Context, id uuid.UUID, reader io.Reader) error
	DownloadAsset(ctx context.Context, id uuid.UUID) (io.ReadCloser, error)
	GetAssetDownloadURL(ctx context.Context, id uuid.UUID) (string, error)
	// DeleteAsset permanently removes an unused asset record and its
	// stored bytes. Fails with ErrAssetInUse while any live content item
	// still references the asset.
	DeleteAsset(ctx context.Context, id uuid.UUID) error
	ListUnusedAssets(ctx context.Context) ([]*MediaAsset, error)
	// PurgeUnusedAssets deletes every unused asset, processing each
	// independently and reporting per-item outcomes.
	PurgeUnusedAssets(ctx context.Context) (*PurgeResult, error)

	// Storage backend registry
	RegisterBackend(name string, backend BlobStore)
	GetBackend(name string) (BlobStore, error)
}
