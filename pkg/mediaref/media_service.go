package mediaref

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Media asset operations

func (s *service) CreateAsset(ctx context.Context, req CreateAssetRequest) (*MediaAsset, error) {
	if req.MediaType != MediaTypeImage && req.MediaType != MediaTypeVideo {
		return nil, fmt.Errorf("invalid media type %q", req.MediaType)
	}
	if _, err := s.GetBackend(req.StorageBackendName); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	asset := &MediaAsset{
		ID:                 uuid.New(),
		MediaType:          req.MediaType,
		StorageBackendName: req.StorageBackendName,
		ObjectKey:          req.ObjectKey,
		FileName:           req.FileName,
		MimeType:           req.MimeType,
		SizeBytes:          req.SizeBytes,
		Width:              req.Width,
		Height:             req.Height,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if asset.ObjectKey == "" {
		asset.ObjectKey = "media/" + asset.ID.String()
	}

	if err := s.repository.CreateAsset(ctx, asset); err != nil {
		return nil, &AssetError{AssetID: asset.ID, Op: "create", Err: err}
	}
	return asset, nil
}

func (s *service) GetAsset(ctx context.Context, id uuid.UUID) (*MediaAsset, error) {
	return s.repository.GetAsset(ctx, id, false)
}

func (s *service) UploadAsset(ctx context.Context, id uuid.UUID, reader io.Reader) error {
	asset, err := s.repository.GetAsset(ctx, id, false)
	if err != nil {
		return err
	}
	backend, err := s.GetBackend(asset.StorageBackendName)
	if err != nil {
		return err
	}

	err = backend.UploadWithParams(ctx, reader, UploadParams{
		ObjectKey: asset.ObjectKey,
		MimeType:  asset.MimeType,
	})
	if err != nil {
		return &AssetError{AssetID: id, Op: "upload", Err: err}
	}

	// Pick up the authoritative size from storage when the backend can
	// report it.
	if meta, metaErr := backend.GetObjectMeta(ctx, asset.ObjectKey); metaErr == nil {
		asset.SizeBytes = meta.Size
	}
	asset.UpdatedAt = time.Now().UTC()
	if err := s.repository.UpdateAsset(ctx, asset); err != nil {
		return &AssetError{AssetID: id, Op: "upload", Err: err}
	}
	return nil
}

func (s *service) DownloadAsset(ctx context.Context, id uuid.UUID) (io.ReadCloser, error) {
	asset, err := s.repository.GetAsset(ctx, id, false)
	if err != nil {
		return nil, err
	}
	backend, err := s.GetBackend(asset.StorageBackendName)
	if err != nil {
		return nil, err
	}
	reader, err := backend.Download(ctx, asset.ObjectKey)
	if err != nil {
		return nil, &AssetError{AssetID: id, Op: "download", Err: err}
	}
	return reader, nil
}

func (s *service) GetAssetDownloadURL(ctx context.Context, id uuid.UUID) (string, error) {
	asset, err := s.repository.GetAsset(ctx, id, false)
	if err != nil {
		return "", err
	}
	backend, err := s.GetBackend(asset.StorageBackendName)
	if err != nil {
		return "", err
	}
	url, err := backend.GetDownloadURL(ctx, asset.ObjectKey, asset.FileName)
	if err != nil {
		return "", &AssetError{AssetID: id, Op: "download_url", Err: err}
	}
	return url, nil
}

func (s *service) DeleteAsset(ctx context.Context, id uuid.UUID) error {
	asset, err := s.repository.GetAsset(ctx, id, true)
	if err != nil {
		return err
	}

	// The repository performs the in-use check and the row delete as one
	// atomic step; a concurrent AddUsage cannot slip in between.
	if err := s.repository.DeleteAsset(ctx, id); err != nil {
		return &AssetError{AssetID: id, Op: "delete", Err: err}
	}

	// The record is gone; removing the bytes is best-effort cleanup. An
	// orphaned blob is harmless, a dangling record would not be.
	if backend, berr := s.GetBackend(asset.StorageBackendName); berr == nil {
		if derr := backend.Delete(ctx, asset.ObjectKey); derr != nil {
			s.logger.Warn("blob delete failed after asset delete",
				"asset_id", id, "object_key", asset.ObjectKey, "error", derr)
		}
	}

	s.fireEvent(ctx, "asset deleted", func(sink EventSink) error {
		return sink.AssetDeleted(ctx, id)
	})
	return nil
}

func (s *service) ListUnusedAssets(ctx context.Context) ([]*MediaAsset, error) {
	return s.repository.ListUnusedAssets(ctx)
}

func (s *service) PurgeUnusedAssets(ctx context.Context) (*PurgeResult, error) {
	assets, err := s.ListUnusedAssets(ctx)
	if err != nil {
		return nil, err
	}

	result := &PurgeResult{}
	for _, asset := range assets {
		if err := s.DeleteAsset(ctx, asset.ID); err != nil {
			result.Failures = append(result.Failures, PurgeOutcome{AssetID: asset.ID, Err: err})
			continue
		}
		result.Deleted++
	}
	return result, nil
}

// Storage backend registry

func (s *service) RegisterBackend(name string, backend BlobStore) {
	s.blobStores[name] = backend
}

func (s *service) GetBackend(name string) (BlobStore, error) {
	backend, ok := s.blobStores[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStorageBackendNotFound, name)
	}
	return backend, nil
}
