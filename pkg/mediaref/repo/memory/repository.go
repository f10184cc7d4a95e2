package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/contentkit/mediaref/pkg/mediaref"
)

// Repository implements mediaref.Repository using in-memory storage.
// All usage-set mutations happen under the repository lock, so they are
// atomic with respect to concurrent reference changes, and view increments
// never read-then-write a stale counter.
type Repository struct {
	mu       sync.RWMutex
	contents map[uuid.UUID]*mediaref.ContentItem
	// slugIndex holds every slug ever written, soft-deleted items
	// included, to keep slugs unique across all time.
	slugIndex map[string]uuid.UUID
	assets    map[uuid.UUID]*mediaref.MediaAsset
	usage     map[uuid.UUID]map[mediaref.UsageTuple]struct{} // asset_id -> tuple set
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		contents:  make(map[uuid.UUID]*mediaref.ContentItem),
		slugIndex: make(map[string]uuid.UUID),
		assets:    make(map[uuid.UUID]*mediaref.MediaAsset),
		usage:     make(map[uuid.UUID]map[mediaref.UsageTuple]struct{}),
	}
}

// Content operations

func (r *Repository) CreateContent(ctx context.Context, item *mediaref.ContentItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, taken := r.slugIndex[item.Slug]; taken && owner != item.ID {
		return mediaref.ErrSlugTaken
	}

	itemCopy := copyContent(item)
	r.contents[item.ID] = itemCopy
	r.slugIndex[item.Slug] = item.ID
	return nil
}

func (r *Repository) GetContent(ctx context.Context, id uuid.UUID, includeDeleted bool) (*mediaref.ContentItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, exists := r.contents[id]
	if !exists {
		return nil, mediaref.ErrContentNotFound
	}
	if item.DeletedAt != nil && !includeDeleted {
		return nil, mediaref.ErrContentNotFound
	}
	return copyContent(item), nil
}

func (r *Repository) GetContentBySlug(ctx context.Context, slug string, includeDeleted bool) (*mediaref.ContentItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.slugIndex[slug]
	if !exists {
		return nil, mediaref.ErrContentNotFound
	}
	item, exists := r.contents[id]
	if !exists || (item.DeletedAt != nil && !includeDeleted) {
		return nil, mediaref.ErrContentNotFound
	}
	return copyContent(item), nil
}

func (r *Repository) UpdateContent(ctx context.Context, item *mediaref.ContentItem, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.contents[item.ID]
	if !exists {
		return mediaref.ErrContentNotFound
	}
	if stored.Version != expectedVersion {
		return mediaref.ErrVersionConflict
	}
	if owner, taken := r.slugIndex[item.Slug]; taken && owner != item.ID {
		return mediaref.ErrSlugTaken
	}

	itemCopy := copyContent(item)
	itemCopy.Version = expectedVersion + 1
	itemCopy.Views = stored.Views // the counter is owned by IncrementViews

	if stored.Slug != item.Slug {
		// Old slugs stay reserved so a restored or re-created item can
		// never be shadowed by a recycled URL.
		r.slugIndex[item.Slug] = item.ID
	}
	r.contents[item.ID] = itemCopy
	item.Version = itemCopy.Version
	return nil
}

func (r *Repository) ListContent(ctx context.Context, req mediaref.ListContentRequest) ([]*mediaref.ContentItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*mediaref.ContentItem
	for _, item := range r.contents {
		if item.DeletedAt != nil && !req.IncludeDeleted {
			continue
		}
		if req.EntityType != "" && item.EntityType != req.EntityType {
			continue
		}
		if req.Status != "" && item.Status != req.Status {
			continue
		}
		result = append(result, copyContent(item))
	}

	// Sort by created_at descending
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if req.Offset > 0 {
		if req.Offset >= len(result) {
			return nil, nil
		}
		result = result[req.Offset:]
	}
	if req.Limit > 0 && req.Limit < len(result) {
		result = result[:req.Limit]
	}
	return result, nil
}

func (r *Repository) IncrementViews(ctx context.Context, id uuid.UUID, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, exists := r.contents[id]
	if !exists || item.DeletedAt != nil {
		return mediaref.ErrContentNotFound
	}
	item.Views += delta
	return nil
}

// Media asset operations

func (r *Repository) CreateAsset(ctx context.Context, asset *mediaref.MediaAsset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.assets[asset.ID] = copyAsset(asset)
	r.usage[asset.ID] = make(map[mediaref.UsageTuple]struct{})
	return nil
}

func (r *Repository) GetAsset(ctx context.Context, id uuid.UUID, includeDeleted bool) (*mediaref.MediaAsset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getAssetLocked(id, includeDeleted)
}

func (r *Repository) getAssetLocked(id uuid.UUID, includeDeleted bool) (*mediaref.MediaAsset, error) {
	asset, exists := r.assets[id]
	if !exists {
		return nil, mediaref.ErrAssetNotFound
	}
	if asset.DeletedAt != nil && !includeDeleted {
		return nil, mediaref.ErrAssetNotFound
	}
	assetCopy := copyAsset(asset)
	assetCopy.UsedIn = r.usageTuplesLocked(id)
	return assetCopy, nil
}

func (r *Repository) UpdateAsset(ctx context.Context, asset *mediaref.MediaAsset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.assets[asset.ID]; !exists {
		return mediaref.ErrAssetNotFound
	}
	r.assets[asset.ID] = copyAsset(asset)
	return nil
}

// Usage set operations

func (r *Repository) AddUsage(ctx context.Context, assetID uuid.UUID, tuple mediaref.UsageTuple) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	asset, exists := r.assets[assetID]
	if !exists || asset.DeletedAt != nil {
		return mediaref.ErrAssetNotFound
	}
	// Adding an existing tuple is a no-op; the map key is the whole tuple.
	r.usage[assetID][tuple] = struct{}{}
	return nil
}

func (r *Repository) RemoveUsage(ctx context.Context, assetID uuid.UUID, tuple mediaref.UsageTuple) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, exists := r.usage[assetID]
	if !exists {
		// Removing usage from a vanished asset is a no-op, not an error:
		// the end state (no tuple) already holds.
		return nil
	}
	delete(set, tuple)
	return nil
}

func (r *Repository) DeleteAsset(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.assets[id]; !exists {
		return mediaref.ErrAssetNotFound
	}
	if len(r.usage[id]) > 0 {
		return mediaref.ErrAssetInUse
	}
	delete(r.assets, id)
	delete(r.usage, id)
	return nil
}

func (r *Repository) ListUnusedAssets(ctx context.Context) ([]*mediaref.MediaAsset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*mediaref.MediaAsset
	for id, asset := range r.assets {
		if asset.DeletedAt != nil || len(r.usage[id]) > 0 {
			continue
		}
		result = append(result, copyAsset(asset))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// WithTx satisfies mediaref.TxRepository. The in-memory store has no real
// transactions; mutations apply directly and fn's error is passed through.
// This matches the all-or-nothing contract only for deltas whose failures
// are detected before any mutation, which is what the service's preflight
// checks provide.
func (r *Repository) WithTx(ctx context.Context, fn func(mediaref.Repository) error) error {
	return fn(r)
}

func (r *Repository) usageTuplesLocked(assetID uuid.UUID) []mediaref.UsageTuple {
	set := r.usage[assetID]
	if len(set) == 0 {
		return nil
	}
	tuples := make([]mediaref.UsageTuple, 0, len(set))
	for tuple := range set {
		tuples = append(tuples, tuple)
	}
	sort.Slice(tuples, func(i, j int) bool {
		if tuples[i].EntityID != tuples[j].EntityID {
			return tuples[i].EntityID.String() < tuples[j].EntityID.String()
		}
		return tuples[i].FieldName < tuples[j].FieldName
	})
	return tuples
}

// Copies prevent external mutation of stored records.

func copyContent(item *mediaref.ContentItem) *mediaref.ContentItem {
	itemCopy := *item
	itemCopy.GalleryIDs = append([]uuid.UUID(nil), item.GalleryIDs...)
	return &itemCopy
}

func copyAsset(asset *mediaref.MediaAsset) *mediaref.MediaAsset {
	assetCopy := *asset
	assetCopy.UsedIn = append([]mediaref.UsageTuple(nil), asset.UsedIn...)
	return &assetCopy
}
