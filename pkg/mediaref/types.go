package mediaref

import (
	"time"

	"github.com/google/uuid"
)

// EntityType is the domain type discriminating content variants.
type EntityType string

// Entity type constants (typed).
const (
	EntityTypeEvent EntityType = "event"
	EntityTypeBlog  EntityType = "blog"
)

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	return t == EntityTypeEvent || t == EntityTypeBlog
}

// ContentStatus is the domain type for content publishing states.
type ContentStatus string

// Content status constants (typed).
const (
	ContentStatusDraft     ContentStatus = "draft"
	ContentStatusPublished ContentStatus = "published"
	ContentStatusArchived  ContentStatus = "archived"
)

// Valid reports whether s is a known content status.
func (s ContentStatus) Valid() bool {
	switch s {
	case ContentStatusDraft, ContentStatusPublished, ContentStatusArchived:
		return true
	}
	return false
}

// MediaType is the domain type for media asset kinds.
type MediaType string

// Media type constants (typed).
const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// FieldName identifies which field of a content item holds a media reference.
type FieldName string

// Media reference field constants (typed).
const (
	FieldHeroImage FieldName = "hero_image"
	FieldGallery   FieldName = "gallery"
	FieldVideo     FieldName = "video"
)

// UsageTuple records one live reference from a content item to a media
// asset: which entity, through which field. A tuple appears at most once in
// an asset's usage set.
type UsageTuple struct {
	EntityType EntityType `json:"entity_type"`
	EntityID   uuid.UUID  `json:"entity_id"`
	FieldName  FieldName  `json:"field_name"`
}

// RefMap maps a media reference field to the asset IDs it currently holds.
// Hero image and video carry at most one ID; gallery carries any number.
// Values are treated as sets: order is not significant and duplicates are
// ignored when computing deltas.
type RefMap map[FieldName][]uuid.UUID

// ContentItem represents an event or blog post. The two variants share the
// same lifecycle and reference-tracking behavior and differ only in which
// fields they carry (video is blog-only, the event schedule fields are
// event-only).
type ContentItem struct {
	ID         uuid.UUID     `json:"id"`
	EntityType EntityType    `json:"entity_type"`
	Title      string        `json:"title"`
	Slug       string        `json:"slug"`
	Body       string        `json:"body,omitempty"`
	Status     ContentStatus `json:"status"`

	// Media references. A content item does not own the assets it
	// references; deleting the item never deletes an asset.
	HeroImageID *uuid.UUID  `json:"hero_image_id,omitempty"`
	GalleryIDs  []uuid.UUID `json:"gallery_ids,omitempty"`
	VideoID     *uuid.UUID  `json:"video_id,omitempty"` // blog only

	// Event-only schedule fields.
	StartsAt *time.Time `json:"starts_at,omitempty"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`
	Location string     `json:"location,omitempty"`

	PublishedAt *time.Time `json:"published_at,omitempty"`
	Views       int64      `json:"views"`

	// Version increments on every successful write and backs the
	// optimistic-concurrency check on updates.
	Version int64 `json:"version"`

	CreatedBy uuid.UUID  `json:"created_by"`
	UpdatedBy uuid.UUID  `json:"updated_by"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// IsDeleted returns true if the item has been soft-deleted.
func (c *ContentItem) IsDeleted() bool {
	return c.DeletedAt != nil
}

// IsPublished returns true if the item is in published status.
func (c *ContentItem) IsPublished() bool {
	return c.Status == ContentStatusPublished
}

// MediaRefs returns the item's current media references keyed by field.
// Empty fields are omitted.
func (c *ContentItem) MediaRefs() RefMap {
	refs := make(RefMap, 3)
	if c.HeroImageID != nil {
		refs[FieldHeroImage] = []uuid.UUID{*c.HeroImageID}
	}
	if len(c.GalleryIDs) > 0 {
		refs[FieldGallery] = append([]uuid.UUID(nil), c.GalleryIDs...)
	}
	if c.VideoID != nil {
		refs[FieldVideo] = []uuid.UUID{*c.VideoID}
	}
	return refs
}

// MediaAsset represents a stored image or video. The asset's UsedIn set
// mirrors every live content reference to it; it must be empty before the
// asset can be permanently deleted.
type MediaAsset struct {
	ID                 uuid.UUID `json:"id"`
	MediaType          MediaType `json:"media_type"`
	StorageBackendName string    `json:"storage_backend_name"`
	ObjectKey          string    `json:"object_key"`
	FileName           string    `json:"file_name,omitempty"`
	MimeType           string    `json:"mime_type,omitempty"`
	SizeBytes          int64     `json:"size_bytes"`
	Width              int       `json:"width,omitempty"`
	Height             int       `json:"height,omitempty"`

	UsedIn []UsageTuple `json:"used_in"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// InUse returns true if any live content item still references the asset.
func (a *MediaAsset) InUse() bool {
	return len(a.UsedIn) > 0
}

// IsDeleted returns true if the asset has been marked deleted.
func (a *MediaAsset) IsDeleted() bool {
	return a.DeletedAt != nil
}
