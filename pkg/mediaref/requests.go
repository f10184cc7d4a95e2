package mediaref

import (
	"time"

	"github.com/google/uuid"
)

// Request/Response DTOs

// CreateContentRequest contains parameters for creating a content item.
type CreateContentRequest struct {
	EntityType EntityType
	Title      string
	Body       string
	Status     ContentStatus // defaults to draft when empty
	ActorID    uuid.UUID

	HeroImageID *uuid.UUID
	GalleryIDs  []uuid.UUID
	VideoID     *uuid.UUID // blog only

	StartsAt *time.Time // event only
	EndsAt   *time.Time
	Location string
}

// RefPatch carries an optional change to a single-valued media reference.
// Set=false leaves the field untouched; Set=true with a nil ID clears it.
type RefPatch struct {
	Set bool
	ID  *uuid.UUID
}

// Apply returns the patched value given the current one.
func (p RefPatch) Apply(current *uuid.UUID) *uuid.UUID {
	if !p.Set {
		return current
	}
	return p.ID
}

// UpdateContentRequest contains a partial update for a content item. Nil
// pointer fields are left unchanged. ExpectedVersion must match the stored
// version or the update is rejected with ErrVersionConflict.
type UpdateContentRequest struct {
	ID              uuid.UUID
	ActorID         uuid.UUID
	ExpectedVersion int64

	Title  *string
	Body   *string
	Status *ContentStatus

	HeroImageID RefPatch
	GalleryIDs  *[]uuid.UUID
	VideoID     RefPatch

	StartsAt *time.Time
	EndsAt   *time.Time
	Location *string
}

// GetOptions control read behavior. IncludeDeleted must be requested
// explicitly; there is no implicit global filter. CountView performs the
// atomic view-counter increment for public fetches of published items.
type GetOptions struct {
	IncludeDeleted bool
	CountView      bool
}

// ListContentRequest contains filters for listing content items.
type ListContentRequest struct {
	EntityType     EntityType    // empty matches all
	Status         ContentStatus // empty matches all
	IncludeDeleted bool          // admin listing only
	Limit          int
	Offset         int
}

// CreateAssetRequest contains parameters for registering a media asset.
type CreateAssetRequest struct {
	MediaType          MediaType
	StorageBackendName string
	ObjectKey          string // generated from the asset ID when empty
	FileName           string
	MimeType           string
	SizeBytes          int64
	Width              int
	Height             int
}

// PurgeOutcome is the per-asset result of a bulk unused-media purge.
type PurgeOutcome struct {
	AssetID uuid.UUID `json:"asset_id"`
	Err     error     `json:"-"`
}

// PurgeResult summarizes a bulk purge. Each asset is processed
// independently; one failure never aborts the batch.
type PurgeResult struct {
	Deleted  int            `json:"deleted"`
	Failures []PurgeOutcome `json:"failures,omitempty"`
}
