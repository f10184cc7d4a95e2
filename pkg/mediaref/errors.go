package mediaref

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrContentNotFound indicates a content item was not found (or is
	// soft-deleted and the caller did not ask for deleted items)
	ErrContentNotFound = errors.New("content not found")

	// ErrAssetNotFound indicates a media asset was not found or is deleted
	ErrAssetNotFound = errors.New("media asset not found")

	// ErrInvalidState indicates an illegal lifecycle transition, such as
	// soft-deleting an already-deleted item or restoring a live one
	ErrInvalidState = errors.New("invalid lifecycle state for operation")

	// ErrVersionConflict indicates the expected version did not match the
	// stored version; the caller lost a concurrent update race
	ErrVersionConflict = errors.New("version conflict")

	// ErrSlugTaken indicates the generated slug collided with an existing
	// one, including slugs held by soft-deleted items
	ErrSlugTaken = errors.New("slug already taken")

	// ErrAssetInUse indicates an asset cannot be deleted while content
	// still references it
	ErrAssetInUse = errors.New("media asset is still in use")

	// ErrInvalidEntityType indicates an unknown content entity type
	ErrInvalidEntityType = errors.New("invalid entity type")

	// ErrFieldNotAllowed indicates a media field the entity type does not
	// carry (e.g. video on an event)
	ErrFieldNotAllowed = errors.New("media field not allowed for entity type")

	// ErrStorageBackendNotFound indicates an unregistered storage backend
	ErrStorageBackendNotFound = errors.New("storage backend not found")
)

// ContentError wraps an error from a content operation with the item and
// operation it belongs to.
type ContentError struct {
	ContentID uuid.UUID
	Op        string
	Err       error
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("content operation %s failed for %s: %v", e.Op, e.ContentID, e.Err)
}

func (e *ContentError) Unwrap() error {
	return e.Err
}

// AssetError wraps an error from a media asset operation.
type AssetError struct {
	AssetID uuid.UUID
	Op      string
	Err     error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("asset operation %s failed for %s: %v", e.Op, e.AssetID, e.Err)
}

func (e *AssetError) Unwrap() error {
	return e.Err
}

// RefOutcome is the result of a single usage-set mutation attempted while
// applying a reference delta. Err is nil on success.
type RefOutcome struct {
	AssetID   uuid.UUID `json:"asset_id"`
	FieldName FieldName `json:"field_name"`
	Op        string    `json:"op"` // "add" or "remove"
	Err       error     `json:"-"`
}

// PartialFailureError reports a multi-asset operation in which some
// sub-operations succeeded and others failed. The primary mutation (the
// entity write, or the bulk loop) is NOT rolled back; callers can retry
// just the failed subset because usage add/remove is idempotent.
type PartialFailureError struct {
	Op       string
	Applied  int
	Failures []RefOutcome
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s: %d usage updates applied, %d failed", e.Op, e.Applied, len(e.Failures))
}

// IsNotFound returns true if err represents a missing content item or asset.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrContentNotFound) || errors.Is(err, ErrAssetNotFound)
}
