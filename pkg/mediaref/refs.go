package mediaref

import (
	"context"

	"github.com/google/uuid"
)

// Reference tracking.
//
// A content mutation changes which assets the item references. The tracker
// computes the per-field set difference between the old and new reference
// maps and drives the repository's usage-set mutations: removed IDs get a
// RemoveUsage, added IDs an AddUsage, unchanged IDs are untouched. Because
// both mutations are idempotent the whole delta is safe to retry.

// refChange is one pending usage mutation.
type refChange struct {
	assetID uuid.UUID
	field   FieldName
}

// refDelta computes the removals and additions needed to move from oldRefs
// to newRefs. Duplicate IDs within a field are collapsed; order of the
// returned slices follows field then input order, which keeps delta
// application deterministic.
func refDelta(oldRefs, newRefs RefMap) (removed, added []refChange) {
	for _, field := range []FieldName{FieldHeroImage, FieldGallery, FieldVideo} {
		oldSet := toSet(oldRefs[field])
		newSet := toSet(newRefs[field])

		for _, id := range oldRefs[field] {
			if _, keep := newSet[id]; !keep {
				removed = append(removed, refChange{assetID: id, field: field})
				newSet[id] = struct{}{} // collapse duplicates in input
			}
		}
		for _, id := range newRefs[field] {
			if _, had := oldSet[id]; !had {
				added = append(added, refChange{assetID: id, field: field})
				oldSet[id] = struct{}{}
			}
		}
	}
	return removed, added
}

func toSet(ids []uuid.UUID) map[uuid.UUID]struct{} {
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// applyRefDelta applies the usage mutations implied by moving entity
// (entityType, entityID) from oldRefs to newRefs against repo.
//
// In the default best-effort mode a failing per-asset mutation does not
// abort the rest: the failure is collected and the remaining mutations are
// still attempted. The returned *PartialFailureError itemizes failures so a
// caller can retry just the failed subset; nil means the delta applied
// cleanly.
func applyRefDelta(ctx context.Context, repo Repository, entityType EntityType, entityID uuid.UUID, oldRefs, newRefs RefMap, op string) *PartialFailureError {
	removed, added := refDelta(oldRefs, newRefs)
	if len(removed) == 0 && len(added) == 0 {
		return nil
	}

	applied := 0
	var failures []RefOutcome

	for _, ch := range removed {
		tuple := UsageTuple{EntityType: entityType, EntityID: entityID, FieldName: ch.field}
		if err := repo.RemoveUsage(ctx, ch.assetID, tuple); err != nil {
			failures = append(failures, RefOutcome{AssetID: ch.assetID, FieldName: ch.field, Op: "remove", Err: err})
			continue
		}
		applied++
	}
	for _, ch := range added {
		tuple := UsageTuple{EntityType: entityType, EntityID: entityID, FieldName: ch.field}
		if err := repo.AddUsage(ctx, ch.assetID, tuple); err != nil {
			failures = append(failures, RefOutcome{AssetID: ch.assetID, FieldName: ch.field, Op: "add", Err: err})
			continue
		}
		applied++
	}

	if len(failures) == 0 {
		return nil
	}
	return &PartialFailureError{Op: op, Applied: applied, Failures: failures}
}
