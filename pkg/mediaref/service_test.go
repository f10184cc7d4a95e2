package mediaref_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentkit/mediaref/pkg/mediaref"
	"github.com/contentkit/mediaref/pkg/mediaref/repo/memory"
	memorystorage "github.com/contentkit/mediaref/pkg/mediaref/storage/memory"
)

func newTestService(t *testing.T, opts ...mediaref.Option) mediaref.Service {
	t.Helper()
	base := []mediaref.Option{
		mediaref.WithRepository(memory.New()),
		mediaref.WithBlobStore("memory", memorystorage.New()),
	}
	svc, err := mediaref.New(append(base, opts...)...)
	require.NoError(t, err)
	return svc
}

func newImageAsset(t *testing.T, svc mediaref.Service) *mediaref.MediaAsset {
	t.Helper()
	asset, err := svc.CreateAsset(t.Context(), mediaref.CreateAssetRequest{
		MediaType:          mediaref.MediaTypeImage,
		StorageBackendName: "memory",
	})
	require.NoError(t, err)
	return asset
}

func TestServiceCreation(t *testing.T) {
	tests := []struct {
		name        string
		options     []mediaref.Option
		expectError bool
	}{
		{
			name:        "no options should fail",
			options:     []mediaref.Option{},
			expectError: true,
		},
		{
			name:        "repository only is enough",
			options:     []mediaref.Option{mediaref.WithRepository(memory.New())},
			expectError: false,
		},
		{
			name: "transactional refs with a tx-capable repository",
			options: []mediaref.Option{
				mediaref.WithRepository(memory.New()),
				mediaref.WithTransactionalRefs(),
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := mediaref.New(tt.options...)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, svc)
		})
	}
}

func TestCreateContentDefaultsToDraft(t *testing.T) {
	svc := newTestService(t)

	item, err := svc.CreateContent(t.Context(), mediaref.CreateContentRequest{
		EntityType: mediaref.EntityTypeBlog,
		Title:      "New Post",
		ActorID:    uuid.New(),
	})
	require.NoError(t, err)

	assert.Equal(t, mediaref.ContentStatusDraft, item.Status)
	assert.Nil(t, item.PublishedAt)
	assert.Equal(t, int64(1), item.Version)
	assert.True(t, strings.HasPrefix(item.Slug, "new-post-"))
}

func TestCreateContentPublishedStampsPublishedAt(t *testing.T) {
	svc := newTestService(t)

	item, err := svc.CreateContent(t.Context(), mediaref.CreateContentRequest{
		EntityType: mediaref.EntityTypeEvent,
		Title:      "Summer Festival",
		Status:     mediaref.ContentStatusPublished,
		ActorID:    uuid.New(),
	})
	require.NoError(t, err)
	assert.NotNil(t, item.PublishedAt)
}

func TestCreateContentRejectsInvalidInput(t *testing.T) {
	svc := newTestService(t)
	asset := newImageAsset(t, svc)

	_, err := svc.CreateContent(t.Context(), mediaref.CreateContentRequest{
		EntityType: "page",
		Title:      "x",
	})
	assert.ErrorIs(t, err, mediaref.ErrInvalidEntityType)

	// Video is a blog-only field.
	_, err = svc.CreateContent(t.Context(), mediaref.CreateContentRequest{
		EntityType: mediaref.EntityTypeEvent,
		Title:      "Gala",
		ActorID:    uuid.New(),
		VideoID:    &asset.ID,
	})
	assert.ErrorIs(t, err, mediaref.ErrFieldNotAllowed)

	// References must point at existing assets.
	missing := uuid.New()
	_, err = svc.CreateContent(t.Context(), mediaref.CreateContentRequest{
		EntityType:  mediaref.EntityTypeBlog,
		Title:       "Broken Ref",
		ActorID:     uuid.New(),
		HeroImageID: &missing,
	})
	assert.ErrorIs(t, err, mediaref.ErrAssetNotFound)
}

func TestCreateContentRecordsUsage(t *testing.T) {
	svc := newTestService(t)
	hero := newImageAsset(t, svc)
	g1 := newImageAsset(t, svc)
	g2 := newImageAsset(t, svc)

	item, err := svc.CreateContent(t.Context(), mediaref.CreateContentRequest{
		EntityType:  mediaref.EntityTypeEvent,
		Title:       "Opening Night",
		ActorID:     uuid.New(),
		HeroImageID: &hero.ID,
		GalleryIDs:  []uuid.UUID{g1.ID, g2.ID},
	})
	require.NoError(t, err)

	got, err := svc.GetAsset(t.Context(), hero.ID)
	require.NoError(t, err)
	require.Len(t, got.UsedIn, 1)
	assert.Equal(t, mediaref.UsageTuple{
		EntityType: mediaref.EntityTypeEvent,
		EntityID:   item.ID,
		FieldName:  mediaref.FieldHeroImage,
	}, got.UsedIn[0])

	for _, id := range []uuid.UUID{g1.ID, g2.ID} {
		got, err := svc.GetAsset(t.Context(), id)
		require.NoError(t, err)
		require.Len(t, got.UsedIn, 1)
		assert.Equal(t, mediaref.FieldGallery, got.UsedIn[0].FieldName)
	}
}

func TestSlugUniqueAcrossIdenticalTitles(t *testing.T) {
	svc := newTestService(t)
	actorID := uuid.New()

	slugs := map[string]bool{}
	for i := 0; i < 5; i++ {
		item, err := svc.CreateContent(t.Context(), mediaref.CreateContentRequest{
			EntityType: mediaref.EntityTypeBlog,
			Title:      "Annual Report",
			ActorID:    actorID,
		})
		require.NoError(t, err)
		assert.False(t, slugs[item.Slug], "slug %q reused", item.Slug)
		slugs[item.Slug] = true
	}
}

func TestSlugStaysReservedWhileSoftDeleted(t *testing.T) {
	svc := newTestService(t)
	actorID := uuid.New()

	item, err := svc.CreateContent(t.Context(), mediaref.CreateContentRequest{
		EntityType: mediaref.EntityTypeBlog,
		Title:      "Keynote Recap",
		ActorID:    actorID,
	})
	require.NoError(t, err)
	require.NoError(t, svc.SoftDeleteContent(t.Context(), item.ID, actorID))

	// A new item with the same title still gets a distinct slug.
	other, err := svc.CreateContent(t.Context(), mediaref.CreateContentRequest{
		EntityType: mediaref.EntityTypeBlog,
		Title:      "Keynote Recap",
		ActorID:    actorID,
	})
	require.NoError(t, err)
	assert.NotEqual(t, item.Slug, other.Slug)
}

func TestUpdateContentSlugBehavior(t *testing.T) {
	svc := newTestService(t)
	actorID := uuid.New()

	item, err := svc.CreateContent(t.Context(), mediaref.CreateContentRequest{
		EntityType: mediaref.EntityTypeBlog,
		Title:      "First Title",
		ActorID:    actorID,
	})
	require.NoError(t, err)
	originalSlug := item.Slug

	// A body-only save keeps the slug.
	body := "updated body"
	item, err = svc.UpdateContent(t.Context(), mediaref.UpdateContentRequest{
		ID:              item.ID,
		ActorID:         actorID,
		ExpectedVersion: item.Version,
		Body:            &body,
	})
	require.NoError(t, err)
	assert.Equal(t, originalSlug, item.Slug)

	// Re-sending the same title keeps the slug too.
	sameTitle := "First Title"
	item, err = svc.UpdateContent(t.Context(), mediaref.UpdateContentRequest{
		ID:              item.ID,
		ActorID:         actorID,
		ExpectedVersion: item.Version,
		Title:           &sameTitle,
	})
	require.NoError(t, err)
	assert.Equal(t, originalSlug, item.Slug)

	// A real title change regenerates it.
	newTitle := "Second Title"
	item, err = svc.UpdateContent(t.Context(), mediaref.UpdateContentRequest{
		ID:              item.ID,
		ActorID:         actorID,
		ExpectedVersion: item.Version,
		Title:           &newTitle,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(item.Slug, "second-title-"))
}

func TestUpdateContentVersionConflict(t *testing.T) {
	svc := newTestService(t)
	actorID := uuid.New()

	item, err := svc.CreateContent(t.Context(), mediaref.CreateContentRequest{
		EntityType: mediaref.EntityTypeBlog,
		Title:      "Contended Post",
		ActorID:    actorID,
	})
	require.NoError(t, err)

	title := "Writer A"
	_, err = svc.UpdateContent(t.Context(), mediaref.UpdateContentRequest{
		ID:              item.ID,
		ActorID:         actorID,
		ExpectedVersion: item.Version,
		Title:           &title,
	})
	require.NoError(t, err)

	// A second writer still holding the old version loses.
	title = "Writer B"
	_, err = svc.UpdateContent(t.Context(), mediaref.UpdateContentRequest{
		ID:              item.ID,
		ActorID:         actorID,
		ExpectedVersion: item.Version,
		Title:           &title,
	})
	assert.ErrorIs(t, err, mediaref.ErrVersionConflict)
}

func TestUpdateContentReconcilesUsage(t *testing.T) {
	svc := newTestService(t)
	actorID := uuid.New()
	m1 := newImageAsset(t, svc)
	m2 := newImageAsset(t, svc)

	item, err := svc.CreateContent(t.Context(), mediaref.CreateContentRequest{
		EntityType:  mediaref.EntityTypeEvent,
		Title:       "Charity Gala",
		ActorID:     actorID,
		HeroImageID: &m1.ID,
	})
	require.NoError(t, err)

	// Swap the hero image.
	item, err = svc.UpdateContent(t.Context(), mediaref.UpdateContentRequest{
		ID:              item.ID,
		ActorID:         actorID,
		ExpectedVersion: item.Version,
		HeroImageID:     mediaref.RefPatch{Set: true, ID: &m2.ID},
	})
	require.NoError(t, err)

	got1, err := svc.GetAsset(t.Context(), m1.ID)
	require.NoError(t, err)
	assert.Empty(t, got1.UsedIn)

	got2, err := svc.GetAsset(t.Context(), m2.ID)
	require.NoError(t, err)
	assert.Len(t, got2.UsedIn, 1)

	// Saving the same references again changes nothing (idempotent).
	item, err = svc.UpdateContent(t.Context(), mediaref.UpdateContentRequest{
		ID:              item.ID,
		ActorID:         actorID,
		ExpectedVersion: item.Version,
		HeroImageID:     mediaref.RefPatch{Set: true, ID: &m2.ID},
	})
	require.NoError(t, err)

	got2, err = svc.GetAsset(t.Context(), m2.ID)
	require.NoError(t, err)
	assert.Len(t, got2.UsedIn, 1)
}

func TestSoftDeleteRestoreRoundTrip(t *testing.T) {
	svc := newTestService(t)
	actorID := uuid.New()
	hero := newImageAsset(t, svc)

	item, err := svc.CreateContent(t.Context(), mediaref.CreateContentRequest{
		EntityType:  mediaref.EntityTypeEvent,
		Title:       "Charity Gala",
		ActorID:     actorID,
		HeroImageID: &hero.ID,
	})
	require.NoError(t, err)

	require.NoError(t, svc.SoftDeleteContent(t.Context(), item.ID, actorID))

	// Hidden from default reads, visible to admin reads.
	_, err = svc.GetContent(t.Context(), item.ID, mediaref.GetOptions{})
	assert.ErrorIs(t, err, mediaref.ErrContentNotFound)
	deleted, err := svc.GetContent(t.Context(), item.ID, mediaref.GetOptions{IncludeDeleted: true})
	require.NoError(t, err)
	assert.NotNil(t, deleted.DeletedAt)
	// The stored references survive the delete for later restore.
	assert.NotNil(t, deleted.HeroImageID)

	// Usage was detached.
	got, err := svc.GetAsset(t.Context(), hero.ID)
	require.NoError(t, err)
	assert.Empty(t, got.UsedIn)

	// Double delete is an invalid transition.
	err = svc.SoftDeleteContent(t.Context(), item.ID, actorID)
	assert.ErrorIs(t, err, mediaref.ErrInvalidState)

	restored, err := svc.RestoreContent(t.Context(), item.ID, actorID)
	require.NoError(t, err)
	assert.Nil(t, restored.DeletedAt)

	got, err = svc.GetAsset(t.Context(), hero.ID)
	require.NoError(t, err)
	assert.Len(t, got.UsedIn, 1)

	// Restoring a live item is invalid too.
	_, err = svc.RestoreContent(t.Context(), item.ID, actorID)
	assert.ErrorIs(t, err, mediaref.ErrInvalidState)
}

func TestRestoreSkipsVanishedAssets(t *testing.T) {
	svc := newTestService(t)
	actorID := uuid.New()
	hero := newImageAsset(t, svc)
	gallery := newImageAsset(t, svc)

	item, err := svc.CreateContent(t.Context(), mediaref.CreateContentRequest{
		EntityType:  mediaref.EntityTypeBlog,
		Title:       "Travel Diary",
		ActorID:     actorID,
		HeroImageID: &hero.ID,
		GalleryIDs:  []uuid.UUID{gallery.ID},
	})
	require.NoError(t, err)

	require.NoError(t, svc.SoftDeleteContent(t.Context(), item.ID, actorID))

	// The hero asset is purged while the item sits in the trash.
	require.NoError(t, svc.DeleteAsset(t.Context(), hero.ID))

	restored, err := svc.RestoreContent(t.Context(), item.ID, actorID)
	require.NotNil(t, restored)
	assert.Nil(t, restored.DeletedAt)

	// The restore succeeded but reports the skipped reference.
	var pf *mediaref.PartialFailureError
	require.ErrorAs(t, err, &pf)
	require.Len(t, pf.Failures, 1)
	assert.Equal(t, hero.ID, pf.Failures[0].AssetID)
	assert.Equal(t, 1, pf.Applied)

	// The surviving gallery reference was reattached.
	got, err := svc.GetAsset(t.Context(), gallery.ID)
	require.NoError(t, err)
	assert.Len(t, got.UsedIn, 1)
}

func TestDeleteAssetGuard(t *testing.T) {
	svc := newTestService(t)
	actorID := uuid.New()
	hero := newImageAsset(t, svc)

	item, err := svc.CreateContent(t.Context(), mediaref.CreateContentRequest{
		EntityType:  mediaref.EntityTypeBlog,
		Title:       "Guarded",
		ActorID:     actorID,
		HeroImageID: &hero.ID,
	})
	require.NoError(t, err)

	err = svc.DeleteAsset(t.Context(), hero.ID)
	assert.ErrorIs(t, err, mediaref.ErrAssetInUse)

	// Clearing the reference unblocks the delete.
	_, err = svc.UpdateContent(t.Context(), mediaref.UpdateContentRequest{
		ID:              item.ID,
		ActorID:         actorID,
		ExpectedVersion: item.Version,
		HeroImageID:     mediaref.RefPatch{Set: true, ID: nil},
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAsset(t.Context(), hero.ID))
	_, err = svc.GetAsset(t.Context(), hero.ID)
	assert.ErrorIs(t, err, mediaref.ErrAssetNotFound)
}

func TestViewCounting(t *testing.T) {
	svc := newTestService(t)
	actorID := uuid.New()

	published, err := svc.CreateContent(t.Context(), mediaref.CreateContentRequest{
		EntityType: mediaref.EntityTypeBlog,
		Title:      "Hot Post",
		Status:     mediaref.ContentStatusPublished,
		ActorID:    actorID,
	})
	require.NoError(t, err)
	draft, err := svc.CreateContent(t.Context(), mediaref.CreateContentRequest{
		EntityType: mediaref.EntityTypeBlog,
		Title:      "Quiet Draft",
		ActorID:    actorID,
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := svc.GetContent(t.Context(), published.ID, mediaref.GetOptions{CountView: true})
		require.NoError(t, err)
		_, err = svc.GetContent(t.Context(), draft.ID, mediaref.GetOptions{CountView: true})
		require.NoError(t, err)
	}
	// Plain reads never count.
	_, err = svc.GetContent(t.Context(), published.ID, mediaref.GetOptions{})
	require.NoError(t, err)

	got, err := svc.GetContent(t.Context(), published.ID, mediaref.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Views)

	got, err = svc.GetContent(t.Context(), draft.ID, mediaref.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Views, "draft reads are not counted")
}

func TestPublishedAtStampedOnce(t *testing.T) {
	svc := newTestService(t)
	actorID := uuid.New()

	item, err := svc.CreateContent(t.Context(), mediaref.CreateContentRequest{
		EntityType: mediaref.EntityTypeBlog,
		Title:      "Republished",
		ActorID:    actorID,
	})
	require.NoError(t, err)

	publish := mediaref.ContentStatusPublished
	item, err = svc.UpdateContent(t.Context(), mediaref.UpdateContentRequest{
		ID:              item.ID,
		ActorID:         actorID,
		ExpectedVersion: item.Version,
		Status:          &publish,
	})
	require.NoError(t, err)
	require.NotNil(t, item.PublishedAt)
	firstPublished := *item.PublishedAt

	archive := mediaref.ContentStatusArchived
	item, err = svc.UpdateContent(t.Context(), mediaref.UpdateContentRequest{
		ID:              item.ID,
		ActorID:         actorID,
		ExpectedVersion: item.Version,
		Status:          &archive,
	})
	require.NoError(t, err)

	item, err = svc.UpdateContent(t.Context(), mediaref.UpdateContentRequest{
		ID:              item.ID,
		ActorID:         actorID,
		ExpectedVersion: item.Version,
		Status:          &publish,
	})
	require.NoError(t, err)
	require.NotNil(t, item.PublishedAt)
	assert.Equal(t, firstPublished, *item.PublishedAt)
}

func TestTransactionalRefsMode(t *testing.T) {
	svc := newTestService(t, mediaref.WithTransactionalRefs())
	actorID := uuid.New()
	hero := newImageAsset(t, svc)

	item, err := svc.CreateContent(t.Context(), mediaref.CreateContentRequest{
		EntityType:  mediaref.EntityTypeEvent,
		Title:       "Atomic Event",
		ActorID:     actorID,
		HeroImageID: &hero.ID,
	})
	require.NoError(t, err)

	got, err := svc.GetAsset(t.Context(), hero.ID)
	require.NoError(t, err)
	assert.Len(t, got.UsedIn, 1)

	require.NoError(t, svc.SoftDeleteContent(t.Context(), item.ID, actorID))
	got, err = svc.GetAsset(t.Context(), hero.ID)
	require.NoError(t, err)
	assert.Empty(t, got.UsedIn)
}

func TestPurgeUnusedAssets(t *testing.T) {
	svc := newTestService(t)
	actorID := uuid.New()
	used := newImageAsset(t, svc)
	unused1 := newImageAsset(t, svc)
	unused2 := newImageAsset(t, svc)

	_, err := svc.CreateContent(t.Context(), mediaref.CreateContentRequest{
		EntityType:  mediaref.EntityTypeBlog,
		Title:       "Keeper",
		ActorID:     actorID,
		HeroImageID: &used.ID,
	})
	require.NoError(t, err)

	result, err := svc.PurgeUnusedAssets(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Deleted)
	assert.Empty(t, result.Failures)

	for _, id := range []uuid.UUID{unused1.ID, unused2.ID} {
		_, err := svc.GetAsset(t.Context(), id)
		assert.ErrorIs(t, err, mediaref.ErrAssetNotFound)
	}
	_, err = svc.GetAsset(t.Context(), used.ID)
	assert.NoError(t, err)
}

func TestGetBackend(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GetBackend("memory")
	assert.NoError(t, err)

	_, err = svc.GetBackend("does-not-exist")
	assert.True(t, errors.Is(err, mediaref.ErrStorageBackendNotFound))
}
