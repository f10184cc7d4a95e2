package mediaref

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/contentkit/mediaref/pkg/mediaref/slug"
)

// service implements the Service interface
type service struct {
	repository Repository
	blobStores map[string]BlobStore
	eventSink  EventSink
	counter    ViewCounter
	logger     *slog.Logger
	makeSlug   func(string) string
	txRefs     bool
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore adds a blob storage backend under the given name
func WithBlobStore(name string, store BlobStore) Option {
	return func(s *service) {
		if s.blobStores == nil {
			s.blobStores = make(map[string]BlobStore)
		}
		s.blobStores[name] = store
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithViewCounter installs a hot-path view counter in front of the
// repository's stored counter.
func WithViewCounter(counter ViewCounter) Option {
	return func(s *service) {
		s.counter = counter
	}
}

// WithLogger sets the structured logger used for non-fatal service noise.
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithTransactionalRefs switches reference-delta application from the
// best-effort default to all-or-nothing. Requires a repository implementing
// TxRepository; with it, a failing usage mutation rolls back the whole
// delta instead of reporting a partial result.
func WithTransactionalRefs() Option {
	return func(s *service) {
		s.txRefs = true
	}
}

// WithSlugFunc overrides slug generation. Mostly useful in tests that need
// deterministic slugs.
func WithSlugFunc(fn func(string) string) Option {
	return func(s *service) {
		s.makeSlug = fn
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		blobStores: make(map[string]BlobStore),
		makeSlug:   slug.Make,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.txRefs {
		if _, ok := s.repository.(TxRepository); !ok {
			return nil, fmt.Errorf("transactional refs require a TxRepository")
		}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s, nil
}

// Content operations

func (s *service) CreateContent(ctx context.Context, req CreateContentRequest) (*ContentItem, error) {
	if !req.EntityType.Valid() {
		return nil, ErrInvalidEntityType
	}
	status := req.Status
	if status == "" {
		status = ContentStatusDraft
	}
	if !status.Valid() {
		return nil, fmt.Errorf("invalid content status %q", req.Status)
	}

	now := time.Now().UTC()
	item := &ContentItem{
		ID:          uuid.New(),
		EntityType:  req.EntityType,
		Title:       req.Title,
		Slug:        s.makeSlug(req.Title),
		Body:        req.Body,
		Status:      status,
		HeroImageID: req.HeroImageID,
		GalleryIDs:  append([]uuid.UUID(nil), req.GalleryIDs...),
		VideoID:     req.VideoID,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		Location:    req.Location,
		Version:     1,
		CreatedBy:   req.ActorID,
		UpdatedBy:   req.ActorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if status == ContentStatusPublished {
		item.PublishedAt = &now
	}

	newRefs := item.MediaRefs()
	if err := s.preflightRefs(ctx, item.EntityType, nil, newRefs); err != nil {
		return nil, &ContentError{ContentID: item.ID, Op: "create", Err: err}
	}

	if err := s.createWithSlugRetry(ctx, item); err != nil {
		return nil, &ContentError{ContentID: item.ID, Op: "create", Err: err}
	}

	s.fireEvent(ctx, "content created", func(sink EventSink) error {
		return sink.ContentCreated(ctx, item)
	})

	if pf := s.applyDelta(ctx, item.EntityType, item.ID, nil, newRefs, "create content refs"); pf != nil {
		return item, pf
	}
	return item, nil
}

// createWithSlugRetry inserts the item, regenerating the slug once if the
// store's uniqueness constraint rejects it. The suffix makes collisions
// vanishingly rare; one retry covers the pathological case.
func (s *service) createWithSlugRetry(ctx context.Context, item *ContentItem) error {
	err := s.repository.CreateContent(ctx, item)
	if errors.Is(err, ErrSlugTaken) {
		item.Slug = s.makeSlug(item.Title)
		err = s.repository.CreateContent(ctx, item)
	}
	return err
}

func (s *service) UpdateContent(ctx context.Context, req UpdateContentRequest) (*ContentItem, error) {
	item, err := s.repository.GetContent(ctx, req.ID, false)
	if err != nil {
		return nil, err
	}
	oldRefs := item.MediaRefs()

	if req.Title != nil && *req.Title != item.Title {
		item.Title = *req.Title
		// Slug regenerates only on a real title change, never on plain
		// saves.
		item.Slug = s.makeSlug(item.Title)
	}
	if req.Body != nil {
		item.Body = *req.Body
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			return nil, fmt.Errorf("invalid content status %q", *req.Status)
		}
		item.Status = *req.Status
		// PublishedAt is stamped exactly once, on the first transition
		// into published, and survives later status changes.
		if item.Status == ContentStatusPublished && item.PublishedAt == nil {
			now := time.Now().UTC()
			item.PublishedAt = &now
		}
	}
	item.HeroImageID = req.HeroImageID.Apply(item.HeroImageID)
	if req.GalleryIDs != nil {
		item.GalleryIDs = append([]uuid.UUID(nil), (*req.GalleryIDs)...)
	}
	item.VideoID = req.VideoID.Apply(item.VideoID)
	if req.StartsAt != nil {
		item.StartsAt = req.StartsAt
	}
	if req.EndsAt != nil {
		item.EndsAt = req.EndsAt
	}
	if req.Location != nil {
		item.Location = *req.Location
	}

	newRefs := item.MediaRefs()
	if err := s.preflightRefs(ctx, item.EntityType, oldRefs, newRefs); err != nil {
		return nil, &ContentError{ContentID: item.ID, Op: "update", Err: err}
	}

	item.UpdatedBy = req.ActorID
	item.UpdatedAt = time.Now().UTC()
	if err := s.repository.UpdateContent(ctx, item, req.ExpectedVersion); err != nil {
		if errors.Is(err, ErrSlugTaken) && req.Title != nil {
			item.Slug = s.makeSlug(item.Title)
			err = s.repository.UpdateContent(ctx, item, req.ExpectedVersion)
		}
		if err != nil {
			return nil, &ContentError{ContentID: item.ID, Op: "update", Err: err}
		}
	}

	s.fireEvent(ctx, "content updated", func(sink EventSink) error {
		return sink.ContentUpdated(ctx, item)
	})

	if pf := s.applyDelta(ctx, item.EntityType, item.ID, oldRefs, newRefs, "update content refs"); pf != nil {
		return item, pf
	}
	return item, nil
}

// Soft-delete lifecycle

func (s *service) SoftDeleteContent(ctx context.Context, id uuid.UUID, actorID uuid.UUID) error {
	item, err := s.repository.GetContent(ctx, id, true)
	if err != nil {
		return err
	}
	if item.IsDeleted() {
		return &ContentError{ContentID: id, Op: "soft_delete", Err: ErrInvalidState}
	}

	refs := item.MediaRefs()
	now := time.Now().UTC()
	item.DeletedAt = &now
	item.UpdatedBy = actorID
	item.UpdatedAt = now
	if err := s.repository.UpdateContent(ctx, item, item.Version); err != nil {
		return &ContentError{ContentID: id, Op: "soft_delete", Err: err}
	}

	s.fireEvent(ctx, "content soft-deleted", func(sink EventSink) error {
		return sink.ContentSoftDeleted(ctx, id)
	})

	// Detach every current reference tuple. The delete itself stands even
	// if some detachments fail; those are reported for retry.
	if pf := s.applyDelta(ctx, item.EntityType, id, refs, nil, "detach content refs"); pf != nil {
		return pf
	}
	return nil
}

func (s *service) RestoreContent(ctx context.Context, id uuid.UUID, actorID uuid.UUID) (*ContentItem, error) {
	item, err := s.repository.GetContent(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if !item.IsDeleted() {
		return nil, &ContentError{ContentID: id, Op: "restore", Err: ErrInvalidState}
	}

	item.DeletedAt = nil
	item.UpdatedBy = actorID
	item.UpdatedAt = time.Now().UTC()
	if err := s.repository.UpdateContent(ctx, item, item.Version); err != nil {
		return nil, &ContentError{ContentID: id, Op: "restore", Err: err}
	}

	s.fireEvent(ctx, "content restored", func(sink EventSink) error {
		return sink.ContentRestored(ctx, item)
	})

	// Reattach the stored references. An asset that vanished or was
	// deleted while the item was in the trash is skipped and reported;
	// the restore itself succeeds.
	if pf := s.applyDelta(ctx, item.EntityType, id, nil, item.MediaRefs(), "restore content refs"); pf != nil {
		return item, pf
	}
	return item, nil
}

// Reads

func (s *service) GetContent(ctx context.Context, id uuid.UUID, opts GetOptions) (*ContentItem, error) {
	item, err := s.repository.GetContent(ctx, id, opts.IncludeDeleted)
	if err != nil {
		return nil, err
	}
	s.maybeCountView(ctx, item, opts)
	return item, nil
}

func (s *service) GetContentBySlug(ctx context.Context, slugValue string, opts GetOptions) (*ContentItem, error) {
	item, err := s.repository.GetContentBySlug(ctx, slugValue, opts.IncludeDeleted)
	if err != nil {
		return nil, err
	}
	s.maybeCountView(ctx, item, opts)
	return item, nil
}

func (s *service) ListContent(ctx context.Context, req ListContentRequest) ([]*ContentItem, error) {
	return s.repository.ListContent(ctx, req)
}

// maybeCountView performs the atomic view increment for public fetches of
// published, live items. Counting is best-effort: a counter hiccup never
// fails the read.
func (s *service) maybeCountView(ctx context.Context, item *ContentItem, opts GetOptions) {
	if !opts.CountView || !item.IsPublished() || item.IsDeleted() {
		return
	}
	var err error
	if s.counter != nil {
		err = s.counter.Increment(ctx, item.ID)
	} else {
		err = s.repository.IncrementViews(ctx, item.ID, 1)
	}
	if err != nil {
		s.logger.Warn("view count increment failed", "content_id", item.ID, "error", err)
		return
	}
	item.Views++
}

// Internal helpers

// preflightRefs fails fast, before any mutation, when the new reference map
// names a field the entity type cannot carry or adds an asset that does not
// exist. Only newly added IDs are checked so an item already holding a
// reference to a since-deleted asset can still be saved.
func (s *service) preflightRefs(ctx context.Context, entityType EntityType, oldRefs, newRefs RefMap) error {
	if entityType != EntityTypeBlog && len(newRefs[FieldVideo]) > 0 {
		return ErrFieldNotAllowed
	}
	_, added := refDelta(oldRefs, newRefs)
	for _, ch := range added {
		if _, err := s.repository.GetAsset(ctx, ch.assetID, false); err != nil {
			return fmt.Errorf("referenced asset %s: %w", ch.assetID, err)
		}
	}
	return nil
}

// applyDelta routes the delta through the configured mode. Best-effort
// returns an itemized *PartialFailureError; transactional mode rolls the
// whole delta back on the first failure so no partial state survives.
func (s *service) applyDelta(ctx context.Context, entityType EntityType, entityID uuid.UUID, oldRefs, newRefs RefMap, op string) error {
	if s.txRefs {
		txr := s.repository.(TxRepository)
		return txr.WithTx(ctx, func(repo Repository) error {
			if pf := applyRefDelta(ctx, repo, entityType, entityID, oldRefs, newRefs, op); pf != nil {
				return pf
			}
			return nil
		})
	}
	if pf := applyRefDelta(ctx, s.repository, entityType, entityID, oldRefs, newRefs, op); pf != nil {
		return pf
	}
	return nil
}

func (s *service) fireEvent(ctx context.Context, what string, fn func(EventSink) error) {
	if s.eventSink == nil {
		return
	}
	if err := fn(s.eventSink); err != nil {
		// Events are advisory; a sink error never fails the operation.
		s.logger.Warn("event sink error", "event", what, "error", err)
	}
}
