package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contentkit/mediaref/pkg/mediaref"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements mediaref.Repository using PostgreSQL. Usage tuples
// live in a media_usage table with a composite primary key, so AddUsage and
// RemoveUsage are single-statement atomic set mutations.
type Repository struct {
	db   DBTX
	pool *pgxpool.Pool
}

// New creates a new PostgreSQL repository bound to a connection or transaction
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with a connection pool.
// Pool-backed repositories also support WithTx.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool}
}

// WithTx runs fn against a repository bound to a single transaction,
// committing on nil and rolling back on error. Implements
// mediaref.TxRepository for the service's transactional reference mode.
func (r *Repository) WithTx(ctx context.Context, fn func(mediaref.Repository) error) error {
	if r.pool == nil {
		return fmt.Errorf("transactions require a pool-backed repository")
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&Repository{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// mapError translates driver errors into domain errors.
func mapError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if strings.Contains(pgErr.ConstraintName, "slug") {
				return mediaref.ErrSlugTaken
			}
			return fmt.Errorf("%s: duplicate entry: %w", op, err)
		case "23503": // foreign_key_violation
			if strings.Contains(pgErr.ConstraintName, "media_usage") {
				return mediaref.ErrAssetNotFound
			}
			return fmt.Errorf("%s: referenced record not found: %w", op, err)
		case "42P01": // undefined_table
			return fmt.Errorf("%s: table does not exist - database migration required", op)
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return mediaref.ErrContentNotFound
	}
	return fmt.Errorf("database error in %s: %w", op, err)
}

// Content operations

const contentColumns = `
	id, entity_type, title, slug, body, status,
	hero_image_id, gallery_ids, video_id,
	starts_at, ends_at, location,
	published_at, views, version,
	created_by, updated_by, created_at, updated_at, deleted_at`

func scanContent(row pgx.Row) (*mediaref.ContentItem, error) {
	var item mediaref.ContentItem
	err := row.Scan(
		&item.ID, &item.EntityType, &item.Title, &item.Slug, &item.Body, &item.Status,
		&item.HeroImageID, &item.GalleryIDs, &item.VideoID,
		&item.StartsAt, &item.EndsAt, &item.Location,
		&item.PublishedAt, &item.Views, &item.Version,
		&item.CreatedBy, &item.UpdatedBy, &item.CreatedAt, &item.UpdatedAt, &item.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *Repository) CreateContent(ctx context.Context, item *mediaref.ContentItem) error {
	query := `
		INSERT INTO content_items (
			id, entity_type, title, slug, body, status,
			hero_image_id, gallery_ids, video_id,
			starts_at, ends_at, location,
			published_at, views, version,
			created_by, updated_by, created_at, updated_at, deleted_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`

	_, err := r.db.Exec(ctx, query,
		item.ID, item.EntityType, item.Title, item.Slug, item.Body, item.Status,
		item.HeroImageID, item.GalleryIDs, item.VideoID,
		item.StartsAt, item.EndsAt, item.Location,
		item.PublishedAt, item.Views, item.Version,
		item.CreatedBy, item.UpdatedBy, item.CreatedAt, item.UpdatedAt, item.DeletedAt)
	if err != nil {
		return mapError("create content", err)
	}
	return nil
}

func (r *Repository) GetContent(ctx context.Context, id uuid.UUID, includeDeleted bool) (*mediaref.ContentItem, error) {
	query := `SELECT ` + contentColumns + ` FROM content_items WHERE id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}

	item, err := scanContent(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, mediaref.ErrContentNotFound
		}
		return nil, mapError("get content", err)
	}
	return item, nil
}

func (r *Repository) GetContentBySlug(ctx context.Context, slug string, includeDeleted bool) (*mediaref.ContentItem, error) {
	query := `SELECT ` + contentColumns + ` FROM content_items WHERE slug = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}

	item, err := scanContent(r.db.QueryRow(ctx, query, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, mediaref.ErrContentNotFound
		}
		return nil, mapError("get content by slug", err)
	}
	return item, nil
}

func (r *Repository) UpdateContent(ctx context.Context, item *mediaref.ContentItem, expectedVersion int64) error {
	query := `
		UPDATE content_items SET
			title = $2, slug = $3, body = $4, status = $5,
			hero_image_id = $6, gallery_ids = $7, video_id = $8,
			starts_at = $9, ends_at = $10, location = $11,
			published_at = $12, updated_by = $13, updated_at = $14,
			deleted_at = $15, version = version + 1
		WHERE id = $1 AND version = $16
		RETURNING version`

	err := r.db.QueryRow(ctx, query,
		item.ID, item.Title, item.Slug, item.Body, item.Status,
		item.HeroImageID, item.GalleryIDs, item.VideoID,
		item.StartsAt, item.EndsAt, item.Location,
		item.PublishedAt, item.UpdatedBy, item.UpdatedAt,
		item.DeletedAt, expectedVersion,
	).Scan(&item.Version)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return mapError("update content", err)
	}

	// No row matched: distinguish a missing item from a lost version race.
	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM content_items WHERE id = $1)`, item.ID,
	).Scan(&exists); err != nil {
		return mapError("update content", err)
	}
	if !exists {
		return mediaref.ErrContentNotFound
	}
	return mediaref.ErrVersionConflict
}

func (r *Repository) ListContent(ctx context.Context, req mediaref.ListContentRequest) ([]*mediaref.ContentItem, error) {
	query := `SELECT ` + contentColumns + ` FROM content_items WHERE 1=1`
	var args []interface{}

	if !req.IncludeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	if req.EntityType != "" {
		args = append(args, req.EntityType)
		query += fmt.Sprintf(` AND entity_type = $%d`, len(args))
	}
	if req.Status != "" {
		args = append(args, req.Status)
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`
	if req.Limit > 0 {
		args = append(args, req.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if req.Offset > 0 {
		args = append(args, req.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError("list content", err)
	}
	defer rows.Close()

	var items []*mediaref.ContentItem
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, mapError("scan content", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *Repository) IncrementViews(ctx context.Context, id uuid.UUID, delta int64) error {
	// Single atomic in-place increment; never read-then-write.
	tag, err := r.db.Exec(ctx,
		`UPDATE content_items SET views = views + $2 WHERE id = $1 AND deleted_at IS NULL`,
		id, delta)
	if err != nil {
		return mapError("increment views", err)
	}
	if tag.RowsAffected() == 0 {
		return mediaref.ErrContentNotFound
	}
	return nil
}

// Media asset operations

const assetColumns = `
	id, media_type, storage_backend_name, object_key, file_name, mime_type,
	size_bytes, width, height, created_at, updated_at, deleted_at`

func scanAsset(row pgx.Row) (*mediaref.MediaAsset, error) {
	var asset mediaref.MediaAsset
	err := row.Scan(
		&asset.ID, &asset.MediaType, &asset.StorageBackendName, &asset.ObjectKey,
		&asset.FileName, &asset.MimeType, &asset.SizeBytes, &asset.Width, &asset.Height,
		&asset.CreatedAt, &asset.UpdatedAt, &asset.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

func (r *Repository) CreateAsset(ctx context.Context, asset *mediaref.MediaAsset) error {
	query := `
		INSERT INTO media_assets (
			id, media_type, storage_backend_name, object_key, file_name, mime_type,
			size_bytes, width, height, created_at, updated_at, deleted_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`

	_, err := r.db.Exec(ctx, query,
		asset.ID, asset.MediaType, asset.StorageBackendName, asset.ObjectKey,
		asset.FileName, asset.MimeType, asset.SizeBytes, asset.Width, asset.Height,
		asset.CreatedAt, asset.UpdatedAt, asset.DeletedAt)
	if err != nil {
		return mapError("create asset", err)
	}
	return nil
}

func (r *Repository) GetAsset(ctx context.Context, id uuid.UUID, includeDeleted bool) (*mediaref.MediaAsset, error) {
	query := `SELECT ` + assetColumns + ` FROM media_assets WHERE id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}

	asset, err := scanAsset(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, mediaref.ErrAssetNotFound
		}
		return nil, mapError("get asset", err)
	}

	asset.UsedIn, err = r.listUsage(ctx, id)
	if err != nil {
		return nil, err
	}
	return asset, nil
}

func (r *Repository) UpdateAsset(ctx context.Context, asset *mediaref.MediaAsset) error {
	query := `
		UPDATE media_assets SET
			media_type = $2, storage_backend_name = $3, object_key = $4,
			file_name = $5, mime_type = $6, size_bytes = $7,
			width = $8, height = $9, updated_at = $10, deleted_at = $11
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		asset.ID, asset.MediaType, asset.StorageBackendName, asset.ObjectKey,
		asset.FileName, asset.MimeType, asset.SizeBytes,
		asset.Width, asset.Height, asset.UpdatedAt, asset.DeletedAt)
	if err != nil {
		return mapError("update asset", err)
	}
	if tag.RowsAffected() == 0 {
		return mediaref.ErrAssetNotFound
	}
	return nil
}

func (r *Repository) listUsage(ctx context.Context, assetID uuid.UUID) ([]mediaref.UsageTuple, error) {
	rows, err := r.db.Query(ctx, `
		SELECT entity_type, entity_id, field_name
		FROM media_usage
		WHERE asset_id = $1
		ORDER BY entity_id, field_name`, assetID)
	if err != nil {
		return nil, mapError("list usage", err)
	}
	defer rows.Close()

	var tuples []mediaref.UsageTuple
	for rows.Next() {
		var t mediaref.UsageTuple
		if err := rows.Scan(&t.EntityType, &t.EntityID, &t.FieldName); err != nil {
			return nil, mapError("scan usage", err)
		}
		tuples = append(tuples, t)
	}
	return tuples, rows.Err()
}

// Usage set operations

func (r *Repository) AddUsage(ctx context.Context, assetID uuid.UUID, tuple mediaref.UsageTuple) error {
	// Single-statement set insert: the composite primary key makes the
	// conflict clause an idempotent no-op, and the SELECT guard refuses
	// tuples for missing or deleted assets.
	tag, err := r.db.Exec(ctx, `
		INSERT INTO media_usage (asset_id, entity_type, entity_id, field_name)
		SELECT m.id, $2, $3, $4
		FROM media_assets m
		WHERE m.id = $1 AND m.deleted_at IS NULL
		ON CONFLICT (asset_id, entity_type, entity_id, field_name) DO NOTHING`,
		assetID, tuple.EntityType, tuple.EntityID, tuple.FieldName)
	if err != nil {
		return mapError("add usage", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Zero rows means either the tuple already existed (fine) or the
	// asset is gone; only the latter is an error.
	var live bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM media_assets WHERE id = $1 AND deleted_at IS NULL)`,
		assetID,
	).Scan(&live); err != nil {
		return mapError("add usage", err)
	}
	if !live {
		return mediaref.ErrAssetNotFound
	}
	return nil
}

func (r *Repository) RemoveUsage(ctx context.Context, assetID uuid.UUID, tuple mediaref.UsageTuple) error {
	// Removing an absent tuple, or usage of a vanished asset, is a no-op.
	_, err := r.db.Exec(ctx, `
		DELETE FROM media_usage
		WHERE asset_id = $1 AND entity_type = $2 AND entity_id = $3 AND field_name = $4`,
		assetID, tuple.EntityType, tuple.EntityID, tuple.FieldName)
	if err != nil {
		return mapError("remove usage", err)
	}
	return nil
}

func (r *Repository) DeleteAsset(ctx context.Context, id uuid.UUID) error {
	// The emptiness check and delete are one statement; the foreign key
	// from media_usage backstops any racing AddUsage with a constraint
	// violation, which also maps to ErrAssetInUse.
	tag, err := r.db.Exec(ctx, `
		DELETE FROM media_assets m
		WHERE m.id = $1
		  AND NOT EXISTS (SELECT 1 FROM media_usage u WHERE u.asset_id = m.id)`,
		id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return mediaref.ErrAssetInUse
		}
		return mapError("delete asset", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM media_assets WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return mapError("delete asset", err)
	}
	if exists {
		return mediaref.ErrAssetInUse
	}
	return mediaref.ErrAssetNotFound
}

func (r *Repository) ListUnusedAssets(ctx context.Context) ([]*mediaref.MediaAsset, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+assetColumns+`
		FROM media_assets m
		WHERE m.deleted_at IS NULL
		  AND NOT EXISTS (SELECT 1 FROM media_usage u WHERE u.asset_id = m.id)
		ORDER BY m.created_at DESC`)
	if err != nil {
		return nil, mapError("list unused assets", err)
	}
	defer rows.Close()

	var assets []*mediaref.MediaAsset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, mapError("scan asset", err)
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}
