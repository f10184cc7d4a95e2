package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/contentkit/mediaref/pkg/mediaref"
)

// ContentHandler handles HTTP requests for events and blog posts using
// pkg/mediaref.
type ContentHandler struct {
	service mediaref.Service
}

// NewContentHandler creates a new content handler
func NewContentHandler(service mediaref.Service) *ContentHandler {
	return &ContentHandler{service: service}
}

// Routes returns the routes for content
func (h *ContentHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateContent)
	r.Get("/", h.ListContent)
	r.Get("/{id}", h.GetContent)
	r.Patch("/{id}", h.UpdateContent)
	r.Delete("/{id}", h.SoftDeleteContent)
	r.Post("/{id}/restore", h.RestoreContent)
	r.Get("/slug/{slug}", h.GetContentBySlug)

	return r
}

// CreateContentRequest is the request body for creating an event or blog post
type CreateContentRequest struct {
	EntityType  string     `json:"entity_type"`
	Title       string     `json:"title"`
	Body        string     `json:"body,omitempty"`
	Status      string     `json:"status,omitempty"`
	ActorID     string     `json:"actor_id"`
	HeroImageID *string    `json:"hero_image_id,omitempty"`
	GalleryIDs  []string   `json:"gallery_ids,omitempty"`
	VideoID     *string    `json:"video_id,omitempty"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	Location    string     `json:"location,omitempty"`
}

// UpdateContentRequest is the request body for a partial content update.
// Absent fields are left unchanged; hero_image_id and video_id distinguish
// "absent" from "set to null" via the set flags.
type UpdateContentRequest struct {
	ExpectedVersion int64 `json:"expected_version"`

	ActorID string  `json:"actor_id"`
	Title   *string `json:"title,omitempty"`
	Body    *string `json:"body,omitempty"`
	Status  *string `json:"status,omitempty"`

	SetHeroImage bool      `json:"set_hero_image,omitempty"`
	HeroImageID  *string   `json:"hero_image_id,omitempty"`
	GalleryIDs   *[]string `json:"gallery_ids,omitempty"`
	SetVideo     bool      `json:"set_video,omitempty"`
	VideoID      *string   `json:"video_id,omitempty"`

	StartsAt *time.Time `json:"starts_at,omitempty"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`
	Location *string    `json:"location,omitempty"`
}

// ContentResponse wraps a content item with any non-fatal reference
// warnings from the write that produced it.
type ContentResponse struct {
	*mediaref.ContentItem
	RefWarnings []string `json:"ref_warnings,omitempty"`
}

// CreateContent creates a new event or blog post
func (h *ContentHandler) CreateContent(w http.ResponseWriter, r *http.Request) {
	var req CreateContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	actorID, err := uuid.Parse(req.ActorID)
	if err != nil {
		slog.Error("Invalid actor ID", "actor_id", req.ActorID, "error", err)
		http.Error(w, "Invalid actor ID", http.StatusBadRequest)
		return
	}

	createReq := mediaref.CreateContentRequest{
		EntityType: mediaref.EntityType(req.EntityType),
		Title:      req.Title,
		Body:       req.Body,
		Status:     mediaref.ContentStatus(req.Status),
		ActorID:    actorID,
		StartsAt:   req.StartsAt,
		EndsAt:     req.EndsAt,
		Location:   req.Location,
	}
	if createReq.HeroImageID, err = parseOptionalID(req.HeroImageID); err != nil {
		http.Error(w, "Invalid hero image ID", http.StatusBadRequest)
		return
	}
	if createReq.GalleryIDs, err = parseIDs(req.GalleryIDs); err != nil {
		http.Error(w, "Invalid gallery ID", http.StatusBadRequest)
		return
	}
	if createReq.VideoID, err = parseOptionalID(req.VideoID); err != nil {
		http.Error(w, "Invalid video ID", http.StatusBadRequest)
		return
	}

	item, err := h.service.CreateContent(r.Context(), createReq)
	resp, ok := contentResult(w, item, err, "Failed to create content")
	if !ok {
		return
	}

	slog.Info("Content created", "content_id", item.ID.String(), "slug", item.Slug)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

// GetContent retrieves a content item by ID
func (h *ContentHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid content ID", http.StatusBadRequest)
		return
	}

	opts := mediaref.GetOptions{
		IncludeDeleted: r.URL.Query().Get("include_deleted") == "true",
		CountView:      r.URL.Query().Get("count_view") == "true",
	}

	item, err := h.service.GetContent(r.Context(), id, opts)
	if err != nil {
		writeError(w, err, "Failed to get content")
		return
	}
	render.JSON(w, r, item)
}

// GetContentBySlug retrieves a content item by its slug
func (h *ContentHandler) GetContentBySlug(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	opts := mediaref.GetOptions{
		IncludeDeleted: r.URL.Query().Get("include_deleted") == "true",
		CountView:      r.URL.Query().Get("count_view") == "true",
	}

	item, err := h.service.GetContentBySlug(r.Context(), slug, opts)
	if err != nil {
		writeError(w, err, "Failed to get content by slug")
		return
	}
	render.JSON(w, r, item)
}

// ListContent lists content items with optional filters
func (h *ContentHandler) ListContent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := mediaref.ListContentRequest{
		EntityType:     mediaref.EntityType(q.Get("type")),
		Status:         mediaref.ContentStatus(q.Get("status")),
		IncludeDeleted: q.Get("include_deleted") == "true",
	}
	if v := q.Get("limit"); v != "" {
		if req.Limit, _ = strconv.Atoi(v); req.Limit < 0 {
			req.Limit = 0
		}
	}
	if v := q.Get("offset"); v != "" {
		if req.Offset, _ = strconv.Atoi(v); req.Offset < 0 {
			req.Offset = 0
		}
	}

	items, err := h.service.ListContent(r.Context(), req)
	if err != nil {
		writeError(w, err, "Failed to list content")
		return
	}
	if items == nil {
		items = []*mediaref.ContentItem{}
	}
	render.JSON(w, r, items)
}

// UpdateContent applies a partial update to a content item
func (h *ContentHandler) UpdateContent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid content ID", http.StatusBadRequest)
		return
	}

	var req UpdateContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	actorID, err := uuid.Parse(req.ActorID)
	if err != nil {
		http.Error(w, "Invalid actor ID", http.StatusBadRequest)
		return
	}

	updateReq := mediaref.UpdateContentRequest{
		ID:              id,
		ActorID:         actorID,
		ExpectedVersion: req.ExpectedVersion,
		Title:           req.Title,
		Body:            req.Body,
		StartsAt:        req.StartsAt,
		EndsAt:          req.EndsAt,
		Location:        req.Location,
	}
	if req.Status != nil {
		status := mediaref.ContentStatus(*req.Status)
		updateReq.Status = &status
	}
	if req.SetHeroImage {
		heroID, err := parseOptionalID(req.HeroImageID)
		if err != nil {
			http.Error(w, "Invalid hero image ID", http.StatusBadRequest)
			return
		}
		updateReq.HeroImageID = mediaref.RefPatch{Set: true, ID: heroID}
	}
	if req.SetVideo {
		videoID, err := parseOptionalID(req.VideoID)
		if err != nil {
			http.Error(w, "Invalid video ID", http.StatusBadRequest)
			return
		}
		updateReq.VideoID = mediaref.RefPatch{Set: true, ID: videoID}
	}
	if req.GalleryIDs != nil {
		ids, err := parseIDs(*req.GalleryIDs)
		if err != nil {
			http.Error(w, "Invalid gallery ID", http.StatusBadRequest)
			return
		}
		if ids == nil {
			ids = []uuid.UUID{}
		}
		updateReq.GalleryIDs = &ids
	}

	item, err := h.service.UpdateContent(r.Context(), updateReq)
	resp, ok := contentResult(w, item, err, "Failed to update content")
	if !ok {
		return
	}

	slog.Info("Content updated", "content_id", id.String(), "version", item.Version)
	render.JSON(w, r, resp)
}

// SoftDeleteContent soft-deletes a content item and detaches its media
// references
func (h *ContentHandler) SoftDeleteContent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid content ID", http.StatusBadRequest)
		return
	}
	actorID, err := actorFromQuery(r)
	if err != nil {
		http.Error(w, "Invalid actor ID", http.StatusBadRequest)
		return
	}

	err = h.service.SoftDeleteContent(r.Context(), id, actorID)
	var pf *mediaref.PartialFailureError
	if errors.As(err, &pf) {
		slog.Warn("Content soft-deleted with detach failures", "content_id", id.String(), "failures", len(pf.Failures))
		render.Status(r, http.StatusOK)
		render.JSON(w, r, map[string]any{"ref_warnings": refWarnings(pf)})
		return
	}
	if err != nil {
		writeError(w, err, "Failed to soft-delete content")
		return
	}

	slog.Info("Content soft-deleted", "content_id", id.String())
	w.WriteHeader(http.StatusNoContent)
}

// RestoreContent restores a soft-deleted content item and reattaches its
// media references
func (h *ContentHandler) RestoreContent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid content ID", http.StatusBadRequest)
		return
	}
	actorID, err := actorFromQuery(r)
	if err != nil {
		http.Error(w, "Invalid actor ID", http.StatusBadRequest)
		return
	}

	item, err := h.service.RestoreContent(r.Context(), id, actorID)
	resp, ok := contentResult(w, item, err, "Failed to restore content")
	if !ok {
		return
	}

	slog.Info("Content restored", "content_id", id.String())
	render.JSON(w, r, resp)
}

// contentResult folds together the normal and partial-failure outcomes of a
// content write. Partial reference failures do not fail the request; they
// surface as warnings alongside the persisted item.
func contentResult(w http.ResponseWriter, item *mediaref.ContentItem, err error, logMsg string) (*ContentResponse, bool) {
	var pf *mediaref.PartialFailureError
	if errors.As(err, &pf) && item != nil {
		return &ContentResponse{ContentItem: item, RefWarnings: refWarnings(pf)}, true
	}
	if err != nil {
		writeError(w, err, logMsg)
		return nil, false
	}
	return &ContentResponse{ContentItem: item}, true
}

func refWarnings(pf *mediaref.PartialFailureError) []string {
	warnings := make([]string, 0, len(pf.Failures))
	for _, f := range pf.Failures {
		warnings = append(warnings, fmt.Sprintf("%s usage for asset %s (%s): %v", f.Op, f.AssetID, f.FieldName, f.Err))
	}
	return warnings
}

func actorFromQuery(r *http.Request) (uuid.UUID, error) {
	raw := r.URL.Query().Get("actor_id")
	if raw == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(raw)
}

func parseOptionalID(raw *string) (*uuid.UUID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// writeError maps service errors onto HTTP status codes
func writeError(w http.ResponseWriter, err error, logMsg string) {
	status := http.StatusInternalServerError
	switch {
	case mediaref.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, mediaref.ErrVersionConflict),
		errors.Is(err, mediaref.ErrSlugTaken),
		errors.Is(err, mediaref.ErrAssetInUse),
		errors.Is(err, mediaref.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, mediaref.ErrInvalidEntityType),
		errors.Is(err, mediaref.ErrFieldNotAllowed):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		slog.Error(logMsg, "error", err)
	}
	http.Error(w, err.Error(), status)
}
