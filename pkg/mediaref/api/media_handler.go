package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/contentkit/mediaref/pkg/mediaref"
)

// MediaHandler handles HTTP requests for media assets using pkg/mediaref.
type MediaHandler struct {
	service mediaref.Service
}

// NewMediaHandler creates a new media handler
func NewMediaHandler(service mediaref.Service) *MediaHandler {
	return &MediaHandler{service: service}
}

// Routes returns the routes for media assets
func (h *MediaHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateAsset)
	r.Get("/unused", h.ListUnusedAssets)
	r.Post("/purge", h.PurgeUnusedAssets)
	r.Get("/{id}", h.GetAsset)
	r.Post("/{id}/upload", h.UploadAsset)
	r.Get("/{id}/download", h.DownloadAsset)
	r.Get("/{id}/download-url", h.GetDownloadURL)
	r.Delete("/{id}", h.DeleteAsset)

	return r
}

// CreateAssetRequest is the request body for registering a media asset
type CreateAssetRequest struct {
	MediaType          string `json:"media_type"`
	StorageBackendName string `json:"storage_backend_name"`
	ObjectKey          string `json:"object_key,omitempty"`
	FileName           string `json:"file_name,omitempty"`
	MimeType           string `json:"mime_type,omitempty"`
	SizeBytes          int64  `json:"size_bytes,omitempty"`
	Width              int    `json:"width,omitempty"`
	Height             int    `json:"height,omitempty"`
}

// CreateAsset registers a new media asset
func (h *MediaHandler) CreateAsset(w http.ResponseWriter, r *http.Request) {
	var req CreateAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	asset, err := h.service.CreateAsset(r.Context(), mediaref.CreateAssetRequest{
		MediaType:          mediaref.MediaType(req.MediaType),
		StorageBackendName: req.StorageBackendName,
		ObjectKey:          req.ObjectKey,
		FileName:           req.FileName,
		MimeType:           req.MimeType,
		SizeBytes:          req.SizeBytes,
		Width:              req.Width,
		Height:             req.Height,
	})
	if err != nil {
		writeError(w, err, "Failed to create asset")
		return
	}

	slog.Info("Asset created", "asset_id", asset.ID.String(), "backend", asset.StorageBackendName)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, asset)
}

// GetAsset retrieves a media asset by ID
func (h *MediaHandler) GetAsset(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid asset ID", http.StatusBadRequest)
		return
	}

	asset, err := h.service.GetAsset(r.Context(), id)
	if err != nil {
		writeError(w, err, "Failed to get asset")
		return
	}
	render.JSON(w, r, asset)
}

// UploadAsset streams the request body into the asset's storage backend
func (h *MediaHandler) UploadAsset(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid asset ID", http.StatusBadRequest)
		return
	}

	if err := h.service.UploadAsset(r.Context(), id, r.Body); err != nil {
		writeError(w, err, "Failed to upload asset")
		return
	}

	slog.Info("Asset uploaded", "asset_id", id.String())
	w.WriteHeader(http.StatusNoContent)
}

// DownloadAsset streams the asset bytes back to the client
func (h *MediaHandler) DownloadAsset(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid asset ID", http.StatusBadRequest)
		return
	}

	asset, err := h.service.GetAsset(r.Context(), id)
	if err != nil {
		writeError(w, err, "Failed to get asset")
		return
	}

	rc, err := h.service.DownloadAsset(r.Context(), id)
	if err != nil {
		writeError(w, err, "Failed to download asset")
		return
	}
	defer rc.Close()

	if asset.MimeType != "" {
		w.Header().Set("Content-Type", asset.MimeType)
	}
	if _, err := io.Copy(w, rc); err != nil {
		slog.Error("Failed to stream asset", "asset_id", id.String(), "error", err)
	}
}

// GetDownloadURL returns a URL for downloading the asset, where the backend
// supports URL-based access
func (h *MediaHandler) GetDownloadURL(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid asset ID", http.StatusBadRequest)
		return
	}

	url, err := h.service.GetAssetDownloadURL(r.Context(), id)
	if err != nil {
		writeError(w, err, "Failed to get download URL")
		return
	}
	render.JSON(w, r, map[string]string{"download_url": url})
}

// DeleteAsset permanently deletes an unused asset. Returns 409 while any
// live content item still references it.
func (h *MediaHandler) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid asset ID", http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteAsset(r.Context(), id); err != nil {
		writeError(w, err, "Failed to delete asset")
		return
	}

	slog.Info("Asset deleted", "asset_id", id.String())
	w.WriteHeader(http.StatusNoContent)
}

// ListUnusedAssets lists assets with no live references
func (h *MediaHandler) ListUnusedAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.service.ListUnusedAssets(r.Context())
	if err != nil {
		writeError(w, err, "Failed to list unused assets")
		return
	}
	if assets == nil {
		assets = []*mediaref.MediaAsset{}
	}
	render.JSON(w, r, assets)
}

// PurgeUnusedAssets deletes every unused asset and reports per-item outcomes
func (h *MediaHandler) PurgeUnusedAssets(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.PurgeUnusedAssets(r.Context())
	if err != nil {
		writeError(w, err, "Failed to purge unused assets")
		return
	}

	slog.Info("Unused assets purged", "deleted", result.Deleted, "failures", len(result.Failures))
	render.JSON(w, r, result)
}
