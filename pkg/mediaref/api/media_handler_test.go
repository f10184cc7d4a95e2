package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentkit/mediaref/pkg/mediaref"
	"github.com/contentkit/mediaref/pkg/mediaref/repo/memory"
	memorystorage "github.com/contentkit/mediaref/pkg/mediaref/storage/memory"
)

func setupMediaHandlerTest(t *testing.T) (*MediaHandler, mediaref.Service) {
	t.Helper()
	service, err := mediaref.New(
		mediaref.WithRepository(memory.New()),
		mediaref.WithBlobStore("memory", memorystorage.New()),
	)
	require.NoError(t, err)
	return NewMediaHandler(service), service
}

func TestMediaHandler_CreateAndUploadAsset(t *testing.T) {
	handler, _ := setupMediaHandlerTest(t)
	router := handler.Routes()

	reqBody := CreateAssetRequest{
		MediaType:          "image",
		StorageBackendName: "memory",
		FileName:           "gala.jpg",
		MimeType:           "image/jpeg",
	}
	body, _ := json.Marshal(reqBody)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var asset mediaref.MediaAsset
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &asset))
	assert.NotEqual(t, uuid.Nil, asset.ID)
	assert.NotEmpty(t, asset.ObjectKey)

	req = httptest.NewRequest(http.MethodPost, "/"+asset.ID.String()+"/upload", strings.NewReader("jpeg-bytes"))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/"+asset.ID.String()+"/download", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jpeg-bytes", w.Body.String())
}

func TestMediaHandler_CreateAsset_UnknownBackend(t *testing.T) {
	handler, _ := setupMediaHandlerTest(t)
	router := handler.Routes()

	body := []byte(`{"media_type":"image","storage_backend_name":"s3-main"}`)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMediaHandler_DeleteAsset_GuardedWhileInUse(t *testing.T) {
	handler, service := setupMediaHandlerTest(t)
	router := handler.Routes()

	asset, err := service.CreateAsset(t.Context(), mediaref.CreateAssetRequest{
		MediaType:          mediaref.MediaTypeImage,
		StorageBackendName: "memory",
	})
	require.NoError(t, err)

	actorID := uuid.New()
	item, err := service.CreateContent(t.Context(), mediaref.CreateContentRequest{
		EntityType:  mediaref.EntityTypeBlog,
		Title:       "Post With Hero",
		ActorID:     actorID,
		HeroImageID: &asset.ID,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/"+asset.ID.String(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Clearing the reference unblocks deletion.
	_, err = service.UpdateContent(t.Context(), mediaref.UpdateContentRequest{
		ID:              item.ID,
		ActorID:         actorID,
		ExpectedVersion: item.Version,
		HeroImageID:     mediaref.RefPatch{Set: true, ID: nil},
	})
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodDelete, "/"+asset.ID.String(), nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestMediaHandler_UnusedAndPurge(t *testing.T) {
	handler, service := setupMediaHandlerTest(t)
	router := handler.Routes()

	used, err := service.CreateAsset(t.Context(), mediaref.CreateAssetRequest{
		MediaType:          mediaref.MediaTypeImage,
		StorageBackendName: "memory",
	})
	require.NoError(t, err)
	unused, err := service.CreateAsset(t.Context(), mediaref.CreateAssetRequest{
		MediaType:          mediaref.MediaTypeVideo,
		StorageBackendName: "memory",
	})
	require.NoError(t, err)

	_, err = service.CreateContent(t.Context(), mediaref.CreateContentRequest{
		EntityType:  mediaref.EntityTypeEvent,
		Title:       "Launch Event",
		ActorID:     uuid.New(),
		HeroImageID: &used.ID,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/unused", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var assets []*mediaref.MediaAsset
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &assets))
	require.Len(t, assets, 1)
	assert.Equal(t, unused.ID, assets[0].ID)

	req = httptest.NewRequest(http.MethodPost, "/purge", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var result mediaref.PurgeResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Deleted)
	assert.Empty(t, result.Failures)

	_, err = service.GetAsset(t.Context(), unused.ID)
	assert.ErrorIs(t, err, mediaref.ErrAssetNotFound)
}
