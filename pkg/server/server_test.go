package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/shareloft/shareloft/pkg/files"
	"github.com/shareloft/shareloft/pkg/search"
)

const testAdminSecret = "test-admin-secret"

// newTestServer builds a server over a fresh index and in-memory store
func newTestServer(t *testing.T) (*Server, *files.MemoryStore) {
	t.Helper()

	store := files.NewMemoryStore()
	searchConfig := search.DefaultConfig()
	searchConfig.IndexPath = filepath.Join(t.TempDir(), "api.bleve")

	engine, err := search.Open(searchConfig, search.Deps{Store: store})
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminSecret), bcrypt.MinCost)
	require.NoError(t, err)

	srv, err := New(Config{
		Addr:            ":0",
		AdminSecretHash: string(hash),
	}, engine, store, nil, nil)
	require.NoError(t, err)

	return srv, store
}

func doRequest(t *testing.T, srv *Server, method, path string, body interface{}, admin bool) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	if admin {
		req.Header.Set(adminSecretHeader, testAdminSecret)
	}

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func indexTestFile(t *testing.T, srv *Server, id, owner, filename string, public bool) {
	t.Helper()
	now := time.Now().UTC()
	rec := doRequest(t, srv, "POST", "/api/index/files", &files.File{
		ID: id, Filename: filename, OriginalFilename: filename,
		MimeType: "text/plain", FileSize: 100, OwnerID: owner,
		ParentDirectory: "/", IsPublic: public,
		CreatedAt: now, UpdatedAt: now,
	}, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestIndexFileAndSearch(t *testing.T) {
	srv, store := newTestServer(t)

	indexTestFile(t, srv, "f1", "u1", "project_notes.txt", false)

	// record landed in the store
	_, err := store.Get(context.Background(), "f1")
	require.NoError(t, err)

	rec := doRequest(t, srv, "GET", "/api/search?q=project&owner_id=u1", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var searchResp search.Response
	require.NoError(t, json.Unmarshal(data, &searchResp))
	require.Len(t, searchResp.Results, 1)
	assert.Equal(t, "f1", searchResp.Results[0].ID)
}

func TestSearchDefaultsToPublicOnly(t *testing.T) {
	srv, _ := newTestServer(t)

	indexTestFile(t, srv, "f1", "u1", "private_notes.txt", false)
	indexTestFile(t, srv, "f2", "u1", "shared_notes.txt", true)

	rec := doRequest(t, srv, "GET", "/api/search?q=notes", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "f2")
	assert.NotContains(t, body, `"id":"f1"`)
}

func TestUnscopedSearchRequiresAdmin(t *testing.T) {
	srv, _ := newTestServer(t)
	indexTestFile(t, srv, "f1", "u1", "private_notes.txt", false)

	rec := doRequest(t, srv, "GET", "/api/search?q=notes&all=true", nil, false)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, srv, "GET", "/api/search?q=notes&all=true", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"f1"`)
}

func TestSearchRejectsBadFilters(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, "GET", "/api/search?q=x&size_min=huge", nil, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, "GET", "/api/search?q=x&date_from=someday", nil, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchFiltersApplied(t *testing.T) {
	srv, _ := newTestServer(t)

	indexTestFile(t, srv, "f1", "u1", "report.txt", true)
	now := time.Now().UTC()
	rec := doRequest(t, srv, "POST", "/api/index/files", &files.File{
		ID: "f2", Filename: "report.pdf", MimeType: "application/pdf",
		FileSize: 5000, OwnerID: "u1", ParentDirectory: "/", IsPublic: true,
		CreatedAt: now, UpdatedAt: now,
	}, true)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, srv, "GET", "/api/search?q=report&public=true&mime_type=application/pdf", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "f2")
	assert.NotContains(t, rec.Body.String(), `"id":"f1"`)
}

func TestUpdateFile(t *testing.T) {
	srv, _ := newTestServer(t)
	indexTestFile(t, srv, "f1", "u1", "draft.txt", false)

	rec := doRequest(t, srv, "PUT", "/api/index/files/f1", &files.File{
		Filename: "final.txt", MimeType: "text/plain",
		FileSize: 120, OwnerID: "u1", ParentDirectory: "/",
	}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(t, srv, "GET", "/api/search?q=final&owner_id=u1", nil, false)
	assert.Contains(t, rec.Body.String(), "f1")

	rec = doRequest(t, srv, "GET", "/api/search?q=draft&owner_id=u1", nil, false)
	assert.NotContains(t, rec.Body.String(), `"id":"f1"`)
}

func TestUpdateMissingFile(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, "PUT", "/api/index/files/nope", &files.File{
		Filename: "x.txt", OwnerID: "u1",
	}, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteFile(t *testing.T) {
	srv, store := newTestServer(t)
	indexTestFile(t, srv, "f1", "u1", "doomed.txt", false)

	rec := doRequest(t, srv, "DELETE", "/api/index/files/f1", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := store.Get(context.Background(), "f1")
	assert.ErrorIs(t, err, files.ErrNotFound)

	rec = doRequest(t, srv, "GET", "/api/search?q=doomed&owner_id=u1", nil, false)
	assert.NotContains(t, rec.Body.String(), `"id":"f1"`)

	// deleting again still succeeds
	rec = doRequest(t, srv, "DELETE", "/api/index/files/f1", nil, true)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRebuild(t *testing.T) {
	srv, store := newTestServer(t)

	ctx := context.Background()
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Put(ctx, &files.File{
			ID:       fmt.Sprintf("f%d", i),
			Filename: fmt.Sprintf("bulk_%d.txt", i),
			MimeType: "text/plain", OwnerID: "u1",
			ParentDirectory: "/", CreatedAt: now, UpdatedAt: now,
		}))
	}

	rec := doRequest(t, srv, "POST", "/api/index/rebuild", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"indexed":3`)

	rec = doRequest(t, srv, "GET", "/api/search?q=bulk&owner_id=u1", nil, false)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
}

func TestAdminEndpointsRequireSecret(t *testing.T) {
	srv, _ := newTestServer(t)

	paths := []struct {
		method, path string
	}{
		{"POST", "/api/index/files"},
		{"PUT", "/api/index/files/f1"},
		{"DELETE", "/api/index/files/f1"},
		{"POST", "/api/index/rebuild"},
		{"POST", "/api/index/optimize"},
		{"GET", "/api/index/stats"},
	}

	for _, p := range paths {
		rec := doRequest(t, srv, p.method, p.path, nil, false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", p.method, p.path)
	}
}

func TestAdminDisabledWithoutHash(t *testing.T) {
	srv, store := newTestServer(t)

	noAdmin, err := New(Config{Addr: ":0"}, srv.engine, store, nil, nil)
	require.NoError(t, err)

	rec := doRequest(t, noAdmin, "POST", "/api/index/rebuild", nil, true)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSuggestions(t *testing.T) {
	srv, _ := newTestServer(t)

	indexTestFile(t, srv, "f1", "u1", "report_q1.txt", false)
	indexTestFile(t, srv, "f2", "u1", "report_q2.txt", false)
	indexTestFile(t, srv, "f3", "u1", "photo.jpg", false)

	rec := doRequest(t, srv, "GET", "/api/search/suggestions?q=rep&owner_id=u1", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "report_q1.txt")
	assert.Contains(t, body, "report_q2.txt")
	assert.NotContains(t, body, "photo.jpg")
}

func TestSearchOwnerScopeIsStrict(t *testing.T) {
	srv, _ := newTestServer(t)

	indexTestFile(t, srv, "f1", "u1", "my_notes.txt", false)
	indexTestFile(t, srv, "f2", "u2", "their_notes.txt", true)

	// an owner scope excludes other users' public files
	rec := doRequest(t, srv, "GET", "/api/search?q=notes&owner_id=u1", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"f1"`)
	assert.NotContains(t, rec.Body.String(), `"id":"f2"`)

	// unless the request widens it explicitly
	rec = doRequest(t, srv, "GET", "/api/search?q=notes&owner_id=u1&include_public=true", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"f1"`)
	assert.Contains(t, rec.Body.String(), `"id":"f2"`)
}

func TestSuggestionsByField(t *testing.T) {
	srv, _ := newTestServer(t)
	indexTestFile(t, srv, "f1", "u1", "report_q1.txt", false)

	rec := doRequest(t, srv, "GET",
		"/api/search/suggestions?q=rep&field=original_filename&owner_id=u1", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "report_q1.txt")

	rec = doRequest(t, srv, "GET",
		"/api/search/suggestions?q=rep&field=content&owner_id=u1", nil, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPopularFiles(t *testing.T) {
	srv, _ := newTestServer(t)

	now := time.Now().UTC()
	for i, downloads := range []int64{3, 40, 7} {
		rec := doRequest(t, srv, "POST", "/api/index/files", &files.File{
			ID: fmt.Sprintf("f%d", i), Filename: fmt.Sprintf("pack_%d.zip", i),
			MimeType: "application/zip", FileSize: 100, OwnerID: "u1",
			ParentDirectory: "/", DownloadCount: downloads,
			CreatedAt: now, UpdatedAt: now,
		}, true)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doRequest(t, srv, "GET", "/api/search/popular?owner_id=u1&limit=2", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `"id":"f1"`)
	assert.Contains(t, body, `"id":"f2"`)
	assert.NotContains(t, body, `"id":"f0"`)

	// nothing is public, so the unowned top list is empty
	rec = doRequest(t, srv, "GET", "/api/search/popular", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"id":"f1"`)
}

func TestRebuildScopedToOwner(t *testing.T) {
	srv, store := newTestServer(t)

	ctx := context.Background()
	now := time.Now().UTC()
	for i, owner := range []string{"u1", "u1", "u2"} {
		require.NoError(t, store.Put(ctx, &files.File{
			ID:       fmt.Sprintf("f%d", i),
			Filename: fmt.Sprintf("scoped_%d.txt", i),
			MimeType: "text/plain", OwnerID: owner,
			ParentDirectory: "/", CreatedAt: now, UpdatedAt: now,
		}))
	}

	rec := doRequest(t, srv, "POST", "/api/index/rebuild?owner_id=u1", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"indexed":2`)
}

func TestStatsAndHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	indexTestFile(t, srv, "f1", "u1", "counted.txt", false)

	rec := doRequest(t, srv, "GET", "/api/index/stats", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"document_count":1`)
	assert.Contains(t, rec.Body.String(), `"total_files":1`)

	rec = doRequest(t, srv, "GET", "/api/health", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
