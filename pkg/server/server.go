// Package server exposes the search service over HTTP: scoped search and
// suggestions for everyone, index management for admins, and a websocket
// stream of index events.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/shareloft/shareloft/pkg/files"
	"github.com/shareloft/shareloft/pkg/infrastructure/logging"
	"github.com/shareloft/shareloft/pkg/notify"
	"github.com/shareloft/shareloft/pkg/search"
)

// Config holds HTTP server settings
type Config struct {
	Addr            string
	AdminSecretHash string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
}

// APIResponse is the envelope for all JSON responses
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Server serves the search HTTP API
type Server struct {
	config Config
	logger *logging.Logger
	engine *search.Engine
	store  files.Store
	hub    *notify.Hub

	httpServer *http.Server
}

// New creates a server wired to the given engine, store and event hub.
// The hub may be nil; the events endpoint then responds 404.
func New(config Config, engine *search.Engine, store files.Store, hub *notify.Hub, logger *logging.Logger) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("search engine is required")
	}
	if store == nil {
		return nil, fmt.Errorf("file store is required")
	}
	if logger == nil {
		logger = logging.NewLogger(nil)
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 30 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 60 * time.Second
	}

	s := &Server{
		config: config,
		logger: logger.WithComponent("server"),
		engine: engine,
		store:  store,
		hub:    hub,
	}

	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      s.Router(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return s, nil
}

// Router builds the route table
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/search", s.handleSearch).Methods("GET")
	api.HandleFunc("/search/suggestions", s.handleSuggestions).Methods("GET")
	api.HandleFunc("/search/popular", s.handlePopular).Methods("GET")
	api.HandleFunc("/index/files", s.requireAdmin(s.handleIndexFile)).Methods("POST")
	api.HandleFunc("/index/files/{id}", s.requireAdmin(s.handleUpdateFile)).Methods("PUT")
	api.HandleFunc("/index/files/{id}", s.requireAdmin(s.handleDeleteFile)).Methods("DELETE")
	api.HandleFunc("/index/rebuild", s.requireAdmin(s.handleRebuild)).Methods("POST")
	api.HandleFunc("/index/optimize", s.requireAdmin(s.handleOptimize)).Methods("POST")
	api.HandleFunc("/index/stats", s.requireAdmin(s.handleStats)).Methods("GET")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.hub != nil {
		api.HandleFunc("/events", s.hub.HandleWebSocket)
	}

	return router
}

// Start serves HTTP until Shutdown
func (s *Server) Start() error {
	s.logger.Info("http server listening", map[string]interface{}{
		"addr": s.config.Addr,
	})
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// handleSearch runs a scoped search.
//
// Without an owner_id the request is treated as public-only; searching
// across all files requires the admin secret and all=true.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := search.Request{
		Query:         q.Get("q"),
		OwnerID:       q.Get("owner_id"),
		IncludePublic: q.Get("include_public") == "true",
	}

	switch {
	case q.Get("all") == "true":
		if !s.isAdmin(r) {
			sendError(w, fmt.Errorf("admin secret required for unscoped search"), http.StatusForbidden)
			return
		}
		req.Unscoped = true
		req.OwnerID = ""
	case req.OwnerID == "" || q.Get("public") == "true":
		req.PublicOnly = true
	}

	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			req.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			req.Offset = n
		}
	}

	filters, err := parseFilters(q)
	if err != nil {
		sendError(w, err, http.StatusBadRequest)
		return
	}
	req.Filters = filters

	resp, err := s.engine.Search(r.Context(), req)
	if err != nil {
		sendError(w, err, http.StatusBadRequest)
		return
	}

	sendJSON(w, APIResponse{Success: resp.Error == "", Data: resp, Error: resp.Error})
}

// parseFilters reads the optional filter query parameters
func parseFilters(q map[string][]string) (search.Filters, error) {
	get := func(key string) string {
		if vs := q[key]; len(vs) > 0 {
			return strings.TrimSpace(vs[0])
		}
		return ""
	}

	var filters search.Filters
	filters.MimeType = get("mime_type")
	filters.IncludeDirectories = get("include_dirs") == "true"

	if v := get("size_min"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filters, fmt.Errorf("invalid size_min: %q", v)
		}
		filters.SizeMin = &n
	}
	if v := get("size_max"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filters, fmt.Errorf("invalid size_max: %q", v)
		}
		filters.SizeMax = &n
	}
	if v := get("date_from"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return filters, fmt.Errorf("invalid date_from: %q", v)
		}
		filters.DateFrom = &t
	}
	if v := get("date_to"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return filters, fmt.Errorf("invalid date_to: %q", v)
		}
		filters.DateTo = &t
	}

	return filters, nil
}

// parseDate accepts RFC3339 timestamps and bare dates
func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

// handleSuggestions returns prefix completions; the field parameter
// selects which field to complete against, defaulting to filenames
func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 10
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	suggestions, err := s.engine.Suggest(r.Context(), q.Get("q"), q.Get("field"), q.Get("owner_id"), limit)
	if err != nil {
		sendError(w, err, http.StatusBadRequest)
		return
	}

	sendJSON(w, APIResponse{Success: true, Data: map[string]interface{}{
		"suggestions": suggestions,
	}})
}

// handlePopular returns the most downloaded files for an owner, or the
// public top list without one
func (s *Server) handlePopular(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 10
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	results, err := s.engine.Popular(r.Context(), q.Get("owner_id"), limit)
	if err != nil {
		sendError(w, err, http.StatusInternalServerError)
		return
	}

	sendJSON(w, APIResponse{Success: true, Data: map[string]interface{}{
		"files": results,
	}})
}

// handleIndexFile stores a file record and indexes it
func (s *Server) handleIndexFile(w http.ResponseWriter, r *http.Request) {
	var f files.File
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		sendError(w, fmt.Errorf("invalid file record: %w", err), http.StatusBadRequest)
		return
	}

	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.OwnerID == "" {
		sendError(w, fmt.Errorf("owner_id is required"), http.StatusBadRequest)
		return
	}
	now := time.Now().UTC()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now

	if err := s.store.Put(r.Context(), &f); err != nil {
		sendError(w, err, http.StatusInternalServerError)
		return
	}
	if err := s.engine.IndexFile(r.Context(), &f); err != nil {
		sendError(w, err, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(APIResponse{Success: true, Data: &f})
}

// handleUpdateFile updates a stored record and reindexes it
func (s *Server) handleUpdateFile(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	existing, err := s.store.Get(r.Context(), id)
	if err == files.ErrNotFound {
		sendError(w, fmt.Errorf("file %s not found", id), http.StatusNotFound)
		return
	}
	if err != nil {
		sendError(w, err, http.StatusInternalServerError)
		return
	}

	var f files.File
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		sendError(w, fmt.Errorf("invalid file record: %w", err), http.StatusBadRequest)
		return
	}
	f.ID = id
	f.CreatedAt = existing.CreatedAt
	f.UpdatedAt = time.Now().UTC()

	if err := s.store.Put(r.Context(), &f); err != nil {
		sendError(w, err, http.StatusInternalServerError)
		return
	}
	if err := s.engine.UpdateFile(r.Context(), &f); err != nil {
		sendError(w, err, http.StatusInternalServerError)
		return
	}

	sendJSON(w, APIResponse{Success: true, Data: &f})
}

// handleDeleteFile removes a record from the store and the index
func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.store.Delete(r.Context(), id); err != nil {
		sendError(w, err, http.StatusInternalServerError)
		return
	}
	if err := s.engine.DeleteFile(r.Context(), id); err != nil {
		sendError(w, err, http.StatusInternalServerError)
		return
	}

	sendJSON(w, APIResponse{Success: true, Data: map[string]string{"id": id}})
}

// handleRebuild reindexes from the file store. Without parameters every
// record is reindexed; owner_id narrows the rebuild to one owner's
// records (public=true selects public records instead), and directory
// narrows it further to one parent directory.
func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ownerID := q.Get("owner_id")
	directory := q.Get("directory")
	scoped := ownerID != "" || q.Get("public") == "true"

	var indexed int
	var err error
	switch {
	case directory != "":
		indexed, err = s.engine.IndexDirectory(r.Context(), ownerID, directory)
	case scoped:
		indexed, err = s.engine.IndexOwner(r.Context(), ownerID)
	default:
		indexed, err = s.engine.IndexAll(r.Context())
	}
	if err != nil {
		sendError(w, err, http.StatusInternalServerError)
		return
	}

	sendJSON(w, APIResponse{Success: true, Data: map[string]interface{}{
		"indexed": indexed,
	}})
}

// handleOptimize runs index housekeeping
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Optimize(); err != nil {
		sendError(w, err, http.StatusInternalServerError)
		return
	}
	sendJSON(w, APIResponse{Success: true})
}

// handleStats reports index and store statistics
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	indexStats, err := s.engine.Stats()
	if err != nil {
		sendError(w, err, http.StatusInternalServerError)
		return
	}

	data := map[string]interface{}{
		"index": indexStats,
	}
	if storeStats, err := s.store.Stats(r.Context()); err == nil {
		data["store"] = storeStats
	}
	if s.hub != nil {
		data["event_subscribers"] = s.hub.ClientCount()
	}

	sendJSON(w, APIResponse{Success: true, Data: data})
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.engine.Stats(); err != nil {
		sendError(w, fmt.Errorf("search index unavailable: %w", err), http.StatusServiceUnavailable)
		return
	}
	sendJSON(w, APIResponse{Success: true, Data: map[string]string{"status": "ok"}})
}

func sendJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func sendError(w http.ResponseWriter, err error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}
