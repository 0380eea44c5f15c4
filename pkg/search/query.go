package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	bsearch "github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
)

// queryFields are the document fields a free-text query runs against,
// with their relative weights. Filename matches outrank content matches.
var queryFields = map[string]float64{
	"filename":          3.0,
	"original_filename": 2.0,
	"tags":              2.0,
	"content":           1.0,
	"metadata":          1.0,
	"owner_username":    1.0,
}

// suggestFields are the fields Suggest can complete against
var suggestFields = map[string]bool{
	"filename":          true,
	"original_filename": true,
	"tags":              true,
	"owner_username":    true,
}

// Search runs one query against the index. Engine-level failures degrade
// gracefully: the returned Response carries an Error string and empty
// Results instead of failing the caller. A hard error is only returned
// for invalid requests (missing scope) or a closed engine.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if !req.Unscoped && req.OwnerID == "" && !req.PublicOnly {
		return nil, ErrUnscopedSearch
	}

	if req.Limit <= 0 {
		req.Limit = e.config.DefaultResults
	}
	if req.Limit > e.config.MaxResults {
		req.Limit = e.config.MaxResults
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	key := cacheKey(req)
	if cached, found := e.cache.get(key); found {
		cp := *cached
		cp.cached = true
		return &cp, nil
	}

	startTime := time.Now()

	searchRequest := bleve.NewSearchRequest(e.buildQuery(req))
	searchRequest.Size = req.Limit
	searchRequest.From = req.Offset
	searchRequest.Fields = []string{"*"}
	searchRequest.Highlight = bleve.NewHighlight()
	searchRequest.Highlight.AddField("filename")
	searchRequest.Highlight.AddField("content")

	searchResult, err := e.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		e.logger.Error("search failed", map[string]interface{}{
			"query": req.Query,
			"error": err.Error(),
		})
		return &Response{
			Query:   req.Query,
			Results: []Result{},
			Limit:   req.Limit,
			Offset:  req.Offset,
			Filters: req.Filters,
			Error:   "search failed: " + err.Error(),
		}, nil
	}

	response := &Response{
		Query:       req.Query,
		Results:     make([]Result, 0, len(searchResult.Hits)),
		Total:       int(searchResult.Total),
		Limit:       req.Limit,
		Offset:      req.Offset,
		Filters:     req.Filters,
		HasMore:     searchResult.Total > uint64(req.Offset+len(searchResult.Hits)),
		TimeTakenMS: time.Since(startTime).Milliseconds(),
	}

	for _, hit := range searchResult.Hits {
		response.Results = append(response.Results, hitResult(hit))
	}

	e.recordSearch(time.Since(startTime))
	e.cache.put(key, response)

	return response, nil
}

// hitResult converts one index hit into a Result from its stored fields
func hitResult(hit *bsearch.DocumentMatch) Result {
	result := Result{
		ID:    hit.ID,
		Score: hit.Score,
	}

	if v, ok := hit.Fields["filename"].(string); ok {
		result.Filename = v
	}
	if v, ok := hit.Fields["original_filename"].(string); ok {
		result.OriginalFilename = v
	}
	if v, ok := hit.Fields["mime_type"].(string); ok {
		result.MimeType = v
	}
	if v, ok := hit.Fields["file_size"].(float64); ok {
		result.FileSize = int64(v)
	}
	if v, ok := hit.Fields["file_hash"].(string); ok {
		result.FileHash = v
	}
	if v, ok := hit.Fields["download_count"].(float64); ok {
		result.DownloadCount = int64(v)
	}
	if v, ok := hit.Fields["owner_id"].(string); ok {
		result.OwnerID = v
	}
	if v, ok := hit.Fields["owner_username"].(string); ok {
		result.OwnerUsername = v
	}
	if v, ok := hit.Fields["parent_directory"].(string); ok {
		result.ParentDirectory = v
	}
	if v, ok := hit.Fields["is_directory"].(bool); ok {
		result.IsDirectory = v
	}
	if v, ok := hit.Fields["is_public"].(bool); ok {
		result.IsPublic = v
	}
	result.Tags = stringValues(hit.Fields["tags"])
	if v, ok := hit.Fields["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			result.CreatedAt = t
		}
	}
	if v, ok := hit.Fields["updated_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			result.UpdatedAt = t
		}
	}

	if len(hit.Fragments) > 0 {
		result.Highlights = make(map[string][]string, len(hit.Fragments))
		for field, fragments := range hit.Fragments {
			result.Highlights[field] = fragments
		}
	}

	return result
}

// accessScope builds the access filter for a scope: owner-only, owner
// plus public, or public-only. Returns nil when no scope applies.
func accessScope(ownerID string, includePublic, publicOnly bool) query.Query {
	publicQuery := bleve.NewBoolFieldQuery(true)
	publicQuery.SetField("is_public")

	switch {
	case publicOnly:
		return publicQuery
	case ownerID != "":
		ownerQuery := bleve.NewTermQuery(ownerID)
		ownerQuery.SetField("owner_id")
		if includePublic {
			return bleve.NewDisjunctionQuery(ownerQuery, publicQuery)
		}
		return ownerQuery
	}
	return nil
}

// buildQuery turns a Request into the Bleve query tree
func (e *Engine) buildQuery(req Request) query.Query {
	var base query.Query
	queryStr := strings.TrimSpace(req.Query)
	if queryStr == "" {
		base = bleve.NewMatchAllQuery()
	} else {
		fieldQueries := make([]query.Query, 0, len(queryFields))
		for field, boost := range queryFields {
			mq := bleve.NewMatchQuery(queryStr)
			mq.SetField(field)
			mq.SetBoost(boost)
			fieldQueries = append(fieldQueries, mq)
		}
		base = bleve.NewDisjunctionQuery(fieldQueries...)
	}

	queries := []query.Query{base}

	// An owner scope sees only that owner's files unless the request
	// explicitly widens it to public ones.
	if scope := accessScope(req.OwnerID, req.IncludePublic, req.PublicOnly); scope != nil {
		queries = append(queries, scope)
	}

	if req.Filters.MimeType != "" {
		mimeQuery := bleve.NewTermQuery(req.Filters.MimeType)
		mimeQuery.SetField("mime_type")
		queries = append(queries, mimeQuery)
	}

	if req.Filters.SizeMin != nil || req.Filters.SizeMax != nil {
		var min, max *float64
		if req.Filters.SizeMin != nil {
			min = float64Ptr(float64(*req.Filters.SizeMin))
		}
		if req.Filters.SizeMax != nil {
			max = float64Ptr(float64(*req.Filters.SizeMax))
		}
		inclusive := true
		sizeQuery := bleve.NewNumericRangeInclusiveQuery(min, max, &inclusive, &inclusive)
		sizeQuery.SetField("file_size")
		queries = append(queries, sizeQuery)
	}

	if req.Filters.DateFrom != nil || req.Filters.DateTo != nil {
		start := time.Time{}
		end := time.Time{}
		if req.Filters.DateFrom != nil {
			start = *req.Filters.DateFrom
		}
		if req.Filters.DateTo != nil {
			end = *req.Filters.DateTo
		}
		dateQuery := bleve.NewDateRangeQuery(start, end)
		dateQuery.SetField("created_at")
		queries = append(queries, dateQuery)
	}

	if !req.Filters.IncludeDirectories {
		fileQuery := bleve.NewBoolFieldQuery(false)
		fileQuery.SetField("is_directory")
		queries = append(queries, fileQuery)
	}

	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewConjunctionQuery(queries...)
}

// Suggest returns up to limit distinct stored values of field starting
// with prefix. An empty field completes filenames; an empty ownerID
// scopes to public files. An empty prefix yields no suggestions.
func (e *Engine) Suggest(ctx context.Context, prefix, field, ownerID string, limit int) ([]string, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	if field == "" {
		field = "filename"
	}
	if !suggestFields[field] {
		return nil, fmt.Errorf("field %q does not support suggestions", field)
	}

	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return []string{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	prefixQuery := bleve.NewPrefixQuery(prefix)
	prefixQuery.SetField(field)

	var q query.Query = prefixQuery
	if scope := accessScope(ownerID, false, ownerID == ""); scope != nil {
		q = bleve.NewConjunctionQuery(prefixQuery, scope)
	}

	// Oversample so duplicates collapse to enough distinct values
	searchRequest := bleve.NewSearchRequest(q)
	searchRequest.Size = limit * 3
	searchRequest.Fields = []string{field}

	searchResult, err := e.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		e.logger.Error("suggestion query failed", map[string]interface{}{
			"prefix": prefix,
			"field":  field,
			"error":  err.Error(),
		})
		return []string{}, nil
	}

	seen := make(map[string]bool)
	suggestions := make([]string, 0, limit)
	for _, hit := range searchResult.Hits {
		for _, value := range stringValues(hit.Fields[field]) {
			if value == "" || seen[value] {
				continue
			}
			if !strings.HasPrefix(strings.ToLower(value), prefix) {
				continue
			}
			seen[value] = true
			suggestions = append(suggestions, value)
			if len(suggestions) >= limit {
				return suggestions, nil
			}
		}
	}
	return suggestions, nil
}

// Popular returns the most downloaded files in scope, ties broken by
// size. An empty ownerID scopes to public files. Query failures degrade
// to an empty list.
func (e *Engine) Popular(ctx context.Context, ownerID string, limit int) ([]Result, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > e.config.MaxResults {
		limit = e.config.MaxResults
	}

	filesOnly := bleve.NewBoolFieldQuery(false)
	filesOnly.SetField("is_directory")
	q := bleve.NewConjunctionQuery(
		accessScope(ownerID, false, ownerID == ""), filesOnly)

	searchRequest := bleve.NewSearchRequest(q)
	searchRequest.Size = limit
	searchRequest.Fields = []string{"*"}
	searchRequest.SortBy([]string{"-download_count", "-file_size"})

	searchResult, err := e.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		e.logger.Error("popular files query failed", map[string]interface{}{
			"owner_id": ownerID,
			"error":    err.Error(),
		})
		return []Result{}, nil
	}

	results := make([]Result, 0, len(searchResult.Hits))
	for _, hit := range searchResult.Hits {
		results = append(results, hitResult(hit))
	}
	return results, nil
}

// stringValues normalizes a stored field that may be a single string or
// a list of strings.
func stringValues(v interface{}) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func float64Ptr(f float64) *float64 {
	return &f
}
