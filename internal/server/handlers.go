package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cardcat/internal/artsearch"
	"cardcat/internal/card"
	"cardcat/internal/logging"
	"cardcat/internal/resolve"
)

const (
	maxQueriesPerRequest = 1000
	maxRequestBytes      = 4 << 20
)

// ResolveRequest is the body of POST /api/resolve and POST /api/enrich.
type ResolveRequest struct {
	Queries []card.Query `json:"queries"`
	Mode    string       `json:"mode,omitempty"`
}

// ResolveResponse maps query keys to records and lists unresolved keys.
type ResolveResponse struct {
	Cards   map[string]card.Record `json:"cards"`
	Missing []string               `json:"missing"`
}

// TokensRequest is the body of POST /api/tokens.
type TokensRequest struct {
	Query card.Query `json:"query"`
}

// TokensResponse carries the resolved card and the tokens it creates.
type TokensResponse struct {
	Card       card.Record      `json:"card"`
	TokenParts []card.TokenPart `json:"tokenParts"`
}

// ArtResponse wraps secondary catalog results.
type ArtResponse struct {
	Query    string             `json:"query"`
	Category string             `json:"category"`
	Results  []artsearch.Result `json:"results"`
}

// StatusResponse summarizes server state.
type StatusResponse struct {
	Version       string            `json:"version,omitempty"`
	Uptime        string            `json:"uptime"`
	DatabasePath  string            `json:"databasePath"`
	SchemaVersion int               `json:"schemaVersion"`
	Cards         int               `json:"cards"`
	SearchCache   *SearchCacheStats `json:"searchCache,omitempty"`
	ArtSearch     bool              `json:"artSearch"`
}

// SearchCacheStats mirrors searchcache.Stats for JSON output.
type SearchCacheStats struct {
	Rows   int        `json:"rows"`
	Oldest *time.Time `json:"oldest,omitempty"`
	Newest *time.Time `json:"newest,omitempty"`
}

func decodeBody(r *http.Request, dst any) error {
	body := io.LimitReader(r.Body, maxRequestBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func decodeQueries(r *http.Request) (ResolveRequest, error) {
	var req ResolveRequest
	if err := decodeBody(r, &req); err != nil {
		return req, err
	}
	if len(req.Queries) == 0 {
		return req, errors.New("queries must not be empty")
	}
	if len(req.Queries) > maxQueriesPerRequest {
		return req, fmt.Errorf("at most %d queries per request", maxQueriesPerRequest)
	}
	return req, nil
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	req, err := decodeQueries(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	found, err := s.resolver.ResolveBatch(r.Context(), req.Queries)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	resp := ResolveResponse{Cards: found, Missing: []string{}}
	seen := make(map[string]struct{}, len(req.Queries))
	for _, q := range req.Queries {
		key := q.Normalize().Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if _, ok := found[key]; !ok {
			resp.Missing = append(resp.Missing, key)
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	var req TokensRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := s.resolver.ResolveOne(r.Context(), req.Query)
	switch {
	case errors.Is(err, resolve.ErrInvalidQuery):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, resolve.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, TokensResponse{Card: rec, TokenParts: card.DeriveTokens(rec)})
}

func (s *Server) handleArt(w http.ResponseWriter, r *http.Request) {
	if s.art == nil || !s.art.Enabled() {
		s.writeError(w, http.StatusServiceUnavailable, artsearch.ErrDisabled.Error())
		return
	}
	query := r.URL.Query()
	category, err := artsearch.NormalizeCategory(query.Get("category"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	results, err := s.art.Search(r.Context(), query.Get("q"), category)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(r.Context(), s.logger), "art search failed", "art_search_failed",
			logging.String("query", query.Get("q")),
			logging.Error(err),
			logging.String(logging.FieldImpact, "no artwork returned to the client"),
		)
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, ArtResponse{Query: query.Get("q"), Category: category, Results: results})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := StatusResponse{
		Version:      s.version,
		Uptime:       time.Since(s.started).Truncate(time.Second).String(),
		DatabasePath: s.store.Path(),
		ArtSearch:    s.art != nil && s.art.Enabled(),
	}
	var err error
	if resp.SchemaVersion, err = s.store.SchemaVersion(ctx); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if resp.Cards, err = s.store.CardCount(ctx); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.search != nil {
		stats, err := s.search.Stats(ctx)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.SearchCache = convertStats(stats.Rows, stats.Oldest, stats.Newest)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func convertStats(rows int, oldest, newest time.Time) *SearchCacheStats {
	out := &SearchCacheStats{Rows: rows}
	if !oldest.IsZero() {
		out.Oldest = &oldest
	}
	if !newest.IsZero() {
		out.Newest = &newest
	}
	return out
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
