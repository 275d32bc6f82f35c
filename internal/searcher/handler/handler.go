package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/wordpositions/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/internal/wordindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/logger"
)

const (
	defaultEntryLimit = 100
	maxEntryLimit     = 10_000
)

// DocumentSource is the read and remove surface of the index registry.
type DocumentSource interface {
	Get(docID string) (*indexer.IndexedDocument, error)
	Documents() []indexer.DocumentInfo
	Remove(docID string) bool
}

// PositionsResponse is the body of a positions lookup.
type PositionsResponse struct {
	indexer.LookupResult
	CacheHit bool `json:"cache_hit"`
}

// EntriesResponse lists the words of a document sharing a prefix.
type EntriesResponse struct {
	DocumentID string            `json:"document_id"`
	Prefix     string            `json:"prefix"`
	Entries    []wordindex.Entry `json:"entries"`
	Truncated  bool              `json:"truncated"`
}

// Handler serves position lookups and document management over the index
// registry, consulting the lookup cache when one is configured.
type Handler struct {
	docs   DocumentSource
	cache  *cache.LookupCache
	logger *slog.Logger
}

// New builds the searcher handler. lookupCache may be nil.
func New(docs DocumentSource, lookupCache *cache.LookupCache) *Handler {
	return &Handler{
		docs:   docs,
		cache:  lookupCache,
		logger: logger.WithComponent("search-handler"),
	}
}

// Register mounts the search routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/documents", h.ListDocuments)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.Document)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.RemoveDocument)
	mux.HandleFunc("GET /api/v1/documents/{id}/positions", h.Positions)
	mux.HandleFunc("GET /api/v1/documents/{id}/entries", h.Entries)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// Positions answers the positions of the word query parameter in a
// document. A missing word is 400, an unknown document 404.
func (h *Handler) Positions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	docID := r.PathValue("id")
	query := r.URL.Query()
	if !query.Has("word") {
		h.writeError(w, http.StatusBadRequest, "query parameter 'word' is required")
		return
	}
	word := query.Get("word")

	doc, err := h.docs.Get(docID)
	if err != nil {
		h.writeAppError(w, err)
		return
	}

	var result indexer.LookupResult
	cacheHit := false
	if h.cache != nil {
		key := cache.KeyFor(doc.Info(), doc.Normalize(word))
		result, cacheHit, err = h.cache.GetOrCompute(ctx, key, func() (indexer.LookupResult, error) {
			return doc.Lookup(word), nil
		})
		if err != nil {
			log.Error("lookup failed", "doc_id", docID, "error", err)
			h.writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}
		// the cached entry may have been stored for a differently cased query
		result.DocumentID = docID
		result.Word = word
	} else {
		result = doc.Lookup(word)
	}

	log.Info("lookup completed",
		"doc_id", docID,
		"normalized", result.Normalized,
		"count", result.Count,
		"cache_hit", cacheHit,
		"latency", time.Since(start),
	)
	h.writeJSON(w, http.StatusOK, PositionsResponse{LookupResult: result, CacheHit: cacheHit})
}

func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	doc, err := h.docs.Get(r.PathValue("id"))
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, doc.Info())
}

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs := h.docs.Documents()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"count":     len(docs),
	})
}

// RemoveDocument drops a document from the registry and invalidates its
// cached lookups.
func (h *Handler) RemoveDocument(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("id")
	if !h.docs.Remove(docID) {
		h.writeError(w, http.StatusNotFound, fmt.Sprintf("document %q is not indexed", docID))
		return
	}
	logger.FromContext(r.Context()).Info("document removed", "doc_id", docID)
	w.WriteHeader(http.StatusNoContent)
}

// Entries dumps the index in traversal order, optionally restricted to
// entries under a prefix.
func (h *Handler) Entries(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("id")
	prefix := r.URL.Query().Get("prefix")

	limit := defaultEntryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxEntryLimit)
	}

	doc, err := h.docs.Get(docID)
	if err != nil {
		h.writeAppError(w, err)
		return
	}

	resp := EntriesResponse{DocumentID: docID, Prefix: prefix, Entries: []wordindex.Entry{}}
	for e := range doc.Entries(prefix) {
		if len(resp.Entries) == limit {
			resp.Truncated = true
			break
		}
		resp.Entries = append(resp.Entries, e)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// CacheStats reports the lookup cache counters.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	stats := h.cache.Stats()
	total := stats.Hits + stats.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		"breaker":  stats.Breaker,
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
		message = "internal error"
	}
	h.writeError(w, status, message)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
