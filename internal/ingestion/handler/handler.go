package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/wordpositions/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/logger"
)

// maxBodyBytes bounds a request body independently of the word limits so a
// huge payload is rejected before decoding.
const maxBodyBytes = 64 << 20

// Ingester persists a validated request and publishes it for indexing.
type Ingester interface {
	Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error)
}

// Handler serves document ingestion.
type Handler struct {
	ingester Ingester
	limits   config.IndexerConfig
	logger   *slog.Logger
}

// New creates a Handler that validates requests against limits.
func New(ing Ingester, limits config.IndexerConfig) *Handler {
	return &Handler{
		ingester: ing,
		limits:   limits,
		logger:   logger.WithComponent("ingestion-handler"),
	}
}

// Register mounts the ingestion routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/documents", h.Ingest)
	mux.HandleFunc("GET /health", h.Health)
}

// Ingest accepts a word list and answers 202 with the document ID.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var req ingestion.IngestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateIngestRequest(&req, h.limits); err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.ingester.Ingest(ctx, &req)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("ingestion failed",
			"error", err,
			"status_code", statusCode,
		)
		h.writeError(w, statusCode, "ingestion failed")
		return
	}
	log.Info("document ingested",
		"doc_id", resp.DocumentID,
		"words", resp.WordCount,
	)
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
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
