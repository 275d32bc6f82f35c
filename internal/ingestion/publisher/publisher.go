// Package publisher stores ingested documents in PostgreSQL and publishes
// ingest events to Kafka for the searcher to index. Requests carrying an
// idempotency key are stored at most once.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/wordpositions/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/logger"
)

// DocumentStore persists ingested documents.
type DocumentStore interface {
	Create(ctx context.Context, doc *docstore.Document) (string, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*docstore.Document, error)
}

// EventPublisher writes keyed messages to the ingest topic.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Publisher stores documents and announces them to the indexer.
type Publisher struct {
	store    DocumentStore
	producer EventPublisher
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Publisher.
func New(store DocumentStore, producer EventPublisher) *Publisher {
	return &Publisher{
		store:    store,
		producer: producer,
		logger:   logger.WithComponent("publisher"),
		now:      time.Now,
	}
}

// Ingest stores the document as PENDING and publishes an IngestEvent keyed by
// the document ID. A failed publish leaves the document PENDING; the
// searcher picks it up from the store on its next start.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	if req.IdempotencyKey != "" {
		existing, err := p.store.FindByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("checking idempotency key: %w", err)
		}
		if existing != nil {
			p.logger.Info("duplicate ingestion detected",
				"idempotency_key", req.IdempotencyKey,
				"existing_id", existing.ID,
			)
			return responseFor(existing), nil
		}
	}

	doc := &docstore.Document{
		Words:          req.Words,
		Fingerprint:    indexer.Fingerprint(req.Words),
		IdempotencyKey: req.IdempotencyKey,
		Status:         docstore.StatusPending,
	}
	id, err := p.store.Create(ctx, doc)
	if errors.Is(err, docstore.ErrDuplicateKey) {
		// lost a race with a concurrent request using the same key
		existing, ferr := p.store.FindByIdempotencyKey(ctx, req.IdempotencyKey)
		if ferr != nil || existing == nil {
			return nil, fmt.Errorf("resolving duplicate idempotency key: %w", err)
		}
		return responseFor(existing), nil
	}
	if err != nil {
		return nil, fmt.Errorf("storing document: %w", err)
	}
	doc.ID = id

	event := kafka.Event{
		Key: id,
		Value: ingestion.IngestEvent{
			DocumentID: id,
			Words:      req.Words,
			IngestedAt: p.now().UTC(),
		},
	}
	if err := p.producer.Publish(ctx, event); err != nil {
		p.logger.Error("failed to publish to kafka, document stays PENDING",
			"doc_id", id,
			"error", err,
		)
	}
	return responseFor(doc), nil
}

func responseFor(doc *docstore.Document) *ingestion.IngestResponse {
	return &ingestion.IngestResponse{
		DocumentID:  doc.ID,
		Status:      string(doc.Status),
		WordCount:   len(doc.Words),
		Fingerprint: doc.Fingerprint,
	}
}
