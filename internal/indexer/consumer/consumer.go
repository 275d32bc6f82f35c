// Package consumer reads ingest events from Kafka and builds an index for
// each document through the indexer engine.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/wordpositions/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/logger"
)

// Indexer builds and registers the index for an ingested document.
type Indexer interface {
	IndexDocument(docID string, words []string) (indexer.DocumentInfo, error)
}

// StatusUpdater records the outcome of indexing a stored document.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, docID string, status docstore.Status) error
}

// HandleMessage returns a kafka.MessageHandler that indexes every ingest
// event. Undecodable events and documents the engine rejects as invalid are
// logged and committed so they are not redelivered. statuses may be nil.
func HandleMessage(engine Indexer, statuses StatusUpdater) kafka.MessageHandler {
	log := logger.WithComponent("index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IngestEvent](value)
		if err != nil {
			log.Error("failed to decode ingest event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		log.Debug("processing ingest event",
			"doc_id", event.DocumentID,
			"words", len(event.Words),
		)

		info, err := engine.IndexDocument(event.DocumentID, event.Words)
		if err != nil {
			updateStatus(ctx, statuses, event.DocumentID, docstore.StatusFailed, log)
			if errors.Is(err, apperrors.ErrInvalidInput) {
				log.Warn("rejected ingest event",
					"doc_id", event.DocumentID,
					"error", err,
				)
				return nil
			}
			return fmt.Errorf("indexing document %s: %w", event.DocumentID, err)
		}

		updateStatus(ctx, statuses, event.DocumentID, docstore.StatusIndexed, log)
		log.Info("document indexed",
			"doc_id", event.DocumentID,
			"vocabulary", info.Vocabulary,
			"build_time_ms", info.BuildTimeMs,
		)
		return nil
	}
}

func updateStatus(ctx context.Context, statuses StatusUpdater, docID string, status docstore.Status, log *slog.Logger) {
	if statuses == nil {
		return
	}
	if err := statuses.UpdateStatus(ctx, docID, status); err != nil {
		log.Error("failed to update document status",
			"doc_id", docID,
			"status", status,
			"error", err,
		)
	}
}
