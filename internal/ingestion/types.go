// Package ingestion defines the request/response types and Kafka event schema
// used by the document ingestion pipeline.
package ingestion

import "time"

// IngestRequest is the JSON body accepted by the ingestion HTTP endpoint.
// Words is the already tokenized document.
type IngestRequest struct {
	Words          []string `json:"words"`
	IdempotencyKey string   `json:"idempotency_key"`
}

// IngestResponse is returned to the caller after a document is accepted.
type IngestResponse struct {
	DocumentID  string `json:"document_id"`
	Status      string `json:"status"`
	WordCount   int    `json:"word_count"`
	Fingerprint string `json:"fingerprint"`
}

// IngestEvent is the Kafka payload published after a document is stored.
type IngestEvent struct {
	DocumentID string    `json:"document_id"`
	Words      []string  `json:"words"`
	IngestedAt time.Time `json:"ingested_at"`
}
