// Package validator checks ingestion requests against the indexer limits and
// returns per-field error details.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/wordpositions/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/config"
)

const maxIdempotencyKeyLength = 255

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		keys = append(keys, field)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, field := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", field, e.Fields[field]))
	}
	return strings.Join(parts, "; ")
}

// ValidateIngestRequest requires a non-empty word list within the configured
// limits, with no empty words and no words containing a NUL byte, which
// Postgres text columns cannot store.
func ValidateIngestRequest(req *ingestion.IngestRequest, limits config.IndexerConfig) error {
	errs := make(map[string]string)

	switch {
	case len(req.Words) == 0:
		errs["words"] = "words is required and must not be empty"
	case len(req.Words) > limits.MaxWords:
		errs["words"] = fmt.Sprintf("at most %d words are allowed", limits.MaxWords)
	default:
		for i, w := range req.Words {
			if w == "" {
				errs["words"] = fmt.Sprintf("word %d is empty", i)
				break
			}
			if strings.IndexByte(w, 0) >= 0 {
				errs["words"] = fmt.Sprintf("word %d contains a NUL byte", i)
				break
			}
			if len(w) > limits.MaxWordLength {
				errs["words"] = fmt.Sprintf("word %d exceeds %d bytes", i, limits.MaxWordLength)
				break
			}
		}
	}
	if len(req.IdempotencyKey) > maxIdempotencyKeyLength {
		errs["idempotency_key"] = fmt.Sprintf("idempotency key must be at most %d characters", maxIdempotencyKeyLength)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
