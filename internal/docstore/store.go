// Package docstore persists ingested word sequences in PostgreSQL so the
// searcher can rebuild its indexes after a restart. Indexes themselves are
// never stored.
package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/postgres"
)

// Status is the indexing state of a stored document.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusIndexed Status = "INDEXED"
	StatusFailed  Status = "FAILED"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	words           TEXT[] NOT NULL,
	word_count      INTEGER NOT NULL,
	fingerprint     TEXT NOT NULL,
	idempotency_key TEXT UNIQUE,
	status          TEXT NOT NULL DEFAULT 'PENDING',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	indexed_at      TIMESTAMPTZ
)`

// Document is one stored word sequence.
type Document struct {
	ID             string
	Words          []string
	Fingerprint    string
	IdempotencyKey string
	Status         Status
	CreatedAt      time.Time
}

// ErrDuplicateKey is returned by Insert when the idempotency key is taken.
var ErrDuplicateKey = errors.New("idempotency key already stored")

// Store reads and writes the documents table.
type Store struct {
	client *postgres.Client
	db     *sql.DB
}

// New creates a Store over an open client.
func New(client *postgres.Client) *Store {
	return &Store{client: client, db: client.DB}
}

// NewFromDB wraps an existing handle.
func NewFromDB(db *sql.DB) *Store {
	return New(&postgres.Client{DB: db})
}

// EnsureSchema creates the documents table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}
	return nil
}

// Insert stores doc as PENDING and returns its generated ID.
func (s *Store) Insert(ctx context.Context, tx *sql.Tx, doc *Document) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx,
		`INSERT INTO documents (words, word_count, fingerprint, idempotency_key, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id`,
		pq.Array(doc.Words), len(doc.Words), doc.Fingerprint, nullableString(doc.IdempotencyKey), StatusPending,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrDuplicateKey
	}
	if err != nil {
		return "", fmt.Errorf("inserting document: %w", err)
	}
	return id, nil
}

// Create inserts doc in its own transaction. It returns ErrDuplicateKey when
// the idempotency key is taken.
func (s *Store) Create(ctx context.Context, doc *Document) (string, error) {
	var id string
	err := s.client.InTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = s.Insert(ctx, tx, doc)
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// FindByIdempotencyKey returns nil when no document carries key.
func (s *Store) FindByIdempotencyKey(ctx context.Context, key string) (*Document, error) {
	doc := &Document{IdempotencyKey: key}
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, words, fingerprint, status, created_at FROM documents WHERE idempotency_key = $1`,
		key,
	).Scan(&doc.ID, pq.Array(&doc.Words), &doc.Fingerprint, &status, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying idempotency key: %w", err)
	}
	doc.Status = Status(status)
	return doc, nil
}

// UpdateStatus records the indexing outcome of docID, stamping indexed_at when
// it succeeded.
func (s *Store) UpdateStatus(ctx context.Context, docID string, status Status) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = $1, indexed_at = CASE WHEN $1 = 'INDEXED' THEN NOW() ELSE indexed_at END WHERE id = $2`,
		string(status), docID,
	)
	if err != nil {
		return fmt.Errorf("updating status of %s: %w", docID, err)
	}
	return nil
}

// Load streams every stored document that did not fail indexing, oldest
// first, into add.
func (s *Store) Load(ctx context.Context, add func(docID string, words []string) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, words FROM documents WHERE status <> 'FAILED' ORDER BY created_at`)
	if err != nil {
		return fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var words []string
		if err := rows.Scan(&id, pq.Array(&words)); err != nil {
			return fmt.Errorf("scanning document: %w", err)
		}
		if err := add(id, words); err != nil {
			return err
		}
	}
	return rows.Err()
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
