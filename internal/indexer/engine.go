package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/wordpositions/internal/wordindex"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/metrics"
)

// DocumentInfo describes a built index.
type DocumentInfo struct {
	DocumentID  string         `json:"document_id"`
	Kind        wordindex.Kind `json:"index_kind"`
	Normalizer  string         `json:"normalizer"`
	Words       int            `json:"words"`
	Vocabulary  int            `json:"vocabulary"`
	TrieNodes   int            `json:"trie_nodes,omitempty"`
	Fingerprint string         `json:"fingerprint"`
	BuiltAt     time.Time      `json:"built_at"`
	BuildTimeMs float64        `json:"build_time_ms"`
}

// LookupResult is the answer to one word query against one document.
// Positions is never nil.
type LookupResult struct {
	DocumentID  string         `json:"document_id"`
	Word        string         `json:"word"`
	Normalized  string         `json:"normalized"`
	Positions   []int          `json:"positions"`
	Count       int            `json:"count"`
	Kind        wordindex.Kind `json:"index_kind"`
	Normalizer  string         `json:"normalizer"`
	Fingerprint string         `json:"fingerprint"`
}

// IndexedDocument is an immutable snapshot of one built index. It stays
// valid after the engine replaces or removes the document.
type IndexedDocument struct {
	info    DocumentInfo
	idx     wordindex.Index
	metrics *metrics.Metrics
}

// Info describes the build that produced the snapshot.
func (d *IndexedDocument) Info() DocumentInfo {
	return d.info
}

// Normalize applies the normalizer the document was indexed with.
func (d *IndexedDocument) Normalize(word string) string {
	return d.idx.Normalize(word)
}

// Lookup normalizes word the way the document was normalized and returns
// its positions.
func (d *IndexedDocument) Lookup(word string) LookupResult {
	start := time.Now()
	normalized := d.idx.Normalize(word)
	positions := d.idx.Lookup(normalized)
	if d.metrics != nil {
		kind := string(d.info.Kind)
		d.metrics.LookupLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		result := "hit"
		if len(positions) == 0 {
			result = "miss"
		}
		d.metrics.LookupsTotal.WithLabelValues(kind, result).Inc()
	}
	return LookupResult{
		DocumentID:  d.info.DocumentID,
		Word:        word,
		Normalized:  normalized,
		Positions:   positions,
		Count:       len(positions),
		Kind:        d.info.Kind,
		Normalizer:  d.info.Normalizer,
		Fingerprint: d.info.Fingerprint,
	}
}

// Entries walks the index, keeping entries whose prefix starts with prefix.
func (d *IndexedDocument) Entries(prefix string) iter.Seq[wordindex.Entry] {
	return func(yield func(wordindex.Entry) bool) {
		for e := range d.idx.Entries() {
			if !strings.HasPrefix(e.Prefix, prefix) {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}

// Engine holds one built index per document. Indexes are built outside the
// lock and swapped in whole, so lookups never observe a partial build.
type Engine struct {
	mu         sync.RWMutex
	docs       map[string]*IndexedDocument
	kind       wordindex.Kind
	normName   string
	normalizer wordindex.Normalizer
	cfg        config.IndexerConfig
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewEngine validates cfg. m may be nil.
func NewEngine(cfg config.IndexerConfig, m *metrics.Metrics) (*Engine, error) {
	kind, err := wordindex.ParseKind(cfg.Kind)
	if err != nil {
		return nil, fmt.Errorf("configuring engine: %w", err)
	}
	normName, err := wordindex.NormalizerName(cfg.Normalize)
	if err != nil {
		return nil, fmt.Errorf("configuring engine: %w", err)
	}
	normalizer, err := wordindex.ParseNormalizer(normName)
	if err != nil {
		return nil, fmt.Errorf("configuring engine: %w", err)
	}
	return &Engine{
		docs:       make(map[string]*IndexedDocument),
		kind:       kind,
		normName:   normName,
		normalizer: normalizer,
		cfg:        cfg,
		metrics:    m,
		logger:     logger.WithComponent("indexer").With("kind", kind),
	}, nil
}

// Kind is the index implementation the engine builds.
func (e *Engine) Kind() wordindex.Kind {
	return e.kind
}

// IndexDocument builds a fresh index for words and replaces any previous
// index for docID.
func (e *Engine) IndexDocument(docID string, words []string) (DocumentInfo, error) {
	if err := e.validate(docID, words); err != nil {
		return DocumentInfo{}, err
	}

	start := time.Now()
	idx, err := wordindex.Build(e.kind, words, wordindex.WithNormalizer(e.normalizer))
	if err != nil {
		return DocumentInfo{}, fmt.Errorf("building index for %s: %w", docID, err)
	}
	elapsed := time.Since(start)

	info := DocumentInfo{
		DocumentID:  docID,
		Kind:        e.kind,
		Normalizer:  e.normName,
		Words:       idx.Len(),
		Vocabulary:  idx.Vocabulary(),
		Fingerprint: Fingerprint(words),
		BuiltAt:     time.Now().UTC(),
		BuildTimeMs: float64(elapsed.Microseconds()) / 1000,
	}
	if t, ok := idx.(*wordindex.TrieIndex); ok {
		info.TrieNodes = t.Nodes()
	}
	doc := &IndexedDocument{info: info, idx: idx, metrics: e.metrics}

	e.mu.Lock()
	prev := e.docs[docID]
	e.docs[docID] = doc
	count := len(e.docs)
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.BuildDuration.WithLabelValues(string(e.kind)).Observe(elapsed.Seconds())
		e.metrics.DocsIndexedTotal.Inc()
		e.metrics.IndexedDocuments.Set(float64(count))
		words, nodes := info.Words, info.TrieNodes
		if prev != nil {
			words -= prev.info.Words
			nodes -= prev.info.TrieNodes
		}
		e.metrics.IndexedWords.Add(float64(words))
		e.metrics.TrieNodes.Add(float64(nodes))
	}
	e.logger.Debug("document indexed",
		"doc_id", docID,
		"words", info.Words,
		"vocabulary", info.Vocabulary,
		"trie_nodes", info.TrieNodes,
		"replaced", prev != nil,
		"build_time", elapsed,
	)
	return info, nil
}

func (e *Engine) validate(docID string, words []string) error {
	if strings.TrimSpace(docID) == "" {
		return apperrors.InvalidInput("document id is required")
	}
	if len(words) > e.cfg.MaxWords {
		return apperrors.InvalidInput("document has %d words, limit is %d", len(words), e.cfg.MaxWords)
	}
	for i, w := range words {
		if len(w) > e.cfg.MaxWordLength {
			return apperrors.InvalidInput("word %d is %d bytes, limit is %d", i, len(w), e.cfg.MaxWordLength)
		}
	}
	return nil
}

// Get returns the current index snapshot for docID.
func (e *Engine) Get(docID string) (*IndexedDocument, error) {
	e.mu.RLock()
	doc, ok := e.docs[docID]
	e.mu.RUnlock()
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrDocumentNotFound, http.StatusNotFound, "document %q is not indexed", docID)
	}
	return doc, nil
}

// Lookup finds word in the current index of docID. It fails only when the
// document is not indexed.
func (e *Engine) Lookup(docID, word string) (LookupResult, error) {
	doc, err := e.Get(docID)
	if err != nil {
		return LookupResult{}, err
	}
	return doc.Lookup(word), nil
}

// Remove drops the index of docID and reports whether it existed.
func (e *Engine) Remove(docID string) bool {
	e.mu.Lock()
	prev, ok := e.docs[docID]
	delete(e.docs, docID)
	count := len(e.docs)
	e.mu.Unlock()
	if ok && e.metrics != nil {
		e.metrics.IndexedDocuments.Set(float64(count))
		e.metrics.IndexedWords.Sub(float64(prev.info.Words))
		e.metrics.TrieNodes.Sub(float64(prev.info.TrieNodes))
	}
	return ok
}

// Documents lists the indexed documents ordered by ID.
func (e *Engine) Documents() []DocumentInfo {
	e.mu.RLock()
	out := make([]DocumentInfo, 0, len(e.docs))
	for _, d := range e.docs {
		out = append(out, d.info)
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentID < out[j].DocumentID })
	return out
}

// Len is the number of indexed documents.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.docs)
}

// LoadFunc streams stored documents into add until the source is exhausted
// or add returns an error.
type LoadFunc func(ctx context.Context, add func(docID string, words []string) error) error

// Warm builds every document produced by load using up to cfg.WarmWorkers
// concurrent builds. Documents rejected as invalid are logged and skipped.
// It returns the number of documents indexed.
func (e *Engine) Warm(ctx context.Context, load LoadFunc) (int, error) {
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	workers := e.cfg.WarmWorkers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)

	var indexed, skipped atomic.Int64
	loadErr := load(gctx, func(docID string, words []string) error {
		if err := gctx.Err(); err != nil {
			return err
		}
		g.Go(func() error {
			if _, err := e.IndexDocument(docID, words); err != nil {
				if errors.Is(err, apperrors.ErrInvalidInput) {
					e.logger.Warn("skipping invalid stored document", "doc_id", docID, "error", err)
					skipped.Add(1)
					return nil
				}
				return err
			}
			indexed.Add(1)
			return nil
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		return int(indexed.Load()), fmt.Errorf("warming engine: %w", err)
	}
	if loadErr != nil {
		return int(indexed.Load()), fmt.Errorf("loading documents: %w", loadErr)
	}
	e.logger.Info("engine warm-up complete",
		"documents", indexed.Load(),
		"skipped", skipped.Load(),
		"duration", time.Since(start),
	)
	return int(indexed.Load()), nil
}

// Fingerprint identifies a word sequence. Equal sequences always share a
// fingerprint.
func Fingerprint(words []string) string {
	h := sha256.New()
	var buf [binary.MaxVarintLen64]byte
	for _, w := range words {
		n := binary.PutUvarint(buf[:], uint64(len(w)))
		h.Write(buf[:n])
		h.Write([]byte(w))
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}
