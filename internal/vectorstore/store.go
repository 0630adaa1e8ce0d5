// Package vectorstore is a file-backed similarity index. A store path accepts
// a single open client at a time; a second Open on the same path fails with
// ErrStoreLocked instead of waiting.
package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/gisa-chat/server/internal/embedding"
	logx "github.com/gisa-chat/server/pkg/logger"
)

var (
	ErrStoreLocked = errors.New("vector store locked by another client")
	ErrClosed      = errors.New("vector store closed")
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	id        TEXT PRIMARY KEY,
	content   TEXT NOT NULL,
	metadata  TEXT NOT NULL DEFAULT '{}',
	dims      INTEGER NOT NULL,
	embedding BLOB NOT NULL
)`

// Document is an indexed piece of content.
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]any
	Embedding []float32
}

// Hit is a search result; higher Score is more similar.
type Hit struct {
	ID       string
	Content  string
	Metadata map[string]any
	Score    float64
}

// Store is an exclusive client over one index file.
type Store struct {
	path string
	db   *sql.DB
	lock *flock.Flock

	mu     sync.Mutex
	closed bool
}

// Open takes the path's lock and opens (creating if needed) the index.
func Open(ctx context.Context, path string) (*Store, error) {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock vector store %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrStoreLocked, path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open vector store %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("init vector store schema: %w", err)
	}

	logx.Debug().Str("path", path).Msg("vector store opened")
	return &Store{path: path, db: db, lock: lock}, nil
}

// Path returns the index file the store holds.
func (s *Store) Path() string {
	return s.path
}

// Upsert inserts or replaces a document.
func (s *Store) Upsert(ctx context.Context, doc Document) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if doc.ID == "" {
		return fmt.Errorf("upsert: document id is required")
	}
	if len(doc.Embedding) == 0 {
		return fmt.Errorf("upsert %s: empty embedding", doc.ID)
	}
	meta := doc.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("upsert %s: marshal metadata: %w", doc.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO documents (id, content, metadata, dims, embedding) VALUES (?, ?, ?, ?, ?)",
		doc.ID, doc.Content, string(metaJSON), len(doc.Embedding), encodeVector(doc.Embedding),
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", doc.ID, err)
	}
	return nil
}

// Count returns the number of indexed documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := s.ensureOpen(); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// Search returns the k documents most similar to vector, best first.
// Documents whose dimensionality differs from vector are skipped.
func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	if k <= 0 || len(vector) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, content, metadata, embedding FROM documents WHERE dims = ?", len(vector))
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			h        Hit
			metaJSON string
			blob     []byte
		)
		if err := rows.Scan(&h.ID, &h.Content, &metaJSON, &blob); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		score, err := embedding.CosineSimilarity(vector, decodeVector(blob))
		if err != nil {
			continue
		}
		h.Score = score
		if metaJSON != "" {
			_ = json.Unmarshal([]byte(metaJSON), &h.Metadata)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Close releases the database and the path lock. It is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	dbErr := s.db.Close()
	lockErr := s.lock.Unlock()
	return errors.Join(dbErr, lockErr)
}

func (s *Store) ensureOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
