// Package retrieval answers "what indexed content is closest to this text".
package retrieval

import (
	"context"
	"fmt"

	"github.com/gisa-chat/server/internal/embedding"
	"github.com/gisa-chat/server/internal/resources"
	"github.com/gisa-chat/server/internal/vectorstore"
	logx "github.com/gisa-chat/server/pkg/logger"
)

const defaultTopK = 5

// Match is a ranked piece of semantic context.
type Match struct {
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Searcher is what routers and search tools depend on.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]Match, error)
}

// Provider is the subset of resources.Manager the retriever needs.
type Provider interface {
	EmbeddingModel(ctx context.Context) (embedding.Encoder, error)
	VectorClient(ctx context.Context) resources.VectorIndex
}

// Retriever encodes queries with the shared encoder and looks them up in the
// shared vector index.
type Retriever struct {
	resources Provider
}

func NewRetriever(p Provider) *Retriever {
	return &Retriever{resources: p}
}

// Search returns matches ordered by descending score. An unavailable index
// yields an empty result and no error.
func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]Match, error) {
	index := r.resources.VectorClient(ctx)
	if index == nil {
		logx.Debug().Msg("semantic search skipped: vector index unavailable")
		return []Match{}, nil
	}
	if topK <= 0 {
		topK = defaultTopK
	}

	enc, err := r.resources.EmbeddingModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	vec, err := enc.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("semantic search: encode query: %w", err)
	}

	hits, err := index.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		matches = append(matches, Match{Content: h.Content, Score: h.Score, Metadata: h.Metadata})
	}
	logx.Debug().Int("matches", len(matches)).Int("top_k", topK).Msg("semantic search done")
	return matches, nil
}

// Indexer writes documents into an exclusively opened store.
type Indexer struct {
	encoder embedding.Encoder
	store   *vectorstore.Store
}

func NewIndexer(enc embedding.Encoder, store *vectorstore.Store) *Indexer {
	return &Indexer{encoder: enc, store: store}
}

// Document is raw content to embed and store.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]any
}

// Index embeds and upserts docs, stopping at the first failure.
func (ix *Indexer) Index(ctx context.Context, docs []Document) (int, error) {
	n := 0
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		vec, err := ix.encoder.Embed(ctx, d.Content)
		if err != nil {
			return n, fmt.Errorf("index %s: %w", d.ID, err)
		}
		if err := ix.store.Upsert(ctx, vectorstore.Document{
			ID: d.ID, Content: d.Content, Metadata: d.Metadata, Embedding: vec,
		}); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
