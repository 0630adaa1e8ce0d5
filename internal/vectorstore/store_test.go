package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestStore_Search(t *testing.T) {
	ctx := context.Background()

	t.Run("Should rank documents by descending similarity", func(t *testing.T) {
		s, _ := openTemp(t)
		require.NoError(t, s.Upsert(ctx, Document{ID: "a", Content: "molluschi", Embedding: []float32{1, 0, 0}}))
		require.NoError(t, s.Upsert(ctx, Document{ID: "b", Content: "latte crudo", Embedding: []float32{0.7, 0.7, 0}}))
		require.NoError(t, s.Upsert(ctx, Document{ID: "c", Content: "apicoltura", Embedding: []float32{0, 0, 1}}))

		hits, err := s.Search(ctx, []float32{1, 0.1, 0}, 2)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, "a", hits[0].ID)
		assert.Equal(t, "b", hits[1].ID)
		assert.Greater(t, hits[0].Score, hits[1].Score)
	})

	t.Run("Should skip documents of another dimensionality", func(t *testing.T) {
		s, _ := openTemp(t)
		require.NoError(t, s.Upsert(ctx, Document{ID: "a", Content: "x", Embedding: []float32{1, 0}}))
		require.NoError(t, s.Upsert(ctx, Document{ID: "b", Content: "y", Embedding: []float32{1, 0, 0}}))

		hits, err := s.Search(ctx, []float32{1, 0, 0}, 5)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "b", hits[0].ID)
	})

	t.Run("Should keep metadata round trip", func(t *testing.T) {
		s, _ := openTemp(t)
		require.NoError(t, s.Upsert(ctx, Document{
			ID: "a", Content: "x", Embedding: []float32{1},
			Metadata: map[string]any{"piano_code": "A1"},
		}))
		hits, err := s.Search(ctx, []float32{1}, 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "A1", hits[0].Metadata["piano_code"])
	})

	t.Run("Should replace on upsert", func(t *testing.T) {
		s, _ := openTemp(t)
		require.NoError(t, s.Upsert(ctx, Document{ID: "a", Content: "old", Embedding: []float32{1}}))
		require.NoError(t, s.Upsert(ctx, Document{ID: "a", Content: "new", Embedding: []float32{1}}))
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestStore_SingleClient(t *testing.T) {
	ctx := context.Background()

	t.Run("Should refuse a second client on the same path", func(t *testing.T) {
		_, path := openTemp(t)
		_, err := Open(ctx, path)
		assert.ErrorIs(t, err, ErrStoreLocked)
	})

	t.Run("Should allow reopening after close", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "index.db")
		first, err := Open(ctx, path)
		require.NoError(t, err)
		require.NoError(t, first.Close())
		require.NoError(t, first.Close())

		second, err := Open(ctx, path)
		require.NoError(t, err)
		require.NoError(t, second.Close())
	})

	t.Run("Should reject use after close", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "index.db")
		s, err := Open(ctx, path)
		require.NoError(t, err)
		require.NoError(t, s.Close())
		_, err = s.Search(ctx, []float32{1}, 1)
		assert.ErrorIs(t, err, ErrClosed)
	})
}
