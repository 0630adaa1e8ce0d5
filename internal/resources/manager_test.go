package resources

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gisa-chat/server/internal/embedding"
	"github.com/gisa-chat/server/internal/vectorstore"
)

type stubEncoder struct{ name string }

func (s *stubEncoder) Embed(context.Context, string) ([]float32, error) { return []float32{1}, nil }
func (s *stubEncoder) Dimensions() int                                  { return 1 }
func (s *stubEncoder) Name() string                                     { return s.name }

type stubIndex struct{ closed atomic.Int32 }

func (s *stubIndex) Search(context.Context, []float32, int) ([]vectorstore.Hit, error) {
	return nil, nil
}

func (s *stubIndex) Close() error {
	s.closed.Add(1)
	return nil
}

func existing(string) error { return nil }

func TestManager_EmbeddingModel(t *testing.T) {
	ctx := context.Background()

	t.Run("Should return the identical instance on every call", func(t *testing.T) {
		var loads atomic.Int32
		m := New(WithEncoderFactory(func(context.Context) (embedding.Encoder, error) {
			loads.Add(1)
			return &stubEncoder{name: "e"}, nil
		}))
		a, err := m.EmbeddingModel(ctx)
		require.NoError(t, err)
		b, err := m.EmbeddingModel(ctx)
		require.NoError(t, err)
		assert.Same(t, a, b)
		assert.Equal(t, int32(1), loads.Load())
	})

	t.Run("Should load once under a concurrent first-call race", func(t *testing.T) {
		var loads atomic.Int32
		m := New(WithEncoderFactory(func(context.Context) (embedding.Encoder, error) {
			loads.Add(1)
			time.Sleep(20 * time.Millisecond)
			return &stubEncoder{name: "e"}, nil
		}))

		const n = 32
		results := make([]embedding.Encoder, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				enc, err := m.EmbeddingModel(ctx)
				assert.NoError(t, err)
				results[i] = enc
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), loads.Load())
		for _, r := range results {
			assert.Same(t, results[0], r)
		}
	})

	t.Run("Should propagate a load failure and retry on the next call", func(t *testing.T) {
		var loads atomic.Int32
		m := New(WithEncoderFactory(func(context.Context) (embedding.Encoder, error) {
			if loads.Add(1) == 1 {
				return nil, errors.New("model download failed")
			}
			return &stubEncoder{name: "e"}, nil
		}))
		_, err := m.EmbeddingModel(ctx)
		require.Error(t, err)
		enc, err := m.EmbeddingModel(ctx)
		require.NoError(t, err)
		assert.NotNil(t, enc)
		assert.Equal(t, int32(2), loads.Load())
	})

	t.Run("Should fail without a factory", func(t *testing.T) {
		_, err := New().EmbeddingModel(ctx)
		assert.ErrorIs(t, err, ErrNoEncoderFactory)
	})
}

func TestManager_VectorClient(t *testing.T) {
	ctx := context.Background()

	t.Run("Should return the identical client on every call", func(t *testing.T) {
		var opens atomic.Int32
		idx := &stubIndex{}
		m := New(
			WithVectorPath("/data/index.db"),
			withStat(existing),
			WithVectorOpener(func(context.Context, string) (VectorIndex, error) {
				opens.Add(1)
				return idx, nil
			}),
		)
		a := m.VectorClient(ctx)
		b := m.VectorClient(ctx)
		assert.Same(t, idx, a)
		assert.Same(t, a, b)
		assert.Equal(t, int32(1), opens.Load())
	})

	t.Run("Should return nil forever without opening when the path is missing", func(t *testing.T) {
		var opens, stats atomic.Int32
		m := New(
			WithVectorPath("/missing/index.db"),
			withStat(func(string) error {
				stats.Add(1)
				return fs.ErrNotExist
			}),
			WithVectorOpener(func(context.Context, string) (VectorIndex, error) {
				opens.Add(1)
				return &stubIndex{}, nil
			}),
		)
		for i := 0; i < 5; i++ {
			assert.Nil(t, m.VectorClient(ctx))
		}
		assert.Equal(t, int32(0), opens.Load())
		assert.Equal(t, int32(1), stats.Load())
	})

	t.Run("Should cache an open failure and never retry", func(t *testing.T) {
		var opens atomic.Int32
		m := New(
			WithVectorPath("/data/index.db"),
			withStat(existing),
			WithVectorOpener(func(context.Context, string) (VectorIndex, error) {
				opens.Add(1)
				return nil, vectorstore.ErrStoreLocked
			}),
		)
		for i := 0; i < 5; i++ {
			assert.Nil(t, m.VectorClient(ctx))
		}
		assert.Equal(t, int32(1), opens.Load())
	})

	t.Run("Should open once under a concurrent first-call race", func(t *testing.T) {
		var opens atomic.Int32
		idx := &stubIndex{}
		m := New(
			WithVectorPath("/data/index.db"),
			withStat(existing),
			WithVectorOpener(func(context.Context, string) (VectorIndex, error) {
				opens.Add(1)
				time.Sleep(20 * time.Millisecond)
				return idx, nil
			}),
		)
		var wg sync.WaitGroup
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.Same(t, idx, m.VectorClient(ctx))
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), opens.Load())
	})

	t.Run("Should hold the real store lock for the manager lifetime", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "index.db")
		seed, err := vectorstore.Open(ctx, path)
		require.NoError(t, err)
		require.NoError(t, seed.Close())

		m := New(WithVectorPath(path))
		client := m.VectorClient(ctx)
		require.NotNil(t, client)

		_, err = vectorstore.Open(ctx, path)
		assert.ErrorIs(t, err, vectorstore.ErrStoreLocked)

		require.NoError(t, m.Close())
		again, err := vectorstore.Open(ctx, path)
		require.NoError(t, err)
		require.NoError(t, again.Close())
	})

	t.Run("Should close the client once", func(t *testing.T) {
		idx := &stubIndex{}
		m := New(
			WithVectorPath("/data/index.db"),
			withStat(existing),
			WithVectorOpener(func(context.Context, string) (VectorIndex, error) { return idx, nil }),
		)
		require.NotNil(t, m.VectorClient(ctx))
		require.NoError(t, m.Close())
		require.NoError(t, m.Close())
		assert.Equal(t, int32(1), idx.closed.Load())
	})
}
