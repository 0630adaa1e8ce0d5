package embedding

import (
	"context"
	"fmt"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEncoder memoizes embeddings of recently seen texts.
type CachedEncoder struct {
	inner Encoder
	cache *lru.Cache[string, []float32]
}

// NewCachedEncoder wraps inner with an LRU of the given size.
func NewCachedEncoder(inner Encoder, size int) (*CachedEncoder, error) {
	if inner == nil {
		return nil, fmt.Errorf("cached encoder: inner encoder is required")
	}
	if size <= 0 {
		return nil, fmt.Errorf("cached encoder: cache size must be greater than zero")
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("cached encoder: init cache: %w", err)
	}
	return &CachedEncoder{inner: inner, cache: cache}, nil
}

// Embed returns a copy of the cached vector; callers may modify it freely.
func (c *CachedEncoder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := strings.TrimSpace(text)
	if v, ok := c.cache.Get(key); ok {
		return slices.Clone(v), nil
	}
	v, err := c.inner.Embed(ctx, key)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, slices.Clone(v))
	return v, nil
}

func (c *CachedEncoder) Dimensions() int {
	return c.inner.Dimensions()
}

func (c *CachedEncoder) Name() string {
	return "cached:" + c.inner.Name()
}
