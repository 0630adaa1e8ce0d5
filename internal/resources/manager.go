// Package resources hands out the process-wide embedding encoder and vector
// index client. Each is created at most once; racing first callers block on
// the same initialization and observe the same result.
package resources

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gisa-chat/server/internal/embedding"
	"github.com/gisa-chat/server/internal/vectorstore"
	logx "github.com/gisa-chat/server/pkg/logger"
)

// VectorIndex is the part of the vector store client the engine uses.
type VectorIndex interface {
	Search(ctx context.Context, vector []float32, k int) ([]vectorstore.Hit, error)
	Close() error
}

// EncoderFactory performs the (slow) encoder load.
type EncoderFactory func(ctx context.Context) (embedding.Encoder, error)

// VectorOpener opens the exclusive client for path.
type VectorOpener func(ctx context.Context, path string) (VectorIndex, error)

var ErrNoEncoderFactory = errors.New("no embedding encoder factory configured")

type encoderSlot struct {
	enc embedding.Encoder
}

// Manager owns the shared resources. The zero value is not usable; use New.
type Manager struct {
	vectorPath string
	newEncoder EncoderFactory
	openVector VectorOpener
	statPath   func(string) error

	encMu   sync.Mutex
	encoder atomic.Pointer[encoderSlot]

	vecMu        sync.Mutex
	vecAttempted atomic.Bool
	vector       VectorIndex // written once under vecMu, before vecAttempted is set
	closed       bool
}

type Option func(*Manager)

// WithVectorPath sets the fixed path of the vector index file.
func WithVectorPath(path string) Option {
	return func(m *Manager) { m.vectorPath = path }
}

func WithEncoderFactory(f EncoderFactory) Option {
	return func(m *Manager) { m.newEncoder = f }
}

func WithVectorOpener(f VectorOpener) Option {
	return func(m *Manager) { m.openVector = f }
}

// withStat replaces the existence check; tests use it to simulate paths.
func withStat(f func(string) error) Option {
	return func(m *Manager) { m.statPath = f }
}

func New(opts ...Option) *Manager {
	m := &Manager{
		openVector: func(ctx context.Context, path string) (VectorIndex, error) {
			s, err := vectorstore.Open(ctx, path)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		statPath: func(p string) error {
			_, err := os.Stat(p)
			return err
		},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// EmbeddingModel returns the shared encoder, loading it on first use.
// A failed load is returned to the caller and retried by the next one.
func (m *Manager) EmbeddingModel(ctx context.Context) (embedding.Encoder, error) {
	if slot := m.encoder.Load(); slot != nil {
		return slot.enc, nil
	}

	m.encMu.Lock()
	defer m.encMu.Unlock()
	if slot := m.encoder.Load(); slot != nil {
		return slot.enc, nil
	}
	if m.newEncoder == nil {
		return nil, ErrNoEncoderFactory
	}

	logx.Info().Msg("loading embedding encoder")
	enc, err := m.newEncoder(ctx)
	if err != nil {
		logx.Error().Err(err).Msg("embedding encoder load failed")
		return nil, fmt.Errorf("load embedding encoder: %w", err)
	}
	if enc == nil {
		return nil, fmt.Errorf("load embedding encoder: factory returned nil")
	}
	m.encoder.Store(&encoderSlot{enc: enc})
	logx.Info().Str("encoder", enc.Name()).Int("dimensions", enc.Dimensions()).Msg("embedding encoder ready")
	return enc, nil
}

// VectorClient returns the shared index client or nil when the index is
// unavailable. Only one open is ever attempted; its outcome, nil included,
// is cached for the life of the manager.
func (m *Manager) VectorClient(ctx context.Context) VectorIndex {
	if m.vecAttempted.Load() {
		return m.vector
	}

	m.vecMu.Lock()
	defer m.vecMu.Unlock()
	if m.vecAttempted.Load() {
		return m.vector
	}
	defer m.vecAttempted.Store(true)

	path := m.vectorPath
	if path == "" {
		logx.Warn().Msg("vector store path not configured; semantic search disabled")
		return nil
	}
	if err := m.statPath(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logx.Warn().Str("path", path).Msg("vector store not found; semantic search disabled")
		} else {
			logx.Warn().Err(err).Str("path", path).Msg("vector store not accessible; semantic search disabled")
		}
		return nil
	}

	// A caller abandoning its turn must not leave a half-opened client behind.
	client, err := m.openVector(context.WithoutCancel(ctx), path)
	if err != nil {
		logx.Error().Err(err).Str("path", path).Msg("vector store open failed; semantic search disabled")
		return nil
	}
	if client == nil {
		return nil
	}
	m.vector = client
	logx.Info().Str("path", path).Msg("vector store client ready")
	return client
}

// Close releases the vector client and its file lock. Later VectorClient
// calls keep returning the cached value, so Close only at shutdown.
func (m *Manager) Close() error {
	m.vecMu.Lock()
	defer m.vecMu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.vecAttempted.Store(true)
	if m.vector == nil {
		return nil
	}
	return m.vector.Close()
}
