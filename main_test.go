package main

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gisa-chat/server/internal/agent/dataset"
	"github.com/gisa-chat/server/internal/core"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Should apply defaults", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "k")
		cfg, err := loadConfig("")
		require.NoError(t, err)

		assert.Equal(t, "gemini-2.5-flash-lite", cfg.Router.Model)
		assert.Equal(t, "csv", cfg.Data.Source)
		assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
		assert.Equal(t, "chat.message", cfg.Server.NatsSubject)
		assert.Equal(t, 4, cfg.Server.NatsWorkers)
		assert.Equal(t, 3, cfg.Suggestions.Max)
		assert.Equal(t, core.Development, cfg.env())

		ttl, err := cfg.turnTTL()
		require.NoError(t, err)
		assert.Equal(t, 30*time.Minute, ttl)
	})

	t.Run("Should read overrides", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "k")
		t.Setenv("ENVIRONMENT", "production")
		t.Setenv("ROUTER_SEMANTIC_HINTS", "true")
		t.Setenv("REDIS_URL", "redis://cache:6379/1")
		cfg, err := loadConfig("")
		require.NoError(t, err)

		assert.True(t, cfg.Router.SemanticHints)
		assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
		assert.Equal(t, core.Production, cfg.env())
	})

	t.Run("Should require the api key", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "")
		require.NoError(t, os.Unsetenv("GEMINI_API_KEY"))
		_, err := loadConfig("")
		assert.Error(t, err)
	})

	t.Run("Should reject invalid values", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "k")
		t.Setenv("DATA_SOURCE", "excel")
		_, err := loadConfig("")
		assert.Error(t, err)

		t.Setenv("DATA_SOURCE", "csv")
		t.Setenv("TURN_TTL", "mezz'ora")
		_, err = loadConfig("")
		assert.Error(t, err)
	})
}

func TestPlanDocuments(t *testing.T) {
	data, err := dataset.LoadCSVDir("internal/agent/dataset/testdata")
	require.NoError(t, err)

	docs, err := planDocuments(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, docs, 3)

	assert.Equal(t, "piano:A1", docs[0].ID)
	assert.Equal(t, "A1", docs[0].Metadata["piano_code"])
	assert.Contains(t, docs[0].Content, "Latte crudo")
	assert.Contains(t, docs[0].Content, "Caseificio")
}
