package repo

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gisa-chat/server/internal/agent/model"
	errx "github.com/gisa-chat/server/internal/core/error"
)

func setup(t *testing.T, ttl time.Duration, maxTurns int) (*miniredis.Miniredis, *RedisTurnRepository) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewRedisTurnRepository(rdb, ttl, maxTurns)
}

func TestRedisTurnRepository_Turns(t *testing.T) {
	ctx := context.Background()

	t.Run("Should append and read back turns oldest first", func(t *testing.T) {
		_, repo := setup(t, time.Minute, 0)
		for i := 0; i < 3; i++ {
			require.NoError(t, repo.AppendTurn(ctx, "u1", model.TurnRecord{
				TurnID:  fmt.Sprintf("t%d", i),
				Intent:  model.IntentGreet,
				Message: "Ciao",
				Slots:   model.Slots{"piano_code": "A1"},
			}))
		}
		turns, err := repo.RecentTurns(ctx, "u1", 0)
		require.NoError(t, err)
		require.Len(t, turns, 3)
		assert.Equal(t, "t0", turns[0].TurnID)
		assert.Equal(t, "A1", turns[2].Slots.String("piano_code"))

		last, err := repo.RecentTurns(ctx, "u1", 2)
		require.NoError(t, err)
		require.Len(t, last, 2)
		assert.Equal(t, "t1", last[0].TurnID)
	})

	t.Run("Should cap the log length", func(t *testing.T) {
		_, repo := setup(t, 0, 2)
		for i := 0; i < 5; i++ {
			require.NoError(t, repo.AppendTurn(ctx, "u1", model.TurnRecord{TurnID: fmt.Sprintf("t%d", i)}))
		}
		turns, err := repo.RecentTurns(ctx, "u1", 0)
		require.NoError(t, err)
		require.Len(t, turns, 2)
		assert.Equal(t, "t3", turns[0].TurnID)
		assert.Equal(t, "t4", turns[1].TurnID)
	})

	t.Run("Should refresh the ttl on append", func(t *testing.T) {
		mr, repo := setup(t, 30*time.Minute, 0)
		require.NoError(t, repo.AppendTurn(ctx, "u1", model.TurnRecord{TurnID: "t0"}))
		assert.Equal(t, 30*time.Minute, mr.TTL(repo.turnsKey("u1")))

		mr.FastForward(31 * time.Minute)
		turns, err := repo.RecentTurns(ctx, "u1", 0)
		require.NoError(t, err)
		assert.Empty(t, turns)
	})

	t.Run("Should isolate senders and clear history", func(t *testing.T) {
		_, repo := setup(t, time.Minute, 0)
		require.NoError(t, repo.AppendTurn(ctx, "u1", model.TurnRecord{TurnID: "a"}))
		require.NoError(t, repo.AppendTurn(ctx, "u2", model.TurnRecord{TurnID: "b"}))
		require.NoError(t, repo.SavePendingDetails(ctx, "u1", "dettagli"))

		require.NoError(t, repo.ClearHistory(ctx, "u1"))
		turns, err := repo.RecentTurns(ctx, "u1", 0)
		require.NoError(t, err)
		assert.Empty(t, turns)
		details, err := repo.TakePendingDetails(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, details)

		other, err := repo.RecentTurns(ctx, "u2", 0)
		require.NoError(t, err)
		assert.Len(t, other, 1)
	})

	t.Run("Should fail on corrupted records", func(t *testing.T) {
		mr, repo := setup(t, 0, 0)
		_, err := mr.RPush(repo.turnsKey("u1"), "{not json")
		require.NoError(t, err)
		_, err = repo.RecentTurns(ctx, "u1", 0)
		assert.Error(t, err)
	})

	t.Run("Should wrap connection failures", func(t *testing.T) {
		mr, repo := setup(t, 0, 0)
		mr.Close()
		err := repo.AppendTurn(ctx, "u1", model.TurnRecord{TurnID: "x"})
		require.Error(t, err)
		assert.Equal(t, http.StatusBadGateway, errx.StatusOf(err))
	})
}

func TestRedisTurnRepository_PendingDetails(t *testing.T) {
	ctx := context.Background()

	t.Run("Should hand out pending details exactly once", func(t *testing.T) {
		_, repo := setup(t, time.Minute, 0)
		require.NoError(t, repo.SavePendingDetails(ctx, "u1", "- IT001\n- IT002"))

		details, err := repo.TakePendingDetails(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "- IT001\n- IT002", details)

		details, err = repo.TakePendingDetails(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, details)
	})

	t.Run("Should clear pending details when saving an empty value", func(t *testing.T) {
		mr, repo := setup(t, time.Minute, 0)
		require.NoError(t, repo.SavePendingDetails(ctx, "u1", "x"))
		require.NoError(t, repo.SavePendingDetails(ctx, "u1", ""))
		assert.False(t, mr.Exists(repo.pendingKey("u1")))
	})

	t.Run("Should expire pending details", func(t *testing.T) {
		mr, repo := setup(t, time.Minute, 0)
		require.NoError(t, repo.SavePendingDetails(ctx, "u1", "x"))
		mr.FastForward(2 * time.Minute)
		details, err := repo.TakePendingDetails(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, details)
	})
}
