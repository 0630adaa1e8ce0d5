package conversations

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gisa-chat/server/internal/agent/model"
	"github.com/gisa-chat/server/internal/agent/repo"
)

func newRepo(t *testing.T) (*miniredis.Miniredis, *repo.RedisTurnRepository) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, repo.NewRedisTurnRepository(rdb, time.Minute, 10)
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()

	t.Run("Should record the turn and keep its details", func(t *testing.T) {
		_, turns := newRepo(t)
		r := NewRecorder(turns)
		r.Record(ctx, &model.TurnState{
			TurnID:         "t1",
			Message:        "di cosa tratta il piano A1?",
			Metadata:       model.Metadata{Sender: "u1"},
			Intent:         model.IntentAskPianoDescription,
			Slots:          model.Slots{"piano_code": "A1"},
			FinalResponse:  "Piano A1",
			HasMoreDetails: true,
			ToolOutput:     &model.ToolOutput{FormattedResponse: "Piano A1", HasMoreDetails: true, Details: "- Caseificio"},
		})

		history, err := r.History(ctx, "u1", 0)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, "t1", history[0].TurnID)
		assert.Equal(t, "Piano A1", history[0].Response)
		assert.False(t, history[0].CreatedAt.IsZero())

		details, err := turns.TakePendingDetails(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "- Caseificio", details)
	})

	t.Run("Should clear stale details on a turn without them", func(t *testing.T) {
		_, turns := newRepo(t)
		require.NoError(t, turns.SavePendingDetails(ctx, "u1", "vecchi"))
		NewRecorder(turns).Record(ctx, &model.TurnState{TurnID: "t2", Metadata: model.Metadata{Sender: "u1"}})

		details, err := turns.TakePendingDetails(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, details)
	})

	t.Run("Should skip anonymous turns", func(t *testing.T) {
		mr, turns := newRepo(t)
		NewRecorder(turns).Record(ctx, &model.TurnState{TurnID: "t3"})
		assert.Empty(t, mr.Keys())
	})

	t.Run("Should not fail the turn when the store is down", func(t *testing.T) {
		mr, turns := newRepo(t)
		mr.Close()
		assert.NotPanics(t, func() {
			NewRecorder(turns).Record(ctx, &model.TurnState{TurnID: "t4", Metadata: model.Metadata{Sender: "u1"}})
		})
	})

	t.Run("Should tolerate a nil recorder", func(t *testing.T) {
		var r *Recorder
		r.Record(ctx, &model.TurnState{Metadata: model.Metadata{Sender: "u1"}})
		history, err := r.History(ctx, "u1", 5)
		require.NoError(t, err)
		assert.Empty(t, history)
		assert.NoError(t, r.Forget(ctx, "u1"))
	})

	t.Run("Should forget a sender", func(t *testing.T) {
		_, turns := newRepo(t)
		r := NewRecorder(turns)
		r.Record(ctx, &model.TurnState{TurnID: "t5", Metadata: model.Metadata{Sender: "u1"}})
		require.NoError(t, r.Forget(ctx, "u1"))
		history, err := r.History(ctx, "u1", 0)
		require.NoError(t, err)
		assert.Empty(t, history)
	})
}
