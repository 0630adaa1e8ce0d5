package graph

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gisa-chat/server/internal/agent/dataset"
	"github.com/gisa-chat/server/internal/agent/graph/conversations"
	"github.com/gisa-chat/server/internal/agent/graph/nodes"
	"github.com/gisa-chat/server/internal/agent/llm"
	"github.com/gisa-chat/server/internal/agent/model"
	"github.com/gisa-chat/server/internal/agent/repo"
	"github.com/gisa-chat/server/internal/agent/router"
	"github.com/gisa-chat/server/internal/agent/suggestions"
	"github.com/gisa-chat/server/internal/agent/tools"
	errx "github.com/gisa-chat/server/internal/core/error"
	"github.com/gisa-chat/server/internal/metrics"
)

// scripted answers like the classifier would, keyed by the user message.
func scripted(replies map[string]string) llm.Querier {
	return llm.QuerierFunc(func(_ context.Context, prompt string, _ float32) (string, error) {
		for msg, reply := range replies {
			if strings.Contains(prompt, "Messaggio: "+msg) {
				return reply, nil
			}
		}
		return `{"intent": "fallback"}`, nil
	})
}

type env struct {
	runner  Runner
	metrics *metrics.Metrics
	turns   *repo.RedisTurnRepository
}

func newEnv(t *testing.T, q llm.Querier) env {
	t.Helper()
	data, err := dataset.LoadCSVDir("../dataset/testdata")
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	turns := repo.NewRedisTurnRepository(rdb, time.Minute, 10)

	m := metrics.New()
	runner, err := BuildRunner(context.Background(), Config{
		Router:      router.New(q, model.RouterConfig{MaxMessageRune: 2000}),
		Tools:       tools.NewRegistry(tools.Deps{Data: data, Pending: turns}),
		Suggestions: suggestions.New(model.SuggestionConfig{}),
		Recorder:    conversations.NewRecorder(turns),
		Metrics:     m,
	})
	require.NoError(t, err)
	return env{runner: runner, metrics: m, turns: turns}
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestRunner_Invoke(t *testing.T) {
	ctx := context.Background()

	t.Run("Should greet without follow-ups", func(t *testing.T) {
		e := newEnv(t, scripted(map[string]string{"Ciao": `{"intent": "greet", "slots": {}}`}))

		resp, err := e.runner.Invoke(ctx, model.ChatRequest{Sender: "u1", Message: "Ciao"})
		require.NoError(t, err)
		assert.Equal(t, "u1", resp.Sender)
		assert.Equal(t, model.IntentGreet, resp.Result.Intent)
		assert.Empty(t, resp.Result.Slots)
		assert.NotNil(t, resp.Result.Suggestions)
		assert.Empty(t, resp.Result.Suggestions)
		assert.Empty(t, resp.Result.Error)
		assert.NotEmpty(t, resp.Result.Text)
		require.NotNil(t, resp.Result.Execution)
		assert.Equal(t, "tool_greet", resp.Result.Execution.Tool)
		assert.NotEmpty(t, resp.Result.Execution.TurnID)
	})

	t.Run("Should describe a plan and keep its details for the next turn", func(t *testing.T) {
		e := newEnv(t, scripted(map[string]string{
			"di cosa tratta il piano A1?": `{"intent": "ask_piano_description", "slots": {"piano_code": "A1"}}`,
			"sì":                          `{"intent": "confirm_show_details"}`,
		}))

		resp, err := e.runner.Invoke(ctx, model.ChatRequest{Sender: "u1", Message: "di cosa tratta il piano A1?"})
		require.NoError(t, err)
		assert.Equal(t, model.IntentAskPianoDescription, resp.Result.Intent)
		assert.Equal(t, "A1", resp.Result.Slots.String("piano_code"))
		assert.Contains(t, resp.Result.Text, "Latte crudo")
		assert.True(t, resp.Result.HasMoreDetails)
		require.NotEmpty(t, resp.Result.Suggestions)
		assert.Equal(t, suggestions.ShowDetailsText, resp.Result.Suggestions[0].Text)
		assert.LessOrEqual(t, len(resp.Result.Suggestions), 3)

		history, err := e.turns.RecentTurns(ctx, "u1", 0)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, resp.Result.Execution.TurnID, history[0].TurnID)

		details, err := e.runner.Invoke(ctx, model.ChatRequest{Sender: "u1", Message: "sì"})
		require.NoError(t, err)
		assert.Equal(t, model.IntentConfirmShowDetails, details.Result.Intent)
		assert.Contains(t, details.Result.Text, "Caseificio")
		assert.False(t, details.Result.HasMoreDetails)
	})

	t.Run("Should finalize with the missing parameter message", func(t *testing.T) {
		e := newEnv(t, scripted(map[string]string{
			"chi controllo prima?": `{"intent": "ask_risk_based_priority", "slots": {}}`,
		}))

		resp, err := e.runner.Invoke(ctx, model.ChatRequest{Sender: "u1", Message: "chi controllo prima?"})
		require.NoError(t, err)
		assert.Equal(t, model.IntentAskRiskBasedPriority, resp.Result.Intent)
		assert.Equal(t, tools.ErrASLMissing, resp.Result.Text)
		assert.Equal(t, tools.ErrASLMissing, resp.Result.Error)
		assert.Empty(t, resp.Result.Suggestions)
		assert.Contains(t, scrape(t, e.metrics),
			`chat_turns_total{intent="ask_risk_based_priority",outcome="tool_error"} 1`)
	})

	t.Run("Should use metadata ASL when the slot is absent", func(t *testing.T) {
		e := newEnv(t, scripted(map[string]string{
			"chi controllo prima?": `{"intent": "ask_risk_based_priority", "slots": {}}`,
		}))

		resp, err := e.runner.Invoke(ctx, model.ChatRequest{
			Sender:   "u1",
			Message:  "chi controllo prima?",
			Metadata: &model.Metadata{ASL: "AVELLINO"},
		})
		require.NoError(t, err)
		assert.Empty(t, resp.Result.Error)
		assert.Contains(t, resp.Result.Text, "Caseificio")
	})

	t.Run("Should fall back when the classifier is down", func(t *testing.T) {
		down := llm.QuerierFunc(func(context.Context, string, float32) (string, error) {
			return "", errors.New("connection refused")
		})
		e := newEnv(t, down)

		resp, err := e.runner.Invoke(ctx, model.ChatRequest{Sender: "u1", Message: "quali piani?"})
		require.NoError(t, err)
		assert.Equal(t, model.IntentFallback, resp.Result.Intent)
		assert.Equal(t, tools.MsgNotUnderstood, resp.Result.Text)
		assert.Empty(t, resp.Result.Suggestions)
		assert.Contains(t, scrape(t, e.metrics), "chat_router_fallbacks_total 1")
	})

	t.Run("Should ask for clarification without dispatching", func(t *testing.T) {
		e := newEnv(t, scripted(map[string]string{
			"il piano": `{"intent": "ask_piano_generic", "slots": {}, "needs_clarification": true}`,
		}))

		resp, err := e.runner.Invoke(ctx, model.ChatRequest{Sender: "u1", Message: "il piano"})
		require.NoError(t, err)
		assert.True(t, resp.Result.NeedsClarification)
		assert.Equal(t, nodes.MsgClarify, resp.Result.Text)
		assert.Empty(t, resp.Result.Execution.Tool)
		assert.Empty(t, resp.Result.Suggestions)
	})

	t.Run("Should complete anonymous turns without recording them", func(t *testing.T) {
		e := newEnv(t, scripted(map[string]string{"Ciao": `{"intent": "greet"}`}))

		resp, err := e.runner.Invoke(ctx, model.ChatRequest{Message: "Ciao"})
		require.NoError(t, err)
		assert.Equal(t, model.IntentGreet, resp.Result.Intent)

		history, err := e.turns.RecentTurns(ctx, "", 0)
		require.NoError(t, err)
		assert.Empty(t, history)
	})
}

func TestBuildGraph_Stages(t *testing.T) {
	ctx := context.Background()
	down := llm.QuerierFunc(func(context.Context, string, float32) (string, error) {
		return "", errors.New("timeout")
	})

	runnable, err := BuildGraph(ctx, &Config{
		Router: router.New(down, model.RouterConfig{MaxMessageRune: 2000}),
		Tools: tools.NewRegistryFrom(map[model.Intent]tools.Handler{
			model.IntentGreet: tools.HandlerFunc(func(context.Context, model.Slots, model.Metadata) (model.ToolOutput, error) {
				return model.ToolOutput{FormattedResponse: "Ciao!"}, nil
			}),
		}),
	})
	require.NoError(t, err)

	st, err := runnable.Invoke(ctx, model.TurnInput{TurnID: "t1", Message: "Ciao"})
	require.NoError(t, err)
	assert.Equal(t, model.StageFinalized, st.Stage)
	assert.Equal(t, model.IntentFallback, st.Intent)
	assert.Equal(t, "t1", st.TurnID)
	require.NotNil(t, st.ToolOutput)
	assert.Equal(t, tools.MsgNotUnderstood, st.FinalResponse)
}

type unregisteredDispatcher struct{}

func (unregisteredDispatcher) Dispatch(_ context.Context, intent model.Intent, _ model.Slots, _ model.Metadata) (model.ToolOutput, error) {
	return model.ToolOutput{}, errx.Unregistered(string(intent))
}

func TestRunner_ConfigurationDefects(t *testing.T) {
	ctx := context.Background()
	q := scripted(map[string]string{"Ciao": `{"intent": "greet"}`})

	t.Run("Should refuse to build with an incomplete dispatch table", func(t *testing.T) {
		_, err := BuildRunner(ctx, Config{
			Router: router.New(q, model.RouterConfig{MaxMessageRune: 2000}),
			Tools:  tools.NewRegistryFrom(map[model.Intent]tools.Handler{}),
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, errx.ErrIntentNotRegistered)
	})

	t.Run("Should abort the turn when the intent has no handler", func(t *testing.T) {
		m := metrics.New()
		runner, err := BuildRunner(ctx, Config{
			Router:  router.New(q, model.RouterConfig{MaxMessageRune: 2000}),
			Tools:   unregisteredDispatcher{},
			Metrics: m,
		})
		require.NoError(t, err)

		resp, err := runner.Invoke(ctx, model.ChatRequest{Sender: "u1", Message: "Ciao"})
		require.Error(t, err)
		assert.Nil(t, resp)
		assert.ErrorContains(t, err, errx.ErrIntentNotRegistered.Error())
		assert.Contains(t, scrape(t, m), `chat_turns_total{intent="",outcome="failed"} 1`)
	})
}
