package transport

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gisa-chat/server/internal/agent/model"
	errx "github.com/gisa-chat/server/internal/core/error"
)

type runnerFunc func(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error)

func (f runnerFunc) Invoke(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error) {
	return f(ctx, req)
}

func TestResponder_Respond(t *testing.T) {
	ctx := context.Background()

	t.Run("Should reply with the chat response", func(t *testing.T) {
		var gotDeadline bool
		r := NewResponder(runnerFunc(func(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error) {
			_, gotDeadline = ctx.Deadline()
			return &model.ChatResponse{Sender: req.Sender, Result: model.ChatResult{Text: "ok", Intent: model.IntentGreet}}, nil
		}), time.Second)

		out := r.Respond(ctx, []byte(`{"sender":"u1","message":"Ciao"}`))
		var resp model.ChatResponse
		require.NoError(t, json.Unmarshal(out, &resp))
		assert.Equal(t, "u1", resp.Sender)
		assert.Equal(t, "ok", resp.Result.Text)
		assert.True(t, gotDeadline)
	})

	t.Run("Should reply with a parse error on bad payloads", func(t *testing.T) {
		r := NewResponder(runnerFunc(func(context.Context, model.ChatRequest) (*model.ChatResponse, error) {
			t.Fatal("runner must not be called")
			return nil, nil
		}), 0)

		var reply ErrorReply
		require.NoError(t, json.Unmarshal(r.Respond(ctx, []byte("nope")), &reply))
		assert.Equal(t, ErrCodeParse, reply.ErrorCode)
	})

	t.Run("Should reply with the safe message when the turn aborts", func(t *testing.T) {
		r := NewResponder(runnerFunc(func(context.Context, model.ChatRequest) (*model.ChatResponse, error) {
			return nil, errx.Unregistered("greet")
		}), 0)

		var reply ErrorReply
		require.NoError(t, json.Unmarshal(r.Respond(ctx, []byte(`{"sender":"u1","message":"Ciao"}`)), &reply))
		assert.Equal(t, ErrCodeFailed, reply.ErrorCode)
		assert.Equal(t, "u1", reply.Sender)
		assert.Equal(t, errx.ConfigurationErrorMessage, reply.Error)
	})
}

func TestConfig_WithDefaults(t *testing.T) {
	t.Run("Should fill workers and grace", func(t *testing.T) {
		cfg := Config{Subject: "chat.message"}.withDefaults()
		assert.Equal(t, DefaultWorkers, cfg.Workers)
		assert.Equal(t, DefaultShutdownGrace, cfg.ShutdownGrace)
	})

	t.Run("Should keep explicit values", func(t *testing.T) {
		cfg := Config{Workers: 8, ShutdownGrace: time.Second}.withDefaults()
		assert.Equal(t, 8, cfg.Workers)
		assert.Equal(t, time.Second, cfg.ShutdownGrace)
	})
}

func TestNATSTransport_Serve(t *testing.T) {
	t.Run("Should let a running turn finish after the serving context ends", func(t *testing.T) {
		runCtx, stop := context.WithCancel(context.Background())
		turnCtx, cancelTurns := turnContext(runCtx)
		defer cancelTurns()

		started := make(chan struct{})
		release := make(chan struct{})
		nt := &NATSTransport{responder: NewResponder(runnerFunc(func(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error) {
			close(started)
			<-release
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return &model.ChatResponse{Sender: req.Sender, Result: model.ChatResult{Text: "ok"}}, nil
		}), time.Second)}

		replies := make(chan []byte, 1)
		go nt.serve(turnCtx, []byte(`{"sender":"u1","message":"Ciao"}`), func(b []byte) error {
			replies <- b
			return nil
		})

		<-started
		stop()
		close(release)

		select {
		case b := <-replies:
			var resp model.ChatResponse
			require.NoError(t, json.Unmarshal(b, &resp))
			assert.Equal(t, "ok", resp.Result.Text)
		case <-time.After(2 * time.Second):
			t.Fatal("no reply")
		}
	})
}
