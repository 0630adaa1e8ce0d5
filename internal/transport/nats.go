// Package transport serves chat turns as NATS request/reply.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/gisa-chat/server/internal/agent/graph"
	"github.com/gisa-chat/server/internal/agent/model"
	errx "github.com/gisa-chat/server/internal/core/error"
	logx "github.com/gisa-chat/server/pkg/logger"
)

const (
	// QueueGroup spreads requests across every replica subscribed to the subject.
	QueueGroup = "chat-workers"

	ErrCodeParse  = "PARSE_ERROR"
	ErrCodeFailed = "TURN_FAILED"
)

const (
	DefaultWorkers       = 4
	DefaultShutdownGrace = 30 * time.Second
)

type Config struct {
	URL     string
	Subject string
	Name    string
	// Workers is the number of turns served concurrently by this replica.
	Workers int
	// ShutdownGrace bounds how long in-flight turns may run after Run's
	// context is done.
	ShutdownGrace time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = DefaultShutdownGrace
	}
	return c
}

// ErrorReply is sent instead of a ChatResponse when a turn cannot run.
type ErrorReply struct {
	Sender    string `json:"sender"`
	ErrorCode string `json:"error_code"`
	Error     string `json:"error"`
}

// Responder turns request payloads into reply payloads.
type Responder struct {
	runner  graph.Runner
	timeout time.Duration
}

func NewResponder(runner graph.Runner, timeout time.Duration) *Responder {
	return &Responder{runner: runner, timeout: timeout}
}

// Respond runs one turn for a JSON encoded ChatRequest and returns the JSON
// reply. It never fails; errors are encoded as ErrorReply.
func (r *Responder) Respond(ctx context.Context, data []byte) []byte {
	var req model.ChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		logx.Warn().Err(err).Msg("Error parsing chat request")
		return encode(ErrorReply{ErrorCode: ErrCodeParse, Error: "invalid request format"})
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	resp, err := r.runner.Invoke(ctx, req)
	if err != nil {
		logx.Error().Err(err).Str("sender", req.Sender).Msg("Error processing chat turn")
		return encode(ErrorReply{Sender: req.Sender, ErrorCode: ErrCodeFailed, Error: errx.MessageOf(err)})
	}
	return encode(resp)
}

func encode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		logx.Error().Err(err).Msg("Error encoding reply")
		return []byte(`{"error_code":"TURN_FAILED","error":"internal server error"}`)
	}
	return b
}

type NATSTransport struct {
	conn      *nats.Conn
	config    Config
	responder *Responder
	closed    chan struct{}
	once      sync.Once
}

func NewNATSTransport(cfg Config, responder *Responder) (*NATSTransport, error) {
	cfg = cfg.withDefaults()
	closed := make(chan struct{})
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DrainTimeout(cfg.ShutdownGrace),
		nats.ClosedHandler(func(*nats.Conn) { close(closed) }),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logx.Info().Str("url", cfg.URL).Msg("Connected to NATS server")
	return &NATSTransport{conn: conn, config: cfg, responder: responder, closed: closed}, nil
}

// turnContext keeps ctx values but not its cancellation.
func turnContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithCancel(context.WithoutCancel(ctx))
}

// serve answers one request. Turns run on ctx, which is detached from Run's
// context so shutdown lets them finish while the connection drains.
func (nt *NATSTransport) serve(ctx context.Context, data []byte, respond func([]byte) error) {
	if err := respond(nt.responder.Respond(ctx, data)); err != nil {
		logx.Error().Err(err).Msg("Error sending reply")
	}
}

// Run subscribes one queue member per worker and blocks until ctx is done.
// Each subscription delivers on its own goroutine, so a replica serves up to
// Workers turns at once.
func (nt *NATSTransport) Run(ctx context.Context) error {
	turnCtx, cancelTurns := turnContext(ctx)
	defer cancelTurns()

	handler := func(msg *nats.Msg) {
		nt.serve(turnCtx, msg.Data, msg.Respond)
	}

	for i := 0; i < nt.config.Workers; i++ {
		if _, err := nt.conn.QueueSubscribe(nt.config.Subject, QueueGroup, handler); err != nil {
			_ = nt.Close()
			return fmt.Errorf("failed to subscribe to %s: %w", nt.config.Subject, err)
		}
	}
	logx.Info().
		Str("subject", nt.config.Subject).
		Str("queue", QueueGroup).
		Int("workers", nt.config.Workers).
		Msg("Subscribed to subject")

	<-ctx.Done()
	return nt.Close()
}

// Close drains the connection: no new requests are taken, in-flight turns
// reply within ShutdownGrace, then the connection closes.
func (nt *NATSTransport) Close() error {
	var err error
	nt.once.Do(func() {
		if nt.conn == nil || nt.conn.IsClosed() {
			return
		}
		if err = nt.conn.Drain(); err != nil {
			logx.Warn().Err(err).Msg("Error draining NATS connection")
			nt.conn.Close()
			return
		}
		select {
		case <-nt.closed:
		case <-time.After(nt.config.ShutdownGrace + time.Second):
			nt.conn.Close()
		}
		logx.Info().Msg("NATS connection closed")
	})
	return err
}
