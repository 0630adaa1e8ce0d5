package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"

	"github.com/gisa-chat/server/internal/agent/graph/conversations"
	"github.com/gisa-chat/server/internal/agent/graph/nodes"
	"github.com/gisa-chat/server/internal/agent/graph/observers"
	"github.com/gisa-chat/server/internal/agent/model"
	"github.com/gisa-chat/server/internal/metrics"
	logx "github.com/gisa-chat/server/pkg/logger"
)

// maxRunSteps bounds a run; the longest path is classify, dispatch, finalize.
const maxRunSteps = 10

// Runner executes one conversation turn.
type Runner interface {
	Invoke(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error)
}

// Config holds everything needed to compose the turn graph end-to-end.
type Config struct {
	Router      nodes.Classifier
	Tools       nodes.Dispatcher
	Suggestions nodes.Suggester

	// Optional collaborators.
	Recorder *conversations.Recorder
	Metrics  *metrics.Metrics
}

// GraphBuilder handles the construction of the turn graph
type GraphBuilder struct {
	config *Config
	graph  *compose.Graph[model.TurnInput, *model.TurnState]
}

type graphRunner struct {
	runnable compose.Runnable[model.TurnInput, *model.TurnState]
	recorder *conversations.Recorder
	metrics  *metrics.Metrics
}

// Invoke classifies the message, dispatches it and assembles the wire result.
// The only error it returns is a run abort, i.e. a dispatch table that does
// not cover the classified intent.
func (r *graphRunner) Invoke(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error) {
	started := time.Now()

	md := model.Metadata{}
	if req.Metadata != nil {
		md = *req.Metadata
	}
	md.Sender = strings.TrimSpace(req.Sender)

	in := model.TurnInput{
		TurnID:   uuid.NewString(),
		Message:  req.Message,
		Metadata: md,
	}

	st, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()...))
	elapsed := time.Since(started)
	if err != nil {
		r.metrics.ObserveTurn("", metrics.OutcomeFailed, elapsed)
		logx.Error().Err(err).Str("turn_id", in.TurnID).Msg("Turn aborted")
		return nil, fmt.Errorf("turn %s: %w", in.TurnID, err)
	}
	if st == nil {
		r.metrics.ObserveTurn("", metrics.OutcomeFailed, elapsed)
		return nil, errors.New("turn produced no state")
	}
	st.StartedAt = started

	r.observe(st, elapsed)
	r.recorder.Record(ctx, st)

	logx.Info().
		Str("turn_id", st.TurnID).
		Str("intent", st.Intent.String()).
		Str("stage", string(st.Stage)).
		Dur("elapsed", elapsed).
		Msg("Turn finalized")

	return &model.ChatResponse{
		Result: resultOf(st, elapsed),
		Sender: req.Sender,
	}, nil
}

func (r *graphRunner) observe(st *model.TurnState, elapsed time.Duration) {
	intent := st.Intent.String()
	if st.Intent == model.IntentFallback {
		r.metrics.RouterFallback()
	}

	outcome := metrics.OutcomeOK
	switch {
	case st.NeedsClarification:
		outcome = metrics.OutcomeClarification
	case st.ToolOutput != nil && st.ToolOutput.Failed():
		outcome = metrics.OutcomeToolError
		r.metrics.ToolError(intent)
	}
	r.metrics.ObserveTurn(intent, outcome, elapsed)
}

func resultOf(st *model.TurnState, elapsed time.Duration) model.ChatResult {
	slots := st.Slots
	if slots == nil {
		slots = model.Slots{}
	}
	suggestions := st.Suggestions
	if suggestions == nil {
		suggestions = []model.Suggestion{}
	}
	return model.ChatResult{
		Text:        st.FinalResponse,
		Intent:      st.Intent,
		Slots:       slots,
		Suggestions: suggestions,
		Execution: &model.Execution{
			TurnID:     st.TurnID,
			Tool:       st.ToolName,
			DurationMS: elapsed.Milliseconds(),
		},
		NeedsClarification: st.NeedsClarification,
		HasMoreDetails:     st.HasMoreDetails,
		Error:              st.Error,
	}
}

// validator is implemented by dispatch tables that can check their coverage.
type validator interface {
	Validate() error
}

// BuildRunner validates the dispatch table, builds the graph and returns a Runner.
func BuildRunner(ctx context.Context, cfg Config) (Runner, error) {
	if v, ok := cfg.Tools.(validator); ok {
		if err := v.Validate(); err != nil {
			logx.Error().Err(err).Msg("Dispatch table does not cover the intent vocabulary")
			return nil, err
		}
	}

	runnable, err := BuildGraph(ctx, &cfg)
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Turn graph built successfully")
	return &graphRunner{
		runnable: runnable,
		recorder: cfg.Recorder,
		metrics:  cfg.Metrics,
	}, nil
}

// BuildGraph constructs and returns the compiled turn graph
func BuildGraph(ctx context.Context, config *Config) (compose.Runnable[model.TurnInput, *model.TurnState], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.Router == nil {
		return nil, fmt.Errorf("router is nil")
	}
	if config.Tools == nil {
		return nil, fmt.Errorf("dispatch table is nil")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.TurnInput, *model.TurnState](
			compose.WithGenLocalState(func(ctx context.Context) *model.TurnState {
				return &model.TurnState{Stage: model.StageStart}
			}),
		),
	}

	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() error {
	steps := []struct {
		name string
		add  func() error
	}{
		{nodes.NodeClassify, func() error {
			return b.graph.AddLambdaNode(nodes.NodeClassify,
				nodes.NewClassifyNode(b.config.Router),
				compose.WithNodeName(nodes.NodeClassify),
				compose.WithStatePreHandler(nodes.NewClassifyPreHandler()),
				compose.WithStatePostHandler(nodes.NewClassifyPostHandler()),
			)
		}},
		{nodes.NodeClarify, func() error {
			return b.graph.AddLambdaNode(nodes.NodeClarify,
				nodes.NewClarifyNode(),
				compose.WithNodeName(nodes.NodeClarify),
			)
		}},
		{nodes.NodeDispatch, func() error {
			return b.graph.AddLambdaNode(nodes.NodeDispatch,
				nodes.NewDispatchNode(b.config.Tools),
				compose.WithNodeName(nodes.NodeDispatch),
				compose.WithStatePostHandler(nodes.NewDispatchPostHandler()),
			)
		}},
		{nodes.NodeFinalize, func() error {
			return b.graph.AddLambdaNode(nodes.NodeFinalize,
				nodes.NewFinalizeNode(b.config.Suggestions),
				compose.WithNodeName(nodes.NodeFinalize),
			)
		}},
	}

	for _, s := range steps {
		if err := s.add(); err != nil {
			logx.Error().Err(err).Str("node", s.name).Msg("Error adding node")
			return fmt.Errorf("error adding node %s: %w", s.name, err)
		}
	}
	return nil
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeClassify},
		{nodes.NodeClarify, compose.END},
		{nodes.NodeDispatch, nodes.NodeFinalize},
		{nodes.NodeFinalize, compose.END},
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			logx.Error().Err(err).Str("from", edge[0]).Str("to", edge[1]).Msg("Error adding edge")
			return fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	clarifyBranch := compose.NewGraphBranch(
		nodes.NewClarifyCondition(),
		map[string]bool{
			nodes.NodeClarify:  true,
			nodes.NodeDispatch: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeClassify, clarifyBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding clarification branch")
		return fmt.Errorf("error adding clarification branch: %w", err)
	}
	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.TurnInput, *model.TurnState], error) {
	runnable, err := b.graph.Compile(ctx,
		compose.WithGraphName("turn"),
		compose.WithMaxRunSteps(maxRunSteps),
	)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}
