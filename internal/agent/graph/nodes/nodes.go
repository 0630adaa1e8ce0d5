package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/gisa-chat/server/internal/agent/model"
	"github.com/gisa-chat/server/internal/agent/tools"
	logx "github.com/gisa-chat/server/pkg/logger"
)

// NewClassifyPreHandler seeds the local state from the run input.
func NewClassifyPreHandler() func(context.Context, model.TurnInput, *model.TurnState) (model.TurnInput, error) {
	return func(ctx context.Context, in model.TurnInput, s *model.TurnState) (model.TurnInput, error) {
		s.TurnID = in.TurnID
		s.Message = in.Message
		s.Metadata = in.Metadata
		s.Intent = model.IntentFallback
		s.Slots = model.Slots{}
		s.Stage = model.StageStart
		return in, nil
	}
}

// NewClassifyNode asks the router for the intent of the message. The router
// never fails, so neither does this node.
func NewClassifyNode(router Classifier) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.TurnInput) (model.ClassificationResult, error) {
		res := router.Classify(ctx, in.Message, in.Metadata)
		if res.Slots == nil {
			res.Slots = model.Slots{}
		}
		return res, nil
	})
}

// NewClassifyPostHandler moves the turn to StageClassified.
func NewClassifyPostHandler() func(context.Context, model.ClassificationResult, *model.TurnState) (model.ClassificationResult, error) {
	return func(ctx context.Context, out model.ClassificationResult, s *model.TurnState) (model.ClassificationResult, error) {
		s.Intent = out.Intent
		s.Slots = out.Slots.Clone()
		s.NeedsClarification = out.NeedsClarification
		s.Error = out.Error
		s.Stage = model.StageClassified

		logx.Debug().
			Str("turn_id", s.TurnID).
			Str("node", NodeClassify).
			Str("intent", out.Intent.String()).
			Bool("needs_clarification", out.NeedsClarification).
			Msg("Message classified")
		return out, nil
	}
}

// NewClarifyCondition short-circuits ambiguous turns past the dispatch table.
func NewClarifyCondition() func(context.Context, model.ClassificationResult) (string, error) {
	return func(ctx context.Context, in model.ClassificationResult) (string, error) {
		if in.NeedsClarification {
			return NodeClarify, nil
		}
		return NodeDispatch, nil
	}
}

// NewClarifyNode finalizes the turn with a clarification prompt.
func NewClarifyNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.ClassificationResult) (*model.TurnState, error) {
		var out *model.TurnState
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.TurnState) error {
			s.FinalResponse = MsgClarify
			s.Suggestions = []model.Suggestion{}
			s.Stage = model.StageFinalized
			out = s.Snapshot()
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		return out, nil
	})
}

// NewDispatchNode runs the handler registered for the classified intent. A
// missing registration is returned as is and aborts the run.
func NewDispatchNode(d Dispatcher) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.ClassificationResult) (model.ToolOutput, error) {
		var (
			md     model.Metadata
			turnID string
		)
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.TurnState) error {
			md = s.Metadata
			turnID = s.TurnID
			return nil
		})
		if err != nil {
			return model.ToolOutput{}, fmt.Errorf("failed to access state: %w", err)
		}

		out, err := d.Dispatch(ctx, in.Intent, in.Slots, md)
		if err != nil {
			logx.Error().
				Err(err).
				Str("turn_id", turnID).
				Str("intent", in.Intent.String()).
				Msg("Dispatch table is missing an intent")
			return model.ToolOutput{}, err
		}
		return out, nil
	})
}

// NewDispatchPostHandler stores the tool output and moves to StageDispatched.
func NewDispatchPostHandler() func(context.Context, model.ToolOutput, *model.TurnState) (model.ToolOutput, error) {
	return func(ctx context.Context, out model.ToolOutput, s *model.TurnState) (model.ToolOutput, error) {
		stored := out
		s.ToolOutput = &stored
		s.ToolName = tools.ToolName(s.Intent)
		if out.Error != "" {
			s.Error = out.Error
		}
		s.Stage = model.StageDispatched

		ev := logx.Debug()
		if out.Failed() {
			ev = logx.Info()
		}
		ev.Str("turn_id", s.TurnID).
			Str("node", NodeDispatch).
			Str("tool", s.ToolName).
			Bool("has_more_details", out.HasMoreDetails).
			Str("tool_error", out.Error).
			Msg("Tool executed")
		return out, nil
	}
}

// NewFinalizeNode derives the final response, the details flag and the
// follow-ups from the tool output.
func NewFinalizeNode(sg Suggester) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.ToolOutput) (*model.TurnState, error) {
		var out *model.TurnState
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.TurnState) error {
			s.FinalResponse = finalResponseOf(in)
			s.HasMoreDetails = in.HasMoreDetails && in.Details != ""
			s.Suggestions = []model.Suggestion{}
			if sg != nil {
				if got := sg.Suggest(s.Intent, s.Slots, s.ToolOutput, s.HasMoreDetails, s.FinalResponse); got != nil {
					s.Suggestions = got
				}
			}
			s.Stage = model.StageFinalized
			out = s.Snapshot()
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		return out, nil
	})
}
