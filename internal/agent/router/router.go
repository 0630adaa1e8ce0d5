// Package router turns free text into a validated (intent, slots,
// needs_clarification) triple using an external LLM classifier.
package router

import (
	"context"
	"strings"

	"github.com/gisa-chat/server/internal/agent/graph/parsers"
	"github.com/gisa-chat/server/internal/agent/graph/prompts"
	"github.com/gisa-chat/server/internal/agent/llm"
	"github.com/gisa-chat/server/internal/agent/model"
	"github.com/gisa-chat/server/internal/retrieval"
	logx "github.com/gisa-chat/server/pkg/logger"
)

// ErrEmptyMessage is reported in ClassificationResult.Error for blank input.
const ErrEmptyMessage = "messaggio vuoto"

// Router is stateless apart from its collaborators and safe for concurrent use.
type Router struct {
	querier llm.Querier
	cfg     model.RouterConfig
	hints   retrieval.Searcher
}

type Option func(*Router)

// WithHints enables semantic hints from s. They are only used when the
// config also has SemanticHints set.
func WithHints(s retrieval.Searcher) Option {
	return func(r *Router) { r.hints = s }
}

func New(q llm.Querier, cfg model.RouterConfig, opts ...Option) *Router {
	r := &Router{querier: q, cfg: cfg}
	for _, o := range opts {
		o(r)
	}
	return r
}

func fallback() model.ClassificationResult {
	return model.ClassificationResult{Intent: model.IntentFallback, Slots: model.Slots{}}
}

// Classify never fails: transport errors, unreadable output and unknown
// intents all collapse into the fallback intent.
func (r *Router) Classify(ctx context.Context, text string, md model.Metadata) model.ClassificationResult {
	text = strings.TrimSpace(text)
	if text == "" {
		res := fallback()
		res.Error = ErrEmptyMessage
		return res
	}
	if limit := r.cfg.MaxMessageRune; limit > 0 {
		if runes := []rune(text); len(runes) > limit {
			text = string(runes[:limit])
		}
	}

	p, err := prompts.RenderRouter(ctx, prompts.RouterInput{
		Message:  text,
		Metadata: md,
		Hints:    r.semanticHints(ctx, text),
	})
	if err != nil {
		logx.Error().Err(err).Str("component", "router").Msg("router prompt render failed")
		return fallback()
	}

	raw, err := r.querier.Query(ctx, p, r.cfg.Temperature)
	if err != nil {
		logx.Warn().Err(err).Str("component", "router").Msg("classifier unavailable, using fallback")
		return fallback()
	}

	parsed := parsers.ParseClassification(raw)
	if parsed.Status != parsers.ParseOK {
		logx.Warn().
			Str("component", "router").
			Str("reason", parsed.Reason).
			Msg("classifier output unreadable, using fallback")
		return fallback()
	}

	intent := model.ParseIntent(parsed.Intent)
	if intent == model.IntentFallback {
		if !strings.EqualFold(parsed.Intent, string(model.IntentFallback)) {
			logx.Warn().Str("component", "router").Str("raw_intent", parsed.Intent).Msg("unknown intent rewritten to fallback")
		}
		return fallback()
	}

	res := model.ClassificationResult{
		Intent:             intent,
		Slots:              normalizeSlots(parsed.Slots),
		NeedsClarification: parsed.NeedsClarification,
	}
	logx.Debug().
		Str("component", "router").
		Str("intent", string(res.Intent)).
		Interface("slots", res.Slots).
		Bool("needs_clarification", res.NeedsClarification).
		Msg("message classified")
	return res
}

// semanticHints never fails the classification; errors just mean no hints.
func (r *Router) semanticHints(ctx context.Context, text string) []string {
	if !r.cfg.SemanticHints || r.hints == nil {
		return nil
	}
	matches, err := r.hints.Search(ctx, text, r.cfg.HintsTopK)
	if err != nil {
		logx.Warn().Err(err).Str("component", "router").Msg("semantic hints unavailable")
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if c := strings.TrimSpace(m.Content); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func normalizeSlots(in map[string]any) model.Slots {
	out := make(model.Slots, len(in))
	for k, v := range in {
		out[k] = v
	}
	if code := out.String("piano_code"); code != "" {
		out["piano_code"] = strings.ToUpper(code)
	}
	if asl := out.String("asl"); asl != "" {
		out["asl"] = strings.ToUpper(asl)
	}
	return out
}
