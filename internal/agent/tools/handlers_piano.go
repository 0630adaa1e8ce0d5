package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/gisa-chat/server/internal/agent/model"
	logx "github.com/gisa-chat/server/pkg/logger"
)

func pianoNotFound(code string) (model.ToolOutput, error) {
	return model.ToolOutput{Error: fmt.Sprintf("Piano %s non trovato", code)}, nil
}

func (h *handlers) pianoDescription(ctx context.Context, slots model.Slots, _ model.Metadata) (model.ToolOutput, error) {
	code := pianoCode(slots)
	if code == "" {
		return invalid(ErrPianoMissing)
	}
	p, err := h.deps.Data.Piano(ctx, code)
	if err != nil {
		return model.ToolOutput{}, err
	}
	if p == nil {
		return pianoNotFound(code)
	}
	acts, err := h.deps.Data.PianoActivities(ctx, code)
	if err != nil {
		return model.ToolOutput{}, err
	}

	out := model.ToolOutput{
		FormattedResponse: formatPiano(*p),
		Data:              map[string]any{"piano_code": p.Code, "activities": len(acts)},
	}
	if len(acts) > 0 {
		lines := make([]string, 0, len(acts))
		for _, a := range acts {
			lines = append(lines, activityLine(a))
		}
		out.FormattedResponse += "\n\n" + fmt.Sprintf("Il piano copre %d attività. Vuoi vedere i dettagli?", len(acts))
		out.HasMoreDetails = true
		out.Details = buildListing(fmt.Sprintf("Attività del piano %s:", p.Code), lines, 0).Inline
	}
	return out, nil
}

func (h *handlers) pianoActivities(ctx context.Context, slots model.Slots, _ model.Metadata) (model.ToolOutput, error) {
	code := pianoCode(slots)
	if code == "" {
		return invalid(ErrPianoMissing)
	}
	p, err := h.deps.Data.Piano(ctx, code)
	if err != nil {
		return model.ToolOutput{}, err
	}
	if p == nil {
		return pianoNotFound(code)
	}
	acts, err := h.deps.Data.PianoActivities(ctx, code)
	if err != nil {
		return model.ToolOutput{}, err
	}
	if len(acts) == 0 {
		return reply(fmt.Sprintf("Nessuna attività registrata per il piano %s.", code))
	}
	lines := make([]string, 0, len(acts))
	for _, a := range acts {
		lines = append(lines, activityLine(a))
	}
	l := buildListing(fmt.Sprintf("Attività del piano %s (%s):", code, p.Title), lines, h.deps.ListLimit)
	return model.ToolOutput{
		FormattedResponse: l.Inline,
		HasMoreDetails:    l.More,
		Details:           l.Details,
		Data:              map[string]any{"piano_code": code, "count": len(acts)},
	}, nil
}

func (h *handlers) pianoEstablishments(ctx context.Context, slots model.Slots, md model.Metadata) (model.ToolOutput, error) {
	code := pianoCode(slots)
	if code == "" {
		return invalid(ErrPianoMissing)
	}
	scope := asl(slots, md)
	ests, err := h.deps.Data.PianoEstablishments(ctx, code, scope)
	if err != nil {
		return model.ToolOutput{}, err
	}
	where := ""
	if scope != "" {
		where = " nell'ASL " + scope
	}
	if len(ests) == 0 {
		return reply(fmt.Sprintf("Nessuno stabilimento controllato per il piano %s%s.", code, where))
	}
	lines := make([]string, 0, len(ests))
	for _, e := range ests {
		lines = append(lines, establishmentLine(e))
	}
	l := buildListing(fmt.Sprintf("Stabilimenti controllati per il piano %s%s (%d):", code, where, len(ests)), lines, h.deps.ListLimit)
	return model.ToolOutput{
		FormattedResponse: l.Inline,
		HasMoreDetails:    l.More,
		Details:           l.Details,
		Data:              map[string]any{"piano_code": code, "asl": scope, "count": len(ests)},
	}, nil
}

// pianoGeneric answers open questions about a plan with a short overview.
func (h *handlers) pianoGeneric(ctx context.Context, slots model.Slots, md model.Metadata) (model.ToolOutput, error) {
	code := pianoCode(slots)
	if code == "" {
		return invalid(ErrPianoMissing)
	}
	p, err := h.deps.Data.Piano(ctx, code)
	if err != nil {
		return model.ToolOutput{}, err
	}
	if p == nil {
		return pianoNotFound(code)
	}
	acts, err := h.deps.Data.PianoActivities(ctx, code)
	if err != nil {
		return model.ToolOutput{}, err
	}
	ests, err := h.deps.Data.PianoEstablishments(ctx, code, asl(slots, md))
	if err != nil {
		return model.ToolOutput{}, err
	}
	text := fmt.Sprintf("%s\n\nAttività coperte: %d. Stabilimenti controllati: %d.", formatPiano(*p), len(acts), len(ests))
	return model.ToolOutput{
		FormattedResponse: text,
		Data:              map[string]any{"piano_code": code, "activities": len(acts), "establishments": len(ests)},
	}, nil
}

// searchByTopic merges semantic matches with a keyword scan of plan titles
// and descriptions. Semantic matches come first.
func (h *handlers) searchByTopic(ctx context.Context, slots model.Slots, _ model.Metadata) (model.ToolOutput, error) {
	topic := slots.String("topic")
	if topic == "" {
		return invalid(ErrTopicMissing)
	}

	seen := map[string]struct{}{}
	var found []model.Piano
	add := func(p model.Piano) {
		if _, dup := seen[p.Code]; dup {
			return
		}
		seen[p.Code] = struct{}{}
		found = append(found, p)
	}

	if h.deps.Search != nil {
		matches, err := h.deps.Search.Search(ctx, topic, h.deps.SearchTopK)
		if err != nil {
			logx.Warn().Err(err).Str("topic", topic).Msg("semantic topic search failed, using keywords only")
		}
		for _, m := range matches {
			code, _ := m.Metadata["piano_code"].(string)
			if code == "" {
				continue
			}
			p, err := h.deps.Data.Piano(ctx, code)
			if err != nil {
				return model.ToolOutput{}, err
			}
			if p != nil {
				add(*p)
			}
		}
	}

	piani, err := h.deps.Data.Piani(ctx)
	if err != nil {
		return model.ToolOutput{}, err
	}
	needle := strings.ToLower(topic)
	for _, p := range piani {
		if strings.Contains(strings.ToLower(p.Title), needle) || strings.Contains(strings.ToLower(p.Description), needle) {
			add(p)
		}
	}

	if len(found) == 0 {
		return reply(fmt.Sprintf("Non ho trovato piani relativi a \"%s\".", topic))
	}
	lines := make([]string, 0, len(found))
	for _, p := range found {
		lines = append(lines, pianoLine(p))
	}
	l := buildListing(fmt.Sprintf("Piani relativi a \"%s\":", topic), lines, h.deps.ListLimit)
	return model.ToolOutput{
		FormattedResponse: l.Inline,
		HasMoreDetails:    l.More,
		Details:           l.Details,
		Data:              map[string]any{"topic": topic, "count": len(found), "piano_code": found[0].Code},
	}, nil
}
