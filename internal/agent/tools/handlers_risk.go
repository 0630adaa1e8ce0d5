package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/gisa-chat/server/internal/agent/dataset"
	"github.com/gisa-chat/server/internal/agent/model"
)

func rankedListing(title string, ranked []dataset.RankedEstablishment, limit int) listing {
	lines := make([]string, 0, len(ranked))
	for _, r := range ranked {
		lines = append(lines, rankedLine(r))
	}
	return buildListing(title, lines, limit)
}

func (h *handlers) priorityEstablishment(ctx context.Context, slots model.Slots, md model.Metadata) (model.ToolOutput, error) {
	scope := asl(slots, md)
	if scope == "" {
		return invalid(ErrASLMissing)
	}
	ranked, err := h.deps.Risk.PriorityEstablishments(ctx, scope, "", 0)
	if err != nil {
		return model.ToolOutput{}, err
	}
	if len(ranked) == 0 {
		return reply(fmt.Sprintf("Nessuno stabilimento registrato per l'ASL %s.", scope))
	}
	l := rankedListing(fmt.Sprintf("Stabilimenti da controllare per primi nell'ASL %s:", scope), ranked, h.deps.ListLimit)
	return model.ToolOutput{
		FormattedResponse: l.Inline,
		HasMoreDetails:    l.More,
		Details:           l.Details,
		Data:              map[string]any{"asl": scope, "count": len(ranked)},
	}, nil
}

// riskBasedPriority lists the riskiest activities with the top
// establishments for each.
func (h *handlers) riskBasedPriority(ctx context.Context, slots model.Slots, md model.Metadata) (model.ToolOutput, error) {
	scope := asl(slots, md)
	if scope == "" {
		return invalid(ErrASLMissing)
	}
	acts, err := h.deps.Risk.TopActivities(ctx, scope, 3)
	if err != nil {
		return model.ToolOutput{}, err
	}
	if len(acts) == 0 {
		return reply(fmt.Sprintf("Nessun punteggio di rischio disponibile per l'ASL %s.", scope))
	}
	ranked, err := h.deps.Risk.PriorityEstablishments(ctx, scope, "", 0)
	if err != nil {
		return model.ToolOutput{}, err
	}

	lines := make([]string, 0, len(acts))
	for _, a := range acts {
		line := riskActivityLine(a)
		n := 0
		for _, r := range ranked {
			if n == 2 {
				break
			}
			if activityKeyEq(r.Activity, a.Activity) {
				line += "\n  - " + rankedLine(r)
				n++
			}
		}
		lines = append(lines, line)
	}
	l := buildListing(fmt.Sprintf("Priorità basate sul rischio nell'ASL %s:", scope), lines, 0)
	return model.ToolOutput{
		FormattedResponse: l.Inline,
		Data:              map[string]any{"asl": scope, "activities": len(acts)},
	}, nil
}

func (h *handlers) suggestControls(ctx context.Context, slots model.Slots, md model.Metadata) (model.ToolOutput, error) {
	scope := asl(slots, md)
	if scope == "" {
		return invalid(ErrASLMissing)
	}
	ranked, err := h.deps.Risk.SuggestedControls(ctx, scope, 0)
	if err != nil {
		return model.ToolOutput{}, err
	}
	if len(ranked) == 0 {
		return reply(fmt.Sprintf("Nessun controllo da suggerire per l'ASL %s.", scope))
	}
	l := rankedListing(fmt.Sprintf("Controlli suggeriti nell'ASL %s (prima i mai controllati):", scope), ranked, h.deps.ListLimit)
	return model.ToolOutput{
		FormattedResponse: l.Inline,
		HasMoreDetails:    l.More,
		Details:           l.Details,
		Data:              map[string]any{"asl": scope, "count": len(ranked)},
	}, nil
}

func (h *handlers) delayedPlans(ctx context.Context, slots model.Slots, md model.Metadata) (model.ToolOutput, error) {
	scope := asl(slots, md)
	if scope == "" {
		return invalid(ErrASLMissing)
	}
	prog, err := h.deps.Data.PlanProgress(ctx, scope, uoc(slots, md))
	if err != nil {
		return model.ToolOutput{}, err
	}
	delayed := make([]model.PlanProgress, 0, len(prog))
	for _, p := range prog {
		if p.Delayed() {
			delayed = append(delayed, p)
		}
	}
	if len(delayed) == 0 {
		return reply(fmt.Sprintf("Nessun piano in ritardo per l'ASL %s.", scope))
	}
	sort.SliceStable(delayed, func(i, j int) bool { return delayed[i].Missing() > delayed[j].Missing() })
	lines := make([]string, 0, len(delayed))
	for _, p := range delayed {
		lines = append(lines, progressLine(p))
	}
	l := buildListing(fmt.Sprintf("Piani in ritardo nell'ASL %s:", scope), lines, h.deps.ListLimit)
	return model.ToolOutput{
		FormattedResponse: l.Inline,
		HasMoreDetails:    l.More,
		Details:           l.Details,
		Data:              map[string]any{"asl": scope, "count": len(delayed)},
	}, nil
}

func (h *handlers) planDelayed(ctx context.Context, slots model.Slots, md model.Metadata) (model.ToolOutput, error) {
	code := pianoCode(slots)
	if code == "" {
		return invalid(ErrPianoMissing)
	}
	scope := asl(slots, md)
	if scope == "" {
		return invalid(ErrASLMissing)
	}
	prog, err := h.deps.Data.PlanProgress(ctx, scope, uoc(slots, md))
	if err != nil {
		return model.ToolOutput{}, err
	}
	for _, p := range prog {
		if p.PianoCode != code {
			continue
		}
		verdict := "è in linea con la programmazione"
		if p.Delayed() {
			verdict = "è in ritardo"
		}
		return model.ToolOutput{
			FormattedResponse: fmt.Sprintf("Il piano %s %s nell'ASL %s.\n\n%s", code, verdict, scope, progressLine(p)),
			Data:              map[string]any{"piano_code": code, "asl": scope, "delayed": p.Delayed()},
		}, nil
	}
	return reply(fmt.Sprintf("Non ho dati di avanzamento per il piano %s nell'ASL %s.", code, scope))
}

func (h *handlers) establishmentHistory(ctx context.Context, slots model.Slots, _ model.Metadata) (model.ToolOutput, error) {
	id := slots.String("establishment_id")
	if id == "" {
		return invalid(ErrEstablishmentMissing)
	}
	hist, err := h.deps.Data.EstablishmentHistory(ctx, id)
	if err != nil {
		return model.ToolOutput{}, err
	}
	if len(hist) == 0 {
		return reply(fmt.Sprintf("Nessun controllo registrato per lo stabilimento %s.", id))
	}
	lines := make([]string, 0, len(hist))
	nc := 0
	for _, c := range hist {
		lines = append(lines, controlLine(c))
		nc += c.NCCount
	}
	l := buildListing(fmt.Sprintf("Storico dei controlli dello stabilimento %s (%d controlli, %d NC):", id, len(hist), nc), lines, h.deps.ListLimit)
	return model.ToolOutput{
		FormattedResponse: l.Inline,
		HasMoreDetails:    l.More,
		Details:           l.Details,
		Data:              map[string]any{"establishment_id": id, "controls": len(hist), "nc": nc},
	}, nil
}

// topRiskActivities works with or without an ASL; without one the ranking is regional.
func (h *handlers) topRiskActivities(ctx context.Context, slots model.Slots, md model.Metadata) (model.ToolOutput, error) {
	scope := asl(slots, md)
	acts, err := h.deps.Risk.TopActivities(ctx, scope, 0)
	if err != nil {
		return model.ToolOutput{}, err
	}
	where := "in regione"
	if scope != "" {
		where = "nell'ASL " + scope
	}
	if len(acts) == 0 {
		return reply(fmt.Sprintf("Nessun punteggio di rischio disponibile %s.", where))
	}
	lines := make([]string, 0, len(acts))
	for _, a := range acts {
		lines = append(lines, riskActivityLine(a))
	}
	l := buildListing(fmt.Sprintf("Attività a maggior rischio %s:", where), lines, h.deps.ListLimit)
	return model.ToolOutput{
		FormattedResponse: l.Inline,
		HasMoreDetails:    l.More,
		Details:           l.Details,
		Data:              map[string]any{"asl": scope, "count": len(acts)},
	}, nil
}

// ncByCategory counts non-conformities per category, optionally restricted
// to one category.
func (h *handlers) ncByCategory(ctx context.Context, slots model.Slots, md model.Metadata) (model.ToolOutput, error) {
	scope := asl(slots, md)
	if scope == "" {
		return invalid(ErrASLMissing)
	}
	category := slots.String("category")
	recs, err := h.deps.Data.NonConformities(ctx, scope, category)
	if err != nil {
		return model.ToolOutput{}, err
	}
	if len(recs) == 0 {
		return reply(fmt.Sprintf("Nessuna non conformità registrata nell'ASL %s.", scope))
	}

	type bucket struct {
		name     string
		nc       int
		controls int
	}
	idx := map[string]int{}
	var buckets []bucket
	for _, r := range recs {
		name := r.NCCategory
		if name == "" {
			name = "non classificata"
		}
		i, ok := idx[name]
		if !ok {
			i = len(buckets)
			idx[name] = i
			buckets = append(buckets, bucket{name: name})
		}
		buckets[i].nc += r.NCCount
		buckets[i].controls++
	}
	sort.SliceStable(buckets, func(i, j int) bool {
		if buckets[i].nc != buckets[j].nc {
			return buckets[i].nc > buckets[j].nc
		}
		return buckets[i].name < buckets[j].name
	})
	lines := make([]string, 0, len(buckets))
	for _, b := range buckets {
		lines = append(lines, fmt.Sprintf("%s: %d NC in %d controlli", bold(b.name), b.nc, b.controls))
	}
	l := buildListing(fmt.Sprintf("Non conformità per categoria nell'ASL %s:", scope), lines, h.deps.ListLimit)
	return model.ToolOutput{
		FormattedResponse: l.Inline,
		HasMoreDetails:    l.More,
		Details:           l.Details,
		Data:              map[string]any{"asl": scope, "category": category, "categories": len(buckets)},
	}, nil
}

func (h *handlers) nearbyPriority(ctx context.Context, slots model.Slots, md model.Metadata) (model.ToolOutput, error) {
	scope := asl(slots, md)
	if scope == "" {
		return invalid(ErrASLMissing)
	}
	comune := slots.String("comune")
	if comune == "" {
		return invalid(ErrComuneMissing)
	}
	ranked, err := h.deps.Risk.PriorityEstablishments(ctx, scope, comune, 0)
	if err != nil {
		return model.ToolOutput{}, err
	}
	if len(ranked) == 0 {
		return reply(fmt.Sprintf("Nessuno stabilimento registrato a %s.", comune))
	}
	l := rankedListing(fmt.Sprintf("Stabilimenti prioritari a %s:", comune), ranked, h.deps.ListLimit)
	return model.ToolOutput{
		FormattedResponse: l.Inline,
		HasMoreDetails:    l.More,
		Details:           l.Details,
		Data:              map[string]any{"asl": scope, "comune": comune, "count": len(ranked)},
	}, nil
}
