// Package tools maps every intent to the handler that fulfils it.
package tools

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/gisa-chat/server/internal/agent/dataset"
	"github.com/gisa-chat/server/internal/agent/model"
	"github.com/gisa-chat/server/internal/retrieval"
	errx "github.com/gisa-chat/server/internal/core/error"
	logx "github.com/gisa-chat/server/pkg/logger"
)

// User-facing texts shared by the dispatch boundary.
const (
	MsgNotUnderstood = "Non ho capito la richiesta. Puoi riformularla? Ad esempio: \"di cosa tratta il piano A1?\" oppure \"quali stabilimenti controllare per primi?\""
	MsgHandlerFault  = "Si è verificato un problema durante l'elaborazione della richiesta. Riprova tra poco."
)

// Handler fulfils one intent. Missing or invalid slots are reported through
// ToolOutput.Error; a returned error means an unexpected fault.
type Handler interface {
	Handle(ctx context.Context, slots model.Slots, md model.Metadata) (model.ToolOutput, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, slots model.Slots, md model.Metadata) (model.ToolOutput, error)

func (f HandlerFunc) Handle(ctx context.Context, slots model.Slots, md model.Metadata) (model.ToolOutput, error) {
	return f(ctx, slots, md)
}

// PendingDetails hands out details a previous turn left for the sender.
type PendingDetails interface {
	TakePendingDetails(ctx context.Context, sender string) (string, error)
}

// Deps are the collaborators the handlers query.
type Deps struct {
	Data model.Dataset
	Risk *dataset.RiskAnalyzer
	// Search is optional; topic search falls back to keywords without it.
	Search retrieval.Searcher
	// SearchTopK caps semantic matches; ListLimit is used when unset.
	SearchTopK int
	// Pending is optional; without it confirm_show_details has nothing to show.
	Pending PendingDetails
	// ListLimit caps inline list length; longer lists move to details.
	ListLimit int
}

// Registry is the static dispatch table, built once at startup.
type Registry struct {
	handlers map[model.Intent]Handler
}

// NewRegistry wires one handler per valid intent.
func NewRegistry(d Deps) *Registry {
	if d.Risk == nil && d.Data != nil {
		d.Risk = dataset.NewRiskAnalyzer(d.Data)
	}
	if d.ListLimit <= 0 {
		d.ListLimit = defaultListLimit
	}
	if d.SearchTopK <= 0 {
		d.SearchTopK = d.ListLimit
	}
	h := &handlers{deps: d}
	return NewRegistryFrom(map[model.Intent]Handler{
		model.IntentGreet:                    HandlerFunc(h.greet),
		model.IntentGoodbye:                  HandlerFunc(h.goodbye),
		model.IntentAskHelp:                  HandlerFunc(h.help),
		model.IntentAskPianoDescription:      HandlerFunc(h.pianoDescription),
		model.IntentAskPianoStabilimenti:     HandlerFunc(h.pianoEstablishments),
		model.IntentAskPianoAttivita:         HandlerFunc(h.pianoActivities),
		model.IntentAskPianoGeneric:          HandlerFunc(h.pianoGeneric),
		model.IntentSearchPianiByTopic:       HandlerFunc(h.searchByTopic),
		model.IntentAskPriorityEstablishment: HandlerFunc(h.priorityEstablishment),
		model.IntentAskRiskBasedPriority:     HandlerFunc(h.riskBasedPriority),
		model.IntentAskSuggestControls:       HandlerFunc(h.suggestControls),
		model.IntentAskDelayedPlans:          HandlerFunc(h.delayedPlans),
		model.IntentCheckIfPlanDelayed:       HandlerFunc(h.planDelayed),
		model.IntentAskEstablishmentHistory:  HandlerFunc(h.establishmentHistory),
		model.IntentAskTopRiskActivities:     HandlerFunc(h.topRiskActivities),
		model.IntentAnalyzeNCByCategory:      HandlerFunc(h.ncByCategory),
		model.IntentInfoProcedure:            HandlerFunc(h.infoProcedure),
		model.IntentAskNearbyPriority:        HandlerFunc(h.nearbyPriority),
		model.IntentConfirmShowDetails:       HandlerFunc(h.confirmDetails),
		model.IntentDeclineShowDetails:       HandlerFunc(h.declineDetails),
	})
}

// NewRegistryFrom builds a registry from an explicit table.
func NewRegistryFrom(table map[model.Intent]Handler) *Registry {
	m := make(map[model.Intent]Handler, len(table))
	for k, v := range table {
		m[k] = v
	}
	return &Registry{handlers: m}
}

// Validate reports every valid intent without a handler.
func (r *Registry) Validate() error {
	var missing []model.Intent
	for _, it := range model.ValidIntents() {
		if _, ok := r.handlers[it]; !ok {
			missing = append(missing, it)
		}
	}
	if len(missing) > 0 {
		return errx.Unregistered(fmt.Sprint(missing))
	}
	return nil
}

// ToolName is the name reported in execution info for intent.
func ToolName(intent model.Intent) string {
	return "tool_" + string(intent)
}

// Dispatch runs the handler for intent. Only a missing handler returns an
// error; handler errors and panics come back as ToolOutput data.
func (r *Registry) Dispatch(ctx context.Context, intent model.Intent, slots model.Slots, md model.Metadata) (out model.ToolOutput, err error) {
	if intent == model.IntentFallback {
		return model.ToolOutput{FormattedResponse: MsgNotUnderstood}, nil
	}
	h, ok := r.handlers[intent]
	if !ok {
		logx.Error().Str("intent", string(intent)).Msg("no handler registered for intent")
		return model.ToolOutput{}, errx.Unregistered(string(intent))
	}
	if slots == nil {
		slots = model.Slots{}
	}

	defer func() {
		if rec := recover(); rec != nil {
			logx.Error().
				Str("intent", string(intent)).
				Interface("slots", slots).
				Str("stack", string(debug.Stack())).
				Msgf("handler panic recovered: %v", rec)
			out = model.ToolOutput{Error: fmt.Sprint(rec), FormattedResponse: MsgHandlerFault}
			err = nil
		}
	}()

	out, herr := h.Handle(ctx, slots, md)
	if herr != nil {
		logx.Error().
			Err(herr).
			Str("intent", string(intent)).
			Interface("slots", slots).
			Str("asl", md.ASL).
			Msg("handler failed")
		return model.ToolOutput{Error: herr.Error(), FormattedResponse: MsgHandlerFault}, nil
	}
	if out.FormattedResponse == "" && out.Error == "" {
		logx.Warn().Str("intent", string(intent)).Msg("handler returned an empty output")
		out.Error = "empty handler output"
		out.FormattedResponse = MsgHandlerFault
	}
	return out, nil
}
