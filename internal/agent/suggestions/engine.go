// Package suggestions proposes follow-up questions after a completed turn.
package suggestions

import (
	"strings"
	"unicode/utf8"

	"github.com/gisa-chat/server/internal/agent/model"
)

const (
	DefaultMinResponseRunes = 40
	DefaultMax              = 3

	ShowDetailsText  = "Mostra i dettagli"
	ShowDetailsQuery = "sì, mostrami i dettagli"
)

var excluded = map[model.Intent]struct{}{
	model.IntentGreet:              {},
	model.IntentGoodbye:            {},
	model.IntentDeclineShowDetails: {},
	model.IntentFallback:           {},
}

// Excluded reports whether intent never gets follow-ups.
func Excluded(intent model.Intent) bool {
	_, ok := excluded[intent]
	return ok
}

type template struct {
	text  string
	query string
}

var templates = map[model.Intent][]template{
	model.IntentAskHelp: {
		{"Piani sul latte crudo", "quali piani riguardano il latte crudo?"},
		{"Stabilimenti prioritari", "quali stabilimenti devo controllare per primi?"},
		{"Piani in ritardo", "quali piani sono in ritardo?"},
	},
	model.IntentAskPianoDescription: {
		{"Attività del piano {piano_code}", "quali attività copre il piano {piano_code}?"},
		{"Stabilimenti del piano {piano_code}", "quali stabilimenti rientrano nel piano {piano_code}?"},
		{"Il piano {piano_code} è in ritardo?", "il piano {piano_code} è in ritardo?"},
	},
	model.IntentAskPianoGeneric: {
		{"Descrizione del piano {piano_code}", "di cosa tratta il piano {piano_code}?"},
		{"Stabilimenti del piano {piano_code}", "quali stabilimenti rientrano nel piano {piano_code}?"},
	},
	model.IntentAskPianoAttivita: {
		{"Stabilimenti del piano {piano_code}", "quali stabilimenti rientrano nel piano {piano_code}?"},
		{"Il piano {piano_code} è in ritardo?", "il piano {piano_code} è in ritardo?"},
	},
	model.IntentAskPianoStabilimenti: {
		{"Attività del piano {piano_code}", "quali attività copre il piano {piano_code}?"},
		{"Stabilimenti prioritari", "quali stabilimenti devo controllare per primi?"},
	},
	model.IntentSearchPianiByTopic: {
		{"Descrizione del piano {piano_code}", "di cosa tratta il piano {piano_code}?"},
		{"Procedure su {topic}", "qual è la procedura per {topic}?"},
	},
	model.IntentAskPriorityEstablishment: {
		{"Attività a maggior rischio", "quali sono le attività a maggior rischio?"},
		{"Controlli suggeriti", "quali controlli mi suggerisci?"},
	},
	model.IntentAskRiskBasedPriority: {
		{"Non conformità per categoria", "analizza le non conformità per categoria"},
		{"Controlli suggeriti", "quali controlli mi suggerisci?"},
	},
	model.IntentAskSuggestControls: {
		{"Stabilimenti prioritari", "quali stabilimenti devo controllare per primi?"},
		{"Piani in ritardo", "quali piani sono in ritardo?"},
	},
	model.IntentAskDelayedPlans: {
		{"Controlli suggeriti", "quali controlli mi suggerisci?"},
		{"Stabilimenti prioritari", "quali stabilimenti devo controllare per primi?"},
	},
	model.IntentCheckIfPlanDelayed: {
		{"Stabilimenti del piano {piano_code}", "quali stabilimenti rientrano nel piano {piano_code}?"},
		{"Tutti i piani in ritardo", "quali piani sono in ritardo?"},
	},
	model.IntentAskEstablishmentHistory: {
		{"Non conformità per categoria", "analizza le non conformità per categoria"},
		{"Stabilimenti prioritari", "quali stabilimenti devo controllare per primi?"},
	},
	model.IntentAskTopRiskActivities: {
		{"Stabilimenti a rischio", "quali stabilimenti controllare in base al rischio?"},
		{"Non conformità per categoria", "analizza le non conformità per categoria"},
	},
	model.IntentAnalyzeNCByCategory: {
		{"Attività a maggior rischio", "quali sono le attività a maggior rischio?"},
		{"Controlli suggeriti", "quali controlli mi suggerisci?"},
	},
	model.IntentInfoProcedure: {
		{"Procedura di campionamento", "come si esegue un campionamento ufficiale?"},
		{"Gestione delle non conformità", "come si gestisce una non conformità?"},
	},
	model.IntentAskNearbyPriority: {
		{"Controlli suggeriti", "quali controlli mi suggerisci?"},
		{"Attività a maggior rischio", "quali sono le attività a maggior rischio?"},
	},
	model.IntentConfirmShowDetails: {
		{"Cos'altro puoi fare?", "aiuto"},
	},
}

// Engine is deterministic and holds no mutable state.
type Engine struct {
	minRunes int
	max      int
}

func New(cfg model.SuggestionConfig) *Engine {
	e := &Engine{minRunes: cfg.MinResponseRunes, max: cfg.Max}
	if e.minRunes <= 0 {
		e.minRunes = DefaultMinResponseRunes
	}
	if e.max <= 0 || e.max > DefaultMax {
		e.max = DefaultMax
	}
	return e
}

// Suggest returns up to three follow-ups. Excluded intents and responses
// shorter than the minimum get none.
func (e *Engine) Suggest(intent model.Intent, slots model.Slots, out *model.ToolOutput, hasMoreDetails bool, finalResponse string) []model.Suggestion {
	res := []model.Suggestion{}
	if Excluded(intent) || utf8.RuneCountInString(strings.TrimSpace(finalResponse)) < e.minRunes {
		return res
	}

	if hasMoreDetails {
		res = append(res, model.Suggestion{Text: ShowDetailsText, Query: ShowDetailsQuery})
	}

	vars := placeholders(slots, out)
	for _, t := range templates[intent] {
		if len(res) >= e.max {
			break
		}
		text, ok := fill(t.text, vars)
		if !ok {
			continue
		}
		query, ok := fill(t.query, vars)
		if !ok {
			continue
		}
		res = append(res, model.Suggestion{Text: text, Query: query})
	}
	return res
}

// placeholderNames is the fixed order placeholders are resolved in.
var placeholderNames = []string{"asl", "piano_code", "topic"}

func placeholders(slots model.Slots, out *model.ToolOutput) map[string]string {
	vars := map[string]string{}
	for _, k := range placeholderNames {
		if v := slots.String(k); v != "" {
			vars[k] = v
			continue
		}
		if out != nil && out.Data != nil {
			if v := model.Slots(out.Data).String(k); v != "" {
				vars[k] = v
			}
		}
	}
	if code, ok := vars["piano_code"]; ok {
		vars["piano_code"] = strings.ToUpper(code)
	}
	return vars
}

// fill substitutes {name} placeholders in one pass, so substituted values are
// never expanded again. ok is false when the template needs a missing value.
func fill(s string, vars map[string]string) (string, bool) {
	pairs := make([]string, 0, 2*len(placeholderNames))
	for _, k := range placeholderNames {
		token := "{" + k + "}"
		v, ok := vars[k]
		if !ok {
			if strings.Contains(s, token) {
				return "", false
			}
			continue
		}
		pairs = append(pairs, token, v)
	}
	return strings.NewReplacer(pairs...).Replace(s), true
}
