package tools

import (
	"context"
	"strings"

	"github.com/gisa-chat/server/internal/agent/model"
	logx "github.com/gisa-chat/server/pkg/logger"
)

// Slot validation messages shown to the user as-is.
const (
	ErrASLMissing           = "ASL non specificata"
	ErrPianoMissing         = "Codice piano non specificato"
	ErrTopicMissing         = "Argomento di ricerca non specificato"
	ErrEstablishmentMissing = "Stabilimento non specificato"
	ErrComuneMissing        = "Comune non specificato"
)

type handlers struct {
	deps Deps
}

func invalid(msg string) (model.ToolOutput, error) {
	return model.ToolOutput{Error: msg}, nil
}

func reply(text string) (model.ToolOutput, error) {
	return model.ToolOutput{FormattedResponse: text}, nil
}

// asl prefers an explicit slot over the user's own ASL.
func asl(slots model.Slots, md model.Metadata) string {
	if v := slots.String("asl"); v != "" {
		return v
	}
	return strings.TrimSpace(md.ASL)
}

func uoc(slots model.Slots, md model.Metadata) string {
	if v := slots.String("uoc"); v != "" {
		return v
	}
	return strings.TrimSpace(md.UOC)
}

func pianoCode(slots model.Slots) string {
	return strings.ToUpper(slots.String("piano_code"))
}

func (h *handlers) greet(_ context.Context, _ model.Slots, md model.Metadata) (model.ToolOutput, error) {
	name := strings.TrimSpace(md.Username)
	if name == "" {
		return reply("Ciao! Sono l'assistente per i piani di controllo. Come posso aiutarti?")
	}
	return reply("Ciao " + name + "! Sono l'assistente per i piani di controllo. Come posso aiutarti?")
}

func (h *handlers) goodbye(context.Context, model.Slots, model.Metadata) (model.ToolOutput, error) {
	return reply("A presto! Buon lavoro.")
}

const helpText = `Posso aiutarti con:
- **descrizione dei piani**: "di cosa tratta il piano A1?"
- **attività e stabilimenti di un piano**: "quali stabilimenti rientrano nel piano A1?"
- **ricerca per argomento**: "quali piani riguardano il latte crudo?"
- **priorità di controllo**: "quali stabilimenti controllare per primi?"
- **ritardi**: "quali piani sono in ritardo?" oppure "il piano B2 è in ritardo?"
- **storico di uno stabilimento**: "storico dei controlli dello stabilimento IT001"
- **analisi delle non conformità** per categoria
- **procedure**: "come si redige un verbale di campionamento?"`

func (h *handlers) help(context.Context, model.Slots, model.Metadata) (model.ToolOutput, error) {
	return reply(helpText)
}

// procedures is a short guide keyed by keyword.
var procedures = []struct {
	keywords []string
	text     string
}{
	{
		keywords: []string{"campion", "prelievo"},
		text: "**Campionamento ufficiale**\n\n" +
			"1. Redigere il verbale di prelievo indicando piano, matrice e motivo.\n" +
			"2. Suddividere il campione nelle aliquote previste e sigillarle.\n" +
			"3. Consegnare un'aliquota all'operatore e inviare le altre al laboratorio.",
	},
	{
		keywords: []string{"non conform", "nc", "prescrizion"},
		text: "**Gestione di una non conformità**\n\n" +
			"1. Descrivere la non conformità nel verbale con riferimento normativo.\n" +
			"2. Assegnare all'operatore un termine per la risoluzione.\n" +
			"3. Programmare la verifica di follow-up entro il termine.",
	},
	{
		keywords: []string{"verbale", "ispezion", "sopralluogo"},
		text: "**Ispezione**\n\n" +
			"1. Verificare l'anagrafica dello stabilimento prima dell'accesso.\n" +
			"2. Compilare la checklist del piano di riferimento.\n" +
			"3. Chiudere il verbale con esito e firma dell'operatore.",
	},
}

const procedureDefault = "Per le procedure di controllo fai riferimento al manuale operativo regionale. " +
	"Posso darti indicazioni su campionamento, ispezioni e gestione delle non conformità."

func (h *handlers) infoProcedure(_ context.Context, slots model.Slots, _ model.Metadata) (model.ToolOutput, error) {
	topic := strings.ToLower(slots.String("topic"))
	if topic == "" {
		topic = strings.ToLower(slots.String("procedure"))
	}
	if topic != "" {
		for _, p := range procedures {
			for _, kw := range p.keywords {
				if strings.Contains(topic, kw) {
					return reply(p.text)
				}
			}
		}
	}
	return reply(procedureDefault)
}

func (h *handlers) confirmDetails(ctx context.Context, _ model.Slots, md model.Metadata) (model.ToolOutput, error) {
	if h.deps.Pending == nil || md.Sender == "" {
		return reply("Non ci sono dettagli da mostrare.")
	}
	details, err := h.deps.Pending.TakePendingDetails(ctx, md.Sender)
	if err != nil {
		logx.Warn().Err(err).Str("sender", md.Sender).Msg("pending details unavailable")
		return reply("Non ci sono dettagli da mostrare.")
	}
	if strings.TrimSpace(details) == "" {
		return reply("Non ci sono dettagli da mostrare.")
	}
	return reply(details)
}

func (h *handlers) declineDetails(context.Context, model.Slots, model.Metadata) (model.ToolOutput, error) {
	return reply("Va bene. Posso aiutarti in altro?")
}

func activityKeyEq(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
