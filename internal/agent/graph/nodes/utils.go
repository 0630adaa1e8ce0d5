package nodes

import (
	"context"

	"github.com/gisa-chat/server/internal/agent/model"
)

// Node names as they appear in callbacks and logs.
const (
	NodeClassify = "Classify"
	NodeClarify  = "Clarify"
	NodeDispatch = "Dispatch"
	NodeFinalize = "Finalize"
)

// MsgClarify is the final response of a turn the router flagged as ambiguous.
const MsgClarify = "Non sono sicuro di aver capito la tua richiesta. " +
	"Puoi indicare il codice del piano, l'ASL o l'argomento che ti interessa?"

// Classifier is the router as seen by the graph.
type Classifier interface {
	Classify(ctx context.Context, text string, md model.Metadata) model.ClassificationResult
}

// Dispatcher runs the tool registered for an intent.
type Dispatcher interface {
	Dispatch(ctx context.Context, intent model.Intent, slots model.Slots, md model.Metadata) (model.ToolOutput, error)
}

// Suggester produces follow-ups for a finalized turn.
type Suggester interface {
	Suggest(intent model.Intent, slots model.Slots, out *model.ToolOutput, hasMoreDetails bool, finalResponse string) []model.Suggestion
}

// finalResponseOf picks the user-facing text of a tool output. Missing
// parameter errors are corrective messages and are shown as they are.
func finalResponseOf(out model.ToolOutput) string {
	if out.FormattedResponse != "" {
		return out.FormattedResponse
	}
	return out.Error
}
