package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/gisa-chat/server/internal/agent/model"
)

//go:embed template/router_prompt.txt
var routerPrompt string

// RouterInput carries everything the classification prompt can mention.
type RouterInput struct {
	Message  string
	Metadata model.Metadata
	Hints    []string
}

// RenderRouter renders the classification prompt via the Eino prompt
// component, which also triggers prompt callbacks.
func RenderRouter(ctx context.Context, in RouterInput) (string, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.UserMessage(routerPrompt),
	)

	intents := model.ValidIntents()
	names := make([]string, 0, len(intents))
	for _, it := range intents {
		names = append(names, string(it))
	}

	msgs, err := tpl.Format(ctx, map[string]any{
		"Intents": names,
		"Message": in.Message,
		"ASL":     in.Metadata.ASL,
		"UOC":     in.Metadata.UOC,
		"Hints":   in.Hints,
	})
	if err != nil {
		return "", fmt.Errorf("router prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("router prompt render: empty result")
	}
	return msgs[0].Content, nil
}
