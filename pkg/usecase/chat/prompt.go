package chat

import (
	"bytes"
	_ "embed"
	"text/template"

	"github.com/m-mizutani/concierge/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

//go:embed prompt/system.md
var systemPromptRaw string

var systemPromptTmpl = template.Must(template.New("system").Parse(systemPromptRaw))

// buildSystemPrompt renders the system prompt with what the state knows
// about the visitor and the pending suggestions.
func buildSystemPrompt(state *model.AgentState) (string, error) {
	data := struct {
		CRM         *model.CRMData
		NextActions []string
	}{
		CRM: state.CRMData,
	}
	for _, p := range state.NextActions {
		if p.Action.Content != "" {
			data.NextActions = append(data.NextActions, p.Action.Content)
		}
	}

	var buf bytes.Buffer
	if err := systemPromptTmpl.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to render system prompt")
	}
	return buf.String(), nil
}
