package chat

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/m-mizutani/concierge/pkg/adapter"
	"github.com/m-mizutani/concierge/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// ClaudeResponder answers visitor messages with Claude
type ClaudeResponder struct {
	claude adapter.Claude
}

// NewClaudeResponder creates a new ClaudeResponder
func NewClaudeResponder(claude adapter.Claude) *ClaudeResponder {
	return &ClaudeResponder{claude: claude}
}

// Respond implements interfaces.Responder
func (r *ClaudeResponder) Respond(ctx context.Context, state *model.AgentState, input model.Input) (string, error) {
	system, err := buildSystemPrompt(state)
	if err != nil {
		return "", err
	}

	msg, err := r.claude.CreateMessage(ctx, system, toClaudeMessages(state.ConversationHistory, input.Content))
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate reply")
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", goerr.Wrap(ErrEmptyResponse, "claude reply is empty", goerr.V("stop_reason", msg.StopReason))
	}
	return text, nil
}

type turnText struct {
	role model.Role
	text string
}

// toClaudeMessages converts the history plus the new input into a message
// list that starts with the user and alternates roles, as the Messages API
// requires. Adjacent messages of one role are joined.
func toClaudeMessages(history []model.Message, input string) []anthropic.MessageParam {
	var turns []turnText
	add := func(role model.Role, text string) {
		if text == "" {
			return
		}
		if len(turns) == 0 && role != model.RoleUser {
			return
		}
		if n := len(turns); n > 0 && turns[n-1].role == role {
			turns[n-1].text += "\n\n" + text
			return
		}
		turns = append(turns, turnText{role: role, text: text})
	}

	for _, msg := range history {
		add(msg.Role, msg.Content)
	}
	add(model.RoleUser, input)

	messages := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		block := anthropic.NewTextBlock(t.text)
		if t.role == model.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}
	return messages
}
