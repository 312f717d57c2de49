package chat

import (
	"context"
	"strings"

	"github.com/m-mizutani/concierge/pkg/adapter"
	"github.com/m-mizutani/concierge/pkg/model"
	"github.com/m-mizutani/concierge/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// ErrEmptyResponse is returned when the model answers without any text
var ErrEmptyResponse = goerr.New("model returned no text")

// GeminiResponder answers visitor messages with Gemini
type GeminiResponder struct {
	gemini adapter.Gemini
}

// NewGeminiResponder creates a new GeminiResponder
func NewGeminiResponder(gemini adapter.Gemini) *GeminiResponder {
	return &GeminiResponder{gemini: gemini}
}

// Respond implements interfaces.Responder. When the conversation exceeds the
// model's token limit, the older part of the history is summarized once and
// the request is retried.
func (r *GeminiResponder) Respond(ctx context.Context, state *model.AgentState, input model.Input) (string, error) {
	system, err := buildSystemPrompt(state)
	if err != nil {
		return "", err
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, ""),
	}

	userContent := genai.NewContentFromText(input.Content, genai.RoleUser)
	contents := append(historyToContents(state.ConversationHistory), userContent)

	resp, err := r.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		if !isTokenLimitError(err) {
			return "", goerr.Wrap(err, "failed to generate reply")
		}

		logging.From(ctx).Warn("token limit exceeded, compressing history",
			"messages", len(state.ConversationHistory))

		compressed, cErr := compressHistory(ctx, r.gemini, state.ConversationHistory)
		if cErr != nil {
			return "", goerr.Wrap(err, "token limit exceeded and history could not be compressed",
				goerr.V("compress_error", cErr.Error()))
		}

		contents = append(historyToContents(compressed), userContent)
		resp, err = r.gemini.GenerateContent(ctx, contents, config)
		if err != nil {
			return "", goerr.Wrap(err, "failed to generate reply after compression")
		}
	}

	text := geminiText(resp)
	if text == "" {
		return "", goerr.Wrap(ErrEmptyResponse, "gemini reply is empty")
	}
	return text, nil
}

func historyToContents(history []model.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, msg := range history {
		if msg.Content == "" {
			continue
		}
		role := genai.Role(genai.RoleUser)
		if msg.Role == model.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	return contents
}

// geminiText joins the text parts of the first candidate, skipping thoughts
func geminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return strings.TrimSpace(b.String())
}
