package chat

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"net/http"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/m-mizutani/concierge/pkg/adapter"
	"github.com/m-mizutani/concierge/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// keptHistoryShare is the share of history characters left verbatim after
// compression. Older messages are replaced by one summary.
const keptHistoryShare = 0.3

const summarizerInstruction = "You summarize sales conversations between a website visitor and an assistant."

//go:embed prompt/summarize.md
var summarizePromptRaw string

//go:embed prompt/summary.md
var summaryPromptRaw string

var summaryTmpl = template.Must(template.New("summary").Parse(summaryPromptRaw))

// isTokenLimitError reports whether Gemini rejected the request for exceeding
// the input token limit
func isTokenLimitError(err error) bool {
	var apiErr genai.APIError
	if err == nil || !errors.As(err, &apiErr) {
		return false
	}

	// "The input token count (2500030) exceeds the maximum number of tokens allowed (1048576)."
	return apiErr.Code == http.StatusBadRequest &&
		apiErr.Status == "INVALID_ARGUMENT" &&
		strings.Contains(apiErr.Message, "input token count") &&
		strings.Contains(apiErr.Message, "exceeds the maximum number of tokens")
}

// compressHistory folds the oldest messages into a single summary message so
// that the newest messages holding keptHistoryShare of the characters remain.
// At least one message is always kept verbatim. history is not modified.
func compressHistory(ctx context.Context, gemini adapter.Gemini, history []model.Message) ([]model.Message, error) {
	if len(history) == 0 {
		return nil, goerr.New("history is empty")
	}

	var total int
	for _, msg := range history {
		total += utf8.RuneCountInString(msg.Content)
	}

	// walk back from the newest message until the kept budget is used up
	budget := int(float64(total) * keptHistoryShare)
	split := len(history)
	for kept := 0; split > 0; split-- {
		size := utf8.RuneCountInString(history[split-1].Content)
		if split < len(history) && kept+size > budget {
			break
		}
		kept += size
	}

	if split == 0 {
		return nil, goerr.New("insufficient content to compress",
			goerr.V("messages", len(history)),
			goerr.V("chars", total))
	}

	summary, err := summarizeContents(ctx, gemini, history[:split])
	if err != nil {
		return nil, goerr.Wrap(err, "failed to summarize contents")
	}

	var buf bytes.Buffer
	if err := summaryTmpl.Execute(&buf, struct{ Summary string }{Summary: summary}); err != nil {
		return nil, goerr.Wrap(err, "failed to render summary")
	}

	compressed := make([]model.Message, 0, len(history)-split+1)
	compressed = append(compressed, model.Message{
		Role:      model.RoleUser,
		Content:   buf.String(),
		CreatedAt: history[split-1].CreatedAt,
	})
	compressed = append(compressed, history[split:]...)
	return compressed, nil
}

// summarizeContents asks Gemini to condense messages into prose
func summarizeContents(ctx context.Context, gemini adapter.Gemini, messages []model.Message) (string, error) {
	contents := historyToContents(messages)
	contents = append(contents, genai.NewContentFromText(summarizePromptRaw, genai.RoleUser))

	thinkingBudget := int32(0)
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(summarizerInstruction, ""),
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
	}

	resp, err := gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate summary")
	}

	summary := geminiText(resp)
	if summary == "" {
		return "", goerr.New("no summary generated")
	}
	return summary, nil
}
