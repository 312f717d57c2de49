package model

type InputType string

const (
	InputTypeVisitorMessage InputType = "visitor_message"
)

// Input is one inbound request handled by the executor
type Input struct {
	Type    InputType `json:"type"`
	Content string    `json:"content,omitempty"`
}

// Output mirrors the action the executor applied. Payload is the action's
// content when the variant has one.
type Output struct {
	Type    ActionType `json:"type"`
	Payload *string    `json:"payload,omitempty"`
}

// NewOutput builds the output for an applied action
func NewOutput(a Action) Output {
	out := Output{Type: a.Type()}
	if content, ok := ActionContent(a); ok {
		out.Payload = &content
	}
	return out
}
