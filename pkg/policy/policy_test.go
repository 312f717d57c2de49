package policy_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/concierge/pkg/model"
	"github.com/m-mizutani/concierge/pkg/policy"
	"github.com/m-mizutani/concierge/pkg/usecase/agent"
	"github.com/m-mizutani/gt"
)

const qualificationPolicy = `package next_actions

actions := [a | some a in candidates]

candidates contains {
	"id": "book-demo",
	"type": "agent_response",
	"content": "Would you like to book a demo with our team?",
} if {
	input.score >= 70
}

candidates contains {
	"id": "nurture",
	"type": "agent_response",
	"content": "Here is our getting started guide.",
} if {
	input.score < 70
	count(input.state.conversation_history) > 0
}
`

func writePolicy(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	gt.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFile(t *testing.T) {
	ctx := context.Background()
	path := writePolicy(t, t.TempDir(), "next.rego", qualificationPolicy)

	p, err := policy.Load(ctx, path)
	gt.NoError(t, err)

	actions, err := p.Eval(ctx, model.NewAgentState(), 85)
	gt.NoError(t, err)
	gt.A(t, actions).Length(1)
	gt.V(t, actions[0].ID).Equal(model.ActionID("book-demo"))
	gt.V(t, actions[0].Action.Type).Equal(model.ActionTypeAgentResponse)
	gt.V(t, actions[0].Action.Action()).Equal(model.Action(model.AgentResponse{
		Content: "Would you like to book a demo with our team?",
	}))
}

func TestLoadDirectoryReadsState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writePolicy(t, dir, "next.rego", qualificationPolicy)
	writePolicy(t, dir, "README.md", "not a policy")

	p, err := policy.Load(ctx, dir)
	gt.NoError(t, err)

	empty, err := p.Eval(ctx, model.NewAgentState(), 10)
	gt.NoError(t, err)
	gt.A(t, empty).Length(0)

	state := model.NewAgentState()
	state.ConversationHistory = append(state.ConversationHistory, model.Message{Role: model.RoleUser, Content: "Hi"})
	actions, err := p.Eval(ctx, state, 10)
	gt.NoError(t, err)
	gt.A(t, actions).Length(1)
	gt.V(t, actions[0].ID).Equal(model.ActionID("nurture"))
}

func TestGeneratedIDs(t *testing.T) {
	ctx := context.Background()
	p, err := policy.New(ctx, map[string]string{"gen.rego": `package next_actions

actions := [
	{"type": "qualification_updated", "score": 50},
	{"type": "action_completed", "action_id": "x1"},
]
`})
	gt.NoError(t, err)

	actions, err := p.Eval(ctx, model.NewAgentState(), 0)
	gt.NoError(t, err)
	gt.A(t, actions).Length(2)
	gt.V(t, actions[0].ID).Equal(model.ActionID("qualification_updated-0"))
	gt.V(t, actions[0].Action.Score).Equal(50.0)
	gt.V(t, actions[1].ID).Equal(model.ActionID("action_completed-1"))
	gt.V(t, actions[1].Action.ActionID).Equal(model.ActionID("x1"))
}

func TestUndefinedRuleYieldsNoActions(t *testing.T) {
	ctx := context.Background()
	p, err := policy.New(ctx, map[string]string{"other.rego": `package other

allow := true
`})
	gt.NoError(t, err)

	actions, err := p.Eval(ctx, model.NewAgentState(), 99)
	gt.NoError(t, err)
	gt.A(t, actions).Length(0)
}

func TestInvalidPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("syntax error", func(t *testing.T) {
		_, err := policy.New(ctx, map[string]string{"bad.rego": "package next_actions\n\nactions := [\n"})
		gt.True(t, errors.Is(err, policy.ErrInvalidPolicy))
	})

	t.Run("empty directory", func(t *testing.T) {
		_, err := policy.Load(ctx, t.TempDir())
		gt.True(t, errors.Is(err, policy.ErrInvalidPolicy))
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := policy.Load(ctx, filepath.Join(t.TempDir(), "missing.rego"))
		gt.Error(t, err)
	})
}

func TestEvalErrorsAreTotal(t *testing.T) {
	ctx := context.Background()

	t.Run("not an array", func(t *testing.T) {
		p, err := policy.New(ctx, map[string]string{"str.rego": `package next_actions

actions := "call them"
`})
		gt.NoError(t, err)

		_, err = p.Eval(ctx, model.NewAgentState(), 1)
		gt.Error(t, err)
		gt.A(t, p.NextActions(model.NewAgentState(), 1)).Length(0)
	})

	t.Run("missing type", func(t *testing.T) {
		p, err := policy.New(ctx, map[string]string{"notype.rego": `package next_actions

actions := [{"id": "a1"}]
`})
		gt.NoError(t, err)
		gt.A(t, p.NextActions(model.NewAgentState(), 1)).Length(0)
	})
}

func TestPolicyDrivesReducer(t *testing.T) {
	ctx := context.Background()
	p, err := policy.New(ctx, map[string]string{"next.rego": qualificationPolicy})
	gt.NoError(t, err)

	reducer := agent.NewReducer(agent.WithPolicy(p))
	state := reducer.Reduce(model.NewAgentState(), model.QualificationUpdated{Score: 90})
	gt.A(t, state.NextActions).Length(1)
	gt.V(t, state.NextActions[0].ID).Equal(model.ActionID("book-demo"))

	state = reducer.Reduce(state, model.ActionCompleted{ActionID: "book-demo"})
	gt.A(t, state.NextActions).Length(0)
}

func TestExamplePolicy(t *testing.T) {
	ctx := context.Background()
	p, err := policy.Load(ctx, "../../examples/policy")
	gt.NoError(t, err)

	state := model.NewAgentState()
	state.CRMData = &model.CRMData{Company: "Acme"}

	actions, err := p.Eval(ctx, state, 75)
	gt.NoError(t, err)
	gt.A(t, actions).Length(1)
	gt.V(t, actions[0].ID).Equal(model.ActionID("book-demo"))

	actions, err = p.Eval(ctx, model.NewAgentState(), 40)
	gt.NoError(t, err)
	gt.A(t, actions).Length(2)
}
