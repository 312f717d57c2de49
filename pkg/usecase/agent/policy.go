package agent

import (
	"github.com/m-mizutani/concierge/pkg/model"
)

// NextActionPolicy derives the pending actions for a new qualification score.
// Implementations must be pure and total; returning an empty slice is valid.
type NextActionPolicy interface {
	NextActions(state *model.AgentState, score float64) []model.PendingAction
}

// NextActionPolicyFunc adapts a function to NextActionPolicy
type NextActionPolicyFunc func(state *model.AgentState, score float64) []model.PendingAction

func (f NextActionPolicyFunc) NextActions(state *model.AgentState, score float64) []model.PendingAction {
	return f(state, score)
}

// NoNextActions never proposes follow-up actions
var NoNextActions NextActionPolicy = NextActionPolicyFunc(func(*model.AgentState, float64) []model.PendingAction {
	return nil
})
