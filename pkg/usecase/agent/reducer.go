package agent

import (
	"math"
	"time"

	"github.com/m-mizutani/concierge/pkg/model"
)

// Reducer maps (state, action) to a new state without side effects
type Reducer struct {
	policy NextActionPolicy
	now    func() time.Time
}

// ReducerOption is a functional option for Reducer
type ReducerOption func(*Reducer)

// WithPolicy sets the policy used to recompute NextActions on qualification updates
func WithPolicy(policy NextActionPolicy) ReducerOption {
	return func(r *Reducer) {
		if policy != nil {
			r.policy = policy
		}
	}
}

// WithClock sets the clock used for message timestamps
func WithClock(now func() time.Time) ReducerOption {
	return func(r *Reducer) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReducer creates a new Reducer
func NewReducer(opts ...ReducerOption) *Reducer {
	r := &Reducer{
		policy: NoNextActions,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reduce returns the state that results from applying action to state. The
// input state is never modified. Each variant touches only its own field:
//
//   - visitor_message, agent_response: ConversationHistory (append)
//   - crm_data_loaded: CRMData (replace)
//   - qualification_updated: QualificationScore and NextActions
//   - action_completed: NextActions (remove first entry with the ID)
//
// Unknown variants return an unchanged copy.
func (r *Reducer) Reduce(state *model.AgentState, action model.Action) *model.AgentState {
	next := state.Clone()

	switch a := action.(type) {
	case model.VisitorMessage:
		next.ConversationHistory = r.appendMessage(next.ConversationHistory, model.RoleUser, a.Content)

	case model.AgentResponse:
		next.ConversationHistory = r.appendMessage(next.ConversationHistory, model.RoleAssistant, a.Content)

	case model.CRMDataLoaded:
		next.CRMData = a.Data.Clone()

	case model.QualificationUpdated:
		score := clampScore(a.Score)
		next.QualificationScore = score
		next.NextActions = r.deriveNextActions(next, score)

	case model.ActionCompleted:
		next.NextActions = removePending(next.NextActions, a.ActionID)
	}

	return next
}

func (r *Reducer) appendMessage(history []model.Message, role model.Role, content string) []model.Message {
	createdAt := r.now()
	// Keep timestamps non-decreasing even if the clock steps backwards
	if n := len(history); n > 0 && createdAt.Before(history[n-1].CreatedAt) {
		createdAt = history[n-1].CreatedAt
	}

	return append(history, model.Message{
		Role:      role,
		Content:   content,
		CreatedAt: createdAt,
	})
}

func (r *Reducer) deriveNextActions(state *model.AgentState, score float64) []model.PendingAction {
	derived := r.policy.NextActions(state.Clone(), score)

	actions := make([]model.PendingAction, 0, len(derived))
	for _, p := range derived {
		actions = append(actions, p.Clone())
	}
	return actions
}

func removePending(actions []model.PendingAction, id model.ActionID) []model.PendingAction {
	for i, p := range actions {
		if p.ID == id {
			return append(actions[:i:i], actions[i+1:]...)
		}
	}
	return actions
}

func clampScore(score float64) float64 {
	switch {
	case math.IsNaN(score):
		return 0
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}
