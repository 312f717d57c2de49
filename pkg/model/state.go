package model

import (
	"maps"
	"time"
)

// StateID addresses one AgentState in a state store
type StateID string

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation history
type Message struct {
	Role      Role      `json:"role" firestore:"role"`
	Content   string    `json:"content" firestore:"content"`
	CreatedAt time.Time `json:"created_at" firestore:"created_at"`
}

// CRMData is the contact record owned by the external CRM. Only a few fields
// such as Role and Score are read by the agent.
type CRMData struct {
	ContactID  string            `json:"contact_id,omitempty" firestore:"contact_id,omitempty"`
	Name       string            `json:"name,omitempty" firestore:"name,omitempty"`
	Email      string            `json:"email,omitempty" firestore:"email,omitempty"`
	Company    string            `json:"company,omitempty" firestore:"company,omitempty"`
	Role       string            `json:"role,omitempty" firestore:"role,omitempty"`
	Score      float64           `json:"score,omitempty" firestore:"score,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty" firestore:"attributes,omitempty"`
}

// Clone returns a deep copy of the record
func (c *CRMData) Clone() *CRMData {
	if c == nil {
		return nil
	}
	cloned := *c
	cloned.Attributes = maps.Clone(c.Attributes)
	return &cloned
}

// PendingAction is an entry of AgentState.NextActions. ID is the key used by
// action_completed to remove it.
type PendingAction struct {
	ID     ActionID     `json:"id" firestore:"id"`
	Action ActionRecord `json:"action" firestore:"action"`
}

// Clone returns a deep copy
func (p PendingAction) Clone() PendingAction {
	return PendingAction{ID: p.ID, Action: p.Action.clone()}
}

// AgentState is the durable conversational memory of one visitor session
type AgentState struct {
	ConversationHistory []Message       `json:"conversation_history" firestore:"conversation_history"`
	CRMData             *CRMData        `json:"crm_data,omitempty" firestore:"crm_data,omitempty"`
	QualificationScore  float64         `json:"qualification_score" firestore:"qualification_score"`
	NextActions         []PendingAction `json:"next_actions" firestore:"next_actions"`
}

// NewAgentState returns an empty state for a first visitor contact
func NewAgentState() *AgentState {
	return &AgentState{
		ConversationHistory: []Message{},
		NextActions:         []PendingAction{},
	}
}

// Clone returns a deep copy. Reducers work on clones so that a state passed in
// by a caller is never modified.
func (s *AgentState) Clone() *AgentState {
	if s == nil {
		return NewAgentState()
	}

	cloned := &AgentState{
		ConversationHistory: make([]Message, len(s.ConversationHistory)),
		CRMData:             s.CRMData.Clone(),
		QualificationScore:  s.QualificationScore,
		NextActions:         make([]PendingAction, len(s.NextActions)),
	}
	copy(cloned.ConversationHistory, s.ConversationHistory)
	for i, p := range s.NextActions {
		cloned.NextActions[i] = p.Clone()
	}

	return cloned
}

// LastMessage returns the most recent history entry, or nil for an empty history
func (s *AgentState) LastMessage() *Message {
	if s == nil || len(s.ConversationHistory) == 0 {
		return nil
	}
	return &s.ConversationHistory[len(s.ConversationHistory)-1]
}
