package model

import (
	"github.com/google/uuid"
)

type ActionID string

// NewActionID generates a new unique ActionID
func NewActionID() ActionID {
	return ActionID(uuid.New().String())
}

// UnhandledInputActionID is carried by the action_completed action that the
// executor produces for inputs it does not handle.
const UnhandledInputActionID ActionID = "unhandled_input"

type ActionType string

const (
	ActionTypeVisitorMessage       ActionType = "visitor_message"
	ActionTypeAgentResponse        ActionType = "agent_response"
	ActionTypeCRMDataLoaded        ActionType = "crm_data_loaded"
	ActionTypeQualificationUpdated ActionType = "qualification_updated"
	ActionTypeActionCompleted      ActionType = "action_completed"
)

// Action is an immutable instruction consumed by the reducer. The set of
// implementations is closed to this package.
type Action interface {
	Type() ActionType
	action()
}

type VisitorMessage struct {
	Content string
}

type AgentResponse struct {
	Content string
}

type CRMDataLoaded struct {
	Data *CRMData
}

type QualificationUpdated struct {
	Score float64
}

type ActionCompleted struct {
	ActionID ActionID
}

// UnknownAction is an action with a tag this build does not know, typically
// decoded from a record written by a newer version.
type UnknownAction struct {
	Kind ActionType
}

func (VisitorMessage) Type() ActionType       { return ActionTypeVisitorMessage }
func (AgentResponse) Type() ActionType        { return ActionTypeAgentResponse }
func (CRMDataLoaded) Type() ActionType        { return ActionTypeCRMDataLoaded }
func (QualificationUpdated) Type() ActionType { return ActionTypeQualificationUpdated }
func (ActionCompleted) Type() ActionType      { return ActionTypeActionCompleted }
func (a UnknownAction) Type() ActionType      { return a.Kind }

func (VisitorMessage) action()       {}
func (AgentResponse) action()        {}
func (CRMDataLoaded) action()        {}
func (QualificationUpdated) action() {}
func (ActionCompleted) action()      {}
func (UnknownAction) action()        {}

// ActionContent returns the content field of an action if the variant has one
func ActionContent(a Action) (string, bool) {
	switch v := a.(type) {
	case VisitorMessage:
		return v.Content, true
	case AgentResponse:
		return v.Content, true
	default:
		return "", false
	}
}

// ActionRecord is the flat storable form of an Action
type ActionRecord struct {
	Type     ActionType `json:"type" firestore:"type"`
	Content  string     `json:"content,omitempty" firestore:"content,omitempty"`
	CRMData  *CRMData   `json:"crm_data,omitempty" firestore:"crm_data,omitempty"`
	Score    float64    `json:"score,omitempty" firestore:"score,omitempty"`
	ActionID ActionID   `json:"action_id,omitempty" firestore:"action_id,omitempty"`
}

// NewActionRecord converts an action into its storable form
func NewActionRecord(a Action) ActionRecord {
	switch v := a.(type) {
	case VisitorMessage:
		return ActionRecord{Type: v.Type(), Content: v.Content}
	case AgentResponse:
		return ActionRecord{Type: v.Type(), Content: v.Content}
	case CRMDataLoaded:
		return ActionRecord{Type: v.Type(), CRMData: v.Data.Clone()}
	case QualificationUpdated:
		return ActionRecord{Type: v.Type(), Score: v.Score}
	case ActionCompleted:
		return ActionRecord{Type: v.Type(), ActionID: v.ActionID}
	case nil:
		return ActionRecord{}
	default:
		return ActionRecord{Type: a.Type()}
	}
}

// Action converts the record back to its typed variant. Unrecognized tags
// become UnknownAction.
func (r ActionRecord) Action() Action {
	switch r.Type {
	case ActionTypeVisitorMessage:
		return VisitorMessage{Content: r.Content}
	case ActionTypeAgentResponse:
		return AgentResponse{Content: r.Content}
	case ActionTypeCRMDataLoaded:
		return CRMDataLoaded{Data: r.CRMData.Clone()}
	case ActionTypeQualificationUpdated:
		return QualificationUpdated{Score: r.Score}
	case ActionTypeActionCompleted:
		return ActionCompleted{ActionID: r.ActionID}
	default:
		return UnknownAction{Kind: r.Type}
	}
}

func (r ActionRecord) clone() ActionRecord {
	r.CRMData = r.CRMData.Clone()
	return r
}
