package model_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/m-mizutani/concierge/pkg/model"
	"github.com/m-mizutani/gt"
)

func TestActionRecordConversion(t *testing.T) {
	crm := &model.CRMData{
		ContactID:  "c-1",
		Role:       "principal",
		Attributes: map[string]string{"district": "north"},
	}

	testCases := []struct {
		name   string
		action model.Action
	}{
		{"visitor_message", model.VisitorMessage{Content: "Hi"}},
		{"agent_response", model.AgentResponse{Content: "Hello!"}},
		{"crm_data_loaded", model.CRMDataLoaded{Data: crm}},
		{"qualification_updated", model.QualificationUpdated{Score: 72.5}},
		{"action_completed", model.ActionCompleted{ActionID: "a1"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			record := model.NewActionRecord(tc.action)
			gt.V(t, record.Type).Equal(tc.action.Type())
			gt.V(t, record.Action()).Equal(tc.action)
		})
	}
}

func TestActionRecordUnknownType(t *testing.T) {
	var record model.ActionRecord
	gt.NoError(t, json.Unmarshal([]byte(`{"type":"visitor_left","content":"bye"}`), &record))

	action := record.Action()
	unknown, ok := action.(model.UnknownAction)
	gt.True(t, ok)
	gt.V(t, unknown.Type()).Equal(model.ActionType("visitor_left"))

	_, hasContent := model.ActionContent(action)
	gt.False(t, hasContent)
}

func TestActionRecordDoesNotShareCRMData(t *testing.T) {
	crm := &model.CRMData{Role: "engineer", Attributes: map[string]string{"k": "v"}}
	record := model.NewActionRecord(model.CRMDataLoaded{Data: crm})

	crm.Role = "changed"
	crm.Attributes["k"] = "changed"

	gt.V(t, record.CRMData.Role).Equal("engineer")
	gt.V(t, record.CRMData.Attributes["k"]).Equal("v")
}

func TestNewOutput(t *testing.T) {
	out := model.NewOutput(model.AgentResponse{Content: "reply"})
	gt.V(t, out.Type).Equal(model.ActionTypeAgentResponse)
	gt.V(t, out.Payload).NotNil()
	gt.V(t, *out.Payload).Equal("reply")

	out = model.NewOutput(model.ActionCompleted{ActionID: model.UnhandledInputActionID})
	gt.V(t, out.Type).Equal(model.ActionTypeActionCompleted)
	gt.True(t, out.Payload == nil)
}

func TestAgentStateClone(t *testing.T) {
	now := time.Now()
	state := &model.AgentState{
		ConversationHistory: []model.Message{
			{Role: model.RoleUser, Content: "Hi", CreatedAt: now},
		},
		CRMData:            &model.CRMData{Role: "admin"},
		QualificationScore: 40,
		NextActions: []model.PendingAction{
			{ID: "a1", Action: model.NewActionRecord(model.CRMDataLoaded{Data: &model.CRMData{Name: "x"}})},
		},
	}

	cloned := state.Clone()
	gt.V(t, cloned).Equal(state)

	cloned.ConversationHistory[0].Content = "changed"
	cloned.CRMData.Role = "changed"
	cloned.NextActions[0].Action.CRMData.Name = "changed"

	gt.V(t, state.ConversationHistory[0].Content).Equal("Hi")
	gt.V(t, state.CRMData.Role).Equal("admin")
	gt.V(t, state.NextActions[0].Action.CRMData.Name).Equal("x")
}

func TestAgentStateCloneNil(t *testing.T) {
	var state *model.AgentState
	cloned := state.Clone()
	gt.V(t, cloned).NotNil()
	gt.A(t, cloned.ConversationHistory).Length(0)
	gt.True(t, cloned.LastMessage() == nil)
}

func TestAgentStateJSON(t *testing.T) {
	state := model.NewAgentState()
	state.QualificationScore = 55
	state.NextActions = append(state.NextActions, model.PendingAction{
		ID:     "follow-up",
		Action: model.NewActionRecord(model.AgentResponse{Content: "Would you like a demo?"}),
	})

	data, err := json.Marshal(state)
	gt.NoError(t, err)

	var decoded model.AgentState
	gt.NoError(t, json.Unmarshal(data, &decoded))
	gt.V(t, decoded.QualificationScore).Equal(55.0)
	gt.A(t, decoded.NextActions).Length(1)
	gt.V(t, decoded.NextActions[0].Action.Action()).Equal(model.Action(model.AgentResponse{Content: "Would you like a demo?"}))
}
