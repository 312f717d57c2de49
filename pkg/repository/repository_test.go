package repository_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/m-mizutani/concierge/pkg/model"
	"github.com/m-mizutani/concierge/pkg/repository"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
)

// testRepository runs the behavior every backend must share
func testRepository(t *testing.T, repo repository.Repository) {
	t.Run("state round trip", func(t *testing.T) {
		ctx := context.Background()
		id := model.StateID(model.NewSessionID())

		state := model.NewAgentState()
		state.ConversationHistory = append(state.ConversationHistory, model.Message{
			Role:      model.RoleUser,
			Content:   "Do you integrate with Google Classroom?",
			CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		})
		state.CRMData = &model.CRMData{ContactID: "c-1", Role: "engineer", Score: 12}
		state.QualificationScore = 64
		state.NextActions = append(state.NextActions, model.PendingAction{
			ID:     "a1",
			Action: model.NewActionRecord(model.AgentResponse{Content: "Offer a demo"}),
		})

		gt.NoError(t, repo.SaveState(ctx, id, state))

		loaded, err := repo.LoadState(ctx, id)
		gt.NoError(t, err)
		gt.A(t, loaded.ConversationHistory).Length(1)
		gt.V(t, loaded.ConversationHistory[0].Content).Equal("Do you integrate with Google Classroom?")
		gt.True(t, loaded.ConversationHistory[0].CreatedAt.Equal(state.ConversationHistory[0].CreatedAt))
		gt.V(t, loaded.CRMData.Role).Equal("engineer")
		gt.V(t, loaded.QualificationScore).Equal(64.0)
		gt.A(t, loaded.NextActions).Length(1)
		gt.V(t, loaded.NextActions[0].ID).Equal(model.ActionID("a1"))
		gt.V(t, loaded.NextActions[0].Action.Type).Equal(model.ActionTypeAgentResponse)
	})

	t.Run("state not found", func(t *testing.T) {
		ctx := context.Background()
		_, err := repo.LoadState(ctx, model.StateID("no-such-state-"+string(model.NewSessionID())))
		gt.Error(t, err)
		gt.True(t, errors.Is(err, repository.ErrNotFound))
	})

	t.Run("save overwrites", func(t *testing.T) {
		ctx := context.Background()
		id := model.StateID(model.NewSessionID())

		first := model.NewAgentState()
		first.QualificationScore = 10
		gt.NoError(t, repo.SaveState(ctx, id, first))

		second := model.NewAgentState()
		second.QualificationScore = 90
		gt.NoError(t, repo.SaveState(ctx, id, second))

		loaded, err := repo.LoadState(ctx, id)
		gt.NoError(t, err)
		gt.V(t, loaded.QualificationScore).Equal(90.0)
	})

	t.Run("analytics upsert", func(t *testing.T) {
		ctx := context.Background()
		id := model.NewSessionID()

		_, err := repo.GetAnalytics(ctx, id)
		gt.True(t, errors.Is(err, repository.ErrNotFound))

		a := model.NewConversationAnalytics(id)
		a.TotalMessages = 1
		a.TopicsCovered = []string{"Demo"}
		a.MeetingRequested = true
		a.LastUpdated = time.Now().UTC().Truncate(time.Millisecond)
		gt.NoError(t, repo.PutAnalytics(ctx, a))

		a.TotalMessages = 2
		a.TopicsCovered = append(a.TopicsCovered, "Pricing")
		gt.NoError(t, repo.PutAnalytics(ctx, a))

		got, err := repo.GetAnalytics(ctx, id)
		gt.NoError(t, err)
		gt.V(t, got.TotalMessages).Equal(2)
		gt.V(t, got.TopicsCovered).Equal([]string{"Demo", "Pricing"})
		gt.True(t, got.MeetingRequested)
	})

	t.Run("analytics requires session id", func(t *testing.T) {
		gt.Error(t, repo.PutAnalytics(context.Background(), &model.ConversationAnalytics{}))
	})
}

// testListAnalytics expects a repository that holds no other analytics records
func testListAnalytics(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i := range 5 {
		a := model.NewConversationAnalytics(model.SessionID(fmt.Sprintf("list-%d", i)))
		a.TotalMessages = i
		a.LastUpdated = base.Add(time.Duration(i) * time.Minute)
		gt.NoError(t, repo.PutAnalytics(ctx, a))
	}

	all, err := repo.ListAnalytics(ctx, 0, 10)
	gt.NoError(t, err)
	gt.A(t, all).Length(5)
	gt.V(t, all[0].SessionID).Equal(model.SessionID("list-4"))
	gt.V(t, all[4].SessionID).Equal(model.SessionID("list-0"))

	page, err := repo.ListAnalytics(ctx, 1, 2)
	gt.NoError(t, err)
	gt.A(t, page).Length(2)
	gt.V(t, page[0].SessionID).Equal(model.SessionID("list-3"))
	gt.V(t, page[1].SessionID).Equal(model.SessionID("list-2"))

	empty, err := repo.ListAnalytics(ctx, 100, 10)
	gt.NoError(t, err)
	gt.A(t, empty).Length(0)
}

// testScanAnalytics expects a repository that holds no other analytics records
func testScanAnalytics(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i := range 250 {
		a := model.NewConversationAnalytics(model.SessionID(fmt.Sprintf("scan-%03d", i)))
		a.TotalMessages = i
		a.LastUpdated = base.Add(time.Duration(i) * time.Second)
		gt.NoError(t, repo.PutAnalytics(ctx, a))
	}

	visited := map[model.SessionID]int{}
	gt.NoError(t, repo.ScanAnalytics(ctx, func(a *model.ConversationAnalytics) error {
		visited[a.SessionID]++
		return nil
	}))
	gt.V(t, len(visited)).Equal(250)
	for id, count := range visited {
		if count != 1 {
			t.Errorf("%s visited %d times", id, count)
		}
	}

	errStop := goerr.New("stop")
	var calls int
	err := repo.ScanAnalytics(ctx, func(a *model.ConversationAnalytics) error {
		calls++
		return errStop
	})
	gt.True(t, errors.Is(err, errStop))
	gt.V(t, calls).Equal(1)
}
