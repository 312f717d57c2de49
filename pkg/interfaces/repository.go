package interfaces

import (
	"context"

	"github.com/m-mizutani/concierge/pkg/model"
)

// StateStore persists AgentState by state ID. LoadState must fail with an
// error matching repository.ErrNotFound when nothing has been saved yet.
type StateStore interface {
	LoadState(ctx context.Context, id model.StateID) (*model.AgentState, error)
	SaveState(ctx context.Context, id model.StateID, state *model.AgentState) error
}

// AnalyticsStore is a keyed upsert store for ConversationAnalytics. The
// read-modify-write cycle belongs to the caller.
type AnalyticsStore interface {
	GetAnalytics(ctx context.Context, id model.SessionID) (*model.ConversationAnalytics, error)
	PutAnalytics(ctx context.Context, analytics *model.ConversationAnalytics) error
}

// AnalyticsLister lists analytics records ordered by LastUpdated, newest first
type AnalyticsLister interface {
	ListAnalytics(ctx context.Context, offset, limit int) ([]*model.ConversationAnalytics, error)
}

// AnalyticsScanner visits every analytics record once in no particular order.
// Iteration stops at the first error returned by fn.
type AnalyticsScanner interface {
	ScanAnalytics(ctx context.Context, fn func(*model.ConversationAnalytics) error) error
}

// Responder produces reply text for a visitor input, e.g. by calling an LLM
type Responder interface {
	Respond(ctx context.Context, state *model.AgentState, input model.Input) (string, error)
}
