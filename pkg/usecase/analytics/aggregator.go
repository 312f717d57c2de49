package analytics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/m-mizutani/concierge/pkg/interfaces"
	"github.com/m-mizutani/concierge/pkg/model"
	"github.com/m-mizutani/concierge/pkg/repository"
	"github.com/m-mizutani/concierge/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Aggregator merges each turn into the session's ConversationAnalytics
type Aggregator struct {
	store interfaces.AnalyticsStore
	dict  *Dictionary
	now   func() time.Time

	// read-modify-write is serialized within one Aggregator
	mu sync.Mutex
}

// Option is a functional option for Aggregator
type Option func(*Aggregator)

// WithDictionary replaces the built-in keyword dictionary
func WithDictionary(dict *Dictionary) Option {
	return func(a *Aggregator) {
		if dict != nil {
			a.dict = dict
		}
	}
}

// WithClock sets the time source for CreatedAt and LastUpdated. nil keeps
// time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAggregator creates a new Aggregator
func NewAggregator(store interfaces.AnalyticsStore, opts ...Option) *Aggregator {
	a := &Aggregator{
		store: store,
		dict:  DefaultDictionary(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Track upserts the analytics record of sessionID with one turn
func (a *Aggregator) Track(ctx context.Context, sessionID model.SessionID, userMessage, botResponse string) (*model.ConversationAnalytics, error) {
	if sessionID == "" {
		return nil, goerr.New("session ID is required")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	prev, err := a.store.GetAnalytics(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, goerr.Wrap(err, "failed to get analytics", goerr.V("session_id", sessionID))
		}
		prev = nil
	}

	next := Apply(prev, sessionID, Turn{UserMessage: userMessage, BotResponse: botResponse}, a.dict, a.now())

	if err := a.store.PutAnalytics(ctx, next); err != nil {
		return nil, goerr.Wrap(err, "failed to put analytics", goerr.V("session_id", sessionID))
	}

	logging.From(ctx).Debug("analytics updated",
		"session_id", sessionID,
		"total_messages", next.TotalMessages,
		"engagement", next.UserEngagementScore,
	)

	return next, nil
}
