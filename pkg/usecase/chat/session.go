package chat

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/concierge/pkg/adapter"
	"github.com/m-mizutani/concierge/pkg/interfaces"
	"github.com/m-mizutani/concierge/pkg/model"
	"github.com/m-mizutani/concierge/pkg/repository"
	"github.com/m-mizutani/concierge/pkg/usecase/agent"
	"github.com/m-mizutani/concierge/pkg/usecase/analytics"
	"github.com/m-mizutani/concierge/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Session handles the turns of one visitor session
type Session struct {
	id model.SessionID

	executor   *agent.Executor
	responder  interfaces.Responder
	aggregator *analytics.Aggregator
	storage    adapter.Storage
	now        func() time.Time
}

// OpenInput contains parameters for opening a session
type OpenInput struct {
	Store     interfaces.StateStore
	Executor  *agent.Executor
	Responder interfaces.Responder

	// Aggregator and Storage are optional
	Aggregator *analytics.Aggregator
	Storage    adapter.Storage

	// SessionID continues an existing session. Empty starts a new one.
	SessionID model.SessionID
}

// Open looks up the session state and creates an empty one on first contact
func Open(ctx context.Context, input OpenInput) (*Session, error) {
	if input.Store == nil || input.Executor == nil || input.Responder == nil {
		return nil, goerr.New("store, executor and responder are required")
	}

	id := input.SessionID
	if id == "" {
		id = model.NewSessionID()
	}

	logger := logging.From(ctx).With("session_id", id)

	_, err := input.Store.LoadState(ctx, id.StateID())
	switch {
	case err == nil:
		logger.Debug("session resumed")
	case errors.Is(err, repository.ErrNotFound):
		if err := input.Store.SaveState(ctx, id.StateID(), model.NewAgentState()); err != nil {
			return nil, goerr.Wrap(err, "failed to initialize session state", goerr.V("session_id", id))
		}
		logger.Debug("session created")
	default:
		return nil, goerr.Wrap(err, "failed to look up session state", goerr.V("session_id", id))
	}

	return &Session{
		id:         id,
		executor:   input.Executor,
		responder:  input.Responder,
		aggregator: input.Aggregator,
		storage:    input.Storage,
		now:        time.Now,
	}, nil
}

// ID returns the session ID
func (s *Session) ID() model.SessionID {
	return s.id
}

// Reply is the result of one turn
type Reply struct {
	Text   string
	Output model.Output
	State  *model.AgentState

	// Analytics is nil when tracking is disabled or failed
	Analytics *model.ConversationAnalytics
}

// Send runs one turn. Only executor failures are returned; analytics and
// transcript failures are logged and the reply is still delivered.
func (s *Session) Send(ctx context.Context, message string) (*Reply, error) {
	result, err := s.executor.Execute(ctx, s.id.StateID(), model.Input{
		Type:    model.InputTypeVisitorMessage,
		Content: message,
	}, s.responder)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to process message", goerr.V("session_id", s.id))
	}

	reply := &Reply{
		Output: result.Output,
		State:  result.State,
	}
	if result.Output.Payload != nil {
		reply.Text = *result.Output.Payload
	}

	logger := logging.From(ctx).With("session_id", s.id)

	if s.aggregator != nil {
		a, err := s.aggregator.Track(ctx, s.id, message, reply.Text)
		if err != nil {
			logger.Warn("failed to update analytics", logging.ErrAttr(err))
		} else {
			reply.Analytics = a
		}
	}

	if s.storage != nil {
		if err := saveTranscript(ctx, s.storage, s.id, result.State, s.now()); err != nil {
			logger.Warn("failed to archive transcript", logging.ErrAttr(err))
		}
	}

	return reply, nil
}
