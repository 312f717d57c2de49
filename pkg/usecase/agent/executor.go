package agent

import (
	"context"
	"errors"

	"github.com/m-mizutani/concierge/pkg/interfaces"
	"github.com/m-mizutani/concierge/pkg/model"
	"github.com/m-mizutani/concierge/pkg/repository"
	"github.com/m-mizutani/concierge/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

var (
	// ErrStateNotFound means the store has no state for the ID. Initializing
	// state on first contact is the caller's job.
	ErrStateNotFound = goerr.New("agent state not found")

	ErrNoResponder = goerr.New("responder is required for visitor messages")
)

// Result is the outcome of one executor cycle
type Result struct {
	State  *model.AgentState
	Output model.Output
}

// Executor drives load, decide, reduce and persist for one request. It keeps no
// state between calls; everything lives in the injected store.
//
// Calls for the same state ID are serialized within one Executor. Writers in
// other processes are not coordinated and the store's last write wins.
type Executor struct {
	store         interfaces.StateStore
	reducer       *Reducer
	locks         *keyedMutex
	recordVisitor bool
}

// ExecutorOption is a functional option for Executor
type ExecutorOption func(*Executor)

// WithVisitorMessageRecording makes Execute append the visitor's message to
// the history right before the agent response.
func WithVisitorMessageRecording() ExecutorOption {
	return func(x *Executor) {
		x.recordVisitor = true
	}
}

// NewExecutor creates a new Executor. A nil reducer uses NewReducer().
func NewExecutor(store interfaces.StateStore, reducer *Reducer, opts ...ExecutorOption) *Executor {
	if reducer == nil {
		reducer = NewReducer()
	}

	x := &Executor{
		store:   store,
		reducer: reducer,
		locks:   newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Execute runs one request cycle for stateID. Responder errors are returned
// wrapped, with nothing persisted.
func (x *Executor) Execute(ctx context.Context, stateID model.StateID, input model.Input, responder interfaces.Responder) (*Result, error) {
	unlock := x.locks.Lock(stateID)
	defer unlock()

	logger := logging.From(ctx).With("state_id", stateID, "input_type", input.Type)

	// Step 1: load
	current, err := x.load(ctx, stateID)
	if err != nil {
		return nil, err
	}

	// Step 2: decide
	action, err := x.decide(ctx, current, input, responder)
	if err != nil {
		return nil, err
	}

	// Step 3: reduce
	next := current
	if x.recordVisitor && input.Type == model.InputTypeVisitorMessage {
		next = x.reducer.Reduce(next, model.VisitorMessage{Content: input.Content})
	}
	next = x.reducer.Reduce(next, action)

	// Step 4: persist
	if err := x.store.SaveState(ctx, stateID, next); err != nil {
		return nil, goerr.Wrap(err, "failed to save agent state", goerr.V("state_id", stateID))
	}

	logger.Debug("agent state updated",
		"action", action.Type(),
		"history_length", len(next.ConversationHistory),
	)

	// Step 5: report
	return &Result{
		State:  next,
		Output: model.NewOutput(action),
	}, nil
}

// Dispatch applies a caller-supplied action with the same load, reduce and
// persist cycle as Execute.
func (x *Executor) Dispatch(ctx context.Context, stateID model.StateID, action model.Action) (*model.AgentState, error) {
	if action == nil {
		return nil, goerr.New("action is nil", goerr.V("state_id", stateID))
	}

	unlock := x.locks.Lock(stateID)
	defer unlock()

	current, err := x.load(ctx, stateID)
	if err != nil {
		return nil, err
	}

	next := x.reducer.Reduce(current, action)
	if err := x.store.SaveState(ctx, stateID, next); err != nil {
		return nil, goerr.Wrap(err, "failed to save agent state", goerr.V("state_id", stateID))
	}

	logging.From(ctx).Debug("action dispatched",
		"state_id", stateID,
		"action", action.Type(),
	)

	return next, nil
}

func (x *Executor) load(ctx context.Context, stateID model.StateID) (*model.AgentState, error) {
	state, err := x.store.LoadState(ctx, stateID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, goerr.Wrap(ErrStateNotFound, "state must be initialized before execute",
				goerr.V("state_id", stateID),
				goerr.V("cause", err.Error()))
		}
		return nil, goerr.Wrap(err, "failed to load agent state", goerr.V("state_id", stateID))
	}
	return state, nil
}

func (x *Executor) decide(ctx context.Context, state *model.AgentState, input model.Input, responder interfaces.Responder) (model.Action, error) {
	if input.Type != model.InputTypeVisitorMessage {
		return model.ActionCompleted{ActionID: model.UnhandledInputActionID}, nil
	}

	if responder == nil {
		return nil, goerr.Wrap(ErrNoResponder, "cannot handle visitor message")
	}

	reply, err := responder.Respond(ctx, state.Clone(), input)
	if err != nil {
		return nil, goerr.Wrap(err, "responder failed")
	}

	return model.AgentResponse{Content: reply}, nil
}
