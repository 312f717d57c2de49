package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/concierge/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collectionStates    = "agent_states"
	collectionAnalytics = "conversation_analytics"
)

// stateDoc wraps AgentState with store metadata that the reducer never sees
type stateDoc struct {
	State     *model.AgentState `firestore:"state"`
	UpdatedAt time.Time         `firestore:"updated_at"`
}

// Firestore implements Repository on Cloud Firestore
type Firestore struct {
	client *firestore.Client
}

// New creates a new Firestore repository
func New(projectID, databaseID string) (*Firestore, error) {
	ctx := context.Background()
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID),
			goerr.V("database_id", databaseID))
	}

	return &Firestore{client: client}, nil
}

func (r *Firestore) LoadState(ctx context.Context, id model.StateID) (*model.AgentState, error) {
	snap, err := r.client.Collection(collectionStates).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "state not found", goerr.V("state_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get state", goerr.V("state_id", id))
	}

	var doc stateDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode state", goerr.V("state_id", id))
	}
	if doc.State == nil {
		return model.NewAgentState(), nil
	}
	return doc.State, nil
}

func (r *Firestore) SaveState(ctx context.Context, id model.StateID, state *model.AgentState) error {
	if state == nil {
		return goerr.New("state is nil", goerr.V("state_id", id))
	}

	doc := stateDoc{State: state, UpdatedAt: time.Now()}
	if _, err := r.client.Collection(collectionStates).Doc(string(id)).Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to save state", goerr.V("state_id", id))
	}
	return nil
}

func (r *Firestore) GetAnalytics(ctx context.Context, id model.SessionID) (*model.ConversationAnalytics, error) {
	snap, err := r.client.Collection(collectionAnalytics).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "analytics not found", goerr.V("session_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get analytics", goerr.V("session_id", id))
	}

	var a model.ConversationAnalytics
	if err := snap.DataTo(&a); err != nil {
		return nil, goerr.Wrap(err, "failed to decode analytics", goerr.V("session_id", id))
	}
	return &a, nil
}

func (r *Firestore) PutAnalytics(ctx context.Context, analytics *model.ConversationAnalytics) error {
	if analytics == nil || analytics.SessionID == "" {
		return goerr.New("analytics must have a session ID")
	}

	ref := r.client.Collection(collectionAnalytics).Doc(string(analytics.SessionID))
	if _, err := ref.Set(ctx, analytics); err != nil {
		return goerr.Wrap(err, "failed to put analytics", goerr.V("session_id", analytics.SessionID))
	}
	return nil
}

func (r *Firestore) ListAnalytics(ctx context.Context, offset, limit int) ([]*model.ConversationAnalytics, error) {
	offset, limit = normalizePage(offset, limit)

	iter := r.client.Collection(collectionAnalytics).
		OrderBy("last_updated", firestore.Desc).
		Offset(offset).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	results := []*model.ConversationAnalytics{}
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate analytics")
		}

		var a model.ConversationAnalytics
		if err := snap.DataTo(&a); err != nil {
			return nil, goerr.Wrap(err, "failed to decode analytics", goerr.V("doc_id", snap.Ref.ID))
		}
		results = append(results, &a)
	}

	return results, nil
}

// ScanAnalytics streams the collection in document ID order, so records
// updated during the scan keep their position.
func (r *Firestore) ScanAnalytics(ctx context.Context, fn func(*model.ConversationAnalytics) error) error {
	iter := r.client.Collection(collectionAnalytics).Documents(ctx)
	defer iter.Stop()

	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return goerr.Wrap(err, "failed to iterate analytics")
		}

		var a model.ConversationAnalytics
		if err := snap.DataTo(&a); err != nil {
			return goerr.Wrap(err, "failed to decode analytics", goerr.V("doc_id", snap.Ref.ID))
		}
		if err := fn(&a); err != nil {
			return err
		}
	}
}

func (r *Firestore) Close() error {
	return r.client.Close()
}
