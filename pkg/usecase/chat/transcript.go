package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/m-mizutani/concierge/pkg/adapter"
	"github.com/m-mizutani/concierge/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// Transcript is the archived copy of a session's conversation
type Transcript struct {
	SessionID          model.SessionID `json:"session_id"`
	Messages           []model.Message `json:"messages"`
	QualificationScore float64         `json:"qualification_score"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func transcriptKey(id model.SessionID) string {
	return "transcripts/" + string(id) + ".json"
}

// saveTranscript overwrites the archived transcript with the current state
func saveTranscript(ctx context.Context, storage adapter.Storage, id model.SessionID, state *model.AgentState, now time.Time) error {
	transcript := &Transcript{
		SessionID:          id,
		Messages:           state.ConversationHistory,
		QualificationScore: state.QualificationScore,
		UpdatedAt:          now,
	}

	data, err := json.Marshal(transcript)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal transcript", goerr.V("session_id", id))
	}

	if err := storage.Put(ctx, transcriptKey(id), data); err != nil {
		return goerr.Wrap(err, "failed to save transcript", goerr.V("session_id", id))
	}
	return nil
}

// LoadTranscript reads the archived transcript of a session
func LoadTranscript(ctx context.Context, storage adapter.Storage, id model.SessionID) (*Transcript, error) {
	data, err := storage.Get(ctx, transcriptKey(id))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load transcript", goerr.V("session_id", id))
	}

	var transcript Transcript
	if err := json.Unmarshal(data, &transcript); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal transcript", goerr.V("session_id", id))
	}
	return &transcript, nil
}
