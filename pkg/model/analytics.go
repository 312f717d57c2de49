package model

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// SessionID identifies one visitor's continuous interaction
type SessionID string

// NewSessionID generates a new unique SessionID
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

// StateID returns the state store key used for the session
func (id SessionID) StateID() StateID {
	return StateID(id)
}

// ConversationAnalytics is the per-session engagement aggregate. Counters and
// flags only grow; UserEngagementScore reflects the latest turn only.
type ConversationAnalytics struct {
	SessionID           SessionID `json:"session_id" firestore:"session_id"`
	TotalMessages       int       `json:"total_messages" firestore:"total_messages"`
	TopicsCovered       []string  `json:"topics_covered" firestore:"topics_covered"`
	PainPointsMentioned []string  `json:"pain_points_mentioned" firestore:"pain_points_mentioned"`
	BuyingSignals       int       `json:"buying_signals" firestore:"buying_signals"`
	UserEngagementScore int       `json:"user_engagement_score" firestore:"user_engagement_score"`

	MeetingRequested    bool `json:"meeting_requested" firestore:"meeting_requested"`
	PricingDiscussed    bool `json:"pricing_discussed" firestore:"pricing_discussed"`
	ContactInfoProvided bool `json:"contact_info_provided" firestore:"contact_info_provided"`
	DemoRequested       bool `json:"demo_requested" firestore:"demo_requested"`

	TechnicalQuestions int `json:"technical_questions" firestore:"technical_questions"`
	BusinessQuestions  int `json:"business_questions" firestore:"business_questions"`

	CreatedAt   time.Time `json:"created_at" firestore:"created_at"`
	LastUpdated time.Time `json:"last_updated" firestore:"last_updated"`
}

// NewConversationAnalytics returns the zero baseline for a session
func NewConversationAnalytics(id SessionID) *ConversationAnalytics {
	return &ConversationAnalytics{
		SessionID:           id,
		TopicsCovered:       []string{},
		PainPointsMentioned: []string{},
	}
}

// Clone returns a deep copy
func (a *ConversationAnalytics) Clone() *ConversationAnalytics {
	if a == nil {
		return nil
	}
	cloned := *a
	cloned.TopicsCovered = slices.Clone(a.TopicsCovered)
	cloned.PainPointsMentioned = slices.Clone(a.PainPointsMentioned)
	return &cloned
}
