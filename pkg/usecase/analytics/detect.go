package analytics

import (
	"math"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/m-mizutani/concierge/pkg/model"
)

const (
	minEngagementScore = 1
	maxEngagementScore = 10

	engagementCharsPerPoint = 50.0
	maxLengthPoints         = 5.0
	questionPoints          = 2.0
	engagementKeywordPoints = 3.0
)

// Turn is one visitor message and the reply sent for it
type Turn struct {
	UserMessage string
	BotResponse string
}

// Signals is what the detectors found in a single turn
type Signals struct {
	Topics     []string
	PainPoints []string

	// BuyingSignals is the number of distinct buying keywords present
	BuyingSignals int

	MeetingRequested    bool
	PricingDiscussed    bool
	ContactInfoProvided bool
	DemoRequested       bool

	TechnicalQuestion bool
	BusinessQuestion  bool

	EngagementScore int
}

// Detect runs every detector of the dictionary over one turn
func (d *Dictionary) Detect(turn Turn) Signals {
	user := strings.ToLower(turn.UserMessage)
	both := user + "\n" + strings.ToLower(turn.BotResponse)

	return Signals{
		Topics:              matchLabels(both, d.Topics),
		PainPoints:          matchLabels(user, d.PainPoints),
		BuyingSignals:       countMatches(both, d.BuyingSignals),
		MeetingRequested:    containsAny(user, d.Flags.MeetingRequested),
		PricingDiscussed:    containsAny(user, d.Flags.PricingDiscussed),
		ContactInfoProvided: containsAny(user, d.Flags.ContactInfoProvided),
		DemoRequested:       containsAny(user, d.Flags.DemoRequested),
		TechnicalQuestion:   containsAny(user, d.TechnicalTriggers),
		BusinessQuestion:    containsAny(user, d.BusinessTriggers),
		EngagementScore:     d.EngagementScore(turn.UserMessage),
	}
}

// EngagementScore rates a single user message in [1,10]. It is instantaneous
// and never carries anything over from earlier turns.
func (d *Dictionary) EngagementScore(message string) int {
	lower := strings.ToLower(message)

	score := math.Min(float64(utf8.RuneCountInString(message))/engagementCharsPerPoint, maxLengthPoints)

	if strings.Contains(lower, "?") || hasAnyPrefix(strings.TrimLeft(lower, " \t\r\n"), d.QuestionPrefixes) {
		score += questionPoints
	}
	if containsAny(lower, d.EngagementKeywords) {
		score += engagementKeywordPoints
	}

	return max(minEngagementScore, min(maxEngagementScore, int(math.Round(score))))
}

// Apply merges one turn into the previous record and returns a new record.
// prev is never modified; a nil prev is the zero baseline.
func Apply(prev *model.ConversationAnalytics, sessionID model.SessionID, turn Turn, dict *Dictionary, now time.Time) *model.ConversationAnalytics {
	var next *model.ConversationAnalytics
	if prev == nil {
		next = model.NewConversationAnalytics(sessionID)
		next.CreatedAt = now
	} else {
		next = prev.Clone()
		next.SessionID = sessionID
		if next.CreatedAt.IsZero() {
			next.CreatedAt = now
		}
	}

	s := dict.Detect(turn)

	next.TotalMessages++
	next.TopicsCovered = union(next.TopicsCovered, s.Topics)
	next.PainPointsMentioned = union(next.PainPointsMentioned, s.PainPoints)
	next.BuyingSignals += s.BuyingSignals

	next.MeetingRequested = next.MeetingRequested || s.MeetingRequested
	next.PricingDiscussed = next.PricingDiscussed || s.PricingDiscussed
	next.ContactInfoProvided = next.ContactInfoProvided || s.ContactInfoProvided
	next.DemoRequested = next.DemoRequested || s.DemoRequested

	if s.TechnicalQuestion {
		next.TechnicalQuestions++
	}
	if s.BusinessQuestion {
		next.BusinessQuestions++
	}

	next.UserEngagementScore = s.EngagementScore
	next.LastUpdated = now

	return next
}

// Keywords are lowercased at compare time as well, so dictionaries built in
// code match the same way as loaded ones. Blank keywords never match.

func matchLabels(text string, keywords []Keyword) []string {
	var labels []string
	for _, kw := range keywords {
		if matchKeyword(text, kw.Keyword) && !slices.Contains(labels, kw.Label) {
			labels = append(labels, kw.Label)
		}
	}
	return labels
}

func countMatches(text string, words []string) int {
	lowered := make([]string, 0, len(words))
	for _, w := range words {
		lowered = append(lowered, strings.ToLower(w))
	}

	var n int
	for _, w := range slices.Compact(slices.Sorted(slices.Values(lowered))) {
		if matchKeyword(text, w) {
			n++
		}
	}
	return n
}

func containsAny(text string, words []string) bool {
	return slices.ContainsFunc(words, func(w string) bool {
		return matchKeyword(text, w)
	})
}

func hasAnyPrefix(text string, prefixes []string) bool {
	return slices.ContainsFunc(prefixes, func(p string) bool {
		return strings.TrimSpace(p) != "" && strings.HasPrefix(text, strings.ToLower(p))
	})
}

func matchKeyword(text, keyword string) bool {
	if strings.TrimSpace(keyword) == "" {
		return false
	}
	return strings.Contains(text, strings.ToLower(keyword))
}

// union appends labels not yet present, keeping first-seen order
func union(current, labels []string) []string {
	out := slices.Clone(current)
	if out == nil {
		out = []string{}
	}
	for _, l := range labels {
		if !slices.Contains(out, l) {
			out = append(out, l)
		}
	}
	return out
}
