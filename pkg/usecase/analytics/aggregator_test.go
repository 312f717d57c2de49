package analytics_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/concierge/pkg/model"
	"github.com/m-mizutani/concierge/pkg/repository"
	"github.com/m-mizutani/concierge/pkg/usecase/analytics"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"pgregory.net/rapid"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestTrackPricingDemoQuestion(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	agg := analytics.NewAggregator(repo, analytics.WithClock(fixedClock(now)))

	result, err := agg.Track(ctx, "session-1", "What's your pricing for a demo?", "Our demo pricing starts at $X")
	gt.NoError(t, err)

	gt.True(t, result.PricingDiscussed)
	gt.True(t, result.DemoRequested)
	gt.A(t, result.TopicsCovered).Longer(0)
	gt.True(t, slices.Contains(result.TopicsCovered, "Demo"))
	gt.True(t, slices.Contains(result.TopicsCovered, "Pricing"))
	gt.Number(t, result.BuyingSignals).GreaterOrEqual(2)
	gt.Number(t, result.UserEngagementScore).GreaterOrEqual(5)
	gt.V(t, result.TotalMessages).Equal(1)
	gt.V(t, result.CreatedAt).Equal(now)
	gt.V(t, result.LastUpdated).Equal(now)

	stored, err := repo.GetAnalytics(ctx, "session-1")
	gt.NoError(t, err)
	gt.V(t, stored).Equal(result)
}

func TestTrackFlagsAreSticky(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	clock := start
	agg := analytics.NewAggregator(repo, analytics.WithClock(func() time.Time { return clock }))

	first, err := agg.Track(ctx, "s1", "Can we schedule a meeting next week?", "Sure, pick a slot.")
	gt.NoError(t, err)
	gt.True(t, first.MeetingRequested)

	clock = start.Add(time.Minute)
	second, err := agg.Track(ctx, "s1", "Thanks, that works.", "Great!")
	gt.NoError(t, err)

	gt.True(t, second.MeetingRequested)
	gt.V(t, second.TotalMessages).Equal(2)
	gt.V(t, second.CreatedAt).Equal(start)
	gt.V(t, second.LastUpdated).Equal(start.Add(time.Minute))
}

func TestTrackAccumulates(t *testing.T) {
	ctx := context.Background()
	agg := analytics.NewAggregator(repository.NewMemory())

	_, err := agg.Track(ctx, "s1", "How do I integrate with your API? It is too expensive now.", "We have docs.")
	gt.NoError(t, err)
	result, err := agg.Track(ctx, "s1", "What is the ROI for my business?", "Usually 3x.")
	gt.NoError(t, err)

	gt.V(t, result.TechnicalQuestions).Equal(1)
	gt.V(t, result.BusinessQuestions).Equal(1)
	gt.True(t, slices.Contains(result.TopicsCovered, "API"))
	gt.True(t, slices.Contains(result.TopicsCovered, "Integration"))
	gt.V(t, result.PainPointsMentioned).Equal([]string{"Cost concerns"})
}

func TestTrackQuestionCountersIncrementOncePerTurn(t *testing.T) {
	agg := analytics.NewAggregator(repository.NewMemory())

	result, err := agg.Track(context.Background(), "s1", "how how how do I integrate and integrate?", "")
	gt.NoError(t, err)
	gt.V(t, result.TechnicalQuestions).Equal(1)
}

func TestTrackPainPointsOnlyFromUser(t *testing.T) {
	agg := analytics.NewAggregator(repository.NewMemory())

	result, err := agg.Track(context.Background(), "s1", "Hello there", "Sorry, that bug is expensive to fix")
	gt.NoError(t, err)
	gt.A(t, result.PainPointsMentioned).Length(0)
}

type brokenStore struct {
	getErr error
	putErr error
}

func (s *brokenStore) GetAnalytics(ctx context.Context, id model.SessionID) (*model.ConversationAnalytics, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return nil, goerr.Wrap(repository.ErrNotFound, "nothing")
}

func (s *brokenStore) PutAnalytics(ctx context.Context, a *model.ConversationAnalytics) error {
	return s.putErr
}

func TestTrackStoreErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("get failure", func(t *testing.T) {
		errGet := goerr.New("timeout")
		agg := analytics.NewAggregator(&brokenStore{getErr: errGet})
		_, err := agg.Track(ctx, "s1", "hi", "hello")
		gt.True(t, errors.Is(err, errGet))
	})

	t.Run("put failure", func(t *testing.T) {
		errPut := goerr.New("quota exceeded")
		agg := analytics.NewAggregator(&brokenStore{putErr: errPut})
		_, err := agg.Track(ctx, "s1", "hi", "hello")
		gt.True(t, errors.Is(err, errPut))
	})

	t.Run("empty session", func(t *testing.T) {
		agg := analytics.NewAggregator(repository.NewMemory())
		_, err := agg.Track(ctx, "", "hi", "hello")
		gt.Error(t, err)
	})
}

func TestEngagementScore(t *testing.T) {
	dict := analytics.DefaultDictionary()

	testCases := []struct {
		name    string
		message string
		want    int
	}{
		{"empty message is floored", "", 1},
		{"short statement", "ok", 1},
		{"question mark", "ok?", 2},
		{"question prefix", "how it works", 2},
		{"question prefix after spaces", "   What plans exist", 2},
		{"engagement keyword", "trial", 3},
		{"question and keyword", "demo?", 5},
		{"length only", strings.Repeat("a", 100), 2},
		{"length is capped", strings.Repeat("a", 1000), 5},
		{"everything", strings.Repeat("a", 1000) + " pricing?", 10},
		{"case insensitive", "SCHEDULE A DEMO", 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gt.V(t, dict.EngagementScore(tc.message)).Equal(tc.want)
		})
	}
}

func TestApplyDoesNotModifyPrevious(t *testing.T) {
	dict := analytics.DefaultDictionary()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	prev := analytics.Apply(nil, "s1", analytics.Turn{UserMessage: "api demo"}, dict, now)
	snapshot := prev.Clone()

	analytics.Apply(prev, "s1", analytics.Turn{UserMessage: "security is slow"}, dict, now.Add(time.Second))
	gt.V(t, prev).Equal(snapshot)
}

var vocabulary = []string{
	"hello", "thanks", "how", "what", "?", "demo", "pricing", "price", "meeting", "schedule",
	"trial", "api", "integrate", "partnership", "business", "roi", "expensive", "bug", "slow",
	"email", "@", "interested", "contact", "sign up", "the", "weather", "is", "nice",
}

func genMessage() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		words := rapid.SliceOfN(rapid.SampledFrom(vocabulary), 0, 12).Draw(t, "words")
		return strings.Join(words, " ")
	})
}

func genTurn() *rapid.Generator[analytics.Turn] {
	return rapid.Custom(func(t *rapid.T) analytics.Turn {
		return analytics.Turn{
			UserMessage: genMessage().Draw(t, "user"),
			BotResponse: genMessage().Draw(t, "bot"),
		}
	})
}

func TestPropertyMonotonicFields(t *testing.T) {
	dict := analytics.DefaultDictionary()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	rapid.Check(t, func(rt *rapid.T) {
		turns := rapid.SliceOfN(genTurn(), 1, 10).Draw(rt, "turns")

		var prev *model.ConversationAnalytics
		for i, turn := range turns {
			next := analytics.Apply(prev, "s1", turn, dict, now.Add(time.Duration(i)*time.Second))

			if prev != nil {
				if next.TotalMessages != prev.TotalMessages+1 {
					rt.Fatalf("total_messages %d -> %d", prev.TotalMessages, next.TotalMessages)
				}
				if next.BuyingSignals < prev.BuyingSignals ||
					next.TechnicalQuestions < prev.TechnicalQuestions ||
					next.BusinessQuestions < prev.BusinessQuestions {
					rt.Fatalf("counter decreased: %+v -> %+v", prev, next)
				}
				if next.TechnicalQuestions > prev.TechnicalQuestions+1 ||
					next.BusinessQuestions > prev.BusinessQuestions+1 {
					rt.Fatalf("question counter grew by more than one: %+v -> %+v", prev, next)
				}
				if (prev.MeetingRequested && !next.MeetingRequested) ||
					(prev.PricingDiscussed && !next.PricingDiscussed) ||
					(prev.ContactInfoProvided && !next.ContactInfoProvided) ||
					(prev.DemoRequested && !next.DemoRequested) {
					rt.Fatalf("flag reset: %+v -> %+v", prev, next)
				}
			}
			prev = next
		}
	})
}

func TestPropertyEngagementScoreBounds(t *testing.T) {
	dict := analytics.DefaultDictionary()

	rapid.Check(t, func(rt *rapid.T) {
		message := rapid.OneOf(genMessage(), rapid.String()).Draw(rt, "message")
		score := dict.EngagementScore(message)
		if score < 1 || score > 10 {
			rt.Fatalf("score %d out of range for %q", score, message)
		}

		a := analytics.Apply(nil, "s1", analytics.Turn{UserMessage: message}, dict, time.Now())
		if a.UserEngagementScore != score {
			rt.Fatalf("recorded score %d, want %d", a.UserEngagementScore, score)
		}
	})
}

func TestPropertyTopicsAccumulate(t *testing.T) {
	dict := analytics.DefaultDictionary()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	rapid.Check(t, func(rt *rapid.T) {
		turns := rapid.SliceOfN(genTurn(), 1, 10).Draw(rt, "turns")

		var prev *model.ConversationAnalytics
		for _, turn := range turns {
			next := analytics.Apply(prev, "s1", turn, dict, now)
			if prev != nil {
				for _, topic := range prev.TopicsCovered {
					if !slices.Contains(next.TopicsCovered, topic) {
						rt.Fatalf("topic %q dropped", topic)
					}
				}
				for _, p := range prev.PainPointsMentioned {
					if !slices.Contains(next.PainPointsMentioned, p) {
						rt.Fatalf("pain point %q dropped", p)
					}
				}
			}

			seen := map[string]bool{}
			for _, topic := range next.TopicsCovered {
				if seen[topic] {
					rt.Fatalf("duplicated topic %q", topic)
				}
				seen[topic] = true
			}
			prev = next
		}
	})
}

func TestTrackCustomDictionaryIgnoresCase(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()

	dict := analytics.DefaultDictionary()
	dict.Topics = append(dict.Topics, analytics.Keyword{Keyword: "Webinar", Label: "Events"})
	dict.PainPoints = append(dict.PainPoints, analytics.Keyword{Keyword: "  ", Label: "Blank"})
	dict.BuyingSignals = []string{"Quote", "QUOTE", ""}

	agg := analytics.NewAggregator(repo, analytics.WithDictionary(dict))
	result, err := agg.Track(ctx, "session-custom", "Can I join the webinar and get a quote?", "Sure.")
	gt.NoError(t, err)

	gt.True(t, slices.Contains(result.TopicsCovered, "Events"))
	gt.False(t, slices.Contains(result.PainPointsMentioned, "Blank"))
	gt.V(t, result.BuyingSignals).Equal(1)
}

func TestTrackNilClockFallsBackToNow(t *testing.T) {
	agg := analytics.NewAggregator(repository.NewMemory(), analytics.WithClock(nil))

	result, err := agg.Track(context.Background(), "session-clock", "Hello", "Hi")
	gt.NoError(t, err)
	gt.False(t, result.LastUpdated.IsZero())
}
