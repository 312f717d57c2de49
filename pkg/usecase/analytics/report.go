package analytics

import (
	"context"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/m-mizutani/concierge/pkg/adapter"
	"github.com/m-mizutani/concierge/pkg/interfaces"
	"github.com/m-mizutani/concierge/pkg/model"
	"github.com/m-mizutani/concierge/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// ReportStore is the read side used by reporting
type ReportStore interface {
	interfaces.AnalyticsStore
	interfaces.AnalyticsLister
}

// Reporter reads analytics records for reporting surfaces
type Reporter struct {
	store ReportStore
}

// NewReporter creates a new Reporter
func NewReporter(store ReportStore) *Reporter {
	return &Reporter{store: store}
}

// Show returns the record of one session
func (r *Reporter) Show(ctx context.Context, sessionID model.SessionID) (*model.ConversationAnalytics, error) {
	a, err := r.store.GetAnalytics(ctx, sessionID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get analytics", goerr.V("session_id", sessionID))
	}
	return a, nil
}

// List returns records newest first
func (r *Reporter) List(ctx context.Context, offset, limit int) ([]*model.ConversationAnalytics, error) {
	list, err := r.store.ListAnalytics(ctx, offset, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list analytics",
			goerr.V("offset", offset),
			goerr.V("limit", limit))
	}
	return list, nil
}

// Row is the BigQuery row of one analytics record
type Row struct {
	SessionID           string    `bigquery:"session_id"`
	TotalMessages       int       `bigquery:"total_messages"`
	TopicsCovered       []string  `bigquery:"topics_covered"`
	PainPointsMentioned []string  `bigquery:"pain_points_mentioned"`
	BuyingSignals       int       `bigquery:"buying_signals"`
	UserEngagementScore int       `bigquery:"user_engagement_score"`
	MeetingRequested    bool      `bigquery:"meeting_requested"`
	PricingDiscussed    bool      `bigquery:"pricing_discussed"`
	ContactInfoProvided bool      `bigquery:"contact_info_provided"`
	DemoRequested       bool      `bigquery:"demo_requested"`
	TechnicalQuestions  int       `bigquery:"technical_questions"`
	BusinessQuestions   int       `bigquery:"business_questions"`
	CreatedAt           time.Time `bigquery:"created_at"`
	LastUpdated         time.Time `bigquery:"last_updated"`
	ExportedAt          time.Time `bigquery:"exported_at"`
}

// NewRow converts a record into a BigQuery row
func NewRow(a *model.ConversationAnalytics, exportedAt time.Time) *Row {
	return &Row{
		SessionID:           string(a.SessionID),
		TotalMessages:       a.TotalMessages,
		TopicsCovered:       a.TopicsCovered,
		PainPointsMentioned: a.PainPointsMentioned,
		BuyingSignals:       a.BuyingSignals,
		UserEngagementScore: a.UserEngagementScore,
		MeetingRequested:    a.MeetingRequested,
		PricingDiscussed:    a.PricingDiscussed,
		ContactInfoProvided: a.ContactInfoProvided,
		DemoRequested:       a.DemoRequested,
		TechnicalQuestions:  a.TechnicalQuestions,
		BusinessQuestions:   a.BusinessQuestions,
		CreatedAt:           a.CreatedAt,
		LastUpdated:         a.LastUpdated,
		ExportedAt:          exportedAt,
	}
}

const exportBatchSize = 100

// Exporter copies analytics records into a BigQuery table as snapshot rows
type Exporter struct {
	store interfaces.AnalyticsScanner
	bq    adapter.BigQuery
	now   func() time.Time
}

// NewExporter creates a new Exporter
func NewExporter(store interfaces.AnalyticsScanner, bq adapter.BigQuery) *Exporter {
	return &Exporter{
		store: store,
		bq:    bq,
		now:   time.Now,
	}
}

// Export writes every record once in a single pass over the store and returns
// the number of rows inserted. The table is created from the row schema when
// it does not exist.
func (x *Exporter) Export(ctx context.Context) (int, error) {
	schema, err := bigquery.InferSchema(Row{})
	if err != nil {
		return 0, goerr.Wrap(err, "failed to infer analytics row schema")
	}
	if err := x.bq.EnsureTable(ctx, schema); err != nil {
		return 0, goerr.Wrap(err, "failed to prepare export table")
	}

	exportedAt := x.now()
	seen := map[model.SessionID]struct{}{}
	rows := make([]*Row, 0, exportBatchSize)
	var total int

	flush := func() error {
		if len(rows) == 0 {
			return nil
		}
		if err := x.bq.Insert(ctx, rows); err != nil {
			return goerr.Wrap(err, "failed to insert analytics rows",
				goerr.V("exported", total),
				goerr.V("count", len(rows)))
		}
		total += len(rows)
		rows = make([]*Row, 0, exportBatchSize)
		return nil
	}

	if err := x.store.ScanAnalytics(ctx, func(a *model.ConversationAnalytics) error {
		if _, ok := seen[a.SessionID]; ok {
			return nil
		}
		seen[a.SessionID] = struct{}{}

		rows = append(rows, NewRow(a, exportedAt))
		if len(rows) < exportBatchSize {
			return nil
		}
		return flush()
	}); err != nil {
		return total, goerr.Wrap(err, "failed to scan analytics", goerr.V("exported", total))
	}
	if err := flush(); err != nil {
		return total, err
	}

	logging.From(ctx).Info("analytics exported", "rows", total)
	return total, nil
}
