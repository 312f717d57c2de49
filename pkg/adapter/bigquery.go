package adapter

import (
	"context"
	"errors"
	"net/http"

	"cloud.google.com/go/bigquery"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/googleapi"
)

// BigQuery is an interface for writing rows to one BigQuery table
type BigQuery interface {
	// EnsureTable creates the table with schema if it does not exist yet
	EnsureTable(ctx context.Context, schema bigquery.Schema) error

	// Insert streams rows into the table. rows is a struct, a struct pointer
	// or a slice of them, as accepted by bigquery.Inserter.
	Insert(ctx context.Context, rows any) error
}

type bigqueryClient struct {
	client    *bigquery.Client
	datasetID string
	tableID   string
}

// BigQueryOption is a functional option for BigQuery client
type BigQueryOption func(*bigqueryClient)

// WithBigQueryTable sets the destination table. Defaults to
// "concierge.conversation_analytics".
func WithBigQueryTable(datasetID, tableID string) BigQueryOption {
	return func(bq *bigqueryClient) {
		bq.datasetID = datasetID
		bq.tableID = tableID
	}
}

// NewBigQuery creates a new BigQuery client
func NewBigQuery(ctx context.Context, projectID string, opts ...BigQueryOption) (BigQuery, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create BigQuery client", goerr.V("project", projectID))
	}

	bq := &bigqueryClient{
		client:    client,
		datasetID: "concierge",
		tableID:   "conversation_analytics",
	}

	for _, opt := range opts {
		opt(bq)
	}

	return bq, nil
}

func (bq *bigqueryClient) table() *bigquery.Table {
	return bq.client.Dataset(bq.datasetID).Table(bq.tableID)
}

func (bq *bigqueryClient) EnsureTable(ctx context.Context, schema bigquery.Schema) error {
	_, err := bq.table().Metadata(ctx)
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
		return goerr.Wrap(err, "failed to get table metadata",
			goerr.V("dataset", bq.datasetID),
			goerr.V("table", bq.tableID))
	}

	if err := bq.table().Create(ctx, &bigquery.TableMetadata{Schema: schema}); err != nil {
		return goerr.Wrap(err, "failed to create table",
			goerr.V("dataset", bq.datasetID),
			goerr.V("table", bq.tableID))
	}
	return nil
}

func (bq *bigqueryClient) Insert(ctx context.Context, rows any) error {
	if err := bq.table().Inserter().Put(ctx, rows); err != nil {
		return goerr.Wrap(err, "failed to insert rows",
			goerr.V("dataset", bq.datasetID),
			goerr.V("table", bq.tableID))
	}
	return nil
}
