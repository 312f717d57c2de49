package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/concierge/pkg/adapter"
	"github.com/m-mizutani/concierge/pkg/model"
	"github.com/m-mizutani/concierge/pkg/usecase/analytics"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func analyticsCommand() *cli.Command {
	return &cli.Command{
		Name:  "analytics",
		Usage: "Read and export engagement analytics",
		Commands: []*cli.Command{
			analyticsShowCommand(),
			analyticsListCommand(),
			analyticsExportCommand(),
		},
	}
}

func analyticsShowCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
	)

	flags := []cli.Flag{sessionIDFlag(&sessionID)}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "show",
		Usage: "Print the analytics record of a session",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogger(ctx)
			if err != nil {
				return err
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer safeClose(ctx, repo)

			a, err := analytics.NewReporter(repo).Show(ctx, model.SessionID(sessionID))
			if err != nil {
				return err
			}
			return printJSON(c.Root().Writer, a)
		},
	}
}

func analyticsListCommand() *cli.Command {
	var (
		cfg    config
		offset int64
		limit  int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "offset",
			Usage:       "Number of records to skip",
			Destination: &offset,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Maximum number of records",
			Value:       20,
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List analytics records, most recently updated first",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogger(ctx)
			if err != nil {
				return err
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer safeClose(ctx, repo)

			list, err := analytics.NewReporter(repo).List(ctx, int(offset), int(limit))
			if err != nil {
				return err
			}

			w := c.Root().Writer
			if len(list) == 0 {
				fmt.Fprintln(w, "No analytics records found")
				return nil
			}

			fmt.Fprintf(w, "%-38s %8s %10s %8s  %s\n", "SESSION", "MESSAGES", "ENGAGEMENT", "SIGNALS", "UPDATED")
			for _, a := range list {
				fmt.Fprintf(w, "%-38s %8d %10d %8d  %s\n",
					a.SessionID,
					a.TotalMessages,
					a.UserEngagementScore,
					a.BuyingSignals,
					a.LastUpdated.Format("2006-01-02 15:04:05"),
				)
			}
			return nil
		},
	}
}

func analyticsExportCommand() *cli.Command {
	var (
		cfg       config
		bqProject string
		bqDataset string
		bqTable   string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "bigquery-project",
			Usage:       "BigQuery project ID (defaults to --project)",
			Sources:     cli.EnvVars("CONCIERGE_BIGQUERY_PROJECT"),
			Destination: &bqProject,
		},
		&cli.StringFlag{
			Name:        "bigquery-dataset",
			Usage:       "BigQuery dataset ID",
			Value:       "concierge",
			Sources:     cli.EnvVars("CONCIERGE_BIGQUERY_DATASET"),
			Destination: &bqDataset,
		},
		&cli.StringFlag{
			Name:        "bigquery-table",
			Usage:       "BigQuery table ID",
			Value:       "conversation_analytics",
			Sources:     cli.EnvVars("CONCIERGE_BIGQUERY_TABLE"),
			Destination: &bqTable,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "export",
		Usage: "Append a snapshot of every analytics record to BigQuery",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogger(ctx)
			if err != nil {
				return err
			}

			if bqProject == "" {
				bqProject = cfg.project
			}
			if bqProject == "" {
				return goerr.New("bigquery-project or project is required")
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer safeClose(ctx, repo)

			bq, err := adapter.NewBigQuery(ctx, bqProject, adapter.WithBigQueryTable(bqDataset, bqTable))
			if err != nil {
				return err
			}

			n, err := analytics.NewExporter(repo, bq).Export(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "Exported %d records to %s.%s.%s\n", n, bqProject, bqDataset, bqTable)
			return nil
		},
	}
}
