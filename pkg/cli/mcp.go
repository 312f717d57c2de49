package cli

import (
	"context"

	"github.com/m-mizutani/concierge/pkg/service/mcp"
	"github.com/m-mizutani/concierge/pkg/usecase/analytics"
	"github.com/m-mizutani/concierge/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func mcpCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve engagement analytics as MCP tools over stdio",
		Flags: globalFlags(&cfg),
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

			server, err := mcp.NewServer(analytics.NewReporter(repo), Version)
			if err != nil {
				return err
			}

			logging.From(ctx).Info("starting MCP server", "backend", cfg.backend)
			return server.Run(ctx)
		},
	}
}
