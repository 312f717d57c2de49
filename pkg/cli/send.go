package cli

import (
	"context"
	"strings"

	"github.com/m-mizutani/concierge/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

type sendOutput struct {
	SessionID model.SessionID              `json:"session_id"`
	Reply     string                       `json:"reply"`
	Output    model.Output                 `json:"output"`
	Analytics *model.ConversationAnalytics `json:"analytics,omitempty"`
}

func sendCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "session-id",
			Aliases:     []string{"s"},
			Usage:       "Session ID (a new session is started if empty)",
			Sources:     cli.EnvVars("CONCIERGE_SESSION_ID"),
			Destination: &sessionID,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, agentFlags(&cfg)...)

	return &cli.Command{
		Name:      "send",
		Usage:     "Send one visitor message and print the result as JSON",
		ArgsUsage: "<message>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			message := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if message == "" {
				return goerr.New("message is required")
			}

			ctx, err := cfg.setupLogger(ctx)
			if err != nil {
				return err
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer safeClose(ctx, repo)

			session, err := cfg.openSession(ctx, repo, sessionID)
			if err != nil {
				return err
			}

			reply, err := session.Send(ctx, message)
			if err != nil {
				return err
			}

			return printJSON(c.Root().Writer, &sendOutput{
				SessionID: session.ID(),
				Reply:     reply.Text,
				Output:    reply.Output,
				Analytics: reply.Analytics,
			})
		},
	}
}
