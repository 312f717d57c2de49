package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/concierge/pkg/model"
	"github.com/m-mizutani/concierge/pkg/usecase/chat"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func transcriptCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
		asJSON    bool
	)

	flags := []cli.Flag{
		sessionIDFlag(&sessionID),
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "Print the transcript as JSON",
			Destination: &asJSON,
		},
	}
	flags = append(flags, agentFlags(&cfg)...)

	return &cli.Command{
		Name:  "transcript",
		Usage: "Print the archived transcript of a session",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogger(ctx)
			if err != nil {
				return err
			}

			storage, err := cfg.newStorage(ctx)
			if err != nil {
				return err
			}
			if storage == nil {
				return goerr.New("transcript-bucket is required")
			}

			transcript, err := chat.LoadTranscript(ctx, storage, model.SessionID(sessionID))
			if err != nil {
				return err
			}

			w := c.Root().Writer
			if asJSON {
				return printJSON(w, transcript)
			}

			fmt.Fprintf(w, "Session: %s (score %.1f, updated %s)\n\n",
				transcript.SessionID,
				transcript.QualificationScore,
				transcript.UpdatedAt.Format("2006-01-02 15:04:05"),
			)
			for _, m := range transcript.Messages {
				fmt.Fprintf(w, "[%s] %s: %s\n", m.CreatedAt.Format("15:04:05"), m.Role, m.Content)
			}
			return nil
		},
	}
}
