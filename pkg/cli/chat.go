package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/concierge/pkg/usecase/chat"
	"github.com/m-mizutani/concierge/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

const apologyMessage = "Sorry, something went wrong on our side. Could you try again in a moment?"

func chatCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "session-id",
			Aliases:     []string{"s"},
			Usage:       "Session ID to resume (a new session is started if empty)",
			Sources:     cli.EnvVars("CONCIERGE_SESSION_ID"),
			Destination: &sessionID,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, agentFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Talk to the concierge as a visitor",
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

			session, err := cfg.openSession(ctx, repo, sessionID)
			if err != nil {
				return err
			}

			w := c.Root().Writer
			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
				Stdout:          w,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to initialize prompt")
			}
			defer safeClose(ctx, rl)

			fmt.Fprintf(w, "Session %s started. Type 'exit' to quit.\n", session.ID())

			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					if line == "" {
						break
					}
					continue
				}
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				message := strings.TrimSpace(line)
				if message == "exit" || message == "quit" {
					break
				}
				if message == "" {
					continue
				}

				fmt.Fprintln(w, replyText(ctx, w, session, message))
			}

			fmt.Fprintf(w, "\nSession %s closed\n", session.ID())
			return nil
		},
	}
}

// replyText runs one turn while showing a spinner. A failed turn yields the
// apology message instead of an error so the conversation can continue.
func replyText(ctx context.Context, w io.Writer, session *chat.Session, message string) string {
	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	sp.Suffix = " thinking..."
	sp.Start()
	reply, err := session.Send(ctx, message)
	sp.Stop()

	if err != nil {
		logging.From(ctx).Error("failed to handle visitor message",
			"session_id", session.ID(),
			logging.ErrAttr(err),
		)
		return apologyMessage
	}
	return reply.Text
}

func safeClose(ctx context.Context, c io.Closer) {
	if err := c.Close(); err != nil {
		logging.From(ctx).Warn("failed to close", logging.ErrAttr(err))
	}
}
