package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/m-mizutani/concierge/pkg/model"
	"github.com/m-mizutani/concierge/pkg/repository"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func stateCommand() *cli.Command {
	return &cli.Command{
		Name:  "state",
		Usage: "Inspect and update the agent state of a session",
		Commands: []*cli.Command{
			stateShowCommand(),
			stateInitCommand(),
			stateCRMCommand(),
			stateQualifyCommand(),
			stateCompleteCommand(),
		},
	}
}

func sessionIDFlag(dst *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "session-id",
		Aliases:     []string{"s"},
		Usage:       "Session ID",
		Sources:     cli.EnvVars("CONCIERGE_SESSION_ID"),
		Destination: dst,
		Required:    true,
	}
}

func stateShowCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
	)

	flags := []cli.Flag{sessionIDFlag(&sessionID)}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "show",
		Usage: "Print the agent state as JSON",
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

			state, err := repo.LoadState(ctx, model.SessionID(sessionID).StateID())
			if err != nil {
				return goerr.Wrap(err, "failed to load state", goerr.V("session_id", sessionID))
			}

			return printJSON(c.Root().Writer, state)
		},
	}
}

func stateInitCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
		force     bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "session-id",
			Aliases:     []string{"s"},
			Usage:       "Session ID (generated if empty)",
			Destination: &sessionID,
		},
		&cli.BoolFlag{
			Name:        "force",
			Aliases:     []string{"f"},
			Usage:       "Overwrite an existing state with an empty one",
			Destination: &force,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "init",
		Usage: "Create an empty agent state for a session",
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

			id := model.SessionID(sessionID)
			if id == "" {
				id = model.NewSessionID()
			}

			if !force {
				_, err := repo.LoadState(ctx, id.StateID())
				if err == nil {
					return goerr.New("state already exists, use --force to overwrite", goerr.V("session_id", id))
				}
				if !errors.Is(err, repository.ErrNotFound) {
					return goerr.Wrap(err, "failed to look up state", goerr.V("session_id", id))
				}
			}

			if err := repo.SaveState(ctx, id.StateID(), model.NewAgentState()); err != nil {
				return goerr.Wrap(err, "failed to save state", goerr.V("session_id", id))
			}

			return printJSON(c.Root().Writer, map[string]model.SessionID{"session_id": id})
		},
	}
}

func stateCRMCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
		input     string
	)

	flags := []cli.Flag{
		sessionIDFlag(&sessionID),
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Path to JSON file with the CRM record ('-' reads stdin)",
			Value:       "-",
			Destination: &input,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, agentFlags(&cfg)...)

	return &cli.Command{
		Name:  "crm",
		Usage: "Load a CRM record into the session",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			data, err := readInput(input)
			if err != nil {
				return err
			}

			var crm model.CRMData
			if err := json.Unmarshal(data, &crm); err != nil {
				return goerr.Wrap(err, "failed to parse CRM record", goerr.V("input", input))
			}

			return dispatch(ctx, c, &cfg, sessionID, model.CRMDataLoaded{Data: &crm})
		},
	}
}

func stateQualifyCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
		score     float64
	)

	flags := []cli.Flag{
		sessionIDFlag(&sessionID),
		&cli.FloatFlag{
			Name:        "score",
			Usage:       "Qualification score (clamped to 0-100)",
			Destination: &score,
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, agentFlags(&cfg)...)

	return &cli.Command{
		Name:  "qualify",
		Usage: "Update the qualification score and derive next actions",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			return dispatch(ctx, c, &cfg, sessionID, model.QualificationUpdated{Score: score})
		},
	}
}

func stateCompleteCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
		actionID  string
	)

	flags := []cli.Flag{
		sessionIDFlag(&sessionID),
		&cli.StringFlag{
			Name:        "action-id",
			Aliases:     []string{"a"},
			Usage:       "ID of the pending action to remove",
			Destination: &actionID,
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, agentFlags(&cfg)...)

	return &cli.Command{
		Name:  "complete",
		Usage: "Mark a pending next action as completed",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			return dispatch(ctx, c, &cfg, sessionID, model.ActionCompleted{ActionID: model.ActionID(actionID)})
		},
	}
}

// dispatch applies action to the session state and prints the new state
func dispatch(ctx context.Context, c *cli.Command, cfg *config, sessionID string, action model.Action) error {
	ctx, err := cfg.setupLogger(ctx)
	if err != nil {
		return err
	}

	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return err
	}
	defer safeClose(ctx, repo)

	executor, err := cfg.newExecutor(ctx, repo)
	if err != nil {
		return err
	}

	state, err := executor.Dispatch(ctx, model.SessionID(sessionID).StateID(), action)
	if err != nil {
		return err
	}

	return printJSON(c.Root().Writer, state)
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read stdin")
		}
		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read file", goerr.V("path", path))
	}
	return data, nil
}
