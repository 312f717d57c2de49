package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// Version is overwritten at build time
var Version = "dev"

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:    "concierge",
		Usage:   "Website concierge agent for visitor conversations",
		Version: Version,
		Commands: []*cli.Command{
			chatCommand(),
			sendCommand(),
			stateCommand(),
			analyticsCommand(),
			transcriptCommand(),
			mcpCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to marshal output")
	}
	if _, err := fmt.Fprintln(w, string(data)); err != nil {
		return goerr.Wrap(err, "failed to write output")
	}
	return nil
}
