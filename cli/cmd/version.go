package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/mediasync/cli/render"
	"github.com/pithecene-io/mediasync/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version         string `json:"version"`
	ProtocolVersion int    `json:"protocol_version"`
	Commit          string `json:"commit"`
}

// VersionCommand returns the version command.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Flags: ReadOnlyFlags(),
		Action: func(c *cli.Context) error {
			if c.Bool("tui") {
				return cli.Exit("--tui is not supported for version command", exitUsage)
			}
			r, err := render.NewRenderer(c)
			if err != nil {
				return cli.Exit(err.Error(), exitUsage)
			}
			return r.Render(VersionResponse{
				Version:         types.Version,
				ProtocolVersion: types.ProtocolVersion,
				Commit:          commit,
			})
		},
	}
}
