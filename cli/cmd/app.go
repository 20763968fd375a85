package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/ndarchive/types"
)

// NewApp builds the ndarchive CLI. The caller installs the exit handler.
func NewApp(commit string) *cli.App {
	return &cli.App{
		Name:      "ndarchive",
		Usage:     "Rebuild a local NDJSON archive from published compressed chunks",
		UsageText: "ndarchive [options] [archive] [-r]\nndarchive history [options] [archive]\nndarchive version",
		ArgsUsage: "[archive]",
		Version:   fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		Flags:     SyncFlags(),
		Action:    SyncAction,
		Commands: []*cli.Command{
			HistoryCommand(),
			VersionCommand(commit),
		},
	}
}
