// submodule cmd contains command definitions
package main

import (
	"fmt"
	"strings"

	"github.com/desertthunder/sheepd/internal/formatter"
	"github.com/desertthunder/sheepd/internal/services"
	"github.com/urfave/cli/v3"
)

func jsonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print output",
			Value: true,
		},
	}
}

// setupCommand prepares the config file, cache layout and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config, cache directories, installation id and database",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Setup,
		Commands: []*cli.Command{
			{
				Name:   "rollback",
				Usage:  "Revert the latest database migration",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupRollback,
			},
		},
	}
}

// runCommand starts the long-running agent
func runCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"daemon"},
		Usage:   "Run the sync agent until interrupted",
		Flags:   []cli.Flag{configFlag()},
		Action:  r.Run,
	}
}

// syncCommand runs one catalog cycle in the foreground
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Fetch the catalog once and download missing items",
		Flags: append([]cli.Flag{
			configFlag(),
			&cli.Float64Flag{
				Name:  "budget-gb",
				Usage: "Override the cache budget for this run",
			},
			&cli.BoolFlag{
				Name:  "notify",
				Usage: "Tell the renderer to rescan the cache when done",
				Value: true,
			},
		}, jsonFlags()[0]),
		Action: r.Sync,
	}
}

// voteCommand votes on the item the renderer is showing
func voteCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "vote",
		Usage:     "Vote up or down on the playing sheep",
		ArgsUsage: "up|down",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "direction",
			},
		},
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "id",
				Usage: "Sheep id or composite key to vote on instead of asking the renderer",
			},
		},
		Action: r.Vote,
	}
}

// votesCommand manages the offline vote queue
func votesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "votes",
		Usage: "Offline vote queue",
		Commands: []*cli.Command{
			{
				Name:   "flush",
				Usage:  "Resubmit queued votes",
				Flags:  []cli.Flag{configFlag()},
				Action: r.VotesFlush,
			},
			{
				Name:   "list",
				Usage:  "List queued votes",
				Flags:  append([]cli.Flag{configFlag()}, jsonFlags()...),
				Action: r.VotesList,
			},
		},
	}
}

// cacheCommand inspects and maintains the local content cache
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and maintain the local cache",
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show cache size against its budget",
				Flags:  append([]cli.Flag{configFlag()}, jsonFlags()...),
				Action: r.CacheStatus,
			},
			{
				Name:  "evict",
				Usage: "Delete least recently played items until the cache fits its budget",
				Flags: []cli.Flag{
					configFlag(),
					&cli.Float64Flag{
						Name:  "budget-gb",
						Usage: "Evict down to this budget instead of the configured one",
					},
				},
				Action: r.CacheEvict,
			},
			{
				Name:  "reset",
				Usage: "Delete every cached item and its statistics",
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Confirm deletion",
					},
					&cli.StringFlag{
						Name:  "url",
						Usage: "Running agent to restart afterwards (default: from [server] config)",
					},
				},
				Action: r.CacheReset,
			},
			{
				Name:  "export",
				Usage: "Export the cache listing",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   fmt.Sprintf("Output format (%s)", strings.Join(formatter.Formats, ", ")),
						Value:   "txt",
					},
					&cli.StringFlag{
						Name:  "tier",
						Usage: "Only export one tier (free or gold)",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
					},
				},
				Action: r.CacheExport,
			},
		},
	}
}

// controlCommand sends a sync action to a running agent
func controlCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "control",
		Usage:     "Pause, resume or start syncing on a running agent",
		ArgsUsage: strings.Join(services.SyncActions, "|"),
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "action",
			},
		},
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "url",
				Usage: "Agent status URL (default: from [server] config)",
			},
		},
		Action: r.Control,
	}
}

// statusCommand queries a running agent
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the state of a running agent",
		Flags: append([]cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "url",
				Usage: "Agent status URL (default: from [server] config)",
			},
		}, jsonFlags()...),
		Action: r.Status,
	}
}
