// Command metagraph stages metadata models as row files and publishes them
// into a property graph.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCommand().Run(ctx, os.Args)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "metagraph:", err)
		os.Exit(1)
	}
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:  "metagraph",
		Usage: "Build and publish a metadata graph",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to .metagraph.yaml (default: nearest one above the working directory)",
				Sources: cli.EnvVars("METAGRAPH_CONFIG"),
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "enable debug logging",
				Sources: cli.EnvVars("METAGRAPH_DEBUG"),
			},
		},
		Commands: []*cli.Command{
			publishCommand(),
			stageCommand(),
			parseTypeCommand(),
			pruneCommand(),
		},
	}
}
