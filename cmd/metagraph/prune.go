package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/rlch/metagraph"
	"github.com/rlch/metagraph/prune"
)

// ErrPruneUnsupported is returned when the store cannot remove stale data.
var ErrPruneUnsupported = errors.New("store does not support pruning")

func pruneCommand() *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Delete nodes not published by the given job",
		Flags: append(storeFlags(),
			&cli.StringFlag{
				Name:    "tag",
				Aliases: []string{"t"},
				Usage:   "publish tag of the job whose nodes are kept",
				Sources: cli.EnvVars("METAGRAPH_PUBLISH_TAG"),
			},
			&cli.StringSliceFlag{
				Name:    "label",
				Aliases: []string{"l"},
				Usage:   "label to prune (repeatable, default: prune.labels from config)",
			},
			&cli.FloatFlag{
				Name:  "max-stale-pct",
				Usage: "refuse to prune a label with more stale nodes than this percentage",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "count stale nodes without deleting them",
			},
		),
		Action: runPrune,
	}
}

func runPrune(ctx context.Context, cmd *cli.Command) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	pruneCfg := cfg.Prune
	if labels := cmd.StringSlice("label"); len(labels) > 0 {
		pruneCfg.Labels = labels
	}

	if cmd.IsSet("max-stale-pct") {
		pruneCfg.MaxStalePct = cmd.Float("max-stale-pct")
	}

	tag := cmd.String("tag")
	if tag == "" {
		tag = cfg.Publisher.JobPublishTag
	}

	if tag == "" {
		return metagraph.NewConfigError("job_publish_tag", "required for pruning (use --tag)")
	}

	store, err := openStore(cmd, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	staleStore, ok := store.(metagraph.StaleStore)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPruneUnsupported, store.Name())
	}

	p, err := prune.New(staleStore, pruneCfg,
		prune.WithLogger(logger),
		prune.WithDryRun(cmd.Bool("dry-run")),
	)
	if err != nil {
		return err
	}

	results, err := p.Prune(ctx, tag)
	printPruneResults(cmd.Root().Writer, results, cmd.Bool("dry-run"))

	return err
}

func printPruneResults(w io.Writer, results []prune.LabelResult, dryRun bool) {
	for _, r := range results {
		if dryRun {
			_, _ = fmt.Fprintf(w, "%-24s %d/%d stale (%.1f%%)\n", r.Label, r.Stale, r.Total, r.Pct())

			continue
		}

		_, _ = fmt.Fprintf(w, "%-24s %d/%d stale (%.1f%%), %d deleted\n", r.Label, r.Stale, r.Total, r.Pct(), r.Deleted)
	}
}
