package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/rlch/metagraph"
	_ "github.com/rlch/metagraph/databases/neo4j"
	"github.com/rlch/metagraph/publisher"
	"github.com/rlch/metagraph/staged"
)

// Publish command errors.
var (
	ErrNoStagedSource = errors.New("no staged source specified (pass a directory, use --s3-bucket or set staged in .metagraph.yaml)")
	ErrUnknownFormat  = errors.New("unknown output format")
)

var outputFormats = []string{"tui", "dots", "verbose", "json"}

func publishCommand() *cli.Command {
	return &cli.Command{
		Name:      "publish",
		Usage:     "Publish staged rows into the graph",
		ArgsUsage: "[staged dir]",
		Flags: append(storeFlags(),
			&cli.StringFlag{
				Name:  "s3-bucket",
				Usage: "read staged files from this bucket instead of a directory",
			},
			&cli.StringFlag{
				Name:  "s3-prefix",
				Usage: "key prefix of the staged files in the bucket",
			},
			&cli.StringFlag{
				Name:  "s3-region",
				Usage: "bucket region",
			},
			&cli.StringFlag{
				Name:  "s3-endpoint",
				Usage: "S3-compatible endpoint URL",
			},
			&cli.IntFlag{
				Name:  "parallelism",
				Usage: "staged files parsed concurrently (default: one per CPU)",
			},
			&cli.StringFlag{
				Name:    "tag",
				Aliases: []string{"t"},
				Usage:   "job publish tag stamped on every node and edge",
				Sources: cli.EnvVars("METAGRAPH_PUBLISH_TAG"),
			},
			&cli.BoolFlag{
				Name:  "auto-tag",
				Usage: "generate a random publish tag when none is given",
			},
			&cli.IntFlag{
				Name:  "transaction-size",
				Usage: "rows per batch transaction",
			},
			&cli.StringSliceFlag{
				Name:  "create-only",
				Usage: "node label never updated once created (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "reverse",
				Usage: "publish reverse relationships",
				Value: true,
			},
			&cli.BoolFlag{
				Name:  "metadata",
				Usage: "stamp published_tag and publisher_last_updated_epoch_ms",
				Value: true,
			},
			&cli.BoolFlag{
				Name:  "preserve-adhoc",
				Usage: "leave nodes never stamped by a publisher untouched",
			},
			&cli.BoolFlag{
				Name:  "preserve-empty",
				Usage: "store empty string values instead of dropping them",
				Value: true,
			},
			&cli.IntFlag{
				Name:  "missing-limit",
				Usage: "abort after this many relationships with missing endpoints (0: never)",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "output format: tui, dots, verbose or json (default: tui on a terminal, dots otherwise)",
			},
		),
		Action: runPublish,
	}
}

func runPublish(ctx context.Context, cmd *cli.Command) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	pubCfg := publisherConfig(cmd, cfg.Publisher)
	if pubCfg.JobPublishTag == "" && cmd.Bool("auto-tag") {
		pubCfg.JobPublishTag = uuid.NewString()
		logger.Info("generated publish tag", zap.String("tag", pubCfg.JobPublishTag))
	}

	// Fail on settings before touching the network.
	if err := pubCfg.Validate(); err != nil {
		return err
	}

	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	src, err := stagedSource(ctx, cmd, cfg.Staged)
	if err != nil {
		return err
	}

	parallelism := cfg.Staged.Parallelism
	if cmd.IsSet("parallelism") {
		parallelism = int(cmd.Int("parallelism"))
	}

	stage, err := staged.Load(ctx, src, parallelism)
	if err != nil {
		return fmt.Errorf("loading staged rows: %w", err)
	}

	logger.Debug("stage loaded",
		zap.Int("node_groups", len(stage.Nodes)),
		zap.Int("nodes", stage.NodeCount()),
		zap.Int("relationship_groups", len(stage.Relationships)),
		zap.Int("relationships", stage.RelationshipCount()),
	)

	store, err := openStore(cmd, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	handler, err := outputHandler(format, stage)
	if err != nil {
		return err
	}

	pub, err := publisher.New(store, pubCfg,
		publisher.WithHandler(handler),
		publisher.WithLogger(logger),
		publisher.WithMissingLimit(int(cmd.Int("missing-limit"))),
	)
	if err != nil {
		return err
	}

	result, err := pub.Publish(ctx, stage)
	if result == nil {
		// Rejected before any event; still let the TUI shut down.
		result = publisher.NewResult()
		result.Add(publisher.Event{Action: publisher.ActionFailed, Phase: publisher.PhaseFailed, Error: err})
		result.Finish()
	}

	if s, ok := handler.(summarizer); ok {
		_ = s.Summary(result)
	}

	if !result.Ok() {
		return cli.Exit("", 1)
	}

	return nil
}

type summarizer interface {
	Summary(result *publisher.Result) error
}

// publisherConfig applies the flags that were set over the configured
// publisher settings.
func publisherConfig(cmd *cli.Command, cfg metagraph.PublisherConfig) metagraph.PublisherConfig {
	if tag := cmd.String("tag"); tag != "" {
		cfg.JobPublishTag = tag
	}

	if cmd.IsSet("transaction-size") {
		cfg.TransactionSize = int(cmd.Int("transaction-size"))
	}

	if labels := cmd.StringSlice("create-only"); len(labels) > 0 {
		cfg.CreateOnlyLabels = slices.Concat(cfg.CreateOnlyLabels, labels)
	}

	if cmd.IsSet("reverse") {
		cfg.PublishReverseRelationships = cmd.Bool("reverse")
	}

	if cmd.IsSet("metadata") {
		cfg.AddPublisherMetadata = cmd.Bool("metadata")
	}

	if cmd.IsSet("preserve-adhoc") {
		cfg.PreserveAdhocUIData = cmd.Bool("preserve-adhoc")
	}

	if cmd.IsSet("preserve-empty") {
		cfg.PreserveEmptyProps = cmd.Bool("preserve-empty")
	}

	return cfg
}

func outputFormat(cmd *cli.Command) (string, error) {
	format := cmd.String("format")
	if format == "" {
		if isatty.IsTerminal(os.Stdout.Fd()) {
			return "tui", nil
		}

		return "dots", nil
	}

	if !slices.Contains(outputFormats, format) {
		return "", fmt.Errorf("%w: %s (available: %v)", ErrUnknownFormat, format, outputFormats)
	}

	return format, nil
}

func outputHandler(format string, stage *staged.Stage) (publisher.Handler, error) {
	if format != "tui" {
		return publisher.NewFormatHandler(publisher.NewFormatter(format, os.Stdout), os.Stderr), nil
	}

	handler := publisher.NewTUIHandler(os.Stdout, os.Stderr, stage)

	if err := handler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start TUI: %w", err)
	}

	return handler, nil
}

// stagedSource picks the staged source: a bucket flag, a directory argument,
// then the config.
func stagedSource(ctx context.Context, cmd *cli.Command, cfg metagraph.StagedConfig) (staged.Source, error) {
	if bucket := cmd.String("s3-bucket"); bucket != "" {
		s3Cfg := &metagraph.S3Config{
			Bucket:   bucket,
			Prefix:   cmd.String("s3-prefix"),
			Region:   cmd.String("s3-region"),
			Endpoint: cmd.String("s3-endpoint"),
		}
		if cfg.S3 != nil {
			s3Cfg.AccessKey = cfg.S3.AccessKey
			s3Cfg.SecretKey = cfg.S3.SecretKey
		}

		return staged.NewS3Source(ctx, s3Cfg)
	}

	if dir := cmd.Args().First(); dir != "" {
		return &staged.DirSource{Root: dir}, nil
	}

	if cfg.S3 != nil {
		return staged.NewS3Source(ctx, cfg.S3)
	}

	if cfg.Dir != "" {
		return &staged.DirSource{Root: cfg.Dir}, nil
	}

	return nil, ErrNoStagedSource
}
