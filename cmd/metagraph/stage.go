package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rlch/metagraph"
	"github.com/rlch/metagraph/models"
	"github.com/rlch/metagraph/staged"
)

// Stage command errors.
var (
	ErrNoCatalogFiles = errors.New("no catalog files given")
	ErrNoOutputDir    = errors.New("no output directory specified (use --out or staged.dir in .metagraph.yaml)")
)

// catalog is the YAML description of the models to stage.
type catalog struct {
	Tables       []*models.Table       `yaml:"tables,omitempty"`
	Dashboards   []*models.Dashboard   `yaml:"dashboards,omitempty"`
	Tags         []*models.Tag         `yaml:"tags,omitempty"`
	Badges       []*models.Badges      `yaml:"badges,omitempty"`
	Descriptions []*models.Description `yaml:"descriptions,omitempty"`
}

// readCatalog decodes a catalog, rejecting unknown fields.
func readCatalog(r io.Reader) (*catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var c catalog

	err := dec.Decode(&c)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	return &c, nil
}

// entities returns one serialization pass per model, in file order.
func (c *catalog) entities(logger *zap.Logger) []metagraph.Entity {
	var out []metagraph.Entity

	for _, t := range c.Tables {
		t.Logger = logger
		out = append(out, t.Entity())
	}

	for _, d := range c.Dashboards {
		out = append(out, d.Entity())
	}

	for _, t := range c.Tags {
		out = append(out, t.Entity())
	}

	for _, b := range c.Badges {
		out = append(out, b.Entity())
	}

	for _, d := range c.Descriptions {
		out = append(out, d.Entity())
	}

	return out
}

func stageCommand() *cli.Command {
	return &cli.Command{
		Name:      "stage",
		Usage:     "Serialize a YAML catalog of tables and dashboards into staged row files",
		ArgsUsage: "<catalog.yaml...>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "output directory (default: staged.dir from config)",
			},
		},
		Action: runStage,
	}
}

func runStage(_ context.Context, cmd *cli.Command) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	files := cmd.Args().Slice()
	if len(files) == 0 {
		return ErrNoCatalogFiles
	}

	out := cmd.String("out")
	if out == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		out = cfg.Staged.Dir
	}

	if out == "" {
		return ErrNoOutputDir
	}

	var entities []metagraph.Entity

	for _, file := range files {
		c, err := loadCatalog(file)
		if err != nil {
			return err
		}

		entities = append(entities, c.entities(logger.With(zap.String("catalog", file)))...)
	}

	stage, err := staged.FromEntities(entities...)
	if err != nil {
		return fmt.Errorf("staging: %w", err)
	}

	if err := staged.Write(out, stage); err != nil {
		return err
	}

	logger.Info("stage written",
		zap.String("dir", out),
		zap.Int("entities", len(entities)),
		zap.Int("node_groups", len(stage.Nodes)),
		zap.Int("relationship_groups", len(stage.Relationships)),
	)

	_, err = fmt.Fprintf(cmd.Root().Writer, "staged %d nodes and %d relationships in %s\n",
		stage.NodeCount(), stage.RelationshipCount(), out)

	return err
}

func loadCatalog(path string) (*catalog, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	c, err := readCatalog(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return c, nil
}
