package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/rlch/metagraph"
)

// Config command errors.
var (
	ErrNoStore         = errors.New("no store configured (use --uri or neo4j in .metagraph.yaml)")
	ErrNoConnectionURI = errors.New("no connection URI specified (use --uri or .metagraph.yaml)")
)

// loadConfig reads --config when given, else the nearest .metagraph.yaml.
// Without a config file the defaults apply.
func loadConfig(cmd *cli.Command) (*metagraph.Config, error) {
	if path := cmd.String("config"); path != "" {
		cfg, err := metagraph.LoadConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}

		return cfg, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}

	cfg, err := metagraph.LoadConfig(cwd)
	if errors.Is(err, metagraph.ErrConfigNotFound) {
		def := metagraph.DefaultConfig()

		return &def, nil
	}

	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return cfg, nil
}

// storeFlags are the connection flags shared by commands that open a store.
func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "uri",
			Usage:   "neo4j connection URI",
			Sources: cli.EnvVars("METAGRAPH_NEO4J_URI"),
		},
		&cli.StringFlag{
			Name:    "username",
			Aliases: []string{"u"},
			Usage:   "neo4j username",
			Sources: cli.EnvVars("METAGRAPH_NEO4J_USER"),
		},
		&cli.StringFlag{
			Name:    "password",
			Aliases: []string{"p"},
			Usage:   "neo4j password",
			Sources: cli.EnvVars("METAGRAPH_NEO4J_PASS"),
		},
		&cli.StringFlag{
			Name:    "database",
			Aliases: []string{"d"},
			Usage:   "neo4j database name",
			Sources: cli.EnvVars("METAGRAPH_NEO4J_DATABASE"),
		},
	}
}

// storeConfig resolves the store name and its settings, flags over config.
func storeConfig(cmd *cli.Command, cfg *metagraph.Config) (string, any, error) {
	neo4jCfg := &metagraph.Neo4jConfig{}
	if cfg.Neo4j != nil {
		copied := *cfg.Neo4j
		neo4jCfg = &copied
	}

	if uri := cmd.String("uri"); uri != "" {
		neo4jCfg.URI = uri
	}

	if username := cmd.String("username"); username != "" {
		neo4jCfg.Username = username
	}

	if password := cmd.String("password"); password != "" {
		neo4jCfg.Password = password
	}

	if database := cmd.String("database"); database != "" {
		neo4jCfg.Database = database
	}

	if cfg.Neo4j == nil && neo4jCfg.URI == "" {
		return "", nil, ErrNoStore
	}

	if neo4jCfg.URI == "" {
		return "", nil, ErrNoConnectionURI
	}

	return metagraph.StoreNeo4j, neo4jCfg, nil
}

// openStore creates the configured store.
func openStore(cmd *cli.Command, cfg *metagraph.Config) (metagraph.Store, error) {
	name, storeCfg, err := storeConfig(cmd, cfg)
	if err != nil {
		return nil, err
	}

	store, err := metagraph.NewStore(name, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	return store, nil
}
