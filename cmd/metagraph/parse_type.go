package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/rlch/metagraph"
	"github.com/rlch/metagraph/models"
	"github.com/rlch/metagraph/typetree"
)

// ErrNoTypeString is returned when parse-type is run without a descriptor.
var ErrNoTypeString = errors.New("no type descriptor given")

func parseTypeCommand() *cli.Command {
	return &cli.Command{
		Name:      "parse-type",
		Usage:     "Parse a column type descriptor and print its type tree",
		ArgsUsage: "<type>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "column",
				Usage: "key of the owning column",
				Value: "hive://gold.db/table/col",
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "name of the root type node",
				Value: "col",
			},
			&cli.BoolFlag{
				Name:  "graph",
				Usage: "print the graph nodes and relationships instead of the tree",
			},
		},
		Action: runParseType,
	}
}

func runParseType(_ context.Context, cmd *cli.Command) error {
	typeString := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(typeString) == "" {
		return ErrNoTypeString
	}

	tree, err := models.NewTypeMetadata(cmd.String("column"), cmd.String("name"), typeString)
	if err != nil {
		return err
	}

	w := cmd.Root().Writer

	if cmd.Bool("graph") {
		return printGraph(w, tree)
	}

	if _, err := fmt.Fprintln(w, tree.String()); err != nil {
		return err
	}

	return printTree(w, tree, 0)
}

// printTree writes one line per type node, indented by depth.
func printTree(w io.Writer, n *typetree.Node, depth int) error {
	if _, err := fmt.Fprintf(w, "%s%s  %s\n", strings.Repeat("  ", depth), n.Describe(), n.Key()); err != nil {
		return err
	}

	for _, c := range n.Children {
		if err := printTree(w, c, depth+1); err != nil {
			return err
		}
	}

	return nil
}

func printGraph(w io.Writer, tree *typetree.Node) error {
	nodes, rels := metagraph.Drain(tree.Entity())

	for _, n := range nodes {
		if _, err := fmt.Fprintln(w, n); err != nil {
			return err
		}
	}

	for _, r := range rels {
		if _, err := fmt.Fprintln(w, r); err != nil {
			return err
		}
	}

	return nil
}
