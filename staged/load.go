package staged

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Load reads every staged file of src. Files are parsed concurrently, at most
// parallelism at a time (GOMAXPROCS when not positive), but groups are
// returned sorted by file name so publishing order does not depend on
// scheduling.
func Load(ctx context.Context, src Source, parallelism int) (*Stage, error) {
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}

	nodeFiles, err := src.Files(ctx, KindNodes)
	if err != nil {
		return nil, err
	}

	relFiles, err := src.Files(ctx, KindRelationships)
	if err != nil {
		return nil, err
	}

	s := &Stage{
		Nodes:         make([]*NodeGroup, len(nodeFiles)),
		Relationships: make([]*RelationshipGroup, len(relFiles)),
	}

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(parallelism)

	for i, f := range nodeFiles {
		eg.Go(func() error {
			g, err := readFile(gCtx, src, f, ReadNodes)
			if err != nil {
				return err
			}

			s.Nodes[i] = g

			return nil
		})
	}

	for i, f := range relFiles {
		eg.Go(func() error {
			g, err := readFile(gCtx, src, f, ReadRelationships)
			if err != nil {
				return err
			}

			s.Relationships[i] = g

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	s.Nodes = compact(s.Nodes, func(g *NodeGroup) bool { return len(g.Nodes) == 0 })
	s.Relationships = compact(s.Relationships, func(g *RelationshipGroup) bool { return len(g.Relationships) == 0 })

	sort.SliceStable(s.Nodes, func(i, j int) bool { return s.Nodes[i].Name < s.Nodes[j].Name })
	sort.SliceStable(s.Relationships, func(i, j int) bool { return s.Relationships[i].Name < s.Relationships[j].Name })

	return s, nil
}

func readFile[G any](ctx context.Context, src Source, f File, read func(string, io.Reader) (G, error)) (G, error) {
	var zero G

	if err := ctx.Err(); err != nil {
		return zero, err
	}

	rc, err := src.Open(ctx, f)
	if err != nil {
		return zero, fmt.Errorf("staged: opening %s: %w", f.Name, err)
	}
	defer rc.Close()

	return read(f.Name, rc)
}

// compact drops header-only groups.
func compact[G any](groups []G, empty func(G) bool) []G {
	out := groups[:0]

	for _, g := range groups {
		if !empty(g) {
			out = append(out, g)
		}
	}

	return out
}
