package staged

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rlch/metagraph"
)

// FromEntities drains entities, every node of every entity before any
// relationship, and groups the rows the way they are staged: one node group
// per label and property set, one relationship group per relationship tuple
// and property set. Groups keep first-seen order.
func FromEntities(entities ...metagraph.Entity) (*Stage, error) {
	nodes, rels := metagraph.Drain(entities...)

	s := &Stage{}
	names := newGroupNamer()

	nodeGroups := map[string]*NodeGroup{}

	for _, n := range nodes {
		if err := validateNames(n.Label, n.Properties); err != nil {
			return nil, fmt.Errorf("staged: node %s: %w", n, err)
		}

		cols := columnsOf(n.Properties)
		sig := n.Label + "|" + signature(cols)

		g, ok := nodeGroups[sig]
		if !ok {
			g = &NodeGroup{Name: names.next(n.Label), Label: n.Label, Columns: cols}
			nodeGroups[sig] = g
			s.Nodes = append(s.Nodes, g)
		}

		g.Nodes = append(g.Nodes, n)
	}

	relGroups := map[string]*RelationshipGroup{}

	for _, r := range rels {
		if err := validateNames(r.StartLabel, r.Properties, r.EndLabel, r.Type, r.ReverseType); err != nil {
			return nil, fmt.Errorf("staged: relationship %s: %w", r, err)
		}

		key := r.GroupKey()
		cols := columnsOf(r.Properties)
		sig := key.String() + "|" + key.ReverseType + "|" + signature(cols)

		g, ok := relGroups[sig]
		if !ok {
			g = &RelationshipGroup{Name: names.next(key.String()), Key: key, Columns: cols}
			relGroups[sig] = g
			s.Relationships = append(s.Relationships, g)
		}

		g.Relationships = append(g.Relationships, r)
	}

	return s, nil
}

func validateNames(label string, props metagraph.Properties, more ...string) error {
	for _, name := range append(append([]string{label}, more...), props.Names()...) {
		if err := metagraph.ValidateName(name); err != nil {
			return err
		}
	}

	return nil
}

type groupNamer map[string]int

func newGroupNamer() groupNamer {
	return groupNamer{}
}

func (n groupNamer) next(prefix string) string {
	i := n[prefix]
	n[prefix]++

	return prefix + "_" + strconv.Itoa(i) + ".csv"
}

func columnsOf(props metagraph.Properties) []Column {
	cols := make([]Column, len(props))
	for i, p := range props {
		_, quoted := p.Value.(string)
		cols[i] = Column{Name: p.Name, Unquoted: !quoted}
	}

	return cols
}

func signature(cols []Column) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c.Header()
	}

	return strings.Join(parts, ",")
}

// Write stores s under dir, one file per group. Existing files with the same
// names are replaced.
func Write(dir string, s *Stage) error {
	for _, sub := range []string{NodesDir, RelationshipsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("staged: creating %s: %w", sub, err)
		}
	}

	for _, g := range s.Nodes {
		if err := writeFile(filepath.Join(dir, NodesDir, g.Name), func(w io.Writer) error {
			return WriteNodes(w, g)
		}); err != nil {
			return err
		}
	}

	for _, g := range s.Relationships {
		if err := writeFile(filepath.Join(dir, RelationshipsDir, g.Name), func(w io.Writer) error {
			return WriteRelationships(w, g)
		}); err != nil {
			return err
		}
	}

	return nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("staged: %w", err)
	}

	if err := fn(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("staged: writing %s: %w", path, err)
	}

	return f.Close()
}

// WriteNodes writes g in the staged node format.
func WriteNodes(w io.Writer, g *NodeGroup) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(headerCells(nodeReserved, g.Columns)); err != nil {
		return err
	}

	for _, n := range g.Nodes {
		record, err := recordOf([]string{n.Label, n.Key}, g.Columns, n.Properties)
		if err != nil {
			return fmt.Errorf("node %s: %w", n.Key, err)
		}

		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}

// WriteRelationships writes g in the staged relationship format.
func WriteRelationships(w io.Writer, g *RelationshipGroup) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(headerCells(relReserved, g.Columns)); err != nil {
		return err
	}

	for _, r := range g.Relationships {
		reserved := []string{r.StartLabel, r.StartKey, r.EndLabel, r.EndKey, r.Type, r.ReverseType}

		record, err := recordOf(reserved, g.Columns, r.Properties)
		if err != nil {
			return fmt.Errorf("relationship %s: %w", r, err)
		}

		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}

func headerCells(reserved []string, cols []Column) []string {
	cells := append([]string(nil), reserved...)
	for _, c := range cols {
		cells = append(cells, c.Header())
	}

	return cells
}

func recordOf(reserved []string, cols []Column, props metagraph.Properties) ([]string, error) {
	record := append([]string(nil), reserved...)

	for _, c := range cols {
		v, _ := props.Get(c.Name)

		if !c.Unquoted {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("property %s: %T in a string column", c.Name, v)
			}

			record = append(record, s)

			continue
		}

		s, err := FormatLiteral(v)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", c.Name, err)
		}

		record = append(record, s)
	}

	return record, nil
}
