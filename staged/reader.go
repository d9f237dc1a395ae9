package staged

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/rlch/metagraph"
)

// header splits a staged header into reserved column positions and property
// columns.
type header struct {
	reserved map[string]int
	props    []Column
	propIdx  []int
}

func parseHeader(cells, reserved []string) (*header, error) {
	h := &header{reserved: make(map[string]int, len(reserved))}
	seen := make(map[string]bool, len(cells))

	for i, cell := range cells {
		if slices.Contains(reserved, cell) {
			if _, dup := h.reserved[cell]; dup {
				return nil, fmt.Errorf("duplicate column %s", cell)
			}

			h.reserved[cell] = i

			continue
		}

		col, err := parseColumn(cell)
		if err != nil {
			return nil, err
		}

		if seen[col.Name] || col.Name == metagraph.PropKey {
			return nil, fmt.Errorf("duplicate or reserved property %s", col.Name)
		}

		seen[col.Name] = true
		h.props = append(h.props, col)
		h.propIdx = append(h.propIdx, i)
	}

	for _, r := range reserved {
		if _, ok := h.reserved[r]; !ok {
			return nil, fmt.Errorf("missing column %s", r)
		}
	}

	return h, nil
}

func (h *header) properties(record []string) (metagraph.Properties, error) {
	props := make(metagraph.Properties, 0, len(h.props))

	for i, col := range h.props {
		raw := record[h.propIdx[i]]

		var value any = raw
		if col.Unquoted {
			v, err := ParseLiteral(raw)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", col.Header(), err)
			}

			value = v
		}

		props = append(props, metagraph.Property{Name: col.Name, Value: value})
	}

	return props, nil
}

type recordReader struct {
	name string
	csv  *csv.Reader
	line int
}

func newRecordReader(name string, r io.Reader) *recordReader {
	return &recordReader{name: name, csv: csv.NewReader(r)}
}

// next returns the next record, or io.EOF.
func (r *recordReader) next() ([]string, error) {
	record, err := r.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}

		return nil, r.errorf("%w", err)
	}

	r.line, _ = r.csv.FieldPos(0)

	return record, nil
}

func (r *recordReader) errorf(format string, args ...any) error {
	return &FormatError{File: r.name, Line: r.line, Err: fmt.Errorf(format, args...)}
}

func (r *recordReader) header(reserved []string) (*header, error) {
	cells, err := r.next()
	if errors.Is(err, io.EOF) {
		return nil, r.errorf("empty file")
	}

	if err != nil {
		return nil, err
	}

	h, err := parseHeader(cells, reserved)
	if err != nil {
		return nil, r.errorf("header: %w", err)
	}

	return h, nil
}

// ReadNodes parses a staged node file. name identifies the file in errors
// and becomes the group name.
func ReadNodes(name string, r io.Reader) (*NodeGroup, error) {
	rr := newRecordReader(name, r)

	h, err := rr.header(nodeReserved)
	if err != nil {
		return nil, err
	}

	g := &NodeGroup{Name: name, Columns: h.props}

	for {
		record, err := rr.next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, err
		}

		label := record[h.reserved[ColLabel]]
		key := record[h.reserved[ColKey]]

		switch {
		case g.Label == "":
			if err := metagraph.ValidateName(label); err != nil {
				return nil, rr.errorf("%w", err)
			}

			g.Label = label
		case label != g.Label:
			return nil, rr.errorf("label %s differs from %s", label, g.Label)
		}

		if key == "" {
			return nil, rr.errorf("empty %s", ColKey)
		}

		props, err := h.properties(record)
		if err != nil {
			return nil, rr.errorf("%w", err)
		}

		g.Nodes = append(g.Nodes, &metagraph.Node{Label: label, Key: key, Properties: props})
	}

	return g, nil
}

// ReadRelationships parses a staged relationship file.
func ReadRelationships(name string, r io.Reader) (*RelationshipGroup, error) {
	rr := newRecordReader(name, r)

	h, err := rr.header(relReserved)
	if err != nil {
		return nil, err
	}

	g := &RelationshipGroup{Name: name, Columns: h.props}

	for {
		record, err := rr.next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, err
		}

		rel := &metagraph.Relationship{
			StartLabel:  record[h.reserved[ColStartLabel]],
			StartKey:    record[h.reserved[ColStartKey]],
			EndLabel:    record[h.reserved[ColEndLabel]],
			EndKey:      record[h.reserved[ColEndKey]],
			Type:        record[h.reserved[ColType]],
			ReverseType: record[h.reserved[ColReverseType]],
		}

		key := rel.GroupKey()

		switch {
		case len(g.Relationships) == 0:
			for _, n := range []string{key.StartLabel, key.EndLabel, key.Type, key.ReverseType} {
				if err := metagraph.ValidateName(n); err != nil {
					return nil, rr.errorf("%w", err)
				}
			}

			g.Key = key
		case key != g.Key:
			return nil, rr.errorf("relationship %s differs from %s", key, g.Key)
		}

		if rel.StartKey == "" || rel.EndKey == "" {
			return nil, rr.errorf("empty %s or %s", ColStartKey, ColEndKey)
		}

		props, err := h.properties(record)
		if err != nil {
			return nil, rr.errorf("%w", err)
		}

		rel.Properties = props
		g.Relationships = append(g.Relationships, rel)
	}

	return g, nil
}
