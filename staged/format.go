// Package staged implements the flat row format that sits between metadata
// producers and the publisher.
//
// A stage is a directory with two subdirectories. nodes/ holds one CSV file
// per label and property set:
//
//	LABEL,KEY,name,sort_order:UNQUOTED
//	Column,hive://gold.core/users/id,id,0
//
// relationships/ holds one CSV file per (start label, end label, type,
// reverse type) tuple:
//
//	START_LABEL,START_KEY,END_LABEL,END_KEY,TYPE,REVERSE_TYPE
//	Table,hive://gold.core/users,Column,hive://gold.core/users/id,COLUMN,COLUMN_OF
//
// Columns suffixed with :UNQUOTED hold typed literals (numbers, booleans,
// null and lists of those or of quoted strings); every other property column
// is a string.
package staged

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rlch/metagraph"
)

// Reserved header columns.
const (
	ColLabel       = "LABEL"
	ColKey         = "KEY"
	ColStartLabel  = "START_LABEL"
	ColStartKey    = "START_KEY"
	ColEndLabel    = "END_LABEL"
	ColEndKey      = "END_KEY"
	ColType        = "TYPE"
	ColReverseType = "REVERSE_TYPE"

	// UnquotedSuffix marks a property column holding typed literals.
	UnquotedSuffix = ":UNQUOTED"
)

// Stage subdirectories.
const (
	NodesDir         = "nodes"
	RelationshipsDir = "relationships"
)

var nodeReserved = []string{ColLabel, ColKey}

var relReserved = []string{ColStartLabel, ColStartKey, ColEndLabel, ColEndKey, ColType, ColReverseType}

// ErrFormat is returned for staged files that do not follow the row format.
var ErrFormat = errors.New("staged: malformed staged file")

// FormatError locates a problem in a staged file. Line is 1-based and zero
// when the problem is not tied to a line.
type FormatError struct {
	File string
	Line int
	Err  error
}

func (e *FormatError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("staged: %s: %v", e.File, e.Err)
	}

	return fmt.Sprintf("staged: %s:%d: %v", e.File, e.Line, e.Err)
}

func (e *FormatError) Unwrap() []error {
	return []error{ErrFormat, e.Err}
}

// Column is a property column of a staged file.
type Column struct {
	Name     string
	Unquoted bool
}

// Header returns the header cell for c.
func (c Column) Header() string {
	if c.Unquoted {
		return c.Name + UnquotedSuffix
	}

	return c.Name
}

func parseColumn(cell string) (Column, error) {
	c := Column{Name: cell}
	if name, ok := strings.CutSuffix(cell, UnquotedSuffix); ok {
		c = Column{Name: name, Unquoted: true}
	}

	if err := metagraph.ValidateName(c.Name); err != nil {
		return Column{}, err
	}

	return c, nil
}

// ColumnNames returns the property names of cols in order.
func ColumnNames(cols []Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}

	return names
}

// NodeGroup is the content of one node file. Every node shares Label and
// carries exactly the properties named by Columns, in that order.
type NodeGroup struct {
	Name    string
	Label   string
	Columns []Column
	Nodes   []*metagraph.Node
}

// Names returns the allow-listed names of the group: its label and property
// names. Only these may be interpolated into statement text.
func (g *NodeGroup) Names() []string {
	return append([]string{g.Label}, ColumnNames(g.Columns)...)
}

// RelationshipGroup is the content of one relationship file.
type RelationshipGroup struct {
	Name          string
	Key           metagraph.RelationshipGroupKey
	Columns       []Column
	Relationships []*metagraph.Relationship
}

// Names returns the allow-listed names of the group.
func (g *RelationshipGroup) Names() []string {
	return append([]string{g.Key.StartLabel, g.Key.EndLabel, g.Key.Type, g.Key.ReverseType},
		ColumnNames(g.Columns)...)
}

// Stage is a complete set of staged groups, ready to publish.
type Stage struct {
	Nodes         []*NodeGroup
	Relationships []*RelationshipGroup
}

// NodeCount returns the number of staged node rows.
func (s *Stage) NodeCount() int {
	n := 0
	for _, g := range s.Nodes {
		n += len(g.Nodes)
	}

	return n
}

// RelationshipCount returns the number of staged relationship rows.
func (s *Stage) RelationshipCount() int {
	n := 0
	for _, g := range s.Relationships {
		n += len(g.Relationships)
	}

	return n
}

// Labels returns the distinct node labels of the stage in first-seen order.
func (s *Stage) Labels() []string {
	var labels []string

	seen := metagraph.NewSeen()
	for _, g := range s.Nodes {
		if seen.Mark(g.Label) {
			labels = append(labels, g.Label)
		}
	}

	return labels
}
