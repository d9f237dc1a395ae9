// Package metagraph defines the graph data model shared by metadata producers
// and the publisher: nodes, relationships, the entity contract models implement
// to emit them, and the store protocol the publisher writes through.
package metagraph

import (
	"fmt"
	"slices"
)

// Property is a single named value on a node or relationship.
// Values are scalars (string, bool, int64, float64, nil) or lists of scalars.
type Property struct {
	Name  string
	Value any
}

// Properties is an insertion-ordered property mapping.
// Setting an existing name replaces its value in place.
type Properties []Property

// Set assigns name to value, preserving the original position of name.
func (p *Properties) Set(name string, value any) {
	for i := range *p {
		if (*p)[i].Name == name {
			(*p)[i].Value = value
			return
		}
	}

	*p = append(*p, Property{Name: name, Value: value})
}

// Get returns the value for name.
func (p Properties) Get(name string) (any, bool) {
	for _, prop := range p {
		if prop.Name == name {
			return prop.Value, true
		}
	}

	return nil, false
}

// Names returns the property names in order.
func (p Properties) Names() []string {
	names := make([]string, len(p))
	for i, prop := range p {
		names[i] = prop.Name
	}

	return names
}

// Map returns the properties as an unordered map.
func (p Properties) Map() map[string]any {
	m := make(map[string]any, len(p))
	for _, prop := range p {
		m[prop.Name] = prop.Value
	}

	return m
}

// Clone returns a shallow copy that can be mutated independently.
func (p Properties) Clone() Properties {
	return slices.Clone(p)
}

// Node is a single vertex of the metadata graph.
// Key is the globally unique identifier of the entity and must be stable
// across repeated extractions of the same logical entity.
type Node struct {
	Label      string
	Key        string
	Properties Properties
}

func (n *Node) String() string {
	return fmt.Sprintf("(%s {key: %q})", n.Label, n.Key)
}

// Relationship connects two nodes by label and key. Publishing materializes
// it as a forward edge of Type and a mirrored edge of ReverseType.
type Relationship struct {
	StartLabel  string
	StartKey    string
	EndLabel    string
	EndKey      string
	Type        string
	ReverseType string
	Properties  Properties
}

func (r *Relationship) String() string {
	return fmt.Sprintf("(%s {key: %q})-[:%s|%s]->(%s {key: %q})",
		r.StartLabel, r.StartKey, r.Type, r.ReverseType, r.EndLabel, r.EndKey)
}

// GroupKey identifies the staged group a relationship belongs to.
func (r *Relationship) GroupKey() RelationshipGroupKey {
	return RelationshipGroupKey{
		StartLabel:  r.StartLabel,
		EndLabel:    r.EndLabel,
		Type:        r.Type,
		ReverseType: r.ReverseType,
	}
}

// RelationshipGroupKey is the tuple shared by every row of a staged
// relationship group.
type RelationshipGroupKey struct {
	StartLabel  string
	EndLabel    string
	Type        string
	ReverseType string
}

func (k RelationshipGroupKey) String() string {
	return k.StartLabel + "_" + k.EndLabel + "_" + k.Type
}
