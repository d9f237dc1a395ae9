package models

import (
	"slices"

	"github.com/rlch/metagraph"
)

// DefaultTagType is the tag_type of tags attached by connectors.
const DefaultTagType = "default"

func nameNode(label, key, name string) *metagraph.Node {
	return &metagraph.Node{
		Label:      label,
		Key:        key,
		Properties: metagraph.Properties{{Name: "name", Value: name}},
	}
}

func link(startLabel, startKey, endLabel, endKey, typ, reverse string) *metagraph.Relationship {
	return &metagraph.Relationship{
		StartLabel:  startLabel,
		StartKey:    startKey,
		EndLabel:    endLabel,
		EndKey:      endKey,
		Type:        typ,
		ReverseType: reverse,
	}
}

func descriptionNodes(key, text string, programmatic []ProgrammaticDescription) []*metagraph.Node {
	var out []*metagraph.Node

	if text != "" {
		out = append(out, metagraph.DescriptionNode(key, "", text))
	}

	for _, d := range programmatic {
		if d.Text != "" {
			out = append(out, metagraph.DescriptionNode(key, d.Source, d.Text))
		}
	}

	return out
}

func descriptionRelationships(label, key, text string, programmatic []ProgrammaticDescription) []*metagraph.Relationship {
	var out []*metagraph.Relationship

	for _, n := range descriptionNodes(key, text, programmatic) {
		out = append(out, metagraph.DescriptionRelationship(label, key, n))
	}

	return out
}

func tagNode(name, tagType string) *metagraph.Node {
	if tagType == "" {
		tagType = DefaultTagType
	}

	return &metagraph.Node{
		Label:      metagraph.LabelTag,
		Key:        name,
		Properties: metagraph.Properties{{Name: "tag_type", Value: tagType}},
	}
}

func tagNodes(seen *metagraph.Seen, tags []string) []*metagraph.Node {
	var out []*metagraph.Node

	for _, t := range unique(tags) {
		if seen.Mark(metagraph.LabelTag + ":" + t) {
			out = append(out, tagNode(t, ""))
		}
	}

	return out
}

func tagRelationships(label, key string, tags []string) []*metagraph.Relationship {
	var out []*metagraph.Relationship

	for _, t := range unique(tags) {
		out = append(out, link(label, key, metagraph.LabelTag, t, metagraph.RelTaggedBy, metagraph.RelTag))
	}

	return out
}

func badgeNodes(seen *metagraph.Seen, badges []string, category string) []*metagraph.Node {
	var out []*metagraph.Node

	for _, b := range unique(badges) {
		n := metagraph.BadgeNode(b, category)
		if seen.Mark(n.Key) {
			out = append(out, n)
		}
	}

	return out
}

func badgeRelationships(label, key string, badges []string, category string) []*metagraph.Relationship {
	var out []*metagraph.Relationship

	for _, b := range unique(badges) {
		out = append(out, metagraph.BadgeRelationship(label, key, metagraph.BadgeNode(b, category)))
	}

	return out
}

// unique drops empty and repeated entries, keeping first occurrence order.
func unique(in []string) []string {
	out := make([]string, 0, len(in))

	for _, s := range in {
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}

	return out
}
