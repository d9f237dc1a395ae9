package metagraph

import "strings"

// DescriptionKey returns the key of the description node attached to
// entityKey. Descriptions from a named source get their own node.
func DescriptionKey(entityKey, source string) string {
	if source == "" || source == DescriptionSourceDefault {
		return entityKey + "/_description"
	}

	return entityKey + "/_" + source + "_description"
}

// DescriptionSourceDefault is the source of user-authored descriptions.
const DescriptionSourceDefault = "description"

// DescriptionNode builds the description node for entityKey.
func DescriptionNode(entityKey, source, text string) *Node {
	label := LabelDescription
	if source != "" && source != DescriptionSourceDefault {
		label = LabelProgrammatic
	}

	props := Properties{{Name: "description", Value: text}}
	if label == LabelProgrammatic {
		props.Set("description_source", source)
	}

	return &Node{
		Label:      label,
		Key:        DescriptionKey(entityKey, source),
		Properties: props,
	}
}

// DescriptionRelationship links an entity to its description node.
func DescriptionRelationship(entityLabel, entityKey string, desc *Node) *Relationship {
	return &Relationship{
		StartLabel:  entityLabel,
		StartKey:    entityKey,
		EndLabel:    desc.Label,
		EndKey:      desc.Key,
		Type:        RelDescription,
		ReverseType: RelDescriptionOf,
	}
}

// BadgeKey returns the key of a badge node.
func BadgeKey(name, category string) string {
	return strings.ToLower(name) + ":" + category
}

// BadgeNode builds a badge node.
func BadgeNode(name, category string) *Node {
	return &Node{
		Label: LabelBadge,
		Key:   BadgeKey(name, category),
		Properties: Properties{
			{Name: "category", Value: category},
		},
	}
}

// BadgeRelationship links an entity to a badge node.
func BadgeRelationship(entityLabel, entityKey string, badge *Node) *Relationship {
	return &Relationship{
		StartLabel:  entityLabel,
		StartKey:    entityKey,
		EndLabel:    LabelBadge,
		EndKey:      badge.Key,
		Type:        RelHasBadge,
		ReverseType: RelBadgeFor,
	}
}
