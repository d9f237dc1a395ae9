package metagraph

import (
	"fmt"
	"regexp"
)

// Store names.
const (
	StoreNeo4j = "neo4j"
)

// Node labels.
const (
	LabelDatabase       = "Database"
	LabelCluster        = "Cluster"
	LabelSchema         = "Schema"
	LabelTable          = "Table"
	LabelColumn         = "Column"
	LabelDescription    = "Description"
	LabelProgrammatic   = "Programmatic_Description"
	LabelTag            = "Tag"
	LabelBadge          = "Badge"
	LabelTypeMetadata   = "Type_Metadata"
	LabelDashboard      = "Dashboard"
	LabelDashboardGroup = "Dashboardgroup"
)

// Relationship types, forward and reverse.
const (
	RelCluster          = "CLUSTER"
	RelClusterOf        = "CLUSTER_OF"
	RelSchema           = "SCHEMA"
	RelSchemaOf         = "SCHEMA_OF"
	RelTable            = "TABLE"
	RelTableOf          = "TABLE_OF"
	RelColumn           = "COLUMN"
	RelColumnOf         = "COLUMN_OF"
	RelDescription      = "DESCRIPTION"
	RelDescriptionOf    = "DESCRIPTION_OF"
	RelTaggedBy         = "TAGGED_BY"
	RelTag              = "TAG"
	RelHasBadge         = "HAS_BADGE"
	RelBadgeFor         = "BADGE_FOR"
	RelTypeMetadata     = "TYPE_METADATA"
	RelTypeMetadataOf   = "TYPE_METADATA_OF"
	RelSubtype          = "SUBTYPE"
	RelSubtypeOf        = "SUBTYPE_OF"
	RelDashboardOf      = "DASHBOARD_OF"
	RelDashboard        = "DASHBOARD"
	RelDashboardGroupOf = "DASHBOARD_GROUP_OF"
	RelDashboardGroup   = "DASHBOARD_GROUP"
)

// Reserved property names.
const (
	// PropKey is the unique key property every node carries.
	PropKey = "key"

	// PropPublishedTag stamps nodes and edges with the publishing job's tag.
	PropPublishedTag = "published_tag"

	// PropLastUpdated stamps the time of the last publish in epoch millis.
	PropLastUpdated = "publisher_last_updated_epoch_ms"
)

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateName checks that name can be used as a label, relationship type or
// property name in a statement. Such names are interpolated into query text,
// so anything outside the identifier alphabet is rejected.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	return nil
}
