package models

import "github.com/rlch/metagraph"

// DefaultDashboardCluster is used when a dashboard does not name a cluster.
const DefaultDashboardCluster = "gold"

// DashboardClusterKey returns the key of the cluster a product's dashboards
// live in.
func DashboardClusterKey(product, cluster string) string {
	return product + "_dashboard://" + cluster
}

// DashboardGroupKey returns the key of a dashboard group.
func DashboardGroupKey(product, cluster, group string) string {
	return DashboardClusterKey(product, cluster) + "." + group
}

// DashboardKey returns the key of a dashboard.
func DashboardKey(product, cluster, group, id string) string {
	return DashboardGroupKey(product, cluster, group) + "/" + id
}

// Dashboard is a dashboard of a BI product together with the group
// (folder, space, workspace) it belongs to.
type Dashboard struct {
	Product string `yaml:"product"`
	Cluster string `yaml:"cluster,omitempty"`

	GroupID          string `yaml:"group_id"`
	GroupName        string `yaml:"group_name,omitempty"`
	GroupURL         string `yaml:"group_url,omitempty"`
	GroupDescription string `yaml:"group_description,omitempty"`

	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	URL         string `yaml:"url,omitempty"`
	Description string `yaml:"description,omitempty"`

	// CreatedTimestamp is in epoch seconds; zero means unknown.
	CreatedTimestamp int64 `yaml:"created_timestamp,omitempty"`

	Tags []string `yaml:"tags,omitempty"`
}

var _ metagraph.Producer = (*Dashboard)(nil)

func (d *Dashboard) cluster() string {
	if d.Cluster == "" {
		return DefaultDashboardCluster
	}

	return d.Cluster
}

// Key returns the key of the dashboard node.
func (d *Dashboard) Key() string {
	return DashboardKey(d.Product, d.cluster(), d.GroupID, d.ID)
}

// GroupKey returns the key of the dashboard's group node.
func (d *Dashboard) GroupKey() string {
	return DashboardGroupKey(d.Product, d.cluster(), d.GroupID)
}

// ClusterKey returns the key of the dashboard's cluster node.
func (d *Dashboard) ClusterKey() string {
	return DashboardClusterKey(d.Product, d.cluster())
}

// Entity returns a fresh serialization pass over d.
func (d *Dashboard) Entity() metagraph.Entity {
	return metagraph.NewCursor(d)
}

// GraphNodes implements metagraph.Producer.
func (d *Dashboard) GraphNodes(seen *metagraph.Seen) []*metagraph.Node {
	key := d.Key()

	props := metagraph.Properties{{Name: "name", Value: d.Name}}
	if d.URL != "" {
		props.Set("dashboard_url", d.URL)
	}

	if d.CreatedTimestamp != 0 {
		props.Set("created_timestamp", d.CreatedTimestamp)
	}

	out := []*metagraph.Node{{Label: metagraph.LabelDashboard, Key: key, Properties: props}}

	groupKey := d.GroupKey()
	if seen.Mark(groupKey) {
		group := nameNode(metagraph.LabelDashboardGroup, groupKey, d.GroupName)
		if d.GroupURL != "" {
			group.Properties.Set("dashboard_group_url", d.GroupURL)
		}

		out = append(out, group)
		out = append(out, descriptionNodes(groupKey, d.GroupDescription, nil)...)
	}

	out = append(out, descriptionNodes(key, d.Description, nil)...)

	if clusterKey := d.ClusterKey(); seen.Mark(clusterKey) {
		out = append(out, nameNode(metagraph.LabelCluster, clusterKey, d.cluster()))
	}

	out = append(out, tagNodes(seen, d.Tags)...)

	return out
}

// GraphRelationships implements metagraph.Producer.
func (d *Dashboard) GraphRelationships() []*metagraph.Relationship {
	key := d.Key()
	groupKey := d.GroupKey()

	out := []*metagraph.Relationship{
		link(metagraph.LabelDashboard, key, metagraph.LabelDashboardGroup, groupKey,
			metagraph.RelDashboardOf, metagraph.RelDashboard),
		link(metagraph.LabelCluster, d.ClusterKey(), metagraph.LabelDashboardGroup, groupKey,
			metagraph.RelDashboardGroup, metagraph.RelDashboardGroupOf),
	}

	out = append(out, descriptionRelationships(metagraph.LabelDashboardGroup, groupKey, d.GroupDescription, nil)...)
	out = append(out, descriptionRelationships(metagraph.LabelDashboard, key, d.Description, nil)...)
	out = append(out, tagRelationships(metagraph.LabelDashboard, key, d.Tags)...)

	return out
}
