package neo4j

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rlch/metagraph"
)

// batchParam is the parameter holding the rows of a batch.
const batchParam = "batch"

// quote backquotes a validated name.
func quote(name string) string {
	return "`" + name + "`"
}

// ConstraintName returns the name of the key constraint of label.
func ConstraintName(label string) string {
	return "metagraph_" + strings.ToLower(label) + "_key"
}

// ConstraintStatement returns the statement ensuring a key uniqueness
// constraint on label.
func ConstraintStatement(label string) (string, error) {
	if err := metagraph.ValidateName(label); err != nil {
		return "", err
	}

	return fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
		quote(ConstraintName(label)), quote(label), metagraph.PropKey), nil
}

// NodeStatement compiles the upsert statement of a node template.
//
//	UNWIND $batch AS row
//	MERGE (n:`Label` {key: row.key})
//	ON CREATE SET n.`p` = row.`p`, ...
//	ON MATCH SET n.`p` = row.`p`, ...
//
// CreateOnly drops the ON MATCH clause. Without PreserveEmpty a null value
// keeps the stored one, and PreserveAdhoc keeps every stored value of nodes
// that carry no published tag.
func NodeStatement(t *metagraph.NodeTemplate) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	props := append(append([]string{}, t.Properties...), t.Metadata...)

	var b strings.Builder

	fmt.Fprintf(&b, "UNWIND $%s AS row\n", batchParam)
	fmt.Fprintf(&b, "MERGE (n:%s {%s: row.%s})", quote(t.Label), metagraph.PropKey, metagraph.RowKey)

	if len(props) == 0 {
		return b.String(), nil
	}

	onCreate := make([]string, len(props))
	for i, p := range props {
		onCreate[i] = fmt.Sprintf("n.%s = row.%s", quote(p), quote(p))
	}

	fmt.Fprintf(&b, "\nON CREATE SET %s", strings.Join(onCreate, ", "))

	if t.CreateOnly {
		return b.String(), nil
	}

	onMatch := make([]string, len(props))
	for i, p := range props {
		value := assignment("n", p, t.PreserveEmpty)
		if t.PreserveAdhoc {
			value = fmt.Sprintf("CASE WHEN n.%s IS NULL THEN n.%s ELSE %s END",
				metagraph.PropPublishedTag, quote(p), value)
		}

		onMatch[i] = fmt.Sprintf("n.%s = %s", quote(p), value)
	}

	fmt.Fprintf(&b, "\nON MATCH SET %s", strings.Join(onMatch, ", "))

	return b.String(), nil
}

// RelationshipStatement compiles the upsert statement of a relationship
// template. Rows whose endpoints do not both exist produce no output row, so
// the returned idx column lists the rows that were applied.
//
//	UNWIND $batch AS row
//	MATCH (n1:`Start` {key: row.start_key})
//	MATCH (n2:`End` {key: row.end_key})
//	MERGE (n1)-[r1:`TYPE`]->(n2)
//	SET r1.`p` = row.`p`
//	MERGE (n2)-[r2:`REVERSE`]->(n1)
//	SET r2.`p` = row.`p`
//	RETURN row.idx AS idx
func RelationshipStatement(t *metagraph.RelationshipTemplate) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	props := append(append([]string{}, t.Properties...), t.Metadata...)

	var b strings.Builder

	fmt.Fprintf(&b, "UNWIND $%s AS row\n", batchParam)
	fmt.Fprintf(&b, "MATCH (n1:%s {%s: row.%s})\n", quote(t.StartLabel), metagraph.PropKey, metagraph.RowStartKey)
	fmt.Fprintf(&b, "MATCH (n2:%s {%s: row.%s})\n", quote(t.EndLabel), metagraph.PropKey, metagraph.RowEndKey)

	writeEdge(&b, "r1", "n1", "n2", t.Type, props, t.PreserveEmpty)

	if t.Reverse {
		writeEdge(&b, "r2", "n2", "n1", t.ReverseType, props, t.PreserveEmpty)
	}

	fmt.Fprintf(&b, "RETURN row.%s AS %s", metagraph.RowIndex, metagraph.RowIndex)

	return b.String(), nil
}

func writeEdge(b *strings.Builder, rel, from, to, typ string, props []string, preserveEmpty bool) {
	fmt.Fprintf(b, "MERGE (%s)-[%s:%s]->(%s)\n", from, rel, quote(typ), to)

	if len(props) == 0 {
		return
	}

	sets := make([]string, len(props))
	for i, p := range props {
		sets[i] = fmt.Sprintf("%s.%s = %s", rel, quote(p), assignment(rel, p, preserveEmpty))
	}

	fmt.Fprintf(b, "SET %s\n", strings.Join(sets, ", "))
}

func assignment(variable, prop string, preserveEmpty bool) string {
	if preserveEmpty {
		return "row." + quote(prop)
	}

	return fmt.Sprintf("coalesce(row.%s, %s.%s)", quote(prop), variable, quote(prop))
}

// CountNodesStatement counts the nodes of label.
func CountNodesStatement(label string) (string, error) {
	if err := metagraph.ValidateName(label); err != nil {
		return "", err
	}

	return fmt.Sprintf("MATCH (n:%s) RETURN count(n) AS count", quote(label)), nil
}

// StaleStatement matches the label nodes published under a tag other than
// $tag and either counts or deletes them.
func StaleStatement(label string, del bool) (string, error) {
	if err := metagraph.ValidateName(label); err != nil {
		return "", err
	}

	match := fmt.Sprintf("MATCH (n:%s)\nWHERE n.%s IS NOT NULL AND n.%s <> $tag\n",
		quote(label), metagraph.PropPublishedTag, metagraph.PropPublishedTag)

	if del {
		return match + "DETACH DELETE n\nRETURN count(n) AS count", nil
	}

	return match + "RETURN count(n) AS count", nil
}

// statementCache compiles each template once per store.
type statementCache struct {
	mu    sync.Mutex
	cache map[string]string
}

func newStatementCache() *statementCache {
	return &statementCache{cache: make(map[string]string)}
}

func (c *statementCache) get(signature string, compile func() (string, error)) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if stmt, ok := c.cache[signature]; ok {
		return stmt, nil
	}

	stmt, err := compile()
	if err != nil {
		return "", err
	}

	c.cache[signature] = stmt

	return stmt, nil
}

func (c *statementCache) node(t *metagraph.NodeTemplate) (string, error) {
	return c.get(t.Signature(), func() (string, error) { return NodeStatement(t) })
}

func (c *statementCache) relationship(t *metagraph.RelationshipTemplate) (string, error) {
	return c.get(t.Signature(), func() (string, error) { return RelationshipStatement(t) })
}

func (c *statementCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.cache)
}
