package metagraph

// Entity is implemented by every metadata model that can describe itself as
// graph data. Both sequences are finite and cannot be restarted: once a call
// returns false the entity is exhausted.
type Entity interface {
	// NextNode returns the next node of the entity, or false at the end.
	NextNode() (*Node, bool)

	// NextRelationship returns the next relationship of the entity, or false
	// at the end.
	NextRelationship() (*Relationship, bool)
}

// Producer builds the node and relationship lists of a single entity.
// Implementations consult seen before emitting a node that may be shared
// with other parts of the same entity (clusters, groups, tags, badges).
type Producer interface {
	GraphNodes(seen *Seen) []*Node
	GraphRelationships() []*Relationship
}

// Seen records which shared node keys an entity instance already emitted.
// The zero value is ready to use.
type Seen struct {
	keys map[string]struct{}
}

// NewSeen returns an empty dedup set.
func NewSeen() *Seen {
	return &Seen{keys: make(map[string]struct{})}
}

// Mark records key and reports whether it was not seen before.
func (s *Seen) Mark(key string) bool {
	if s.keys == nil {
		s.keys = make(map[string]struct{})
	}

	if _, ok := s.keys[key]; ok {
		return false
	}

	s.keys[key] = struct{}{}

	return true
}

// Has reports whether key was already marked.
func (s *Seen) Has(key string) bool {
	_, ok := s.keys[key]
	return ok
}

// Len returns the number of marked keys.
func (s *Seen) Len() int {
	return len(s.keys)
}

// Cursor adapts a Producer to the pull-based Entity contract.
// The node and relationship lists are built on first pull; the dedup set
// lives and dies with the cursor.
type Cursor struct {
	producer Producer
	seen     *Seen

	nodes      []*Node
	nodesBuilt bool
	nodeIdx    int

	rels      []*Relationship
	relsBuilt bool
	relIdx    int
}

// NewCursor creates a cursor over p.
func NewCursor(p Producer) *Cursor {
	return &Cursor{producer: p, seen: NewSeen()}
}

// NextNode implements Entity.
func (c *Cursor) NextNode() (*Node, bool) {
	if !c.nodesBuilt {
		c.nodes = c.producer.GraphNodes(c.seen)
		c.nodesBuilt = true
	}

	if c.nodeIdx >= len(c.nodes) {
		c.nodes = nil
		return nil, false
	}

	n := c.nodes[c.nodeIdx]
	c.nodeIdx++

	return n, true
}

// NextRelationship implements Entity.
func (c *Cursor) NextRelationship() (*Relationship, bool) {
	if !c.relsBuilt {
		c.rels = c.producer.GraphRelationships()
		c.relsBuilt = true
	}

	if c.relIdx >= len(c.rels) {
		c.rels = nil
		return nil, false
	}

	r := c.rels[c.relIdx]
	c.relIdx++

	return r, true
}

// Drain exhausts entities and returns every node followed by every
// relationship. All nodes of all entities come first, which is the order the
// publisher requires.
func Drain(entities ...Entity) ([]*Node, []*Relationship) {
	var nodes []*Node

	for _, e := range entities {
		for n, ok := e.NextNode(); ok; n, ok = e.NextNode() {
			nodes = append(nodes, n)
		}
	}

	var rels []*Relationship

	for _, e := range entities {
		for r, ok := e.NextRelationship(); ok; r, ok = e.NextRelationship() {
			rels = append(rels, r)
		}
	}

	return nodes, rels
}
