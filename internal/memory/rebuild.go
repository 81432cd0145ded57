package memory

import (
	"fmt"

	"github.com/rcliao/persona-memory/internal/embedding"
	"github.com/rcliao/persona-memory/internal/model"
)

// Clone returns a full structural copy of m. No node, slice or map is
// shared between m and the clone.
func (m *AssociativeMemory) Clone() *AssociativeMemory {
	c := New()
	for id, n := range m.nodes {
		c.nodes[id] = n.Clone()
	}
	c.seqEvent = append([]string(nil), m.seqEvent...)
	c.seqThought = append([]string(nil), m.seqThought...)
	c.seqChat = append([]string(nil), m.seqChat...)
	c.kwToEvent = cloneIndex(m.kwToEvent)
	c.kwToThought = cloneIndex(m.kwToThought)
	c.kwToChat = cloneIndex(m.kwToChat)
	for k, v := range m.kwStrengthEvent {
		c.kwStrengthEvent[k] = v
	}
	for k, v := range m.kwStrengthThought {
		c.kwStrengthThought[k] = v
	}
	c.embeddings = m.Embeddings()
	c.nodeCounter = m.nodeCounter
	for k, v := range m.typeCounter {
		c.typeCounter[k] = v
	}
	return c
}

func cloneIndex(idx map[string][]string) map[string][]string {
	out := make(map[string][]string, len(idx))
	for kw, ids := range idx {
		out[kw] = append([]string(nil), ids...)
	}
	return out
}

// Retain drops every node for which keep returns false and rebuilds the id
// index, the sequences and the keyword buckets to match. Buckets left empty
// are removed and keyword strengths are recounted from the remaining nodes.
// Embeddings are left as they are.
func (m *AssociativeMemory) Retain(keep func(*model.Node) bool) (removed int) {
	for id, n := range m.nodes {
		if !keep(n) {
			delete(m.nodes, id)
			removed++
		}
	}
	if removed == 0 {
		return 0
	}
	m.seqEvent = m.filterIDs(m.seqEvent)
	m.seqThought = m.filterIDs(m.seqThought)
	m.seqChat = m.filterIDs(m.seqChat)
	m.kwToEvent = m.filterIndex(m.kwToEvent)
	m.kwToThought = m.filterIndex(m.kwToThought)
	m.kwToChat = m.filterIndex(m.kwToChat)
	m.recountStrength()
	return removed
}

func (m *AssociativeMemory) filterIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := m.nodes[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func (m *AssociativeMemory) filterIndex(idx map[string][]string) map[string][]string {
	out := make(map[string][]string, len(idx))
	for kw, ids := range idx {
		if kept := m.filterIDs(ids); len(kept) > 0 {
			out[kw] = kept
		}
	}
	return out
}

// Isolate reduces m to the single node id, renamed to newID with its node and
// type counts zeroed. Keyword buckets that referenced the node keep only it;
// all other buckets, sequences and embeddings are dropped, and keyword
// strengths count only the node. The node counter is
// left untouched so later inserts never reuse an id.
func (m *AssociativeMemory) Isolate(id, newID string) (*model.Node, error) {
	n, err := m.Get(id)
	if err != nil {
		return nil, fmt.Errorf("isolate: %w", err)
	}

	narrow := func(idx map[string][]string) map[string][]string {
		out := map[string][]string{}
		for kw, ids := range idx {
			for _, other := range ids {
				if other == id {
					out[kw] = []string{newID}
					break
				}
			}
		}
		return out
	}
	m.kwToEvent = narrow(m.kwToEvent)
	m.kwToThought = narrow(m.kwToThought)
	m.kwToChat = narrow(m.kwToChat)

	n.NodeID = newID
	n.NodeCount = 0
	n.TypeCount = 0
	m.nodes = map[string]*model.Node{newID: n}

	m.recountStrength()

	m.seqEvent, m.seqThought, m.seqChat = []string{}, []string{}, []string{}
	switch n.Type {
	case model.TypeEvent:
		m.seqEvent = []string{newID}
	case model.TypeThought:
		m.seqThought = []string{newID}
	case model.TypeChat:
		m.seqChat = []string{newID}
	}

	vec, ok := m.embeddings[n.EmbeddingKey]
	m.embeddings = map[string]embedding.Vector{}
	if ok {
		m.embeddings[n.EmbeddingKey] = vec
	}
	return n, nil
}

// Restore rebuilds a memory from previously persisted nodes. Nodes keep their
// ids and counts; sequences follow node count order.
func Restore(nodes []*model.Node, embeddings map[string]embedding.Vector) (*AssociativeMemory, error) {
	m := New()
	seen := map[string]bool{}
	ordered := make([]*model.Node, 0, len(nodes))
	for _, n := range nodes {
		if !model.ValidTypes[n.Type] {
			return nil, fmt.Errorf("%w: %s has unknown type %q", ErrInvalidNode, n.NodeID, n.Type)
		}
		if !model.ValidFilling(n.Type, n.Filling.Kind) {
			return nil, fmt.Errorf("%w: %s has filling %q", ErrInvalidNode, n.NodeID, n.Filling.Kind)
		}
		if seen[n.NodeID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, n.NodeID)
		}
		seen[n.NodeID] = true
		c := n.Clone()
		c.Keywords = normalizeKeywords(c.Keywords)
		ordered = append(ordered, c)
	}
	sortByCount(ordered)
	for _, n := range ordered {
		m.insert(n)
		if n.NodeCount > m.nodeCounter {
			m.nodeCounter = n.NodeCount
		}
		if n.TypeCount > m.typeCounter[n.Type] {
			m.typeCounter[n.Type] = n.TypeCount
		}
		m.addStrength(n)
	}
	for k, v := range embeddings {
		m.SetEmbedding(k, v)
	}
	return m, nil
}

// Validate checks the index invariants: the sequences hold exactly the nodes
// of their type, every keyword bucket is non-empty and resolves to nodes of
// the bucket's type, and every node is reachable from each of its keywords.
func (m *AssociativeMemory) Validate() error {
	seqs := map[model.NodeType][]string{
		model.TypeEvent:   m.seqEvent,
		model.TypeThought: m.seqThought,
		model.TypeChat:    m.seqChat,
	}
	byType := map[model.NodeType]int{}
	for id, n := range m.nodes {
		if n.NodeID != id {
			return fmt.Errorf("node %s indexed under %s", n.NodeID, id)
		}
		byType[n.Type]++
	}
	for t, seq := range seqs {
		if len(seq) != byType[t] {
			return fmt.Errorf("seq_%s has %d nodes, id index has %d", t, len(seq), byType[t])
		}
		seen := map[string]bool{}
		for _, id := range seq {
			n, ok := m.nodes[id]
			if !ok {
				return fmt.Errorf("seq_%s: %w: %s", t, ErrNodeNotFound, id)
			}
			if n.Type != t || seen[id] {
				return fmt.Errorf("seq_%s: unexpected node %s", t, id)
			}
			seen[id] = true
		}
	}

	for t := range seqs {
		index := m.keywordIndex(t)
		for kw, ids := range index {
			if len(ids) == 0 {
				return fmt.Errorf("kw_to_%s[%q] is empty", t, kw)
			}
			for _, id := range ids {
				n, ok := m.nodes[id]
				if !ok {
					return fmt.Errorf("kw_to_%s[%q]: %w: %s", t, kw, ErrNodeNotFound, id)
				}
				if n.Type != t {
					return fmt.Errorf("kw_to_%s[%q] holds %s node %s", t, kw, n.Type, id)
				}
			}
		}
	}
	for id, n := range m.nodes {
		index := m.keywordIndex(n.Type)
		for _, kw := range n.Keywords {
			if !contains(index[kw], id) {
				return fmt.Errorf("node %s missing from kw_to_%s[%q]", id, n.Type, kw)
			}
		}
	}

	c := m.Counts()
	if c.Plans+c.Reflections+c.ReflectionErrors != c.Thoughts {
		return fmt.Errorf("thought partition broken: %d plans + %d reflections + %d errors != %d thoughts",
			c.Plans, c.Reflections, c.ReflectionErrors, c.Thoughts)
	}
	return nil
}

func contains(ids []string, id string) bool {
	for _, other := range ids {
		if other == id {
			return true
		}
	}
	return false
}
