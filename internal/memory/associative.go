// Package memory implements a persona's associative long-term memory.
//
// Nodes live in a single arena keyed by node id. The keyword buckets and the
// per-type chronological sequences hold ids into that arena, so a node
// returned by any lookup is the one owned instance and changes made through
// it are visible everywhere it is indexed.
package memory

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rcliao/persona-memory/internal/embedding"
	"github.com/rcliao/persona-memory/internal/model"
)

var (
	// ErrNodeNotFound is returned when a node id is not in the id index.
	ErrNodeNotFound = errors.New("node not found")
	// ErrInvalidNode is returned by Add for malformed input.
	ErrInvalidNode = errors.New("invalid node")
	// ErrDuplicateNode is returned by Restore when two nodes share an id.
	ErrDuplicateNode = errors.New("duplicate node id")
)

// NodeInput holds the caller-supplied fields of a new node.
type NodeInput struct {
	Type        model.NodeType
	Created     time.Time
	Expiration  *time.Time
	Subject     string
	Predicate   string
	Object      string
	Description string
	Keywords    []string
	Poignancy   float64

	// EmbeddingKey defaults to Description.
	EmbeddingKey string
	// Embedding is stored under EmbeddingKey when non-empty.
	Embedding embedding.Vector

	Filling model.Filling

	// Depth is only used for reflection errors; every other depth is derived.
	Depth int
}

// AssociativeMemory owns all memory nodes of one persona. It is not safe for
// concurrent mutation; concurrent readers are fine while nothing writes.
type AssociativeMemory struct {
	nodes map[string]*model.Node

	seqEvent   []string
	seqThought []string
	seqChat    []string

	kwToEvent   map[string][]string
	kwToThought map[string][]string
	kwToChat    map[string][]string

	kwStrengthEvent   map[string]int
	kwStrengthThought map[string]int

	embeddings map[string]embedding.Vector

	nodeCounter int
	typeCounter map[model.NodeType]int
}

// New returns an empty associative memory.
func New() *AssociativeMemory {
	return &AssociativeMemory{
		nodes:             map[string]*model.Node{},
		kwToEvent:         map[string][]string{},
		kwToThought:       map[string][]string{},
		kwToChat:          map[string][]string{},
		kwStrengthEvent:   map[string]int{},
		kwStrengthThought: map[string]int{},
		embeddings:        map[string]embedding.Vector{},
		typeCounter:       map[model.NodeType]int{},
	}
}

// NodeID formats the id of the n-th node.
func NodeID(n int) string { return fmt.Sprintf("node_%d", n) }

// Add inserts a new node and indexes it. It fails only on malformed input.
func (m *AssociativeMemory) Add(in NodeInput) (*model.Node, error) {
	if !model.ValidTypes[in.Type] {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidNode, in.Type)
	}
	if strings.TrimSpace(in.Description) == "" {
		return nil, fmt.Errorf("%w: description is required", ErrInvalidNode)
	}

	filling := in.Filling.Clone()
	if filling.Kind == "" {
		switch in.Type {
		case model.TypeEvent:
			filling.Kind = model.FillingEvidence
		case model.TypeChat:
			filling.Kind = model.FillingTranscript
		}
	}
	if !model.ValidFilling(in.Type, filling.Kind) {
		return nil, fmt.Errorf("%w: filling %q not allowed for %s", ErrInvalidNode, filling.Kind, in.Type)
	}

	key := in.EmbeddingKey
	if key == "" {
		key = in.Description
	}

	m.nodeCounter++
	m.typeCounter[in.Type]++

	n := &model.Node{
		NodeID:       NodeID(m.nodeCounter),
		NodeCount:    m.nodeCounter,
		TypeCount:    m.typeCounter[in.Type],
		Type:         in.Type,
		Depth:        m.depthFor(in.Type, filling, in.Depth),
		Created:      in.Created,
		LastAccessed: in.Created,
		Subject:      in.Subject,
		Predicate:    in.Predicate,
		Object:       in.Object,
		Description:  in.Description,
		EmbeddingKey: key,
		Poignancy:    in.Poignancy,
		Keywords:     normalizeKeywords(in.Keywords),
		Filling:      filling,
	}
	if in.Expiration != nil {
		t := *in.Expiration
		n.Expiration = &t
	}

	m.insert(n)
	m.addStrength(n)

	if len(in.Embedding) > 0 {
		m.embeddings[key] = append(embedding.Vector(nil), in.Embedding...)
	}

	return n, nil
}

// AddEvent records an observation.
func (m *AssociativeMemory) AddEvent(in NodeInput) (*model.Node, error) {
	in.Type = model.TypeEvent
	return m.Add(in)
}

// AddThought records a plan, reflection or reflection error.
func (m *AssociativeMemory) AddThought(in NodeInput) (*model.Node, error) {
	in.Type = model.TypeThought
	return m.Add(in)
}

// AddChat records a conversation.
func (m *AssociativeMemory) AddChat(in NodeInput) (*model.Node, error) {
	in.Type = model.TypeChat
	return m.Add(in)
}

func (m *AssociativeMemory) depthFor(t model.NodeType, f model.Filling, supplied int) int {
	if t != model.TypeThought {
		return 0
	}
	switch f.Kind {
	case model.FillingPlan:
		return 1
	case model.FillingReflection:
		deepest := 0
		for _, id := range f.Evidence {
			if n, ok := m.nodes[id]; ok && n.Depth > deepest {
				deepest = n.Depth
			}
		}
		return 1 + deepest
	}
	if supplied < 0 {
		return 0
	}
	return supplied
}

// insert places n in the id index, its type sequence and its keyword buckets.
func (m *AssociativeMemory) insert(n *model.Node) {
	m.nodes[n.NodeID] = n
	switch n.Type {
	case model.TypeEvent:
		m.seqEvent = append(m.seqEvent, n.NodeID)
	case model.TypeThought:
		m.seqThought = append(m.seqThought, n.NodeID)
	case model.TypeChat:
		m.seqChat = append(m.seqChat, n.NodeID)
	}
	index := m.keywordIndex(n.Type)
	for _, kw := range n.Keywords {
		index[kw] = append(index[kw], n.NodeID)
	}
}

func (m *AssociativeMemory) keywordIndex(t model.NodeType) map[string][]string {
	switch t {
	case model.TypeThought:
		return m.kwToThought
	case model.TypeChat:
		return m.kwToChat
	}
	return m.kwToEvent
}

func normalizeKeywords(kws []string) []string {
	out := make([]string, 0, len(kws))
	seen := map[string]bool{}
	for _, kw := range kws {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		out = append(out, kw)
	}
	return out
}

// Get returns the node with the given id.
func (m *AssociativeMemory) Get(id string) (*model.Node, error) {
	n, ok := m.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return n, nil
}

// ByKeyword returns every node tagged with kw, events first, then thoughts,
// then chats, each in insertion order.
func (m *AssociativeMemory) ByKeyword(kw string) []*model.Node {
	out := m.EventsByKeyword(kw)
	out = append(out, m.ThoughtsByKeyword(kw)...)
	return append(out, m.ChatsByKeyword(kw)...)
}

// EventsByKeyword returns the events tagged with kw.
func (m *AssociativeMemory) EventsByKeyword(kw string) []*model.Node {
	return m.resolve(m.kwToEvent[strings.ToLower(kw)])
}

// ThoughtsByKeyword returns the thoughts tagged with kw.
func (m *AssociativeMemory) ThoughtsByKeyword(kw string) []*model.Node {
	return m.resolve(m.kwToThought[strings.ToLower(kw)])
}

// ChatsByKeyword returns the chats tagged with kw.
func (m *AssociativeMemory) ChatsByKeyword(kw string) []*model.Node {
	return m.resolve(m.kwToChat[strings.ToLower(kw)])
}

func (m *AssociativeMemory) resolve(ids []string) []*model.Node {
	out := make([]*model.Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := m.nodes[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Events returns the events in insertion order.
func (m *AssociativeMemory) Events() []*model.Node { return m.resolve(m.seqEvent) }

// Thoughts returns the thoughts in insertion order.
func (m *AssociativeMemory) Thoughts() []*model.Node { return m.resolve(m.seqThought) }

// Chats returns the chats in insertion order.
func (m *AssociativeMemory) Chats() []*model.Node { return m.resolve(m.seqChat) }

// Nodes returns every node ordered by node count.
func (m *AssociativeMemory) Nodes() []*model.Node {
	out := make([]*model.Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, n)
	}
	sortByCount(out)
	return out
}

// Len returns the number of nodes in the id index.
func (m *AssociativeMemory) Len() int { return len(m.nodes) }

// Keywords returns the keywords with a non-empty bucket for type t, sorted.
func (m *AssociativeMemory) Keywords(t model.NodeType) []string {
	index := m.keywordIndex(t)
	out := make([]string, 0, len(index))
	for kw := range index {
		out = append(out, kw)
	}
	sort.Strings(out)
	return out
}

// addStrength counts the keywords of n unless it is a chat or an idle event.
func (m *AssociativeMemory) addStrength(n *model.Node) {
	if n.Type == model.TypeChat || n.Predicate+" "+n.Object == "is idle" {
		return
	}
	strength := m.kwStrengthEvent
	if n.Type == model.TypeThought {
		strength = m.kwStrengthThought
	}
	for _, kw := range n.Keywords {
		strength[kw]++
	}
}

// recountStrength rebuilds keyword strengths from the nodes in the id index.
func (m *AssociativeMemory) recountStrength() {
	m.kwStrengthEvent = map[string]int{}
	m.kwStrengthThought = map[string]int{}
	for _, n := range m.nodes {
		m.addStrength(n)
	}
}

// KeywordStrength returns how often kw was tagged on non-idle events and thoughts.
func (m *AssociativeMemory) KeywordStrength(kw string) (event, thought int) {
	kw = strings.ToLower(kw)
	return m.kwStrengthEvent[kw], m.kwStrengthThought[kw]
}

// Embedding returns the vector stored under key.
func (m *AssociativeMemory) Embedding(key string) (embedding.Vector, bool) {
	v, ok := m.embeddings[key]
	return v, ok
}

// SetEmbedding stores vec under key.
func (m *AssociativeMemory) SetEmbedding(key string, vec embedding.Vector) {
	m.embeddings[key] = append(embedding.Vector(nil), vec...)
}

// Embeddings returns a copy of the embedding table.
func (m *AssociativeMemory) Embeddings() map[string]embedding.Vector {
	out := make(map[string]embedding.Vector, len(m.embeddings))
	for k, v := range m.embeddings {
		out[k] = append(embedding.Vector(nil), v...)
	}
	return out
}

func sortByCount(nodes []*model.Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].NodeCount != nodes[j].NodeCount {
			return nodes[i].NodeCount < nodes[j].NodeCount
		}
		return nodes[i].NodeID < nodes[j].NodeID
	})
}
