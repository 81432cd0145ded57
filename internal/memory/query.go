package memory

import (
	"strings"

	"github.com/rcliao/persona-memory/internal/model"
)

// Counts holds per-type and per-thought-kind node counts.
type Counts struct {
	Events           int `json:"events"`
	Thoughts         int `json:"thoughts"`
	Chats            int `json:"chats"`
	Plans            int `json:"plans"`
	Reflections      int `json:"reflections"`
	ReflectionErrors int `json:"reflection_errors"`
}

// Counts tallies the id index.
func (m *AssociativeMemory) Counts() Counts {
	var c Counts
	for _, n := range m.nodes {
		switch n.Type {
		case model.TypeEvent:
			c.Events++
		case model.TypeChat:
			c.Chats++
		case model.TypeThought:
			c.Thoughts++
			switch {
			case n.IsPlan():
				c.Plans++
			case n.IsReflection():
				c.Reflections++
			case n.IsReflectionError():
				c.ReflectionErrors++
			}
		}
	}
	return c
}

// RelevantEvents returns the events sharing a keyword with any of s, p or o.
func (m *AssociativeMemory) RelevantEvents(s, p, o string) []*model.Node {
	return m.union(m.kwToEvent, s, p, o)
}

// RelevantThoughts returns the thoughts sharing a keyword with any of s, p or o.
func (m *AssociativeMemory) RelevantThoughts(s, p, o string) []*model.Node {
	return m.union(m.kwToThought, s, p, o)
}

func (m *AssociativeMemory) union(idx map[string][]string, keys ...string) []*model.Node {
	seen := map[string]bool{}
	var out []*model.Node
	for _, k := range keys {
		for _, id := range idx[strings.ToLower(k)] {
			if seen[id] {
				continue
			}
			seen[id] = true
			if n, ok := m.nodes[id]; ok {
				out = append(out, n)
			}
		}
	}
	sortByCount(out)
	return out
}

// LastChat returns the most recent chat tagged with the given persona name.
func (m *AssociativeMemory) LastChat(with string) (*model.Node, bool) {
	ids := m.kwToChat[strings.ToLower(with)]
	if len(ids) == 0 {
		return nil, false
	}
	n, ok := m.nodes[ids[len(ids)-1]]
	return n, ok
}

// Triple is a subject, predicate, object summary of an event.
type Triple struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// SummarizedLatestEvents returns the distinct triples of the n most recent events.
func (m *AssociativeMemory) SummarizedLatestEvents(n int) []Triple {
	events := m.Events()
	start := len(events) - n
	if start < 0 {
		start = 0
	}
	seen := map[Triple]bool{}
	var out []Triple
	for i := len(events) - 1; i >= start; i-- {
		s, p, o := events[i].SPO()
		t := Triple{s, p, o}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
