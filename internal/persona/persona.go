// Package persona ties a persona's scratch state to its associative memory.
package persona

import (
	"github.com/rcliao/persona-memory/internal/embedding"
	"github.com/rcliao/persona-memory/internal/memory"
	"github.com/rcliao/persona-memory/internal/model"
)

// Persona is a simulated agent: its working state plus its long-term memory.
type Persona struct {
	Scratch *model.Scratch
	Memory  *memory.AssociativeMemory
}

// New returns a persona with an empty memory and default trait weights.
func New(name string) *Persona {
	return &Persona{
		Scratch: model.NewScratch(name),
		Memory:  memory.New(),
	}
}

// Name returns the persona's full name.
func (p *Persona) Name() string { return p.Scratch.Name }

// Clone returns a deep copy of p. Nothing is shared with the original, so the
// clone can be ablated without touching p.
func (p *Persona) Clone() *Persona {
	return &Persona{
		Scratch: p.Scratch.Clone(),
		Memory:  p.Memory.Clone(),
	}
}

// Snapshot is the serializable form of a persona.
type Snapshot struct {
	Scratch    *model.Scratch              `json:"scratch"`
	Nodes      []*model.Node               `json:"nodes"`
	Embeddings map[string]embedding.Vector `json:"embeddings,omitempty"`
}

// Snapshot captures p for persistence or export.
func (p *Persona) Snapshot() *Snapshot {
	nodes := p.Memory.Nodes()
	out := make([]*model.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return &Snapshot{
		Scratch:    p.Scratch.Clone(),
		Nodes:      out,
		Embeddings: p.Memory.Embeddings(),
	}
}

// FromSnapshot rebuilds a persona.
func FromSnapshot(s *Snapshot) (*Persona, error) {
	mem, err := memory.Restore(s.Nodes, s.Embeddings)
	if err != nil {
		return nil, err
	}
	scratch := s.Scratch
	if scratch == nil {
		scratch = &model.Scratch{}
	}
	return &Persona{Scratch: scratch.Clone(), Memory: mem}, nil
}

// ChatInteractionCounts counts chats per participant and, across all chat
// transcripts, the lines spoken by each speaker other than the persona.
func (p *Persona) ChatInteractionCounts() (chats, exchanges map[string]int) {
	chats = map[string]int{}
	exchanges = map[string]int{}
	for _, n := range p.Memory.Chats() {
		chats[n.Object]++
		for _, u := range n.Filling.Transcript {
			if u.Speaker != p.Name() {
				exchanges[u.Speaker]++
			}
		}
	}
	return chats, exchanges
}
