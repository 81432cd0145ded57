// Package store persists personas and their memories in SQLite.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rcliao/persona-memory/internal/model"
	"github.com/rcliao/persona-memory/internal/persona"
)

// ErrPersonaNotFound is returned when no persona is saved under a name.
var ErrPersonaNotFound = errors.New("persona not found")

// PersonaInfo summarizes a saved persona. Name is the key it is saved under
// and Persona the persona's own name; they differ for ablated copies.
type PersonaInfo struct {
	Name     string    `json:"name"`
	Persona  string    `json:"persona"`
	Nodes    int       `json:"nodes"`
	Events   int       `json:"events"`
	Thoughts int       `json:"thoughts"`
	Chats    int       `json:"chats"`
	Chunks   int       `json:"chunks"`
	SavedAt  time.Time `json:"saved_at"`
}

// IsCopy reports whether the entry is saved under a name other than the
// persona's own, as ablated copies are.
func (i PersonaInfo) IsCopy() bool { return i.Persona != "" && i.Name != i.Persona }

// SearchParams holds parameters for searching node text.
type SearchParams struct {
	Persona string // empty searches every persona
	Query   string
	Type    model.NodeType
	Limit   int
}

// SearchResult is a node whose description or transcript matched.
type SearchResult struct {
	Persona    string      `json:"persona"`
	Node       *model.Node `json:"node"`
	MatchChunk string      `json:"match_chunk,omitempty"`
}

// Store defines the persona storage interface.
type Store interface {
	// SavePersona stores p, replacing any persona saved under the same name.
	SavePersona(ctx context.Context, p *persona.Persona) (*PersonaInfo, error)

	// SavePersonaAs stores p under name instead of its own name.
	SavePersonaAs(ctx context.Context, name string, p *persona.Persona) (*PersonaInfo, error)

	// LoadPersona rebuilds the persona saved under name.
	LoadPersona(ctx context.Context, name string) (*persona.Persona, error)

	// ListPersonas lists saved personas by name.
	ListPersonas(ctx context.Context) ([]PersonaInfo, error)

	// DeletePersona removes a persona and everything saved with it.
	DeletePersona(ctx context.Context, name string) error

	// Search finds nodes whose text matches the query.
	Search(ctx context.Context, p SearchParams) ([]SearchResult, error)

	// Close closes the store.
	Close() error
}
