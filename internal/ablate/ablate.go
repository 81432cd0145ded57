// Package ablate derives reduced personas for memory ablation experiments.
//
// The transform functions mutate the persona they are given. Use Derive or
// NewConditions to ablate an independent clone and leave the source intact.
// Every transform rebuilds the memory indexes, so the result satisfies the
// same invariants as an unablated memory and can be retrieved from as is.
package ablate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rcliao/persona-memory/internal/embedding"
	"github.com/rcliao/persona-memory/internal/memory"
	"github.com/rcliao/persona-memory/internal/model"
	"github.com/rcliao/persona-memory/internal/persona"
)

// Condition names an ablation.
type Condition string

const (
	FullArchitecture                    Condition = "full_architecture"
	NoReflection                        Condition = "no_reflection"
	NoReflectionNoPlanning              Condition = "no_reflection_no_planning"
	NoObservationNoReflectionNoPlanning Condition = "no_observation_no_reflection_no_planning"
)

// AllConditions lists the conditions from least to most destructive.
var AllConditions = []Condition{
	FullArchitecture,
	NoReflection,
	NoReflectionNoPlanning,
	NoObservationNoReflectionNoPlanning,
}

// SentinelNodeID is the id forced onto the only memory left by the full ablation.
const SentinelNodeID = "node_0"

var (
	// ErrUnknownCondition is returned for an unrecognized condition name.
	ErrUnknownCondition = errors.New("unknown ablation condition")
	// ErrMissingCollaborator is returned when a transform needs an embedder
	// or importance scorer that was not supplied.
	ErrMissingCollaborator = errors.New("missing collaborator")
)

// ParseCondition validates a condition name.
func ParseCondition(s string) (Condition, error) {
	for _, c := range AllConditions {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCondition, s)
}

// ImportanceScorer rates how poignant a new memory is for a persona.
type ImportanceScorer interface {
	ScoreImportance(ctx context.Context, s *model.Scratch, kind model.NodeType, description string) (float64, error)
}

// Deps are the collaborators the full ablation needs.
type Deps struct {
	Embedder embedding.Embedder
	Scorer   ImportanceScorer
	Logger   *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// RemoveReflections keeps plan thoughts only. Thought keyword buckets left
// empty are dropped. Mutates p in place and returns the number of thoughts
// removed.
func RemoveReflections(p *persona.Persona) int {
	return p.Memory.Retain(func(n *model.Node) bool {
		return n.Type != model.TypeThought || n.IsPlan()
	})
}

// RemoveReflectionsAndPlans removes every thought and clears the scratch
// fields derived from planning. Mutates p in place.
func RemoveReflectionsAndPlans(p *persona.Persona) int {
	removed := p.Memory.Retain(func(n *model.Node) bool {
		return n.Type != model.TypeThought
	})
	p.Scratch.ClearPlanning()
	return removed
}

// RemoveObservationsReflectionsAndPlans replaces the whole memory with a
// single self-referential event "<name> is <name>" with id SentinelNodeID,
// created at the time of the persona's earliest event. Chats, thoughts, the
// conversation state and the planning state are cleared. Mutates p in place;
// collaborator failures leave p unchanged.
func RemoveObservationsReflectionsAndPlans(ctx context.Context, p *persona.Persona, deps Deps) error {
	if deps.Embedder == nil || deps.Scorer == nil {
		return fmt.Errorf("%w: full ablation needs an embedder and an importance scorer", ErrMissingCollaborator)
	}

	name := p.Name()
	description := name + " is " + name

	created := p.Scratch.CurrTime
	if events := p.Memory.Events(); len(events) > 0 {
		created = events[0].Created
	}

	vec, err := deps.Embedder.Embed(ctx, description)
	if err != nil {
		return fmt.Errorf("embed %q: %w", description, err)
	}
	poignancy, err := deps.Scorer.ScoreImportance(ctx, p.Scratch, model.TypeEvent, description)
	if err != nil {
		return fmt.Errorf("score importance of %q: %w", description, err)
	}

	n, err := p.Memory.AddEvent(memory.NodeInput{
		Created:     created,
		Subject:     name,
		Predicate:   "is",
		Object:      name,
		Description: description,
		Keywords:    []string{name},
		Poignancy:   poignancy,
		Embedding:   vec,
	})
	if err != nil {
		return fmt.Errorf("add self event: %w", err)
	}
	if _, err := p.Memory.Isolate(n.NodeID, SentinelNodeID); err != nil {
		return err
	}

	p.Scratch.ClearConversation()
	p.Scratch.ClearPlanning()
	return nil
}

// Apply runs the transform for cond on p in place.
func Apply(ctx context.Context, cond Condition, p *persona.Persona, deps Deps) error {
	before := p.Memory.Len()
	switch cond {
	case FullArchitecture:
	case NoReflection:
		RemoveReflections(p)
	case NoReflectionNoPlanning:
		RemoveReflectionsAndPlans(p)
	case NoObservationNoReflectionNoPlanning:
		if err := RemoveObservationsReflectionsAndPlans(ctx, p, deps); err != nil {
			return fmt.Errorf("%s: %w", cond, err)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCondition, cond)
	}
	if err := p.Memory.Validate(); err != nil {
		return fmt.Errorf("%s left an inconsistent memory: %w", cond, err)
	}

	deps.logger().Info("ablate: applied condition",
		slog.String("persona", p.Name()),
		slog.String("condition", string(cond)),
		slog.Int("nodes_before", before),
		slog.Int("nodes_after", p.Memory.Len()))
	return nil
}

// Derive returns a clone of p ablated under cond. p is not modified.
func Derive(ctx context.Context, cond Condition, p *persona.Persona, deps Deps) (*persona.Persona, error) {
	c := p.Clone()
	if err := Apply(ctx, cond, c, deps); err != nil {
		return nil, err
	}
	return c, nil
}
