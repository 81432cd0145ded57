package ablate

import (
	"context"

	"github.com/rcliao/persona-memory/internal/persona"
)

// Conditions holds one independently ablated clone of a persona per condition.
// The clones share nothing with each other or with the source persona, so
// they can be used concurrently.
type Conditions struct {
	order    []Condition
	personas map[Condition]*persona.Persona
}

// NewConditions clones p once per condition and ablates each clone. With no
// conditions given, AllConditions is used.
func NewConditions(ctx context.Context, p *persona.Persona, deps Deps, conds ...Condition) (*Conditions, error) {
	if len(conds) == 0 {
		conds = AllConditions
	}
	c := &Conditions{personas: make(map[Condition]*persona.Persona, len(conds))}
	for _, cond := range conds {
		if _, dup := c.personas[cond]; dup {
			continue
		}
		derived, err := Derive(ctx, cond, p, deps)
		if err != nil {
			return nil, err
		}
		c.order = append(c.order, cond)
		c.personas[cond] = derived
	}
	return c, nil
}

// List returns the conditions in the order they were derived.
func (c *Conditions) List() []Condition {
	return append([]Condition(nil), c.order...)
}

// Persona returns the clone for cond.
func (c *Conditions) Persona(cond Condition) (*persona.Persona, bool) {
	p, ok := c.personas[cond]
	return p, ok
}
