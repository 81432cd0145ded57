package store

import (
	"context"
	"fmt"

	"github.com/rcliao/persona-memory/internal/persona"
)

// Exported is a persona snapshot with the name it is saved under. Name is
// empty when it equals the persona's own name.
type Exported struct {
	Name string `json:"name,omitempty"`
	*persona.Snapshot
}

// ExportAll returns snapshots of the named personas, or of every persona when
// no name is given.
func (s *SQLiteStore) ExportAll(ctx context.Context, names ...string) ([]Exported, error) {
	if len(names) == 0 {
		infos, err := s.ListPersonas(ctx)
		if err != nil {
			return nil, err
		}
		for _, info := range infos {
			names = append(names, info.Name)
		}
	}

	out := make([]Exported, 0, len(names))
	for _, name := range names {
		p, err := s.LoadPersona(ctx, name)
		if err != nil {
			return nil, err
		}
		e := Exported{Snapshot: p.Snapshot()}
		if name != p.Name() {
			e.Name = name
		}
		out = append(out, e)
	}
	return out, nil
}

// Import saves personas from an export. A persona already saved under the
// same name is skipped unless overwrite is set. Returns how many were saved.
func (s *SQLiteStore) Import(ctx context.Context, exported []Exported, overwrite bool) (int, error) {
	existing := map[string]bool{}
	if !overwrite {
		infos, err := s.ListPersonas(ctx)
		if err != nil {
			return 0, err
		}
		for _, info := range infos {
			existing[info.Name] = true
		}
	}

	imported := 0
	for _, e := range exported {
		if e.Snapshot == nil {
			return imported, fmt.Errorf("import: entry %q has no snapshot", e.Name)
		}
		p, err := persona.FromSnapshot(e.Snapshot)
		if err != nil {
			return imported, fmt.Errorf("import: %w", err)
		}
		name := e.Name
		if name == "" {
			name = p.Name()
		}
		if existing[name] {
			continue
		}
		if _, err := s.SavePersonaAs(ctx, name, p); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}
