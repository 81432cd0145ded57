package interview

import (
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rcliao/persona-memory/internal/persona"
)

// Question is a templated question. Placeholders are written {name}.
type Question struct {
	ID       string `yaml:"question_id"`
	Template string `yaml:"template"`
}

// Category groups questions.
type Category struct {
	Name      string
	Questions []Question
}

// LoadTemplates reads question templates from a YAML or JSON file shaped as
// a mapping of category to a mapping of question id to template. File order
// is kept.
func LoadTemplates(path string) ([]Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	return ParseTemplates(data)
}

// ParseTemplates parses templates, see LoadTemplates.
func ParseTemplates(data []byte) ([]Category, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse templates: expected a mapping of categories at line %d", root.Line)
	}

	var out []Category
	for i := 0; i+1 < len(root.Content); i += 2 {
		name, body := root.Content[i], root.Content[i+1]
		if body.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("parse templates: category %q must map question ids to templates", name.Value)
		}
		c := Category{Name: name.Value}
		for j := 0; j+1 < len(body.Content); j += 2 {
			c.Questions = append(c.Questions, Question{
				ID:       body.Content[j].Value,
				Template: body.Content[j+1].Value,
			})
		}
		out = append(out, c)
	}
	return out, nil
}

// VariableSource provides the values substituted into question templates.
type VariableSource struct {
	// Others are the personas the interviewed persona may be asked about.
	Others []*persona.Persona
	// Clause completes "who is ..." style questions, e.g. "organizing a party".
	Clause string
	// Event names an event personas may have heard of.
	Event string
	Seed  int64
}

// Variables returns the template values for p: two other persona names drawn
// with a seeded generator, the clause, the event, and the other persona p has
// exchanged the most dialog lines with. The two names are distinct whenever
// at least two other distinct names exist.
func (v VariableSource) Variables(p *persona.Persona) map[string]string {
	seen := map[string]bool{p.Name(): true}
	var names []string
	for _, o := range v.Others {
		if !seen[o.Name()] {
			seen[o.Name()] = true
			names = append(names, o.Name())
		}
	}
	sort.Strings(names)

	rng := rand.New(rand.NewSource(v.Seed))
	rng.Shuffle(len(names), func(i, j int) { names[i], names[j] = names[j], names[i] })
	pick := func(i int) string {
		if len(names) == 0 {
			return ""
		}
		return names[i%len(names)]
	}

	return map[string]string{
		"random_persona_name_1":   pick(0),
		"random_persona_name_2":   pick(1),
		"random_persona_clause":   v.Clause,
		"event":                   v.Event,
		"well_known_persona_name": wellKnown(p),
	}
}

func wellKnown(p *persona.Persona) string {
	_, exchanges := p.ChatInteractionCounts()
	best, bestCount := "", 0
	for name, count := range exchanges {
		if count > bestCount || (count == bestCount && name < best) {
			best, bestCount = name, count
		}
	}
	return best
}

// Fill substitutes {name} placeholders. Unknown placeholders are left as is.
func Fill(template string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
