package interview

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/persona-memory/internal/ablate"
	"github.com/rcliao/persona-memory/internal/persona"
)

// Report is the believability interview transcript.
type Report struct {
	RunID       string     `yaml:"run_id" json:"run_id"`
	GeneratedAt time.Time  `yaml:"generated_at" json:"generated_at"`
	Interviews  Interviews `yaml:"interviews" json:"interviews"`
}

// Interviews holds one entry per persona.
type Interviews struct {
	Personas []PersonaReport `yaml:"personas" json:"personas"`
}

// PersonaReport holds one persona's answers by category.
type PersonaReport struct {
	Persona    string           `yaml:"persona" json:"persona"`
	Categories []CategoryReport `yaml:"categories" json:"categories"`
}

// CategoryReport holds the questions of one category.
type CategoryReport struct {
	Category  string           `yaml:"category" json:"category"`
	Questions []QuestionReport `yaml:"questions" json:"questions"`
}

// QuestionReport holds the answers to one question under every condition.
type QuestionReport struct {
	QuestionID string            `yaml:"question_id" json:"question_id"`
	Question   string            `yaml:"question" json:"question"`
	Conditions []ConditionReport `yaml:"conditions" json:"conditions"`
}

// ConditionReport is one answer.
type ConditionReport struct {
	Condition      string `yaml:"condition" json:"condition"`
	Response       string `yaml:"response" json:"response"`
	SummarizedIdea string `yaml:"summarized_idea" json:"summarized_idea"`
}

// Believability interviews personas under every ablation condition.
type Believability struct {
	Interviewer *Interviewer
	Templates   []Category
	Variables   VariableSource
	Deps        ablate.Deps
	// Conditions defaults to ablate.AllConditions.
	Conditions []ablate.Condition
	// Concurrency bounds how many conditions are interviewed at once; <= 1
	// interviews them one at a time.
	Concurrency int
	Logger      *slog.Logger
}

// Run interviews every persona. Source personas are never mutated: each is
// cloned once per condition and only the clones are ablated and interviewed.
func (b *Believability) Run(ctx context.Context, personas []*persona.Persona) (*Report, error) {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	report := &Report{
		RunID:       ulid.Make().String(),
		GeneratedAt: time.Now().UTC(),
	}

	for _, p := range personas {
		conds, err := ablate.NewConditions(ctx, p, b.Deps, b.Conditions...)
		if err != nil {
			return nil, fmt.Errorf("derive conditions for %s: %w", p.Name(), err)
		}
		vars := b.Variables.Variables(p)

		pr := PersonaReport{Persona: p.Name()}
		for _, cat := range b.Templates {
			cr := CategoryReport{Category: cat.Name}
			for _, q := range cat.Questions {
				qr, err := b.askAll(ctx, conds, q, Fill(q.Template, vars))
				if err != nil {
					return nil, fmt.Errorf("%s/%s/%s: %w", p.Name(), cat.Name, q.ID, err)
				}
				cr.Questions = append(cr.Questions, qr)
			}
			pr.Categories = append(pr.Categories, cr)
		}
		report.Interviews.Personas = append(report.Interviews.Personas, pr)

		logger.Info("believability: interviewed persona",
			slog.String("run_id", report.RunID),
			slog.String("persona", p.Name()),
			slog.Int("categories", len(pr.Categories)))
	}
	return report, nil
}

func (b *Believability) askAll(ctx context.Context, conds *ablate.Conditions, q Question, text string) (QuestionReport, error) {
	list := conds.List()
	answers := make([]ConditionReport, len(list))

	g, gctx := errgroup.WithContext(ctx)
	limit := b.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, cond := range list {
		p, _ := conds.Persona(cond)
		g.Go(func() error {
			ex, err := b.Interviewer.Interview(gctx, p, text, nil)
			if err != nil {
				return fmt.Errorf("%s: %w", cond, err)
			}
			answers[i] = ConditionReport{
				Condition:      string(cond),
				Response:       ex.Response,
				SummarizedIdea: ex.SummarizedIdea,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return QuestionReport{}, err
	}
	return QuestionReport{QuestionID: q.ID, Question: text, Conditions: answers}, nil
}

// ReportPath is where WriteReport puts the report under dir.
func ReportPath(dir string) string {
	return filepath.Join(dir, "analysis", "believability", "interviews.yaml")
}

// WriteReport writes r as YAML to ReportPath(dir) and returns the path.
func WriteReport(dir string, r *Report) (string, error) {
	path := ReportPath(dir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	return path, nil
}
