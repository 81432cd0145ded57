package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/persona-memory/internal/memory"
	"github.com/rcliao/persona-memory/internal/model"
	"github.com/rcliao/persona-memory/internal/persona"
)

func init() {
	cmd := &cobra.Command{
		Use:   "recall",
		Short: "Show what a persona associates with a triple",
		Long: "List the events and thoughts sharing a keyword with the subject, predicate or object, " +
			"with each keyword's strength. Without a triple the persona's latest event is used.",
		Run: runRecall,
	}

	cmd.Flags().StringP("persona", "p", "", "Persona name (required)")
	cmd.Flags().String("subject", "", "Subject keyword")
	cmd.Flags().String("predicate", "", "Predicate keyword")
	cmd.Flags().String("object", "", "Object keyword")
	cmd.Flags().String("with", "", "Also show the last chat with this persona")
	cmd.Flags().Int("latest", 0, "Also summarize this many latest events")

	cmd.MarkFlagRequired("persona")

	RootCmd.AddCommand(cmd)
}

type keywordStrength struct {
	Event   int `json:"event"`
	Thought int `json:"thought"`
}

type recallResult struct {
	Triple   memory.Triple              `json:"triple"`
	Events   []*model.Node              `json:"events"`
	Thoughts []*model.Node              `json:"thoughts"`
	Strength map[string]keywordStrength `json:"keyword_strength"`
	LastChat *model.Node                `json:"last_chat,omitempty"`
	Latest   []memory.Triple            `json:"latest,omitempty"`
}

func runRecall(cmd *cobra.Command, args []string) {
	var t memory.Triple
	t.Subject, _ = cmd.Flags().GetString("subject")
	t.Predicate, _ = cmd.Flags().GetString("predicate")
	t.Object, _ = cmd.Flags().GetString("object")
	with, _ := cmd.Flags().GetString("with")
	latest, _ := cmd.Flags().GetInt("latest")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	p, _ := loadPersona(cmd, s)
	res, err := recall(p, t, with, latest)
	if err != nil {
		exitErr("recall", err)
	}

	var rows [][]string
	for _, n := range append(append([]*model.Node{}, res.Events...), res.Thoughts...) {
		rows = append(rows, nodeRow(n))
	}
	printOutput(res, nodeHeaders, rows)
}

// recall gathers the nodes related to t. An empty triple falls back to the
// latest event's.
func recall(p *persona.Persona, t memory.Triple, with string, latest int) (*recallResult, error) {
	if t == (memory.Triple{}) {
		events := p.Memory.Events()
		if len(events) == 0 {
			return nil, fmt.Errorf("%s has no events; pass --subject, --predicate or --object", p.Name())
		}
		t.Subject, t.Predicate, t.Object = events[len(events)-1].SPO()
	}

	res := &recallResult{
		Triple:   t,
		Events:   p.Memory.RelevantEvents(t.Subject, t.Predicate, t.Object),
		Thoughts: p.Memory.RelevantThoughts(t.Subject, t.Predicate, t.Object),
		Strength: map[string]keywordStrength{},
	}
	for _, kw := range []string{t.Subject, t.Predicate, t.Object} {
		if kw == "" {
			continue
		}
		e, th := p.Memory.KeywordStrength(kw)
		res.Strength[kw] = keywordStrength{Event: e, Thought: th}
	}
	if with != "" {
		if n, ok := p.Memory.LastChat(with); ok {
			res.LastChat = n
		}
	}
	if latest > 0 {
		res.Latest = p.Memory.SummarizedLatestEvents(latest)
	}
	return res, nil
}
