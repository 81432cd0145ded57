package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/persona-memory/internal/ablate"
	"github.com/rcliao/persona-memory/internal/interview"
	"github.com/rcliao/persona-memory/internal/llm"
	"github.com/rcliao/persona-memory/internal/persona"
	"github.com/rcliao/persona-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "believability",
		Short: "Interview personas under every ablation condition",
		Long: "Run the question templates against each persona under each ablation condition and write " +
			"<out>/analysis/believability/interviews.yaml. Stored personas are not modified.",
		Args: cobra.NoArgs,
		Run:  runBelievability,
	}

	cmd.Flags().String("questions", "", "Question template YAML (default: config interview.questions)")
	cmd.Flags().StringP("out", "o", ".", "Output directory")
	cmd.Flags().StringSlice("persona", nil, "Personas to interview (default: all)")
	cmd.Flags().StringSlice("conditions", nil, "Conditions to run (default: all four)")
	cmd.Flags().Int64("seed", 0, "Seed for picking persona names (default: config interview.seed)")
	cmd.Flags().String("clause", "", "Value for {random_persona_clause}")
	cmd.Flags().String("event", "", "Value for {event}")
	cmd.Flags().Int("concurrency", 0, "Conditions interviewed at once (default: config interview.concurrency)")

	RootCmd.AddCommand(cmd)
}

func runBelievability(cmd *cobra.Command, args []string) {
	questions, _ := cmd.Flags().GetString("questions")
	out, _ := cmd.Flags().GetString("out")
	names, _ := cmd.Flags().GetStringSlice("persona")
	condNames, _ := cmd.Flags().GetStringSlice("conditions")
	seed, _ := cmd.Flags().GetInt64("seed")
	clause, _ := cmd.Flags().GetString("clause")
	event, _ := cmd.Flags().GetString("event")
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	ic := cfg.Interview
	if questions == "" {
		questions = ic.Questions
	}
	if questions == "" {
		exitErr("believability", fmt.Errorf("no question templates: set --questions or interview.questions"))
	}
	if !cmd.Flags().Changed("seed") {
		seed = ic.Seed
	}
	if clause == "" {
		clause = ic.Clause
	}
	if event == "" {
		event = ic.Event
	}
	if concurrency <= 0 {
		concurrency = ic.Concurrency
	}

	var conds []ablate.Condition
	for _, c := range condNames {
		cond, err := ablate.ParseCondition(strings.TrimSpace(c))
		if err != nil {
			exitErr("believability", err)
		}
		conds = append(conds, cond)
	}

	templates, err := interview.LoadTemplates(questions)
	if err != nil {
		exitErr("load questions", err)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	all, targets, err := interviewPool(cmd.Context(), s, names)
	if err != nil {
		exitErr("load personas", err)
	}

	e, err := newEmbedder()
	if err != nil {
		exitErr("configure embedder", err)
	}
	client, err := newLLM()
	if err != nil {
		exitErr("configure llm", err)
	}

	b := &interview.Believability{
		Interviewer: interview.New(interview.Config{
			Retriever: newRetriever(e),
			Generator: llm.NewGenerator(client),
			Name:      ic.Interviewer,
			Count:     cfg.Retrieval.Count,
			Weights:   &cfg.Retrieval.Weights,
			Logger:    logger,
		}),
		Templates: templates,
		Variables: interview.VariableSource{
			Others: all,
			Clause: clause,
			Event:  event,
			Seed:   seed,
		},
		Deps:        ablate.Deps{Embedder: e, Scorer: llm.NewImportanceScorer(client), Logger: logger},
		Conditions:  conds,
		Concurrency: concurrency,
		Logger:      logger,
	}

	report, err := b.Run(cmd.Context(), targets)
	if err != nil {
		exitErr("believability", err)
	}
	path, err := interview.WriteReport(out, report)
	if err != nil {
		exitErr("write report", err)
	}

	printJSON(map[string]any{
		"ok":       true,
		"run_id":   report.RunID,
		"personas": len(report.Interviews.Personas),
		"path":     path,
	})
}

// interviewPool loads the personas to interview and the personas their
// template names are drawn from. Ablated copies are in neither: they would
// repeat their source's name. With no names every source persona is
// interviewed.
func interviewPool(ctx context.Context, s *store.SQLiteStore, names []string) (all, targets []*persona.Persona, err error) {
	infos, err := s.ListPersonas(ctx)
	if err != nil {
		return nil, nil, err
	}
	stored := map[string]store.PersonaInfo{}
	for _, info := range infos {
		stored[info.Name] = info
	}
	selected := map[string]bool{}
	for _, n := range names {
		info, ok := stored[n]
		if !ok {
			return nil, nil, fmt.Errorf("%s: %w", n, store.ErrPersonaNotFound)
		}
		if info.IsCopy() {
			return nil, nil, fmt.Errorf("%s is an ablated copy of %s; interview the source instead", n, info.Persona)
		}
		selected[n] = true
	}

	for _, info := range infos {
		if info.IsCopy() {
			continue
		}
		p, err := s.LoadPersona(ctx, info.Name)
		if err != nil {
			return nil, nil, err
		}
		all = append(all, p)
		if len(names) == 0 || selected[info.Name] {
			targets = append(targets, p)
		}
	}
	return all, targets, nil
}
