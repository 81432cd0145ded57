package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/persona-memory/internal/ablate"
	"github.com/rcliao/persona-memory/internal/interview"
	"github.com/rcliao/persona-memory/internal/llm"
	"github.com/rcliao/persona-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "interview [question...]",
		Short: "Ask a persona questions",
		Long: "Interview a persona. Each argument is asked in turn within one conversation; " +
			"answers come from the memories retrieved for that question.",
		Args: cobra.MinimumNArgs(1),
		Run:  runInterview,
	}

	cmd.Flags().StringP("persona", "p", "", "Persona name (required)")
	cmd.Flags().String("condition", string(ablate.FullArchitecture), "Ablation condition to interview under")
	cmd.Flags().IntP("count", "n", 0, "Memories retrieved per question (default: config retrieval.count)")
	cmd.Flags().String("interviewer", "", "Interviewer speaker name (default: config interview.interviewer)")

	cmd.MarkFlagRequired("persona")

	RootCmd.AddCommand(cmd)
}

func runInterview(cmd *cobra.Command, args []string) {
	condStr, _ := cmd.Flags().GetString("condition")
	count, _ := cmd.Flags().GetInt("count")
	name, _ := cmd.Flags().GetString("interviewer")
	if count <= 0 {
		count = cfg.Retrieval.Count
	}
	if name == "" {
		name = cfg.Interview.Interviewer
	}

	cond, err := ablate.ParseCondition(condStr)
	if err != nil {
		exitErr("interview", err)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	e, err := newEmbedder()
	if err != nil {
		exitErr("configure embedder", err)
	}
	client, err := newLLM()
	if err != nil {
		exitErr("configure llm", err)
	}

	p, _ := loadPersona(cmd, s)
	if cond != ablate.FullArchitecture {
		if p, err = ablate.Derive(cmd.Context(), cond, p, ablationDeps(e)); err != nil {
			exitErr("ablate", err)
		}
	}

	iv := interview.New(interview.Config{
		Retriever: newRetriever(e),
		Generator: llm.NewGenerator(client),
		Name:      name,
		Count:     count,
		Weights:   &cfg.Retrieval.Weights,
		Logger:    logger,
	})

	var convo []model.Utterance
	exchanges := make([]*interview.Exchange, 0, len(args))
	var rows [][]string
	for _, q := range args {
		ex, err := iv.Interview(cmd.Context(), p, q, convo)
		if err != nil {
			exitErr("interview", err)
		}
		convo = ex.Conversation
		exchanges = append(exchanges, ex)
		rows = append(rows, []string{q, ex.Response})
	}
	printOutput(exchanges, []string{"QUESTION", p.Name()}, rows)
}
