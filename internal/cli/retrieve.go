package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/persona-memory/internal/ablate"
	"github.com/rcliao/persona-memory/internal/persona"
	"github.com/rcliao/persona-memory/internal/retrieve"
)

func init() {
	cmd := &cobra.Command{
		Use:   "retrieve [focal-point...]",
		Short: "Rank a persona's memories against focal points",
		Long: "Score every event and thought by recency, relevance and importance for each focal point " +
			"and print the top results. Each argument is one focal point.",
		Args: cobra.MinimumNArgs(1),
		Run:  runRetrieve,
	}

	cmd.Flags().StringP("persona", "p", "", "Persona name (required)")
	cmd.Flags().IntP("count", "n", 0, "Results per focal point (default: config retrieval.count)")
	cmd.Flags().String("condition", string(ablate.FullArchitecture), "Ablation condition to retrieve under")
	cmd.Flags().Float64("recency", -1, "Recency weight (default: config)")
	cmd.Flags().Float64("relevance", -1, "Relevance weight (default: config)")
	cmd.Flags().Float64("importance", -1, "Importance weight (default: config)")
	cmd.Flags().Bool("save", false, "Persist the updated last-accessed times")

	cmd.MarkFlagRequired("persona")

	RootCmd.AddCommand(cmd)
}

func runRetrieve(cmd *cobra.Command, args []string) {
	count, _ := cmd.Flags().GetInt("count")
	condStr, _ := cmd.Flags().GetString("condition")
	save, _ := cmd.Flags().GetBool("save")
	if count <= 0 {
		count = cfg.Retrieval.Count
	}
	w := weightsFromFlags(cmd)

	cond, err := ablate.ParseCondition(condStr)
	if err != nil {
		exitErr("retrieve", err)
	}
	if save && cond != ablate.FullArchitecture {
		exitErr("retrieve", fmt.Errorf("--save only applies to %s", ablate.FullArchitecture))
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

	p, key := loadPersona(cmd, s)
	if cond != ablate.FullArchitecture {
		if p, err = ablate.Derive(cmd.Context(), cond, p, ablationDeps(e)); err != nil {
			exitErr("ablate", err)
		}
	}

	scored, err := newRetriever(e).RetrieveScored(cmd.Context(), p, args, count, w, personaNow(p))
	if err != nil {
		exitErr("retrieve", err)
	}
	if save {
		if _, err := s.SavePersonaAs(cmd.Context(), key, p); err != nil {
			exitErr("save persona", err)
		}
	}

	var rows [][]string
	for _, focal := range args {
		for _, sc := range scored[focal] {
			rows = append(rows, []string{
				focal, sc.Node.NodeID,
				fmt.Sprintf("%.3f", sc.Score), fmt.Sprintf("%.3f", sc.Recency),
				fmt.Sprintf("%.3f", sc.Relevance), fmt.Sprintf("%.3f", sc.Importance),
				nodeRow(sc.Node)[5],
			})
		}
	}
	printOutput(scored, []string{"FOCAL POINT", "ID", "SCORE", "RECENCY", "RELEVANCE", "IMPORTANCE", "DESCRIPTION"}, rows)
}

func weightsFromFlags(cmd *cobra.Command) retrieve.Weights {
	w := cfg.Retrieval.Weights
	for flag, dst := range map[string]*float64{
		"recency":    &w.Recency,
		"relevance":  &w.Relevance,
		"importance": &w.Importance,
	} {
		if v, _ := cmd.Flags().GetFloat64(flag); v >= 0 {
			*dst = v
		}
	}
	return w
}

// personaNow is the persona's simulated time, or the wall clock when unset.
func personaNow(p *persona.Persona) time.Time {
	if !p.Scratch.CurrTime.IsZero() {
		return p.Scratch.CurrTime
	}
	return time.Now().UTC()
}
