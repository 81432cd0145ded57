package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/persona-memory/internal/ablate"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ablate",
		Short: "Derive an ablated copy of a persona",
		Long: "Clone a persona, remove memories per the condition and save the result under a new name. " +
			"Conditions: full_architecture, no_reflection, no_reflection_no_planning, " +
			"no_observation_no_reflection_no_planning.",
		Run: runAblate,
	}

	cmd.Flags().StringP("persona", "p", "", "Source persona (required)")
	cmd.Flags().String("condition", "", "Ablation condition (required)")
	cmd.Flags().String("as", "", "Save under this name (default: <persona> [<condition>])")

	cmd.MarkFlagRequired("persona")
	cmd.MarkFlagRequired("condition")

	RootCmd.AddCommand(cmd)
}

func runAblate(cmd *cobra.Command, args []string) {
	condStr, _ := cmd.Flags().GetString("condition")
	as, _ := cmd.Flags().GetString("as")

	cond, err := ablate.ParseCondition(condStr)
	if err != nil {
		exitErr("ablate", err)
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

	src, key := loadPersona(cmd, s)
	derived, err := ablate.Derive(cmd.Context(), cond, src, ablationDeps(e))
	if err != nil {
		exitErr("ablate", err)
	}

	if as == "" {
		as = key + " [" + string(cond) + "]"
	}
	// The stored name keys the persona; the scratch name stays the persona's
	// own so prompts and the self event keep referring to it.
	info, err := s.SavePersonaAs(cmd.Context(), as, derived)
	if err != nil {
		exitErr("save persona", err)
	}
	printJSON(info)
}
