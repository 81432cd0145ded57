package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "evidence [node-id]",
		Short: "Show what a node cites and what cites it",
		Args:  cobra.ExactArgs(1),
		Run:   runEvidence,
	}

	cmd.Flags().StringP("persona", "p", "", "Persona name (required)")

	cmd.MarkFlagRequired("persona")

	RootCmd.AddCommand(cmd)
}

func runEvidence(cmd *cobra.Command, args []string) {
	name, _ := cmd.Flags().GetString("persona")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	ev, err := s.Evidence(cmd.Context(), name, args[0])
	if err != nil {
		exitErr("evidence", err)
	}
	printJSON(ev)
}
