package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get [node-id]",
		Short: "Show a memory node",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	cmd.Flags().StringP("persona", "p", "", "Persona name (required)")

	cmd.MarkFlagRequired("persona")

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	p, _ := loadPersona(cmd, s)
	n, err := p.Memory.Get(args[0])
	if err != nil {
		exitErr("get", err)
	}
	printJSON(n)
}
