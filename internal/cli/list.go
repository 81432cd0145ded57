package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved personas",
		Run:   runList,
	}

	cmd.Flags().Bool("names-only", false, "Only output persona names")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	namesOnly, _ := cmd.Flags().GetBool("names-only")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	personas, err := s.ListPersonas(cmd.Context())
	if err != nil {
		exitErr("list", err)
	}

	if namesOnly {
		for _, p := range personas {
			fmt.Println(p.Name)
		}
		return
	}

	var rows [][]string
	for _, p := range personas {
		rows = append(rows, []string{
			p.Name, p.Persona,
			fmt.Sprint(p.Events), fmt.Sprint(p.Thoughts), fmt.Sprint(p.Chats),
			p.SavedAt.Format("2006-01-02 15:04"),
		})
	}
	printOutput(personas, []string{"NAME", "PERSONA", "EVENTS", "THOUGHTS", "CHATS", "SAVED"}, rows)
}
