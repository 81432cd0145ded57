package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/persona-memory/internal/model"
	"github.com/rcliao/persona-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search memories by text",
		Long:  "Search node descriptions and chat transcripts. Uses full-text search, falling back to substring match.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().StringP("persona", "p", "", "Only search this persona")
	cmd.Flags().StringP("type", "t", "", "Filter by type: event, thought, chat")
	cmd.Flags().IntP("limit", "l", 20, "Max results")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	name, _ := cmd.Flags().GetString("persona")
	typ, _ := cmd.Flags().GetString("type")
	limit, _ := cmd.Flags().GetInt("limit")
	query := strings.Join(args, " ")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	results, err := s.Search(cmd.Context(), store.SearchParams{
		Persona: name,
		Query:   query,
		Type:    model.NodeType(typ),
		Limit:   limit,
	})
	if err != nil {
		exitErr("search", err)
	}
	if results == nil {
		results = []store.SearchResult{}
	}

	var rows [][]string
	for _, r := range results {
		rows = append(rows, append([]string{r.Persona}, nodeRow(r.Node)...))
	}
	printOutput(results, append([]string{"PERSONA"}, nodeHeaders...), rows)
}
