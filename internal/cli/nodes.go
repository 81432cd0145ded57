package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/persona-memory/internal/model"
	"github.com/rcliao/persona-memory/internal/persona"
	"github.com/rcliao/persona-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "List a persona's memory nodes",
		Run:   runNodes,
	}

	cmd.Flags().StringP("persona", "p", "", "Persona name (required)")
	cmd.Flags().StringP("type", "t", "", "Filter by type: event, thought, chat")
	cmd.Flags().String("kind", "", "Filter by filling: plan, reflection, reflection_error, transcript, evidence")
	cmd.Flags().String("category", "", "Filter by category: chat_event, object_observation_event, activity_event, "+
		"plan_thought, reflection_thought, reflection_error_thought, chat")
	cmd.Flags().Bool("live", false, "Skip nodes expired at the persona's current time")
	cmd.Flags().StringP("keyword", "k", "", "Only nodes indexed under this keyword")
	cmd.Flags().IntP("limit", "l", 0, "Max results, most recent first (0 = all)")

	cmd.MarkFlagRequired("persona")

	RootCmd.AddCommand(cmd)
}

func runNodes(cmd *cobra.Command, args []string) {
	typ, _ := cmd.Flags().GetString("type")
	kind, _ := cmd.Flags().GetString("kind")
	keyword, _ := cmd.Flags().GetString("keyword")
	category, _ := cmd.Flags().GetString("category")
	live, _ := cmd.Flags().GetBool("live")
	limit, _ := cmd.Flags().GetInt("limit")

	if typ != "" && !model.ValidTypes[model.NodeType(typ)] {
		exitErr("nodes", fmt.Errorf("invalid type %q (valid: event, thought, chat)", typ))
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	p, _ := loadPersona(cmd, s)

	var nodes []*model.Node
	if keyword != "" {
		nodes = p.Memory.ByKeyword(keyword)
	} else {
		nodes = p.Memory.Nodes()
	}

	printNodes(filterNodes(nodes, nodeFilter{
		Type:     model.NodeType(typ),
		Kind:     model.FillingKind(kind),
		Category: model.Category(category),
		Live:     live,
		Now:      personaNow(p),
		Limit:    limit,
	}))
}

type nodeFilter struct {
	Type     model.NodeType
	Kind     model.FillingKind
	Category model.Category
	// Live drops nodes expired at Now.
	Live  bool
	Now   time.Time
	Limit int
}

// filterNodes returns the matching nodes, most recent first.
func filterNodes(nodes []*model.Node, f nodeFilter) []*model.Node {
	var out []*model.Node
	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		if f.Type != "" && n.Type != f.Type {
			continue
		}
		if f.Kind != "" && n.Filling.Kind != f.Kind {
			continue
		}
		if f.Category != "" && n.Classify() != f.Category {
			continue
		}
		if f.Live && n.Expired(f.Now) {
			continue
		}
		out = append(out, n)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

// loadPersona loads the persona saved under --persona and returns it with
// that key. The key differs from p.Name() for ablated copies, so saves go
// through SavePersonaAs with the key.
func loadPersona(cmd *cobra.Command, s *store.SQLiteStore) (*persona.Persona, string) {
	key, _ := cmd.Flags().GetString("persona")
	p, err := s.LoadPersona(cmd.Context(), key)
	if err != nil {
		exitErr("load persona", err)
	}
	return p, key
}

func printNodes(nodes []*model.Node) {
	if nodes == nil {
		nodes = []*model.Node{}
	}
	var rows [][]string
	for _, n := range nodes {
		rows = append(rows, nodeRow(n))
	}
	printOutput(nodes, nodeHeaders, rows)
}

var nodeHeaders = []string{"ID", "TYPE", "CATEGORY", "CREATED", "POIGNANCY", "DESCRIPTION"}

func nodeRow(n *model.Node) []string {
	desc := n.Description
	if len(desc) > 60 {
		desc = desc[:57] + "..."
	}
	return []string{
		n.NodeID, string(n.Type), string(n.Classify()),
		n.Created.Format("2006-01-02 15:04"), fmt.Sprintf("%g", n.Poignancy),
		strings.ReplaceAll(desc, "\n", " "),
	}
}
