package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/persona-memory/internal/llm"
	"github.com/rcliao/persona-memory/internal/memory"
	"github.com/rcliao/persona-memory/internal/model"
	"github.com/rcliao/persona-memory/internal/persona"
	"github.com/rcliao/persona-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "add [description]",
		Short: "Add a memory node to a persona",
		Long: "Add an event, thought or chat. The description can be a positional arg or piped via stdin. " +
			"Without --poignancy the configured LLM rates the node.",
		Run: runAdd,
	}

	cmd.Flags().StringP("persona", "p", "", "Persona name (required)")
	cmd.Flags().Bool("create", false, "Create the persona if it does not exist")
	cmd.Flags().StringP("type", "t", "event", "Type: event, thought, chat")
	cmd.Flags().String("kind", "", "Thought filling: plan, reflection (default: reflection with --evidence, else plan)")
	cmd.Flags().String("subject", "", "Subject of the triple")
	cmd.Flags().String("predicate", "", "Predicate of the triple")
	cmd.Flags().String("object", "", "Object of the triple")
	cmd.Flags().StringP("keywords", "k", "", "Comma-separated keywords")
	cmd.Flags().StringSlice("evidence", nil, "Node ids a reflection cites")
	cmd.Flags().StringArray("line", nil, `Chat transcript line "Speaker: text" (repeatable)`)
	cmd.Flags().Float64("poignancy", -1, "Importance 1-10 (default: rated by the LLM)")
	cmd.Flags().String("created", "", "Creation time, RFC3339 (default: the persona's current time, else now)")
	cmd.Flags().Duration("expires-in", 0, "Expire the node this long after creation")

	cmd.MarkFlagRequired("persona")

	RootCmd.AddCommand(cmd)
}

func runAdd(cmd *cobra.Command, args []string) {
	key, _ := cmd.Flags().GetString("persona")
	create, _ := cmd.Flags().GetBool("create")
	typ, _ := cmd.Flags().GetString("type")
	kind, _ := cmd.Flags().GetString("kind")
	keywordsStr, _ := cmd.Flags().GetString("keywords")
	evidence, _ := cmd.Flags().GetStringSlice("evidence")
	lines, _ := cmd.Flags().GetStringArray("line")
	poignancy, _ := cmd.Flags().GetFloat64("poignancy")
	createdStr, _ := cmd.Flags().GetString("created")
	expiresIn, _ := cmd.Flags().GetDuration("expires-in")

	in := memory.NodeInput{Type: model.NodeType(typ)}
	in.Subject, _ = cmd.Flags().GetString("subject")
	in.Predicate, _ = cmd.Flags().GetString("predicate")
	in.Object, _ = cmd.Flags().GetString("object")

	// Description: positional arg first, then stdin
	if len(args) > 0 {
		in.Description = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			in.Description = string(b)
		}
	}
	in.Description = strings.TrimSpace(in.Description)
	if in.Description == "" {
		exitErr("add", fmt.Errorf("description is required (positional arg or stdin)"))
	}

	for _, k := range strings.Split(keywordsStr, ",") {
		if k = strings.TrimSpace(k); k != "" {
			in.Keywords = append(in.Keywords, k)
		}
	}

	filling, err := fillingFor(in.Type, kind, evidence, lines)
	if err != nil {
		exitErr("add", err)
	}
	in.Filling = filling

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	p, err := s.LoadPersona(cmd.Context(), key)
	if errors.Is(err, store.ErrPersonaNotFound) && create {
		p, err = persona.New(key), nil
	}
	if err != nil {
		exitErr("load persona", err)
	}

	in.Created = p.Scratch.CurrTime
	if createdStr != "" {
		if in.Created, err = time.Parse(time.RFC3339, createdStr); err != nil {
			exitErr("parse --created", err)
		}
	}
	if in.Created.IsZero() {
		in.Created = time.Now().UTC()
	}
	if expiresIn > 0 {
		exp := in.Created.Add(expiresIn)
		in.Expiration = &exp
	}

	e, err := newEmbedder()
	if err != nil {
		exitErr("configure embedder", err)
	}
	if e != nil {
		if in.Embedding, err = e.Embed(cmd.Context(), in.Description); err != nil {
			exitErr("embed", err)
		}
	}

	if poignancy < 0 {
		c, err := newLLM()
		if err != nil {
			exitErr("add", fmt.Errorf("--poignancy is required without an llm provider: %w", err))
		}
		if poignancy, err = llm.NewImportanceScorer(c).ScoreImportance(cmd.Context(), p.Scratch, in.Type, in.Description); err != nil {
			exitErr("score importance", err)
		}
	}
	in.Poignancy = poignancy

	n, err := p.Memory.Add(in)
	if err != nil {
		exitErr("add", err)
	}
	if _, err := s.SavePersonaAs(cmd.Context(), key, p); err != nil {
		exitErr("save persona", err)
	}

	logger.Info("added node",
		"persona", key, "node_id", n.NodeID, "type", string(n.Type), "poignancy", n.Poignancy)
	printJSON(n)
}

func fillingFor(t model.NodeType, kind string, evidence, lines []string) (model.Filling, error) {
	switch t {
	case model.TypeEvent:
		return model.EvidenceFilling(evidence...), nil
	case model.TypeChat:
		var utterances []model.Utterance
		for _, l := range lines {
			speaker, line, ok := strings.Cut(l, ":")
			if !ok {
				return model.Filling{}, fmt.Errorf("transcript line %q must look like \"Speaker: text\"", l)
			}
			utterances = append(utterances, model.Utterance{Speaker: strings.TrimSpace(speaker), Line: strings.TrimSpace(line)})
		}
		return model.TranscriptFilling(utterances...), nil
	case model.TypeThought:
		if kind == "" {
			kind = string(model.FillingPlan)
			if len(evidence) > 0 {
				kind = string(model.FillingReflection)
			}
		}
		switch model.FillingKind(kind) {
		case model.FillingPlan:
			return model.PlanFilling(), nil
		case model.FillingReflection:
			return model.ReflectionFilling(evidence...), nil
		}
		return model.Filling{}, fmt.Errorf("invalid thought kind %q (valid: plan, reflection)", kind)
	}
	return model.Filling{}, fmt.Errorf("invalid type %q (valid: event, thought, chat)", t)
}
