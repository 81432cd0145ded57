package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcliao/persona-memory/internal/model"
)

// Generator turns retrieved memories into interview answers.
type Generator struct {
	client Client
}

// NewGenerator wraps a completion client.
func NewGenerator(c Client) *Generator {
	return &Generator{client: c}
}

func identity(s *model.Scratch) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Name: %s\n", s.Name)
	if s.Age > 0 {
		fmt.Fprintf(&sb, "Age: %d\n", s.Age)
	}
	for _, f := range []struct{ label, value string }{
		{"Innate traits", s.Innate},
		{"Learned traits", s.Learned},
		{"Currently", s.Currently},
		{"Lifestyle", s.Lifestyle},
	} {
		if f.value != "" {
			fmt.Fprintf(&sb, "%s: %s\n", f.label, f.value)
		}
	}
	return sb.String()
}

// SummarizeIdeas condenses the retrieved memories into what the persona
// would think about when answering question.
func (g *Generator) SummarizeIdeas(ctx context.Context, s *model.Scratch, nodes []*model.Node, question string) (string, error) {
	var statements strings.Builder
	for _, n := range nodes {
		fmt.Fprintf(&statements, "- %s\n", n.Description)
	}
	prompt := fmt.Sprintf(
		"%s\nStatements from %s's memory:\n%s\n"+
			"Given the statements above, summarize in one or two sentences what %s thinks that is relevant to the question: %q",
		identity(s), s.Name, statements.String(), s.Name, question)

	out, err := g.client.Complete(ctx, "You summarize a character's memories.", prompt)
	if err != nil {
		return "", fmt.Errorf("summarize ideas: %w", err)
	}
	return out, nil
}

// NextLine produces the persona's reply to the last line of convo.
func (g *Generator) NextLine(ctx context.Context, s *model.Scratch, interviewer string, convo []model.Utterance, summarizedIdea string) (string, error) {
	var transcript strings.Builder
	for _, u := range convo {
		fmt.Fprintf(&transcript, "%s: %s\n", u.Speaker, u.Line)
	}
	prompt := fmt.Sprintf(
		"%s\nHere is what %s is thinking: %s\n\nConversation so far:\n%s\n"+
			"Write %s's next line in reply to %s. Output only the line.",
		identity(s), s.Name, summarizedIdea, transcript.String(), s.Name, interviewer)

	out, err := g.client.Complete(ctx, "You speak as the character described, in first person.", prompt)
	if err != nil {
		return "", fmt.Errorf("next line: %w", err)
	}
	return strings.Trim(out, "\" "), nil
}
