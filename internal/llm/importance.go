package llm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rcliao/persona-memory/internal/model"
)

// ImportanceScorer rates the poignancy of a memory on a 1 to 10 scale.
type ImportanceScorer struct {
	client Client
}

// NewImportanceScorer wraps a completion client.
func NewImportanceScorer(c Client) *ImportanceScorer {
	return &ImportanceScorer{client: c}
}

var ratingRegex = regexp.MustCompile(`\d+`)

// ScoreImportance returns 1 for idling without asking the model.
func (s *ImportanceScorer) ScoreImportance(ctx context.Context, sc *model.Scratch, kind model.NodeType, description string) (float64, error) {
	if strings.Contains(description, "is idle") {
		return 1, nil
	}

	subject := "event"
	scale := "1 is purely mundane (e.g., brushing teeth, making bed) and 10 is extremely poignant (e.g., a break up, college acceptance)"
	switch kind {
	case model.TypeChat:
		subject = "conversation"
		scale = "1 is purely mundane (e.g., routine morning greetings) and 10 is extremely poignant (e.g., a conversation about breaking up, a fight)"
	case model.TypeThought:
		subject = "thought"
	}

	prompt := fmt.Sprintf(
		"%s\nOn the scale of 1 to 10, where %s, rate the likely poignancy of the following %s for %s.\n%s: %s\nRating (a single number):",
		identity(sc), scale, subject, sc.Name, strings.ToUpper(subject[:1])+subject[1:], description)

	out, err := s.client.Complete(ctx, "", prompt)
	if err != nil {
		return 0, fmt.Errorf("score importance: %w", err)
	}
	return ParseRating(out)
}

// ParseRating extracts the first integer from a model reply, clamped to 1..10.
func ParseRating(reply string) (float64, error) {
	m := ratingRegex.FindString(reply)
	if m == "" {
		return 0, fmt.Errorf("no rating in reply %q", reply)
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, fmt.Errorf("parse rating %q: %w", m, err)
	}
	if n < 1 {
		n = 1
	}
	if n > 10 {
		n = 10
	}
	return float64(n), nil
}
