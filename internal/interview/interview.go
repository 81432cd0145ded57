// Package interview asks personas questions and records how they answer.
package interview

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rcliao/persona-memory/internal/model"
	"github.com/rcliao/persona-memory/internal/persona"
	"github.com/rcliao/persona-memory/internal/retrieve"
)

// Defaults used when a Config leaves a field zero.
const (
	DefaultInterviewer = "Interviewer"
	DefaultCount       = 30
)

// Generator turns retrieved memories into the persona's words.
type Generator interface {
	SummarizeIdeas(ctx context.Context, s *model.Scratch, nodes []*model.Node, question string) (string, error)
	NextLine(ctx context.Context, s *model.Scratch, interviewer string, convo []model.Utterance, summarizedIdea string) (string, error)
}

// Config configures an Interviewer.
type Config struct {
	Retriever *retrieve.Retriever
	Generator Generator

	// Name is the interviewer's speaker name.
	Name string
	// Count bounds how many memories are retrieved per question.
	Count   int
	Weights *retrieve.Weights

	// Clock supplies the retrieval time when a persona has no current time.
	Clock  func() time.Time
	Logger *slog.Logger
}

// Interviewer runs single question and answer exchanges.
type Interviewer struct {
	retriever *retrieve.Retriever
	generator Generator
	name      string
	count     int
	weights   retrieve.Weights
	clock     func() time.Time
	logger    *slog.Logger
}

// New creates an Interviewer.
func New(cfg Config) *Interviewer {
	iv := &Interviewer{
		retriever: cfg.Retriever,
		generator: cfg.Generator,
		name:      cfg.Name,
		count:     cfg.Count,
		weights:   retrieve.DefaultWeights(),
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}
	if iv.name == "" {
		iv.name = DefaultInterviewer
	}
	if iv.count <= 0 {
		iv.count = DefaultCount
	}
	if cfg.Weights != nil {
		iv.weights = *cfg.Weights
	}
	if iv.clock == nil {
		iv.clock = time.Now
	}
	if iv.logger == nil {
		iv.logger = slog.Default()
	}
	return iv
}

// Exchange is the outcome of one question.
type Exchange struct {
	Retrieved      []*model.Node     `json:"retrieved"`
	SummarizedIdea string            `json:"summarized_idea"`
	Response       string            `json:"response"`
	Conversation   []model.Utterance `json:"conversation"`
}

// Interview asks p message. The question is the retrieval focal point; the
// retrieved memories are summarized and answered from. convo is not
// modified; the returned conversation extends a copy of it with the question
// and the answer. Retrieved memories have their last access set to the
// persona's current time.
func (iv *Interviewer) Interview(ctx context.Context, p *persona.Persona, message string, convo []model.Utterance) (*Exchange, error) {
	now := p.Scratch.CurrTime
	if now.IsZero() {
		now = iv.clock()
	}

	retrieved, err := iv.retriever.Retrieve(ctx, p, []string{message}, iv.count, iv.weights, now)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	nodes := retrieved[message]

	idea, err := iv.generator.SummarizeIdeas(ctx, p.Scratch, nodes, message)
	if err != nil {
		return nil, err
	}

	conversation := append(append([]model.Utterance(nil), convo...), model.Utterance{Speaker: iv.name, Line: message})
	response, err := iv.generator.NextLine(ctx, p.Scratch, iv.name, conversation, idea)
	if err != nil {
		return nil, err
	}
	conversation = append(conversation, model.Utterance{Speaker: p.Name(), Line: response})

	iv.logger.Debug("interview: answered",
		slog.String("persona", p.Name()),
		slog.Int("retrieved", len(nodes)),
		slog.String("question", message))

	return &Exchange{
		Retrieved:      nodes,
		SummarizedIdea: idea,
		Response:       response,
		Conversation:   conversation,
	}, nil
}
