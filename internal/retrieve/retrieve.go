// Package retrieve ranks a persona's memories against focal points.
//
// Each candidate gets three component scores: recency (exponential decay over
// its position in last-accessed order), importance (its poignancy) and
// relevance (cosine similarity to the focal point). Components are min-max
// normalized independently, weighted by both the caller's weights and the
// persona's trait weights, and summed. The top k nodes per focal point are
// returned and have their last-accessed time set to the caller's now.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rcliao/persona-memory/internal/embedding"
	"github.com/rcliao/persona-memory/internal/memory"
	"github.com/rcliao/persona-memory/internal/model"
	"github.com/rcliao/persona-memory/internal/persona"
)

// ErrNoEmbedder is returned when relevance needs a vector and no embedder is set.
var ErrNoEmbedder = errors.New("no embedder configured")

// Weights scale the three score components.
type Weights struct {
	Recency    float64 `json:"recency" yaml:"recency"`
	Relevance  float64 `json:"relevance" yaml:"relevance"`
	Importance float64 `json:"importance" yaml:"importance"`
}

// DefaultWeights weighs every component equally.
func DefaultWeights() Weights {
	return Weights{Recency: 1, Relevance: 1, Importance: 1}
}

// Scored is a ranked node with its normalized component scores.
type Scored struct {
	Node       *model.Node `json:"node"`
	Recency    float64     `json:"recency"`
	Relevance  float64     `json:"relevance"`
	Importance float64     `json:"importance"`
	Score      float64     `json:"score"`
}

// Config configures a Retriever.
type Config struct {
	// Embedder embeds focal points and any candidate key missing from the
	// persona's embedding table. It must be safe for concurrent use when
	// Parallelism > 1.
	Embedder embedding.Embedder

	// Parallelism > 1 scores focal points concurrently against the memory as
	// it was at the start of the call; last-accessed updates are applied once
	// every focal point is ranked. Otherwise focal points are ranked in order
	// and each sees the updates of the previous ones.
	Parallelism int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Retriever ranks memories. It holds no per-persona state.
type Retriever struct {
	embedder    embedding.Embedder
	parallelism int
	logger      *slog.Logger
}

// New creates a Retriever.
func New(cfg Config) *Retriever {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder:    cfg.Embedder,
		parallelism: cfg.Parallelism,
		logger:      logger,
	}
}

// Retrieve returns up to k nodes per focal point, most relevant first.
func (r *Retriever) Retrieve(ctx context.Context, p *persona.Persona, focalPoints []string, k int, w Weights, now time.Time) (map[string][]*model.Node, error) {
	scored, err := r.RetrieveScored(ctx, p, focalPoints, k, w, now)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]*model.Node, len(scored))
	for fp, ranked := range scored {
		nodes := make([]*model.Node, len(ranked))
		for i, s := range ranked {
			nodes[i] = s.Node
		}
		out[fp] = nodes
	}
	return out, nil
}

// RetrieveScored is Retrieve with the score breakdown of every returned node.
// Every focal point is ranked against the memory as it was when the call
// began; last-access times are updated once all focal points are ranked, so
// the result does not depend on Parallelism or on focal point order.
func (r *Retriever) RetrieveScored(ctx context.Context, p *persona.Persona, focalPoints []string, k int, w Weights, now time.Time) (map[string][]Scored, error) {
	results := make([][]Scored, len(focalPoints))

	if r.parallelism > 1 && len(focalPoints) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.parallelism)
		for i, fp := range focalPoints {
			g.Go(func() error {
				ranked, err := r.rank(gctx, p, fp, k, w)
				if err != nil {
					return err
				}
				results[i] = ranked
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, fp := range focalPoints {
			ranked, err := r.rank(ctx, p, fp, k, w)
			if err != nil {
				return nil, err
			}
			results[i] = ranked
		}
	}

	out := make(map[string][]Scored, len(focalPoints))
	for i, fp := range focalPoints {
		touch(results[i], now)
		out[fp] = results[i]
	}
	return out, nil
}

func touch(ranked []Scored, now time.Time) {
	for _, s := range ranked {
		s.Node.LastAccessed = now
	}
}

// rank scores every candidate against one focal point. It does not mutate
// the persona.
func (r *Retriever) rank(ctx context.Context, p *persona.Persona, focal string, k int, w Weights) ([]Scored, error) {
	start := time.Now()
	defer func() { retrievalDuration.Observe(time.Since(start).Seconds()) }()

	if k <= 0 {
		return []Scored{}, nil
	}

	candidates := Candidates(p.Memory)
	retrievalCandidates.Observe(float64(len(candidates)))
	if len(candidates) == 0 {
		retrievalEmpty.Inc()
		r.logger.Debug("retrieve: no candidates", slog.String("persona", p.Name()), slog.String("focal_point", focal))
		return []Scored{}, nil
	}

	recency := Normalize(RecencyScores(candidates, p.Scratch.Decay()))
	importance := Normalize(ImportanceScores(candidates))
	rel, err := r.relevanceScores(ctx, p.Memory, candidates, focal)
	if err != nil {
		return nil, err
	}
	relevance := Normalize(rel)

	sw := p.Scratch
	ranked := make([]Scored, len(candidates))
	for i, n := range candidates {
		s := Scored{
			Node:       n,
			Recency:    recency[n.NodeID],
			Relevance:  relevance[n.NodeID],
			Importance: importance[n.NodeID],
		}
		s.Score = w.Recency*sw.RecencyW*s.Recency +
			w.Relevance*sw.RelevanceW*s.Relevance +
			w.Importance*sw.ImportanceW*s.Importance
		ranked[i] = s
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Node.NodeCount < ranked[j].Node.NodeCount
	})
	if k < len(ranked) {
		ranked = ranked[:k]
	}

	r.logger.Debug("retrieve: ranked focal point",
		slog.String("persona", p.Name()),
		slog.String("focal_point", focal),
		slog.Int("candidates", len(candidates)),
		slog.Int("returned", len(ranked)))
	return ranked, nil
}

// Candidates returns the retrievable nodes: events and thoughts that are not
// idle, ordered by last access with insertion order breaking ties.
func Candidates(m *memory.AssociativeMemory) []*model.Node {
	var out []*model.Node
	for _, n := range append(m.Events(), m.Thoughts()...) {
		if !n.IsIdle() {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LastAccessed.Equal(out[j].LastAccessed) {
			return out[i].LastAccessed.Before(out[j].LastAccessed)
		}
		return out[i].NodeCount < out[j].NodeCount
	})
	return out
}

// RecencyScores assigns decay^pos to each node, where pos counts from 1 at the
// last node of the last-accessed ordering.
func RecencyScores(ordered []*model.Node, decay float64) map[string]float64 {
	out := make(map[string]float64, len(ordered))
	for i, n := range ordered {
		out[n.NodeID] = math.Pow(decay, float64(len(ordered)-i))
	}
	return out
}

// ImportanceScores maps each node to its poignancy.
func ImportanceScores(nodes []*model.Node) map[string]float64 {
	out := make(map[string]float64, len(nodes))
	for _, n := range nodes {
		out[n.NodeID] = n.Poignancy
	}
	return out
}

func (r *Retriever) relevanceScores(ctx context.Context, m *memory.AssociativeMemory, nodes []*model.Node, focal string) (map[string]float64, error) {
	if r.embedder == nil {
		retrievalErrors.WithLabelValues("no_embedder").Inc()
		return nil, ErrNoEmbedder
	}
	query, err := r.embedder.Embed(ctx, focal)
	if err != nil {
		retrievalErrors.WithLabelValues("embed_focal_point").Inc()
		return nil, fmt.Errorf("embed focal point %q: %w", focal, err)
	}

	out := make(map[string]float64, len(nodes))
	for _, n := range nodes {
		vec, ok := m.Embedding(n.EmbeddingKey)
		if !ok {
			vec, err = r.embedder.Embed(ctx, n.EmbeddingKey)
			if err != nil {
				retrievalErrors.WithLabelValues("embed_candidate").Inc()
				return nil, fmt.Errorf("embed %s: %w", n.NodeID, err)
			}
		}
		out[n.NodeID] = embedding.CosineSimilarity(query, vec)
	}
	return out, nil
}
